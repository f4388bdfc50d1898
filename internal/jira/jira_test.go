package jira

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ilia01/deliver/internal/config"
)

func newTestClient(auth config.AuthMethod, fn roundTripFunc) *Client {
	client := NewClient("https://jira.example.com/", "user@example.com", auth)
	client.http.Transport = fn
	return client
}

func TestFindIssue(t *testing.T) {
	client := newTestClient(config.AuthMethod{Type: config.AuthAPIToken, Token: "token"}, func(req *http.Request) *http.Response {
		if req.Method != http.MethodGet || !strings.HasSuffix(req.URL.Path, "/rest/api/2/issue/EFU-1") {
			t.Fatalf("unexpected request: %s %s", req.Method, req.URL.Path)
		}
		user, pass, ok := req.BasicAuth()
		if !ok || user != "user@example.com" || pass != "token" {
			t.Fatalf("basic auth not applied")
		}
		if got := req.URL.Query().Get("fields"); got != "summary,status,issuetype" {
			t.Fatalf("unexpected fields: %s", got)
		}
		body := `{"id":"10001","key":"EFU-1","fields":{"summary":"Login","status":{"name":"Ready to Deliver"},"issuetype":{"name":"Story"}}}`
		return jsonResponse(http.StatusOK, body)
	})

	issue, err := client.FindIssue(context.Background(), "EFU-1")
	require.NoError(t, err)
	assert.Equal(t, "10001", issue.ID)
	assert.Equal(t, "EFU-1", issue.Key)
	assert.Equal(t, "Login", issue.Fields.Summary)
	assert.Equal(t, "Story", issue.TypeName())
}

func TestFindIssueNotFound(t *testing.T) {
	client := newTestClient(config.AuthMethod{Type: config.AuthAPIToken, Token: "token"}, func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusNotFound, `{"errorMessages":["Issue does not exist"]}`)
	})

	_, err := client.FindIssue(context.Background(), "EFU-404")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "EFU-404")
}

func TestPersonalAccessTokenUsesBearer(t *testing.T) {
	client := newTestClient(config.AuthMethod{Type: config.AuthPersonalAccessToken, Token: "pat"}, func(req *http.Request) *http.Response {
		if got := req.Header.Get("Authorization"); got != "Bearer pat" {
			t.Fatalf("unexpected authorization header: %q", got)
		}
		return jsonResponse(http.StatusOK, "{}")
	})
	require.NoError(t, client.TestConnection(context.Background()))
}

func TestGetDevStatusDetail(t *testing.T) {
	client := newTestClient(config.AuthMethod{Type: config.AuthAPIToken, Token: "token"}, func(req *http.Request) *http.Response {
		if req.URL.Path != "/rest/dev-status/latest/issue/detail" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		q := req.URL.Query()
		if q.Get("issueId") != "10001" || q.Get("applicationType") != "GitLab" || q.Get("dataType") != "pullrequest" {
			t.Fatalf("unexpected query: %s", req.URL.RawQuery)
		}
		body := `{"detail":[{"pullRequests":[
			{"id":"42!7","status":"MERGED","source":{"branch":"feature/EFU-1"},"destination":{"branch":"team/foundations/deliver"}},
			{"id":"42!9","status":"OPEN","source":{"branch":"team/foundations/deliver"},"destination":{"branch":"develop"}}
		]}]}`
		return jsonResponse(http.StatusOK, body)
	})

	status, err := client.GetDevStatusDetail(context.Background(), "10001")
	require.NoError(t, err)
	require.NotNil(t, status)
	require.Len(t, status.Detail, 1)
	prs := status.Detail[0].PullRequests
	require.Len(t, prs, 2)
	assert.Equal(t, "42!7", prs[0].ID)
	assert.Equal(t, "MERGED", prs[0].Status)
	assert.Equal(t, "team/foundations/deliver", prs[0].Destination.Branch)
	assert.Equal(t, "team/foundations/deliver", prs[1].Source.Branch)
}

func TestGetDevStatusDetailEmptyBody(t *testing.T) {
	for _, body := range []string{"", "  ", "null"} {
		client := newTestClient(config.AuthMethod{Token: "token"}, func(req *http.Request) *http.Response {
			return jsonResponse(http.StatusOK, body)
		})
		status, err := client.GetDevStatusDetail(context.Background(), "1")
		require.NoError(t, err)
		assert.Nil(t, status, "body %q", body)
	}
}

func TestGetDevStatusDetailMissingPullRequests(t *testing.T) {
	client := newTestClient(config.AuthMethod{Token: "token"}, func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusOK, `{"detail":[{}]}`)
	})
	status, err := client.GetDevStatusDetail(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, status.Detail, 1)
	assert.Nil(t, status.Detail[0].PullRequests)
}

func TestSearchIssues(t *testing.T) {
	client := newTestClient(config.AuthMethod{Token: "token"}, func(req *http.Request) *http.Response {
		if req.Method != http.MethodPost || !strings.HasSuffix(req.URL.Path, "/search") {
			t.Fatalf("unexpected request: %s %s", req.Method, req.URL.Path)
		}
		var payload map[string]any
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["jql"] != `status = "Ready to Deliver"` {
			t.Fatalf("unexpected jql: %v", payload["jql"])
		}
		if payload["startAt"] != float64(50) || payload["maxResults"] != float64(50) {
			t.Fatalf("unexpected paging: %v %v", payload["startAt"], payload["maxResults"])
		}
		body := `{"startAt":50,"maxResults":50,"total":51,"issues":[{"id":"2","key":"EFU-2","fields":{"summary":"Another"}}]}`
		return jsonResponse(http.StatusOK, body)
	})

	result, err := client.SearchIssues(context.Background(), `status = "Ready to Deliver"`, 50, 50)
	require.NoError(t, err)
	assert.Equal(t, 51, result.Total)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "EFU-2", result.Issues[0].Key)
	assert.Equal(t, "2", result.Issues[0].ID)
}

func TestSearchIssuesServerError(t *testing.T) {
	client := newTestClient(config.AuthMethod{Token: "token"}, func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusBadRequest, `{"errorMessages":["bad jql"]}`)
	})
	_, err := client.SearchIssues(context.Background(), "???", 0, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestBrowseURL(t *testing.T) {
	client := NewClient("https://jira.example.com/", "", config.AuthMethod{})
	assert.Equal(t, "https://jira.example.com/browse/EFU-9", client.BrowseURL("EFU-9"))
}

type roundTripFunc func(*http.Request) *http.Response

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}
