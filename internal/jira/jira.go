package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Ilia01/deliver/internal/config"
	"github.com/Ilia01/deliver/internal/models"
)

// ErrNotFound is wrapped into errors for 404 responses.
var ErrNotFound = errors.New("not found")

const (
	applicationTypeGitLab = "GitLab"
	dataTypePullRequest   = "pullrequest"
)

var issueFields = []string{"summary", "status", "issuetype"}

type Client struct {
	baseURL string
	email   string
	auth    config.AuthMethod
	http    *http.Client
}

func NewClient(baseURL, email string, auth config.AuthMethod) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		email:   email,
		auth:    auth,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) apiVersion() string {
	if v := os.Getenv("JIRA_API_VERSION"); v != "" {
		return v
	}
	return "2"
}

func (c *Client) applyAuth(req *http.Request) {
	switch c.auth.Type {
	case config.AuthPersonalAccessToken:
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.auth.Token))
	default:
		req.SetBasicAuth(c.email, c.auth.Token)
	}
}

// BrowseURL is the human-facing page of an issue.
func (c *Client) BrowseURL(key string) string {
	return fmt.Sprintf("%s/browse/%s", c.baseURL, key)
}

func (c *Client) FindIssue(ctx context.Context, key string) (*models.Issue, error) {
	params := url.Values{"fields": {strings.Join(issueFields, ",")}}
	endpoint := fmt.Sprintf("%s/rest/api/%s/issue/%s?%s", c.baseURL, c.apiVersion(), url.PathEscape(key), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.applyAuth(req)

	var issue models.Issue
	if err := c.doJSON(req, &issue); err != nil {
		return nil, fmt.Errorf("find issue %s: %w", key, err)
	}
	return &issue, nil
}

// GetDevStatusDetail returns the GitLab merge requests linked to an issue.
// A nil status with a nil error means Jira answered with an empty body.
func (c *Client) GetDevStatusDetail(ctx context.Context, issueID string) (*models.DevStatus, error) {
	params := url.Values{
		"issueId":         {issueID},
		"applicationType": {applicationTypeGitLab},
		"dataType":        {dataTypePullRequest},
	}
	endpoint := fmt.Sprintf("%s/rest/dev-status/latest/issue/detail?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.applyAuth(req)

	var status *models.DevStatus
	err = c.do(req, func(body []byte) error {
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) == 0 || string(trimmed) == "null" {
			return nil
		}
		status = &models.DevStatus{}
		if err := json.Unmarshal(trimmed, status); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dev status of issue %s: %w", issueID, err)
	}
	return status, nil
}

// SearchIssues returns one page of a JQL search.
func (c *Client) SearchIssues(ctx context.Context, jql string, startAt, maxResults int) (*models.SearchResult, error) {
	endpoint := fmt.Sprintf("%s/rest/api/%s/search", c.baseURL, c.apiVersion())
	payload := map[string]any{
		"jql":        jql,
		"startAt":    startAt,
		"maxResults": maxResults,
		"fields":     issueFields,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyAuth(req)

	var result models.SearchResult
	if err := c.doJSON(req, &result); err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}
	return &result, nil
}

func (c *Client) TestConnection(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/rest/api/%s/myself", c.baseURL, c.apiVersion())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.applyAuth(req)
	return c.do(req, nil)
}

func (c *Client) doJSON(req *http.Request, v any) error {
	return c.do(req, func(body []byte) error {
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		return nil
	})
}

func (c *Client) do(req *http.Request, handler func([]byte) error) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("jira api error (%d): %s: %w", resp.StatusCode, string(data), ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("jira api error (%d): %s", resp.StatusCode, string(data))
	}

	if handler != nil {
		return handler(data)
	}
	return nil
}
