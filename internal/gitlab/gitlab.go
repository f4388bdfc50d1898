package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Ilia01/deliver/internal/models"
)

var ErrNotFound = errors.New("not found")

const (
	perPage = 100

	// maxPages stops pagination when X-Next-Page keeps pointing forward.
	maxPages = 1000
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ShowProject accepts a numeric id or a "group/project" path.
func (c *Client) ShowProject(ctx context.Context, project string) (*models.Project, error) {
	var result models.Project
	if _, err := c.getJSON(ctx, c.projectURL(project, ""), &result); err != nil {
		return nil, fmt.Errorf("show project %s: %w", project, err)
	}
	return &result, nil
}

func (c *Client) ShowMergeRequest(ctx context.Context, project string, iid int64) (*models.MergeRequest, error) {
	var result models.MergeRequest
	path := fmt.Sprintf("/merge_requests/%d", iid)
	if _, err := c.getJSON(ctx, c.projectURL(project, path), &result); err != nil {
		return nil, fmt.Errorf("show merge request %s!%d: %w", project, iid, err)
	}
	return &result, nil
}

// ListCommits follows X-Next-Page until every commit of the merge request is read.
func (c *Client) ListCommits(ctx context.Context, project string, iid int64) ([]models.Commit, error) {
	var all []models.Commit
	page := 1
	for i := 0; i < maxPages; i++ {
		params := url.Values{
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
		}
		endpoint := c.projectURL(project, fmt.Sprintf("/merge_requests/%d/commits", iid)) + "?" + params.Encode()

		var commits []models.Commit
		header, err := c.getJSON(ctx, endpoint, &commits)
		if err != nil {
			return nil, fmt.Errorf("list commits of %s!%d: %w", project, iid, err)
		}
		all = append(all, commits...)

		next, err := strconv.Atoi(strings.TrimSpace(header.Get("X-Next-Page")))
		if err != nil || next <= page {
			return all, nil
		}
		page = next
	}
	return all, nil
}

func (c *Client) TestConnection(ctx context.Context) error {
	var user struct {
		Username string `json:"username"`
	}
	_, err := c.getJSON(ctx, c.baseURL+"/api/v4/user", &user)
	return err
}

func (c *Client) projectURL(project, suffix string) string {
	return fmt.Sprintf("%s/api/v4/projects/%s%s", c.baseURL, url.PathEscape(project), suffix)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("gitlab api error (%d): %s: %w", resp.StatusCode, string(data), ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gitlab api error (%d): %s", resp.StatusCode, string(data))
	}

	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return resp.Header, nil
}
