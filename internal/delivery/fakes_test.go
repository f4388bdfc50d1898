package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Ilia01/deliver/internal/models"
)

var errFakeNotFound = errors.New("not found")

type fakeSCM struct {
	projects map[string]*models.Project
	mrs      map[string]*models.MergeRequest
	commits  map[string][]models.Commit
	mrErr    error

	mu      sync.Mutex
	mrCalls []string
}

func newFakeSCM() *fakeSCM {
	return &fakeSCM{
		projects: map[string]*models.Project{},
		mrs:      map[string]*models.MergeRequest{},
		commits:  map[string][]models.Commit{},
	}
}

func mrKey(project string, iid int64) string {
	return fmt.Sprintf("%s!%d", project, iid)
}

func (f *fakeSCM) addProject(id int64, path string) {
	p := &models.Project{ID: id, PathWithNamespace: path}
	f.projects[path] = p
	f.projects[fmt.Sprint(id)] = p
}

func (f *fakeSCM) addMergeRequest(project string, iid int64, source, target string, mergedAt string) {
	mr := &models.MergeRequest{IID: iid, SourceBranch: source, TargetBranch: target}
	if mergedAt != "" {
		mr.MergedAt = &mergedAt
	}
	f.mrs[mrKey(project, iid)] = mr
}

func (f *fakeSCM) ShowProject(_ context.Context, project string) (*models.Project, error) {
	if p, ok := f.projects[project]; ok {
		return p, nil
	}
	return nil, errFakeNotFound
}

func (f *fakeSCM) ShowMergeRequest(_ context.Context, project string, iid int64) (*models.MergeRequest, error) {
	f.mu.Lock()
	f.mrCalls = append(f.mrCalls, mrKey(project, iid))
	f.mu.Unlock()

	if f.mrErr != nil {
		return nil, f.mrErr
	}
	if mr, ok := f.mrs[mrKey(project, iid)]; ok {
		return mr, nil
	}
	return nil, errFakeNotFound
}

func (f *fakeSCM) ListCommits(_ context.Context, project string, iid int64) ([]models.Commit, error) {
	commits, ok := f.commits[mrKey(project, iid)]
	if !ok {
		return nil, errFakeNotFound
	}
	return commits, nil
}

type fakeTracker struct {
	issues    map[string]*models.Issue
	devStatus map[string]*models.DevStatus
	devErr    error
	// search pages are served by startAt.
	search    map[int]*models.SearchResult
	searchErr error

	mu       sync.Mutex
	jql      []string
	lookedUp []string
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		issues:    map[string]*models.Issue{},
		devStatus: map[string]*models.DevStatus{},
		search:    map[int]*models.SearchResult{},
	}
}

func (f *fakeTracker) addIssue(id, key, issueType string) {
	f.issues[key] = &models.Issue{
		ID:     id,
		Key:    key,
		Fields: models.IssueFields{Summary: "summary of " + key, IssueType: &models.IssueType{Name: issueType}},
	}
}

func (f *fakeTracker) setReady(issues ...models.Issue) {
	if issues == nil {
		issues = []models.Issue{}
	}
	f.search[0] = &models.SearchResult{Total: len(issues), Issues: issues}
}

func (f *fakeTracker) setPullRequests(issueID string, prs ...models.PullRequest) {
	f.devStatus[issueID] = &models.DevStatus{Detail: []models.DevStatusDetail{{PullRequests: prs}}}
}

func (f *fakeTracker) FindIssue(_ context.Context, key string) (*models.Issue, error) {
	f.mu.Lock()
	f.lookedUp = append(f.lookedUp, key)
	f.mu.Unlock()

	if issue, ok := f.issues[key]; ok {
		return issue, nil
	}
	return nil, fmt.Errorf("find issue %s: %w", key, errFakeNotFound)
}

func (f *fakeTracker) GetDevStatusDetail(_ context.Context, issueID string) (*models.DevStatus, error) {
	if f.devErr != nil {
		return nil, f.devErr
	}
	return f.devStatus[issueID], nil
}

func (f *fakeTracker) SearchIssues(_ context.Context, jql string, startAt, _ int) (*models.SearchResult, error) {
	f.mu.Lock()
	f.jql = append(f.jql, jql)
	f.mu.Unlock()

	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if result, ok := f.search[startAt]; ok {
		return result, nil
	}
	return &models.SearchResult{Issues: []models.Issue{}}, nil
}

type fakeRenderer struct {
	mu     sync.Mutex
	states []State
}

func (f *fakeRenderer) Render(_ context.Context, state State) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
	return strings.Join(state.Ready, ","), nil
}

func mergedPR(id, source, destination string) models.PullRequest {
	return models.PullRequest{
		ID:          id,
		Status:      pullRequestMerged,
		Source:      models.BranchRef{Branch: source},
		Destination: models.BranchRef{Branch: destination},
	}
}
