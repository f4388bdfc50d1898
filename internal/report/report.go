// Package report renders a delivery state as the markdown description of
// the delivery merge request.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/Ilia01/deliver/internal/delivery"
	"github.com/Ilia01/deliver/internal/models"
)

const (
	title = "# Jira issues"

	gitlabOnlyHeading = "## GitLab only"
	gitlabOnlyNote    = `> :warning: Why is the Jira with a status different than "Ready to deliver" and mentioned in the GitLab commits?  `
	jiraOnlyHeading   = "## Jira only"
	jiraOnlyNote      = `> :warning: Why is the Jira with the status "Ready to deliver" and not mentioned in the GitLab commits?  `
	readyHeading      = "## Ready"
	readyNote         = "Everything seems ok BUT a small check in Jira is still relevant!  "

	filePerms = 0o644
)

// IssueFinder looks up the summary of an issue.
type IssueFinder interface {
	FindIssue(ctx context.Context, key string) (*models.Issue, error)
}

type Renderer struct {
	issues      IssueFinder
	browseURL   func(key string) string
	concurrency int
}

func NewRenderer(issues IssueFinder, browseURL func(key string) string, concurrency int) *Renderer {
	return &Renderer{
		issues:      issues,
		browseURL:   browseURL,
		concurrency: max(concurrency, 1),
	}
}

// Render fetches the summary of every issue in state and lays them out in
// one section per set. Empty sets get no section.
func (r *Renderer) Render(ctx context.Context, state delivery.State) (string, error) {
	gitlabOnly, err := r.issueLines(ctx, state.GitLabReady)
	if err != nil {
		return "", err
	}
	jiraOnly, err := r.issueLines(ctx, state.JiraReady)
	if err != nil {
		return "", err
	}
	ready, err := r.issueLines(ctx, state.Ready)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	if gitlabOnly != "" {
		fmt.Fprintf(&b, "\n%s\n%s\n\n%s\n", gitlabOnlyHeading, gitlabOnlyNote, gitlabOnly)
	}
	if jiraOnly != "" {
		fmt.Fprintf(&b, "\n%s\n%s\n\n%s\n", jiraOnlyHeading, jiraOnlyNote, jiraOnly)
	}
	if ready != "" {
		fmt.Fprintf(&b, "\n%s\n%s\n\n%s", readyHeading, readyNote, ready)
	}
	return b.String(), nil
}

// issueLines renders one markdown line per key, keeping the order of keys.
func (r *Renderer) issueLines(ctx context.Context, keys []string) (string, error) {
	lines := make([]string, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			issue, err := r.issues.FindIssue(gctx, key)
			if err != nil {
				return fmt.Errorf("summary of %s: %w", key, err)
			}
			if issue == nil || issue.Key == "" || issue.Fields.Summary == "" {
				return fmt.Errorf("%w: issue %s has no key or summary", delivery.ErrUpstreamContract, key)
			}
			lines[i] = fmt.Sprintf("- [[%s](%s)] %s  ", issue.Key, r.browseURL(issue.Key), issue.Fields.Summary)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return strings.Join(lines, "\n"), nil
}

// Write replaces path with report atomically, creating its directory.
func Write(path, report string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := atomic.WriteFile(path, strings.NewReader(report)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	// atomic.WriteFile keeps the temp file's 0600 mode on new files.
	if err := os.Chmod(path, filePerms); err != nil {
		return fmt.Errorf("set report permissions: %w", err)
	}
	return nil
}
