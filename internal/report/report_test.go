package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ilia01/deliver/internal/delivery"
	"github.com/Ilia01/deliver/internal/models"
)

type issueMap map[string]*models.Issue

func (m issueMap) FindIssue(_ context.Context, key string) (*models.Issue, error) {
	if issue, ok := m[key]; ok {
		return issue, nil
	}
	return nil, errors.New("issue does not exist")
}

func issue(key, summary string) *models.Issue {
	return &models.Issue{Key: key, Fields: models.IssueFields{Summary: summary}}
}

func browse(key string) string {
	return "https://jira.example.com/browse/" + key
}

func TestRenderAllSections(t *testing.T) {
	issues := issueMap{
		"EFU-1": issue("EFU-1", "Login form"),
		"EFU-2": issue("EFU-2", "Fix logout"),
		"EFU-3": issue("EFU-3", "Dark mode"),
		"EFU-4": issue("EFU-4", "Search"),
	}
	state := delivery.State{
		GitLabReady: []string{"EFU-1"},
		JiraReady:   []string{"EFU-3"},
		Ready:       []string{"EFU-2", "EFU-4"},
	}

	got, err := NewRenderer(issues, browse, 2).Render(context.Background(), state)
	require.NoError(t, err)

	want := `# Jira issues

## GitLab only
> :warning: Why is the Jira with a status different than "Ready to deliver" and mentioned in the GitLab commits?  

- [[EFU-1](https://jira.example.com/browse/EFU-1)] Login form  

## Jira only
> :warning: Why is the Jira with the status "Ready to deliver" and not mentioned in the GitLab commits?  

- [[EFU-3](https://jira.example.com/browse/EFU-3)] Dark mode  

## Ready
Everything seems ok BUT a small check in Jira is still relevant!  

- [[EFU-2](https://jira.example.com/browse/EFU-2)] Fix logout  
- [[EFU-4](https://jira.example.com/browse/EFU-4)] Search  `
	assert.Equal(t, want, got)
}

func TestRenderOmitsEmptySections(t *testing.T) {
	issues := issueMap{"EFU-2": issue("EFU-2", "Fix logout")}

	got, err := NewRenderer(issues, browse, 1).Render(context.Background(), delivery.Partition([]string{"EFU-2"}, []string{"EFU-2"}))
	require.NoError(t, err)
	assert.NotContains(t, got, "GitLab only")
	assert.NotContains(t, got, "Jira only")
	assert.Contains(t, got, "## Ready")

	got, err = NewRenderer(issues, browse, 1).Render(context.Background(), delivery.Partition(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "# Jira issues\n", got)
}

func TestRenderMissingSummary(t *testing.T) {
	issues := issueMap{"EFU-1": issue("EFU-1", "")}

	_, err := NewRenderer(issues, browse, 1).Render(context.Background(), delivery.State{Ready: []string{"EFU-1"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, delivery.ErrUpstreamContract))
}

func TestRenderLookupFailure(t *testing.T) {
	_, err := NewRenderer(issueMap{}, browse, 1).Render(context.Background(), delivery.State{JiraReady: []string{"EFU-9"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EFU-9")
}

func TestWriteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output", "description.md")

	require.NoError(t, Write(path, "# Jira issues\n"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Jira issues\n", string(data))

	require.NoError(t, Write(path, "replaced"))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}
