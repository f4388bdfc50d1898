package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Ilia01/deliver/internal/issuekey"
	"github.com/Ilia01/deliver/internal/models"
	"github.com/Ilia01/deliver/internal/team"
)

const (
	DefaultConcurrency = 10
	DefaultPageSize    = 50

	// StatusReadyToDeliver is the Jira workflow status of issues waiting for
	// promotion to the shared target branch.
	StatusReadyToDeliver = "Ready to Deliver"

	issueTypeEpic = "Epic"

	// maxSearchPages bounds the search loop when Jira keeps reporting a
	// larger total than it returns.
	maxSearchPages = 200
)

// SourceControl is the part of GitLab the engine reads.
type SourceControl interface {
	ShowProject(ctx context.Context, project string) (*models.Project, error)
	ShowMergeRequest(ctx context.Context, project string, iid int64) (*models.MergeRequest, error)
	ListCommits(ctx context.Context, project string, iid int64) ([]models.Commit, error)
}

// Tracker is the part of Jira the engine reads.
type Tracker interface {
	FindIssue(ctx context.Context, key string) (*models.Issue, error)
	GetDevStatusDetail(ctx context.Context, issueID string) (*models.DevStatus, error)
	SearchIssues(ctx context.Context, jql string, startAt, maxResults int) (*models.SearchResult, error)
}

type Renderer interface {
	Render(ctx context.Context, state State) (string, error)
}

type Options struct {
	Concurrency int
	PageSize    int
	Logger      *slog.Logger
}

// Outcome is everything a successful run produced.
type Outcome struct {
	Project      *models.Project
	MergeRequest *models.MergeRequest
	State        State
	Report       string
}

// Engine reconciles one team's delivery merge request with the issues Jira
// considers ready to deliver.
type Engine struct {
	scm       SourceControl
	tracker   Tracker
	renderer  Renderer
	team      team.Team
	extractor *issuekey.Extractor
	resolver  *Resolver

	concurrency int
	pageSize    int
	log         *slog.Logger
}

func NewEngine(scm SourceControl, tracker Tracker, renderer Renderer, tm team.Team, extractor *issuekey.Extractor, opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	logger := opts.Logger.With("team", string(tm.Name))

	return &Engine{
		scm:         scm,
		tracker:     tracker,
		renderer:    renderer,
		team:        tm,
		extractor:   extractor,
		resolver:    NewResolver(scm, tracker, tm.MainBranch, opts.Concurrency, logger),
		concurrency: opts.Concurrency,
		pageSize:    opts.PageSize,
		log:         logger,
	}
}

// Run reconciles merge request mrIID of project, given as a numeric id or a
// "group/project" path, and renders the report. Nothing is written.
func (e *Engine) Run(ctx context.Context, project string, mrIID int64) (*Outcome, error) {
	p, err := e.scm.ShowProject(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("%w: project %q doesn't exist or is not accessible: %w", ErrPrecondition, project, err)
	}
	projectID := strconv.FormatInt(p.ID, 10)

	mr, err := e.mergeRequest(ctx, projectID, mrIID)
	if err != nil {
		return nil, err
	}
	e.log.Debug("validated delivery merge request", "project", p.PathWithNamespace, "mr", mrIID)

	gitlabKeys, err := e.gitlabIssueKeys(ctx, projectID, mrIID)
	if err != nil {
		return nil, err
	}
	jiraKeys, err := e.jiraIssueKeys(ctx, projectID)
	if err != nil {
		return nil, err
	}

	state := Partition(gitlabKeys, jiraKeys)
	e.log.Debug("partitioned issues",
		"gitlab_only", len(state.GitLabReady),
		"jira_only", len(state.JiraReady),
		"ready", len(state.Ready))

	report, err := e.renderer.Render(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	return &Outcome{Project: p, MergeRequest: mr, State: state, Report: report}, nil
}

// mergeRequest fetches the merge request and checks it promotes the team
// main branch into the shared target branch.
func (e *Engine) mergeRequest(ctx context.Context, projectID string, iid int64) (*models.MergeRequest, error) {
	mr, err := e.scm.ShowMergeRequest(ctx, projectID, iid)
	if err != nil {
		return nil, fmt.Errorf("%w: merge request !%d doesn't exist or is not accessible: %w", ErrPrecondition, iid, err)
	}
	if mr.SourceBranch != e.team.MainBranch || mr.TargetBranch != team.TargetBranch {
		return nil, fmt.Errorf("%w: merge request !%d goes from %q to %q, expected %q to %q",
			ErrPrecondition, iid, mr.SourceBranch, mr.TargetBranch, e.team.MainBranch, team.TargetBranch)
	}
	return mr, nil
}

// gitlabIssueKeys returns the deliverable issues referenced by the merge
// request commits. Keys Jira cannot resolve are skipped, and so are epics.
func (e *Engine) gitlabIssueKeys(ctx context.Context, projectID string, iid int64) ([]string, error) {
	commits, err := e.scm.ListCommits(ctx, projectID, iid)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	candidates := e.extractor.FromCommits(commits)
	e.log.Debug("extracted issue keys", "commits", len(commits), "candidates", len(candidates))

	lookups := collect(ctx, e.concurrency, candidates, e.tracker.FindIssue)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(lookups))
	for i, l := range lookups {
		switch {
		case !l.ok():
			e.log.Debug("skipping unknown issue key", "key", candidates[i], "error", l.err)
		case l.value == nil || l.value.Key == "":
			e.log.Debug("skipping issue key without issue", "key", candidates[i])
		case l.value.TypeName() == issueTypeEpic:
			e.log.Debug("skipping epic", "key", l.value.Key)
		default:
			keys = append(keys, l.value.Key)
		}
	}
	return keys, nil
}

// jiraIssueKeys returns the team's issues in Ready to Deliver whose merge
// history allows delivering them to the project.
func (e *Engine) jiraIssueKeys(ctx context.Context, projectID string) ([]string, error) {
	issues, err := e.readyIssues(ctx)
	if err != nil {
		return nil, err
	}

	ready, err := gather(ctx, e.concurrency, issues, func(ctx context.Context, issue models.Issue) (bool, error) {
		return e.resolver.ReadyForProject(ctx, issue.ID, projectID)
	})
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(issues))
	for i, issue := range issues {
		if ready[i] {
			keys = append(keys, issue.Key)
		} else {
			e.log.Debug("issue not ready for project", "key", issue.Key, "project", projectID)
		}
	}
	return keys, nil
}

func (e *Engine) readyIssueQuery() string {
	return fmt.Sprintf(`"Team[Team]" = %s and status = %q order by key`, e.team.TrackerID, StatusReadyToDeliver)
}

func (e *Engine) readyIssues(ctx context.Context) ([]models.Issue, error) {
	jql := e.readyIssueQuery()

	var issues []models.Issue
	for page := 0; page < maxSearchPages; page++ {
		result, err := e.tracker.SearchIssues(ctx, jql, len(issues), e.pageSize)
		if err != nil {
			return nil, fmt.Errorf("search issues ready to deliver: %w", err)
		}
		if result == nil || result.Issues == nil {
			return nil, fmt.Errorf("%w: search response has no issues", ErrUpstreamContract)
		}
		for _, issue := range result.Issues {
			if issue.ID == "" || issue.Key == "" {
				return nil, fmt.Errorf("%w: search returned an issue without id or key", ErrUpstreamContract)
			}
		}
		issues = append(issues, result.Issues...)
		e.log.Debug("searched ready issues", "page", page, "received", len(result.Issues), "total", result.Total)

		if len(result.Issues) == 0 || len(issues) >= result.Total {
			break
		}
	}
	return issues, nil
}
