package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Ilia01/deliver/internal/models"
	"github.com/Ilia01/deliver/internal/team"
)

const (
	pullRequestMerged = "MERGED"

	// Jira's GitLab integration encodes merge requests as "<project id>!<iid>".
	compositeIDSeparator = "!"
)

// LastMergeRequest is the most recently merged pull request of one project,
// as far as an issue's dev-status history knows.
type LastMergeRequest struct {
	MergedAt     time.Time
	TargetBranch string
}

// Resolver decides from an issue's linked merge requests whether it can be
// delivered to a given project.
type Resolver struct {
	scm         SourceControl
	tracker     Tracker
	mainBranch  string
	concurrency int
	log         *slog.Logger
}

func NewResolver(scm SourceControl, tracker Tracker, mainBranch string, concurrency int, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		scm:         scm,
		tracker:     tracker,
		mainBranch:  mainBranch,
		concurrency: max(concurrency, 1),
		log:         logger,
	}
}

// ReadyForProject reports whether the issue is ready to deliver into the
// project with the given numeric GitLab id.
func (r *Resolver) ReadyForProject(ctx context.Context, issueID, projectID string) (bool, error) {
	latest, err := r.LastMergeRequests(ctx, issueID)
	if err != nil {
		return false, err
	}
	ready := readyForProject(latest, projectID, r.mainBranch)
	r.log.Debug("resolved delivery readiness", "issue", issueID, "project", projectID, "projects", len(latest), "ready", ready)
	return ready, nil
}

// LastMergeRequests returns, per GitLab project id, the latest merged
// merge request linked to the issue that touches the team branches.
func (r *Resolver) LastMergeRequests(ctx context.Context, issueID string) (map[string]LastMergeRequest, error) {
	status, err := r.tracker.GetDevStatusDetail(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if status == nil || len(status.Detail) == 0 || status.Detail[0].PullRequests == nil {
		return nil, fmt.Errorf("%w: dev status of issue %s has no pull requests", ErrUpstreamContract, issueID)
	}

	refs, err := r.mergedRefs(status.Detail[0].PullRequests)
	if err != nil {
		return nil, fmt.Errorf("dev status of issue %s: %w", issueID, err)
	}

	mrs, err := gather(ctx, r.concurrency, refs, func(ctx context.Context, ref mergeRequestRef) (*models.MergeRequest, error) {
		return r.scm.ShowMergeRequest(ctx, ref.project, ref.iid)
	})
	if err != nil {
		return nil, fmt.Errorf("merge requests of issue %s: %w", issueID, err)
	}

	return reduceLatest(refs, mrs), nil
}

type mergeRequestRef struct {
	project      string
	iid          int64
	targetBranch string
}

// mergedRefs keeps merged pull requests into the team main branch, and the
// ones promoting the main branch into the shared target branch.
func (r *Resolver) mergedRefs(prs []models.PullRequest) ([]mergeRequestRef, error) {
	var refs []mergeRequestRef
	for _, pr := range prs {
		if pr.Status != pullRequestMerged {
			continue
		}
		intoMain := pr.Destination.Branch == r.mainBranch
		promotion := pr.Source.Branch == r.mainBranch && pr.Destination.Branch == team.TargetBranch
		if !intoMain && !promotion {
			continue
		}

		ref, err := parseCompositeID(pr.ID)
		if err != nil {
			return nil, err
		}
		ref.targetBranch = pr.Destination.Branch
		refs = append(refs, ref)
	}
	return refs, nil
}

func parseCompositeID(id string) (mergeRequestRef, error) {
	project, rawIID, ok := strings.Cut(id, compositeIDSeparator)
	if !ok || project == "" {
		return mergeRequestRef{}, fmt.Errorf("%w: malformed pull request id %q", ErrUpstreamContract, id)
	}
	iid, err := strconv.ParseInt(rawIID, 10, 64)
	if err != nil || iid <= 0 {
		return mergeRequestRef{}, fmt.Errorf("%w: malformed pull request id %q", ErrUpstreamContract, id)
	}
	return mergeRequestRef{project: project, iid: iid}, nil
}

// reduceLatest folds refs and their fetched merge requests, index aligned,
// into the latest merge per project. Unmerged or unparsable timestamps are
// dropped; on equal timestamps the first entry wins.
func reduceLatest(refs []mergeRequestRef, mrs []*models.MergeRequest) map[string]LastMergeRequest {
	latest := make(map[string]LastMergeRequest)
	for i, ref := range refs {
		mergedAt, ok := mergedAt(mrs[i])
		if !ok {
			continue
		}
		if current, seen := latest[ref.project]; seen && !mergedAt.After(current.MergedAt) {
			continue
		}
		latest[ref.project] = LastMergeRequest{MergedAt: mergedAt, TargetBranch: ref.targetBranch}
	}
	return latest
}

func mergedAt(mr *models.MergeRequest) (time.Time, bool) {
	if mr == nil || mr.MergedAt == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, *mr.MergedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// readyForProject: the project's latest merge went into the main branch, or
// no project at all still waits on the main branch.
func readyForProject(latest map[string]LastMergeRequest, projectID, mainBranch string) bool {
	if last, ok := latest[projectID]; ok && last.TargetBranch == mainBranch {
		return true
	}
	for _, last := range latest {
		if last.TargetBranch == mainBranch {
			return false
		}
	}
	return true
}
