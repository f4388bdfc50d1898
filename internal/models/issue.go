package models

// Issue is a Jira issue as returned by the issue and search endpoints.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

type IssueFields struct {
	Summary   string       `json:"summary"`
	Status    *IssueStatus `json:"status"`
	IssueType *IssueType   `json:"issuetype"`
}

type IssueStatus struct {
	Name string `json:"name"`
}

type IssueType struct {
	Name string `json:"name"`
}

// TypeName returns the issue type name, or "" when Jira omitted the field.
func (i *Issue) TypeName() string {
	if i == nil || i.Fields.IssueType == nil {
		return ""
	}
	return i.Fields.IssueType.Name
}

// SearchResult is one page of a JQL search. Issues stays nil when the
// response carried no "issues" field at all.
type SearchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// DevStatus is the dev-status detail Jira keeps for an issue's linked
// GitLab merge requests.
type DevStatus struct {
	Detail []DevStatusDetail `json:"detail"`
}

type DevStatusDetail struct {
	PullRequests []PullRequest `json:"pullRequests"`
}

// PullRequest is a merge request as Jira's GitLab integration reports it.
// ID is "<gitlab project id>!<merge request iid>".
type PullRequest struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Source      BranchRef `json:"source"`
	Destination BranchRef `json:"destination"`
}

type BranchRef struct {
	Branch string `json:"branch"`
}
