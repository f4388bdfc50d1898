package models

type Project struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`
}

// MergeRequest is a GitLab merge request. MergedAt is nil until merged.
type MergeRequest struct {
	ID           int64   `json:"id"`
	IID          int64   `json:"iid"`
	ProjectID    int64   `json:"project_id"`
	Title        string  `json:"title"`
	State        string  `json:"state"`
	SourceBranch string  `json:"source_branch"`
	TargetBranch string  `json:"target_branch"`
	MergedAt     *string `json:"merged_at"`
	WebURL       string  `json:"web_url"`
}

type Commit struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}
