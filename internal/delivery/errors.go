package delivery

import "errors"

var (
	// ErrPrecondition marks a run aborted before any tracker work: the
	// project or merge request cannot be read, or the merge request is not
	// a delivery merge request.
	ErrPrecondition = errors.New("precondition failed")

	// ErrUpstreamContract marks a tracker response missing fields the
	// reconciliation depends on.
	ErrUpstreamContract = errors.New("unexpected tracker response")
)
