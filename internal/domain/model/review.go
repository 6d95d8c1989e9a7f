package model

import "time"

// ReviewState represents the state of a review on GitHub.
type ReviewState string

const (
	ReviewStateApproved         ReviewState = "approved"
	ReviewStateChangesRequested ReviewState = "changes_requested"
	ReviewStateCommented        ReviewState = "commented"
	ReviewStatePending          ReviewState = "pending"
	ReviewStateDismissed        ReviewState = "dismissed"
)

// ReviewEvent is the action taken when submitting a review.
type ReviewEvent string

const (
	ReviewEventApprove        ReviewEvent = "APPROVE"
	ReviewEventRequestChanges ReviewEvent = "REQUEST_CHANGES"
	ReviewEventComment        ReviewEvent = "COMMENT"
)

// Review is a review record from the PR's reviews collection.
type Review struct {
	ID          int64
	Reviewer    string
	State       ReviewState
	Body        string
	CommitID    string
	SubmittedAt time.Time
	HTMLURL     string
	IsMine      bool
}

// IsPendingMine reports whether this review is the authenticated user's
// un-submitted GitHub-side pending review.
func (r Review) IsPendingMine() bool {
	return r.IsMine && r.State == ReviewStatePending
}

// ReviewProvenance distinguishes where a pending review's source of truth lives.
type ReviewProvenance string

const (
	// ProvenanceServer means the review exists in GitHub's reviews collection.
	ProvenanceServer ReviewProvenance = "server"
	// ProvenanceLocal means the review was synthesized client-side and lives
	// only in the local draft store until submitted.
	ProvenanceLocal ReviewProvenance = "local"
)

// PendingReview is a review that has been started but not yet submitted.
// Exactly one may be active per pull request at a time.
//
// A server-provenance pending review carries GitHub's real review ID and
// HTMLURL. A local-provenance one uses the PR number as its ID by convention
// and has no HTMLURL.
type PendingReview struct {
	ID         int64
	Provenance ReviewProvenance
	Author     string
	CommitID   string
	HTMLURL    string
	IsMine     bool
}

// IsServerPending reports whether GitHub is the source of truth for this review.
func (p PendingReview) IsServerPending() bool {
	return p.Provenance == ProvenanceServer
}

// NewLocalPendingReview synthesizes a local-provenance pending review for the
// given pull request. The PR number doubles as the review ID; it is a
// convention, not a real GitHub review id.
func NewLocalPendingReview(prNumber int, author, commitSHA string) PendingReview {
	return PendingReview{
		ID:         int64(prNumber),
		Provenance: ProvenanceLocal,
		Author:     author,
		CommitID:   commitSHA,
		IsMine:     true,
	}
}
