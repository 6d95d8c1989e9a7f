package driven

import (
	"context"

	"github.com/reviewdeck/reviewdeck/internal/domain/model"
)

// DraftStore defines the driven port for the local pending-review store. It
// persists review metadata and draft comments keyed by (owner, repo, PR
// number), never by review ID, so clearing a review removes everything
// stored for that PR.
type DraftStore interface {
	// StartReview creates the metadata row for a local review, or returns
	// the existing one if the PR already has a draft in progress.
	StartReview(ctx context.Context, repo model.RepoRef, prNumber int, commitID, body string) (*model.ReviewDraft, error)

	// GetReviewMetadata returns the draft metadata, or nil when the PR has
	// no local review.
	GetReviewMetadata(ctx context.Context, repo model.RepoRef, prNumber int) (*model.ReviewDraft, error)

	// UpdateCommitID records a new head SHA on the draft after the PR was
	// updated with further commits.
	UpdateCommitID(ctx context.Context, repo model.RepoRef, prNumber int, commitID string) error

	// AddComment appends a draft comment and rewrites the review log file.
	AddComment(ctx context.Context, comment model.DraftComment) (*model.DraftComment, error)

	// UpdateComment replaces a draft comment's body in place.
	UpdateComment(ctx context.Context, commentID int64, body string) (*model.DraftComment, error)

	// DeleteComment soft-deletes a draft comment so the review log keeps a
	// record of it.
	DeleteComment(ctx context.Context, commentID int64) error

	// RemoveComment hard-deletes a draft comment without touching the log
	// file. Used for comments that landed on GitHub during a flush.
	RemoveComment(ctx context.Context, commentID int64) error

	// GetComments returns the PR's non-deleted draft comments ordered by
	// file path then line.
	GetComments(ctx context.Context, repo model.RepoRef, prNumber int) ([]model.DraftComment, error)

	// ClearReview deletes the review metadata and all its comments, and
	// annotates the review log file with a deletion header. prTitle is
	// recorded in the header when known.
	ClearReview(ctx context.Context, repo model.RepoRef, prNumber int, prTitle string) error
}
