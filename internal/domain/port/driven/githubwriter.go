package driven

import (
	"context"

	"github.com/reviewdeck/reviewdeck/internal/domain/model"
)

// CommentMode selects how a single file comment is posted: as a standalone
// published comment, or attached to an existing GitHub-side pending review.
type CommentMode string

const (
	CommentModeSingle CommentMode = "single"
	CommentModeReview CommentMode = "review"
)

// FileCommentRequest is the input to GitHubWriter.SubmitFileComment.
type FileCommentRequest struct {
	Path     string
	Body     string
	CommitID string
	Line     int               // 0 means a file-level comment (subject_type=file).
	Side     model.CommentSide // Defaults to SideHead when empty.
	Mode     CommentMode
	// PendingReviewID must be set for CommentModeReview; the comment is
	// attached to that review instead of being published immediately.
	PendingReviewID int64
	InReplyToID     int64 // Optional; replies ignore line/side per the API.
}

// FlushResult reports the outcome of flushing a local review's comments to
// GitHub. Comments are posted individually; a partial failure preserves the
// failed comments in the local store.
type FlushResult struct {
	SucceededIDs []int64 // Local draft-comment IDs that landed on GitHub.
	FailedCount  int
	ErrorSummary string // Empty when everything succeeded.
}

// GitHubWriter defines the driven port for GitHub write operations. It is
// kept separate from GitHubReader so read-only callers never see the
// mutating surface.
type GitHubWriter interface {
	// CreatePendingReview starts a GitHub-side pending review. If the user
	// already has one on the pull request it is returned instead of creating
	// a duplicate (GitHub allows at most one per reviewer per PR).
	CreatePendingReview(ctx context.Context, repo model.RepoRef, number int, commitID, login string) (*model.PendingReview, error)

	// SubmitPendingReview submits an existing GitHub-side pending review.
	SubmitPendingReview(ctx context.Context, repo model.RepoRef, number int, reviewID int64, event model.ReviewEvent, body string) error

	// DeleteReview deletes an un-submitted GitHub-side pending review.
	DeleteReview(ctx context.Context, repo model.RepoRef, number int, reviewID int64) error

	// SubmitFileComment posts a single file comment, either published
	// immediately or attached to a pending review per req.Mode.
	SubmitFileComment(ctx context.Context, repo model.RepoRef, number int, req FileCommentRequest) error

	// FlushDraftComments posts each local draft comment as a published
	// comment against commitID, continuing past individual failures.
	FlushDraftComments(ctx context.Context, repo model.RepoRef, number int, commitID string, comments []model.DraftComment) (*FlushResult, error)

	// SubmitGeneralComment posts a PR-level review comment (event COMMENT).
	SubmitGeneralComment(ctx context.Context, repo model.RepoRef, number int, body string) error

	// UpdateReviewComment edits the body of a published review comment.
	UpdateReviewComment(ctx context.Context, repo model.RepoRef, commentID int64, body string) error

	// DeleteReviewComment deletes a published review comment.
	DeleteReviewComment(ctx context.Context, repo model.RepoRef, commentID int64) error

	// ValidateToken verifies a GitHub token and returns the authenticated login.
	ValidateToken(ctx context.Context, token string) (string, error)
}
