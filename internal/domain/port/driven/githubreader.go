package driven

import (
	"context"

	"github.com/reviewdeck/reviewdeck/internal/domain/model"
)

// GitHubReader defines the driven port for GitHub read operations.
type GitHubReader interface {
	// ListPullRequests returns pull requests for the repository filtered by
	// state ("open", "closed", or "all"). When login is non-empty, each
	// summary is enriched with HasPendingReview and FileCount for that user.
	ListPullRequests(ctx context.Context, repo model.RepoRef, state, login string) ([]model.PullRequestSummary, error)

	// GetPullRequestDetail returns a single pull request with its changed
	// files, review comments, and reviews. IsMine flags on comments and
	// reviews are resolved against login.
	GetPullRequestDetail(ctx context.Context, repo model.RepoRef, number int, login string) (*model.PullRequestDetail, error)

	// FetchReviews returns all reviews on the pull request, IsMine resolved
	// against login.
	FetchReviews(ctx context.Context, repo model.RepoRef, number int, login string) ([]model.Review, error)

	// FetchPendingReviewComments returns the comments attached to an
	// un-submitted GitHub-side review.
	FetchPendingReviewComments(ctx context.Context, repo model.RepoRef, number int, reviewID int64, login string) ([]model.Comment, error)

	// FetchFileContent returns the raw contents of a file at the given ref.
	FetchFileContent(ctx context.Context, repo model.RepoRef, ref, path string) (string, error)
}
