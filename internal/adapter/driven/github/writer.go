package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gh "github.com/google/go-github/v82/github"

	"github.com/reviewdeck/reviewdeck/internal/domain/model"
	"github.com/reviewdeck/reviewdeck/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.GitHubWriter = (*Client)(nil)

// flushInterval spaces out individual comment posts during a flush so a
// large review does not trip GitHub's secondary rate limit.
const flushInterval = 600 * time.Millisecond

// ValidateToken verifies that the given GitHub personal access token is valid
// and returns the authenticated username on success. It creates a one-shot
// client with the provided token to avoid mutating the receiver's state.
func (c *Client) ValidateToken(ctx context.Context, token string) (string, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	tempClient := gh.NewClient(httpClient).WithAuthToken(token)
	if c.gh.BaseURL != nil && c.gh.BaseURL.Host != "api.github.com" {
		tempClient.BaseURL = c.gh.BaseURL
	}
	user, _, err := tempClient.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", err)
	}
	return user.GetLogin(), nil
}

// CreatePendingReview starts a GitHub-side pending review on the pull
// request. GitHub allows at most one pending review per reviewer per PR, so
// if login already has one it is returned instead of creating a duplicate.
func (c *Client) CreatePendingReview(ctx context.Context, repo model.RepoRef, number int, commitID, login string) (*model.PendingReview, error) {
	reviews, err := c.FetchReviews(ctx, repo, number, login)
	if err != nil {
		return nil, err
	}
	for _, r := range reviews {
		if r.IsPendingMine() {
			return &model.PendingReview{
				ID:         r.ID,
				Provenance: model.ProvenanceServer,
				Author:     r.Reviewer,
				CommitID:   r.CommitID,
				HTMLURL:    r.HTMLURL,
				IsMine:     true,
			}, nil
		}
	}

	// A review created without an event stays pending until submitted.
	reviewReq := &gh.PullRequestReviewRequest{}
	if commitID != "" {
		reviewReq.CommitID = gh.Ptr(commitID)
	}

	review, resp, err := c.gh.PullRequests.CreateReview(ctx, repo.Owner, repo.Name, number, reviewReq)
	if err != nil {
		return nil, fmt.Errorf("creating pending review for %s#%d: %w", repo.FullName(), number, err)
	}

	logRateLimit(resp, repo.FullName()+"/create-review", 0, 1)

	return &model.PendingReview{
		ID:         review.GetID(),
		Provenance: model.ProvenanceServer,
		Author:     review.GetUser().GetLogin(),
		CommitID:   review.GetCommitID(),
		HTMLURL:    review.GetHTMLURL(),
		IsMine:     true,
	}, nil
}

// SubmitPendingReview submits an existing GitHub-side pending review with the
// given event and optional body.
func (c *Client) SubmitPendingReview(ctx context.Context, repo model.RepoRef, number int, reviewID int64, event model.ReviewEvent, body string) error {
	reviewReq := &gh.PullRequestReviewRequest{
		Event: gh.Ptr(string(event)),
	}
	// APPROVE with an empty body must omit the field entirely.
	if body != "" || event != model.ReviewEventApprove {
		reviewReq.Body = gh.Ptr(body)
	}

	_, resp, err := c.gh.PullRequests.SubmitReview(ctx, repo.Owner, repo.Name, number, reviewID, reviewReq)
	if err != nil {
		var ghErr *gh.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnprocessableEntity {
			return fmt.Errorf("PR was updated since you started reviewing; refresh and try again: %w", err)
		}
		return fmt.Errorf("submitting review %d for %s#%d: %w", reviewID, repo.FullName(), number, err)
	}

	logRateLimit(resp, repo.FullName()+"/submit-review", 0, 1)
	return nil
}

// DeleteReview deletes an un-submitted GitHub-side pending review. Its draft
// comments are discarded by GitHub along with it.
func (c *Client) DeleteReview(ctx context.Context, repo model.RepoRef, number int, reviewID int64) error {
	_, resp, err := c.gh.PullRequests.DeletePendingReview(ctx, repo.Owner, repo.Name, number, reviewID)
	if err != nil {
		return fmt.Errorf("deleting pending review %d for %s#%d: %w", reviewID, repo.FullName(), number, err)
	}

	logRateLimit(resp, repo.FullName()+"/delete-review", 0, 1)
	return nil
}

// SubmitFileComment posts a single file comment. In single mode the comment
// publishes immediately. In review mode GitHub attaches the new comment to
// the caller's pending review, so PendingReviewID must identify one; the
// request itself carries no review id.
func (c *Client) SubmitFileComment(ctx context.Context, repo model.RepoRef, number int, req driven.FileCommentRequest) error {
	if req.Mode == driven.CommentModeReview {
		if req.PendingReviewID == 0 {
			return fmt.Errorf("review-mode comment on %s#%d requires a pending review", repo.FullName(), number)
		}
		if req.Line == 0 && req.InReplyToID == 0 {
			return fmt.Errorf("file-level comments cannot be attached to a pending review on %s#%d", repo.FullName(), number)
		}
	}

	// When in_reply_to is set, GitHub ignores all fields except body.
	if req.InReplyToID != 0 {
		_, resp, err := c.gh.PullRequests.CreateCommentInReplyTo(ctx, repo.Owner, repo.Name, number, req.Body, req.InReplyToID)
		if err != nil {
			return fmt.Errorf("replying to comment %d on %s#%d: %w", req.InReplyToID, repo.FullName(), number, err)
		}
		logRateLimit(resp, repo.FullName()+"/reply-comment", 0, 1)
		return nil
	}

	side := req.Side
	if side == "" {
		side = model.SideHead
	}

	comment := &gh.PullRequestComment{
		Body:     gh.Ptr(req.Body),
		Path:     gh.Ptr(req.Path),
		CommitID: gh.Ptr(req.CommitID),
	}
	if req.Line > 0 {
		comment.Line = gh.Ptr(req.Line)
		comment.Side = gh.Ptr(string(side))
	} else {
		comment.SubjectType = gh.Ptr("file")
	}

	_, resp, err := c.gh.PullRequests.CreateComment(ctx, repo.Owner, repo.Name, number, comment)
	if err != nil {
		return fmt.Errorf("creating file comment on %s#%d: %w", repo.FullName(), number, err)
	}

	logRateLimit(resp, repo.FullName()+"/create-comment", 0, 1)
	return nil
}

// FlushDraftComments posts each stored draft comment as a published comment
// against commitID. Posting continues past individual failures so a partial
// flush leaves only the failed comments behind in the local store.
func (c *Client) FlushDraftComments(ctx context.Context, repo model.RepoRef, number int, commitID string, comments []model.DraftComment) (*driven.FlushResult, error) {
	result := &driven.FlushResult{}

	for i, draft := range comments {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(flushInterval):
			}
		}

		err := c.SubmitFileComment(ctx, repo, number, driven.FileCommentRequest{
			Path:     draft.FilePath,
			Body:     draft.Body,
			CommitID: commitID,
			Line:     draft.Line,
			Side:     draft.Side,
			Mode:     driven.CommentModeSingle,
		})
		if err != nil {
			result.FailedCount++
			if result.ErrorSummary == "" {
				result.ErrorSummary = err.Error()
			}
			continue
		}
		result.SucceededIDs = append(result.SucceededIDs, draft.ID)
	}

	return result, nil
}

// SubmitGeneralComment posts a PR-level review comment (event COMMENT).
func (c *Client) SubmitGeneralComment(ctx context.Context, repo model.RepoRef, number int, body string) error {
	reviewReq := &gh.PullRequestReviewRequest{
		Event: gh.Ptr(string(model.ReviewEventComment)),
		Body:  gh.Ptr(body),
	}

	_, resp, err := c.gh.PullRequests.CreateReview(ctx, repo.Owner, repo.Name, number, reviewReq)
	if err != nil {
		return fmt.Errorf("creating general comment on %s#%d: %w", repo.FullName(), number, err)
	}

	logRateLimit(resp, repo.FullName()+"/general-comment", 0, 1)
	return nil
}

// UpdateReviewComment edits the body of a published review comment.
func (c *Client) UpdateReviewComment(ctx context.Context, repo model.RepoRef, commentID int64, body string) error {
	_, resp, err := c.gh.PullRequests.EditComment(ctx, repo.Owner, repo.Name, commentID, &gh.PullRequestComment{
		Body: gh.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("editing comment %d on %s: %w", commentID, repo.FullName(), err)
	}

	logRateLimit(resp, repo.FullName()+"/edit-comment", 0, 1)
	return nil
}

// DeleteReviewComment deletes a published review comment.
func (c *Client) DeleteReviewComment(ctx context.Context, repo model.RepoRef, commentID int64) error {
	resp, err := c.gh.PullRequests.DeleteComment(ctx, repo.Owner, repo.Name, commentID)
	if err != nil {
		return fmt.Errorf("deleting comment %d on %s: %w", commentID, repo.FullName(), err)
	}

	logRateLimit(resp, repo.FullName()+"/delete-comment", 0, 1)
	return nil
}
