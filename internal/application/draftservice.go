package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reviewdeck/reviewdeck/internal/domain/model"
	"github.com/reviewdeck/reviewdeck/internal/domain/port/driven"
)

// DraftService keeps an in-memory view of a PR's local draft comments
// consistent with the draft store across add/edit/delete, and retires the
// local review automatically when its last comment is deleted.
type DraftService struct {
	store  driven.DraftStore
	logger *slog.Logger
}

// NewDraftService creates a DraftService backed by the given store.
func NewDraftService(store driven.DraftStore, logger *slog.Logger) *DraftService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DraftService{store: store, logger: logger}
}

// AddComment validates and appends a draft comment for the PR, creating the
// review metadata first if this is the PR's first local comment. Adding a
// comment in review mode and starting a review are the same action from the
// store's perspective.
func (s *DraftService) AddComment(ctx context.Context, repo model.RepoRef, prNumber int, comment model.DraftComment) (*model.DraftComment, error) {
	if comment.FilePath == "" {
		return nil, newValidationError("no file selected")
	}
	if comment.Body == "" {
		return nil, newValidationError("empty comment body")
	}
	if comment.Line < 0 {
		return nil, newValidationError("invalid line number %d", comment.Line)
	}

	if _, err := s.store.StartReview(ctx, repo, prNumber, comment.CommitID, ""); err != nil {
		return nil, fmt.Errorf("start review for %s#%d: %w", repo.FullName(), prNumber, err)
	}

	comment.Owner = repo.Owner
	comment.Repo = repo.Name
	comment.PRNumber = prNumber

	added, err := s.store.AddComment(ctx, comment)
	if err != nil {
		return nil, fmt.Errorf("add draft comment for %s#%d: %w", repo.FullName(), prNumber, err)
	}

	s.logger.Debug("draft comment added",
		"repo", repo.FullName(),
		"pr", prNumber,
		"path", comment.FilePath,
		"line", comment.Line,
	)
	return added, nil
}

// UpdateComment replaces a draft comment's body. It has no review lifecycle
// effect.
func (s *DraftService) UpdateComment(ctx context.Context, commentID int64, body string) (*model.DraftComment, error) {
	if body == "" {
		return nil, newValidationError("empty comment body")
	}
	updated, err := s.store.UpdateComment(ctx, commentID, body)
	if err != nil {
		return nil, fmt.Errorf("update draft comment %d: %w", commentID, err)
	}
	return updated, nil
}

// DeleteComment removes a draft comment, then re-reads the PR's comment list;
// when the list is now empty the local review is torn down as well. The
// second return value reports whether that automatic retire happened.
func (s *DraftService) DeleteComment(ctx context.Context, repo model.RepoRef, prNumber int, commentID int64) (retired bool, err error) {
	if err := s.store.DeleteComment(ctx, commentID); err != nil {
		return false, fmt.Errorf("delete draft comment %d: %w", commentID, err)
	}

	remaining, err := s.store.GetComments(ctx, repo, prNumber)
	if err != nil {
		return false, fmt.Errorf("list draft comments for %s#%d: %w", repo.FullName(), prNumber, err)
	}
	if len(remaining) > 0 {
		return false, nil
	}

	if err := s.store.ClearReview(ctx, repo, prNumber, ""); err != nil {
		return false, fmt.Errorf("retire empty review for %s#%d: %w", repo.FullName(), prNumber, err)
	}
	s.logger.Info("local review retired after last comment deleted",
		"repo", repo.FullName(),
		"pr", prNumber,
	)
	return true, nil
}

// Comments returns the PR's current non-deleted draft comments.
func (s *DraftService) Comments(ctx context.Context, repo model.RepoRef, prNumber int) ([]model.DraftComment, error) {
	comments, err := s.store.GetComments(ctx, repo, prNumber)
	if err != nil {
		return nil, fmt.Errorf("list draft comments for %s#%d: %w", repo.FullName(), prNumber, err)
	}
	return comments, nil
}

// Metadata returns the PR's draft review metadata, or nil when none exists.
func (s *DraftService) Metadata(ctx context.Context, repo model.RepoRef, prNumber int) (*model.ReviewDraft, error) {
	meta, err := s.store.GetReviewMetadata(ctx, repo, prNumber)
	if err != nil {
		return nil, fmt.Errorf("get draft metadata for %s#%d: %w", repo.FullName(), prNumber, err)
	}
	return meta, nil
}

// StartReview creates draft metadata explicitly (the "start review with no
// comments yet" path). Idempotent for an existing draft.
func (s *DraftService) StartReview(ctx context.Context, repo model.RepoRef, prNumber int, commitID, body string) (*model.ReviewDraft, error) {
	meta, err := s.store.StartReview(ctx, repo, prNumber, commitID, body)
	if err != nil {
		return nil, fmt.Errorf("start review for %s#%d: %w", repo.FullName(), prNumber, err)
	}
	return meta, nil
}

// UpdateCommitID records a new head SHA on the PR's draft.
func (s *DraftService) UpdateCommitID(ctx context.Context, repo model.RepoRef, prNumber int, commitID string) error {
	if err := s.store.UpdateCommitID(ctx, repo, prNumber, commitID); err != nil {
		return fmt.Errorf("update draft commit for %s#%d: %w", repo.FullName(), prNumber, err)
	}
	return nil
}

// Clear deletes the PR's draft review and all its stored comments.
func (s *DraftService) Clear(ctx context.Context, repo model.RepoRef, prNumber int, prTitle string) error {
	if err := s.store.ClearReview(ctx, repo, prNumber, prTitle); err != nil {
		return fmt.Errorf("clear review for %s#%d: %w", repo.FullName(), prNumber, err)
	}
	return nil
}

// RemoveFlushed hard-deletes draft comments that were successfully posted to
// GitHub, leaving the review log file untouched.
func (s *DraftService) RemoveFlushed(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if err := s.store.RemoveComment(ctx, id); err != nil {
			return fmt.Errorf("remove flushed draft comment %d: %w", id, err)
		}
	}
	return nil
}
