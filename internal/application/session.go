package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/reviewdeck/reviewdeck/internal/domain/model"
	"github.com/reviewdeck/reviewdeck/internal/domain/port/driven"
)

// ErrSuperseded is returned when an asynchronous completion no longer applies
// because the session was reset or replaced while the call was in flight.
// Callers treat it as "ignore this result", never as a user-facing failure.
var ErrSuperseded = errors.New("review session superseded")

// SessionState names the review lifecycle state a session is in.
type SessionState string

const (
	StateNoReview           SessionState = "none"
	StateLocalPending       SessionState = "local_pending"
	StateShownServerPending SessionState = "shown_server_pending"
)

// ReviewSession owns the review state for one selected pull request: which
// single pending review (if any) is active and whether it is local or
// server-backed, the merged comment view, and the legal lifecycle
// transitions. It is constructed on PR selection and torn down on PR or
// repository switch; at most one pending review is active at a time.
type ReviewSession struct {
	repo     model.RepoRef
	prNumber int
	login    string

	reader driven.GitHubReader
	writer driven.GitHubWriter
	drafts *DraftService
	logger *slog.Logger

	mu sync.Mutex
	// generation is bumped on reset; completions of calls issued under an
	// older generation are discarded instead of clobbering newer state.
	generation    uint64
	detail        *model.PullRequestDetail
	active        *model.PendingReview
	localComments []model.DraftComment
	// remotePending holds the comments of a shown GitHub-side pending
	// review; the regular comment listing does not include them.
	remotePending []model.Comment
}

// NewReviewSession creates a session for the given pull request. Call Attach
// before using it.
func NewReviewSession(
	repo model.RepoRef,
	prNumber int,
	login string,
	reader driven.GitHubReader,
	writer driven.GitHubWriter,
	drafts *DraftService,
	logger *slog.Logger,
) *ReviewSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewSession{
		repo:     repo,
		prNumber: prNumber,
		login:    login,
		reader:   reader,
		writer:   writer,
		drafts:   drafts,
		logger:   logger,
	}
}

// DetectServerPendingReview scans the reviews collection for the
// authenticated user's un-submitted GitHub-side review. Pure function; ties
// cannot happen per GitHub's model, but if the upstream data ever contains
// more than one match, the first in collection order wins.
func DetectServerPendingReview(reviews []model.Review) *model.PendingReview {
	for _, r := range reviews {
		if r.IsPendingMine() {
			return &model.PendingReview{
				ID:         r.ID,
				Provenance: model.ProvenanceServer,
				Author:     r.Reviewer,
				CommitID:   r.CommitID,
				HTMLURL:    r.HTMLURL,
				IsMine:     true,
			}
		}
	}
	return nil
}

// Attach loads the PR detail and runs the initial reconciliation pass.
func (s *ReviewSession) Attach(ctx context.Context) error {
	return s.Refetch(ctx)
}

// Refetch reloads the PR detail from the gateway and reconciles session
// state against it. The reconciliation runs before anything else reads the
// active review, so a merge never sees a stale reference.
func (s *ReviewSession) Refetch(ctx context.Context) error {
	gen := s.currentGeneration()

	detail, err := s.reader.GetPullRequestDetail(ctx, s.repo, s.prNumber, s.login)
	if err != nil {
		return fmt.Errorf("fetch pull request %s#%d: %w", s.repo.FullName(), s.prNumber, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return ErrSuperseded
	}
	return s.reconcileLocked(ctx, detail)
}

// reconcileLocked is the single reconciliation pass, run immediately after
// every PR-detail refetch. Order matters: server-pending detection and the
// local-override conflict check happen before any comment merge can run on
// the refreshed data. Caller holds s.mu.
func (s *ReviewSession) reconcileLocked(ctx context.Context, detail *model.PullRequestDetail) error {
	s.detail = detail
	server := DetectServerPendingReview(detail.Reviews)

	if s.active != nil {
		if s.active.IsServerPending() {
			// A server-pending review is active only while it still
			// validates against the refreshed reviews collection. Submitted
			// or deleted elsewhere means silent deactivation, not an error.
			if server == nil || server.ID != s.active.ID {
				s.logger.Info("server pending review no longer valid, deactivating",
					"repo", s.repo.FullName(),
					"pr", s.prNumber,
					"review_id", s.active.ID,
				)
				s.active = nil
				s.remotePending = nil
			}
		} else if server != nil {
			// A GitHub-side pending review appeared while a local one was
			// active. They are different reviews by construction; the local
			// override is cleared without flushing and its comments stay
			// orphaned in the store until the user revisits the local path.
			s.logger.Warn("server pending review detected, clearing local override",
				"repo", s.repo.FullName(),
				"pr", s.prNumber,
				"server_review_id", server.ID,
			)
			s.active = nil
			s.localComments = nil
		}
	}

	// New commits on the PR move the local draft's recorded commit forward.
	if s.active != nil && !s.active.IsServerPending() && detail.HeadSHA != "" && s.active.CommitID != detail.HeadSHA {
		if err := s.drafts.UpdateCommitID(ctx, s.repo, s.prNumber, detail.HeadSHA); err != nil {
			return err
		}
		s.active.CommitID = detail.HeadSHA
	}

	// A non-empty draft store with nothing active (and no server pending to
	// defer to) re-activates the local review. A detected server pending
	// stays dormant until the user explicitly shows it.
	if s.active == nil && server == nil {
		comments, err := s.drafts.Comments(ctx, s.repo, s.prNumber)
		if err != nil {
			return err
		}
		if len(comments) > 0 {
			review := model.NewLocalPendingReview(s.prNumber, s.login, detail.HeadSHA)
			s.active = &review
			s.localComments = comments
		}
	} else if s.active != nil && !s.active.IsServerPending() {
		comments, err := s.drafts.Comments(ctx, s.repo, s.prNumber)
		if err != nil {
			return err
		}
		s.localComments = comments
	}

	return nil
}

// ActivateLocalReview synthesizes a local pending review for the PR,
// persists its metadata, and loads the draft comments. No-op when a local
// review is already active; activating over a shown server review is refused.
func (s *ReviewSession) ActivateLocalReview(ctx context.Context) (*model.PendingReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		if s.active.IsServerPending() {
			return nil, newValidationError("a GitHub pending review is already active on this pull request")
		}
		review := *s.active
		return &review, nil
	}

	headSHA := ""
	if s.detail != nil {
		headSHA = s.detail.HeadSHA
	}

	if _, err := s.drafts.StartReview(ctx, s.repo, s.prNumber, headSHA, ""); err != nil {
		return nil, err
	}
	comments, err := s.drafts.Comments(ctx, s.repo, s.prNumber)
	if err != nil {
		return nil, err
	}

	review := model.NewLocalPendingReview(s.prNumber, s.login, headSHA)
	s.active = &review
	s.localComments = comments
	s.remotePending = nil

	s.logger.Info("local review activated",
		"repo", s.repo.FullName(),
		"pr", s.prNumber,
		"comments", len(comments),
	)
	out := review
	return &out, nil
}

// ShowServerPendingReview activates the GitHub-side pending review detected
// on the PR and fetches its comments. Clears any local override first
// (invariant: the two are never merged).
func (s *ReviewSession) ShowServerPendingReview(ctx context.Context) (*model.PendingReview, error) {
	s.mu.Lock()
	if s.detail == nil {
		s.mu.Unlock()
		return nil, newValidationError("pull request not loaded")
	}
	server := DetectServerPendingReview(s.detail.Reviews)
	if server == nil {
		s.mu.Unlock()
		return nil, newValidationError("no pending review found on GitHub for this pull request")
	}
	gen := s.generation
	s.mu.Unlock()

	comments, err := s.reader.FetchPendingReviewComments(ctx, s.repo, s.prNumber, server.ID, s.login)
	if err != nil {
		return nil, fmt.Errorf("fetch pending review comments for %s#%d: %w", s.repo.FullName(), s.prNumber, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return nil, ErrSuperseded
	}
	s.active = server
	s.localComments = nil
	s.remotePending = comments

	review := *server
	return &review, nil
}

// MergeCommentsForDisplay returns the comment set to render. With no active
// review: all remote comments, unfiltered. With one active: previously
// published remote comments, plus the active review's own draft comments
// (GitHub-side), plus all local comments. The three sets are disjoint by
// construction, so no de-duplication pass runs.
func (s *ReviewSession) MergeCommentsForDisplay() []model.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var remote []model.Comment
	if s.detail != nil {
		remote = s.detail.Comments
	}

	if s.active == nil {
		out := make([]model.Comment, len(remote))
		copy(out, remote)
		return out
	}

	var merged []model.Comment
	for _, c := range remote {
		if !c.IsDraft {
			merged = append(merged, c)
		}
	}
	for _, c := range remote {
		if c.IsDraft && c.ReviewID == s.active.ID {
			merged = append(merged, c)
		}
	}
	for _, c := range s.remotePending {
		if c.IsDraft && c.ReviewID == s.active.ID {
			merged = append(merged, c)
		}
	}
	for _, d := range s.localComments {
		merged = append(merged, d.ToComment(s.login, s.active.ID))
	}
	return merged
}

// ClassifyComment computes the UI affordances for a comment against the
// active review. Edit and reply are both disallowed on an un-submitted
// GitHub-side draft: its comment IDs are not yet stable to reply to, and
// editing a pending review through the reply path is unsupported.
func (s *ReviewSession) ClassifyComment(c model.Comment) model.CommentFlags {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	return classifyComment(c, active)
}

func classifyComment(c model.Comment, active *model.PendingReview) model.CommentFlags {
	var flags model.CommentFlags
	if active != nil {
		flags.IsPendingGitHubReview = c.ReviewID == active.ID && active.HTMLURL != ""
		flags.IsPendingLocalReview = c.IsDraft && active.HTMLURL == ""
	}
	flags.ShowEditButton = !flags.IsPendingGitHubReview &&
		(flags.IsPendingLocalReview || (c.IsMine && !c.IsDraft))
	flags.ShowReplyButton = !flags.IsPendingLocalReview && !flags.IsPendingGitHubReview
	return flags
}

// AddComment records a review comment on a file. With a shown GitHub-side
// pending review it is attached to that review through the gateway; in every
// other case it is buffered locally, implicitly starting a local review when
// none is active.
func (s *ReviewSession) AddComment(ctx context.Context, path string, line int, side model.CommentSide, body string, inReplyTo int64) error {
	s.mu.Lock()
	if body == "" {
		s.mu.Unlock()
		return newValidationError("empty comment body")
	}
	if line < 0 {
		s.mu.Unlock()
		return newValidationError("invalid line number %d", line)
	}
	headSHA := ""
	if s.detail != nil {
		headSHA = s.detail.HeadSHA
	}
	active := s.active
	gen := s.generation
	s.mu.Unlock()

	if active != nil && active.IsServerPending() {
		req := driven.FileCommentRequest{
			Path:            path,
			Body:            body,
			CommitID:        headSHA,
			Line:            line,
			Side:            side,
			Mode:            driven.CommentModeReview,
			PendingReviewID: active.ID,
			InReplyToID:     inReplyTo,
		}
		if err := s.writer.SubmitFileComment(ctx, s.repo, s.prNumber, req); err != nil {
			return s.classifyLocked(err)
		}
		comments, err := s.reader.FetchPendingReviewComments(ctx, s.repo, s.prNumber, active.ID, s.login)
		if err != nil {
			return fmt.Errorf("refresh pending review comments for %s#%d: %w", s.repo.FullName(), s.prNumber, err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.generation {
			return ErrSuperseded
		}
		s.remotePending = comments
		return nil
	}

	draft := model.DraftComment{
		FilePath: path,
		Line:     line,
		Side:     side,
		Body:     body,
		CommitID: headSHA,
	}
	if _, err := s.drafts.AddComment(ctx, s.repo, s.prNumber, draft); err != nil {
		return err
	}

	comments, err := s.drafts.Comments(ctx, s.repo, s.prNumber)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return ErrSuperseded
	}
	if s.active == nil {
		review := model.NewLocalPendingReview(s.prNumber, s.login, headSHA)
		s.active = &review
	}
	s.localComments = comments
	return nil
}

// UpdateComment edits a comment's body: local drafts in the store, published
// remote comments through the gateway.
func (s *ReviewSession) UpdateComment(ctx context.Context, c model.Comment, body string) error {
	if body == "" {
		return newValidationError("empty comment body")
	}
	gen := s.currentGeneration()

	if c.IsLocal() {
		if _, err := s.drafts.UpdateComment(ctx, c.ID, body); err != nil {
			return err
		}
		return s.reloadLocalComments(ctx, gen)
	}

	if err := s.writer.UpdateReviewComment(ctx, s.repo, c.ID, body); err != nil {
		return s.classifyLocked(err)
	}
	return nil
}

// DeleteComment removes a comment. Deleting the last local draft retires the
// local review automatically.
func (s *ReviewSession) DeleteComment(ctx context.Context, c model.Comment) error {
	gen := s.currentGeneration()

	if c.IsLocal() {
		retired, err := s.drafts.DeleteComment(ctx, s.repo, s.prNumber, c.ID)
		if err != nil {
			return err
		}
		if retired {
			s.mu.Lock()
			defer s.mu.Unlock()
			if gen != s.generation {
				return ErrSuperseded
			}
			s.active = nil
			s.localComments = nil
			return nil
		}
		return s.reloadLocalComments(ctx, gen)
	}

	if err := s.writer.DeleteReviewComment(ctx, s.repo, c.ID); err != nil {
		return s.classifyLocked(err)
	}
	return nil
}

// SubmitActiveReview submits the active pending review. A server-backed
// review is submitted by ID through the gateway; a local one is flushed
// comment-by-comment and cleared only for the comments that landed. Failure
// leaves the remaining local buffer intact so the submit is recoverable.
func (s *ReviewSession) SubmitActiveReview(ctx context.Context, event model.ReviewEvent, body string) error {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return newValidationError("no active review to submit")
	}
	active := *s.active
	localCount := len(s.localComments)
	prTitle := ""
	prLocked := false
	if s.detail != nil {
		prTitle = s.detail.Title
		prLocked = s.detail.Locked
	}
	gen := s.generation
	s.mu.Unlock()

	if active.IsServerPending() {
		if err := s.writer.SubmitPendingReview(ctx, s.repo, s.prNumber, active.ID, event, body); err != nil {
			return classifySubmitError(err, s.prNumber, prLocked)
		}
	} else {
		if localCount == 0 {
			return newValidationError("no comments to submit")
		}
		comments, err := s.drafts.Comments(ctx, s.repo, s.prNumber)
		if err != nil {
			return err
		}
		result, err := s.writer.FlushDraftComments(ctx, s.repo, s.prNumber, active.CommitID, comments)
		if err != nil {
			return classifySubmitError(err, s.prNumber, prLocked)
		}
		if len(result.SucceededIDs) > 0 {
			if err := s.drafts.RemoveFlushed(ctx, result.SucceededIDs); err != nil {
				return err
			}
		}
		if result.FailedCount > 0 {
			// The failed comments are exactly what remains in the store.
			if err := s.reloadLocalComments(ctx, gen); err != nil {
				return err
			}
			return classifySubmitError(
				fmt.Errorf("submitted %d of %d comments: %s", len(result.SucceededIDs), len(comments), result.ErrorSummary),
				s.prNumber, prLocked,
			)
		}
		if body != "" {
			if err := s.writer.SubmitGeneralComment(ctx, s.repo, s.prNumber, body); err != nil {
				return classifySubmitError(err, s.prNumber, prLocked)
			}
		}
		if err := s.drafts.Clear(ctx, s.repo, s.prNumber, prTitle); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if gen == s.generation {
		s.active = nil
		s.localComments = nil
		s.remotePending = nil
	}
	s.mu.Unlock()

	s.logger.Info("review submitted",
		"repo", s.repo.FullName(),
		"pr", s.prNumber,
		"provenance", active.Provenance,
		"event", event,
	)

	// Refetch so the submitted review shows up in the reviews collection.
	if err := s.Refetch(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		s.logger.Warn("refetch after submit failed", "error", err)
	}
	return nil
}

// DeleteActiveReview discards the active pending review: through the gateway
// for a server-backed one, by clearing the local store otherwise. Either way
// every locally stored comment for the PR is removed, not a subset.
func (s *ReviewSession) DeleteActiveReview(ctx context.Context) error {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return newValidationError("no active review to delete")
	}
	active := *s.active
	prTitle := ""
	if s.detail != nil {
		prTitle = s.detail.Title
	}
	gen := s.generation
	s.mu.Unlock()

	if active.IsServerPending() {
		if err := s.writer.DeleteReview(ctx, s.repo, s.prNumber, active.ID); err != nil {
			return fmt.Errorf("delete review %d for %s#%d: %w", active.ID, s.repo.FullName(), s.prNumber, err)
		}
	}
	// Local comments are keyed by PR, never by review ID; clear them all.
	if err := s.drafts.Clear(ctx, s.repo, s.prNumber, prTitle); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return ErrSuperseded
	}
	s.active = nil
	s.localComments = nil
	s.remotePending = nil
	return nil
}

// SubmitSingleComment publishes a standalone file comment immediately,
// outside any review.
func (s *ReviewSession) SubmitSingleComment(ctx context.Context, req driven.FileCommentRequest) error {
	if req.Body == "" {
		return newValidationError("empty comment body")
	}
	s.mu.Lock()
	prLocked := s.detail != nil && s.detail.Locked
	if req.CommitID == "" && s.detail != nil {
		req.CommitID = s.detail.HeadSHA
	}
	s.mu.Unlock()

	req.Mode = driven.CommentModeSingle
	if err := s.writer.SubmitFileComment(ctx, s.repo, s.prNumber, req); err != nil {
		return classifySubmitError(err, s.prNumber, prLocked)
	}
	return nil
}

// ActiveReview returns a copy of the active pending review, or nil.
func (s *ReviewSession) ActiveReview() *model.PendingReview {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	review := *s.active
	return &review
}

// State reports the session's lifecycle state.
func (s *ReviewSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.active == nil:
		return StateNoReview
	case s.active.IsServerPending():
		return StateShownServerPending
	default:
		return StateLocalPending
	}
}

// ServerPendingAvailable reports whether the loaded reviews collection holds
// a dormant GitHub-side pending review the user could show.
func (s *ReviewSession) ServerPendingAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detail == nil {
		return false
	}
	return DetectServerPendingReview(s.detail.Reviews) != nil
}

// Detail returns the last reconciled PR detail, or nil before Attach.
func (s *ReviewSession) Detail() *model.PullRequestDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detail
}

// LocalCommentCount returns the number of buffered local comments.
func (s *ReviewSession) LocalCommentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.localComments)
}

// Reset bumps the session generation so in-flight completions are discarded.
// Called when the session is replaced on PR or repository switch.
func (s *ReviewSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.active = nil
	s.localComments = nil
	s.remotePending = nil
}

func (s *ReviewSession) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// reloadLocalComments refreshes the in-memory local comment list from the
// store, discarding the result when the session moved on.
func (s *ReviewSession) reloadLocalComments(ctx context.Context, gen uint64) error {
	comments, err := s.drafts.Comments(ctx, s.repo, s.prNumber)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return ErrSuperseded
	}
	s.localComments = comments
	return nil
}

func (s *ReviewSession) classifyLocked(err error) error {
	s.mu.Lock()
	prLocked := s.detail != nil && s.detail.Locked
	s.mu.Unlock()
	return classifySubmitError(err, s.prNumber, prLocked)
}
