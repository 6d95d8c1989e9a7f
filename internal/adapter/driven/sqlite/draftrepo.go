package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reviewdeck/reviewdeck/internal/domain/model"
	"github.com/reviewdeck/reviewdeck/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DraftStore = (*DraftRepo)(nil)

// ErrCommentNotFound is returned when a draft comment ID does not exist.
var ErrCommentNotFound = errors.New("draft comment not found")

// DraftRepo is the SQLite implementation of the DraftStore port interface.
// Alongside the database rows it maintains a human-readable review log file
// per draft under logDir, rewritten on every comment mutation so a crashed
// or abandoned session leaves a usable record behind.
type DraftRepo struct {
	db     *DB
	logDir string
}

// NewDraftRepo creates a DraftRepo backed by the given DB, writing review
// log files under logDir. The directory is created if missing; an empty
// logDir disables log files.
func NewDraftRepo(db *DB, logDir string) (*DraftRepo, error) {
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("create review log dir: %w", err)
		}
	}
	return &DraftRepo{db: db, logDir: logDir}, nil
}

// StartReview creates the draft metadata row, or returns the existing one if
// the PR already has a draft in progress.
func (r *DraftRepo) StartReview(ctx context.Context, repo model.RepoRef, prNumber int, commitID, body string) (*model.ReviewDraft, error) {
	existing, err := r.GetReviewMetadata(ctx, repo, prNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	const query = `
		INSERT INTO review_drafts (owner, repo, pr_number, commit_id, body, created_at, log_file_index)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`

	createdAt := time.Now().UTC()
	var bodyArg any
	if body != "" {
		bodyArg = body
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		repo.Owner, repo.Name, prNumber, commitID, bodyArg, createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("start review for %s#%d: %w", repo.FullName(), prNumber, err)
	}

	return &model.ReviewDraft{
		Owner:        repo.Owner,
		Repo:         repo.Name,
		PRNumber:     prNumber,
		CommitID:     commitID,
		Body:         body,
		CreatedAt:    createdAt,
		LogFileIndex: 0,
	}, nil
}

// GetReviewMetadata returns the draft metadata, or nil when the PR has no
// local review.
func (r *DraftRepo) GetReviewMetadata(ctx context.Context, repo model.RepoRef, prNumber int) (*model.ReviewDraft, error) {
	const query = `
		SELECT owner, repo, pr_number, commit_id, body, created_at, log_file_index
		FROM review_drafts
		WHERE owner = ? AND repo = ? AND pr_number = ?
	`

	draft, err := scanReviewDraft(r.db.Reader.QueryRowContext(ctx, query, repo.Owner, repo.Name, prNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get review draft for %s#%d: %w", repo.FullName(), prNumber, err)
	}
	return draft, nil
}

// UpdateCommitID records a new head SHA on the draft.
func (r *DraftRepo) UpdateCommitID(ctx context.Context, repo model.RepoRef, prNumber int, commitID string) error {
	const query = `UPDATE review_drafts SET commit_id = ? WHERE owner = ? AND repo = ? AND pr_number = ?`

	_, err := r.db.Writer.ExecContext(ctx, query, commitID, repo.Owner, repo.Name, prNumber)
	if err != nil {
		return fmt.Errorf("update draft commit for %s#%d: %w", repo.FullName(), prNumber, err)
	}
	return nil
}

// AddComment appends a draft comment and rewrites the review log file.
func (r *DraftRepo) AddComment(ctx context.Context, comment model.DraftComment) (*model.DraftComment, error) {
	const query = `
		INSERT INTO draft_comments (owner, repo, pr_number, file_path, line, side, body, commit_id, created_at, updated_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`

	now := time.Now().UTC()
	side := comment.Side
	if side == "" {
		side = model.SideHead
	}

	res, err := r.db.Writer.ExecContext(ctx, query,
		comment.Owner, comment.Repo, comment.PRNumber,
		comment.FilePath, comment.Line, string(side), comment.Body, comment.CommitID,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert draft comment for %s/%s#%d: %w", comment.Owner, comment.Repo, comment.PRNumber, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("draft comment insert id: %w", err)
	}

	comment.ID = id
	comment.Side = side
	comment.CreatedAt = now
	comment.UpdatedAt = now

	repo := model.RepoRef{Owner: comment.Owner, Name: comment.Repo}
	if err := r.writeLog(ctx, repo, comment.PRNumber); err != nil {
		return nil, err
	}
	return &comment, nil
}

// UpdateComment replaces a draft comment's body in place and rewrites the log.
func (r *DraftRepo) UpdateComment(ctx context.Context, commentID int64, body string) (*model.DraftComment, error) {
	const update = `UPDATE draft_comments SET body = ?, updated_at = ? WHERE id = ?`

	now := time.Now().UTC()
	res, err := r.db.Writer.ExecContext(ctx, update, body, now.Format(time.RFC3339), commentID)
	if err != nil {
		return nil, fmt.Errorf("update draft comment %d: %w", commentID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("update draft comment %d: %w", commentID, ErrCommentNotFound)
	}

	comment, err := r.getComment(ctx, commentID)
	if err != nil {
		return nil, err
	}

	repo := model.RepoRef{Owner: comment.Owner, Name: comment.Repo}
	if err := r.writeLog(ctx, repo, comment.PRNumber); err != nil {
		return nil, err
	}
	return comment, nil
}

// DeleteComment soft-deletes a draft comment so the review log keeps a
// record of it, then rewrites the log.
func (r *DraftRepo) DeleteComment(ctx context.Context, commentID int64) error {
	comment, err := r.getComment(ctx, commentID)
	if err != nil {
		return err
	}

	const query = `UPDATE draft_comments SET deleted = 1 WHERE id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, commentID); err != nil {
		return fmt.Errorf("delete draft comment %d: %w", commentID, err)
	}

	repo := model.RepoRef{Owner: comment.Owner, Name: comment.Repo}
	return r.writeLog(ctx, repo, comment.PRNumber)
}

// RemoveComment hard-deletes a draft comment without touching the log file.
func (r *DraftRepo) RemoveComment(ctx context.Context, commentID int64) error {
	const query = `DELETE FROM draft_comments WHERE id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, commentID); err != nil {
		return fmt.Errorf("remove draft comment %d: %w", commentID, err)
	}
	return nil
}

// GetComments returns the PR's non-deleted draft comments ordered by file
// path then line.
func (r *DraftRepo) GetComments(ctx context.Context, repo model.RepoRef, prNumber int) ([]model.DraftComment, error) {
	const query = `
		SELECT id, owner, repo, pr_number, file_path, line, side, body, commit_id, created_at, updated_at, deleted
		FROM draft_comments
		WHERE owner = ? AND repo = ? AND pr_number = ? AND deleted = 0
		ORDER BY file_path, line
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, repo.Owner, repo.Name, prNumber)
	if err != nil {
		return nil, fmt.Errorf("query draft comments for %s#%d: %w", repo.FullName(), prNumber, err)
	}
	defer rows.Close()

	var comments []model.DraftComment
	for rows.Next() {
		comment, err := scanDraftComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft comment: %w", err)
		}
		comments = append(comments, *comment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate draft comments: %w", err)
	}

	return comments, nil
}

// ClearReview deletes the review metadata and all its comments (the cascade
// covers soft-deleted rows as well), annotating the review log file with a
// deletion header first.
func (r *DraftRepo) ClearReview(ctx context.Context, repo model.RepoRef, prNumber int, prTitle string) error {
	meta, err := r.GetReviewMetadata(ctx, repo, prNumber)
	if err != nil {
		return err
	}
	if meta == nil {
		return nil
	}

	r.annotateLog(repo, prNumber, meta, prTitle)

	const query = `DELETE FROM review_drafts WHERE owner = ? AND repo = ? AND pr_number = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, repo.Owner, repo.Name, prNumber); err != nil {
		return fmt.Errorf("clear review draft for %s#%d: %w", repo.FullName(), prNumber, err)
	}
	return nil
}

func (r *DraftRepo) getComment(ctx context.Context, commentID int64) (*model.DraftComment, error) {
	const query = `
		SELECT id, owner, repo, pr_number, file_path, line, side, body, commit_id, created_at, updated_at, deleted
		FROM draft_comments
		WHERE id = ?
	`

	comment, err := scanDraftComment(r.db.Reader.QueryRowContext(ctx, query, commentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get draft comment %d: %w", commentID, ErrCommentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get draft comment %d: %w", commentID, err)
	}
	return comment, nil
}

// logPath follows the owner-repo-number naming of review log files; a
// non-zero index suffixes the name for a draft restarted after clearing.
func (r *DraftRepo) logPath(repo model.RepoRef, prNumber, index int) string {
	name := fmt.Sprintf("%s-%s-%d.log", repo.Owner, repo.Name, prNumber)
	if index != 0 {
		name = fmt.Sprintf("%s-%s-%d-%d.log", repo.Owner, repo.Name, prNumber, index)
	}
	return filepath.Join(r.logDir, name)
}

// writeLog rewrites the review log file from the current database state,
// including soft-deleted comments marked as such.
func (r *DraftRepo) writeLog(ctx context.Context, repo model.RepoRef, prNumber int) error {
	if r.logDir == "" {
		return nil
	}

	meta, err := r.GetReviewMetadata(ctx, repo, prNumber)
	if err != nil {
		return err
	}
	if meta == nil {
		return nil
	}

	const query = `
		SELECT id, owner, repo, pr_number, file_path, line, side, body, commit_id, created_at, updated_at, deleted
		FROM draft_comments
		WHERE owner = ? AND repo = ? AND pr_number = ?
		ORDER BY file_path, line
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, repo.Owner, repo.Name, prNumber)
	if err != nil {
		return fmt.Errorf("query draft comments for log: %w", err)
	}
	defer rows.Close()

	var comments []model.DraftComment
	for rows.Next() {
		comment, err := scanDraftComment(rows)
		if err != nil {
			return fmt.Errorf("scan draft comment for log: %w", err)
		}
		comments = append(comments, *comment)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate draft comments for log: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Review for PR #%d\n", prNumber)
	fmt.Fprintf(&sb, "# URL: https://github.com/%s/pull/%d\n", repo.FullName(), prNumber)
	fmt.Fprintf(&sb, "# Repository: %s\n", repo.FullName())
	fmt.Fprintf(&sb, "# Created: %s\n", meta.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "# Commit: %s\n", meta.CommitID)
	if meta.Body != "" {
		fmt.Fprintf(&sb, "# Review Body: %s\n", meta.Body)
	}

	active := 0
	for _, c := range comments {
		if !c.Deleted {
			active++
		}
	}
	fmt.Fprintf(&sb, "# Total Comments: %d\n\n", active)

	currentFile := ""
	for _, c := range comments {
		if c.FilePath != currentFile {
			fmt.Fprintf(&sb, "\n%s:\n", c.FilePath)
			currentFile = c.FilePath
		}

		sideLabel := ""
		if c.Side == model.SideBase {
			sideLabel = " (ORIGINAL)"
		}
		deletedPrefix := ""
		if c.Deleted {
			deletedPrefix = "DELETED - "
		}
		fmt.Fprintf(&sb, "    %sLine %d%s: %s\n", deletedPrefix, c.Line, sideLabel, c.Body)
	}

	path := r.logPath(repo, prNumber, meta.LogFileIndex)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write review log %s: %w", path, err)
	}
	return nil
}

// annotateLog prepends a deletion header to the log file. Log annotation is
// best-effort; a missing file is not an error.
func (r *DraftRepo) annotateLog(repo model.RepoRef, prNumber int, meta *model.ReviewDraft, prTitle string) {
	if r.logDir == "" {
		return
	}

	path := r.logPath(repo, prNumber, meta.LogFileIndex)
	existing, err := os.ReadFile(path)
	if err != nil {
		return
	}

	if prTitle == "" {
		prTitle = "Untitled"
	}
	header := fmt.Sprintf(
		"# REVIEW DELETED (NOT SUBMITTED TO GITHUB) at %s\n# Original review started at %s\n# PR: %s\n# URL: https://github.com/%s/pull/%d\n\n",
		time.Now().UTC().Format(time.RFC3339),
		meta.CreatedAt.Format(time.RFC3339),
		prTitle,
		repo.FullName(),
		prNumber,
	)
	_ = os.WriteFile(path, append([]byte(header), existing...), 0o644)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanReviewDraft(s scanner) (*model.ReviewDraft, error) {
	var draft model.ReviewDraft
	var body sql.NullString
	var createdAt string

	err := s.Scan(&draft.Owner, &draft.Repo, &draft.PRNumber, &draft.CommitID, &body, &createdAt, &draft.LogFileIndex)
	if err != nil {
		return nil, err
	}

	draft.Body = body.String

	draft.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &draft, nil
}

func scanDraftComment(s scanner) (*model.DraftComment, error) {
	var comment model.DraftComment
	var side string
	var deleted int
	var createdAt, updatedAt string

	err := s.Scan(
		&comment.ID, &comment.Owner, &comment.Repo, &comment.PRNumber,
		&comment.FilePath, &comment.Line, &side, &comment.Body, &comment.CommitID,
		&createdAt, &updatedAt, &deleted,
	)
	if err != nil {
		return nil, err
	}

	comment.Side = model.CommentSide(side)
	comment.Deleted = deleted != 0

	comment.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	comment.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &comment, nil
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
