package model

import "time"

// ReviewDraft is the persisted metadata row for a local pending review,
// keyed by (owner, repo, PR number). LogFileIndex selects which plain-text
// review log file the draft writes to.
type ReviewDraft struct {
	Owner        string
	Repo         string
	PRNumber     int
	CommitID     string
	Body         string
	CreatedAt    time.Time
	LogFileIndex int
}

// DraftComment is a persisted local review comment. Deleted comments are
// soft-deleted so the review log file can record them; reads exclude them.
type DraftComment struct {
	ID        int64
	Owner     string
	Repo      string
	PRNumber  int
	FilePath  string
	Line      int // 0 means a file-level comment.
	Side      CommentSide
	Body      string
	CommitID  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Deleted   bool
}

// ToComment converts a stored draft comment into a display comment with
// local provenance, attributed to the given login and attached to the given
// local review ID.
func (d DraftComment) ToComment(login string, reviewID int64) Comment {
	side := d.Side
	if side == "" {
		side = SideHead
	}
	return Comment{
		Provenance: CommentLocal,
		ID:         d.ID,
		ReviewID:   reviewID,
		Author:     login,
		Body:       d.Body,
		Path:       d.FilePath,
		Line:       d.Line,
		Side:       side,
		IsDraft:    true,
		IsMine:     true,
		CommitID:   d.CommitID,
		CreatedAt:  d.CreatedAt,
	}
}
