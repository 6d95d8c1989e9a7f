package model

import "time"

// CommentProvenance distinguishes where a comment came from.
type CommentProvenance string

const (
	// CommentRemote is a comment returned by the GitHub API. It carries a
	// real numeric ID and HTML URL.
	CommentRemote CommentProvenance = "remote"
	// CommentLocal is a comment created entirely client-side, buffered in
	// the draft store until its review is submitted.
	CommentLocal CommentProvenance = "local"
)

// CommentSide identifies which side of the diff a comment targets.
type CommentSide string

const (
	SideHead CommentSide = "RIGHT"
	SideBase CommentSide = "LEFT"
)

// Comment is a file-level review comment from either provenance. Local
// comments have no HTMLURL and no Outdated flag, and their ReviewID is the
// synthetic local review ID (the PR number) rather than a GitHub review id.
type Comment struct {
	Provenance  CommentProvenance
	ID          int64
	ReviewID    int64
	Author      string
	Body        string
	Path        string
	Line        int // 0 for file-level comments.
	Side        CommentSide
	IsDraft     bool
	IsMine      bool
	InReplyToID *int64
	Outdated    bool
	HTMLURL     string
	CommitID    string
	CreatedAt   time.Time
}

// IsLocal reports whether the comment is client-buffered.
func (c Comment) IsLocal() bool {
	return c.Provenance == CommentLocal
}

// CommentFlags are the per-comment UI affordances computed by the review
// session against the active pending review.
type CommentFlags struct {
	IsPendingGitHubReview bool
	IsPendingLocalReview  bool
	ShowEditButton        bool
	ShowReplyButton       bool
}
