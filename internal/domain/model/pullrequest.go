package model

import (
	"path"
	"strings"
	"time"
)

// PRState represents the state of a pull request.
type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateClosed PRState = "closed"
)

// PullRequestSummary is the list-endpoint view of a pull request.
// HasPendingReview and FileCount are enriched per authenticated login when
// one is known; both are zero-valued otherwise.
type PullRequestSummary struct {
	Number           int
	Title            string
	Author           string
	UpdatedAt        time.Time
	HeadRef          string
	State            PRState
	Merged           bool
	HasPendingReview bool
	FileCount        int
}

// PullRequestDetail is the full view of a single pull request, including its
// changed files, review comments, and reviews. HeadSHA changes when new
// commits are pushed; the review session must pick that up on refetch.
type PullRequestDetail struct {
	Number   int
	Title    string
	Body     string
	Author   string
	HeadSHA  string
	BaseSHA  string
	State    PRState
	Merged   bool
	Locked   bool
	Files    []PullRequestFile
	Comments []Comment
	Reviews  []Review
}

// PullRequestFile is a single changed file within a pull request.
type PullRequestFile struct {
	Path      string
	Status    string // "added", "modified", "removed", "renamed".
	Additions int
	Deletions int
	Patch     string
	Language  FileLanguage
}

// FileLanguage classifies a changed file for the preview pane.
type FileLanguage string

const (
	LanguageMarkdown FileLanguage = "markdown"
	LanguageYAML     FileLanguage = "yaml"
	LanguageOther    FileLanguage = "other"
)

// DetectFileLanguage classifies a file for the preview pane by its extension.
func DetectFileLanguage(filePath string) FileLanguage {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".md", ".markdown", ".mdown":
		return LanguageMarkdown
	case ".yaml", ".yml":
		return LanguageYAML
	default:
		return LanguageOther
	}
}
