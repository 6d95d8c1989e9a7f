package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/reviewdeck/reviewdeck/internal/application"
	"github.com/reviewdeck/reviewdeck/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// PRSummaryResponse is the JSON representation of a pull request in list views.
type PRSummaryResponse struct {
	Number           int    `json:"number"`
	Title            string `json:"title"`
	Author           string `json:"author"`
	State            string `json:"state"`
	Merged           bool   `json:"merged"`
	HeadRef          string `json:"head_ref"`
	UpdatedAt        string `json:"updated_at"`
	HasPendingReview bool   `json:"has_pending_review"`
	FileCount        int    `json:"file_count"`
}

// PRDetailResponse is the JSON representation of a single opened pull request,
// together with the review session state attached to it.
type PRDetailResponse struct {
	Number       int                    `json:"number"`
	Title        string                 `json:"title"`
	Body         string                 `json:"body"`
	Author       string                 `json:"author"`
	State        string                 `json:"state"`
	Merged       bool                   `json:"merged"`
	Locked       bool                   `json:"locked"`
	HeadSHA      string                 `json:"head_sha"`
	BaseSHA      string                 `json:"base_sha"`
	Files        []FileResponse         `json:"files"`
	SessionState string                 `json:"session_state"`
	ActiveReview *PendingReviewResponse `json:"active_review,omitempty"`
	ServerReview bool                   `json:"server_review_available"`
}

// FileResponse is a changed file within a pull request.
type FileResponse struct {
	Path      string `json:"path"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
	Language  string `json:"language"`
}

// PendingReviewResponse is the active pending review on a session.
type PendingReviewResponse struct {
	ID         int64  `json:"id"`
	Provenance string `json:"provenance"`
	Author     string `json:"author"`
	CommitID   string `json:"commit_id"`
	HTMLURL    string `json:"html_url,omitempty"`
}

// CommentResponse is a single review comment with its UI affordance flags.
type CommentResponse struct {
	ID                    int64  `json:"id"`
	Provenance            string `json:"provenance"`
	ReviewID              int64  `json:"review_id"`
	Author                string `json:"author"`
	Body                  string `json:"body"`
	Path                  string `json:"path"`
	Line                  int    `json:"line"`
	Side                  string `json:"side"`
	IsDraft               bool   `json:"is_draft"`
	IsMine                bool   `json:"is_mine"`
	InReplyToID           *int64 `json:"in_reply_to_id,omitempty"`
	Outdated              bool   `json:"outdated"`
	HTMLURL               string `json:"html_url,omitempty"`
	CreatedAt             string `json:"created_at"`
	IsPendingGitHubReview bool   `json:"is_pending_github_review"`
	IsPendingLocalReview  bool   `json:"is_pending_local_review"`
	ShowEditButton        bool   `json:"show_edit_button"`
	ShowReplyButton       bool   `json:"show_reply_button"`
}

// FilePreviewResponse carries file contents plus preview classification.
type FilePreviewResponse struct {
	Path      string `json:"path"`
	Language  string `json:"language"`
	Content   string `json:"content"`
	Valid     bool   `json:"valid"`
	ParseErr  string `json:"parse_error,omitempty"`
	DocCount  int    `json:"doc_count,omitempty"`
	LineCount int    `json:"line_count"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// AddCommentRequest is the JSON body for adding a review comment.
type AddCommentRequest struct {
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Side      string `json:"side,omitempty"`
	Body      string `json:"body"`
	InReplyTo int64  `json:"in_reply_to,omitempty"`
}

// UpdateCommentRequest is the JSON body for editing a review comment.
type UpdateCommentRequest struct {
	Provenance string `json:"provenance"`
	Body       string `json:"body"`
}

// SubmitReviewRequest is the JSON body for submitting the active review.
type SubmitReviewRequest struct {
	Event string `json:"event"`
	Body  string `json:"body,omitempty"`
}

// SingleCommentRequest is the JSON body for posting a standalone comment.
type SingleCommentRequest struct {
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Side      string `json:"side,omitempty"`
	Body      string `json:"body"`
	InReplyTo int64  `json:"in_reply_to,omitempty"`
}

// toPRSummaryResponse converts a domain summary to its JSON representation.
func toPRSummaryResponse(pr model.PullRequestSummary) PRSummaryResponse {
	return PRSummaryResponse{
		Number:           pr.Number,
		Title:            pr.Title,
		Author:           pr.Author,
		State:            string(pr.State),
		Merged:           pr.Merged,
		HeadRef:          pr.HeadRef,
		UpdatedAt:        pr.UpdatedAt.UTC().Format(time.RFC3339),
		HasPendingReview: pr.HasPendingReview,
		FileCount:        pr.FileCount,
	}
}

// toPRDetailResponse converts an opened session into the detail response.
func toPRDetailResponse(session *application.ReviewSession) PRDetailResponse {
	detail := session.Detail()

	files := make([]FileResponse, 0, len(detail.Files))
	for _, f := range detail.Files {
		files = append(files, FileResponse{
			Path:      f.Path,
			Status:    f.Status,
			Additions: f.Additions,
			Deletions: f.Deletions,
			Patch:     f.Patch,
			Language:  string(f.Language),
		})
	}

	resp := PRDetailResponse{
		Number:       detail.Number,
		Title:        detail.Title,
		Body:         detail.Body,
		Author:       detail.Author,
		State:        string(detail.State),
		Merged:       detail.Merged,
		Locked:       detail.Locked,
		HeadSHA:      detail.HeadSHA,
		BaseSHA:      detail.BaseSHA,
		Files:        files,
		SessionState: string(session.State()),
		ServerReview: session.ServerPendingAvailable(),
	}

	if active := session.ActiveReview(); active != nil {
		resp.ActiveReview = toPendingReviewResponse(active)
	}

	return resp
}

// toPendingReviewResponse converts a pending review to its JSON representation.
func toPendingReviewResponse(p *model.PendingReview) *PendingReviewResponse {
	return &PendingReviewResponse{
		ID:         p.ID,
		Provenance: string(p.Provenance),
		Author:     p.Author,
		CommitID:   p.CommitID,
		HTMLURL:    p.HTMLURL,
	}
}

// toCommentResponse converts a comment plus its classification flags.
func toCommentResponse(c model.Comment, flags model.CommentFlags) CommentResponse {
	return CommentResponse{
		ID:                    c.ID,
		Provenance:            string(c.Provenance),
		ReviewID:              c.ReviewID,
		Author:                c.Author,
		Body:                  c.Body,
		Path:                  c.Path,
		Line:                  c.Line,
		Side:                  string(c.Side),
		IsDraft:               c.IsDraft,
		IsMine:                c.IsMine,
		InReplyToID:           c.InReplyToID,
		Outdated:              c.Outdated,
		HTMLURL:               c.HTMLURL,
		CreatedAt:             c.CreatedAt.UTC().Format(time.RFC3339),
		IsPendingGitHubReview: flags.IsPendingGitHubReview,
		IsPendingLocalReview:  flags.IsPendingLocalReview,
		ShowEditButton:        flags.ShowEditButton,
		ShowReplyButton:       flags.ShowReplyButton,
	}
}

// toFilePreviewResponse converts an application preview to its JSON representation.
func toFilePreviewResponse(p application.FilePreview) FilePreviewResponse {
	return FilePreviewResponse{
		Path:      p.Path,
		Language:  string(p.Language),
		Content:   p.Content,
		Valid:     p.Valid,
		ParseErr:  p.ParseErr,
		DocCount:  p.DocCount,
		LineCount: p.LineCount,
	}
}
