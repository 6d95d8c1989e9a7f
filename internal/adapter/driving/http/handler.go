// Package httphandler is the HTTP driving adapter serving the REST API the
// desktop shell talks to.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/reviewdeck/reviewdeck/internal/application"
	"github.com/reviewdeck/reviewdeck/internal/domain/model"
	"github.com/reviewdeck/reviewdeck/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	reader   driven.GitHubReader
	cache    driven.ContentCache
	sessions *application.SessionManager
	login    string
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	reader driven.GitHubReader,
	cache driven.ContentCache,
	sessions *application.SessionManager,
	login string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		reader:   reader,
		cache:    cache,
		sessions: sessions,
		login:    login,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/prs", h.ListPRs)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/prs/{number}", h.OpenPR)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/prs/{number}/comments", h.ListComments)
	mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/prs/{number}/comments", h.AddComment)
	mux.HandleFunc("PATCH /api/v1/repos/{owner}/{repo}/prs/{number}/comments/{id}", h.UpdateComment)
	mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/prs/{number}/comments/{id}", h.DeleteComment)
	mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/prs/{number}/review", h.StartReview)
	mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/prs/{number}/review/show", h.ShowServerReview)
	mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/prs/{number}/review/submit", h.SubmitReview)
	mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/prs/{number}/review", h.DeleteReview)
	mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/prs/{number}/single-comment", h.SubmitSingleComment)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/contents/{path...}", h.GetFileContent)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// prRef extracts and validates the repository and PR number path values.
func prRef(r *http.Request) (model.RepoRef, int, error) {
	repo := model.RepoRef{Owner: r.PathValue("owner"), Name: r.PathValue("repo")}
	if err := repo.Validate(); err != nil {
		return model.RepoRef{}, 0, err
	}

	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || number <= 0 {
		return model.RepoRef{}, 0, errors.New("invalid PR number")
	}
	return repo, number, nil
}

// writeServiceError maps application errors to HTTP status codes. Locked
// conversations surface as 423 so the shell can show the dedicated dialog.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *application.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, http.StatusBadRequest, validationErr.Error())
		return
	}

	var lockedErr *application.LockedError
	if errors.As(err, &lockedErr) {
		writeError(w, http.StatusLocked, lockedErr.Error())
		return
	}

	if errors.Is(err, application.ErrSuperseded) {
		writeError(w, http.StatusConflict, "review session superseded; reload the pull request")
		return
	}

	h.logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// session returns the open session for the PR, opening one on first touch.
func (h *Handler) session(r *http.Request, repo model.RepoRef, number int) (*application.ReviewSession, error) {
	if session, ok := h.sessions.Current(repo, number); ok {
		return session, nil
	}
	return h.sessions.Open(r.Context(), repo, number, h.login)
}

// ListPRs returns the pull requests of a repository, enriched per login.
func (h *Handler) ListPRs(w http.ResponseWriter, r *http.Request) {
	repo := model.RepoRef{Owner: r.PathValue("owner"), Name: r.PathValue("repo")}
	if err := repo.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state := r.URL.Query().Get("state")
	if state == "" {
		state = "open"
	}

	prs, err := h.reader.ListPullRequests(r.Context(), repo, state, h.login)
	if err != nil {
		h.logger.Error("failed to list PRs", "repo", repo.FullName(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]PRSummaryResponse, 0, len(prs))
	for _, pr := range prs {
		resp = append(resp, toPRSummaryResponse(pr))
	}

	writeJSON(w, http.StatusOK, resp)
}

// OpenPR opens (or refreshes) the review session for a pull request and
// returns its detail plus session state.
func (h *Handler) OpenPR(w http.ResponseWriter, r *http.Request) {
	repo, number, err := prRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.sessions.Open(r.Context(), repo, number, h.login)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPRDetailResponse(session))
}

// ListComments returns the merged comment view with per-comment flags.
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	repo, number, err := prRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.session(r, repo, number)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	merged := session.MergeCommentsForDisplay()
	resp := make([]CommentResponse, 0, len(merged))
	for _, c := range merged {
		resp = append(resp, toCommentResponse(c, session.ClassifyComment(c)))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddComment records a review comment, buffered locally or attached to a
// shown GitHub-side pending review depending on the session state.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	repo, number, err := prRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req AddCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.session(r, repo, number)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if err := session.AddComment(r.Context(), req.Path, req.Line, model.CommentSide(req.Side), req.Body, req.InReplyTo); err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPRDetailResponse(session))
}

// UpdateComment edits a comment's body. The provenance in the request body
// decides whether the edit hits the local store or GitHub.
func (h *Handler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	repo, number, err := prRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, comment, ok, err := h.findComment(r, repo, number, model.CommentProvenance(req.Provenance))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "comment not found")
		return
	}

	if err := session.UpdateComment(r.Context(), comment, req.Body); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteComment removes a comment, retiring the local review when the last
// local draft goes. Provenance comes from the query string.
func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	repo, number, err := prRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, comment, ok, err := h.findComment(r, repo, number, model.CommentProvenance(r.URL.Query().Get("provenance")))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "comment not found")
		return
	}

	if err := session.DeleteComment(r.Context(), comment); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// findComment locates a merged comment by path id and provenance.
func (h *Handler) findComment(r *http.Request, repo model.RepoRef, number int, provenance model.CommentProvenance) (*application.ReviewSession, model.Comment, bool, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return nil, model.Comment{}, false, errors.New("invalid comment ID")
	}
	if provenance == "" {
		provenance = model.CommentRemote
	}

	session, err := h.session(r, repo, number)
	if err != nil {
		return nil, model.Comment{}, false, err
	}

	for _, c := range session.MergeCommentsForDisplay() {
		if c.ID == id && c.Provenance == provenance {
			return session, c, true, nil
		}
	}
	return session, model.Comment{}, false, nil
}

// StartReview activates a local pending review on the pull request.
func (h *Handler) StartReview(w http.ResponseWriter, r *http.Request) {
	repo, number, err := prRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.session(r, repo, number)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	review, err := session.ActivateLocalReview(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPendingReviewResponse(review))
}

// ShowServerReview activates the GitHub-side pending review detected on the PR.
func (h *Handler) ShowServerReview(w http.ResponseWriter, r *http.Request) {
	repo, number, err := prRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.session(r, repo, number)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	review, err := session.ShowServerPendingReview(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPendingReviewResponse(review))
}

// SubmitReview submits the active pending review with the given event.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	repo, number, err := prRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req SubmitReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event := model.ReviewEvent(req.Event)
	switch event {
	case model.ReviewEventApprove, model.ReviewEventRequestChanges, model.ReviewEventComment:
	default:
		writeError(w, http.StatusBadRequest, "invalid review event")
		return
	}

	session, err := h.session(r, repo, number)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if err := session.SubmitActiveReview(r.Context(), event, req.Body); err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPRDetailResponse(session))
}

// DeleteReview discards the active pending review and all its stored comments.
func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	repo, number, err := prRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.session(r, repo, number)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if err := session.DeleteActiveReview(r.Context()); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SubmitSingleComment publishes a standalone file comment outside any review.
func (h *Handler) SubmitSingleComment(w http.ResponseWriter, r *http.Request) {
	repo, number, err := prRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req SingleCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.session(r, repo, number)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	err = session.SubmitSingleComment(r.Context(), driven.FileCommentRequest{
		Path:        req.Path,
		Body:        req.Body,
		Line:        req.Line,
		Side:        model.CommentSide(req.Side),
		InReplyToID: req.InReplyTo,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// GetFileContent returns file contents at a ref, cached, together with
// preview classification (and YAML well-formedness for YAML files).
func (h *Handler) GetFileContent(w http.ResponseWriter, r *http.Request) {
	repo := model.RepoRef{Owner: r.PathValue("owner"), Name: r.PathValue("repo")}
	if err := repo.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	path := r.PathValue("path")
	ref := r.URL.Query().Get("ref")
	if path == "" || ref == "" {
		writeError(w, http.StatusBadRequest, "path and ref are required")
		return
	}

	content, err := h.cache.Get(r.Context(), repo.Owner, repo.Name, ref, path)
	if errors.Is(err, driven.ErrCacheMiss) {
		content, err = h.reader.FetchFileContent(r.Context(), repo, ref, path)
		if err != nil {
			h.logger.Error("failed to fetch file content", "repo", repo.FullName(), "ref", ref, "path", path, "error", err)
			writeError(w, http.StatusBadGateway, "failed to fetch file content")
			return
		}
		if cacheErr := h.cache.Set(r.Context(), repo.Owner, repo.Name, ref, path, content); cacheErr != nil {
			h.logger.Warn("failed to cache file content", "path", path, "error", cacheErr)
		}
	} else if err != nil {
		h.logger.Error("content cache read failed", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toFilePreviewResponse(application.BuildFilePreview(path, content)))
}

// Health reports service liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
