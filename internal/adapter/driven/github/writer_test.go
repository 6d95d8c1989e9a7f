package github_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/reviewdeck/reviewdeck/internal/domain/model"
	"github.com/reviewdeck/reviewdeck/internal/domain/port/driven"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePendingReview_ReusesExisting(t *testing.T) {
	var createCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			createCalls++
			w.WriteHeader(http.StatusCreated)
			writeJSONResponse(t, w, reviewJSON{ID: 999})
			return
		}
		writeJSONResponse(t, w, []reviewJSON{
			{ID: 901, User: userJSON{Login: "alice"}, State: "PENDING", CommitID: "abc123", HTMLURL: "https://github.com/p"},
		})
	})

	client, _ := newTestClient(t, mux)
	pending, err := client.CreatePendingReview(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 7, "abc123", "alice")

	require.NoError(t, err)
	assert.Equal(t, int64(901), pending.ID)
	assert.Equal(t, model.ProvenanceServer, pending.Provenance)
	assert.Equal(t, "https://github.com/p", pending.HTMLURL)
	assert.True(t, pending.IsMine)
	assert.Zero(t, createCalls, "existing pending review must be reused, not duplicated")
}

func TestCreatePendingReview_CreatesWhenNoneExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "abc123", body["commit_id"])
			assert.NotContains(t, body, "event", "a pending review is created without an event")

			w.WriteHeader(http.StatusCreated)
			writeJSONResponse(t, w, reviewJSON{ID: 950, User: userJSON{Login: "alice"}, State: "PENDING", CommitID: "abc123", HTMLURL: "https://github.com/new"})
			return
		}
		writeJSONResponse(t, w, []reviewJSON{})
	})

	client, _ := newTestClient(t, mux)
	pending, err := client.CreatePendingReview(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 7, "abc123", "alice")

	require.NoError(t, err)
	assert.Equal(t, int64(950), pending.ID)
	assert.Equal(t, model.ProvenanceServer, pending.Provenance)
}

func TestSubmitPendingReview_ApproveOmitsEmptyBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/reviews/901/events", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "APPROVE", body["event"])
		assert.NotContains(t, body, "body")
		writeJSONResponse(t, w, reviewJSON{ID: 901, State: "APPROVED"})
	})

	client, _ := newTestClient(t, mux)
	err := client.SubmitPendingReview(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 7, 901, model.ReviewEventApprove, "")
	require.NoError(t, err)
}

func TestSubmitPendingReview_StaleCommit422(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/reviews/901/events", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message": "Validation Failed"}`)
	})

	client, _ := newTestClient(t, mux)
	err := client.SubmitPendingReview(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 7, 901, model.ReviewEventRequestChanges, "fix it")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh and try again")
}

func TestDeleteReview(t *testing.T) {
	var deleted bool
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/reviews/901", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		deleted = true
		writeJSONResponse(t, w, reviewJSON{ID: 901})
	})

	client, _ := newTestClient(t, mux)
	err := client.DeleteReview(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 7, 901)

	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestSubmitFileComment_SingleLineComment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/comments", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "looks wrong", body["body"])
		assert.Equal(t, "main.go", body["path"])
		assert.Equal(t, float64(12), body["line"])
		assert.Equal(t, "RIGHT", body["side"])
		assert.Equal(t, "abc123", body["commit_id"])
		w.WriteHeader(http.StatusCreated)
		writeJSONResponse(t, w, commentJSON{ID: 300})
	})

	client, _ := newTestClient(t, mux)
	err := client.SubmitFileComment(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 7, driven.FileCommentRequest{
		Path:     "main.go",
		Body:     "looks wrong",
		CommitID: "abc123",
		Line:     12,
		Mode:     driven.CommentModeSingle,
	})
	require.NoError(t, err)
}

func TestSubmitFileComment_FileLevelUsesSubjectType(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/comments", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "file", body["subject_type"])
		assert.NotContains(t, body, "line")
		w.WriteHeader(http.StatusCreated)
		writeJSONResponse(t, w, commentJSON{ID: 301})
	})

	client, _ := newTestClient(t, mux)
	err := client.SubmitFileComment(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 7, driven.FileCommentRequest{
		Path:     "main.go",
		Body:     "whole file",
		CommitID: "abc123",
		Mode:     driven.CommentModeSingle,
	})
	require.NoError(t, err)
}

func TestSubmitFileComment_ReviewModeRequiresPendingReview(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())

	err := client.SubmitFileComment(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 7, driven.FileCommentRequest{
		Path: "main.go",
		Body: "x",
		Line: 12,
		Mode: driven.CommentModeReview,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a pending review")
}

func TestSubmitFileComment_ReviewModeRejectsFileLevel(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())

	err := client.SubmitFileComment(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 7, driven.FileCommentRequest{
		Path:            "main.go",
		Body:            "x",
		Mode:            driven.CommentModeReview,
		PendingReviewID: 901,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "file-level")
}

func TestSubmitFileComment_ReplyIgnoresPosition(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/comments", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(100), body["in_reply_to"])
		assert.Equal(t, "agreed", body["body"])
		assert.NotContains(t, body, "line")
		assert.NotContains(t, body, "path")
		w.WriteHeader(http.StatusCreated)
		writeJSONResponse(t, w, commentJSON{ID: 302})
	})

	client, _ := newTestClient(t, mux)
	err := client.SubmitFileComment(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 7, driven.FileCommentRequest{
		Body:        "agreed",
		Line:        12,
		Path:        "main.go",
		Mode:        driven.CommentModeSingle,
		InReplyToID: 100,
	})
	require.NoError(t, err)
}

func TestFlushDraftComments_PartialFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/comments", func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))

		if body["path"] == "broken.go" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"message": "Validation Failed"}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSONResponse(t, w, commentJSON{ID: 400})
	})

	client, _ := newTestClient(t, mux)
	result, err := client.FlushDraftComments(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 7, "abc123", []model.DraftComment{
		{ID: 1, FilePath: "ok.go", Line: 5, Body: "fine"},
		{ID: 2, FilePath: "broken.go", Line: 9, Body: "fails"},
		{ID: 3, FilePath: "also_ok.go", Line: 2, Body: "fine too"},
	})

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, result.SucceededIDs)
	assert.Equal(t, 1, result.FailedCount)
	assert.NotEmpty(t, result.ErrorSummary)
}

func TestSubmitGeneralComment_UsesCommentEvent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "COMMENT", body["event"])
		assert.Equal(t, "overall looks good", body["body"])
		w.WriteHeader(http.StatusCreated)
		writeJSONResponse(t, w, reviewJSON{ID: 960})
	})

	client, _ := newTestClient(t, mux)
	err := client.SubmitGeneralComment(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 7, "overall looks good")
	require.NoError(t, err)
}

func TestUpdateAndDeleteReviewComment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls/comments/300", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "revised", body["body"])
			writeJSONResponse(t, w, commentJSON{ID: 300, Body: "revised"})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	})

	client, _ := newTestClient(t, mux)
	repo := model.RepoRef{Owner: "octocat", Name: "hello-world"}

	require.NoError(t, client.UpdateReviewComment(context.Background(), repo, 300, "revised"))
	require.NoError(t, client.DeleteReviewComment(context.Background(), repo, 300))
}
