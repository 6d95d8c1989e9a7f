package github_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	ghAdapter "github.com/reviewdeck/reviewdeck/internal/adapter/driven/github"
	"github.com/reviewdeck/reviewdeck/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) (*ghAdapter.Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ghAdapter.NewClientWithHTTPClient(server.Client(), server.URL+"/")
	require.NoError(t, err)

	return client, server
}

type userJSON struct {
	Login string `json:"login"`
}

type refJSON struct {
	Ref string `json:"ref"`
	SHA string `json:"sha,omitempty"`
}

// prJSON is a helper struct for building GitHub API pull request responses.
type prJSON struct {
	Number       int      `json:"number"`
	Title        string   `json:"title"`
	Body         string   `json:"body,omitempty"`
	State        string   `json:"state"`
	Locked       bool     `json:"locked"`
	Merged       bool     `json:"merged,omitempty"`
	User         userJSON `json:"user"`
	Head         refJSON  `json:"head"`
	Base         refJSON  `json:"base"`
	Updated      string   `json:"updated_at,omitempty"`
	MergedAt     *string  `json:"merged_at,omitempty"`
	ChangedFiles int      `json:"changed_files,omitempty"`
}

type reviewJSON struct {
	ID          int64    `json:"id"`
	User        userJSON `json:"user"`
	State       string   `json:"state"`
	Body        string   `json:"body,omitempty"`
	CommitID    string   `json:"commit_id,omitempty"`
	HTMLURL     string   `json:"html_url,omitempty"`
	SubmittedAt *string  `json:"submitted_at,omitempty"`
}

type commentJSON struct {
	ID                  int64    `json:"id"`
	PullRequestReviewID int64    `json:"pull_request_review_id,omitempty"`
	User                userJSON `json:"user"`
	Body                string   `json:"body"`
	Path                string   `json:"path,omitempty"`
	Line                *int     `json:"line,omitempty"`
	OriginalLine        int      `json:"original_line,omitempty"`
	Side                string   `json:"side,omitempty"`
	InReplyTo           int64    `json:"in_reply_to_id,omitempty"`
	HTMLURL             string   `json:"html_url,omitempty"`
	CommitID            string   `json:"commit_id,omitempty"`
	CreatedAt           string   `json:"created_at,omitempty"`
}

type fileJSON struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
}

func writeJSONResponse(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestGetPullRequestDetail_MapsEverything(t *testing.T) {
	line12 := 12
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(t, w, prJSON{
			Number: 7,
			Title:  "Improve docs",
			Body:   "Rewrites the intro",
			State:  "open",
			Locked: true,
			User:   userJSON{Login: "alice"},
			Head:   refJSON{Ref: "docs", SHA: "headsha"},
			Base:   refJSON{Ref: "main", SHA: "basesha"},
		})
	})
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(t, w, []fileJSON{
			{Filename: "README.md", Status: "modified", Additions: 10, Deletions: 2, Patch: "@@ -1 +1 @@"},
			{Filename: "config.yaml", Status: "added", Additions: 5},
			{Filename: "main.go", Status: "modified", Additions: 1, Deletions: 1},
		})
	})
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/comments", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(t, w, []commentJSON{
			{ID: 100, PullRequestReviewID: 900, User: userJSON{Login: "bob"}, Body: "nit", Path: "README.md", Line: &line12, Side: "RIGHT", HTMLURL: "https://github.com/x", CreatedAt: "2026-08-01T10:00:00Z"},
			{ID: 101, User: userJSON{Login: "alice"}, Body: "moved", Path: "README.md", OriginalLine: 3, Side: "RIGHT", HTMLURL: "https://github.com/y"},
		})
	})
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		submitted := "2026-08-01T11:00:00Z"
		writeJSONResponse(t, w, []reviewJSON{
			{ID: 900, User: userJSON{Login: "bob"}, State: "APPROVED", SubmittedAt: &submitted, HTMLURL: "https://github.com/r"},
			{ID: 901, User: userJSON{Login: "alice"}, State: "PENDING", CommitID: "headsha", HTMLURL: "https://github.com/p"},
		})
	})

	client, _ := newTestClient(t, mux)
	detail, err := client.GetPullRequestDetail(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 7, "alice")

	require.NoError(t, err)
	assert.Equal(t, 7, detail.Number)
	assert.Equal(t, "Improve docs", detail.Title)
	assert.Equal(t, "headsha", detail.HeadSHA)
	assert.Equal(t, "basesha", detail.BaseSHA)
	assert.True(t, detail.Locked)
	assert.Equal(t, model.PRStateOpen, detail.State)

	require.Len(t, detail.Files, 3)
	assert.Equal(t, model.LanguageMarkdown, detail.Files[0].Language)
	assert.Equal(t, model.LanguageYAML, detail.Files[1].Language)
	assert.Equal(t, model.LanguageOther, detail.Files[2].Language)

	require.Len(t, detail.Comments, 2)
	assert.Equal(t, model.CommentRemote, detail.Comments[0].Provenance)
	assert.Equal(t, int64(900), detail.Comments[0].ReviewID)
	assert.False(t, detail.Comments[0].IsMine)
	assert.False(t, detail.Comments[0].Outdated)
	assert.True(t, detail.Comments[1].IsMine)
	assert.True(t, detail.Comments[1].Outdated, "nil line with original_line marks the comment outdated")

	require.Len(t, detail.Reviews, 2)
	assert.False(t, detail.Reviews[0].IsPendingMine())
	assert.True(t, detail.Reviews[1].IsPendingMine())
	assert.Equal(t, model.ReviewStatePending, detail.Reviews[1].State)
}

func TestListPullRequests_EnrichesPendingAndFileCount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(t, w, []prJSON{
			{Number: 7, Title: "One", State: "open", User: userJSON{Login: "bob"}, Head: refJSON{Ref: "b1"}, Updated: "2026-08-01T00:00:00Z"},
		})
	})
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(t, w, prJSON{Number: 7, State: "open", User: userJSON{Login: "bob"}, ChangedFiles: 4})
	})
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(t, w, []reviewJSON{
			{ID: 901, User: userJSON{Login: "alice"}, State: "PENDING", HTMLURL: "https://github.com/p"},
		})
	})

	client, _ := newTestClient(t, mux)
	prs, err := client.ListPullRequests(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, "open", "alice")

	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.True(t, prs[0].HasPendingReview)
	assert.Equal(t, 4, prs[0].FileCount)
}

func TestListPullRequests_NoLoginSkipsEnrichment(t *testing.T) {
	var detailCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(t, w, []prJSON{
			{Number: 7, Title: "One", State: "open", User: userJSON{Login: "bob"}, Head: refJSON{Ref: "b1"}},
		})
	})
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		detailCalls++
		writeJSONResponse(t, w, prJSON{Number: 7})
	})

	client, _ := newTestClient(t, mux)
	prs, err := client.ListPullRequests(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, "open", "")

	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.False(t, prs[0].HasPendingReview)
	assert.Zero(t, prs[0].FileCount)
	assert.Zero(t, detailCalls)
}

func TestFetchPendingReviewComments_MarksDrafts(t *testing.T) {
	line5 := 5
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/reviews/901/comments", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(t, w, []commentJSON{
			{ID: 200, PullRequestReviewID: 901, User: userJSON{Login: "alice"}, Body: "draft", Path: "main.go", Line: &line5, Side: "RIGHT", HTMLURL: "https://github.com/d"},
		})
	})

	client, _ := newTestClient(t, mux)
	comments, err := client.FetchPendingReviewComments(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 7, 901, "alice")

	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.True(t, comments[0].IsDraft)
	assert.True(t, comments[0].IsMine)
	assert.Equal(t, int64(901), comments[0].ReviewID)
	assert.Equal(t, model.CommentRemote, comments[0].Provenance)
}

func TestFetchReviews_Pagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			writeJSONResponse(t, w, []reviewJSON{{ID: 902, User: userJSON{Login: "carol"}, State: "COMMENTED"}})
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<http://%s/repos/octocat/hello-world/pulls/7/reviews?page=2>; rel="next"`, r.Host))
		writeJSONResponse(t, w, []reviewJSON{{ID: 901, User: userJSON{Login: "bob"}, State: "APPROVED"}})
	})

	client, _ := newTestClient(t, mux)
	reviews, err := client.FetchReviews(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 7, "bob")

	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, int64(901), reviews[0].ID)
	assert.Equal(t, model.ReviewStateApproved, reviews[0].State)
	assert.True(t, reviews[0].IsMine)
	assert.Equal(t, int64(902), reviews[1].ID)
	assert.False(t, reviews[1].IsMine)
}

func TestFetchFileContent_DecodesBase64(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/contents/docs/guide.md", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "headsha", r.URL.Query().Get("ref"))
		writeJSONResponse(t, w, map[string]any{
			"type":     "file",
			"encoding": "base64",
			"name":     "guide.md",
			"path":     "docs/guide.md",
			"content":  base64.StdEncoding.EncodeToString([]byte("# Guide\n")),
		})
	})

	client, _ := newTestClient(t, mux)
	content, err := client.FetchFileContent(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, "headsha", "docs/guide.md")

	require.NoError(t, err)
	assert.Equal(t, "# Guide\n", content)
}

func TestGetPullRequestDetail_APIError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	})

	client, _ := newTestClient(t, handler)
	_, err := client.GetPullRequestDetail(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello-world"}, 999, "alice")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "octocat/hello-world#999")
}
