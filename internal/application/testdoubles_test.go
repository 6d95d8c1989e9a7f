package application

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/reviewdeck/reviewdeck/internal/domain/model"
	"github.com/reviewdeck/reviewdeck/internal/domain/port/driven"
)

// fakeDraftStore is an in-memory DraftStore.
type fakeDraftStore struct {
	mu       sync.Mutex
	nextID   int64
	metadata map[string]*model.ReviewDraft
	comments map[int64]model.DraftComment

	clearCalls int
}

var _ driven.DraftStore = (*fakeDraftStore)(nil)

func newFakeDraftStore() *fakeDraftStore {
	return &fakeDraftStore{
		nextID:   1,
		metadata: make(map[string]*model.ReviewDraft),
		comments: make(map[int64]model.DraftComment),
	}
}

func draftKey(repo model.RepoRef, prNumber int) string {
	return fmt.Sprintf("%s#%d", repo.FullName(), prNumber)
}

func (f *fakeDraftStore) StartReview(_ context.Context, repo model.RepoRef, prNumber int, commitID, body string) (*model.ReviewDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := draftKey(repo, prNumber)
	if existing, ok := f.metadata[key]; ok {
		out := *existing
		return &out, nil
	}
	draft := &model.ReviewDraft{Owner: repo.Owner, Repo: repo.Name, PRNumber: prNumber, CommitID: commitID, Body: body}
	f.metadata[key] = draft
	out := *draft
	return &out, nil
}

func (f *fakeDraftStore) GetReviewMetadata(_ context.Context, repo model.RepoRef, prNumber int) (*model.ReviewDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	draft, ok := f.metadata[draftKey(repo, prNumber)]
	if !ok {
		return nil, nil
	}
	out := *draft
	return &out, nil
}

func (f *fakeDraftStore) UpdateCommitID(_ context.Context, repo model.RepoRef, prNumber int, commitID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if draft, ok := f.metadata[draftKey(repo, prNumber)]; ok {
		draft.CommitID = commitID
	}
	return nil
}

func (f *fakeDraftStore) AddComment(_ context.Context, comment model.DraftComment) (*model.DraftComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	comment.ID = f.nextID
	f.nextID++
	if comment.Side == "" {
		comment.Side = model.SideHead
	}
	f.comments[comment.ID] = comment
	out := comment
	return &out, nil
}

func (f *fakeDraftStore) UpdateComment(_ context.Context, commentID int64, body string) (*model.DraftComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	comment, ok := f.comments[commentID]
	if !ok {
		return nil, fmt.Errorf("draft comment %d not found", commentID)
	}
	comment.Body = body
	f.comments[commentID] = comment
	out := comment
	return &out, nil
}

func (f *fakeDraftStore) DeleteComment(_ context.Context, commentID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	comment, ok := f.comments[commentID]
	if !ok {
		return fmt.Errorf("draft comment %d not found", commentID)
	}
	comment.Deleted = true
	f.comments[commentID] = comment
	return nil
}

func (f *fakeDraftStore) RemoveComment(_ context.Context, commentID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.comments, commentID)
	return nil
}

func (f *fakeDraftStore) GetComments(_ context.Context, repo model.RepoRef, prNumber int) ([]model.DraftComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DraftComment
	for _, c := range f.comments {
		if c.Owner == repo.Owner && c.Repo == repo.Name && c.PRNumber == prNumber && !c.Deleted {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FilePath != out[j].FilePath {
			return out[i].FilePath < out[j].FilePath
		}
		return out[i].Line < out[j].Line
	})
	return out, nil
}

func (f *fakeDraftStore) ClearReview(_ context.Context, repo model.RepoRef, prNumber int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	delete(f.metadata, draftKey(repo, prNumber))
	for id, c := range f.comments {
		if c.Owner == repo.Owner && c.Repo == repo.Name && c.PRNumber == prNumber {
			delete(f.comments, id)
		}
	}
	return nil
}

// fakeReader is a scriptable GitHubReader.
type fakeReader struct {
	mu sync.Mutex

	detail          *model.PullRequestDetail
	detailErr       error
	pendingComments map[int64][]model.Comment
	pendingErr      error
	fileContent     map[string]string

	detailCalls int
	// onGetDetail runs before GetPullRequestDetail returns, letting tests
	// interleave a session reset with an in-flight refetch.
	onGetDetail func()
}

var _ driven.GitHubReader = (*fakeReader)(nil)

func newFakeReader(detail *model.PullRequestDetail) *fakeReader {
	return &fakeReader{
		detail:          detail,
		pendingComments: make(map[int64][]model.Comment),
		fileContent:     make(map[string]string),
	}
}

func (f *fakeReader) setDetail(detail *model.PullRequestDetail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detail = detail
}

func (f *fakeReader) ListPullRequests(context.Context, model.RepoRef, string, string) ([]model.PullRequestSummary, error) {
	return nil, nil
}

func (f *fakeReader) GetPullRequestDetail(context.Context, model.RepoRef, int, string) (*model.PullRequestDetail, error) {
	f.mu.Lock()
	f.detailCalls++
	hook := f.onGetDetail
	err := f.detailErr
	var detail *model.PullRequestDetail
	if f.detail != nil {
		copied := *f.detail
		detail = &copied
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (f *fakeReader) FetchReviews(_ context.Context, _ model.RepoRef, _ int, _ string) ([]model.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detail == nil {
		return nil, nil
	}
	return f.detail.Reviews, nil
}

func (f *fakeReader) FetchPendingReviewComments(_ context.Context, _ model.RepoRef, _ int, reviewID int64, _ string) ([]model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	return f.pendingComments[reviewID], nil
}

func (f *fakeReader) FetchFileContent(_ context.Context, _ model.RepoRef, ref, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.fileContent[ref+":"+path]
	if !ok {
		return "", fmt.Errorf("no content for %s:%s", ref, path)
	}
	return content, nil
}

// fakeWriter records gateway writes and fails on demand.
type fakeWriter struct {
	mu sync.Mutex

	submitReviewErr  error
	fileCommentErr   error
	generalErr       error
	flushFailPaths   map[string]bool
	flushErr         error
	deleteReviewErr  error
	updateCommentErr error

	submittedReviews []model.ReviewEvent
	fileComments     []driven.FileCommentRequest
	generalComments  []string
	flushCalls       int
	deletedReviews   []int64
	updatedComments  map[int64]string
	deletedComments  []int64
}

var _ driven.GitHubWriter = (*fakeWriter)(nil)

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		flushFailPaths:  make(map[string]bool),
		updatedComments: make(map[int64]string),
	}
}

func (f *fakeWriter) CreatePendingReview(context.Context, model.RepoRef, int, string, string) (*model.PendingReview, error) {
	return nil, fmt.Errorf("not used")
}

func (f *fakeWriter) SubmitPendingReview(_ context.Context, _ model.RepoRef, _ int, _ int64, event model.ReviewEvent, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitReviewErr != nil {
		return f.submitReviewErr
	}
	f.submittedReviews = append(f.submittedReviews, event)
	return nil
}

func (f *fakeWriter) DeleteReview(_ context.Context, _ model.RepoRef, _ int, reviewID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteReviewErr != nil {
		return f.deleteReviewErr
	}
	f.deletedReviews = append(f.deletedReviews, reviewID)
	return nil
}

func (f *fakeWriter) SubmitFileComment(_ context.Context, _ model.RepoRef, _ int, req driven.FileCommentRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fileCommentErr != nil {
		return f.fileCommentErr
	}
	f.fileComments = append(f.fileComments, req)
	return nil
}

func (f *fakeWriter) FlushDraftComments(_ context.Context, _ model.RepoRef, _ int, _ string, comments []model.DraftComment) (*driven.FlushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCalls++
	if f.flushErr != nil {
		return nil, f.flushErr
	}
	result := &driven.FlushResult{}
	for _, c := range comments {
		if f.flushFailPaths[c.FilePath] {
			result.FailedCount++
			if result.ErrorSummary == "" {
				result.ErrorSummary = "422 Validation Failed"
			}
			continue
		}
		result.SucceededIDs = append(result.SucceededIDs, c.ID)
	}
	return result, nil
}

func (f *fakeWriter) SubmitGeneralComment(_ context.Context, _ model.RepoRef, _ int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generalErr != nil {
		return f.generalErr
	}
	f.generalComments = append(f.generalComments, body)
	return nil
}

func (f *fakeWriter) UpdateReviewComment(_ context.Context, _ model.RepoRef, commentID int64, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateCommentErr != nil {
		return f.updateCommentErr
	}
	f.updatedComments[commentID] = body
	return nil
}

func (f *fakeWriter) DeleteReviewComment(_ context.Context, _ model.RepoRef, commentID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedComments = append(f.deletedComments, commentID)
	return nil
}

func (f *fakeWriter) ValidateToken(context.Context, string) (string, error) {
	return "alice", nil
}
