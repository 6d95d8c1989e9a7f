// Package github implements the GitHubReader and GitHubWriter ports using
// the go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/reviewdeck/reviewdeck/internal/domain/model"
	"github.com/reviewdeck/reviewdeck/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.GitHubReader = (*Client)(nil)

// Client implements the driven.GitHubReader and driven.GitHubWriter ports
// using the go-github library.
type Client struct {
	gh *gh.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// ListPullRequests retrieves pull requests for the repository filtered by
// state ("open", "closed", or "all"). It handles pagination automatically.
// When login is non-empty each summary is enriched with whether that user has
// an un-submitted GitHub-side review on the PR, and with the changed-file
// count, which the list endpoint does not include.
func (c *Client) ListPullRequests(ctx context.Context, repo model.RepoRef, state, login string) ([]model.PullRequestSummary, error) {
	if err := repo.Validate(); err != nil {
		return nil, err
	}

	opts := &gh.PullRequestListOptions{
		State:     state,
		Sort:      "updated",
		Direction: "desc",
		ListOptions: gh.ListOptions{
			PerPage: 100,
		},
	}

	var summaries []model.PullRequestSummary

	for {
		prs, resp, err := c.gh.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("listing pull requests for %s (page %d): %w", repo.FullName(), opts.Page, err)
		}

		logRateLimit(resp, repo.FullName(), opts.Page, len(prs))

		for _, pr := range prs {
			summary := mapPullRequestSummary(pr)
			if login != "" {
				if err := c.enrichSummary(ctx, repo, &summary, login); err != nil {
					return nil, err
				}
			}
			summaries = append(summaries, summary)
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if summaries == nil {
		summaries = []model.PullRequestSummary{}
	}

	return summaries, nil
}

// enrichSummary fills HasPendingReview and FileCount, which require per-PR
// calls the list endpoint cannot provide.
func (c *Client) enrichSummary(ctx context.Context, repo model.RepoRef, summary *model.PullRequestSummary, login string) error {
	pr, resp, err := c.gh.PullRequests.Get(ctx, repo.Owner, repo.Name, summary.Number)
	if err != nil {
		return fmt.Errorf("fetching PR detail for %s#%d: %w", repo.FullName(), summary.Number, err)
	}
	logRateLimit(resp, repo.FullName()+"/pr-detail", 0, 1)
	summary.FileCount = pr.GetChangedFiles()

	reviews, err := c.FetchReviews(ctx, repo, summary.Number, login)
	if err != nil {
		return err
	}
	for _, r := range reviews {
		if r.IsPendingMine() {
			summary.HasPendingReview = true
			break
		}
	}
	return nil
}

// GetPullRequestDetail retrieves a single pull request together with its
// changed files, published review comments, and reviews. GitHub never returns
// un-submitted pending review comments from the list-comments endpoint; those
// are fetched separately via FetchPendingReviewComments.
func (c *Client) GetPullRequestDetail(ctx context.Context, repo model.RepoRef, number int, login string) (*model.PullRequestDetail, error) {
	if err := repo.Validate(); err != nil {
		return nil, err
	}

	pr, resp, err := c.gh.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return nil, fmt.Errorf("fetching PR %s#%d: %w", repo.FullName(), number, err)
	}

	logRateLimit(resp, repo.FullName()+"/pr", 0, 1)

	detail := &model.PullRequestDetail{
		Number:  pr.GetNumber(),
		Title:   pr.GetTitle(),
		Body:    pr.GetBody(),
		Author:  pr.GetUser().GetLogin(),
		HeadSHA: pr.GetHead().GetSHA(),
		BaseSHA: pr.GetBase().GetSHA(),
		State:   model.PRState(pr.GetState()),
		Merged:  pr.GetMerged(),
		Locked:  pr.GetLocked(),
	}

	detail.Files, err = c.fetchFiles(ctx, repo, number)
	if err != nil {
		return nil, err
	}

	detail.Comments, err = c.fetchReviewComments(ctx, repo, number, login)
	if err != nil {
		return nil, err
	}

	detail.Reviews, err = c.FetchReviews(ctx, repo, number, login)
	if err != nil {
		return nil, err
	}

	return detail, nil
}

// FetchReviews retrieves all reviews for a pull request.
// It handles pagination automatically and maps go-github types to domain model types.
func (c *Client) FetchReviews(ctx context.Context, repo model.RepoRef, number int, login string) ([]model.Review, error) {
	opts := &gh.ListOptions{PerPage: 100}
	var allReviews []model.Review

	for {
		reviews, resp, err := c.gh.PullRequests.ListReviews(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing reviews for %s#%d (page %d): %w", repo.FullName(), number, opts.Page, err)
		}

		logRateLimit(resp, repo.FullName()+"/reviews", opts.Page, len(reviews))

		for _, r := range reviews {
			allReviews = append(allReviews, mapReview(r, login))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allReviews, nil
}

// FetchPendingReviewComments retrieves the comments attached to an
// un-submitted GitHub-side review. These never appear in the regular
// list-comments response.
func (c *Client) FetchPendingReviewComments(ctx context.Context, repo model.RepoRef, number int, reviewID int64, login string) ([]model.Comment, error) {
	opts := &gh.ListOptions{PerPage: 100}
	var allComments []model.Comment

	for {
		comments, resp, err := c.gh.PullRequests.ListReviewComments(ctx, repo.Owner, repo.Name, number, reviewID, opts)
		if err != nil {
			return nil, fmt.Errorf("listing pending review comments for %s#%d review %d (page %d): %w",
				repo.FullName(), number, reviewID, opts.Page, err)
		}

		logRateLimit(resp, repo.FullName()+"/pending-comments", opts.Page, len(comments))

		for _, comment := range comments {
			mapped := mapComment(comment, login)
			mapped.IsDraft = true
			allComments = append(allComments, mapped)
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allComments, nil
}

// FetchFileContent retrieves the raw contents of a file at the given ref.
func (c *Client) FetchFileContent(ctx context.Context, repo model.RepoRef, ref, path string) (string, error) {
	fileContent, _, resp, err := c.gh.Repositories.GetContents(ctx, repo.Owner, repo.Name, path,
		&gh.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", fmt.Errorf("fetching contents of %s@%s:%s: %w", repo.FullName(), ref, path, err)
	}
	if fileContent == nil {
		return "", fmt.Errorf("%s@%s:%s is a directory, not a file", repo.FullName(), ref, path)
	}

	logRateLimit(resp, repo.FullName()+"/contents", 0, 1)

	content, err := fileContent.GetContent()
	if err != nil {
		return "", fmt.Errorf("decoding contents of %s@%s:%s: %w", repo.FullName(), ref, path, err)
	}
	return content, nil
}

// fetchFiles retrieves the changed files of a pull request with pagination.
func (c *Client) fetchFiles(ctx context.Context, repo model.RepoRef, number int) ([]model.PullRequestFile, error) {
	opts := &gh.ListOptions{PerPage: 100}
	var allFiles []model.PullRequestFile

	for {
		files, resp, err := c.gh.PullRequests.ListFiles(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing files for %s#%d (page %d): %w", repo.FullName(), number, opts.Page, err)
		}

		logRateLimit(resp, repo.FullName()+"/files", opts.Page, len(files))

		for _, f := range files {
			allFiles = append(allFiles, model.PullRequestFile{
				Path:      f.GetFilename(),
				Status:    f.GetStatus(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Patch:     f.GetPatch(),
				Language:  model.DetectFileLanguage(f.GetFilename()),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allFiles, nil
}

// fetchReviewComments retrieves all published review comments with pagination.
func (c *Client) fetchReviewComments(ctx context.Context, repo model.RepoRef, number int, login string) ([]model.Comment, error) {
	opts := &gh.PullRequestListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	var allComments []model.Comment

	for {
		comments, resp, err := c.gh.PullRequests.ListComments(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing review comments for %s#%d (page %d): %w", repo.FullName(), number, opts.Page, err)
		}

		logRateLimit(resp, repo.FullName()+"/comments", opts.Page, len(comments))

		for _, comment := range comments {
			allComments = append(allComments, mapComment(comment, login))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allComments, nil
}

// mapReview converts a go-github PullRequestReview to a domain model Review.
func mapReview(r *gh.PullRequestReview, login string) model.Review {
	return model.Review{
		ID:          r.GetID(),
		Reviewer:    r.GetUser().GetLogin(),
		State:       model.ReviewState(strings.ToLower(r.GetState())),
		Body:        r.GetBody(),
		CommitID:    r.GetCommitID(),
		SubmittedAt: r.GetSubmittedAt().Time,
		HTMLURL:     r.GetHTMLURL(),
		IsMine:      login != "" && r.GetUser().GetLogin() == login,
	}
}

// mapComment converts a go-github PullRequestComment to a domain model Comment.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapComment(c *gh.PullRequestComment, login string) model.Comment {
	var inReplyTo *int64
	if c.InReplyTo != nil {
		val := c.GetInReplyTo()
		inReplyTo = &val
	}

	// line == null on a comment that still has an original_line means the
	// diff moved underneath it.
	outdated := c.Line == nil && c.GetOriginalLine() > 0

	return model.Comment{
		Provenance:  model.CommentRemote,
		ID:          c.GetID(),
		ReviewID:    c.GetPullRequestReviewID(),
		Author:      c.GetUser().GetLogin(),
		Body:        c.GetBody(),
		Path:        c.GetPath(),
		Line:        c.GetLine(),
		Side:        model.CommentSide(c.GetSide()),
		IsMine:      login != "" && c.GetUser().GetLogin() == login,
		InReplyToID: inReplyTo,
		Outdated:    outdated,
		HTMLURL:     c.GetHTMLURL(),
		CommitID:    c.GetCommitID(),
		CreatedAt:   c.GetCreatedAt().Time,
	}
}

// mapPullRequestSummary converts a go-github PullRequest to a list summary.
func mapPullRequestSummary(pr *gh.PullRequest) model.PullRequestSummary {
	return model.PullRequestSummary{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		Author:    pr.GetUser().GetLogin(),
		UpdatedAt: pr.GetUpdatedAt().Time,
		HeadRef:   pr.GetHead().GetRef(),
		State:     model.PRState(pr.GetState()),
		Merged:    !pr.GetMergedAt().IsZero(),
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
