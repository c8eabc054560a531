package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultAPIURL = "https://api.github.com"

// perPage is the page size requested from list endpoints.
const perPage = 100

// maxRetries bounds retry attempts for transient API failures.
const maxRetries = 3

// Client provides access to the GitHub REST API for one repository.
type Client struct {
	repo    string // owner/name
	token   string
	apiURL  string
	httpCli *http.Client
	limiter *rate.Limiter
	retryWait func(attempt int) time.Duration
}

// NewClient creates a client for the given owner/name repository.
func NewClient(repo, token string) (*Client, error) {
	if repo == "" || !strings.Contains(repo, "/") {
		return nil, fmt.Errorf("repository must be in owner/name form, got %q", repo)
	}
	if token == "" {
		return nil, fmt.Errorf("a GitHub token is required")
	}

	apiURL := os.Getenv("GITHUB_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	apiURL = strings.TrimRight(apiURL, "/")

	return &Client{
		repo:    repo,
		token:   token,
		apiURL:  apiURL,
		httpCli: &http.Client{Timeout: 60 * time.Second},
		// The documented unauthenticated-burst-safe pace for the core API.
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
		retryWait: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
	}, nil
}

// PullRequest is an open pull request's identity and head commit.
type PullRequest struct {
	Number  int
	HeadSHA string
	HeadRef string
	Author  string
	Locked  bool
}

// Artifact is a workflow artifact plus the run metadata needed to map it
// back to a head commit.
type Artifact struct {
	ID      int64
	Name    string
	Expired bool
	RunID   int64
	HeadSHA string
}

// WorkflowRun is the run metadata recovered for artifacts whose listing
// omitted it.
type WorkflowRun struct {
	ID      int64
	HeadSHA string
}

// Comment is an issue comment on a pull request thread.
type Comment struct {
	ID   int64
	Body string
}

// ListOpenPullRequests returns every open pull request in the repository.
func (c *Client) ListOpenPullRequests(ctx context.Context) ([]PullRequest, error) {
	type wirePR struct {
		Number int  `json:"number"`
		Locked bool `json:"locked"`
		User   struct {
			Login string `json:"login"`
		} `json:"user"`
		Head struct {
			SHA string `json:"sha"`
			Ref string `json:"ref"`
		} `json:"head"`
	}

	var prs []PullRequest
	err := c.listPages(ctx, fmt.Sprintf("/repos/%s/pulls?state=open", c.repo), func(body []byte) error {
		var page []wirePR
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("parsing pull request list: %w", err)
		}
		for _, pr := range page {
			prs = append(prs, PullRequest{
				Number:  pr.Number,
				HeadSHA: pr.Head.SHA,
				HeadRef: pr.Head.Ref,
				Author:  pr.User.Login,
				Locked:  pr.Locked,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prs, nil
}

// ListArtifacts returns every workflow artifact in the repository, tagged
// with its parent run's id and head commit where the API provides them.
func (c *Client) ListArtifacts(ctx context.Context) ([]Artifact, error) {
	type wireArtifact struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Expired     bool   `json:"expired"`
		WorkflowRun struct {
			ID      int64  `json:"id"`
			HeadSHA string `json:"head_sha"`
		} `json:"workflow_run"`
	}
	type wirePage struct {
		Artifacts []wireArtifact `json:"artifacts"`
	}

	var artifacts []Artifact
	err := c.listPages(ctx, fmt.Sprintf("/repos/%s/actions/artifacts", c.repo), func(body []byte) error {
		var page wirePage
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("parsing artifact list: %w", err)
		}
		for _, a := range page.Artifacts {
			artifacts = append(artifacts, Artifact{
				ID:      a.ID,
				Name:    a.Name,
				Expired: a.Expired,
				RunID:   a.WorkflowRun.ID,
				HeadSHA: a.WorkflowRun.HeadSHA,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return artifacts, nil
}

// GetWorkflowRun returns metadata for one workflow run. Used to recover the
// head commit for artifacts whose listing omitted it.
func (c *Client) GetWorkflowRun(ctx context.Context, runID int64) (WorkflowRun, error) {
	body, _, err := c.do(ctx, "GET", fmt.Sprintf("/repos/%s/actions/runs/%d", c.repo, runID), nil)
	if err != nil {
		return WorkflowRun{}, err
	}
	var run struct {
		ID      int64  `json:"id"`
		HeadSHA string `json:"head_sha"`
	}
	if err := json.Unmarshal(body, &run); err != nil {
		return WorkflowRun{}, fmt.Errorf("parsing workflow run: %w", err)
	}
	return WorkflowRun{ID: run.ID, HeadSHA: run.HeadSHA}, nil
}

// DownloadArtifact fetches the artifact's zip archive.
func (c *Client) DownloadArtifact(ctx context.Context, artifactID int64) ([]byte, error) {
	body, _, err := c.do(ctx, "GET", fmt.Sprintf("/repos/%s/actions/artifacts/%d/zip", c.repo, artifactID), nil)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// ListIssueComments returns every comment on the pull request thread.
func (c *Client) ListIssueComments(ctx context.Context, prNumber int) ([]Comment, error) {
	var comments []Comment
	err := c.listPages(ctx, fmt.Sprintf("/repos/%s/issues/%d/comments", c.repo, prNumber), func(body []byte) error {
		var page []Comment
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("parsing comment list: %w", err)
		}
		comments = append(comments, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comments, nil
}

func (c *Comment) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID   int64  `json:"id"`
		Body string `json:"body"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.ID = wire.ID
	c.Body = wire.Body
	return nil
}

// CreateComment posts a new comment on the pull request thread.
func (c *Client) CreateComment(ctx context.Context, prNumber int, body string) (Comment, error) {
	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return Comment{}, fmt.Errorf("marshaling comment: %w", err)
	}
	respBody, _, err := c.do(ctx, "POST", fmt.Sprintf("/repos/%s/issues/%d/comments", c.repo, prNumber), payload)
	if err != nil {
		return Comment{}, err
	}
	var created Comment
	if err := json.Unmarshal(respBody, &created); err != nil {
		return Comment{}, fmt.Errorf("parsing created comment: %w", err)
	}
	return created, nil
}

// UpdateComment replaces the body of an existing comment.
func (c *Client) UpdateComment(ctx context.Context, commentID int64, body string) error {
	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("marshaling comment: %w", err)
	}
	_, _, err = c.do(ctx, "PATCH", fmt.Sprintf("/repos/%s/issues/comments/%d", c.repo, commentID), payload)
	return err
}

// DeleteComment removes a comment from the pull request thread.
func (c *Client) DeleteComment(ctx context.Context, commentID int64) error {
	_, _, err := c.do(ctx, "DELETE", fmt.Sprintf("/repos/%s/issues/comments/%d", c.repo, commentID), nil)
	return err
}

// RateLimitRemaining returns the remaining core API request allotment.
func (c *Client) RateLimitRemaining(ctx context.Context) (int, error) {
	body, _, err := c.do(ctx, "GET", "/rate_limit", nil)
	if err != nil {
		return 0, err
	}
	var limits struct {
		Resources struct {
			Core struct {
				Remaining int `json:"remaining"`
			} `json:"core"`
		} `json:"resources"`
	}
	if err := json.Unmarshal(body, &limits); err != nil {
		return 0, fmt.Errorf("parsing rate limit response: %w", err)
	}
	return limits.Resources.Core.Remaining, nil
}

// listPages fetches every page of a list endpoint, invoking handle once per
// page body. The page count is read from the Link response header.
func (c *Client) listPages(ctx context.Context, path string, handle func(body []byte) error) error {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	page := 1
	pageCount := 1
	for page <= pageCount {
		body, header, err := c.do(ctx, "GET", fmt.Sprintf("%s%sper_page=%d&page=%d", path, sep, perPage, page), nil)
		if err != nil {
			return err
		}
		if err := handle(body); err != nil {
			return err
		}
		if n := pageCountFromLink(header.Get("Link")); n > pageCount {
			pageCount = n
		}
		page++
	}
	return nil
}

// do performs one API request with pacing and transient-failure retry.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, http.Header, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reqBody)
		if err != nil {
			return nil, nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpCli.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s %s: %w", method, path, err)
			if attempt < maxRetries && sleepCtx(ctx, c.retryWait(attempt)) == nil {
				continue
			}
			return nil, nil, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, nil, fmt.Errorf("reading response: %w", readErr)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, resp.Header, nil
		case resp.StatusCode == 401:
			return nil, nil, fmt.Errorf("authentication failed (check the GitHub token): %s", strings.TrimSpace(string(body)))
		case retryableStatus(resp.StatusCode):
			lastErr = fmt.Errorf("GitHub API error (status %d) for %s %s: %s", resp.StatusCode, method, path, strings.TrimSpace(string(body)))
			if attempt < maxRetries {
				if err := sleepCtx(ctx, c.retryWait(attempt)); err != nil {
					return nil, nil, err
				}
				continue
			}
			return nil, nil, lastErr
		default:
			return nil, nil, fmt.Errorf("GitHub API error (status %d) for %s %s: %s", resp.StatusCode, method, path, strings.TrimSpace(string(body)))
		}
	}
	return nil, nil, lastErr
}

// retryableStatus reports whether a response status warrants another
// attempt: secondary rate limits and transient gateway failures.
func retryableStatus(status int) bool {
	switch status {
	case 403, 429, 500, 502, 503:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

var lastPageRe = regexp.MustCompile(`[?&]page=(\d+)[^>]*>;\s*rel="last"`)

// pageCountFromLink extracts the final page number from a Link header.
// Returns 1 when the header is absent or carries no rel="last" entry.
func pageCountFromLink(link string) int {
	if link == "" {
		return 1
	}
	for _, part := range strings.Split(link, ",") {
		if m := lastPageRe.FindStringSubmatch(part); m != nil {
			n := 0
			fmt.Sscanf(m[1], "%d", &n)
			if n > 0 {
				return n
			}
		}
	}
	return 1
}
