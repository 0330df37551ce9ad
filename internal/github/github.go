// Package github is the source-control collaborator. It is used only to
// fetch diff text, changed-file metadata, full file content (post compile
// gate), and existing discussion text for the reference fallback.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v60/github"
	gocache "github.com/patrickmn/go-cache"

	"github.com/joescharf/reviewd/internal/invoke"
	"github.com/joescharf/reviewd/internal/models"
)

// Comment is one discussion entry on a pull request, used by the external
// reference fallback path.
type Comment struct {
	Author string
	Body   string
}

// Repo is minimal repository metadata for listings.
type Repo struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

// PullRequest is minimal PR metadata for listings.
type PullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// Client is the interface the pipeline consumes.
type Client interface {
	Diff(ctx context.Context, repo string, number int) (string, error)
	ChangedFiles(ctx context.Context, repo string, number int) ([]models.ChangedFile, error)
	FileContent(ctx context.Context, rawURL string) (string, error)
	Discussion(ctx context.Context, repo string, number int) ([]Comment, error)
	DefaultBranch(ctx context.Context, repo string) (string, error)
	ListRepos(ctx context.Context) ([]Repo, error)
	ListOpenPRs(ctx context.Context, repo string) ([]PullRequest, error)
}

// RESTClient implements Client against the GitHub REST API. All requests run
// under the shared fetch limiter so concurrent reviews cannot exceed the
// configured ceiling of in-flight calls.
type RESTClient struct {
	api     *gh.Client
	http    *http.Client
	limiter *invoke.Limiter
	policy  invoke.Policy
	cache   *gocache.Cache
}

// Option configures the REST client.
type Option func(*RESTClient)

// WithBaseURL points the client at a test server.
func WithBaseURL(url string) Option {
	return func(c *RESTClient) {
		c.api.BaseURL, _ = c.api.BaseURL.Parse(url + "/")
	}
}

// WithPolicy overrides the fetch retry policy.
func WithPolicy(p invoke.Policy) Option {
	return func(c *RESTClient) { c.policy = p }
}

// tokenTransport adds the authorization header to requests.
type tokenTransport struct {
	token string
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return http.DefaultTransport.RoundTrip(req)
}

// New creates a GitHub client. Limiter is the process-wide fetch limiter.
func New(token string, limiter *invoke.Limiter, opts ...Option) *RESTClient {
	httpClient := &http.Client{
		Transport: &tokenTransport{token: token},
		Timeout:   30 * time.Second,
	}
	c := &RESTClient{
		api:     gh.NewClient(httpClient),
		http:    httpClient,
		limiter: limiter,
		policy:  invoke.DefaultFetchPolicy(),
		cache:   gocache.New(5*time.Minute, 10*time.Minute),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func splitRepo(full string) (owner, name string, err error) {
	parts := strings.SplitN(full, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q, want owner/name", full)
	}
	return parts[0], parts[1], nil
}

// classify maps go-github errors onto the error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ge *gh.ErrorResponse
	if errors.As(err, &ge) && ge.Response != nil {
		return invoke.StatusError(ge.Response.StatusCode, ge.Message)
	}
	return invoke.ClassifyMessage(err)
}

// Diff fetches the unified diff for a pull request.
func (c *RESTClient) Diff(ctx context.Context, repo string, number int) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	var diff string
	err = invoke.Do(ctx, c.limiter, c.policy, func(ctx context.Context) error {
		raw, _, err := c.api.PullRequests.GetRaw(ctx, owner, name, number, gh.RawOptions{Type: gh.Diff})
		if err != nil {
			return classify(err)
		}
		diff = raw
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fetch diff for %s#%d: %w", repo, number, err)
	}
	return diff, nil
}

// ChangedFiles fetches file metadata only; content stays unfetched until the
// compile gate passes.
func (c *RESTClient) ChangedFiles(ctx context.Context, repo string, number int) ([]models.ChangedFile, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	var out []models.ChangedFile
	err = invoke.Do(ctx, c.limiter, c.policy, func(ctx context.Context) error {
		out = out[:0]
		opt := &gh.ListOptions{PerPage: 100}
		for {
			files, resp, err := c.api.PullRequests.ListFiles(ctx, owner, name, number, opt)
			if err != nil {
				return classify(err)
			}
			for _, f := range files {
				out = append(out, models.ChangedFile{
					Path:    f.GetFilename(),
					Status:  f.GetStatus(),
					Changes: f.GetChanges(),
					Patch:   f.GetPatch(),
					RawURL:  f.GetRawURL(),
				})
			}
			if resp.NextPage == 0 {
				break
			}
			opt.Page = resp.NextPage
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files for %s#%d: %w", repo, number, err)
	}
	return out, nil
}

// FileContent fetches one raw blob. Results are cached briefly so repeated
// reviews of the same PR do not refetch unchanged blobs.
func (c *RESTClient) FileContent(ctx context.Context, rawURL string) (string, error) {
	if cached, ok := c.cache.Get("blob:" + rawURL); ok {
		return cached.(string), nil
	}
	var content string
	err := invoke.Do(ctx, c.limiter, c.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return invoke.ClassifyMessage(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return invoke.StatusError(resp.StatusCode, rawURL)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return invoke.Transient(err)
		}
		content = string(body)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fetch raw content: %w", err)
	}
	c.cache.Set("blob:"+rawURL, content, gocache.DefaultExpiration)
	return content, nil
}

// Discussion returns issue comments and review bodies on a pull request.
func (c *RESTClient) Discussion(ctx context.Context, repo string, number int) ([]Comment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	var out []Comment
	err = invoke.Do(ctx, c.limiter, c.policy, func(ctx context.Context) error {
		out = out[:0]
		comments, _, err := c.api.Issues.ListComments(ctx, owner, name, number, nil)
		if err != nil {
			return classify(err)
		}
		for _, cm := range comments {
			out = append(out, Comment{Author: cm.GetUser().GetLogin(), Body: cm.GetBody()})
		}
		reviews, _, err := c.api.PullRequests.ListReviews(ctx, owner, name, number, nil)
		if err != nil {
			return classify(err)
		}
		for _, rv := range reviews {
			if rv.GetBody() == "" {
				continue
			}
			out = append(out, Comment{Author: rv.GetUser().GetLogin(), Body: rv.GetBody()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch discussion for %s#%d: %w", repo, number, err)
	}
	return out, nil
}

// DefaultBranch returns the repo default branch, cached.
func (c *RESTClient) DefaultBranch(ctx context.Context, repo string) (string, error) {
	if cached, ok := c.cache.Get("branch:" + repo); ok {
		return cached.(string), nil
	}
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	var branch string
	err = invoke.Do(ctx, c.limiter, c.policy, func(ctx context.Context) error {
		r, _, err := c.api.Repositories.Get(ctx, owner, name)
		if err != nil {
			return classify(err)
		}
		branch = r.GetDefaultBranch()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fetch repo %s: %w", repo, err)
	}
	c.cache.Set("branch:"+repo, branch, gocache.DefaultExpiration)
	return branch, nil
}

// ListRepos lists repositories for the authenticated user.
func (c *RESTClient) ListRepos(ctx context.Context) ([]Repo, error) {
	var out []Repo
	err := invoke.Do(ctx, c.limiter, c.policy, func(ctx context.Context) error {
		out = out[:0]
		repos, _, err := c.api.Repositories.List(ctx, "", &gh.RepositoryListOptions{
			Sort:        "updated",
			ListOptions: gh.ListOptions{PerPage: 100},
		})
		if err != nil {
			return classify(err)
		}
		for _, r := range repos {
			out = append(out, Repo{FullName: r.GetFullName(), DefaultBranch: r.GetDefaultBranch()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	return out, nil
}

// ListOpenPRs lists open pull requests for a repo.
func (c *RESTClient) ListOpenPRs(ctx context.Context, repo string) ([]PullRequest, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	var out []PullRequest
	err = invoke.Do(ctx, c.limiter, c.policy, func(ctx context.Context) error {
		out = out[:0]
		prs, _, err := c.api.PullRequests.List(ctx, owner, name, &gh.PullRequestListOptions{State: "open"})
		if err != nil {
			return classify(err)
		}
		for _, pr := range prs {
			out = append(out, PullRequest{Number: pr.GetNumber(), Title: pr.GetTitle(), URL: pr.GetHTMLURL()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list open PRs for %s: %w", repo, err)
	}
	return out, nil
}
