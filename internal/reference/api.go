package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/joescharf/reviewd/internal/models"
)

// BundleStrategy fetches a structured review bundle (summary plus inline
// comments) from the reference service's HTTP API. It requires a configured
// credential; any transport or protocol error makes the adapter fall through
// to the next strategy.
type BundleStrategy struct {
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
}

// NewBundleStrategy creates the structured API strategy. Returns nil when no
// credential is configured, which drops the strategy from the chain.
func NewBundleStrategy(baseURL, apiKey string) *BundleStrategy {
	if apiKey == "" || baseURL == "" {
		return nil
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil
	return &BundleStrategy{baseURL: baseURL, apiKey: apiKey, client: client}
}

func (s *BundleStrategy) Name() string { return "bundle-api" }

// bundlePayload is the wire shape of the review bundle endpoint.
type bundlePayload struct {
	Summary  string `json:"summary"`
	Comments []struct {
		FilePath  string `json:"filePath"`
		LineStart int    `json:"lineStart"`
		Body      string `json:"body"`
	} `json:"comments"`
}

// Fetch requests the review bundle scoped to the change.
func (s *BundleStrategy) Fetch(ctx context.Context, reviewReq models.ReviewRequest) (*Result, error) {
	url := fmt.Sprintf("%s/reviews/%s/pulls/%d", s.baseURL, reviewReq.RepoFullName, reviewReq.PRNumber)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var payload bundlePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}

	res := &Result{Source: "api", Summary: truncate(payload.Summary, 12000)}
	for _, c := range payload.Comments {
		res.Comments = append(res.Comments, Comment{File: c.FilePath, Line: c.LineStart, Body: c.Body})
	}
	res.OK = res.Summary != "" || len(res.Comments) > 0
	if !res.OK {
		return nil, fmt.Errorf("empty bundle")
	}
	return res, nil
}
