package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/pipeline"
	"github.com/joescharf/reviewd/internal/store"
)

// Runner executes one review end to end.
type Runner interface {
	Run(ctx context.Context, req models.ReviewRequest) (*pipeline.ReviewState, error)
}

// Server wraps the review pipeline and store and exposes them as MCP tools.
type Server struct {
	store  store.Store
	runner Runner
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, runner Runner) *Server {
	return &Server{
		store:  s,
		runner: runner,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("reviewd", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.reviewPullRequestTool())
	srv.AddTool(s.getReviewReportTool())
	srv.AddTool(s.listReviewsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// review_pull_request
func (s *Server) reviewPullRequestTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_pull_request",
		mcp.WithDescription("Run a full review of a pull request: compile gate, deterministic detectors, and semantic analysis. Returns the review id, verdict, and findings."),
		mcp.WithString("repo", mcp.Required(), mcp.Description("Repository in owner/name form")),
		mcp.WithNumber("pr_number", mcp.Required(), mcp.Description("Pull request number")),
		mcp.WithString("requirements", mcp.Description("Optional requirements or focus areas for the semantic pass")),
	)
	return tool, s.handleReviewPullRequest
}

func (s *Server) handleReviewPullRequest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo := request.GetString("repo", "")
	prNumber := request.GetInt("pr_number", 0)
	if repo == "" || prNumber <= 0 {
		return mcp.NewToolResultError("repo and pr_number are required"), nil
	}

	state, err := s.runner.Run(ctx, models.ReviewRequest{
		RepoFullName: repo,
		PRNumber:     prNumber,
		Requirements: request.GetString("requirements", ""),
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("pull request not found: %s#%d", repo, prNumber)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("review failed: %v", err)), nil
	}

	rec := state.Record()
	if err := s.store.SaveReview(ctx, &rec); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save review: %v", err)), nil
	}

	out := struct {
		ReviewID string           `json:"review_id"`
		Verdict  string           `json:"verdict"`
		Findings []models.Finding `json:"findings"`
	}{rec.ID, rec.Verdict, rec.Findings}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// get_review_report
func (s *Server) getReviewReportTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_review_report",
		mcp.WithDescription("Fetch the stored markdown report for a completed review by its id."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review id returned by review_pull_request")),
	)
	return tool, s.handleGetReviewReport
}

func (s *Server) handleGetReviewReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("review_id", "")
	if id == "" {
		return mcp.NewToolResultError("review_id is required"), nil
	}

	review, err := s.store.GetReview(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("review not found: %s", id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to load review: %v", err)), nil
	}
	return mcp.NewToolResultText(review.ReportMarkdown), nil
}

// list_reviews
func (s *Server) listReviewsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("list_reviews",
		mcp.WithDescription("List stored reviews, newest first. Returns a JSON array with id, repo, pr number, verdict, and timestamp."),
		mcp.WithString("repo", mcp.Description("Filter by repository full name")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of reviews to return")),
	)
	return tool, s.handleListReviews
}

func (s *Server) handleListReviews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reviews, err := s.store.ListReviews(ctx, store.ReviewListFilter{
		RepoFullName: request.GetString("repo", ""),
		Limit:        request.GetInt("limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list reviews: %v", err)), nil
	}

	type reviewOut struct {
		ID           string `json:"id"`
		RepoFullName string `json:"repo_full_name"`
		PRNumber     int    `json:"pr_number"`
		Verdict      string `json:"verdict"`
		CreatedAt    string `json:"created_at"`
	}

	out := make([]reviewOut, len(reviews))
	for i, r := range reviews {
		out[i] = reviewOut{
			ID:           r.ID,
			RepoFullName: r.RepoFullName,
			PRNumber:     r.PRNumber,
			Verdict:      r.Verdict,
			CreatedAt:    r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal reviews: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
