package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joescharf/reviewd/internal/github"
	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/pipeline"
	"github.com/joescharf/reviewd/internal/store"
)

// Runner executes one review end to end.
type Runner interface {
	Run(ctx context.Context, req models.ReviewRequest) (*pipeline.ReviewState, error)
}

// Server provides the REST API handlers.
type Server struct {
	store  store.Store
	logger *slog.Logger

	// newRunner and newGH build clients for a request. The token argument
	// is the X-GitHub-Token override; empty means the configured default.
	newRunner func(token string) Runner
	newGH     func(token string) github.Client
}

// NewServer creates a new API server.
func NewServer(s store.Store, newRunner func(token string) Runner, newGH func(token string) github.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:     s,
		logger:    logger,
		newRunner: newRunner,
		newGH:     newGH,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/review", s.createReview)
	mux.HandleFunc("GET /api/v1/review/{id}", s.getReview)
	mux.HandleFunc("GET /api/v1/review/{id}/export", s.exportReview)
	mux.HandleFunc("GET /api/v1/reviews", s.listReviews)

	mux.HandleFunc("GET /api/v1/repos", s.listRepos)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/prs", s.listOpenPRs)

	mux.HandleFunc("GET /api/v1/health", s.health)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-GitHub-Token")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps the error taxonomy onto HTTP statuses. Missing repos
// and PRs are the caller's mistake, bad credentials are a 401, anything
// else is on us.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// --- Reviews ---

type reviewResponse struct {
	ReviewID string           `json:"review_id"`
	Verdict  string           `json:"verdict"`
	Report   string           `json:"report_markdown"`
	Findings []models.Finding `json:"findings"`
}

func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RepoFullName == "" || req.PRNumber <= 0 {
		writeError(w, http.StatusBadRequest, "repo_full_name and pr_number are required")
		return
	}

	runner := s.newRunner(r.Header.Get("X-GitHub-Token"))
	state, err := runner.Run(r.Context(), req)
	if err != nil {
		s.logger.Error("review failed", "repo", req.RepoFullName, "pr", req.PRNumber, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	rec := state.Record()
	if err := s.store.SaveReview(r.Context(), &rec); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, reviewResponse{
		ReviewID: rec.ID,
		Verdict:  rec.Verdict,
		Report:   rec.ReportMarkdown,
		Findings: rec.Findings,
	})
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	review, err := s.store.GetReview(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// exportReview serves the stored report verbatim. The bytes returned
// here are exactly the bytes synthesis produced; nothing is re-rendered.
func (s *Server) exportReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	review, err := s.store.GetReview(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "review-"+review.ID+".md"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(review.ReportMarkdown))
}

func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	filter := store.ReviewListFilter{
		RepoFullName: r.URL.Query().Get("repo"),
		Verdict:      r.URL.Query().Get("verdict"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	reviews, err := s.store.ListReviews(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reviews == nil {
		reviews = []*models.Review{}
	}
	writeJSON(w, http.StatusOK, reviews)
}

// --- Repos ---

func (s *Server) listRepos(w http.ResponseWriter, r *http.Request) {
	gh := s.newGH(r.Header.Get("X-GitHub-Token"))
	repos, err := gh.ListRepos(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if repos == nil {
		repos = []github.Repo{}
	}
	writeJSON(w, http.StatusOK, repos)
}

// prListing is the PR-listing response: the open pull requests plus the
// branch they would merge into.
type prListing struct {
	Repo          string               `json:"repo"`
	DefaultBranch string               `json:"default_branch"`
	PullRequests  []github.PullRequest `json:"pull_requests"`
}

func (s *Server) listOpenPRs(w http.ResponseWriter, r *http.Request) {
	repo := r.PathValue("owner") + "/" + r.PathValue("repo")
	gh := s.newGH(r.Header.Get("X-GitHub-Token"))
	branch, err := gh.DefaultBranch(r.Context(), repo)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	prs, err := gh.ListOpenPRs(r.Context(), repo)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if prs == nil {
		prs = []github.PullRequest{}
	}
	writeJSON(w, http.StatusOK, prListing{Repo: repo, DefaultBranch: branch, PullRequests: prs})
}

// --- Health ---

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
