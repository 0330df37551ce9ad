// Package pipeline orchestrates one pull-request review end to end:
// context acquisition, external reference resolution, the compile gate,
// parallel deterministic and semantic analysis, and report synthesis.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/reviewd/internal/detect"
	"github.com/joescharf/reviewd/internal/gate"
	"github.com/joescharf/reviewd/internal/github"
	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/reference"
	"github.com/joescharf/reviewd/internal/report"
)

// maxHydrateSize caps, in bytes, how large a change the pipeline will
// fetch full content for. The file listing carries no blob size, so the
// patch length stands in as the proxy; bigger changes fall back to
// patch-only analysis.
const maxHydrateSize = 200_000

// maxHydrateFiles bounds how many files get full-content fetches on one
// review; the rest are analyzed from their patches.
const maxHydrateFiles = 25

// Resolver produces the external reference result for a request.
type Resolver interface {
	Resolve(ctx context.Context, req models.ReviewRequest) reference.Result
}

// Decider is the compile gate.
type Decider interface {
	Decide(ctx context.Context, diff string, files []models.ChangedFile, ref reference.Result) gate.Verdict
}

// SemanticReviewer runs the model-backed review pass.
type SemanticReviewer interface {
	ReviewChanges(ctx context.Context, diff string, known []models.Finding, requirements string) ([]models.Finding, error)
}

// Pipeline wires the stages together. One Pipeline serves many runs;
// each run gets its own ReviewState.
type Pipeline struct {
	gh        github.Client
	resolver  Resolver
	gate      Decider
	detectors *detect.Engine
	reviewer  SemanticReviewer
	logger    *slog.Logger
}

// New assembles a pipeline.
func New(gh github.Client, resolver Resolver, g Decider, engine *detect.Engine, reviewer SemanticReviewer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		gh:        gh,
		resolver:  resolver,
		gate:      g,
		detectors: engine,
		reviewer:  reviewer,
		logger:    logger,
	}
}

// Run executes the full pipeline for one request. A missing repo or PR
// is fatal; reference failures and analysis degradations are not. On
// context cancellation the partial state is discarded and the context
// error returned.
func (p *Pipeline) Run(ctx context.Context, req models.ReviewRequest) (*ReviewState, error) {
	s := &ReviewState{
		ID:        ulid.Make().String(),
		Request:   req,
		State:     StateStart,
		StartedAt: time.Now().UTC(),
	}
	log := p.logger.With("review_id", s.ID, "repo", req.RepoFullName, "pr", req.PRNumber)
	log.Info("review started")

	if err := p.acquireContext(ctx, s); err != nil {
		return nil, err
	}
	log.Info("context acquired", "files", len(s.Files), "diff_bytes", len(s.Diff))

	s.Reference = p.resolver.Resolve(ctx, req)
	if err := s.transition(StateReferenceResolved); err != nil {
		return nil, err
	}
	if !s.Reference.OK {
		log.Info("external reference unavailable", "reason", s.Reference.FailureReason)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.Verdict = p.gate.Decide(ctx, s.Diff, s.Files, s.Reference)
	if err := s.transition(StateCompileChecked); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.Verdict.Blocked() {
		log.Info("review blocked at compile gate", "errors", len(s.Verdict.Errors))
		if err := s.transition(StateBlocked); err != nil {
			return nil, err
		}
		return p.synthesize(s, log)
	}

	p.hydrate(ctx, s, log)
	if err := p.analyze(ctx, s); err != nil {
		return nil, err
	}
	return p.synthesize(s, log)
}

func (p *Pipeline) acquireContext(ctx context.Context, s *ReviewState) error {
	diff, err := p.gh.Diff(ctx, s.Request.RepoFullName, s.Request.PRNumber)
	if err != nil {
		return fmt.Errorf("fetching diff for %s#%d: %w", s.Request.RepoFullName, s.Request.PRNumber, err)
	}
	files, err := p.gh.ChangedFiles(ctx, s.Request.RepoFullName, s.Request.PRNumber)
	if err != nil {
		return fmt.Errorf("fetching changed files for %s#%d: %w", s.Request.RepoFullName, s.Request.PRNumber, err)
	}
	s.Diff = diff
	s.Files = files
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	s.Language = detect.PrimaryLanguage(paths)
	return s.transition(StateContextReady)
}

// hydrate fetches file contents exactly once, after the gate has let the
// review through. Fetch failures degrade to patch-only analysis.
func (p *Pipeline) hydrate(ctx context.Context, s *ReviewState, log *slog.Logger) {
	eligible := make([]models.ChangedFile, 0, len(s.Files))
	for _, f := range s.Files {
		if f.Status == "removed" || f.RawURL == "" || len(f.Patch) > maxHydrateSize {
			continue
		}
		eligible = append(eligible, f)
		if len(eligible) == maxHydrateFiles {
			break
		}
	}

	s.Contents = make(map[string]string, len(eligible))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, f := range eligible {
		wg.Add(1)
		go func(f models.ChangedFile) {
			defer wg.Done()
			// The shared fetch limiter inside the client caps how many
			// of these run against the API at once.
			content, err := p.gh.FileContent(ctx, f.RawURL)
			if err != nil {
				log.Warn("content fetch failed", "file", f.Path, "error", err)
				return
			}
			mu.Lock()
			s.Contents[f.Path] = content
			mu.Unlock()
		}(f)
	}
	wg.Wait()
}

// analyze runs the detector engine and the semantic reviewer
// concurrently and joins their results. The merged outcome does not
// depend on which finished first.
func (p *Pipeline) analyze(ctx context.Context, s *ReviewState) error {
	analysis := &AnalysisResults{}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		files := make([]detect.File, 0, len(s.Files))
		for _, f := range s.Files {
			if f.Status == "removed" {
				continue
			}
			files = append(files, detect.File{
				Path:    f.Path,
				Content: s.Contents[f.Path],
				Patch:   f.Patch,
				Lang:    detect.LanguageOf(f.Path),
			})
		}
		res := p.detectors.Run(ctx, files)
		analysis.Deterministic = res.Findings
		analysis.SkippedDetectors = res.Skipped
	}()

	var semErr error
	go func() {
		defer wg.Done()
		// the detector pass is still running, so overlap with its
		// findings is handled by dedup at synthesis, not by the
		// known-findings hint
		findings, err := p.reviewer.ReviewChanges(ctx, s.Diff, nil, s.Request.Requirements)
		if err != nil {
			semErr = err
			return
		}
		analysis.Semantic = findings
	}()

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if semErr != nil {
		p.logger.Warn("semantic review degraded", "review_id", s.ID, "error", semErr)
		analysis.SemanticFailure = semErr.Error()
	}

	s.Analysis = analysis
	if err := s.transition(StateDetectorsRun); err != nil {
		return err
	}
	return s.transition(StateSemanticChecked)
}

func (p *Pipeline) synthesize(s *ReviewState, log *slog.Logger) (*ReviewState, error) {
	in := report.Input{
		Request:   s.Request,
		Verdict:   s.Verdict,
		Reference: s.Reference,
		Language:  s.Language,
		Files:     s.Files,
		Contents:  s.Contents,
	}
	if s.Analysis != nil {
		in.Deterministic = s.Analysis.Deterministic
		in.Semantic = s.Analysis.Semantic
		in.Skipped = s.Analysis.SkippedDetectors
		in.SemanticFailure = s.Analysis.SemanticFailure
	}
	markdown, findings := report.Synthesize(in)
	s.ReportMarkdown = markdown
	s.Findings = findings

	if err := s.transition(StateSynthesized); err != nil {
		return nil, err
	}
	if err := s.transition(StateDone); err != nil {
		return nil, err
	}
	s.FinishedAt = time.Now().UTC()
	log.Info("review finished", "state", s.State.String(), "findings", len(s.Findings))
	return s, nil
}

// Record converts a finished state into the persisted review row.
func (s *ReviewState) Record() models.Review {
	verdict := string(s.Verdict.Kind)
	if verdict == "" {
		verdict = string(models.VerdictUnknown)
	}
	return models.Review{
		ID:             s.ID,
		RepoFullName:   s.Request.RepoFullName,
		PRNumber:       s.Request.PRNumber,
		Verdict:        verdict,
		Language:       s.Language,
		ReportMarkdown: s.ReportMarkdown,
		Findings:       s.Findings,
		CreatedAt:      s.FinishedAt,
	}
}
