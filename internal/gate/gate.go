// Package gate decides, cheaply, whether a change is compilable enough to
// warrant deeper analysis. A blocking claim from the model alone is never
// trusted: it must be corroborated by the external reference, otherwise the
// verdict is downgraded to compilable. Infrastructure failures fail open.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joescharf/reviewd/internal/llm"
	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/reference"
)

// Analyzer is the compile-profile slice of the semantic-analysis capability.
type Analyzer interface {
	CheckCompile(ctx context.Context, diff string, files []models.ChangedFile) (*llm.CompileAssessment, error)
}

// Verdict is the gate's definite outcome. Kind is never VerdictUnknown once
// Decide returns.
type Verdict struct {
	Kind      models.CompileVerdictKind
	Errors    []models.CompileError
	FixAdvice string
	Evidence  string // how the verdict was reached, for the report
	// Origin records which source produced the compile errors: the model
	// (semantic) or the reference short-circuit (external-reference).
	Origin models.Provenance
	// Degraded carries low-confidence notes about infra failures absorbed by
	// the fail-open policy. They travel with the review, not the verdict.
	Degraded []models.Finding
}

// Blocked reports whether the verdict stops the pipeline.
func (v Verdict) Blocked() bool { return v.Kind == models.VerdictBlocked }

// Findings renders the compile errors as critical findings for the early-exit
// report.
func (v Verdict) Findings() []models.Finding {
	if !v.Blocked() {
		return nil
	}
	provenance := v.Origin
	if provenance == "" {
		provenance = models.ProvenanceSemantic
	}
	out := make([]models.Finding, 0, len(v.Errors))
	for _, e := range v.Errors {
		out = append(out, models.Finding{
			File:       e.File,
			Line:       e.Line,
			Severity:   models.SeverityCritical,
			Category:   models.CategoryBug,
			Title:      e.Type,
			Detail:     e.Message,
			Suggestion: "Fix the compile-level errors before requesting further review.",
			Provenance: provenance,
			Confidence: models.ConfidenceHigh,
		})
	}
	return out
}

// Gate cross-validates the model's compile assessment against the external
// reference result.
type Gate struct {
	analyzer Analyzer
	logger   *slog.Logger
}

// New creates a compile gate.
func New(analyzer Analyzer, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{analyzer: analyzer, logger: logger}
}

// Decide always terminates with a definite verdict. Procedure:
//  1. If the reference already confirms a blocking issue, synthesize the
//     blocked verdict from reference evidence without a model call.
//  2. Otherwise ask the compile-profile model (retried through the shared
//     invoker). If the call ultimately fails or the response is malformed,
//     fail open to compilable and record the degradation as a low-confidence
//     finding.
//  3. A "not compilable" claim survives only when the reference corroborates
//     it: either a blocking phrase, or a per-error mention of file and
//     line/message. Unconfirmed claims are downgraded to compilable — this
//     also applies when the reference itself is absent or failed, since a
//     single source is insufficient to block.
func (g *Gate) Decide(ctx context.Context, diff string, files []models.ChangedFile, ref reference.Result) Verdict {
	if ref.ConfirmsBlocking() {
		return g.verdictFromReference(ref)
	}

	assessment, err := g.analyzer.CheckCompile(ctx, diff, files)
	if err != nil {
		return g.failOpen(err)
	}

	if assessment.Compilable {
		return Verdict{
			Kind:     models.VerdictCompilable,
			Evidence: "model reported no compile-class errors",
		}
	}

	confirmed := make([]models.CompileError, 0, len(assessment.Errors))
	for _, e := range assessment.Errors {
		if ref.Confirms(e) {
			confirmed = append(confirmed, e)
		}
	}
	if len(confirmed) == 0 {
		g.logger.Info("downgrading unconfirmed blocking verdict",
			"errors", len(assessment.Errors), "reference_ok", ref.OK)
		return Verdict{
			Kind: models.VerdictCompilable,
			Evidence: fmt.Sprintf(
				"model reported %d compile-class error(s) but the external reference did not corroborate; verdict downgraded",
				len(assessment.Errors)),
		}
	}
	return Verdict{
		Kind:      models.VerdictBlocked,
		Errors:    confirmed,
		FixAdvice: assessment.FixAdvice,
		Evidence:  "model compile check corroborated by external reference",
		Origin:    models.ProvenanceSemantic,
	}
}

// verdictFromReference builds a blocked verdict from reference evidence
// alone. Comments carrying a blocking phrase become located errors; if none
// carry a location, one generic error stands in.
func (g *Gate) verdictFromReference(ref reference.Result) Verdict {
	var errs []models.CompileError
	for _, c := range ref.Comments {
		body := strings.ToLower(c.Body)
		typ := ""
		switch {
		case strings.Contains(body, "#include"):
			typ = "MissingDependency"
		case strings.Contains(body, "semicolon"), strings.Contains(body, "syntax"):
			typ = "SyntaxError"
		case strings.Contains(body, "compile"), strings.Contains(body, "merged"):
			typ = "CompileError"
		default:
			continue
		}
		errs = append(errs, models.CompileError{
			File:    c.File,
			Line:    c.Line,
			Type:    typ,
			Message: truncateMessage(c.Body),
		})
	}
	if len(errs) == 0 {
		errs = append(errs, models.CompileError{
			Type:    "CompileError",
			Message: "external reviewer reports the change does not compile",
		})
	}
	if len(errs) > 10 {
		errs = errs[:10]
	}
	return Verdict{
		Kind:     models.VerdictBlocked,
		Errors:   errs,
		Evidence: "external reference independently flagged a blocking compile issue",
		Origin:   models.ProvenanceReference,
	}
}

// failOpen absorbs an infrastructure failure: prefer doing more analysis
// over blocking a review on a broken capability.
func (g *Gate) failOpen(err error) Verdict {
	g.logger.Warn("compile check unavailable, failing open", "error", err)
	reason := "semantic-analysis call failed"
	var pe *llm.ParseError
	if errors.As(err, &pe) {
		reason = "semantic-analysis response was malformed"
	}
	return Verdict{
		Kind:     models.VerdictCompilable,
		Evidence: fmt.Sprintf("compile check unavailable (%s); failing open", reason),
		Degraded: []models.Finding{{
			Severity:   models.SeverityLow,
			Category:   models.CategoryBug,
			Title:      "Compile check unavailable",
			Detail:     fmt.Sprintf("%s: %v; the compile gate failed open and full analysis proceeded", reason, err),
			Provenance: models.ProvenanceSemantic,
			Confidence: models.ConfidenceLow,
		}},
	}
}

func truncateMessage(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 240 {
		return s[:240]
	}
	return s
}
