// Package reference integrates a third-party review opinion as corroborating
// evidence. Two strategies are tried in fixed order: the structured review
// bundle API, then scraping the change's discussion for the reference bot's
// own comments. Failure is data, never a pipeline error.
package reference

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/reviewd/internal/models"
)

// Comment is one inline comment from the external reviewer.
type Comment struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Body string `json:"body"`
}

// Result is the outcome of resolving the external reference for one review.
type Result struct {
	OK            bool      `json:"ok"`
	Source        string    `json:"source,omitempty"` // "api" or "discussion"
	Summary       string    `json:"summary,omitempty"`
	Comments      []Comment `json:"comments,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// blockingPhrases are signals that the external reviewer considers the change
// unbuildable. Presence of any of them upgrades finding confidence and
// corroborates a blocking compile verdict.
var blockingPhrases = []string{
	"will not compile",
	"cannot compile",
	"won't compile",
	"compilation error",
	"compile error",
	"syntax error",
	"missing semicolon",
	"missing #include",
	"cannot be merged",
	"code will not compile",
}

const maxComments = 30

// Strategy is one way of obtaining the external reference opinion.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, req models.ReviewRequest) (*Result, error)
}

// Adapter resolves the external reference through an ordered strategy chain.
type Adapter struct {
	strategies []Strategy
}

// NewAdapter builds an adapter trying the given strategies in order.
func NewAdapter(strategies ...Strategy) *Adapter {
	return &Adapter{strategies: strategies}
}

// Resolve tries each strategy in order; the first success wins. When all
// strategies fail, the returned Result records the aggregated reason and the
// adapter emits no findings. Resolve never returns an error: reference
// failure is captured as data.
func (a *Adapter) Resolve(ctx context.Context, req models.ReviewRequest) Result {
	var reasons []string
	for _, s := range a.strategies {
		res, err := s.Fetch(ctx, req)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		if res != nil && res.OK {
			if len(res.Comments) > maxComments {
				res.Comments = res.Comments[:maxComments]
			}
			return *res
		}
		reasons = append(reasons, fmt.Sprintf("%s: no reference content", s.Name()))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "no strategies configured")
	}
	return Result{FailureReason: strings.Join(reasons, "; ")}
}

// ConfirmsBlocking reports whether the reference independently flagged a
// compile-class blocking issue, scanning both the summary and every comment
// body.
func (r Result) ConfirmsBlocking() bool {
	if !r.OK {
		return false
	}
	var sb strings.Builder
	sb.WriteString(r.Summary)
	for _, c := range r.Comments {
		sb.WriteString("\n")
		sb.WriteString(c.Body)
	}
	return containsBlockingPhrase(sb.String())
}

// Confirms reports whether the reference mentions the given compile error.
// Matching is heuristic: file basename plus line number, or file basename
// plus a fragment of the error message.
func (r Result) Confirms(err models.CompileError) bool {
	if !r.OK {
		return false
	}
	var sb strings.Builder
	sb.WriteString(r.Summary)
	for _, c := range r.Comments {
		fmt.Fprintf(&sb, "\n%s:%d:%s", c.File, c.Line, c.Body)
	}
	haystack := strings.ToLower(sb.String())
	if strings.TrimSpace(haystack) == "" {
		return false
	}

	base := strings.ToLower(basename(err.File))
	if base == "" {
		return false
	}
	if !strings.Contains(haystack, base) {
		return false
	}
	if err.Line > 0 && strings.Contains(haystack, fmt.Sprintf("%d", err.Line)) {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(err.Message))
	if msg == "" {
		return false
	}
	frag := msg
	if len(frag) > 16 {
		frag = frag[:16]
	}
	return strings.Contains(haystack, frag)
}

// Findings normalizes the reference comments into the unified finding model,
// provenance "external-reference". Confidence is medium by default, high when
// the comment carries a recognizable blocking phrase.
func (r Result) Findings() []models.Finding {
	if !r.OK {
		return nil
	}
	findings := make([]models.Finding, 0, len(r.Comments))
	for _, c := range r.Comments {
		body := strings.TrimSpace(c.Body)
		if body == "" {
			continue
		}
		confidence := models.ConfidenceMedium
		if containsBlockingPhrase(body) {
			confidence = models.ConfidenceHigh
		}
		findings = append(findings, models.Finding{
			File:       c.File,
			Line:       c.Line,
			Severity:   models.SeverityMedium,
			Category:   models.CategoryBug,
			Title:      "External reviewer comment",
			Detail:     truncate(body, 3000),
			Provenance: models.ProvenanceReference,
			Confidence: confidence,
		})
	}
	return findings
}

func containsBlockingPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range blockingPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func basename(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
