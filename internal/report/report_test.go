package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewd/internal/gate"
	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/reference"
)

func fullInput() Input {
	return Input{
		Request:  models.ReviewRequest{RepoFullName: "acme/api", PRNumber: 42},
		Verdict:  gate.Verdict{Kind: models.VerdictCompilable, Evidence: "model assessed the diff as compilable."},
		Language: "c",
		Reference: reference.Result{
			OK:      true,
			Source:  "discussion",
			Summary: "LGTM overall, one nit on error handling.",
		},
		Deterministic: []models.Finding{
			{File: "a.c", Line: 3, Severity: models.SeverityHigh, Category: models.CategoryBug,
				Title: "Division by literal zero", Detail: "x = 1 / 0", Provenance: models.ProvenanceDeterministic, Confidence: models.ConfidenceHigh},
			{File: "b.c", Line: 9, Severity: models.SeverityMedium, Category: models.CategoryBug,
				Title: "Possible infinite loop", Detail: "while (true)", Provenance: models.ProvenanceDeterministic, Confidence: models.ConfidenceMedium},
		},
		Semantic: []models.Finding{
			{File: "a.c", Line: 20, Severity: models.SeverityLow, Category: models.CategoryStyle,
				Title: "Inconsistent naming", Provenance: models.ProvenanceSemantic, Confidence: models.ConfidenceMedium},
			{File: "svc.go", Line: 5, Severity: models.SeverityHigh, Category: models.CategoryArchitecture,
				Title: "Layering violation", Detail: "handler reaches into storage directly",
				Provenance: models.ProvenanceSemantic, Confidence: models.ConfidenceMedium},
		},
		Contents: map[string]string{"a.c": "int main() {\n  int y = 2;\n  x = 1 / 0;\n  return 0;\n}"},
	}
}

func TestSynthesize_SectionOrder(t *testing.T) {
	md, findings := Synthesize(fullInput())

	assert.Contains(t, md, "Primary language: c")
	det := strings.Index(md, "## Deterministic Checks")
	sem := strings.Index(md, "## Semantic Review")
	arch := strings.Index(md, "## Architecture & Dependencies")
	ref := strings.Index(md, "## External Reference")
	require.True(t, det > 0 && sem > det && arch > sem && ref > arch,
		"sections out of order: det=%d sem=%d arch=%d ref=%d", det, sem, arch, ref)

	require.Len(t, findings, 4)
	assert.Equal(t, models.SeverityHigh, findings[0].Severity)
	assert.Equal(t, models.SeverityLow, findings[len(findings)-1].Severity)
}

func TestSynthesize_Idempotent(t *testing.T) {
	in := fullInput()
	first, ff := Synthesize(in)
	second, sf := Synthesize(in)
	assert.Equal(t, first, second)
	assert.Equal(t, ff, sf)
}

func TestSynthesize_BlockedHasSoleFindingsSection(t *testing.T) {
	in := Input{
		Request: models.ReviewRequest{RepoFullName: "acme/api", PRNumber: 8},
		Verdict: gate.Verdict{
			Kind:      models.VerdictBlocked,
			Evidence:  "reference review confirmed the compile failure.",
			FixAdvice: "add the missing semicolon on line 12",
			Errors: []models.CompileError{
				{File: "main.c", Line: 12, Type: "SyntaxError", Message: "missing semicolon"},
			},
		},
		Reference: reference.Result{OK: true, Source: "api", Summary: "This code will not compile."},
		Files: []models.ChangedFile{
			{Path: "main.c", Patch: "@@ -10,1 +10,3 @@\n old\n+int a = 1\n+use(a);"},
		},
	}
	md, findings := Synthesize(in)

	assert.Contains(t, md, "## Compile Blockers")
	assert.Contains(t, md, "`main.c:12` **SyntaxError**: missing semicolon")
	assert.Contains(t, md, "add the missing semicolon on line 12")
	assert.NotContains(t, md, "## Deterministic Checks")
	assert.NotContains(t, md, "## Semantic Review")

	require.Len(t, findings, 1)
	assert.Equal(t, models.SeverityCritical, findings[0].Severity)
	assert.Equal(t, models.ConfidenceHigh, findings[0].Confidence)
}

func TestSynthesize_BlockedSnippetFallsBackToPatch(t *testing.T) {
	in := Input{
		Request: models.ReviewRequest{RepoFullName: "acme/api", PRNumber: 8},
		Verdict: gate.Verdict{
			Kind:   models.VerdictBlocked,
			Errors: []models.CompileError{{File: "main.c", Line: 11, Type: "SyntaxError", Message: "missing semicolon"}},
		},
		Files: []models.ChangedFile{
			{Path: "main.c", Patch: "@@ -10,1 +10,3 @@\n old\n+int a = 1\n+use(a);"},
		},
	}
	md, _ := Synthesize(in)
	assert.Contains(t, md, ">>   11 | int a = 1")
}

func TestSynthesize_DegradedReferenceExplained(t *testing.T) {
	in := fullInput()
	in.Reference = reference.Result{FailureReason: "api: 503; discussion: no reviewer comments"}
	md, _ := Synthesize(in)
	assert.Contains(t, md, "External reference unavailable: api: 503; discussion: no reviewer comments")
}

func TestSynthesize_SemanticDegradationExplained(t *testing.T) {
	in := fullInput()
	in.Semantic = nil
	in.SemanticFailure = "attempts exhausted"
	md, findings := Synthesize(in)
	assert.Contains(t, md, "Semantic review degraded: attempts exhausted")
	assert.Len(t, findings, 2)
}

func TestSynthesize_DedupAcrossSources(t *testing.T) {
	in := fullInput()
	in.Semantic = append(in.Semantic, models.Finding{
		File: "a.c", Line: 3, Severity: models.SeverityHigh, Category: models.CategoryBug,
		Title: "Division by literal zero", Provenance: models.ProvenanceSemantic, Confidence: models.ConfidenceLow,
	})
	_, findings := Synthesize(in)
	count := 0
	for _, f := range findings {
		if f.Title == "Division by literal zero" {
			count++
			assert.Equal(t, models.ConfidenceHigh, f.Confidence)
			assert.Equal(t, models.ProvenanceDeterministic, f.Provenance)
		}
	}
	assert.Equal(t, 1, count)
}

func TestSynthesize_SnippetMarksLine(t *testing.T) {
	md, _ := Synthesize(fullInput())
	assert.Contains(t, md, ">>    3 |")
	assert.Contains(t, md, "x = 1 / 0;")
}

func TestSynthesize_SkippedDetectorsNoted(t *testing.T) {
	in := fullInput()
	in.Skipped = []string{"infinite-loop on a.c: detector panicked: bad pattern"}
	md, _ := Synthesize(in)
	assert.Contains(t, md, "Skipped detector: infinite-loop on a.c")
}
