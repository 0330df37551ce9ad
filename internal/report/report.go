// Package report renders a finished review into markdown. Synthesis is
// a pure function of its input: the same review state always yields the
// same bytes, so a stored report and a re-rendered one never drift.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joescharf/reviewd/internal/detect"
	"github.com/joescharf/reviewd/internal/gate"
	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/reference"
)

// Input is everything synthesis needs from a pipeline run.
type Input struct {
	Request         models.ReviewRequest
	Verdict         gate.Verdict
	Reference       reference.Result
	Language        string
	Deterministic   []models.Finding
	Semantic        []models.Finding
	Skipped         []string
	SemanticFailure string
	Files           []models.ChangedFile
	Contents        map[string]string
}

// Synthesize renders the report and returns the final ordered finding
// list alongside it. For a blocked review the compile blockers are the
// only findings section; otherwise sections appear in a fixed order
// regardless of which analysis finished first.
func Synthesize(in Input) (string, []models.Finding) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Code Review: %s#%d\n\n", in.Request.RepoFullName, in.Request.PRNumber)
	if in.Language != "" {
		fmt.Fprintf(&b, "Primary language: %s\n\n", in.Language)
	}

	if in.Verdict.Blocked() {
		findings := in.Verdict.Findings()
		writeBlockedSection(&b, in, findings)
		writeReferenceSection(&b, in)
		writeDegradedNotes(&b, in.Verdict.Degraded)
		return b.String(), findings
	}

	fmt.Fprintf(&b, "Verdict: compilable. %s\n\n", in.Verdict.Evidence)

	merged := make([]models.Finding, 0, len(in.Deterministic)+len(in.Semantic))
	merged = append(merged, in.Deterministic...)
	merged = append(merged, in.Semantic...)
	merged = append(merged, in.Reference.Findings()...)
	merged = append(merged, in.Verdict.Degraded...)
	merged = models.Dedup(merged)
	models.SortBySeverity(merged)

	writeDeterministicSection(&b, in)
	writeSemanticSection(&b, in)
	writeArchitectureSection(&b, merged)
	writeReferenceSection(&b, in)
	writeDegradedNotes(&b, in.Verdict.Degraded)

	return b.String(), merged
}

func writeBlockedSection(b *strings.Builder, in Input, findings []models.Finding) {
	b.WriteString("Verdict: **blocked**. The change does not compile; detailed review was skipped.\n\n")
	b.WriteString("## Compile Blockers\n\n")
	if in.Verdict.Evidence != "" {
		fmt.Fprintf(b, "%s\n\n", in.Verdict.Evidence)
	}
	for _, f := range findings {
		fmt.Fprintf(b, "- `%s` **%s**: %s\n", f.Location(), f.Title, f.Detail)
		if snip := snippet(in, f.File, f.Line); snip != "" {
			b.WriteString(snip)
		}
	}
	if in.Verdict.FixAdvice != "" {
		fmt.Fprintf(b, "\n**Suggested fix:** %s\n", in.Verdict.FixAdvice)
	}
	b.WriteString("\n")
}

func writeDeterministicSection(b *strings.Builder, in Input) {
	b.WriteString("## Deterministic Checks\n\n")
	if len(in.Deterministic) == 0 {
		b.WriteString("No issues found.\n")
	} else {
		// group by title, preserving first-appearance order
		var order []string
		groups := map[string][]models.Finding{}
		for _, f := range in.Deterministic {
			if _, ok := groups[f.Title]; !ok {
				order = append(order, f.Title)
			}
			groups[f.Title] = append(groups[f.Title], f)
		}
		for _, title := range order {
			fmt.Fprintf(b, "### %s\n\n", title)
			fs := groups[title]
			sort.SliceStable(fs, func(i, j int) bool {
				if fs[i].File != fs[j].File {
					return fs[i].File < fs[j].File
				}
				return fs[i].Line < fs[j].Line
			})
			for _, f := range fs {
				fmt.Fprintf(b, "- `%s` (%s): %s\n", f.Location(), f.Severity, f.Detail)
				if snip := snippet(in, f.File, f.Line); snip != "" {
					b.WriteString(snip)
				}
			}
			b.WriteString("\n")
		}
	}
	for _, s := range in.Skipped {
		fmt.Fprintf(b, "\nSkipped detector: %s\n", s)
	}
	b.WriteString("\n")
}

func writeSemanticSection(b *strings.Builder, in Input) {
	b.WriteString("## Semantic Review\n\n")
	if in.SemanticFailure != "" {
		fmt.Fprintf(b, "Semantic review degraded: %s\n\n", in.SemanticFailure)
		return
	}
	if len(in.Semantic) == 0 {
		b.WriteString("No issues found.\n\n")
		return
	}
	fs := append([]models.Finding(nil), in.Semantic...)
	models.SortBySeverity(fs)
	for _, f := range fs {
		fmt.Fprintf(b, "- **%s** `%s` %s (%s)\n", f.Severity, f.Location(), f.Title, f.Category)
		if f.Detail != "" {
			fmt.Fprintf(b, "  %s\n", f.Detail)
		}
		if f.Suggestion != "" {
			fmt.Fprintf(b, "  Suggestion: %s\n", f.Suggestion)
		}
	}
	b.WriteString("\n")
}

func writeArchitectureSection(b *strings.Builder, merged []models.Finding) {
	var arch []models.Finding
	for _, f := range merged {
		if f.Category == models.CategoryArchitecture {
			arch = append(arch, f)
		}
	}
	if len(arch) == 0 {
		return
	}
	b.WriteString("## Architecture & Dependencies\n\n")
	for _, f := range arch {
		fmt.Fprintf(b, "- **%s** `%s` %s: %s\n", f.Severity, f.Location(), f.Title, f.Detail)
	}
	b.WriteString("\n")
}

func writeReferenceSection(b *strings.Builder, in Input) {
	b.WriteString("## External Reference\n\n")
	if !in.Reference.OK {
		reason := in.Reference.FailureReason
		if reason == "" {
			reason = "no source configured"
		}
		fmt.Fprintf(b, "External reference unavailable: %s\n\n", reason)
		return
	}
	fmt.Fprintf(b, "Source: %s\n\n", in.Reference.Source)
	if s := strings.TrimSpace(in.Reference.Summary); s != "" {
		fmt.Fprintf(b, "%s\n\n", excerpt(s, 1200))
	}
	for _, f := range in.Reference.Findings() {
		fmt.Fprintf(b, "- [%s] `%s` %s\n", f.Provenance, f.Location(), f.Title)
	}
	b.WriteString("\n")
}

func writeDegradedNotes(b *strings.Builder, degraded []models.Finding) {
	if len(degraded) == 0 {
		return
	}
	b.WriteString("## Notes\n\n")
	for _, f := range degraded {
		fmt.Fprintf(b, "- %s: %s\n", f.Title, f.Detail)
	}
	b.WriteString("\n")
}

// snippet renders a few lines of context around a finding, marking the
// flagged line with ">>". Hydrated content is preferred; when a blocked
// review never fetched contents, the diff's added lines stand in.
func snippet(in Input, file string, line int) string {
	if file == "" || line <= 0 {
		return ""
	}
	if content, ok := in.Contents[file]; ok && content != "" {
		return renderWindow(strings.Split(content, "\n"), line)
	}
	for _, cf := range in.Files {
		if cf.Path != file || cf.Patch == "" {
			continue
		}
		added := detect.AddedLines(cf.Patch)
		for _, al := range added {
			if al.Number == line {
				return fmt.Sprintf("  ```\n  >> %4d | %s\n  ```\n", line, al.Text)
			}
		}
	}
	return ""
}

func renderWindow(lines []string, line int) string {
	if line > len(lines) {
		return ""
	}
	start := line - 3
	if start < 1 {
		start = 1
	}
	end := line + 2
	if end > len(lines) {
		end = len(lines)
	}
	var b strings.Builder
	b.WriteString("  ```\n")
	for n := start; n <= end; n++ {
		marker := "  "
		if n == line {
			marker = ">>"
		}
		fmt.Fprintf(&b, "  %s %4d | %s\n", marker, n, lines[n-1])
	}
	b.WriteString("  ```\n")
	return b.String()
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
