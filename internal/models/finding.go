package models

import (
	"fmt"
	"sort"
	"strings"
)

// Severity represents the risk level of a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// SeverityRank returns a numeric rank for sorting (lower = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 2
	}
}

// Category represents the kind of defect or risk a finding describes.
type Category string

const (
	CategoryBug          Category = "Bug"
	CategoryPerformance  Category = "Performance"
	CategorySecurity     Category = "Security"
	CategoryArchitecture Category = "Architecture"
	CategoryStyle        Category = "Style"
)

// Provenance identifies which analysis source produced a finding.
type Provenance string

const (
	ProvenanceDeterministic Provenance = "deterministic"
	ProvenanceSemantic      Provenance = "semantic"
	ProvenanceReference     Provenance = "external-reference"
)

// Confidence expresses how reliable a finding is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ConfidenceRank returns a numeric rank (higher = more confident).
func ConfidenceRank(c Confidence) int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// Finding is one normalized defect/risk record. Findings are value objects:
// once appended to a review they are never mutated, only filtered and sorted
// during synthesis. An empty File means the finding is repo-level.
type Finding struct {
	File       string     `json:"file,omitempty"`
	Line       int        `json:"line,omitempty"`
	Severity   Severity   `json:"severity"`
	Category   Category   `json:"category"`
	Title      string     `json:"title"`
	Detail     string     `json:"detail"`
	Suggestion string     `json:"suggestion,omitempty"`
	Provenance Provenance `json:"provenance"`
	Confidence Confidence `json:"confidence"`
}

// DedupKey identifies duplicates across sources: two findings with the same
// file, line, category, and title describe the same issue.
func (f Finding) DedupKey() string {
	file := strings.ToLower(strings.ReplaceAll(f.File, "\\", "/"))
	title := strings.ToLower(strings.TrimSpace(f.Title))
	return fmt.Sprintf("%s:%d:%s:%s", file, f.Line, f.Category, title)
}

// Location renders file:line for display, or a placeholder for repo-level findings.
func (f Finding) Location() string {
	if f.File == "" {
		return "(repo-level)"
	}
	if f.Line <= 0 {
		return f.File
	}
	return fmt.Sprintf("%s:%d", f.File, f.Line)
}

// Dedup collapses duplicate findings by DedupKey, keeping the
// highest-confidence instance. Order of first occurrence is preserved, so the
// merge result does not depend on which source completed first beyond the
// ordering of the input slice itself. Dedup is idempotent.
func Dedup(findings []Finding) []Finding {
	out := make([]Finding, 0, len(findings))
	index := make(map[string]int, len(findings))
	for _, f := range findings {
		k := f.DedupKey()
		if i, ok := index[k]; ok {
			if ConfidenceRank(f.Confidence) > ConfidenceRank(out[i].Confidence) {
				out[i] = f
			}
			continue
		}
		index[k] = len(out)
		out = append(out, f)
	}
	return out
}

// SortBySeverity orders findings by severity descending, then file, then line.
// The sort is stable so equal findings keep their insertion order.
func SortBySeverity(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if ra, rb := SeverityRank(a.Severity), SeverityRank(b.Severity); ra != rb {
			return ra < rb
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})
}
