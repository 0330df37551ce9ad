package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joescharf/reviewd/internal/models"
)

const reviewSystemPrompt = `You are a senior code reviewer. Analyze the pull request diff and produce findings.

Rules:
- Output MUST be a single JSON array and nothing else.
- Each element: {"file": string|null, "line": number|null, "severity": "critical"|"high"|"medium"|"low", "category": "Bug"|"Performance"|"Security"|"Architecture"|"Style", "title": string, "detail": string, "suggestion": string}
- Do not repeat issues already listed under KNOWN_FINDINGS; those are covered by deterministic tooling.
- Report only issues you can justify from the diff. Give the reason in detail.
- Use null for file or line when they cannot be determined.`

const maxSemanticFindings = 20

// ReviewChanges runs the open-ended semantic pass and returns normalized
// findings with provenance "semantic".
func (c *Client) ReviewChanges(ctx context.Context, diff string, known []models.Finding, requirements string) ([]models.Finding, error) {
	var sb strings.Builder
	sb.WriteString("PR_DIFF:\n")
	sb.WriteString(truncate(diff, 12000))
	if len(known) > 0 {
		knownJSON, err := json.Marshal(known)
		if err != nil {
			return nil, fmt.Errorf("marshal known findings: %w", err)
		}
		sb.WriteString("\n\nKNOWN_FINDINGS(JSON):\n")
		sb.Write(knownJSON)
	}
	if requirements != "" {
		sb.WriteString("\n\nREQUIREMENTS:\n")
		sb.WriteString(truncate(requirements, 4000))
	}

	text, err := c.Complete(ctx, ProfileSemantic, reviewSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}
	return ParseFindings(text, models.ProvenanceSemantic)
}

// ParseFindings validates a JSON findings array from a model response and
// normalizes loose enum values conservatively. A response that is not a JSON
// array (directly or wrapped in prose) is a ParseError.
func ParseFindings(text string, prov models.Provenance) ([]models.Finding, error) {
	arr, ok := extractJSONArray(text)
	if !ok {
		return nil, &ParseError{Reason: "no JSON array in response"}
	}

	var raw []struct {
		File       string `json:"file"`
		Line       int    `json:"line"`
		Severity   string `json:"severity"`
		Category   string `json:"category"`
		Title      string `json:"title"`
		Detail     string `json:"detail"`
		Suggestion string `json:"suggestion"`
	}
	if err := json.Unmarshal([]byte(arr), &raw); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	findings := make([]models.Finding, 0, len(raw))
	for _, r := range raw {
		if len(findings) >= maxSemanticFindings {
			break
		}
		if strings.TrimSpace(r.Title) == "" {
			continue
		}
		line := r.Line
		if line < 0 {
			line = 0
		}
		findings = append(findings, models.Finding{
			File:       strings.TrimSpace(r.File),
			Line:       line,
			Severity:   NormalizeSeverity(r.Severity),
			Category:   NormalizeCategory(r.Category),
			Title:      strings.TrimSpace(r.Title),
			Detail:     strings.TrimSpace(r.Detail),
			Suggestion: strings.TrimSpace(r.Suggestion),
			Provenance: prov,
			Confidence: models.ConfidenceMedium,
		})
	}
	return findings, nil
}

// NormalizeSeverity maps a loose severity string onto the enum, defaulting to
// medium.
func NormalizeSeverity(s string) models.Severity {
	switch models.Severity(strings.ToLower(strings.TrimSpace(s))) {
	case models.SeverityCritical:
		return models.SeverityCritical
	case models.SeverityHigh:
		return models.SeverityHigh
	case models.SeverityLow:
		return models.SeverityLow
	default:
		return models.SeverityMedium
	}
}

// NormalizeCategory maps a loose category string onto the enum, defaulting to
// Bug.
func NormalizeCategory(s string) models.Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "performance":
		return models.CategoryPerformance
	case "security":
		return models.CategorySecurity
	case "architecture", "design", "dependency":
		return models.CategoryArchitecture
	case "style", "maintainability", "docs":
		return models.CategoryStyle
	default:
		return models.CategoryBug
	}
}

// extractJSONArray returns the first balanced [...] block in text.
func extractJSONArray(text string) (string, bool) {
	start := strings.Index(text, "[")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
