package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joescharf/reviewd/internal/models"
)

// CompileAssessment is the schema-validated result of a compile-class check.
type CompileAssessment struct {
	Compilable bool                  `json:"compilable"`
	Errors     []models.CompileError `json:"errors"`
	FixAdvice  string                `json:"fix_advice"`
}

// ParseError reports a response that did not match the schema contract. The
// caller treats it as a conservative default (the gate fails open), never as
// a partially-parsed assessment.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "malformed response: " + e.Reason }

const maxCompileErrors = 10

var compileErrorTypes = map[string]bool{
	"SyntaxError":       true,
	"TypeError":         true,
	"CompileError":      true,
	"MissingDependency": true,
}

const compileSystemPrompt = `You are a universal multi-language compiler and type checker.
Given a pull request diff and partial file contents, decide whether the change would fail to compile or type-check.

Rules:
- Output MUST be a single JSON object and nothing else.
- Schema: {"compilable": boolean, "errors": [{"file": string, "line": number, "type": "SyntaxError"|"TypeError"|"CompileError"|"MissingDependency", "message": string}], "fix_advice": string}
- Only include deterministic compile-time errors that follow directly from the diff and content. No runtime speculation.
- If you are not certain, set compilable=true and return errors=[].
- Prefer SyntaxError/TypeError with exact file and line when possible; keep errors concise (max 10).
- If compilable=false, fix_advice must contain short actionable bullet lines.`

// compileFileContext is the bounded per-file payload sent to the model.
type compileFileContext struct {
	Path        string `json:"path"`
	Status      string `json:"status"`
	Patch       string `json:"patch"`
	ContentHead string `json:"content_head"`
}

// CheckCompile asks the compile-profile model whether the change compiles.
// Diff and file context are truncated to keep the call bounded.
func (c *Client) CheckCompile(ctx context.Context, diff string, files []models.ChangedFile) (*CompileAssessment, error) {
	compact := make([]compileFileContext, 0, len(files))
	for i, f := range files {
		if i >= 25 {
			break
		}
		compact = append(compact, compileFileContext{
			Path:   f.Path,
			Status: f.Status,
			Patch:  truncate(f.Patch, 2000),
		})
	}
	filesJSON, err := json.Marshal(compact)
	if err != nil {
		return nil, fmt.Errorf("marshal file context: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("PR_DIFF:\n")
	sb.WriteString(truncate(diff, 12000))
	sb.WriteString("\n\nFILES_CONTEXT(JSON):\n")
	sb.Write(filesJSON)

	text, err := c.Complete(ctx, ProfileCompile, compileSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}
	return ParseAssessment(text)
}

// ParseAssessment validates the model output against the assessment schema.
// It tolerates a leading/trailing prose wrapper by extracting the first JSON
// object, but rejects anything that does not validate afterwards.
func ParseAssessment(text string) (*CompileAssessment, error) {
	obj, ok := extractJSONObject(text)
	if !ok {
		return nil, &ParseError{Reason: "no JSON object in response"}
	}

	var raw struct {
		Compilable *bool `json:"compilable"`
		Errors     []struct {
			File    string `json:"file"`
			Line    int    `json:"line"`
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"errors"`
		FixAdvice string `json:"fix_advice"`
	}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if raw.Compilable == nil {
		return nil, &ParseError{Reason: "missing compilable field"}
	}

	out := &CompileAssessment{Compilable: *raw.Compilable, FixAdvice: strings.TrimSpace(raw.FixAdvice)}
	for _, e := range raw.Errors {
		if len(out.Errors) >= maxCompileErrors {
			break
		}
		typ := e.Type
		if !compileErrorTypes[typ] {
			typ = "CompileError"
		}
		line := e.Line
		if line < 0 {
			line = 0
		}
		if strings.TrimSpace(e.Message) == "" {
			continue
		}
		out.Errors = append(out.Errors, models.CompileError{
			File:    strings.TrimSpace(e.File),
			Line:    line,
			Type:    typ,
			Message: strings.TrimSpace(e.Message),
		})
	}
	if !out.Compilable && len(out.Errors) == 0 {
		out.Errors = append(out.Errors, models.CompileError{
			Type:    "CompileError",
			Message: "compile-level errors reported without file locations",
		})
	}
	return out, nil
}

// extractJSONObject returns the first balanced {...} block in text.
func extractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
