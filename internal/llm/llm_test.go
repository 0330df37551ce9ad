package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewd/internal/models"
)

func TestParseAssessment_Valid(t *testing.T) {
	text := `{"compilable": false, "errors": [{"file": "main.cpp", "line": 7, "type": "SyntaxError", "message": "missing semicolon"}], "fix_advice": "add the missing semicolon"}`

	a, err := ParseAssessment(text)
	require.NoError(t, err)
	assert.False(t, a.Compilable)
	require.Len(t, a.Errors, 1)
	assert.Equal(t, "main.cpp", a.Errors[0].File)
	assert.Equal(t, 7, a.Errors[0].Line)
	assert.Equal(t, "SyntaxError", a.Errors[0].Type)
}

func TestParseAssessment_WrappedInProse(t *testing.T) {
	text := "Here is my assessment:\n```json\n{\"compilable\": true, \"errors\": []}\n```\nLet me know."

	a, err := ParseAssessment(text)
	require.NoError(t, err)
	assert.True(t, a.Compilable)
	assert.Empty(t, a.Errors)
}

func TestParseAssessment_MissingCompilableField(t *testing.T) {
	_, err := ParseAssessment(`{"errors": []}`)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestParseAssessment_NotJSON(t *testing.T) {
	_, err := ParseAssessment("I think it compiles fine.")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestParseAssessment_UnknownErrorTypeCoerced(t *testing.T) {
	text := `{"compilable": false, "errors": [{"file": "a.go", "line": 1, "type": "LinkerError", "message": "boom"}]}`
	a, err := ParseAssessment(text)
	require.NoError(t, err)
	require.Len(t, a.Errors, 1)
	assert.Equal(t, "CompileError", a.Errors[0].Type)
}

func TestParseAssessment_BlockedWithoutErrorsGetsPlaceholder(t *testing.T) {
	a, err := ParseAssessment(`{"compilable": false, "errors": []}`)
	require.NoError(t, err)
	require.Len(t, a.Errors, 1)
	assert.Equal(t, "CompileError", a.Errors[0].Type)
}

func TestParseAssessment_CapsErrors(t *testing.T) {
	text := `{"compilable": false, "errors": [`
	for i := 0; i < 15; i++ {
		if i > 0 {
			text += ","
		}
		text += `{"file": "a.go", "line": 1, "type": "SyntaxError", "message": "m"}`
	}
	text += `]}`

	a, err := ParseAssessment(text)
	require.NoError(t, err)
	assert.Len(t, a.Errors, 10)
}

func TestParseFindings_Valid(t *testing.T) {
	text := `[{"file": "svc/handler.go", "line": 42, "severity": "high", "category": "Bug", "title": "Nil map write", "detail": "m is never initialized", "suggestion": "make the map"}]`

	findings, err := ParseFindings(text, models.ProvenanceSemantic)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, "svc/handler.go", f.File)
	assert.Equal(t, 42, f.Line)
	assert.Equal(t, models.SeverityHigh, f.Severity)
	assert.Equal(t, models.CategoryBug, f.Category)
	assert.Equal(t, models.ProvenanceSemantic, f.Provenance)
	assert.Equal(t, models.ConfidenceMedium, f.Confidence)
}

func TestParseFindings_LooseEnumsNormalized(t *testing.T) {
	text := `[{"file": "a.go", "line": 1, "severity": "BLOCKER", "category": "maintainability", "title": "t", "detail": "d"}]`

	findings, err := ParseFindings(text, models.ProvenanceSemantic)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.SeverityMedium, findings[0].Severity)
	assert.Equal(t, models.CategoryStyle, findings[0].Category)
}

func TestParseFindings_SkipsUntitled(t *testing.T) {
	text := `[{"file": "a.go", "line": 1, "severity": "low", "category": "Style", "title": "  ", "detail": "d"}, {"file": "b.go", "line": 2, "severity": "low", "category": "Style", "title": "ok", "detail": "d"}]`

	findings, err := ParseFindings(text, models.ProvenanceSemantic)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "ok", findings[0].Title)
}

func TestParseFindings_NotAnArray(t *testing.T) {
	_, err := ParseFindings(`{"findings": "none"}`, models.ProvenanceSemantic)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}
