package detect

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewd/internal/models"
)

func runOn(t *testing.T, files ...File) Result {
	t.Helper()
	return NewEngine(nil).Run(context.Background(), files)
}

func TestDivideByZeroLiteral(t *testing.T) {
	res := runOn(t, File{Path: "calc.c", Lang: LangC, Content: "int f() {\n  int x = 10 / 0;\n  return x;\n}"})
	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, "calc.c", f.File)
	assert.Equal(t, 2, f.Line)
	assert.Equal(t, models.SeverityHigh, f.Severity)
	assert.Equal(t, models.CategoryBug, f.Category)
	assert.Equal(t, models.ConfidenceHigh, f.Confidence)
	assert.Equal(t, models.ProvenanceDeterministic, f.Provenance)
}

func TestDivideByVariableNotFlagged(t *testing.T) {
	res := runOn(t, File{Path: "calc.c", Lang: LangC, Content: "int x = 10 / y;"})
	assert.Empty(t, res.Findings)
}

func TestDivideByZeroSkipsOtherLiterals(t *testing.T) {
	content := "a = 1 / 0.5;\nb = 2 / 01;\nc = 3 / 0x10;\n// d = 4 / 0;\ne = 5 % 0;"
	res := runOn(t, File{Path: "m.js", Lang: LangJavaScript, Content: content})
	require.Len(t, res.Findings, 1)
	assert.Equal(t, 5, res.Findings[0].Line)
}

func TestInfiniteLoopBareFor(t *testing.T) {
	res := runOn(t, File{Path: "loop.go", Lang: LangGo, Content: "func run() {\n\tfor {}\n}"})
	require.Len(t, res.Findings, 1)
	assert.Equal(t, 2, res.Findings[0].Line)
	assert.Equal(t, models.SeverityMedium, res.Findings[0].Severity)
	assert.Equal(t, models.ConfidenceMedium, res.Findings[0].Confidence)
}

func TestInfiniteLoopWhileTrue(t *testing.T) {
	res := runOn(t, File{Path: "loop.c", Lang: LangC, Content: "while (true) {\n  work();\n}"})
	require.Len(t, res.Findings, 1)
	assert.Equal(t, 1, res.Findings[0].Line)
}

func TestLoopWithBreakNotFlagged(t *testing.T) {
	content := "while (true) {\n  if (done) {\n    break;\n  }\n  work();\n}"
	res := runOn(t, File{Path: "loop.c", Lang: LangC, Content: content})
	assert.Empty(t, res.Findings)
}

func TestConstantCondition(t *testing.T) {
	res := runOn(t, File{Path: "cond.java", Lang: LangJava, Content: "if (1 == 2) {\n  a();\n}\nif (flag) {\n  b();\n}"})
	require.Len(t, res.Findings, 1)
	assert.Equal(t, 1, res.Findings[0].Line)
	assert.Equal(t, models.SeverityHigh, res.Findings[0].Severity)
}

func TestUnreachableAfterReturn(t *testing.T) {
	content := "int f() {\n  return 1;\n  cleanup();\n}"
	res := runOn(t, File{Path: "r.c", Lang: LangC, Content: content})
	require.Len(t, res.Findings, 1)
	assert.Equal(t, 3, res.Findings[0].Line)
	assert.Contains(t, res.Findings[0].Title, "Unreachable")
}

func TestReturnBeforeCloserNotFlagged(t *testing.T) {
	content := "int f() {\n  return 1;\n}"
	res := runOn(t, File{Path: "r.c", Lang: LangC, Content: content})
	assert.Empty(t, res.Findings)
}

func TestResourceLeakPythonOpen(t *testing.T) {
	res := runOn(t, File{Path: "io.py", Lang: LangPython, Content: "f = open('data.txt')\ndata = f.read()"})
	require.Len(t, res.Findings, 1)
	assert.Equal(t, models.SeverityMedium, res.Findings[0].Severity)
	assert.Contains(t, res.Findings[0].Title, "resource leak")
}

func TestResourceLeakSuppressedByClose(t *testing.T) {
	res := runOn(t, File{Path: "io.py", Lang: LangPython, Content: "f = open('data.txt')\ndata = f.read()\nf.close()"})
	assert.Empty(t, res.Findings)
}

func TestPatchLinesScanOnlyAdditions(t *testing.T) {
	patch := "@@ -1,3 +1,4 @@\n context\n-old = 10 / 0;\n+fine = 10 / y;\n+bad = 10 / 0;\n context"
	res := runOn(t, File{Path: "p.c", Lang: LangC, Patch: patch})
	require.Len(t, res.Findings, 1)
	assert.Equal(t, 3, res.Findings[0].Line)
}

func TestAddedLinesNumbering(t *testing.T) {
	patch := "@@ -10,2 +12,4 @@\n ctx\n+first\n-gone\n+second\n ctx2\n@@ -30,1 +40,2 @@\n+third"
	lines := AddedLines(patch)
	require.Len(t, lines, 3)
	assert.Equal(t, AddedLine{Number: 13, Text: "first"}, lines[0])
	assert.Equal(t, AddedLine{Number: 14, Text: "second"}, lines[1])
	assert.Equal(t, AddedLine{Number: 40, Text: "third"}, lines[2])
}

func TestDedupKeepsHighestConfidence(t *testing.T) {
	in := []models.Finding{
		{File: "a.c", Line: 3, Category: models.CategoryBug, Confidence: models.ConfidenceLow, Title: "one"},
		{File: "a.c", Line: 3, Category: models.CategoryBug, Confidence: models.ConfidenceHigh, Title: "two"},
		{File: "a.c", Line: 4, Category: models.CategoryBug, Confidence: models.ConfidenceLow, Title: "three"},
	}
	out := dedupByLocation(in)
	require.Len(t, out, 2)
	assert.Equal(t, "two", out[0].Title)
}

func TestPanickingDetectorIsolated(t *testing.T) {
	e := NewEngine(nil).WithDetectors([]Detector{
		{Name: "boom", Run: func(File, []AddedLine) []models.Finding { panic("bad pattern") }},
		{Name: FamilyDivideByZero, Run: detectDivideByZero},
	})
	res := e.Run(context.Background(), []File{{Path: "x.c", Lang: LangC, Content: "y = 1 / 0;"}})
	require.Len(t, res.Findings, 1)
	require.Len(t, res.Skipped, 1)
	assert.Contains(t, res.Skipped[0], "boom")
}

func TestRunIsDeterministic(t *testing.T) {
	files := []File{
		{Path: "b.c", Lang: LangC, Content: "x = 1 / 0;\nwhile (true) {\n}"},
		{Path: "a.py", Lang: LangPython, Content: "f = open('x')\nif True:\n    pass"},
	}
	first := runOn(t, files...)
	second := runOn(t, files...)
	assert.Equal(t, first.Findings, second.Findings)
	require.NotEmpty(t, first.Findings)
	assert.Equal(t, "a.py", first.Findings[0].File)
}

func TestRulesetDisablesFamily(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("disabled:\n  - infinite-loop\n"), 0o644))

	rs, err := LoadRuleset(path)
	require.NoError(t, err)
	e := NewEngine(nil)
	e.WithDetectors(rs.Apply(BuiltinDetectors()))
	res := e.Run(context.Background(), []File{{Path: "l.go", Lang: LangGo, Content: "for {}"}})
	assert.Empty(t, res.Findings)
}

func TestRulesetExtraLoopPattern(t *testing.T) {
	rs := &Ruleset{ExtraLoopPatterns: []string{`\buntil\s+false\b`}}
	e := NewEngine(nil).WithDetectors(rs.Apply(BuiltinDetectors()))
	res := e.Run(context.Background(), []File{{Path: "job.rb", Lang: LangRuby, Content: "until false\n  work\nend"}})
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "Possible infinite loop", res.Findings[0].Title)
}

func TestLoadRulesetMissingFile(t *testing.T) {
	rs, err := LoadRuleset("/nonexistent/rules.yaml")
	require.NoError(t, err)
	assert.Nil(t, rs)
}

func TestLoadRulesetBadPattern(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("extra_loop_patterns:\n  - '['\n"), 0o644))
	_, err := LoadRuleset(path)
	assert.Error(t, err)
}

func TestLanguageOf(t *testing.T) {
	assert.Equal(t, LangPython, LanguageOf("src/app.py"))
	assert.Equal(t, LangGo, LanguageOf("main.go"))
	assert.Equal(t, LangCPP, LanguageOf("lib/vec.HPP"))
	assert.Equal(t, LangUnknown, LanguageOf("README"))
}

func TestPrimaryLanguage(t *testing.T) {
	assert.Equal(t, "python", PrimaryLanguage([]string{"a.py", "b.py", "c.go"}))
	assert.Equal(t, "mixed", PrimaryLanguage([]string{"a.py", "b.go"}))
	assert.Equal(t, "mixed", PrimaryLanguage([]string{"README", "LICENSE"}))
}
