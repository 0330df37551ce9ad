package detect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/joescharf/reviewd/internal/models"
)

// Family names the built-in detector families. The family name lands in
// the finding title so reports can group deterministic findings.
const (
	FamilyDivideByZero  = "divide-by-zero"
	FamilyInfiniteLoop  = "infinite-loop"
	FamilyConstantCond  = "constant-condition"
	FamilyUnreachable   = "unreachable-code"
	FamilyResourceLeak  = "resource-leak"
)

// Detector is one deterministic check run against a changed file.
type Detector struct {
	Name string
	Run  func(f File, lines []AddedLine) []models.Finding
}

// BuiltinDetectors returns the standard detector families.
func BuiltinDetectors() []Detector {
	return []Detector{
		{Name: FamilyDivideByZero, Run: detectDivideByZero},
		{Name: FamilyInfiniteLoop, Run: detectInfiniteLoop},
		{Name: FamilyConstantCond, Run: detectConstantCondition},
		{Name: FamilyUnreachable, Run: detectUnreachable},
		{Name: FamilyResourceLeak, Run: detectResourceLeak},
	}
}

// -- divide by zero ----------------------------------------------------

// detectDivideByZero flags division or modulo by a literal zero. A zero
// followed by a digit, dot, or radix prefix is a different literal and
// is skipped, as are comment lines.
func detectDivideByZero(f File, lines []AddedLine) []models.Finding {
	var out []models.Finding
	for _, ln := range lines {
		if isCommentLine(ln.Text) {
			continue
		}
		if !lineDividesByZero(ln.Text) {
			continue
		}
		out = append(out, models.Finding{
			File:        f.Path,
			Line:        ln.Number,
			Severity:    models.SeverityHigh,
			Category:    models.CategoryBug,
			Provenance:  models.ProvenanceDeterministic,
			Confidence:  models.ConfidenceHigh,
			Title:       "Division by literal zero",
			Detail:      fmt.Sprintf("Line divides or takes modulo by a literal zero: %s", strings.TrimSpace(ln.Text)),
			Suggestion:  "Guard the denominator or remove the constant expression.",
		})
	}
	return out
}

func lineDividesByZero(text string) bool {
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '/' && c != '%' {
			continue
		}
		// skip comment and format-verb lookalikes
		if i+1 < len(text) && (text[i+1] == '/' || text[i+1] == '*') {
			i++
			continue
		}
		if i > 0 && (text[i-1] == '/' || text[i-1] == '*') {
			continue
		}
		j := i + 1
		for j < len(text) && (text[j] == ' ' || text[j] == '\t') {
			j++
		}
		if j >= len(text) || text[j] != '0' {
			continue
		}
		k := j + 1
		if k < len(text) {
			next := text[k]
			if next == '.' || next == 'x' || next == 'X' || next == 'b' || next == 'B' || (next >= '0' && next <= '9') {
				continue
			}
		}
		return true
	}
	return false
}

// -- infinite loop -----------------------------------------------------

var loopPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bwhile\s*\(\s*(true|1)\s*\)`),
	regexp.MustCompile(`\bwhile\s+True\s*:`),
	regexp.MustCompile(`\bfor\s*\(\s*;\s*;\s*\)`),
	regexp.MustCompile(`^\s*for\s*\{`),
	regexp.MustCompile(`^\s*loop\s*\{`),
}

var loopExitPattern = regexp.MustCompile(`\b(break|return|goto|panic|throw|raise|os\.Exit|sys\.exit|exit)\b`)

// detectInfiniteLoop flags loops with a constant-true condition and no
// visible exit in the lines that follow. It inspects a bounded window so
// a break deep in a large loop body still counts.
func detectInfiniteLoop(f File, lines []AddedLine) []models.Finding {
	const window = 40
	var out []models.Finding
	for i, ln := range lines {
		if isCommentLine(ln.Text) {
			continue
		}
		matched := false
		for _, p := range loopPatterns {
			if p.MatchString(ln.Text) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		hasExit := false
		for j := i + 1; j < len(lines) && j <= i+window; j++ {
			if lines[j].Number != lines[j-1].Number+1 {
				break
			}
			if loopExitPattern.MatchString(lines[j].Text) {
				hasExit = true
				break
			}
		}
		if hasExit {
			continue
		}
		out = append(out, models.Finding{
			File:        f.Path,
			Line:        ln.Number,
			Severity:    models.SeverityMedium,
			Category:    models.CategoryBug,
			Provenance:  models.ProvenanceDeterministic,
			Confidence:  models.ConfidenceMedium,
			Title:       "Possible infinite loop",
			Detail:      fmt.Sprintf("Loop has a constant-true condition and no break, return, or exit nearby: %s", strings.TrimSpace(ln.Text)),
			Suggestion:  "Add a termination condition or an explicit break.",
		})
	}
	return out
}

// -- constant condition ------------------------------------------------

var constCondPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bif\s*\(\s*(true|false)\s*\)`),
	regexp.MustCompile(`\bif\s+(True|False)\s*:`),
	regexp.MustCompile(`\bif\s*\(\s*\d+\s*(==|!=|<=|>=|<|>)\s*\d+\s*\)`),
}

func detectConstantCondition(f File, lines []AddedLine) []models.Finding {
	var out []models.Finding
	for _, ln := range lines {
		if isCommentLine(ln.Text) {
			continue
		}
		matched := false
		for _, p := range constCondPatterns {
			if p.MatchString(ln.Text) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		out = append(out, models.Finding{
			File:        f.Path,
			Line:        ln.Number,
			Severity:    models.SeverityHigh,
			Category:    models.CategoryBug,
			Provenance:  models.ProvenanceDeterministic,
			Confidence:  models.ConfidenceHigh,
			Title:       "Condition is always constant",
			Detail:      fmt.Sprintf("Branch condition evaluates to a constant: %s", strings.TrimSpace(ln.Text)),
			Suggestion:  "Remove the dead branch or use the real condition.",
		})
	}
	return out
}

// -- unreachable code --------------------------------------------------

var terminalStmt = regexp.MustCompile(`^\s*(return\b[^;]*;?|return$|throw\s.+;?|raise\s.+|raise$|panic\(.*\)|break;?|continue;?|os\.Exit\(.*\)|sys\.exit\(.*\))\s*$`)

var blockCloser = regexp.MustCompile(`^\s*(\}|\)|case\b|default\s*:|else\b|elif\b|except\b|finally\b|end\b)`)

// detectUnreachable flags a statement that directly follows an
// unconditional return, raise, throw, or break at the same indentation.
func detectUnreachable(f File, lines []AddedLine) []models.Finding {
	var out []models.Finding
	for i := 0; i < len(lines)-1; i++ {
		cur, next := lines[i], lines[i+1]
		if next.Number != cur.Number+1 {
			continue
		}
		if !terminalStmt.MatchString(cur.Text) {
			continue
		}
		trimmed := strings.TrimSpace(next.Text)
		if trimmed == "" || isCommentLine(next.Text) || blockCloser.MatchString(next.Text) {
			continue
		}
		if indentOf(next.Text) < indentOf(cur.Text) {
			continue
		}
		out = append(out, models.Finding{
			File:        f.Path,
			Line:        next.Number,
			Severity:    models.SeverityHigh,
			Category:    models.CategoryBug,
			Provenance:  models.ProvenanceDeterministic,
			Confidence:  models.ConfidenceMedium,
			Title:       "Unreachable code after terminal statement",
			Detail:      fmt.Sprintf("Statement follows %q and can never execute: %s", strings.TrimSpace(cur.Text), trimmed),
			Suggestion:  "Delete the unreachable statement or restructure the control flow.",
		})
	}
	return out
}

func indentOf(s string) int {
	n := 0
	for _, r := range s {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

// -- resource leak -----------------------------------------------------

type leakRule struct {
	lang    Language
	acquire *regexp.Regexp
	release *regexp.Regexp
}

var leakRules = []leakRule{
	{LangPython, regexp.MustCompile(`(?:^|[^.\w])open\s*\(`), regexp.MustCompile(`(?m)\.close\(\)|^\s*with\b`)},
	{LangGo, regexp.MustCompile(`\bos\.(Open|Create|OpenFile)\s*\(`), regexp.MustCompile(`defer\b.*Close|\.Close\(\)`)},
	{LangC, regexp.MustCompile(`\bfopen\s*\(`), regexp.MustCompile(`\bfclose\s*\(`)},
	{LangCPP, regexp.MustCompile(`\bfopen\s*\(|new\s+\w*[Ss]tream`), regexp.MustCompile(`\bfclose\s*\(|\.close\(\)`)},
	{LangJava, regexp.MustCompile(`new\s+File(Input|Output)Stream\s*\(|new\s+\w*Reader\s*\(`), regexp.MustCompile(`\.close\(\)|try\s*\(`)},
	{LangJavaScript, regexp.MustCompile(`fs\.openSync\s*\(|createReadStream\s*\(|createWriteStream\s*\(`), regexp.MustCompile(`\.close\(|closeSync\(|\.destroy\(|\.end\(`)},
}

// detectResourceLeak flags handle acquisitions with no matching release
// anywhere in the scanned lines. Scope here is the added lines, which is
// deliberately coarse: a release that already exists outside the diff
// suppresses nothing, so the severity stays medium.
func detectResourceLeak(f File, lines []AddedLine) []models.Finding {
	var rules []leakRule
	for _, r := range leakRules {
		if r.lang == f.Lang {
			rules = append(rules, r)
		}
	}
	if len(rules) == 0 {
		return nil
	}
	var all strings.Builder
	for _, ln := range lines {
		all.WriteString(ln.Text)
		all.WriteByte('\n')
	}
	body := all.String()
	var out []models.Finding
	for _, rule := range rules {
		if rule.release.MatchString(body) {
			continue
		}
		for _, ln := range lines {
			if isCommentLine(ln.Text) {
				continue
			}
			if f.Lang == LangPython && strings.Contains(ln.Text, "with ") {
				continue
			}
			if !rule.acquire.MatchString(ln.Text) {
				continue
			}
			out = append(out, models.Finding{
				File:        f.Path,
				Line:        ln.Number,
				Severity:    models.SeverityMedium,
				Category:    models.CategoryBug,
				Provenance:  models.ProvenanceDeterministic,
				Confidence:  models.ConfidenceMedium,
				Title:       "Possible resource leak",
				Detail:      fmt.Sprintf("Handle acquired without a visible release in the change: %s", strings.TrimSpace(ln.Text)),
				Suggestion:  "Release the handle on every path, or use the language's scoped-resource construct.",
			})
		}
	}
	return out
}

func isCommentLine(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, "//") || strings.HasPrefix(t, "#") || strings.HasPrefix(t, "*") || strings.HasPrefix(t, "/*") || strings.HasPrefix(t, "--")
}
