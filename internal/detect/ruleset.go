package detect

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joescharf/reviewd/internal/models"
	"gopkg.in/yaml.v3"
)

// Ruleset tunes the detector set from a YAML file. Families can be
// disabled outright and the loop detector can learn extra patterns for
// in-house DSLs.
type Ruleset struct {
	Disabled          []string `yaml:"disabled"`
	ExtraLoopPatterns []string `yaml:"extra_loop_patterns"`
}

// LoadRuleset reads a ruleset file. A missing path is not an error; it
// yields a nil ruleset meaning "use the defaults".
func LoadRuleset(path string) (*Ruleset, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading ruleset: %w", err)
	}
	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parsing ruleset: %w", err)
	}
	for _, p := range rs.ExtraLoopPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("ruleset loop pattern %q: %w", p, err)
		}
	}
	return &rs, nil
}

// Apply filters and extends the detector set according to the ruleset.
// A nil ruleset returns the input unchanged.
func (rs *Ruleset) Apply(ds []Detector) []Detector {
	if rs == nil {
		return ds
	}
	disabled := map[string]bool{}
	for _, name := range rs.Disabled {
		disabled[name] = true
	}
	var extra []*regexp.Regexp
	for _, p := range rs.ExtraLoopPatterns {
		extra = append(extra, regexp.MustCompile(p))
	}
	var out []Detector
	for _, d := range ds {
		if disabled[d.Name] {
			continue
		}
		if d.Name == FamilyInfiniteLoop && len(extra) > 0 {
			d = withExtraLoopPatterns(d, extra)
		}
		out = append(out, d)
	}
	return out
}

func withExtraLoopPatterns(base Detector, extra []*regexp.Regexp) Detector {
	orig := base.Run
	base.Run = func(f File, lines []AddedLine) []models.Finding {
		out := orig(f, lines)
		for _, ln := range lines {
			if isCommentLine(ln.Text) {
				continue
			}
			for _, p := range extra {
				if !p.MatchString(ln.Text) {
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
					Detail:      fmt.Sprintf("Loop matches ruleset pattern %q: %s", p.String(), strings.TrimSpace(ln.Text)),
					Suggestion:  "Add a termination condition or an explicit break.",
				})
				break
			}
		}
		return out
	}
	return base
}
