// Package detect runs deterministic pattern checks against the changed
// files of a pull request. Detectors are pure functions over diff lines,
// so two runs over the same input always produce the same findings.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/joescharf/reviewd/internal/models"
)

// File is one changed file prepared for detection. When Patch is set,
// detectors only see the lines the diff added; otherwise the whole
// content is scanned.
type File struct {
	Path    string
	Content string
	Patch   string
	Lang    Language
}

// Result carries the findings of a detector run plus notes about any
// detector that was skipped mid-run.
type Result struct {
	Findings []models.Finding
	Skipped  []string
}

// Engine fans detector families out across changed files.
type Engine struct {
	detectors []Detector
	workers   int
	logger    *slog.Logger
}

// NewEngine builds an engine with the built-in detector families.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		detectors: BuiltinDetectors(),
		workers:   4,
		logger:    logger,
	}
}

// WithDetectors replaces the detector set, used by ruleset filtering and
// tests.
func (e *Engine) WithDetectors(ds []Detector) *Engine {
	e.detectors = ds
	return e
}

// Run executes every detector against every file. Files run
// concurrently; a panicking detector is recorded as skipped for that
// file and never takes down the run. Findings are deduplicated on
// (file, line, category), keeping the highest confidence, and sorted by
// file then line so output order is stable.
func (e *Engine) Run(ctx context.Context, files []File) Result {
	type fileResult struct {
		findings []models.Finding
		skipped  []string
	}

	sem := make(chan struct{}, e.workers)
	results := make([]fileResult, len(files))
	var wg sync.WaitGroup

	for i, f := range files {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, f File) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			lines := linesFor(f)
			if len(lines) == 0 {
				return
			}
			var fr fileResult
			for _, d := range e.detectors {
				if ctx.Err() != nil {
					return
				}
				fs, err := e.runOne(d, f, lines)
				if err != nil {
					fr.skipped = append(fr.skipped, fmt.Sprintf("%s on %s: %v", d.Name, f.Path, err))
					continue
				}
				fr.findings = append(fr.findings, fs...)
			}
			results[i] = fr
		}(i, f)
	}
	wg.Wait()

	var out Result
	for _, fr := range results {
		out.Findings = append(out.Findings, fr.findings...)
		out.Skipped = append(out.Skipped, fr.skipped...)
	}
	out.Findings = dedupByLocation(out.Findings)
	sort.SliceStable(out.Findings, func(a, b int) bool {
		if out.Findings[a].File != out.Findings[b].File {
			return out.Findings[a].File < out.Findings[b].File
		}
		return out.Findings[a].Line < out.Findings[b].Line
	})
	return out
}

// runOne converts a detector panic into an error so one bad pattern
// cannot abort the whole review.
func (e *Engine) runOne(d Detector, f File, lines []AddedLine) (fs []models.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panicked: %v", r)
			e.logger.Warn("detector skipped", "detector", d.Name, "file", f.Path, "panic", r)
		}
	}()
	return d.Run(f, lines), nil
}

func linesFor(f File) []AddedLine {
	if f.Patch != "" {
		return AddedLines(f.Patch)
	}
	if f.Content == "" {
		return nil
	}
	var out []AddedLine
	n := 1
	start := 0
	for i := 0; i <= len(f.Content); i++ {
		if i == len(f.Content) || f.Content[i] == '\n' {
			out = append(out, AddedLine{Number: n, Text: f.Content[start:i]})
			n++
			start = i + 1
		}
	}
	return out
}

// dedupByLocation collapses findings that land on the same file, line,
// and category, keeping the most confident one. First occurrence wins
// position.
func dedupByLocation(in []models.Finding) []models.Finding {
	if len(in) < 2 {
		return in
	}
	type key struct {
		file string
		line int
		cat  models.Category
	}
	index := map[key]int{}
	out := in[:0:0]
	for _, f := range in {
		k := key{f.File, f.Line, f.Category}
		if i, ok := index[k]; ok {
			if models.ConfidenceRank(f.Confidence) > models.ConfidenceRank(out[i].Confidence) {
				out[i] = f
			}
			continue
		}
		index[k] = len(out)
		out = append(out, f)
	}
	return out
}
