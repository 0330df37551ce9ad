package pipeline

import (
	"fmt"
	"time"

	"github.com/joescharf/reviewd/internal/gate"
	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/reference"
)

// State is the position of a review inside the pipeline.
type State int

const (
	StateStart State = iota
	StateContextReady
	StateReferenceResolved
	StateCompileChecked
	StateBlocked
	StateDetectorsRun
	StateSemanticChecked
	StateSynthesized
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateContextReady:
		return "context_ready"
	case StateReferenceResolved:
		return "reference_resolved"
	case StateCompileChecked:
		return "compile_checked"
	case StateBlocked:
		return "blocked"
	case StateDetectorsRun:
		return "detectors_run"
	case StateSemanticChecked:
		return "semantic_checked"
	case StateSynthesized:
		return "synthesized"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateStart:             {StateContextReady},
	StateContextReady:      {StateReferenceResolved},
	StateReferenceResolved: {StateCompileChecked},
	StateCompileChecked:    {StateBlocked, StateDetectorsRun},
	StateBlocked:           {StateSynthesized},
	StateDetectorsRun:      {StateSemanticChecked},
	StateSemanticChecked:   {StateSynthesized},
	StateSynthesized:       {StateDone},
}

// AnalysisResults holds the post-gate analysis output. A blocked review
// never has one: absence of analysis and an empty analysis are different
// things, and a blocked review is the former.
type AnalysisResults struct {
	Deterministic    []models.Finding
	Semantic         []models.Finding
	SkippedDetectors []string
	SemanticFailure  string
}

// ReviewState is the working record of one pipeline run. It is owned by
// the run that created it; nothing mutates it after synthesis.
type ReviewState struct {
	ID        string
	Request   models.ReviewRequest
	State     State
	StartedAt time.Time

	Diff     string
	Files    []models.ChangedFile
	Language string
	Contents map[string]string

	Reference reference.Result
	Verdict   gate.Verdict

	// Analysis is nil iff the review was blocked at the compile gate.
	Analysis *AnalysisResults

	Findings       []models.Finding
	ReportMarkdown string
	FinishedAt     time.Time
}

// Blocked reports whether the review stopped at the compile gate.
func (s *ReviewState) Blocked() bool { return s.Verdict.Blocked() }

// transition advances the state machine, rejecting moves the machine
// does not allow.
func (s *ReviewState) transition(to State) error {
	for _, next := range transitions[s.State] {
		if next == to {
			s.State = to
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", s.State, to)
}
