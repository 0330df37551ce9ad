package health

import (
	"github.com/joescharf/reviewd/internal/models"
)

// ReviewInputs holds the facts about a finished review used for risk scoring.
type ReviewInputs struct {
	Blocked          bool
	SemanticDegraded bool
	SkippedDetectors int
	Findings         []models.Finding
}

// RiskScore represents the computed merge risk of a pull request, 0-100.
// Higher means riskier.
type RiskScore struct {
	Total           int
	CompileRisk     int // 0-40
	FindingSeverity int // 0-40
	Coverage        int // 0-20
}

// Level buckets the total into a coarse label for display.
func (r *RiskScore) Level() string {
	switch {
	case r.Total >= 70:
		return "high"
	case r.Total >= 35:
		return "moderate"
	default:
		return "low"
	}
}

// Scorer computes merge risk scores for completed reviews.
type Scorer struct{}

// NewScorer returns a new risk Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes a merge risk score (0-100) for a review.
func (s *Scorer) Score(in ReviewInputs) *RiskScore {
	r := &RiskScore{}

	// Compile risk (40 pts) - a blocked PR cannot merge at all
	if in.Blocked {
		r.CompileRisk = 40
	}

	// Finding severity (40 pts) - weighted by severity, saturating
	r.FindingSeverity = scoreFindings(in.Findings, 40)

	// Coverage (20 pts) - analysis gaps mean unknown risk
	r.Coverage = scoreCoverage(in, 20)

	r.Total = r.CompileRisk + r.FindingSeverity + r.Coverage
	return r
}

// severityWeight maps a severity to its contribution toward the cap.
func severityWeight(sev models.Severity) int {
	switch sev {
	case models.SeverityCritical:
		return 16
	case models.SeverityHigh:
		return 8
	case models.SeverityMedium:
		return 3
	case models.SeverityLow:
		return 1
	default:
		return 1
	}
}

// scoreFindings sums severity weights, saturating at maxPoints.
func scoreFindings(findings []models.Finding, maxPoints int) int {
	total := 0
	for _, f := range findings {
		total += severityWeight(f.Severity)
		if total >= maxPoints {
			return maxPoints
		}
	}
	return total
}

// scoreCoverage penalizes analysis that could not complete.
func scoreCoverage(in ReviewInputs, maxPoints int) int {
	if in.Blocked {
		// Hydration and analysis never ran; the compile score already
		// carries that weight, so coverage stays neutral.
		return 0
	}
	pts := 0
	if in.SemanticDegraded {
		pts += maxPoints / 2
	}
	switch {
	case in.SkippedDetectors >= 3:
		pts += maxPoints / 2
	case in.SkippedDetectors > 0:
		pts += maxPoints / 4
	}
	if pts > maxPoints {
		pts = maxPoints
	}
	return pts
}
