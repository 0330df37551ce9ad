package models

import "time"

// ReviewRequest is the immutable input that starts one review pipeline.
type ReviewRequest struct {
	RepoFullName string `json:"repo_full_name"` // owner/name
	PRNumber     int    `json:"pr_number"`
	Requirements string `json:"requirements,omitempty"`
}

// ChangedFile is metadata for one file touched by a pull request. Content is
// hydrated separately, and only after the compile gate passes.
type ChangedFile struct {
	Path    string `json:"path"`
	Status  string `json:"status"` // added, modified, removed, renamed
	Changes int    `json:"changes"` // changed-line count reported by the host
	Patch   string `json:"patch,omitempty"`
	RawURL  string `json:"raw_url,omitempty"`
}

// CompileVerdictKind is the outcome of the compile gate.
type CompileVerdictKind string

const (
	VerdictCompilable CompileVerdictKind = "compilable"
	VerdictBlocked    CompileVerdictKind = "blocked"
	// VerdictUnknown exists only while cross-validation is pending; the gate
	// never returns it to the pipeline.
	VerdictUnknown CompileVerdictKind = "unknown"
)

// CompileError is one compile-class error backing a blocked verdict.
type CompileError struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Type    string `json:"type"` // SyntaxError, TypeError, CompileError, MissingDependency
	Message string `json:"message"`
}

// Review is the persisted record of one completed review.
type Review struct {
	ID             string    `json:"id"`
	RepoFullName   string    `json:"repo_full_name"`
	PRNumber       int       `json:"pr_number"`
	Verdict        string    `json:"verdict"`
	Language       string    `json:"language,omitempty"`
	ReportMarkdown string    `json:"report_markdown"`
	Findings       []Finding `json:"findings"`
	CreatedAt      time.Time `json:"created_at"`
}
