package server

import (
	"github.com/rezonia/peppol-validator/internal/report"
)

// ValidateResponse is the response for the validate endpoint
type ValidateResponse struct {
	Valid      bool               `json:"valid"`
	Kind       string             `json:"document_kind"`
	RulesFired int                `json:"rules_fired"`
	Severity   report.Breakdown   `json:"severity_breakdown"`
	Violations []report.Violation `json:"violations"`
	DurationMS int64              `json:"duration_ms"`
}

// ReconcileResponse is the response for the reconcile endpoint
type ReconcileResponse struct {
	Valid             bool               `json:"valid"`
	Kind              string             `json:"document_kind"`
	LineCount         int                `json:"line_count"`
	ComputedLineTotal string             `json:"computed_line_total"`
	PrecheckDelegated bool               `json:"precheck_delegated"`
	Violations        []report.Violation `json:"violations"`
}

// StatsResponse reports validator counters
type StatsResponse struct {
	Validations     int   `json:"validations"`
	TotalDurationMS int64 `json:"total_duration_ms"`
	LargestDocument int   `json:"largest_document_bytes"`
	CacheHits       int   `json:"schema_cache_hits"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
