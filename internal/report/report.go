// Package report merges rule-engine and reconciliation results into a
// single severity-classified validation report.
package report

import (
	"strings"

	"github.com/rezonia/peppol-validator/internal/reconcile"
	"github.com/rezonia/peppol-validator/internal/schematron"
)

// Severity levels, ordered by weight. Fatal and error findings make the
// document invalid; warning and info findings do not.
const (
	SeverityFatal   = "fatal"
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Violation is one failed check with its resolved severity.
type Violation struct {
	RuleID   string `json:"rule_id"`
	Location string `json:"location"`
	Test     string `json:"test,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Breakdown counts violations per severity.
type Breakdown struct {
	Fatal   int `json:"fatal"`
	Error   int `json:"error"`
	Warning int `json:"warning"`
	Info    int `json:"info"`
}

// Report is the aggregated outcome of all validation passes over one
// document. Violations keep pass order, then input order.
type Report struct {
	ValidationSuccess bool        `json:"validation_success"`
	RulesFired        int         `json:"rules_fired"`
	SuccessfulReports int         `json:"successful_reports"`
	Severity          Breakdown   `json:"severity_breakdown"`
	Violations        []Violation `json:"violations"`
}

// severity keyword tables, scanned in order of weight.
var severityKeywords = []struct {
	severity string
	words    []string
}{
	{SeverityFatal, []string{"fatal", "critical", "must not", "required"}},
	{SeverityError, []string{"error", "invalid", "violation", "shall not"}},
	{SeverityWarning, []string{"warning", "should", "recommend"}},
	{SeverityInfo, []string{"info", "information", "note"}},
}

var knownSeverities = map[string]bool{
	SeverityFatal:   true,
	SeverityError:   true,
	SeverityWarning: true,
	SeverityInfo:    true,
}

// ResolveSeverity classifies an assertion. An explicit role wins; absent
// that, the message keywords decide, then the shape of the test, then the
// default of error.
func ResolveSeverity(flag, message, test string) string {
	normalized := strings.ToLower(strings.TrimSpace(flag))
	if knownSeverities[normalized] {
		return normalized
	}

	lowerMessage := strings.ToLower(message)
	for _, entry := range severityKeywords {
		for _, word := range entry.words {
			if strings.Contains(lowerMessage, word) {
				return entry.severity
			}
		}
	}

	if strings.Contains(test, "not(") || strings.Contains(test, "false()") {
		return SeverityError
	}
	return SeverityError
}

// Build merges schematron passes and the reconciliation outcome. Passes
// are folded in the order given; within a pass, input order is kept.
func Build(runs []*schematron.RunResult, outcome *reconcile.Outcome) *Report {
	r := &Report{Violations: []Violation{}}

	for _, run := range runs {
		if run == nil {
			continue
		}
		r.RulesFired += run.RulesFired
		r.SuccessfulReports += run.SuccessfulReports
		for _, a := range run.Assertions {
			if a.Passed {
				continue
			}
			r.record(Violation{
				RuleID:   a.RuleID,
				Location: a.ContextPath,
				Test:     a.Test,
				Message:  a.Message,
				Severity: ResolveSeverity(a.Flag, a.Message, a.Test),
			})
		}
	}

	if outcome != nil {
		for _, v := range outcome.Violations {
			// The kind acts as the explicit role so message wording can
			// never reclassify a reconciliation finding.
			r.record(Violation{
				RuleID:   v.Rule,
				Location: v.Location,
				Message:  v.Message,
				Severity: ResolveSeverity(kindSeverity(v.Kind), v.Message, ""),
			})
		}
	}

	r.ValidationSuccess = r.Severity.Fatal == 0 && r.Severity.Error == 0
	return r
}

// kindSeverity maps a reconciliation finding kind to its fixed severity:
// remote pre-check findings advise, everything else invalidates.
func kindSeverity(kind reconcile.Kind) string {
	if kind == reconcile.KindPrecheck {
		return SeverityWarning
	}
	return SeverityError
}

func (r *Report) record(v Violation) {
	r.Violations = append(r.Violations, v)
	switch v.Severity {
	case SeverityFatal:
		r.Severity.Fatal++
	case SeverityError:
		r.Severity.Error++
	case SeverityWarning:
		r.Severity.Warning++
	case SeverityInfo:
		r.Severity.Info++
	}
}
