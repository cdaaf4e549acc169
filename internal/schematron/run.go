package schematron

import (
	"github.com/rezonia/peppol-validator/internal/document"
	"github.com/rezonia/peppol-validator/internal/model"
)

// AssertionResult is one assertion evaluated against one context node.
// For a report element, Passed is false when the report fired; the
// emitted message is the finding.
type AssertionResult struct {
	PatternID   string
	RuleID      string
	ContextPath string
	Test        string
	Message     string
	Flag        string
	Passed      bool
	Captured    string
	IsReport    bool
	Err         error
}

// RunResult is one complete pass of a schema over a document.
type RunResult struct {
	SchemaTitle       string
	RulesFired        int
	SuccessfulReports int
	Assertions        []AssertionResult
}

// Run evaluates a compiled schema against a document. Patterns, rules,
// and assertions run in declaration order; re-running identical inputs
// yields an identical result sequence. A context matching zero nodes
// skips its rule silently: the schema layer already guarantees type-level
// existence, so absence only means the rule does not apply to this
// document variant. Any single assertion failing to evaluate is recorded
// as a failed assertion and the run continues.
func Run(doc *document.Document, schema *Schema) *RunResult {
	result := &RunResult{SchemaTitle: schema.Title}
	rootPrefix := ResolveRootPrefix(doc.RootName(), schema.Namespaces)

	for _, pattern := range schema.Patterns {
		for _, rule := range pattern.Rules {
			nodes, err := ResolveContext(doc, rule.Context, schema.Namespaces)
			if err != nil {
				// An unresolvable context fails every assertion of the
				// rule once, with diagnostic context attached.
				for _, assertion := range rule.Assertions {
					result.Assertions = append(result.Assertions, AssertionResult{
						PatternID:   pattern.ID,
						RuleID:      rule.ID,
						ContextPath: rule.Context,
						Test:        assertion.Test,
						Message:     assertion.Message,
						Flag:        assertion.Flag,
						IsReport:    assertion.Report,
						Passed:      false,
						Err:         model.NewEvalError(rule.ID, rule.Context, "context resolution failed", err),
					})
				}
				continue
			}
			if len(nodes) == 0 {
				continue
			}

			for _, node := range nodes {
				result.RulesFired++
				for _, assertion := range rule.Assertions {
					res := AssertionResult{
						PatternID:   pattern.ID,
						RuleID:      rule.ID,
						ContextPath: document.Path(node),
						Test:        assertion.Test,
						Message:     assertion.Message,
						Flag:        assertion.Flag,
						IsReport:    assertion.Report,
					}
					out, err := EvaluateTest(node, assertion.Test, schema.Namespaces, rootPrefix)
					if err != nil {
						res.Passed = false
						res.Err = model.NewEvalError(rule.ID, assertion.Test, "test evaluation failed", err)
					} else {
						res.Passed = out.Passed
						res.Captured = out.Captured
						if assertion.Report {
							// Report sense is inverted: the test holding
							// means the report fires and emits its message.
							if out.Passed {
								result.SuccessfulReports++
							}
							res.Passed = !out.Passed
						}
					}
					result.Assertions = append(result.Assertions, res)
				}
			}
		}
	}

	return result
}
