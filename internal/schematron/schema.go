// Package schematron compiles schematron rule specifications into an
// in-memory rule table and evaluates them against UBL documents. The rule
// authority revises the specifications twice a year, so everything here is
// data-driven: no rule logic is keyed to a rule identifier in code.
package schematron

// Schema is a compiled rule specification: an ordered sequence of patterns
// plus the namespace bindings declared alongside them. Immutable once
// compiled; safe for concurrent use.
type Schema struct {
	Title      string
	Namespaces map[string]string
	Patterns   []Pattern
}

// Pattern groups rules under one identifier. Declaration order is
// preserved; it determines report ordering.
type Pattern struct {
	ID    string
	Rules []Rule
}

// Rule binds a context expression to an ordered set of assertions.
type Rule struct {
	ID         string
	Context    string
	Assertions []Assertion
}

// Assertion is a single pass/fail predicate with its message template and
// optional severity hint (the schematron role or flag attribute). Report
// inverts the sense: a schematron report element emits its message when
// the test holds.
type Assertion struct {
	ID      string
	Test    string
	Message string
	Flag    string
	Report  bool
}

// RuleCount returns the total number of rules across all patterns
func (s *Schema) RuleCount() int {
	n := 0
	for _, p := range s.Patterns {
		n += len(p.Rules)
	}
	return n
}
