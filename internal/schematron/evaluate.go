package schematron

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
)

// Outcome is the result of evaluating one assertion against one node.
// Captured holds the value the test inspected; it feeds the diagnostic
// message even when the assertion fails.
type Outcome struct {
	Passed   bool
	Captured string
}

var (
	dateLiteralRE  = regexp.MustCompile(`'(\d{4}-\d{2}-\d{2})'`)
	attrNameFormRE = regexp.MustCompile(`^\(@([A-Za-z0-9_.-]+)\)$`)
)

// EvaluateTest evaluates a test expression against a context node.
// Dispatch is a fixed priority order, first match wins: regex function,
// string containment, date-literal comparison, boolean composition,
// generic expression. Each handler is a pure function of
// (node, expression, namespaces); new kinds slot in without touching the
// existing ones.
func EvaluateTest(node *etree.Element, test string, ns map[string]string, rootPrefix string) (Outcome, error) {
	expr := strings.TrimSpace(test)
	switch {
	case expr == "":
		return Outcome{}, fmt.Errorf("empty test expression")
	case strings.Contains(expr, "matches("):
		return evalRegex(node, expr, ns, rootPrefix)
	case strings.Contains(expr, "contains("):
		return evalContains(node, expr, ns, rootPrefix)
	case dateLiteralRE.MatchString(expr):
		return evalDateComparison(node, expr, ns, rootPrefix)
	case hasTopLevelBool(expr):
		return evalBoolean(node, expr, ns, rootPrefix)
	default:
		return evalGeneric(node, expr, ns, rootPrefix)
	}
}

// evalRegex handles matches(value, 'pattern') with an optional not(...)
// wrapper.
func evalRegex(node *etree.Element, expr string, ns map[string]string, rootPrefix string) (Outcome, error) {
	inner, negated := stripNot(expr)
	args, err := callArgs(inner, "matches")
	if err != nil {
		return Outcome{}, err
	}
	if len(args) < 2 {
		return Outcome{}, fmt.Errorf("matches() needs a value and a pattern: %q", expr)
	}

	pattern, ok := unquote(args[1])
	if !ok {
		return Outcome{}, fmt.Errorf("matches() pattern is not a literal: %q", args[1])
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Outcome{}, fmt.Errorf("bad pattern in %q: %w", expr, err)
	}

	val, err := valueOf(node, args[0], ns, rootPrefix)
	if err != nil {
		return Outcome{}, err
	}

	passed := re.MatchString(val)
	if negated {
		passed = !passed
	}
	return Outcome{Passed: passed, Captured: val}, nil
}

// evalContains handles contains(haystack, 'needle') with an optional
// not(...) wrapper.
func evalContains(node *etree.Element, expr string, ns map[string]string, rootPrefix string) (Outcome, error) {
	inner, negated := stripNot(expr)
	args, err := callArgs(inner, "contains")
	if err != nil {
		return Outcome{}, err
	}
	if len(args) != 2 {
		return Outcome{}, fmt.Errorf("contains() needs two arguments: %q", expr)
	}

	haystack, err := valueOf(node, args[0], ns, rootPrefix)
	if err != nil {
		return Outcome{}, err
	}
	needle, err := valueOf(node, args[1], ns, rootPrefix)
	if err != nil {
		return Outcome{}, err
	}

	passed := strings.Contains(haystack, needle)
	if negated {
		passed = !passed
	}
	return Outcome{Passed: passed, Captured: haystack}, nil
}

// evalDateComparison handles expressions comparing a document value
// against a quoted ISO date literal, optionally via an xs:date(...) cast.
func evalDateComparison(node *etree.Element, expr string, ns map[string]string, rootPrefix string) (Outcome, error) {
	op, lhs, rhs, ok := splitComparison(expr)
	if !ok {
		return Outcome{}, fmt.Errorf("date expression has no comparison operator: %q", expr)
	}

	literalSide, valueSide := rhs, lhs
	flipped := false
	if !dateLiteralRE.MatchString(literalSide) {
		literalSide, valueSide = lhs, rhs
		flipped = true
	}
	m := dateLiteralRE.FindStringSubmatch(literalSide)
	if m == nil {
		return Outcome{}, fmt.Errorf("no date literal in %q", expr)
	}
	literal, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return Outcome{}, err
	}

	valueSide = stripCall(valueSide, "xs:date")
	raw, err := valueOf(node, valueSide, ns, rootPrefix)
	if err != nil {
		return Outcome{}, err
	}
	if raw == "" {
		return Outcome{Passed: false, Captured: ""}, nil
	}
	lexical := raw
	if len(lexical) > 10 {
		lexical = lexical[:10]
	}
	val, err := time.Parse("2006-01-02", lexical)
	if err != nil {
		return Outcome{}, fmt.Errorf("value %q is not an ISO date", raw)
	}

	a, b := val, literal
	if flipped {
		a, b = literal, val
	}
	passed, err := compareDates(a, b, op)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Passed: passed, Captured: raw}, nil
}

func compareDates(a, b time.Time, op string) (bool, error) {
	switch op {
	case "=":
		return a.Equal(b), nil
	case "!=":
		return !a.Equal(b), nil
	case "<":
		return a.Before(b), nil
	case "<=":
		return !a.After(b), nil
	case ">":
		return a.After(b), nil
	case ">=":
		return !a.Before(b), nil
	default:
		return false, fmt.Errorf("unsupported date operator %q", op)
	}
}

// evalBoolean splits the expression at the top level on and/or keywords.
// Every operand is always evaluated; each one's captured value is part of
// the diagnostic output, so there is no short-circuiting. XPath operator
// precedence holds: and binds tighter than or. A single level only:
// nested parenthesized boolean logic is not interpreted.
func evalBoolean(node *etree.Element, expr string, ns map[string]string, rootPrefix string) (Outcome, error) {
	operands, ops := splitTopLevelBool(expr)
	if len(operands) < 2 {
		return evalGeneric(node, expr, ns, rootPrefix)
	}

	outcomes := make([]Outcome, len(operands))
	for i, operand := range operands {
		out, err := EvaluateTest(node, operand, ns, rootPrefix)
		if err != nil {
			return Outcome{}, err
		}
		outcomes[i] = out
	}

	// Consecutive and-joined operands form a conjunct group; the groups
	// are then or-ed together.
	passed := false
	conjunct := outcomes[0].Passed
	for i, op := range ops {
		if op == "and" {
			conjunct = conjunct && outcomes[i+1].Passed
		} else {
			passed = passed || conjunct
			conjunct = outcomes[i+1].Passed
		}
	}
	passed = passed || conjunct

	var captured []string
	for _, out := range outcomes {
		if out.Captured != "" {
			captured = append(captured, out.Captured)
		}
	}
	return Outcome{Passed: passed, Captured: strings.Join(captured, "; ")}, nil
}

// evalGeneric evaluates the expression as a query rooted at the context
// node: boolean literals, the preserved (@name) attribute-name form,
// negated existence, comparisons, and bare-path existence.
func evalGeneric(node *etree.Element, expr string, ns map[string]string, rootPrefix string) (Outcome, error) {
	switch expr {
	case "true()":
		return Outcome{Passed: true, Captured: "true"}, nil
	case "false()":
		return Outcome{Passed: false, Captured: "false"}, nil
	}

	// Single-attribute parenthesized form: the attribute name is checked
	// against the resolved node's own tag, not evaluated for truthiness.
	if m := attrNameFormRE.FindStringSubmatch(expr); m != nil {
		return Outcome{Passed: m[1] == node.Tag, Captured: node.Tag}, nil
	}

	if inner, negated := stripNot(expr); negated {
		if _, _, _, hasOp := splitComparison(inner); hasOp {
			out, err := evalGeneric(node, inner, ns, rootPrefix)
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Passed: !out.Passed, Captured: out.Captured}, nil
		}
		// Negated existence: passes when the path matches nothing.
		val, found, err := lookup(node, inner, ns, rootPrefix)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Passed: !found, Captured: val}, nil
	}

	if op, lhs, rhs, ok := splitComparison(expr); ok {
		return evalComparison(node, op, lhs, rhs, ns, rootPrefix)
	}

	// Bare path: existence check.
	val, found, err := lookup(node, expr, ns, rootPrefix)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Passed: found, Captured: val}, nil
}

func evalComparison(node *etree.Element, op, lhsExpr, rhsExpr string, ns map[string]string, rootPrefix string) (Outcome, error) {
	lhs, lfound, err := valueWithPresence(node, lhsExpr, ns, rootPrefix)
	if err != nil {
		return Outcome{}, err
	}
	rhs, rfound, err := valueWithPresence(node, rhsExpr, ns, rootPrefix)
	if err != nil {
		return Outcome{}, err
	}

	// A comparison over an empty sequence is false regardless of operator.
	if !lfound || !rfound {
		return Outcome{Passed: false, Captured: lhs}, nil
	}

	ld, lerr := decimal.NewFromString(lhs)
	rd, rerr := decimal.NewFromString(rhs)
	if lerr == nil && rerr == nil {
		return Outcome{Passed: compareDecimal(ld, rd, op), Captured: lhs}, nil
	}

	var passed bool
	switch op {
	case "=":
		passed = lhs == rhs
	case "!=":
		passed = lhs != rhs
	case "<":
		passed = lhs < rhs
	case "<=":
		passed = lhs <= rhs
	case ">":
		passed = lhs > rhs
	case ">=":
		passed = lhs >= rhs
	}
	return Outcome{Passed: passed, Captured: lhs}, nil
}

func compareDecimal(a, b decimal.Decimal, op string) bool {
	cmp := a.Cmp(b)
	switch op {
	case "=":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

// valueOf evaluates a value expression relative to a node: ".", "@attr",
// a relative or absolute path with an optional /@attr tail, a quoted
// literal, or a number. normalize-space() and string() wrappers are
// unwrapped.
func valueOf(node *etree.Element, expr string, ns map[string]string, rootPrefix string) (string, error) {
	val, _, err := valueWithPresence(node, expr, ns, rootPrefix)
	return val, err
}

// valueWithPresence is valueOf plus whether the expression produced a
// value at all. Literals and numbers are always present; a path is
// present only when it matched a node or attribute.
func valueWithPresence(node *etree.Element, expr string, ns map[string]string, rootPrefix string) (string, bool, error) {
	expr = strings.TrimSpace(expr)

	if stripped := stripCall(expr, "normalize-space"); stripped != expr {
		val, found, err := valueWithPresence(node, stripped, ns, rootPrefix)
		if err != nil {
			return "", false, err
		}
		return strings.Join(strings.Fields(val), " "), found, nil
	}
	if stripped := stripCall(expr, "string"); stripped != expr {
		return valueWithPresence(node, stripped, ns, rootPrefix)
	}

	if lit, ok := unquote(expr); ok {
		return lit, true, nil
	}
	if _, err := decimal.NewFromString(expr); err == nil {
		return expr, true, nil
	}

	return lookup(node, expr, ns, rootPrefix)
}

// lookup resolves a path-like expression from the context node and
// returns the first match's string value and whether anything matched.
func lookup(node *etree.Element, expr string, ns map[string]string, rootPrefix string) (string, bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "." {
		return strings.TrimSpace(node.Text()), true, nil
	}

	// Trailing attribute selector.
	attrName := ""
	if slash := strings.LastIndex(expr, "/@"); slash >= 0 {
		attrName = expr[slash+2:]
		expr = expr[:slash]
	} else if rest, ok := strings.CutPrefix(expr, "@"); ok {
		for _, a := range node.Attr {
			if a.Key == rest {
				return a.Value, true, nil
			}
		}
		return "", false, nil
	}

	targets, err := resolveFrom(node, expr, ns, rootPrefix)
	if err != nil {
		return "", false, err
	}
	if len(targets) == 0 {
		return "", false, nil
	}

	if attrName != "" {
		for _, t := range targets {
			for _, a := range t.Attr {
				if a.Key == attrName {
					return a.Value, true, nil
				}
			}
		}
		return "", false, nil
	}
	return strings.TrimSpace(targets[0].Text()), true, nil
}

// resolveFrom walks a path from the context node, or from the document
// root for absolute paths whose first step names the root element.
func resolveFrom(node *etree.Element, expr string, ns map[string]string, rootPrefix string) ([]*etree.Element, error) {
	if expr == "." {
		return []*etree.Element{node}, nil
	}
	if strings.Contains(expr, "//") {
		return nil, fmt.Errorf("descendant axis is not supported: %q", expr)
	}

	if after, absolute := strings.CutPrefix(expr, "/"); absolute {
		steps, err := parseSteps(after)
		if err != nil {
			return nil, err
		}
		if len(steps) == 0 {
			return nil, fmt.Errorf("empty absolute path: %q", expr)
		}
		root := topElement(node)
		matched := steps[0].prefix == rootPrefix
		if !matched {
			matched, err = matchElement(root, steps[0], ns)
			if err != nil {
				return nil, err
			}
		}
		if !matched {
			return nil, nil
		}
		return walkSteps([]*etree.Element{root}, steps[1:], ns)
	}

	steps, err := parseSteps(expr)
	if err != nil {
		return nil, err
	}
	return walkSteps([]*etree.Element{node}, steps, ns)
}

func topElement(node *etree.Element) *etree.Element {
	cur := node
	for p := cur.Parent(); p != nil && p.Tag != ""; p = p.Parent() {
		cur = p
	}
	return cur
}

// stripNot removes a whole-expression not(...) wrapper.
func stripNot(expr string) (string, bool) {
	s := strings.TrimSpace(expr)
	if !strings.HasPrefix(s, "not(") || !strings.HasSuffix(s, ")") {
		return expr, false
	}
	inner := s[len("not(") : len(s)-1]
	if !balanced(inner) {
		return expr, false
	}
	return strings.TrimSpace(inner), true
}

// stripCall unwraps fn(arg) when the call spans the whole expression.
func stripCall(expr, fn string) string {
	s := strings.TrimSpace(expr)
	if !strings.HasPrefix(s, fn+"(") || !strings.HasSuffix(s, ")") {
		return expr
	}
	inner := s[len(fn)+1 : len(s)-1]
	if !balanced(inner) {
		return expr
	}
	return strings.TrimSpace(inner)
}

func balanced(s string) bool {
	depth := 0
	quote := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0 && quote == 0
}

// callArgs extracts the argument list of the first fn(...) call in expr,
// split at top-level commas.
func callArgs(expr, fn string) ([]string, error) {
	start := strings.Index(expr, fn+"(")
	if start < 0 {
		return nil, fmt.Errorf("no %s() call in %q", fn, expr)
	}
	i := start + len(fn) + 1
	depth := 1
	quote := byte(0)
	argStart := i
	var args []string
	for ; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				args = append(args, strings.TrimSpace(expr[argStart:i]))
				return args, nil
			}
		case c == ',' && depth == 1:
			args = append(args, strings.TrimSpace(expr[argStart:i]))
			argStart = i + 1
		}
	}
	return nil, fmt.Errorf("unterminated %s() call in %q", fn, expr)
}

// splitComparison finds the top-level comparison operator, two-character
// operators first.
func splitComparison(expr string) (op, lhs, rhs string, ok bool) {
	depth := 0
	quote := byte(0)
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case depth == 0:
			if i+1 < len(expr) {
				two := expr[i : i+2]
				if two == "!=" || two == ">=" || two == "<=" {
					return two, strings.TrimSpace(expr[:i]), strings.TrimSpace(expr[i+2:]), true
				}
			}
			if c == '=' || c == '>' || c == '<' {
				return string(c), strings.TrimSpace(expr[:i]), strings.TrimSpace(expr[i+1:]), true
			}
		}
	}
	return "", "", "", false
}

// hasTopLevelBool reports whether expr contains an and/or keyword outside
// parentheses, brackets, and quotes.
func hasTopLevelBool(expr string) bool {
	operands, _ := splitTopLevelBool(expr)
	return len(operands) > 1
}

// splitTopLevelBool splits expr at top-level " and " / " or " keywords,
// returning the operands and the operator sequence between them.
func splitTopLevelBool(expr string) (operands []string, ops []string) {
	depth := 0
	quote := byte(0)
	start := 0
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case depth == 0 && c == ' ':
			if strings.HasPrefix(expr[i:], " and ") {
				operands = append(operands, strings.TrimSpace(expr[start:i]))
				ops = append(ops, "and")
				i += len(" and ")
				start = i
				continue
			}
			if strings.HasPrefix(expr[i:], " or ") {
				operands = append(operands, strings.TrimSpace(expr[start:i]))
				ops = append(ops, "or")
				i += len(" or ")
				start = i
				continue
			}
		}
		i++
	}
	operands = append(operands, strings.TrimSpace(expr[start:]))
	return operands, ops
}
