package schematron

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/rezonia/peppol-validator/internal/document"
)

// step is one parsed segment of a path-like expression.
type step struct {
	prefix    string
	local     string // "*" matches any local name
	predicate string // raw bracket content, "" when absent
}

// ResolveRootPrefix picks the declared prefix bound to the document's
// actual root element. Rule specifications are authored generically; which
// variant (invoice vs credit note) applies is only known at validation
// time, so the prefix whose URI occurs in the root identity wins. Ties go
// to the longest URI so Invoice-2 never loses to a shared base URI.
func ResolveRootPrefix(rootName string, ns map[string]string) string {
	prefixes := make([]string, 0, len(ns))
	for p := range ns {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	best := ""
	bestLen := -1
	for _, p := range prefixes {
		uri := ns[p]
		if uri != "" && strings.Contains(rootName, uri) && len(uri) > bestLen {
			best = p
			bestLen = len(uri)
		}
	}
	return best
}

// ResolveContext resolves a rule context expression against the document,
// returning matching nodes in document order. A zero-match result is not
// an error: the rule simply does not apply to this document variant.
func ResolveContext(doc *document.Document, context string, ns map[string]string) ([]*etree.Element, error) {
	expr := strings.TrimSpace(context)
	if expr == "" {
		return nil, fmt.Errorf("empty context expression")
	}
	if strings.Contains(expr, "//") {
		return nil, fmt.Errorf("descendant axis is not supported: %q", expr)
	}

	absolute := strings.HasPrefix(expr, "/")
	steps, err := parseSteps(strings.TrimPrefix(expr, "/"))
	if err != nil {
		return nil, err
	}

	root := doc.Root()
	if absolute {
		// First step must name the root element itself.
		if len(steps) == 0 {
			return nil, fmt.Errorf("empty absolute context: %q", expr)
		}
		matched, err := matchElement(root, steps[0], ns)
		if err != nil {
			return nil, err
		}
		if !matched {
			return nil, nil
		}
		steps = steps[1:]
	}

	// Relative contexts root implicitly under the actual document root.
	return walkSteps([]*etree.Element{root}, steps, ns)
}

// walkSteps applies path steps to a node set, one level per step.
func walkSteps(nodes []*etree.Element, steps []step, ns map[string]string) ([]*etree.Element, error) {
	current := nodes
	for _, st := range steps {
		uri, err := stepURI(st, ns)
		if err != nil {
			return nil, err
		}
		var next []*etree.Element
		for _, node := range current {
			matched := selectChildren(node, uri, st.local)
			matched, err = applyPredicate(matched, st.predicate, ns)
			if err != nil {
				return nil, err
			}
			next = append(next, matched...)
		}
		current = next
		if len(current) == 0 {
			return nil, nil
		}
	}
	return current, nil
}

func parseSteps(expr string) ([]step, error) {
	if expr == "" {
		return nil, nil
	}
	var steps []step
	for _, raw := range splitPath(expr) {
		st, err := parseStep(raw)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, nil
}

// splitPath splits on '/' outside bracket predicates and quotes.
func splitPath(expr string) []string {
	var parts []string
	depth := 0
	quote := byte(0)
	start := 0
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			depth--
		case c == '/' && depth == 0:
			parts = append(parts, expr[start:i])
			start = i + 1
		}
	}
	parts = append(parts, expr[start:])
	return parts
}

func parseStep(raw string) (step, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return step{}, fmt.Errorf("empty path step")
	}

	var st step
	if open := strings.IndexByte(s, '['); open >= 0 {
		if !strings.HasSuffix(s, "]") {
			return step{}, fmt.Errorf("unterminated predicate in step %q", raw)
		}
		st.predicate = strings.TrimSpace(s[open+1 : len(s)-1])
		s = strings.TrimSpace(s[:open])
	}

	if colon := strings.IndexByte(s, ':'); colon >= 0 {
		st.prefix = s[:colon]
		st.local = s[colon+1:]
	} else {
		st.local = s
	}
	if st.local == "" {
		return step{}, fmt.Errorf("step %q has no element name", raw)
	}
	if st.local != "*" && !nameRE.MatchString(st.local) {
		return step{}, fmt.Errorf("step %q is not a valid element name", raw)
	}
	if st.prefix != "" && !nameRE.MatchString(st.prefix) {
		return step{}, fmt.Errorf("step %q has an invalid namespace prefix", raw)
	}
	return st, nil
}

var nameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

func stepURI(st step, ns map[string]string) (string, error) {
	if st.prefix == "" {
		return "", nil
	}
	uri, ok := ns[st.prefix]
	if !ok {
		return "", fmt.Errorf("undeclared namespace prefix %q", st.prefix)
	}
	return uri, nil
}

func selectChildren(node *etree.Element, uri, local string) []*etree.Element {
	if local == "*" {
		var out []*etree.Element
		for _, child := range node.ChildElements() {
			if uri == "" || child.NamespaceURI() == uri {
				out = append(out, child)
			}
		}
		return out
	}
	return document.Children(node, uri, local)
}

// applyPredicate filters a per-parent matched set. Supported forms:
// a 1-based numeric index, child-equals-literal, attribute-equals-literal.
func applyPredicate(nodes []*etree.Element, pred string, ns map[string]string) ([]*etree.Element, error) {
	if pred == "" || len(nodes) == 0 {
		return nodes, nil
	}

	if idx, err := strconv.Atoi(pred); err == nil {
		if idx < 1 || idx > len(nodes) {
			return nil, nil
		}
		return nodes[idx-1 : idx], nil
	}

	lhs, rhs, ok := splitEquality(pred)
	if !ok {
		return nil, fmt.Errorf("unsupported predicate %q", pred)
	}
	literal, ok := unquote(rhs)
	if !ok {
		return nil, fmt.Errorf("predicate %q compares against a non-literal", pred)
	}

	var out []*etree.Element
	for _, node := range nodes {
		if attr, isAttr := strings.CutPrefix(lhs, "@"); isAttr {
			if document.Attr(node, attr) == literal {
				out = append(out, node)
			}
			continue
		}
		st, err := parseStep(lhs)
		if err != nil {
			return nil, err
		}
		uri, err := stepURI(st, ns)
		if err != nil {
			return nil, err
		}
		if document.ChildText(node, uri, st.local) == literal {
			out = append(out, node)
		}
	}
	return out, nil
}

func splitEquality(expr string) (lhs, rhs string, ok bool) {
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
		case c == '=':
			return strings.TrimSpace(expr[:i]), strings.TrimSpace(expr[i+1:]), true
		}
	}
	return "", "", false
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1], true
		}
	}
	return "", false
}

// matchElement reports whether an element matches a single step by
// namespace and local name.
func matchElement(el *etree.Element, st step, ns map[string]string) (bool, error) {
	uri, err := stepURI(st, ns)
	if err != nil {
		return false, err
	}
	if st.local != "*" && el.Tag != st.local {
		return false, nil
	}
	if uri != "" && el.NamespaceURI() != uri {
		return false, nil
	}
	return true, nil
}
