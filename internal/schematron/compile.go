package schematron

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/beevik/etree"

	"github.com/rezonia/peppol-validator/internal/model"
)

// Compiler compiles rule specifications and caches the result keyed by
// content hash, so revalidating against an unchanged specification never
// reparses it. Safe for concurrent use.
type Compiler struct {
	mu    sync.Mutex
	cache map[string]*Schema
	hits  int
}

// NewCompiler creates a compiler with an empty cache
func NewCompiler() *Compiler {
	return &Compiler{cache: make(map[string]*Schema)}
}

// Compile parses a rule specification document into a Schema, serving
// repeat compilations from the cache.
func (c *Compiler) Compile(data []byte) (*Schema, error) {
	sum := md5.Sum(data)
	key := hex.EncodeToString(sum[:])

	c.mu.Lock()
	if s, ok := c.cache[key]; ok {
		c.hits++
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	s, err := compile(data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = s
	c.mu.Unlock()
	return s, nil
}

// CacheHits returns how many compilations were served from the cache
func (c *Compiler) CacheHits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

// Compile parses a rule specification without caching
func Compile(data []byte) (*Schema, error) {
	return compile(data)
}

func compile(data []byte) (*Schema, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromBytes(data); err != nil {
		return nil, model.NewInputError("schematron", "failed to parse rule specification", err)
	}

	root := tree.Root()
	if root == nil {
		return nil, model.NewInputError("schematron", "empty rule specification", nil)
	}
	if root.Tag != "schema" {
		return nil, model.NewInputError("schematron", "root element is <"+root.Tag+">, expected <schema>", nil)
	}

	schema := &Schema{
		Namespaces: make(map[string]string),
	}

	for _, el := range root.ChildElements() {
		switch el.Tag {
		case "title":
			schema.Title = strings.TrimSpace(el.Text())
		case "ns":
			prefix := el.SelectAttrValue("prefix", "")
			uri := el.SelectAttrValue("uri", "")
			if prefix == "" || uri == "" {
				return nil, model.NewInputError("schematron", "namespace declaration missing prefix or uri", nil)
			}
			schema.Namespaces[prefix] = uri
		case "pattern":
			pattern, err := compilePattern(el)
			if err != nil {
				return nil, err
			}
			schema.Patterns = append(schema.Patterns, pattern)
		}
	}

	if len(schema.Patterns) == 0 {
		return nil, model.NewInputError("schematron", "rule specification declares no patterns", nil)
	}

	return schema, nil
}

func compilePattern(el *etree.Element) (Pattern, error) {
	pattern := Pattern{
		ID: el.SelectAttrValue("id", el.SelectAttrValue("name", "")),
	}

	for _, child := range el.ChildElements() {
		if child.Tag != "rule" {
			continue
		}
		rule := Rule{
			ID:      child.SelectAttrValue("id", ""),
			Context: strings.TrimSpace(child.SelectAttrValue("context", "")),
		}
		if rule.Context == "" {
			return Pattern{}, model.NewInputError("schematron",
				"rule in pattern "+pattern.ID+" has no context", nil)
		}
		for _, a := range child.ChildElements() {
			if a.Tag != "assert" && a.Tag != "report" {
				continue
			}
			test := strings.TrimSpace(a.SelectAttrValue("test", ""))
			if test == "" {
				return Pattern{}, model.NewInputError("schematron",
					"assertion in pattern "+pattern.ID+" has no test", nil)
			}
			rule.Assertions = append(rule.Assertions, Assertion{
				ID:      a.SelectAttrValue("id", ""),
				Test:    test,
				Message: assertionMessage(a),
				Flag:    firstNonEmpty(a.SelectAttrValue("role", ""), a.SelectAttrValue("flag", "")),
				Report:  a.Tag == "report",
			})
		}
		pattern.Rules = append(pattern.Rules, rule)
	}

	return pattern, nil
}

// assertionMessage flattens the assertion body to plain text. Embedded
// value-of and name elements are dropped; the surrounding prose remains.
func assertionMessage(el *etree.Element) string {
	var b strings.Builder
	for _, tok := range el.Child {
		if cd, ok := tok.(*etree.CharData); ok {
			b.WriteString(cd.Data)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
