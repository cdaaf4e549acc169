// Package document wraps an etree XML tree as the normalized, read-only
// invoice document the rule engine and reconciliation engine operate on.
// Elements are addressed by namespace URI and local name, never by the
// prefixes the wire document happened to use.
package document

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/rezonia/peppol-validator/internal/model"
)

// UBL namespaces
const (
	NSInvoice         = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	NSCreditNote      = "urn:oasis:names:specification:ubl:schema:xsd:CreditNote-2"
	NSCommonAggregate = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	NSCommonBasic     = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
)

// Kind identifies the UBL document variant
type Kind string

const (
	KindInvoice    Kind = "Invoice"
	KindCreditNote Kind = "CreditNote"
	KindUnknown    Kind = "Unknown"
)

// Document is a loaded UBL invoice or credit note. It is immutable once
// loaded; callers that need to mutate take a CopyTree first.
type Document struct {
	tree *etree.Document
	root *etree.Element
}

// Load parses XML bytes into a Document
func Load(data []byte) (*Document, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromBytes(data); err != nil {
		return nil, model.NewInputError("document", "failed to parse XML", err)
	}

	root := tree.Root()
	if root == nil {
		return nil, model.NewInputError("document", "empty XML document", nil)
	}

	return &Document{tree: tree, root: root}, nil
}

// Root returns the document root element
func (d *Document) Root() *etree.Element {
	return d.root
}

// RootName returns the root element identity as "{namespaceURI}local".
// Rule specifications match their prefixes against this form.
func (d *Document) RootName() string {
	return "{" + d.root.NamespaceURI() + "}" + d.root.Tag
}

// Kind identifies the document variant from the root element
func (d *Document) Kind() Kind {
	switch d.root.Tag {
	case "Invoice":
		return KindInvoice
	case "CreditNote":
		return KindCreditNote
	default:
		return KindUnknown
	}
}

// CopyTree returns a deep copy of the underlying tree for mutation
func (d *Document) CopyTree() *etree.Document {
	return d.tree.Copy()
}

// Serialize writes the document back to XML bytes
func (d *Document) Serialize() ([]byte, error) {
	return d.tree.WriteToBytes()
}

// Children returns the child elements of el matching namespace URI and
// local name, in document order. An empty nsURI matches any namespace.
func Children(el *etree.Element, nsURI, local string) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if child.Tag != local {
			continue
		}
		if nsURI != "" && child.NamespaceURI() != nsURI {
			continue
		}
		out = append(out, child)
	}
	return out
}

// Child returns the first matching child element, or nil
func Child(el *etree.Element, nsURI, local string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == local && (nsURI == "" || child.NamespaceURI() == nsURI) {
			return child
		}
	}
	return nil
}

// Text returns the trimmed text content of el, or "" for nil
func Text(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

// ChildText returns the trimmed text of the first matching child, or ""
func ChildText(el *etree.Element, nsURI, local string) string {
	return Text(Child(el, nsURI, local))
}

// Attr returns the value of the named attribute, ignoring prefixes
func Attr(el *etree.Element, name string) string {
	if el == nil {
		return ""
	}
	for _, a := range el.Attr {
		if a.Key == name {
			return a.Value
		}
	}
	return ""
}

// Path describes an element's position for diagnostics, as a rooted
// local-name path with positional predicates on repeating elements.
func Path(el *etree.Element) string {
	if el == nil {
		return ""
	}
	var steps []string
	for cur := el; cur != nil && cur.Tag != ""; cur = cur.Parent() {
		step := cur.Tag
		if parent := cur.Parent(); parent != nil && parent.Tag != "" {
			siblings := 0
			index := 0
			for _, sib := range parent.ChildElements() {
				if sib.Tag == cur.Tag && sib.NamespaceURI() == cur.NamespaceURI() {
					siblings++
					if sib == cur {
						index = siblings
					}
				}
			}
			if siblings > 1 {
				step += "[" + strconv.Itoa(index) + "]"
			}
		}
		steps = append([]string{step}, steps...)
	}
	return "/" + strings.Join(steps, "/")
}
