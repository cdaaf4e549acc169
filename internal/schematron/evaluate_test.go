package schematron_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/peppol-validator/internal/schematron"
)

const evalInvoice = `<?xml version="1.0" encoding="UTF-8"?>
<Invoice xmlns="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
         xmlns:cac="urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
         xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2">
  <cbc:ID>INV-42</cbc:ID>
  <cbc:IssueDate>2025-11-13</cbc:IssueDate>
  <cbc:DocumentCurrencyCode>EUR</cbc:DocumentCurrencyCode>
  <cbc:Note>Contains   spread    text</cbc:Note>
  <cac:InvoiceLine>
    <cbc:ID>1</cbc:ID>
    <cbc:InvoicedQuantity unitCode="EA">2</cbc:InvoicedQuantity>
    <cbc:LineExtensionAmount currencyID="EUR">423.00</cbc:LineExtensionAmount>
    <cac:Item>
      <cbc:Name>Widget</cbc:Name>
    </cac:Item>
  </cac:InvoiceLine>
</Invoice>`

func evaluate(t *testing.T, context, test string) (schematron.Outcome, error) {
	t.Helper()
	doc := loadDoc(t, evalInvoice)
	nodes, err := schematron.ResolveContext(doc, context, testNamespaces)
	require.NoError(t, err)
	require.NotEmpty(t, nodes, "context %q matched nothing", context)
	rootPrefix := schematron.ResolveRootPrefix(doc.RootName(), testNamespaces)
	return schematron.EvaluateTest(nodes[0], test, testNamespaces, rootPrefix)
}

func TestEvaluate_Regex(t *testing.T) {
	out, err := evaluate(t, "/ubl:Invoice", "matches(cbc:ID, '^INV-[0-9]+$')")
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Equal(t, "INV-42", out.Captured)

	out, err = evaluate(t, "/ubl:Invoice", "matches(cbc:ID, '^[0-9]+$')")
	require.NoError(t, err)
	assert.False(t, out.Passed)

	out, err = evaluate(t, "/ubl:Invoice", "not(matches(cbc:ID, '^[0-9]+$'))")
	require.NoError(t, err)
	assert.True(t, out.Passed)
}

func TestEvaluate_RegexBadPattern(t *testing.T) {
	_, err := evaluate(t, "/ubl:Invoice", "matches(cbc:ID, '[unclosed')")
	require.Error(t, err)
}

func TestEvaluate_Contains(t *testing.T) {
	out, err := evaluate(t, "/ubl:Invoice", "contains(cbc:Note, 'spread')")
	require.NoError(t, err)
	assert.True(t, out.Passed)

	out, err = evaluate(t, "/ubl:Invoice", "contains(cbc:Note, 'absent')")
	require.NoError(t, err)
	assert.False(t, out.Passed)

	out, err = evaluate(t, "/ubl:Invoice", "not(contains(cbc:Note, 'absent'))")
	require.NoError(t, err)
	assert.True(t, out.Passed)
}

func TestEvaluate_DateComparison(t *testing.T) {
	tests := []struct {
		test   string
		passed bool
	}{
		{"cbc:IssueDate >= '2020-01-01'", true},
		{"cbc:IssueDate <= '2020-01-01'", false},
		{"cbc:IssueDate = '2025-11-13'", true},
		{"cbc:IssueDate != '2025-11-13'", false},
		{"'2030-01-01' > cbc:IssueDate", true},
		{"xs:date(cbc:IssueDate) < '2030-06-30'", true},
	}

	for _, tt := range tests {
		t.Run(tt.test, func(t *testing.T) {
			out, err := evaluate(t, "/ubl:Invoice", tt.test)
			require.NoError(t, err)
			assert.Equal(t, tt.passed, out.Passed)
			assert.NotEmpty(t, out.Captured)
		})
	}
}

func TestEvaluate_DateMissingValue(t *testing.T) {
	out, err := evaluate(t, "/ubl:Invoice", "cbc:DueDate >= '2020-01-01'")
	require.NoError(t, err)
	assert.False(t, out.Passed)
	assert.Empty(t, out.Captured)
}

func TestEvaluate_Boolean(t *testing.T) {
	tests := []struct {
		test   string
		passed bool
	}{
		{"cbc:ID and cbc:IssueDate", true},
		{"cbc:ID and cbc:Missing", false},
		{"cbc:Missing or cbc:ID", true},
		{"cbc:Missing or cbc:AlsoMissing", false},
		{"cbc:DocumentCurrencyCode = 'EUR' and cbc:ID", true},
		{"cbc:DocumentCurrencyCode = 'SEK' or cbc:ID = 'INV-42'", true},
		// and binds tighter than or
		{"cbc:ID or cbc:ID and cbc:Missing", true},
		{"cbc:Missing and cbc:ID or cbc:IssueDate", true},
		{"cbc:Missing or cbc:ID and cbc:AlsoMissing", false},
		{"cbc:ID and cbc:Missing or cbc:IssueDate and cbc:DocumentCurrencyCode", true},
	}

	for _, tt := range tests {
		t.Run(tt.test, func(t *testing.T) {
			out, err := evaluate(t, "/ubl:Invoice", tt.test)
			require.NoError(t, err)
			assert.Equal(t, tt.passed, out.Passed)
		})
	}
}

func TestEvaluate_BooleanCapturesBothSides(t *testing.T) {
	// No short-circuiting: both sides contribute captured values
	out, err := evaluate(t, "/ubl:Invoice", "cbc:ID = 'XX' and cbc:DocumentCurrencyCode = 'EUR'")
	require.NoError(t, err)
	assert.False(t, out.Passed)
	assert.Equal(t, "INV-42; EUR", out.Captured)
}

func TestEvaluate_GenericExistence(t *testing.T) {
	out, err := evaluate(t, "cac:InvoiceLine", "cac:Item/cbc:Name")
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Equal(t, "Widget", out.Captured)

	out, err = evaluate(t, "cac:InvoiceLine", "cac:Item/cbc:Description")
	require.NoError(t, err)
	assert.False(t, out.Passed)
}

func TestEvaluate_GenericNegatedExistence(t *testing.T) {
	out, err := evaluate(t, "cac:InvoiceLine", "not(cac:SubInvoiceLine)")
	require.NoError(t, err)
	assert.True(t, out.Passed)

	out, err = evaluate(t, "cac:InvoiceLine", "not(cbc:ID)")
	require.NoError(t, err)
	assert.False(t, out.Passed)
}

func TestEvaluate_GenericComparison(t *testing.T) {
	tests := []struct {
		test   string
		passed bool
	}{
		{"cbc:LineExtensionAmount = 423.00", true},
		{"cbc:LineExtensionAmount = 423", true}, // numeric, not lexical
		{"cbc:LineExtensionAmount > 400", true},
		{"cbc:LineExtensionAmount <= 100", false},
		{"cbc:InvoicedQuantity/@unitCode = 'EA'", true},
		{"cbc:LineExtensionAmount/@currencyID != 'SEK'", true},
	}

	for _, tt := range tests {
		t.Run(tt.test, func(t *testing.T) {
			out, err := evaluate(t, "cac:InvoiceLine", tt.test)
			require.NoError(t, err)
			assert.Equal(t, tt.passed, out.Passed)
		})
	}
}

func TestEvaluate_ComparisonEmptySequence(t *testing.T) {
	// Comparing a path that matched nothing is false for every operator
	tests := []string{
		"cbc:Missing = cbc:AlsoMissing",
		"cbc:Missing = ''",
		"cbc:Missing != 'X'",
		"cbc:Missing < 100",
		"cbc:ID = cbc:Missing",
	}

	for _, test := range tests {
		t.Run(test, func(t *testing.T) {
			out, err := evaluate(t, "/ubl:Invoice", test)
			require.NoError(t, err)
			assert.False(t, out.Passed)
		})
	}

	// The negated form still inverts the comparison outcome
	out, err := evaluate(t, "/ubl:Invoice", "not(cbc:Missing = 'X')")
	require.NoError(t, err)
	assert.True(t, out.Passed)
}

func TestEvaluate_GenericAbsolutePath(t *testing.T) {
	out, err := evaluate(t, "cac:InvoiceLine", "/ubl:Invoice/cbc:DocumentCurrencyCode = 'EUR'")
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Equal(t, "EUR", out.Captured)
}

func TestEvaluate_BooleanLiterals(t *testing.T) {
	out, err := evaluate(t, "/ubl:Invoice", "true()")
	require.NoError(t, err)
	assert.True(t, out.Passed)

	out, err = evaluate(t, "/ubl:Invoice", "false()")
	require.NoError(t, err)
	assert.False(t, out.Passed)
}

func TestEvaluate_AttributeNameForm(t *testing.T) {
	// The parenthesized single-attribute form checks the attribute name
	// against the node's own tag, not attribute presence.
	out, err := evaluate(t, "cac:InvoiceLine/cbc:InvoicedQuantity", "(@InvoicedQuantity)")
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Equal(t, "InvoicedQuantity", out.Captured)

	out, err = evaluate(t, "cac:InvoiceLine/cbc:InvoicedQuantity", "(@unitCode)")
	require.NoError(t, err)
	assert.False(t, out.Passed)
}

func TestEvaluate_NormalizeSpace(t *testing.T) {
	out, err := evaluate(t, "/ubl:Invoice", "normalize-space(cbc:Note) = 'Contains spread text'")
	require.NoError(t, err)
	assert.True(t, out.Passed)
}

func TestEvaluate_AttributeExistence(t *testing.T) {
	out, err := evaluate(t, "cac:InvoiceLine/cbc:LineExtensionAmount", "@currencyID")
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Equal(t, "EUR", out.Captured)

	out, err = evaluate(t, "cac:InvoiceLine/cbc:LineExtensionAmount", "@schemeID")
	require.NoError(t, err)
	assert.False(t, out.Passed)
}

func TestEvaluate_SelfValue(t *testing.T) {
	out, err := evaluate(t, "cac:InvoiceLine/cbc:ID", ". = '1'")
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Equal(t, "1", out.Captured)
}

func TestEvaluate_Errors(t *testing.T) {
	_, err := evaluate(t, "/ubl:Invoice", "")
	require.Error(t, err)

	_, err = evaluate(t, "/ubl:Invoice", "oops:Field")
	require.Error(t, err)

	_, err = evaluate(t, "/ubl:Invoice", "contains(cbc:Note)")
	require.Error(t, err)
}
