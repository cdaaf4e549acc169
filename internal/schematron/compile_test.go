package schematron_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/peppol-validator/internal/model"
	"github.com/rezonia/peppol-validator/internal/schematron"
)

const sampleSchema = `<?xml version="1.0" encoding="UTF-8"?>
<schema xmlns="http://purl.oclc.org/dsdl/schematron">
  <title>PEPPOL business rules</title>
  <ns prefix="ubl" uri="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"/>
  <ns prefix="cn" uri="urn:oasis:names:specification:ubl:schema:xsd:CreditNote-2"/>
  <ns prefix="cac" uri="urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"/>
  <ns prefix="cbc" uri="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"/>
  <pattern id="header">
    <rule id="R-HDR-01" context="/ubl:Invoice">
      <assert id="A-HDR-01" test="cbc:ID" role="fatal">An invoice MUST have an identifier.</assert>
      <assert id="A-HDR-02" test="cbc:DocumentCurrencyCode = 'EUR'">Currency should be EUR.</assert>
    </rule>
  </pattern>
  <pattern id="lines">
    <rule id="R-LIN-01" context="cac:InvoiceLine">
      <assert id="A-LIN-01" test="cbc:ID">Each line MUST have an identifier.</assert>
    </rule>
  </pattern>
</schema>`

func TestCompile(t *testing.T) {
	schema, err := schematron.Compile([]byte(sampleSchema))
	require.NoError(t, err)

	assert.Equal(t, "PEPPOL business rules", schema.Title)
	assert.Len(t, schema.Namespaces, 4)
	assert.Equal(t, "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2",
		schema.Namespaces["cbc"])

	// Declaration order is preserved
	require.Len(t, schema.Patterns, 2)
	assert.Equal(t, "header", schema.Patterns[0].ID)
	assert.Equal(t, "lines", schema.Patterns[1].ID)
	assert.Equal(t, 2, schema.RuleCount())

	rule := schema.Patterns[0].Rules[0]
	assert.Equal(t, "R-HDR-01", rule.ID)
	assert.Equal(t, "/ubl:Invoice", rule.Context)
	require.Len(t, rule.Assertions, 2)
	assert.Equal(t, "cbc:ID", rule.Assertions[0].Test)
	assert.Equal(t, "An invoice MUST have an identifier.", rule.Assertions[0].Message)
	assert.Equal(t, "fatal", rule.Assertions[0].Flag)
	assert.Equal(t, "", rule.Assertions[1].Flag)
}

func TestCompile_Reports(t *testing.T) {
	src := `<schema xmlns="http://purl.oclc.org/dsdl/schematron">
  <ns prefix="cbc" uri="urn:x"/>
  <pattern id="p">
    <rule context="cbc:Line">
      <assert id="A-01" test="cbc:ID">Line identifier is required.</assert>
      <report id="P-01" test="cbc:Note" role="info">Line carries a note.</report>
    </rule>
  </pattern>
</schema>`

	schema, err := schematron.Compile([]byte(src))
	require.NoError(t, err)

	rule := schema.Patterns[0].Rules[0]
	require.Len(t, rule.Assertions, 2)
	assert.False(t, rule.Assertions[0].Report)
	assert.True(t, rule.Assertions[1].Report)
	assert.Equal(t, "cbc:Note", rule.Assertions[1].Test)
	assert.Equal(t, "Line carries a note.", rule.Assertions[1].Message)
	assert.Equal(t, "info", rule.Assertions[1].Flag)
}

func TestCompile_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not XML", "this is not xml at all <"},
		{"wrong root", "<rules><pattern/></rules>"},
		{"no patterns", `<schema xmlns="http://purl.oclc.org/dsdl/schematron"><title>t</title></schema>`},
		{"rule without context", `<schema xmlns="http://purl.oclc.org/dsdl/schematron"><pattern id="p"><rule><assert test="cbc:ID">m</assert></rule></pattern></schema>`},
		{"assert without test", `<schema xmlns="http://purl.oclc.org/dsdl/schematron"><pattern id="p"><rule context="cac:X"><assert>m</assert></rule></pattern></schema>`},
		{"report without test", `<schema xmlns="http://purl.oclc.org/dsdl/schematron"><pattern id="p"><rule context="cac:X"><report>m</report></rule></pattern></schema>`},
		{"ns without uri", `<schema xmlns="http://purl.oclc.org/dsdl/schematron"><ns prefix="cbc"/><pattern id="p"><rule context="cac:X"><assert test="t">m</assert></rule></pattern></schema>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schematron.Compile([]byte(tt.input))
			require.Error(t, err)

			var inputErr *model.InputError
			assert.ErrorAs(t, err, &inputErr)
		})
	}
}

func TestCompile_MessageFlattening(t *testing.T) {
	src := `<schema xmlns="http://purl.oclc.org/dsdl/schematron">
  <ns prefix="cbc" uri="urn:x"/>
  <pattern id="p">
    <rule context="cbc:Line">
      <assert test="cbc:ID">Line
        identifier   is required.</assert>
    </rule>
  </pattern>
</schema>`

	schema, err := schematron.Compile([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, "Line identifier is required.", schema.Patterns[0].Rules[0].Assertions[0].Message)
}

func TestCompiler_Cache(t *testing.T) {
	c := schematron.NewCompiler()

	first, err := c.Compile([]byte(sampleSchema))
	require.NoError(t, err)
	assert.Equal(t, 0, c.CacheHits())

	second, err := c.Compile([]byte(sampleSchema))
	require.NoError(t, err)
	assert.Equal(t, 1, c.CacheHits())
	assert.Same(t, first, second)

	// A changed specification misses the cache
	_, err = c.Compile([]byte(sampleSchema + "\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, c.CacheHits())
}
