package schematron_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/peppol-validator/internal/schematron"
)

const runSchema = `<?xml version="1.0" encoding="UTF-8"?>
<schema xmlns="http://purl.oclc.org/dsdl/schematron">
  <title>run test rules</title>
  <ns prefix="ubl" uri="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"/>
  <ns prefix="cn" uri="urn:oasis:names:specification:ubl:schema:xsd:CreditNote-2"/>
  <ns prefix="cac" uri="urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"/>
  <ns prefix="cbc" uri="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"/>
  <pattern id="header">
    <rule id="R-01" context="/ubl:Invoice">
      <assert id="A-01" test="cbc:ID" role="fatal">Invoice identifier is required.</assert>
      <assert id="A-02" test="cbc:DocumentCurrencyCode = 'SEK'">Currency shall be SEK.</assert>
    </rule>
    <rule id="R-02" context="/cn:CreditNote">
      <assert id="A-03" test="cbc:ID">Credit note identifier is required.</assert>
    </rule>
  </pattern>
  <pattern id="lines">
    <rule id="R-03" context="cac:InvoiceLine">
      <assert id="A-04" test="cbc:ID">Line identifier is required.</assert>
      <assert id="A-05" test="broken(">Unparsable test.</assert>
    </rule>
  </pattern>
</schema>`

func TestRun(t *testing.T) {
	doc := loadDoc(t, resolveInvoice)
	schema, err := schematron.Compile([]byte(runSchema))
	require.NoError(t, err)

	result := schematron.Run(doc, schema)

	// R-01 fired once, R-02 not at all (credit-note rule on an invoice),
	// R-03 once per line.
	assert.Equal(t, 4, result.RulesFired)

	// 2 header assertions + 2 per line * 3 lines, in declaration order
	require.Len(t, result.Assertions, 8)
	assert.Equal(t, "/Invoice", result.Assertions[0].ContextPath)
	assert.True(t, result.Assertions[0].Passed)
	assert.False(t, result.Assertions[1].Passed, "currency is EUR, not SEK")
	assert.Equal(t, "EUR", result.Assertions[1].Captured)

	assert.Equal(t, "/Invoice/InvoiceLine[1]", result.Assertions[2].ContextPath)
	assert.Equal(t, "/Invoice/InvoiceLine[3]", result.Assertions[6].ContextPath)
}

func TestRun_EvalFaultDoesNotAbort(t *testing.T) {
	doc := loadDoc(t, resolveInvoice)
	schema, err := schematron.Compile([]byte(runSchema))
	require.NoError(t, err)

	result := schematron.Run(doc, schema)

	faults := 0
	for _, a := range result.Assertions {
		if a.Err != nil {
			faults++
			assert.False(t, a.Passed)
			assert.Empty(t, a.Captured)
		}
	}
	// One unparsable assertion per line
	assert.Equal(t, 3, faults)

	// Later assertions were still evaluated
	last := result.Assertions[len(result.Assertions)-1]
	assert.Equal(t, "Unparsable test.", last.Message)
	assert.NotNil(t, last.Err)
}

const reportRunSchema = `<?xml version="1.0" encoding="UTF-8"?>
<schema xmlns="http://purl.oclc.org/dsdl/schematron">
  <title>report rules</title>
  <ns prefix="ubl" uri="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"/>
  <ns prefix="cbc" uri="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"/>
  <pattern id="advice">
    <rule id="RP-01" context="/ubl:Invoice">
      <report id="RP-01-a" test="cbc:ID" role="info">Note: the invoice carries an identifier.</report>
      <report id="RP-01-b" test="cbc:Missing" role="info">Note: never emitted.</report>
      <assert id="RP-01-c" test="cbc:ID">Identifier is required.</assert>
    </rule>
  </pattern>
</schema>`

func TestRun_Reports(t *testing.T) {
	doc := loadDoc(t, resolveInvoice)
	schema, err := schematron.Compile([]byte(reportRunSchema))
	require.NoError(t, err)

	result := schematron.Run(doc, schema)

	assert.Equal(t, 1, result.RulesFired)
	assert.Equal(t, 1, result.SuccessfulReports)
	require.Len(t, result.Assertions, 3)

	// A report fires when its test holds, emitting its message
	fired := result.Assertions[0]
	assert.True(t, fired.IsReport)
	assert.False(t, fired.Passed)
	assert.Equal(t, "info", fired.Flag)

	silent := result.Assertions[1]
	assert.True(t, silent.IsReport)
	assert.True(t, silent.Passed)

	// Plain assertions keep their sense
	assert.False(t, result.Assertions[2].IsReport)
	assert.True(t, result.Assertions[2].Passed)
}

func TestRun_Deterministic(t *testing.T) {
	doc := loadDoc(t, resolveInvoice)
	schema, err := schematron.Compile([]byte(runSchema))
	require.NoError(t, err)

	first := schematron.Run(doc, schema)
	second := schematron.Run(doc, schema)

	require.Len(t, second.Assertions, len(first.Assertions))
	for i := range first.Assertions {
		assert.Equal(t, first.Assertions[i].ContextPath, second.Assertions[i].ContextPath)
		assert.Equal(t, first.Assertions[i].Test, second.Assertions[i].Test)
		assert.Equal(t, first.Assertions[i].Passed, second.Assertions[i].Passed)
	}
}
