// Package model holds the monetary domain types derived from a UBL
// document for one validation run, plus the error taxonomy shared by the
// rule engine and the reconciliation engine.
package model

import "github.com/shopspring/decimal"

// MonetaryLine is one invoice (or credit-note) line reduced to the fields
// the reconciliation engine checks.
type MonetaryLine struct {
	ID            string
	Quantity      decimal.Decimal
	UnitCode      string
	UnitPrice     decimal.Decimal
	LineAmount    decimal.Decimal
	LineAmountRaw string // lexical form as declared, for fraction-digit checks
	Currency      string
	TaxPercent    decimal.Decimal
	TaxCategoryID string
	ItemName      string

	// Optional allowance/charge adjustment attached to the line.
	HasAdjustment    bool
	ChargeIndicator  bool // true: charge (added), false: allowance (deducted)
	AdjustmentAmount decimal.Decimal
}

// TaxSubtotal is one declared per-rate subtotal from the header TaxTotal.
type TaxSubtotal struct {
	TaxableAmount decimal.Decimal
	TaxAmount     decimal.Decimal
	Percent       decimal.Decimal
	CategoryID    string
	Currency      string
}

// HeaderTotals holds the declared document-level monetary totals.
type HeaderTotals struct {
	LineExtensionAmount decimal.Decimal
	TaxExclusiveAmount  decimal.Decimal
	TaxInclusiveAmount  decimal.Decimal
	AllowanceTotal      decimal.Decimal
	ChargeTotal         decimal.Decimal
	RoundingAmount      decimal.Decimal
	PayableAmount       decimal.Decimal
	Currency            string
}
