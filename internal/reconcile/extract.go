// Package reconcile cross-checks declared invoice totals against
// independently computed decimal-exact aggregates: line amounts against the
// header line-extension total, per-rate tax subtotals against the lines
// that feed them, and the payable-amount identity.
package reconcile

import (
	"github.com/beevik/etree"

	"github.com/rezonia/peppol-validator/internal/document"
)

// rawLine is one invoice line as declared, before any numeric
// interpretation. Empty strings mean the element was absent; presence
// checks happen on this form, parsing happens in the engine.
type rawLine struct {
	path        string
	id          string
	quantity    string
	unitCode    string
	unitPrice   string
	lineAmount  string
	currency    string
	taxPercent  string
	taxCategory string
	hasItem     bool
	itemName    string

	hasAdjustment   bool
	chargeIndicator string
	adjustAmount    string
}

// rawSubtotal is one declared per-rate tax subtotal.
type rawSubtotal struct {
	path          string
	taxableAmount string
	taxAmount     string
	percent       string
	categoryID    string
	currency      string
}

// rawTotals are the declared header totals, as written.
type rawTotals struct {
	present             bool
	path                string
	lineExtensionAmount string
	taxExclusiveAmount  string
	taxInclusiveAmount  string
	allowanceTotal      string
	chargeTotal         string
	roundingAmount      string
	payableAmount       string
	currency            string
}

// snapshot is everything the engine reads from the canonical document.
// The document itself is never touched again after extraction.
type snapshot struct {
	kind      document.Kind
	lines     []rawLine
	subtotals []rawSubtotal
	totals    rawTotals
}

func lineElementName(kind document.Kind) (lineTag, qtyTag string) {
	if kind == document.KindCreditNote {
		return "CreditNoteLine", "CreditedQuantity"
	}
	return "InvoiceLine", "InvoicedQuantity"
}

func extract(doc *document.Document) *snapshot {
	root := doc.Root()
	snap := &snapshot{kind: doc.Kind()}
	lineTag, qtyTag := lineElementName(snap.kind)

	for _, el := range document.Children(root, document.NSCommonAggregate, lineTag) {
		snap.lines = append(snap.lines, extractLine(el, qtyTag))
	}

	for _, taxTotal := range document.Children(root, document.NSCommonAggregate, "TaxTotal") {
		for _, sub := range document.Children(taxTotal, document.NSCommonAggregate, "TaxSubtotal") {
			snap.subtotals = append(snap.subtotals, extractSubtotal(sub))
		}
	}

	if totals := document.Child(root, document.NSCommonAggregate, "LegalMonetaryTotal"); totals != nil {
		snap.totals = extractTotals(totals)
	}

	return snap
}

func extractLine(el *etree.Element, qtyTag string) rawLine {
	line := rawLine{
		path: document.Path(el),
		id:   document.ChildText(el, document.NSCommonBasic, "ID"),
	}

	if qty := document.Child(el, document.NSCommonBasic, qtyTag); qty != nil {
		line.quantity = document.Text(qty)
		line.unitCode = document.Attr(qty, "unitCode")
	}
	if amount := document.Child(el, document.NSCommonBasic, "LineExtensionAmount"); amount != nil {
		line.lineAmount = document.Text(amount)
		line.currency = document.Attr(amount, "currencyID")
	}
	if price := document.Child(el, document.NSCommonAggregate, "Price"); price != nil {
		line.unitPrice = document.ChildText(price, document.NSCommonBasic, "PriceAmount")
	}

	if item := document.Child(el, document.NSCommonAggregate, "Item"); item != nil {
		line.hasItem = true
		line.itemName = document.ChildText(item, document.NSCommonBasic, "Name")
		if cat := document.Child(item, document.NSCommonAggregate, "ClassifiedTaxCategory"); cat != nil {
			line.taxPercent = document.ChildText(cat, document.NSCommonBasic, "Percent")
			line.taxCategory = document.ChildText(cat, document.NSCommonBasic, "ID")
		}
	}

	if adj := document.Child(el, document.NSCommonAggregate, "AllowanceCharge"); adj != nil {
		line.hasAdjustment = true
		line.chargeIndicator = document.ChildText(adj, document.NSCommonBasic, "ChargeIndicator")
		line.adjustAmount = document.ChildText(adj, document.NSCommonBasic, "Amount")
	}

	return line
}

func extractSubtotal(el *etree.Element) rawSubtotal {
	sub := rawSubtotal{
		path:      document.Path(el),
		taxAmount: document.ChildText(el, document.NSCommonBasic, "TaxAmount"),
	}
	if taxable := document.Child(el, document.NSCommonBasic, "TaxableAmount"); taxable != nil {
		sub.taxableAmount = document.Text(taxable)
		sub.currency = document.Attr(taxable, "currencyID")
	}
	if cat := document.Child(el, document.NSCommonAggregate, "TaxCategory"); cat != nil {
		sub.categoryID = document.ChildText(cat, document.NSCommonBasic, "ID")
		sub.percent = document.ChildText(cat, document.NSCommonBasic, "Percent")
	}
	return sub
}

func extractTotals(el *etree.Element) rawTotals {
	totals := rawTotals{
		present:            true,
		path:               document.Path(el),
		taxExclusiveAmount: document.ChildText(el, document.NSCommonBasic, "TaxExclusiveAmount"),
		taxInclusiveAmount: document.ChildText(el, document.NSCommonBasic, "TaxInclusiveAmount"),
		allowanceTotal:     document.ChildText(el, document.NSCommonBasic, "AllowanceTotalAmount"),
		chargeTotal:        document.ChildText(el, document.NSCommonBasic, "ChargeTotalAmount"),
		roundingAmount:     document.ChildText(el, document.NSCommonBasic, "PayableRoundingAmount"),
		payableAmount:      document.ChildText(el, document.NSCommonBasic, "PayableAmount"),
	}
	if amount := document.Child(el, document.NSCommonBasic, "LineExtensionAmount"); amount != nil {
		totals.lineExtensionAmount = document.Text(amount)
		totals.currency = document.Attr(amount, "currencyID")
	}
	return totals
}
