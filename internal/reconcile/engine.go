package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rezonia/peppol-validator/internal/document"
	"github.com/rezonia/peppol-validator/internal/model"
	"github.com/rezonia/peppol-validator/internal/money"
)

// Kind classifies a reconciliation finding.
type Kind string

const (
	// KindStructural flags a required field that is absent or unreadable.
	KindStructural Kind = "structural-violation"
	// KindArithmetic flags a computed aggregate disagreeing with a
	// declared total beyond tolerance.
	KindArithmetic Kind = "arithmetic-mismatch"
	// KindPrecheck carries a finding reported by the remote header
	// pre-check collaborator.
	KindPrecheck Kind = "precheck-report"
)

// Rule identifiers for reconciliation findings.
const (
	RuleSubtotalFields    = "tax-subtotal-fields"
	RuleTaxComputation    = "tax-amount-computation"
	RuleHeaderTotals      = "header-totals-present"
	RulePayableIdentity   = "payable-amount-identity"
	RuleLineFields        = "line-field-present"
	RuleTwoDecimals       = "line-amount-two-decimals"
	RuleLineTaxGroup      = "line-tax-group-known"
	RuleItemName          = "line-item-name"
	RuleLineComputation   = "line-amount-computation"
	RuleLineExtensionSum  = "line-extension-total"
	RuleTaxableGroupTotal = "tax-group-taxable-total"
)

// Violation is a single reconciliation finding. All findings are
// non-fatal; the engine always completes its passes.
type Violation struct {
	Kind     Kind
	Rule     string
	Location string
	Message  string
}

// Outcome is the result of reconciling one document. Lines, Subtotals
// and Totals hold the typed view of everything that parsed cleanly;
// entries that did not are reported as violations instead.
type Outcome struct {
	Violations        []Violation
	LineCount         int
	ComputedLineTotal decimal.Decimal
	PrecheckDelegated bool

	Lines     []model.MonetaryLine
	Subtotals []model.TaxSubtotal
	Totals    *model.HeaderTotals
}

// Prechecker submits a reduced header-only document to an external
// validation collaborator. Implementations must honor the context.
type Prechecker interface {
	Check(ctx context.Context, xml []byte) (ok bool, findings []string, err error)
}

// Engine runs the two reconciliation passes. Safe for concurrent use; all
// per-run state lives in the snapshot and working buffers.
type Engine struct {
	prechecker Prechecker
}

// Option configures the engine
type Option func(*Engine)

// WithPrechecker enables delegation of the header-only sanity check
func WithPrechecker(p Prechecker) Option {
	return func(e *Engine) { e.prechecker = p }
}

// NewEngine creates a reconciliation engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// taxGroup aggregates declared subtotals sharing a tax percent, then
// collects the line amounts that claim the same percent during pass 2.
type taxGroup struct {
	percent    decimal.Decimal
	categoryID string
	taxable    decimal.Decimal
	tax        decimal.Decimal
	lineSum    decimal.Decimal
}

// Reconcile validates a document's monetary consistency. Pass 1 checks
// the declared header aggregates and, when a collaborator is configured,
// delegates a reduced one-line-per-tax-group document for a fast remote
// sanity check. Pass 2 walks every line. The canonical document is never
// mutated; both passes work from an extracted snapshot and the reduced
// document is built on a deep copy.
func (e *Engine) Reconcile(ctx context.Context, doc *document.Document) *Outcome {
	snap := extract(doc)
	out := &Outcome{LineCount: len(snap.lines)}

	groups := e.headerPass(ctx, doc, snap, out)
	e.linePass(snap, groups, out)
	return out
}

func (e *Engine) headerPass(ctx context.Context, doc *document.Document, snap *snapshot, out *Outcome) []*taxGroup {
	var groups []*taxGroup
	byPercent := make(map[string]*taxGroup)
	subtotalsSound := true

	for _, sub := range snap.subtotals {
		var missing []string
		if sub.taxableAmount == "" || sub.taxAmount == "" {
			missing = append(missing, "amount")
		}
		if sub.currency == "" {
			missing = append(missing, "currency")
		}
		if sub.percent == "" {
			missing = append(missing, "percent")
		}
		if sub.categoryID == "" {
			missing = append(missing, "category")
		}
		if len(missing) > 0 {
			subtotalsSound = false
			out.add(KindStructural, RuleSubtotalFields, sub.path,
				"tax subtotal is missing "+strings.Join(missing, ", "))
			continue
		}

		percent, err1 := money.FromString(sub.percent)
		taxable, err2 := money.FromString(sub.taxableAmount)
		tax, err3 := money.FromString(sub.taxAmount)
		if err1 != nil || err2 != nil || err3 != nil {
			subtotalsSound = false
			out.add(KindStructural, RuleSubtotalFields, sub.path,
				"tax subtotal declares a non-numeric amount or percent")
			continue
		}

		key := percent.String()
		group, ok := byPercent[key]
		if !ok {
			group = &taxGroup{percent: percent, categoryID: sub.categoryID}
			byPercent[key] = group
			groups = append(groups, group)
		}
		group.taxable = group.taxable.Add(taxable)
		group.tax = group.tax.Add(tax)

		out.Subtotals = append(out.Subtotals, model.TaxSubtotal{
			TaxableAmount: taxable,
			TaxAmount:     tax,
			Percent:       percent,
			CategoryID:    sub.categoryID,
			Currency:      sub.currency,
		})
	}

	for _, g := range groups {
		expected := money.TaxOf(g.taxable, g.percent)
		if !money.WithinTolerance(g.tax, expected) {
			out.add(KindArithmetic, RuleTaxComputation, "TaxSubtotal["+g.percent.String()+"%]",
				fmt.Sprintf("declared tax amount %s disagrees with computed %s for taxable %s at %s%%",
					g.tax.StringFixed(2), expected.StringFixed(2), g.taxable.StringFixed(2), g.percent))
		}
	}

	e.checkPayableIdentity(snap, out)

	if e.prechecker != nil && subtotalsSound && len(groups) > 0 {
		if data, err := buildReducedDocument(doc, snap.kind, groups); err == nil {
			ok, findings, err := e.prechecker.Check(ctx, data)
			if err == nil {
				out.PrecheckDelegated = true
				if !ok {
					for _, f := range findings {
						out.add(KindPrecheck, "remote-precheck", "LegalMonetaryTotal", f)
					}
				}
			}
			// Delegation failures fall through to the full line pass.
		}
	}

	return groups
}

func (e *Engine) checkPayableIdentity(snap *snapshot, out *Outcome) {
	totals := snap.totals
	if !totals.present {
		out.add(KindStructural, RuleHeaderTotals, "/", "document declares no monetary totals")
		return
	}
	if totals.taxInclusiveAmount == "" || totals.payableAmount == "" {
		out.add(KindStructural, RuleHeaderTotals, totals.path,
			"monetary totals are missing tax-inclusive or payable amount")
		return
	}

	taxInclusive, err1 := money.FromString(totals.taxInclusiveAmount)
	payable, err2 := money.FromString(totals.payableAmount)
	if err1 != nil || err2 != nil {
		out.add(KindStructural, RuleHeaderTotals, totals.path,
			"monetary totals declare a non-numeric amount")
		return
	}
	allowance := optionalAmount(totals.allowanceTotal)
	charge := optionalAmount(totals.chargeTotal)
	rounding := optionalAmount(totals.roundingAmount)

	out.Totals = &model.HeaderTotals{
		LineExtensionAmount: optionalAmount(totals.lineExtensionAmount),
		TaxExclusiveAmount:  optionalAmount(totals.taxExclusiveAmount),
		TaxInclusiveAmount:  taxInclusive,
		AllowanceTotal:      allowance,
		ChargeTotal:         charge,
		RoundingAmount:      rounding,
		PayableAmount:       payable,
		Currency:            totals.currency,
	}

	expected := taxInclusive.Sub(allowance).Add(charge).Add(rounding)
	if !money.WithinTolerance(payable, expected) {
		out.add(KindArithmetic, RulePayableIdentity, totals.path,
			fmt.Sprintf("payable amount %s disagrees with tax-inclusive %s - allowances %s + charges %s + rounding %s = %s",
				payable.StringFixed(2), taxInclusive.StringFixed(2), allowance.StringFixed(2),
				charge.StringFixed(2), rounding.StringFixed(2), expected.StringFixed(2)))
	}
}

func (e *Engine) linePass(snap *snapshot, groups []*taxGroup, out *Outcome) {
	// Explicit working copy of the line collection; the snapshot itself
	// stays untouched for callers holding the outcome.
	lines := make([]rawLine, len(snap.lines))
	copy(lines, snap.lines)

	byPercent := make(map[string]*taxGroup, len(groups))
	for _, g := range groups {
		byPercent[g.percent.String()] = g
	}

	total := money.Zero
	for _, line := range lines {
		var missing []string
		if line.id == "" {
			missing = append(missing, "id")
		}
		if line.quantity == "" {
			missing = append(missing, "quantity")
		}
		if line.unitCode == "" {
			missing = append(missing, "unit code")
		}
		if line.unitPrice == "" {
			missing = append(missing, "unit price")
		}
		if line.lineAmount == "" {
			missing = append(missing, "line amount")
		}
		if line.currency == "" {
			missing = append(missing, "currency")
		}
		if !line.hasItem {
			missing = append(missing, "item")
		}
		if len(missing) > 0 {
			out.add(KindStructural, RuleLineFields, line.path,
				"line is missing "+strings.Join(missing, ", "))
		}

		// Lexical check, independent of the numeric value.
		if line.lineAmount != "" && money.FractionDigits(line.lineAmount) > 2 {
			out.add(KindStructural, RuleTwoDecimals, line.path,
				fmt.Sprintf("line amount %q has more than two fractional digits", line.lineAmount))
		}

		var amount decimal.Decimal
		amountOK := false
		if line.lineAmount != "" {
			if parsed, err := money.FromString(line.lineAmount); err == nil {
				amount = parsed
				amountOK = true
				total = total.Add(amount)
			} else {
				out.add(KindStructural, RuleLineFields, line.path,
					fmt.Sprintf("line amount %q is not a number", line.lineAmount))
			}
		}

		group := e.matchGroup(line, byPercent, out)
		if group != nil && amountOK {
			group.lineSum = group.lineSum.Add(amount)
		}

		if line.hasItem && line.itemName == "" {
			out.add(KindStructural, RuleItemName, line.path, "line item has no name")
		}

		if line.hasAdjustment && amountOK {
			e.checkLineComputation(line, amount, out)
		}

		if len(missing) == 0 && amountOK {
			out.Lines = append(out.Lines, typedLine(line, amount))
		}
	}

	out.ComputedLineTotal = total
	e.checkLineExtensionSum(snap, total, out)

	for _, g := range groups {
		if !money.WithinTolerance(g.lineSum, g.taxable) {
			out.add(KindArithmetic, RuleTaxableGroupTotal, "TaxSubtotal["+g.percent.String()+"%]",
				fmt.Sprintf("lines at %s%% sum to %s but the subtotal declares taxable %s",
					g.percent, g.lineSum.StringFixed(2), g.taxable.StringFixed(2)))
		}
	}
}

func (e *Engine) matchGroup(line rawLine, byPercent map[string]*taxGroup, out *Outcome) *taxGroup {
	if line.taxPercent == "" && line.taxCategory == "" {
		out.add(KindStructural, RuleLineTaxGroup, line.path, "line declares no tax category")
		return nil
	}
	percent, err := money.FromString(line.taxPercent)
	if err != nil {
		out.add(KindStructural, RuleLineTaxGroup, line.path,
			fmt.Sprintf("line tax percent %q is not a number", line.taxPercent))
		return nil
	}
	group, ok := byPercent[percent.String()]
	if !ok || group.categoryID != line.taxCategory {
		out.add(KindStructural, RuleLineTaxGroup, line.path,
			fmt.Sprintf("line tax group %s%%/%s matches no declared tax subtotal",
				percent, line.taxCategory))
		return nil
	}
	return group
}

func (e *Engine) checkLineComputation(line rawLine, amount decimal.Decimal, out *Outcome) {
	qty, err1 := money.FromString(line.quantity)
	price, err2 := money.FromString(line.unitPrice)
	adj, err3 := money.FromString(line.adjustAmount)
	if err1 != nil || err2 != nil || err3 != nil {
		out.add(KindStructural, RuleLineFields, line.path,
			"line quantity, price, or adjustment amount is not a number")
		return
	}

	expected := qty.Mul(price)
	if line.chargeIndicator == "true" {
		expected = expected.Add(adj)
	} else {
		expected = expected.Sub(adj)
	}
	expected = money.Round2(expected)

	if !money.WithinTolerance(amount, expected) {
		out.add(KindArithmetic, RuleLineComputation, line.path,
			fmt.Sprintf("declared line amount %s disagrees with quantity %s x price %s adjusted by %s = %s",
				amount.StringFixed(2), qty, price, adj.StringFixed(2), expected.StringFixed(2)))
	}
}

func (e *Engine) checkLineExtensionSum(snap *snapshot, total decimal.Decimal, out *Outcome) {
	if !snap.totals.present || snap.totals.lineExtensionAmount == "" {
		return // already reported by the header pass
	}
	declared, err := money.FromString(snap.totals.lineExtensionAmount)
	if err != nil {
		out.add(KindStructural, RuleHeaderTotals, snap.totals.path,
			fmt.Sprintf("line extension amount %q is not a number", snap.totals.lineExtensionAmount))
		return
	}
	if !money.WithinTolerance(total, declared) {
		out.add(KindArithmetic, RuleLineExtensionSum, snap.totals.path,
			fmt.Sprintf("lines sum to %s but the header declares %s",
				total.StringFixed(2), declared.StringFixed(2)))
	}
}

func typedLine(line rawLine, amount decimal.Decimal) model.MonetaryLine {
	return model.MonetaryLine{
		ID:            line.id,
		Quantity:      optionalAmount(line.quantity),
		UnitCode:      line.unitCode,
		UnitPrice:     optionalAmount(line.unitPrice),
		LineAmount:    amount,
		LineAmountRaw: line.lineAmount,
		Currency:      line.currency,
		TaxPercent:    optionalAmount(line.taxPercent),
		TaxCategoryID: line.taxCategory,
		ItemName:      line.itemName,

		HasAdjustment:    line.hasAdjustment,
		ChargeIndicator:  line.chargeIndicator == "true",
		AdjustmentAmount: optionalAmount(line.adjustAmount),
	}
}

// optionalAmount parses an amount that may legitimately be absent.
// Absent or unreadable values contribute zero to the identity.
func optionalAmount(s string) decimal.Decimal {
	if s == "" {
		return money.Zero
	}
	d, err := money.FromString(s)
	if err != nil {
		return money.Zero
	}
	return d
}

func (o *Outcome) add(kind Kind, rule, location, message string) {
	o.Violations = append(o.Violations, Violation{
		Kind:     kind,
		Rule:     rule,
		Location: location,
		Message:  message,
	})
}

// buildReducedDocument copies the document and replaces its full line
// collection with one synthetic line per tax group carrying the group's
// aggregated taxable amount. Kept small on purpose: the remote check only
// needs the header shape, not tens of thousands of lines.
func buildReducedDocument(doc *document.Document, kind document.Kind, groups []*taxGroup) ([]byte, error) {
	tree := doc.CopyTree()
	root := tree.Root()
	lineTag, qtyTag := lineElementName(kind)

	currency := ""
	for _, el := range document.Children(root, document.NSCommonAggregate, lineTag) {
		if currency == "" {
			if amount := document.Child(el, document.NSCommonBasic, "LineExtensionAmount"); amount != nil {
				currency = document.Attr(amount, "currencyID")
			}
		}
		root.RemoveChild(el)
	}

	for i, g := range groups {
		line := root.CreateElement("cac:" + lineTag)
		line.CreateElement("cbc:ID").SetText("TAXGROUP-" + strconv.Itoa(i+1))
		qty := line.CreateElement("cbc:" + qtyTag)
		qty.SetText("1")
		qty.CreateAttr("unitCode", "C62")
		amount := line.CreateElement("cbc:LineExtensionAmount")
		amount.SetText(g.taxable.StringFixed(2))
		if currency != "" {
			amount.CreateAttr("currencyID", currency)
		}
		item := line.CreateElement("cac:Item")
		item.CreateElement("cbc:Name").SetText("Tax group " + g.percent.String() + "%")
		cat := item.CreateElement("cac:ClassifiedTaxCategory")
		cat.CreateElement("cbc:ID").SetText(g.categoryID)
		cat.CreateElement("cbc:Percent").SetText(g.percent.String())
		price := line.CreateElement("cac:Price")
		price.CreateElement("cbc:PriceAmount").SetText(g.taxable.StringFixed(2))
	}

	return tree.WriteToBytes()
}
