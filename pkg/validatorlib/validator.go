// Package validatorlib is the public API for embedding the validator in
// other Go programs.
package validatorlib

import (
	"context"
	"io"

	"github.com/rezonia/peppol-validator/internal/model"
	"github.com/rezonia/peppol-validator/internal/precheck"
	"github.com/rezonia/peppol-validator/internal/report"
	"github.com/rezonia/peppol-validator/internal/validator"
)

// Re-exported result types.
type (
	Report    = report.Report
	Violation = report.Violation
	Breakdown = report.Breakdown
	Stats     = validator.Stats
)

// Severity levels used in Violation.Severity.
const (
	SeverityFatal   = report.SeverityFatal
	SeverityError   = report.SeverityError
	SeverityWarning = report.SeverityWarning
	SeverityInfo    = report.SeverityInfo
)

// Options configures a Validator
type Options struct {
	// PrecheckURL enables remote delegation of the header sanity check.
	PrecheckURL string
}

// DefaultOptions returns the default validator options
func DefaultOptions() Options {
	return Options{}
}

// Validator validates UBL documents against schematron rule sets and
// reconciles their monetary totals.
type Validator struct {
	inner       *validator.Validator
	schematrons [][]byte
}

// New creates a validator with the given options and schematron rule
// sets. The rule sets are compiled lazily and cached by content.
func New(opts Options, schematrons ...[]byte) *Validator {
	var vopts []validator.Option
	if opts.PrecheckURL != "" {
		vopts = append(vopts, validator.WithPrechecker(precheck.NewClient(opts.PrecheckURL)))
	}
	return &Validator{
		inner:       validator.New(vopts...),
		schematrons: schematrons,
	}
}

// NewDefault creates a validator with default options and no rule sets;
// only monetary reconciliation runs.
func NewDefault() *Validator {
	return New(DefaultOptions())
}

// Validate reads a UBL document and returns the merged report.
func (v *Validator) Validate(ctx context.Context, r io.Reader) (*Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewInputError("document", "failed to read input", err)
	}
	return v.ValidateBytes(ctx, data)
}

// ValidateBytes validates an in-memory UBL document.
func (v *Validator) ValidateBytes(ctx context.Context, data []byte) (*Report, error) {
	result, err := v.inner.Validate(ctx, data, v.schematrons)
	if err != nil {
		return nil, err
	}
	return result.Report, nil
}

// Stats returns counters accumulated across this validator's lifetime.
func (v *Validator) Stats() Stats {
	return v.inner.Stats()
}
