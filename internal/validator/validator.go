// Package validator orchestrates the full validation of one document:
// every compiled schematron specification plus the monetary
// reconciliation pass, merged into a single report.
package validator

import (
	"context"
	"sync"
	"time"

	"github.com/rezonia/peppol-validator/internal/document"
	"github.com/rezonia/peppol-validator/internal/reconcile"
	"github.com/rezonia/peppol-validator/internal/report"
	"github.com/rezonia/peppol-validator/internal/schematron"
)

// Stats accumulates across the lifetime of a Validator.
type Stats struct {
	Validations     int           `json:"validations"`
	TotalDuration   time.Duration `json:"total_duration"`
	LargestDocument int           `json:"largest_document_bytes"`
	CacheHits       int           `json:"schema_cache_hits"`
}

// Result is the outcome of validating one document. Report is the merged
// view; Runs keeps the per-specification detail in pass order.
type Result struct {
	Report         *report.Report
	Runs           []*schematron.RunResult
	Reconciliation *reconcile.Outcome
	Kind           document.Kind
	Duration       time.Duration
}

// Validator runs validation passes. Safe for concurrent use.
type Validator struct {
	compiler *schematron.Compiler
	engine   *reconcile.Engine

	mu    sync.Mutex
	stats Stats
}

// Option configures the validator
type Option func(*Validator)

// WithPrechecker wires a remote header pre-check into the
// reconciliation pass
func WithPrechecker(p reconcile.Prechecker) Option {
	return func(v *Validator) {
		v.engine = reconcile.NewEngine(reconcile.WithPrechecker(p))
	}
}

// New creates a validator with a shared schema compilation cache.
func New(opts ...Option) *Validator {
	v := &Validator{
		compiler: schematron.NewCompiler(),
		engine:   reconcile.NewEngine(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs every schematron specification and the reconciliation
// pass over one document. The passes run concurrently against the
// immutable document; results merge back in specification order so the
// report is deterministic. Compilation and document faults abort the
// run; individual rule evaluation faults do not.
func (v *Validator) Validate(ctx context.Context, xml []byte, schematrons [][]byte) (*Result, error) {
	start := time.Now()

	doc, err := document.Load(xml)
	if err != nil {
		return nil, err
	}

	schemas := make([]*schematron.Schema, len(schematrons))
	for i, src := range schematrons {
		schema, err := v.compiler.Compile(src)
		if err != nil {
			return nil, err
		}
		schemas[i] = schema
	}

	runs := make([]*schematron.RunResult, len(schemas))
	var outcome *reconcile.Outcome

	done := make(chan struct{}, len(schemas)+1)
	for i, schema := range schemas {
		go func(idx int, s *schematron.Schema) {
			runs[idx] = schematron.Run(doc, s)
			done <- struct{}{}
		}(i, schema)
	}
	go func() {
		outcome = v.engine.Reconcile(ctx, doc)
		done <- struct{}{}
	}()

	for i := 0; i < len(schemas)+1; i++ {
		<-done
	}

	result := &Result{
		Report:         report.Build(runs, outcome),
		Runs:           runs,
		Reconciliation: outcome,
		Kind:           doc.Kind(),
		Duration:       time.Since(start),
	}
	v.recordStats(len(xml), result.Duration)
	return result, nil
}

// Reconcile runs only the monetary pass, without any schematron
// specifications.
func (v *Validator) Reconcile(ctx context.Context, xml []byte) (*Result, error) {
	return v.Validate(ctx, xml, nil)
}

func (v *Validator) recordStats(docSize int, d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats.Validations++
	v.stats.TotalDuration += d
	if docSize > v.stats.LargestDocument {
		v.stats.LargestDocument = docSize
	}
	v.stats.CacheHits = v.compiler.CacheHits()
}

// Stats returns a snapshot of the validator's counters.
func (v *Validator) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}
