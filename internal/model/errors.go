package model

import "fmt"

// InputError reports input that cannot be interpreted at all: an invoice
// document or rule specification that fails to parse. No partial report is
// produced when this occurs.
type InputError struct {
	Source  string
	Message string
	Cause   error
}

func (e *InputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (%v)", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Source, e.Message)
}

func (e *InputError) Unwrap() error {
	return e.Cause
}

// NewInputError creates a new input error
func NewInputError(source, message string, cause error) *InputError {
	return &InputError{
		Source:  source,
		Message: message,
		Cause:   cause,
	}
}

// EvalError reports an assertion test expression that could not be
// evaluated (malformed expression, unexpected shape). It is recovered
// locally and surfaced as a failed assertion; the run continues.
type EvalError struct {
	RuleID  string
	Test    string
	Message string
	Cause   error
}

func (e *EvalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rule %s: %s: %s (%v)", e.RuleID, e.Test, e.Message, e.Cause)
	}
	return fmt.Sprintf("rule %s: %s: %s", e.RuleID, e.Test, e.Message)
}

func (e *EvalError) Unwrap() error {
	return e.Cause
}

// NewEvalError creates a new evaluation error
func NewEvalError(ruleID, test, message string, cause error) *EvalError {
	return &EvalError{
		RuleID:  ruleID,
		Test:    test,
		Message: message,
		Cause:   cause,
	}
}
