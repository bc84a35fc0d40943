package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds reported to callers.
const (
	KindSchema     = "SchemaError"
	KindScoring    = "ScoringError"
	KindRiskRange  = "RiskRangeError"
	KindEvaluation = "EvaluationError"
	KindInternal   = "InternalError"
)

// SchemaError reports input that cannot be read as a table.
type SchemaError struct {
	Reason   string
	Expected []string
	Actual   []string // nil when no header could be read
	Err      error
}

func (e *SchemaError) Error() string {
	msg := "schema error: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + columnsSuffix(e.Expected, e.Actual)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ScoringError reports a feature matrix the frozen model cannot consume.
type ScoringError struct {
	Reason   string
	Row      int    // zero-based data row, -1 when not row specific
	Column   string // empty when not column specific
	Expected []string
	Actual   []string
	Err      error
}

func (e *ScoringError) Error() string {
	var b strings.Builder
	b.WriteString("scoring error: ")
	b.WriteString(e.Reason)
	if e.Row >= 0 {
		fmt.Fprintf(&b, " (row %d", e.Row)
		if e.Column != "" {
			fmt.Fprintf(&b, ", column %q", e.Column)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	b.WriteString(columnsSuffix(e.Expected, e.Actual))
	return b.String()
}

func (e *ScoringError) Unwrap() error { return e.Err }

// RiskRangeError reports a probability outside [0, 1].
type RiskRangeError struct {
	Value float64
}

func (e *RiskRangeError) Error() string {
	return fmt.Sprintf("risk range error: probability %v outside [0, 1]", e.Value)
}

// EvaluationError reports a malformed ground-truth column.
type EvaluationError struct {
	Column string
	Row    int
	Value  string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error: column %q row %d has non-binary value %q", e.Column, e.Row, e.Value)
}

// ErrorKind classifies err into one of the reported kinds.
func ErrorKind(err error) string {
	var schemaErr *SchemaError
	var scoringErr *ScoringError
	var rangeErr *RiskRangeError
	var evalErr *EvaluationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &schemaErr):
		return KindSchema
	case errors.As(err, &scoringErr):
		return KindScoring
	case errors.As(err, &rangeErr):
		return KindRiskRange
	case errors.As(err, &evalErr):
		return KindEvaluation
	default:
		return KindInternal
	}
}

// Columns returns the expected and actual column lists carried by err, if any.
func Columns(err error) (expected, actual []string) {
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return schemaErr.Expected, schemaErr.Actual
	}
	var scoringErr *ScoringError
	if errors.As(err, &scoringErr) {
		return scoringErr.Expected, scoringErr.Actual
	}
	return nil, nil
}

func columnsSuffix(expected, actual []string) string {
	if len(expected) == 0 && actual == nil {
		return ""
	}
	got := "unable to read columns from the file"
	if actual != nil {
		got = strings.Join(actual, ", ")
	}
	return fmt.Sprintf(" [expected columns: %s; actual columns: %s]", strings.Join(expected, ", "), got)
}
