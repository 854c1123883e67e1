// Package errors defines the stable error taxonomy for tkb.
//
// Every failure mode surfaces as a TkbError with a stable code, an optional
// source position, and a suggested remediation so reports are usable both by
// humans and by CI tooling consuming JSON output.
package errors

import (
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ParseWarning indicates a malformed reference marker; extraction continues
	ParseWarning ErrorCode = "PARSE_WARNING"
	// ReferenceIntegrity indicates an edge pointing at a nonexistent node
	ReferenceIntegrity ErrorCode = "REFERENCE_INTEGRITY"
	// CycleDetected indicates a cycle in the parent/blocks subgraph
	CycleDetected ErrorCode = "CYCLE_DETECTED"
	// AsymmetricLink indicates a declared back-reference without a forward reference
	AsymmetricLink ErrorCode = "ASYMMETRIC_LINK"
	// OrphanSpec indicates a specification with no incoming tests/implements edges
	OrphanSpec ErrorCode = "ORPHAN_SPEC"
	// CoverageGap indicates a Done specification failing its coverage gate
	CoverageGap ErrorCode = "COVERAGE_GAP"
	// ImportConflict indicates two records sharing identity during import merge
	ImportConflict ErrorCode = "IMPORT_CONFLICT"
	// Timeout indicates a traversal hit its deadline; partial results returned
	Timeout ErrorCode = "TIMEOUT"
	// StoreCorrupt indicates an unreadable record in a store partition
	StoreCorrupt ErrorCode = "STORE_CORRUPT"
	// NotFound indicates a record lookup miss
	NotFound ErrorCode = "NOT_FOUND"
	// Usage indicates invalid command-line input
	Usage ErrorCode = "USAGE"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Severity classifies whether an issue aborts a gating command.
type Severity string

const (
	// SeverityFatal issues fail validate/coverage gates (exit 1)
	SeverityFatal Severity = "fatal"
	// SeverityWarning issues are reported but never gate
	SeverityWarning Severity = "warning"
)

// Position is a file/line location attached to an issue for error reporting.
type Position struct {
	File string `json:"file"`
	Line int    `json:"line,omitempty"`
}

func (p Position) String() string {
	if p.Line > 0 {
		return fmt.Sprintf("%s:%d", p.File, p.Line)
	}
	return p.File
}

// TkbError represents a tkb error with code, message, position, and remediation
type TkbError struct {
	Code        ErrorCode `json:"code"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	Position    *Position `json:"position,omitempty"`
	Remediation string    `json:"remediation,omitempty"`
	// Details carries code-specific payloads, e.g. the full cycle path
	// for CYCLE_DETECTED as an ordered id list.
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new TkbError
func New(code ErrorCode, message string) *TkbError {
	return &TkbError{
		Code:        code,
		Severity:    severityFor(code),
		Message:     message,
		Remediation: defaultRemediation[code],
	}
}

// Wrap creates a TkbError wrapping an underlying cause
func Wrap(code ErrorCode, message string, cause error) *TkbError {
	e := New(code, message)
	e.cause = cause
	return e
}

// Error implements the error interface
func (e *TkbError) Error() string {
	msg := e.Message
	if e.Position != nil {
		msg = e.Position.String() + ": " + msg
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying error
func (e *TkbError) Unwrap() error {
	return e.cause
}

// At attaches a source position to the error
func (e *TkbError) At(file string, line int) *TkbError {
	e.Position = &Position{File: file, Line: line}
	return e
}

// WithDetails adds details to the error
func (e *TkbError) WithDetails(details interface{}) *TkbError {
	e.Details = details
	return e
}

// WithRemediation overrides the default remediation text
func (e *TkbError) WithRemediation(text string) *TkbError {
	e.Remediation = text
	return e
}

// IsFatal reports whether the error should fail a gating command.
func (e *TkbError) IsFatal() bool {
	return e.Severity == SeverityFatal
}

func severityFor(code ErrorCode) Severity {
	switch code {
	case ParseWarning, AsymmetricLink, OrphanSpec, ImportConflict, Timeout:
		return SeverityWarning
	default:
		return SeverityFatal
	}
}

// defaultRemediation maps error codes to suggested fixes
var defaultRemediation = map[ErrorCode]string{
	ParseWarning:       "fix the annotation so the id matches the configured id pattern",
	ReferenceIntegrity: "create the referenced specification or remove the dangling annotation",
	CycleDetected:      "break the cycle by removing one parent/blocks link",
	AsymmetricLink:     "add a Tests:/Implements: annotation on the referenced artifact",
	OrphanSpec:         "link at least one test or code unit to this specification",
	CoverageGap:        "add passing tests for uncovered acceptance criteria or record a waiver",
	ImportConflict:     "review the merge provenance notes; counts were summed automatically",
	Timeout:            "re-run with a higher --timeout or lower --depth",
	StoreCorrupt:       "restore the partition from version control history",
	Usage:              "run 'tkb --help' for usage",
}
