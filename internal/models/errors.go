package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the diagnostic pipeline.
type ErrorKind string

const (
	ConnectionError        ErrorKind = "ConnectionError"
	CatalogQueryError      ErrorKind = "CatalogQueryError"
	AOIReadError           ErrorKind = "AOIReadError"
	TableScanError         ErrorKind = "TableScanError"
	ExportLayerError       ErrorKind = "ExportLayerError"
	ExportError            ErrorKind = "ExportError"
	ImportCredentialsError ErrorKind = "ImportCredentialsError"
)

// OpError carries the operation, its target and the underlying cause.
type OpError struct {
	Kind   ErrorKind
	Op     string
	Target string
	Err    error
}

func (e *OpError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %q: %v", e.Kind, e.Op, e.Target, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// NewOpError wraps err with a kind.
func NewOpError(kind ErrorKind, op, target string, err error) *OpError {
	return &OpError{Kind: kind, Op: op, Target: target, Err: err}
}

// IsKind reports whether err, or any error it wraps, is an OpError of kind.
func IsKind(err error, kind ErrorKind) bool {
	var op *OpError
	if errors.As(err, &op) {
		return op.Kind == kind
	}
	return false
}
