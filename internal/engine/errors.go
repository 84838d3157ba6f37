package engine

import (
	"errors"
	"fmt"
)

// SchemaGapError reports a required dataset or column missing for one
// engine. The engine aborts; the pipeline continues with degraded
// confidence and the gap is surfaced as a Run State flag.
type SchemaGapError struct {
	Engine  string
	Missing string
}

func (e *SchemaGapError) Error() string {
	return fmt.Sprintf("%s: required input %q missing", e.Engine, e.Missing)
}

// ComputationError reports an unexpected type or arithmetic fault.
// Fatal to the affected engine only; the gatekeeper treats any failed
// engine as contributing to high risk.
type ComputationError struct {
	Engine string
	Err    error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: computation failed: %v", e.Engine, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// IsSchemaGap reports whether err is a SchemaGapError.
func IsSchemaGap(err error) bool {
	var sg *SchemaGapError
	return errors.As(err, &sg)
}
