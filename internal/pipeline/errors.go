package pipeline

import (
	"errors"
	"fmt"
)

// Stage names, as used in logs, metrics and error reports.
const (
	StageLoad        = "load"
	StageConsolidate = "consolidate"
	StageEnrich      = "enrich"
	StageValidate    = "validate"
	StageAggregate   = "aggregate"
)

// ErrStageFailed is matched by every StageError.
var ErrStageFailed = errors.New("pipeline stage failed")

// StageError reports the stage that stopped a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

// Unwrap exposes both ErrStageFailed and the underlying cause to errors.Is.
func (e *StageError) Unwrap() []error {
	return []error{ErrStageFailed, e.Err}
}

func stageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
