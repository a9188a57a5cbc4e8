package workflow

import (
	"errors"
	"fmt"
	"strings"

	"covercat/internal/records"
)

var (
	// ErrRecordNotFound is returned when the record id is unknown.
	ErrRecordNotFound = errors.New("record not found")
	// ErrRecordBusy is returned when another run or review action holds the record.
	ErrRecordBusy = errors.New("record busy")
	// ErrStagePrecondition is returned when a stage is requested out of order.
	ErrStagePrecondition = errors.New("stage precondition failed")
	// ErrUnknownStage is returned for stage names missing from the registry.
	ErrUnknownStage = errors.New("unknown stage")
	// ErrInvalidTransition is returned when the record status forbids the operation.
	ErrInvalidTransition = errors.New("invalid transition")
)

// PreconditionError reports a stage requested before its dependencies hold.
type PreconditionError struct {
	RecordID string
	Stage    string
	Current  string
	Missing  []string
}

func (e *PreconditionError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("record %s: stage %s requires %s", e.RecordID, e.Stage, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("record %s: stage %s is ahead of current stage %s", e.RecordID, e.Stage, e.Current)
}

// Is matches ErrStagePrecondition.
func (e *PreconditionError) Is(target error) bool { return target == ErrStagePrecondition }

// UnknownStageError reports a stage name that is not registered. It matches
// both ErrUnknownStage and ErrStagePrecondition.
type UnknownStageError struct {
	Stage string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown stage %q", e.Stage)
}

// Is matches ErrUnknownStage and ErrStagePrecondition.
func (e *UnknownStageError) Is(target error) bool {
	return target == ErrUnknownStage || target == ErrStagePrecondition
}

// TransitionError reports an operation the record's status does not allow.
type TransitionError struct {
	RecordID  string
	Operation string
	Status    records.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("record %s: %s not allowed while %s", e.RecordID, e.Operation, e.Status)
}

// Is matches ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// BusyError wraps ErrRecordBusy with the record id.
func BusyError(id string) error {
	return fmt.Errorf("record %s: %w", id, ErrRecordBusy)
}

// NotFoundError wraps ErrRecordNotFound with the record id.
func NotFoundError(id string) error {
	return fmt.Errorf("record %s: %w", id, ErrRecordNotFound)
}

// TranslateStoreError maps record store sentinels onto workflow errors.
func TranslateStoreError(id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, records.ErrNotFound):
		return NotFoundError(id)
	case errors.Is(err, records.ErrConflict):
		return BusyError(id)
	default:
		return err
	}
}
