package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"covercat/internal/services"
)

// FailureKind classifies a failed handler invocation.
type FailureKind string

const (
	// FailureTransient covers timeouts, rate limits, and flaky remotes.
	FailureTransient FailureKind = "transient"
	// FailurePermanent means the same inputs will never succeed.
	FailurePermanent FailureKind = "permanent"
	// FailureCancelled means the caller abandoned the run.
	FailureCancelled FailureKind = "cancelled"
)

// Failure is the descriptor a handler returns to state its failure kind
// explicitly. Handlers may also return plain errors; see Classify.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	switch {
	case f.Message != "" && f.Err != nil:
		return f.Message + ": " + f.Err.Error()
	case f.Message != "":
		return f.Message
	case f.Err != nil:
		return f.Err.Error()
	default:
		return string(f.Kind) + " failure"
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// Transient builds a retryable failure.
func Transient(message string, err error) *Failure {
	return &Failure{Kind: FailureTransient, Message: message, Err: err}
}

// Permanent builds a failure that escalates without retrying.
func Permanent(message string, err error) *Failure {
	return &Failure{Kind: FailurePermanent, Message: message, Err: err}
}

// Permanentf formats a permanent failure message.
func Permanentf(format string, args ...any) *Failure {
	return Permanent(fmt.Sprintf(format, args...), nil)
}

// Classify maps any handler error onto a Failure. Explicit Failure values win;
// then context errors; then the service markers; anything else is transient.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}
	var failure *Failure
	if errors.As(err, &failure) {
		if failure.Kind == "" {
			return &Failure{Kind: FailureTransient, Message: failure.Message, Err: failure.Err}
		}
		return failure
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, services.ErrTimeout):
		return &Failure{Kind: FailureTransient, Message: "timeout", Err: err}
	case errors.Is(err, context.Canceled):
		return &Failure{Kind: FailureCancelled, Message: "cancelled", Err: err}
	case services.IsPermanent(err):
		return &Failure{Kind: FailurePermanent, Err: err}
	default:
		return &Failure{Kind: FailureTransient, Err: err}
	}
}

// Describe renders a failure as a single diagnostic line.
func Describe(f *Failure) string {
	if f == nil {
		return ""
	}
	return strings.TrimSpace(f.Error())
}
