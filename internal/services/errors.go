package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later failure classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsPermanent reports whether err carries a marker that retrying with the
// same inputs cannot fix.
func IsPermanent(err error) bool {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return true
	default:
		return false
	}
}

// MarkerForStatus maps an HTTP response status from a remote collaborator to
// the marker used when wrapping the failure.
func MarkerForStatus(code int) error {
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrConfiguration
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout:
		return ErrTransient
	case code >= 500:
		return ErrTransient
	case code >= 400:
		return ErrValidation
	default:
		return ErrTransient
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// ErrorDetails summarizes a wrapped service error for logs and API payloads.
type ErrorDetails struct {
	Kind    string
	Message string
	Hint    string
}

// Details extracts the marker kind and an operator hint from err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Message: strings.TrimSpace(err.Error())}
	switch {
	case errors.Is(err, ErrConfiguration):
		details.Kind = "configuration"
		details.Hint = "check covercat config and credentials"
	case errors.Is(err, ErrNotFound):
		details.Kind = "not_found"
		details.Hint = "correct the record attributes and retry"
	case errors.Is(err, ErrValidation):
		details.Kind = "validation"
		details.Hint = "inspect the record inputs"
	case errors.Is(err, ErrTimeout):
		details.Kind = "timeout"
		details.Hint = "remote was slow; the stage will be retried"
	case errors.Is(err, ErrExternalTool):
		details.Kind = "external"
		details.Hint = "check the remote service logs"
	default:
		details.Kind = "transient"
		details.Hint = "the stage will be retried"
	}
	return details
}
