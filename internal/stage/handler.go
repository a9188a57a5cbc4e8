package stage

import (
	"context"

	"covercat/internal/records"
)

// Handler computes one stage's attributes from a record's current attributes.
// Implementations must be idempotent: the engine may invoke them again with the
// same inputs after a failure. A returned error is classified with Classify.
type Handler interface {
	Execute(ctx context.Context, attrs records.Attributes) (records.Attributes, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, attrs records.Attributes) (records.Attributes, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, attrs records.Attributes) (records.Attributes, error) {
	return f(ctx, attrs)
}

// HealthChecker is implemented by handlers that can report on the remote
// dependency they call.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}
