// Package policy decides whether a failed stage attempt is retried or
// escalated to human review.
package policy

import "covercat/internal/stage"

// Decision is the outcome of applying the policy to a failure.
type Decision string

const (
	// Retry leaves the record at its stage in the failed status.
	Retry Decision = "retry"
	// Escalate moves the record into the review queue.
	Escalate Decision = "escalate"
)

// Decide applies the retry/escalation rule. attempts counts failures at the
// stage including the one being decided. Permanent failures escalate
// immediately; transient failures escalate once attempts reaches
// maxAttempts. A non-positive maxAttempts is treated as 1.
func Decide(attempts int, kind stage.FailureKind, maxAttempts int) Decision {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if kind == stage.FailurePermanent {
		return Escalate
	}
	if attempts >= maxAttempts {
		return Escalate
	}
	return Retry
}
