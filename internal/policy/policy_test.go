package policy_test

import (
	"testing"

	"covercat/internal/policy"
	"covercat/internal/stage"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		kind     stage.FailureKind
		max      int
		want     policy.Decision
	}{
		{"first transient", 1, stage.FailureTransient, 3, policy.Retry},
		{"second transient", 2, stage.FailureTransient, 3, policy.Retry},
		{"threshold reached", 3, stage.FailureTransient, 3, policy.Escalate},
		{"past threshold", 5, stage.FailureTransient, 3, policy.Escalate},
		{"permanent first attempt", 1, stage.FailurePermanent, 3, policy.Escalate},
		{"zero max behaves as one", 1, stage.FailureTransient, 0, policy.Escalate},
		{"negative max behaves as one", 1, stage.FailureTransient, -2, policy.Escalate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Decide(tt.attempts, tt.kind, tt.max); got != tt.want {
				t.Fatalf("Decide(%d, %s, %d) = %s, want %s", tt.attempts, tt.kind, tt.max, got, tt.want)
			}
		})
	}
}
