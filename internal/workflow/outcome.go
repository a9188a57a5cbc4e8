package workflow

import (
	"covercat/internal/records"
	"covercat/internal/stage"
)

// Outcome describes what a single Run did to a record.
type Outcome struct {
	RecordID string `json:"record_id"`
	// Stage is the stage that was run.
	Stage string `json:"stage"`
	// AdvancedTo is the record's current stage after the run.
	AdvancedTo  string            `json:"advanced_to"`
	Status      records.Status    `json:"status"`
	Attempts    int               `json:"attempts"`
	FailureKind stage.FailureKind `json:"failure_kind,omitempty"`
	Message     string            `json:"message,omitempty"`
	// Invoked reports whether the stage handler was called.
	Invoked   bool   `json:"invoked"`
	Noop      bool   `json:"noop,omitempty"`
	RequestID string `json:"request_id"`
}

// Escalated reports whether the run moved the record into review.
func (o Outcome) Escalated() bool {
	return o.Status == records.StatusReview
}
