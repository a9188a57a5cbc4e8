package records

import (
	"maps"
	"sort"
	"time"
)

// Status represents the workflow state of a record at its current stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusReview    Status = "review"
)

// StageDone is the terminal marker stored in CurrentStage once the last
// registered stage has succeeded.
const StageDone = "done"

// DefaultReviewReason is recorded when an operator escalates without a reason.
const DefaultReviewReason = "Marked for manual review"

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusSucceeded,
	StatusFailed,
	StatusReview,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a user-supplied string into a Status.
func ParseStatus(value string) (Status, bool) {
	for _, status := range allStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// Domain attribute keys produced by the cover pipeline.
const (
	AttrImagePath = "image_path"
	AttrTitle     = "title"
	AttrTeam      = "team"
	AttrIMDbURL   = "imdb_url"
	AttrIMDbID    = "imdb_id"
	AttrTitleES   = "title_es"
	AttrOMDbJSON  = "omdb_json"
	AttrPlotEN    = "plot_en"
	AttrPlotES    = "plot_es"
)

// Attributes holds a record's domain fields. An absent key is null.
type Attributes map[string]string

// Has reports whether key is non-null.
func (a Attributes) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Clone returns an independent copy.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	maps.Copy(out, a)
	return out
}

// Merge overlays updates onto a copy of a.
func (a Attributes) Merge(updates Attributes) Attributes {
	out := a.Clone()
	maps.Copy(out, updates)
	return out
}

// Without returns a copy of a with keys removed.
func (a Attributes) Without(keys ...string) Attributes {
	out := a.Clone()
	for _, key := range keys {
		delete(out, key)
	}
	return out
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for key := range a {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Record is one catalog item under processing.
type Record struct {
	ID           string
	Attributes   Attributes
	CurrentStage string
	Status       Status
	Attempts     map[string]int
	ReviewReason string
	LastError    string
	EscalatedAt  *time.Time
	// ResumeStatus holds the status a running record had when it was claimed.
	ResumeStatus Status
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AttemptsFor returns the attempt count recorded for stage.
func (r *Record) AttemptsFor(stage string) int {
	if r == nil || r.Attempts == nil {
		return 0
	}
	return r.Attempts[stage]
}

// SetAttempts stores the attempt count for stage.
func (r *Record) SetAttempts(stage string, n int) {
	if r.Attempts == nil {
		r.Attempts = make(map[string]int)
	}
	if n <= 0 {
		delete(r.Attempts, stage)
		return
	}
	r.Attempts[stage] = n
}

// IsDone reports whether the record has completed every stage.
func (r *Record) IsDone() bool {
	return r != nil && r.CurrentStage == StageDone
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Attributes = r.Attributes.Clone()
	out.Attempts = make(map[string]int, len(r.Attempts))
	maps.Copy(out.Attempts, r.Attempts)
	if r.EscalatedAt != nil {
		ts := *r.EscalatedAt
		out.EscalatedAt = &ts
	}
	return &out
}

// Event is one entry of a record's workflow history.
type Event struct {
	ID       int64
	RecordID string
	Type     string
	Stage    string
	Message  string
	At       time.Time
}

// History event types.
const (
	EventIngested   = "ingested"
	EventStarted    = "stage_started"
	EventSucceeded  = "stage_succeeded"
	EventFailed     = "stage_failed"
	EventEscalated  = "escalated"
	EventCancelled  = "cancelled"
	EventApproved   = "approved"
	EventRetryFrom  = "retry_from"
	EventMarkReview = "mark_review"
	EventReclaimed  = "reclaimed"
	EventEdited     = "edited"
)

// Filter narrows List results. Empty slices do not filter.
type Filter struct {
	IDs           []string
	Statuses      []Status
	Stages        []string
	ExcludeStages []string
	Limit         int
}

// StageStatusCount is one row of the (current_stage, status) aggregate.
type StageStatusCount struct {
	Stage  string
	Status Status
	Count  int
}
