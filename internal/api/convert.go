package api

import (
	"slices"
	"time"

	"covercat/internal/preflight"
	"covercat/internal/records"
	"covercat/internal/review"
	"covercat/internal/stage"
	"covercat/internal/workflow"
)

// FromRecord converts a stored record to its API representation.
func FromRecord(rec *records.Record) Record {
	if rec == nil {
		return Record{}
	}
	dto := Record{
		ID:           rec.ID,
		CurrentStage: rec.CurrentStage,
		Status:       string(rec.Status),
		Attributes:   map[string]string(rec.Attributes.Clone()),
		NeedsReview:  rec.Status == records.StatusReview,
		ReviewReason: rec.ReviewReason,
		LastError:    rec.LastError,
		Version:      rec.Version,
		CreatedAt:    formatTime(rec.CreatedAt),
		UpdatedAt:    formatTime(rec.UpdatedAt),
	}
	if len(rec.Attempts) > 0 {
		dto.Attempts = make(map[string]int, len(rec.Attempts))
		for name, n := range rec.Attempts {
			if n > 0 {
				dto.Attempts[name] = n
			}
		}
	}
	if rec.EscalatedAt != nil {
		dto.EscalatedAt = formatTime(*rec.EscalatedAt)
	}
	return dto
}

// FromRecords converts a slice of records into API DTOs.
func FromRecords(recs []*records.Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromRecord(rec))
	}
	return out
}

// FromRecordList wraps converted records with their count.
func FromRecordList(recs []*records.Record) RecordList {
	return RecordList{Records: FromRecords(recs), Count: len(recs)}
}

// FromEvents converts record history into API DTOs.
func FromEvents(events []records.Event) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		out = append(out, Event{
			Type:    ev.Type,
			Stage:   ev.Stage,
			Message: ev.Message,
			At:      formatTime(ev.At),
		})
	}
	return out
}

// FromOutcome converts a run outcome.
func FromOutcome(o workflow.Outcome) RunOutcome {
	return RunOutcome{
		RecordID:    o.RecordID,
		Stage:       o.Stage,
		AdvancedTo:  o.AdvancedTo,
		Status:      string(o.Status),
		Attempts:    o.Attempts,
		FailureKind: string(o.FailureKind),
		Message:     o.Message,
		Invoked:     o.Invoked,
		Noop:        o.Noop,
		Escalated:   o.Escalated(),
		RequestID:   o.RequestID,
	}
}

// FromBatch converts a batch result, flattening item errors to strings.
func FromBatch(b workflow.BatchResult) BatchResult {
	out := BatchResult{
		Items:   make([]BatchItem, 0, len(b.Items)),
		Failed:  b.Failed(),
		Waits:   b.Waits,
		Stopped: b.Stopped,
	}
	for _, item := range b.Items {
		dto := BatchItem{RecordID: item.RecordID, Outcome: FromOutcome(item.Outcome)}
		if item.Err != nil {
			dto.Error = item.Err.Error()
		}
		out.Items = append(out.Items, dto)
	}
	return out
}

// FromSnapshot converts the review snapshot.
func FromSnapshot(s review.Snapshot) Snapshot {
	out := Snapshot{
		Total:    s.Total,
		ByStage:  make(map[string]int, len(s.ByStage)),
		ByStatus: make(map[string]int, len(s.ByStatus)),
		Counts:   make([]StageCount, 0, len(s.Counts)),
		Review:   make([]ReviewItem, 0, len(s.Review)),
	}
	for name, n := range s.ByStage {
		out.ByStage[name] = n
	}
	for status, n := range s.ByStatus {
		out.ByStatus[string(status)] = n
	}
	for _, c := range s.Counts {
		out.Counts = append(out.Counts, StageCount{Stage: c.Stage, Status: string(c.Status), Count: c.Count})
	}
	for _, item := range s.Review {
		out.Review = append(out.Review, ReviewItem{
			RecordID:  item.RecordID,
			Stage:     item.Stage,
			Reason:    item.Reason,
			LastError: item.LastError,
			Attempts:  item.Attempts,
			Since:     formatTime(item.Since),
		})
	}
	return out
}

// StageHealthSlice converts health reports, keeping registry order.
func StageHealthSlice(health []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromDescriptors describes the registered stages in order.
func FromDescriptors(descs []stage.Descriptor) []StageInfo {
	out := make([]StageInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, StageInfo{
			Name:           d.Name,
			Inputs:         slices.Clone(d.InputsRequired),
			Produces:       slices.Clone(d.Produces),
			RateLimited:    d.RateLimited,
			DelayMS:        d.Delay.Milliseconds(),
			TimeoutSeconds: int(d.Timeout / time.Second),
			MaxAttempts:    d.MaxAttempts,
		})
	}
	return out
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

// MergeCounts produces a status-keyed total from stage/status counts.
func MergeCounts(counts []records.StageStatusCount) map[string]int {
	out := make(map[string]int, len(records.AllStatuses()))
	for _, status := range records.AllStatuses() {
		out[string(status)] = 0
	}
	for _, c := range counts {
		out[string(c.Status)] += c.Count
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
