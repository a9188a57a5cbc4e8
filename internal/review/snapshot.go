package review

import (
	"context"
	"fmt"
	"time"

	"covercat/internal/records"
)

// Item is one record waiting for an operator.
type Item struct {
	RecordID  string         `json:"record_id"`
	Stage     string         `json:"stage"`
	Reason    string         `json:"reason"`
	LastError string         `json:"last_error,omitempty"`
	Attempts  int            `json:"attempts"`
	Since     time.Time      `json:"since"`
	Status    records.Status `json:"status"`
}

// Snapshot is a read-side view of the whole pipeline.
type Snapshot struct {
	Counts   []records.StageStatusCount `json:"counts"`
	ByStage  map[string]int             `json:"by_stage"`
	ByStatus map[records.Status]int     `json:"by_status"`
	Total    int                        `json:"total"`
	Review   []Item                     `json:"review"`
}

// Snapshot aggregates record counts and lists the review queue, oldest
// escalation first.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot counts: %w", err)
	}
	queue, err := s.store.ReviewQueue(ctx, s.snapshotLimit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot review queue: %w", err)
	}

	snap := Snapshot{
		Counts:   counts,
		ByStage:  make(map[string]int),
		ByStatus: make(map[records.Status]int),
		Review:   make([]Item, 0, len(queue)),
	}
	gauge := make(map[[2]string]int, len(counts))
	for _, c := range counts {
		snap.ByStage[c.Stage] += c.Count
		snap.ByStatus[c.Status] += c.Count
		snap.Total += c.Count
		gauge[[2]string{c.Stage, string(c.Status)}] = c.Count
	}
	s.metrics.SetRecordCounts(gauge)

	for _, rec := range queue {
		item := Item{
			RecordID:  rec.ID,
			Stage:     rec.CurrentStage,
			Reason:    rec.ReviewReason,
			LastError: rec.LastError,
			Attempts:  rec.AttemptsFor(rec.CurrentStage),
			Status:    rec.Status,
			Since:     rec.UpdatedAt,
		}
		if rec.EscalatedAt != nil {
			item.Since = *rec.EscalatedAt
		}
		snap.Review = append(snap.Review, item)
	}
	return snap, nil
}
