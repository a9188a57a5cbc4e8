package records

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var recordColumns = []string{
	"id",
	"attributes_json",
	"current_stage",
	"status",
	"attempts_json",
	"review_reason",
	"last_error",
	"escalated_at",
	"resume_status",
	"version",
	"created_at",
	"updated_at",
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id            string
		attributesRaw string
		currentStage  string
		statusStr     string
		attemptsRaw   string
		reviewReason  sql.NullString
		lastError     sql.NullString
		escalatedRaw  sql.NullString
		resumeStatus  sql.NullString
		version       int64
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&id,
		&attributesRaw,
		&currentStage,
		&statusStr,
		&attemptsRaw,
		&reviewReason,
		&lastError,
		&escalatedRaw,
		&resumeStatus,
		&version,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:           id,
		Attributes:   Attributes{},
		CurrentStage: currentStage,
		Status:       Status(statusStr),
		Attempts:     map[string]int{},
		ReviewReason: reviewReason.String,
		LastError:    lastError.String,
		ResumeStatus: Status(resumeStatus.String),
		Version:      version,
	}
	if attributesRaw != "" {
		if err := json.Unmarshal([]byte(attributesRaw), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes for %s: %w", id, err)
		}
	}
	if attemptsRaw != "" {
		if err := json.Unmarshal([]byte(attemptsRaw), &rec.Attempts); err != nil {
			return nil, fmt.Errorf("decode attempts for %s: %w", id, err)
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		rec.UpdatedAt = updated
	}
	if escalatedRaw.Valid {
		if escalated, err := parseTimeString(escalatedRaw.String); err == nil {
			rec.EscalatedAt = &escalated
		}
	}
	return rec, nil
}

func encodeAttributes(attrs Attributes) (string, error) {
	if attrs == nil {
		attrs = Attributes{}
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("encode attributes: %w", err)
	}
	return string(data), nil
}

func encodeAttempts(attempts map[string]int) (string, error) {
	if attempts == nil {
		attempts = map[string]int{}
	}
	data, err := json.Marshal(attempts)
	if err != nil {
		return "", fmt.Errorf("encode attempts: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
