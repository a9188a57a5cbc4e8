package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Record describes a cover record in a transport-friendly format.
type Record struct {
	ID           string            `json:"id"`
	CurrentStage string            `json:"currentStage"`
	Status       string            `json:"status"`
	Attributes   map[string]string `json:"attributes"`
	Attempts     map[string]int    `json:"attempts,omitempty"`
	NeedsReview  bool              `json:"needsReview"`
	ReviewReason string            `json:"reviewReason,omitempty"`
	LastError    string            `json:"lastError,omitempty"`
	EscalatedAt  string            `json:"escalatedAt,omitempty"`
	Version      int64             `json:"version"`
	CreatedAt    string            `json:"createdAt,omitempty"`
	UpdatedAt    string            `json:"updatedAt,omitempty"`
}

// RecordList is the record listing payload.
type RecordList struct {
	Records []Record `json:"records"`
	Count   int      `json:"count"`
}

// Event is one history entry for a record.
type Event struct {
	Type    string `json:"type"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
	At      string `json:"at"`
}

// RecordResponse wraps a record with its history.
type RecordResponse struct {
	Record Record  `json:"record"`
	Events []Event `json:"events"`
}

// RunOutcome reports what a single stage run did.
type RunOutcome struct {
	RecordID    string `json:"recordId"`
	Stage       string `json:"stage"`
	AdvancedTo  string `json:"advancedTo"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	FailureKind string `json:"failureKind,omitempty"`
	Message     string `json:"message,omitempty"`
	Invoked     bool   `json:"invoked"`
	Noop        bool   `json:"noop,omitempty"`
	Escalated   bool   `json:"escalated"`
	RequestID   string `json:"requestId"`
}

// BatchItem is one entry of a batch run.
type BatchItem struct {
	RecordID string     `json:"recordId"`
	Outcome  RunOutcome `json:"outcome"`
	Error    string     `json:"error,omitempty"`
}

// BatchResult summarizes a batch run.
type BatchResult struct {
	Items   []BatchItem `json:"items"`
	Failed  int         `json:"failed"`
	Waits   int         `json:"waits"`
	Stopped bool        `json:"stopped"`
}

// BatchAccepted acknowledges a batch started in the background.
type BatchAccepted struct {
	IDs   []string `json:"ids,omitempty"`
	All   bool     `json:"all"`
	Limit int      `json:"limit,omitempty"`
	Stage string   `json:"stage,omitempty"`
}

// ReviewItem is one record waiting for an operator.
type ReviewItem struct {
	RecordID  string `json:"recordId"`
	Stage     string `json:"stage"`
	Reason    string `json:"reason"`
	LastError string `json:"lastError,omitempty"`
	Attempts  int    `json:"attempts"`
	Since     string `json:"since,omitempty"`
}

// StageCount is the number of records at one stage and status.
type StageCount struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// Snapshot is the pipeline overview payload.
type Snapshot struct {
	Total    int            `json:"total"`
	ByStage  map[string]int `json:"byStage"`
	ByStatus map[string]int `json:"byStatus"`
	Counts   []StageCount   `json:"counts"`
	Review   []ReviewItem   `json:"review"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// StageInfo describes a registered stage.
type StageInfo struct {
	Name           string   `json:"name"`
	Inputs         []string `json:"inputs"`
	Produces       []string `json:"produces"`
	RateLimited    bool     `json:"rateLimited"`
	DelayMS        int64    `json:"delayMs,omitempty"`
	TimeoutSeconds int      `json:"timeoutSeconds"`
	MaxAttempts    int      `json:"maxAttempts"`
}

// CheckResult is one preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates serve process information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	BatchRunning bool           `json:"batchRunning"`
	Watching     string         `json:"watching,omitempty"`
	Counts       map[string]int `json:"counts"`
	Stages       []StageHealth  `json:"stages"`
	Checks       []CheckResult  `json:"checks,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	// Missing lists absent input attributes for precondition failures.
	Missing []string `json:"missing,omitempty"`
}
