package model

import "time"

// RunStatus represents the final state of an extraction run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunSummary aggregates the counts of one pipeline run.
type RunSummary struct {
	ID         string    `json:"id"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	OutputPath string    `json:"output_path"`
	Error      string    `json:"error,omitempty"`

	Companies        int `json:"companies"`
	Documents        int `json:"documents"`
	DocumentsSkipped int `json:"documents_skipped"`
	PagesSkipped     int `json:"pages_skipped"`
	Fragments        int `json:"fragments"`
	ParsedRecords    int `json:"parsed_records"`
	LLMRecords       int `json:"llm_records"`
	Records          int `json:"records"`
	RowsDropped      int `json:"rows_dropped"`
	Conflicts        int `json:"conflicts"`
	Unresolved       int `json:"unresolved"`
	LLMCalls         int `json:"llm_calls"`
	LLMFailures      int `json:"llm_failures"`
}

// Run is a persisted run with its outcome history.
type Run struct {
	Summary RunSummary  `json:"summary"`
	Skips   []Skip      `json:"skips,omitempty"`
	Records []MRERecord `json:"records,omitempty"`
}
