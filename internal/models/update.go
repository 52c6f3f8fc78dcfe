package models

import "time"

// ChangeSet is the delta between two snapshots.
type ChangeSet struct {
	Added   []NewsItem `json:"added"`
	Updated []NewsItem `json:"updated"`
	Removed []string   `json:"removed"`
}

// RecordSource tells whether an update was triggered by the scheduler or by a user.
type RecordSource string

const (
	SourceAuto   RecordSource = "auto"
	SourceManual RecordSource = "manual"
)

// Valid reports whether s is auto or manual.
func (s RecordSource) Valid() bool {
	return s == SourceAuto || s == SourceManual
}

// DataOrigin tells whether a snapshot holds real feed data or demo content.
type DataOrigin string

const (
	OriginFetched  DataOrigin = "fetched"
	OriginFallback DataOrigin = "fallback"
)

// RecordMetadata is attached to each update record.
type RecordMetadata struct {
	TotalNews      int              `json:"totalNews"`
	CategoryCounts map[Category]int `json:"categoryCounts"`
	DataOrigin     DataOrigin       `json:"dataOrigin"`
	DemoCategories []Category       `json:"demoCategories,omitempty"`
	FallbackReason string           `json:"fallbackReason,omitempty"`
}

// UpdateRecord is one entry in the update log.
type UpdateRecord struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Summary   string         `json:"summary"`
	Source    RecordSource   `json:"source"`
	Changes   ChangeSet      `json:"changes"`
	Metadata  RecordMetadata `json:"metadata"`
}

// RunRecord is one scheduler execution.
type RunRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Period    string    `json:"period"`
	Duration  int64     `json:"durationMs"`
	Error     string    `json:"error,omitempty"`
}
