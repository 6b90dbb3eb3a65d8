package model

import "time"

// AuditEntry records one destructive or relocating action.
type AuditEntry struct {
	Path      string    `json:"path"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"sizeBytes"`
}

// RunStats accumulates counters across the runs of one day.
type RunStats struct {
	TotalChecked int   `json:"totalChecked"`
	TotalDeleted int   `json:"totalDeleted"`
	BytesFreed   int64 `json:"bytesFreed"`
}

// StateRecord is the persisted daily checkpoint.
type StateRecord struct {
	Date               string       `json:"date"`
	ProcessedUnits     []string     `json:"processedUnits"`
	UploadsToday       int          `json:"uploadsToday"`
	DeletedUnits       []AuditEntry `json:"deletedUnits"`
	MovedUnits         []AuditEntry `json:"movedUnits"`
	TotalFilesUploaded int          `json:"totalFilesUploaded"`
	UnitsMoved         int          `json:"unitsMoved"`
	LastProcessed      string       `json:"lastProcessed,omitempty"`
	Stats              RunStats     `json:"stats"`
}

// Failure is one delayed upload failure reported by the upload session.
type Failure struct {
	Filename    string `json:"filename"`
	ErrorCode   string `json:"errorCode"`
	ErrorStatus string `json:"errorStatus,omitempty"`
	Details     string `json:"details,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	PageTitle   string `json:"pageTitle,omitempty"`
}

// Action is a journaled reconciliation decision.
type Action struct {
	ID                string    `json:"id"`
	UnitPath          string    `json:"unit_path"`
	DisplayName       string    `json:"display_name"`
	Title             string    `json:"title"`
	Outcome           Outcome   `json:"outcome"`
	Method            Method    `json:"method,omitempty"`
	MatchedIdentifier string    `json:"matched_identifier,omitempty"`
	SizeBytes         int64     `json:"size_bytes"`
	Files             int       `json:"files"`
	CreatedAt         time.Time `json:"created_at"`
}
