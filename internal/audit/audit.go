package audit

import (
	"context"
	"time"
)

// Severity classifies an audit entry.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Entry is one append-only audit record of a gateway operation. Entries are
// never updated or deleted.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	User       string    `json:"user,omitempty"`
	Product    string    `json:"product,omitempty"`
	Dataset    string    `json:"dataset,omitempty"`
	FileName   string    `json:"file_name,omitempty"`
	Bucket     string    `json:"bucket,omitempty"`
	ObjectPath string    `json:"object_path,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Filter selects audit entries; zero-valued fields match everything.
type Filter struct {
	User    string
	Product string
}

// Log is the audit surface: append one entry per significant operation and
// query recent entries, newest first.
type Log interface {
	Append(ctx context.Context, e Entry) error
	Query(ctx context.Context, f Filter, limit int) ([]Entry, error)
}
