// Package state tracks what distillprep has fetched and tokenized,
// in a local SQLite manifest.
package state

import (
	"time"
)

// RunKind identifies what a run did.
type RunKind string

const (
	RunKindFetch    RunKind = "fetch"
	RunKindTokenize RunKind = "tokenize"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Download is a completed corpus file download.
type Download struct {
	Corpus      string
	File        string
	Path        string
	Bytes       int64
	SHA256      string
	CompletedAt time.Time
}

// Run is one fetch or tokenize invocation.
type Run struct {
	ID         string
	Kind       RunKind
	Corpus     string
	Status     RunStatus
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Store is the manifest interface.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	RecordDownload(d *Download) error
	ListDownloads() ([]*Download, error)

	CreateRun(kind RunKind, corpus string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	ListRuns(limit int) ([]*Run, error)
}
