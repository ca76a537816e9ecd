package storage

import (
	"context"
	"errors"
	"time"

	"darkmatter/internal/finding"
)

// ErrRunNotFound is returned when a run ID is not in the history.
var ErrRunNotFound = errors.New("run not found")

// HistoryStore persists finished scan reports so that runs can be compared later.
type HistoryStore interface {
	// SaveReport stores a complete report as one run and returns its ID.
	SaveReport(ctx context.Context, report *finding.ScanReport, targets []string) (string, error)

	// Recent lists the latest runs, newest first.
	Recent(ctx context.Context, limit int) ([]RunSummary, error)

	// Findings returns every finding recorded for a run in path and source order.
	Findings(ctx context.Context, runID string) ([]StoredFinding, error)

	Close() error
}

// RunSummary is the headline of one recorded scan.
type RunSummary struct {
	ID        string
	CreatedAt time.Time
	Targets   []string
	Files     int
	Findings  int
	Total     float64
}

// StoredFinding is a finding together with the file it was reported in.
type StoredFinding struct {
	Path string
	finding.Finding
}
