package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"darkmatter/internal/finding"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ HistoryStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at INTEGER,
			targets JSON,
			file_count INTEGER,
			finding_count INTEGER,
			total REAL
		);`,
		`CREATE TABLE IF NOT EXISTS files (
			run_id TEXT,
			path TEXT,
			score REAL,
			PRIMARY KEY (run_id, path)
		);`,
		`CREATE TABLE IF NOT EXISTS findings (
			run_id TEXT,
			path TEXT,
			kind TEXT,
			subtype TEXT,
			severity TEXT,
			line INTEGER,
			col INTEGER,
			scope TEXT,
			evidence TEXT,
			origin TEXT,
			raw_value TEXT,
			message TEXT,
			metadata JSON
		);`,
		`CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// SaveReport stores the report in one transaction: either the whole run is
// recorded or nothing is.
func (s *SQLiteStore) SaveReport(ctx context.Context, report *finding.ScanReport, targets []string) (string, error) {
	runID := uuid.NewString()
	targetsJSON, err := json.Marshal(targets)
	if err != nil {
		return "", fmt.Errorf("failed to encode targets: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	// 1. Save Run
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, targets, file_count, finding_count, total)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, s.now().UTC().UnixNano(), targetsJSON, len(report.Files), report.FindingCount(), report.Total); err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	// 2. Save Files and Findings
	fileStmt, err := tx.PrepareContext(ctx, `INSERT INTO files (run_id, path, score) VALUES (?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer fileStmt.Close()

	findingStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (run_id, path, kind, subtype, severity, line, col, scope, evidence, origin, raw_value, message, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", err
	}
	defer findingStmt.Close()

	for _, path := range report.Paths() {
		file := report.Files[path]
		if _, err := fileStmt.ExecContext(ctx, runID, path, file.Score); err != nil {
			return "", fmt.Errorf("failed to save file %s: %w", path, err)
		}
		for _, f := range file.Findings() {
			meta, err := json.Marshal(f.Metadata)
			if err != nil {
				return "", fmt.Errorf("failed to encode metadata in %s: %w", path, err)
			}
			if _, err := findingStmt.ExecContext(ctx, runID, path, f.Kind, f.Subtype, f.Severity.String(),
				f.Line, f.Column, f.Scope, f.Evidence, f.Origin, f.RawValue, f.Message, meta); err != nil {
				return "", fmt.Errorf("failed to save finding in %s: %w", path, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, targets, file_count, finding_count, total
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var created int64
		var targets []byte
		if err := rows.Scan(&r.ID, &created, &targets, &r.Files, &r.Findings, &r.Total); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		if len(targets) > 0 {
			if err := json.Unmarshal(targets, &r.Targets); err != nil {
				return nil, fmt.Errorf("failed to decode targets of run %s: %w", r.ID, err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Findings(ctx context.Context, runID string) ([]StoredFinding, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM runs WHERE id = ?", runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, kind, subtype, severity, line, col, scope, evidence, origin, raw_value, message, metadata
		FROM findings WHERE run_id = ?
		ORDER BY path, line, col, kind, subtype
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var out []StoredFinding
	for rows.Next() {
		var sf StoredFinding
		var severity string
		var meta []byte
		if err := rows.Scan(&sf.Path, &sf.Kind, &sf.Subtype, &severity, &sf.Line, &sf.Column, &sf.Scope,
			&sf.Evidence, &sf.Origin, &sf.RawValue, &sf.Message, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		sf.Severity = finding.ParseSeverity(severity)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &sf.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata in %s:%d: %w", sf.Path, sf.Line, err)
			}
		}
		out = append(out, sf)
	}
	return out, rows.Err()
}
