// Package history persists one row per launch attempt in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/bxt-launcher/internal/config"
	"github.com/mattjoyce/bxt-launcher/internal/launch"
)

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 50

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts the entry or replaces the row with the same ID.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("launch id is empty")
	}
	if e.Status == "" {
		return fmt.Errorf("status is empty")
	}

	modules := e.Modules
	if modules == nil {
		modules = []Module{}
	}
	modulesJSON, err := json.Marshal(modules)
	if err != nil {
		return fmt.Errorf("marshal modules: %w", err)
	}

	var completedAt any
	if e.CompletedAt != nil {
		completedAt = e.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	var pid any
	if e.PID != 0 {
		pid = int64(e.PID)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO launch_log(
  id, profile, executable, command_line, modules, status, error_kind, error, pid, started_at, completed_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  profile = excluded.profile,
  executable = excluded.executable,
  command_line = excluded.command_line,
  modules = excluded.modules,
  status = excluded.status,
  error_kind = excluded.error_kind,
  error = excluded.error,
  pid = excluded.pid,
  completed_at = excluded.completed_at;
`, e.ID, e.Profile, e.Executable, e.CommandLine, string(modulesJSON), e.Status,
		nullString(e.ErrorKind), nullString(e.Error), pid,
		e.StartedAt.UTC().Format(time.RFC3339Nano), completedAt)
	if err != nil {
		return fmt.Errorf("record launch: %w", err)
	}
	return nil
}

// Get returns the entry with id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, profile, executable, command_line, modules, status, error_kind, error, pid, started_at, completed_at
FROM launch_log
WHERE id = ?;
`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get launch: %w", err)
	}
	return e, nil
}

// List returns the most recent entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, profile, executable, command_line, modules, status, error_kind, error, pid, started_at, completed_at
FROM launch_log
ORDER BY started_at DESC, id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list launches: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan launch: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list launches: %w", err)
	}
	return out, nil
}

// Prune deletes finished entries that started more than retention ago and
// returns how many were removed. Running entries are kept.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
DELETE FROM launch_log
WHERE started_at < ? AND status != ?;
`, cutoff, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("prune launches: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e           Entry
		modulesRaw  string
		errorKind   sql.NullString
		errMsg      sql.NullString
		pid         sql.NullInt64
		startedAt   string
		completedAt sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Profile, &e.Executable, &e.CommandLine, &modulesRaw, &e.Status,
		&errorKind, &errMsg, &pid, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(modulesRaw), &e.Modules); err != nil {
		return nil, fmt.Errorf("decode modules of %s: %w", e.ID, err)
	}
	e.ErrorKind = errorKind.String
	e.Error = errMsg.String
	if pid.Valid {
		e.PID = uint32(pid.Int64)
	}

	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at of %s: %w", e.ID, err)
	}
	e.StartedAt = t
	if completedAt.Valid {
		ct, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at of %s: %w", e.ID, err)
		}
		e.CompletedAt = &ct
	}
	return &e, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Fingerprint describes targets as history modules, hashing enabled ones.
// A module that cannot be read is recorded without a hash.
func Fingerprint(targets []launch.Target) []Module {
	out := make([]Module, 0, len(targets))
	for _, t := range targets {
		m := Module{Role: t.Role.String(), Path: t.Path, Enabled: t.Enabled}
		if t.Enabled && t.Path != "" {
			if h, err := config.Fingerprint(t.Path); err == nil {
				m.Blake3 = h
			}
		}
		out = append(out, m)
	}
	return out
}
