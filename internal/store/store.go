// Package store keeps a sqlite history of build steps and the diagnostics
// they produced.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cargoscan/internal/buildpipeline"
	"cargoscan/internal/diag"
)

// Store is the SQLite data access layer for build history.
type Store struct {
	db *sql.DB
}

// Build is one recorded step run.
type Build struct {
	ID        int64
	Manifest  string
	Step      string
	Command   string
	ExitCode  int
	Errors    int
	Warnings  int
	StartedAt time.Time
	Duration  time.Duration
}

// Succeeded reports whether the step exited zero.
func (b Build) Succeeded() bool { return b.ExitCode == 0 }

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS builds (
  id              INTEGER PRIMARY KEY,
  manifest        TEXT NOT NULL,
  step            TEXT NOT NULL,
  command         TEXT NOT NULL,
  exit_code       INTEGER NOT NULL,
  errors          INTEGER NOT NULL DEFAULT 0,
  warnings        INTEGER NOT NULL DEFAULT 0,
  started_at      INTEGER NOT NULL,
  duration_ms     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS diagnostics (
  id              INTEGER PRIMARY KEY,
  build_id        INTEGER NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
  ordinal         INTEGER NOT NULL,
  severity        TEXT NOT NULL,
  code            TEXT,
  file            TEXT,
  line            INTEGER,
  message         TEXT NOT NULL,
  links           TEXT
);

CREATE INDEX IF NOT EXISTS idx_builds_manifest ON builds(manifest, started_at);
CREATE INDEX IF NOT EXISTS idx_diagnostics_build ON diagnostics(build_id, ordinal);
`

type linkRow struct {
	Start  int    `json:"s"`
	Length int    `json:"l"`
	Target string `json:"t"`
}

// RecordBuild stores a finished step and its diagnostics in one transaction
// and returns the new build id.
func (s *Store) RecordBuild(manifest string, started time.Time, res buildpipeline.Result) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	r, err := tx.Exec(
		"INSERT INTO builds (manifest, step, command, exit_code, errors, warnings, started_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		manifest, res.Step, res.Command.String(), res.ExitCode, res.Errors(), res.Warnings(),
		started.UnixMilli(), res.Elapsed.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert build: %w", err)
	}
	id, err := r.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO diagnostics (build_id, ordinal, severity, code, file, line, message, links) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("prepare diagnostic insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range res.Diagnostics {
		links, err := encodeLinks(d.Links)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.Exec(id, i, d.Severity.String(), d.Code, d.File, d.Line, d.Text(), links); err != nil {
			return 0, fmt.Errorf("insert diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit build: %w", err)
	}
	return id, nil
}

// RecentBuilds returns up to limit builds, newest first. An empty manifest
// lists builds of every project.
func (s *Store) RecentBuilds(manifest string, limit int) ([]Build, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT id, manifest, step, command, exit_code, errors, warnings, started_at, duration_ms FROM builds"
	var args []any
	if manifest != "" {
		query += " WHERE manifest = ?"
		args = append(args, manifest)
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent builds: %w", err)
	}
	defer rows.Close()

	var out []Build
	for rows.Next() {
		var b Build
		var startedMS, durationMS int64
		if err := rows.Scan(&b.ID, &b.Manifest, &b.Step, &b.Command, &b.ExitCode, &b.Errors, &b.Warnings, &startedMS, &durationMS); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		b.StartedAt = time.UnixMilli(startedMS)
		b.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, b)
	}
	return out, rows.Err()
}

// DiagnosticsFor returns the diagnostics of a build in emission order.
func (s *Store) DiagnosticsFor(buildID int64) ([]*diag.Diagnostic, error) {
	rows, err := s.db.Query(
		"SELECT severity, code, file, line, message, links FROM diagnostics WHERE build_id = ? ORDER BY ordinal",
		buildID,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostics for build: %w", err)
	}
	defer rows.Close()

	var out []*diag.Diagnostic
	for rows.Next() {
		var sev, message string
		var code, file, links sql.NullString
		var line sql.NullInt64
		if err := rows.Scan(&sev, &code, &file, &line, &message, &links); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d := &diag.Diagnostic{
			Severity: diag.ParseSeverity(sev),
			Code:     code.String,
			File:     file.String,
			Line:     int(line.Int64),
			Message:  strings.Split(message, "\n"),
		}
		if d.Links, err = decodeLinks(links.String); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep builds of manifest.
func (s *Store) Prune(manifest string, keep int) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM builds WHERE manifest = ? AND id NOT IN (
		   SELECT id FROM builds WHERE manifest = ? ORDER BY started_at DESC, id DESC LIMIT ?)`,
		manifest, manifest, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune builds: %w", err)
	}
	return res.RowsAffected()
}

func encodeLinks(links []diag.LinkSpan) (any, error) {
	if len(links) == 0 {
		return nil, nil
	}
	rows := make([]linkRow, len(links))
	for i, l := range links {
		rows[i] = linkRow{Start: l.Start, Length: l.Length, Target: l.Target}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode links: %w", err)
	}
	return string(data), nil
}

func decodeLinks(s string) ([]diag.LinkSpan, error) {
	if s == "" {
		return nil, nil
	}
	var rows []linkRow
	if err := json.Unmarshal([]byte(s), &rows); err != nil {
		return nil, fmt.Errorf("decode links: %w", err)
	}
	out := make([]diag.LinkSpan, len(rows))
	for i, r := range rows {
		out[i] = diag.LinkSpan{Start: r.Start, Length: r.Length, Target: r.Target}
	}
	return out, nil
}
