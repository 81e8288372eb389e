// Package sqlite persists scans, findings and incremental state in a SQLite
// database whose schema is managed by golang-migrate.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/repositories"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout is fixed width and always UTC so stored values sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// maxParams bounds the placeholders bound in one IN (...) clause
const maxParams = 500

// Store implements repositories.ScanRepository on SQLite
type Store struct {
	db     *sql.DB
	logger interfaces.Logger
}

var _ repositories.ScanRepository = (*Store)(nil)

// Open opens (creating if needed) the database at path. Call
// EnsureConstraints before first use to apply migrations.
func Open(path string, logger interfaces.Logger) (*Store, error) {
	logger = interfaces.OrNoOp(logger)

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time; scans persist from several goroutines
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Debug("database opened", interfaces.F("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureConstraints applies pending migrations. The schema carries the
// unique indexes on scan, issue and vulnerability ids.
func (s *Store) EnsureConstraints(_ context.Context) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to initialize migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	// m.Close would close the shared *sql.DB, so only the source is released

	s.logger.Debug("applying database migrations")
	err = m.Up()
	_ = src.Close()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err == nil {
		s.logger.Info("database migrations applied")
	}
	return nil
}

// SaveScanResult upserts the scan and replaces its findings in one
// transaction. First-seen times are recorded once per issue id.
func (s *Store) SaveScanResult(ctx context.Context, result *entities.SecurityScanResult) error {
	summary, err := marshalJSON(result.Summary)
	if err != nil {
		return err
	}
	var compliance sql.NullString
	if result.Compliance != nil {
		if compliance, err = marshalJSON(result.Compliance); err != nil {
			return err
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO scans (id, status, started_at, completed_at, duration_ns, summary, compliance, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET status = excluded.status, started_at = excluded.started_at,
				completed_at = excluded.completed_at, duration_ns = excluded.duration_ns,
				summary = excluded.summary, compliance = excluded.compliance, error = excluded.error`,
			result.ScanID, string(result.Status), formatTime(result.StartedAt), nullTime(result.CompletedAt),
			int64(result.Duration), summary, compliance, nullString(result.Error))
		if err != nil {
			return fmt.Errorf("saving scan %s: %w", result.ScanID, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM issues WHERE scan_id = ?", result.ScanID); err != nil {
			return fmt.Errorf("clearing issues for scan %s: %w", result.ScanID, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM vulnerabilities WHERE scan_id = ?", result.ScanID); err != nil {
			return fmt.Errorf("clearing vulnerabilities for scan %s: %w", result.ScanID, err)
		}

		for _, issue := range result.Issues {
			if err := insertIssue(ctx, tx, result.ScanID, issue); err != nil {
				return err
			}
		}
		for _, v := range result.Vulnerabilities {
			if err := insertVulnerability(ctx, tx, result.ScanID, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetScan loads a scan with its findings
func (s *Store) GetScan(ctx context.Context, scanID string) (*entities.SecurityScanResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, status, started_at, completed_at, duration_ns, summary, compliance, error
		FROM scans WHERE id = ?`, scanID)
	result, err := scanResultRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", entities.ErrScanNotFound, scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading scan %s: %w", scanID, err)
	}

	if result.Issues, err = s.queryIssues(ctx, "WHERE scan_id = ?", scanID); err != nil {
		return nil, err
	}
	if result.Vulnerabilities, err = s.queryVulnerabilities(ctx, "WHERE scan_id = ?", scanID); err != nil {
		return nil, err
	}
	return result, nil
}

// ListScans returns scan headers without findings, newest first
func (s *Store) ListScans(ctx context.Context, limit int) ([]entities.SecurityScanResult, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, status, started_at, completed_at, duration_ns, summary, compliance, error
		FROM scans ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying scans: %w", err)
	}
	defer rows.Close()

	var out []entities.SecurityScanResult
	for rows.Next() {
		result, err := scanResultRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scan row: %w", err)
		}
		out = append(out, *result)
	}
	return out, rows.Err()
}

// LoadScanState returns the checksum snapshot recorded under scanID
func (s *Store) LoadScanState(ctx context.Context, scanID string) (*entities.IncrementalScanState, error) {
	var last string
	var baseline sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT last_scan_timestamp, baseline_scan_id FROM scan_states WHERE scan_id = ?", scanID).
		Scan(&last, &baseline)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entities.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading state for scan %s: %w", scanID, err)
	}

	state := entities.NewIncrementalScanState()
	state.LastScanTimestamp = parseTime(last)
	state.BaselineScanID = baseline.String

	rows, err := s.db.QueryContext(ctx, "SELECT path, checksum, mod_time, size FROM file_checksums WHERE scan_id = ?", scanID)
	if err != nil {
		return nil, fmt.Errorf("querying checksums for scan %s: %w", scanID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var c entities.FileChecksum
		var modTime sql.NullString
		if err := rows.Scan(&c.Path, &c.Checksum, &modTime, &c.Size); err != nil {
			return nil, fmt.Errorf("scanning checksum row: %w", err)
		}
		c.ModTime = parseTime(modTime.String)
		state.Checksums[c.Path] = c
	}
	return state, rows.Err()
}

// SaveScanState replaces the snapshot stored under scanID
func (s *Store) SaveScanState(ctx context.Context, scanID string, state *entities.IncrementalScanState) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO scan_states (scan_id, last_scan_timestamp, baseline_scan_id) VALUES (?, ?, ?)
			ON CONFLICT(scan_id) DO UPDATE SET last_scan_timestamp = excluded.last_scan_timestamp,
				baseline_scan_id = excluded.baseline_scan_id`,
			scanID, formatTime(state.LastScanTimestamp), nullString(state.BaselineScanID))
		if err != nil {
			return fmt.Errorf("saving state for scan %s: %w", scanID, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM file_checksums WHERE scan_id = ?", scanID); err != nil {
			return fmt.Errorf("clearing checksums for scan %s: %w", scanID, err)
		}

		stmt, err := tx.PrepareContext(ctx, "INSERT INTO file_checksums (scan_id, path, checksum, mod_time, size) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("preparing checksum insert: %w", err)
		}
		defer stmt.Close()

		for path, c := range state.Checksums {
			if _, err := stmt.ExecContext(ctx, scanID, path, c.Checksum, nullTime(c.ModTime), c.Size); err != nil {
				return fmt.Errorf("saving checksum for %s: %w", path, err)
			}
		}
		return nil
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", interfaces.Err(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResultRow(row rowScanner) (*entities.SecurityScanResult, error) {
	var (
		result                entities.SecurityScanResult
		status, started       string
		completed, summary    sql.NullString
		compliance, errString sql.NullString
		duration              int64
	)
	if err := row.Scan(&result.ScanID, &status, &started, &completed, &duration, &summary, &compliance, &errString); err != nil {
		return nil, err
	}

	result.Status = entities.ParseScanStatus(status)
	result.StartedAt = parseTime(started)
	result.CompletedAt = parseTime(completed.String)
	result.Duration = time.Duration(duration)
	result.Error = errString.String

	if summary.Valid {
		if err := unmarshalJSON(summary.String, &result.Summary); err != nil {
			return nil, err
		}
	}
	if compliance.Valid {
		result.Compliance = &entities.ComplianceResult{}
		if err := unmarshalJSON(compliance.String, result.Compliance); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// placeholders returns "?, ?, ?" for n values
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// chunks splits values so each IN clause stays under maxParams
func chunks(values []string) [][]string {
	var out [][]string
	for len(values) > maxParams {
		out = append(out, values[:maxParams])
		values = values[maxParams:]
	}
	if len(values) > 0 {
		out = append(out, values)
	}
	return out
}
