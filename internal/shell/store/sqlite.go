package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mwessel/netrollout/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteArchive
// =============================================================================

// SQLiteArchive implements Archive using SQLite.
type SQLiteArchive struct {
	db *sqlx.DB
}

// NewSQLiteArchive creates a new SQLite archive and runs migrations.
func NewSQLiteArchive(dsn string) (*SQLiteArchive, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteArchive", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteArchive", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteArchive", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteArchive{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteArchive) Close() error {
	return s.db.Close()
}

// =============================================================================
// Rows
// =============================================================================

// runRow represents a run row in the database.
type runRow struct {
	ID              string `db:"id"`
	TotalDevices    int    `db:"total_devices"`
	Successful      int    `db:"successful"`
	Failed          int    `db:"failed"`
	Skipped         int    `db:"skipped"`
	ExecutionTimeNs int64  `db:"execution_time_ns"`
	StartedAt       string `db:"started_at"`
	DryRun          bool   `db:"dry_run"`
	Summary         string `db:"summary"`
}

// deviceResultRow represents a device result row in the database.
type deviceResultRow struct {
	RunID           string `db:"run_id"`
	DeviceName      string `db:"device_name"`
	Status          string `db:"status"`
	Message         string `db:"message"`
	ConfigLines     int    `db:"config_lines"`
	ExecutionTimeNs int64  `db:"execution_time_ns"`
	Error           string `db:"error"`
}

func toRunRow(r *domain.DeploymentResult) runRow {
	return runRow{
		ID:              r.ID,
		TotalDevices:    r.TotalDevices,
		Successful:      r.Successful,
		Failed:          r.Failed,
		Skipped:         r.Skipped,
		ExecutionTimeNs: int64(r.ExecutionTime),
		StartedAt:       r.StartedAt.UTC().Format(time.RFC3339Nano),
		DryRun:          r.DryRun,
		Summary:         r.Summary,
	}
}

func (row runRow) toDomain() (*domain.DeploymentResult, error) {
	startedAt, err := time.Parse(time.RFC3339Nano, row.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at for run %s: %w", row.ID, err)
	}
	return &domain.DeploymentResult{
		ID:            row.ID,
		TotalDevices:  row.TotalDevices,
		Successful:    row.Successful,
		Failed:        row.Failed,
		Skipped:       row.Skipped,
		ExecutionTime: time.Duration(row.ExecutionTimeNs),
		StartedAt:     startedAt,
		DryRun:        row.DryRun,
		Summary:       row.Summary,
		Results:       make(map[string]domain.DeviceResult),
	}, nil
}

// =============================================================================
// Archive Operations
// =============================================================================

// SaveRun persists a run and its device results in one transaction.
func (s *SQLiteArchive) SaveRun(ctx context.Context, result *domain.DeploymentResult) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("SaveRun", "run", result.ID, "failed to begin transaction", ErrTxFailed)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO runs (id, total_devices, successful, failed, skipped,
			execution_time_ns, started_at, dry_run, summary)
		VALUES (:id, :total_devices, :successful, :failed, :skipped,
			:execution_time_ns, :started_at, :dry_run, :summary)`,
		toRunRow(result))
	if err != nil {
		if isUniqueViolation(err) {
			return NewStoreError("SaveRun", "run", result.ID, "duplicate run ID", ErrDuplicateID)
		}
		return NewStoreError("SaveRun", "run", result.ID, err.Error(), err)
	}

	for name, dr := range result.Results {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO device_results (run_id, device_name, status, message,
				config_lines, execution_time_ns, error)
			VALUES (:run_id, :device_name, :status, :message,
				:config_lines, :execution_time_ns, :error)`,
			deviceResultRow{
				RunID:           result.ID,
				DeviceName:      name,
				Status:          string(dr.Status),
				Message:         dr.Message,
				ConfigLines:     dr.ConfigLines,
				ExecutionTimeNs: int64(dr.ExecutionTime),
				Error:           dr.Error,
			})
		if err != nil {
			return NewStoreError("SaveRun", "device_result", name, err.Error(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("SaveRun", "run", result.ID, "failed to commit", ErrTxFailed)
	}
	return nil
}

// GetRun loads one run by ID with its device results.
func (s *SQLiteArchive) GetRun(ctx context.Context, id string) (*domain.DeploymentResult, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetRun", "run", id, "not found", ErrNotFound)
		}
		return nil, NewStoreError("GetRun", "run", id, err.Error(), err)
	}

	result, err := row.toDomain()
	if err != nil {
		return nil, NewStoreError("GetRun", "run", id, err.Error(), err)
	}
	if err := s.loadDeviceResults(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// ListRuns returns runs newest first with their device results.
func (s *SQLiteArchive) ListRuns(ctx context.Context, opts ListOptions) ([]*domain.DeploymentResult, error) {
	opts = opts.Normalize()

	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListRuns", "run", "", err.Error(), err)
	}

	results := make([]*domain.DeploymentResult, 0, len(rows))
	for _, row := range rows {
		result, err := row.toDomain()
		if err != nil {
			return nil, NewStoreError("ListRuns", "run", row.ID, err.Error(), err)
		}
		if err := s.loadDeviceResults(ctx, result); err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// loadDeviceResults fills result.Results from the device_results table.
func (s *SQLiteArchive) loadDeviceResults(ctx context.Context, result *domain.DeploymentResult) error {
	var rows []deviceResultRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT run_id, device_name, status, message, config_lines,
			execution_time_ns, error
		FROM device_results WHERE run_id = ?`, result.ID)
	if err != nil {
		return NewStoreError("GetRun", "device_result", result.ID, err.Error(), err)
	}

	for _, row := range rows {
		result.Results[row.DeviceName] = domain.DeviceResult{
			DeviceName:    row.DeviceName,
			Status:        domain.DeviceStatus(row.Status),
			Message:       row.Message,
			ConfigLines:   row.ConfigLines,
			ExecutionTime: time.Duration(row.ExecutionTimeNs),
			Error:         row.Error,
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
