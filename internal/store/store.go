// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists research jobs, source attempts, and final reports.
// It runs on SQLite (the default) or PostgreSQL through sqlx; queries are
// written with ? placeholders and rebound for the active driver. Status
// updates never move a job out of a terminal state.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/trendlab/pkg/types"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when no job (or report) has the given id.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a guarded update finds the job in a
	// state that does not allow it.
	ErrConflict = errors.New("job state conflict")
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	sqliteParams   = "_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	maxReportTitle = 300
)

// terminalIn is the SQL list of terminal statuses used by guarded updates.
var terminalIn = func() string {
	quoted := make([]string, len(types.TerminalStatuses))
	for i, s := range types.TerminalStatuses {
		quoted[i] = "'" + string(s) + "'"
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}()

// Store is the job database.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open connects to the configured database and creates the schema if it
// does not exist. For SQLite the parent directory of the file is created.
func Open(ctx context.Context, cfg types.StoreConfig) (*Store, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch cfg.Driver {
	case DriverSQLite, "":
		if dir := filepath.Dir(cfg.DSN); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		sep := "?"
		if strings.Contains(cfg.DSN, "?") {
			sep = "&"
		}
		db, err = sqlx.ConnectContext(ctx, DriverSQLite, cfg.DSN+sep+sqliteParams)
		if err == nil {
			// SQLite allows one writer; a single connection serializes
			// writes instead of surfacing SQLITE_BUSY.
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sqlx.ConnectContext(ctx, DriverPostgres, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS research_jobs (
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			keywords TEXT NOT NULL,
			categories TEXT NOT NULL,
			research_plan TEXT,
			plan_provenance TEXT NOT NULL DEFAULT '',
			plan_approved BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			result_handle TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON research_jobs(created_at)`,
		`CREATE TABLE IF NOT EXISTS research_source_attempts (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL REFERENCES research_jobs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			source_name TEXT NOT NULL,
			source_url TEXT NOT NULL,
			status TEXT NOT NULL,
			found_items INTEGER NOT NULL DEFAULT 0,
			normalized_payload TEXT,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (job_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_job_id ON research_source_attempts(job_id)`,
		`CREATE TABLE IF NOT EXISTS research_reports (
			job_id TEXT PRIMARY KEY REFERENCES research_jobs(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			report TEXT NOT NULL,
			result_handle TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// --- jobs ---

type jobRow struct {
	ID             string         `db:"id"`
	Description    string         `db:"description"`
	Keywords       string         `db:"keywords"`
	Categories     string         `db:"categories"`
	ResearchPlan   sql.NullString `db:"research_plan"`
	PlanProvenance string         `db:"plan_provenance"`
	PlanApproved   bool           `db:"plan_approved"`
	Status         string         `db:"status"`
	Progress       int            `db:"progress"`
	ResultHandle   string         `db:"result_handle"`
	ErrorMessage   string         `db:"error_message"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	CompletedAt    sql.NullTime   `db:"completed_at"`
}

const jobColumns = `id, description, keywords, categories, research_plan, plan_provenance,
	plan_approved, status, progress, result_handle, error_message, created_at, updated_at, completed_at`

func toJobRow(j types.ResearchJob) (jobRow, error) {
	kw, err := json.Marshal(nonNil(j.Brief.Keywords))
	if err != nil {
		return jobRow{}, err
	}
	cat, err := json.Marshal(nonNil(j.Brief.Categories))
	if err != nil {
		return jobRow{}, err
	}
	plan, err := encodePlan(j.Plan)
	if err != nil {
		return jobRow{}, err
	}
	row := jobRow{
		ID:             j.ID,
		Description:    j.Brief.Description,
		Keywords:       string(kw),
		Categories:     string(cat),
		ResearchPlan:   plan,
		PlanProvenance: string(j.PlanProvenance),
		PlanApproved:   j.PlanApproved,
		Status:         string(j.Status),
		Progress:       j.Progress,
		ResultHandle:   j.ResultHandle,
		ErrorMessage:   j.ErrorMessage,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
	if j.CompletedAt != nil {
		row.CompletedAt = sql.NullTime{Time: *j.CompletedAt, Valid: true}
	}
	return row, nil
}

func (r jobRow) toJob() (types.ResearchJob, error) {
	j := types.ResearchJob{
		ID:             r.ID,
		Brief:          types.Brief{Description: r.Description},
		PlanProvenance: types.PlanProvenance(r.PlanProvenance),
		PlanApproved:   r.PlanApproved,
		Status:         types.JobStatus(r.Status),
		Progress:       r.Progress,
		ResultHandle:   r.ResultHandle,
		ErrorMessage:   r.ErrorMessage,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.Keywords), &j.Brief.Keywords); err != nil {
		return types.ResearchJob{}, fmt.Errorf("decoding keywords of job %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Categories), &j.Brief.Categories); err != nil {
		return types.ResearchJob{}, fmt.Errorf("decoding categories of job %s: %w", r.ID, err)
	}
	if r.ResearchPlan.Valid && r.ResearchPlan.String != "" {
		var plan types.ResearchPlan
		if err := json.Unmarshal([]byte(r.ResearchPlan.String), &plan); err != nil {
			return types.ResearchJob{}, fmt.Errorf("decoding plan of job %s: %w", r.ID, err)
		}
		j.Plan = &plan
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		j.CompletedAt = &t
	}
	return j, nil
}

func encodePlan(p *types.ResearchPlan) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding plan: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// CreateJob inserts job. Zero timestamps are set to now.
func (s *Store) CreateJob(ctx context.Context, job types.ResearchJob) error {
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	row, err := toJobRow(job)
	if err != nil {
		return fmt.Errorf("encoding job %s: %w", job.ID, err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO research_jobs (`+jobColumns+`)
		VALUES (:id, :description, :keywords, :categories, :research_plan, :plan_provenance,
			:plan_approved, :status, :progress, :result_handle, :error_message, :created_at, :updated_at, :completed_at)
	`, row)
	if err != nil {
		return fmt.Errorf("inserting job %s: %w", job.ID, err)
	}
	return nil
}

// Job returns the job with the given id, or ErrNotFound.
func (s *Store) Job(ctx context.Context, id string) (types.ResearchJob, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+jobColumns+` FROM research_jobs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ResearchJob{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.ResearchJob{}, fmt.Errorf("loading job %s: %w", id, err)
	}
	return row.toJob()
}

// ListJobs returns the most recent jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]types.ResearchJob, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT `+jobColumns+` FROM research_jobs ORDER BY created_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	jobs := make([]types.ResearchJob, 0, len(rows))
	for _, r := range rows {
		j, err := r.toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// UpdateStatus sets status and progress of a non-terminal job. It returns
// ErrConflict when the job is already terminal.
func (s *Store) UpdateStatus(ctx context.Context, id string, status types.JobStatus, progress int) error {
	return s.guarded(ctx, id, `UPDATE research_jobs SET status = ?, progress = ?, updated_at = ?
		WHERE id = ? AND status NOT IN `+terminalIn,
		string(status), progress, s.now(), id)
}

// SavePlan stores the generated plan and moves the job to status.
func (s *Store) SavePlan(ctx context.Context, id string, plan types.ResearchPlan, prov types.PlanProvenance, status types.JobStatus, progress int) error {
	enc, err := encodePlan(&plan)
	if err != nil {
		return err
	}
	return s.guarded(ctx, id, `UPDATE research_jobs
		SET research_plan = ?, plan_provenance = ?, status = ?, progress = ?, updated_at = ?
		WHERE id = ? AND status NOT IN `+terminalIn,
		enc, string(prov), string(status), progress, s.now(), id)
}

// ApprovePlan atomically moves a job from waiting_approval to
// processing_strategy and marks the plan approved. A non-nil plan replaces
// the stored one and is recorded as user-provided. ErrConflict means the
// job was not waiting for approval.
func (s *Store) ApprovePlan(ctx context.Context, id string, plan *types.ResearchPlan, progress int) error {
	now := s.now()
	if plan == nil {
		return s.guarded(ctx, id, `UPDATE research_jobs
			SET plan_approved = ?, status = ?, progress = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			true, string(types.StatusProcessingStrategy), progress, now, id, string(types.StatusWaitingApproval))
	}
	enc, err := encodePlan(plan)
	if err != nil {
		return err
	}
	return s.guarded(ctx, id, `UPDATE research_jobs
		SET research_plan = ?, plan_provenance = ?, plan_approved = ?, status = ?, progress = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		enc, string(types.ProvenanceUser), true, string(types.StatusProcessingStrategy), progress, now,
		id, string(types.StatusWaitingApproval))
}

// Complete marks a job completed with its result handle.
func (s *Store) Complete(ctx context.Context, id, handle string) error {
	now := s.now()
	return s.guarded(ctx, id, `UPDATE research_jobs
		SET status = ?, progress = 100, result_handle = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status NOT IN `+terminalIn,
		string(types.StatusCompleted), handle, now, now, id)
}

// Finish moves a non-terminal job to a terminal status (failed or
// cancelled) and records msg.
func (s *Store) Finish(ctx context.Context, id string, status types.JobStatus, msg string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish job %s: %s is not a terminal status", id, status)
	}
	now := s.now()
	return s.guarded(ctx, id, `UPDATE research_jobs
		SET status = ?, error_message = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status NOT IN `+terminalIn,
		string(status), msg, now, now, id)
}

// guarded runs a conditional update on one job and maps "no row changed"
// to ErrNotFound or ErrConflict.
func (s *Store) guarded(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("updating job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating job %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = s.db.GetContext(ctx, &status, s.db.Rebind(`SELECT status FROM research_jobs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading job %s: %w", id, err)
	}
	return fmt.Errorf("job %s is %s: %w", id, status, ErrConflict)
}
