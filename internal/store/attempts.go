// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/trendlab/pkg/types"
)

type attemptRow struct {
	ID                string         `db:"id"`
	JobID             string         `db:"job_id"`
	Seq               int            `db:"seq"`
	SourceName        string         `db:"source_name"`
	SourceURL         string         `db:"source_url"`
	Status            string         `db:"status"`
	FoundItems        int            `db:"found_items"`
	NormalizedPayload sql.NullString `db:"normalized_payload"`
	ErrorMessage      string         `db:"error_message"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

const attemptColumns = `id, job_id, seq, source_name, source_url, status, found_items,
	normalized_payload, error_message, created_at, updated_at`

func encodePayload(records []types.Record) (sql.NullString, error) {
	if records == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(records)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding payload: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func (r attemptRow) toAttempt() (types.SourceAttempt, error) {
	a := types.SourceAttempt{
		ID:           r.ID,
		JobID:        r.JobID,
		Seq:          r.Seq,
		SourceName:   r.SourceName,
		SourceURL:    r.SourceURL,
		Status:       types.AttemptStatus(r.Status),
		FoundItems:   r.FoundItems,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.NormalizedPayload.Valid && r.NormalizedPayload.String != "" {
		if err := json.Unmarshal([]byte(r.NormalizedPayload.String), &a.NormalizedPayload); err != nil {
			return types.SourceAttempt{}, fmt.Errorf("decoding payload of attempt %s: %w", r.ID, err)
		}
	}
	return a, nil
}

// CreateAttempt inserts a source attempt. The job must exist.
func (s *Store) CreateAttempt(ctx context.Context, a types.SourceAttempt) error {
	now := s.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	payload, err := encodePayload(a.NormalizedPayload)
	if err != nil {
		return err
	}
	row := attemptRow{
		ID:                a.ID,
		JobID:             a.JobID,
		Seq:               a.Seq,
		SourceName:        a.SourceName,
		SourceURL:         a.SourceURL,
		Status:            string(a.Status),
		FoundItems:        a.FoundItems,
		NormalizedPayload: payload,
		ErrorMessage:      a.ErrorMessage,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO research_source_attempts (`+attemptColumns+`)
		VALUES (:id, :job_id, :seq, :source_name, :source_url, :status, :found_items,
			:normalized_payload, :error_message, :created_at, :updated_at)
	`, row)
	if err != nil {
		return fmt.Errorf("inserting attempt %s for job %s: %w", a.SourceName, a.JobID, err)
	}
	return nil
}

// UpdateAttempt records the outcome fields of attempt a (status, found
// items, payload, error message).
func (s *Store) UpdateAttempt(ctx context.Context, a types.SourceAttempt) error {
	payload, err := encodePayload(a.NormalizedPayload)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE research_source_attempts
		SET status = ?, found_items = ?, normalized_payload = ?, error_message = ?, updated_at = ?
		WHERE id = ?`),
		string(a.Status), a.FoundItems, payload, a.ErrorMessage, s.now(), a.ID)
	if err != nil {
		return fmt.Errorf("updating attempt %s: %w", a.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("attempt %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

// Attempts returns all attempts of a job in dispatch order.
func (s *Store) Attempts(ctx context.Context, jobID string) ([]types.SourceAttempt, error) {
	var rows []attemptRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT `+attemptColumns+`
		FROM research_source_attempts WHERE job_id = ? ORDER BY seq`), jobID)
	if err != nil {
		return nil, fmt.Errorf("listing attempts of job %s: %w", jobID, err)
	}
	out := make([]types.SourceAttempt, 0, len(rows))
	for _, r := range rows {
		a, err := r.toAttempt()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

type reportRow struct {
	JobID        string    `db:"job_id"`
	Title        string    `db:"title"`
	Report       string    `db:"report"`
	ResultHandle string    `db:"result_handle"`
	CreatedAt    time.Time `db:"created_at"`
}

// SaveReport stores the final report of a job, replacing any earlier one.
// Titles longer than 300 characters are truncated.
func (s *Store) SaveReport(ctx context.Context, jobID string, report types.Report, handle string) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report of job %s: %w", jobID, err)
	}
	title := []rune(report.Title)
	if len(title) > maxReportTitle {
		title = title[:maxReportTitle]
	}
	row := reportRow{
		JobID:        jobID,
		Title:        string(title),
		Report:       string(data),
		ResultHandle: handle,
		CreatedAt:    s.now(),
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO research_reports (job_id, title, report, result_handle, created_at)
		VALUES (:job_id, :title, :report, :result_handle, :created_at)
		ON CONFLICT (job_id) DO UPDATE SET
			title = excluded.title,
			report = excluded.report,
			result_handle = excluded.result_handle
	`, row)
	if err != nil {
		return fmt.Errorf("saving report of job %s: %w", jobID, err)
	}
	return nil
}

// Report returns the stored report of a job and its result handle.
func (s *Store) Report(ctx context.Context, jobID string) (types.Report, string, error) {
	var row reportRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT job_id, title, report, result_handle, created_at
		FROM research_reports WHERE job_id = ?`), jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Report{}, "", fmt.Errorf("report of job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return types.Report{}, "", fmt.Errorf("loading report of job %s: %w", jobID, err)
	}
	var r types.Report
	if err := json.Unmarshal([]byte(row.Report), &r); err != nil {
		return types.Report{}, "", fmt.Errorf("decoding report of job %s: %w", jobID, err)
	}
	return r, row.ResultHandle, nil
}
