// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// JobStatus is a research job's phase. The happy path is linear with a
// single pause at StatusWaitingApproval.
type JobStatus string

const (
	StatusQueued             JobStatus = "queued"
	StatusGeneratingPlan     JobStatus = "generating_plan"
	StatusWaitingApproval    JobStatus = "waiting_approval"
	StatusProcessingStrategy JobStatus = "processing_strategy"
	StatusScrapingData       JobStatus = "scraping_data"
	StatusSynthesizingReport JobStatus = "synthesizing_report"
	StatusFinalizingReport   JobStatus = "finalizing_report"
	StatusGeneratingPDF      JobStatus = "generating_pdf"
	StatusCompleted          JobStatus = "completed"
	StatusFailed             JobStatus = "failed"
	StatusCancelled          JobStatus = "cancelled"
)

// TerminalStatuses lists the statuses a job never leaves.
var TerminalStatuses = []JobStatus{StatusCompleted, StatusFailed, StatusCancelled}

// IsTerminal reports whether s is completed, failed, or cancelled.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Brief is the user's research request.
type Brief struct {
	Description string   `json:"description" yaml:"description"`
	Keywords    []string `json:"keywords" yaml:"keywords"`
	Categories  []string `json:"categories" yaml:"categories"`
}

// ResearchJob is the persisted state of one research run.
type ResearchJob struct {
	ID             string         `json:"job_id" yaml:"job_id"`
	Brief          Brief          `json:"brief" yaml:"brief"`
	Plan           *ResearchPlan  `json:"research_plan,omitempty" yaml:"research_plan,omitempty"`
	PlanProvenance PlanProvenance `json:"plan_provenance,omitempty" yaml:"plan_provenance,omitempty"`
	PlanApproved   bool           `json:"plan_approved" yaml:"plan_approved"`
	Status         JobStatus      `json:"status" yaml:"status"`
	Progress       int            `json:"progress" yaml:"progress"`
	ResultHandle   string         `json:"result_handle,omitempty" yaml:"result_handle,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" yaml:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// AttemptStatus is the lifecycle of one source attempt.
type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "pending"
	AttemptProcessing AttemptStatus = "processing"
	AttemptSuccess    AttemptStatus = "success"
	AttemptError      AttemptStatus = "error"
)

// SourceAttempt records one source query made for a job.
type SourceAttempt struct {
	ID                string        `json:"attempt_id" yaml:"attempt_id"`
	JobID             string        `json:"job_id" yaml:"job_id"`
	Seq               int           `json:"seq" yaml:"seq"`
	SourceName        string        `json:"source_name" yaml:"source_name"`
	SourceURL         string        `json:"source_url" yaml:"source_url"`
	Status            AttemptStatus `json:"status" yaml:"status"`
	FoundItems        int           `json:"found_items" yaml:"found_items"`
	NormalizedPayload []Record      `json:"normalized_payload,omitempty" yaml:"normalized_payload,omitempty"`
	ErrorMessage      string        `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	CreatedAt         time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" yaml:"updated_at"`
}

// EventType is the stable discriminator of a progress event.
type EventType string

const (
	EventInfo      EventType = "info"
	EventSuccess   EventType = "success"
	EventWarning   EventType = "warning"
	EventError     EventType = "error"
	EventComplete  EventType = "complete"
	EventPlanReady EventType = "plan_ready"
)

// IsTerminal reports whether the event ends a job's stream.
func (t EventType) IsTerminal() bool {
	return t == EventComplete || t == EventError
}

// Event is one progress update on a job's stream. Type and Progress are the
// stable contract; Message is free-form.
type Event struct {
	Type         EventType      `json:"type"`
	Message      string         `json:"message"`
	Progress     int            `json:"progress"`
	JobID        string         `json:"job_id,omitempty"`
	Status       JobStatus      `json:"status,omitempty"`
	Source       string         `json:"source,omitempty"`
	FoundItems   int            `json:"found_items,omitempty"`
	Plan         *ResearchPlan  `json:"plan,omitempty"`
	Provenance   PlanProvenance `json:"provenance,omitempty"`
	ResultHandle string         `json:"result_handle,omitempty"`
	TotalItems   int            `json:"total_items,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
