package models

import "time"

// WorkflowStatus is the execution status of a workflow.
type WorkflowStatus string

const (
	WorkflowActive     WorkflowStatus = "active"
	WorkflowIdle       WorkflowStatus = "idle"
	WorkflowErrored    WorkflowStatus = "error"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowProcessing WorkflowStatus = "processing"
)

// Valid reports whether s is a known workflow status.
func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowActive, WorkflowIdle, WorkflowErrored, WorkflowCompleted, WorkflowProcessing:
		return true
	}
	return false
}

// TriggerType determines how a workflow is started. Exactly one of
// cron_schedule / event_trigger is meaningful, selected by the trigger type;
// the other field must be treated as absent.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerEvent     TriggerType = "event"
)

// DefaultCategory is assigned when a workflow row carries no category.
const DefaultCategory = "uncategorized"

// Workflow represents an automation workflow row.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Category    string         `json:"category,omitempty"`
	Status      WorkflowStatus `json:"status"`
	TriggerType TriggerType    `json:"trigger_type"`

	// CronSchedule is meaningful only when TriggerType is "scheduled"
	CronSchedule string `json:"cron_schedule,omitempty"`

	// EventTrigger is meaningful only when TriggerType is "event"
	EventTrigger string `json:"event_trigger,omitempty"`

	Config  map[string]any `json:"config,omitempty"`
	LastRun *time.Time     `json:"last_run,omitempty"`
	NextRun *time.Time     `json:"next_run,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RanOn reports whether the workflow's last run falls on the calendar day
// of ref, in ref's location.
func (w *Workflow) RanOn(ref time.Time) bool {
	if w.LastRun == nil {
		return false
	}
	y1, m1, d1 := w.LastRun.In(ref.Location()).Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// NewWorkflow is the draft payload for creating a workflow.
// CronSchedule is required iff the trigger type is scheduled, EventTrigger
// iff it is event; validation enforces this before any gateway call.
type NewWorkflow struct {
	Name         string         `json:"name" validate:"required"`
	TriggerType  TriggerType    `json:"trigger_type" validate:"required,oneof=manual scheduled event"`
	CronSchedule string         `json:"cron_schedule,omitempty" validate:"required_if=TriggerType scheduled"`
	EventTrigger string         `json:"event_trigger,omitempty" validate:"required_if=TriggerType event"`
	Description  string         `json:"description,omitempty"`
	Category     string         `json:"category,omitempty"`
	Status       WorkflowStatus `json:"status,omitempty" validate:"omitempty,oneof=active idle error completed processing"`
	Config       map[string]any `json:"config,omitempty"`
}

// WorkflowPatch is a partial update for a workflow.
type WorkflowPatch struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Category    *string         `json:"category,omitempty"`
	Status      *WorkflowStatus `json:"status,omitempty" validate:"omitempty,oneof=active idle error completed processing"`
	LastRun     *time.Time      `json:"last_run,omitempty"`
	NextRun     *time.Time      `json:"next_run,omitempty"`
}
