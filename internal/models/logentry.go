package models

import "time"

// LogLevel classifies a system log entry.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
	LevelSuccess LogLevel = "success"
)

// Valid reports whether l is a known log level.
func (l LogLevel) Valid() bool {
	switch l {
	case LevelInfo, LevelWarning, LevelError, LevelSuccess:
		return true
	}
	return false
}

// LogEntry is one row of the append-only system_logs collection.
// Entries are immutable once created; there is no update operation.
// Display order is timestamp descending.
type LogEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`

	// Optional references to the entities that produced the entry
	AgentID    string `json:"agent_id,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
}

// NewLogEntry is the draft payload for appending a log entry. The server
// assigns id and timestamp.
type NewLogEntry struct {
	Level      LogLevel       `json:"level" validate:"required,oneof=info warning error success"`
	Source     string         `json:"source" validate:"required"`
	Message    string         `json:"message" validate:"required"`
	Details    map[string]any `json:"details,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
}
