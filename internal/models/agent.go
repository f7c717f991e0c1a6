package models

import "time"

// AgentStatus is the runtime status of an agent as reported by the backend.
// Transitions are externally driven: the client never assumes a toggle
// request has taken effect until the mutation response or a push
// notification confirms it.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
	AgentBusy    AgentStatus = "busy"
	AgentErrored AgentStatus = "error"
)

// Valid reports whether s is a known agent status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentOnline, AgentOffline, AgentBusy, AgentErrored:
		return true
	}
	return false
}

// AgentType categorizes what kind of work an agent performs.
type AgentType string

const (
	AgentTypeContent AgentType = "content"
	AgentTypeCode    AgentType = "code"
	AgentTypeData    AgentType = "data"
	AgentTypeSupport AgentType = "support"
	AgentTypeFinance AgentType = "finance"
)

// Agent represents an AI agent row in the agents collection.
type Agent struct {
	// ID is the server-assigned identifier. The client never fabricates ids.
	ID string `json:"id"`

	// Name is the human-readable agent name
	Name string `json:"name"`

	// Description is optional free text
	Description string `json:"description,omitempty"`

	// Model is the model identifier the agent runs on
	Model string `json:"model"`

	// Type is the agent category (content, code, data, support, finance)
	Type AgentType `json:"type"`

	// Status is the backend-driven runtime status
	Status AgentStatus `json:"status"`

	// Capabilities is the set of capability tags
	Capabilities []string `json:"capabilities"`

	// Config holds opaque agent configuration
	Config map[string]any `json:"config,omitempty"`

	// LastAction is the most recent action summary, if any
	LastAction string `json:"last_action,omitempty"`

	// CPUUsage and MemoryUsage are percentages 0-100, absent when unknown
	CPUUsage    *int `json:"cpu_usage,omitempty"`
	MemoryUsage *int `json:"memory_usage,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the agent counts toward the active-agents metric.
func (a *Agent) Active() bool {
	return a.Status == AgentOnline || a.Status == AgentBusy
}

// NewAgent is the draft payload for creating an agent. Required fields are
// validated locally before any gateway call.
type NewAgent struct {
	Name         string         `json:"name" validate:"required"`
	Model        string         `json:"model" validate:"required"`
	Type         AgentType      `json:"type" validate:"required,oneof=content code data support finance"`
	Capabilities []string       `json:"capabilities" validate:"required,min=1,dive,required"`
	Description  string         `json:"description,omitempty"`
	Status       AgentStatus    `json:"status,omitempty" validate:"omitempty,oneof=online offline busy error"`
	Config       map[string]any `json:"config,omitempty"`
	LastAction   string         `json:"last_action,omitempty"`
	CPUUsage     *int           `json:"cpu_usage,omitempty" validate:"omitempty,min=0,max=100"`
	MemoryUsage  *int           `json:"memory_usage,omitempty" validate:"omitempty,min=0,max=100"`
}

// AgentPatch is a partial update for an agent. Nil fields are left untouched.
type AgentPatch struct {
	Name        *string      `json:"name,omitempty"`
	Description *string      `json:"description,omitempty"`
	Model       *string      `json:"model,omitempty"`
	Status      *AgentStatus `json:"status,omitempty" validate:"omitempty,oneof=online offline busy error"`
	LastAction  *string      `json:"last_action,omitempty"`
	CPUUsage    *int         `json:"cpu_usage,omitempty" validate:"omitempty,min=0,max=100"`
	MemoryUsage *int         `json:"memory_usage,omitempty" validate:"omitempty,min=0,max=100"`
}
