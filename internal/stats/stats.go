// Package stats computes the dashboard's aggregate numbers. Everything here
// is a pure function over the currently cached collections — recomputed per
// request, holding no state of its own.
package stats

import (
	"math"
	"time"

	"github.com/agentdeck/agentdeck/internal/models"
)

// Overview contains the headline numbers for the dashboard status cards.
type Overview struct {
	TotalAgents            int `json:"total_agents"`
	ActiveAgents           int `json:"active_agents"`
	TotalWorkflows         int `json:"total_workflows"`
	ActiveWorkflows        int `json:"active_workflows"`
	WorkflowsExecutedToday int `json:"workflows_executed_today"`

	// PendingTasks is an estimate derived from agent and workflow activity,
	// not a count of a real task table. See Pending.
	PendingTasks int `json:"pending_tasks"`
}

// Compute derives the overview from the cached agent and workflow lists.
// "Executed today" means last_run falls on now's calendar day in now's
// location.
func Compute(agents []models.Agent, workflows []models.Workflow, now time.Time) Overview {
	o := Overview{
		TotalAgents:    len(agents),
		TotalWorkflows: len(workflows),
	}

	for i := range agents {
		if agents[i].Active() {
			o.ActiveAgents++
		}
	}

	for i := range workflows {
		if workflows[i].Status == models.WorkflowActive {
			o.ActiveWorkflows++
		}
		if workflows[i].RanOn(now) {
			o.WorkflowsExecutedToday++
		}
	}

	o.PendingTasks = Pending(o.ActiveAgents, o.ActiveWorkflows)
	return o
}

// Pending estimates the pending task count from activity levels:
// floor(1.5 x active agents) + floor(2.5 x active workflows).
//
// This is a heuristic placeholder — there is no backing task table. Keep
// the formula as is; if a real task source appears, wire a count instead of
// changing the weights.
func Pending(activeAgents, activeWorkflows int) int {
	return int(math.Floor(float64(activeAgents)*1.5)) +
		int(math.Floor(float64(activeWorkflows)*2.5))
}

// LevelCounts tallies log entries by level for the monitoring page.
func LevelCounts(entries []models.LogEntry) map[models.LogLevel]int {
	counts := make(map[models.LogLevel]int, 4)
	for i := range entries {
		counts[entries[i].Level]++
	}
	return counts
}
