package devgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/agentdeck/agentdeck/internal/gateway"
	"github.com/agentdeck/agentdeck/internal/models"
)

// Simulator generates plausible agent and workflow activity against the
// dev store so the dashboard has something to watch.
type Simulator struct {
	store  *Store
	broker *broker
	tick   time.Duration
	rng    *rand.Rand
}

// NewSimulator creates a simulator ticking at the given interval.
func NewSimulator(store *Store, broker *broker, tick time.Duration) *Simulator {
	return &Simulator{
		store:  store,
		broker: broker,
		tick:   tick,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run drives the simulator until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	log.Printf("dev gateway: activity simulator running (every %s)", s.tick)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.step(ctx); err != nil {
				log.Printf("dev gateway: simulator step failed: %v", err)
			}
		}
	}
}

// step performs one burst of simulated activity.
func (s *Simulator) step(ctx context.Context) error {
	switch s.rng.Intn(4) {
	case 0:
		return s.driftAgent(ctx)
	case 1:
		return s.runWorkflow(ctx)
	case 2:
		return s.emitLog(ctx, "")
	default:
		// Most ticks just drift resource gauges, like real fleets do.
		return s.driftAgent(ctx)
	}
}

// driftAgent nudges a random agent's cpu/memory and occasionally flips
// its status.
func (s *Simulator) driftAgent(ctx context.Context) error {
	agent, err := s.pickRecord(ctx, gateway.CollectionAgents)
	if err != nil || agent == nil {
		return err
	}

	id, _ := agent["id"].(string)
	status, _ := agent["status"].(string)

	patch := map[string]any{
		"cpu_usage":    clampPct(asInt(agent["cpu_usage"]) + s.rng.Intn(21) - 10),
		"memory_usage": clampPct(asInt(agent["memory_usage"]) + s.rng.Intn(21) - 10),
		"last_action":  time.Now().UTC().Format(time.RFC3339Nano),
	}

	// Rarely flip status; error states occasionally self-heal.
	if s.rng.Intn(10) == 0 {
		switch models.AgentStatus(status) {
		case models.AgentOnline:
			patch["status"] = string(models.AgentBusy)
		case models.AgentBusy:
			patch["status"] = string(models.AgentOnline)
		case models.AgentErrored:
			patch["status"] = string(models.AgentOnline)
		}
	}
	if s.rng.Intn(40) == 0 && models.AgentStatus(status) != models.AgentOffline {
		patch["status"] = string(models.AgentErrored)
		if err := s.emitLog(ctx, fmt.Sprintf("agent %v entered error state", agent["name"])); err != nil {
			return err
		}
	}

	return s.patchAndPublish(ctx, gateway.CollectionAgents, id, patch)
}

// runWorkflow marks a random workflow as having just run.
func (s *Simulator) runWorkflow(ctx context.Context) error {
	wf, err := s.pickRecord(ctx, gateway.CollectionWorkflows)
	if err != nil || wf == nil {
		return err
	}

	id, _ := wf["id"].(string)
	now := time.Now().UTC()

	patch := map[string]any{
		"last_run": now.Format(time.RFC3339Nano),
		"status":   string(models.WorkflowActive),
	}
	if wf["trigger_type"] == string(models.TriggerScheduled) {
		patch["next_run"] = now.Add(time.Hour).Format(time.RFC3339Nano)
	}
	if s.rng.Intn(5) == 0 {
		patch["status"] = string(models.WorkflowCompleted)
	}

	if err := s.patchAndPublish(ctx, gateway.CollectionWorkflows, id, patch); err != nil {
		return err
	}
	return s.emitLog(ctx, fmt.Sprintf("workflow %v executed", wf["name"]))
}

var logMessages = []struct {
	level   models.LogLevel
	message string
}{
	{models.LevelInfo, "heartbeat received"},
	{models.LevelInfo, "task queue drained"},
	{models.LevelSuccess, "task completed"},
	{models.LevelWarning, "response latency above threshold"},
	{models.LevelError, "upstream call timed out"},
}

// emitLog appends a log entry. If message is empty a random one is used.
func (s *Simulator) emitLog(ctx context.Context, message string) error {
	pick := logMessages[s.rng.Intn(len(logMessages))]
	level := pick.level
	if message == "" {
		message = pick.message
	} else {
		level = models.LevelError
	}

	row, err := json.Marshal(map[string]any{
		"level":   string(level),
		"source":  "simulator",
		"message": message,
	})
	if err != nil {
		return err
	}

	stored, err := s.store.Insert(ctx, gateway.CollectionLogs, row)
	if err != nil {
		return err
	}

	s.broker.publish(gateway.ChangeEvent{
		Kind:       gateway.EventInsert,
		Collection: gateway.CollectionLogs,
		Record:     stored,
	})
	return nil
}

// pickRecord returns a random record of the collection, nil when empty.
func (s *Simulator) pickRecord(ctx context.Context, collection string) (map[string]any, error) {
	rows, err := s.store.List(ctx, collection, listQuery{})
	if err != nil || len(rows) == 0 {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal(rows[s.rng.Intn(len(rows))], &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Simulator) patchAndPublish(ctx context.Context, collection, id string, patch map[string]any) error {
	data, err := json.Marshal(patch)
	if err != nil {
		return err
	}

	row, err := s.store.Update(ctx, collection, id, data)
	if err != nil {
		return err
	}

	s.broker.publish(gateway.ChangeEvent{
		Kind:       gateway.EventUpdate,
		Collection: collection,
		Record:     row,
	})
	return nil
}

func asInt(v any) int {
	f, _ := v.(float64)
	return int(f)
}

func clampPct(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// seed populates an empty dev store with a starter fleet.
func (s *Server) seed(ctx context.Context) error {
	n, err := s.store.Count(ctx, gateway.CollectionAgents)
	if err != nil {
		return fmt.Errorf("checking seed state: %w", err)
	}
	if n > 0 {
		return nil
	}

	log.Println("dev gateway: seeding starter data")

	agents := []map[string]any{
		{"name": "Atlas", "description": "Content drafting agent", "model": "gpt-4o", "type": "content", "status": "online", "capabilities": []string{"draft", "summarize"}, "cpu_usage": 12, "memory_usage": 34},
		{"name": "Forge", "description": "Code review agent", "model": "claude-sonnet", "type": "code", "status": "busy", "capabilities": []string{"review", "refactor"}, "cpu_usage": 67, "memory_usage": 58},
		{"name": "Ledger", "description": "Finance reconciliation agent", "model": "gpt-4o-mini", "type": "finance", "status": "offline", "capabilities": []string{"reconcile"}, "cpu_usage": 0, "memory_usage": 0},
		{"name": "Scout", "description": "Data enrichment agent", "model": "claude-haiku", "type": "data", "status": "online", "capabilities": []string{"enrich", "dedupe"}, "cpu_usage": 22, "memory_usage": 41},
	}
	workflows := []map[string]any{
		{"name": "Nightly digest", "category": "reporting", "status": "idle", "trigger_type": "scheduled", "cron_schedule": "0 6 * * *"},
		{"name": "PR triage", "category": "engineering", "status": "active", "trigger_type": "event", "event_trigger": "pull_request.opened"},
		{"name": "Manual export", "status": "idle", "trigger_type": "manual"},
	}

	for _, doc := range agents {
		if err := s.seedRow(ctx, gateway.CollectionAgents, doc); err != nil {
			return err
		}
	}
	for _, doc := range workflows {
		if err := s.seedRow(ctx, gateway.CollectionWorkflows, doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) seedRow(ctx context.Context, collection string, doc map[string]any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if _, err := s.store.Insert(ctx, collection, data); err != nil {
		return fmt.Errorf("seeding %s: %w", collection, err)
	}
	return nil
}
