package repo

import (
	"context"
	"fmt"
	"sort"

	"github.com/agentdeck/agentdeck/internal/gateway"
	"github.com/agentdeck/agentdeck/internal/models"
)

// Agents is the typed repository for the agents collection.
type Agents struct {
	gw gateway.Gateway
}

// NewAgents creates an agent repository over the given gateway.
func NewAgents(gw gateway.Gateway) *Agents {
	return &Agents{gw: gw}
}

// List returns all agents ordered by updated_at descending. Ties are broken
// by id so the ordering is deterministic across refetches.
func (r *Agents) List(ctx context.Context) ([]models.Agent, error) {
	rows, err := r.gw.List(ctx, gateway.CollectionAgents, gateway.ListOptions{
		OrderBy:    "updated_at",
		Descending: true,
	})
	if err != nil {
		return nil, err
	}

	agents := decodeRows[models.Agent](rows)
	sort.SliceStable(agents, func(i, j int) bool {
		if agents[i].UpdatedAt.Equal(agents[j].UpdatedAt) {
			return agents[i].ID < agents[j].ID
		}
		return agents[i].UpdatedAt.After(agents[j].UpdatedAt)
	})
	return agents, nil
}

// GetByID returns a single agent. Zero matches yield a NotFoundError.
func (r *Agents) GetByID(ctx context.Context, id string) (models.Agent, error) {
	raw, err := r.gw.Get(ctx, gateway.CollectionAgents, id)
	if err != nil {
		return models.Agent{}, err
	}
	return decodeRow[models.Agent]("get", gateway.CollectionAgents, raw)
}

// Create validates the draft locally, then inserts it. The created row's
// server-assigned id and timestamps come back in the returned agent.
func (r *Agents) Create(ctx context.Context, draft models.NewAgent) (models.Agent, error) {
	if err := checkDraft(draft); err != nil {
		return models.Agent{}, err
	}
	if draft.Status == "" {
		draft.Status = models.AgentOffline
	}

	raw, err := r.gw.Insert(ctx, gateway.CollectionAgents, draft)
	if err != nil {
		return models.Agent{}, err
	}
	return decodeRow[models.Agent]("insert", gateway.CollectionAgents, raw)
}

// Update applies a partial update and returns the new row state.
func (r *Agents) Update(ctx context.Context, id string, patch models.AgentPatch) (models.Agent, error) {
	if err := checkDraft(patch); err != nil {
		return models.Agent{}, err
	}

	raw, err := r.gw.Update(ctx, gateway.CollectionAgents, id, patch)
	if err != nil {
		return models.Agent{}, err
	}
	return decodeRow[models.Agent]("update", gateway.CollectionAgents, raw)
}

// Delete removes an agent. Irreversible.
func (r *Agents) Delete(ctx context.Context, id string) error {
	return r.gw.Delete(ctx, gateway.CollectionAgents, id)
}

// ToggleStatus flips an agent between online and offline. The toggle is
// defined only on that axis: busy and error are backend-driven states and a
// toggle request against them is rejected without a network call.
//
// The returned agent is the mutation response, not an assumption — status
// transitions stay externally driven, and a later push notification may
// supersede this value.
func (r *Agents) ToggleStatus(ctx context.Context, id string, current models.AgentStatus) (models.Agent, error) {
	var next models.AgentStatus
	switch current {
	case models.AgentOnline:
		next = models.AgentOffline
	case models.AgentOffline:
		next = models.AgentOnline
	default:
		return models.Agent{}, &ValidationError{Fields: map[string]string{
			"status": fmt.Sprintf("cannot toggle an agent in status %q", current),
		}}
	}

	raw, err := r.gw.Update(ctx, gateway.CollectionAgents, id, map[string]models.AgentStatus{"status": next})
	if err != nil {
		return models.Agent{}, err
	}
	return decodeRow[models.Agent]("update", gateway.CollectionAgents, raw)
}
