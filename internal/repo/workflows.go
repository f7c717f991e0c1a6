package repo

import (
	"context"
	"sort"

	"github.com/agentdeck/agentdeck/internal/gateway"
	"github.com/agentdeck/agentdeck/internal/models"
)

// Workflows is the typed repository for the workflows collection.
type Workflows struct {
	gw gateway.Gateway
}

// NewWorkflows creates a workflow repository over the given gateway.
func NewWorkflows(gw gateway.Gateway) *Workflows {
	return &Workflows{gw: gw}
}

// List returns all workflows ordered by updated_at descending, ties broken
// by id. Rows with no category are normalized to the default category.
func (r *Workflows) List(ctx context.Context) ([]models.Workflow, error) {
	rows, err := r.gw.List(ctx, gateway.CollectionWorkflows, gateway.ListOptions{
		OrderBy:    "updated_at",
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	return normalizeWorkflows(decodeRows[models.Workflow](rows)), nil
}

// ListByCategory returns workflows in one category, newest first.
func (r *Workflows) ListByCategory(ctx context.Context, category string) ([]models.Workflow, error) {
	rows, err := r.gw.List(ctx, gateway.CollectionWorkflows, gateway.ListOptions{
		OrderBy:    "updated_at",
		Descending: true,
		Filters:    map[string]string{"category": category},
	})
	if err != nil {
		return nil, err
	}
	return normalizeWorkflows(decodeRows[models.Workflow](rows)), nil
}

// GetByID returns a single workflow. Zero matches yield a NotFoundError.
func (r *Workflows) GetByID(ctx context.Context, id string) (models.Workflow, error) {
	raw, err := r.gw.Get(ctx, gateway.CollectionWorkflows, id)
	if err != nil {
		return models.Workflow{}, err
	}
	wf, err := decodeRow[models.Workflow]("get", gateway.CollectionWorkflows, raw)
	if err != nil {
		return models.Workflow{}, err
	}
	return normalizeWorkflow(wf), nil
}

// Create validates the draft locally, then inserts it. The trigger field
// that does not match the trigger type is cleared before the insert so the
// stored row never carries a stale counterpart.
func (r *Workflows) Create(ctx context.Context, draft models.NewWorkflow) (models.Workflow, error) {
	if err := checkDraft(draft); err != nil {
		return models.Workflow{}, err
	}

	switch draft.TriggerType {
	case models.TriggerScheduled:
		draft.EventTrigger = ""
	case models.TriggerEvent:
		draft.CronSchedule = ""
	default:
		draft.CronSchedule = ""
		draft.EventTrigger = ""
	}
	if draft.Status == "" {
		draft.Status = models.WorkflowIdle
	}
	if draft.Category == "" {
		draft.Category = models.DefaultCategory
	}

	raw, err := r.gw.Insert(ctx, gateway.CollectionWorkflows, draft)
	if err != nil {
		return models.Workflow{}, err
	}
	return decodeRow[models.Workflow]("insert", gateway.CollectionWorkflows, raw)
}

// Update applies a partial update and returns the new row state.
func (r *Workflows) Update(ctx context.Context, id string, patch models.WorkflowPatch) (models.Workflow, error) {
	if err := checkDraft(patch); err != nil {
		return models.Workflow{}, err
	}

	raw, err := r.gw.Update(ctx, gateway.CollectionWorkflows, id, patch)
	if err != nil {
		return models.Workflow{}, err
	}
	wf, err := decodeRow[models.Workflow]("update", gateway.CollectionWorkflows, raw)
	if err != nil {
		return models.Workflow{}, err
	}
	return normalizeWorkflow(wf), nil
}

// SetStatus toggles a workflow between active and idle.
func (r *Workflows) SetStatus(ctx context.Context, id string, status models.WorkflowStatus) (models.Workflow, error) {
	return r.Update(ctx, id, models.WorkflowPatch{Status: &status})
}

// Delete removes a workflow. Irreversible.
func (r *Workflows) Delete(ctx context.Context, id string) error {
	return r.gw.Delete(ctx, gateway.CollectionWorkflows, id)
}

func normalizeWorkflow(wf models.Workflow) models.Workflow {
	if wf.Category == "" {
		wf.Category = models.DefaultCategory
	}
	// The off-axis trigger field is absent by invariant.
	switch wf.TriggerType {
	case models.TriggerScheduled:
		wf.EventTrigger = ""
	case models.TriggerEvent:
		wf.CronSchedule = ""
	}
	return wf
}

func normalizeWorkflows(wfs []models.Workflow) []models.Workflow {
	for i := range wfs {
		wfs[i] = normalizeWorkflow(wfs[i])
	}
	sort.SliceStable(wfs, func(i, j int) bool {
		if wfs[i].UpdatedAt.Equal(wfs[j].UpdatedAt) {
			return wfs[i].ID < wfs[j].ID
		}
		return wfs[i].UpdatedAt.After(wfs[j].UpdatedAt)
	})
	return wfs
}
