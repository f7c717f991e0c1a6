package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agentdeck/agentdeck/internal/cache"
	"github.com/agentdeck/agentdeck/internal/models"
)

func (s *Server) fetchWorkflows(c echo.Context) ([]models.Workflow, error) {
	return cache.List(c.Request().Context(), s.store, KeyWorkflows, s.workflows.List)
}

// listWorkflows returns all workflows, read through the query cache.
// An optional ?category= filter is applied to the cached snapshot so it
// never triggers a separate fetch.
func (s *Server) listWorkflows(c echo.Context) error {
	workflows, err := s.fetchWorkflows(c)
	if err != nil && len(workflows) == 0 {
		return err
	}

	if category := c.QueryParam("category"); category != "" {
		filtered := workflows[:0]
		for _, wf := range workflows {
			if wf.Category == category {
				filtered = append(filtered, wf)
			}
		}
		workflows = filtered
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflows": workflows,
		"count":     len(workflows),
		"state":     s.store.State(KeyWorkflows).String(),
	})
}

// getWorkflow returns a single workflow by ID.
func (s *Server) getWorkflow(c echo.Context) error {
	id := c.Param("id")

	wf, err := s.workflows.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, wf)
}

// createWorkflow validates and persists a new workflow draft.
func (s *Server) createWorkflow(c echo.Context) error {
	var draft models.NewWorkflow
	if err := c.Bind(&draft); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	wf, err := s.workflows.Create(c.Request().Context(), draft)
	if err != nil {
		return err
	}

	s.store.Invalidate(KeyWorkflows)
	return c.JSON(http.StatusCreated, wf)
}

// updateWorkflow applies a partial update to a workflow.
func (s *Server) updateWorkflow(c echo.Context) error {
	id := c.Param("id")

	var patch models.WorkflowPatch
	if err := c.Bind(&patch); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	wf, err := s.workflows.Update(c.Request().Context(), id, patch)
	if err != nil {
		return err
	}

	s.store.Invalidate(KeyWorkflows)
	return c.JSON(http.StatusOK, wf)
}

// setWorkflowStatus moves a workflow to a new status.
func (s *Server) setWorkflowStatus(c echo.Context) error {
	id := c.Param("id")

	var body struct {
		Status models.WorkflowStatus `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if !body.Status.Valid() {
		return BadRequestError("Invalid status", "status must be one of: active, idle, error, completed, processing")
	}

	wf, err := s.workflows.SetStatus(c.Request().Context(), id, body.Status)
	if err != nil {
		return err
	}

	s.store.Invalidate(KeyWorkflows)
	return c.JSON(http.StatusOK, wf)
}

// deleteWorkflow removes a workflow.
func (s *Server) deleteWorkflow(c echo.Context) error {
	id := c.Param("id")

	if err := s.workflows.Delete(c.Request().Context(), id); err != nil {
		return err
	}

	s.store.Invalidate(KeyWorkflows)
	return c.NoContent(http.StatusNoContent)
}
