package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agentdeck/agentdeck/internal/cache"
	"github.com/agentdeck/agentdeck/internal/models"
)

// agentView decorates an agent with its live pulse flag for rendering.
type agentView struct {
	models.Agent
	Live bool `json:"live"`
}

func (s *Server) fetchAgents(c echo.Context) ([]models.Agent, error) {
	return cache.List(c.Request().Context(), s.store, KeyAgents, s.agents.List)
}

// listAgents returns all agents, read through the query cache. A stale
// result is served immediately while a background refetch runs.
func (s *Server) listAgents(c echo.Context) error {
	agents, err := s.fetchAgents(c)
	if err != nil && len(agents) == 0 {
		return err
	}

	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, agentView{Agent: a, Live: s.router.IsLive(a.ID)})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"agents": views,
		"count":  len(views),
		"state":  s.store.State(KeyAgents).String(),
	})
}

// getAgent returns a single agent by ID.
func (s *Server) getAgent(c echo.Context) error {
	id := c.Param("id")

	agent, err := s.agents.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, agentView{Agent: agent, Live: s.router.IsLive(agent.ID)})
}

// createAgent validates and persists a new agent draft.
func (s *Server) createAgent(c echo.Context) error {
	var draft models.NewAgent
	if err := c.Bind(&draft); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	agent, err := s.agents.Create(c.Request().Context(), draft)
	if err != nil {
		return err
	}

	s.store.Invalidate(KeyAgents)
	return c.JSON(http.StatusCreated, agent)
}

// updateAgent applies a partial update to an agent.
func (s *Server) updateAgent(c echo.Context) error {
	id := c.Param("id")

	var patch models.AgentPatch
	if err := c.Bind(&patch); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	agent, err := s.agents.Update(c.Request().Context(), id, patch)
	if err != nil {
		return err
	}

	s.store.Invalidate(KeyAgents)
	return c.JSON(http.StatusOK, agent)
}

// deleteAgent removes an agent.
func (s *Server) deleteAgent(c echo.Context) error {
	id := c.Param("id")

	if err := s.agents.Delete(c.Request().Context(), id); err != nil {
		return err
	}

	s.store.Invalidate(KeyAgents)
	return c.NoContent(http.StatusNoContent)
}

// toggleAgent flips an agent between online and offline. Agents in busy
// or error state are rejected; those transitions belong to the runtime.
func (s *Server) toggleAgent(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()

	current, err := s.agents.GetByID(ctx, id)
	if err != nil {
		return err
	}

	agent, err := s.agents.ToggleStatus(ctx, id, current.Status)
	if err != nil {
		return err
	}

	s.store.Invalidate(KeyAgents)
	return c.JSON(http.StatusOK, agent)
}
