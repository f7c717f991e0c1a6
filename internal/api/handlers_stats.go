package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/agentdeck/agentdeck/internal/cache"
	"github.com/agentdeck/agentdeck/internal/models"
	"github.com/agentdeck/agentdeck/internal/repo"
	"github.com/agentdeck/agentdeck/internal/stats"
)

// getOverview computes the dashboard overview from the cached agent and
// workflow snapshots. Both reads share the cache with the list views, so
// the overview never adds gateway traffic of its own.
func (s *Server) getOverview(c echo.Context) error {
	agents, aerr := s.fetchAgents(c)
	workflows, werr := s.fetchWorkflows(c)
	if aerr != nil && len(agents) == 0 {
		return aerr
	}
	if werr != nil && len(workflows) == 0 {
		return werr
	}

	return c.JSON(http.StatusOK, stats.Compute(agents, workflows, time.Now()))
}

// getLogLevelCounts returns the per-level breakdown of the recent log
// window.
func (s *Server) getLogLevelCounts(c echo.Context) error {
	entries, err := cache.List(c.Request().Context(), s.store, KeyLogs, func(ctx context.Context) ([]models.LogEntry, error) {
		return s.logs.Recent(ctx, repo.DefaultLogLimit)
	})
	if err != nil && len(entries) == 0 {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"counts": stats.LevelCounts(entries),
		"total":  len(entries),
	})
}

// getCacheState reports the freshness state of each dashboard query.
func (s *Server) getCacheState(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		string(KeyAgents):    s.store.State(KeyAgents).String(),
		string(KeyWorkflows): s.store.State(KeyWorkflows).String(),
		string(KeyLogs):      s.store.State(KeyLogs).String(),
	})
}
