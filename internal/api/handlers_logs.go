package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/agentdeck/agentdeck/internal/cache"
	"github.com/agentdeck/agentdeck/internal/models"
	"github.com/agentdeck/agentdeck/internal/repo"
)

// listLogs returns recent log entries, newest first. The default window
// is read through the query cache; level or limit overrides go straight
// to the repository since they are one-off views.
func (s *Server) listLogs(c echo.Context) error {
	ctx := c.Request().Context()

	limit := repo.DefaultLogLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return BadRequestError("Invalid limit parameter", "limit must be a positive integer")
		}
		limit = n
	}

	if raw := c.QueryParam("level"); raw != "" {
		level := models.LogLevel(raw)
		entries, err := s.logs.RecentByLevel(ctx, level, limit)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"logs":  entries,
			"count": len(entries),
		})
	}

	if limit != repo.DefaultLogLimit {
		entries, err := s.logs.Recent(ctx, limit)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"logs":  entries,
			"count": len(entries),
		})
	}

	entries, err := cache.List(ctx, s.store, KeyLogs, func(fetchCtx context.Context) ([]models.LogEntry, error) {
		return s.logs.Recent(fetchCtx, repo.DefaultLogLimit)
	})
	if err != nil && len(entries) == 0 {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"logs":  entries,
		"count": len(entries),
		"state": s.store.State(KeyLogs).String(),
	})
}

// appendLog records a new log entry. Entries are immutable once written.
func (s *Server) appendLog(c echo.Context) error {
	var draft models.NewLogEntry
	if err := c.Bind(&draft); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	entry, err := s.logs.Append(c.Request().Context(), draft)
	if err != nil {
		return err
	}

	s.store.Invalidate(KeyLogs)
	return c.JSON(http.StatusCreated, entry)
}
