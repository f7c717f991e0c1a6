package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// listIntegrations returns the integration catalog. An optional
// ?status=connected filter narrows to configured connections.
func (s *Server) listIntegrations(c echo.Context) error {
	if s.catalog == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"integrations": []interface{}{},
			"count":        0,
		})
	}

	entries := s.catalog.Integrations
	if c.QueryParam("status") == "connected" {
		entries = s.catalog.Connected()
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"integrations": entries,
		"count":        len(entries),
		"by_category":  s.catalog.ByCategory(),
	})
}
