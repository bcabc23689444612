package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// listCheckpointsHandler implements GET /threads/:thread_id/checkpoints, the
// debugging read path the CLI's replay subcommand also drives (spec §6.1):
// both share graph/store.Store.List rather than duplicating a query.
func (s *Server) listCheckpointsHandler(c *echo.Context) error {
	threadID := c.Param("thread_id")
	if threadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "thread_id is required")
	}

	checkpoints, err := s.deps.Store.List(c.Request().Context(), threadID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"thread_id":   threadID,
		"checkpoints": checkpoints,
	})
}
