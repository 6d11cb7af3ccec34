package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/livepulse/internal/platform/errors"
)

type viewersResponse struct {
	Viewers int64 `json:"viewers"`
}

func (s *Server) handleViewers(c echo.Context) error {
	count, err := s.viewers.ViewerCount(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("Error fetching viewer count.", err)
	}

	if err := c.JSON(http.StatusOK, viewersResponse{Viewers: count}); err != nil {
		return fmt.Errorf("failed to write viewers response: %w", err)
	}
	return nil
}
