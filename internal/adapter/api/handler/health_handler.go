package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// FailedEventInspector exposes the depth of the failed-publish queue so
// operators can see from the health endpoint whether manual replay is due.
type FailedEventInspector interface {
	FailedQueue(ctx context.Context) [][]byte
}

type HealthHandler struct {
	failed FailedEventInspector
}

func NewHealthHandler(failed FailedEventInspector) *HealthHandler {
	return &HealthHandler{failed: failed}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	body := map[string]interface{}{
		"status": "Server is running",
		"time":   time.Now().Format(time.RFC3339),
	}
	if h.failed != nil {
		body["failedEvents"] = len(h.failed.FailedQueue(c.Request().Context()))
	}
	return c.JSON(http.StatusOK, body)
}
