package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/lightkeepers/fieldsync/internal/http/middleware"
	"github.com/lightkeepers/fieldsync/internal/model"
	"github.com/lightkeepers/fieldsync/internal/syncqueue"
)

type enqueueReq struct {
	Type     string          `json:"type"`
	Priority string          `json:"priority"` // critical|high|normal|low
	Payload  json.RawMessage `json:"payload"`
	TTL      string          `json:"ttl,omitempty"` // Go duration, e.g. "24h"
}

func enqueueHandler(q *syncqueue.Queue) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req enqueueReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.Type == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing type"})
		}

		priority, ok := model.ParsePriority(req.Priority)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid priority"})
		}

		var ttl time.Duration
		if req.TTL != "" {
			d, err := time.ParseDuration(req.TTL)
			if err != nil || d < 0 {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid ttl"})
			}
			ttl = d
		}

		if _, ok := middleware.UserIDFromCtx(c); !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		item, err := q.Enqueue(c.Request().Context(), req.Type, req.Payload, priority, ttl)
		if err != nil {
			log.Errorf("enqueue failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "queue error"})
		}

		// Queued locally is success for the caller; delivery is background.
		return c.JSON(http.StatusAccepted, map[string]any{
			"enqueued": true,
			"id":       item.ID,
			"priority": item.Priority.String(),
		})
	}
}

func syncStatusHandler(q *syncqueue.Queue) echo.HandlerFunc {
	return func(c echo.Context) error {
		status, err := q.Status(c.Request().Context())
		if err != nil {
			log.Errorf("sync status failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "status error"})
		}
		return c.JSON(http.StatusOK, status)
	}
}
