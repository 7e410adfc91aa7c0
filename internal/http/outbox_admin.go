package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/lightkeepers/fieldsync/internal/outbox"
	"github.com/lightkeepers/fieldsync/internal/repository"
)

func listFailedHandler(repo repository.OutboxRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		events, err := repo.ListFailed(c.Request().Context(), 100)
		if err != nil {
			log.Errorf("list failed events: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"count":  len(events),
			"events": events,
		})
	}
}

func retryFailedHandler(repo repository.OutboxRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if id == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing id"})
		}
		if err := repo.Retry(c.Request().Context(), id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "no failed event with that id"})
			}
			log.Errorf("retry event %s: %v", id, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{"retried": true, "id": id})
	}
}

func outboxStatusHandler(pub *outbox.Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		status, err := pub.Status(c.Request().Context())
		if err != nil {
			log.Errorf("outbox status: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, status)
	}
}
