package handlers

import (
	"errors"
	"net/http"

	"github.com/anonto42/nano-midea/notifier/internal/middleware"
	"github.com/anonto42/nano-midea/notifier/internal/notifications"
	"github.com/labstack/echo/v4"
)

// getUserIDFromContext returns the id the auth middleware stored, or "".
func getUserIDFromContext(c echo.Context) string {
	id, _ := c.Get(middleware.UserIDKey).(string)
	return id
}

// toHTTPError maps engine errors onto status codes.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, notifications.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, notifications.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
	case errors.Is(err, notifications.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "Notification belongs to another user")
	case errors.Is(err, notifications.ErrConflict), errors.Is(err, notifications.ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error()).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}
