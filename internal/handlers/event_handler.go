package handlers

import (
	"net/http"

	"github.com/anonto42/nano-midea/notifier/internal/models"
	"github.com/anonto42/nano-midea/notifier/internal/notifications"
	"github.com/labstack/echo/v4"
)

// EventHandler accepts social events from the services that own posts,
// comments and follows.
type EventHandler struct {
	engine *notifications.Engine
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(engine *notifications.Engine) *EventHandler {
	return &EventHandler{engine: engine}
}

// RegisterEventRoutes registers event ingestion routes
func (h *EventHandler) RegisterEventRoutes(g *echo.Group) {
	g.POST("/events", h.RecordEvent)
}

// RecordEvent folds one event from the authenticated actor into the
// recipient's notification thread. A missing action means add; sources that
// report an unfollow or unlike by repeating the original event send
// "action":"toggle" (or "remove" for an explicit withdrawal).
func (h *EventHandler) RecordEvent(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.RecordEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	update, err := h.engine.RecordEvent(c.Request().Context(), models.Event{
		RecipientID: req.RecipientID,
		ActorID:     currentUserID,
		Kind:        models.NotificationKind(req.Kind),
		PostID:      req.PostID,
		CommentID:   req.CommentID,
		Action:      req.Action,
	})
	if err != nil {
		return toHTTPError(err)
	}
	if update == nil {
		return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"changed": false}})
	}

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": update})
}
