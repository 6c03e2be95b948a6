package handlers

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/anonto42/nano-midea/notifier/internal/notifications"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	livePingInterval = 30 * time.Second
	liveWriteTimeout = 10 * time.Second
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	engine       *notifications.Engine
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       *slog.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(engine *notifications.Engine, logger *slog.Logger) *NotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{
		engine: engine,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pingInterval: livePingInterval,
		logger:       logger,
	}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.GET("/notifications/live", h.Live)
	g.PUT("/notifications/read-all", h.MarkAllAsRead)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
}

// GetNotifications returns paginated notification threads with the unread count
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	snap, err := h.engine.ListNotifications(c.Request().Context(), currentUserID, page, limit)
	if err != nil {
		return toHTTPError(err)
	}

	totalPages := int(math.Ceil(float64(snap.Total) / float64(snap.Limit)))
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": snap.Threads,
			"unreadCount":   snap.UnreadCount,
		},
		"meta": echo.Map{
			"currentPage":     snap.Page,
			"totalPages":      totalPages,
			"totalItems":      snap.Total,
			"itemsPerPage":    snap.Limit,
			"hasNextPage":     snap.Page < totalPages,
			"hasPreviousPage": snap.Page > 1,
		},
	})
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	count, err := h.engine.UnreadCount(c.Request().Context(), currentUserID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"count": count}})
}

// MarkAsRead marks one of the caller's threads as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	notifID := c.Param("id")
	if notifID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	update, err := h.engine.MarkRead(c.Request().Context(), notifID, currentUserID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": update})
}

// MarkAllAsRead marks all of the caller's threads as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	count, err := h.engine.MarkAllRead(c.Request().Context(), currentUserID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"unreadCount": count}})
}

// Live upgrades to a WebSocket and pushes the caller's thread updates until
// either side closes the connection.
func (h *NotificationHandler) Live(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("failed to upgrade the websocket", "user", currentUserID, "error", err)
		return nil
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	updates := h.engine.Subscribe(ctx, currentUserID)
	h.logger.Info("live subscriber connected", "user", currentUserID)
	defer h.logger.Info("live subscriber disconnected", "user", currentUserID)

	// The read loop only drains control frames; it notices the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			ws.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := ws.WriteJSON(update); err != nil {
				h.logger.Warn("failed to write websocket update", "user", currentUserID, "error", err)
				return nil
			}
		case <-ticker.C:
			deadline := time.Now().Add(liveWriteTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return nil
			}
		}
	}
}
