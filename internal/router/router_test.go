package router

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anonto42/nano-midea/notifier/internal/metrics"
	"github.com/anonto42/nano-midea/notifier/internal/models"
	"github.com/anonto42/nano-midea/notifier/internal/notifications"
	"github.com/anonto42/nano-midea/notifier/internal/pubsub"
	"github.com/anonto42/nano-midea/notifier/internal/repositories"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RecordEvent("like", metrics.OutcomeCreated)

	bus := pubsub.New[models.ThreadUpdate]()
	t.Cleanup(bus.Close)
	engine := notifications.NewEngine(repositories.NewMemoryNotificationRepository(), bus, notifications.WithMetrics(m))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := echo.New()
	SetupMiddleware(e, logger)
	SetupRoutes(e, Deps{Engine: engine, Auth: JWTAuth("secret"), Gatherer: reg, Logger: logger})
	return e
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSetupRoutes_PublicEndpoints(t *testing.T) {
	e := newServer(t)

	rec := get(e, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = get(e, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `notifier_engine_events_total{kind="like",outcome="created"} 1`))
}

func TestSetupRoutes_APIRequiresAuth(t *testing.T) {
	e := newServer(t)

	for _, path := range []string{"/api/v1/notifications", "/api/v1/notifications/unread-count", "/api/v1/notifications/live"} {
		assert.Equal(t, http.StatusUnauthorized, get(e, path).Code, path)
	}
}
