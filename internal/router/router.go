package router

import (
	"log/slog"

	"github.com/anonto42/nano-midea/notifier/internal/handlers"
	"github.com/anonto42/nano-midea/notifier/internal/middleware"
	"github.com/anonto42/nano-midea/notifier/internal/notifications"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps carries everything the routes need.
type Deps struct {
	Engine *notifications.Engine
	// Auth guards /api/v1; see JWTAuth and FirebaseAuth.
	Auth     echo.MiddlewareFunc
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo, logger *slog.Logger) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	e.Use(eMiddleware.RequestLoggerWithConfig(eMiddleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v eMiddleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				logger.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, deps Deps) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Health check and metrics - always accessible
	e.GET("/health", handlers.HealthCheck)
	if deps.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// --- Protected routes ---
	api := e.Group("/api/v1")
	api.Use(deps.Auth)

	eventHandler := handlers.NewEventHandler(deps.Engine)
	eventHandler.RegisterEventRoutes(api)

	notificationHandler := handlers.NewNotificationHandler(deps.Engine, logger)
	notificationHandler.RegisterNotificationRoutes(api)

	logger.Info("routes configured")
}

// JWTAuth guards the API with locally signed tokens.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return middleware.JWTAuthMiddleware(secret)
}

// FirebaseAuth guards the API with Firebase ID tokens mapped to local users.
func FirebaseAuth(verifier middleware.TokenVerifier, users middleware.UserLookup) echo.MiddlewareFunc {
	return middleware.FirebaseAuthMiddleware(verifier, users)
}
