package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/nano-midea/notifier/internal/metrics"
	"github.com/anonto42/nano-midea/notifier/internal/models"
	"github.com/anonto42/nano-midea/notifier/internal/notifications"
	"github.com/anonto42/nano-midea/notifier/internal/pubsub"
	"github.com/anonto42/nano-midea/notifier/internal/router"
	"github.com/anonto42/nano-midea/notifier/pkg/config"
	"github.com/anonto42/nano-midea/notifier/pkg/firebase"
	"github.com/anonto42/nano-midea/notifier/validators"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

type globalFlags struct {
	envFile string
	store   string
}

type serveFlags struct {
	port string
}

type userFlags struct {
	id          string
	name        string
	email       string
	firebaseUID string
}

func main() {
	var global globalFlags
	root := &cobra.Command{
		Use:           "notifier",
		Short:         "Notification aggregation and real-time delivery service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&global.envFile, "env-file", ".env", "Path to a dotenv file")
	root.PersistentFlags().StringVar(&global.store, "store", "", "Store driver override: memory, mongo, postgres or sqlite")

	var serve serveFlags
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and live notification server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), global, serve)
		},
	}
	serveCmd.Flags().StringVar(&serve.port, "port", "", "Listen port override")

	var user userFlags
	userCmd := &cobra.Command{Use: "user", Short: "Manage the user directory used to render names"}
	userAddCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user to the PostgreSQL directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserAdd(cmd.Context(), global, user)
		},
	}
	f := userAddCmd.Flags()
	f.StringVar(&user.id, "id", "", "User id as it appears in events")
	f.StringVar(&user.name, "name", "", "Display name")
	f.StringVar(&user.email, "email", "", "Email address")
	f.StringVar(&user.firebaseUID, "firebase-uid", "", "Firebase UID for ID-token auth")
	_ = userAddCmd.MarkFlagRequired("id")
	_ = userAddCmd.MarkFlagRequired("name")
	_ = userAddCmd.MarkFlagRequired("email")
	userCmd.AddCommand(userAddCmd)

	root.AddCommand(serveCmd, userCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig applies flag overrides on top of the environment.
func loadConfig(global globalFlags, port string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(global.envFile)
	if err != nil {
		return nil, nil, err
	}
	if global.store != "" {
		cfg.StoreDriver = global.store
	}
	if port != "" {
		cfg.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := config.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func runServe(ctx context.Context, global globalFlags, flags serveFlags) error {
	cfg, logger, err := loadConfig(global, flags.port)
	if err != nil {
		return err
	}

	db, err := config.InitDB(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.CloseDB(context.Background(), logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	bus := pubsub.New[models.ThreadUpdate](
		pubsub.WithBufferSize(cfg.SubscriberBuffer),
		pubsub.WithDropHook(func(topic string) {
			m.RecordDropped(topic)
			logger.Warn("live subscriber too slow, update dropped", "topic", topic)
		}),
		pubsub.WithSubscriberHook(m.SubscribersChanged),
	)
	defer bus.Close()

	engine := notifications.NewEngine(db.Notifications, bus,
		notifications.WithDirectory(db.Users),
		notifications.WithMetrics(m),
		notifications.WithLogger(logger),
		notifications.WithMaxRetries(cfg.MaxRetries),
		notifications.WithStoreTimeout(cfg.StoreTimeout),
	)

	auth := router.JWTAuth(cfg.JWTSecret)
	if cfg.FirebaseCredentialsPath != "" {
		firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			return fmt.Errorf("failed to initialize Firebase: %w", err)
		}
		auth = router.FirebaseAuth(firebaseApp.AuthClient, db.Users)
		logger.Info("Firebase ID-token authentication enabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validators.NewValidator()
	router.SetupMiddleware(e, logger)
	router.SetupRoutes(e, router.Deps{Engine: engine, Auth: auth, Gatherer: reg, Logger: logger})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("notifier listening", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		// live connections end when their subscriptions close
		bus.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runUserAdd(ctx context.Context, global globalFlags, flags userFlags) error {
	cfg, logger, err := loadConfig(global, "")
	if err != nil {
		return err
	}
	if cfg.StoreDriver != config.DriverPostgres {
		return fmt.Errorf("the user directory is only persistent with the postgres store, got %q", cfg.StoreDriver)
	}

	db, err := config.InitDB(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.CloseDB(context.Background(), logger)

	if _, err := db.Users.GetUserByID(ctx, flags.id); err == nil {
		return fmt.Errorf("user %s already exists", flags.id)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("looking up user %s: %w", flags.id, err)
	}

	user := &models.User{
		ID:          flags.id,
		DisplayName: flags.name,
		Email:       flags.email,
		FirebaseUID: flags.firebaseUID,
	}
	if err := db.Users.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("creating user %s: %w", flags.id, err)
	}
	logger.Info("user added", "id", user.ID, "name", user.DisplayName)
	return nil
}
