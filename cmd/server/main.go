package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stanstork/bulkgen/internal/authz"
	"github.com/stanstork/bulkgen/internal/config"
	"github.com/stanstork/bulkgen/internal/executor"
	"github.com/stanstork/bulkgen/internal/handlers"
	"github.com/stanstork/bulkgen/internal/metrics"
	"github.com/stanstork/bulkgen/internal/middleware"
	"github.com/stanstork/bulkgen/internal/migration"
	"github.com/stanstork/bulkgen/internal/repository"
	"github.com/stanstork/bulkgen/internal/routes"
	"github.com/stanstork/bulkgen/internal/session"
	"github.com/stanstork/bulkgen/internal/temporal"
	"github.com/stanstork/bulkgen/internal/temporal/activities"
	"github.com/stanstork/bulkgen/internal/temporal/workflows"
	"github.com/stanstork/bulkgen/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"
)

type application struct {
	config         *config.Config
	db             *sql.DB
	store          repository.RecordStore
	runs           repository.BatchRunRepository
	metrics        *metrics.Metrics
	executor       *executor.Executor
	temporalClient tc.Client
	logger         zerolog.Logger
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	// Load configuration.
	cfg := config.Load()

	app := &application{
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
	}
	app.initStore()
	if app.db != nil {
		defer app.db.Close()
	}
	app.initExecutor()

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	app.startJanitor(janitorCtx)

	// Server-side runs are optional; client-driven runs need no worker.
	var temporalWorker sdkworker.Worker
	if cfg.Temporal.Enabled {
		temporalClient, err := tc.Dial(tc.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    temporal.NewLoggerAdapter(logger),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Unable to create Temporal client")
		}
		defer temporalClient.Close()
		app.temporalClient = temporalClient
		temporalWorker = app.startTemporalWorker()
	}

	// Initialize the HTTP router and middleware.
	router := app.initRouter()
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins(cfg.Server.AllowedOrigins),
		h.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization", handlers.NonceHeader}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, temporalWorker)

	logger.Info().Msg("Application terminated.")
}

// initStore opens the record store and the batch run log.
func (app *application) initStore() {
	if app.config.Store.Backend != "postgres" {
		app.logger.Info().Msg("Using in-memory record store")
		app.store = repository.NewMemoryStore().RecordStore()
		app.runs = repository.NewMemoryBatchRunRepository()
		return
	}

	db, err := sql.Open("postgres", app.config.Store.DatabaseURL)
	if err != nil {
		app.logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	if err := db.Ping(); err != nil {
		app.logger.Fatal().Err(err).Msg("Failed to ping database")
	}
	if err := migration.RunMigrations(db, app.logger); err != nil {
		app.logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	app.db = db
	app.store = repository.RecordStore{
		Orders:   repository.NewOrderRepository(db),
		Products: repository.NewProductRepository(db),
	}
	app.runs = repository.NewBatchRunRepository(db)
}

func (app *application) initSessionStore() session.Store {
	cfg := app.config
	if cfg.Sessions.Backend != "redis" {
		return session.NewMemoryStore(cfg.Sessions.TTL)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		app.logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to reach Redis")
	}
	app.logger.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis session store")
	return session.NewRedisStore(rdb, cfg.Sessions.TTL)
}

func (app *application) initPublisher() session.Publisher {
	cfg := app.config
	if cfg.Artifacts.Backend != "minio" {
		return session.LocalPublisher{BaseURL: cfg.Export.BaseURL}
	}
	client, err := minio.New(cfg.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Minio.AccessKey, cfg.Minio.SecretKey, ""),
		Secure: cfg.Minio.UseSSL,
	})
	if err != nil {
		app.logger.Fatal().Err(err).Msg("Failed to create MinIO client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Minio.Bucket)
	if err != nil {
		app.logger.Fatal().Err(err).Str("bucket", cfg.Minio.Bucket).Msg("Failed to check artifact bucket")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Minio.Bucket, minio.MakeBucketOptions{}); err != nil {
			app.logger.Fatal().Err(err).Str("bucket", cfg.Minio.Bucket).Msg("Failed to create artifact bucket")
		}
	}
	app.logger.Info().Str("endpoint", cfg.Minio.Endpoint).Str("bucket", cfg.Minio.Bucket).Msg("Publishing artifacts to MinIO")
	return session.NewMinioPublisher(client, cfg.Minio.Bucket, cfg.Minio.URLExpiry)
}

func (app *application) initExecutor() {
	cfg := app.config
	for _, dir := range []string{cfg.Export.Dir, cfg.Export.UploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			app.logger.Fatal().Err(err).Str("dir", dir).Msg("Failed to create data directory")
		}
	}

	tracker := session.NewTracker(app.initSessionStore(), app.initPublisher(), cfg.Export.Dir, cfg.Export.UploadDir, app.logger)
	app.executor = executor.New(executor.Deps{
		Store:   app.store,
		Tracker: tracker,
		Runs:    app.runs,
		Metrics: app.metrics,
	}, executor.Settings{
		OrderBatchSize:   cfg.Generator.BatchSize,
		ProductBatchSize: cfg.Generator.ProductBatchSize,
		DateRangeDays:    cfg.Generator.DateRange,
		ProductsPerOrder: cfg.Generator.ProductsPerOrder,
		PriceMin:         cfg.Generator.PriceMin,
		PriceMax:         cfg.Generator.PriceMax,
		PlaceholderImage: cfg.Generator.PlaceholderImage,
	}, app.logger)
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter() http.Handler {
	nonces := authz.NewNonces(app.config.JWTSecret, 12*time.Hour)

	authHandler := handlers.NewAuthHandler(app.config, nonces, app.logger)
	runsHandler := handlers.NewRunsHandler(app.runs, app.temporalClient, app.config.Temporal.TaskQueue, handlers.RunLimits{
		MaxOrders:   app.config.Generator.MaxOrders,
		MaxProducts: app.config.Generator.MaxProducts,
	}, app.logger)
	ajaxHandler := handlers.NewAjaxHandler(app.executor, nonces, runsHandler, app.logger)
	healthHandler := handlers.NewHealthHandler(app.store.Orders, app.store.Products)

	return routes.NewRouter(authHandler, ajaxHandler, runsHandler, healthHandler, app.metrics.Handler(), app.config.Export.Dir)
}

// startJanitor sweeps export artifacts and uploads older than the session TTL.
func (app *application) startJanitor(ctx context.Context) {
	cfg := app.config
	janitor := worker.NewJanitor(worker.JanitorConfig{
		Dirs:         []string{cfg.Export.Dir, cfg.Export.UploadDir},
		MaxAge:       cfg.Sessions.TTL,
		PollInterval: cfg.Sessions.SweepInterval,
	}, afero.NewOsFs(), app.logger)
	go janitor.Start(ctx)
}

func (app *application) startTemporalWorker() sdkworker.Worker {
	w := sdkworker.New(app.temporalClient, app.config.Temporal.TaskQueue, sdkworker.Options{})

	w.RegisterWorkflow(workflows.GenerationWorkflow)
	w.RegisterActivity(&activities.Activities{Executor: app.executor})

	// Start the worker in a goroutine so it doesn't block.
	go func() {
		app.logger.Info().Str("task_queue", app.config.Temporal.TaskQueue).Msg("Starting Temporal worker...")
		if err := w.Run(sdkworker.InterruptCh()); err != nil {
			app.logger.Fatal().Err(err).Msg("Unable to start worker")
		}
	}()

	return w
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, temporalWorker sdkworker.Worker) {
	logger := app.logger
	server := &http.Server{
		Addr:              ":" + app.config.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Batches in flight finish before the server exits.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	if temporalWorker != nil {
		logger.Info().Msg("Stopping Temporal worker...")
		temporalWorker.Stop()
		logger.Info().Msg("Temporal worker stopped.")
	}
}
