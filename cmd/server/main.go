package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/gorilla/mux"
	"github.com/quillnote/tasks-api/internal/config"
	"github.com/quillnote/tasks-api/internal/handlers"
	"github.com/quillnote/tasks-api/internal/logger"
	"github.com/quillnote/tasks-api/internal/middleware"
	"github.com/quillnote/tasks-api/internal/pomodoro"
	"github.com/quillnote/tasks-api/internal/sessions"
	"github.com/quillnote/tasks-api/internal/settings"
	"github.com/quillnote/tasks-api/internal/stats"
	"github.com/quillnote/tasks-api/internal/storage"
	"github.com/quillnote/tasks-api/internal/tasks"
	"github.com/quillnote/tasks-api/internal/telemetry"
)

func main() {
	// Parse command-line flags
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override debug mode if flag is set
	debugMode := cfg.ServerDebugMode || *debugFlag

	// Initialize logger
	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if syncErr := zapLogger.Sync(); syncErr != nil {
			// Ignore sync errors in production
			_ = syncErr
		}
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	// Initialize OpenTelemetry if enabled
	var tracerProvider interface{ Shutdown(context.Context) error }
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(context.Background(), "tasks-api", cfg.OTELEndpoint)
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				tracerProvider = tp
				zapLogger.Info("otel_tracer_initialized",
					zap.String("endpoint", cfg.OTELEndpoint),
				)
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	// Open the storage backend (Postgres for postgres:// URLs, SQLite otherwise)
	backend, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_open_storage_backend", zap.Error(err))
	}
	defer func() {
		if err := backend.Close(); err != nil {
			zapLogger.Warn("failed_to_close_storage_backend", zap.Error(err))
		}
	}()

	zapLogger.Info("storage_backend_ready")

	// Connect to Redis for rate limiting if configured; fall back to the
	// in-memory limiter store otherwise
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("invalid_redis_url", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		zapLogger.Info("connected_to_redis")
	}

	// Initialize services
	taskRepo := tasks.NewRepository(backend.Tasks(), zapLogger)
	recorder := sessions.NewRecorder(backend.Sessions(), taskRepo, zapLogger)
	settingsSvc := settings.NewService(backend.Settings())
	aggregator := stats.NewAggregator(backend.Tasks())
	engine := pomodoro.NewEngine(taskRepo, recorder, settingsSvc, pomodoro.RealClock(), zapLogger)

	// Initialize handlers
	taskHandler := handlers.NewTaskHandler(taskRepo, zapLogger)
	sessionHandler := handlers.NewSessionHandler(recorder)
	timerHandler := handlers.NewTimerHandler(engine, zapLogger)
	statsHandler := handlers.NewStatsHandler(aggregator)
	settingsHandler := handlers.NewSettingsHandler(settingsSvc)
	healthChecker := handlers.NewHealthChecker(backend)

	// Setup router
	r := mux.NewRouter()

	// Apply middleware (order matters - executed in reverse order of registration)
	// Note: In gorilla/mux, middleware executes in reverse order of registration
	// Middleware registered LAST executes FIRST (outermost wrapper)
	zapLogger.Info("setting_up_middleware")

	// Outermost middleware (executes first):
	// 0. OpenTelemetry tracing (if enabled)
	if cfg.OTELEnabled && tracerProvider != nil {
		r.Use(otelmux.Middleware("tasks-api"))
		zapLogger.Info("otel_middleware_enabled")
	}
	// 1. Security headers (should be set on all responses)
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	// 2. CORS
	r.Use(middleware.CORS([]string{cfg.FrontendURL}))
	// Rate limit middleware (applied to API routes, not health checks)
	rateLimitMW, err := middleware.RateLimit(redisClient, cfg.RateLimit)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}
	// 3. Request size limits (protects against DoS)
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	// 4. Content-Type validation for POST/PATCH/PUT requests
	r.Use(middleware.ContentType)
	// 5. Error handler (catches panics)
	r.Use(middleware.ErrorHandler(zapLogger))
	// 6. Logging (innermost, executes last before handler)
	r.Use(middleware.Logging(zapLogger))

	// Public routes (no rate limiting for health checks)
	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	r.HandleFunc("/version", versionInfo).Methods("GET")

	// OpenAPI spec (public)
	openAPIPath := filepath.Join("api", "openapi", "openapi.yaml")
	openAPIHandler := handlers.NewOpenAPIHandler(openAPIPath)
	openAPIHandler.RegisterRoutes(r)

	// API v1 routes
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(rateLimitMW)

	// The SSE stream holds its connection open, so it mounts outside the
	// timeout middleware. Everything else under /api/v1 gets the timeout.
	streamRouter := apiRouter.PathPrefix("/timer").Subrouter()
	timerHandler.RegisterStreamRoutes(streamRouter)

	timedRouter := apiRouter.PathPrefix("").Subrouter()
	timedRouter.Use(middleware.Timeout(time.Duration(cfg.RequestTimeout) * time.Second))

	tasksRouter := timedRouter.PathPrefix("/tasks").Subrouter()
	taskHandler.RegisterRoutes(tasksRouter)
	sessionHandler.RegisterTaskRoutes(tasksRouter)
	timerHandler.RegisterTaskRoutes(tasksRouter)

	sessionsRouter := timedRouter.PathPrefix("/sessions").Subrouter()
	sessionHandler.RegisterRoutes(sessionsRouter)

	timerRouter := timedRouter.PathPrefix("/timer").Subrouter()
	timerHandler.RegisterRoutes(timerRouter)

	statsHandler.RegisterRoutes(timedRouter)
	settingsHandler.RegisterRoutes(timedRouter)

	// Catch-all OPTIONS handler for preflight requests
	// The CORS middleware will handle setting headers before this is called
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Setup server. No WriteTimeout: the timer SSE stream keeps its
	// response open indefinitely. Non-streaming routes are bounded by the
	// timeout middleware instead.
	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
	}

	// Start server in a goroutine
	go func() {
		zapLogger.Info("server_starting",
			zap.String("port", cfg.ServerPort),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	// Stop any running timer so the open session is closed and credited
	// before the process exits
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if _, _, err := engine.StopTask(shutdownCtx, nil, nil, nil); err != nil {
		zapLogger.Warn("failed_to_stop_timer_on_shutdown", zap.Error(err))
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Fatal("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

func versionInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	// Only expose minimal version info
	if _, err := fmt.Fprintf(w, `{"version":"1.0.0","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339)); err != nil {
		_ = err
	}
}
