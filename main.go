package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/config"
	"github.com/buddy-hq/buddy-engine/pkg/database"
	"github.com/buddy-hq/buddy-engine/pkg/events"
	"github.com/buddy-hq/buddy-engine/pkg/handlers"
	"github.com/buddy-hq/buddy-engine/pkg/oracle"
	"github.com/buddy-hq/buddy-engine/pkg/repositories"
	"github.com/buddy-hq/buddy-engine/pkg/services"
	"github.com/buddy-hq/buddy-engine/pkg/spread"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Database),
		zap.Int("workers", cfg.Pipeline.WorkerCount),
		zap.Bool("scanner_configured", cfg.Scanner.Endpoint != ""),
		zap.Bool("ocr_configured", cfg.OCR.Endpoint != ""))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	provider := database.NewTenantScopeProvider(db)

	// Repositories
	docRepo := repositories.NewDocumentRepository()
	scanCacheRepo := repositories.NewScanCacheRepository()
	factRepo := repositories.NewFactRepository()
	spreadRepo := repositories.NewSpreadRepository()
	jobRepo := repositories.NewJobRepository()
	eventRepo := repositories.NewEventRepository()

	recorder := events.NewRecorder(eventRepo, logger).
		WithSuppressor(services.NewThrottle(time.Minute))

	// Oracles
	openaiClient := oracle.NewOpenAIClient(cfg.Oracles.OpenAIKey, cfg.Oracles.OpenAIModel, logger)
	var extractor oracle.Extractor = openaiClient
	if cfg.Oracles.AnthropicKey != "" {
		highFidelity := oracle.NewAnthropicExtractor(cfg.Oracles.AnthropicKey, cfg.Oracles.AnthropicModel, logger)
		extractor = oracle.NewRoutedExtractor(openaiClient, highFidelity)
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set, high-fidelity extraction falls back to the standard tier")
	}

	var scanner oracle.VirusScanner
	if cfg.Scanner.Endpoint != "" {
		scanner = oracle.NewHTTPScanner(cfg.Scanner.Endpoint, cfg.Scanner.Engine,
			time.Duration(cfg.Scanner.TimeoutSeconds)*time.Second)
	}

	var recognizer oracle.TextRecognizer
	if cfg.OCR.Endpoint != "" {
		recognizer = oracle.NewHTTPRecognizer(cfg.OCR.Endpoint,
			time.Duration(cfg.OCR.TimeoutSeconds)*time.Second)
	}

	// Services
	gate := services.NewHashGate(docRepo, scanCacheRepo, logger)
	intakeService := services.NewIntakeService(docRepo, factRepo, gate,
		scanner, recognizer, openaiClient, extractor, recorder, logger)
	spreadService := services.NewSpreadService(spreadRepo, jobRepo, factRepo,
		spread.NewEngine(logger), recorder,
		time.Duration(cfg.Pipeline.DebounceSeconds)*time.Second, logger)
	debtService := services.NewDebtService(factRepo, logger)

	// HTTP surface
	mux := http.NewServeMux()
	tenantMiddleware := handlers.NewTenantScopeMiddleware(provider, logger)

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewDocumentHandler(intakeService, docRepo, logger).RegisterRoutes(mux, tenantMiddleware)
	handlers.NewSpreadHandler(spreadService, logger).RegisterRoutes(mux, tenantMiddleware)
	handlers.NewDebtHandler(debtService, logger).RegisterRoutes(mux, tenantMiddleware)
	handlers.NewEventHandler(eventRepo, logger).RegisterRoutes(mux, tenantMiddleware)

	// Background loops
	var wg sync.WaitGroup
	lease := time.Duration(cfg.Pipeline.LeaseMinutes) * time.Minute
	poll := time.Duration(cfg.Pipeline.WorkerPollSeconds) * time.Second
	for i := 0; i < cfg.Pipeline.WorkerCount; i++ {
		worker := services.NewSpreadWorker(db, provider, jobRepo, spreadService, poll, lease, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	observer := services.NewObserver(db, spreadRepo, jobRepo, recorder,
		time.Duration(cfg.Pipeline.ObserverIntervalSeconds)*time.Second,
		time.Duration(cfg.Pipeline.AutoHealMinutes)*time.Minute,
		time.Duration(cfg.Pipeline.OrphanMinutes)*time.Minute,
		logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		observer.Run(ctx)
	}()

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting buddy-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	// Workers and observer stop via the cancelled signal context.
	wg.Wait()
	logger.Info("Shutdown complete")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()

	return database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger)
}
