package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"docfabric/internal/config"
	"docfabric/internal/database"
	"docfabric/internal/database/migration"
	"docfabric/internal/http/handler"
	"docfabric/internal/http/server"
	"docfabric/internal/logging"
	"docfabric/internal/otel"
	"docfabric/internal/repository"
	"docfabric/internal/repository/memory"
	"docfabric/internal/repository/postgres"
	"docfabric/internal/service"
	"docfabric/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// @title docfabric API
// @version 1.0
// @description Document store with windowed content reads.
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	log := logging.New(os.Stdout, cfg.Location())
	logging.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error(logging.Fields{"component": "api", "event": "fatal", "error_message": err.Error()})
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, log *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	repo, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	objStore, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}

	docSvc := service.NewDocumentService(objStore, repo,
		service.WithMaxUploadBytes(int64(cfg.Documents.MaxUploadBytes)),
		service.WithDefaultListLimit(cfg.Documents.DefaultListLimit),
		service.WithLogger(log),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := server.New(docSvc, server.Options{
		Routes: handler.RouteConfig{
			DefaultListLimit: cfg.Documents.DefaultListLimit,
			MaxListLimit:     cfg.Documents.MaxListLimit,
			PresignTTL:       time.Duration(cfg.Documents.DownloadPresignTTLSec) * time.Second,
		},
		MaxUploadBytes: cfg.Documents.MaxUploadBytes,
		Registry:       reg,
		DocsHost:       cfg.AppHost,
	})
	if err != nil {
		return fmt.Errorf("build http app: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info(logging.Fields{
			"component":  "api",
			"event":      "listening",
			"addr":       addr,
			"app_host":   cfg.AppHost,
			"repository": cfg.RepositoryBackend,
			"storage":    cfg.StorageBackend,
		})
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	log.Info(logging.Fields{"component": "api", "event": "shutting_down"})
	return app.ShutdownWithTimeout(shutdownTimeout)
}

func openRepository(ctx context.Context, cfg *config.AppConfig, log *logging.Logger) (repository.DocumentRepository, func(), error) {
	switch cfg.RepositoryBackend {
	case "memory":
		return memory.NewDocumentMemory(), func() {}, nil
	case "postgres", "":
		db, err := database.NewPostgres(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if cfg.MigrateOnStart {
			if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("migrate database: %w", err)
			}
		}
		return postgres.NewDocumentPostgres(db), closer(db), nil
	default:
		return nil, nil, fmt.Errorf("unknown REPOSITORY_BACKEND %q", cfg.RepositoryBackend)
	}
}

func closer(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

func openStorage(ctx context.Context, cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case "memory":
		return storage.NewMemory(), nil
	case "s3":
		return storage.NewS3(ctx, cfg.S3)
	case "minio", "":
		m, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}
