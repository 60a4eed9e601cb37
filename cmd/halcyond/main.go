package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/halcyonos/halcyon/internal/api"
	"github.com/halcyonos/halcyon/internal/backup"
	"github.com/halcyonos/halcyon/internal/config"
	"github.com/halcyonos/halcyon/internal/database"
	"github.com/halcyonos/halcyon/internal/keys"
	"github.com/halcyonos/halcyon/internal/logging"
	"github.com/halcyonos/halcyon/internal/manifest"
	"github.com/halcyonos/halcyon/internal/notifications"
	"github.com/halcyonos/halcyon/internal/packages"
	"github.com/halcyonos/halcyon/internal/procedure"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	if err := setupLogging(cfg); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logging.Close()

	// Check if running migrations
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrations(cfg)
		return
	}

	// Only one daemon may own the data directory
	lock, err := acquireLock(cfg)
	if err != nil {
		log.Fatalf("Failed to acquire instance lock: %v", err)
	}
	defer lock.Unlock()

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run migrations automatically
	log.Println("Running database migrations...")
	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")

	// Initialize stores and managers
	pkgStore := packages.NewStore(db.DB)
	keyStore := keys.NewSQLStore(db.DB)
	notifier := notifications.NewManager(db.DB, notifications.NewDebounceCache())
	manifests := manifest.NewSource(cfg.Storage.ArchiveRoot)

	osVersion, err := pkgStore.OSVersion(context.Background())
	if err != nil {
		log.Fatalf("Failed to read system version: %v", err)
	}

	// Initialize the procedure runtime and backup orchestrator
	runner := procedure.NewDockerRunner(cfg.Storage.DataDir)
	reconfigurer := packages.NewReconfigurer(pkgStore, runner)
	orchestrator := backup.NewOrchestrator(cfg.Storage.BackupRoot, cfg.Storage.ArchiveRoot, osVersion, runner, keyStore, pkgStore, reconfigurer)

	// Start notification retention job
	if cfg.Notifications.RetentionDays > 0 {
		retention := time.Duration(cfg.Notifications.RetentionDays) * 24 * time.Hour
		pruner := notifications.NewPruner(notifier, cfg.Notifications.PruneSchedule, retention)
		if err := pruner.Start(); err != nil {
			log.Fatalf("Failed to start notification retention job: %v", err)
		}
		defer pruner.Stop()
	}

	log.Println("All components initialized successfully")

	// Set up HTTP server
	router := api.SetupRouter(cfg, orchestrator, manifests, pkgStore, notifier)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", server.Addr)

		if cfg.Server.TLS.Enabled {
			if err := server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start HTTPS server: %v", err)
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start HTTP server: %v", err)
			}
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func setupLogging(cfg *config.Config) error {
	if cfg != nil && strings.TrimSpace(cfg.Logging.File) == "" {
		dataDir := cfg.Storage.DataDir
		if dataDir == "" {
			dataDir = "./data"
		}
		cfg.Logging.File = filepath.Join(dataDir, "logs", "halcyond.log")
	}
	if cfg != nil && strings.TrimSpace(cfg.Logging.File) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return err
		}
	}
	_, err := logging.Init(cfg.Logging)
	return err
}

func acquireLock(cfg *config.Config) (*flock.Flock, error) {
	path := cfg.LockFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, fmt.Errorf("another instance already holds %s", path)
	}
	return lock, nil
}

func runMigrations(cfg *config.Config) {
	log.Println("Running database migrations...")

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migrations completed successfully")
}
