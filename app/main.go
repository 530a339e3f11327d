package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openscholar/exchange/app/api"
	"github.com/openscholar/exchange/app/cfg"
	"github.com/openscholar/exchange/app/config"
	"github.com/openscholar/exchange/app/database"
	"github.com/openscholar/exchange/app/doi"
	"github.com/openscholar/exchange/app/oai"
	"github.com/openscholar/exchange/app/tasks"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load configuration from environment variables and command-line flags
	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	log.Printf("Starting Scholar Exchange server (version %s)...", appCfg.Version)

	// Database connection
	log.Println("Connecting to database...")
	db, err := database.NewConnection(
		appCfg.DBHost, appCfg.DBPort, appCfg.DBUser,
		appCfg.DBPassword, appCfg.DBName)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()
	log.Printf("Connected to database successfully")

	// Apply schema migrations
	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	log.Printf("Database schema at version %d (dirty: %v)", version, dirty)

	// Load journal configurations
	log.Printf("Loading journal configurations from %s...", appCfg.JournalsDir)
	loader := config.NewLoader(appCfg.JournalsDir)
	journalConfigs, err := loader.LoadAll()
	if err != nil {
		log.Fatal("Failed to load journal configurations:", err)
	}
	log.Printf("Loaded %d journal configurations", len(journalConfigs))

	// Initialize repositories
	articleRepo := database.NewArticleRepository(db)
	journalRepo := database.NewJournalRepository(db)

	// Initialize registration components
	generator := doi.NewGenerator(articleRepo)
	builder := doi.NewBuilder()
	client := doi.NewClient(&http.Client{})
	registrar := doi.NewRegistrar(articleRepo, generator, builder, client)

	// Initialize and start scheduler
	log.Printf("Starting background scheduler with %d workers...", appCfg.WorkerCount)
	scheduler := tasks.NewScheduler(journalConfigs, articleRepo, journalRepo, registrar)
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize HTTP server
	log.Println("Initializing HTTP server...")
	responder := oai.NewResponder(articleRepo, journalRepo)
	apiHandler := api.NewHandler(articleRepo, journalRepo, responder, registrar, scheduler)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	// Create HTTP server with timeouts
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start HTTP server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on port %s", appCfg.Port)
		log.Printf("Endpoints available:")
		log.Printf("  Harvest:       http://localhost:%s/oai?verb=Identify", appCfg.Port)
		log.Printf("  Health check:  http://localhost:%s/health", appCfg.Port)
		log.Printf("  Statistics:    http://localhost:%s/stats", appCfg.Port)

		if appCfg.APIAccessKey != "" {
			log.Printf("  Registration:  http://localhost:%s/api/articles/<id>/registration (requires API key)", appCfg.Port)
			log.Printf("  Register DOI:  http://localhost:%s/api/articles/<id>/register-doi (POST, requires API key)", appCfg.Port)
			log.Printf("  Retry DOI:     http://localhost:%s/api/articles/<id>/retry-doi (POST, requires API key)", appCfg.Port)
		} else {
			log.Printf("  API endpoints: DISABLED (API_ACCESS_KEY not set)")
		}

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("Scholar Exchange server started successfully!")
	log.Println("Press Ctrl+C to shutdown gracefully...")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-serverErrChan:
		log.Printf("Server error: %v", err)
	}

	// Graceful shutdown
	log.Println("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	} else {
		log.Println("HTTP server stopped")
	}

	// Scheduler is stopped via defer
	log.Println("Background scheduler stopped")

	log.Println("Scholar Exchange server shutdown complete")
}
