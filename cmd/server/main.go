/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loan accounting engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env / environment configuration
  2. Parse command-line flags (flags win over environment)
  3. Open the selected store (sqlite or postgres)
  4. Wire services: ledger -> payments -> loans
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/loans.db"

  # Run against postgres
  DB_DRIVER=postgres DB_CONN="postgres://..." ./server

SEE ALSO:
  - config/config.go: environment configuration
  - api/server.go: router configuration
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/loan-engine/api"
	"github.com/warp/loan-engine/config"
	"github.com/warp/loan-engine/engine"
	"github.com/warp/loan-engine/ledger"
	"github.com/warp/loan-engine/loans"
	"github.com/warp/loan-engine/payments"
	"github.com/warp/loan-engine/store/postgres"
	"github.com/warp/loan-engine/store/sqlite"
)

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	// Flags override environment
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	// Open store
	var repo engine.Repository
	var closeStore func() error
	switch cfg.DBDriver {
	case config.DriverPostgres:
		store, err := postgres.New(cfg.DBConn)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		repo, closeStore = store, store.Close
	default:
		store, err := sqlite.New(*dbPath)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		repo, closeStore = store, store.Close
	}
	defer closeStore()

	// Wire services
	clock := engine.SystemClock{}
	balance := ledger.NewBalanceService(clock, log)
	paymentSvc := payments.NewPaymentService(repo, balance, clock, log)
	loanSvc := loans.NewLoanService(repo, balance, paymentSvc, clock, log)

	handler := api.NewHandler(repo, balance, paymentSvc, loanSvc)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Server starting on http://localhost:%d (driver=%s)", *port, cfg.DBDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped")
}
