/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the attendance engine server: configuration,
  store, per-subject lock table, deadline scheduler, HTTP router, and
  graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and environment configuration
  2. Open the SQLite store (runs versioned migrations)
  3. Build lock table, scheduler, service, classifier
  4. Re-arm due timers for reports that survived a restart
  5. Start the sweep loop and the HTTP server

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: attendance.db)
           Use ":memory:" for an in-memory database

ENVIRONMENT:
  See the config package: TZ_OFFSET_HOURS, CHECKIN_DEADLINE, STALE_AFTER,
  SWEEP_INTERVAL, REPORT_KEYWORDS. A .env file is honored in development.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections (30s drain)
  2. Stop the scheduler
  3. Close the database connection

SEE ALSO:
  - api/server.go: Router configuration
  - attendance: Service and scheduler
  - store/sqlite: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/attendance-engine/api"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/classify"
	"github.com/warp/attendance-engine/config"
	"github.com/warp/attendance-engine/engine"
	"github.com/warp/attendance-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "attendance.db", "SQLite database path")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wiring: scheduler and service share the lock table so overdue
	// marking serializes against manual returns.
	locks := engine.NewLockTable()
	scheduler := attendance.NewScheduler(store, locks, attendance.LogNotifier{})
	scheduler.SweepInterval = cfg.SweepInterval

	service := attendance.NewService(store, locks, cfg)
	service.SetScheduler(scheduler)

	classifier := classify.New(cfg.CheckInWords, cfg.CheckOutWords, cfg.ReturnWords, cfg.ReportKeywords)

	// Recover due timers lost across the restart; the sweep backstops
	// anything this misses.
	if err := scheduler.Rearm(context.Background()); err != nil {
		log.Printf("Warning: Failed to re-arm due timers: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	handler := api.NewHandler(service, classifier)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Attendance engine on http://localhost:%d (tz=%s deadline=%s stale=%v)",
			*port, cfg.Location, cfg.LateDeadline, cfg.StaleAfter)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
