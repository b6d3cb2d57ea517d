// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatherly/rewards/internal/catalog"
	"github.com/gatherly/rewards/internal/database"
	"github.com/gatherly/rewards/internal/handler"
	"github.com/gatherly/rewards/internal/logging"
	"github.com/gatherly/rewards/internal/notify"
	"github.com/gatherly/rewards/internal/repository"
	"github.com/gatherly/rewards/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	ctx := context.Background()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := logging.New(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "text"), os.Stdout)

	// ── 1. Connect to PostgreSQL and apply the schema ─────────────────────
	pool, err := database.NewPool(ctx)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	logger.Info("connected to postgres")

	// ── 2. Load the eligibility catalog ───────────────────────────────────
	catalogRepo := repository.NewCatalogRepository(pool)
	defs, err := catalogRepo.LoadDefinitions(ctx)
	if err != nil {
		log.Fatalf("load catalog: %v", err)
	}
	cat := catalog.New(defs)
	logger.Info("catalog loaded", "definitions", cat.Len())

	// ── 3. Wire up layers ────────────────────────────────────────────────
	eventRepo := repository.NewEventRepository(pool)
	rosterRepo := repository.NewRosterRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)
	statsRepo := repository.NewStatsRepository(pool)

	dispatcher := notify.NewDispatcher(&notify.LogNotifier{Log: logger}, 256, logger)

	eventSvc := service.NewEventService(eventRepo, rosterRepo, statsRepo, logger)
	rewardSvc := service.NewRewardService(rosterRepo, ledgerRepo, statsRepo, cat, dispatcher, logger)
	h := handler.New(eventSvc, rewardSvc)

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.Logger(logger))
	r.Use(handler.Metrics)
	r.Use(handler.CORS)

	r.Get("/health", handler.HealthCheck)
	r.Method(http.MethodGet, "/metrics", handler.MetricsHandler())

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Delete("/{id}", h.CancelEvent)
		r.Get("/{id}/roster", h.ListRoster)
		r.Post("/{id}/join", h.JoinEvent)
		r.Post("/{id}/leave", h.LeaveEvent)
		r.Post("/{id}/checkin", h.CheckIn)
	})

	r.Route("/users/{id}", func(r chi.Router) {
		r.Get("/points", h.GetBalance)
		r.Post("/points/earn", h.Earn)
		r.Post("/points/spend", h.Spend)
		r.Post("/points/bonus", h.Bonus)
		r.Post("/points/penalty", h.Penalty)
		r.Post("/points/refund", h.Refund)
		r.Get("/points/history", h.GetHistory)
		r.Get("/points/monthly", h.GetMonthlyTotals)
		r.Post("/unlocks/evaluate", h.EvaluateUnlocks)
		r.Get("/unlocks", h.ListUnlocked)
	})

	// ── 5. Start server with graceful shutdown ────────────────────────────
	port := getEnv("PORT", "8080")
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("notification queue not drained", "error", err)
	}
	logger.Info("server stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
