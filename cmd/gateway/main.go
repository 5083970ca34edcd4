package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	api "github.com/nehasri1207/RankSarthi/internal/api/http"
	auth "github.com/nehasri1207/RankSarthi/internal/auth/middleware"
	"github.com/nehasri1207/RankSarthi/internal/config"
	"github.com/nehasri1207/RankSarthi/internal/db"
	"github.com/nehasri1207/RankSarthi/internal/exam"
	"github.com/nehasri1207/RankSarthi/internal/logging"
	"github.com/nehasri1207/RankSarthi/internal/normalization"
	"github.com/nehasri1207/RankSarthi/internal/scheduler"
	"github.com/nehasri1207/RankSarthi/internal/standing"
	"github.com/nehasri1207/RankSarthi/internal/submission"
	syncx "github.com/nehasri1207/RankSarthi/internal/sync"
	"github.com/nehasri1207/RankSarthi/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New(cfg.Logging)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Init(ctx, cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer shutdownWithin(cfg.Server.ShutdownTimeout, log, "telemetry", tel.Shutdown)

	metrics, err := telemetry.NewMetrics(tel.Meter)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Store ---
	var (
		store  exam.Store
		events syncx.Appender
		ready  api.Pinger
	)
	if cfg.DB.Driver == "memory" {
		store, events = exam.NewMemoryStore(), &syncx.MemoryLog{}
	} else {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		dbh, err := db.Open(openCtx, db.Driver(cfg.DB.Driver), cfg.DB.DSN)
		cancel()
		if err != nil {
			return fmt.Errorf("db open failed: %w", err)
		}
		defer closeDB(dbh, log)
		store, events, ready = exam.NewSQLStore(dbh, cfg.DB.Driver), syncx.NewEventRepo(dbh), dbh
	}

	// --- Domain ---
	runner := normalization.NewRunner(store,
		normalization.WithLogger(log),
		normalization.WithTracer(tel.Tracer),
		normalization.WithMetrics(metrics),
		normalization.WithEvents(events),
	)
	sched := scheduler.New(runner,
		scheduler.WithCooldown(cfg.Normalization.Cooldown),
		scheduler.WithLogger(log),
		scheduler.WithMetrics(metrics),
	)
	standings := standing.New(store, metrics)
	submissions := submission.NewService(store, standings, sched,
		submission.WithEvents(events),
		submission.WithLogger(log),
		submission.WithMetrics(metrics),
	)

	router := api.NewRouter(api.Deps{
		Config:     cfg.Server,
		Store:      store,
		Auth:       auth.NewAuthService(cfg.Auth),
		Submission: submissions,
		Standings:  standings,
		Runner:     runner,
		Log:        log,
		Ready:      ready,
		Metrics:    tel.MetricsHandler,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Server.Addr, "db", cfg.DB.Driver, "cooldown", cfg.Normalization.Cooldown)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		// let in-flight recomputations commit before the store closes
		if cerr := sched.Close(sctx); cerr != nil {
			log.Warn("scheduler did not drain", "err", cerr)
		}
		return err
	})
	return g.Wait()
}

func shutdownWithin(d time.Duration, log *slog.Logger, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn("shutdown failed", "component", what, "err", err)
	}
}

func closeDB(dbh *sql.DB, log *slog.Logger) {
	if err := dbh.Close(); err != nil {
		log.Warn("db close failed", "err", err)
	}
}
