package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"IPOAllocator/internal/allocator"
	"IPOAllocator/internal/collector"
	"IPOAllocator/internal/metrics"
	"IPOAllocator/internal/notifier"
	"IPOAllocator/internal/recorder"
	"IPOAllocator/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled allocations and the Telegram command loop",
	RunE:  runServe,
}

var runOnStart bool

func init() {
	serveCmd.Flags().BoolVar(&runOnStart, "run-on-start", os.Getenv("RUN_ON_START") == "true", "Run one allocation immediately")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, l, err := setup()
	if err != nil {
		return err
	}
	l.Info().Msg("IPO allocator starting...")

	reg, err := metrics.NewRegistry(nil)
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg, l, allocator.WithObserver(reg))
	if err != nil {
		return err
	}

	src := newSource(cfg)
	l.Info().Str("source", src.Name()).Msg("data source ready")
	col := collector.NewCollector(src, l)

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, l)
		if err != nil {
			l.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}
	defer rec.Close()

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var tn *notifier.TelegramNotifier
	var notif notifier.Notifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, l)
		notif = tn
	} else {
		l.Info().Msg("telegram disabled, plans are only recorded")
	}

	sched := scheduler.NewScheduler(ctx, col, eng, notif, rec, cfg.Allocation.Request, l)
	if err := sched.Register(cfg.Schedule.AllocateCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		l.Info().Msg("telegram polling started")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("metrics server failed")
		}
	}()
	l.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics endpoint listening")

	if runOnStart {
		l.Info().Msg("run-on-start enabled, allocating now")
		go sched.RunNow()
	}

	l.Info().Msg("IPO allocator is running. Press Ctrl+C to stop.")
	<-ctx.Done()

	l.Info().Msg("shutdown signal received, stopping...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn().Err(err).Msg("metrics server shutdown")
	}
	l.Info().Msg("IPO allocator stopped")
	return nil
}
