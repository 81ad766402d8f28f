package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"scrumboard/internal/access"
	"scrumboard/internal/config"
	"scrumboard/internal/server"
	"scrumboard/internal/storage/sqlite"
	"scrumboard/internal/util"
)

func main() {
	configFlag := flag.String("config", util.EnvOrDefault("SCRUMBOARD_CONFIG", "scrumboard.yaml"), "Path to YAML config file")
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbFlag := flag.String("db", "", "Path to sqlite database file (overrides config)")
	staticFlag := flag.String("static", "", "Directory with built frontend (overrides config)")
	repairFlag := flag.Bool("repair", false, "Repair item positions before serving")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		slog.Error("unable to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}
	if *dbFlag != "" {
		cfg.DBPath = *dbFlag
	}
	if *staticFlag != "" {
		cfg.StaticDir = *staticFlag
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	logger.Info("scrumboard starting",
		slog.String("db", cfg.DBPath),
		slog.String("wip_enforcement", string(cfg.WIPEnforcement)))

	store, err := sqlite.Open(cfg.DBPath, logger, sqlite.Options{
		WIPEnforcement: cfg.WIPEnforcement,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
		SprintColumns:  cfg.DefaultSprintColumns,
	})
	if err != nil {
		logger.Error("unable to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	if cfg.RepairOnStart || *repairFlag {
		fixed, err := store.RepairPositions(context.Background())
		if err != nil {
			logger.Error("position repair failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("position repair finished", slog.Int("rows", fixed))
	}

	srv := server.New(store, access.FromConfig(cfg), logger, cfg.StaticDir)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
