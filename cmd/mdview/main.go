package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/user/mdview/internal/api"
	"github.com/user/mdview/internal/config"
	"github.com/user/mdview/internal/db"
	"github.com/user/mdview/internal/hub"
	"github.com/user/mdview/internal/profile"
	"github.com/user/mdview/internal/server"
	"github.com/user/mdview/internal/term"
)

func main() {
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	history := db.NewHistoryRepo(database.SQL())
	profiles := profile.NewStore(cfg.ProfilesPath)

	h := hub.New(cfg.Token, history)
	registry := term.NewRegistry(h)
	registry.SetGracePeriod(cfg.GracePeriod())
	h.AttachRegistry(registry)
	go h.Run(ctx)

	if cfg.PrintToken {
		fmt.Printf("\nmdview backend running at http://localhost:%d?token=%s\n\n", cfg.Port, cfg.Token)
	}

	apiHandler := api.NewRouter(profiles, registry, history, cfg.Token)
	srv := server.New(cfg, h, apiHandler)

	err = srv.Start(ctx)

	// Terminal sessions do not survive the backend; close them cleanly.
	registry.Shutdown()

	if err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogging() {
	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}
