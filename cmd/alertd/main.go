package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"dealalert/internal/config"
	"dealalert/internal/delivery"
	"dealalert/internal/digest"
	"dealalert/internal/pipeline"
	"dealalert/internal/server"
	"dealalert/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	st, err := store.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	client, err := newDeliveryClient(cfg)
	if err != nil {
		log.Error("create delivery client", "transport", cfg.Transport, "error", err)
		os.Exit(1)
	}

	pipe := pipeline.New(st, client, log)
	pipe.SetSendRate(cfg.SendRate)
	pipe.SetSendTimeout(cfg.SendTimeout)

	sched := digest.New(st, client, log, cfg.Location())
	sched.SetCronSpec(cfg.DigestCron)
	sched.SetWorkers(cfg.DispatchWorkers)
	sched.SetSendTimeout(cfg.SendTimeout)

	srv := server.New(cfg.HTTPAddr, pipe, st, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting alertd", "addr", cfg.HTTPAddr, "transport", cfg.Transport)

	go func() {
		if err := sched.Run(ctx); err != nil {
			log.Error("digest scheduler", "error", err)
			cancel()
		}
	}()

	if err := srv.Run(ctx); err != nil {
		log.Error("http server", "error", err)
		os.Exit(1)
	}

	log.Info("alertd stopped")
}

func newDeliveryClient(cfg *config.Config) (delivery.Client, error) {
	switch cfg.Transport {
	case config.TransportTelegram:
		return delivery.NewTelegram(cfg.TelegramBotToken)
	default:
		return delivery.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom), nil
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
