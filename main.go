package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Syferie/BiliBili-Transcribe/config"
	"github.com/Syferie/BiliBili-Transcribe/download"
	"github.com/Syferie/BiliBili-Transcribe/progress"
	"github.com/Syferie/BiliBili-Transcribe/server"
	"github.com/Syferie/BiliBili-Transcribe/transcribe"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	addr := flag.String("addr", "", "Listen address, overrides the configured one")
	modelPath := flag.String("model", "", "Local whisper model directory, overrides the configured one")
	workDir := flag.String("workdir", "", "Directory for downloaded audio, overrides the configured one")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *modelPath != "" {
		cfg.Backends.ModelPath = *modelPath
	}
	if *workDir != "" {
		cfg.WorkDir = *workDir
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	holder := config.NewHolder(cfg)

	store := progress.New(progress.DefaultConfig())
	store.Start()
	defer store.Stop()

	fetcher := download.New(download.Config{
		Binary:      cfg.YTDLPPath,
		WorkDir:     cfg.WorkDir,
		CookiesPath: cfg.CookiesPath,
		MaxDuration: func() int { return holder.Current().MaxVideoDuration },
	}, store)

	service := transcribe.NewService(func() transcribe.FactoryConfig {
		return holder.Current().Factory()
	}, store)

	srv := server.New(holder, store, fetcher, service)

	watcher, err := config.NewWatcher(*configPath, holder)
	if err != nil {
		slog.Warn("Configuration reloading disabled", "error", err)
	} else if err := watcher.Start(); err != nil {
		slog.Warn("Configuration reloading disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("Starting transcription service", "addr", cfg.Addr)
	if err := srv.Start(ctx); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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
