package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/modelgate/modelgate/internal/auth"
	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/gateway"
	"github.com/modelgate/modelgate/internal/recording"
	"github.com/modelgate/modelgate/internal/registry"
	"github.com/modelgate/modelgate/internal/server"
	"github.com/modelgate/modelgate/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdown, err := telemetry.InitTracer("modelgate", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	reg, err := registry.Load(cfg.Models.Path)
	if err != nil {
		log.Fatalf("Failed to load model configuration: %v", err)
	}
	logger.Info("model registry loaded",
		slog.String("path", cfg.Models.Path),
		slog.Int("models", reg.Len()))

	var authenticator *auth.Authenticator
	if cfg.Auth.ServiceKey != "" {
		authenticator = auth.NewAuthenticator(cfg.Auth.ServiceKey)
	} else {
		logger.Warn("no service key configured, requests are unauthenticated")
	}

	opts := []gateway.Option{
		gateway.WithCompletionLogging(cfg.Logging.Completions),
	}

	if cfg.Recording.Enabled {
		recorder, err := recording.New(cfg.Recording.Path, logger)
		if err != nil {
			log.Fatalf("Failed to open recording store: %v", err)
		}
		defer recorder.Close()
		opts = append(opts, gateway.WithRecorder(recorder))
		logger.Info("recording enabled", slog.String("path", cfg.Recording.Path))
	}

	handler := gateway.NewHandler(reg, cfg.Upstream, logger, opts...)

	srv := server.New(cfg.Server.Port, logger, authenticator)
	handler.Register(srv.Router)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
