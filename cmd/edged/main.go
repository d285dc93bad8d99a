package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"genpipe/internal/infra"
	"genpipe/internal/proxy"
	"genpipe/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	opts := proxy.Options{Config: cfg, Logger: logger}
	if cfg.S3Bucket != "" {
		presigner, err := storage.NewS3Presigner(ctx, cfg.S3Region, cfg.S3Bucket, cfg.StoragePublicBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize presigner")
		}
		opts.Presigner = presigner
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("presigning against object storage")
	} else {
		files, err := storage.NewFileStore(cfg.LocalStorageDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize local object store")
		}
		opts.Files = files
		logger.Warn().Str("dir", cfg.LocalStorageDir).Msg("no bucket configured; serving objects from local store")
	}

	p := proxy.New(opts)
	server := infra.NewHTTPServer(cfg, p.Router())

	go func() {
		logger.Info().Msgf("edge proxy listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
