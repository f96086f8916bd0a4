package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vstream/video-platform-back/internal/config"
	httpserver "github.com/vstream/video-platform-back/internal/http"
	"github.com/vstream/video-platform-back/internal/http/handlers"
	"github.com/vstream/video-platform-back/internal/http/middleware"
	"github.com/vstream/video-platform-back/internal/repository"
)

func main() {
	logger := log.New(os.Stdout, "[video] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	videosRepo, repoCloser := setupRepository(ctx, cfg, logger)
	defer repoCloser()

	var verifier middleware.Verifier
	if cfg.AuthVerifyURL != "" {
		verifier = middleware.NewRemoteVerifier(cfg.AuthVerifyURL, cfg.GatewayCallTimeout)
	} else {
		verifier = middleware.StaticVerifier(cfg.AuthTokens)
	}

	api := handlers.NewVideoAPI(videosRepo)
	handler := httpserver.NewVideoRouter(httpserver.VideoRouterDependencies{
		API:            api,
		Logger:         logger,
		Verifier:       verifier,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("video service listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupRepository(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (repository.VideosRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not set, using in-memory repository")
		return repository.NewMemoryVideosRepository(), func() {}
	}

	repo, err := repository.NewPostgresVideosRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("postgres videos repository unavailable, falling back to memory: %v", err)
		return repository.NewMemoryVideosRepository(), func() {}
	}
	logger.Printf("using postgres videos repository")
	return repo, repo.Close
}
