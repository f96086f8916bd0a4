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
	"github.com/vstream/video-platform-back/internal/gateway"
	httpserver "github.com/vstream/video-platform-back/internal/http"
)

func main() {
	logger := log.New(os.Stdout, "[gateway] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proxy, err := gateway.NewProxy(gateway.Config{
		Routes: []gateway.Route{
			{Prefix: "/api/v1/auth", Target: "auth", URL: cfg.AuthServiceURL},
			{Prefix: "/api/v1/search", Target: "search", URL: cfg.SearchServiceURL},
			{Prefix: "/api/v1/analytics", Target: "analytics", URL: cfg.AnalyticsServiceURL},
			{Prefix: "/api/videos", Target: "videos", URL: cfg.VideoServiceURL},
		},
		CallTimeout:      cfg.GatewayCallTimeout,
		FailureThreshold: cfg.BreakerFailureThreshold,
		ResetTimeout:     cfg.BreakerResetTimeout,
	}, logger)
	if err != nil {
		logger.Fatalf("invalid gateway configuration: %v", err)
	}

	handler := httpserver.NewGatewayRouter(httpserver.GatewayRouterDependencies{
		Proxy:          proxy,
		Logger:         logger,
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
		logger.Printf("gateway listening on :%s", cfg.Port)
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
