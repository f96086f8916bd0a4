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
	"github.com/vstream/video-platform-back/internal/queue"
	"github.com/vstream/video-platform-back/internal/repository"
	"github.com/vstream/video-platform-back/internal/search"
	"github.com/vstream/video-platform-back/internal/service"
	"github.com/vstream/video-platform-back/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[search] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobsRepo, videosRepo, repoCloser := setupRepositories(ctx, cfg, logger)
	defer repoCloser()

	notifier, waiter, queueCloser := setupNotifier(ctx, cfg, logger)
	defer queueCloser()

	jobsService := service.NewJobsService(jobsRepo, notifier, logger)
	resultsCache := search.NewResultsCache(search.CacheConfig{})

	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}
	for i := 0; i < workerCount; i++ {
		processor := worker.NewProcessor(jobsService, videosRepo, search.Score, resultsCache, waiter, logger)
		go processor.Start(ctx)
	}
	logger.Printf("started %d search worker(s)", workerCount)

	api := handlers.NewSearchAPI(jobsService)
	handler := httpserver.NewSearchRouter(httpserver.SearchRouterDependencies{
		API:            api,
		Logger:         logger,
		Verifier:       setupVerifier(cfg),
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	runServer(ctx, logger, cfg.Port, handler)
}

func setupRepositories(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (repository.JobsRepository, repository.VideosRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not set, using in-memory repositories")
		return repository.NewMemoryJobsRepository(), repository.NewMemoryVideosRepository(), func() {}
	}

	jobsRepo, err := repository.NewPostgresJobsRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("postgres jobs repository unavailable, falling back to memory: %v", err)
		return repository.NewMemoryJobsRepository(), repository.NewMemoryVideosRepository(), func() {}
	}
	videosRepo, err := repository.NewPostgresVideosRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		jobsRepo.Close()
		logger.Printf("postgres videos repository unavailable, falling back to memory: %v", err)
		return repository.NewMemoryJobsRepository(), repository.NewMemoryVideosRepository(), func() {}
	}

	logger.Printf("using postgres repositories")
	return jobsRepo, videosRepo, func() {
		jobsRepo.Close()
		videosRepo.Close()
	}
}

func setupNotifier(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (queue.Notifier, queue.Waiter, func()) {
	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not set, using local wake channel")
		local := queue.NewLocalNotifier(256, cfg.WorkerPollInterval)
		return local, local, func() {}
	}

	streams, err := queue.NewStreamsNotifier(ctx, queue.StreamsConfig{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		Stream:       cfg.RedisStream,
		Group:        cfg.RedisGroup,
		Consumer:     cfg.RedisConsumer,
		PollInterval: cfg.WorkerPollInterval,
	})
	if err != nil {
		logger.Printf("redis notifier unavailable, falling back to local wake channel: %v", err)
		local := queue.NewLocalNotifier(256, cfg.WorkerPollInterval)
		return local, local, func() {}
	}

	logger.Printf("using redis streams notifier stream=%s group=%s", cfg.RedisStream, cfg.RedisGroup)
	return streams, streams, func() {
		if err := streams.Close(); err != nil {
			logger.Printf("failed closing redis notifier: %v", err)
		}
	}
}

func setupVerifier(cfg config.Config) middleware.Verifier {
	if cfg.AuthVerifyURL != "" {
		return middleware.NewRemoteVerifier(cfg.AuthVerifyURL, cfg.GatewayCallTimeout)
	}
	return middleware.StaticVerifier(cfg.AuthTokens)
}

func runServer(ctx context.Context, logger *log.Logger, port string, handler http.Handler) {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("search service listening on :%s", port)
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
