package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RishiKendai/palimpsest/internal/api"
	"github.com/RishiKendai/palimpsest/internal/config"
	"github.com/RishiKendai/palimpsest/internal/configs/env"
	"github.com/RishiKendai/palimpsest/internal/corpus"
	"github.com/RishiKendai/palimpsest/internal/infra/mongo"
	redisInfra "github.com/RishiKendai/palimpsest/internal/infra/redis"
	"github.com/RishiKendai/palimpsest/internal/logger"
	"github.com/RishiKendai/palimpsest/internal/metrics"
	"github.com/RishiKendai/palimpsest/internal/repository"
	"github.com/RishiKendai/palimpsest/internal/reuse"
	"github.com/RishiKendai/palimpsest/internal/runs"
	"github.com/RishiKendai/palimpsest/internal/stream"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := env.LoadEnv(); err != nil {
		log.Warn().Err(err).Msg("Failed to load .env file, continuing with system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	logger.Init(cfg.LogLevel)
	log.Info().Msg("Starting palimpsest server")

	metrics.InitPrometheus()
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.MetricsHandler())
	metricsServer := api.StartServer("metrics", metricsMux, cfg.MetricsPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect MongoDB
	mongoClient, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create MongoDB client")
	}
	defer mongoClient.Close(context.Background())

	// Connect Redis
	redisClient, err := redisInfra.NewClient(ctx, cfg.RedisHost, cfg.RedisPassword, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Redis client")
	}
	defer redisClient.Close()

	mongoRepo := repository.NewMongoRepository(mongoClient.Database)
	reportsRepo := repository.NewReportsRepository(mongoRepo)
	metadataRepo := repository.NewMetadataRepository(mongoRepo)
	if err := reportsRepo.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure report indexes")
	}

	// Inputs: corpus from CORPUS_URL, metadata from METADATA_URL or MongoDB
	source := corpus.NewSource(corpus.NewClient(cfg.FetchTimeout), cfg.MetadataURL, cfg.CorpusURL)
	var metadataStore api.MetadataStore
	if cfg.MetadataSource == config.MetadataFromMongo {
		source = source.WithMetadataStore(metadataRepo)
		metadataStore = metadataRepo
		if n, err := metadataRepo.CountMetadata(ctx); err == nil {
			log.Info().Int64("records", n).Msg("Serving metadata from MongoDB")
		}
	}

	var workerPool *reuse.WorkerPool
	if cfg.ParallelMatching {
		workerPool = reuse.NewWorkerPool(ctx, cfg.MatchWorkers)
		defer workerPool.Close()
	}

	engine := reuse.NewEngine(source, workerPool)
	statusStore := reuse.NewStatusStore(redisClient.Client)
	runService := runs.NewService(
		engine,
		reportsRepo,
		statusStore,
		cfg.MaxConcurrentRuns,
		cfg.RunTimeout,
		cfg.DefaultMinWords,
	)

	retryHandler := stream.NewRetryHandler(redisClient.Client, cfg.RedisDeadLetterKey)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	consumerName := fmt.Sprintf("consumer-%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
	consumer := stream.NewConsumer(
		redisClient.Client,
		cfg.RedisStreamKey,
		cfg.RedisConsumerGroup,
		consumerName,
		runService,
		retryHandler,
		cfg.StreamRetentionDuration,
	)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Redis consumer error")
		}
	}()

	router := api.SetupRoutes(ctx, cfg, runService, metadataStore)
	srv := api.StartServer("api", router, cfg.ServerPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down gracefully...")

	if err := api.ShutdownServer(srv, 30*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down API server")
	}

	cancel()
	select {
	case <-consumerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Redis consumer did not stop in time")
	}

	if err := api.ShutdownServer(metricsServer, 5*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down metrics server")
	}

	log.Info().Msg("Shutdown complete")
}
