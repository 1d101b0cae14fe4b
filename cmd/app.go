package main

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"PlaceFinder-App/internal/config"
	"PlaceFinder-App/internal/domain/repository"
	"PlaceFinder-App/internal/domain/service"
	"PlaceFinder-App/internal/infrastructure/cache"
	"PlaceFinder-App/internal/infrastructure/database"
	"PlaceFinder-App/internal/infrastructure/maps"
	"PlaceFinder-App/internal/infrastructure/messaging"
	"PlaceFinder-App/internal/infrastructure/websocket"
	"PlaceFinder-App/internal/metrics"
	repoImpl "PlaceFinder-App/internal/repository"
	"PlaceFinder-App/internal/usecase"
)

const (
	dbConnectRetries = 10
	// flightTimeoutSlack 取得の最悪所要時間に足す待機の余裕
	flightTimeoutSlack = 2 * time.Second
)

// app プロセス全体で共有する依存関係
type app struct {
	cfg        *config.Config
	logger     logr.Logger
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	db         *database.PostgreSQLClient
	repo       repository.PlacesRepository
	cache      *cache.PlacesCache
	resolver   service.PlaceResolutionService
	producer   *messaging.Producer
	submission usecase.CoordinateSubmissionUseCase
	hub        *websocket.Hub
}

// newApp config → db → repository → cache → fetcher → pipeline → producer/hub の順に組み立てる
func newApp(cfg *config.Config, logger logr.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	db, err := database.NewPostgreSQLClientWithRetry(database.PostgreSQLConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, dbConnectRetries, cfg.RabbitMQ.ReconnectDelay, logger.WithName("database"))
	if err != nil {
		return nil, err
	}
	logger.Info("✅ PostgreSQLに接続しました")

	repo := repoImpl.NewPostgresPlacesRepository(db)
	placesCache := cache.NewPlacesCache(cfg.Cache.Size, cfg.Cache.TTL)

	provider := maps.NewGooglePlacesProvider(maps.GooglePlacesOptions{
		APIKey:       cfg.Places.APIKey,
		BaseURL:      cfg.Places.BaseURL,
		RadiusMeters: cfg.Places.RadiusMeters,
		Category:     cfg.Places.Category,
		Timeout:      cfg.Places.Timeout,
		MaxAttempts:  cfg.Places.MaxAttempts,
		RetryBackoff: cfg.Places.RetryBackoff,
		Logger:       logger.WithName("places"),
	})

	resolver := service.NewPlaceResolutionService(repo, provider, placesCache, service.ResolutionOptions{
		RankLimit:     cfg.Cache.RankLimit,
		FlightTimeout: provider.Budget() + flightTimeoutSlack,
		Logger:        logger.WithName("resolver"),
		Metrics:       m,
	})

	producer := messaging.NewProducer(messaging.AMQPDialer{Timeout: cfg.RabbitMQ.DialTimeout}, cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName, logger.WithName("producer"))

	return &app{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		metrics:    m,
		db:         db,
		repo:       repo,
		cache:      placesCache,
		resolver:   resolver,
		producer:   producer,
		submission: usecase.NewCoordinateSubmissionUseCase(repo, placesCache, producer, logger.WithName("submission"), m),
		hub:        websocket.NewHub(logger.WithName("websocket"), m),
	}, nil
}

// newConsumer notifier が nil なら結果は配信しない（worker コマンド）
func (a *app) newConsumer(notifier messaging.ResultNotifier) *messaging.Consumer {
	return messaging.NewConsumer(messaging.AMQPDialer{Timeout: a.cfg.RabbitMQ.DialTimeout}, a.resolver, notifier, messaging.ConsumerOptions{
		URL:            a.cfg.RabbitMQ.URL,
		Queue:          a.cfg.RabbitMQ.QueueName,
		Prefetch:       a.cfg.RabbitMQ.Prefetch,
		ReconnectDelay: a.cfg.RabbitMQ.ReconnectDelay,
		Logger:         a.logger.WithName("consumer"),
		Metrics:        a.metrics,
	})
}

func (a *app) Close() {
	if err := a.producer.Close(); err != nil {
		a.logger.Error(err, "RabbitMQ接続のクローズに失敗")
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error(err, "PostgreSQL接続のクローズに失敗")
	}
}
