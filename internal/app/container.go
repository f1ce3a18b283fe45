package app

import (
	"context"
	"errors"
	"time"

	"jobs-etl/internal/config"
	"jobs-etl/internal/database"
	dbpostgres "jobs-etl/internal/database/postgres"
	"jobs-etl/internal/events"
	"jobs-etl/internal/infrastructure/cache"
	"jobs-etl/internal/pipeline"
	"jobs-etl/internal/pkg/jwt"
	"jobs-etl/internal/pkg/logging"
	"jobs-etl/internal/scheduler"
	"jobs-etl/internal/telemetry"
	"jobs-etl/internal/ws"
)

// Container owns every long-lived dependency of the service.
type Container struct {
	Config config.Config
	Logger *logging.Logger

	// DB serves API reads. Pipeline runs open their own handle.
	DB        database.DB
	Cache     *cache.Redis
	Events    *events.Publisher
	Hub       *ws.Hub
	JWT       *jwt.HMACService
	Pipeline  *pipeline.Pipeline
	Scheduler *scheduler.Scheduler
	Latest    *scheduler.CacheReporter

	shutdownTracer func()
}

func NewContainer(cfg config.Config, logger *logging.Logger) (*Container, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}

	db, err := dbpostgres.Connect(ctx, cfg.Database)
	if err != nil {
		shutdownTracer()
		return nil, err
	}

	pub, err := events.NewPublisher(cfg.NATS, logger)
	if err != nil {
		_ = db.Close()
		shutdownTracer()
		return nil, err
	}

	redis := cache.NewRedis(cfg.Redis, logger)
	hub := ws.NewHub(logger)
	latest := scheduler.NewCacheReporter(redis)

	p := pipeline.NewPipeline(pipeline.Options{
		SourcePath: cfg.Pipeline.SourcePath,
		StagingDir: cfg.Pipeline.StagingDir,
		Delimiter:  cfg.Pipeline.Delimiter,
	}, dbpostgres.Connector(cfg.Database), logger)

	sched := scheduler.New(
		p,
		scheduler.NewRunLock(redis, cfg.Redis.LockTTL, logger),
		scheduler.Options{
			Policy:   scheduler.RetryPolicyFromConfig(cfg.Retry),
			Interval: cfg.Retry.Interval,
		},
		logger,
		latest,
		scheduler.NewEventReporter(pub, cfg.NATS.Subject),
		scheduler.NewBroadcastReporter(hub),
	)

	return &Container{
		Config:         cfg,
		Logger:         logger,
		DB:             db,
		Cache:          redis,
		Events:         pub,
		Hub:            hub,
		JWT:            jwt.NewHMACService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpiresIn),
		Pipeline:       p,
		Scheduler:      sched,
		Latest:         latest,
		shutdownTracer: shutdownTracer,
	}, nil
}

func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	c.Events.Close()
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	if c.shutdownTracer != nil {
		c.shutdownTracer()
	}
	return errors.Join(errs...)
}
