package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"user-crud-service/cmd/api/infrastructure"
	"user-crud-service/internal/adapter/db/dynamo"
	"user-crud-service/internal/adapter/db/postgres"
	ginhandler "user-crud-service/internal/adapter/gin/handler"
	"user-crud-service/internal/adapter/gin/middleware"
	ginrouter "user-crud-service/internal/adapter/gin/router"
	"user-crud-service/internal/adapter/repository/cached"
	"user-crud-service/internal/adapter/repository/instrumented"
	"user-crud-service/internal/config"
	"user-crud-service/internal/usecase/user"
	"user-crud-service/pkg/metrics"
	redisclient "user-crud-service/pkg/redis"
	"user-crud-service/pkg/tracing"
)

// storePinger is implemented by every store backend.
type storePinger interface {
	user.Repository
	ginrouter.Pinger
}

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *gorm.DB
	RedisClient *redisclient.Client
	Metrics     *metrics.Prom
	UserUC      *user.Usecase
	RateLimiter *middleware.RateLimiter
	GinHandler  *ginhandler.UserHandler
	Router      *gin.Engine

	shutdownTracing func(context.Context) error
}

// NewContainer creates and initializes all application dependencies. On
// failure every resource opened so far is released.
func NewContainer(ctx context.Context, cfg *config.Config, l *zap.Logger) (_ *Container, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	c := &Container{Config: cfg, Logger: l}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	store, err := c.newStore(ctx)
	if err != nil {
		return nil, err
	}
	ready := map[string]ginrouter.Pinger{"database": store}

	var repo user.Repository = store
	opts := ginrouter.Options{
		ServiceName:  cfg.Logger.ServiceName,
		MaxBodyBytes: cfg.App.MaxBodyBytes,
		Ready:        ready,
	}

	if cfg.Observability.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		c.Metrics = metrics.New(reg)
		repo = instrumented.NewUserRepository(repo, c.Metrics)
		opts.Metrics = c.Metrics
		opts.Gatherer = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	if cfg.Observability.TracingEnabled {
		c.shutdownTracing, err = tracing.Init(ctx, tracing.Config{
			ServiceName:    cfg.Logger.ServiceName,
			ServiceVersion: cfg.Logger.ServiceVersion,
			Environment:    cfg.App.Env,
			Endpoint:       cfg.Observability.OTLPEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		opts.Tracing = true
	}

	if cfg.Redis.Enabled {
		c.RedisClient, err = infrastructure.NewRedisClient(ctx, cfg, l)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		ready["redis"] = c.RedisClient

		if userCache := infrastructure.NewUserCache(c.RedisClient, cfg, l); userCache != nil {
			repo = cached.NewCachedUserRepository(repo, userCache, l)
		}

		c.RateLimiter = middleware.NewRateLimiter(
			c.RedisClient.Client,
			middleware.RateLimiterConfig{
				Enabled:           cfg.RateLimit.Enabled,
				RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
				BurstCapacity:     cfg.RateLimit.BurstCapacity,
			},
			l,
		)
		opts.RateLimiter = c.RateLimiter
	}

	c.UserUC = user.New(repo, l)
	c.GinHandler = ginhandler.NewUserHandler(c.UserUC, l)
	c.Router = ginrouter.SetupRouter(c.GinHandler, l, opts)

	return c, nil
}

func (c *Container) newStore(ctx context.Context) (storePinger, error) {
	switch c.Config.App.StorageDriver {
	case config.DriverDynamoDB:
		client, err := infrastructure.NewDynamoDB(ctx, c.Config, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize DynamoDB: %w", err)
		}
		return dynamo.NewUserRepo(client, c.Config.DynamoDB.Table, c.Logger), nil
	default:
		db, err := infrastructure.NewDatabase(c.Config, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		c.DB = db
		return postgres.NewUserRepoPG(db, c.Logger), nil
	}
}

// Close releases every resource held by the container.
func (c *Container) Close() error {
	var errs []error

	if c.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if c.DB != nil {
		if err := infrastructure.CloseDatabase(c.DB); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	return errors.Join(errs...)
}
