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

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/Ramsey-B/trellis/config"
	"github.com/Ramsey-B/trellis/db"
	"github.com/Ramsey-B/trellis/internal/app"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/events"
	"github.com/Ramsey-B/trellis/pkg/graph"
	"github.com/Ramsey-B/trellis/pkg/kafka"
	"github.com/Ramsey-B/trellis/pkg/middleware"
	"github.com/Ramsey-B/trellis/pkg/redis"
	"github.com/Ramsey-B/trellis/pkg/retention"
	"github.com/Ramsey-B/trellis/pkg/routes/health"
	"github.com/Ramsey-B/trellis/pkg/startup"
	"github.com/Ramsey-B/trellis/pkg/tracing"
	"github.com/Ramsey-B/trellis/pkg/tracing/exporters"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

const (
	version               = "1.0.0"
	followRequestLimitKey = "trellis:follow-requests:"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("trellis exited with an error")
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = level

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func run(cfg *config.Config, logger ectologger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	checker := health.NewChecker(version)

	var (
		conn        database.DB
		redisClient *redis.Client
		producer    *kafka.Producer
		graphClient *graph.Client
		verifier    middleware.TokenVerifier
	)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(startup.Dependency{
		Name: "database",
		OnStart: func(ctx context.Context) error {
			if conn != nil {
				return nil
			}
			opened, err := database.Open(ctx, database.Config{
				Driver:          cfg.DatabaseDriver,
				Host:            cfg.DatabaseHost,
				Port:            cfg.DatabasePort,
				UserName:        cfg.DatabaseUserName,
				Password:        cfg.DatabasePassword,
				Name:            cfg.DatabaseName,
				SSLMode:         cfg.DatabaseSSLMode,
				Path:            cfg.DatabasePath,
				MaxOpenConns:    cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
			}, logger)
			if err != nil {
				return err
			}
			conn = opened
			checker.AddCheck("database", conn.PingContext)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if conn == nil {
				return nil
			}
			return conn.Close()
		},
	})
	boot.AddDependency(startup.Dependency{
		Name:     "migrations",
		Requires: []string{"database"},
		OnStart: func(ctx context.Context) error {
			return database.NewMigrationService(logger, &database.MigrationConfig{
				Source:       db.Migrations,
				Directory:    db.MigrationsDirectory,
				Version:      cfg.DatabaseMigrationVersion,
				Force:        cfg.DatabaseMigrationForce,
				AutoRollback: cfg.DatabaseMigrationAutoRollback,
			}).Migrate(conn)
		},
	})

	if cfg.RedisEnabled {
		boot.AddDependency(startup.Dependency{
			Name: "redis",
			OnStart: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, redis.Config{
					Addr:     cfg.RedisAddr,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, logger)
				if err != nil {
					return err
				}
				redisClient = client
				checker.AddCheck("redis", redisClient.Ping)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return redisClient.Close()
			},
		})
	}

	if cfg.KafkaEnabled {
		boot.AddDependency(startup.Dependency{
			Name: "kafka",
			OnStart: func(ctx context.Context) error {
				p, err := kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, logger)
				if err != nil {
					return err
				}
				producer = p
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return producer.Close()
			},
		})
	}

	if cfg.GraphEnabled {
		boot.AddDependency(startup.Dependency{
			Name: "graph",
			OnStart: func(ctx context.Context) error {
				client, err := graph.NewClient(graph.Config{
					Host:     cfg.GraphDBHost,
					Port:     cfg.GraphDBPort,
					Username: cfg.GraphDBUser,
					Password: cfg.GraphDBPassword,
				}, logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return err
				}
				graphClient = client
				checker.AddCheck("graph", graphClient.VerifyConnectivity)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return graphClient.Close(ctx)
			},
		})
	}

	if cfg.AuthEnabled {
		boot.AddDependency(startup.Dependency{
			Name: "auth",
			OnStart: func(ctx context.Context) error {
				v, err := middleware.NewOIDCVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthClientID)
				if err != nil {
					return err
				}
				verifier = v
				return nil
			},
		})
	}

	if err := boot.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = boot.Stop(stopCtx)
	}()

	var opts app.Options
	if redisClient != nil {
		limiter := redis.NewRateLimiter(redisClient, followRequestLimitKey)
		opts.Limiter = redis.NewActorLimiter(limiter, int64(cfg.FollowRequestRateLimit), cfg.FollowRequestRateWindow)
	}
	if producer != nil {
		opts.Emitter = events.NewEmitter(producer, logger)
	}
	if graphClient != nil {
		opts.Graph = graph.NewFollowGraph(graphClient, logger)
	}

	services := app.NewServices(conn, opts, logger)

	var sweeper *retention.Sweeper
	if cfg.RetentionEnabled {
		sweeper, err = retention.NewSweeper(services.Notifications, retention.Config{
			Cron:   cfg.RetentionCron,
			Period: cfg.RetentionPeriod,
		}, logger)
		if err != nil {
			return err
		}
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
	}

	e := app.NewEcho(cfg.AppName, logger)
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group(app.APIPrefix)
	if verifier != nil {
		api.Use(middleware.Authentication(logger, verifier))
	}
	services.RegisterRoutes(api)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Info("Starting trellis api")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	checker.SetReady(true)

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("failed to shut down http server")
	}
	if sweeper != nil {
		if err := sweeper.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Warn("failed to stop retention sweeper")
		}
	}

	return nil
}

func setupTracing(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter = &exporters.ConsoleExporter{Logger: logger}
	if cfg.OTLPEnabled {
		otlp, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  cfg.OTLPTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}
		exporter = otlp
	}
	return tracing.Setup(cfg.AppName, exporter), nil
}
