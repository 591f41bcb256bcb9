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
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/internal/repositories/binding"
	"github.com/Ramsey-B/fern/pkg/crm"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/gateway"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/kafka"
	fernmiddleware "github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/oauth"
	"github.com/Ramsey-B/fern/pkg/provisioner"
	"github.com/Ramsey-B/fern/pkg/queue"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/relay"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
	"github.com/Ramsey-B/fern/pkg/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	tp, err := initTracing(ctx, cfg)
	if err != nil {
		logger.WithError(err).Error("failed to initialize tracing")
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	v, err := vault.New(cfg.VaultKey)
	if err != nil {
		logger.WithError(err).Error("invalid vault key")
		os.Exit(1)
	}

	var (
		db          database.DB
		redisClient *redis.Client
		producer    *kafka.Producer
		emitter     events.Emitter = events.NoopEmitter{}
		runtime     *gateway.DockerRuntime
		pool        *queue.Pool
		checker     *health.Checker
		e           *echo.Echo
	)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	boot.AddDependency(startup.Func{
		Name: "database",
		StartFn: func(ctx context.Context) error {
			var err error
			db, err = database.Connect(database.ConnectConfig{
				Driver:          cfg.DatabaseDriver,
				Host:            cfg.DatabaseHost,
				Port:            cfg.DatabasePort,
				User:            cfg.DatabaseUserName,
				Password:        cfg.DatabasePassword,
				Name:            cfg.DatabaseName,
				SSLMode:         cfg.DatabaseSSLMode,
				MaxOpenConns:    cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
			}, logger)
			return err
		},
		StopFn: func(ctx context.Context) error {
			return db.Close()
		},
	})

	boot.AddDependency(startup.Func{
		Name:  "migrations",
		Needs: []string{"database"},
		StartFn: func(ctx context.Context) error {
			ms := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			return ms.Migrate(cfg.DatabaseName, db)
		},
	})

	boot.AddDependency(startup.Func{
		Name: "redis",
		StartFn: func(ctx context.Context) error {
			var err error
			redisClient, err = redis.NewClient(redis.Config{
				Host:     cfg.RedisHost,
				Port:     cfg.RedisPort,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, logger)
			return err
		},
		StopFn: func(ctx context.Context) error {
			return redisClient.Close()
		},
	})

	if cfg.KafkaEventsEnabled {
		boot.AddDependency(startup.Func{
			Name: "kafka",
			StartFn: func(ctx context.Context) error {
				producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers: cfg.KafkaBrokers,
					Topic:   cfg.KafkaEventsTopic,
				}, logger)
				emitter = events.NewKafkaEmitter(producer, logger)
				return nil
			},
			StopFn: func(ctx context.Context) error {
				return producer.Close()
			},
		})
	}

	boot.AddDependency(startup.Func{
		Name: "docker",
		StartFn: func(ctx context.Context) error {
			var err error
			runtime, err = gateway.NewDockerRuntime(logger)
			return err
		},
	})

	boot.AddDependency(startup.Func{
		Name:  "worker-pool",
		Needs: []string{"redis"},
		StartFn: func(ctx context.Context) error {
			pool = queue.NewPool(queue.PoolConfig{
				WorkerCount: cfg.RelayWorkerCount,
				QueueSize:   cfg.RelayQueueSize,
			}, logger)
			return pool.Start(ctx)
		},
		StopFn: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			return pool.Stop(stopCtx)
		},
	})

	boot.AddDependency(startup.Func{
		Name:  "http-server",
		Needs: []string{"database", "migrations", "redis", "docker", "worker-pool"},
		StartFn: func(ctx context.Context) error {
			e, checker = buildServer(cfg, logger, v, db, redisClient, emitter, runtime, pool)
			go func() {
				addr := fmt.Sprintf(":%d", cfg.Port)
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.WithError(err).Error("http server stopped unexpectedly")
					os.Exit(1)
				}
			}()
			checker.SetReady(true)
			return nil
		},
		StopFn: func(ctx context.Context) error {
			checker.SetReady(false)
			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	})

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("startup failed")
		os.Exit(1)
	}

	logger.WithFields(map[string]any{
		"app":  cfg.AppName,
		"port": cfg.Port,
	}).Info("fern is running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := boot.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func initTracing(ctx context.Context, cfg *config.Config) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	if cfg.OTLPEnabled {
		var err error
		exporter, err = exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
	} else {
		exporter = &exporters.ConsoleExporter{}
	}
	return tracing.Init(cfg.AppName, exporter)
}

func buildServer(
	cfg *config.Config,
	logger ectologger.Logger,
	v *vault.Vault,
	db database.DB,
	redisClient *redis.Client,
	emitter events.Emitter,
	runtime *gateway.DockerRuntime,
	pool *queue.Pool,
) (*echo.Echo, *health.Checker) {
	bindings := binding.NewRepository(db, logger)

	httpClient := httpclient.NewClient(httpclient.Config{Timeout: cfg.HTTPClientTimeout}, logger)
	gatewayClient := gateway.NewClient(httpClient, logger)
	crmClient := crm.NewClient(httpClient, logger, crm.Config{
		APIBaseURL:       cfg.CrmAPIBaseURL,
		AuthorizeBaseURL: cfg.CrmAuthorizeBaseURL,
		ClientID:         cfg.CrmClientID,
		ClientSecret:     cfg.CrmClientSecret,
		Scopes:           cfg.CrmOAuthScopes,
	})

	prov := provisioner.New(bindings, runtime, gatewayClient, v, emitter,
		provisioner.EphemeralPortAllocator{}, logger, provisioner.Options{
			Image:          cfg.GatewayImage,
			Network:        cfg.DockerNetwork,
			ContainerPort:  cfg.GatewayContainerPort,
			PollInterval:   cfg.GatewayReadyPollInterval,
			ReadyTimeout:   cfg.GatewayReadyTimeout,
			IngressBaseURL: cfg.InternalURL,
		})

	broker := oauth.New(bindings, crmClient, v, redisClient, emitter, logger,
		cfg.PublicURL+"/api/v1/oauth/callback", cfg.OAuthStateTTL)

	pipeline := relay.NewPipeline(crmClient, v, emitter, httpClient, broker, logger)
	dispatcher := relay.NewDispatcher(gatewayClient, v, logger)
	deduper := redis.NewDeduper(redisClient, "webhookevent", cfg.DedupeTTL)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(fernmiddleware.Context())
	e.Use(fernmiddleware.Logger(logger))
	e.HTTPErrorHandler = fernmiddleware.Error(logger)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	checker := health.NewChecker(db.Unsafe(), redisClient.Redis(), runtime.Client(), version())
	checker.RegisterRoutes(e)

	// unauthenticated ingress: gateway webhooks, CRM workflow actions, OAuth callback
	public := e.Group("/api/v1")
	handlers.NewWebhookHandler(bindings, deduper, pool, pipeline, logger).RegisterRoutes(public)
	handlers.NewActionsHandler(bindings, dispatcher).RegisterRoutes(public)
	oauthHandler := handlers.NewOAuthHandler(broker)
	oauthHandler.RegisterCallbackRoute(public)

	// management API
	authed := e.Group("/api/v1")
	if cfg.AuthEnabled {
		authed.Use(fernmiddleware.Authentication(logger, cfg.AuthIssuerURL, cfg.AuthClientID))
	} else {
		authed.Use(fernmiddleware.TestAuth())
	}
	handlers.NewInstanceHandler(prov, bindings, v).RegisterRoutes(authed)
	oauthHandler.RegisterConnectRoute(authed)

	return e, checker
}

func version() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "dev"
}
