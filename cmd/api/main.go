package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/modelrisk/governor/config"
	"github.com/modelrisk/governor/internal/platform/database"
	"github.com/modelrisk/governor/internal/platform/middleware"
	"github.com/modelrisk/governor/internal/platform/startup"
	"github.com/modelrisk/governor/internal/platform/tracing"
	"github.com/modelrisk/governor/internal/platform/tracing/exporters"
	approvalrulerepo "github.com/modelrisk/governor/internal/repositories/approvalrule"
	auditlogrepo "github.com/modelrisk/governor/internal/repositories/auditlog"
	decommissionrepo "github.com/modelrisk/governor/internal/repositories/decommission"
	modelinventoryrepo "github.com/modelrisk/governor/internal/repositories/modelinventory"
	overriderepo "github.com/modelrisk/governor/internal/repositories/override"
	taxonomyrepo "github.com/modelrisk/governor/internal/repositories/taxonomy"
	validationrepo "github.com/modelrisk/governor/internal/repositories/validation"
	"github.com/modelrisk/governor/pkg/events"
	"github.com/modelrisk/governor/pkg/kafka"
	approvalruleroutes "github.com/modelrisk/governor/pkg/routes/approvalrule"
	auditlogroutes "github.com/modelrisk/governor/pkg/routes/auditlog"
	decommissionroutes "github.com/modelrisk/governor/pkg/routes/decommission"
	"github.com/modelrisk/governor/pkg/routes/health"
	modelinventoryroutes "github.com/modelrisk/governor/pkg/routes/modelinventory"
	validationroutes "github.com/modelrisk/governor/pkg/routes/validation"
	decommissionflow "github.com/modelrisk/governor/pkg/workflows/decommission"
	overrideflow "github.com/modelrisk/governor/pkg/workflows/override"
	validationflow "github.com/modelrisk/governor/pkg/workflows/validation"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger()
	logger.WithField("app", cfg.AppName).Info("Starting governance API")

	ctx := context.Background()

	shutdownTracing, err := initTracing(ctx, cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		os.Exit(1)
	}

	// PostgreSQL
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
		cfg.DatabaseName, cfg.DatabaseSSLMode)
	sqlxDB, err := sqlx.Open(cfg.DatabaseDriver, dsn)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	db := database.NewDatabaseInstance(sqlxDB, logger)

	// Kafka
	var producer *kafka.Producer
	if cfg.KafkaProducerEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
	}
	var publisher events.Publisher
	if producer != nil {
		publisher = producer
	}
	emitter := events.NewEmitter(publisher, logger)

	// Repositories
	modelRepo := modelinventoryrepo.NewRepository(db, logger, cfg.DefaultValidationFrequencyMonths)
	decommissionRepo := decommissionrepo.NewRepository(db, logger)
	overrideRepo := overriderepo.NewRepository(db, logger)
	ruleRepo := approvalrulerepo.NewRepository(db, logger)
	validationRepo := validationrepo.NewRepository(db, logger)
	taxonomyRepo := taxonomyrepo.NewRepository(db, logger)
	auditRepo := auditlogrepo.NewRepository(db, logger)

	// Workflows
	decommissionSvc := decommissionflow.NewService(db, decommissionRepo, modelRepo, taxonomyRepo, auditRepo, emitter, logger)
	overrideSvc := overrideflow.NewService(db, overrideRepo, modelRepo, validationRepo, auditRepo, emitter, logger, cfg.MinOverrideReasonLength)
	validationSvc := validationflow.NewService(db, validationRepo, modelRepo, ruleRepo, overrideSvc, auditRepo, emitter, logger)

	// Dependency injection
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		logger.WithError(err).Error("Failed to create DI container")
		os.Exit(1)
	}
	registrations := []func() error{
		func() error { return ectoinject.RegisterInstance[ectologger.Logger](container, logger) },
		func() error { return ectoinject.RegisterInstance[database.DB](container, db) },
		func() error { return ectoinject.RegisterInstance[*modelinventoryrepo.Repository](container, modelRepo) },
		func() error { return ectoinject.RegisterInstance[*approvalrulerepo.Repository](container, ruleRepo) },
		func() error { return ectoinject.RegisterInstance[*auditlogrepo.Repository](container, auditRepo) },
		func() error { return ectoinject.RegisterInstance[*decommissionflow.Service](container, decommissionSvc) },
		func() error { return ectoinject.RegisterInstance[*overrideflow.Service](container, overrideSvc) },
		func() error { return ectoinject.RegisterInstance[*validationflow.Service](container, validationSvc) },
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			logger.WithError(err).Error("Failed to register dependency")
			os.Exit(1)
		}
	}

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	checker := health.NewChecker(sqlxDB, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	modelinventoryroutes.Register(api.Group("/models"))
	decommissionroutes.Register(api.Group("/decommission-requests"))
	approvalruleroutes.Register(api.Group("/approval-rules"))
	validationroutes.Register(api.Group("/validation-requests"))
	auditlogroutes.Register(api.Group("/audit"))

	// Startup orchestration
	orchestrator := startup.New(logger, cfg.StartupMaxAttempts)
	orchestrator.AddDependency(&databaseDependency{db: sqlxDB, cfg: cfg, logger: logger})
	orchestrator.AddDependency(&serverDependency{e: e, port: cfg.Port, logger: logger})

	if err := orchestrator.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}
	checker.SetReady(true)
	logger.WithField("port", cfg.Port).Info("Governance API is ready")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := orchestrator.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown reported errors")
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.WithError(err).Error("Failed to close kafka producer")
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down tracing")
	}
}

func newLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		line, err := json.Marshal(msg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to marshal log message: %v\n", err)
			return
		}
		fmt.Println(string(line))
	})
}

// initTracing wires the OTLP exporter when enabled, a no-op exporter
// otherwise, and returns the provider shutdown.
func initTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	if cfg.TracingEnabled {
		otlp, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.TracingOTLPEndpoint,
			Protocol: cfg.TracingOTLPProtocol,
			Insecure: cfg.TracingInsecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		exporter = otlp
	} else {
		exporter = &exporters.ConsoleExporter{}
	}

	res, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(semconv.ServiceName(cfg.AppName)),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return provider.Shutdown, nil
}

// databaseDependency pings the database and applies migrations on startup.
type databaseDependency struct {
	db     *sqlx.DB
	cfg    *config.Config
	logger ectologger.Logger
}

func (d *databaseDependency) GetName() string     { return "database" }
func (d *databaseDependency) DependsOn() []string { return nil }

func (d *databaseDependency) Start(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return err
	}

	driver, err := migratepg.WithInstance(d.db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(d.logger, &database.MigrationConfig{
		MigrationFolderPath: d.cfg.DatabaseMigrationFolderPath,
		Version:             uint(d.cfg.DatabaseMigrationVersion),
		Force:               d.cfg.DatabaseMigrationForce,
	})
	return migrations.Migrate(d.cfg.DatabaseName, driver)
}

func (d *databaseDependency) Stop(ctx context.Context) error {
	return d.db.Close()
}

// serverDependency runs the echo listener.
type serverDependency struct {
	e      *echo.Echo
	port   int
	logger ectologger.Logger
}

func (s *serverDependency) GetName() string     { return "http-server" }
func (s *serverDependency) DependsOn() []string { return []string{"database"} }

func (s *serverDependency) Start(ctx context.Context) error {
	go func() {
		if err := s.e.Start(fmt.Sprintf(":%d", s.port)); err != nil {
			s.logger.WithError(err).Info("HTTP server stopped")
		}
	}()
	return nil
}

func (s *serverDependency) Stop(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
