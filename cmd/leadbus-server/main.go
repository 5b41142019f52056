// Package main provides the leadbus server executable: the lead event
// pipeline behind a gin HTTP API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coregx/leadbus"
	"github.com/coregx/leadbus/adapters/memory"
	"github.com/coregx/leadbus/adapters/relica"
	"github.com/coregx/leadbus/broker"
	"github.com/coregx/leadbus/cmd/leadbus-server/internal/api"
	"github.com/coregx/leadbus/cmd/leadbus-server/internal/config"
	"github.com/coregx/leadbus/cmd/leadbus-server/internal/telemetry"
	"github.com/coregx/leadbus/dlq"
	"github.com/coregx/leadbus/model"
	"github.com/coregx/leadbus/worker"
)

const (
	topicName           = "lead-events"
	queueName           = "new-lead-queue"
	deadLetterQueueName = "lead-events-dlq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zl, err := newZapLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("Server stopped with error", zap.Error(err))
	}
}

func newZapLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func run(cfg *config.Config, zl *zap.Logger) error {
	logger := leadbus.NewZapLogger(zl)
	zl.Info("Starting leadbus server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("retry", cfg.Bus.RetryStrategy().GetRetrySchedule()),
		zap.Bool("rabbitmq_mirror", cfg.Broker.Enabled()),
		zap.Bool("tracing", cfg.Tracing.Enabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled() {
		shutdown, err := telemetry.Init(ctx, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warnf("Failed to shut down tracer provider: %v", err)
			}
		}()
	}

	repos, closeDB, err := openRepositories(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	audit := leadbus.MultiAuditLogger{
		leadbus.NewLoggingAuditLogger(logger),
		leadbus.NewRepositoryAuditLogger(repos.AccessLog, logger),
	}

	var notifications leadbus.NotificationService = &leadbus.NoOpNotificationService{}
	if cfg.Bus.EnableNotifications {
		notifications = leadbus.NewLoggingNotificationService(logger)
	}

	deadLetters, err := leadbus.NewDeadLetterQueue(deadLetterQueueName,
		leadbus.WithQueueDescription("Dead letter queue for failed lead events"),
		leadbus.WithQueueLogger(logger),
	)
	if err != nil {
		return err
	}
	newLeads, err := leadbus.NewQueue(queueName,
		leadbus.WithQueueDescription("Processes newly created leads"),
		leadbus.WithDeadLetterQueue(deadLetters),
		leadbus.WithRetryStrategy(cfg.Bus.RetryStrategy()),
		leadbus.WithHandlerTimeout(cfg.Bus.HandlerTimeout),
		leadbus.WithQueueLogger(logger),
		leadbus.WithQueueNotifications(notifications),
		leadbus.WithQueueAudit(audit),
	)
	if err != nil {
		return err
	}

	processorOpts := []worker.Option{
		worker.WithCategoryStore(repos.Lead),
		worker.WithAudit(audit),
		worker.WithLogger(logger),
	}
	if cfg.Bus.SimulateFaults {
		processorOpts = append(processorOpts, worker.WithFault(worker.SimulatedErrorFault()))
	}
	if cfg.Bus.TaskLatency {
		processorOpts = append(processorOpts, worker.WithTaskLatency(worker.DefaultTaskLatency()))
	}
	processor, err := worker.NewLeadProcessor(processorOpts...)
	if err != nil {
		return err
	}
	processor.Register(newLeads)

	topicOpts := []leadbus.TopicOption{
		leadbus.WithTopicLogger(logger),
		leadbus.WithPublishDelay(cfg.Bus.PublishDelay),
	}
	if cfg.Broker.Enabled() {
		mq, err := broker.NewRabbitMQBroker(cfg.Broker.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("connect to RabbitMQ: %w", err)
		}
		defer func() {
			if err := mq.Close(); err != nil {
				logger.Warnf("Failed to close RabbitMQ broker: %v", err)
			}
		}()
		topicOpts = append(topicOpts, leadbus.WithMirror(mq, cfg.Broker.Exchange))
	}
	topic, err := leadbus.NewTopic(topicName, topicOpts...)
	if err != nil {
		return err
	}
	if _, err := topic.Subscribe(newLeads, leadbus.NewFilter(model.EventTypeLeadNew)); err != nil {
		return err
	}

	leads, err := leadbus.NewLeadService(
		leadbus.WithLeadRepository(repos.Lead),
		leadbus.WithLeadTopic(topic),
		leadbus.WithLeadServiceLogger(logger),
		leadbus.WithLeadServiceAudit(audit),
	)
	if err != nil {
		return err
	}

	inspector, err := dlq.NewInspector(deadLetters, topic, dlq.WithLogger(logger))
	if err != nil {
		return err
	}
	monitor, err := dlq.NewMonitor(inspector,
		dlq.WithSchedule(cfg.DLQ.ReportSchedule),
		dlq.WithMonitorLogger(logger),
	)
	if err != nil {
		return err
	}
	if err := monitor.Start(); err != nil {
		return err
	}

	handler, err := api.NewHandler(api.Dependencies{
		Leads:      leads,
		Topic:      topic,
		Inspector:  inspector,
		AccessLogs: repos.AccessLog,
		Audit:      audit,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	api.RegisterRoutes(router, handler, otel.Tracer("github.com/coregx/leadbus/cmd/leadbus-server"), logger)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Bus.DeliveryBudget(),
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	case err := <-serverErr:
		monitor.Stop(context.Background())
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Server forced to shutdown: %v", err)
	}
	monitor.Stop(shutdownCtx)

	logger.Infof("Server stopped gracefully, %d message(s) left in %s", inspector.Count(), deadLetterQueueName)
	return nil
}

// openRepositories returns the in-memory repositories or connects to the
// configured database.
func openRepositories(ctx context.Context, cfg config.DatabaseConfig, logger leadbus.Logger) (*relica.Repositories, func(), error) {
	if cfg.UsesMemory() {
		logger.Info("Using in-memory repositories")
		return &relica.Repositories{
			Lead:      memory.NewLeadRepository(),
			AccessLog: memory.NewAccessLogRepository(),
		}, func() {}, nil
	}

	db, err := sql.Open(cfg.Driver, cfg.GetDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			logger.Warnf("Failed to close database: %v", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Infof("Database connection established (%s)", cfg.Driver)

	if cfg.TablePrefix() == model.TablePrefix() {
		if err := leadbus.ApplyMigrations(ctx, db, cfg.Driver); err != nil {
			closeDB()
			return nil, nil, err
		}
	} else {
		logger.Warnf("Table prefix %q differs from the bundled migrations, skipping them", cfg.TablePrefix())
	}

	return relica.NewRepositoriesWithPrefix(db, cfg.Driver, cfg.TablePrefix()), closeDB, nil
}
