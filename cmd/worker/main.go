// Background worker for PriorArt-Intelligence: consumes analysis requests
// from Kafka and runs the alert and cleanup schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/multierr"

	"github.com/turtacn/PriorArt-Intelligence/internal/app"
	"github.com/turtacn/PriorArt-Intelligence/internal/application/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/config"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/PriorArt-Intelligence/internal/interfaces/http"
	"github.com/turtacn/PriorArt-Intelligence/internal/interfaces/http/handlers"
)

var Version = "dev"

const (
	defaultWorkerConfigPath = "configs/config.yaml"
	startupTimeout          = 30 * time.Second
	shutdownTimeout         = 30 * time.Second
)

type workerOptions struct {
	consumers     int
	noScheduler   bool
	ensureTopics  bool
	topicReplicas int
}

func main() {
	configPath := flag.String("config", defaultWorkerConfigPath, "path to configuration file")
	opts := workerOptions{}
	flag.IntVar(&opts.consumers, "consumers", 0, "consumer group members in this process (default: analysis.workers)")
	flag.BoolVar(&opts.noScheduler, "no-scheduler", false, "do not run the alert and cleanup schedule")
	flag.BoolVar(&opts.ensureTopics, "ensure-topics", true, "create missing Kafka topics at startup")
	flag.IntVar(&opts.topicReplicas, "topic-replicas", 1, "replication factor for topics created at startup")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.NewLogger(cfg.Monitoring.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("worker")

	if err := run(cfg, opts, logger); err != nil {
		logger.Error("worker exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, opts workerOptions, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runScheduler := cfg.Alerting.Enabled && !opts.noScheduler
	if !cfg.Messaging.Kafka.Enabled() && !runScheduler {
		return fmt.Errorf("nothing to run: configure messaging.kafka.brokers or enable alerting")
	}

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	a, err := app.New(startCtx, cfg, logger, "priorart-worker")
	if err == nil && cfg.Messaging.Kafka.Enabled() && opts.ensureTopics {
		ensureTopics(startCtx, cfg.Messaging.Kafka.Brokers, opts.topicReplicas, logger)
	}
	cancel()
	if err != nil {
		return err
	}

	var consumers []*kafka.Consumer
	if cfg.Messaging.Kafka.Enabled() {
		consumers, err = startConsumers(ctx, cfg, a, opts.consumers, logger)
		if err != nil {
			_ = closeConsumers(consumers)
			_ = a.Close(context.Background())
			return err
		}
	}

	if runScheduler {
		if err := a.Scheduler.Start(ctx); err != nil {
			_ = closeConsumers(consumers)
			_ = a.Close(context.Background())
			return err
		}
	}

	healthSrv := newHealthServer(cfg, a, logger)
	errCh := make(chan error, 1)
	go func() {
		if err := healthSrv.Start(); err != nil {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()

	logger.Info("worker started",
		logging.String("version", Version),
		logging.Int("consumers", len(consumers)),
		logging.Bool("scheduler", runScheduler))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("health server failed, shutting down", logging.Err(runErr))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := closeConsumers(consumers); err != nil {
		logger.Error("failed to close consumers", logging.Err(err))
	}
	if runScheduler {
		if err := a.Scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("alert scheduler did not stop in time", logging.Err(err))
		}
	}
	if err := healthSrv.Stop(shutdownCtx); err != nil {
		logger.Warn("health server shutdown error", logging.Err(err))
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("failed to release resources", logging.Err(err))
	}
	logger.Info("worker stopped")
	return runErr
}

// startConsumers joins the consumer group n times so partitions of
// analysis.requested are processed in parallel. Records whose handler keeps
// failing are dead-lettered when messaging.kafka.dlq_enabled is set.
func startConsumers(ctx context.Context, cfg *config.Config, a *app.App, n int, logger logging.Logger) ([]*kafka.Consumer, error) {
	if n <= 0 {
		n = cfg.Analysis.Workers
	}
	kc := cfg.Messaging.Kafka
	retry := kafka.RetryConfig{
		MaxRetries:   kc.MaxRetries,
		RetryBackoff: kc.RetryBackoff,
	}
	var deadLetter kafka.MessagePublisher
	if kc.DLQEnabled {
		retry.DeadLetterTopic = kafka.TopicDeadLetter
		deadLetter = a.Producer
	}
	handler := analysis.NewRequestHandler(a.Coordinator, logger)

	consumers := make([]*kafka.Consumer, 0, n)
	for i := 0; i < n; i++ {
		c, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:     kc.Brokers,
			GroupID:     kc.ConsumerGroup,
			Topics:      []string{kafka.TopicAnalysisRequested},
			RetryConfig: retry,
		}, deadLetter, logger.With(logging.Int("consumer", i)))
		if err != nil {
			return consumers, err
		}
		c.Subscribe(kafka.TopicAnalysisRequested, handler)
		if err := c.Start(ctx); err != nil {
			return consumers, err
		}
		consumers = append(consumers, c)
	}
	return consumers, nil
}

func closeConsumers(consumers []*kafka.Consumer) error {
	var err error
	for _, c := range consumers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// ensureTopics creates missing topics. A broker that refuses is logged; the
// topics may be provisioned out of band.
func ensureTopics(ctx context.Context, brokers []string, replicas int, logger logging.Logger) {
	tm, err := kafka.NewTopicManager(brokers, logger)
	if err != nil {
		logger.Warn("topic manager unavailable", logging.Err(err))
		return
	}
	defer tm.Close()
	if err := tm.EnsureTopics(ctx, kafka.DefaultTopics(replicas)); err != nil {
		logger.Warn("failed to ensure kafka topics", logging.Err(err))
	}
}

// newHealthServer serves the probes and metrics on the worker port.
func newHealthServer(cfg *config.Config, a *app.App, logger logging.Logger) *httpserver.Server {
	checks := make([]handlers.HealthChecker, 0, len(a.Checks()))
	for _, c := range a.Checks() {
		checks = append(checks, handlers.HealthCheck(c.Name, c.Fn))
	}
	hh := handlers.NewHealthHandler(Version, checks...)

	r := chi.NewRouter()
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)
	if h := a.MetricsHandler(); h != nil {
		r.Handle(cfg.Monitoring.Metrics.Path, h)
	}

	return httpserver.NewServer(config.HTTPConfig{
		Host:            cfg.Server.HTTP.Host,
		Port:            cfg.Monitoring.Metrics.WorkerPort,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}, r, logger)
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}
