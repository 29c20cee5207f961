// API server entry point for PriorArt-Intelligence.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/PriorArt-Intelligence/internal/app"
	"github.com/turtacn/PriorArt-Intelligence/internal/config"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	grpcserver "github.com/turtacn/PriorArt-Intelligence/internal/interfaces/grpc"
	httpserver "github.com/turtacn/PriorArt-Intelligence/internal/interfaces/http"
	"github.com/turtacn/PriorArt-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/PriorArt-Intelligence/internal/interfaces/http/middleware"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	startupTimeout    = 30 * time.Second
	readinessInterval = 10 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	grpcPort := flag.Int("grpc-port", -1, "gRPC health port, 0 disables it (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *httpPort > 0 {
		cfg.Server.HTTP.Port = *httpPort
	}
	if *grpcPort >= 0 {
		cfg.Server.GRPC.Port = *grpcPort
	}

	logger, err := logging.NewLogger(cfg.Monitoring.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, *configPath, logger); err != nil {
		logger.Error("api server exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting PriorArt-Intelligence API server",
		logging.String("version", Version),
		logging.String("commit", GitCommit),
		logging.String("http_addr", cfg.Server.HTTP.Addr()),
		logging.Int("grpc_port", cfg.Server.GRPC.Port))

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	a, err := app.New(startCtx, cfg, logger, "priorart-apiserver")
	cancel()
	if err != nil {
		return err
	}
	if err := a.UseConfiguredDispatcher(); err != nil {
		_ = a.Close(context.Background())
		return err
	}
	watchLogLevel(configPath, logger)

	checks := healthCheckers(a.Checks())

	// The in-process scheduler runs only with the local dispatcher; Kafka
	// deployments schedule alert passes in the worker.
	var evaluator handlers.Evaluator
	runScheduler := cfg.Alerting.Enabled && cfg.Analysis.Dispatcher != "kafka"
	if runScheduler {
		if err := a.Scheduler.Start(ctx); err != nil {
			_ = a.Close(context.Background())
			return err
		}
		evaluator = a.Scheduler
	}

	var limiter middleware.RateLimiter
	if cfg.Server.HTTP.RateLimitRPS > 0 {
		limiter = middleware.NewTokenBucketLimiter(cfg.Server.HTTP.RateLimitRPS, cfg.Server.HTTP.RateLimitBurst, time.Minute)
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		AnalysisHandler: handlers.NewAnalysisHandler(a.Coordinator, logger),
		AlertHandler:    handlers.NewAlertHandler(a.Alerts, evaluator, logger),
		HealthHandler:   handlers.NewHealthHandler(Version, checks...),
		RateLimiter:     limiter,
		Logger:          logger,
		Metrics:         a.Metrics,
		MetricsHandler:  a.MetricsHandler(),
	})
	httpSrv := httpserver.NewServer(cfg.Server.HTTP, router, logger)

	var grpcSrv *grpcserver.Server
	if cfg.Server.GRPC.Port > 0 {
		grpcSrv, err = grpcserver.NewServer(fmt.Sprintf(":%d", cfg.Server.GRPC.Port),
			grpcserver.WithLogger(logger),
			grpcserver.WithChecks(grpcChecks(a.Checks())...))
		if err != nil {
			_ = a.Close(context.Background())
			return err
		}
	}

	errCh := make(chan error, 2)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	if grpcSrv != nil {
		go func() {
			if err := grpcSrv.Start(); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		go grpcSrv.MonitorReadiness(ctx, readinessInterval)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("server failed, shutting down", logging.Err(runErr))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer cancelShutdown()

	if grpcSrv != nil {
		grpcSrv.Stop(shutdownCtx)
	}
	if err := httpSrv.Stop(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", logging.Err(err))
	}
	if runScheduler {
		if err := a.Scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("alert scheduler did not stop in time", logging.Err(err))
		}
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("failed to release resources", logging.Err(err))
	}
	logger.Info("api server stopped")
	return runErr
}

// loadConfig reads path when it exists and falls back to environment
// variables over defaults otherwise.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

// watchLogLevel applies log level changes from the config file without a
// restart. Other settings require one.
func watchLogLevel(path string, logger logging.Logger) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	err := config.Watch(path, func(c *config.Config) {
		if !logging.SetLevel(logger, c.Monitoring.Log.Level) {
			return
		}
		logger.Info("log level changed", logging.String("level", c.Monitoring.Log.Level))
	}, func(err error) {
		logger.Warn("config reload rejected", logging.Err(err))
	})
	if err != nil {
		logger.Warn("config watch disabled", logging.Err(err))
	}
}
