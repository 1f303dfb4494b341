package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"mysql-collector/internal/collector"
	"mysql-collector/internal/config"
	"mysql-collector/internal/domain"
	"mysql-collector/internal/graphite"
	"mysql-collector/internal/health"
	"mysql-collector/internal/lock"
	"mysql-collector/internal/repository"
	"mysql-collector/internal/router"
	"mysql-collector/internal/state"
	"mysql-collector/internal/status"
	"mysql-collector/internal/telemetry"
	"mysql-collector/internal/util"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return health.ExitConfig
	}

	var logger util.MetricsLogger
	if err := logger.Init(cfg.LogFile, false, cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		return health.ExitConfig
	}
	defer logger.DeInit()

	if cfg.ThresholdsInverted() {
		logger.LogFields(util.LOG_LEVEL_WARN, "warning threshold is not below critical threshold",
			zap.Int("warning", cfg.Warning), zap.Int("critical", cfg.Critical))
	}

	source, err := status.Open(status.Options{
		User:     cfg.User,
		Password: cfg.Password,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Socket:   cfg.Socket,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		logger.LogFields(util.LOG_LEVEL_ERROR, "cannot open MySQL connection", zap.Error(err))
		return health.ExitUnknown
	}
	defer source.Close()

	sink, err := graphite.NewSender(graphite.Options{
		Host:         cfg.GraphiteServer,
		Port:         cfg.GraphitePort,
		Namespace:    cfg.Namespace,
		PathOverride: cfg.PathOverride,
		Timeout:      cfg.Timeout,
		Debug:        cfg.Debug,
	})
	if err != nil {
		logger.LogFields(util.LOG_LEVEL_ERROR, "cannot build metrics sink", zap.Error(err))
		return health.ExitConfig
	}

	if !cfg.Graphite {
		return check(cfg, source, sink, &logger)
	}
	return poll(cfg, source, sink, &logger)
}

// check is the one-shot mode: print the connection counts and exit with
// the severity of the connection count.
func check(cfg *config.Config, source *status.MySQL, sink domain.MetricSink, logger *util.MetricsLogger) int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Timeout)
	defer cancel()

	c := collector.New(collector.Options{
		Source: source,
		Sink:   sink,
		Debug:  cfg.Debug,
		Logger: logger,
	})
	result, err := c.Check(ctx, cfg.Warning, cfg.Critical)
	if err != nil {
		logger.LogFields(util.LOG_LEVEL_ERROR, "connection check failed", zap.Error(err))
		fmt.Printf("UNKNOWN: %v\n", err)
		return health.ExitUnknown
	}

	fmt.Println(result.String())
	return result.Severity.ExitCode()
}

// poll is the continuous mode. It holds the pid lock for its lifetime and
// stops cleanly on SIGINT or SIGTERM.
func poll(cfg *config.Config, source *status.MySQL, sink domain.MetricSink, logger *util.MetricsLogger) int {
	if !cfg.IgnoreLock && !cfg.Debug {
		pidFile := lock.New(cfg.PIDFile)
		if err := pidFile.Acquire(); err != nil {
			logger.LogFields(util.LOG_LEVEL_ERROR, "cannot acquire lock", zap.Error(err))
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer func() {
			if err := pidFile.Release(); err != nil {
				logger.LogFields(util.LOG_LEVEL_WARN, "cannot release lock", zap.Error(err))
			}
		}()
	}

	owner := state.Owner{UID: -1, GID: -1}
	if cfg.StateOwner != "" {
		o, err := state.LookupOwner(cfg.StateOwner)
		if err != nil {
			logger.LogFields(util.LOG_LEVEL_WARN, "state owner not found, keeping current owner",
				zap.String("owner", cfg.StateOwner), zap.Error(err))
		} else {
			owner = o
		}
	}
	mapping := cfg.Mapping()
	store := state.NewFileStore(cfg.StateFile, owner, mapping.Outputs(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := collector.Options{
		Source:           source,
		Sink:             sink,
		State:            store,
		Mapping:          mapping,
		Interval:         cfg.Interval,
		Debug:            cfg.Debug,
		HistoryRetention: cfg.HistoryRetention,
		Pool:             source.DB(),
		Logger:           logger,
	}

	if cfg.HistoryDB != "" {
		if err := util.CheckAndCreateLogFolder(filepath.Dir(cfg.HistoryDB)); err != nil {
			logger.LogFields(util.LOG_LEVEL_ERROR, "cannot create history folder", zap.Error(err))
			return health.ExitConfig
		}
		history := repository.NewSQLiteStore(cfg.HistoryDB)
		if err := history.Init(); err != nil {
			logger.LogFields(util.LOG_LEVEL_ERROR, "cannot open point history", zap.Error(err))
			return health.ExitConfig
		}
		defer history.Close()
		opts.History = history
	}

	serverDone := make(chan struct{})
	if cfg.TelemetryListen != "" {
		metrics := telemetry.New()
		opts.Telemetry = metrics

		server := router.NewServer(cfg.TelemetryListen, router.NewTelemetryRouter(metrics.Handler(), logger))
		go func() {
			defer close(serverDone)
			if err := router.Serve(ctx, server, logger); err != nil {
				logger.LogFields(util.LOG_LEVEL_ERROR, "telemetry server failed", zap.Error(err))
			}
		}()
	} else {
		close(serverDone)
	}

	err := collector.New(opts).Run(ctx)
	stop()
	<-serverDone

	if err != nil {
		logger.LogFields(util.LOG_LEVEL_ERROR, "collector stopped", zap.Error(err))
		var corrupt *domain.CorruptStateError
		if errors.As(err, &corrupt) {
			return health.ExitConfig
		}
		return 1
	}
	return 0
}
