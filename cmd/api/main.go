package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"mysql-collector/internal/config"
	"mysql-collector/internal/domain"
	"mysql-collector/internal/repository"
	"mysql-collector/internal/router"
	"mysql-collector/internal/util"
)

func LoggerInitialize(cfg *config.APIConfig) (*util.MetricsLogger, error) {

	var logger util.MetricsLogger

	if err := logger.Init(cfg.LogFile, false, cfg.LogLevel); err != nil {
		fmt.Println("Failed to initialize logger:", err)
		return nil, err
	}

	logger.LogFields(util.LOG_LEVEL_INFO, "history API started", zap.String("db", cfg.HistoryDB))

	currentTime := time.Now().Format(time.RFC3339)

	fmt.Fprintf(os.Stderr, "\n%s: mysql-collector history API started \n", currentTime)

	return &logger, nil
}

func main() {
	cfg, err := config.LoadAPI(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(4)
	}

	logger, err := LoggerInitialize(cfg)
	if err != nil {
		fmt.Println("Error while initializing the logger..", err)
		os.Exit(4)
	}
	defer logger.DeInit()

	var pointStore domain.PointStore = repository.NewSQLiteStore(cfg.HistoryDB)
	if err := pointStore.Init(); err != nil {
		logger.LogFields(util.LOG_LEVEL_ERROR, "failed to initialize point store", zap.Error(err))
		logger.DeInit()
		os.Exit(1)
	}
	defer pointStore.Close()

	if err := router.Run(cfg.Listen, router.NewRouter(pointStore, logger), logger); err != nil {
		logger.LogFields(util.LOG_LEVEL_ERROR, "history API stopped", zap.Error(err))
	}
}
