package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"mysql-collector/internal/domain"
	"mysql-collector/internal/endpoints"
	"mysql-collector/internal/util"
)

const shutdownTimeout = 25 * time.Second

// NewRouter serves the point history.
func NewRouter(pointStore domain.PointStore, logger *util.MetricsLogger) *mux.Router {
	r := mux.NewRouter()

	pointsHandler := &endpoints.Points{}
	pointsHandler.Init(pointStore, logger)

	r.HandleFunc("/points/{limit}/{offset}", pointsHandler.GetPointsHandler).Methods("GET")

	r.Use(loggingMiddleware(logger))

	return r
}

// NewTelemetryRouter exposes the collector's own Prometheus metrics.
func NewTelemetryRouter(metrics http.Handler, logger *util.MetricsLogger) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	}).Methods("GET")
	r.Use(loggingMiddleware(logger))
	return r
}

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Run serves handler on addr until SIGINT or SIGTERM.
func Run(addr string, handler http.Handler, logger *util.MetricsLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return Serve(ctx, NewServer(addr, handler), logger)
}

// Serve runs server until ctx is done and then shuts it down gracefully.
func Serve(ctx context.Context, server *http.Server, logger *util.MetricsLogger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.LogFields(util.LOG_LEVEL_INFO, "listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve %s: %w", server.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.LogFields(util.LOG_LEVEL_INFO, "shutting down server", zap.String("addr", server.Addr))
	if err := gracefulShutdown(server, shutdownTimeout); err != nil {
		logger.LogFields(util.LOG_LEVEL_ERROR, "server stopped with error", zap.Error(err))
		return err
	}
	logger.LogEvent(util.LOG_LEVEL_INFO, "Server stopped gracefully.")
	return nil
}

func gracefulShutdown(server *http.Server, maximumTime time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), maximumTime)
	defer cancel()

	return server.Shutdown(ctx)
}

func loggingMiddleware(logger *util.MetricsLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.Debug() {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.LogEvent(util.LOG_LEVEL_DEBUG, fmt.Sprintf("Request: %s %s (%s)", r.Method, r.RequestURI, time.Since(start)))
		})
	}
}
