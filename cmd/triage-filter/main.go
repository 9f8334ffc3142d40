package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/cache"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/di"
	"github.com/mikey/mail-triage/internal/ports"
	"github.com/mikey/mail-triage/internal/senders"
	"github.com/mikey/mail-triage/internal/triage"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Build the dependency injection container
	container, err := di.BuildContainer(*configPath)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	cfg *config.Config,
	emailFilter ports.EmailFilter,
	service *triage.Service,
	store senders.Store,
	verdictCache cache.VerdictStore,
) error {
	defer logger.Sync()

	profiles, err := cfg.GetProfiles()
	if err != nil {
		return err
	}
	serverCfg := cfg.GetServer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsServer := startMetrics(logger, serverCfg.MetricsAddress, service)

	// Commit sender history on a ticker until shutdown
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		service.Run(ctx, profiles.FlushInterval)
	}()

	// Start the filter
	if err := emailFilter.Start(); err != nil {
		logger.Error("Failed to start filter", zap.Error(err))
		stop()
		<-flushed
		return err
	}

	<-ctx.Done()
	logger.Info("Shutting down...")

	// Stop the filter
	if err := emailFilter.Stop(); err != nil {
		logger.Error("Failed to stop filter", zap.Error(err))
	}
	<-flushed

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
		cancel()
	}

	if verdictCache != nil {
		if err := verdictCache.Close(); err != nil {
			logger.Error("Failed to close verdict cache", zap.Error(err))
		}
	}
	if closer, ok := store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close sender history store", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}

func startMetrics(logger *zap.Logger, addr string, service *triage.Service) *http.Server {
	if addr == "" {
		return nil
	}
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "{\"status\":\"ok\",\"pending_observations\":%d}\n", service.PendingCount())
	}).Methods("GET")

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Metrics server starting", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()
	return srv
}
