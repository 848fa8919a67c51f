// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lender-match-workers/internal/api"
	"lender-match-workers/internal/catalog"
	"lender-match-workers/internal/common/camunda"
	"lender-match-workers/internal/common/config"
	apperrors "lender-match-workers/internal/common/errors"
	"lender-match-workers/internal/common/logger"
	"lender-match-workers/internal/common/observability"
	"lender-match-workers/internal/recommendation"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	bootLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}
	bootLog.Sync()

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	deps := connectInfrastructure(ctx, cfg, zapLog)
	defer deps.Close(zapLog)

	catalogSvc := buildCatalog(cfg, deps, log)
	recommender := recommendation.NewService(catalogSvc, recommendation.Options{
		MaxResults:    cfg.Recommendation.MaxResults,
		SlowThreshold: config.GetDuration(cfg.Recommendation.SlowThreshold),
	}, obs, log)

	// Warm the cache so the first job does not pay for the fetch.
	go func() {
		snap, err := catalogSvc.Products(ctx)
		if err != nil {
			zapLog.Warn("initial catalog load failed", zap.Error(err))
			return
		}
		zapLog.Info("catalog loaded",
			zap.Int("products", len(snap.Products)),
			zap.String("source", snap.Source),
			zap.Bool("stale", snap.Stale),
		)
	}()

	// --- Zeebe client and workers ---
	var zeebe *camunda.Client
	var workers []*camunda.CamundaWorker
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		brokers, err := zeebe.Brokers(ctx)
		if err != nil {
			zapLog.Warn("zeebe topology unavailable", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully", zap.Int("brokers", brokers))

		workers, err = startWorkers(cfg, zeebe, catalogSvc, recommender, deps, obs, zapLog, log)
		if err != nil {
			zapLog.Fatal("failed to start workers", zap.Error(err))
		}
		zapLog.Info("workers registered", zap.Int("count", len(workers)))
	} else {
		zapLog.Info("camunda disabled, no workers started")
	}

	checks := deps.ReadinessChecks()
	if zeebe != nil {
		checks["zeebe"] = zeebe.HealthCheck
	}

	// --- REST API ---
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(api.Config{
			Port:           cfg.API.Port,
			RateLimit:      cfg.API.RateLimit,
			RateBurst:      cfg.API.RateBurst,
			RequestTimeout: config.GetDuration(cfg.API.RequestTimeout),
			MaxBodyBytes:   cfg.API.MaxBodyBytes,
		}, recommender, checks, log)
		go func() {
			if err := apiServer.Start(); err != nil {
				zapLog.Error("REST API failed", zap.Error(err))
			}
		}()
	}

	// --- Health & Metrics Server ---
	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.HealthPort),
		Handler:           healthMux(checks),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.Int("port", cfg.API.HealthPort))
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop(shutdownCtx)
	}
	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			zapLog.Error("Error stopping REST API", zap.Error(err))
		}
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// healthMux serves liveness, readiness and Prometheus metrics for probes
// that should not go through the API rate limiter.
func healthMux(checks map[string]api.ReadinessCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = apperrors.Normalize(err).Details
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		state := "ready"
		if status != http.StatusOK {
			state = "not_ready"
		}
		writeJSON(w, status, map[string]interface{}{
			"status": state,
			"checks": results,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// catalogOptions maps the millisecond config values onto catalog.Options.
func catalogOptions(c config.CatalogConfig) catalog.Options {
	return catalog.Options{
		TTL:          config.GetDuration(c.CacheTTL),
		FetchTimeout: config.GetDuration(c.FetchTimeout),
		MaxRetries:   c.MaxRetries,
		RetryDelay:   config.GetDuration(c.RetryDelay),
		MaxStaleAge:  config.GetDuration(c.MaxStaleAge),
	}
}
