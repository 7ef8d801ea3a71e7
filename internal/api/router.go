package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/lianban/internal/api/handlers"
	"github.com/wonny/lianban/pkg/logger"
)

// HealthCheck probes one optional dependency (postgres, redis)
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// healthTimeout bounds all probes of one /health request
const healthTimeout = 2 * time.Second

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(signalHandler *handlers.SignalHandler, backtestHandler *handlers.BacktestHandler, log *logger.Logger, checks ...HealthCheck) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler(checks)).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Signal endpoints
	api.HandleFunc("/signals", signalHandler.GetSignals).Methods("GET")
	api.HandleFunc("/signals/stored", signalHandler.GetStoredSignals).Methods("GET")

	// Backtest endpoints
	api.HandleFunc("/backtest", backtestHandler.RunBacktest).Methods("POST")
	api.HandleFunc("/backtest/runs", backtestHandler.ListRuns).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler reports "degraded" with 503 when any probe fails
func healthCheckHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status, code := "ok", http.StatusOK
		deps := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Probe(ctx); err != nil {
				deps[c.Name] = err.Error()
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			deps[c.Name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       status,
			"service":      "lianban-api",
			"dependencies": deps,
		})
	}
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
