package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsassist/opsassist/internal/agent"
	"github.com/opsassist/opsassist/internal/auth"
	"github.com/opsassist/opsassist/internal/charts"
	"github.com/opsassist/opsassist/internal/config"
	"github.com/opsassist/opsassist/internal/observability"
	"github.com/opsassist/opsassist/internal/session"
)

type ReadinessCheck func(ctx context.Context) error

// Assistant answers questions; *agent.Agent satisfies it.
type Assistant interface {
	Answer(ctx context.Context, question string, history []session.Turn, opts agent.Options) (agent.Answer, error)
}

type ChartRunner interface {
	Charts() []charts.Chart
	Run(ctx context.Context, key string) (charts.Table, error)
	TotalTickets(ctx context.Context) (int64, error)
}

type SchemaView interface {
	EnrichedSchema(ctx context.Context) string
	Values(ctx context.Context) map[string][]string
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Assistant         Assistant
	Charts            ChartRunner
	Schema            SchemaView
	Sessions          *session.Store
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(observability.TraceMiddleware, observability.MetricsMiddleware)
	if deps.Logger != nil {
		r.Use(observability.LoggingMiddleware(deps.Logger))
	}

	r.Get("/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	r.Get("/v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	r.Method(http.MethodGet, "/v1/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Required {
			if deps.AuthMiddleware == nil {
				if deps.Logger != nil {
					deps.Logger.Error("auth required but auth middleware missing")
				}
				r.Use(func(http.Handler) http.Handler {
					return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
						writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
					})
				})
			} else {
				r.Use(deps.AuthMiddleware)
			}
		}

		r.With(auth.RequireRole(auth.RoleAsker)).Post("/v1/ask", func(w http.ResponseWriter, r *http.Request) {
			handleAsk(cfg, deps, w, r)
		})
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleViewer))
			r.Get("/v1/charts", func(w http.ResponseWriter, r *http.Request) {
				handleListCharts(deps, w, r)
			})
			r.Get("/v1/charts/{key}", func(w http.ResponseWriter, r *http.Request) {
				handleRunChart(deps, w, r)
			})
			r.Get("/v1/stats/total-tickets", func(w http.ResponseWriter, r *http.Request) {
				handleTotalTickets(deps, w, r)
			})
			r.Get("/v1/schema", func(w http.ResponseWriter, r *http.Request) {
				handleSchema(cfg, deps, w, r)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", "route not found", false, nil)
	})
	return r
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CheckModelConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.AI.APIKey == "" {
			return errors.New("ai api key is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
