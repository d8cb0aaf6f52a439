// Package httptransport assembles the public HTTP surface: middleware chain,
// versioned capsule routes, health and metrics endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"timevault/internal/capsule/handler"
	"timevault/internal/platform/metrics"
	"timevault/pkg/platform/httputil"
	"timevault/pkg/platform/middleware/auth"
	"timevault/pkg/platform/middleware/metadata"
	"timevault/pkg/platform/middleware/request"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps is everything the router needs. Metrics, Gatherer and Checks are optional.
type Deps struct {
	Logger    *slog.Logger
	Capsules  *handler.Handler
	Validator auth.IdentityValidator
	Metrics   *metrics.HTTP
	Gatherer  prometheus.Gatherer
	Checks    map[string]HealthCheck
}

const healthTimeout = 2 * time.Second

// NewRouter wires the middleware chain and mounts the routes.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(request.Time)
	r.Use(metadata.ClientMetadata)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(request.Logger(d.Logger))

	r.Get("/healthz", healthz(d.Checks))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		r.Use(auth.RequireAuth(d.Validator, d.Logger))
		d.Capsules.Register(r)
	})
	return r
}

func healthz(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		report := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status": http.StatusText(status),
			"checks": report,
		})
	}
}
