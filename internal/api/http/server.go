package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/partwise/partwise/internal/manifest"
)

// Deps are the services behind the HTTP API.
type Deps struct {
	Planner  Planner
	Router   Router
	Catalog  manifest.Catalog
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewHandler returns the API handler with the default middleware applied.
func NewHandler(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/plan", NewPlanHandler(d.Planner))
	mux.Handle("/v1/route", NewRouteHandler(d.Router))
	NewTablesHandler(d.Catalog).Register(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	return DefaultMiddleware(logger)(mux)
}
