package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/cormons/controlstock/internal/auth"
	"github.com/cormons/controlstock/internal/legacy"
	"github.com/cormons/controlstock/internal/metrics"
)

// Deps are the collaborators of the JSON endpoints.
type Deps struct {
	Sessions *auth.Sessions
	Legacy   *legacy.Service
	Metrics  *metrics.Metrics
	LoginURL string
}

type handler struct {
	Deps
	validate *validator.Validate
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	h := &handler{Deps: d, validate: newValidator()}

	protect := d.Sessions.CSRF(http.HandlerFunc(h.csrfFailed))

	mux := http.NewServeMux()
	mux.Handle("GET /control-stock/pendientes/", protect(http.HandlerFunc(h.Pending)))
	mux.Handle("POST /control-stock/registrar/", protect(http.HandlerFunc(h.Register)))
	mux.HandleFunc("GET /healthz", h.Health)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}
	return mux
}

// Health handles GET /healthz.
func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"breaker": h.Legacy.Client.BreakerStates(),
	})
}
