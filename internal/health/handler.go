package health

import (
	"net/http"

	"mentorship/common/httputil"

	"github.com/go-chi/chi/v5"
)

// Status reports the last known availability of a named dependency.
type Status interface {
	Available(name string) bool
}

type Handler struct {
	status       Status
	dependencies []string
}

func NewHandler(status Status, dependencies ...string) *Handler {
	return &Handler{status: status, dependencies: dependencies}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.Health)
	router.Get("/ready", h.Ready)
}

type HealthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondWithJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready answers 503 until every dependency passed its last check.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ready", Dependencies: make(map[string]string, len(h.dependencies))}
	code := http.StatusOK

	for _, dep := range h.dependencies {
		if h.status.Available(dep) {
			resp.Dependencies[dep] = "up"
			continue
		}
		resp.Dependencies[dep] = "down"
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	httputil.RespondWithJSON(w, code, resp)
}
