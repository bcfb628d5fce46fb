package http

import (
	"encoding/json"
	"net/http"

	"github.com/moodlink/realtime-service/internal/dispatch"
	"github.com/moodlink/realtime-service/internal/registry"
)

type Handler struct {
	reg  *registry.Registry
	disp *dispatch.Dispatcher
}

func NewHandler(reg *registry.Registry, disp *dispatch.Dispatcher) *Handler {
	return &Handler{reg: reg, disp: disp}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statsResponse struct {
	Registry registry.Stats `json:"registry"`
	Dispatch dispatch.Stats `json:"dispatch"`
}

// GET /stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Registry: h.reg.Stats(),
		Dispatch: h.disp.Stats(),
	})
}
