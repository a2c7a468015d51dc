package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cormons/controlstock/internal/auth"
	"github.com/cormons/controlstock/internal/legacy"
	"github.com/cormons/controlstock/internal/model"
)

// Tenant context headers sent by clients. They are advisory and only logged;
// the backend is resolved from the session.
const (
	CompanyHeader   = "X-Empresa-Codigo"
	WarehouseHeader = "X-Deposito"
)

type pendingResponse struct {
	Pendientes []model.PendingRequest `json:"pendientes"`
	Deposito   string                 `json:"deposito"`
	Mensaje    string                 `json:"mensaje"`
	Error      string                 `json:"error,omitempty"`
}

// session resolves the backend and verifies token against it. On failure it
// writes the response and returns ok=false.
func (h *handler) session(w http.ResponseWriter, r *http.Request, token string) (model.ConnectionConfig, *legacy.TokenInfo, bool) {
	if token == "" {
		h.unauthorized(w, "No hay token de autenticación")
		return model.ConnectionConfig{}, nil, false
	}

	cfg, err := h.Sessions.Connection(w, r)
	if errors.Is(err, auth.ErrNoConnection) {
		h.unauthorized(w, "No hay cliente configurado")
		return model.ConnectionConfig{}, nil, false
	}
	if err != nil {
		slog.Error("resolving session", "error", err, "request_id", RequestID(r.Context()))
		jsonError(w, http.StatusInternalServerError, "internal error")
		return model.ConnectionConfig{}, nil, false
	}

	info, err := h.Legacy.VerifyToken(r.Context(), cfg.Addr(), token)
	if err != nil {
		slog.Error("verifying token", "error", err, "token", legacy.Truncate(token), "request_id", RequestID(r.Context()))
		jsonError(w, http.StatusBadGateway, "Sin respuesta del servidor")
		return model.ConnectionConfig{}, nil, false
	}
	if !info.Estado {
		slog.Warn("token rejected", "token", legacy.Truncate(token), "mensaje", info.Mensaje)
		h.unauthorized(w, info.Mensaje)
		return model.ConnectionConfig{}, nil, false
	}
	return cfg, info, true
}

// Pending handles GET /control-stock/pendientes/.
func (h *handler) Pending(w http.ResponseWriter, r *http.Request) {
	auth.ExposeCSRF(w, r)
	token := auth.Token(r)
	cfg, info, ok := h.session(w, r, token)
	if !ok {
		return
	}

	if c, d := r.Header.Get(CompanyHeader), r.Header.Get(WarehouseHeader); c != "" || d != "" {
		slog.Info("tenant context", "empresa", c, "deposito", d, "session_empresa", cfg.Code)
	}

	list, err := h.Legacy.Pending(r.Context(), cfg.Addr(), token, info.Usuario)
	if err != nil {
		slog.Error("listing pending counts", "error", err, "request_id", RequestID(r.Context()))
		jsonError(w, http.StatusBadGateway, "Error al obtener stock pendientes")
		return
	}

	resp := pendingResponse{
		Pendientes: list.Pendientes,
		Deposito:   list.Deposito,
		Mensaje:    list.Mensaje,
	}
	if !list.Estado {
		resp.Error = list.Mensaje
		if resp.Error == "" {
			resp.Error = "Error al obtener stock pendientes"
		}
	}
	jsonResponse(w, http.StatusOK, resp)
}
