package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cormons/controlstock/internal/auth"
	"github.com/cormons/controlstock/internal/legacy"
)

// ControlStockPage handles GET /control-stock/.
func (s *Server) ControlStockPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := auth.Token(r)
	if token == "" {
		slog.Info("no auth token, redirecting to login")
		http.Redirect(w, r, s.LoginURL, http.StatusFound)
		return
	}

	cfg, err := s.Sessions.Connection(w, r)
	if errors.Is(err, auth.ErrNoConnection) {
		slog.Info("no connection config, redirecting to login")
		http.Redirect(w, r, s.LoginURL, http.StatusFound)
		return
	}
	if err != nil {
		slog.Error("resolving session", "error", err)
		s.renderError(w, http.StatusInternalServerError, "", "Error interno")
		return
	}

	info, err := s.Legacy.VerifyToken(ctx, cfg.Addr(), token)
	if err != nil {
		slog.Error("verifying token", "error", err, "token", legacy.Truncate(token))
		s.renderError(w, http.StatusBadGateway, cfg.Name, "Sin respuesta del servidor")
		return
	}
	if !info.Estado {
		s.renderError(w, http.StatusUnauthorized, cfg.Name, info.Mensaje)
		return
	}

	list, err := s.Legacy.Pending(ctx, cfg.Addr(), token, info.Usuario)
	if err != nil || !list.Estado {
		if err != nil {
			slog.Error("listing pending counts", "error", err)
		}
		s.renderError(w, http.StatusBadGateway, cfg.Name, "Error al obtener stock pendientes")
		return
	}

	auth.ExposeCSRF(w, r)
	s.Templates.Render(w, http.StatusOK, "controlstock.html", &PageData{
		Title:      "Control de Stock",
		Empresa:    cfg.Name,
		Usuario:    info.Usuario,
		Nombre:     info.Nombre,
		Deposito:   list.Deposito,
		CSRF:       auth.CSRFToken(r),
		LoginURL:   s.LoginURL,
		LogoutURL:  "/control-stock/logout/",
		Version:    s.Version,
		Pendientes: list.Pendientes,
	})
}

func (s *Server) renderError(w http.ResponseWriter, status int, empresa, msg string) {
	s.Templates.Render(w, status, "error.html", &PageData{
		Title:    "Control de Stock",
		Empresa:  empresa,
		Error:    msg,
		LoginURL: s.LoginURL,
		Version:  s.Version,
	})
}

// Logout handles GET /control-stock/logout/.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.End(w, r); err != nil {
		slog.Error("revoking session", "error", err)
	}
	http.Redirect(w, r, s.LogoutURL, http.StatusFound)
}
