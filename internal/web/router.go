package web

import (
	"net/http"

	"github.com/cormons/controlstock/internal/auth"
	"github.com/cormons/controlstock/internal/legacy"
	webembed "github.com/cormons/controlstock/web"
)

// Server holds all dependencies for page handlers.
type Server struct {
	Sessions  *auth.Sessions
	Legacy    *legacy.Service
	Templates *Templates
	LoginURL  string
	LogoutURL string
	Version   string
}

// NewRouter creates the web page router with all page routes registered.
func NewRouter(s *Server) (http.Handler, error) {
	if s.Templates == nil {
		templates, err := LoadTemplates()
		if err != nil {
			return nil, err
		}
		s.Templates = templates
	}

	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(webembed.StaticFS()))))

	// Only safe methods are routed here, so the failure handler never runs.
	protect := s.Sessions.CSRF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "CSRF token inválido", http.StatusForbidden)
	}))
	mux.Handle("GET /control-stock/{$}", protect(http.HandlerFunc(s.ControlStockPage)))
	mux.HandleFunc("GET /control-stock/logout/", s.Logout)
	mux.Handle("GET /{$}", http.RedirectHandler("/control-stock/", http.StatusFound))

	return mux, nil
}
