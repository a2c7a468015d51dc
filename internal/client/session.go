package client

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cormons/controlstock/internal/model"
)

// Session messages and defaults.
const (
	MsgSessionExpired = "Su sesión ha expirado"
	LoginActionLabel  = "Ir al inicio de sesión"
	DefaultLoginURL   = "http://login.cormonsapp.com/login/"
)

var expiryMarkers = []string{"sesion expirada", "sesión expirada"}

// SessionStatus is the result of inspecting a response.
type SessionStatus struct {
	Expired     bool
	RedirectURL string
	Message     string
}

// Navigator leaves the current surface for url.
type Navigator interface {
	Navigate(url string)
}

// SessionGuard detects expired sessions and forces the operator to the login
// portal.
type SessionGuard struct {
	Storage         Storage
	Presenter       Presenter
	Navigator       Navigator
	DefaultLoginURL string
}

type expiredBody struct {
	Redirect string          `json:"redirect"`
	Error    string          `json:"error"`
	Mensaje  string          `json:"mensaje"`
	Estado   json.RawMessage `json:"estado"`
}

// Inspect reports whether a response means the session has expired: any 401,
// or a 2xx body whose estado flag is false and whose message carries the
// expiry marker.
func (g *SessionGuard) Inspect(status int, body []byte) SessionStatus {
	var b expiredBody
	_ = json.Unmarshal(body, &b)

	switch {
	case status == http.StatusUnauthorized:
	case status >= 200 && status < 300 && len(b.Estado) > 0 && !model.ParseFlag(b.Estado) && hasExpiryMarker(b.Mensaje, b.Error):
	default:
		return SessionStatus{}
	}

	s := SessionStatus{Expired: true, RedirectURL: b.Redirect, Message: b.Error}
	if s.Message == "" {
		s.Message = b.Mensaje
	}
	if s.Message == "" {
		s.Message = MsgSessionExpired
	}
	if s.RedirectURL == "" {
		s.RedirectURL = g.loginURL()
	}
	return s
}

func hasExpiryMarker(texts ...string) bool {
	for _, t := range texts {
		lower := strings.ToLower(t)
		for _, m := range expiryMarkers {
			if strings.Contains(lower, m) {
				return true
			}
		}
	}
	return false
}

func (g *SessionGuard) loginURL() string {
	if g.DefaultLoginURL != "" {
		return g.DefaultLoginURL
	}
	return DefaultLoginURL
}

// Handle clears the session flags and presents the blocking redirect. It
// never navigates without the operator acting on the prompt, and returns
// ErrSurfaceUnavailable when there is no Presenter.
func (g *SessionGuard) Handle(s SessionStatus) error {
	if g.Storage != nil {
		if err := g.Storage.Set(KeySessionActive, "false"); err != nil {
			slog.Warn("clearing session flag", "error", err)
		}
		if err := g.Storage.Set(KeyRequireCredentials, "true"); err != nil {
			slog.Warn("setting credentials flag", "error", err)
		}
	}

	if g.Presenter == nil {
		return ErrSurfaceUnavailable
	}

	url := s.RedirectURL
	if url == "" {
		url = g.loginURL()
	}
	msg := s.Message
	if msg == "" {
		msg = MsgSessionExpired
	}
	return g.Presenter.PresentBlockingWithAction(msg, LoginActionLabel, func() {
		if g.Navigator != nil {
			g.Navigator.Navigate(url)
		}
	})
}
