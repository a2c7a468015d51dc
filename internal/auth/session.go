package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cormons/controlstock/internal/model"
	"github.com/cormons/controlstock/internal/store"
)

// Cookie names. authToken and connection_config are set by the login portal.
const (
	SessionCookie    = "cs_session"
	TokenCookie      = "authToken"
	ConnectionCookie = "connection_config"
)

// ErrNoConnection means no legacy backend could be resolved for a request.
var ErrNoConnection = errors.New("no connection config")

// Sessions resolves and caches the legacy backend of each browser session.
type Sessions struct {
	DB          *sql.DB
	Keys        *Keys
	DefaultAddr string
	Secure      bool
}

// Token returns the normalized authToken cookie, or "".
func Token(r *http.Request) string {
	c, err := r.Cookie(TokenCookie)
	if err != nil {
		return ""
	}
	v, err := url.QueryUnescape(c.Value)
	if err != nil {
		v = c.Value
	}
	return model.NormalizeToken(v)
}

// Connection resolves the backend for r: the cached session first, then the
// connection_config cookie (which starts a new session), then DefaultAddr.
func (s *Sessions) Connection(w http.ResponseWriter, r *http.Request) (model.ConnectionConfig, error) {
	ctx := r.Context()

	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		cfg, ok, err := s.lookup(ctx, c.Value)
		if err != nil {
			return model.ConnectionConfig{}, err
		}
		if ok {
			return cfg, nil
		}
	}

	if cfg, ok := connectionCookie(r); ok {
		if err := s.start(ctx, w, cfg); err != nil {
			return model.ConnectionConfig{}, err
		}
		return cfg, nil
	}

	if s.DefaultAddr != "" {
		host, port, err := net.SplitHostPort(s.DefaultAddr)
		if err != nil {
			return model.ConnectionConfig{}, fmt.Errorf("parsing default legacy address: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return model.ConnectionConfig{}, fmt.Errorf("parsing default legacy port: %w", err)
		}
		return model.ConnectionConfig{IP: host, Port: p}, nil
	}

	return model.ConnectionConfig{}, ErrNoConnection
}

// HasConnectionCookie reports whether the login portal left a usable config.
func HasConnectionCookie(r *http.Request) bool {
	_, ok := connectionCookie(r)
	return ok
}

func connectionCookie(r *http.Request) (model.ConnectionConfig, bool) {
	c, err := r.Cookie(ConnectionCookie)
	if err != nil || c.Value == "" {
		return model.ConnectionConfig{}, false
	}
	v, err := url.QueryUnescape(c.Value)
	if err != nil {
		v = c.Value
	}
	cfg, err := model.ParseConnectionConfig(v)
	if err != nil || !cfg.Valid() {
		slog.Warn("ignoring invalid connection_config cookie", "error", err)
		return model.ConnectionConfig{}, false
	}
	return cfg, true
}

func (s *Sessions) lookup(ctx context.Context, token string) (model.ConnectionConfig, bool, error) {
	claims, err := ValidateSessionToken(s.Keys.Session, token)
	if err != nil {
		return model.ConnectionConfig{}, false, nil
	}
	revoked, err := store.IsRevoked(ctx, s.DB, claims.ID)
	if err != nil {
		return model.ConnectionConfig{}, false, err
	}
	if revoked {
		return model.ConnectionConfig{}, false, nil
	}
	sess, err := store.GetSession(ctx, s.DB, claims.ID)
	if err != nil {
		return model.ConnectionConfig{}, false, err
	}
	if sess == nil || !sess.Config.Valid() {
		return model.ConnectionConfig{}, false, nil
	}
	return sess.Config, true, nil
}

func (s *Sessions) start(ctx context.Context, w http.ResponseWriter, cfg model.ConnectionConfig) error {
	signed, claims, err := GenerateSessionToken(s.Keys.Session, cfg.Code)
	if err != nil {
		return err
	}
	if err := store.SaveSession(ctx, s.DB, claims.ID, cfg, claims.ExpiresAt.Time); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionExpiry / time.Second),
	})
	slog.Info("session started", "session", claims.ID, "empresa", cfg.Code)
	return nil
}

// End revokes the current session, if any, and clears every cookie the page
// relies on.
func (s *Sessions) End(w http.ResponseWriter, r *http.Request) error {
	var revokeErr error
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		if claims, err := ValidateSessionToken(s.Keys.Session, c.Value); err == nil {
			revokeErr = store.RevokeSession(r.Context(), s.DB, claims.ID, claims.ExpiresAt.Time)
		}
	}

	for _, name := range []string{SessionCookie, TokenCookie, ConnectionCookie, CSRFCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name == SessionCookie,
			Secure:   s.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return revokeErr
}
