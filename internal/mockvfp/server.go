// Package mockvfp is a stand-in for the legacy stock backend. It speaks the
// same one-command-per-connection JSON protocol and keeps its state in sqlite.
package mockvfp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cormons/controlstock/internal/legacy"
	"github.com/cormons/controlstock/internal/store"
)

const bufferSize = 2048

// Server is the mock backend.
type Server struct {
	DB      *sql.DB
	Codec   legacy.Codec
	Timeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// reply is the generic response shape.
type reply map[string]any

// Listen binds addr. Use Addr to learn the chosen port when addr ends in :0.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until Close is called.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("mockvfp: Serve called before Listen")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// Close stops accepting and waits for in-flight connections.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conn.SetDeadline(time.Now().Add(timeout))

	remote := conn.RemoteAddr().String()
	data, err := s.readCommand(conn)
	if err != nil {
		slog.Warn("no command received", "remote", remote, "error", err)
		return
	}

	var cmd map[string]json.RawMessage
	var resp reply
	if err := json.Unmarshal(data, &cmd); err != nil {
		slog.Warn("invalid JSON command", "remote", remote, "error", err)
		resp = reply{"estado": false, "mensaje": "JSON inválido"}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		resp = s.process(ctx, cmd)
		cancel()
	}

	out, err := s.Codec.Encode(resp)
	if err != nil {
		slog.Error("failed to encode mock reply", "error", err)
		return
	}
	if _, err := conn.Write(out); err != nil {
		slog.Error("failed to send mock reply", "remote", remote, "error", err)
	}
}

// readCommand reads until the payload decodes to valid JSON or the peer
// stops sending.
func (s *Server) readCommand(conn net.Conn) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, bufferSize)
	for {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if n > 0 {
			if decoded, derr := s.Codec.Decode(buf); derr == nil && json.Valid(decoded) {
				return decoded, nil
			}
		}
		if err != nil {
			if len(buf) > 0 {
				// Hand the partial payload on so the caller answers "JSON inválido".
				return s.Codec.Decode(buf)
			}
			return nil, err
		}
	}
}

func (s *Server) process(ctx context.Context, cmd map[string]json.RawMessage) reply {
	name := strings.ToLower(str(cmd, "Comando"))
	slog.Info("mock command received", "command", name)

	switch name {
	case "verificartoken":
		return s.verifyToken(ctx, cmd)
	case "controlpendientes":
		return s.pending(ctx, cmd)
	case "registrarstockcontrolado", "stockcontrolado":
		return s.registerCount(ctx, cmd)
	default:
		slog.Warn("unknown mock command", "command", name)
		return reply{"estado": false, "mensaje": fmt.Sprintf("Comando '%s' no reconocido", name)}
	}
}

func (s *Server) verifyToken(ctx context.Context, cmd map[string]json.RawMessage) reply {
	token := str(cmd, "Token")
	u, err := store.GetMockUser(ctx, s.DB, token)
	if err != nil {
		slog.Error("failed to look up mock token", "error", err)
		return reply{"estado": false, "mensaje": "Error interno"}
	}
	if u == nil {
		return reply{"estado": false, "mensaje": "Token inválido o expirado"}
	}
	return reply{
		"estado":  true,
		"mensaje": "Token válido",
		"usuario": u.Usuario,
		"nombre":  u.Nombre,
		"token":   token,
	}
}

func (s *Server) pending(ctx context.Context, cmd map[string]json.RawMessage) reply {
	u, err := store.GetMockUser(ctx, s.DB, str(cmd, "Token"))
	if err != nil || u == nil {
		return reply{"estado": false, "mensaje": "Token inválido"}
	}

	items, err := store.ListMockPending(ctx, s.DB)
	if err != nil {
		slog.Error("failed to list mock pending", "error", err)
		return reply{"estado": false, "mensaje": "Error interno"}
	}

	// Positional items, as the real backend sends them.
	rows := make([][]string, 0, len(items))
	for _, p := range items {
		rows = append(rows, []string{p.ID, p.Code, p.Description, p.RequestedAt})
	}
	slog.Info("returning mock pending", "count", len(rows))
	return reply{
		"estado":       true,
		"mensaje":      "",
		"deposito":     "Depósito Central",
		"cod_deposito": "DEP001",
		"pendientes":   rows,
	}
}

func (s *Server) registerCount(ctx context.Context, cmd map[string]json.RawMessage) reply {
	u, err := store.GetMockUser(ctx, s.DB, str(cmd, "Token"))
	if err != nil || u == nil {
		return reply{"estado": false, "mensaje": "Token inválido"}
	}

	id := str(cmd, "idSolicitud")
	var cantidad float64
	if raw, ok := get(cmd, "cantidad"); ok {
		if err := json.Unmarshal(raw, &cantidad); err != nil {
			return reply{"estado": false, "mensaje": "Cantidad inválida"}
		}
	}

	p, err := store.CompleteMockPending(ctx, s.DB, id, cantidad, str(cmd, "UsrActivo"))
	if err != nil {
		slog.Error("failed to record mock count", "error", err)
		return reply{"estado": false, "mensaje": "Error interno"}
	}
	if p == nil {
		return reply{"estado": false, "mensaje": fmt.Sprintf("Solicitud %s no encontrada", id)}
	}

	slog.Info("mock count recorded", "id", id, "quantity", cantidad)
	return reply{
		"estado":  true,
		"mensaje": fmt.Sprintf("Stock controlado correctamente. Código: %s, Cantidad: %g", p.Code, cantidad),
	}
}

func get(cmd map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	if v, ok := cmd[key]; ok {
		return v, true
	}
	for k, v := range cmd {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func str(cmd map[string]json.RawMessage, key string) string {
	raw, ok := get(cmd, key)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
