package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cormons/controlstock/internal/model"
)

// DefaultView is the Vista field sent with every command.
const DefaultView = "CONTROLSTOCK"

// Message is a command sent to the legacy backend.
type Message interface {
	Command() string
}

// VerifyTokenRequest asks the backend to validate a session token.
type VerifyTokenRequest struct {
	Comando string `json:"Comando"`
	Token   string `json:"Token"`
	Vista   string `json:"Vista"`
	Version string `json:"Version"`
}

func (r VerifyTokenRequest) Command() string { return r.Comando }

// PendingRequestsRequest asks for the pending stock counts.
type PendingRequestsRequest struct {
	Comando   string `json:"Comando"`
	Token     string `json:"Token"`
	Vista     string `json:"Vista"`
	UsrActivo string `json:"usrActivo"`
}

func (r PendingRequestsRequest) Command() string { return r.Comando }

// RegisterCountRequest records a counted quantity.
type RegisterCountRequest struct {
	Comando     string  `json:"Comando"`
	Token       string  `json:"Token"`
	Vista       string  `json:"Vista"`
	UsrActivo   string  `json:"UsrActivo"`
	IDSolicitud string  `json:"idSolicitud"`
	Cantidad    float64 `json:"cantidad"`
}

func (r RegisterCountRequest) Command() string { return r.Comando }

// Command names.
const (
	CmdVerifyToken   = "verificarToken"
	CmdPending       = "controlPendientes"
	CmdRegisterCount = "RegistrarStockControlado"
)

// TokenInfo is the normalized verificarToken reply.
type TokenInfo struct {
	Estado  bool
	Usuario string
	Nombre  string
	Mensaje string
	Token   string
}

// PendingList is the normalized controlPendientes reply.
type PendingList struct {
	Estado     bool
	Mensaje    string
	Deposito   string
	Pendientes []model.PendingRequest
}

// CountResult is the normalized RegistrarStockControlado reply.
type CountResult struct {
	Estado  bool
	Mensaje string
}

// Service issues the control-stock commands against one backend address.
type Service struct {
	Client  *Client
	View    string
	Version string
}

// NewService creates a Service with the default view name.
func NewService(client *Client, version string) *Service {
	return &Service{Client: client, View: DefaultView, Version: version}
}

// VerifyToken validates a session token.
func (s *Service) VerifyToken(ctx context.Context, addr, token string) (*TokenInfo, error) {
	var reply map[string]json.RawMessage
	err := s.Client.Send(ctx, addr, VerifyTokenRequest{
		Comando: CmdVerifyToken,
		Token:   token,
		Vista:   s.View,
		Version: s.Version,
	}, &reply)
	if err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	info := &TokenInfo{
		Estado:  model.ParseFlag(field(reply, "estado")),
		Mensaje: stringField(reply, "mensaje"),
	}
	if !info.Estado {
		if info.Mensaje == "" {
			info.Mensaje = "Token inválido"
		}
		return info, nil
	}
	info.Usuario = stringField(reply, "usuario")
	info.Nombre = stringField(reply, "nombre")
	info.Token = stringField(reply, "token")
	return info, nil
}

// Pending fetches the pending stock counts for the active user.
func (s *Service) Pending(ctx context.Context, addr, token, user string) (*PendingList, error) {
	if user == "" {
		user = "no definido"
	}
	slog.InfoContext(ctx, "querying pending counts", "token", Truncate(token), "user", user)

	var reply map[string]json.RawMessage
	err := s.Client.Send(ctx, addr, PendingRequestsRequest{
		Comando:   CmdPending,
		Token:     token,
		Vista:     s.View,
		UsrActivo: user,
	}, &reply)
	if err != nil {
		return nil, fmt.Errorf("listing pending counts: %w", err)
	}

	pending, err := model.NormalizePendingList(field(reply, "pendientes"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadReply, err)
	}
	return &PendingList{
		Estado:     model.ParseFlag(field(reply, "estado")),
		Mensaje:    stringField(reply, "mensaje"),
		Deposito:   stringField(reply, "deposito"),
		Pendientes: pending,
	}, nil
}

// RegisterCount records the counted quantity for a pending request.
func (s *Service) RegisterCount(ctx context.Context, addr, token, user, id string, qty float64) (*CountResult, error) {
	slog.InfoContext(ctx, "registering stock count", "id", id, "quantity", qty, "user", user)

	var reply map[string]json.RawMessage
	err := s.Client.Send(ctx, addr, RegisterCountRequest{
		Comando:     CmdRegisterCount,
		Token:       token,
		Vista:       s.View,
		UsrActivo:   user,
		IDSolicitud: id,
		Cantidad:    qty,
	}, &reply)
	if err != nil {
		return nil, fmt.Errorf("registering count: %w", err)
	}

	return &CountResult{
		Estado:  model.ParseFlag(field(reply, "estado")),
		Mensaje: stringField(reply, "mensaje"),
	}, nil
}

// Truncate shortens a token for logging.
func Truncate(token string) string {
	if len(token) <= 10 {
		return token
	}
	return token[:10] + "..."
}

// field looks a key up case-insensitively; replies mix Estado/estado.
func field(obj map[string]json.RawMessage, key string) json.RawMessage {
	if v, ok := obj[key]; ok {
		return v
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func stringField(obj map[string]json.RawMessage, key string) string {
	raw := field(obj, key)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}
