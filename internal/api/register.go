package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/cormons/controlstock/internal/auth"
	"github.com/cormons/controlstock/internal/model"
)

// Count registration outcomes reported to metrics.
const (
	outcomeSuccess      = "success"
	outcomeRejected     = "rejected"
	outcomeInvalid      = "invalid"
	outcomeUnauthorized = "unauthorized"
	outcomeError        = "error"
)

const msgInvalidQuantity = "Ingrese un número válido mayor o igual a 0"

// quantity accepts the counted amount as a JSON string or number.
type quantity string

func (q *quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*q = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*q = quantity(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*q = quantity(n.String())
	return nil
}

type registerRequest struct {
	Token       string   `json:"token" validate:"required"`
	IDSolicitud string   `json:"idSolicitud" validate:"required"`
	Cantidad    quantity `json:"cantidad" validate:"required,quantity"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("quantity", func(fl validator.FieldLevel) bool {
		_, ok := parseQuantity(fl.Field().String())
		return ok
	})
	return v
}

// parseQuantity accepts finite decimals greater than or equal to zero.
func parseQuantity(s string) (float64, bool) {
	q, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(q) || math.IsInf(q, 0) || q < 0 {
		return 0, false
	}
	return q, true
}

// validationMessage maps the first field error to the message the page shows.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Datos inválidos"
	}
	fe := verrs[0]
	switch fe.StructField() {
	case "Token":
		return "No hay token de autenticación"
	case "IDSolicitud":
		return "No hay solicitud seleccionada"
	case "Cantidad":
		if fe.Tag() == "required" {
			return "Por favor, ingrese la cantidad contada"
		}
		return msgInvalidQuantity
	default:
		return fe.Error()
	}
}

// Register handles POST /control-stock/registrar/.
// The CSRF middleware has already checked the X-CSRFToken header.
func (h *handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.observeCount(outcomeInvalid)
		jsonResult(w, http.StatusBadRequest, false, "Datos inválidos")
		return
	}
	req.Token = model.NormalizeToken(req.Token)
	if req.Token == "" {
		req.Token = auth.Token(r)
	}
	req.IDSolicitud = strings.TrimSpace(req.IDSolicitud)

	if err := h.validate.Struct(req); err != nil {
		h.observeCount(outcomeInvalid)
		jsonResult(w, http.StatusBadRequest, false, validationMessage(err))
		return
	}
	qty, _ := parseQuantity(string(req.Cantidad))

	cfg, info, ok := h.session(w, r, req.Token)
	if !ok {
		h.observeCount(outcomeUnauthorized)
		return
	}

	result, err := h.Legacy.RegisterCount(r.Context(), cfg.Addr(), req.Token, info.Usuario, req.IDSolicitud, qty)
	if err != nil {
		slog.Error("registering count", "error", err, "id", req.IDSolicitud, "request_id", RequestID(r.Context()))
		h.observeCount(outcomeError)
		jsonResult(w, http.StatusBadGateway, false, "Sin respuesta del servidor")
		return
	}

	if result.Estado {
		h.observeCount(outcomeSuccess)
	} else {
		h.observeCount(outcomeRejected)
	}
	jsonResult(w, http.StatusOK, result.Estado, result.Mensaje)
}

func (h *handler) csrfFailed(w http.ResponseWriter, r *http.Request) {
	slog.Warn("csrf check failed", "reason", auth.CSRFFailure(r), "path", r.URL.Path, "request_id", RequestID(r.Context()))
	jsonError(w, http.StatusForbidden, "CSRF token inválido")
}

func (h *handler) observeCount(outcome string) {
	if h.Metrics != nil {
		h.Metrics.ObserveCount(outcome)
	}
}
