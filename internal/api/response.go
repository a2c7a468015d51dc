package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// jsonResult writes the {estado, mensaje} shape the page script expects.
func jsonResult(w http.ResponseWriter, status int, estado bool, mensaje string) {
	jsonResponse(w, status, map[string]any{"estado": estado, "mensaje": mensaje})
}

// sessionExpired is the 401 body telling the page to go back to the login
// portal.
type sessionExpired struct {
	Redirect string `json:"redirect"`
	Error    string `json:"error"`
	Mensaje  string `json:"mensaje"`
	Estado   bool   `json:"estado"`
}

func (h *handler) unauthorized(w http.ResponseWriter, mensaje string) {
	jsonResponse(w, http.StatusUnauthorized, sessionExpired{
		Redirect: h.LoginURL,
		Error:    "Sesión expirada",
		Mensaje:  mensaje,
	})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64<<10)).Decode(target)
}
