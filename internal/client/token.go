package client

import (
	"github.com/cormons/controlstock/internal/model"
)

// Local storage and cookie keys.
const (
	KeyAuthToken          = "authToken"
	KeyFallbackToken      = "token"
	KeyRequireCredentials = "requiere_credenciales"
	KeySessionActive      = "sesion_activa"
	KeyCompanyCode        = "empresa_codigo"
	KeyWarehouse          = "deposito"
	CSRFCookie            = "csrftoken"
	CSRFHeader            = "X-CSRFToken"
	CompanyHeader         = "X-Empresa-Codigo"
	WarehouseHeader       = "X-Deposito"
)

// Credential is a normalized bearer token.
type Credential string

// Normalize strips surrounding whitespace and quote characters and removes
// every backslash. Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) Credential {
	return Credential(model.NormalizeToken(raw))
}

// CookieSource reads cookie values.
type CookieSource interface {
	Cookie(name string) (string, bool)
}

// TokenResolver finds the session token. It never writes.
type TokenResolver struct {
	Cookies CookieSource
	Storage Storage
}

// Resolve checks the authToken cookie, the token cookie, then the stored
// authToken, and returns the first candidate that is non-empty after
// normalization.
func (r TokenResolver) Resolve() (Credential, bool) {
	var candidates []string
	if r.Cookies != nil {
		for _, name := range []string{KeyAuthToken, KeyFallbackToken} {
			if v, ok := r.Cookies.Cookie(name); ok {
				candidates = append(candidates, v)
			}
		}
	}
	if r.Storage != nil {
		if v, ok := r.Storage.Get(KeyAuthToken); ok {
			candidates = append(candidates, v)
		}
	}

	for _, c := range candidates {
		if cred := Normalize(c); cred != "" {
			return cred, true
		}
	}
	return "", false
}
