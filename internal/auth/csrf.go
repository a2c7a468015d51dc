package auth

import (
	"net/http"

	"github.com/gorilla/csrf"
)

// CSRF cookie and header names, matching what the browser script sends.
const (
	CSRFCookie = "csrftoken"
	CSRFHeader = "X-CSRFToken"
	CSRFField  = "csrfmiddlewaretoken"
)

// CSRF returns middleware that keeps the csrftoken cookie and rejects unsafe
// requests whose X-CSRFToken header does not match it. Rejected requests are
// answered by onFail.
func (s *Sessions) CSRF(onFail http.Handler) func(http.Handler) http.Handler {
	protect := csrf.Protect(s.Keys.CSRF,
		csrf.CookieName(CSRFCookie),
		csrf.RequestHeader(CSRFHeader),
		csrf.FieldName(CSRFField),
		csrf.Path("/"),
		csrf.Secure(s.Secure),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(onFail),
	)
	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Without TLS there is no Referer to check; the token still is.
			if !s.Secure {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// CSRFToken returns the masked token for r. It is empty unless r went
// through the CSRF middleware.
func CSRFToken(r *http.Request) string {
	return csrf.Token(r)
}

// ExposeCSRF sets the X-CSRFToken response header so API clients can echo it.
func ExposeCSRF(w http.ResponseWriter, r *http.Request) {
	if t := CSRFToken(r); t != "" {
		w.Header().Set(CSRFHeader, t)
	}
}

// CSRFFailure returns why the CSRF middleware rejected r.
func CSRFFailure(r *http.Request) error {
	return csrf.FailureReason(r)
}
