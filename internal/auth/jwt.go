package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are carried by the signed session cookie. The JWT ID doubles as the
// server-side session id.
type Claims struct {
	Empresa string `json:"empresa,omitempty"`
	jwt.RegisteredClaims
}

// SessionExpiry is the session cookie lifetime.
const SessionExpiry = 12 * time.Hour

// GenerateSessionToken creates a signed session token with a fresh id.
func GenerateSessionToken(key []byte, empresa string) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		Empresa: empresa,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", nil, fmt.Errorf("signing session token: %w", err)
	}
	return signed, claims, nil
}

// ValidateSessionToken parses and validates a session token.
func ValidateSessionToken(key []byte, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing session token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, fmt.Errorf("invalid session token")
	}
	return claims, nil
}
