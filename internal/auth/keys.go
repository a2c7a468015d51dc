package auth

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Keys are the signing keys derived from the master secret.
type Keys struct {
	Session []byte
	CSRF    []byte
}

// DeriveKeys expands the master secret into independent keys.
func DeriveKeys(master string) (*Keys, error) {
	if master == "" {
		return nil, fmt.Errorf("empty master secret")
	}
	session, err := derive(master, "controlstock session")
	if err != nil {
		return nil, err
	}
	csrf, err := derive(master, "controlstock csrf")
	if err != nil {
		return nil, err
	}
	return &Keys{Session: session, CSRF: csrf}, nil
}

func derive(master, info string) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(master), nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving %s key: %w", info, err)
	}
	return key, nil
}
