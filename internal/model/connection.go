package model

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ConnectionConfig locates the legacy stock backend of one company. It is
// carried in the connection_config cookie set by the login portal.
type ConnectionConfig struct {
	IP   string
	Port int
	Code string
	Name string
}

type connectionConfigJSON struct {
	IP     string          `json:"ip"`
	Puerto json.RawMessage `json:"puerto"`
	Codigo string          `json:"codigo"`
	Nombre string          `json:"nombre"`
}

// ParseConnectionConfig decodes the connection_config cookie value. The port
// may be a number or a numeric string.
func ParseConnectionConfig(value string) (ConnectionConfig, error) {
	var raw connectionConfigJSON
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return ConnectionConfig{}, fmt.Errorf("decoding connection config: %w", err)
	}

	cfg := ConnectionConfig{IP: raw.IP, Code: raw.Codigo, Name: raw.Nombre}

	port := strings.Trim(strings.TrimSpace(string(raw.Puerto)), `"`)
	if port != "" && port != "null" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return ConnectionConfig{}, fmt.Errorf("invalid port %q", port)
		}
		cfg.Port = p
	}
	return cfg, nil
}

// Valid reports whether the config has a usable address.
func (c ConnectionConfig) Valid() bool {
	return c.IP != "" && c.Port > 0 && c.Port <= 65535
}

// Addr returns host:port for dialing.
func (c ConnectionConfig) Addr() string {
	return net.JoinHostPort(c.IP, strconv.Itoa(c.Port))
}
