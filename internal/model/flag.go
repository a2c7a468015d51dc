package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Flag is a status flag as sent by the legacy backend: either a JSON boolean
// or a text flag such as "T".
type Flag bool

// UnmarshalJSON accepts booleans, the text flags T/TRUE/1/OK and the number 1.
func (f *Flag) UnmarshalJSON(data []byte) error {
	*f = Flag(ParseFlag(data))
	return nil
}

// ParseFlag reports whether raw encodes a true status flag.
func ParseFlag(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}

	switch trimmed[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err == nil {
			return b
		}
		return false
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return false
		}
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "T", "TRUE", "1", "OK":
			return true
		}
		return false
	}

	var n float64
	if err := json.Unmarshal(trimmed, &n); err == nil {
		return n == 1
	}
	return false
}
