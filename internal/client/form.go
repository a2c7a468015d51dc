package client

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValidationKind classifies a rejected quantity.
type ValidationKind int

const (
	Empty ValidationKind = iota + 1
	NotNumeric
	Negative
)

func (k ValidationKind) String() string {
	switch k {
	case Empty:
		return "empty"
	case NotNumeric:
		return "not numeric"
	case Negative:
		return "negative"
	default:
		return "unknown"
	}
}

// Form messages.
const (
	MsgEmptyQuantity   = "Por favor, ingrese la cantidad contada"
	MsgInvalidQuantity = "Ingrese un número válido mayor o igual a 0"
)

// ValidationError is a quantity rejected before reaching the network.
type ValidationError struct {
	Kind  ValidationKind
	Input string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid quantity %q: %s", e.Input, e.Kind)
}

// Message is the text shown to the operator.
func (e *ValidationError) Message() string {
	if e.Kind == Empty {
		return MsgEmptyQuantity
	}
	return MsgInvalidQuantity
}

// ValidateInput parses a counted quantity.
func ValidateInput(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, &ValidationError{Kind: Empty, Input: raw}
	}
	q, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(q) || math.IsInf(q, 0) {
		return 0, &ValidationError{Kind: NotNumeric, Input: raw}
	}
	if q < 0 {
		return 0, &ValidationError{Kind: Negative, Input: raw}
	}
	return q, nil
}
