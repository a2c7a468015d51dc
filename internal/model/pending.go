package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PendingRequest is one outstanding stock-count task.
type PendingRequest struct {
	ID          string `json:"idSolicitud"`
	Code        string `json:"codigo"`
	Description string `json:"descripcion"`
	RequestedAt string `json:"fecha"`
}

// Row-level metadata attribute names.
const (
	AttrID          = "data-id"
	AttrCode        = "data-cod"
	AttrDescription = "data-desc"
	AttrRequestedAt = "data-fecha"
)

// Accepted key spellings for keyed pending items, matched case-insensitively.
var (
	idKeys          = []string{"idSolicitud", "id"}
	codeKeys        = []string{"codigo", "codigo_producto", "cod"}
	descriptionKeys = []string{"descripcion", "descripcion_producto", "desc", "description"}
	requestedAtKeys = []string{"fecha"}
)

// DataAttributes returns the row metadata a rendered row carries so the
// record can be rebuilt from the row alone.
func (p PendingRequest) DataAttributes() map[string]string {
	return map[string]string{
		AttrID:          p.ID,
		AttrCode:        p.Code,
		AttrDescription: p.Description,
		AttrRequestedAt: p.RequestedAt,
	}
}

// PendingFromAttributes rebuilds a PendingRequest from row metadata.
func PendingFromAttributes(attrs map[string]string) PendingRequest {
	return PendingRequest{
		ID:          attrs[AttrID],
		Code:        attrs[AttrCode],
		Description: attrs[AttrDescription],
		RequestedAt: attrs[AttrRequestedAt],
	}
}

// NormalizePendingRequest accepts either a positional array
// [id, code, description, requestedAt?] or a keyed object and returns the
// keyed form.
func NormalizePendingRequest(raw json.RawMessage) (PendingRequest, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return PendingRequest{}, fmt.Errorf("empty pending item")
	}

	switch trimmed[0] {
	case '[':
		var fields []json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return PendingRequest{}, fmt.Errorf("decoding positional pending item: %w", err)
		}
		if len(fields) < 3 {
			return PendingRequest{}, fmt.Errorf("positional pending item has %d fields, need at least 3", len(fields))
		}
		p := PendingRequest{
			ID:          scalarString(fields[0]),
			Code:        scalarString(fields[1]),
			Description: scalarString(fields[2]),
		}
		if len(fields) > 3 {
			p.RequestedAt = scalarString(fields[3])
		}
		return p, nil

	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return PendingRequest{}, fmt.Errorf("decoding keyed pending item: %w", err)
		}
		lower := make(map[string]json.RawMessage, len(obj))
		for k, v := range obj {
			lower[strings.ToLower(k)] = v
		}
		return PendingRequest{
			ID:          lookup(lower, idKeys),
			Code:        lookup(lower, codeKeys),
			Description: lookup(lower, descriptionKeys),
			RequestedAt: lookup(lower, requestedAtKeys),
		}, nil
	}

	return PendingRequest{}, fmt.Errorf("unsupported pending item shape")
}

// NormalizePendingList normalizes a JSON array of pending items. Items that
// cannot be normalized are skipped; order is preserved. A null or missing
// list yields an empty slice.
func NormalizePendingList(raw json.RawMessage) ([]PendingRequest, error) {
	out := []PendingRequest{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decoding pending list: %w", err)
	}
	for _, item := range items {
		p, err := NormalizePendingRequest(item)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func lookup(obj map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		if v, ok := obj[strings.ToLower(k)]; ok {
			if s := scalarString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// scalarString renders a JSON scalar as a plain string. Strings are unquoted,
// numbers keep their literal form, null becomes empty.
func scalarString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	if n, err := strconv.ParseFloat(string(trimmed), 64); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return string(trimmed)
}
