package legacy

import (
	"encoding/json"
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// Codec converts command messages to and from the bytes the legacy backend
// exchanges: JSON text in windows-1252, optionally passed through the
// additive cipher.
type Codec struct {
	Cipher bool
}

// Encode marshals msg and transcodes it to windows-1252. Characters outside
// the code page are replaced.
func (c Codec) Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}

	enc := charmap.Windows1252.NewEncoder()
	out, err := enc.Bytes(replaceUnencodable(data))
	if err != nil {
		return nil, fmt.Errorf("transcoding message: %w", err)
	}

	if c.Cipher {
		return Encrypt(out)
	}
	return out, nil
}

// Decode reverses Encode and returns the UTF-8 JSON text.
func (c Codec) Decode(data []byte) ([]byte, error) {
	if c.Cipher {
		plain, err := Decrypt(data)
		if err != nil {
			return nil, err
		}
		data = plain
	}

	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decoding reply: %w", err)
	}
	return out, nil
}

// replaceUnencodable swaps runes windows-1252 cannot represent for '?'.
func replaceUnencodable(data []byte) []byte {
	s := string(data)
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
			r = '?'
		}
		out = append(out, r)
	}
	return []byte(string(out))
}
