package natstable

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360/turbologger/table"
)

// envelope is the JSON document stored under each KV key.
type envelope struct {
	Path   string          `json:"path"`
	Type   string          `json:"type"`
	Layout string          `json:"layout,omitempty"`
	Value  json.RawMessage `json:"value"`
}

// encode renders a typed value as an envelope. Values that JSON can not
// carry (NaN, infinities) fail with table.ErrInvalidValue.
func encode(path string, typ table.Type, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s for %q: %v", table.ErrInvalidValue, typ, path, err)
	}
	return json.Marshal(envelope{
		Path:   path,
		Type:   typ.String(),
		Layout: typ.Layout,
		Value:  raw,
	})
}

// decode parses an envelope into its path, type and canonical value.
func decode(data []byte) (string, table.Type, any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", table.Type{}, nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Path == "" {
		return "", table.Type{}, nil, fmt.Errorf("decode envelope: missing path")
	}
	typ, err := table.ParseType(env.Type, env.Layout)
	if err != nil {
		return "", table.Type{}, nil, fmt.Errorf("decode envelope for %q: %w", env.Path, err)
	}
	v, err := decodeValue(typ, env.Value)
	if err != nil {
		return "", table.Type{}, nil, fmt.Errorf("decode %s value for %q: %w", typ, env.Path, err)
	}
	return env.Path, typ, v, nil
}

func decodeValue(typ table.Type, raw json.RawMessage) (any, error) {
	switch {
	case typ.Kind == table.KindStruct:
		return unmarshalAs[[]byte](raw)
	case typ.Array:
		switch typ.Kind {
		case table.KindBoolean:
			return unmarshalAs[[]bool](raw)
		case table.KindInteger:
			return unmarshalAs[[]int64](raw)
		case table.KindDouble:
			return unmarshalAs[[]float64](raw)
		case table.KindFloat:
			return unmarshalAs[[]float32](raw)
		case table.KindString:
			return unmarshalAs[[]string](raw)
		}
	default:
		switch typ.Kind {
		case table.KindBoolean:
			return unmarshalAs[bool](raw)
		case table.KindInteger:
			return unmarshalAs[int64](raw)
		case table.KindDouble:
			return unmarshalAs[float64](raw)
		case table.KindFloat:
			return unmarshalAs[float32](raw)
		case table.KindString:
			return unmarshalAs[string](raw)
		}
	}
	return nil, fmt.Errorf("unsupported type %s", typ)
}

// unmarshalAs decodes raw into T.
func unmarshalAs[T any](raw json.RawMessage) (any, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return table.Copy(v), nil
}

// maxKeyLength bounds NATS KV keys.
const maxKeyLength = 255

// keyHashMarker starts the digest suffix of a key too long to escape in
// full. It can not come out of the byte escape, whose '=' is always
// followed by two hex digits.
const keyHashMarker = "=H"

// encodeKey maps a table path to a NATS KV key, one key per path. Bytes
// outside [a-zA-Z0-9/_-] are written as '=' and two hex digits, '=' and '.'
// included, so the key never holds a dot. The empty path is "=". Keys
// longer than maxKeyLength keep an escaped prefix and end in the SHA-256 of
// the path.
func encodeKey(path string) string {
	if path == "" {
		return "="
	}

	var b strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		if keepKeyByte(c) {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "=%02X", c)
		}
	}
	key := b.String()
	if len(key) <= maxKeyLength {
		return key
	}

	sum := sha256.Sum256([]byte(path))
	digest := keyHashMarker + hex.EncodeToString(sum[:])
	cut := maxKeyLength - len(digest)
	// Do not split an escape.
	for j := cut - 2; j < cut; j++ {
		if key[j] == '=' {
			cut = j
			break
		}
	}
	return key[:cut] + digest
}

func keepKeyByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '/' || c == '_' || c == '-':
		return true
	}
	return false
}
