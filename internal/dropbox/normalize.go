package dropbox

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Discriminator keys. The API marks tagged-union variants with ".tag";
// callers see the variant under "tag" instead.
const (
	discriminatorKey = ".tag"
	tagField         = "tag"
)

// Normalize rewrites the ".tag" discriminator to "tag" in every object of a
// decoded JSON tree. The input is not modified; objects and arrays are
// copied, scalars are returned as-is. Normalize is idempotent.
func Normalize(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))

		for k, child := range node {
			if k == discriminatorKey {
				continue
			}

			out[k] = Normalize(child)
		}

		// The discriminator wins over a pre-existing "tag" sibling.
		if tag, ok := node[discriminatorKey]; ok {
			out[tagField] = Normalize(tag)
		}

		return out

	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = Normalize(child)
		}

		return out

	default:
		return v
	}
}

// decodeJSON parses a response body into a generic tree and normalizes it.
// Numbers are kept as json.Number so 64-bit sizes survive the round trip.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}

	// Trailing garbage after the first value is also malformed.
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrMalformedJSON)
	}

	return Normalize(v), nil
}

// decodeValue converts a normalized tree into a typed response shape.
func decodeValue(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("dropbox: re-encoding response: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}

	return nil
}
