// Package cursor implements the opaque keyset pagination token: a
// URL-safe base64 encoding of a compact {"s", "i"} JSON object carrying
// a sort value and a tie-breaking id.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/agentic-research/astgraph/api"
)

type wire struct {
	S string `json:"s"`
	I int64  `json:"i"`
}

// Encode produces the opaque cursor token for (sortValue, id).
func Encode(sortValue string, id int64) string {
	b, _ := json.Marshal(wire{S: sortValue, I: id})
	return base64.URLEncoding.EncodeToString(b)
}

// EncodeCursor is a convenience wrapper over Encode for an api.Cursor.
func EncodeCursor(c *api.Cursor) *string {
	if c == nil {
		return nil
	}
	s := Encode(c.Sort, c.ID)
	return &s
}

// Decode reverses Encode. A malformed token is ErrInvalidInput.
func Decode(token string) (*api.Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, api.Wrap(api.ErrInvalidInput, err, "decode cursor")
	}
	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, api.Wrap(api.ErrInvalidInput, err, "decode cursor")
	}
	return &api.Cursor{Sort: w.S, ID: w.I}, nil
}

// DecodeQuery is a small helper for CLI/HTTP callers passing "after=<token>"
// style query parameters: an empty string decodes to a nil cursor rather
// than an error.
func DecodeQuery(token string) (*api.Cursor, error) {
	if token == "" {
		return nil, nil
	}
	c, err := Decode(token)
	if err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}
	return c, nil
}
