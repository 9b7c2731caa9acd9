// Package identity implements the two pure functions every AstNode's
// identity derives from: span_key and shape_hash. Neither touches the
// database or any global state; both are referentially transparent for
// the same inputs.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SpanKey concatenates (file_uuid, node_type, start_byte, end_byte) with a
// colon delimiter. Colons cannot appear in node_type (tree-sitter type
// names are identifiers) or in a UUID, so the concatenation is injective.
func SpanKey(fileUUID, nodeType string, startByte, endByte uint32) string {
	return fmt.Sprintf("%s:%s:%d:%d", fileUUID, nodeType, startByte, endByte)
}

// ShapeHash computes the SHA-256, hex-encoded, of a framed encoding of
// (node_type, source_slice, ordered_child_shape_hashes):
//
//	"T|" + node_type
//	"|S|" + source_slice (raw bytes)
//	for each child in order: "|C|" + child_hex_digest
//
// The exact byte sequence matters, not just the fields hashed: a writer
// emitting any other framing would never match existing vertices.
func ShapeHash(nodeType string, sourceSlice []byte, childHashes []string) string {
	h := sha256.New()
	h.Write([]byte("T|"))
	h.Write([]byte(nodeType))
	h.Write([]byte("|S|"))
	h.Write(sourceSlice)
	for _, ch := range childHashes {
		h.Write([]byte("|C|"))
		h.Write([]byte(ch))
	}
	return hex.EncodeToString(h.Sum(nil))
}
