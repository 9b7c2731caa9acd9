package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanKey_Deterministic(t *testing.T) {
	k1 := SpanKey("file-uuid-1", "identifier", 0, 5)
	k2 := SpanKey("file-uuid-1", "identifier", 0, 5)
	require.Equal(t, k1, k2)
	assert.Equal(t, "file-uuid-1:identifier:0:5", k1)
}

func TestSpanKey_DistinctOnAnyField(t *testing.T) {
	base := SpanKey("a", "identifier", 0, 5)
	assert.NotEqual(t, base, SpanKey("b", "identifier", 0, 5))
	assert.NotEqual(t, base, SpanKey("a", "integer", 0, 5))
	assert.NotEqual(t, base, SpanKey("a", "identifier", 1, 5))
	assert.NotEqual(t, base, SpanKey("a", "identifier", 0, 6))
}

func TestShapeHash_MatchesReferenceFraming(t *testing.T) {
	want := sha256.New()
	want.Write([]byte("T|"))
	want.Write([]byte("identifier"))
	want.Write([]byte("|S|"))
	want.Write([]byte("x"))
	want.Write([]byte("|C|"))
	want.Write([]byte("childhash1"))
	want.Write([]byte("|C|"))
	want.Write([]byte("childhash2"))

	got := ShapeHash("identifier", []byte("x"), []string{"childhash1", "childhash2"})
	assert.Equal(t, hex.EncodeToString(want.Sum(nil)), got)
}

func TestShapeHash_NoChildrenIsLeafHash(t *testing.T) {
	got := ShapeHash("integer", []byte("1"), nil)
	assert.Len(t, got, 64)
}

func TestShapeHash_EqualForIdenticalSubtrees(t *testing.T) {
	leaf := ShapeHash("pass_statement", []byte("pass"), nil)
	a := ShapeHash("block", []byte("pass"), []string{leaf})
	b := ShapeHash("block", []byte("pass"), []string{leaf})
	assert.Equal(t, a, b)
}

func TestShapeHash_DistinctForDifferentStructure(t *testing.T) {
	a := ShapeHash("block", []byte("pass"), []string{"h1"})
	b := ShapeHash("block", []byte("pass"), []string{"h1", "h2"})
	assert.NotEqual(t, a, b)
}

func TestShapeHash_UnicodeBytesPreservedExactly(t *testing.T) {
	src := []byte("x = \"héllo wörld\" 中文")
	a := ShapeHash("string", src, nil)
	b := ShapeHash("string", append([]byte(nil), src...), nil)
	assert.Equal(t, a, b)
}

func TestShapeHash_NoFramingCollisionBetweenTypeAndSlice(t *testing.T) {
	// "T|ab" + "|S|" + "c" must not collide with "T|a" + "|S|" + "b|S|c"-like
	// concatenations; the literal separators make the two inputs below
	// produce distinct digests despite similar raw bytes.
	a := ShapeHash("ab", []byte("c"), nil)
	b := ShapeHash("a", []byte("bc"), nil)
	assert.NotEqual(t, a, b)
}
