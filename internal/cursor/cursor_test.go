package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/astgraph/api"
)

func TestRoundTrip(t *testing.T) {
	token := Encode("/b.py", 42)
	got, err := Decode(token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/b.py", got.Sort)
	assert.Equal(t, int64(42), got.ID)
}

func TestRoundTrip_EmptySortValue(t *testing.T) {
	token := Encode("", 0)
	got, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "", got.Sort)
	assert.Equal(t, int64(0), got.ID)
}

func TestDecode_MalformedIsInvalidInput(t *testing.T) {
	_, err := Decode("not-valid-base64!!!")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidInput)
}

func TestDecode_ValidBase64ButNotJSONIsInvalidInput(t *testing.T) {
	_, err := Decode("bm90anNvbg==") // "notjson"
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidInput)
}

func TestDecode_EmptyStringIsNilCursorNoError(t *testing.T) {
	c, err := Decode("")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestEncodeCursor_NilInNilOut(t *testing.T) {
	assert.Nil(t, EncodeCursor(nil))
}
