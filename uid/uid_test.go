package uid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	x := New()
	parsed, err := Parse(x.String())
	require.NoError(t, err)
	assert.True(t, x.Equal(parsed))
}

func TestParseCanonicalForm(t *testing.T) {
	const text = "123e4567-e89b-12d3-a456-426614174000"
	u, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, text, u.String())
	assert.Len(t, u.String(), 36)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("not-a-uuid")
	assert.Error(t, err)
}

func TestNilUUID(t *testing.T) {
	var u UUID
	assert.True(t, u.IsNil())
	assert.False(t, New().IsNil())
}

func TestJSONRoundTrip(t *testing.T) {
	x := New()
	b, err := json.Marshal(x)
	require.NoError(t, err)

	var y UUID
	require.NoError(t, json.Unmarshal(b, &y))
	assert.True(t, x.Equal(y))
}
