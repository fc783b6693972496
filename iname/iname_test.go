package iname

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeterministic(t *testing.T) {
	a := New("connection.out")
	b := New("connection.out")
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestLabelNotUsedForEquality(t *testing.T) {
	a := New("x")
	a2 := IndexableName{hash: a.Hash(), label: "completely different label"}
	assert.True(t, a.Equal(a2))
}

func TestDistinctStringsLowCollisionRate(t *testing.T) {
	seen := make(map[uint64]string)
	r := rand.New(rand.NewSource(1))
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	collisions := 0
	for i := 0; i < 10000; i++ {
		buf := make([]byte, 4)
		for j := range buf {
			buf[j] = alphabet[r.Intn(len(alphabet))]
		}
		s := string(buf)
		h := New(s).Hash()
		if prev, ok := seen[h]; ok && prev != s {
			collisions++
		}
		seen[h] = s
	}
	assert.Zero(t, collisions, "expected no hash collisions among 10000 random 4-char strings")
}

func TestNoneSentinel(t *testing.T) {
	require.True(t, None.IsNone())
	assert.False(t, New("something").IsNone())
	assert.Equal(t, "None", None.Label())
}
