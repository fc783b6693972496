package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnedRoundTrip(t *testing.T) {
	v := NewOwned(42)
	got, ok := Downcast[int](v)
	require.True(t, ok)
	assert.Equal(t, 42, got)
	assert.Equal(t, Owned, v.Kind())
}

func TestDowncastWrongTypeFails(t *testing.T) {
	v := NewOwned(42)
	_, ok := Downcast[string](v)
	assert.False(t, ok)
}

func TestReferenceWritesThrough(t *testing.T) {
	backing := 1
	v := NewReference(&backing)
	src := NewOwned(99)
	ok := v.AssignFrom(src)
	require.True(t, ok)
	assert.Equal(t, 99, backing)
}

func TestAssignFromTypeMismatchNoop(t *testing.T) {
	v := NewOwned(1)
	ok := v.AssignFrom(NewOwned("not an int"))
	assert.False(t, ok)
	got, _ := Downcast[int](v)
	assert.Equal(t, 1, got)
}

func TestUniqueTakeOnce(t *testing.T) {
	v := NewUnique("payload")
	got, ok := Take[string](v)
	require.True(t, ok)
	assert.Equal(t, "payload", got)

	_, ok = Take[string](v)
	assert.False(t, ok)
}

func TestPointerLikeRendersNoneForNil(t *testing.T) {
	var p *int
	v := NewPointerLike(p)
	assert.Equal(t, "None", v.String())

	x := 7
	v2 := NewPointerLike(&x)
	assert.NotEqual(t, "None", v2.String())
}

func TestDurationRendersConstructedUnit(t *testing.T) {
	v := NewDuration(1500, time.Millisecond, time.Second)
	assert.Equal(t, "1", v.String())

	d, ok := AsDuration(v)
	require.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, d)
}

func TestStringNeverPanics(t *testing.T) {
	v := NewOwned(struct{ X int }{X: 1})
	assert.NotPanics(t, func() { _ = v.String() })
}

func TestFromReflectRoundTrip(t *testing.T) {
	v := FromReflect(int32(9))
	got, ok := Downcast[int32](v)
	require.True(t, ok)
	assert.Equal(t, int32(9), got)
}

func TestFromReflectAssignFrom(t *testing.T) {
	v := FromReflect(int32(1))
	ok := v.AssignFrom(NewOwned(int32(2)))
	require.True(t, ok)
	got, _ := Downcast[int32](v)
	assert.Equal(t, int32(2), got)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "owned", Owned.String())
	assert.Equal(t, "reference", Reference.String())
	assert.Equal(t, "unique", Unique.String())
	assert.Equal(t, "pointer", Pointer.String())
	assert.Equal(t, "duration", Duration.String())
}
