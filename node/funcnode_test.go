package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrt/flowrt/iname"
	"github.com/flowrt/flowrt/uid"
	"github.com/flowrt/flowrt/value"
)

func TestFunctionNodeReturnOnly(t *testing.T) {
	add := func(a, b int) int { return a + b }
	n, err := NewFunctionNode(context.Background(), uid.New(), "fn.add", "add", stubEnv{}, add)
	require.NoError(t, err)

	n.SetInputData(context.Background(), iname.New("a"), value.NewOwned(2), false)
	n.SetInputData(context.Background(), iname.New("b"), value.NewOwned(3), false)
	n.InvokeCompute(context.Background())

	got, ok := GetOutputDataAs[int](n, iname.New("return"))
	require.True(t, ok)
	assert.Equal(t, 5, got)
}

func TestFunctionNodeMissingInputIsSilentNoOp(t *testing.T) {
	add := func(a, b int) int { return a + b }
	n, err := NewFunctionNode(context.Background(), uid.New(), "fn.add", "add", stubEnv{}, add)
	require.NoError(t, err)

	var caught error
	n.OnError.Bind("watch", func(e error) { caught = e })

	n.SetInputData(context.Background(), iname.New("a"), value.NewOwned(2), true)

	assert.NoError(t, caught)
	_, ok := GetOutputDataAs[int](n, iname.New("return"))
	assert.False(t, ok)
}

func TestFunctionNodeOutputPointerParam(t *testing.T) {
	scale := func(a int, out *int) {
		*out = a * 10
	}
	n, err := NewFunctionNode(context.Background(), uid.New(), "fn.scale", "scale", stubEnv{}, scale)
	require.NoError(t, err)

	var emittedKey iname.IndexableName
	var emittedVal value.Value
	n.SetPropagate(func(_ context.Context, _ uid.UUID, key iname.IndexableName, v value.Value) {
		emittedKey, emittedVal = key, v
	})

	n.SetInputData(context.Background(), iname.New("a"), value.NewOwned(4), true)

	got, ok := GetOutputDataAs[int](n, iname.New("b"))
	require.True(t, ok)
	assert.Equal(t, 40, got)
	assert.Equal(t, "b", emittedKey.Label())
	gotEmitted, ok := value.Downcast[int](emittedVal)
	require.True(t, ok)
	assert.Equal(t, 40, gotEmitted)
}

func TestFunctionNodeRejectsMultiReturn(t *testing.T) {
	f := func(a int) (int, error) { return a, nil }
	_, err := NewFunctionNode(context.Background(), uid.New(), "fn.bad", "bad", stubEnv{}, f)
	assert.Error(t, err)
}

func TestFunctionNodeRejectsNonFunc(t *testing.T) {
	_, err := NewFunctionNode(context.Background(), uid.New(), "fn.bad", "bad", stubEnv{}, 5)
	assert.Error(t, err)
}
