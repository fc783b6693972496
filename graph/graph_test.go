package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrt/flowrt/env"
	"github.com/flowrt/flowrt/iname"
	"github.com/flowrt/flowrt/node"
	"github.com/flowrt/flowrt/typename"
	"github.com/flowrt/flowrt/uid"
	"github.com/flowrt/flowrt/value"
)

// passthroughBehavior copies its "in" port to its "out" port, adding delta,
// and emits — used to build small source -> mid -> leaf chains in tests.
type passthroughBehavior struct {
	delta int32
	calls int
}

func (b *passthroughBehavior) Compute(ctx context.Context, n *node.Node) error {
	b.calls++
	in, ok := node.GetInputDataAs[int32](n, iname.New("in"))
	if !ok {
		return nil
	}
	n.SetOutputData(ctx, iname.New("out"), value.NewOwned(in+b.delta), true)
	return nil
}

// sinkBehavior records the last value it received on "in".
type sinkBehavior struct {
	last  int32
	seen  bool
	calls int
}

func (b *sinkBehavior) Compute(ctx context.Context, n *node.Node) error {
	b.calls++
	in, ok := node.GetInputDataAs[int32](n, iname.New("in"))
	if !ok {
		return nil
	}
	b.last, b.seen = in, true
	return nil
}

func newEnv(t *testing.T) *env.Env {
	t.Helper()
	return env.New(context.Background(), env.Config{PoolSize: 2})
}

func newSourceNode(e *env.Env) *node.Node {
	n := node.New(context.Background(), uid.New(), "test.source", "src", e, nil)
	n.AddOutput(iname.New("out"), "out", typename.Of[int32](), nil)
	n.Seal()
	return n
}

func newPassthroughNode(e *env.Env, behavior *passthroughBehavior) *node.Node {
	n := node.New(context.Background(), uid.New(), "test.passthrough", "mid", e, behavior)
	n.AddInput(iname.New("in"), "in", typename.Of[int32](), nil, false)
	n.AddOutput(iname.New("out"), "out", typename.Of[int32](), nil)
	n.Seal()
	return n
}

func newSinkNode(e *env.Env, behavior *sinkBehavior) *node.Node {
	n := node.New(context.Background(), uid.New(), "test.sink", "leaf", e, behavior)
	n.AddInput(iname.New("in"), "in", typename.Of[int32](), nil, false)
	n.Seal()
	return n
}

func TestAddNodeAndGetNode(t *testing.T) {
	e := newEnv(t)
	g := New(e)
	src := newSourceNode(e)
	g.AddNode(src)

	got, ok := g.GetNode(src.ID())
	require.True(t, ok)
	assert.Equal(t, src, got)

	_, ok = g.GetNode(uid.New())
	assert.False(t, ok)
}

func buildChain(t *testing.T) (g *Graph, src *node.Node, mid *node.Node, leaf *sinkBehavior, leafNode *node.Node) {
	t.Helper()
	e := newEnv(t)
	g = New(e)

	src = newSourceNode(e)
	midBehavior := &passthroughBehavior{delta: 1}
	mid = newPassthroughNode(e, midBehavior)
	leaf = &sinkBehavior{}
	leafNode = newSinkNode(e, leaf)

	g.AddNode(src)
	g.AddNode(mid)
	g.AddNode(leafNode)

	_, err := g.ConnectNodes(src.ID(), iname.New("out"), mid.ID(), iname.New("in"))
	require.NoError(t, err)
	_, err = g.ConnectNodes(mid.ID(), iname.New("out"), leafNode.ID(), iname.New("in"))
	require.NoError(t, err)
	return g, src, mid, leaf, leafNode
}

func TestTopologyClassification(t *testing.T) {
	g, src, mid, _, leafNode := buildChain(t)

	orphan := newSourceNode(g.Env())
	g.AddNode(orphan)

	sources := g.GetSourceNodes()
	require.Len(t, sources, 1)
	assert.Equal(t, src.ID(), sources[0].ID())

	leaves := g.GetLeafNodes()
	require.Len(t, leaves, 1)
	assert.Equal(t, leafNode.ID(), leaves[0].ID())

	orphans := g.GetOrphanNodes()
	require.Len(t, orphans, 1)
	assert.Equal(t, orphan.ID(), orphans[0].ID())

	for _, n := range append(append(sources, leaves...), orphans...) {
		assert.NotEqual(t, mid.ID(), n.ID())
	}
}

func TestCanConnect(t *testing.T) {
	e := newEnv(t)
	g := New(e)
	src := newSourceNode(e)
	mid := newPassthroughNode(e, &passthroughBehavior{delta: 1})
	g.AddNode(src)
	g.AddNode(mid)

	assert.True(t, g.CanConnect(src.ID(), iname.New("out"), mid.ID(), iname.New("in")))
	assert.False(t, g.CanConnect(src.ID(), iname.New("nope"), mid.ID(), iname.New("in")))
	assert.False(t, g.CanConnect(uid.New(), iname.New("out"), mid.ID(), iname.New("in")))
}

func TestConnectNodesIdempotentOnSameTuple(t *testing.T) {
	g, src, mid, _, _ := buildChain(t)

	c1, err := g.ConnectNodes(src.ID(), iname.New("out"), mid.ID(), iname.New("in"))
	require.NoError(t, err)
	assert.NotNil(t, c1)
}

func TestConnectNodesRejectsOverwriteFromDifferentSource(t *testing.T) {
	g, _, mid, _, _ := buildChain(t)
	other := newSourceNode(g.Env())
	g.AddNode(other)

	otherOut, _ := other.OutputPort(iname.New("out"))
	require.False(t, otherOut.Connected())

	_, err := g.ConnectNodes(other.ID(), iname.New("out"), mid.ID(), iname.New("in"))
	assert.Error(t, err)

	assert.False(t, otherOut.Connected(), "rejected connect must not leave the start port marked connected")
	orphans := g.GetOrphanNodes()
	found := false
	for _, n := range orphans {
		if n.ID().Equal(other.ID()) {
			found = true
		}
	}
	assert.True(t, found, "other should still classify as an orphan node")
}

func TestDisconnectNodesClearsDataAndDisconnectsPorts(t *testing.T) {
	g, src, mid, _, _ := buildChain(t)

	srcOut, _ := src.OutputPort(iname.New("out"))
	midIn, _ := mid.InputPort(iname.New("in"))
	assert.True(t, srcOut.Connected())
	assert.True(t, midIn.Connected())

	require.NoError(t, g.DisconnectNodes(src.ID(), iname.New("out"), mid.ID(), iname.New("in")))

	assert.False(t, midIn.Connected())
	assert.Nil(t, midIn.Data())
	assert.False(t, srcOut.Connected())
}

func TestDisconnectNodesKeepsStartPortConnectedIfOtherEdgesRemain(t *testing.T) {
	g, src, mid, _, _ := buildChain(t)
	other := newSinkNode(g.Env(), &sinkBehavior{})
	g.AddNode(other)
	_, err := g.ConnectNodes(src.ID(), iname.New("out"), other.ID(), iname.New("in"))
	require.NoError(t, err)

	require.NoError(t, g.DisconnectNodes(src.ID(), iname.New("out"), mid.ID(), iname.New("in")))

	srcOut, _ := src.OutputPort(iname.New("out"))
	assert.True(t, srcOut.Connected())
}

func TestDisconnectNodesUnknownConnectionErrors(t *testing.T) {
	g, src, mid, _, _ := buildChain(t)
	assert.Error(t, g.DisconnectNodes(src.ID(), iname.New("out"), mid.ID(), iname.New("nonexistent")))
}

func TestPropagateConnectionsDataCascadesThroughChain(t *testing.T) {
	g, src, _, leaf, _ := buildChain(t)

	src.SetOutputData(context.Background(), iname.New("out"), value.NewOwned(int32(5)), true)
	require.NoError(t, g.Env().Wait())

	assert.True(t, leaf.seen)
	assert.Equal(t, int32(6), leaf.last)
}

type countingBehavior struct{ calls int }

func (b *countingBehavior) Compute(ctx context.Context, n *node.Node) error {
	b.calls++
	return nil
}

func TestRunInvokesSourceNodes(t *testing.T) {
	e := newEnv(t)
	g := New(e)
	behavior := &countingBehavior{}
	src := node.New(context.Background(), uid.New(), "test.source", "src", e, behavior)
	src.AddOutput(iname.New("out"), "out", typename.Of[int32](), nil)
	src.Seal()
	mid := newPassthroughNode(e, &passthroughBehavior{delta: 1})
	g.AddNode(src)
	g.AddNode(mid)
	_, err := g.ConnectNodes(src.ID(), iname.New("out"), mid.ID(), iname.New("in"))
	require.NoError(t, err)

	g.Run(context.Background())
	require.NoError(t, e.Wait())

	assert.Equal(t, 1, behavior.calls)
}

func TestVisitCoversEveryNodeExactlyOnce(t *testing.T) {
	g, src, mid, _, leafNode := buildChain(t)
	orphan := newSourceNode(g.Env())
	g.AddNode(orphan)

	seen := map[uid.UUID]int{}
	g.Visit(func(n *node.Node) { seen[n.ID()]++ })

	for _, id := range []uid.UUID{src.ID(), mid.ID(), leafNode.ID(), orphan.ID()} {
		assert.Equal(t, 1, seen[id], "node %s visited %d times", id, seen[id])
	}
	assert.Len(t, seen, 4)
}

func TestDetectCyclesOnAcyclicChain(t *testing.T) {
	g, _, _, _, _ := buildChain(t)
	assert.NoError(t, g.DetectCycles())
}

func TestDetectCyclesFindsFeedbackEdge(t *testing.T) {
	e := newEnv(t)
	g := New(e)

	a := node.New(context.Background(), uid.New(), "test.cyclic", "a", e, &passthroughBehavior{delta: 1})
	a.AddInput(iname.New("in"), "in", typename.Of[int32](), nil, false)
	a.AddOutput(iname.New("out"), "out", typename.Of[int32](), nil)
	a.Seal()

	b := node.New(context.Background(), uid.New(), "test.cyclic", "b", e, &passthroughBehavior{delta: 1})
	b.AddInput(iname.New("in"), "in", typename.Of[int32](), nil, false)
	b.AddOutput(iname.New("out"), "out", typename.Of[int32](), nil)
	b.Seal()

	g.AddNode(a)
	g.AddNode(b)

	_, err := g.ConnectNodes(a.ID(), iname.New("out"), b.ID(), iname.New("in"))
	require.NoError(t, err)
	_, err = g.ConnectNodes(b.ID(), iname.New("out"), a.ID(), iname.New("in"))
	require.NoError(t, err)

	err = g.DetectCycles()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cycle detected")
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	g, src, _, _, _ := buildChain(t)

	saved, err := g.Save()
	require.NoError(t, err)
	nodesJSON, ok := saved["nodes"].([]any)
	require.True(t, ok)
	assert.Len(t, nodesJSON, 3)
	connsJSON, ok := saved["connections"].([]any)
	require.True(t, ok)
	assert.Len(t, connsJSON, 2)

	// Restore into a fresh graph via a factory that mints matching classes.
	restoreEnv := newEnv(t)
	restoreGraph := New(restoreEnv)
	restoreEnv.Factory().RegisterNodeClass("test", "test.source", "Source", func(id uid.UUID, name string, e node.Env) (*node.Node, error) {
		n := node.New(context.Background(), id, "test.source", name, e, nil)
		n.AddOutput(iname.New("out"), "out", typename.Of[int32](), nil)
		n.Seal()
		return n, nil
	})
	restoreEnv.Factory().RegisterNodeClass("test", "test.passthrough", "Passthrough", func(id uid.UUID, name string, e node.Env) (*node.Node, error) {
		n := node.New(context.Background(), id, "test.passthrough", name, e, &passthroughBehavior{delta: 1})
		n.AddInput(iname.New("in"), "in", typename.Of[int32](), nil, false)
		n.AddOutput(iname.New("out"), "out", typename.Of[int32](), nil)
		n.Seal()
		return n, nil
	})
	restoreEnv.Factory().RegisterNodeClass("test", "test.sink", "Sink", func(id uid.UUID, name string, e node.Env) (*node.Node, error) {
		n := node.New(context.Background(), id, "test.sink", name, e, &sinkBehavior{})
		n.AddInput(iname.New("in"), "in", typename.Of[int32](), nil, false)
		n.Seal()
		return n, nil
	})

	require.NoError(t, restoreGraph.Restore(nodesJSON, connsJSON))

	restoredSrc, ok := restoreGraph.GetNode(src.ID())
	require.True(t, ok)
	assert.Equal(t, "test.source", restoredSrc.Class())

	sources := restoreGraph.GetSourceNodes()
	require.Len(t, sources, 1)
	assert.Equal(t, src.ID(), sources[0].ID())
}

func TestRestoreToleratesLegacyConnectionKeys(t *testing.T) {
	e := newEnv(t)
	e.Factory().RegisterNodeClass("test", "test.source", "Source", func(id uid.UUID, name string, env node.Env) (*node.Node, error) {
		n := node.New(context.Background(), id, "test.source", name, env, nil)
		n.AddOutput(iname.New("out"), "out", typename.Of[int32](), nil)
		n.Seal()
		return n, nil
	})
	e.Factory().RegisterNodeClass("test", "test.sink", "Sink", func(id uid.UUID, name string, env node.Env) (*node.Node, error) {
		n := node.New(context.Background(), id, "test.sink", name, env, &sinkBehavior{})
		n.AddInput(iname.New("in"), "in", typename.Of[int32](), nil, false)
		n.Seal()
		return n, nil
	})
	g := New(e)

	srcID, endID := uid.New(), uid.New()
	nodesJSON := []any{
		map[string]any{"id": srcID.String(), "class": "test.source", "name": "src", "inputs": map[string]any{}},
		map[string]any{"id": endID.String(), "class": "test.sink", "name": "leaf", "inputs": map[string]any{}},
	}
	connsJSON := []any{
		map[string]any{"in_id": srcID.String(), "in_key": "out", "out_id": endID.String(), "out_key": "in"},
	}

	require.NoError(t, g.Restore(nodesJSON, connsJSON))

	srcNode, ok := g.GetNode(srcID)
	require.True(t, ok)
	out, _ := srcNode.OutputPort(iname.New("out"))
	assert.True(t, out.Connected())
}

func TestRestoreToleratesLegacyModelWrappedNode(t *testing.T) {
	e := newEnv(t)
	e.Factory().RegisterNodeClass("test", "test.source", "Source", func(id uid.UUID, name string, env node.Env) (*node.Node, error) {
		n := node.New(context.Background(), id, "test.source", name, env, nil)
		n.AddOutput(iname.New("out"), "out", typename.Of[int32](), nil)
		n.Seal()
		return n, nil
	})
	g := New(e)

	id := uid.New()
	nodesJSON := []any{
		map[string]any{
			"id":       id.String(),
			"position": map[string]any{"x": 1, "y": 2},
			"model":    map[string]any{"class": "test.source", "name": "src"},
		},
	}

	require.NoError(t, g.Restore(nodesJSON, nil))

	n, ok := g.GetNode(id)
	require.True(t, ok)
	assert.Equal(t, "test.source", n.Class())
	assert.Equal(t, "src", n.Name())
}

func TestRestoreIsIdempotentOnExistingNodeID(t *testing.T) {
	e := newEnv(t)
	g := New(e)
	src := newSourceNode(e)
	g.AddNode(src)

	nodesJSON := []any{
		map[string]any{"id": src.ID().String(), "class": src.Class(), "name": "renamed", "inputs": map[string]any{}},
	}
	require.NoError(t, g.Restore(nodesJSON, nil))

	got, ok := g.GetNode(src.ID())
	require.True(t, ok)
	assert.Same(t, src, got)
	assert.Equal(t, "renamed", got.Name())
}
