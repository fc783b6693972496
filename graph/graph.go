// Package graph implements Graph, the topology of nodes and connections
// that owns edge propagation, save/restore, and traversal (spec §4.5).
// Grounded on src/Graph.cpp/include/flow/core/Graph.hpp in the original
// source for the exact algorithms (topology classification's boolean
// logic over port-connected flags, ConnectNodes/DisconnectNodes'
// idempotence rules, PropagateConnectionsData's per-connection task shape,
// Visit's BFS-plus-fallback-sweep), and on the teacher's internal/dag
// package for the Go field-layout idiom (RWMutex-guarded maps, exported
// getters returning defensive copies).
package graph

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/flowrt/flowrt/conn"
	"github.com/flowrt/flowrt/env"
	"github.com/flowrt/flowrt/iname"
	"github.com/flowrt/flowrt/node"
	"github.com/flowrt/flowrt/uid"
	"github.com/flowrt/flowrt/value"
)

type depthKey struct{}

// withDepth returns ctx carrying an incremented propagation-depth counter,
// used by PropagateConnectionsData to enforce Config.MaxPropagationDepth
// (spec §9, "Cycles in the topology").
func withDepth(ctx context.Context) context.Context {
	d, _ := ctx.Value(depthKey{}).(int)
	return context.WithValue(ctx, depthKey{}, d+1)
}

func depthOf(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// Graph is the set of nodes and connections making up one dataflow
// topology, plus the propagation logic that fans an emitted output out to
// every downstream input.
type Graph struct {
	env *env.Env

	nodesMu sync.RWMutex
	nodes   map[uid.UUID]*node.Node

	connMu       sync.RWMutex
	byStartNode  map[uid.UUID][]*conn.Connection
	byConnID     map[uid.UUID]*conn.Connection

	OnError node.EventDispatcher[error]
}

// New constructs an empty Graph bound to e — every node this Graph creates
// via Restore, and every propagation task it submits, runs through e's
// Factory and Pool.
func New(e *env.Env) *Graph {
	return &Graph{
		env:         e,
		nodes:       make(map[uid.UUID]*node.Node),
		byStartNode: make(map[uid.UUID][]*conn.Connection),
		byConnID:    make(map[uid.UUID]*conn.Connection),
	}
}

// Env returns the environment this Graph was constructed with.
func (g *Graph) Env() *env.Env { return g.env }

// AddNode registers n under its id and wires its EmitUpdate callback to
// this Graph's PropagateConnectionsData, so that subsequent updates on any
// of n's output ports fan out along this Graph's connections.
func (g *Graph) AddNode(n *node.Node) {
	if n == nil {
		return
	}
	n.SetPropagate(func(ctx context.Context, id uid.UUID, key iname.IndexableName, data value.Value) {
		g.PropagateConnectionsData(ctx, id, key, data)
	})
	g.nodesMu.Lock()
	g.nodes[n.ID()] = n
	g.nodesMu.Unlock()
}

// RemoveNode removes n's connections (as both start and end), stops it,
// and erases it from the node map. It is a no-op if n is nil or unknown.
func (g *Graph) RemoveNode(n *node.Node) {
	if n == nil {
		return
	}
	g.RemoveNodeByID(n.ID())
}

// RemoveNodeByID is RemoveNode's id-only form.
func (g *Graph) RemoveNodeByID(id uid.UUID) {
	g.connMu.Lock()
	for _, c := range g.byStartNode[id] {
		delete(g.byConnID, c.ID())
	}
	delete(g.byStartNode, id)
	for startID, conns := range g.byStartNode {
		kept := conns[:0]
		for _, c := range conns {
			if c.EndNode().Equal(id) {
				delete(g.byConnID, c.ID())
				continue
			}
			kept = append(kept, c)
		}
		g.byStartNode[startID] = kept
	}
	g.connMu.Unlock()

	g.nodesMu.Lock()
	n, ok := g.nodes[id]
	if ok {
		delete(g.nodes, id)
	}
	g.nodesMu.Unlock()

	if ok {
		n.Stop()
	}
}

// GetNode looks up a node by id.
func (g *Graph) GetNode(id uid.UUID) (*node.Node, bool) {
	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

func (g *Graph) snapshotNodes() []*node.Node {
	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()
	out := make([]*node.Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// GetSourceNodes returns every node with at least one connected output and
// no connected input (spec §4.5's topology classification).
func (g *Graph) GetSourceNodes() []*node.Node {
	return g.filterByTopology(func(hasIn, hasOut bool) bool { return hasOut && !hasIn })
}

// GetLeafNodes returns every node with at least one connected input and no
// connected output.
func (g *Graph) GetLeafNodes() []*node.Node {
	return g.filterByTopology(func(hasIn, hasOut bool) bool { return hasIn && !hasOut })
}

// GetOrphanNodes returns every node with no connected input and no
// connected output.
func (g *Graph) GetOrphanNodes() []*node.Node {
	return g.filterByTopology(func(hasIn, hasOut bool) bool { return !hasIn && !hasOut })
}

// DetectCycles reports whether the graph's connections form a cycle,
// naming the first node found involved in one. Cycles remain permitted —
// this is a diagnostic for a caller assembling a graph, not an enforced
// invariant — so it is never consulted by Run, Visit, or
// PropagateConnectionsData.
func (g *Graph) DetectCycles() error {
	nodes := g.snapshotNodes()

	permanent := make(map[uid.UUID]bool, len(nodes))
	temporary := make(map[uid.UUID]bool, len(nodes))

	var visit func(id uid.UUID) error
	visit = func(id uid.UUID) error {
		if permanent[id] {
			return nil
		}
		if temporary[id] {
			return fmt.Errorf("graph: cycle detected involving node %s", id)
		}
		temporary[id] = true

		g.connMu.RLock()
		outgoing := append([]*conn.Connection(nil), g.byStartNode[id]...)
		g.connMu.RUnlock()
		for _, c := range outgoing {
			if err := visit(c.EndNode()); err != nil {
				return err
			}
		}

		delete(temporary, id)
		permanent[id] = true
		return nil
	}

	for _, n := range nodes {
		if !permanent[n.ID()] {
			if err := visit(n.ID()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) filterByTopology(match func(hasConnectedIn, hasConnectedOut bool) bool) []*node.Node {
	var out []*node.Node
	for _, n := range g.snapshotNodes() {
		hasIn := anyConnected(n.InputPorts())
		hasOut := anyConnected(n.OutputPorts())
		if match(hasIn, hasOut) {
			out = append(out, n)
		}
	}
	return out
}

func anyConnected[T interface{ Connected() bool }](ports []T) bool {
	for _, p := range ports {
		if p.Connected() {
			return true
		}
	}
	return false
}

// CanConnect reports whether ConnectNodes(startNode, startKey, endNode,
// endKey) would currently succeed: both nodes and ports must exist, the
// end port must not already be connected, and the start port's declared
// type must be convertible to the end port's declared type.
func (g *Graph) CanConnect(startNode uid.UUID, startKey iname.IndexableName, endNode uid.UUID, endKey iname.IndexableName) bool {
	sn, ok := g.GetNode(startNode)
	if !ok {
		return false
	}
	en, ok := g.GetNode(endNode)
	if !ok {
		return false
	}
	sp, ok := sn.OutputPort(startKey)
	if !ok {
		return false
	}
	ep, ok := en.InputPort(endKey)
	if !ok {
		return false
	}
	if ep.Connected() {
		return false
	}
	return g.env.Factory().IsConvertible(sp.DeclaredType(), ep.DeclaredType())
}

func (g *Graph) findConnection(startNode uid.UUID, startKey iname.IndexableName, endNode uid.UUID, endKey iname.IndexableName) *conn.Connection {
	g.connMu.RLock()
	defer g.connMu.RUnlock()
	for _, c := range g.byStartNode[startNode] {
		if c.Matches(startNode, startKey, endNode, endKey) {
			return c
		}
	}
	return nil
}

// ConnectNodes wires startNode's output port to endNode's input port. A
// repeat call with the exact same tuple is idempotent and returns the
// existing Connection. Unlike the original — which silently returns nil
// when the end port is already wired from a *different* source — this
// rejects with an error, since flowrt's graphs are assembled
// programmatically rather than declaratively, and a caller overwriting a
// wire it didn't mean to touch is a bug worth surfacing loudly.
func (g *Graph) ConnectNodes(startNode uid.UUID, startKey iname.IndexableName, endNode uid.UUID, endKey iname.IndexableName) (*conn.Connection, error) {
	sn, ok := g.GetNode(startNode)
	if !ok {
		return nil, fmt.Errorf("graph: connect: start node %s not found", startNode)
	}
	en, ok := g.GetNode(endNode)
	if !ok {
		return nil, fmt.Errorf("graph: connect: end node %s not found", endNode)
	}
	sp, ok := sn.OutputPort(startKey)
	if !ok {
		return nil, fmt.Errorf("graph: connect: node %s has no output port %q", startNode, startKey.Label())
	}
	ep, ok := en.InputPort(endKey)
	if !ok {
		return nil, fmt.Errorf("graph: connect: node %s has no input port %q", endNode, endKey.Label())
	}

	if !ep.Connect() {
		if existing := g.findConnection(startNode, startKey, endNode, endKey); existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("graph: connect: input port %q on node %s is already connected from a different source", endKey.Label(), endNode)
	}
	sp.Connect()

	c := conn.New(startNode, startKey, endNode, endKey)
	g.connMu.Lock()
	g.byStartNode[startNode] = append(g.byStartNode[startNode], c)
	g.byConnID[c.ID()] = c
	g.connMu.Unlock()

	if data := sp.Data(); data != nil {
		g.PropagateConnectionsData(context.Background(), startNode, startKey, data)
	}
	return c, nil
}

// DisconnectNodes removes the connection matching the given tuple, clears
// the end port's data, and disconnects the end port; the start port is
// disconnected too, but only if no other connection still originates from
// it.
func (g *Graph) DisconnectNodes(startNode uid.UUID, startKey iname.IndexableName, endNode uid.UUID, endKey iname.IndexableName) error {
	g.connMu.Lock()
	conns := g.byStartNode[startNode]
	idx := -1
	for i, c := range conns {
		if c.Matches(startNode, startKey, endNode, endKey) {
			idx = i
			break
		}
	}
	if idx == -1 {
		g.connMu.Unlock()
		return fmt.Errorf("graph: disconnect: no connection %s.%s -> %s.%s", startNode, startKey.Label(), endNode, endKey.Label())
	}
	removed := conns[idx]
	remaining := append(append([]*conn.Connection(nil), conns[:idx]...), conns[idx+1:]...)
	g.byStartNode[startNode] = remaining
	delete(g.byConnID, removed.ID())
	startPortStillConnected := false
	for _, c := range remaining {
		if c.StartPort().Equal(startKey) {
			startPortStillConnected = true
			break
		}
	}
	g.connMu.Unlock()

	if en, ok := g.GetNode(endNode); ok {
		if ep, ok := en.InputPort(endKey); ok {
			ep.SetData(nil, true)
			ep.Disconnect()
		}
	}
	if !startPortStillConnected {
		if sn, ok := g.GetNode(startNode); ok {
			if sp, ok := sn.OutputPort(startKey); ok {
				sp.Disconnect()
			}
		}
	}
	return nil
}

// Run submits one task per source node — {lock node; node.InvokeCompute()}
// — to the environment's pool. No ordering between source nodes is
// guaranteed.
func (g *Graph) Run(ctx context.Context) {
	for _, n := range g.GetSourceNodes() {
		n := n
		g.env.Pool().AddTask(ctx, func(ctx context.Context) error {
			n.Lock()
			defer n.Unlock()
			n.InvokeCompute(ctx)
			return nil
		})
	}
}

// Visit performs a breadth-first traversal from the source nodes following
// outgoing connections, then visits any node not yet reached (orphans and
// cycle remnants still get visited exactly once). If, after both passes,
// fewer than every node was visited, OnError fires — a defensive
// backstop kept for parity with the original even though the fallback
// sweep means it should never actually trigger.
func (g *Graph) Visit(visit func(*node.Node)) {
	nodes := g.snapshotNodes()
	if len(nodes) == 0 {
		return
	}

	visited := make(map[uid.UUID]bool, len(nodes))
	queue := g.GetSourceNodes()
	for _, n := range queue {
		visited[n.ID()] = true
	}
	for i := 0; i < len(queue); i++ {
		cur := queue[i]
		visit(cur)
		g.connMu.RLock()
		outgoing := append([]*conn.Connection(nil), g.byStartNode[cur.ID()]...)
		g.connMu.RUnlock()
		for _, c := range outgoing {
			if visited[c.EndNode()] {
				continue
			}
			child, ok := g.GetNode(c.EndNode())
			if !ok {
				continue
			}
			visited[child.ID()] = true
			queue = append(queue, child)
		}
	}

	for _, n := range nodes {
		if !visited[n.ID()] {
			visit(n)
			visited[n.ID()] = true
		}
	}

	if len(visited) != len(nodes) {
		g.OnError.Broadcast(fmt.Errorf("graph: failed to visit some nodes in the graph"))
	}
}

// PropagateConnectionsData fans data out to every connection originating
// from (startNode, startKey), each as an independent pool task: lock the
// connection, look up and lock the receiver, coerce the value to the
// receiver port's declared type, and call SetInputData — which may
// recursively drive further computation. Any error is routed to OnError
// rather than returned, since this runs asynchronously on the pool.
func (g *Graph) PropagateConnectionsData(ctx context.Context, startNode uid.UUID, startKey iname.IndexableName, data value.Value) {
	g.connMu.RLock()
	outgoing := append([]*conn.Connection(nil), g.byStartNode[startNode]...)
	g.connMu.RUnlock()

	maxDepth := g.env.Config().MaxPropagationDepth
	depth := depthOf(ctx)
	if maxDepth > 0 && depth >= maxDepth {
		if en, ok := g.GetNode(startNode); ok {
			en.OnError.Broadcast(fmt.Errorf("graph: propagation depth exceeded %d hops, dropping update to break a feedback cycle", maxDepth))
		}
		return
	}
	taskCtx := withDepth(ctx)

	for _, c := range outgoing {
		c := c
		g.env.Pool().AddTask(taskCtx, func(ctx context.Context) error {
			c.Lock()
			defer c.Unlock()

			receiver, ok := g.GetNode(c.EndNode())
			if !ok {
				return nil
			}
			receiver.Lock()
			defer receiver.Unlock()

			port, ok := receiver.InputPort(c.EndPort())
			if !ok {
				return nil
			}
			converted, err := g.env.Factory().Convert(data, port.DeclaredType())
			if err != nil {
				receiver.OnError.Broadcast(fmt.Errorf("graph: propagate %s.%s -> %s.%s: %w", startNode, startKey.Label(), c.EndNode(), c.EndPort().Label(), err))
				return nil
			}
			receiver.SetInputData(ctx, c.EndPort(), converted, true)
			return nil
		})
	}
}

// Save yields {nodes, connections} per spec §6's canonical shape.
func (g *Graph) Save() (map[string]any, error) {
	var nodesJSON []any
	var errs error
	for _, n := range g.snapshotNodes() {
		saved, err := n.Save()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		nodesJSON = append(nodesJSON, saved)
	}
	if errs != nil {
		return nil, errs
	}

	var connsJSON []any
	g.connMu.RLock()
	for _, c := range g.byConnID {
		connsJSON = append(connsJSON, map[string]any{
			"in_id":       c.StartNode().String(),
			"in_var_name": c.StartPort().Label(),
			"out_id":      c.EndNode().String(),
			"out_var_name": c.EndPort().Label(),
		})
	}
	g.connMu.RUnlock()

	return map[string]any{
		"nodes":       nodesJSON,
		"connections": connsJSON,
	}, nil
}

// Restore rebuilds a graph from Save's shape, tolerating the legacy
// variants spec §6 describes: a node wrapped as {id, position,
// model: {class, name}}, and connection endpoints spelled in_key/out_key
// instead of in_var_name/out_var_name. Restoring into a graph that already
// holds a node with a saved id updates that node in place (via
// node.Node.Restore) rather than re-adding it — Open Question (b)'s
// idempotent-restore resolution.
func (g *Graph) Restore(nodesJSON, connectionsJSON []any) error {
	for _, raw := range nodesJSON {
		entry, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("graph: restore: node entry is not an object")
		}
		entry = unwrapLegacyModel(entry)

		idStr, _ := entry["id"].(string)
		if idStr == "" {
			return fmt.Errorf("graph: restore: node entry missing id")
		}
		id, err := uid.Parse(idStr)
		if err != nil {
			return fmt.Errorf("graph: restore: invalid node id %q: %w", idStr, err)
		}

		n, exists := g.GetNode(id)
		if !exists {
			className, _ := entry["class"].(string)
			name, _ := entry["name"].(string)
			n, err = g.env.Factory().CreateNode(className, id, name, g.env)
			if err != nil {
				return fmt.Errorf("graph: restore: node %s: %w", idStr, err)
			}
			g.AddNode(n)
		}
		if err := n.Restore(entry); err != nil {
			return fmt.Errorf("graph: restore: node %s: %w", idStr, err)
		}
	}

	for _, raw := range connectionsJSON {
		entry, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("graph: restore: connection entry is not an object")
		}
		inID, _ := entry["in_id"].(string)
		outID, _ := entry["out_id"].(string)
		inKey := firstString(entry, "in_key", "in_var_name")
		outKey := firstString(entry, "out_key", "out_var_name")

		startID, err := uid.Parse(inID)
		if err != nil {
			return fmt.Errorf("graph: restore: connection: invalid in_id %q: %w", inID, err)
		}
		endID, err := uid.Parse(outID)
		if err != nil {
			return fmt.Errorf("graph: restore: connection: invalid out_id %q: %w", outID, err)
		}

		if _, err := g.ConnectNodes(startID, iname.New(inKey), endID, iname.New(outKey)); err != nil {
			return fmt.Errorf("graph: restore: connect %s.%s -> %s.%s: %w", inID, inKey, outID, outKey, err)
		}
	}
	return nil
}

func unwrapLegacyModel(entry map[string]any) map[string]any {
	model, ok := entry["model"].(map[string]any)
	if !ok {
		return entry
	}
	out := make(map[string]any, len(entry)+len(model))
	for k, v := range entry {
		out[k] = v
	}
	for k, v := range model {
		out[k] = v
	}
	delete(out, "model")
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
