// Package node implements Node, the executable vertex of a graph: ports,
// the compute contract, event dispatch, and save/restore (spec §4.4).
// Grounded on the teacher's internal/node.Node (exported atomic-state
// getters, doc comment per field) for texture, and on the original C++
// Node/Node.cpp for the exact contract this package reimplements in Go.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flowrt/flowrt/internal/ctxlog"
	"github.com/flowrt/flowrt/iname"
	"github.com/flowrt/flowrt/port"
	"github.com/flowrt/flowrt/typename"
	"github.com/flowrt/flowrt/uid"
	"github.com/flowrt/flowrt/value"
)

// Env is the slice of Env's behaviour a Node (and in particular the
// function-wrapped node adapter) needs. Node depends only on this
// interface, not on the env package itself, so that env can depend on
// factory and factory can depend on node without an import cycle.
type Env interface {
	Convert(v value.Value, to typename.TypeName) (value.Value, error)
	GetVar(name string) string
}

// PropagateFunc is the callback the owning Graph injects at AddNode time
// (spec §3, "every back-edge from node -> graph is a weak/raw callback"). It
// carries the context the triggering InvokeCompute/SetInputData call ran
// under, so a Graph can thread a propagation-depth budget across cascading
// hops (spec §9, "Cycles in the topology").
type PropagateFunc func(ctx context.Context, nodeID uid.UUID, key iname.IndexableName, data value.Value)

// PortEvent is the payload broadcast by OnSetInput and OnSetOutput.
type PortEvent struct {
	Key  iname.IndexableName
	Data value.Value
}

// EmitEvent is the payload broadcast by OnEmitOutput.
type EmitEvent struct {
	NodeID uid.UUID
	Key    iname.IndexableName
	Data   value.Value
}

// Behavior is implemented by node authors to supply the Compute method the
// original spec describes as overridable. InvokeCompute calls Compute and
// routes any returned error, or any recovered panic, to OnError instead of
// letting it propagate — matching the original's catch-everything
// InvokeCompute noexcept contract.
type Behavior interface {
	Compute(ctx context.Context, n *Node) error
}

// InputSaver is an optional Behavior extension; a Behavior that implements
// it controls what Node.Save embeds under "inputs". Behaviors that don't
// implement it get the spec's no-op default.
type InputSaver interface {
	SaveInputs(n *Node) (map[string]any, error)
}

// InputRestorer is the Restore-side counterpart of InputSaver.
type InputRestorer interface {
	RestoreInputs(n *Node, data map[string]any) error
}

// Node is a single vertex in a graph: a named, typed, compute-capable unit
// wired to upstream/downstream ports.
type Node struct {
	id          uid.UUID
	className   string
	displayName string
	env         Env
	behavior    Behavior

	log *slog.Logger

	mu sync.Mutex

	inputPorts  map[iname.IndexableName]*port.Port
	outputPorts map[iname.IndexableName]*port.Port
	inputOrder  []iname.IndexableName
	outputOrder []iname.IndexableName
	sealed      bool

	propagate PropagateFunc

	OnCompute    EventDispatcher[struct{}]
	OnSetInput   EventDispatcher[PortEvent]
	OnSetOutput  EventDispatcher[PortEvent]
	OnError      EventDispatcher[error]
	OnEmitOutput EventDispatcher[EmitEvent]
}

// New constructs a Node. behavior may be nil (a node that only emits data
// set on it from outside); InvokeCompute on a nil Behavior reports an error
// through OnError rather than panicking.
func New(ctx context.Context, id uid.UUID, className, displayName string, env Env, behavior Behavior) *Node {
	return &Node{
		id:          id,
		className:   className,
		displayName: displayName,
		env:         env,
		behavior:    behavior,
		log:         ctxlog.FromContext(ctx).With("nodeID", id.String(), "class", className),
		inputPorts:  make(map[iname.IndexableName]*port.Port),
		outputPorts: make(map[iname.IndexableName]*port.Port),
	}
}

// ID returns the node's identity within its owning graph.
func (n *Node) ID() uid.UUID { return n.id }

// Class returns the node's registered class name.
func (n *Node) Class() string { return n.className }

// Name returns the node's human-readable display name.
func (n *Node) Name() string { return n.displayName }

// SetName overrides the display name.
func (n *Node) SetName(name string) { n.displayName = name }

// Env returns the shared environment this node was constructed with.
func (n *Node) Env() Env { return n.env }

// Lock acquires the node's mutex, serialising Compute and SetInputData
// against each other and against a concurrent receiver access from a
// propagation task (spec §5, "per-node mutex").
func (n *Node) Lock() { n.mu.Lock() }

// Unlock releases the node's mutex.
func (n *Node) Unlock() { n.mu.Unlock() }

// Start is an overridable no-op hook run after creation but before the
// node is first driven.
func (n *Node) Start() {}

// Stop is an overridable no-op hook run when the node is removed from its
// graph.
func (n *Node) Stop() {}

// SetPropagate installs the graph-injected propagation callback. Called
// once, by Graph.AddNode.
func (n *Node) SetPropagate(fn PropagateFunc) { n.propagate = fn }

// AddInput registers an input port. Ports may only be added before the
// node is sealed (before its first use in a graph); spec §4.4 requires the
// port set be immutable afterward.
func (n *Node) AddInput(key iname.IndexableName, caption string, declaredType typename.TypeName, initial value.Value, required bool) *port.Port {
	if n.sealed {
		panic(fmt.Sprintf("node: cannot add input %q after node %s is sealed", key, n.id))
	}
	p := port.New(key, caption, declaredType, initial, required, uint64(len(n.inputOrder)))
	n.inputPorts[key] = p
	n.inputOrder = append(n.inputOrder, key)
	return p
}

// AddOutput registers an output port, same immutability rule as AddInput.
func (n *Node) AddOutput(key iname.IndexableName, caption string, declaredType typename.TypeName, initial value.Value) *port.Port {
	if n.sealed {
		panic(fmt.Sprintf("node: cannot add output %q after node %s is sealed", key, n.id))
	}
	p := port.New(key, caption, declaredType, initial, false, uint64(len(n.outputOrder)))
	n.outputPorts[key] = p
	n.outputOrder = append(n.outputOrder, key)
	return p
}

// AddRequiredInput registers a required input port bound to externally-owned
// storage: writes through the port assign into *storage via a Reference
// Value rather than replacing an owned container, and the port is marked
// required the way AddInput(..., required=true) would. It is a
// package-level function, not a method, because Go methods cannot carry
// their own type parameter independent of the receiver's.
func AddRequiredInput[T any](n *Node, key iname.IndexableName, caption string, storage *T) *port.Port {
	return n.AddInput(key, caption, typename.Of[T](), value.NewReference(storage), true)
}

// Seal freezes the port set. Called by a node's constructor once it has
// finished declaring its ports; the factory does not call it.
func (n *Node) Seal() { n.sealed = true }

// InputPort looks up a declared input port by key.
func (n *Node) InputPort(key iname.IndexableName) (*port.Port, bool) {
	p, ok := n.inputPorts[key]
	return p, ok
}

// OutputPort looks up a declared output port by key.
func (n *Node) OutputPort(key iname.IndexableName) (*port.Port, bool) {
	p, ok := n.outputPorts[key]
	return p, ok
}

// InputPorts returns the input ports in declaration order.
func (n *Node) InputPorts() []*port.Port {
	ports := make([]*port.Port, len(n.inputOrder))
	for i, k := range n.inputOrder {
		ports[i] = n.inputPorts[k]
	}
	return ports
}

// OutputPorts returns the output ports in declaration order.
func (n *Node) OutputPorts() []*port.Port {
	ports := make([]*port.Port, len(n.outputOrder))
	for i, k := range n.outputOrder {
		ports[i] = n.outputPorts[k]
	}
	return ports
}

// GetInputData returns the current value on an input port, or nil if the
// port is unknown or unset.
func (n *Node) GetInputData(key iname.IndexableName) value.Value {
	p, ok := n.inputPorts[key]
	if !ok {
		return nil
	}
	return p.Data()
}

// GetOutputData returns the current value on an output port, or nil if the
// port is unknown or unset.
func (n *Node) GetOutputData(key iname.IndexableName) value.Value {
	p, ok := n.outputPorts[key]
	if !ok {
		return nil
	}
	return p.Data()
}

// GetInputDataAs downcasts the value held on an input port to T. It reports
// false if the port is unknown, unset, or holds a different type — Go
// methods can't be generic, so this is a package-level function rather than
// a method on Node, unlike GetInputData's untyped form above.
func GetInputDataAs[T any](n *Node, key iname.IndexableName) (T, bool) {
	return value.Downcast[T](n.GetInputData(key))
}

// GetOutputDataAs is the output-port counterpart of GetInputDataAs.
func GetOutputDataAs[T any](n *Node, key iname.IndexableName) (T, bool) {
	return value.Downcast[T](n.GetOutputData(key))
}

// SetInputData writes v to an input port, broadcasts OnSetInput, and when
// compute is true drives InvokeCompute — the path by which propagated
// upstream updates recursively cascade through this node. ctx flows through
// to InvokeCompute and on to EmitUpdate if the resulting Compute call emits
// an output, so a Graph can bound cascade depth across hops.
func (n *Node) SetInputData(ctx context.Context, key iname.IndexableName, v value.Value, compute bool) {
	p, ok := n.inputPorts[key]
	if !ok {
		n.log.Warn("set data on unknown input port", "port", key.Label())
		return
	}
	p.SetData(v, false)
	n.OnSetInput.Broadcast(PortEvent{Key: key, Data: v})
	if compute {
		n.InvokeCompute(ctx)
	}
}

// SetOutputData writes v to an output port, broadcasts OnSetOutput, and
// when emit is true invokes EmitUpdate to fan the new value out along every
// connection originating from this port.
func (n *Node) SetOutputData(ctx context.Context, key iname.IndexableName, v value.Value, emit bool) {
	p, ok := n.outputPorts[key]
	if !ok {
		n.log.Warn("set data on unknown output port", "port", key.Label())
		return
	}
	p.SetData(v, true)
	n.OnSetOutput.Broadcast(PortEvent{Key: key, Data: v})
	if emit {
		n.EmitUpdate(ctx, key, v)
	}
}

// EmitUpdate invokes the graph-injected propagation callback and broadcasts
// OnEmitOutput. If no propagate callback has been installed (Graph.AddNode
// installs one), only OnEmitOutput is broadcast.
func (n *Node) EmitUpdate(ctx context.Context, key iname.IndexableName, v value.Value) {
	if n.propagate != nil {
		n.propagate(ctx, n.id, key, v)
	}
	n.OnEmitOutput.Broadcast(EmitEvent{NodeID: n.id, Key: key, Data: v})
}

// InvokeCompute calls the node's Behavior.Compute, catching both a returned
// error and any panic, and routes either through OnError instead of
// letting it escape — the Go equivalent of the original's catch-all
// InvokeCompute noexcept (spec §4.4, §7). On success it broadcasts
// OnCompute. It never panics itself and never returns an error to the
// caller: the scheduler that calls it must keep serving further tasks
// regardless of this node's outcome (spec §7, "Propagation policy").
func (n *Node) InvokeCompute(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("node %s panicked during compute: %v", n.id, r)
			n.log.Error("compute panicked", "error", err)
			n.OnError.Broadcast(err)
		}
	}()

	if n.behavior == nil {
		err := fmt.Errorf("node %s: no compute behavior installed", n.id)
		n.log.Error("invoke compute with no behavior", "error", err)
		n.OnError.Broadcast(err)
		return
	}

	if err := n.behavior.Compute(ctx, n); err != nil {
		n.log.Debug("compute reported an error", "error", err)
		n.OnError.Broadcast(err)
		return
	}

	n.OnCompute.Broadcast(struct{}{})
}

// setOutputDataQuiet writes v to an output port's storage without
// broadcasting anything, for callers (the function-wrapped node adapter)
// that want to update several output ports first and fan out the
// broadcasts together afterward via broadcastOutputUpdate.
func (n *Node) setOutputDataQuiet(key iname.IndexableName, v value.Value) {
	p, ok := n.outputPorts[key]
	if !ok {
		return
	}
	p.SetData(v, true)
}

// broadcastOutputUpdate re-broadcasts OnSetOutput and EmitUpdate for an
// output port's current value without writing to it first.
func (n *Node) broadcastOutputUpdate(ctx context.Context, key iname.IndexableName) {
	p, ok := n.outputPorts[key]
	if !ok {
		return
	}
	data := p.Data()
	n.OnSetOutput.Broadcast(PortEvent{Key: key, Data: data})
	n.EmitUpdate(ctx, key, data)
}

// Save yields {id, class, name, inputs} per spec §4.4. The default "inputs"
// object is empty unless the node's Behavior implements InputSaver.
func (n *Node) Save() (map[string]any, error) {
	inputs := map[string]any{}
	if saver, ok := n.behavior.(InputSaver); ok {
		var err error
		inputs, err = saver.SaveInputs(n)
		if err != nil {
			return nil, fmt.Errorf("node %s: save inputs: %w", n.id, err)
		}
	}
	return map[string]any{
		"id":     n.id.String(),
		"class":  n.className,
		"name":   n.displayName,
		"inputs": inputs,
	}, nil
}

// Restore parses {id, class, name, inputs} and updates this node in place,
// delegating to the Behavior's RestoreInputs when present. A missing id,
// class, or name is a fatal, synchronously surfaced error (spec §7,
// "Restore failure").
func (n *Node) Restore(j map[string]any) error {
	id, ok := j["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("node: restore: missing id")
	}
	class, ok := j["class"].(string)
	if !ok || class == "" {
		return fmt.Errorf("node: restore: missing class")
	}
	name, ok := j["name"].(string)
	if !ok || name == "" {
		return fmt.Errorf("node: restore: missing name")
	}

	parsed, err := uid.Parse(id)
	if err != nil {
		return fmt.Errorf("node: restore: invalid id %q: %w", id, err)
	}
	n.id = parsed
	n.className = class
	n.displayName = name

	if restorer, ok := n.behavior.(InputRestorer); ok {
		if inputs, ok := j["inputs"].(map[string]any); ok {
			if err := restorer.RestoreInputs(n, inputs); err != nil {
				return fmt.Errorf("node %s: restore inputs: %w", n.id, err)
			}
		}
	}
	return nil
}
