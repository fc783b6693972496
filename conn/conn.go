// Package conn implements Connection, the directed edge between an output
// port on one node and an input port on another (spec §3). Grounded on the
// teacher's internal/dag.Link/Dependency pairing (a (from, to) tuple walked
// by the executor to decrement dependency counters), generalised here to
// carry its own per-edge lock since flowrt's propagation, unlike the
// teacher's one-shot DAG walk, can re-fire along the same edge many times.
package conn

import (
	"sync"

	"github.com/flowrt/flowrt/iname"
	"github.com/flowrt/flowrt/uid"
)

// Connection is the directed edge {start_node, start_port} -> {end_node,
// end_port}. Its Lock serialises successive propagation events along this
// edge, so two updates on the same edge never reach the receiver at the same
// time. The order in which queued propagation tasks acquire the Lock is not
// defined: with more than one pool worker, a later update can be delivered
// before an earlier one.
type Connection struct {
	id        uid.UUID
	startNode uid.UUID
	startPort iname.IndexableName
	endNode   uid.UUID
	endPort   iname.IndexableName

	mu sync.Mutex
}

// New constructs a Connection with a freshly generated id.
func New(startNode uid.UUID, startPort iname.IndexableName, endNode uid.UUID, endPort iname.IndexableName) *Connection {
	return &Connection{
		id:        uid.New(),
		startNode: startNode,
		startPort: startPort,
		endNode:   endNode,
		endPort:   endPort,
	}
}

// ID returns the connection's identity.
func (c *Connection) ID() uid.UUID { return c.id }

// StartNode returns the id of the node that owns the output port this
// connection originates from.
func (c *Connection) StartNode() uid.UUID { return c.startNode }

// StartPort returns the key of the output port this connection originates
// from.
func (c *Connection) StartPort() iname.IndexableName { return c.startPort }

// EndNode returns the id of the node that owns the input port this
// connection delivers to.
func (c *Connection) EndNode() uid.UUID { return c.endNode }

// EndPort returns the key of the input port this connection delivers to.
func (c *Connection) EndPort() iname.IndexableName { return c.endPort }

// Matches reports whether this connection has exactly the given endpoint
// tuple, used by Graph to enforce the "(start_node, start_port, end_node,
// end_port) is unique within a graph" invariant from spec §3.
func (c *Connection) Matches(startNode uid.UUID, startPort iname.IndexableName, endNode uid.UUID, endPort iname.IndexableName) bool {
	return c.startNode.Equal(startNode) && c.startPort.Equal(startPort) &&
		c.endNode.Equal(endNode) && c.endPort.Equal(endPort)
}

// Lock acquires the per-edge propagation lock.
func (c *Connection) Lock() { c.mu.Lock() }

// Unlock releases the per-edge propagation lock.
func (c *Connection) Unlock() { c.mu.Unlock() }
