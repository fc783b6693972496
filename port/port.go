// Package port implements Port, the named typed slot through which a Node
// receives or emits values (spec §3/§4.3). Grounded on the teacher's
// internal/node.Node field layout (atomic state, exported getters, doc
// comment per field) generalised from the teacher's coarse per-node state
// machine down to a per-port value slot with its own connectivity flag.
package port

import (
	"sync"
	"sync/atomic"

	"github.com/flowrt/flowrt/iname"
	"github.com/flowrt/flowrt/typename"
	"github.com/flowrt/flowrt/value"
)

// Port is a named, typed slot on a node through which values enter or leave.
type Port struct {
	key          iname.IndexableName
	caption      string
	declaredType typename.TypeName
	required     bool
	index        uint64

	mu        sync.RWMutex
	data      value.Value
	connected atomic.Bool
}

// New constructs a Port. initial may be nil (no value set yet).
func New(key iname.IndexableName, caption string, declaredType typename.TypeName, initial value.Value, required bool, index uint64) *Port {
	return &Port{
		key:          key,
		caption:      caption,
		declaredType: declaredType,
		required:     required,
		index:        index,
		data:         initial,
	}
}

// Key returns the port's indexable name.
func (p *Port) Key() iname.IndexableName { return p.key }

// Caption returns the port's human-readable label.
func (p *Port) Caption() string { return p.caption }

// DeclaredType returns the type the port was constructed with. The value
// currently held may carry a different (converted) type — ActualType
// reports that.
func (p *Port) DeclaredType() typename.TypeName { return p.declaredType }

// Required reports whether this port must always hold a non-nil value once
// set.
func (p *Port) Required() bool { return p.required }

// Index returns the port's declaration-order position among its siblings.
func (p *Port) Index() uint64 { return p.index }

// Connected reports whether this port currently participates in a
// Connection.
func (p *Port) Connected() bool { return p.connected.Load() }

// Data returns the port's currently held value, or nil if unset.
func (p *Port) Data() value.Value {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data
}

// ActualType returns the TypeName of the currently held value, falling back
// to DeclaredType when no value has been set yet.
func (p *Port) ActualType() typename.TypeName {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.data == nil {
		return p.declaredType
	}
	return p.data.Type()
}

// SetData implements the dual write-path from spec §4.3: a nil value on a
// required port is ignored outright; an empty slot, a nil incoming value, or
// an output-side write replaces the slot wholesale; otherwise the existing
// value's AssignFrom is used so a Reference-kind value keeps writing through
// to its bound external storage instead of being replaced by a fresh
// container.
func (p *Port) SetData(v value.Value, isOutput bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v == nil && p.required {
		return
	}
	if p.data == nil || v == nil || isOutput {
		p.data = v
		return
	}
	if !p.data.AssignFrom(v) {
		p.data = v
	}
}

// Connect marks the port connected and reports whether the flag actually
// flipped (false if it was already connected).
func (p *Port) Connect() bool {
	return p.connected.CompareAndSwap(false, true)
}

// Disconnect clears the connected flag and reports whether it actually
// flipped (false if it was already disconnected).
func (p *Port) Disconnect() bool {
	return p.connected.CompareAndSwap(true, false)
}
