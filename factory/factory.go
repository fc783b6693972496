// Package factory implements Factory, the node-class registry and
// conversion-registry facade (spec §4.6). Grounded on
// include/flow/core/NodeFactory.hpp/.cpp in the original source for the
// registration/construction contract, and on the teacher's
// internal/registry package for the registry-with-broadcast-events shape
// (RegisterNodeClass/UnregisterNodeClass notifying listeners the way the
// teacher's registry notifies on plugin registration).
package factory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/flowrt/flowrt/convert"
	"github.com/flowrt/flowrt/node"
	"github.com/flowrt/flowrt/typename"
	"github.com/flowrt/flowrt/uid"
	"github.com/flowrt/flowrt/value"
)

// Constructor builds a fully-sealed Node for a registered class. It mirrors
// the original's ConstructorHelper<T>(uuid, name, env) thunk shape.
type Constructor func(id uid.UUID, name string, env node.Env) (*node.Node, error)

// ClassEvent is the payload broadcast by OnNodeClassRegistered and
// OnNodeClassUnregistered.
type ClassEvent struct {
	Category     string
	ClassName    string
	FriendlyName string
}

// Factory is the node-class registry plus a *convert.Registry facade. It
// satisfies node.Env's Convert method indirectly through Env (spec §3's
// ownership summary has Env hold the Factory, not the other way around),
// so Factory itself never imports env.
type Factory struct {
	mu sync.RWMutex

	constructors  map[string]Constructor
	categories    map[string][]string // category -> class names, multimap per the original
	friendlyNames map[string]string

	conversions *convert.Registry

	OnNodeClassRegistered   node.EventDispatcher[ClassEvent]
	OnNodeClassUnregistered node.EventDispatcher[ClassEvent]
}

// New constructs an empty Factory. conversions may be nil, in which case
// convert.DefaultRegistry() is used — the numeric/chrono families spec §4.6
// requires the Env constructor to wire by default.
func New(conversions *convert.Registry) *Factory {
	if conversions == nil {
		conversions = convert.DefaultRegistry()
	}
	return &Factory{
		constructors:  make(map[string]Constructor),
		categories:    make(map[string][]string),
		friendlyNames: make(map[string]string),
		conversions:   conversions,
	}
}

// RegisterNodeClass stores ctor under className, files it under category,
// and records friendlyName, then broadcasts OnNodeClassRegistered. A
// className already registered is left untouched — first registration
// wins, matching the original's unordered_map::emplace semantics.
func (f *Factory) RegisterNodeClass(category, className, friendlyName string, ctor Constructor) {
	f.mu.Lock()
	_, exists := f.constructors[className]
	if !exists {
		f.constructors[className] = ctor
		f.categories[category] = append(f.categories[category], className)
		f.friendlyNames[className] = friendlyName
	}
	f.mu.Unlock()

	if !exists {
		f.OnNodeClassRegistered.Broadcast(ClassEvent{Category: category, ClassName: className, FriendlyName: friendlyName})
	}
}

// RegisterFunction instantiates the function-wrapped node adapter for fn
// and registers it under className, exactly as RegisterNodeClass would for
// a hand-written Behavior.
func (f *Factory) RegisterFunction(category, className, friendlyName string, fn any) {
	ctor := func(id uid.UUID, name string, env node.Env) (*node.Node, error) {
		return node.NewFunctionNode(context.Background(), id, className, name, env, fn)
	}
	f.RegisterNodeClass(category, className, friendlyName, ctor)
}

// UnregisterNodeClass removes className from category's registration and
// broadcasts OnNodeClassUnregistered. It is a no-op if className was never
// registered under category.
func (f *Factory) UnregisterNodeClass(category, className string) {
	f.mu.Lock()
	classes, ok := f.categories[category]
	if !ok {
		f.mu.Unlock()
		return
	}
	idx := -1
	for i, c := range classes {
		if c == className {
			idx = i
			break
		}
	}
	if idx == -1 {
		f.mu.Unlock()
		return
	}
	f.categories[category] = append(classes[:idx], classes[idx+1:]...)
	friendlyName := f.friendlyNames[className]
	delete(f.constructors, className)
	delete(f.friendlyNames, className)
	f.mu.Unlock()

	f.OnNodeClassUnregistered.Broadcast(ClassEvent{Category: category, ClassName: className, FriendlyName: friendlyName})
}

// CreateNode invokes the registered constructor for className. It returns
// an error, rather than the original's null SharedNode, for an
// unregistered class name — Go error returns are the idiomatic substitute
// for a caller having to null-check a shared_ptr.
func (f *Factory) CreateNode(className string, id uid.UUID, name string, env node.Env) (*node.Node, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[className]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("factory: class %q is not registered", className)
	}
	return ctor(id, name, env)
}

// GetCategories returns the category -> class-names multimap, sorted
// within each category for deterministic iteration.
func (f *Factory) GetCategories() map[string][]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string][]string, len(f.categories))
	for cat, classes := range f.categories {
		cp := append([]string(nil), classes...)
		sort.Strings(cp)
		out[cat] = cp
	}
	return out
}

// GetFriendlyName returns the display name className was registered under,
// or "" if className is unknown.
func (f *Factory) GetFriendlyName(className string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.friendlyNames[className]
}

// RegisterUnidirectional is the conversion-registry facade described in
// spec §4.6; it delegates directly to the Factory's *convert.Registry.
func (f *Factory) RegisterUnidirectional(from, to typename.TypeName, fn convert.ConvertFn) {
	f.conversions.RegisterUnidirectional(from, to, fn)
}

// RegisterBidirectional delegates to the underlying *convert.Registry.
func (f *Factory) RegisterBidirectional(a, b typename.TypeName, aToB, bToA convert.ConvertFn) {
	f.conversions.RegisterBidirectional(a, b, aToB, bToA)
}

// RegisterCompleteConversion delegates to the underlying *convert.Registry.
func (f *Factory) RegisterCompleteConversion(types []typename.TypeName, make func(from, to typename.TypeName) convert.ConvertFn) {
	f.conversions.RegisterComplete(types, make)
}

// Convert delegates to the underlying *convert.Registry. Factory itself
// satisfies node.Env's Convert method through this, so an Env that embeds
// a *Factory gets it for free.
func (f *Factory) Convert(v value.Value, to typename.TypeName) (value.Value, error) {
	return f.conversions.Convert(v, to)
}

// IsConvertible delegates to the underlying *convert.Registry.
func (f *Factory) IsConvertible(from, to typename.TypeName) bool {
	return f.conversions.IsConvertible(from, to)
}
