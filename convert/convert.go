// Package convert implements the runtime type-conversion registry: a
// two-level TypeName -> TypeName -> ConvertFn table that coerces a
// value.Value from whatever type it was constructed with to a port's
// declared type. Grounded on the teacher's internal/registry package, which
// validates wiring between node ports at graph-build time by comparing
// reflect.Type identity; flowrt generalises that validation step into an
// active coercion step, since ports here may carry heterogeneous types.
package convert

import (
	"fmt"

	"github.com/flowrt/flowrt/typename"
	"github.com/flowrt/flowrt/value"
)

// ConvertFn coerces a Value of one registered type into a Value of another.
// A ConvertFn that cannot perform the coercion returns an error rather than
// a nil Value, so the caller (typically Graph.PropagateConnectionsData) can
// route the failure to the receiving node's OnError.
type ConvertFn func(value.Value) (value.Value, error)

// Registry is the two-level TypeName -> TypeName -> ConvertFn table from
// spec §4.2. The zero Registry is not usable; construct with NewRegistry.
type Registry struct {
	table map[string]map[string]ConvertFn
}

// NewRegistry returns an empty conversion registry.
func NewRegistry() *Registry {
	return &Registry{table: make(map[string]map[string]ConvertFn)}
}

// RegisterUnidirectional registers fn as the From -> To conversion. Lookup
// always normalises both type names (stripping "const " and trailing "&")
// before consulting the table, so registering once under the bare names
// already covers every reference/const permutation of From and To — there
// is no separate permutation-registration step to perform.
func (r *Registry) RegisterUnidirectional(from, to typename.TypeName, fn ConvertFn) {
	fromKey, toKey := from.Bare(), to.Bare()
	bucket, ok := r.table[fromKey]
	if !ok {
		bucket = make(map[string]ConvertFn)
		r.table[fromKey] = bucket
	}
	bucket[toKey] = fn
}

// RegisterBidirectional registers aToB as From=a/To=b and bToA as the
// reverse.
func (r *Registry) RegisterBidirectional(a, b typename.TypeName, aToB, bToA ConvertFn) {
	r.RegisterUnidirectional(a, b, aToB)
	r.RegisterUnidirectional(b, a, bToA)
}

// RegisterComplete registers every ordered pair (types[i], types[j]), i != j,
// using make to build the ConvertFn for that pair. Used for the numeric and
// duration families, where a single factory can build the conversion
// function for any pair drawn from the family.
func (r *Registry) RegisterComplete(types []typename.TypeName, make func(from, to typename.TypeName) ConvertFn) {
	for _, from := range types {
		for _, to := range types {
			if from.Bare() == to.Bare() {
				continue
			}
			r.RegisterUnidirectional(from, to, make(from, to))
		}
	}
}

// Convert coerces v to the destination type, per the algorithm in spec
// §4.2. A nil v, an identity conversion, and a conversion to the universal
// escape type all short-circuit to returning v unchanged. A registry miss
// likewise returns v unchanged (the caller's downstream downcast then
// fails silently, per spec §7's "type mismatch on downcast" taxonomy entry).
func (r *Registry) Convert(v value.Value, to typename.TypeName) (value.Value, error) {
	if v == nil {
		return nil, nil
	}
	from := v.Type()
	if from.Bare() == to.Bare() || to.IsUniversal() {
		return v, nil
	}
	bucket, ok := r.table[from.Bare()]
	if !ok {
		return v, nil
	}
	fn, ok := bucket[to.Bare()]
	if !ok {
		return v, nil
	}
	out, err := fn(v)
	if err != nil {
		return nil, fmt.Errorf("convert %s to %s: %w", from.Bare(), to.Bare(), err)
	}
	return out, nil
}

// IsConvertible reports whether Convert(from, to) would find a coercion
// path, without performing the coercion.
func (r *Registry) IsConvertible(from, to typename.TypeName) bool {
	if from.Bare() == to.Bare() || to.IsUniversal() {
		return true
	}
	bucket, ok := r.table[from.Bare()]
	if !ok {
		return false
	}
	_, ok = bucket[to.Bare()]
	return ok
}
