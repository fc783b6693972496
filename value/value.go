// Package value implements the typed value container the spec calls
// NodeData[T]: an erased holder that carries a value of arbitrary static
// type through untyped ports while preserving a type tag and the ability to
// read/assign through a narrow, reflect-free interface.
//
// There is no single teacher file this is grounded on — the teacher's
// handler dispatch (run_resource.go, run_step.go) moves plain any values
// around and leans on reflect.Value.Call at the boundary instead of an
// erased container type. value.Value generalises that boundary-crossing
// idiom into a first-class, reusable type, in the spirit of
// birdayz-kstreams' kprocessor.Record[K, V] (a typed envelope carried
// through an otherwise untyped pipeline).
package value

import (
	"fmt"
	"reflect"
	"time"

	"github.com/flowrt/flowrt/typename"
)

// Kind distinguishes the storage discipline of a Value.
type Kind int

const (
	// Owned holds a T by value; assignment replaces it wholesale.
	Owned Kind = iota
	// Reference binds an external T, so writes propagate to that storage.
	Reference
	// Unique moves a single-owner T; it may be taken at most once.
	Unique
	// Pointer transparently wraps a raw/shared/weak-style pointer, rendering
	// a nil pointer as "None".
	Pointer
	// Duration holds a time.Duration constructed with a specific display
	// unit, per the spec's unit-conversion-on-construction requirement.
	Duration
)

func (k Kind) String() string {
	switch k {
	case Owned:
		return "owned"
	case Reference:
		return "reference"
	case Unique:
		return "unique"
	case Pointer:
		return "pointer"
	case Duration:
		return "duration"
	default:
		return "unknown"
	}
}

// Value is the type-erased interface every container variant implements.
type Value interface {
	// Type returns the TypeName of the value's originating static type.
	Type() typename.TypeName
	// Kind reports which storage discipline backs this Value.
	Kind() Kind
	// String renders a best-effort human representation. It never panics:
	// any internal failure is caught and rendered as "Error: <msg>".
	String() string
	// Ptr returns an opaque *T pointer to the held storage. Downcast uses it
	// with a compile-time-known T; packages that must bridge an erased Value
	// into reflect-driven code (the conversion registry's numeric/duration
	// families) use it with reflect.ValueOf(...).Elem() instead.
	Ptr() any
	// AssignFrom performs copy-assign if src carries the same type, else a
	// no-op; it reports whether the assignment took place. For a Reference
	// Value, the write goes through to the externally bound storage.
	AssignFrom(src Value) bool
}

// container is the generic implementation shared by Owned, Reference and
// Unique kinds. Pointer and Duration are specialised below since neither
// needs the full generic machinery and both have their own ToString rules.
type container[T any] struct {
	kind     Kind
	data     T
	ref      *T
	typ      typename.TypeName
	takenOut bool
}

// NewOwned constructs an Owned Value holding a copy of v.
func NewOwned[T any](v T) Value {
	return &container[T]{kind: Owned, data: v, typ: typename.Of[T]()}
}

// NewReference constructs a Reference Value bound to the external storage
// at p. Writes made through AssignFrom (and through SetData on the port
// that holds it) propagate to *p. The caller is responsible for ensuring p
// outlives the Value.
func NewReference[T any](p *T) Value {
	return &container[T]{kind: Reference, ref: p, typ: typename.Of[T]().AsReference()}
}

// NewUnique constructs a Unique Value that single-owns v. Take moves the
// value out exactly once; a second Take, or any read after one, observes
// the contained type's moved-from zero state.
func NewUnique[T any](v T) Value {
	return &container[T]{kind: Unique, data: v, typ: typename.Of[T]()}
}

func (c *container[T]) Type() typename.TypeName { return c.typ }
func (c *container[T]) Kind() Kind              { return c.kind }

func (c *container[T]) Ptr() any {
	if c.kind == Reference {
		return c.ref
	}
	return &c.data
}

func (c *container[T]) AssignFrom(src Value) bool {
	srcPtr, ok := src.Ptr().(*T)
	if !ok || srcPtr == nil {
		return false
	}
	switch c.kind {
	case Reference:
		*c.ref = *srcPtr
	default:
		c.data = *srcPtr
	}
	return true
}

func (c *container[T]) String() string {
	return renderSafely(func() string {
		var v T
		switch c.kind {
		case Reference:
			v = *c.ref
		default:
			v = c.data
		}
		return renderAny(v)
	})
}

// Take moves the value out of a Unique container. The second and later call
// returns the contained type's zero value and false.
func Take[T any](v Value) (T, bool) {
	c, ok := v.(*container[T])
	if !ok || c.kind != Unique {
		var zero T
		return zero, false
	}
	if c.takenOut {
		var zero T
		return zero, false
	}
	c.takenOut = true
	out := c.data
	c.data = *new(T)
	return out, true
}

// Downcast attempts to read v as a T. It succeeds iff v's type tag is
// exactly T; any mismatch (including nil v) yields the zero value and
// false, never an error — per spec §4.1/§7, a failed downcast is silent.
func Downcast[T any](v Value) (T, bool) {
	var zero T
	if v == nil {
		return zero, false
	}
	p, ok := v.Ptr().(*T)
	if !ok || p == nil {
		return zero, false
	}
	return *p, true
}

// renderSafely calls f and recovers from any panic, translating it into the
// spec's "Error: <msg>" fail-soft string so ToString never propagates.
func renderSafely(f func() string) string {
	var out string
	func() {
		defer func() {
			if r := recover(); r != nil {
				out = fmt.Sprintf("Error: %v", r)
			}
		}()
		out = f()
	}()
	return out
}

func renderAny(v any) string {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		if rv.IsNil() {
			return "None"
		}
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}

// pointerValue implements the Pointer variant: transparent wrapping of a
// raw/shared/weak-style pointer where a nil value always renders "None".
type pointerValue[T any] struct {
	p   T
	typ typename.TypeName
}

// NewPointerLike wraps p (expected to be a pointer, or a pointer-shaped
// type such as a *T wrapped in a small smart-pointer struct) so that
// String() renders "None" uniformly for a nil value instead of the
// language's default formatting.
func NewPointerLike[T any](p T) Value {
	return &pointerValue[T]{p: p, typ: typename.Of[T]()}
}

func (p *pointerValue[T]) Type() typename.TypeName { return p.typ }
func (p *pointerValue[T]) Kind() Kind              { return Pointer }
func (p *pointerValue[T]) Ptr() any                { return &p.p }
func (p *pointerValue[T]) AssignFrom(src Value) bool {
	srcPtr, ok := src.Ptr().(*T)
	if !ok || srcPtr == nil {
		return false
	}
	p.p = *srcPtr
	return true
}
func (p *pointerValue[T]) String() string {
	return renderSafely(func() string { return renderAny(p.p) })
}

// durationValue implements the Duration variant: construction performs a
// unit conversion (spec §3, "construction performs unit conversion between
// time granularities"), and ToString renders the integer tick count in the
// unit the value was constructed with, not a pretty-printed duration.
type durationValue struct {
	d    time.Duration
	unit time.Duration
}

// NewDuration converts count ticks of src into a time.Duration and remembers
// unit as the display granularity for ToString. For example
// NewDuration(1500, time.Millisecond, time.Second) stores 1.5s but renders
// "1" if display is time.Second, or "1500" if display is time.Millisecond.
func NewDuration(count int64, src, display time.Duration) Value {
	return &durationValue{d: time.Duration(count) * src, unit: display}
}

func (d *durationValue) Type() typename.TypeName { return typename.Of[time.Duration]() }
func (d *durationValue) Kind() Kind              { return Duration }
func (d *durationValue) Ptr() any                { return &d.d }
func (d *durationValue) AssignFrom(src Value) bool {
	srcPtr, ok := src.Ptr().(*time.Duration)
	if !ok || srcPtr == nil {
		return false
	}
	d.d = *srcPtr
	return true
}
func (d *durationValue) String() string {
	return renderSafely(func() string {
		if d.unit == 0 {
			return fmt.Sprint(int64(d.d))
		}
		return fmt.Sprint(int64(d.d / d.unit))
	})
}

// Duration returns the underlying time.Duration of a Duration-kind Value.
// Use AsDuration to read a duration from a Value of unknown kind.
func (d *durationValue) Duration() time.Duration { return d.d }

// AsDuration downcasts v to its time.Duration, regardless of whether it was
// constructed via NewDuration or NewOwned[time.Duration].
func AsDuration(v Value) (time.Duration, bool) {
	if dv, ok := v.(*durationValue); ok {
		return dv.d, true
	}
	return Downcast[time.Duration](v)
}

// reflectValue implements Value over a runtime reflect.Value instead of a
// compile-time-known T. Go's generics can't be instantiated from a
// reflect.Type, so code that only learns the element type at runtime — the
// function-wrapped node adapter inspecting an arbitrary func's signature —
// builds Values this way instead of through NewOwned.
type reflectValue struct {
	rv  reflect.Value // always addressable storage
	typ typename.TypeName
}

// FromReflect wraps v (any concrete Go value obtained via reflection) into
// an Owned-equivalent Value, tagging it with the TypeName derived from its
// runtime type.
func FromReflect(v any) Value {
	rv := reflect.New(reflect.TypeOf(v)).Elem()
	rv.Set(reflect.ValueOf(v))
	return &reflectValue{rv: rv, typ: typename.FromReflectType(rv.Type())}
}

func (r *reflectValue) Type() typename.TypeName { return r.typ }
func (r *reflectValue) Kind() Kind              { return Owned }
func (r *reflectValue) Ptr() any                { return r.rv.Addr().Interface() }
func (r *reflectValue) AssignFrom(src Value) bool {
	srcRV := reflect.ValueOf(src.Ptr())
	if !srcRV.IsValid() || srcRV.Type() != reflect.PointerTo(r.rv.Type()) {
		return false
	}
	r.rv.Set(srcRV.Elem())
	return true
}
func (r *reflectValue) String() string {
	return renderSafely(func() string { return renderAny(r.rv.Interface()) })
}
