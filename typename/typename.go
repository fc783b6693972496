// Package typename implements TypeName, the stable string identifier per
// value type used to tag every flowrt value container and declare every
// port's type. Go has no compile-time template mechanism to derive this the
// way the original C++ system does (via a constexpr name), so TypeName is
// derived once per type via reflect.TypeOf and cached — the idiomatic Go
// substitute the spec's design notes call out explicitly (§9, "Dynamic
// dispatch over arbitrary value types": downcasts check a type tag rather
// than the host language's RTTI, so the mechanism stays portable).
package typename

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Universal is the escape-hatch type name: converting to it is always legal
// and always a no-op, mirroring the original's std::any.
const Universal = "any"

// TypeName carries a stable name for a static Go type plus the reference/
// const-ness flags the spec's conversion-registry normalisation logic
// depends on (lookup strips "const " and trailing "&").
type TypeName struct {
	name       string
	isRef      bool
	isConst    bool
	underlying reflect.Type
}

var cache sync.Map // reflect.Type -> TypeName

// Of derives the TypeName for T. Repeated calls for the same T return
// TypeNames that compare Equal (same underlying reflect.Type), satisfying
// the spec's "compile-time-derived stable string identifier" contract at
// runtime instead of at compile time.
func Of[T any]() TypeName {
	var zero T
	rt := reflect.TypeOf(&zero).Elem()
	return of(rt)
}

func of(rt reflect.Type) TypeName {
	if v, ok := cache.Load(rt); ok {
		return v.(TypeName)
	}
	tn := TypeName{name: friendlyName(rt), underlying: rt}
	actual, _ := cache.LoadOrStore(rt, tn)
	return actual.(TypeName)
}

func friendlyName(rt reflect.Type) string {
	if rt == nil {
		return "<nil>"
	}
	pkg := rt.PkgPath()
	if pkg == "" {
		return rt.String()
	}
	return rt.String()
}

// AsReference returns a TypeName identical to n except flagged as a
// reference binding (the "T&" form the spec's normalisation strips).
func (n TypeName) AsReference() TypeName {
	n.isRef = true
	return n
}

// AsConst returns a TypeName identical to n except flagged const (the
// "const T" form the spec's normalisation strips).
func (n TypeName) AsConst() TypeName {
	n.isConst = true
	return n
}

// IsReference reports whether this TypeName denotes a reference binding.
func (n TypeName) IsReference() bool { return n.isRef }

// IsConst reports whether this TypeName denotes a const binding.
func (n TypeName) IsConst() bool { return n.isConst }

// Underlying returns the reflect.Type this TypeName was derived from, or nil
// for a TypeName parsed from a raw string (e.g. read back from JSON) that
// was never resolved against a live Go type.
func (n TypeName) Underlying() reflect.Type { return n.underlying }

// String renders the qualified name, including the reference/const flags,
// e.g. "const int32&".
func (n TypeName) String() string {
	var sb strings.Builder
	if n.isConst {
		sb.WriteString("const ")
	}
	sb.WriteString(n.name)
	if n.isRef {
		sb.WriteString("&")
	}
	return sb.String()
}

// Equal compares type identity, ignoring the reference/const flags — per
// spec §4.2, lookup normalises those away before comparing.
func (n TypeName) Equal(other TypeName) bool {
	return n.name == other.name
}

// Bare returns the normalised name used as a conversion-registry lookup key:
// the type name without the reference/const flags (no leading "const ", no
// trailing "&").
func (n TypeName) Bare() string {
	return n.name
}

// Parse builds a TypeName purely from its textual form (as found in a saved
// graph's port declarations, or produced by String above), without a
// live reflect.Type backing it. Two TypeNames built this way compare Equal
// to one built via Of[T] iff their normalised names match.
func Parse(s string) TypeName {
	isConst := false
	if rest, ok := strings.CutPrefix(s, "const "); ok {
		isConst = true
		s = rest
	}
	isRef := false
	if rest, ok := strings.CutSuffix(s, "&"); ok {
		isRef = true
		s = rest
	}
	return TypeName{name: s, isRef: isRef, isConst: isConst}
}

// IsUniversal reports whether this TypeName is the escape-hatch "any" tag.
func (n TypeName) IsUniversal() bool { return n.Bare() == Universal }

// FromReflectType derives the TypeName for a reflect.Type directly, for
// code that only has a runtime reflect.Type in hand (no compile-time T) —
// the function-wrapped node adapter inspects an arbitrary function's
// signature via reflect and needs a TypeName per parameter/return type.
func FromReflectType(rt reflect.Type) TypeName {
	return of(rt)
}

// MustOf is a convenience for registration call sites that already know T is
// a concrete, non-generic type and want a single expression.
func MustOf[T any]() TypeName {
	tn := Of[T]()
	if tn.name == "" {
		panic(fmt.Sprintf("typename: could not derive name for %T", *new(T)))
	}
	return tn
}
