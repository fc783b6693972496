// Package uid wraps github.com/google/uuid into the opaque 128-bit identifier
// type used throughout flowrt for node, connection, and graph identity. The
// algorithmic design of UUID generation is out of scope for this module —
// google/uuid is the fixed-contract utility spec.md describes.
package uid

import "github.com/google/uuid"

// UUID is a 128-bit identifier with a canonical lowercase 8-4-4-4-12 hex text
// form. The zero value is the nil UUID, not a freshly generated one — use
// New to obtain a random identifier.
type UUID struct {
	v uuid.UUID
}

// New returns a randomly generated UUID (version 4).
func New() UUID {
	return UUID{v: uuid.New()}
}

// Parse parses the canonical 36-character text form into a UUID. It returns
// an error for any string that is not a legal textual form.
func Parse(s string) (UUID, error) {
	v, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, err
	}
	return UUID{v: v}, nil
}

// String renders the canonical lowercase 8-4-4-4-12 hyphenated form.
func (u UUID) String() string { return u.v.String() }

// IsNil reports whether u is the all-zero nil UUID.
func (u UUID) IsNil() bool { return u.v == uuid.Nil }

// Equal reports byte-for-byte equality between two UUIDs.
func (u UUID) Equal(other UUID) bool { return u.v == other.v }

// Hash folds the UUID's two 64-bit halves into one 64-bit value (XOR of the
// high and low halves).
func (u UUID) Hash() uint64 {
	b := u.v
	var hi, lo uint64
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(b[i])
	}
	for i := 8; i < 16; i++ {
		lo = lo<<8 | uint64(b[i])
	}
	return hi ^ lo
}

// MarshalText implements encoding.TextMarshaler so UUID values serialise to
// their canonical string form in the JSON save format.
func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UUID) UnmarshalText(text []byte) error {
	v, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	u.v = v
	return nil
}
