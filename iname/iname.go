// Package iname provides IndexableName, a pair of a 64-bit string hash and a
// retained label. Two names compare equal iff their hashes are equal; the
// label never participates in comparison or hashing, it exists purely for
// diagnostics (error messages, logs, save/restore dumps).
package iname

import "hash/fnv"

// None is the reserved sentinel name used by ports and nodes to mean "no
// name" without resorting to a pointer or an empty interface.
var None = New("None")

// IndexableName is a (hash, label) pair. The zero value is not a valid name;
// always construct one with New.
type IndexableName struct {
	hash  uint64
	label string
}

// New computes a deterministic 64-bit hash of s and returns the resulting
// IndexableName, retaining s as the label for diagnostics.
//
// Hashing is explicitly out of scope for this module's design (spec treats
// it as a fixed-contract utility); hash/fnv's FNV-1a is the standard
// library's collision-resistant string hash and needs no third-party
// dependency to satisfy that contract.
func New(s string) IndexableName {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return IndexableName{hash: h.Sum64(), label: s}
}

// Hash returns the 64-bit hash used for equality and map keys.
func (n IndexableName) Hash() uint64 { return n.hash }

// Label returns the original string this name was constructed from. The
// label is for diagnostics only — never compare names by label.
func (n IndexableName) Label() string { return n.label }

// Equal reports whether two names share the same hash.
func (n IndexableName) Equal(other IndexableName) bool { return n.hash == other.hash }

// IsNone reports whether n is the reserved sentinel name.
func (n IndexableName) IsNone() bool { return n.hash == None.hash }

// String renders the label, for use in logs and error messages.
func (n IndexableName) String() string { return n.label }
