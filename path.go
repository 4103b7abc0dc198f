package statetree

import (
	"fmt"
	"strings"
)

type stepKind uint8

const (
	stepField stepKind = iota
	stepKey
)

// Step is a single accessor in a Path: either a named struct field or a
// slice index/map key. Keys must be comparable values (the same key type
// must be used by selectors and writers addressing the same location).
type Step struct {
	kind stepKind
	key  interface{}
}

// FieldStep makes a named-field accessor.
func FieldStep(name string) Step {
	return Step{kind: stepField, key: name}
}

// KeyStep makes an index/key accessor.
func KeyStep(key interface{}) Step {
	return Step{kind: stepKey, key: key}
}

// Path is an ordered sequence of accessors locating a value inside a state
// tree. Paths are produced by running selectors or update callables against
// a recording proxy; they are plain values and safe to retain.
type Path []Step

// Equal indicates the two paths have the same accessor sequence.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix indicates the given path is a (non-strict) prefix of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Affects indicates a write to one path is observable at the other: true
// iff either path is a prefix of the other (writing a record invalidates
// its sub-fields, and writing a sub-field invalidates watchers of the
// whole record). The relation is symmetric and includes equality.
func (p Path) Affects(other Path) bool {
	return p.HasPrefix(other) || other.HasPrefix(p)
}

func (p Path) child(s Step) Path {
	c := make(Path, len(p)+1)
	copy(c, p)
	c[len(p)] = s
	return c
}

func (p Path) join(other Path) Path {
	if len(other) == 0 {
		return p
	}
	c := make(Path, len(p)+len(other))
	copy(c, p)
	copy(c[len(p):], other)
	return c
}

// String renders the path for diagnostics, e.g. "Employees[1].LastName".
// The empty path (the state root) renders as "$".
func (p Path) String() string {
	if len(p) == 0 {
		return "$"
	}
	var b strings.Builder
	for i, s := range p {
		switch s.kind {
		case stepField:
			if i > 0 {
				b.WriteByte('.')
			}
			fmt.Fprintf(&b, "%v", s.key)
		case stepKey:
			fmt.Fprintf(&b, "[%v]", s.key)
		}
	}
	return b.String()
}
