package statetree

import (
	"sync"

	"github.com/golang/glog"
	"github.com/sourcegraph/conc/panics"
)

// Callback receives the current value of an observed location.
type Callback func(value interface{})

// Event is a minimal pub-sub primitive: an ordered list of callbacks.
// Connecting returns a Token that disconnects exactly that callback.
// Events are safe for concurrent Connect/Disconnect; Fire runs callbacks
// synchronously on the caller's goroutine.
type Event struct {
	mu      sync.Mutex
	name    string
	nextID  uint64
	entries []eventEntry
}

type eventEntry struct {
	id uint64
	cb Callback
}

// NewEvent creates an Event. The name appears in diagnostics only.
func NewEvent(name string) *Event {
	return &Event{name: name}
}

// Len returns the number of connected callbacks.
func (e *Event) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// Connect appends the callback to the event's list and returns a Token
// that removes it again.
func (e *Event) Connect(cb Callback) *Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.entries = append(e.entries, eventEntry{id: id, cb: cb})
	return &Token{disconnect: func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i := range e.entries {
			if e.entries[i].id == id {
				e.entries = append(e.entries[:i], e.entries[i+1:]...)
				return
			}
		}
	}}
}

// Fire invokes every connected callback with the value, in registration
// order. A panicking callback does not prevent the remaining callbacks
// from firing; the first recovered panic is returned as an error after
// all callbacks ran.
func (e *Event) Fire(value interface{}) error {
	e.mu.Lock()
	entries := make([]eventEntry, len(e.entries))
	copy(entries, e.entries)
	e.mu.Unlock()
	var firstErr error
	for _, entry := range entries {
		cb := entry.cb
		if r := panics.Try(func() { cb(value) }); r != nil {
			glog.Errorf("callback for %q panicked: %v", e.name, r)
			if firstErr == nil {
				firstErr = r.AsError()
			}
		}
	}
	return firstErr
}

// Token is a caller-held disconnect handle. Disconnecting twice is a
// no-op.
type Token struct {
	mu         sync.Mutex
	disconnect func()
}

// Disconnect removes the associated callback or subscription. Idempotent.
func (t *Token) Disconnect() {
	t.mu.Lock()
	d := t.disconnect
	t.disconnect = nil
	t.mu.Unlock()
	if d != nil {
		d()
	}
}
