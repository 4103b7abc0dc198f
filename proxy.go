package statetree

import "errors"

// Proxy is the read-recording stand-in handed to selectors. Navigating it
// records the accessed path; it never touches real state and carries no
// values, so reading data out of a selector proxy is impossible by
// construction.
type Proxy struct {
	origin *Proxy
	path   Path
}

// Selector is a pure function extracting a location from a state-shaped
// proxy. It must return a proxy derived (by Field/Key/Index navigation)
// from its argument.
type Selector func(*Proxy) *Proxy

// Field records access to the named struct field.
func (p *Proxy) Field(name string) *Proxy {
	return &Proxy{origin: p.origin, path: p.path.child(FieldStep(name))}
}

// Key records access to a map key or slice index.
func (p *Proxy) Key(key interface{}) *Proxy {
	return &Proxy{origin: p.origin, path: p.path.child(KeyStep(key))}
}

// Index records access to a slice index. Shorthand for Key(i).
func (p *Proxy) Index(i int) *Proxy {
	return p.Key(i)
}

func (p *Proxy) at(path Path) *Proxy {
	return &Proxy{origin: p.origin, path: p.path.join(path)}
}

// pathOf runs the selector against a fresh recording proxy and returns the
// path it read.
func pathOf(sel Selector) (Path, error) {
	if sel == nil {
		return nil, errors.New("nil selector")
	}
	root := &Proxy{}
	root.origin = root
	out := sel(root)
	if out == nil || out.origin != root {
		return nil, errors.New("selector must return a proxy derived from its argument")
	}
	return out.path, nil
}

type write struct {
	path  Path
	value interface{}
}

// recorder collects the writes of one batch.
type recorder struct {
	writes []write
	err    error
}

func (r *recorder) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Writer is the write-recording stand-in handed to update callables. Every
// Set is recorded as a (path, value) pair without touching real state;
// the batch is applied after the callable returns. A Writer exposes no
// value reads, so the callable communicates only through writes.
type Writer struct {
	rec  *recorder
	path Path
}

// Field navigates to the named struct field.
func (w *Writer) Field(name string) *Writer {
	return &Writer{rec: w.rec, path: w.path.child(FieldStep(name))}
}

// Key navigates to a map key or slice index.
func (w *Writer) Key(key interface{}) *Writer {
	return &Writer{rec: w.rec, path: w.path.child(KeyStep(key))}
}

// Index navigates to a slice index. Shorthand for Key(i).
func (w *Writer) Index(i int) *Writer {
	return w.Key(i)
}

// Set records a write of the given value at the current path.
func (w *Writer) Set(value interface{}) {
	if len(w.path) == 0 {
		w.rec.fail(errors.New("cannot Set the state root; use Restore"))
		return
	}
	w.rec.writes = append(w.rec.writes, write{path: w.path, value: value})
}

func (w *Writer) at(path Path) *Writer {
	return &Writer{rec: w.rec, path: w.path.join(path)}
}
