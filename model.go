package statetree

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/golang/glog"
)

// Fields names top-level state fields to assign in one batch.
type Fields map[string]interface{}

// Model is the owner-facing surface of an observable state container.
// The root model owns the canonical state instance; submodels delegate to
// it through composed paths, so all diffing and dispatch lives in one
// place.
//
// Updates are single-writer: concurrent Update/Restore calls from
// multiple goroutines are out of contract unless the caller serializes
// them. Subscribing and disconnecting are safe from any goroutine.
type Model interface {
	// Update runs the callable against a write-recording Writer and
	// applies the recorded writes as one batch, then notifies every
	// affected subscription exactly once, in registration order.
	Update(fn func(*Writer)) error
	// UpdateFields assigns top-level fields as one batch.
	UpdateFields(fields Fields) error
	// Subscribe registers the callback against the selected path and
	// synchronously invokes it once with the current value before
	// returning.
	Subscribe(sel Selector, cb Callback) (*Token, error)
	// SubscribeMany registers one subscription unit over several paths;
	// the callback fires at most once per batch with all current values
	// positionally.
	SubscribeMany(sels []Selector, cb func(values []interface{})) (*Token, error)
	// Observe subscribes to the whole state.
	Observe(cb Callback) (*Token, error)
	// Once returns a channel delivering the selected value on the next
	// batch that affects it, after which the subscription is spent. The
	// channel is closed after delivery; disconnecting the token cancels
	// without delivery.
	Once(sel Selector) (<-chan interface{}, *Token, error)
	// Wait blocks until the next batch affecting the selected path and
	// returns the new value, or returns early when ctx is done.
	Wait(ctx context.Context, sel Selector) (interface{}, error)
	// Get reads the current value at the selected path.
	Get(sel Selector) (interface{}, error)
	// State returns the canonical state value. Callers must treat it as
	// read-only; all mutation goes through Update.
	State() interface{}
	// Snapshot returns a structurally independent deep copy of the
	// current state.
	Snapshot() (interface{}, error)
	// Restore replaces the state with the snapshot and notifies every
	// live subscriber unconditionally.
	Restore(snapshot interface{}) error
	// Submodel returns a view of the sub-tree the selector locates,
	// with the same Model surface.
	Submodel(sel Selector) (Model, error)
}

const defaultAccessorCacheSize = 1024

type model struct {
	state     interface{} // non-nil pointer to the state root
	accessors AccessorCache

	mu   sync.Mutex // guards subs
	subs []*subscription
}

// subscription entries in subs carry registration order by position.
type subscription struct {
	paths []Path
	event *Event
	multi bool

	// one-shot wait support
	once bool
	ch   chan interface{}
}

func (s *subscription) affectedBy(touched []Path) bool {
	for _, p := range s.paths {
		for _, q := range touched {
			if p.Affects(q) {
				return true
			}
		}
	}
	return false
}

func (s *subscription) fire(values []interface{}) error {
	if s.multi {
		return s.event.Fire(values)
	}
	return s.event.Fire(values[0])
}

func (s *subscription) String() string {
	if len(s.paths) == 1 {
		return s.paths[0].String()
	}
	return fmt.Sprintf("%v", s.paths)
}

// NewModel creates a root model owning the given state. The initial value
// must be a non-nil pointer to the application's state root, so that
// writes through paths are addressable. The model deep-copies the initial
// value; the caller's instance is not retained.
func NewModel(initial interface{}) (Model, error) {
	if initial == nil {
		return nil, errors.New("initial state must be a non-nil pointer")
	}
	v := reflect.ValueOf(initial)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return nil, fmt.Errorf("initial state must be a non-nil pointer, got %T", initial)
	}
	state, err := deepCopy(initial)
	if err != nil {
		return nil, fmt.Errorf("copy initial state: %w", err)
	}
	return &model{
		state:     state,
		accessors: NewAccessorCache(defaultAccessorCacheSize),
	}, nil
}

func (m *model) Update(fn func(*Writer)) error {
	if fn == nil {
		return errors.New("nil update callable")
	}
	rec := &recorder{}
	fn(&Writer{rec: rec})
	if rec.err != nil {
		return rec.err
	}
	if len(rec.writes) == 0 {
		return nil
	}
	if glog.V(2) {
		glog.Infof("applying batch of %d writes", len(rec.writes))
	}
	touched := make([]Path, 0, len(rec.writes))
	for _, wr := range rec.writes {
		changed, err := writeAt(m.state, wr.path, wr.value, m.accessors)
		if err != nil {
			return fmt.Errorf("apply write: %w", err)
		}
		if changed {
			touched = append(touched, wr.path)
		}
	}
	if len(touched) == 0 {
		return nil
	}
	return m.dispatch(touched, false)
}

func (m *model) UpdateFields(fields Fields) error {
	return m.Update(func(w *Writer) {
		for name, value := range fields {
			w.Field(name).Set(value)
		}
	})
}

// dispatch notifies subscriptions whose paths are affected by the touched
// paths, or every subscription when everything is set, reading current
// values after the batch. Direct subscriptions fire first, in
// registration order; one-shot waiters are resumed after them and
// removed.
func (m *model) dispatch(touched []Path, everything bool) error {
	m.mu.Lock()
	live := make([]*subscription, len(m.subs))
	copy(live, m.subs)
	m.mu.Unlock()

	var firstErr error
	var woken []*subscription
	for _, sub := range live {
		if !everything && !sub.affectedBy(touched) {
			continue
		}
		if sub.once {
			woken = append(woken, sub)
			continue
		}
		values, err := m.subValues(sub)
		if err != nil {
			// Values commonly disappear after whole-record writes and
			// restores; skip the notification.
			glog.V(1).Infof("skipping notification for %s: %v", sub, err)
			continue
		}
		if err := sub.fire(values); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, sub := range woken {
		if !m.removeSub(sub) {
			continue // cancelled concurrently
		}
		values, err := m.subValues(sub)
		if err != nil {
			glog.V(1).Infof("skipping wakeup for %s: %v", sub, err)
			close(sub.ch)
			continue
		}
		sub.ch <- values[0]
		close(sub.ch)
	}
	return firstErr
}

func (m *model) subValues(sub *subscription) ([]interface{}, error) {
	values := make([]interface{}, len(sub.paths))
	for i, p := range sub.paths {
		v, err := valueAt(m.state, p, m.accessors)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		values[i] = v
	}
	return values, nil
}

func (m *model) addSub(sub *subscription) *Token {
	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()
	return &Token{disconnect: func() { m.removeSub(sub) }}
}

func (m *model) removeSub(sub *subscription) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.subs {
		if m.subs[i] == sub {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (m *model) Subscribe(sel Selector, cb Callback) (*Token, error) {
	path, err := pathOf(sel)
	if err != nil {
		return nil, err
	}
	sub := &subscription{paths: []Path{path}, event: NewEvent(path.String())}
	sub.event.Connect(cb)
	token := m.addSub(sub)
	values, err := m.subValues(sub)
	if err != nil {
		m.removeSub(sub)
		return nil, fmt.Errorf("subscribe %s: %w", path, err)
	}
	if err := sub.fire(values); err != nil {
		return token, err
	}
	return token, nil
}

func (m *model) SubscribeMany(sels []Selector, cb func(values []interface{})) (*Token, error) {
	if len(sels) == 0 {
		return nil, errors.New("no selectors")
	}
	paths := make([]Path, len(sels))
	for i, sel := range sels {
		p, err := pathOf(sel)
		if err != nil {
			return nil, err
		}
		paths[i] = p
	}
	sub := &subscription{
		paths: paths,
		event: NewEvent(fmt.Sprintf("%v", paths)),
		multi: true,
	}
	sub.event.Connect(func(v interface{}) { cb(v.([]interface{})) })
	token := m.addSub(sub)
	values, err := m.subValues(sub)
	if err != nil {
		m.removeSub(sub)
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	if err := sub.fire(values); err != nil {
		return token, err
	}
	return token, nil
}

func (m *model) Observe(cb Callback) (*Token, error) {
	return m.Subscribe(func(p *Proxy) *Proxy { return p }, cb)
}

func (m *model) Once(sel Selector) (<-chan interface{}, *Token, error) {
	path, err := pathOf(sel)
	if err != nil {
		return nil, nil, err
	}
	sub := &subscription{
		paths: []Path{path},
		once:  true,
		ch:    make(chan interface{}, 1),
	}
	m.addSub(sub)
	token := &Token{disconnect: func() {
		if m.removeSub(sub) {
			close(sub.ch)
		}
	}}
	return sub.ch, token, nil
}

func (m *model) Wait(ctx context.Context, sel Selector) (interface{}, error) {
	ch, token, err := m.Once(sel)
	if err != nil {
		return nil, err
	}
	select {
	case v, ok := <-ch:
		if !ok {
			return nil, errors.New("wait cancelled")
		}
		return v, nil
	case <-ctx.Done():
		token.Disconnect()
		return nil, ctx.Err()
	}
}

func (m *model) Get(sel Selector) (interface{}, error) {
	path, err := pathOf(sel)
	if err != nil {
		return nil, err
	}
	return valueAt(m.state, path, m.accessors)
}

func (m *model) State() interface{} {
	return m.state
}

func (m *model) Snapshot() (interface{}, error) {
	return deepCopy(m.state)
}

func (m *model) Restore(snapshot interface{}) error {
	if err := restoreInto(m.state, snapshot); err != nil {
		return err
	}
	// No finer-grained diff against the previous state is computed:
	// restoring is a full-tree invalidation.
	return m.dispatch(nil, true)
}

func (m *model) Submodel(sel Selector) (Model, error) {
	path, err := pathOf(sel)
	if err != nil {
		return nil, err
	}
	return &subModel{parent: m, prefix: path}, nil
}

func (m *model) String() string {
	return fmt.Sprintf("#<Model state=%v>", m.state)
}
