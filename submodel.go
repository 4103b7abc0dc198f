package statetree

import (
	"context"

	"github.com/golang/glog"
)

// subModel is a Model-shaped view of a sub-tree, bound to its parent
// through the accessor path derived at construction. It owns no state and
// no subscriber table: every operation composes its prefix onto the
// parent's, so nested submodels cost O(depth) path composition and the
// root model does all diffing and dispatch.
type subModel struct {
	parent Model
	prefix Path
}

func (s *subModel) compose(sel Selector) Selector {
	return func(p *Proxy) *Proxy {
		if sel == nil {
			return nil
		}
		return sel(p.at(s.prefix))
	}
}

func identity(p *Proxy) *Proxy { return p }

func (s *subModel) Update(fn func(*Writer)) error {
	if fn == nil {
		return s.parent.Update(nil)
	}
	return s.parent.Update(func(w *Writer) {
		fn(w.at(s.prefix))
	})
}

func (s *subModel) UpdateFields(fields Fields) error {
	return s.parent.Update(func(w *Writer) {
		base := w.at(s.prefix)
		for name, value := range fields {
			base.Field(name).Set(value)
		}
	})
}

func (s *subModel) Subscribe(sel Selector, cb Callback) (*Token, error) {
	return s.parent.Subscribe(s.compose(sel), cb)
}

func (s *subModel) SubscribeMany(sels []Selector, cb func(values []interface{})) (*Token, error) {
	composed := make([]Selector, len(sels))
	for i, sel := range sels {
		composed[i] = s.compose(sel)
	}
	return s.parent.SubscribeMany(composed, cb)
}

func (s *subModel) Observe(cb Callback) (*Token, error) {
	return s.parent.Subscribe(s.compose(identity), cb)
}

func (s *subModel) Once(sel Selector) (<-chan interface{}, *Token, error) {
	return s.parent.Once(s.compose(sel))
}

func (s *subModel) Wait(ctx context.Context, sel Selector) (interface{}, error) {
	return s.parent.Wait(ctx, s.compose(sel))
}

func (s *subModel) Get(sel Selector) (interface{}, error) {
	return s.parent.Get(s.compose(sel))
}

func (s *subModel) State() interface{} {
	v, err := s.Get(identity)
	if err != nil {
		glog.V(1).Infof("submodel %s state unavailable: %v", s.prefix, err)
		return nil
	}
	return v
}

func (s *subModel) Snapshot() (interface{}, error) {
	v, err := s.Get(identity)
	if err != nil {
		return nil, err
	}
	return deepCopy(v)
}

func (s *subModel) Restore(snapshot interface{}) error {
	if len(s.prefix) == 0 {
		return s.parent.Restore(snapshot)
	}
	return s.parent.Update(func(w *Writer) {
		w.at(s.prefix).Set(snapshot)
	})
}

func (s *subModel) Submodel(sel Selector) (Model, error) {
	path, err := pathOf(sel)
	if err != nil {
		return nil, err
	}
	return &subModel{parent: s, prefix: path}, nil
}
