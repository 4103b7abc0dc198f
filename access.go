package statetree

import (
	"errors"
	"fmt"
	"math"
	"reflect"
)

type fieldCacheKey struct {
	t    reflect.Type
	name string
}

func fieldIndex(t reflect.Type, name string, cache AccessorCache) ([]int, error) {
	key := fieldCacheKey{t: t, name: name}
	if cache != nil {
		if cached, ok := cache.Get(key); ok {
			return cached.([]int), nil
		}
	}
	f, ok := t.FieldByName(name)
	if !ok {
		return nil, fmt.Errorf("no field %q in %s", name, t)
	}
	if !f.IsExported() {
		return nil, fmt.Errorf("field %q in %s is unexported", name, t)
	}
	if cache != nil {
		cache.Add(key, f.Index)
	}
	return f.Index, nil
}

// indirect dereferences pointers and interfaces until a concrete
// container is reached.
func indirect(v reflect.Value) (reflect.Value, error) {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v, errors.New("nil container")
		}
		v = v.Elem()
	}
	return v, nil
}

// stepValue descends one accessor into the container.
func stepValue(v reflect.Value, s Step, cache AccessorCache) (reflect.Value, error) {
	v, err := indirect(v)
	if err != nil {
		return v, err
	}
	switch s.kind {
	case stepField:
		if v.Kind() != reflect.Struct {
			return v, fmt.Errorf("cannot access field %v on %s", s.key, v.Type())
		}
		idx, err := fieldIndex(v.Type(), s.key.(string), cache)
		if err != nil {
			return v, err
		}
		return v.FieldByIndex(idx), nil
	case stepKey:
		switch v.Kind() {
		case reflect.Slice, reflect.Array:
			i, ok := s.key.(int)
			if !ok {
				return v, fmt.Errorf("index into %s must be an int, got %T", v.Type(), s.key)
			}
			if i < 0 || i >= v.Len() {
				return v, fmt.Errorf("index %d out of range (len %d)", i, v.Len())
			}
			return v.Index(i), nil
		case reflect.Map:
			if v.IsNil() {
				return v, errors.New("nil map")
			}
			kv, err := mapKey(v.Type(), s.key)
			if err != nil {
				return v, err
			}
			mv := v.MapIndex(kv)
			if !mv.IsValid() {
				return v, fmt.Errorf("key %v not present in %s", s.key, v.Type())
			}
			return mv, nil
		default:
			return v, fmt.Errorf("cannot index into %s", v.Type())
		}
	}
	return v, fmt.Errorf("unhandled step kind %d", s.kind)
}

func mapKey(mapType reflect.Type, key interface{}) (reflect.Value, error) {
	kv := reflect.ValueOf(key)
	if !kv.IsValid() {
		return kv, errors.New("nil map key")
	}
	if !kv.Type().AssignableTo(mapType.Key()) {
		return kv, fmt.Errorf("key type %T does not match %s", key, mapType)
	}
	return kv, nil
}

// valueAt reads the current value at the given path. The empty path
// returns the root itself.
func valueAt(root interface{}, path Path, cache AccessorCache) (interface{}, error) {
	if len(path) == 0 {
		return root, nil
	}
	v := reflect.ValueOf(root)
	var err error
	for i, s := range path {
		v, err = stepValue(v, s, cache)
		if err != nil {
			return nil, fmt.Errorf("at %s: %w", path[:i+1], err)
		}
	}
	return v.Interface(), nil
}

// writeAt writes through to the real state at the given path, reporting
// whether the stored value actually changed. Writing a value equal to the
// current one (NaN counting as equal to NaN) is not a change.
func writeAt(root interface{}, path Path, value interface{}, cache AccessorCache) (bool, error) {
	if len(path) == 0 {
		return false, errors.New("empty write path")
	}
	v := reflect.ValueOf(root)
	var err error
	for i, s := range path[:len(path)-1] {
		v, err = stepValue(v, s, cache)
		if err != nil {
			return false, fmt.Errorf("at %s: %w", path[:i+1], err)
		}
	}
	changed, err := setStep(v, path[len(path)-1], value, cache)
	if err != nil {
		return false, fmt.Errorf("at %s: %w", path, err)
	}
	return changed, nil
}

func setStep(parent reflect.Value, s Step, value interface{}, cache AccessorCache) (bool, error) {
	parent, err := indirect(parent)
	if err != nil {
		return false, err
	}
	switch s.kind {
	case stepField:
		if parent.Kind() != reflect.Struct {
			return false, fmt.Errorf("cannot set field %v on %s", s.key, parent.Type())
		}
		idx, err := fieldIndex(parent.Type(), s.key.(string), cache)
		if err != nil {
			return false, err
		}
		return setValue(parent.FieldByIndex(idx), value)
	case stepKey:
		switch parent.Kind() {
		case reflect.Slice, reflect.Array:
			i, ok := s.key.(int)
			if !ok {
				return false, fmt.Errorf("index into %s must be an int, got %T", parent.Type(), s.key)
			}
			if i < 0 || i >= parent.Len() {
				return false, fmt.Errorf("index %d out of range (len %d)", i, parent.Len())
			}
			return setValue(parent.Index(i), value)
		case reflect.Map:
			if parent.IsNil() {
				return false, errors.New("cannot write into nil map")
			}
			kv, err := mapKey(parent.Type(), s.key)
			if err != nil {
				return false, err
			}
			nv, err := coerce(value, parent.Type().Elem())
			if err != nil {
				return false, err
			}
			cur := parent.MapIndex(kv)
			// A missing key is always a change.
			if cur.IsValid() && valuesEqual(cur, nv) {
				return false, nil
			}
			parent.SetMapIndex(kv, nv)
			return true, nil
		default:
			return false, fmt.Errorf("cannot index into %s", parent.Type())
		}
	}
	return false, fmt.Errorf("unhandled step kind %d", s.kind)
}

func setValue(target reflect.Value, value interface{}) (bool, error) {
	if !target.CanSet() {
		return false, fmt.Errorf("%s is not settable; reach it through addressable containers (store pointers in maps)", target.Type())
	}
	nv, err := coerce(value, target.Type())
	if err != nil {
		return false, err
	}
	if valuesEqual(target, nv) {
		return false, nil
	}
	target.Set(nv)
	return true, nil
}

func coerce(value interface{}, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		switch t.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot assign nil to %s", t)
	}
	v := reflect.ValueOf(value)
	if !v.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("cannot assign %T to %s", value, t)
	}
	return v, nil
}

func valuesEqual(cur, next reflect.Value) bool {
	if !cur.IsValid() || !next.IsValid() {
		return false
	}
	if cur.Kind() == reflect.Interface && !cur.IsNil() {
		cur = cur.Elem()
	}
	if next.Kind() == reflect.Interface && !next.IsNil() {
		next = next.Elem()
	}
	if isFloat(cur) && isFloat(next) &&
		math.IsNaN(cur.Float()) && math.IsNaN(next.Float()) {
		return true
	}
	return reflect.DeepEqual(cur.Interface(), next.Interface())
}

func isFloat(v reflect.Value) bool {
	return v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64
}
