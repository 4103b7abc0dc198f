package statetree

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/jinzhu/copier"
)

// deepCopy returns a structurally independent copy of src. Pointers copy
// to fresh pointers of the same type; everything else copies by value.
func deepCopy(src interface{}) (interface{}, error) {
	if src == nil {
		return nil, errors.New("cannot copy nil")
	}
	v := reflect.ValueOf(src)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return src, nil
		}
		dst := reflect.New(v.Type().Elem())
		if err := copier.CopyWithOption(dst.Interface(), src, copier.Option{DeepCopy: true}); err != nil {
			return nil, fmt.Errorf("deep copy: %w", err)
		}
		return dst.Interface(), nil
	}
	dst := reflect.New(v.Type())
	if err := copier.CopyWithOption(dst.Interface(), src, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("deep copy: %w", err)
	}
	return dst.Elem().Interface(), nil
}

// restoreInto deep-copies src over the value dst points at, in place, so
// the canonical state instance keeps its identity. The destination is
// zeroed first; map and slice contents are replaced, never merged.
func restoreInto(dst, src interface{}) error {
	if src == nil {
		return errors.New("cannot restore from nil")
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("restore target must be a non-nil pointer, got %T", dst)
	}
	v.Elem().Set(reflect.Zero(v.Elem().Type()))
	if err := copier.CopyWithOption(dst, src, copier.Option{DeepCopy: true}); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return nil
}
