package sigbridge

import (
	"reflect"
)

// Materializer is implemented by lazy results, such as cursors, that must be
// turned into plain data before they are stored.
type Materializer interface {
	Materialize() (any, error)
}

// Freezer is implemented by results that know how to make an immutable copy
// of themselves.
type Freezer interface {
	Freeze() any
}

// transformResult prepares a data callback's result for storage.
func transformResult(v any, freeze bool) (any, error) {
	if m, ok := v.(Materializer); ok {
		var err error
		if v, err = m.Materialize(); err != nil {
			return nil, err
		}
	}

	if !freeze {
		return v, nil
	}
	return Freeze(v), nil
}

// Freeze returns a copy of v that shares no mutable memory with it.
// Values implementing Freezer are frozen by their own method, at any depth.
func Freeze(v any) any {
	if v == nil {
		return nil
	}

	if f, ok := v.(Freezer); ok {
		return f.Freeze()
	}

	return deepCopy(reflect.ValueOf(v), map[uintptr]reflect.Value{}).Interface()
}

var freezerType = reflect.TypeFor[Freezer]()

func deepCopy(v reflect.Value, seen map[uintptr]reflect.Value) reflect.Value {
	if v.CanInterface() && v.Type().Implements(freezerType) && !isNil(v) {
		frozen := reflect.ValueOf(v.Interface().(Freezer).Freeze())
		if frozen.IsValid() && frozen.Type().AssignableTo(v.Type()) {
			return frozen
		}
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		if cp, ok := seen[v.Pointer()]; ok {
			return cp
		}

		cp := reflect.New(v.Elem().Type())
		seen[v.Pointer()] = cp
		cp.Elem().Set(deepCopy(v.Elem(), seen))
		return cp

	case reflect.Interface:
		if v.IsNil() {
			return v
		}

		cp := reflect.New(v.Type()).Elem()
		cp.Set(deepCopy(v.Elem(), seen))
		return cp

	case reflect.Slice:
		if v.IsNil() {
			return v
		}

		cp := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := range v.Len() {
			cp.Index(i).Set(deepCopy(v.Index(i), seen))
		}
		return cp

	case reflect.Array:
		cp := reflect.New(v.Type()).Elem()
		for i := range v.Len() {
			cp.Index(i).Set(deepCopy(v.Index(i), seen))
		}
		return cp

	case reflect.Map:
		if v.IsNil() {
			return v
		}

		cp := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			cp.SetMapIndex(iter.Key(), deepCopy(iter.Value(), seen))
		}
		return cp

	case reflect.Struct:
		// unexported fields are copied shallowly
		cp := reflect.New(v.Type()).Elem()
		cp.Set(v)
		for i := range v.NumField() {
			if cp.Field(i).CanSet() {
				cp.Field(i).Set(deepCopy(v.Field(i), seen))
			}
		}
		return cp

	default:
		return v
	}
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
