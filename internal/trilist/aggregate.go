package trilist

import (
	"fmt"
	"reflect"
)

// Aggregate is a named (select, combine, storage type) triple registered
// with a list. Values are type-erased on their way through the adapter and
// re-checked against the aggregate's Go type when read back.
//
// Construct with NewAggregate; the zero value is not usable.
type Aggregate[V any] struct {
	name        string
	storageType string
	resultType  reflect.Type
	selectFn    func(V) any
	combineFn   func(any, any) (any, error)
	decodeFn    func(any) (any, error)
}

// NewAggregate builds an aggregate from typed select and combine
// functions. combine must be associative; storageType is the declared
// column type for the value column (e.g. "DOUBLE PRECISION", "INT8").
func NewAggregate[V any, A any](name string, sel func(V) A, combine func(A, A) A, storageType string) Aggregate[V] {
	rt := reflect.TypeOf((*A)(nil)).Elem()
	return Aggregate[V]{
		name:        name,
		storageType: storageType,
		resultType:  rt,
		selectFn:    func(v V) any { return sel(v) },
		combineFn: func(x, y any) (any, error) {
			xa, ok := x.(A)
			if !ok {
				return nil, fmt.Errorf("%w: combine got %T, want %s", ErrTypeMismatch, x, rt)
			}
			ya, ok := y.(A)
			if !ok {
				return nil, fmt.Errorf("%w: combine got %T, want %s", ErrTypeMismatch, y, rt)
			}
			return combine(xa, ya), nil
		},
		decodeFn: func(raw any) (any, error) {
			return decodeAs(rt, raw)
		},
	}
}

// Name reports the name the aggregate was registered under.
func (a Aggregate[V]) Name() string { return a.name }

// StorageType reports the declared value column type.
func (a Aggregate[V]) StorageType() string { return a.storageType }

// decodeAs maps a backend-returned value onto the Go type the caller
// registered. Exact matches pass through; []byte is accepted for string;
// numeric kinds convert to the declared numeric kind (drivers widen or
// narrow, e.g. sqlite hands back int64 for a whole-valued INT8 column).
// Anything else is a type mismatch.
func decodeAs(t reflect.Type, raw any) (any, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: stored value is null, want %s", ErrTypeMismatch, t)
	}
	rv := reflect.ValueOf(raw)
	if rv.Type() == t {
		return raw, nil
	}
	if bs, ok := raw.([]byte); ok && t.Kind() == reflect.String {
		return string(bs), nil
	}
	if numericKind(rv.Kind()) && numericKind(t.Kind()) {
		return rv.Convert(t).Interface(), nil
	}
	return nil, fmt.Errorf("%w: stored value is %T, want %s", ErrTypeMismatch, raw, t)
}

func numericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
