package datatype

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/domain"
)

// Hydrator builds an object of type t from a stored document. A nil t asks
// the hydrator to resolve the type from the document's class tag.
type Hydrator func(doc data.M, t reflect.Type) (any, error)

// ReferenceFactory builds a reference value from a {$ref, $id} document.
type ReferenceFactory func(doc data.M, opts RefOptions) (any, error)

// Caster converts dynamic values into a [Kind]. Scalar conversions are best
// effort: a value that cannot be converted is returned unchanged. Nested
// objects and references are delegated to the callbacks, which are the only
// source of errors.
type Caster struct {
	Hydrate   Hydrator
	Reference ReferenceFactory
}

// Cast converts v using a Caster without callbacks. Nested objects and
// references are returned as documents.
func Cast(v any, k Kind) any {
	res, _ := Caster{}.Cast(v, k)
	return res
}

// Cast converts v into k.
func (c Caster) Cast(v any, k Kind) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch k.tag {
	case Bool:
		return keep(v, cast.ToBoolE)
	case Int:
		return keep(v, toInt)
	case Float:
		return keep(v, cast.ToFloat64E)
	case String:
		return keep(v, cast.ToStringE)
	case Time:
		return toTime(v), nil
	case Array:
		return c.castList(v, k.Elem())
	case Class:
		doc, ok := data.AsDocument(v)
		if !ok || c.Hydrate == nil {
			return v, nil
		}
		return c.Hydrate(doc, k.class)
	case Reference:
		doc, ok := data.AsDocument(v)
		if !ok || c.Reference == nil || !doc.Has(domain.RefField) {
			return v, nil
		}
		return c.Reference(doc, k.ref)
	case Any:
		return c.castAny(v)
	}
	return v, nil
}

func (c Caster) castList(v any, elem Kind) (any, error) {
	lst, ok := data.AsList(v)
	if !ok {
		return v, nil
	}
	res := make([]any, len(lst))
	for n, item := range lst {
		var err error
		if res[n], err = c.Cast(item, elem); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// castAny walks untyped values looking for reference and class markers.
func (c Caster) castAny(v any) (any, error) {
	if doc, ok := data.AsDocument(v); ok {
		switch {
		case doc.Has(domain.RefField) && doc.Has(domain.RefIDField) && c.Reference != nil:
			return c.Reference(doc, RefOptions{})
		case doc.Has(domain.ClassField) && c.Hydrate != nil:
			return c.Hydrate(doc, nil)
		}
		res := make(data.M, len(doc))
		for key, value := range doc {
			var err error
			if res[key], err = c.castAny(value); err != nil {
				return nil, err
			}
		}
		return res, nil
	}
	if _, ok := v.([]any); ok {
		return c.castList(v, Kind{})
	}
	return v, nil
}

func keep[T any](v any, fn func(any) (T, error)) (any, error) {
	res, err := fn(v)
	if err != nil {
		return v, nil
	}
	return res, nil
}

// ErrOverflow is returned for unsigned values that do not fit an int.
type ErrOverflow struct {
	Value any
}

// Error implements [error].
func (e ErrOverflow) Error() string {
	return fmt.Sprintf("%v overflows int", e.Value)
}

func toInt(v any) (int, error) {
	if r := reflect.ValueOf(v); r.CanUint() && r.Uint() > math.MaxInt {
		return 0, ErrOverflow{Value: v}
	}
	return cast.ToIntE(v)
}

func toTime(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	}
	res, err := cast.ToTimeE(v)
	if err != nil {
		return v
	}
	return res
}
