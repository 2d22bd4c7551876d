// Package property describes a single persisted field of a class: where it
// is stored, how to read and write it on an instance and how to validate it.
package property

import (
	"fmt"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/datatype"
	"github.com/crodas/tuicha/adapter/decoder"
	"github.com/crodas/tuicha/domain"
)

// RuleRequired is the rule reported by [domain.ValidationError] when a
// required property is empty.
const RuleRequired = "required"

var (
	timeType     = reflect.TypeFor[time.Time]()
	dateTimeType = reflect.TypeFor[primitive.DateTime]()
	objectIDType = reflect.TypeFor[primitive.ObjectID]()
	zeroDateTime = primitive.NewDateTimeFromTime(time.Time{})
)

// Visibility tells how a property is reached on an instance.
type Visibility uint8

const (
	// Public properties are exported struct fields.
	Public Visibility = iota
	// Private properties are unexported struct fields, reached through the
	// [Accessor] the type implements.
	Private
)

// Accessor is implemented by types that persist unexported fields. The
// mapper never bypasses visibility: it reads and writes those fields only
// through these methods.
type Accessor interface {
	GetField(name string) (any, bool)
	SetField(name string, value any) bool
}

// IndexFlags are the index options declared on a property.
type IndexFlags struct {
	Indexed bool
	Unique  bool
	Sparse  bool
	Desc    bool
}

// Descriptor describes one persisted property of a class. It is immutable
// once built.
type Descriptor struct {
	// Class is the name of the owning class, used in errors.
	Class string
	// StorageName is the key of the property in stored documents.
	StorageName string
	// FieldName is the Go field name.
	FieldName string
	// Index is the field index sequence, as in [reflect.StructField.Index].
	Index []int
	// Type is the Go type of the field.
	Type       reflect.Type
	Kind       datatype.Kind
	Required   bool
	Validators []Validator
	Visibility Visibility
	IndexFlags
}

// IsID reports whether d is the identity property.
func (d *Descriptor) IsID() bool {
	return d.StorageName == domain.IDField
}

// ErrNotAssignable is returned by [Descriptor.SetValue] when a value cannot
// be stored in the field.
type ErrNotAssignable struct {
	Field string
	Value any
}

// Error implements [error].
func (e ErrNotAssignable) Error() string {
	return fmt.Sprintf("cannot assign %T to field %s", e.Value, e.Field)
}

// Value returns the value of the property on instance, a pointer to a
// struct. The second result is false when the field is unreachable, such as
// a promoted field behind a nil embedded pointer.
func (d *Descriptor) Value(instance any) (any, bool) {
	if d.Visibility == Private {
		acc, ok := instance.(Accessor)
		if !ok {
			return nil, false
		}
		return acc.GetField(d.FieldName)
	}
	f, ok := d.field(instance, false)
	if !ok {
		return nil, false
	}
	return f.Interface(), true
}

// SetValue stores value in the property of instance, converting it to the
// field type.
func (d *Descriptor) SetValue(instance any, value any) error {
	if d.Visibility == Private {
		acc, ok := instance.(Accessor)
		if !ok || !acc.SetField(d.FieldName, value) {
			return ErrNotAssignable{Field: d.FieldName, Value: value}
		}
		return nil
	}
	f, ok := d.field(instance, true)
	if !ok || !f.CanSet() {
		return ErrNotAssignable{Field: d.FieldName, Value: value}
	}
	conv, err := Convert(value, f.Type())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotAssignable{Field: d.FieldName, Value: value}, err)
	}
	f.Set(conv)
	return nil
}

// field walks Index from instance. When alloc is set, nil embedded
// pointers are allocated on the way.
func (d *Descriptor) field(instance any, alloc bool) (reflect.Value, bool) {
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return reflect.Value{}, false
	}
	for _, i := range d.Index {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !alloc || !v.CanSet() {
					return reflect.Value{}, false
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v, true
}

// Validate checks a serialized value. Empty values fail only when the
// property is required; validators run on non-empty values, in declaration
// order, and the first failure is returned.
func (d *Descriptor) Validate(value any) error {
	if IsEmpty(value) {
		if d.Required {
			return domain.ValidationError{Class: d.Class, Property: d.FieldName, Value: value, Rule: RuleRequired}
		}
		return nil
	}
	for _, v := range d.Validators {
		if !v.Func(value, v.Args...) {
			return domain.ValidationError{Class: d.Class, Property: d.FieldName, Value: value, Rule: v.Name}
		}
	}
	return nil
}

// IsEmpty reports whether v counts as absent for required properties: the
// empty values of [data.IsEmpty] and zero times.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case time.Time:
		return t.IsZero()
	case primitive.DateTime:
		return t == zeroDateTime
	}
	return data.IsEmpty(v)
}

// ErrIncompatible is returned by [Convert] when a value has no conversion to
// the requested type.
type ErrIncompatible struct {
	Value any
	Type  reflect.Type
}

// Error implements [error].
func (e ErrIncompatible) Error() string {
	return fmt.Sprintf("cannot convert %T to %s", e.Value, e.Type)
}

// Convert converts a dynamic value to t. Numbers convert between numeric
// types, lists become slices, documents become maps or structs and stored
// dates become [time.Time].
func Convert(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	switch {
	case t.Kind() == reflect.Pointer:
		elem, err := Convert(value, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	case v.Kind() == reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(t), nil
		}
		return Convert(v.Elem().Interface(), t)
	case t == timeType && v.Type() == dateTimeType:
		return reflect.ValueOf(value.(primitive.DateTime).Time().UTC()), nil
	case t == dateTimeType && v.Type() == timeType:
		return reflect.ValueOf(primitive.NewDateTimeFromTime(value.(time.Time))), nil
	case v.Type() == objectIDType && t.Kind() == reflect.String:
		return reflect.ValueOf(value.(primitive.ObjectID).Hex()).Convert(t), nil
	case isNumber(v.Kind()) && isNumber(t.Kind()),
		v.Kind() == reflect.String && t.Kind() == reflect.String,
		v.Kind() == reflect.Bool && t.Kind() == reflect.Bool:
		return v.Convert(t), nil
	case t.Kind() == reflect.Slice || t.Kind() == reflect.Array:
		return convertList(value, t)
	case t.Kind() == reflect.Map && t.Key().Kind() == reflect.String:
		return convertMap(value, t)
	case t.Kind() == reflect.Struct:
		if doc, ok := data.AsDocument(value); ok {
			ptr := reflect.New(t)
			if err := decoder.NewDecoder().Decode(doc, ptr.Interface()); err != nil {
				return reflect.Value{}, err
			}
			return ptr.Elem(), nil
		}
	}
	return reflect.Value{}, ErrIncompatible{Value: value, Type: t}
}

func convertList(value any, t reflect.Type) (reflect.Value, error) {
	lst, ok := data.AsList(value)
	if v := reflect.ValueOf(value); !ok && v.Kind() == reflect.Array {
		lst, ok = make([]any, v.Len()), true
		for n := range lst {
			lst[n] = v.Index(n).Interface()
		}
	}
	if !ok {
		return reflect.Value{}, ErrIncompatible{Value: value, Type: t}
	}
	var res reflect.Value
	if t.Kind() == reflect.Slice {
		res = reflect.MakeSlice(t, len(lst), len(lst))
	} else {
		res = reflect.New(t).Elem()
		lst = lst[:min(len(lst), t.Len())]
	}
	for n, item := range lst {
		conv, err := Convert(item, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		res.Index(n).Set(conv)
	}
	return res, nil
}

func convertMap(value any, t reflect.Type) (reflect.Value, error) {
	doc, ok := data.AsDocument(value)
	if !ok {
		return reflect.Value{}, ErrIncompatible{Value: value, Type: t}
	}
	res := reflect.MakeMapWithSize(t, len(doc))
	for k, item := range doc {
		conv, err := Convert(item, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		res.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), conv)
	}
	return res, nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
