// Package datatype describes the kind of value a property holds and casts
// the dynamic values read from the store into that kind.
package datatype

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Tag names the active variant of a [Kind].
type Tag uint8

// Supported kinds.
const (
	Any Tag = iota
	Bool
	Int
	Float
	String
	Time
	Array
	Class
	ID
	Reference
)

var tagNames = [...]string{
	Any:       "any",
	Bool:      "bool",
	Int:       "int",
	Float:     "float",
	String:    "string",
	Time:      "time",
	Array:     "array",
	Class:     "class",
	ID:        "id",
	Reference: "reference",
}

// String implements [fmt.Stringer].
func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", t)
}

var aliases = map[string]Tag{
	"":          Any,
	"any":       Any,
	"mixed":     Any,
	"bool":      Bool,
	"boolean":   Bool,
	"int":       Int,
	"integer":   Int,
	"float":     Float,
	"double":    Float,
	"number":    Float,
	"string":    String,
	"time":      Time,
	"date":      Time,
	"datetime":  Time,
	"array":     Array,
	"list":      Array,
	"id":        ID,
	"reference": Reference,
	"ref":       Reference,
}

var (
	timeType     = reflect.TypeFor[time.Time]()
	dateTimeType = reflect.TypeFor[primitive.DateTime]()
	objectIDType = reflect.TypeFor[primitive.ObjectID]()
	bytesType    = reflect.TypeFor[[]byte]()
)

// RefOptions configures a reference property.
type RefOptions struct {
	// CachedFields are copied from the target into the reference document
	// so they can be read without resolving it.
	CachedFields []string
	// ReadOnly references never cascade saves to their target.
	ReadOnly bool
}

// Kind is a tagged variant describing the value of a property. Exactly one
// variant is active; the zero Kind is [Any].
type Kind struct {
	tag   Tag
	elem  *Kind
	class reflect.Type
	ref   RefOptions
}

// Of returns the kind for a tag without parameters: scalars, [Time], [ID]
// and [Any]. Parameterized tags return a kind with default parameters.
func Of(tag Tag) Kind {
	return Kind{tag: tag}
}

// ArrayOf returns a list kind whose elements have the given kind.
func ArrayOf(elem Kind) Kind {
	return Kind{tag: Array, elem: &elem}
}

// ClassOf returns the kind of a nested object of type t. Pointer types are
// dereferenced.
func ClassOf(t reflect.Type) Kind {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return Kind{tag: Class, class: t}
}

// ReferenceTo returns a reference kind.
func ReferenceTo(opts RefOptions) Kind {
	return Kind{tag: Reference, ref: opts}
}

// Tag returns the active variant.
func (k Kind) Tag() Tag {
	return k.tag
}

// Elem returns the element kind of a list. It is [Any] for untyped lists and
// every other kind.
func (k Kind) Elem() Kind {
	if k.elem == nil {
		return Kind{}
	}
	return *k.elem
}

// Class returns the struct type of a [Class] kind, or nil.
func (k Kind) Class() reflect.Type {
	return k.class
}

// Ref returns the reference options of a [Reference] kind.
func (k Kind) Ref() RefOptions {
	return k.ref
}

// IsScalar reports whether k is a bool, int, float or string kind.
func (k Kind) IsScalar() bool {
	switch k.tag {
	case Bool, Int, Float, String:
		return true
	}
	return false
}

// String implements [fmt.Stringer].
func (k Kind) String() string {
	switch k.tag {
	case Array:
		if k.elem == nil {
			return "array"
		}
		return "array<" + k.elem.String() + ">"
	case Class:
		if k.class == nil {
			return "class"
		}
		return "class<" + k.class.String() + ">"
	}
	return k.tag.String()
}

// ErrUnknownType is returned by [Parse] for names it does not recognize.
type ErrUnknownType struct {
	Name string
}

// Error implements [error].
func (e ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown type %q", e.Name)
}

// Parse reads a type name as written in a struct tag: "int", "float",
// "string", "bool", "time", "id", "reference", "any", "array" or
// "array<elem>". Classes cannot be named, they are inferred from the field.
func Parse(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if rest, ok := strings.CutPrefix(name, "array<"); ok {
		inner, ok := strings.CutSuffix(rest, ">")
		if !ok {
			return Kind{}, ErrUnknownType{Name: name}
		}
		elem, err := Parse(inner)
		if err != nil {
			return Kind{}, err
		}
		return ArrayOf(elem), nil
	}
	tag, ok := aliases[name]
	if !ok {
		return Kind{}, ErrUnknownType{Name: name}
	}
	return Kind{tag: tag}, nil
}

// Infer returns the kind of a Go field type.
func Infer(t reflect.Type) Kind {
	if t == nil {
		return Kind{}
	}
	switch t {
	case timeType:
		return Of(Time)
	case dateTimeType, objectIDType, bytesType:
		return Kind{}
	}
	switch t.Kind() {
	case reflect.Bool:
		return Of(Bool)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Of(Int)
	case reflect.Float32, reflect.Float64:
		return Of(Float)
	case reflect.String:
		return Of(String)
	case reflect.Slice, reflect.Array:
		return ArrayOf(Infer(t.Elem()))
	case reflect.Struct:
		return ClassOf(t)
	case reflect.Pointer:
		return Infer(t.Elem())
	}
	return Kind{}
}
