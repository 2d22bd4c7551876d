// Package data contains the default [domain.Document] implementation and the
// helpers used to copy, compare and normalize document trees.
package data

import (
	"iter"
	"maps"
	"reflect"
	"slices"
	"time"

	goreflect "github.com/goccy/go-reflect"

	"github.com/crodas/tuicha/domain"
)

// M implements domain.Document by using a hashed map. Nested documents are
// also M and lists are []any.
type M map[string]any

// A is a list inside a document.
type A = []any

var _ domain.Document = M(nil)

// ID implements domain.Document.
func (d M) ID() any {
	return d[domain.IDField]
}

// Get implements domain.Document.
func (d M) Get(key string) any {
	return d[key]
}

// Set implements domain.Document.
func (d M) Set(key string, value any) {
	d[key] = value
}

// Unset implements domain.Document.
func (d M) Unset(key string) {
	delete(d, key)
}

// Has implements domain.Document.
func (d M) Has(key string) bool {
	_, has := d[key]
	return has
}

// Iter implements domain.Document.
func (d M) Iter() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, k := range slices.Sorted(maps.Keys(d)) {
			if !yield(k, d[k]) {
				return
			}
		}
	}
}

// Keys implements domain.Document.
func (d M) Keys() iter.Seq[string] {
	return slices.Values(slices.Sorted(maps.Keys(d)))
}

// Len implements domain.Document.
func (d M) Len() int {
	return len(d)
}

// AsDocument returns v as M when it is a document-shaped value: M, a plain
// map[string]any or any other [domain.Document] implementation.
func AsDocument(v any) (M, bool) {
	switch t := v.(type) {
	case M:
		return t, t != nil
	case map[string]any:
		return M(t), t != nil
	case domain.Document:
		if t == nil {
			return nil, false
		}
		res := make(M, t.Len())
		for k, v := range t.Iter() {
			res[k] = v
		}
		return res, true
	default:
		return nil, false
	}
}

// AsList returns v as a list when it is a slice other than a byte slice.
// Typed slices are copied into a new []any. Arrays are scalars, so values
// such as ObjectIDs are kept whole.
func AsList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case nil, []byte, string:
		return nil, false
	}
	r := goreflect.ValueNoEscapeOf(v)
	switch r.Kind() {
	case goreflect.Slice:
		if r.IsNil() {
			return nil, false
		}
		res := make([]any, r.Len())
		for i := range res {
			res[i] = r.Index(i).Interface()
		}
		return res, true
	default:
		return nil, false
	}
}

// Normalize converts every nested map[string]any into M and every typed slice
// into []any, returning a new tree.
func Normalize(v any) any {
	if doc, ok := AsDocument(v); ok {
		res := make(M, len(doc))
		for k, val := range doc {
			res[k] = Normalize(val)
		}
		return res
	}
	if _, isBytes := v.([]byte); !isBytes {
		if lst, ok := AsList(v); ok {
			res := make([]any, len(lst))
			for n, val := range lst {
				res[n] = Normalize(val)
			}
			return res
		}
	}
	return v
}

// Copy returns a deep copy of a document tree. Scalars are returned as is.
func Copy(v any) any {
	switch t := v.(type) {
	case M:
		if t == nil {
			return M(nil)
		}
		res := make(M, len(t))
		for k, val := range t {
			res[k] = Copy(val)
		}
		return res
	case map[string]any:
		return Copy(M(t))
	case []any:
		if t == nil {
			return []any(nil)
		}
		res := make([]any, len(t))
		for n, val := range t {
			res[n] = Copy(val)
		}
		return res
	default:
		return v
	}
}

// CopyDoc returns a deep copy of doc.
func CopyDoc(doc M) M {
	if doc == nil {
		return nil
	}
	return Copy(doc).(M)
}

// Equal reports whether a and b hold the same document tree. Comparison is
// strict: values of different dynamic types are never equal, so int(1) and
// float64(1) differ.
func Equal(a, b any) bool {
	if da, ok := AsDocument(a); ok {
		db, ok := AsDocument(b)
		if !ok || len(da) != len(db) {
			return false
		}
		for k, va := range da {
			vb, has := db[k]
			if !has || !Equal(va, vb) {
				return false
			}
		}
		return true
	}
	if la, ok := a.([]any); ok {
		lb, ok := b.([]any)
		if !ok || len(la) != len(lb) {
			return false
		}
		for n := range la {
			if !Equal(la[n], lb[n]) {
				return false
			}
		}
		return true
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// IsEmpty reports whether v counts as an empty value: nil, zero-length
// strings, lists and documents.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case M:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	r := goreflect.ValueNoEscapeOf(v)
	switch r.Kind() {
	case reflect.Pointer, goreflect.Interface:
		return r.IsNil()
	case goreflect.Slice, goreflect.Map:
		return r.Len() == 0
	}
	return false
}
