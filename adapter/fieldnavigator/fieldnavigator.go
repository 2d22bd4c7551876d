// Package fieldnavigator resolves dotted field paths ("a.b.0.c") inside
// document trees.
package fieldnavigator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/crodas/tuicha/adapter/data"
)

// ErrEmptyPath is returned when an empty path or a path with an empty segment
// is given.
var ErrEmptyPath = errors.New("field path cannot be empty or contain empty segments")

// ErrNotTraversable is returned when Set or Unset needs to go through a value
// that is neither a document nor a list.
type ErrNotTraversable struct {
	Path  string
	Value any
}

// Error implements [error].
func (e ErrNotTraversable) Error() string {
	return fmt.Sprintf("cannot traverse %T at %q", e.Value, e.Path)
}

// Split splits a dotted path into its segments.
func Split(path string) ([]string, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, ErrEmptyPath
		}
	}
	return parts, nil
}

// Get returns every value reachable through path. Lists met along the way
// are expanded: "a.b" on {a: [{b: 1}, {b: 2}]} yields 1 and 2. A numeric
// segment indexes into a list. The second return value reports whether a
// list was expanded and the third whether anything was found.
func Get(doc any, path string) (values []any, expanded bool, found bool) {
	parts, err := Split(path)
	if err != nil {
		return nil, false, false
	}
	values, expanded = get(doc, parts, false)
	return values, expanded, len(values) > 0
}

func get(v any, parts []string, expanded bool) ([]any, bool) {
	if len(parts) == 0 {
		return []any{v}, expanded
	}
	if doc, ok := data.AsDocument(v); ok {
		next, has := doc[parts[0]]
		if !has {
			return nil, expanded
		}
		return get(next, parts[1:], expanded)
	}
	lst, ok := v.([]any)
	if !ok {
		return nil, expanded
	}
	if idx, err := strconv.Atoi(parts[0]); err == nil {
		if idx < 0 || idx >= len(lst) {
			return nil, expanded
		}
		return get(lst[idx], parts[1:], expanded)
	}
	var res []any
	for _, item := range lst {
		if _, isDoc := data.AsDocument(item); !isDoc {
			continue
		}
		found, _ := get(item, parts, true)
		res = append(res, found...)
	}
	return res, true
}

// Lookup returns the single value stored at path without expanding lists.
func Lookup(doc any, path string) (any, bool) {
	parts, err := Split(path)
	if err != nil {
		return nil, false
	}
	cur := doc
	for _, p := range parts {
		if d, ok := data.AsDocument(cur); ok {
			if cur, ok = d[p]; !ok {
				return nil, false
			}
			continue
		}
		lst, ok := cur.([]any)
		if !ok {
			return nil, false
		}
		idx, err := strconv.Atoi(p)
		if err != nil || idx < 0 || idx >= len(lst) {
			return nil, false
		}
		cur = lst[idx]
	}
	return cur, true
}

// Set stores value at path, creating intermediate documents as needed. Lists
// are padded with nil when an index beyond their length is set.
func Set(doc data.M, path string, value any) error {
	parts, err := Split(path)
	if err != nil {
		return err
	}
	_, err = set(doc, parts, value, path)
	return err
}

func set(container any, parts []string, value any, path string) (any, error) {
	key := parts[0]
	if doc, ok := data.AsDocument(container); ok {
		if len(parts) == 1 {
			doc[key] = value
			return doc, nil
		}
		child, has := doc[key]
		if !has || child == nil {
			child = data.M{}
		}
		updated, err := set(child, parts[1:], value, path)
		if err != nil {
			return nil, err
		}
		doc[key] = updated
		return doc, nil
	}
	if lst, ok := container.([]any); ok {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			return nil, ErrNotTraversable{Path: path, Value: container}
		}
		for len(lst) <= idx {
			lst = append(lst, nil)
		}
		if len(parts) == 1 {
			lst[idx] = value
			return lst, nil
		}
		child := lst[idx]
		if child == nil {
			child = data.M{}
		}
		updated, err := set(child, parts[1:], value, path)
		if err != nil {
			return nil, err
		}
		lst[idx] = updated
		return lst, nil
	}
	return nil, ErrNotTraversable{Path: path, Value: container}
}

// Unset removes the value at path. Unsetting a list element sets it to nil,
// keeping the positions of the following elements. Missing paths are
// ignored.
func Unset(doc data.M, path string) error {
	parts, err := Split(path)
	if err != nil {
		return err
	}
	parent, ok := any(doc), true
	if len(parts) > 1 {
		parent, ok = Lookup(doc, strings.Join(parts[:len(parts)-1], "."))
	}
	if !ok {
		return nil
	}
	last := parts[len(parts)-1]
	if d, ok := data.AsDocument(parent); ok {
		delete(d, last)
		return nil
	}
	if lst, ok := parent.([]any); ok {
		if idx, err := strconv.Atoi(last); err == nil && idx >= 0 && idx < len(lst) {
			lst[idx] = nil
		}
	}
	return nil
}
