// Package state keeps the per-instance persistence state of mapped objects:
// the snapshot of the last persisted document, the identity of classes that
// do not declare one and the in-progress flag guarding re-entrant saves.
package state

import (
	"reflect"
	"runtime"
	"sync"
	"weak"

	"github.com/crodas/tuicha/adapter/data"
)

// State is the persistence state of a single object.
type State struct {
	mu       sync.Mutex
	snapshot data.M
	id       any
	busy     bool
}

// Snapshot returns a copy of the last persisted document, or nil for objects
// that were never persisted.
func (s *State) Snapshot() data.M {
	s.mu.Lock()
	defer s.mu.Unlock()
	return data.CopyDoc(s.snapshot)
}

// SetSnapshot replaces the snapshot with a copy of doc.
func (s *State) SetSnapshot(doc data.M) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = data.CopyDoc(doc)
}

// IsNew reports whether the object has no snapshot.
func (s *State) IsNew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot == nil
}

// Clear forgets the snapshot, making the object new again. The synthesized
// identity is kept.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
}

// ID returns the identity kept for classes without an identity field.
func (s *State) ID() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// SetID sets the identity kept for classes without an identity field.
func (s *State) SetID(id any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
}

// Begin marks an operation on the object as in progress. It returns false,
// without marking anything, when one already is.
func (s *State) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

// End clears the in-progress mark set by [State.Begin].
func (s *State) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

// Holder is implemented by objects that carry their own [State], usually by
// embedding [Document].
type Holder interface {
	TuichaState() *State
}

// Document keeps the persistence state inside the object. Embed it in a model
// to avoid the side table:
//
//	type User struct {
//		state.Document
//		Name string
//	}
//
// Copies of a model share the state of the original.
type Document struct {
	state *State
}

// TuichaState implements [Holder].
func (d *Document) TuichaState() *State {
	if d.state == nil {
		d.state = &State{}
	}
	return d.state
}

// Store is a side table of states keyed by object pointer, used for objects
// that do not implement [Holder]. Keys are weak: the entry of an object is
// dropped once the object is garbage collected, or earlier by
// [Store.Forget].
type Store struct {
	mu     sync.Mutex
	states map[key]*State
}

type key struct {
	typ reflect.Type
	ptr weak.Pointer[byte]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{states: make(map[key]*State)}
}

// keyOf returns the key of obj. The second result is false for values that
// are not pointers to sized values, which cannot be tracked.
func keyOf(obj any) (key, *byte, bool) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Type().Elem().Size() == 0 {
		return key{}, nil, false
	}
	p := (*byte)(v.UnsafePointer())
	return key{typ: v.Type(), ptr: weak.Make(p)}, p, true
}

// Of returns the state of obj, creating it if needed. Values that cannot be
// tracked get a new state on every call.
func (s *Store) Of(obj any) *State {
	if h, ok := obj.(Holder); ok {
		return h.TuichaState()
	}
	k, p, ok := keyOf(obj)
	if !ok {
		return &State{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[k]
	if !ok {
		st = &State{}
		s.states[k] = st
		runtime.AddCleanup(p, s.drop, k)
	}
	return st
}

func (s *Store) drop(k key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, k)
}

// Lookup returns the state of obj without creating it.
func (s *Store) Lookup(obj any) (*State, bool) {
	if h, ok := obj.(Holder); ok {
		return h.TuichaState(), true
	}
	k, _, ok := keyOf(obj)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[k]
	return st, ok
}

// Forget drops the state of obj. Objects carrying their own state get it
// reset instead.
func (s *Store) Forget(obj any) {
	if h, ok := obj.(Holder); ok {
		st := h.TuichaState()
		st.Clear()
		st.SetID(nil)
		return
	}
	if k, _, ok := keyOf(obj); ok {
		s.drop(k)
	}
}

// Len returns the number of objects tracked by the side table.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
