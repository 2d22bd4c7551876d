package metadata

import (
	"github.com/crodas/tuicha/adapter/state"
	"github.com/crodas/tuicha/domain"
)

// WithIDGenerator sets the generator used by classes that do not set their
// own with [Class.SetIDGenerator].
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(r *Registry) {
		r.idGenerator = g
	}
}

// WithStateStore sets the side table keeping the persistence state of
// objects.
func WithStateStore(s *state.Store) Option {
	return func(r *Registry) {
		r.states = s
	}
}

// WithConnection sets the connection of classes whose tag names none.
func WithConnection(name string) Option {
	return func(r *Registry) {
		r.connection = name
	}
}

// Option configures registry behavior through the functional options
// pattern.
type Option func(*Registry)
