package metadata

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	goreflect "github.com/goccy/go-reflect"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/datatype"
	"github.com/crodas/tuicha/adapter/idgenerator"
	"github.com/crodas/tuicha/adapter/property"
	"github.com/crodas/tuicha/adapter/reference"
	"github.com/crodas/tuicha/adapter/state"
	"github.com/crodas/tuicha/domain"
)

// ReferenceSaver persists the targets of references before the document
// pointing to them is written.
type ReferenceSaver interface {
	SaveReference(ctx context.Context, obj any) error
}

type entry struct {
	once  sync.Once
	class *Class
	err   error
}

// Registry builds and caches class descriptions. It is safe for concurrent
// use and builds each class once.
type Registry struct {
	mu       sync.Mutex
	entries  map[reflect.Type]*entry
	names    map[string]*Class
	byTypeID sync.Map

	states      *state.Store
	idGenerator domain.IDGenerator
	connection  string

	depsMu   sync.RWMutex
	saver    ReferenceSaver
	resolver reference.Resolver
}

// NewRegistry returns an empty registry.
func NewRegistry(options ...Option) *Registry {
	r := &Registry{
		entries:     make(map[reflect.Type]*entry),
		names:       make(map[string]*Class),
		states:      state.NewStore(),
		idGenerator: idgenerator.NewIDGenerator(),
		connection:  DefaultConnection,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

var defaultRegistry = NewRegistry()

// Default returns the registry used by [Of].
func Default() *Registry {
	return defaultRegistry
}

// Of returns the class of v from the default registry.
func Of(v any) (*Class, error) {
	return defaultRegistry.Of(v)
}

// RegisterValidator makes a validation rule available to the "validate" tag
// option.
func RegisterValidator(name string, fn property.Func) {
	property.Register(name, fn)
}

// States returns the store keeping the persistence state of objects.
func (r *Registry) States() *state.Store {
	return r.states
}

// SetReferenceSaver sets the saver used to persist reference targets.
func (r *Registry) SetReferenceSaver(s ReferenceSaver) {
	r.depsMu.Lock()
	defer r.depsMu.Unlock()
	r.saver = s
}

// SetResolver sets the resolver given to the references read from the
// store.
func (r *Registry) SetResolver(res reference.Resolver) {
	r.depsMu.Lock()
	defer r.depsMu.Unlock()
	r.resolver = res
}

func (r *Registry) deps() (ReferenceSaver, reference.Resolver) {
	r.depsMu.RLock()
	defer r.depsMu.RUnlock()
	return r.saver, r.resolver
}

// Of returns the class of v, which may be a struct, a pointer to one or a
// [reflect.Type].
func (r *Registry) Of(v any) (*Class, error) {
	switch t := v.(type) {
	case nil:
		return nil, domain.ConfigurationError{Subject: "<nil>", Reason: "cannot reflect a nil value"}
	case reflect.Type:
		return r.ofType(t)
	}
	id := goreflect.TypeID(v)
	if c, ok := r.byTypeID.Load(id); ok {
		return c.(*Class), nil
	}
	c, err := r.ofType(reflect.TypeOf(v))
	if err != nil {
		return nil, err
	}
	r.byTypeID.Store(id, c)
	return c, nil
}

// Register builds the classes of models, making their class tags known
// before any document is read.
func (r *Registry) Register(models ...any) error {
	for _, m := range models {
		if _, err := r.Of(m); err != nil {
			return err
		}
	}
	return nil
}

// ByName returns a class built earlier by its Go type name.
func (r *Registry) ByName(name string) (*Class, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.names[name]
	return c, ok
}

// ByCollection returns the class stored in collection. Collections shared by
// a hierarchy resolve to its root.
func (r *Registry) ByCollection(collection string) (*Class, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.names {
		if c.Collection == collection {
			return c.Root(), true
		}
	}
	return nil, false
}

func (r *Registry) ofType(t reflect.Type) (*Class, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, domain.ConfigurationError{Subject: t.String(), Reason: "only structs can be mapped"}
	}
	r.mu.Lock()
	e, ok := r.entries[t]
	if !ok {
		e = &entry{}
		r.entries[t] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.class, e.err = r.build(t)
		if e.err != nil {
			return
		}
		r.mu.Lock()
		r.names[e.class.Name] = e.class
		r.mu.Unlock()
	})
	return e.class, e.err
}

// caster hydrates nested objects and references found in documents.
func (r *Registry) caster(ctx context.Context) datatype.Caster {
	_, resolver := r.deps()
	return datatype.Caster{
		Hydrate: func(doc data.M, t reflect.Type) (any, error) {
			if t == nil {
				name, _ := doc[domain.ClassField].(string)
				c, ok := r.ByName(name)
				if !ok {
					return doc, nil
				}
				return c.NewInstance(ctx, doc, true)
			}
			c, err := r.ofType(t)
			if err != nil {
				return nil, err
			}
			return c.NewInstance(ctx, doc, true)
		},
		Reference: func(doc data.M, opts datatype.RefOptions) (any, error) {
			ref, err := reference.FromDocument(doc, resolver)
			if err != nil {
				return doc, nil
			}
			ref.ReadOnly = opts.ReadOnly
			return ref, nil
		},
	}
}

// Field implements the field lookup of [reference.Resolver] for objects of
// registered classes.
func (r *Registry) Field(obj any, name string) (any, bool) {
	c, err := r.Of(obj)
	if err != nil {
		return nil, false
	}
	if p, ok := c.Property(name); ok {
		if p == c.ID {
			return c.IDOf(obj)
		}
		return p.Value(obj)
	}
	return nil, false
}

func (r *Registry) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("registry(%d classes)", len(r.names))
}
