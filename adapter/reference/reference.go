// Package reference contains the lazily resolved pointer to an object stored
// in another collection.
package reference

import (
	"context"
	"errors"
	"sync"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/fieldnavigator"
	"github.com/crodas/tuicha/domain"
)

var (
	// ErrNoResolver is returned when an unresolved reference has no way to
	// load its target.
	ErrNoResolver = errors.New("reference has no resolver")
	// ErrNotReference is returned by [FromDocument] for documents without
	// $ref and $id.
	ErrNotReference = errors.New("document is not a reference")
)

// Resolver loads reference targets.
type Resolver interface {
	// Resolve returns the object stored in collection under id, or nil
	// when there is none.
	Resolve(ctx context.Context, collection string, id any) (any, error)
	// Field returns the value of a property of a resolved object, by
	// storage or field name.
	Field(obj any, name string) (any, bool)
}

// Reference points to an object of another collection. Its target is loaded
// at most once.
type Reference struct {
	Collection string
	ID         any
	// Cache holds the target fields copied into the reference document.
	Cache data.M
	// ReadOnly references never save their target.
	ReadOnly bool

	mu       sync.Mutex
	resolver Resolver
	target   any
}

// New returns an unresolved reference.
func New(collection string, id any, resolver Resolver) *Reference {
	return &Reference{Collection: collection, ID: id, resolver: resolver}
}

// To returns a reference to obj. Its collection and identity are filled when
// the owner is saved.
func To(obj any) *Reference {
	return &Reference{target: obj}
}

// FromDocument builds an unresolved reference from a {$ref, $id[, __cache]}
// document.
func FromDocument(doc data.M, resolver Resolver) (*Reference, error) {
	coll, ok := doc[domain.RefField].(string)
	id, hasID := doc[domain.RefIDField]
	if !ok || !hasID {
		return nil, ErrNotReference
	}
	r := New(coll, id, resolver)
	if cache, ok := data.AsDocument(doc[domain.RefCacheField]); ok {
		r.Cache = data.CopyDoc(cache)
	}
	return r, nil
}

// SetResolver sets the resolver used by [Reference.Object].
func (r *Reference) SetResolver(resolver Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolver = resolver
}

// Target returns the loaded target, or nil when the reference was not
// resolved yet.
func (r *Reference) Target() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

// IsResolved reports whether the target is loaded.
func (r *Reference) IsResolved() bool {
	return r.Target() != nil
}

// Object returns the target, loading it on first use.
func (r *Reference) Object(ctx context.Context) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.target != nil {
		return r.target, nil
	}
	if r.resolver == nil {
		return nil, ErrNoResolver
	}
	obj, err := r.resolver.Resolve(ctx, r.Collection, r.ID)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, domain.ReferenceResolutionError{Collection: r.Collection, ID: r.ID}
	}
	r.target = obj
	return obj, nil
}

// Get returns a field of the target. Cached fields are answered without
// loading it.
func (r *Reference) Get(ctx context.Context, field string) (any, error) {
	if v, ok := fieldnavigator.Lookup(r.Cache, field); ok {
		return v, nil
	}
	if field == domain.IDField {
		return r.ID, nil
	}
	obj, err := r.Object(ctx)
	if err != nil {
		return nil, err
	}
	if r.resolver == nil {
		return nil, ErrNoResolver
	}
	v, _ := r.resolver.Field(obj, field)
	return v, nil
}

// Document renders the stored form of the reference.
func (r *Reference) Document() data.M {
	doc := data.M{domain.RefField: r.Collection, domain.RefIDField: r.ID}
	if len(r.Cache) > 0 {
		doc[domain.RefCacheField] = data.CopyDoc(r.Cache)
	}
	return doc
}
