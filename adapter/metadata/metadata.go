// Package metadata reflects Go structs into class descriptions: where they
// are stored, which properties they persist, how they are indexed and which
// lifecycle hooks they run. It also converts instances to stored documents
// and back.
package metadata

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/datatype"
	"github.com/crodas/tuicha/adapter/filter"
	"github.com/crodas/tuicha/adapter/property"
	"github.com/crodas/tuicha/domain"
)

// DefaultConnection is the connection used by classes that do not name one.
const DefaultConnection = "default"

// Collection carries the class-level options of a model. Embed it and tag
// it:
//
//	type User struct {
//		metadata.Collection `tuicha:"people,connection=main"`
//	}
//
// The tag holds the collection name followed by the flags "single" (root of
// a single-collection hierarchy) and "connection=<name>".
type Collection struct{}

// Hook is a lifecycle callback.
type Hook func(ctx context.Context, obj any) error

// Scope is a reusable filter fragment, declared as a ScopeXxx method.
type Scope func(f *filter.Filter, args ...any)

// IDGenerator allocates identities for new objects of a class.
type IDGenerator interface {
	NextID(ctx context.Context, c *Class) (any, error)
}

type defaultIDGenerator struct {
	gen domain.IDGenerator
}

// NextID implements [IDGenerator].
func (g defaultIDGenerator) NextID(context.Context, *Class) (any, error) {
	return g.gen.GenerateID()
}

// Class describes a mapped Go struct.
type Class struct {
	// Name is the Go type name, also used as discriminator.
	Name string
	// Type is the struct type.
	Type       reflect.Type
	Collection string
	Connection string
	// ID describes the identity. When SyntheticID is set the class declares
	// no identity field and the value is kept in the object state.
	ID                   *property.Descriptor
	SyntheticID          bool
	Indexes              []domain.IndexSpec
	SingleCollectionRoot bool
	Parent               *Class
	// Discriminator is stored under __class for hierarchy members other
	// than the root.
	Discriminator string

	properties []*property.Descriptor
	byStorage  map[string]*property.Descriptor
	byField    map[string]*property.Descriptor
	extra      []int
	scopes     map[string]Scope
	registry   *Registry

	mu        sync.RWMutex
	hooks     map[domain.Event][]Hook
	observers []*observer
	children  map[string]*Class
	idGen     IDGenerator
}

// Properties returns the persisted properties, identity excluded, in
// declaration order.
func (c *Class) Properties() []*property.Descriptor {
	return slices.Clone(c.properties)
}

// Property returns a property by storage name or, failing that, by Go field
// name.
func (c *Class) Property(name string) (*property.Descriptor, bool) {
	if p, ok := c.byStorage[name]; ok {
		return p, true
	}
	p, ok := c.byField[name]
	return p, ok
}

// StorageName maps the first segment of a field path to its storage name.
// The identity of a reference is "$id" whatever it is called in the path.
func (c *Class) StorageName(path string) string {
	head, rest, nested := strings.Cut(path, ".")
	p, ok := c.Property(head)
	if !ok {
		return path
	}
	if !nested {
		return p.StorageName
	}
	if p.Kind.Tag() == datatype.Reference || p.Kind.Elem().Tag() == datatype.Reference {
		switch rest {
		case "ID", "Id", "id", domain.IDField:
			rest = domain.RefIDField
		}
	}
	return p.StorageName + "." + rest
}

// Scope returns the scope declared by the ScopeXxx method, looked up by Xxx
// without regard to case.
func (c *Class) Scope(name string) (Scope, bool) {
	s, ok := c.scopes[strings.ToLower(name)]
	return s, ok
}

// Root returns the root of the single-collection hierarchy c belongs to, or
// c itself.
func (c *Class) Root() *Class {
	root := c
	for root.Parent != nil {
		root = root.Parent
	}
	return root
}

// InHierarchy reports whether c shares its collection with other classes.
func (c *Class) InHierarchy() bool {
	return c.SingleCollectionRoot || c.Parent != nil
}

// Discriminators returns the class tags of c and every registered
// descendant.
func (c *Class) Discriminators() []string {
	c.mu.RLock()
	res := slices.Collect(maps.Keys(c.children))
	c.mu.RUnlock()
	if c.Discriminator != "" {
		res = append(res, c.Discriminator)
	}
	slices.Sort(res)
	return res
}

// ClassFilter returns the constraint selecting the documents of c in a
// shared collection, or nil for roots and standalone classes.
func (c *Class) ClassFilter() data.M {
	if c.Parent == nil {
		return nil
	}
	names := c.Discriminators()
	if len(names) == 1 {
		return data.M{domain.ClassField: names[0]}
	}
	list := make([]any, len(names))
	for n, name := range names {
		list[n] = name
	}
	return data.M{domain.ClassField: data.M{"$in": list}}
}

func (c *Class) addChild(child *Class) {
	for p := c; p != nil; p = p.Parent {
		p.mu.Lock()
		p.children[child.Discriminator] = child
		p.mu.Unlock()
	}
}

// child returns the descendant tagged name.
func (c *Class) child(name string) (*Class, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	child, ok := c.children[name]
	return child, ok
}

// SetIDGenerator replaces the identity generator of the class.
func (c *Class) SetIDGenerator(g IDGenerator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idGen = g
}

// NextID allocates a new identity.
func (c *Class) NextID(ctx context.Context) (any, error) {
	c.mu.RLock()
	g := c.idGen
	c.mu.RUnlock()
	return g.NextID(ctx, c)
}

// IDOf returns the identity of obj. The second result is false for objects
// without one.
func (c *Class) IDOf(obj any) (any, bool) {
	if c.SyntheticID {
		st, ok := c.registry.states.Lookup(obj)
		if !ok || st.ID() == nil {
			return nil, false
		}
		return st.ID(), true
	}
	id, ok := c.ID.Value(obj)
	if !ok || isZero(id) {
		return nil, false
	}
	return id, true
}

// SetID sets the identity of obj.
func (c *Class) SetID(obj any, id any) error {
	if c.SyntheticID {
		c.registry.states.Of(obj).SetID(id)
		return nil
	}
	if err := c.ID.SetValue(obj, id); err != nil {
		return c.configError(err.Error())
	}
	return nil
}

// New returns a pointer to a new zero value of the class.
func (c *Class) New() any {
	return reflect.New(c.Type).Interface()
}

// Check returns a [domain.ConfigurationError] unless obj is a non-nil
// pointer to the type of the class.
func (c *Class) Check(obj any) error {
	v := reflect.ValueOf(obj)
	if !v.IsValid() || v.Type() != reflect.PointerTo(c.Type) {
		return c.configError(fmt.Sprintf("expected *%s, got %T", c.Type, obj))
	}
	if v.IsNil() {
		return c.configError("nil object")
	}
	return nil
}

func (c *Class) configError(reason string) error {
	return domain.ConfigurationError{Subject: c.Name, Reason: reason}
}

// NewInstance builds an object from a stored document without calling any
// constructor. Documents tagged with the class of a registered descendant
// produce that descendant. Unknown keys go to the field flagged "extra", if
// any. The retrieved event is triggered and, unless nested is set, the
// object is snapshotted so an unmodified save issues no write.
func (c *Class) NewInstance(ctx context.Context, doc data.M, nested bool) (any, error) {
	return c.concrete(doc).hydrate(ctx, doc, nested)
}

// Build returns a new, never persisted object holding the values of doc. No
// event is triggered.
func (c *Class) Build(ctx context.Context, doc data.M) (any, error) {
	target := c.concrete(doc)
	obj := target.New()
	if err := target.fill(ctx, obj, doc, false); err != nil {
		return nil, err
	}
	return obj, nil
}

// concrete returns the class doc was stored from.
func (c *Class) concrete(doc data.M) *Class {
	if name, ok := doc[domain.ClassField].(string); ok && name != c.Discriminator {
		if sub, ok := c.child(name); ok {
			return sub
		}
	}
	return c
}

func (c *Class) hydrate(ctx context.Context, doc data.M, nested bool) (any, error) {
	obj := c.New()
	if err := c.fill(ctx, obj, doc, false); err != nil {
		return nil, err
	}
	if err := c.loaded(ctx, obj, nested); err != nil {
		return nil, err
	}
	return obj, nil
}

// Load overwrites obj with a stored document. Properties missing from doc are
// reset to their zero value. Like [Class.NewInstance], it triggers the
// retrieved event and snapshots obj.
func (c *Class) Load(ctx context.Context, obj any, doc data.M) error {
	if err := c.Check(obj); err != nil {
		return err
	}
	if err := c.fill(ctx, obj, doc, true); err != nil {
		return err
	}
	return c.loaded(ctx, obj, false)
}

func (c *Class) fill(ctx context.Context, obj any, doc data.M, reset bool) error {
	caster := c.registry.caster(ctx)
	var extra map[string]any
	seen := make(map[*property.Descriptor]bool, len(doc))
	for key, value := range doc {
		if key == domain.ClassField {
			continue
		}
		p, ok := c.Property(key)
		if !ok {
			v, err := caster.Cast(value, datatype.Kind{})
			if err != nil {
				return err
			}
			if extra == nil {
				extra = make(map[string]any)
			}
			extra[key] = v
			continue
		}
		seen[p] = true
		if c.SyntheticID && p == c.ID {
			c.registry.states.Of(obj).SetID(value)
			continue
		}
		v, err := caster.Cast(value, p.Kind)
		if err != nil {
			return err
		}
		if err := p.SetValue(obj, v); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrDecode{Source: doc, Target: obj}, err)
		}
	}
	if reset {
		for _, p := range c.properties {
			if !seen[p] {
				_ = p.SetValue(obj, nil)
			}
		}
	}
	if c.extra != nil && (extra != nil || reset) {
		field := reflect.ValueOf(obj).Elem().FieldByIndex(c.extra)
		if extra == nil {
			field.SetZero()
		} else {
			field.Set(reflect.ValueOf(extra).Convert(field.Type()))
		}
	}
	return nil
}

// loaded runs after an object was read from a document.
func (c *Class) loaded(ctx context.Context, obj any, nested bool) error {
	if err := c.TriggerEvent(ctx, obj, domain.EventRetrieved); err != nil {
		return err
	}
	if nested {
		return nil
	}
	return c.Snapshot(ctx, obj)
}

// Snapshot records the current document of obj as its persisted state.
// Reference targets are not saved.
func (c *Class) Snapshot(ctx context.Context, obj any) error {
	doc, err := c.toDocument(ctx, obj, encoding{})
	if err != nil {
		return err
	}
	c.registry.states.Of(obj).SetSnapshot(doc)
	return nil
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}
