package metadata

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/crodas/tuicha/adapter/datatype"
	"github.com/crodas/tuicha/adapter/property"
	"github.com/crodas/tuicha/adapter/reference"
	"github.com/crodas/tuicha/adapter/state"
	"github.com/crodas/tuicha/domain"
)

var (
	collectionType = reflect.TypeFor[Collection]()
	documentType   = reflect.TypeFor[state.Document]()
	referenceType  = reflect.TypeFor[*reference.Reference]()
	accessorType   = reflect.TypeFor[property.Accessor]()
	extraType      = reflect.TypeFor[map[string]any]()
)

// Indexer is implemented by models declaring indexes that field flags cannot
// express, such as compound ones.
type Indexer interface {
	TuichaIndexes() []domain.IndexSpec
}

// candidate is a property found while walking a struct, before shadowing is
// resolved.
type candidate struct {
	desc     *property.Descriptor
	depth    int
	explicit bool // flagged as identity
	implicit bool // untagged field named ID
}

type builder struct {
	registry   *Registry
	class      *Class
	root       reflect.Type
	visited    map[reflect.Type]bool
	candidates []candidate
}

func (r *Registry) build(t reflect.Type) (*Class, error) {
	if t.Name() == "" {
		return nil, domain.ConfigurationError{Subject: t.String(), Reason: "anonymous structs cannot be mapped"}
	}
	c := &Class{
		Name:       t.Name(),
		Type:       t,
		Connection: r.connection,
		byStorage:  make(map[string]*property.Descriptor),
		byField:    make(map[string]*property.Descriptor),
		registry:   r,
		hooks:      make(map[domain.Event][]Hook),
		children:   make(map[string]*Class),
		idGen:      defaultIDGenerator{gen: r.idGenerator},
	}
	b := &builder{
		registry: r,
		class:    c,
		root:     t,
		visited:  map[reflect.Type]bool{t: true},
	}
	if err := b.walk(t, nil, 0); err != nil {
		return nil, err
	}
	if err := b.resolve(); err != nil {
		return nil, err
	}
	if c.Parent != nil {
		c.Collection = c.Parent.Collection
		c.Connection = c.Parent.Connection
		c.Discriminator = c.Name
		c.Parent.addChild(c)
	}
	if c.Collection == "" {
		c.Collection = strings.ToLower(inflection.Plural(c.Name))
	}

	var err error
	if c.hooks, err = methodHooks(t); err != nil {
		return nil, err
	}
	if c.scopes, err = methodScopes(t); err != nil {
		return nil, err
	}
	c.Indexes = b.indexes()
	return c, nil
}

// walk collects the fields of t, flattening embedded structs the way Go
// promotes their fields.
func (b *builder) walk(t reflect.Type, index []int, depth int) error {
	for i := range t.NumField() {
		f := t.Field(i)
		idx := append(slices.Clone(index), i)
		raw, tagged := f.Tag.Lookup(TagName)
		if raw == "-" {
			continue
		}
		if f.Anonymous {
			done, err := b.embedded(f, raw, tagged, idx, depth)
			if err != nil {
				return err
			}
			if done {
				continue
			}
		}
		if !f.IsExported() && !tagged {
			continue
		}
		if err := b.field(f, parseTag(raw), tagged, idx, depth); err != nil {
			return err
		}
	}
	return nil
}

// embedded handles an embedded field. It returns true when the field is not
// a property itself.
func (b *builder) embedded(f reflect.StructField, raw string, tagged bool, idx []int, depth int) (bool, error) {
	ft := f.Type
	if ft.Kind() == reflect.Pointer {
		ft = ft.Elem()
	}
	switch {
	case ft == collectionType:
		if depth == 0 {
			b.classTag(parseTag(raw))
		}
		return true, nil
	case ft == documentType:
		return true, nil
	case ft.Kind() != reflect.Struct || tagged || !f.IsExported():
		return false, nil
	case b.visited[ft]:
		return true, nil
	}
	if depth == 0 && b.class.Parent == nil && f.Type.Kind() == reflect.Struct && hierarchyMember(ft) {
		parent, err := b.registry.ofType(ft)
		if err != nil {
			return false, err
		}
		b.class.Parent = parent
	}
	b.visited[ft] = true
	return true, b.walk(ft, idx, depth+1)
}

func (b *builder) classTag(t tag) {
	if t.name != "" {
		b.class.Collection = t.name
	}
	b.class.SingleCollectionRoot = t.has(flagSingle)
	if conn, ok := t.value(flagConnection); ok {
		b.class.Connection = conn
	}
}

// hierarchyMember reports whether t is the root of a single-collection
// hierarchy or embeds one.
func hierarchyMember(t reflect.Type) bool {
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		if f.Type == collectionType {
			if parseTag(f.Tag.Get(TagName)).has(flagSingle) {
				return true
			}
			continue
		}
		if f.Type.Kind() == reflect.Struct && f.IsExported() && hierarchyMember(f.Type) {
			return true
		}
	}
	return false
}

func (b *builder) field(f reflect.StructField, t tag, tagged bool, idx []int, depth int) error {
	name := t.name
	if name == "" {
		name = f.Name
	}
	if strings.HasPrefix(name, "__") {
		return nil
	}
	if t.has(flagExtra) {
		if !f.IsExported() || !f.Type.ConvertibleTo(extraType) {
			return b.class.configError(fmt.Sprintf("extra field %s must be an exported map[string]any", f.Name))
		}
		b.class.extra = idx
		return nil
	}
	visibility := property.Public
	if !f.IsExported() {
		if !reflect.PointerTo(b.root).Implements(accessorType) {
			return b.class.configError(fmt.Sprintf("unexported field %s needs *%s to implement property.Accessor", f.Name, b.root.Name()))
		}
		visibility = property.Private
	}
	kind, err := inferKind(f.Type, t)
	if err != nil {
		return b.class.configError(fmt.Sprintf("field %s: %s", f.Name, err))
	}
	rules, _ := t.value(flagValidate)
	validators, err := property.ParseRules(rules)
	if err != nil {
		return b.class.configError(fmt.Sprintf("field %s: %s", f.Name, err))
	}
	explicit := t.has(flagID) || name == domain.IDField
	if explicit {
		name = domain.IDField
		kind = datatype.Of(datatype.ID)
	}
	d := &property.Descriptor{
		Class:       b.class.Name,
		StorageName: name,
		FieldName:   f.Name,
		Index:       idx,
		Type:        f.Type,
		Kind:        kind,
		Required:    t.has(flagRequired),
		Validators:  validators,
		Visibility:  visibility,
		IndexFlags: property.IndexFlags{
			Indexed: t.has(flagIndex) || t.has(flagUnique) || t.has(flagSparse),
			Unique:  t.has(flagUnique),
			Sparse:  t.has(flagSparse),
			Desc:    t.has(flagDesc),
		},
	}
	b.candidates = append(b.candidates, candidate{
		desc:     d,
		depth:    depth,
		explicit: explicit,
		implicit: f.Name == "ID" && !tagged,
	})
	return nil
}

// inferKind returns the kind of a field type. References are recognized
// anywhere in list element types; the "type" option overrides the inferred
// kind.
func inferKind(t reflect.Type, tg tag) (datatype.Kind, error) {
	opts := datatype.RefOptions{CachedFields: tg.list(flagCache), ReadOnly: tg.has(flagReadOnly)}
	k := kindOf(t, tg.has(flagRef), opts)
	if tg.has(flagRef) && !hasReference(k) {
		return datatype.Kind{}, fmt.Errorf("%s cannot hold a reference", t)
	}
	if name, ok := tg.value(flagType); ok {
		parsed, err := datatype.Parse(name)
		if err != nil {
			return datatype.Kind{}, err
		}
		if parsed.Tag() != k.Tag() {
			k = parsed
		}
	}
	return k, nil
}

func kindOf(t reflect.Type, ref bool, opts datatype.RefOptions) datatype.Kind {
	switch {
	case t == referenceType:
		return datatype.ReferenceTo(opts)
	case ref && t.Kind() == reflect.Interface:
		return datatype.ReferenceTo(opts)
	case t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8:
		return datatype.ArrayOf(kindOf(t.Elem(), ref, opts))
	}
	return datatype.Infer(t)
}

func hasReference(k datatype.Kind) bool {
	switch k.Tag() {
	case datatype.Reference:
		return true
	case datatype.Array:
		return hasReference(k.Elem())
	}
	return false
}

// resolve applies Go's shadowing rules to the candidates, picks the identity
// and fills the lookup tables.
func (b *builder) resolve() error {
	c := b.class
	shallowest := make(map[string]int)
	count := make(map[string]int)
	for _, cand := range b.candidates {
		name := cand.desc.FieldName
		d, seen := shallowest[name]
		switch {
		case !seen || cand.depth < d:
			shallowest[name] = cand.depth
			count[name] = 1
		case cand.depth == d:
			count[name]++
		}
	}

	var (
		props    []candidate
		explicit []candidate
		implicit *candidate
	)
	for _, cand := range b.candidates {
		name := cand.desc.FieldName
		if cand.depth != shallowest[name] || count[name] > 1 {
			continue
		}
		switch {
		case cand.explicit:
			explicit = append(explicit, cand)
		case cand.implicit && implicit == nil:
			implicit = &cand
		default:
			props = append(props, cand)
		}
	}
	if len(explicit) > 1 {
		return c.configError("more than one identity field")
	}

	switch {
	case len(explicit) == 1:
		c.ID = explicit[0].desc
		if implicit != nil {
			props = append(props, *implicit)
		}
	case implicit != nil:
		c.ID = implicit.desc
		c.ID.StorageName = domain.IDField
		c.ID.Kind = datatype.Of(datatype.ID)
	default:
		c.SyntheticID = true
		c.ID = &property.Descriptor{
			Class:       c.Name,
			StorageName: domain.IDField,
			FieldName:   "id",
			Kind:        datatype.Of(datatype.ID),
			Visibility:  property.Private,
		}
		c.byField["ID"] = c.ID
	}
	c.byStorage[domain.IDField] = c.ID
	c.byField[c.ID.FieldName] = c.ID

	slices.SortStableFunc(props, func(a, b candidate) int {
		return slices.Compare(a.desc.Index, b.desc.Index)
	})
	for _, cand := range props {
		d := cand.desc
		if _, dup := c.byStorage[d.StorageName]; dup {
			return c.configError(fmt.Sprintf("storage name %q is used twice", d.StorageName))
		}
		c.byStorage[d.StorageName] = d
		c.byField[d.FieldName] = d
		c.properties = append(c.properties, d)
	}
	return nil
}

// indexes derives the index specifications of the class from field flags,
// reference fields and the [Indexer] capability. Members of a
// single-collection hierarchy also get a companion of every index prefixed
// by the class discriminator.
func (b *builder) indexes() []domain.IndexSpec {
	c := b.class
	var specs []domain.IndexSpec
	for _, p := range c.properties {
		if p.Kind.Tag() == datatype.Reference || p.Kind.Elem().Tag() == datatype.Reference {
			fields := []domain.IndexField{
				{Name: p.StorageName + "." + domain.RefField, Direction: 1},
				{Name: p.StorageName + "." + domain.RefIDField, Direction: 1},
			}
			specs = append(specs, indexSpec(fields, p.Unique, p.Sparse))
			continue
		}
		if !p.Indexed {
			continue
		}
		dir := 1
		if p.Desc {
			dir = -1
		}
		specs = append(specs, indexSpec([]domain.IndexField{{Name: p.StorageName, Direction: dir}}, p.Unique, p.Sparse))
	}
	if ix, ok := reflect.New(c.Type).Interface().(Indexer); ok {
		for _, spec := range ix.TuichaIndexes() {
			if spec.Name == "" {
				spec.Name = domain.IndexName(spec.Fields, spec.Unique)
			}
			specs = append(specs, spec)
		}
	}
	if !c.InHierarchy() {
		return specs
	}
	res := slices.Clone(specs)
	for _, spec := range specs {
		companion := spec
		companion.Fields = append([]domain.IndexField{{Name: domain.ClassField, Direction: 1}}, spec.Fields...)
		companion.Name = spec.Name + "_with_class_discriminator"
		res = append(res, companion)
	}
	return res
}

func indexSpec(fields []domain.IndexField, unique, sparse bool) domain.IndexSpec {
	return domain.IndexSpec{
		Name:       domain.IndexName(fields, unique),
		Fields:     fields,
		Unique:     unique,
		Sparse:     sparse,
		Background: true,
	}
}
