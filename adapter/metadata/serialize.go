package metadata

import (
	"context"
	"fmt"
	"io"
	"maps"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/datatype"
	"github.com/crodas/tuicha/adapter/reference"
	"github.com/crodas/tuicha/domain"
)

// Serializable is implemented by values that choose their stored form.
type Serializable interface {
	TuichaSerialize() (any, error)
}

type encoding struct {
	validate   bool
	generateID bool
	// cascade saves the targets of references.
	cascade bool
}

// ToDocument renders obj as a stored document. When generateID is set and
// obj has no identity, one is generated and written back to obj before any
// property is read, so references cycling back to obj see it. With validate
// set, every property is validated and the first failure is returned.
// Targets of references are saved through the [ReferenceSaver] unless the
// reference is read-only.
func (c *Class) ToDocument(ctx context.Context, obj any, validate, generateID bool) (data.M, error) {
	return c.toDocument(ctx, obj, encoding{validate: validate, generateID: generateID, cascade: true})
}

func (c *Class) toDocument(ctx context.Context, obj any, enc encoding) (data.M, error) {
	if err := c.Check(obj); err != nil {
		return nil, err
	}
	doc := data.M{}
	id, ok := c.IDOf(obj)
	if !ok && enc.generateID {
		newID, err := c.NextID(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.SetID(obj, newID); err != nil {
			return nil, err
		}
		id, ok = c.IDOf(obj)
	}
	if ok {
		v, _, err := c.registry.serialize(ctx, id, c.ID.Kind, enc)
		if err != nil {
			return nil, err
		}
		doc[domain.IDField] = v
	}

	for _, p := range c.properties {
		value, _ := p.Value(obj)
		v, keep, err := c.registry.serialize(ctx, value, p.Kind, enc)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", c.Name, p.FieldName, err)
		}
		if !keep {
			continue
		}
		if enc.validate {
			if err := p.Validate(v); err != nil {
				return nil, err
			}
		}
		doc[p.StorageName] = v
	}

	if err := c.extraFields(ctx, obj, doc, enc); err != nil {
		return nil, err
	}
	if c.Discriminator != "" {
		doc[domain.ClassField] = c.Discriminator
	}
	return doc, nil
}

// Document renders obj without validating it, generating an identity or
// saving reference targets.
func (c *Class) Document(ctx context.Context, obj any) (data.M, error) {
	return c.toDocument(ctx, obj, encoding{})
}

// StoredID returns the identity of obj in its stored form. The second result
// is false for objects without one.
func (c *Class) StoredID(ctx context.Context, obj any) (any, bool, error) {
	id, ok := c.IDOf(obj)
	if !ok {
		return nil, false, nil
	}
	v, _, err := c.registry.serialize(ctx, id, c.ID.Kind, encoding{})
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// extraFields copies the ad-hoc fields that do not collide with properties.
func (c *Class) extraFields(ctx context.Context, obj any, doc data.M, enc encoding) error {
	if c.extra == nil {
		return nil
	}
	field, err := reflect.ValueOf(obj).Elem().FieldByIndexErr(c.extra)
	if err != nil || field.IsNil() {
		return nil
	}
	extra := field.Convert(extraType).Interface().(map[string]any)
	for _, key := range slices.Sorted(maps.Keys(extra)) {
		if _, known := c.byStorage[key]; known || strings.HasPrefix(key, "__") {
			continue
		}
		v, keep, err := c.registry.serialize(ctx, extra[key], datatype.Kind{}, enc)
		if err != nil {
			return err
		}
		if keep {
			doc[key] = v
		}
	}
	return nil
}

// serialize converts a property value into its stored form. The second
// result is false for values that are never stored.
func (r *Registry) serialize(ctx context.Context, value any, k datatype.Kind, enc encoding) (any, bool, error) {
	if value == nil {
		return nil, true, nil
	}
	if skipped(value) {
		return nil, false, nil
	}
	if s, ok := value.(Serializable); ok {
		v, err := s.TuichaSerialize()
		if err != nil {
			return nil, false, err
		}
		if value = v; value == nil {
			return nil, true, nil
		}
	}
	if _, isRef := value.(*reference.Reference); isRef || k.Tag() == datatype.Reference {
		v, err := r.referenceValue(ctx, value, k.Ref(), enc)
		return v, err == nil, err
	}
	switch k.Tag() {
	case datatype.Bool, datatype.Int, datatype.Float, datatype.String, datatype.Time:
		value = datatype.Cast(value, k)
	}

	switch t := value.(type) {
	case primitive.ObjectID, primitive.DateTime, primitive.Decimal128, primitive.Binary,
		primitive.Regex, primitive.Timestamp, []byte:
		return t, true, nil
	case time.Time:
		if t.IsZero() {
			return nil, true, nil
		}
		return primitive.NewDateTimeFromTime(t), true, nil
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil, true, nil
		}
		if v.Elem().Kind() == reflect.Struct {
			return r.nested(ctx, value, k, enc)
		}
		return r.serialize(ctx, v.Elem().Interface(), k, enc)
	case reflect.Struct:
		ptr := reflect.New(v.Type())
		ptr.Elem().Set(v)
		return r.nested(ctx, ptr.Interface(), k, enc)
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil, true, nil
		}
		res := make([]any, 0, v.Len())
		for i := range v.Len() {
			item, keep, err := r.serialize(ctx, v.Index(i).Interface(), k.Elem(), enc)
			if err != nil {
				return nil, false, err
			}
			if keep {
				res = append(res, item)
			}
		}
		return res, true, nil
	case reflect.Map:
		if v.IsNil() {
			return nil, true, nil
		}
		res := make(data.M, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			item, keep, err := r.serialize(ctx, iter.Value().Interface(), datatype.Kind{}, enc)
			if err != nil {
				return nil, false, err
			}
			if keep {
				res[fmt.Sprint(iter.Key().Interface())] = item
			}
		}
		return res, true, nil
	case reflect.Bool:
		return v.Bool(), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(v.Int()), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if v.Uint() > math.MaxInt {
			return nil, false, datatype.ErrOverflow{Value: value}
		}
		return int(v.Uint()), true, nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), true, nil
	case reflect.String:
		return v.String(), true, nil
	}
	return value, true, nil
}

func skipped(value any) bool {
	switch value.(type) {
	case io.Reader, io.Writer:
		return true
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	}
	return false
}

// nested renders an embedded object through the metadata of its own type,
// tagging it with its class unless it has exactly the declared type.
func (r *Registry) nested(ctx context.Context, obj any, k datatype.Kind, enc encoding) (any, bool, error) {
	c, err := r.Of(obj)
	if err != nil {
		return nil, false, err
	}
	doc, err := c.toDocument(ctx, obj, encoding{validate: enc.validate, cascade: enc.cascade})
	if err != nil {
		return nil, false, err
	}
	if k.Tag() != datatype.Class || k.Class() != c.Type {
		doc[domain.ClassField] = c.Name
	}
	return doc, true, nil
}

// referenceValue renders a reference property as {$ref, $id[, __cache]}.
// Resolved references and plain object pointers have their target saved
// first, unless read-only.
func (r *Registry) referenceValue(ctx context.Context, value any, opts datatype.RefOptions, enc encoding) (any, error) {
	switch v := value.(type) {
	case *reference.Reference:
		if v == nil {
			return nil, nil
		}
		target := v.Target()
		if target == nil {
			if v.Collection == "" {
				return nil, fmt.Errorf("%w: reference without target", domain.ErrNoIdentity)
			}
			return v.Document(), nil
		}
		opts.ReadOnly = opts.ReadOnly || v.ReadOnly
		doc, err := r.referenceTo(ctx, target, opts, enc)
		if err != nil {
			return nil, err
		}
		v.Collection, _ = doc[domain.RefField].(string)
		v.ID = doc[domain.RefIDField]
		v.Cache, _ = doc[domain.RefCacheField].(data.M)
		if _, resolver := r.deps(); resolver != nil {
			v.SetResolver(resolver)
		}
		return doc, nil
	}
	if doc, ok := data.AsDocument(value); ok && doc.Has(domain.RefField) {
		return data.CopyDoc(doc), nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer && rv.Type().Elem().Kind() == reflect.Struct {
		if rv.IsNil() {
			return nil, nil
		}
		return r.referenceTo(ctx, value, opts, enc)
	}
	return nil, domain.ConfigurationError{Subject: fmt.Sprintf("%T", value), Reason: "cannot be stored as a reference"}
}

func (r *Registry) referenceTo(ctx context.Context, target any, opts datatype.RefOptions, enc encoding) (data.M, error) {
	c, err := r.Of(target)
	if err != nil {
		return nil, err
	}
	if saver, _ := r.deps(); saver != nil && enc.cascade && !opts.ReadOnly {
		if err := saver.SaveReference(ctx, target); err != nil {
			return nil, err
		}
	}
	id, ok := c.IDOf(target)
	if !ok {
		return nil, fmt.Errorf("%w: %s referenced before being saved", domain.ErrNoIdentity, c.Name)
	}
	idValue, _, err := r.serialize(ctx, id, c.ID.Kind, enc)
	if err != nil {
		return nil, err
	}
	doc := data.M{domain.RefField: c.Collection, domain.RefIDField: idValue}
	if len(opts.CachedFields) == 0 {
		return doc, nil
	}
	cache := data.M{}
	for _, name := range opts.CachedFields {
		p, ok := c.Property(name)
		if !ok || p == c.ID {
			continue
		}
		value, _ := p.Value(target)
		v, keep, err := r.serialize(ctx, value, p.Kind, encoding{})
		if err != nil {
			return nil, err
		}
		if keep {
			cache[p.StorageName] = v
		}
	}
	doc[domain.RefCacheField] = cache
	return doc, nil
}
