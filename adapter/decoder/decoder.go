// Package decoder contains the default [domain.Decoder] implementation.
package decoder

import (
	"fmt"
	stdreflect "reflect"
	"time"

	"github.com/goccy/go-reflect"
	"github.com/mitchellh/mapstructure"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crodas/tuicha/domain"
)

// TagName is the struct tag read when decoding into structs.
const TagName = "tuicha"

var (
	docReflectType  = reflect.TypeOf((*domain.Document)(nil)).Elem()
	timeReflectType = stdreflect.TypeOf(time.Time{})
)

// Decoder implements domain.Decoder.
type Decoder struct {
	tag string
}

// NewDecoder returns a new implementation of domain.Decoder.
func NewDecoder(options ...Option) domain.Decoder {
	d := &Decoder{tag: TagName}
	for _, option := range options {
		option(d)
	}
	return d
}

// Decode implements domain.Decoder.
func (d *Decoder) Decode(source any, target any) error {
	if target == nil {
		return domain.ErrTargetNil
	}

	value := reflect.ValueNoEscapeOf(target)
	if value.Kind() != reflect.Ptr {
		return domain.ErrNonPointer
	}

	if !value.Type().Elem().Implements(docReflectType) {
		source = d.adjustDoc(source)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    d.tag,
		Result:     target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(d.dateTimeHook),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(source); err != nil {
		errDec := domain.ErrDecode{Source: source, Target: target}
		return fmt.Errorf("%w: %w", errDec, err)
	}
	return nil
}

// dateTimeHook converts stored dates into [time.Time] fields. mapstructure
// only accepts hooks typed with the standard reflect package.
func (d *Decoder) dateTimeHook(_, to stdreflect.Type, v any) (any, error) {
	if to != timeReflectType {
		return v, nil
	}
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time(), nil
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0), nil
	}
	return v, nil
}

func (d *Decoder) adjustDoc(value any) any {
	switch t := value.(type) {
	case domain.Document:
		doc := make(map[string]any, t.Len())
		for k, v := range t.Iter() {
			doc[k] = d.adjustDoc(v)
		}
		return doc
	case []any:
		lst := make([]any, len(t))
		for n, v := range t {
			lst[n] = d.adjustDoc(v)
		}
		return lst
	default:
		return value
	}
}
