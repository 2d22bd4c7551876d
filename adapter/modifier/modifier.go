// Package modifier contains a [domain.Modifier] implementation to apply changes
// to a doc based on a mongo-like API.
package modifier

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crodas/tuicha/adapter/comparer"
	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/fieldnavigator"
	"github.com/crodas/tuicha/adapter/matcher"
	"github.com/crodas/tuicha/adapter/timegetter"
	"github.com/crodas/tuicha/domain"
)

var (
	// ErrMixedOperators is returned when user provides an update query with
	// mixed use of normal fields and dollar fields.
	ErrMixedOperators = errors.New("cannot mix modifiers and normal fields")
	// ErrNonObject is returned when a modifier value passed by user is not
	// an object.
	ErrNonObject = errors.New("modifier value must be an object")
	// ErrInvalidPushField is returned when user passes some field other
	// than $slice and $each when using $push modifier.
	ErrInvalidPushField = errors.New("can only use $slice in conjunction with $each when $push to array")
)

// ErrModFieldType is returned when a modification function runs on a document
// field of a type that is not accepted.
type ErrModFieldType struct {
	Mod    string
	Want   string
	Actual any
}

// Error implements [error].
func (e ErrModFieldType) Error() string {
	return fmt.Sprintf("%s expects %s field, got %T", e.Mod, e.Want, e.Actual)
}

// ErrModArgType is returned when a modification function is called with an
// argument of a type that is not accepted.
type ErrModArgType struct {
	Mod    string
	Want   string
	Actual any
}

// Error implements [error].
func (e ErrModArgType) Error() string {
	return fmt.Sprintf("%s expects %s arg, got %T", e.Mod, e.Want, e.Actual)
}

// ErrUnknownModifier is returned when the user specifies a modification query
// with a modification procedure that is not known by the current implementation
// of [Modifier].
type ErrUnknownModifier struct {
	Name string
}

// Error implements [error].
func (e ErrUnknownModifier) Error() string {
	return fmt.Sprintf("unknown modifier %q", e.Name)
}

type modFunc func(doc data.M, path string, arg any) error

// Modifier implements [domain.Modifier].
type Modifier struct {
	comp       domain.Comparer
	matcher    domain.Matcher
	timeGetter domain.TimeGetter
	mods       map[string]modFunc
}

// NewModifier returns a new implementation of [domain.Modifier].
func NewModifier(options ...Option) domain.Modifier {
	m := &Modifier{
		comp:       comparer.NewComparer(),
		timeGetter: timegetter.NewTimeGetter(),
	}
	for _, option := range options {
		option(m)
	}
	if m.matcher == nil {
		m.matcher = matcher.NewMatcher(matcher.WithComparer(m.comp))
	}

	m.mods = map[string]modFunc{
		"$set":         m.set,
		"$unset":       m.unset,
		"$inc":         m.inc,
		"$mul":         m.mul,
		"$min":         m.min,
		"$max":         m.max,
		"$rename":      m.rename,
		"$currentDate": m.currentDate,
		"$push":        m.push,
		"$addToSet":    m.addToSet,
		"$pop":         m.pop,
		"$pull":        m.pull,
		"$pullAll":     m.pullAll,
	}

	return m
}

// Modify implements [domain.Modifier].
func (m *Modifier) Modify(obj domain.Document, mod domain.Document) (domain.Document, error) {
	doc, ok := data.AsDocument(obj)
	if !ok {
		doc = data.M{}
	}
	doc = data.CopyDoc(doc)

	upd, ok := data.AsDocument(mod)
	if !ok || len(upd) == 0 {
		return doc, nil
	}

	dollar := 0
	for k := range upd {
		if strings.HasPrefix(k, "$") {
			dollar++
		}
	}
	if dollar == 0 {
		return m.replace(doc, upd)
	}
	if dollar != len(upd) {
		return nil, ErrMixedOperators
	}

	id, hadID := doc[domain.IDField]
	for op, arg := range upd.Iter() {
		fn, ok := m.mods[op]
		if !ok {
			return nil, ErrUnknownModifier{Name: op}
		}
		fields, ok := data.AsDocument(arg)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNonObject, op)
		}
		for path, value := range fields.Iter() {
			if err := fn(doc, path, value); err != nil {
				return nil, err
			}
		}
	}

	if hadID && !data.Equal(doc[domain.IDField], id) {
		return nil, domain.ErrCannotModifyID
	}

	return doc, nil
}

func (m *Modifier) replace(doc data.M, upd data.M) (domain.Document, error) {
	res := data.CopyDoc(upd)
	if id, ok := doc[domain.IDField]; ok {
		if newID, has := res[domain.IDField]; has && !data.Equal(newID, id) {
			return nil, domain.ErrCannotModifyID
		}
		res[domain.IDField] = id
	}
	return res, nil
}

func (m *Modifier) set(doc data.M, path string, arg any) error {
	return fieldnavigator.Set(doc, path, data.Copy(data.Normalize(arg)))
}

func (m *Modifier) unset(doc data.M, path string, _ any) error {
	return fieldnavigator.Unset(doc, path)
}

func (m *Modifier) number(mod string, v any) (float64, bool, error) {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return cast.ToFloat64(v), true, nil
	case float32, float64:
		return cast.ToFloat64(v), false, nil
	default:
		return 0, false, ErrModArgType{Mod: mod, Want: "number", Actual: v}
	}
}

func (m *Modifier) arith(mod string, doc data.M, path string, arg any, fn func(a, b float64) float64) error {
	b, bInt, err := m.number(mod, arg)
	if err != nil {
		return err
	}
	current, ok := fieldnavigator.Lookup(doc, path)
	if !ok || current == nil {
		current = 0
	}
	a, aInt, err := m.number(mod, current)
	if err != nil {
		return ErrModFieldType{Mod: mod, Want: "number", Actual: current}
	}
	res := fn(a, b)
	if aInt && bInt {
		return fieldnavigator.Set(doc, path, int64(res))
	}
	return fieldnavigator.Set(doc, path, res)
}

func (m *Modifier) inc(doc data.M, path string, arg any) error {
	return m.arith("$inc", doc, path, arg, func(a, b float64) float64 { return a + b })
}

func (m *Modifier) mul(doc data.M, path string, arg any) error {
	return m.arith("$mul", doc, path, arg, func(a, b float64) float64 { return a * b })
}

func (m *Modifier) minMax(mod string, doc data.M, path string, arg any, want int) error {
	current, ok := fieldnavigator.Lookup(doc, path)
	if !ok {
		return fieldnavigator.Set(doc, path, arg)
	}
	c, err := m.comp.Compare(arg, current)
	if err != nil {
		return fmt.Errorf("%s: %w", mod, err)
	}
	if c == want {
		return fieldnavigator.Set(doc, path, arg)
	}
	return nil
}

func (m *Modifier) min(doc data.M, path string, arg any) error {
	return m.minMax("$min", doc, path, arg, -1)
}

func (m *Modifier) max(doc data.M, path string, arg any) error {
	return m.minMax("$max", doc, path, arg, 1)
}

func (m *Modifier) rename(doc data.M, path string, arg any) error {
	target, ok := arg.(string)
	if !ok || target == "" {
		return ErrModArgType{Mod: "$rename", Want: "string", Actual: arg}
	}
	value, ok := fieldnavigator.Lookup(doc, path)
	if !ok {
		return nil
	}
	if err := fieldnavigator.Unset(doc, path); err != nil {
		return err
	}
	return fieldnavigator.Set(doc, target, value)
}

func (m *Modifier) currentDate(doc data.M, path string, arg any) error {
	now := m.timeGetter.GetTime()
	if spec, ok := data.AsDocument(arg); ok && spec["$type"] == "timestamp" {
		return fieldnavigator.Set(doc, path, primitive.Timestamp{T: uint32(now.Unix())})
	}
	return fieldnavigator.Set(doc, path, primitive.NewDateTimeFromTime(now))
}

func (m *Modifier) list(mod string, doc data.M, path string) ([]any, error) {
	current, ok := fieldnavigator.Lookup(doc, path)
	if !ok || current == nil {
		return []any{}, nil
	}
	lst, ok := current.([]any)
	if !ok {
		return nil, ErrModFieldType{Mod: mod, Want: "array", Actual: current}
	}
	return lst, nil
}

func (m *Modifier) each(mod string, arg any, allowed ...string) ([]any, data.M, error) {
	spec, ok := data.AsDocument(arg)
	if !ok {
		return []any{data.Normalize(arg)}, nil, nil
	}
	rawEach, hasEach := spec["$each"]
	if !hasEach {
		return []any{data.Normalize(arg)}, nil, nil
	}
	for k := range spec {
		if k != "$each" && !slices.Contains(allowed, k) {
			return nil, nil, ErrInvalidPushField
		}
	}
	items, ok := data.AsList(rawEach)
	if !ok {
		return nil, nil, ErrModArgType{Mod: mod, Want: "list", Actual: rawEach}
	}
	norm, _ := data.Normalize(items).([]any)
	return norm, spec, nil
}

func (m *Modifier) push(doc data.M, path string, arg any) error {
	lst, err := m.list("$push", doc, path)
	if err != nil {
		return err
	}
	items, spec, err := m.each("$push", arg, "$slice", "$position")
	if err != nil {
		return err
	}
	pos := len(lst)
	if p, ok := spec["$position"]; ok {
		pos = min(max(cast.ToInt(p), 0), len(lst))
	}
	res := make([]any, 0, len(lst)+len(items))
	res = append(res, lst[:pos]...)
	res = append(res, items...)
	res = append(res, lst[pos:]...)

	if raw, ok := spec["$slice"]; ok {
		n, err := cast.ToIntE(raw)
		if err != nil {
			return ErrModArgType{Mod: "$slice", Want: "integer", Actual: raw}
		}
		switch {
		case n == 0:
			res = []any{}
		case n > 0 && n < len(res):
			res = res[:n]
		case n < 0 && -n < len(res):
			res = res[len(res)+n:]
		}
	}
	return fieldnavigator.Set(doc, path, res)
}

func (m *Modifier) contains(lst []any, v any) bool {
	for _, item := range lst {
		if c, err := m.comp.Compare(item, v); err == nil && c == 0 {
			return true
		}
	}
	return false
}

func (m *Modifier) addToSet(doc data.M, path string, arg any) error {
	lst, err := m.list("$addToSet", doc, path)
	if err != nil {
		return err
	}
	items, _, err := m.each("$addToSet", arg)
	if err != nil {
		return err
	}
	for _, item := range items {
		if !m.contains(lst, item) {
			lst = append(lst, item)
		}
	}
	return fieldnavigator.Set(doc, path, lst)
}

func (m *Modifier) pop(doc data.M, path string, arg any) error {
	lst, err := m.list("$pop", doc, path)
	if err != nil {
		return err
	}
	n, err := cast.ToIntE(arg)
	if err != nil {
		return ErrModArgType{Mod: "$pop", Want: "integer", Actual: arg}
	}
	if len(lst) == 0 || n == 0 {
		return nil
	}
	if n > 0 {
		lst = lst[:len(lst)-1]
	} else {
		lst = lst[1:]
	}
	return fieldnavigator.Set(doc, path, lst)
}

func (m *Modifier) pull(doc data.M, path string, arg any) error {
	lst, err := m.list("$pull", doc, path)
	if err != nil {
		return err
	}
	cond, isCond := data.AsDocument(arg)
	res := make([]any, 0, len(lst))
	for _, item := range lst {
		var remove bool
		if isCond {
			remove, err = m.matcher.Match(data.M{"v": item}, m.wrapCond(cond))
			if err != nil {
				return err
			}
		} else {
			remove = m.contains([]any{item}, arg)
		}
		if !remove {
			res = append(res, item)
		}
	}
	return fieldnavigator.Set(doc, path, res)
}

// wrapCond turns a $pull condition into a filter over the "v" key of a
// wrapper document, prefixing field paths when it targets sub-documents.
func (m *Modifier) wrapCond(cond data.M) data.M {
	res := make(data.M, len(cond))
	for k, v := range cond {
		if strings.HasPrefix(k, "$") {
			res["v"] = cond
			return res
		}
		res["v."+k] = v
	}
	return res
}

func (m *Modifier) pullAll(doc data.M, path string, arg any) error {
	values, ok := data.AsList(arg)
	if !ok {
		return ErrModArgType{Mod: "$pullAll", Want: "list", Actual: arg}
	}
	lst, err := m.list("$pullAll", doc, path)
	if err != nil {
		return err
	}
	res := make([]any, 0, len(lst))
	for _, item := range lst {
		if !m.contains(values, item) {
			res = append(res, item)
		}
	}
	return fieldnavigator.Set(doc, path, res)
}
