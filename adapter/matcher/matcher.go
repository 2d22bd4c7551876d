// Package matcher contains the default implementation of [domain.Matcher]
// using basic mongo-like match API.
package matcher

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crodas/tuicha/adapter/comparer"
	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/fieldnavigator"
	"github.com/crodas/tuicha/domain"
)

var (
	// ErrMixedOperators is returned when user provides a query with mixed
	// use of normal fields and operators.
	ErrMixedOperators = errors.New("cannot mix operators and normal fields")
)

// ErrUnknownOperator is returned when user provides an unknown dollar field.
type ErrUnknownOperator struct {
	Operator string
}

// Error implements [error].
func (e ErrUnknownOperator) Error() string {
	return fmt.Sprintf("unknown operator %q", e.Operator)
}

// ErrCompArgType is returned when a comparison operator is called with an
// argument of invalid type.
type ErrCompArgType struct {
	Comp   string
	Want   string
	Actual any
}

// Error implements [error].
func (e ErrCompArgType) Error() string {
	return fmt.Sprintf(
		"%s value should be of type %s, got %T",
		e.Comp, e.Want, e.Actual,
	)
}

// WhereFunc is the argument accepted by the $where operator.
type WhereFunc = func(domain.Document) (bool, error)

// Matcher implements [domain.Matcher].
type Matcher struct {
	comparer domain.Comparer
}

// NewMatcher returns a new implementation of domain.Matcher.
func NewMatcher(options ...Option) domain.Matcher {
	m := &Matcher{
		comparer: comparer.NewComparer(),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Match implements [domain.Matcher].
func (m *Matcher) Match(doc domain.Document, filter domain.Document) (bool, error) {
	d, ok := data.AsDocument(doc)
	if !ok {
		d = data.M{}
	}
	f, ok := data.AsDocument(filter)
	if !ok {
		return true, nil
	}
	return m.matchDoc(d, f)
}

func (m *Matcher) matchDoc(doc data.M, filter data.M) (bool, error) {
	for key, arg := range filter.Iter() {
		var matches bool
		var err error
		if strings.HasPrefix(key, "$") {
			matches, err = m.logic(doc, key, arg)
		} else {
			matches, err = m.field(doc, key, arg)
		}
		if err != nil || !matches {
			return false, err
		}
	}
	return true, nil
}

func (m *Matcher) logic(doc data.M, op string, arg any) (bool, error) {
	switch op {
	case "$and", "$or", "$nor":
		subs, ok := data.AsList(arg)
		if !ok {
			return false, ErrCompArgType{Comp: op, Want: "list", Actual: arg}
		}
		for _, sub := range subs {
			f, ok := data.AsDocument(sub)
			if !ok {
				return false, ErrCompArgType{Comp: op, Want: "list of documents", Actual: sub}
			}
			matches, err := m.matchDoc(doc, f)
			if err != nil {
				return false, err
			}
			switch {
			case op == "$and" && !matches:
				return false, nil
			case op == "$or" && matches:
				return true, nil
			case op == "$nor" && matches:
				return false, nil
			}
		}
		return op != "$or" || len(subs) == 0, nil
	case "$not":
		f, ok := data.AsDocument(arg)
		if !ok {
			return false, ErrCompArgType{Comp: op, Want: "document", Actual: arg}
		}
		matches, err := m.matchDoc(doc, f)
		return !matches, err
	case "$where":
		fn, ok := arg.(WhereFunc)
		if !ok {
			return false, ErrCompArgType{Comp: op, Want: "func(domain.Document) (bool, error)", Actual: arg}
		}
		return fn(doc)
	default:
		return false, ErrUnknownOperator{Operator: op}
	}
}

func (m *Matcher) field(doc data.M, path string, arg any) (bool, error) {
	values, _, found := fieldnavigator.Get(doc, path)

	if rgx, ok := arg.(*regexp.Regexp); ok {
		return m.regex(values, rgx), nil
	}

	if ops, ok := data.AsDocument(arg); ok && len(ops) > 0 {
		dollar := 0
		for k := range ops {
			if strings.HasPrefix(k, "$") {
				dollar++
			}
		}
		if dollar == len(ops) {
			return m.operators(values, found, ops)
		}
		if dollar > 0 {
			return false, ErrMixedOperators
		}
	}

	return m.eq(values, found, arg), nil
}

func (m *Matcher) operators(values []any, found bool, ops data.M) (bool, error) {
	var options string
	if o, ok := ops["$options"].(string); ok {
		options = o
	}
	for op, arg := range ops.Iter() {
		var matches bool
		var err error
		switch op {
		case "$eq":
			matches = m.eq(values, found, arg)
		case "$ne":
			matches = !m.eq(values, found, arg)
		case "$gt", "$gte", "$lt", "$lte":
			matches = m.cmp(values, op, arg)
		case "$in", "$nin":
			matches, err = m.in(values, found, op, arg)
			if op == "$nin" && err == nil {
				matches = !matches
			}
		case "$all":
			matches, err = m.all(values, arg)
		case "$exists":
			matches = found == cast.ToBool(arg)
		case "$size":
			matches, err = m.size(values, arg)
		case "$type":
			matches = m.typeOf(values, arg)
		case "$regex":
			var rgx *regexp.Regexp
			rgx, err = m.makeRegex(arg, options)
			if err == nil {
				matches = m.regex(values, rgx)
			}
		case "$options":
			continue
		case "$elemMatch":
			matches, err = m.elemMatch(values, arg)
		case "$not":
			matches, err = m.not(values, found, arg)
		default:
			return false, ErrUnknownOperator{Operator: op}
		}
		if err != nil || !matches {
			return false, err
		}
	}
	return true, nil
}

func (m *Matcher) equal(a, b any) bool {
	if m.comparer.Comparable(a, b) {
		c, err := m.comparer.Compare(a, b)
		return err == nil && c == 0
	}
	return data.Equal(a, b)
}

func (m *Matcher) eq(values []any, found bool, arg any) bool {
	if !found {
		return arg == nil
	}
	for _, v := range values {
		if m.equal(v, arg) {
			return true
		}
		if lst, ok := v.([]any); ok {
			for _, item := range lst {
				if m.equal(item, arg) {
					return true
				}
			}
		}
	}
	return false
}

func (m *Matcher) cmp(values []any, op string, arg any) bool {
	test := func(v any) bool {
		if !m.comparer.Comparable(v, arg) {
			return false
		}
		c, err := m.comparer.Compare(v, arg)
		if err != nil {
			return false
		}
		switch op {
		case "$gt":
			return c > 0
		case "$gte":
			return c >= 0
		case "$lt":
			return c < 0
		default:
			return c <= 0
		}
	}
	for _, v := range values {
		if test(v) {
			return true
		}
		if lst, ok := v.([]any); ok {
			for _, item := range lst {
				if test(item) {
					return true
				}
			}
		}
	}
	return false
}

func (m *Matcher) in(values []any, found bool, op string, arg any) (bool, error) {
	candidates, ok := data.AsList(arg)
	if !ok {
		return false, ErrCompArgType{Comp: op, Want: "list", Actual: arg}
	}
	for _, c := range candidates {
		if rgx, ok := c.(*regexp.Regexp); ok {
			if m.regex(values, rgx) {
				return true, nil
			}
			continue
		}
		if m.eq(values, found, c) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Matcher) all(values []any, arg any) (bool, error) {
	wanted, ok := data.AsList(arg)
	if !ok {
		return false, ErrCompArgType{Comp: "$all", Want: "list", Actual: arg}
	}
	if len(wanted) == 0 {
		return false, nil
	}
	for _, w := range wanted {
		if !m.eq(values, len(values) > 0, w) {
			return false, nil
		}
	}
	return true, nil
}

func (m *Matcher) size(values []any, arg any) (bool, error) {
	n, err := cast.ToIntE(arg)
	if err != nil {
		return false, ErrCompArgType{Comp: "$size", Want: "integer", Actual: arg}
	}
	for _, v := range values {
		if lst, ok := v.([]any); ok && len(lst) == n {
			return true, nil
		}
	}
	return false, nil
}

// TypeName returns the name $type uses for the type of v.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int8, int16, int32, uint8, uint16:
		return "int"
	case int64, uint, uint32, uint64:
		return "long"
	case float32, float64:
		return "double"
	case time.Time, primitive.DateTime:
		return "date"
	case primitive.ObjectID:
		return "objectId"
	case []any:
		return "array"
	}
	if _, ok := data.AsDocument(v); ok {
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func (m *Matcher) typeOf(values []any, arg any) bool {
	names, ok := data.AsList(arg)
	if !ok {
		names = []any{arg}
	}
	for _, v := range values {
		actual := TypeName(v)
		for _, n := range names {
			name := cast.ToString(n)
			if name == actual || (name == "number" && (actual == "int" || actual == "long" || actual == "double")) {
				return true
			}
		}
	}
	return false
}

func (m *Matcher) makeRegex(arg any, options string) (*regexp.Regexp, error) {
	switch t := arg.(type) {
	case *regexp.Regexp:
		return t, nil
	case string:
		flags := ""
		for _, o := range options {
			if strings.ContainsRune("imsU", o) {
				flags += string(o)
			}
		}
		if flags != "" {
			t = "(?" + flags + ")" + t
		}
		return regexp.Compile(t)
	case primitive.Regex:
		return m.makeRegex(t.Pattern, t.Options)
	default:
		return nil, ErrCompArgType{Comp: "$regex", Want: "regex", Actual: arg}
	}
}

func (m *Matcher) regex(values []any, rgx *regexp.Regexp) bool {
	for _, v := range values {
		if str, ok := v.(string); ok && rgx.MatchString(str) {
			return true
		}
		if lst, ok := v.([]any); ok {
			for _, item := range lst {
				if str, ok := item.(string); ok && rgx.MatchString(str) {
					return true
				}
			}
		}
	}
	return false
}

func (m *Matcher) elemMatch(values []any, arg any) (bool, error) {
	f, ok := data.AsDocument(arg)
	if !ok {
		return false, ErrCompArgType{Comp: "$elemMatch", Want: "document", Actual: arg}
	}
	onlyOps := true
	for k := range f {
		if !strings.HasPrefix(k, "$") {
			onlyOps = false
		}
	}
	for _, v := range values {
		lst, ok := v.([]any)
		if !ok {
			continue
		}
		for _, item := range lst {
			var matches bool
			var err error
			if onlyOps {
				matches, err = m.operators([]any{item}, true, f)
			} else if doc, isDoc := data.AsDocument(item); isDoc {
				matches, err = m.matchDoc(doc, f)
			}
			if err != nil || matches {
				return matches, err
			}
		}
	}
	return false, nil
}

func (m *Matcher) not(values []any, found bool, arg any) (bool, error) {
	if rgx, ok := arg.(*regexp.Regexp); ok {
		return !m.regex(values, rgx), nil
	}
	ops, ok := data.AsDocument(arg)
	if !ok {
		return false, ErrCompArgType{Comp: "$not", Want: "operator document or regex", Actual: arg}
	}
	matches, err := m.operators(values, found, ops)
	return !matches, err
}
