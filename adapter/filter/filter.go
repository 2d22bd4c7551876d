// Package filter contains a fluent builder of native filter documents.
//
//	f := filter.New().
//		Where("age", ">", 18).
//		Or(
//			func(f *filter.Filter) { f.Where("name", "ana") },
//			func(f *filter.Filter) { f.Prop("tags").In("admin") },
//		)
//	f.Document() // {age: {$gt: 18}, $or: [{name: "ana"}, {tags: {$in: ["admin"]}}]}
package filter

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/domain"
)

// Operators combining sub-filters.
const (
	OpAnd = "$and"
	OpOr  = "$or"
	OpNor = "$nor"
	OpNot = "$not"
	OpEq  = "$eq"
)

var tokens = map[string]string{
	"!=": "$ne",
	"<>": "$ne",
	">":  "$gt",
	">=": "$gte",
	"<":  "$lt",
	"<=": "$lte",
}

// ErrInvalidArgs is reported by [Filter.Err] when [Filter.Where] receives a
// wrong number of arguments or a non-string operator.
type ErrInvalidArgs struct {
	Field string
	Args  []any
}

// Error implements [error].
func (e ErrInvalidArgs) Error() string {
	return fmt.Sprintf("invalid arguments for %q: %v", e.Field, e.Args)
}

// Filter builds a filter document. The zero value is not usable, call
// [New].
type Filter struct {
	doc data.M
	err error
}

// New returns an empty filter.
func New() *Filter {
	return &Filter{doc: data.M{}}
}

// From returns a filter starting from a copy of doc.
func From(doc data.M) *Filter {
	if doc == nil {
		return New()
	}
	return &Filter{doc: data.CopyDoc(doc)}
}

// Err returns the first error found while building the filter.
func (f *Filter) Err() error {
	return f.err
}

// Document returns a copy of the filter document.
func (f *Filter) Document() data.M {
	return data.CopyDoc(f.doc)
}

// IsEmpty reports whether the filter matches every document.
func (f *Filter) IsEmpty() bool {
	return len(f.doc) == 0
}

// Clone returns an independent copy of f.
func (f *Filter) Clone() *Filter {
	return &Filter{doc: data.CopyDoc(f.doc), err: f.err}
}

// Where adds a predicate on field. With one argument it is an equality,
// with two the first one is an operator: "=", "==", "!=", "<>", ">", ">=",
// "<", "<=" or any native operator with or without its "$" prefix.
func (f *Filter) Where(field string, args ...any) *Filter {
	switch len(args) {
	case 1:
		return f.eq(field, args[0])
	case 2:
		op, ok := args[0].(string)
		if ok {
			return f.op(field, op, args[1])
		}
	}
	if f.err == nil {
		f.err = ErrInvalidArgs{Field: field, Args: args}
	}
	return f
}

// Set assigns value to field, replacing any predicate on it.
func (f *Filter) Set(field string, value any) *Filter {
	f.doc[field] = value
	return f
}

// Eq adds an equality predicate.
func (f *Filter) Eq(field string, value any) *Filter {
	return f.eq(field, value)
}

// Ne adds a $ne predicate.
func (f *Filter) Ne(field string, value any) *Filter {
	return f.op(field, "$ne", value)
}

// Gt adds a $gt predicate.
func (f *Filter) Gt(field string, value any) *Filter {
	return f.op(field, "$gt", value)
}

// Gte adds a $gte predicate.
func (f *Filter) Gte(field string, value any) *Filter {
	return f.op(field, "$gte", value)
}

// Lt adds a $lt predicate.
func (f *Filter) Lt(field string, value any) *Filter {
	return f.op(field, "$lt", value)
}

// Lte adds a $lte predicate.
func (f *Filter) Lte(field string, value any) *Filter {
	return f.op(field, "$lte", value)
}

// In adds a $in predicate.
func (f *Filter) In(field string, values ...any) *Filter {
	return f.op(field, "$in", listArg(values))
}

// NotIn adds a $nin predicate.
func (f *Filter) NotIn(field string, values ...any) *Filter {
	return f.op(field, "$nin", listArg(values))
}

// All adds a $all predicate.
func (f *Filter) All(field string, values ...any) *Filter {
	return f.op(field, "$all", listArg(values))
}

// Exists adds a $exists predicate. It checks for presence unless false is
// given.
func (f *Filter) Exists(field string, exists ...bool) *Filter {
	return f.op(field, "$exists", len(exists) == 0 || exists[0])
}

// Between matches values in the closed range [lo, hi].
func (f *Filter) Between(field string, lo, hi any) *Filter {
	return f.op(field, "$gte", lo).op(field, "$lte", hi)
}

// Size adds a $size predicate.
func (f *Filter) Size(field string, size int) *Filter {
	return f.op(field, "$size", size)
}

// Type adds a $type predicate.
func (f *Filter) Type(field string, typ any) *Filter {
	return f.op(field, "$type", typ)
}

// Regex adds a $regex predicate. Options, such as "i", are optional.
func (f *Filter) Regex(field, pattern string, options ...string) *Filter {
	f.op(field, "$regex", pattern)
	if len(options) > 0 {
		f.op(field, "$options", strings.Join(options, ""))
	}
	return f
}

// ElemMatch matches list elements satisfying the sub-filter built by fn.
func (f *Filter) ElemMatch(field string, fn func(*Filter)) *Filter {
	sub := f.sub(fn)
	return f.op(field, "$elemMatch", sub.doc)
}

// And requires every sub-filter to match.
func (f *Filter) And(fns ...func(*Filter)) *Filter {
	return f.group(OpAnd, fns)
}

// Or requires at least one sub-filter to match.
func (f *Filter) Or(fns ...func(*Filter)) *Filter {
	return f.group(OpOr, fns)
}

// Nor requires no sub-filter to match.
func (f *Filter) Nor(fns ...func(*Filter)) *Filter {
	return f.group(OpNor, fns)
}

// Not negates every predicate of the sub-filter built by fn. Negated field
// predicates are merged with the ones already on the field. Negated groups,
// and fields negated twice, are added to $nor.
func (f *Filter) Not(fn func(*Filter)) *Filter {
	sub := f.sub(fn)
	for _, field := range slices.Sorted(maps.Keys(sub.doc)) {
		value := sub.doc[field]
		if strings.HasPrefix(field, "$") {
			f.nor(data.M{field: value})
			continue
		}
		if prev, ok := f.doc[field].(data.M); ok && isOperatorDoc(prev) {
			if old, has := prev[OpNot]; has {
				delete(prev, OpNot)
				if len(prev) == 0 {
					delete(f.doc, field)
				}
				f.nor(data.M{field: old}, data.M{field: value})
				continue
			}
		}
		neg, ok := value.(data.M)
		if !ok || !isOperatorDoc(neg) {
			neg = data.M{OpEq: value}
		}
		f.op(field, OpNot, neg)
	}
	return f
}

func (f *Filter) nor(docs ...data.M) {
	list, _ := f.doc[OpNor].([]any)
	for _, d := range docs {
		list = append(list, d)
	}
	f.doc[OpNor] = list
}

// Prop returns a proxy building predicates on path.
func (f *Filter) Prop(path string) *Property {
	return &Property{f: f, path: path}
}

// listArg lets In, NotIn and All take either variadic values or one slice.
func listArg(values []any) []any {
	if len(values) == 1 {
		if lst, ok := data.AsList(values[0]); ok {
			return lst
		}
	}
	if values == nil {
		return []any{}
	}
	return values
}

func (f *Filter) sub(fn func(*Filter)) *Filter {
	sub := New()
	fn(sub)
	if f.err == nil {
		f.err = sub.err
	}
	return sub
}

func (f *Filter) group(op string, fns []func(*Filter)) *Filter {
	if len(fns) == 0 {
		return f
	}
	list, _ := f.doc[op].([]any)
	for _, fn := range fns {
		list = append(list, f.sub(fn).doc)
	}
	f.doc[op] = list
	return f
}

func (f *Filter) eq(field string, value any) *Filter {
	if existing, ok := f.doc[field].(data.M); ok && isOperatorDoc(existing) {
		existing[OpEq] = value
		return f
	}
	f.doc[field] = value
	return f
}

func (f *Filter) op(field, op string, value any) *Filter {
	op = Operator(op)
	if op == "" {
		return f.eq(field, value)
	}
	existing, has := f.doc[field]
	switch {
	case !has:
		f.doc[field] = data.M{op: value}
	case isOperatorDoc(existing):
		existing.(data.M)[op] = value
	default:
		f.doc[field] = data.M{OpEq: existing, op: value}
	}
	return f
}

// Operator maps a comparison token to its native operator. Equality tokens
// map to "". Bare words are lowercased and prefixed with "$"; prefixed
// operators are kept verbatim.
func Operator(token string) string {
	token = strings.TrimSpace(token)
	if token == "=" || token == "==" {
		return ""
	}
	if op, ok := tokens[token]; ok {
		return op
	}
	if strings.HasPrefix(token, "$") {
		return token
	}
	return "$" + strings.ToLower(token)
}

var refKeys = []string{domain.RefField, domain.RefIDField, "$db"}

// isOperatorDoc reports whether v is a non-empty document made only of
// operators. Reference documents are values, not operators.
func isOperatorDoc(v any) bool {
	doc, ok := v.(data.M)
	if !ok || len(doc) == 0 {
		return false
	}
	for k := range doc {
		if !strings.HasPrefix(k, "$") || slices.Contains(refKeys, k) {
			return false
		}
	}
	return true
}

// Rename returns a copy of doc with field names mapped through fn. Top-level
// keys and the keys of documents inside $and, $or and $nor lists are
// renamed; operator keys are kept.
func Rename(doc data.M, fn func(string) string) data.M {
	res := make(data.M, len(doc))
	for k, v := range doc {
		switch k {
		case OpAnd, OpOr, OpNor:
			if list, ok := v.([]any); ok {
				renamed := make([]any, len(list))
				for n, item := range list {
					if sub, ok := data.AsDocument(item); ok {
						renamed[n] = Rename(sub, fn)
					} else {
						renamed[n] = data.Copy(item)
					}
				}
				res[k] = renamed
				continue
			}
		}
		if strings.HasPrefix(k, "$") {
			res[k] = data.Copy(v)
			continue
		}
		res[fn(k)] = data.Copy(v)
	}
	return res
}
