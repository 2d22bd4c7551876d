package query

import "github.com/crodas/tuicha/adapter/filter"

// The predicates below mirror the ones of [filter.Filter] and return q, so a
// chain can end with [Query.First] or [Query.All]. The $all predicate is
// reached through q.Filter.All, since [Query.All] runs the query.

// Eq adds an equality predicate.
func (q *Query) Eq(field string, value any) *Query {
	q.Filter.Eq(field, value)
	return q
}

// Ne adds a $ne predicate.
func (q *Query) Ne(field string, value any) *Query {
	q.Filter.Ne(field, value)
	return q
}

// Gt adds a $gt predicate.
func (q *Query) Gt(field string, value any) *Query {
	q.Filter.Gt(field, value)
	return q
}

// Gte adds a $gte predicate.
func (q *Query) Gte(field string, value any) *Query {
	q.Filter.Gte(field, value)
	return q
}

// Lt adds a $lt predicate.
func (q *Query) Lt(field string, value any) *Query {
	q.Filter.Lt(field, value)
	return q
}

// Lte adds a $lte predicate.
func (q *Query) Lte(field string, value any) *Query {
	q.Filter.Lte(field, value)
	return q
}

// In adds a $in predicate.
func (q *Query) In(field string, values ...any) *Query {
	q.Filter.In(field, values...)
	return q
}

// NotIn adds a $nin predicate.
func (q *Query) NotIn(field string, values ...any) *Query {
	q.Filter.NotIn(field, values...)
	return q
}

// Exists adds a $exists predicate.
func (q *Query) Exists(field string, exists ...bool) *Query {
	q.Filter.Exists(field, exists...)
	return q
}

// Between requires field to be within lo and hi, both included.
func (q *Query) Between(field string, lo, hi any) *Query {
	q.Filter.Between(field, lo, hi)
	return q
}

// Size adds a $size predicate.
func (q *Query) Size(field string, size int) *Query {
	q.Filter.Size(field, size)
	return q
}

// Type adds a $type predicate.
func (q *Query) Type(field string, typ any) *Query {
	q.Filter.Type(field, typ)
	return q
}

// Regex adds a $regex predicate.
func (q *Query) Regex(field, pattern string, options ...string) *Query {
	q.Filter.Regex(field, pattern, options...)
	return q
}

// ElemMatch requires an element of the list in field to match the
// sub-filter built by fn.
func (q *Query) ElemMatch(field string, fn func(*filter.Filter)) *Query {
	q.Filter.ElemMatch(field, fn)
	return q
}

// And requires every sub-filter to match.
func (q *Query) And(fns ...func(*filter.Filter)) *Query {
	q.Filter.And(fns...)
	return q
}

// Or requires at least one sub-filter to match.
func (q *Query) Or(fns ...func(*filter.Filter)) *Query {
	q.Filter.Or(fns...)
	return q
}

// Nor requires no sub-filter to match.
func (q *Query) Nor(fns ...func(*filter.Filter)) *Query {
	q.Filter.Nor(fns...)
	return q
}

// Not negates the predicates of the sub-filter built by fn.
func (q *Query) Not(fn func(*filter.Filter)) *Query {
	q.Filter.Not(fn)
	return q
}
