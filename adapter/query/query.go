// Package query runs filters against the collection of a class and turns the
// documents found into objects. It also holds the update and delete builders
// sharing the same filter.
package query

import (
	"context"
	"iter"
	"maps"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/decoder"
	"github.com/crodas/tuicha/adapter/filter"
	"github.com/crodas/tuicha/adapter/metadata"
	"github.com/crodas/tuicha/domain"
)

// Saver persists objects created by [Query.FirstOrCreate].
type Saver interface {
	Save(ctx context.Context, obj any) error
}

// Query selects objects of a class. Predicates are added through the
// embedded [filter.Filter] using Go field names or storage names; both are
// sent as storage names.
type Query struct {
	*filter.Filter
	class      *metadata.Class
	client     domain.DatabaseClient
	database   string
	projection map[string]int
	sort       domain.Sort
	skip       int64
	limit      int64
	saver      Saver
	decoder    domain.Decoder
	log        *zap.Logger
	err        error
}

// New returns a query over the collection of c in database, with f as its
// initial filter.
func New(c *metadata.Class, client domain.DatabaseClient, database string, f *filter.Filter, options ...Option) *Query {
	if f == nil {
		f = filter.New()
	}
	q := &Query{
		Filter:   f,
		class:    c,
		client:   client,
		database: database,
		decoder:  decoder.NewDecoder(),
		log:      zap.NewNop(),
	}
	for _, option := range options {
		option(q)
	}
	return q
}

// Class returns the class being queried.
func (q *Query) Class() *metadata.Class {
	return q.class
}

// Namespace returns the collection the query runs on.
func (q *Query) Namespace() domain.Namespace {
	return domain.Namespace{Database: q.database, Collection: q.class.Collection}
}

// Err returns the first error found while building the query.
func (q *Query) Err() error {
	if q.err != nil {
		return q.err
	}
	return q.Filter.Err()
}

// Where adds a predicate like [filter.Filter.Where] and returns q for
// chaining.
func (q *Query) Where(field string, args ...any) *Query {
	q.Filter.Where(field, args...)
	return q
}

// Scope applies the named scope of the class.
func (q *Query) Scope(name string, args ...any) *Query {
	s, ok := q.class.Scope(name)
	if !ok {
		if q.err == nil {
			q.err = domain.ConfigurationError{Subject: q.class.Name, Reason: "unknown scope " + name}
		}
		return q
	}
	s(q.Filter, args...)
	return q
}

// Project limits the fields loaded to the given ones and the identity.
func (q *Query) Project(fields ...string) *Query {
	return q.project(1, fields)
}

// Exclude skips loading the given fields.
func (q *Query) Exclude(fields ...string) *Query {
	return q.project(0, fields)
}

func (q *Query) project(mode int, fields []string) *Query {
	if q.projection == nil {
		q.projection = make(map[string]int, len(fields))
	}
	for _, f := range fields {
		q.projection[q.class.StorageName(f)] = mode
	}
	return q
}

// Sort appends a sort key. Negative directions sort descending.
func (q *Query) Sort(field string, direction int) *Query {
	q.sort = append(q.sort, domain.SortName{Key: q.class.StorageName(field), Order: int64(direction)})
	return q
}

// SortBy replaces the sort order.
func (q *Query) SortBy(s domain.Sort) *Query {
	q.sort = make(domain.Sort, len(s))
	for n, sn := range s {
		q.sort[n] = domain.SortName{Key: q.class.StorageName(sn.Key), Order: sn.Order}
	}
	return q
}

// Skip sets the number of documents skipped.
func (q *Query) Skip(n int64) *Query {
	q.skip = n
	return q
}

// Limit sets the maximum number of documents returned. Zero means no limit.
func (q *Query) Limit(n int64) *Query {
	q.limit = n
	return q
}

// Document returns the filter sent to the database: field names are
// replaced by storage names and, for classes sharing their collection with
// ancestors, the discriminator constraint is added.
func (q *Query) Document() data.M {
	doc := filter.Rename(q.Filter.Document(), q.class.StorageName)
	cf := q.class.ClassFilter()
	if cf == nil {
		return doc
	}
	if _, taken := doc[domain.ClassField]; !taken {
		maps.Copy(doc, cf)
		return doc
	}
	return data.M{filter.OpAnd: []any{doc, cf}}
}

func (q *Query) options(limit int64) []domain.QueryOption {
	opts := []domain.QueryOption{domain.WithQuerySkip(q.skip), domain.WithQueryLimit(limit)}
	if len(q.sort) > 0 {
		opts = append(opts, domain.WithQuerySort(q.sort))
	}
	if len(q.projection) > 0 {
		opts = append(opts, domain.WithQueryProjection(q.projection))
	}
	return opts
}

func (q *Query) raw(ctx context.Context, limit int64) (domain.Cursor, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}
	selector := q.Document()
	q.log.Debug("query",
		zap.Stringer("ns", q.Namespace()),
		zap.Any("filter", selector),
	)
	return q.client.Query(ctx, q.Namespace(), selector, q.options(limit)...)
}

// Cursor runs the query and returns a cursor over the objects found.
func (q *Query) Cursor(ctx context.Context) (*Cursor, error) {
	raw, err := q.raw(ctx, q.limit)
	if err != nil {
		return nil, err
	}
	return &Cursor{ctx: ctx, query: q, raw: raw}, nil
}

// Iter runs the query and yields every object found. Iteration stops at the
// first error, which is yielded with a nil object.
func (q *Query) Iter(ctx context.Context) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		cur, err := q.Cursor(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		defer cur.Close()
		for cur.Next() {
			if !yield(cur.Current(), nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// All runs the query and returns every object found.
func (q *Query) All(ctx context.Context) ([]any, error) {
	res := make([]any, 0)
	for obj, err := range q.Iter(ctx) {
		if err != nil {
			return nil, err
		}
		res = append(res, obj)
	}
	return res, nil
}

// First returns the first object found, or nil when nothing matches.
func (q *Query) First(ctx context.Context) (any, error) {
	raw, err := q.raw(ctx, 1)
	if err != nil {
		return nil, err
	}
	cur := &Cursor{ctx: ctx, query: q, raw: raw}
	defer cur.Close()
	if !cur.Next() {
		return nil, cur.Err()
	}
	return cur.Current(), nil
}

// FirstOrFail is like [Query.First] but returns a [domain.NotFoundError]
// when nothing matches.
func (q *Query) FirstOrFail(ctx context.Context) (any, error) {
	obj, err := q.First(ctx)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, domain.NotFoundError{Collection: q.class.Collection, Filter: q.Document()}
	}
	return obj, nil
}

// FirstOrCreate returns the first object found. When nothing matches, a new
// object is built from the equality predicates of the query overlaid with
// defaults, saved and returned.
func (q *Query) FirstOrCreate(ctx context.Context, defaults data.M) (any, error) {
	obj, err := q.First(ctx)
	if err != nil || obj != nil {
		return obj, err
	}
	if q.saver == nil {
		return nil, domain.ConfigurationError{Subject: q.class.Name, Reason: "query has no saver"}
	}
	doc := data.M{}
	for key, value := range q.Document() {
		if strings.HasPrefix(key, "$") || strings.Contains(key, ".") || key == domain.ClassField || isOperatorDoc(value) {
			continue
		}
		doc[key] = value
	}
	for key, value := range defaults {
		doc[q.class.StorageName(key)] = value
	}
	obj, err = q.class.Build(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := q.saver.Save(ctx, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Count returns the number of documents matching the filter. Skip, limit
// and sort are ignored.
func (q *Query) Count(ctx context.Context) (int64, error) {
	if err := q.Err(); err != nil {
		return 0, err
	}
	cmd := domain.Command{
		Name:  domain.CommandCount,
		Value: q.class.Collection,
		Args:  map[string]any{"query": domain.Document(q.Document())},
	}
	cur, err := q.client.ExecuteCommand(ctx, q.database, cmd)
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	if !cur.Next() {
		return 0, cur.Err()
	}
	return cast.ToInt64E(cur.Current().Get("n"))
}

// Raw runs the query and returns the documents found, without building
// objects.
func (q *Query) Raw(ctx context.Context) ([]data.M, error) {
	cur, err := q.raw(ctx, q.limit)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	res := make([]data.M, 0)
	for cur.Next() {
		doc, ok := data.AsDocument(cur.Current())
		if !ok {
			return nil, domain.ErrDecode{Source: cur.Current(), Target: doc}
		}
		res = append(res, doc)
	}
	return res, cur.Err()
}

// Scan decodes the raw documents found into target, a pointer to a slice of
// structs or maps. Fields are matched by their tuicha tag name.
func (q *Query) Scan(ctx context.Context, target any) error {
	docs, err := q.Raw(ctx)
	if err != nil {
		return err
	}
	list := make([]any, len(docs))
	for n, doc := range docs {
		list[n] = doc
	}
	return q.decoder.Decode(list, target)
}

// Update returns an update builder sharing the filter of q.
func (q *Query) Update() *Update {
	return &Update{query: q, ops: domain.UpdateOps{}, multi: true}
}

// Delete returns a delete builder sharing the filter of q.
func (q *Query) Delete() *Delete {
	return &Delete{query: q, multi: true}
}

// isOperatorDoc reports whether v holds predicates rather than a value.
// Reference documents are values.
func isOperatorDoc(v any) bool {
	doc, ok := data.AsDocument(v)
	if !ok || len(doc) == 0 || doc.Has(domain.RefField) {
		return false
	}
	for k := range doc {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}
