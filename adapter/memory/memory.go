// Package memory contains an in-memory [domain.DatabaseClient]. Documents
// are kept in AVL-backed indexes, filtered by the default matcher and
// changed by the default modifier, giving tests and small programs a
// document store with the same write and command semantics the mapper
// expects from a real server.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/crodas/tuicha/adapter/comparer"
	"github.com/crodas/tuicha/adapter/cursor"
	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/fieldnavigator"
	"github.com/crodas/tuicha/adapter/idgenerator"
	"github.com/crodas/tuicha/adapter/index"
	"github.com/crodas/tuicha/adapter/matcher"
	"github.com/crodas/tuicha/adapter/modifier"
	"github.com/crodas/tuicha/adapter/querier"
	"github.com/crodas/tuicha/adapter/serializer"
	"github.com/crodas/tuicha/adapter/storage"
	"github.com/crodas/tuicha/domain"
)

// PrimaryIndexName is the name of the unique index every collection keeps on
// _id.
const PrimaryIndexName = "_id_"

// ErrCollectionNotFound is returned by commands that need an existing
// collection.
var ErrCollectionNotFound = errors.New("collection not found")

type collection struct {
	name    string
	primary *index.Index
	indexes []*index.Index
}

func (c *collection) docs() []domain.Document {
	return slices.Collect(c.primary.GetAll())
}

// Client implements [domain.DatabaseClient].
type Client struct {
	mu          sync.RWMutex
	databases   map[string]map[string]*collection
	comparer    domain.Comparer
	matcher     domain.Matcher
	modifier    domain.Modifier
	querier     domain.Querier
	idGenerator domain.IDGenerator
	serializer  *serializer.Serializer
	storage     *storage.Storage
	log         *zap.Logger
}

// NewClient returns a new, empty, in-memory database client.
func NewClient(options ...Option) *Client {
	c := &Client{
		databases:   make(map[string]map[string]*collection),
		comparer:    comparer.NewComparer(),
		idGenerator: idgenerator.NewIDGenerator(),
		serializer:  serializer.NewSerializer(),
		storage:     storage.NewStorage(),
		log:         zap.NewNop(),
	}
	for _, option := range options {
		option(c)
	}
	if c.matcher == nil {
		c.matcher = matcher.NewMatcher(matcher.WithComparer(c.comparer))
	}
	if c.modifier == nil {
		c.modifier = modifier.NewModifier(
			modifier.WithComparer(c.comparer),
			modifier.WithMatcher(c.matcher),
		)
	}
	if c.querier == nil {
		c.querier = querier.NewQuerier(
			querier.WithComparer(c.comparer),
			querier.WithMatcher(c.matcher),
		)
	}
	return c
}

func (c *Client) newIndex(spec domain.IndexSpec) (*index.Index, error) {
	return index.NewIndex(
		domain.WithIndexSpec(spec),
		domain.WithIndexComparer(c.comparer),
	)
}

// collection returns the collection of ns. When create is set, missing
// databases and collections are created. Callers hold the write lock when
// create is set.
func (c *Client) collection(ns domain.Namespace, create bool) (*collection, error) {
	db, ok := c.databases[ns.Database]
	if !ok {
		if !create {
			return nil, nil
		}
		db = make(map[string]*collection)
		c.databases[ns.Database] = db
	}
	coll, ok := db[ns.Collection]
	if ok || !create {
		return coll, nil
	}
	primary, err := c.newIndex(domain.IndexSpec{
		Name:   PrimaryIndexName,
		Fields: []domain.IndexField{{Name: domain.IDField, Direction: 1}},
		Unique: true,
	})
	if err != nil {
		return nil, err
	}
	coll = &collection{name: ns.Collection, primary: primary}
	db[ns.Collection] = coll
	c.log.Debug("collection created", zap.Stringer("ns", ns))
	return coll, nil
}

// Query implements [domain.DatabaseClient]. Returned documents are copies;
// rewinding the cursor runs the query again.
func (c *Client) Query(ctx context.Context, ns domain.Namespace, filter domain.Document, opts ...domain.QueryOption) (domain.Cursor, error) {
	run := func() ([]domain.Document, error) {
		return c.find(ns, filter, opts...)
	}
	docs, err := run()
	if err != nil {
		return nil, err
	}
	c.log.Debug("query",
		zap.Stringer("ns", ns),
		zap.Any("filter", filter),
		zap.Int("results", len(docs)),
	)
	return cursor.NewCursor(ctx, docs, domain.WithCursorRefill(run))
}

func (c *Client) find(ns domain.Namespace, filter domain.Document, opts ...domain.QueryOption) ([]domain.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	coll, err := c.collection(ns, false)
	if err != nil || coll == nil {
		return []domain.Document{}, err
	}
	opts = append(slices.Clone(opts), domain.WithQueryFilter(filter))
	res, err := c.querier.Query(coll.primary.GetAll(), opts...)
	if err != nil {
		return nil, err
	}
	for n, doc := range res {
		d, _ := data.AsDocument(doc)
		res[n] = data.CopyDoc(d)
	}
	return res, nil
}

// ExecuteWrite implements [domain.DatabaseClient]. Operations run in order
// and the batch stops at the first rejected one, which is reported both in
// [domain.WriteResult.WriteErrors] and as a [domain.WriteErrors] error.
func (c *Client) ExecuteWrite(ctx context.Context, ns domain.Namespace, ops []domain.WriteOperation, wc domain.WriteConcern) (domain.WriteResult, error) {
	var res domain.WriteResult
	select {
	case <-ctx.Done():
		return res, ctx.Err()
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Debug("write",
		zap.Stringer("ns", ns),
		zap.Int("ops", len(ops)),
		zap.Int("w", wc.W),
	)

	coll, err := c.collection(ns, true)
	if err != nil {
		return res, err
	}

	for n, op := range ops {
		var err error
		switch op.Kind {
		case domain.WriteInsert:
			err = c.insert(ctx, coll, op.Document, &res)
		case domain.WriteUpdate:
			err = c.update(ctx, coll, op, &res)
		case domain.WriteDelete:
			err = c.delete(ctx, coll, op, &res)
		default:
			err = fmt.Errorf("unknown write kind %d", op.Kind)
		}
		if err == nil {
			continue
		}
		var dup index.ErrDuplicateKey
		if !errors.As(err, &dup) {
			return res, err
		}
		res.WriteErrors = append(res.WriteErrors, domain.WriteError{
			Index:   n,
			Code:    domain.DuplicateKeyCode,
			Message: fmt.Sprintf("E11000 duplicate key error collection: %s index: %s dup key: %v", ns, dup.Index, dup.Key),
		})
		return res, domain.WriteErrors(res.WriteErrors)
	}
	return res, nil
}

func (c *Client) insert(ctx context.Context, coll *collection, document domain.Document, res *domain.WriteResult) error {
	doc, ok := data.AsDocument(document)
	if !ok {
		doc = data.M{}
	}
	doc = data.Normalize(data.CopyDoc(doc)).(data.M)
	if _, ok := doc[domain.IDField]; !ok {
		id, err := c.idGenerator.GenerateID()
		if err != nil {
			return err
		}
		doc[domain.IDField] = id
	}
	if err := c.indexInsert(ctx, coll, doc); err != nil {
		return err
	}
	res.InsertedIDs = append(res.InsertedIDs, doc[domain.IDField])
	return nil
}

// indexInsert adds doc to every index of coll, undoing the partial insertion
// on failure.
func (c *Client) indexInsert(ctx context.Context, coll *collection, doc domain.Document) error {
	all := append([]*index.Index{coll.primary}, coll.indexes...)
	for n, idx := range all {
		if err := idx.Insert(ctx, doc); err != nil {
			for _, prev := range all[:n] {
				_ = prev.Remove(context.WithoutCancel(ctx), doc)
			}
			return err
		}
	}
	return nil
}

func (c *Client) indexUpdate(ctx context.Context, coll *collection, oldDoc, newDoc domain.Document) error {
	all := append([]*index.Index{coll.primary}, coll.indexes...)
	for n, idx := range all {
		if err := idx.Update(ctx, oldDoc, newDoc); err != nil {
			for _, prev := range all[:n] {
				_ = prev.Update(context.WithoutCancel(ctx), newDoc, oldDoc)
			}
			return err
		}
	}
	return nil
}

func (c *Client) indexRemove(ctx context.Context, coll *collection, doc domain.Document) error {
	all := append([]*index.Index{coll.primary}, coll.indexes...)
	errs := make([]error, 0)
	for _, idx := range all {
		if err := idx.Remove(ctx, doc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) matching(coll *collection, filter domain.Document, multi bool) ([]domain.Document, error) {
	var res []domain.Document
	for doc := range coll.primary.GetAll() {
		ok, err := c.matcher.Match(doc, filter)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		res = append(res, doc)
		if !multi {
			break
		}
	}
	return res, nil
}

func (c *Client) update(ctx context.Context, coll *collection, op domain.WriteOperation, res *domain.WriteResult) error {
	docs, err := c.matching(coll, op.Filter, op.Multi)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		if !op.Upsert {
			return nil
		}
		return c.upsert(ctx, coll, op.Filter, op.Update, res)
	}
	for _, doc := range docs {
		newDoc, err := c.modifier.Modify(doc, op.Update)
		if err != nil {
			return err
		}
		res.MatchedCount++
		if data.Equal(doc, newDoc) {
			continue
		}
		if err := c.indexUpdate(ctx, coll, doc, newDoc); err != nil {
			return err
		}
		res.ModifiedCount++
	}
	return nil
}

// upsert inserts the document described by the equality conditions of
// filter with update applied on top of it.
func (c *Client) upsert(ctx context.Context, coll *collection, filter, update domain.Document, res *domain.WriteResult) error {
	base := data.M{}
	if f, ok := data.AsDocument(filter); ok {
		for key, value := range f {
			if strings.HasPrefix(key, "$") || isOperatorDoc(value) {
				continue
			}
			if err := fieldnavigator.Set(base, key, data.Copy(value)); err != nil {
				return err
			}
		}
	}
	doc, err := c.modifier.Modify(base, update)
	if err != nil {
		return err
	}
	inserted := domain.WriteResult{}
	if err := c.insert(ctx, coll, doc, &inserted); err != nil {
		return err
	}
	res.UpsertedIDs = append(res.UpsertedIDs, inserted.InsertedIDs...)
	return nil
}

func isOperatorDoc(v any) bool {
	d, ok := data.AsDocument(v)
	if !ok || len(d) == 0 {
		return false
	}
	for k := range d {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func (c *Client) delete(ctx context.Context, coll *collection, op domain.WriteOperation, res *domain.WriteResult) error {
	docs, err := c.matching(coll, op.Filter, op.Multi)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := c.indexRemove(ctx, coll, doc); err != nil {
			return err
		}
		res.DeletedCount++
	}
	return nil
}

// ExecuteCommand implements [domain.DatabaseClient].
func (c *Client) ExecuteCommand(ctx context.Context, db string, cmd domain.Command) (domain.Cursor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c.log.Debug("command",
		zap.String("db", db),
		zap.String("name", cmd.Name),
		zap.Any("value", cmd.Value),
	)

	name, _ := cmd.Value.(string)
	ns := domain.Namespace{Database: db, Collection: name}

	var (
		docs []domain.Document
		err  error
	)
	switch cmd.Name {
	case domain.CommandCount:
		docs, err = c.count(ns, cmd.Args)
	case domain.CommandCreateIndexes:
		docs, err = c.createIndexes(ctx, ns, cmd.Args)
	case domain.CommandListIndexes:
		docs, err = c.listIndexes(ns)
	case domain.CommandListCollections:
		docs = c.listCollections(db)
	case domain.CommandDrop:
		docs = c.drop(ns)
	case domain.CommandDropDatabase:
		docs = c.dropDatabase(db)
	case domain.CommandFindAndModify:
		docs, err = c.findAndModify(ctx, ns, cmd.Args)
	default:
		err = fmt.Errorf("%w: %s", domain.ErrUnknownCommand, cmd.Name)
	}
	if err != nil {
		return nil, err
	}
	return cursor.NewCursor(ctx, docs)
}

func (c *Client) count(ns domain.Namespace, args map[string]any) ([]domain.Document, error) {
	filter, _ := args["query"].(domain.Document)
	docs, err := c.find(ns, filter)
	if err != nil {
		return nil, err
	}
	return []domain.Document{data.M{"n": len(docs), "ok": 1}}, nil
}

func (c *Client) createIndexes(ctx context.Context, ns domain.Namespace, args map[string]any) ([]domain.Document, error) {
	specs, _ := args["indexes"].([]domain.IndexSpec)

	c.mu.Lock()
	defer c.mu.Unlock()

	_, existed := c.databases[ns.Database][ns.Collection]
	coll, err := c.collection(ns, true)
	if err != nil {
		return nil, err
	}
	before := len(coll.indexes) + 1
	for _, spec := range specs {
		if spec.Name == "" {
			spec.Name = domain.IndexName(spec.Fields, spec.Unique)
		}
		if spec.Name == PrimaryIndexName || slices.ContainsFunc(coll.indexes, func(i *index.Index) bool {
			return i.Spec().Name == spec.Name
		}) {
			continue
		}
		idx, err := c.newIndex(spec)
		if err != nil {
			return nil, err
		}
		if err := idx.Insert(ctx, coll.docs()...); err != nil {
			return nil, err
		}
		coll.indexes = append(coll.indexes, idx)
	}
	return []domain.Document{data.M{
		"createdCollectionAutomatically": !existed,
		"numIndexesBefore":               before,
		"numIndexesAfter":                len(coll.indexes) + 1,
		"ok":                             1,
	}}, nil
}

func indexDocument(spec domain.IndexSpec) data.M {
	key := data.M{}
	for _, f := range spec.Fields {
		key[f.Name] = f.Direction
	}
	doc := data.M{"name": spec.Name, "key": key}
	if spec.Unique {
		doc["unique"] = true
	}
	if spec.Sparse {
		doc["sparse"] = true
	}
	return doc
}

func (c *Client) listIndexes(ns domain.Namespace) ([]domain.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	coll, err := c.collection(ns, false)
	if err != nil {
		return nil, err
	}
	if coll == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, ns)
	}
	res := []domain.Document{indexDocument(coll.primary.Spec())}
	for _, idx := range coll.indexes {
		res = append(res, indexDocument(idx.Spec()))
	}
	return res, nil
}

func (c *Client) listCollections(db string) []domain.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := slices.Sorted(maps.Keys(c.databases[db]))
	res := make([]domain.Document, len(names))
	for n, name := range names {
		res[n] = data.M{"name": name, "type": "collection"}
	}
	return res
}

func (c *Client) drop(ns domain.Namespace) []domain.Document {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.databases[ns.Database], ns.Collection)
	return []domain.Document{data.M{"ns": ns.String(), "ok": 1}}
}

func (c *Client) dropDatabase(db string) []domain.Document {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.databases, db)
	return []domain.Document{data.M{"dropped": db, "ok": 1}}
}

func (c *Client) findAndModify(ctx context.Context, ns domain.Namespace, args map[string]any) ([]domain.Document, error) {
	filter, _ := args["query"].(domain.Document)
	update, _ := args["update"].(domain.Document)
	sort, _ := args["sort"].(domain.Sort)
	upsert, _ := args["upsert"].(bool)
	returnNew, _ := args["new"].(bool)
	remove, _ := args["remove"].(bool)

	c.mu.Lock()
	defer c.mu.Unlock()

	coll, err := c.collection(ns, true)
	if err != nil {
		return nil, err
	}
	found, err := c.querier.Query(coll.primary.GetAll(),
		domain.WithQueryFilter(filter),
		domain.WithQuerySort(sort),
		domain.WithQueryLimit(1),
	)
	if err != nil {
		return nil, err
	}

	var value any
	var res domain.WriteResult
	switch {
	case len(found) == 0 && upsert && !remove:
		if err := c.upsert(ctx, coll, filter, update, &res); err != nil {
			return nil, err
		}
		if returnNew {
			docs, err := coll.primary.GetMatching(res.UpsertedIDs...)
			if err != nil {
				return nil, err
			}
			value = c.first(docs)
		}
	case len(found) == 0:
	case remove:
		if err := c.indexRemove(ctx, coll, found[0]); err != nil {
			return nil, err
		}
		value = c.first(found)
	default:
		newDoc, err := c.modifier.Modify(found[0], update)
		if err != nil {
			return nil, err
		}
		if err := c.indexUpdate(ctx, coll, found[0], newDoc); err != nil {
			return nil, err
		}
		value = c.first(found)
		if returnNew {
			value = c.first([]domain.Document{newDoc})
		}
	}
	return []domain.Document{data.M{"value": value, "ok": 1}}, nil
}

func (c *Client) first(docs []domain.Document) any {
	if len(docs) == 0 {
		return nil
	}
	d, _ := data.AsDocument(docs[0])
	return data.CopyDoc(d)
}

// Namespaces returns every namespace holding a collection, sorted.
func (c *Client) Namespaces() []domain.Namespace {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.namespaces()
}

func (c *Client) namespaces() []domain.Namespace {
	var res []domain.Namespace
	for db, colls := range c.databases {
		for name := range colls {
			res = append(res, domain.Namespace{Database: db, Collection: name})
		}
	}
	slices.SortFunc(res, func(a, b domain.Namespace) int {
		return cmp.Compare(a.String(), b.String())
	})
	return res
}
