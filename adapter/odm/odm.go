// Package odm contains the entry point of the mapper. It owns the class
// registry, the named database connections and the persister, and hands
// out queries and write builders bound to the right connection.
package odm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/filter"
	"github.com/crodas/tuicha/adapter/metadata"
	"github.com/crodas/tuicha/adapter/persister"
	"github.com/crodas/tuicha/adapter/query"
	"github.com/crodas/tuicha/domain"
)

type connection struct {
	client   domain.DatabaseClient
	database string
}

// ODM maps objects to the collections of its connections. It implements
// [reference.Resolver] and [persister.Connections].
type ODM struct {
	registry     *metadata.Registry
	persister    *persister.Persister
	writeConcern domain.WriteConcern
	log          *zap.Logger

	mu          sync.RWMutex
	connections map[string]connection
}

// New returns a mapper without connections.
func New(options ...Option) *ODM {
	o := &ODM{
		writeConcern: domain.WriteConcern{W: 1},
		log:          zap.NewNop(),
		connections:  make(map[string]connection),
	}
	for _, option := range options {
		option(o)
	}
	if o.registry == nil {
		o.registry = metadata.NewRegistry()
	}
	o.persister = persister.NewPersister(o.registry, o,
		persister.WithLogger(o.log),
		persister.WithWriteConcern(o.writeConcern),
	)
	o.registry.SetReferenceSaver(o.persister)
	o.registry.SetResolver(o)
	return o
}

// Registry returns the class registry.
func (o *ODM) Registry() *metadata.Registry {
	return o.registry
}

// Register builds the classes of models up front, so documents tagged with
// their class are hydrated into them.
func (o *ODM) Register(models ...any) error {
	return o.registry.Register(models...)
}

// AddConnection makes database, reached through client, available as name.
// Classes name their connection with the "connection=" flag of their
// collection tag; the others use [metadata.DefaultConnection].
func (o *ODM) AddConnection(name string, client domain.DatabaseClient, database string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connections[name] = connection{client: client, database: database}
	o.log.Debug("connection added",
		zap.String("name", name),
		zap.String("database", database),
	)
}

// Connection returns the client and database registered as name.
func (o *ODM) Connection(name string) (domain.DatabaseClient, string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	conn, ok := o.connections[name]
	if !ok {
		return nil, "", domain.ConfigurationError{Subject: "connection " + name, Reason: "not registered"}
	}
	return conn.client, conn.database, nil
}

// For implements [persister.Connections].
func (o *ODM) For(c *metadata.Class) (domain.DatabaseClient, string, error) {
	return o.Connection(c.Connection)
}

// Class returns the class of model.
func (o *ODM) Class(model any) (*metadata.Class, error) {
	return o.registry.Of(model)
}

// Save inserts or updates obj. See [persister.Persister.Save].
func (o *ODM) Save(ctx context.Context, obj any) error {
	return o.persister.Save(ctx, obj)
}

// Remove deletes obj from its collection, triggering its delete events.
func (o *ODM) Remove(ctx context.Context, obj any) error {
	return o.persister.Delete(ctx, obj)
}

// Reload reads obj again from its collection.
func (o *ODM) Reload(ctx context.Context, obj any) error {
	return o.persister.Reload(ctx, obj)
}

// Forget drops the persistence state of obj.
func (o *ODM) Forget(obj any) {
	o.persister.Forget(obj)
}

// IsNew reports whether obj was never persisted.
func (o *ODM) IsNew(obj any) bool {
	return o.persister.IsNew(obj)
}

// Find returns a query over the collection of model. The filters given are
// merged into its initial filter.
func (o *ODM) Find(model any, filters ...*filter.Filter) (*query.Query, error) {
	c, err := o.registry.Of(model)
	if err != nil {
		return nil, err
	}
	client, db, err := o.For(c)
	if err != nil {
		return nil, err
	}
	f := filter.New()
	for _, extra := range filters {
		if extra == nil {
			continue
		}
		if err := extra.Err(); err != nil {
			return nil, err
		}
		for key, value := range extra.Document() {
			f.Set(key, value)
		}
	}
	return query.New(c, client, db, f,
		query.WithSaver(o.persister),
		query.WithLogger(o.log),
	), nil
}

// Update returns an update builder for the documents of model matching the
// filters.
func (o *ODM) Update(model any, filters ...*filter.Filter) (*query.Update, error) {
	q, err := o.Find(model, filters...)
	if err != nil {
		return nil, err
	}
	return q.Update().WriteConcern(o.writeConcern), nil
}

// Delete returns a delete builder for the documents of model matching the
// filters. Objects are not loaded, so no event is triggered.
func (o *ODM) Delete(model any, filters ...*filter.Filter) (*query.Delete, error) {
	q, err := o.Find(model, filters...)
	if err != nil {
		return nil, err
	}
	return q.Delete().WriteConcern(o.writeConcern), nil
}

// Count returns the number of documents of model matching the filters.
func (o *ODM) Count(ctx context.Context, model any, filters ...*filter.Filter) (int64, error) {
	q, err := o.Find(model, filters...)
	if err != nil {
		return 0, err
	}
	return q.Count(ctx)
}

// Observe registers an observer of the events of model. See
// [metadata.Class.Observe].
func (o *ODM) Observe(model any, observer any) error {
	c, err := o.registry.Of(model)
	if err != nil {
		return err
	}
	return c.Observe(observer)
}

// On registers a hook for an event of model.
func (o *ODM) On(model any, event domain.Event, h metadata.Hook) error {
	c, err := o.registry.Of(model)
	if err != nil {
		return err
	}
	c.On(event, h)
	return nil
}

func (o *ODM) command(ctx context.Context, c *metadata.Class, cmd domain.Command) (domain.Document, error) {
	client, db, err := o.For(c)
	if err != nil {
		return nil, err
	}
	cur, err := client.ExecuteCommand(ctx, db, cmd)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	if !cur.Next() {
		return nil, cur.Err()
	}
	return cur.Current(), nil
}

// CreateIndexes creates the indexes declared by models.
func (o *ODM) CreateIndexes(ctx context.Context, models ...any) error {
	for _, model := range models {
		c, err := o.registry.Of(model)
		if err != nil {
			return err
		}
		if len(c.Indexes) == 0 {
			continue
		}
		cmd := domain.Command{
			Name:  domain.CommandCreateIndexes,
			Value: c.Collection,
			Args:  map[string]any{"indexes": c.Indexes},
		}
		if _, err := o.command(ctx, c, cmd); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
		o.log.Debug("indexes created",
			zap.String("collection", c.Collection),
			zap.Int("indexes", len(c.Indexes)),
		)
	}
	return nil
}

// Truncate drops the collection of model with its documents and indexes.
func (o *ODM) Truncate(ctx context.Context, model any) error {
	c, err := o.registry.Of(model)
	if err != nil {
		return err
	}
	_, err = o.command(ctx, c, domain.Command{Name: domain.CommandDrop, Value: c.Collection})
	return err
}

// DropDatabase drops the database of the connection name.
func (o *ODM) DropDatabase(ctx context.Context, name string) error {
	client, db, err := o.Connection(name)
	if err != nil {
		return err
	}
	cur, err := client.ExecuteCommand(ctx, db, domain.Command{Name: domain.CommandDropDatabase, Value: 1})
	if err != nil {
		return err
	}
	return cur.Close()
}

// Resolve implements [reference.Resolver]. It returns nil when nothing is
// stored under id.
func (o *ODM) Resolve(ctx context.Context, collection string, id any) (any, error) {
	c, ok := o.registry.ByCollection(collection)
	if !ok {
		return nil, domain.ConfigurationError{Subject: "collection " + collection, Reason: "no class is stored in it"}
	}
	client, db, err := o.For(c)
	if err != nil {
		return nil, err
	}
	return query.New(c, client, db, filter.New().Eq(domain.IDField, id)).First(ctx)
}

// Field implements [reference.Resolver].
func (o *ODM) Field(obj any, name string) (any, bool) {
	return o.registry.Field(obj, name)
}

// Snapshot records the current state of obj as persisted.
func (o *ODM) Snapshot(ctx context.Context, obj any) error {
	return o.persister.Snapshot(ctx, obj)
}

// Document renders obj as it would be stored, without saving anything.
func (o *ODM) Document(ctx context.Context, obj any) (data.M, error) {
	c, err := o.registry.Of(obj)
	if err != nil {
		return nil, err
	}
	return c.Document(ctx, obj)
}
