// Package persister saves and deletes mapped objects. New objects are
// inserted, persisted ones are diffed against the snapshot of their last
// stored document and only the changed paths are written.
package persister

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/diff"
	"github.com/crodas/tuicha/adapter/metadata"
	"github.com/crodas/tuicha/adapter/state"
	"github.com/crodas/tuicha/domain"
)

// Connections gives the database client and database serving a class.
type Connections interface {
	For(c *metadata.Class) (domain.DatabaseClient, string, error)
}

// Persister implements [metadata.ReferenceSaver].
type Persister struct {
	registry     *metadata.Registry
	connections  Connections
	writeConcern domain.WriteConcern
	log          *zap.Logger
}

// NewPersister returns a persister writing the classes of registry through
// connections.
func NewPersister(registry *metadata.Registry, connections Connections, options ...Option) *Persister {
	p := &Persister{
		registry:     registry,
		connections:  connections,
		writeConcern: domain.WriteConcern{W: 1},
		log:          zap.NewNop(),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// SaveReference implements [metadata.ReferenceSaver].
func (p *Persister) SaveReference(ctx context.Context, obj any) error {
	return p.Save(ctx, obj)
}

// Save persists obj. Objects never stored are inserted, with an identity
// generated when they have none. Stored objects are compared with their
// snapshot and only the difference is written, as one update statement per
// operator in a single ordered batch. Unchanged objects issue no write and
// trigger no event. A
// save of obj started while another one is in progress, as happens with
// cyclic references, returns immediately.
func (p *Persister) Save(ctx context.Context, obj any) error {
	c, err := p.classOf(obj)
	if err != nil {
		return err
	}
	st := p.registry.States().Of(obj)
	if !st.Begin() {
		return nil
	}
	defer st.End()

	if st.IsNew() {
		return p.create(ctx, c, obj, st)
	}
	return p.update(ctx, c, obj, st)
}

func (p *Persister) create(ctx context.Context, c *metadata.Class, obj any, st *state.State) error {
	if err := p.trigger(ctx, c, obj, domain.EventSaving, domain.EventCreating); err != nil {
		return err
	}
	doc, err := c.ToDocument(ctx, obj, true, true)
	if err != nil {
		return err
	}
	op := domain.WriteOperation{Kind: domain.WriteInsert, Document: doc}
	if err := p.write(ctx, c, op); err != nil {
		return err
	}
	p.log.Debug("created",
		zap.String("collection", c.Collection),
		zap.Any("id", doc[domain.IDField]),
	)
	if err := p.trigger(ctx, c, obj, domain.EventSaved, domain.EventCreated); err != nil {
		return err
	}
	st.SetSnapshot(doc)
	return nil
}

func (p *Persister) update(ctx context.Context, c *metadata.Class, obj any, st *state.State) error {
	old := st.Snapshot()
	id, ok := old[domain.IDField]
	if !ok {
		return fmt.Errorf("%w: %s snapshot has no %s", domain.ErrNoIdentity, c.Name, domain.IDField)
	}
	if current, err := c.Document(ctx, obj); err == nil && diff.Diff(current, old).IsEmpty() {
		p.log.Debug("unchanged",
			zap.String("collection", c.Collection),
			zap.Any("id", id),
		)
		return nil
	}

	if err := p.trigger(ctx, c, obj, domain.EventSaving, domain.EventUpdating); err != nil {
		return err
	}
	doc, err := c.ToDocument(ctx, obj, true, false)
	if err != nil {
		return err
	}
	if ops := diff.Diff(doc, old); !ops.IsEmpty() {
		selector := data.M{domain.IDField: id}
		updates := diff.Updates(ops)
		writes := make([]domain.WriteOperation, len(updates))
		for n, upd := range updates {
			writes[n] = domain.WriteOperation{Kind: domain.WriteUpdate, Filter: selector, Update: upd}
		}
		if err := p.write(ctx, c, writes...); err != nil {
			return err
		}
		p.log.Debug("updated",
			zap.String("collection", c.Collection),
			zap.Any("id", id),
			zap.Int("ops", ops.Len()),
		)
	}
	if err := p.trigger(ctx, c, obj, domain.EventSaved, domain.EventUpdated); err != nil {
		return err
	}
	st.SetSnapshot(doc)
	return nil
}

// Delete removes obj from its collection and forgets its snapshot, so a
// later save inserts it again.
func (p *Persister) Delete(ctx context.Context, obj any) error {
	c, err := p.classOf(obj)
	if err != nil {
		return err
	}
	id, err := p.storedID(ctx, c, obj)
	if err != nil {
		return err
	}
	if err := c.TriggerEvent(ctx, obj, domain.EventDeleting); err != nil {
		return err
	}
	op := domain.WriteOperation{Kind: domain.WriteDelete, Filter: data.M{domain.IDField: id}}
	if err := p.write(ctx, c, op); err != nil {
		return err
	}
	p.log.Debug("deleted",
		zap.String("collection", c.Collection),
		zap.Any("id", id),
	)
	if err := c.TriggerEvent(ctx, obj, domain.EventDeleted); err != nil {
		return err
	}
	p.registry.States().Of(obj).Clear()
	return nil
}

// Reload reads obj again from its collection, discarding unsaved changes.
func (p *Persister) Reload(ctx context.Context, obj any) error {
	c, err := p.classOf(obj)
	if err != nil {
		return err
	}
	id, err := p.storedID(ctx, c, obj)
	if err != nil {
		return err
	}
	client, db, err := p.connections.For(c)
	if err != nil {
		return err
	}
	selector := data.M{domain.IDField: id}
	cur, err := client.Query(ctx, domain.Namespace{Database: db, Collection: c.Collection}, selector, domain.WithQueryLimit(1))
	if err != nil {
		return err
	}
	defer cur.Close()
	if !cur.Next() {
		if err := cur.Err(); err != nil {
			return err
		}
		return domain.NotFoundError{Collection: c.Collection, Filter: selector}
	}
	doc, ok := data.AsDocument(cur.Current())
	if !ok {
		return domain.ErrDecode{Source: cur.Current(), Target: obj}
	}
	return c.Load(ctx, obj, doc)
}

// Snapshot marks the current state of obj as persisted.
func (p *Persister) Snapshot(ctx context.Context, obj any) error {
	c, err := p.classOf(obj)
	if err != nil {
		return err
	}
	return c.Snapshot(ctx, obj)
}

// Forget drops the persistence state of obj. Its next save inserts it.
func (p *Persister) Forget(obj any) {
	p.registry.States().Forget(obj)
}

// IsNew reports whether obj was never persisted.
func (p *Persister) IsNew(obj any) bool {
	st, ok := p.registry.States().Lookup(obj)
	return !ok || st.IsNew()
}

// classOf returns the class of obj, which must be a pointer to it.
func (p *Persister) classOf(obj any) (*metadata.Class, error) {
	c, err := p.registry.Of(obj)
	if err != nil {
		return nil, err
	}
	if err := c.Check(obj); err != nil {
		return nil, err
	}
	return c, nil
}

// storedID prefers the identity of the snapshot, which is the one the store
// knows the object by.
func (p *Persister) storedID(ctx context.Context, c *metadata.Class, obj any) (any, error) {
	if st, ok := p.registry.States().Lookup(obj); ok {
		if id, ok := st.Snapshot()[domain.IDField]; ok {
			return id, nil
		}
	}
	id, ok, err := c.StoredID(ctx, obj)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoIdentity, c.Name)
	}
	return id, nil
}

func (p *Persister) trigger(ctx context.Context, c *metadata.Class, obj any, events ...domain.Event) error {
	for _, event := range events {
		if err := c.TriggerEvent(ctx, obj, event); err != nil {
			return err
		}
	}
	return nil
}

func (p *Persister) write(ctx context.Context, c *metadata.Class, ops ...domain.WriteOperation) error {
	client, db, err := p.connections.For(c)
	if err != nil {
		return err
	}
	ns := domain.Namespace{Database: db, Collection: c.Collection}
	res, err := client.ExecuteWrite(ctx, ns, ops, p.writeConcern)
	if err != nil {
		return err
	}
	if len(res.WriteErrors) > 0 {
		return domain.WriteErrors(res.WriteErrors)
	}
	return nil
}
