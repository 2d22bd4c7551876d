package ext

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/metadata"
	"github.com/crodas/tuicha/domain"
)

// CountersCollection holds one counter document per collection using
// [Autoincrement], keyed by the collection name.
const CountersCollection = "_autoincrement"

// Connections resolves the database of a class.
type Connections interface {
	For(c *metadata.Class) (domain.DatabaseClient, string, error)
}

// Registry resolves the class of a model.
type Registry interface {
	Class(model any) (*metadata.Class, error)
}

// Autoincrement allocates sequential integer identities. Each class draws
// from the counter of its collection, so classes sharing a collection share
// the sequence.
type Autoincrement struct {
	conns Connections
}

// NewAutoincrement returns a generator reading counters through conns.
func NewAutoincrement(conns Connections) *Autoincrement {
	return &Autoincrement{conns: conns}
}

// UseAutoincrement installs an [Autoincrement] generator on the classes of
// models. The identity field of the models should be an integer.
func UseAutoincrement(o interface {
	Connections
	Registry
}, models ...any) error {
	gen := NewAutoincrement(o)
	for _, model := range models {
		c, err := o.Class(model)
		if err != nil {
			return err
		}
		c.SetIDGenerator(gen)
	}
	return nil
}

// NextID implements [metadata.IDGenerator]. The counter is incremented with
// findAndModify and created on first use.
func (a *Autoincrement) NextID(ctx context.Context, c *metadata.Class) (any, error) {
	client, db, err := a.conns.For(c)
	if err != nil {
		return nil, err
	}
	cur, err := client.ExecuteCommand(ctx, db, domain.Command{
		Name:  domain.CommandFindAndModify,
		Value: CountersCollection,
		Args: map[string]any{
			"query":  domain.Document(data.M{domain.IDField: c.Collection}),
			"update": domain.Document(data.M{"$inc": data.M{"seq": 1}}),
			"upsert": true,
			"new":    true,
		},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	if !cur.Next() {
		if err := cur.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: counter of %s was not returned", domain.ErrNoIdentity, c.Collection)
	}
	value, ok := data.AsDocument(cur.Current().Get("value"))
	if !ok {
		return nil, fmt.Errorf("%w: counter of %s was not returned", domain.ErrNoIdentity, c.Collection)
	}
	return cast.ToInt64E(value.Get("seq"))
}
