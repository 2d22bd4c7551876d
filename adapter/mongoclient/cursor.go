package mongoclient

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/serializer"
	"github.com/crodas/tuicha/domain"
)

// Cursor implements [domain.Cursor] on top of a driver cursor.
type Cursor struct {
	ctx     context.Context
	cur     *mongo.Cursor
	dec     domain.Decoder
	current data.M
	err     error
}

// Next implements [domain.Cursor].
func (c *Cursor) Next() bool {
	c.current = nil
	if !c.cur.Next(c.ctx) {
		return false
	}
	var raw bson.D
	if err := c.cur.Decode(&raw); err != nil {
		c.err = err
		return false
	}
	c.current = serializer.FromBSONDoc(raw)
	return true
}

// Current implements [domain.Cursor].
func (c *Cursor) Current() domain.Document {
	if c.current == nil {
		return nil
	}
	return c.current
}

// Scan implements [domain.Cursor].
func (c *Cursor) Scan(ctx context.Context, target any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if c.current == nil {
		return domain.ErrScanBeforeNext
	}
	return c.dec.Decode(c.current, target)
}

// Err implements [domain.Cursor].
func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.cur.Err()
}

// Close implements [domain.Cursor].
func (c *Cursor) Close() error {
	return c.cur.Close(context.WithoutCancel(c.ctx))
}
