package query

import (
	"context"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/domain"
)

// Cursor iterates over the objects found by a [Query].
type Cursor struct {
	ctx     context.Context
	query   *Query
	raw     domain.Cursor
	current any
	err     error
}

// Next builds the next object, returning false when there is none or an
// error stopped the iteration.
func (c *Cursor) Next() bool {
	c.current = nil
	if c.err != nil || !c.raw.Next() {
		return false
	}
	doc, ok := data.AsDocument(c.raw.Current())
	if !ok {
		c.err = domain.ErrDecode{Source: c.raw.Current(), Target: c.query.class.New()}
		return false
	}
	obj, err := c.query.class.NewInstance(c.ctx, doc, false)
	if err != nil {
		c.err = err
		return false
	}
	c.current = obj
	return true
}

// Current returns the object built by the last call to [Cursor.Next].
func (c *Cursor) Current() any {
	return c.current
}

// Err returns the error that stopped the iteration, if any.
func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.raw.Err()
}

// Close releases the underlying database cursor.
func (c *Cursor) Close() error {
	return c.raw.Close()
}

// Rewind runs the query again and moves the cursor before the first object.
func (c *Cursor) Rewind() error {
	raw, err := c.query.raw(c.ctx, c.query.limit)
	if err != nil {
		return err
	}
	_ = c.raw.Close()
	c.raw, c.current, c.err = raw, nil, nil
	return nil
}
