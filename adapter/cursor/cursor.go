// Package cursor contains the default [domain.Cursor] implementation.
package cursor

import (
	"context"
	"errors"

	"github.com/crodas/tuicha/adapter/decoder"
	"github.com/crodas/tuicha/domain"
)

// Cursor implements domain.Cursor over a materialized list of documents.
type Cursor struct {
	data   []domain.Document
	ctx    context.Context
	cancel context.CancelCauseFunc
	dec    domain.Decoder
	refill func() ([]domain.Document, error)
	index  int64
}

// NewCursor returns a new implementation of Cursor.
func NewCursor(ctx context.Context, dt []domain.Document, options ...domain.CursorOption) (*Cursor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	opts := domain.CursorOptions{
		Decoder: decoder.NewDecoder(),
	}

	for _, option := range options {
		option(&opts)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	cur := &Cursor{
		ctx:    ctx,
		cancel: cancel,
		index:  -1,
		dec:    opts.Decoder,
		refill: opts.Refill,
		data:   dt,
	}

	return cur, nil
}

// Err implements domain.Cursor.
func (c *Cursor) Err() error {
	err := context.Cause(c.ctx)
	if errors.Is(err, domain.ErrCursorClosed) {
		return nil
	}
	return err
}

// Current implements domain.Cursor.
func (c *Cursor) Current() domain.Document {
	if c.index < 0 || c.index >= int64(len(c.data)) {
		return nil
	}
	return c.data[c.index]
}

// Scan implements domain.Cursor.
func (c *Cursor) Scan(ctx context.Context, target any) error {
	select {
	case <-c.ctx.Done():
		return context.Cause(c.ctx)
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if c.index < 0 {
		return domain.ErrScanBeforeNext
	}
	return c.dec.Decode(c.data[c.index], target)
}

// Close implements domain.Cursor.
func (c *Cursor) Close() error {
	select {
	case <-c.ctx.Done():
		return nil
	default:
	}
	c.cancel(domain.ErrCursorClosed)
	c.data = nil
	return nil
}

// Next implements domain.Cursor.
func (c *Cursor) Next() bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	if c.index+1 < int64(len(c.data)) {
		c.index++
		return true
	}
	return false
}

// Len returns the number of documents held by the cursor.
func (c *Cursor) Len() int {
	return len(c.data)
}

// Rewind moves the cursor back before its first document. When a refill
// function was given, the documents are loaded again through it.
func (c *Cursor) Rewind() error {
	select {
	case <-c.ctx.Done():
		return context.Cause(c.ctx)
	default:
	}
	if c.refill != nil {
		docs, err := c.refill()
		if err != nil {
			c.cancel(err)
			return err
		}
		c.data = docs
	}
	c.index = -1
	return nil
}
