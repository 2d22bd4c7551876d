package memory

import (
	"go.uber.org/zap"

	"github.com/crodas/tuicha/adapter/serializer"
	"github.com/crodas/tuicha/adapter/storage"
	"github.com/crodas/tuicha/domain"
)

// WithLogger sets the logger commands and writes are reported to.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithIDGenerator sets the generator used for documents inserted without
// _id.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(c *Client) {
		c.idGenerator = g
	}
}

// WithComparer sets the comparer used by indexes, sorting and matching.
func WithComparer(cmp domain.Comparer) Option {
	return func(c *Client) {
		c.comparer = cmp
	}
}

// WithMatcher sets the matcher used to evaluate filters.
func WithMatcher(m domain.Matcher) Option {
	return func(c *Client) {
		c.matcher = m
	}
}

// WithModifier sets the modifier used to apply updates.
func WithModifier(m domain.Modifier) Option {
	return func(c *Client) {
		c.modifier = m
	}
}

// WithQuerier sets the querier used to answer queries.
func WithQuerier(q domain.Querier) Option {
	return func(c *Client) {
		c.querier = q
	}
}

// WithSerializer sets the serializer used by Dump and Load.
func WithSerializer(s *serializer.Serializer) Option {
	return func(c *Client) {
		c.serializer = s
	}
}

// WithStorage sets the storage used by DumpFile and LoadFile.
func WithStorage(s *storage.Storage) Option {
	return func(c *Client) {
		c.storage = s
	}
}

// Option configures client behavior through the functional options pattern.
type Option func(*Client)
