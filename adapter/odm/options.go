package odm

import (
	"go.uber.org/zap"

	"github.com/crodas/tuicha/adapter/metadata"
	"github.com/crodas/tuicha/domain"
)

// WithRegistry sets the class registry. A new one is created by default.
func WithRegistry(r *metadata.Registry) Option {
	return func(o *ODM) {
		o.registry = r
	}
}

// WithLogger sets the logger given to the persister and queries.
func WithLogger(l *zap.Logger) Option {
	return func(o *ODM) {
		o.log = l
	}
}

// WithWriteConcern sets the acknowledgement requested for writes.
func WithWriteConcern(wc domain.WriteConcern) Option {
	return func(o *ODM) {
		o.writeConcern = wc
	}
}

// WithConnection registers a connection, like [ODM.AddConnection].
func WithConnection(name string, client domain.DatabaseClient, database string) Option {
	return func(o *ODM) {
		o.connections[name] = connection{client: client, database: database}
	}
}

// Option configures mapper behavior through the functional options pattern.
type Option func(*ODM)
