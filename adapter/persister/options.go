package persister

import (
	"go.uber.org/zap"

	"github.com/crodas/tuicha/domain"
)

// WithLogger sets the logger saves and deletes are reported to.
func WithLogger(l *zap.Logger) Option {
	return func(p *Persister) {
		p.log = l
	}
}

// WithWriteConcern sets the acknowledgement requested for writes.
func WithWriteConcern(wc domain.WriteConcern) Option {
	return func(p *Persister) {
		p.writeConcern = wc
	}
}

// Option configures persister behavior through the functional options
// pattern.
type Option func(*Persister)
