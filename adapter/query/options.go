package query

import (
	"go.uber.org/zap"

	"github.com/crodas/tuicha/domain"
)

// WithSaver sets the saver used by [Query.FirstOrCreate].
func WithSaver(s Saver) Option {
	return func(q *Query) {
		q.saver = s
	}
}

// WithDecoder sets the decoder used by [Query.Scan].
func WithDecoder(d domain.Decoder) Option {
	return func(q *Query) {
		q.decoder = d
	}
}

// WithLogger sets the logger queries are reported to.
func WithLogger(l *zap.Logger) Option {
	return func(q *Query) {
		q.log = l
	}
}

// Option configures query behavior through the functional options pattern.
type Option func(*Query)
