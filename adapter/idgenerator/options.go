package idgenerator

import (
	"io"

	"github.com/crodas/tuicha/domain"
)

// WithKind sets the kind of identity generated.
func WithKind(k Kind) Option {
	return func(igo *IDGenerator) {
		igo.kind = k
	}
}

// WithLength sets the length of [Random] identities.
func WithLength(l int) Option {
	return func(igo *IDGenerator) {
		igo.length = l
	}
}

// WithReader sets the reader that will provide random bytes.
func WithReader(r io.Reader) Option {
	return func(igo *IDGenerator) {
		igo.reader = r
	}
}

// WithTimeGetter sets the clock used by time-based identities.
func WithTimeGetter(t domain.TimeGetter) Option {
	return func(igo *IDGenerator) {
		igo.timeGetter = t
	}
}

// Option configures behavior through the functional options pattern.
type Option func(*IDGenerator)
