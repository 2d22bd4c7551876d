package modifier

import "github.com/crodas/tuicha/domain"

// WithComparer sets the comparer used by $min, $max, $addToSet and $pullAll.
func WithComparer(c domain.Comparer) Option {
	return func(m *Modifier) {
		m.comp = c
	}
}

// WithMatcher sets the matcher used by $pull conditions.
func WithMatcher(mt domain.Matcher) Option {
	return func(m *Modifier) {
		m.matcher = mt
	}
}

// WithTimeGetter sets the clock used by $currentDate.
func WithTimeGetter(t domain.TimeGetter) Option {
	return func(m *Modifier) {
		m.timeGetter = t
	}
}

// Option configures modifier behavior through the functional options pattern.
type Option func(*Modifier)
