package serializer

// WithCanonical selects canonical (true) or relaxed (false) extended JSON.
func WithCanonical(c bool) Option {
	return func(s *Serializer) {
		s.canonical = c
	}
}

// Option configures serializer behavior through the functional options
// pattern.
type Option func(*Serializer)
