package decoder

// WithTagName sets the struct tag used to map document keys to struct fields.
func WithTagName(tag string) Option {
	return func(d *Decoder) {
		d.tag = tag
	}
}

// Option configures decoder behavior through the functional options pattern.
type Option func(*Decoder)
