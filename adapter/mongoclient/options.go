package mongoclient

import (
	"go.uber.org/zap"

	"github.com/crodas/tuicha/domain"
)

// WithLogger sets the logger commands and writes are reported to.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithDecoder sets the decoder used by [Cursor.Scan].
func WithDecoder(d domain.Decoder) Option {
	return func(c *Client) {
		c.dec = d
	}
}

// Option configures client behavior through the functional options pattern.
type Option func(*Client)
