package session

import (
	"log/slog"

	"github.com/gregLibert/calypso-session/pkg/calypso"
)

type options struct {
	logger               *slog.Logger
	samRevision          calypso.SamRevision
	defaultPoRevision    calypso.PoRevision
	digestUpdateMultiple bool
	samATR               []byte
}

// Option configures an Engine or a DigestCoordinator.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		logger:            slog.Default(),
		samRevision:       calypso.SamRevisionAuto,
		defaultPoRevision: calypso.PoRevision31,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger for phase transitions and APDU traces.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSamRevision fixes the SAM revision instead of resolving it from the ATR.
func WithSamRevision(rev calypso.SamRevision) Option {
	return func(o *options) { o.samRevision = rev }
}

// WithDefaultPoRevision sets the revision kept when the startup information is inconclusive.
func WithDefaultPoRevision(rev calypso.PoRevision) Option {
	return func(o *options) { o.defaultPoRevision = rev }
}

// WithDigestUpdateMultiple batches each command/response pair in one Digest Update Multiple
// when it fits.
func WithDigestUpdateMultiple(enabled bool) Option {
	return func(o *options) { o.digestUpdateMultiple = enabled }
}

// WithSamATR provides the SAM answer-to-reset used to resolve SamRevisionAuto.
func WithSamATR(atr []byte) Option {
	return func(o *options) { o.samATR = append([]byte(nil), atr...) }
}
