package shapestore

import (
	"go.uber.org/zap"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Format anomalies are logged at warn level,
// geometry assembly diagnostics at debug level and rebuilds at info level.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTransformer replaces the transformer used to bring query envelopes
// into the storage CRS.
func WithTransformer(t EnvelopeTransformer) Option {
	return func(s *Store) {
		if t != nil {
			s.transformer = t
		}
	}
}

// WithMetrics records store activity in m. Stores sharing a registry must
// share one Metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}
