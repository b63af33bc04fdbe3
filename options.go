package abload

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger. Defaults to the global zerolog logger with
// component=abload.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) {
		l.log = logger
	}
}

// WithMetrics records loader activity into m.
func WithMetrics(m *Metrics) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

// WithRelease sets how loaded handles are released on unload.
func WithRelease(fn ReleaseFunc) Option {
	return func(l *Loader) {
		l.release = fn
	}
}

// WithFetchTimeout bounds every bundle fetch. Zero means no deadline.
func WithFetchTimeout(d time.Duration) Option {
	return func(l *Loader) {
		l.fetchTimeout = d
	}
}

// WithStrictDependencies makes a dependency failure fail its dependents
// without fetching them. By default a bundle is fetched even when some of its
// dependencies failed.
func WithStrictDependencies(strict bool) Option {
	return func(l *Loader) {
		l.strict = strict
	}
}

// WithContext sets the parent context of all manifest and bundle fetches.
// Cancelling it fails every in-flight fetch.
func WithContext(ctx context.Context) Option {
	return func(l *Loader) {
		if ctx != nil {
			l.parent = ctx
		}
	}
}
