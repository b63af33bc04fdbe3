package abload

import (
	"context"
	"math"
	"sync/atomic"
)

// Handle is an opaque loaded bundle returned by a Fetcher.
type Handle any

// Fetcher loads one bundle. It is called on a loader goroutine and must be safe
// to call concurrently for different names.
// progress may be updated with values in [0,1] while the fetch is in flight.
type Fetcher interface {
	Fetch(ctx context.Context, name string, version string, progress *Progress) (Handle, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, name string, version string, progress *Progress) (Handle, error)

func (f FetcherFunc) Fetch(ctx context.Context, name string, version string, progress *Progress) (Handle, error) {
	return f(ctx, name, version, progress)
}

// Manifest is the authoritative bundle dependency table.
type Manifest interface {
	// DependenciesOf returns the ordered dependency names of a bundle.
	DependenciesOf(name string) []string
	// VersionOf returns the version/hash token of a bundle, or "" if unknown.
	VersionOf(name string) string
}

// ManifestProvider fetches the manifest. The loader calls it at most once per
// successful fetch; concurrent callers share the result.
type ManifestProvider interface {
	FetchManifest(ctx context.Context) (Manifest, error)
}

// ManifestProviderFunc adapts a function to ManifestProvider.
type ManifestProviderFunc func(ctx context.Context) (Manifest, error)

func (f ManifestProviderFunc) FetchManifest(ctx context.Context) (Manifest, error) {
	return f(ctx)
}

// ReleaseFunc releases a loaded handle. releaseContained asks the owner to
// also release objects that were loaded out of the bundle.
// If omitted, io.Closer is used when possible.
type ReleaseFunc func(h Handle, releaseContained bool) error

// Callback receives the result of a load request. Identity is the pointer:
// registering the same *Callback more than once before the bundle completes
// results in a single invocation.
type Callback struct {
	fn func(name string, h Handle, err error)
}

func NewCallback(fn func(name string, h Handle, err error)) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) invoke(name string, h Handle, err error) {
	if c == nil || c.fn == nil {
		return
	}
	c.fn(name, h, err)
}

// Progress is the progress signal of one in-flight fetch.
type Progress struct {
	bits atomic.Uint64
}

// Set stores v clamped to [0,1].
func (p *Progress) Set(v float64) {
	if p == nil {
		return
	}
	p.bits.Store(math.Float64bits(clamp01(v)))
}

func (p *Progress) Value() float64 {
	if p == nil {
		return 0
	}
	return math.Float64frombits(p.bits.Load())
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// UnloadOptions controls Unload.
//
// ReleaseContained is forwarded to the release func.
// Cascade also tries to unload dependencies that become unreferenced.
// Force unloads even when other bundles still depend on this one.
type UnloadOptions struct {
	ReleaseContained bool
	Cascade          bool
	Force            bool
}
