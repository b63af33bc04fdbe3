package abload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Loader is the runtime holder of bundle nodes.
// It provides:
// 1) manifest-driven dependency resolution with per-name fetch deduplication
// 2) dependents tracking and reference-counted unload
// 3) weighted progress over a bundle and its dependencies
//
// A Loader is created at session start and torn down with UnloadAll or Close.
type Loader struct {
	fetcher  Fetcher
	manifest *manifestCache
	reg      *registry

	release      ReleaseFunc
	fetchTimeout time.Duration
	strict       bool
	log          zerolog.Logger
	metrics      *Metrics

	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

func New(fetcher Fetcher, manifests ManifestProvider, opts ...Option) (*Loader, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("new loader: fetcher is nil")
	}
	if manifests == nil {
		return nil, fmt.Errorf("new loader: manifest provider is nil")
	}

	l := &Loader{
		fetcher: fetcher,
		log:     log.With().Str("component", "abload").Logger(),
		parent:  context.Background(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.ctx, l.cancel = context.WithCancel(l.parent)
	l.reg = newRegistry(l.metrics)
	l.manifest = &manifestCache{
		provider: manifests,
		ctx:      l.ctx,
		log:      l.log,
		metrics:  l.metrics,
	}
	return l, nil
}

// RequestLoad loads name and its dependencies and reports the result to cb.
//
// If the bundle is already loaded cb runs synchronously before RequestLoad
// returns. Otherwise cb runs on a loader goroutine once the bundle completes.
// Registering the same cb for a bundle that is still loading is a no-op.
func (l *Loader) RequestLoad(name string, cb *Callback) {
	if l.closed.Load() {
		cb.invoke(name, nil, ErrClosed)
		return
	}
	l.request(name, cb, nil)
}

// Load is the blocking form of RequestLoad. Cancelling ctx stops waiting but
// does not cancel the shared fetch.
func (l *Loader) Load(ctx context.Context, name string) (Handle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	type result struct {
		h   Handle
		err error
	}
	ch := make(chan result, 1)
	l.RequestLoad(name, NewCallback(func(_ string, h Handle, err error) {
		ch <- result{h: h, err: err}
	}))
	select {
	case r := <-ch:
		return r.h, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Preload loads all names concurrently and returns the first error.
func (l *Loader) Preload(ctx context.Context, names ...string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			if _, err := l.Load(gctx, name); err != nil {
				return fmt.Errorf("preload %s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// TryGetLoaded returns the handle of a loaded bundle without triggering a load.
func (l *Loader) TryGetLoaded(name string) (Handle, bool) {
	return l.reg.loadedHandle(name)
}

// State returns the state of name; unknown bundles are idle.
func (l *Loader) State(name string) State {
	n, ok := l.reg.get(name)
	if !ok {
		return StateIdle
	}
	state, _, _ := n.snapshot()
	return state
}

// Err returns the error of the last failed attempt of name, if any.
func (l *Loader) Err(name string) error {
	n, ok := l.reg.get(name)
	if !ok {
		return nil
	}
	_, _, err := n.snapshot()
	return err
}

// Dependents returns the bundles currently depending on name, sorted.
func (l *Loader) Dependents(name string) []string {
	return l.reg.dependentsOf(name)
}

// Dependencies returns the resolved dependencies of name in manifest order.
func (l *Loader) Dependencies(name string) []string {
	return l.reg.dependenciesOf(name)
}

// InvalidateManifest drops the cached manifest; the next resolution fetches it
// again. Loaded bundles are not touched.
func (l *Loader) InvalidateManifest() {
	l.manifest.set(nil)
}

// SetManifest installs m as the cached manifest. Resolutions in flight use m
// for the bundles they have not reached yet and check those for cycles again.
func (l *Loader) SetManifest(m Manifest) {
	l.manifest.set(m)
}

// Manifest returns the cached manifest, fetching it if needed.
func (l *Loader) Manifest(ctx context.Context) (Manifest, error) {
	m, _, err := l.manifest.get(ctx)
	return m, err
}

type releasedHandle struct {
	name   string
	handle Handle
}

// Unload removes name from the loader.
//
// A bundle that other bundles still depend on is left untouched unless
// opts.Force is set; the refusal is returned as RefusedUnloadError.
func (l *Loader) Unload(name string, opts UnloadOptions) error {
	l.reg.mu.Lock()
	released, err := l.unloadLocked(name, opts, true)
	l.reg.mu.Unlock()

	if err != nil {
		var refused RefusedUnloadError
		if errors.As(err, &refused) {
			l.metrics.observeUnload("refused")
			l.log.Warn().
				Str("bundle", name).
				Strs("dependents", refused.Dependents).
				Msg("Bundle is depended on by other bundles, unload them first")
		}
		return err
	}
	l.metrics.observeUnload("unloaded")
	return l.releaseAll(released, opts.ReleaseContained)
}

func (l *Loader) unloadLocked(name string, opts UnloadOptions, top bool) ([]releasedHandle, error) {
	n, ok := l.reg.nodes[name]
	if !ok {
		return nil, nil
	}
	if len(l.reg.dependents[name]) > 0 && !opts.Force {
		if !top {
			return nil, nil
		}
		return nil, RefusedUnloadError{Name: name, Dependents: l.reg.dependentsLocked(name)}
	}

	var released []releasedHandle
	if h := n.detach(); h != nil {
		released = append(released, releasedHandle{name: name, handle: h})
	}
	l.reg.removeLocked(name)

	deps := l.reg.deps[name]
	delete(l.reg.deps, name)
	for _, dep := range deps {
		set := l.reg.dependents[dep]
		delete(set, name)
		if len(set) == 0 {
			delete(l.reg.dependents, dep)
		}
	}
	// Remaining dependents of a forced unload still declare this name; their
	// reverse edges stay so a future node for name inherits them.
	if len(l.reg.dependents[name]) == 0 {
		delete(l.reg.dependents, name)
	}

	if opts.Cascade {
		cascade := UnloadOptions{ReleaseContained: opts.ReleaseContained, Cascade: true}
		for _, dep := range deps {
			sub, _ := l.unloadLocked(dep, cascade, false)
			released = append(released, sub...)
		}
	}
	l.log.Debug().Str("bundle", name).Bool("force", opts.Force).Msg("Bundle unloaded")
	return released, nil
}

// UnloadAll force-unloads every bundle regardless of dependents.
func (l *Loader) UnloadAll(releaseContained bool) error {
	l.reg.mu.Lock()
	released := make([]releasedHandle, 0, len(l.reg.nodes))
	for name, n := range l.reg.nodes {
		if h := n.detach(); h != nil {
			released = append(released, releasedHandle{name: name, handle: h})
		}
	}
	l.reg.nodes = make(map[string]*node)
	l.reg.deps = make(map[string][]string)
	l.reg.dependents = make(map[string]map[string]struct{})
	l.metrics.setNodes(0)
	l.reg.mu.Unlock()
	l.metrics.observeUnload("all")

	l.log.Debug().Int("released", len(released)).Msg("All bundles unloaded")
	return l.releaseAll(released, releaseContained)
}

// Close cancels in-flight fetches and unloads every bundle. Later requests
// fail with ErrClosed.
func (l *Loader) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.cancel()
	return l.UnloadAll(true)
}

func (l *Loader) releaseAll(released []releasedHandle, releaseContained bool) error {
	var errs []error
	for _, r := range released {
		if err := l.releaseHandle(r.name, r.handle, releaseContained); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func (l *Loader) releaseHandle(name string, h Handle, releaseContained bool) error {
	if l.release != nil {
		if err := l.release(h, releaseContained); err != nil {
			return fmt.Errorf("release bundle %s: %w", name, err)
		}
		return nil
	}
	if closer, ok := h.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("release bundle %s: %w", name, err)
		}
	}
	return nil
}
