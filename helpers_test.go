package abload

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testBundle struct {
	name    string
	version string
	closed  atomic.Bool
}

func (b *testBundle) Close() error {
	b.closed.Store(true)
	return nil
}

// testFetcher records calls and can hold or fail fetches per bundle name.
type testFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	order    []string
	gates    map[string]chan struct{}
	failures map[string]int
	progress map[string]*Progress
	bundles  map[string]*testBundle
}

func newTestFetcher() *testFetcher {
	return &testFetcher{
		calls:    make(map[string]int),
		gates:    make(map[string]chan struct{}),
		failures: make(map[string]int),
		progress: make(map[string]*Progress),
		bundles:  make(map[string]*testBundle),
	}
}

func (f *testFetcher) hold(name string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[name] = gate
	return gate
}

func (f *testFetcher) failNext(name string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[name] = times
}

func (f *testFetcher) Fetch(ctx context.Context, name string, version string, progress *Progress) (Handle, error) {
	f.mu.Lock()
	f.calls[name]++
	f.progress[name] = progress
	gate := f.gates[name]
	failing := f.failures[name] > 0
	if failing {
		f.failures[name]--
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failing {
		return nil, errors.New("transient fetch error")
	}

	b := &testBundle{name: name, version: version}
	f.mu.Lock()
	f.order = append(f.order, name)
	f.bundles[name] = b
	f.mu.Unlock()
	return b, nil
}

func (f *testFetcher) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *testFetcher) progressOf(name string) *Progress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress[name]
}

func (f *testFetcher) loadOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func (f *testFetcher) bundle(name string) *testBundle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bundles[name]
}

func staticManifest(deps map[string][]string) *StaticManifest {
	m := &StaticManifest{Bundles: make(map[string]ManifestEntry, len(deps))}
	for name, d := range deps {
		m.Bundles[name] = ManifestEntry{Version: "v-" + name, Dependencies: d}
	}
	return m
}

func staticProvider(m Manifest) ManifestProvider {
	return ManifestProviderFunc(func(context.Context) (Manifest, error) {
		return m, nil
	})
}

func newTestLoader(t *testing.T, f Fetcher, m Manifest, opts ...Option) *Loader {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	l, err := New(f, staticProvider(m), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = l.Close()
	})
	return l
}

func loadWithTimeout(t *testing.T, l *Loader, name string) (Handle, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return l.Load(ctx, name)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
