package abload

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// ManifestEntry is one bundle row of a StaticManifest.
type ManifestEntry struct {
	Version      string   `json:"version,omitempty" yaml:"version,omitempty"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// StaticManifest is an in-memory Manifest.
type StaticManifest struct {
	Bundles map[string]ManifestEntry `json:"bundles" yaml:"bundles"`
}

// ParseManifest decodes a YAML (or JSON) manifest document.
func ParseManifest(data []byte) (*StaticManifest, error) {
	m := &StaticManifest{}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("parse manifest: empty document")
	}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Bundles == nil {
		m.Bundles = make(map[string]ManifestEntry)
	}
	return m, nil
}

func (m *StaticManifest) DependenciesOf(name string) []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.Bundles[name].Dependencies...)
}

func (m *StaticManifest) VersionOf(name string) string {
	if m == nil {
		return ""
	}
	return m.Bundles[name].Version
}

// Names returns all bundle names in sorted order.
func (m *StaticManifest) Names() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.Bundles))
	for name := range m.Bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// manifestCache shares one manifest across all resolutions.
// Concurrent first callers share a single provider call; a failure is not
// cached, so the next caller fetches again. The shared call runs under ctx,
// the loader context, never under a caller's.
type manifestCache struct {
	provider ManifestProvider
	ctx      context.Context
	log      zerolog.Logger
	metrics  *Metrics

	mu      sync.RWMutex
	current Manifest
	gen     uint64

	sf singleflight.Group
}

type manifestResult struct {
	m   Manifest
	gen uint64
}

// get returns the manifest and the generation it belongs to. Cancelling ctx
// stops waiting but leaves the shared fetch running.
func (c *manifestCache) get(ctx context.Context) (Manifest, uint64, error) {
	c.mu.RLock()
	cached, gen := c.current, c.gen
	c.mu.RUnlock()
	if cached != nil {
		return cached, gen, nil
	}

	ch := c.sf.DoChan("manifest", func() (any, error) {
		c.mu.RLock()
		cachedAgain, gen := c.current, c.gen
		c.mu.RUnlock()
		if cachedAgain != nil {
			return manifestResult{m: cachedAgain, gen: gen}, nil
		}

		m, err := c.provider.FetchManifest(c.ctx)
		if err == nil && m == nil {
			err = fmt.Errorf("provider returned nil manifest")
		}
		if err != nil {
			c.metrics.observeManifest(err)
			c.log.Error().Err(err).Msg("Manifest loading failed")
			return nil, ManifestUnavailableError{Err: err}
		}
		c.metrics.observeManifest(nil)
		c.log.Debug().Msg("Manifest loaded")

		c.mu.Lock()
		if c.gen == gen {
			c.current = m
		}
		c.mu.Unlock()
		return manifestResult{m: m, gen: gen}, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, 0, res.Err
		}
		r := res.Val.(manifestResult)
		return r.m, r.gen, nil
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

// set replaces the cached manifest; nil invalidates it.
func (c *manifestCache) set(m Manifest) {
	c.mu.Lock()
	c.current = m
	c.gen++
	c.mu.Unlock()
}
