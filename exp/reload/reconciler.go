package reload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/IQzhan/abload"
)

// Manifest is a manifest that can list its bundles.
type Manifest interface {
	abload.Manifest
	Names() []string
}

type snapshotNode struct {
	hash string
	deps []string
}

// Result describes the bundle changes of one reconciliation. All lists are sorted.
type Result struct {
	Added    []string // Bundle exists only in the next manifest.
	Removed  []string // Bundle exists only in the previous manifest.
	Changed  []string // Version token or dependency list changed.
	Stale    []string // Changed, removed, or depending on one of them.
	Unloaded []string // Stale bundles dropped from the loader.
	Refused  []string // Stale bundles the loader kept because other bundles still depend on them.
}

// Reconciler applies manifest updates to a running loader.
type Reconciler struct {
	loader *abload.Loader
	log    zerolog.Logger

	mu       sync.Mutex
	snapshot map[string]snapshotNode
}

func New(loader *abload.Loader) (*Reconciler, error) {
	if loader == nil {
		return nil, fmt.Errorf("new reconciler: loader is nil")
	}
	return &Reconciler{
		loader: loader,
		log:    log.With().Str("component", "abload.reload").Logger(),
	}, nil
}

// Reconcile switches the loader to next.
//
// On the first call the baseline is the manifest the loader currently holds;
// when it cannot be listed every bundle of next counts as added.
func (r *Reconciler) Reconcile(ctx context.Context, next Manifest) (Result, error) {
	if next == nil {
		return Result{}, fmt.Errorf("reconcile: manifest is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snapshot == nil {
		r.snapshot = r.baseline(ctx)
	}
	nextSnapshot := buildSnapshot(next)
	result := diffSnapshots(r.snapshot, nextSnapshot)

	r.loader.SetManifest(next)
	r.snapshot = nextSnapshot

	unloaded, refused, err := r.unloadStale(result.Stale)
	result.Unloaded = unloaded
	result.Refused = refused

	r.log.Info().
		Int("added", len(result.Added)).
		Int("removed", len(result.Removed)).
		Int("changed", len(result.Changed)).
		Int("stale", len(result.Stale)).
		Int("unloaded", len(result.Unloaded)).
		Msg("Manifest reconciled")

	if err != nil {
		return result, fmt.Errorf("manifest switched but release failed: %w", err)
	}
	return result, nil
}

func (r *Reconciler) baseline(ctx context.Context) map[string]snapshotNode {
	current, err := r.loader.Manifest(ctx)
	if err != nil {
		r.log.Debug().Err(err).Msg("No baseline manifest, treating all bundles as added")
		return map[string]snapshotNode{}
	}
	listed, ok := current.(Manifest)
	if !ok {
		return map[string]snapshotNode{}
	}
	return buildSnapshot(listed)
}

// unloadStale drops every stale bundle the loader knows. Stale sets are closed
// under dependents, so unloading repeats until no refusal can be resolved.
func (r *Reconciler) unloadStale(stale []string) ([]string, []string, error) {
	present := make(map[string]struct{})
	for _, n := range r.loader.Graph().Nodes {
		present[n.Name] = struct{}{}
	}
	pending := make([]string, 0, len(stale))
	for _, name := range stale {
		if _, ok := present[name]; ok {
			pending = append(pending, name)
		}
	}

	var unloaded []string
	var errs []error
	opts := abload.UnloadOptions{ReleaseContained: true}
	for progressed := true; progressed && len(pending) > 0; {
		progressed = false
		remaining := pending[:0]
		for _, name := range pending {
			if len(r.loader.Dependents(name)) > 0 {
				remaining = append(remaining, name)
				continue
			}
			err := r.loader.Unload(name, opts)
			var refused abload.RefusedUnloadError
			if errors.As(err, &refused) {
				remaining = append(remaining, name)
				continue
			}
			if err != nil {
				errs = append(errs, err)
			}
			unloaded = append(unloaded, name)
			progressed = true
		}
		pending = remaining
	}

	sort.Strings(unloaded)
	refused := append([]string(nil), pending...)
	sort.Strings(refused)
	for _, name := range refused {
		r.log.Warn().
			Str("bundle", name).
			Strs("dependents", r.loader.Dependents(name)).
			Msg("Stale bundle kept, dependents still loaded")
	}
	return unloaded, refused, errors.Join(errs...)
}

func buildSnapshot(m Manifest) map[string]snapshotNode {
	names := m.Names()
	out := make(map[string]snapshotNode, len(names))
	for _, name := range names {
		deps := m.DependenciesOf(name)
		out[name] = snapshotNode{
			hash: hashEntry(m.VersionOf(name), deps),
			deps: append([]string(nil), deps...),
		}
	}
	return out
}

// hashEntry keeps dependency order; it decides load order.
func hashEntry(version string, deps []string) string {
	var b strings.Builder
	b.WriteString(version)
	b.WriteByte('\n')
	for _, dep := range deps {
		b.WriteString(dep)
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func diffSnapshots(oldSnap, newSnap map[string]snapshotNode) Result {
	staleSet := make(map[string]struct{})
	var result Result

	for name, newNode := range newSnap {
		oldNode, ok := oldSnap[name]
		if !ok {
			result.Added = append(result.Added, name)
			continue
		}
		if newNode.hash != oldNode.hash {
			result.Changed = append(result.Changed, name)
			staleSet[name] = struct{}{}
		}
	}
	for name := range oldSnap {
		if _, ok := newSnap[name]; !ok {
			result.Removed = append(result.Removed, name)
			staleSet[name] = struct{}{}
		}
	}

	// Propagate staleness upward over both dependency graphs: a loaded
	// bundle was resolved against the old one.
	all := make(map[string]struct{}, len(oldSnap)+len(newSnap))
	for name := range oldSnap {
		all[name] = struct{}{}
	}
	for name := range newSnap {
		all[name] = struct{}{}
	}
	for changed := true; changed; {
		changed = false
		for name := range all {
			if _, already := staleSet[name]; already {
				continue
			}
			if dependsOnStale(oldSnap[name].deps, staleSet) || dependsOnStale(newSnap[name].deps, staleSet) {
				staleSet[name] = struct{}{}
				changed = true
			}
		}
	}

	result.Stale = make([]string, 0, len(staleSet))
	for name := range staleSet {
		result.Stale = append(result.Stale, name)
	}
	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Strings(result.Changed)
	sort.Strings(result.Stale)
	return result
}

func dependsOnStale(deps []string, stale map[string]struct{}) bool {
	for _, dep := range deps {
		if _, ok := stale[dep]; ok {
			return true
		}
	}
	return false
}
