package abload

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnloadRemovesBackReferences(t *testing.T) {
	f := newTestFetcher()
	l := newTestLoader(t, f, staticManifest(map[string][]string{
		"a": {"b"},
		"b": nil,
	}))
	_, err := loadWithTimeout(t, l, "a")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, l.Dependents("b"))

	require.NoError(t, l.Unload("a", UnloadOptions{}))

	_, ok := l.TryGetLoaded("a")
	assert.False(t, ok)
	assert.True(t, f.bundle("a").closed.Load())
	assert.Empty(t, l.Dependents("b"))
	assert.Empty(t, l.Dependencies("a"))

	_, ok = l.TryGetLoaded("b")
	assert.True(t, ok, "dependency stays loaded without cascade")
}

func TestUnloadCascadeStopsAtSharedDependency(t *testing.T) {
	f := newTestFetcher()
	l := newTestLoader(t, f, staticManifest(map[string][]string{
		"a": {"b", "c"},
		"d": {"c"},
		"b": nil,
		"c": nil,
	}))
	_, err := loadWithTimeout(t, l, "a")
	require.NoError(t, err)
	_, err = loadWithTimeout(t, l, "d")
	require.NoError(t, err)

	require.NoError(t, l.Unload("a", UnloadOptions{Cascade: true}))

	_, ok := l.TryGetLoaded("b")
	assert.False(t, ok, "unreferenced dependency is cascaded")
	_, ok = l.TryGetLoaded("c")
	assert.True(t, ok, "dependency of d must survive")
	assert.Equal(t, []string{"d"}, l.Dependents("c"))
}

func TestUnloadRefusedWhileDependentAlive(t *testing.T) {
	f := newTestFetcher()
	l := newTestLoader(t, f, staticManifest(map[string][]string{
		"a": {"b"},
		"b": nil,
	}))
	_, err := loadWithTimeout(t, l, "a")
	require.NoError(t, err)

	err = l.Unload("b", UnloadOptions{Cascade: true})
	require.Error(t, err)
	var refused RefusedUnloadError
	require.True(t, errors.As(err, &refused))
	assert.Equal(t, "b", refused.Name)
	assert.Equal(t, []string{"a"}, refused.Dependents)

	h, ok := l.TryGetLoaded("b")
	assert.True(t, ok)
	assert.False(t, h.(*testBundle).closed.Load())
	assert.Equal(t, StateLoaded, l.State("b"))
}

func TestUnloadForceKeepsDeclaredEdges(t *testing.T) {
	f := newTestFetcher()
	l := newTestLoader(t, f, staticManifest(map[string][]string{
		"a": {"b"},
		"b": nil,
	}))
	_, err := loadWithTimeout(t, l, "a")
	require.NoError(t, err)
	first := f.bundle("b")

	require.NoError(t, l.Unload("b", UnloadOptions{Force: true}))
	_, ok := l.TryGetLoaded("b")
	assert.False(t, ok)
	assert.True(t, first.closed.Load())
	assert.Equal(t, []string{"b"}, l.Dependencies("a"))
	assert.Equal(t, []string{"a"}, l.Dependents("b"))

	_, err = loadWithTimeout(t, l, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount("b"))
	assert.Equal(t, []string{"a"}, l.Dependents("b"))

	require.NoError(t, l.Unload("a", UnloadOptions{}))
	assert.Empty(t, l.Dependents("b"))
}

func TestUnloadAbsentIsNoop(t *testing.T) {
	l := newTestLoader(t, newTestFetcher(), staticManifest(nil))
	assert.NoError(t, l.Unload("missing", UnloadOptions{Force: true, Cascade: true}))
}

func TestUnloadAllIgnoresDependents(t *testing.T) {
	f := newTestFetcher()
	l := newTestLoader(t, f, staticManifest(map[string][]string{
		"a": {"b", "c"},
		"b": {"d"},
		"c": {"d"},
		"d": nil,
	}))
	_, err := loadWithTimeout(t, l, "a")
	require.NoError(t, err)

	require.NoError(t, l.UnloadAll(true))

	assert.Empty(t, l.Graph().Nodes)
	for _, name := range []string{"a", "b", "c", "d"} {
		_, ok := l.TryGetLoaded(name)
		assert.False(t, ok)
		assert.True(t, f.bundle(name).closed.Load(), "%s should be released", name)
		assert.Empty(t, l.Dependents(name))
	}

	_, err = loadWithTimeout(t, l, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount("d"))
}

func TestUnloadUsesReleaseFunc(t *testing.T) {
	type release struct {
		name      string
		contained bool
	}
	var mu sync.Mutex
	var released []release
	releaseErr := errors.New("still in use")

	f := newTestFetcher()
	l := newTestLoader(t, f, staticManifest(map[string][]string{
		"x": nil,
		"y": nil,
	}), WithRelease(func(h Handle, contained bool) error {
		b := h.(*testBundle)
		mu.Lock()
		released = append(released, release{name: b.name, contained: contained})
		mu.Unlock()
		if b.name == "y" {
			return releaseErr
		}
		return nil
	}))
	require.NoError(t, l.Preload(testContext(t), "x", "y"))

	require.NoError(t, l.Unload("x", UnloadOptions{ReleaseContained: true}))
	err := l.Unload("y", UnloadOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, releaseErr)
	assert.Contains(t, err.Error(), "release bundle y")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []release{{name: "x", contained: true}, {name: "y", contained: false}}, released)
	assert.False(t, f.bundle("x").closed.Load(), "release func replaces io.Closer")
}
