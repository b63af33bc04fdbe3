package abload

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderGraphSnapshot(t *testing.T) {
	f := newTestFetcher()
	l := newTestLoader(t, f, staticManifest(map[string][]string{
		"a": {"b", "c"},
		"b": {"d"},
		"c": {"d"},
		"d": nil,
	}))
	_, err := loadWithTimeout(t, l, "a")
	require.NoError(t, err)

	graph := l.Graph()
	require.Len(t, graph.Nodes, 4)
	require.Len(t, graph.Edges, 4)
	assert.Equal(t, GraphNode{Name: "a", State: "loaded"}, graph.Nodes[0])
	assert.Contains(t, graph.Edges, GraphEdge{From: "b", To: "d"})
	assert.Contains(t, graph.Edges, GraphEdge{From: "c", To: "d"})
	assert.Contains(t, graph.DOT(), "digraph abload")
	assert.Contains(t, graph.DOT(), "(loaded)")
	assert.Contains(t, graph.Mermaid(), "graph TD")
}

func TestManifestGraphTopoOrder(t *testing.T) {
	m := staticManifest(map[string][]string{
		"a":     {"b", "c"},
		"b":     {"d"},
		"c":     {"d"},
		"d":     nil,
		"other": {"a"},
	})

	graph, err := ManifestGraph(m, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b", "c", "a"}, graph.TopoOrder)
	assert.Len(t, graph.Nodes, 4)
	assert.Len(t, graph.Edges, 4)
	assert.Contains(t, graph.Mermaid(), "-->")

	_, err = ManifestGraph(staticManifest(map[string][]string{"a": {"a"}}), "a")
	var cycleErr CycleDetectedError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"a", "a"}, cycleErr.Path)
}
