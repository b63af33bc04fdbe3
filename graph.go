package abload

import (
	"fmt"
	"strings"
)

type GraphNode struct {
	Name  string `json:"name"`
	State string `json:"state,omitempty"`
}

// GraphEdge means "From depends on To".
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Graph struct {
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
	TopoOrder []string    `json:"topoOrder,omitempty"`
}

// Graph returns a snapshot of the live bundle nodes and their attached
// dependency edges.
func (l *Loader) Graph() Graph {
	names := l.reg.names()
	g := Graph{
		Nodes: make([]GraphNode, 0, len(names)),
	}
	for _, name := range names {
		g.Nodes = append(g.Nodes, GraphNode{Name: name, State: l.State(name).String()})
		for _, dep := range l.reg.dependenciesOf(name) {
			g.Edges = append(g.Edges, GraphEdge{From: name, To: dep})
		}
	}
	return g
}

// ManifestGraph returns the manifest subgraph reachable from root.
func ManifestGraph(m Manifest, root string) (Graph, error) {
	order, err := TopoOrder(m, root)
	if err != nil {
		return Graph{}, err
	}
	g := Graph{
		Nodes:     make([]GraphNode, 0, len(order)),
		TopoOrder: order,
	}
	for _, name := range order {
		g.Nodes = append(g.Nodes, GraphNode{Name: name})
		for _, dep := range uniqueDeps(name, m.DependenciesOf(name)) {
			g.Edges = append(g.Edges, GraphEdge{From: name, To: dep})
		}
	}
	return g, nil
}

// DOT exports Graphviz DOT text.
func (g Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph abload {\n")
	b.WriteString("  rankdir=LR;\n")

	aliases := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		alias := fmt.Sprintf("n%d", i)
		aliases[n.Name] = alias
		label := escapeQuotes(n.Name)
		if n.State != "" {
			label = label + "\\n(" + escapeQuotes(n.State) + ")"
		}
		b.WriteString(fmt.Sprintf("  %s [label=\"%s\"];\n", alias, label))
	}
	for _, e := range g.Edges {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if !okFrom || !okTo {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s -> %s;\n", from, to))
	}
	b.WriteString("}\n")
	return b.String()
}

// Mermaid exports Mermaid graph text.
func (g Graph) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	aliases := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		alias := fmt.Sprintf("n%d", i)
		aliases[n.Name] = alias
		label := escapeQuotes(n.Name)
		if n.State != "" {
			label = label + "<br/>(" + escapeQuotes(n.State) + ")"
		}
		b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", alias, label))
	}
	for _, e := range g.Edges {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if !okFrom || !okTo {
			continue
		}
		b.WriteString(fmt.Sprintf("    %s --> %s\n", from, to))
	}
	return b.String()
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}
