package domain

import (
	"fmt"
	"strings"
)

// WorkspaceKey names a graph editing context: a category tab plus a
// sub-tab within it (e.g. "pre-production/story").
type WorkspaceKey struct {
	Category string
	Tab      string
}

func (k WorkspaceKey) String() string {
	return k.Category + "/" + k.Tab
}

// ParseWorkspaceKey parses "category/tab" back into a key.
func ParseWorkspaceKey(s string) (WorkspaceKey, error) {
	cat, tab, ok := strings.Cut(s, "/")
	if !ok || cat == "" || tab == "" {
		return WorkspaceKey{}, fmt.Errorf("malformed workspace key %q", s)
	}
	return WorkspaceKey{Category: cat, Tab: tab}, nil
}

// Graph is one workspace's nodes and edges.
type Graph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	cp := &Graph{
		Nodes: make([]*Node, 0, len(g.Nodes)),
		Edges: make([]*Edge, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		cp.Nodes = append(cp.Nodes, n.Clone())
	}
	for _, e := range g.Edges {
		ec := *e
		cp.Edges = append(cp.Edges, &ec)
	}
	return cp
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// CountKind returns how many nodes of the kind the graph holds.
func (g *Graph) CountKind(kind NodeKind) int {
	count := 0
	for _, n := range g.Nodes {
		if n.Kind == kind {
			count++
		}
	}
	return count
}

// OrchestratorKinds recomputes the set of orchestrator kinds present.
// The set is always derived from the node list, never cached, so it
// cannot drift from the graph it describes.
func (g *Graph) OrchestratorKinds() map[NodeKind]bool {
	present := make(map[NodeKind]bool)
	for _, n := range g.Nodes {
		if n.Kind.IsOrchestrator() {
			present[n.Kind] = true
		}
	}
	return present
}

// Validate checks the graph's structural invariants: known kinds, at
// most one node per orchestrator kind, unique node ids, and edges whose
// endpoints both exist.
func (g *Graph) Validate() error {
	ids := make(map[string]bool, len(g.Nodes))
	orchestrators := make(map[NodeKind]bool)
	for _, n := range g.Nodes {
		if !n.Kind.Valid() {
			return fmt.Errorf("node %s: unknown kind %q", n.ID, n.Kind)
		}
		if ids[n.ID] {
			return fmt.Errorf("duplicate node id %s", n.ID)
		}
		ids[n.ID] = true
		if n.Kind.IsOrchestrator() {
			if orchestrators[n.Kind] {
				return fmt.Errorf("more than one %s node: %w", n.Kind, ErrDuplicateOrchestrator)
			}
			orchestrators[n.Kind] = true
		}
	}
	for _, e := range g.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			return fmt.Errorf("edge %s references a missing node: %w", e.ID, ErrDanglingEndpoint)
		}
	}
	return nil
}
