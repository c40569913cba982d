package domain

import (
	"sort"
	"time"
)

// WorkspaceDocument is the portable form of one workspace graph. The
// derived orchestrator-kind set is flattened into a sorted list: a
// portable document has no set type, so list-with-implied-uniqueness is
// the encoding.
type WorkspaceDocument struct {
	Nodes             []*Node    `json:"nodes"`
	Edges             []*Edge    `json:"edges"`
	OrchestratorKinds []NodeKind `json:"orchestratorKinds"`
}

// Document is the export/import unit: every workspace graph keyed by
// "category/tab", plus the export timestamp.
type Document struct {
	Workspaces map[string]WorkspaceDocument `json:"workspaces"`
	ExportedAt time.Time                    `json:"exportedAt"`
}

// NewWorkspaceDocument flattens a graph into its portable form.
func NewWorkspaceDocument(g *Graph) WorkspaceDocument {
	cp := g.Clone()
	kinds := make([]NodeKind, 0, 6)
	for kind := range cp.OrchestratorKinds() {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return WorkspaceDocument{
		Nodes:             cp.Nodes,
		Edges:             cp.Edges,
		OrchestratorKinds: kinds,
	}
}

// Graph rebuilds the in-memory graph from the document form.
func (d WorkspaceDocument) Graph() *Graph {
	g := &Graph{Nodes: d.Nodes, Edges: d.Edges}
	if g.Nodes == nil {
		g.Nodes = []*Node{}
	}
	if g.Edges == nil {
		g.Edges = []*Edge{}
	}
	return g.Clone()
}
