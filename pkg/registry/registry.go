// Package registry holds the per-workspace graphs and enforces their
// structural invariants: the orchestrator-singleton rule, edge endpoint
// existence, and cascade cleanup on delete.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/atelier-run/atelier/internal/logging"
	"github.com/atelier-run/atelier/pkg/domain"
)

// Data keys a Flow node uses for its execution plan. DeleteNode scrubs
// these on cascade; the flow package reads them.
const (
	DataKeyExecutionList = "executionList"
	DataKeyManagerNodes  = "managerNodes"
)

// Registry owns every workspace graph. Safe for concurrent use; in the
// daemon all mutations additionally funnel through one dispatch loop so
// channel events and user edits never interleave partially.
type Registry struct {
	mu         sync.RWMutex
	workspaces map[string]*domain.Graph

	active    domain.WorkspaceKey
	hasActive bool

	// flush runs before the active workspace is switched away, so
	// switching never discards unsaved mutations.
	flush func(domain.WorkspaceKey)
	// changed fires after every successful mutation (autosave trigger).
	changed func()

	newID  func() string
	logger *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithIDGenerator overrides node/edge id allocation (tests).
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		workspaces: make(map[string]*domain.Graph),
		newID:      uuid.NewString,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnChange registers the mutation hook. Called after every successful
// mutating operation, outside the registry lock.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	r.changed = fn
	r.mu.Unlock()
}

// OnFlush registers the save hook invoked for the outgoing workspace
// during SwitchWorkspace.
func (r *Registry) OnFlush(fn func(domain.WorkspaceKey)) {
	r.mu.Lock()
	r.flush = fn
	r.mu.Unlock()
}

func (r *Registry) notify() {
	r.mu.RLock()
	fn := r.changed
	r.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// graph returns the workspace graph, creating it on first touch.
func (r *Registry) graph(ws domain.WorkspaceKey) *domain.Graph {
	key := ws.String()
	g, ok := r.workspaces[key]
	if !ok {
		g = domain.NewGraph()
		r.workspaces[key] = g
	}
	return g
}

// AddNode inserts a fresh node of the given kind. For orchestrator kinds
// the singleton check is re-derived from the current node list on every
// call, never kept as a counter. On violation nothing is inserted.
func (r *Registry) AddNode(ws domain.WorkspaceKey, kind domain.NodeKind, pos domain.Position) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("add node: unknown kind %q", kind)
	}

	r.mu.Lock()
	g := r.graph(ws)
	if kind.IsOrchestrator() && g.OrchestratorKinds()[kind] {
		r.mu.Unlock()
		return "", fmt.Errorf("add %s to %s: %w", kind, ws, domain.ErrDuplicateOrchestrator)
	}
	node := &domain.Node{
		ID:       r.newID(),
		Kind:     kind,
		Label:    fmt.Sprintf("%s %d", kind.Title(), g.CountKind(kind)+1),
		Position: pos,
		Data:     map[string]any{},
	}
	g.Nodes = append(g.Nodes, node)
	r.mu.Unlock()

	r.logger.Debug("node added", "workspace", ws.String(), "kind", kind, "id", node.ID)
	r.notify()
	return node.ID, nil
}

// DeleteNode removes a node and cascades: edges touching it are dropped,
// and any Flow node in the same workspace loses the id from its
// execution list (re-indexed contiguous) and manager list. References
// never cross workspaces, so the cascade stays local.
func (r *Registry) DeleteNode(ws domain.WorkspaceKey, nodeID string) error {
	r.mu.Lock()
	g, ok := r.workspaces[ws.String()]
	if !ok || g.Node(nodeID) == nil {
		r.mu.Unlock()
		return fmt.Errorf("delete node %s in %s: %w", nodeID, ws, domain.ErrNotFound)
	}

	nodes := g.Nodes[:0]
	for _, n := range g.Nodes {
		if n.ID != nodeID {
			nodes = append(nodes, n)
		}
	}
	g.Nodes = nodes

	edges := g.Edges[:0]
	for _, e := range g.Edges {
		if !e.Touches(nodeID) {
			edges = append(edges, e)
		}
	}
	g.Edges = edges

	for _, n := range g.Nodes {
		if n.Kind == domain.KindFlow {
			scrubFlowData(n, nodeID)
		}
	}
	r.mu.Unlock()

	r.logger.Debug("node deleted", "workspace", ws.String(), "id", nodeID)
	r.notify()
	return nil
}

// scrubFlowData drops every reference to nodeID from a Flow node's plan.
// Remaining execution items are re-indexed so order stays a contiguous
// permutation.
func scrubFlowData(flow *domain.Node, nodeID string) {
	if flow.Data == nil {
		return
	}
	if raw, ok := flow.Data[DataKeyExecutionList].([]any); ok {
		kept := make([]any, 0, len(raw))
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if ok && m["nodeId"] == nodeID {
				continue
			}
			kept = append(kept, item)
		}
		for i, item := range kept {
			if m, ok := item.(map[string]any); ok {
				m["order"] = i
			}
		}
		flow.Data[DataKeyExecutionList] = kept
	}
	if raw, ok := flow.Data[DataKeyManagerNodes].([]any); ok {
		kept := make([]any, 0, len(raw))
		for _, id := range raw {
			if id == nodeID {
				continue
			}
			kept = append(kept, id)
		}
		flow.Data[DataKeyManagerNodes] = kept
	}
}

// PatchNodeData shallow-merges partial into the node payload. Keys not
// named in the patch are preserved untouched.
func (r *Registry) PatchNodeData(ws domain.WorkspaceKey, nodeID string, partial map[string]any) error {
	r.mu.Lock()
	g, ok := r.workspaces[ws.String()]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("patch node %s in %s: %w", nodeID, ws, domain.ErrNotFound)
	}
	node := g.Node(nodeID)
	if node == nil {
		r.mu.Unlock()
		return fmt.Errorf("patch node %s in %s: %w", nodeID, ws, domain.ErrNotFound)
	}
	if node.Data == nil {
		node.Data = make(map[string]any, len(partial))
	}
	for k, v := range partial {
		node.Data[k] = v
	}
	r.mu.Unlock()

	r.notify()
	return nil
}

// MoveNode updates a node's canvas position.
func (r *Registry) MoveNode(ws domain.WorkspaceKey, nodeID string, pos domain.Position) error {
	r.mu.Lock()
	g, ok := r.workspaces[ws.String()]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("move node %s in %s: %w", nodeID, ws, domain.ErrNotFound)
	}
	node := g.Node(nodeID)
	if node == nil {
		r.mu.Unlock()
		return fmt.Errorf("move node %s in %s: %w", nodeID, ws, domain.ErrNotFound)
	}
	node.Position = pos
	r.mu.Unlock()

	r.notify()
	return nil
}

// Connect creates a directed edge. Both endpoints must already exist in
// the workspace.
func (r *Registry) Connect(ws domain.WorkspaceKey, sourceID, targetID string) (string, error) {
	r.mu.Lock()
	g := r.graph(ws)
	if g.Node(sourceID) == nil || g.Node(targetID) == nil {
		r.mu.Unlock()
		return "", fmt.Errorf("connect %s -> %s in %s: %w", sourceID, targetID, ws, domain.ErrDanglingEndpoint)
	}
	edge := &domain.Edge{ID: r.newID(), Source: sourceID, Target: targetID}
	g.Edges = append(g.Edges, edge)
	r.mu.Unlock()

	r.notify()
	return edge.ID, nil
}

// Disconnect removes an edge by id.
func (r *Registry) Disconnect(ws domain.WorkspaceKey, edgeID string) error {
	r.mu.Lock()
	g, ok := r.workspaces[ws.String()]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("disconnect %s in %s: %w", edgeID, ws, domain.ErrNotFound)
	}
	found := false
	edges := g.Edges[:0]
	for _, e := range g.Edges {
		if e.ID == edgeID {
			found = true
			continue
		}
		edges = append(edges, e)
	}
	g.Edges = edges
	r.mu.Unlock()

	if !found {
		return fmt.Errorf("disconnect %s in %s: %w", edgeID, ws, domain.ErrNotFound)
	}
	r.notify()
	return nil
}

// Snapshot returns a deep copy of one workspace graph.
func (r *Registry) Snapshot(ws domain.WorkspaceKey) *domain.Graph {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.workspaces[ws.String()]
	if !ok {
		return domain.NewGraph()
	}
	return g.Clone()
}

// SnapshotAll returns deep copies of every workspace graph, consistent at
// a single point: no mutation interleaves with the copy.
func (r *Registry) SnapshotAll() map[string]*domain.Graph {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*domain.Graph, len(r.workspaces))
	for key, g := range r.workspaces {
		out[key] = g.Clone()
	}
	return out
}

// Workspaces returns the sorted list of known workspace keys.
func (r *Registry) Workspaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.workspaces))
	for key := range r.workspaces {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// FindNode locates a node anywhere in the registry.
func (r *Registry) FindNode(nodeID string) (domain.WorkspaceKey, *domain.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key, g := range r.workspaces {
		if n := g.Node(nodeID); n != nil {
			ws, err := domain.ParseWorkspaceKey(key)
			if err != nil {
				continue
			}
			return ws, n.Clone(), true
		}
	}
	return domain.WorkspaceKey{}, nil, false
}

// ActiveWorkspace returns the currently selected workspace, if any.
func (r *Registry) ActiveWorkspace() (domain.WorkspaceKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active, r.hasActive
}

// SwitchWorkspace saves the outgoing workspace through the flush hook,
// then selects the new one. Unsaved mutations are never discarded by a
// switch.
func (r *Registry) SwitchWorkspace(ws domain.WorkspaceKey) {
	r.mu.Lock()
	prev, had := r.active, r.hasActive
	flush := r.flush
	r.active = ws
	r.hasActive = true
	r.graph(ws)
	r.mu.Unlock()

	if had && flush != nil && prev != ws {
		flush(prev)
	}
	r.logger.Debug("workspace switched", "workspace", ws.String())
}

// Replace swaps the whole registry content. Used by import; the caller
// has already validated the incoming graphs.
func (r *Registry) Replace(graphs map[string]*domain.Graph) {
	r.mu.Lock()
	next := make(map[string]*domain.Graph, len(graphs))
	for key, g := range graphs {
		next[key] = g.Clone()
	}
	r.workspaces = next
	r.mu.Unlock()

	r.notify()
}
