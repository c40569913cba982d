package domain

import "fmt"

// NodeKind identifies the behavior class of a node.
type NodeKind string

const (
	// KindWorker is the unit of remote-executable work. Unrestricted: a
	// workspace may hold any number of workers.
	KindWorker NodeKind = "worker"

	// Orchestrator kinds. At most one of each per workspace.
	KindSupervisor NodeKind = "supervisor"
	KindPlanner    NodeKind = "planner"
	KindWatcher    NodeKind = "watcher"
	KindScheduler  NodeKind = "scheduler"
	KindFlow       NodeKind = "flow"
	KindStorage    NodeKind = "storage"
)

// Kinds lists every valid node kind.
var Kinds = []NodeKind{
	KindWorker,
	KindSupervisor,
	KindPlanner,
	KindWatcher,
	KindScheduler,
	KindFlow,
	KindStorage,
}

// IsOrchestrator reports whether the kind is restricted to a single
// instance per workspace.
func (k NodeKind) IsOrchestrator() bool {
	switch k {
	case KindSupervisor, KindPlanner, KindWatcher, KindScheduler, KindFlow, KindStorage:
		return true
	}
	return false
}

// Valid reports whether the kind belongs to the closed variant set.
func (k NodeKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Title returns the display form used for default labels ("Worker", "Flow").
func (k NodeKind) Title() string {
	if k == "" {
		return ""
	}
	s := string(k)
	return string(s[0]-'a'+'A') + s[1:]
}

// ParseNodeKind converts a wire string to a NodeKind.
func ParseNodeKind(s string) (NodeKind, error) {
	k := NodeKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown node kind %q", s)
	}
	return k, nil
}

// Position is the node placement on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a typed unit placed in a workspace graph.
//
// Data holds kind-specific payload as free-form keys (worker code, flow
// execution list, storage settings). It is patched by shallow merge, so
// keys the coordinator does not understand survive round trips.
type Node struct {
	ID       string         `json:"id"`
	Kind     NodeKind       `json:"kind"`
	Label    string         `json:"label"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data,omitempty"`
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	cp := *n
	if n.Data != nil {
		cp.Data = cloneMap(n.Data)
	}
	return &cp
}

// cloneMap copies nested maps and slices; values of other types are
// shared, which is fine for JSON-shaped payloads.
func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Edge is a directed connection between two nodes of the same workspace.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Touches reports whether the edge references the given node.
func (e *Edge) Touches(nodeID string) bool {
	return e.Source == nodeID || e.Target == nodeID
}
