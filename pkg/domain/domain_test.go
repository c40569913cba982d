package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-run/atelier/pkg/domain"
)

func TestNodeKind_Classification(t *testing.T) {
	assert.False(t, domain.KindWorker.IsOrchestrator())
	for _, k := range domain.Kinds {
		if k == domain.KindWorker {
			continue
		}
		assert.True(t, k.IsOrchestrator(), "kind %s", k)
	}

	_, err := domain.ParseNodeKind("conductor")
	require.Error(t, err)

	k, err := domain.ParseNodeKind("scheduler")
	require.NoError(t, err)
	assert.Equal(t, domain.KindScheduler, k)
	assert.Equal(t, "Scheduler", k.Title())
}

func TestNode_CloneIsDeep(t *testing.T) {
	n := &domain.Node{
		ID:   "n1",
		Kind: domain.KindFlow,
		Data: map[string]any{
			"executionList": []any{map[string]any{"nodeId": "w1"}},
		},
	}
	cp := n.Clone()
	cp.Data["executionList"].([]any)[0].(map[string]any)["nodeId"] = "w2"

	assert.Equal(t, "w1", n.Data["executionList"].([]any)[0].(map[string]any)["nodeId"])
}

func TestParseWorkspaceKey(t *testing.T) {
	key, err := domain.ParseWorkspaceKey("pre-production/story")
	require.NoError(t, err)
	assert.Equal(t, "pre-production", key.Category)
	assert.Equal(t, "story", key.Tab)
	assert.Equal(t, "pre-production/story", key.String())

	for _, bad := range []string{"", "noslash", "/tab", "category/"} {
		_, err := domain.ParseWorkspaceKey(bad)
		assert.Error(t, err, "key %q", bad)
	}
}

func TestGraph_Validate(t *testing.T) {
	g := &domain.Graph{
		Nodes: []*domain.Node{
			{ID: "a", Kind: domain.KindWorker},
			{ID: "b", Kind: domain.KindScheduler},
		},
		Edges: []*domain.Edge{{ID: "e1", Source: "a", Target: "b"}},
	}
	require.NoError(t, g.Validate())

	dup := g.Clone()
	dup.Nodes = append(dup.Nodes, &domain.Node{ID: "c", Kind: domain.KindScheduler})
	assert.ErrorIs(t, dup.Validate(), domain.ErrDuplicateOrchestrator)

	dangling := g.Clone()
	dangling.Edges = append(dangling.Edges, &domain.Edge{ID: "e2", Source: "a", Target: "ghost"})
	assert.ErrorIs(t, dangling.Validate(), domain.ErrDanglingEndpoint)

	unknown := g.Clone()
	unknown.Nodes = append(unknown.Nodes, &domain.Node{ID: "c", Kind: "conductor"})
	assert.Error(t, unknown.Validate())
}

func TestGraph_OrchestratorKindsIsDerived(t *testing.T) {
	g := &domain.Graph{Nodes: []*domain.Node{
		{ID: "a", Kind: domain.KindFlow},
		{ID: "b", Kind: domain.KindWorker},
	}}
	assert.Equal(t, map[domain.NodeKind]bool{domain.KindFlow: true}, g.OrchestratorKinds())

	// Mutating the graph changes the derived set on the next call.
	g.Nodes = g.Nodes[1:]
	assert.Empty(t, g.OrchestratorKinds())
}

func TestParseEvent(t *testing.T) {
	ev, err := domain.ParseEvent([]byte(`{"type":"progress","nodeId":"n1","progress":42.5}`))
	require.NoError(t, err)
	assert.Equal(t, domain.EventProgress, ev.Type)
	assert.Equal(t, "n1", ev.NodeID)
	assert.Equal(t, 42.5, ev.Progress)
	assert.JSONEq(t, `{"type":"progress","nodeId":"n1","progress":42.5}`, string(ev.Raw))

	_, err = domain.ParseEvent([]byte(`{"nodeId":"n1"}`))
	require.Error(t, err, "frame without a type discriminator")

	_, err = domain.ParseEvent([]byte(`not json`))
	require.Error(t, err)

	// Unknown types still parse; routing is the caller's problem.
	ev, err = domain.ParseEvent([]byte(`{"type":"heartbeat"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.EventType("heartbeat"), ev.Type)
}

func TestExecutionResult_PreservesUnknownKeys(t *testing.T) {
	frame := `{"type":"execution_complete","nodeId":"n1",
		"result":{"status":"success","output":7,"durationMs":120,"traceId":"abc"}}`
	ev, err := domain.ParseEvent([]byte(frame))
	require.NoError(t, err)

	require.NotNil(t, ev.Result)
	assert.Equal(t, domain.ResultSuccess, ev.Result.Status)
	assert.Equal(t, float64(7), ev.Result.Output)
	assert.Equal(t, map[string]any{"durationMs": float64(120), "traceId": "abc"}, ev.Result.Extra)
}

func TestCommand_WireShape(t *testing.T) {
	data, err := json.Marshal(domain.NewExecuteCommand("n1", domain.KindWorker, map[string]any{"code": "x"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"execute","nodeId":"n1","nodeType":"worker","inputData":{"code":"x"}}`, string(data))

	data, err = json.Marshal(domain.NewStopCommand("n1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"stop","nodeId":"n1"}`, string(data))
}
