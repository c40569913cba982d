package registry_test

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-run/atelier/pkg/domain"
	"github.com/atelier-run/atelier/pkg/registry"
)

var wsStory = domain.WorkspaceKey{Category: "pre-production", Tab: "story"}

// seqIDs returns a deterministic id generator for tests.
func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func TestAddNode_DefaultLabels(t *testing.T) {
	reg := registry.New()

	id1, err := reg.AddNode(wsStory, domain.KindWorker, domain.Position{X: 10, Y: 20})
	require.NoError(t, err)
	id2, err := reg.AddNode(wsStory, domain.KindWorker, domain.Position{})
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	g := reg.Snapshot(wsStory)
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "Worker 1", g.Node(id1).Label)
	assert.Equal(t, "Worker 2", g.Node(id2).Label)
	assert.Equal(t, 10.0, g.Node(id1).Position.X)
}

func TestAddNode_DuplicateOrchestratorRejected(t *testing.T) {
	reg := registry.New()

	_, err := reg.AddNode(wsStory, domain.KindScheduler, domain.Position{})
	require.NoError(t, err)

	before := len(reg.Snapshot(wsStory).Nodes)
	_, err = reg.AddNode(wsStory, domain.KindScheduler, domain.Position{})
	require.ErrorIs(t, err, domain.ErrDuplicateOrchestrator)

	// No partial insert: the node count is unchanged.
	assert.Equal(t, before, len(reg.Snapshot(wsStory).Nodes))
}

func TestAddNode_SingletonPerWorkspaceOnly(t *testing.T) {
	reg := registry.New()
	other := domain.WorkspaceKey{Category: "post-production", Tab: "edit"}

	_, err := reg.AddNode(wsStory, domain.KindFlow, domain.Position{})
	require.NoError(t, err)

	// The same orchestrator kind is fine in a different workspace.
	_, err = reg.AddNode(other, domain.KindFlow, domain.Position{})
	require.NoError(t, err)
}

// TestSingletonInvariant_RandomOps drives random add/delete sequences and
// checks that no workspace ever holds two nodes of an orchestrator kind.
func TestSingletonInvariant_RandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	reg := registry.New()
	workspaces := []domain.WorkspaceKey{
		wsStory,
		{Category: "pre-production", Tab: "casting"},
		{Category: "director", Tab: "review"},
	}

	var alive []struct {
		ws domain.WorkspaceKey
		id string
	}

	for i := 0; i < 2000; i++ {
		ws := workspaces[rng.Intn(len(workspaces))]
		if rng.Intn(3) > 0 || len(alive) == 0 {
			kind := domain.Kinds[rng.Intn(len(domain.Kinds))]
			id, err := reg.AddNode(ws, kind, domain.Position{})
			if err != nil {
				require.ErrorIs(t, err, domain.ErrDuplicateOrchestrator)
			} else {
				alive = append(alive, struct {
					ws domain.WorkspaceKey
					id string
				}{ws, id})
			}
		} else {
			pick := rng.Intn(len(alive))
			victim := alive[pick]
			require.NoError(t, reg.DeleteNode(victim.ws, victim.id))
			alive = append(alive[:pick], alive[pick+1:]...)
		}

		for _, w := range workspaces {
			g := reg.Snapshot(w)
			for _, kind := range domain.Kinds {
				if kind.IsOrchestrator() {
					require.LessOrEqual(t, g.CountKind(kind), 1,
						"workspace %s holds %d %s nodes", w, g.CountKind(kind), kind)
				}
			}
		}
	}
}

func TestDeleteNode_Cascades(t *testing.T) {
	reg := registry.New(registry.WithIDGenerator(seqIDs("n")))

	worker1, err := reg.AddNode(wsStory, domain.KindWorker, domain.Position{})
	require.NoError(t, err)
	worker2, err := reg.AddNode(wsStory, domain.KindWorker, domain.Position{})
	require.NoError(t, err)
	flowID, err := reg.AddNode(wsStory, domain.KindFlow, domain.Position{})
	require.NoError(t, err)

	_, err = reg.Connect(wsStory, worker1, worker2)
	require.NoError(t, err)
	_, err = reg.Connect(wsStory, worker2, flowID)
	require.NoError(t, err)

	require.NoError(t, reg.PatchNodeData(wsStory, flowID, map[string]any{
		registry.DataKeyExecutionList: []any{
			map[string]any{"nodeId": worker1, "order": 0, "status": "waiting", "progress": 0},
			map[string]any{"nodeId": worker2, "order": 1, "status": "waiting", "progress": 0},
		},
		registry.DataKeyManagerNodes: []any{worker1},
	}))

	require.NoError(t, reg.DeleteNode(wsStory, worker1))

	g := reg.Snapshot(wsStory)
	require.Nil(t, g.Node(worker1))

	// Every edge touching the node is gone; the unrelated edge survives.
	require.Len(t, g.Edges, 1)
	assert.Equal(t, worker2, g.Edges[0].Source)

	// The flow plan lost the reference and re-indexed the remainder.
	items := g.Node(flowID).Data[registry.DataKeyExecutionList].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, worker2, item["nodeId"])
	assert.Equal(t, 0, item["order"])

	managers := g.Node(flowID).Data[registry.DataKeyManagerNodes].([]any)
	assert.Empty(t, managers)
}

func TestDeleteNode_NotFound(t *testing.T) {
	reg := registry.New()
	err := reg.DeleteNode(wsStory, "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPatchNodeData_ShallowMerge(t *testing.T) {
	reg := registry.New()
	id, err := reg.AddNode(wsStory, domain.KindWorker, domain.Position{})
	require.NoError(t, err)

	require.NoError(t, reg.PatchNodeData(wsStory, id, map[string]any{
		"code":  "print('hi')",
		"model": "base",
	}))
	require.NoError(t, reg.PatchNodeData(wsStory, id, map[string]any{
		"model": "large",
	}))

	data := reg.Snapshot(wsStory).Node(id).Data
	// Unnamed keys survive the second patch.
	assert.Equal(t, "print('hi')", data["code"])
	assert.Equal(t, "large", data["model"])

	err = reg.PatchNodeData(wsStory, "ghost", map[string]any{"x": 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConnect_DanglingEndpoint(t *testing.T) {
	reg := registry.New()
	id, err := reg.AddNode(wsStory, domain.KindWorker, domain.Position{})
	require.NoError(t, err)

	_, err = reg.Connect(wsStory, id, "missing")
	require.ErrorIs(t, err, domain.ErrDanglingEndpoint)
	_, err = reg.Connect(wsStory, "missing", id)
	require.ErrorIs(t, err, domain.ErrDanglingEndpoint)
	assert.Empty(t, reg.Snapshot(wsStory).Edges)
}

func TestSnapshot_IsACopy(t *testing.T) {
	reg := registry.New()
	id, err := reg.AddNode(wsStory, domain.KindWorker, domain.Position{})
	require.NoError(t, err)

	snap := reg.Snapshot(wsStory)
	snap.Node(id).Label = "mutated"
	snap.Nodes = nil

	assert.Equal(t, "Worker 1", reg.Snapshot(wsStory).Node(id).Label)
}

func TestSwitchWorkspace_FlushesOutgoing(t *testing.T) {
	reg := registry.New()
	var flushed []string
	reg.OnFlush(func(ws domain.WorkspaceKey) {
		flushed = append(flushed, ws.String())
	})

	reg.SwitchWorkspace(wsStory)
	// First selection has no outgoing workspace to save.
	require.Empty(t, flushed)

	reg.SwitchWorkspace(domain.WorkspaceKey{Category: "director", Tab: "review"})
	require.Equal(t, []string{"pre-production/story"}, flushed)

	active, ok := reg.ActiveWorkspace()
	require.True(t, ok)
	assert.Equal(t, "director/review", active.String())
}

func TestFindNode_AcrossWorkspaces(t *testing.T) {
	reg := registry.New()
	other := domain.WorkspaceKey{Category: "post-production", Tab: "edit"}
	id, err := reg.AddNode(other, domain.KindWorker, domain.Position{})
	require.NoError(t, err)

	ws, node, ok := reg.FindNode(id)
	require.True(t, ok)
	assert.Equal(t, other, ws)
	assert.Equal(t, domain.KindWorker, node.Kind)

	_, _, ok = reg.FindNode("ghost")
	assert.False(t, ok)
}

func TestOnChange_FiresPerMutation(t *testing.T) {
	reg := registry.New()
	count := 0
	reg.OnChange(func() { count++ })

	id, err := reg.AddNode(wsStory, domain.KindWorker, domain.Position{})
	require.NoError(t, err)
	require.NoError(t, reg.MoveNode(wsStory, id, domain.Position{X: 5}))
	require.NoError(t, reg.DeleteNode(wsStory, id))

	assert.Equal(t, 3, count)

	// Failed mutations do not notify.
	_, err = reg.AddNode(wsStory, domain.NodeKind("bogus"), domain.Position{})
	require.Error(t, err)
	assert.Equal(t, 3, count)
}

func TestDisconnect(t *testing.T) {
	reg := registry.New()
	a, _ := reg.AddNode(wsStory, domain.KindWorker, domain.Position{})
	b, _ := reg.AddNode(wsStory, domain.KindWorker, domain.Position{})
	edge, err := reg.Connect(wsStory, a, b)
	require.NoError(t, err)

	require.NoError(t, reg.Disconnect(wsStory, edge))
	assert.Empty(t, reg.Snapshot(wsStory).Edges)

	err = reg.Disconnect(wsStory, edge)
	require.True(t, errors.Is(err, domain.ErrNotFound))
}
