package flow_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-run/atelier/pkg/domain"
	"github.com/atelier-run/atelier/pkg/flow"
	"github.com/atelier-run/atelier/pkg/ledger"
	"github.com/atelier-run/atelier/pkg/registry"
)

var wsStory = domain.WorkspaceKey{Category: "pre-production", Tab: "story"}

// recordingTransport captures sent commands; optionally failing.
type recordingTransport struct {
	mu       sync.Mutex
	commands []domain.Command
	fail     bool
}

func (rt *recordingTransport) Send(cmd domain.Command) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.fail {
		return domain.ErrChannelUnavailable
	}
	rt.commands = append(rt.commands, cmd)
	return nil
}

func (rt *recordingTransport) sent() []domain.Command {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]domain.Command(nil), rt.commands...)
}

// setupFlow builds a registry with two workers and a flow node whose
// plan runs them in order. Node ids are worker-1, worker-2, flow-3.
func setupFlow(t *testing.T) (*registry.Registry, *ledger.Ledger, *recordingTransport, *flow.Orchestrator, string) {
	t.Helper()
	n := 0
	reg := registry.New(registry.WithIDGenerator(func() string {
		n++
		if n <= 2 {
			return fmt.Sprintf("worker-%d", n)
		}
		return fmt.Sprintf("flow-%d", n)
	}))

	w1, err := reg.AddNode(wsStory, domain.KindWorker, domain.Position{})
	require.NoError(t, err)
	require.Equal(t, "worker-1", w1)
	w2, err := reg.AddNode(wsStory, domain.KindWorker, domain.Position{})
	require.NoError(t, err)
	require.Equal(t, "worker-2", w2)
	flowID, err := reg.AddNode(wsStory, domain.KindFlow, domain.Position{})
	require.NoError(t, err)

	require.NoError(t, reg.PatchNodeData(wsStory, flowID, map[string]any{
		registry.DataKeyExecutionList: []any{
			map[string]any{"nodeId": "worker-1", "order": 0},
			map[string]any{"nodeId": "worker-2", "order": 1},
		},
	}))

	led := ledger.New()
	transport := &recordingTransport{}
	orchestrator := flow.New(reg, led, transport)
	return reg, led, transport, orchestrator, flowID
}

func TestStart_BulkDispatch(t *testing.T) {
	reg, _, transport, orchestrator, flowID := setupFlow(t)

	require.NoError(t, orchestrator.Start(wsStory, flowID))

	cmds := transport.sent()
	require.Len(t, cmds, 2)
	assert.Equal(t, "execute", cmds[0].Action())
	assert.Equal(t, "worker-1", cmds[0].CommandNodeID())
	assert.Equal(t, "worker-2", cmds[1].CommandNodeID())

	fd, err := flow.DecodeFlowData(reg.Snapshot(wsStory).Node(flowID).Data)
	require.NoError(t, err)
	assert.True(t, fd.IsRunning)
	require.Len(t, fd.ExecutionList, 2)
	assert.Equal(t, domain.StatusRunning, fd.ExecutionList[0].Status)
}

func TestStart_AlreadyRunningIsNoOp(t *testing.T) {
	_, _, transport, orchestrator, flowID := setupFlow(t)

	require.NoError(t, orchestrator.Start(wsStory, flowID))
	require.NoError(t, orchestrator.Start(wsStory, flowID))

	assert.Len(t, transport.sent(), 2, "restart must not dispatch again")
}

// TestFlowScenario_MixedOutcome walks the two-worker plan through a
// success and a failure and checks the projection and aggregate.
func TestFlowScenario_MixedOutcome(t *testing.T) {
	reg, led, _, orchestrator, flowID := setupFlow(t)

	require.NoError(t, orchestrator.Start(wsStory, flowID))

	led.ApplyEvent(domain.Event{
		Type:   domain.EventExecutionComplete,
		NodeID: "worker-1",
		Result: &domain.ExecutionResult{Status: domain.ResultSuccess},
	})
	led.ApplyEvent(domain.Event{Type: domain.EventExecutionStart, NodeID: "worker-2"})
	led.ApplyEvent(domain.Event{
		Type:   domain.EventExecutionComplete,
		NodeID: "worker-2",
		Result: &domain.ExecutionResult{Status: domain.ResultError, Error: "exit 1"},
	})

	total, err := orchestrator.TotalProgress(wsStory, flowID)
	require.NoError(t, err)
	assert.Equal(t, 100, total)

	fd, err := flow.DecodeFlowData(reg.Snapshot(wsStory).Node(flowID).Data)
	require.NoError(t, err)
	require.Len(t, fd.ExecutionList, 2)
	assert.Equal(t, domain.StatusCompleted, fd.ExecutionList[0].Status)
	assert.Equal(t, domain.StatusErrored, fd.ExecutionList[1].Status)
	assert.False(t, fd.IsRunning, "flow ends once every item is terminal")
}

func TestStop_StopsFlowAndRunningItems(t *testing.T) {
	_, led, transport, orchestrator, flowID := setupFlow(t)

	require.NoError(t, orchestrator.Start(wsStory, flowID))
	// worker-1 finished; only worker-2 is still in flight.
	led.ApplyEvent(domain.Event{
		Type:   domain.EventExecutionComplete,
		NodeID: "worker-1",
		Result: &domain.ExecutionResult{Status: domain.ResultSuccess},
	})

	require.NoError(t, orchestrator.Stop(wsStory, flowID))

	var stops []string
	for _, cmd := range transport.sent() {
		if cmd.Action() == "stop" {
			stops = append(stops, cmd.CommandNodeID())
		}
	}
	assert.Equal(t, []string{flowID, "worker-2"}, stops)

	// Local item state is untouched until the remote confirms.
	rec, ok := led.Record("worker-2")
	require.True(t, ok)
	assert.Equal(t, domain.StatusRunning, rec.Status)
}

func TestStart_SkipsDeletedWorker(t *testing.T) {
	reg, _, transport, orchestrator, flowID := setupFlow(t)

	// Bypass the cascade on purpose: build a plan entry pointing nowhere.
	require.NoError(t, reg.PatchNodeData(wsStory, flowID, map[string]any{
		registry.DataKeyExecutionList: []any{
			map[string]any{"nodeId": "worker-1", "order": 0},
			map[string]any{"nodeId": "ghost", "order": 1},
		},
	}))

	require.NoError(t, orchestrator.Start(wsStory, flowID))

	cmds := transport.sent()
	require.Len(t, cmds, 1)
	assert.Equal(t, "worker-1", cmds[0].CommandNodeID())
}

func TestStart_ProgressAggregation(t *testing.T) {
	_, led, _, orchestrator, flowID := setupFlow(t)

	require.NoError(t, orchestrator.Start(wsStory, flowID))
	led.ApplyEvent(domain.Event{Type: domain.EventProgress, NodeID: "worker-1", Progress: 50})
	led.ApplyEvent(domain.Event{Type: domain.EventProgress, NodeID: "worker-2", Progress: 30})

	total, err := orchestrator.TotalProgress(wsStory, flowID)
	require.NoError(t, err)
	assert.Equal(t, 40, total)
}

func TestEstimatedCompletion_OnlyWhileRunning(t *testing.T) {
	_, led, _, orchestrator, flowID := setupFlow(t)

	_, ok := orchestrator.EstimatedCompletion(flowID)
	assert.False(t, ok)

	require.NoError(t, orchestrator.Start(wsStory, flowID))
	led.ApplyEvent(domain.Event{Type: domain.EventProgress, NodeID: "worker-1", Progress: 50})

	first, ok := orchestrator.EstimatedCompletion(flowID)
	require.True(t, ok)

	led.ApplyEvent(domain.Event{Type: domain.EventProgress, NodeID: "worker-1", Progress: 60})
	second, ok := orchestrator.EstimatedCompletion(flowID)
	require.True(t, ok)
	assert.False(t, second.Before(first), "estimate never moves backwards while running")

	require.NoError(t, orchestrator.Stop(wsStory, flowID))
	_, ok = orchestrator.EstimatedCompletion(flowID)
	assert.False(t, ok, "estimate cleared once not running")
}

func TestStartUnknownFlowNode(t *testing.T) {
	reg := registry.New()
	led := ledger.New()
	orchestrator := flow.New(reg, led, &recordingTransport{})

	err := orchestrator.Start(wsStory, "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
