// Package flow drives a Flow node's ordered execution plan: bulk
// dispatch of execute commands, best-effort stop, and projection of the
// global execution ledger onto the Flow node's own item list.
package flow

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atelier-run/atelier/internal/logging"
	"github.com/atelier-run/atelier/pkg/domain"
	"github.com/atelier-run/atelier/pkg/ledger"
	"github.com/atelier-run/atelier/pkg/ports"
	"github.com/atelier-run/atelier/pkg/registry"
)

// run tracks one active flow between Start and completion/Stop.
type run struct {
	workspace domain.WorkspaceKey
	startedAt time.Time
	eta       time.Time // monotonically non-decreasing while running
}

// Orchestrator manages Flow nodes. The ledger is the source of truth for
// item state; the Flow node's payload is a projection refreshed whenever
// the ledger emits an event for a referenced node.
type Orchestrator struct {
	reg       *registry.Registry
	led       *ledger.Ledger
	transport ports.Transport

	mu   sync.Mutex
	runs map[string]*run // keyed by flow node id

	now    func() time.Time
	logger *slog.Logger
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator and subscribes it to ledger changes.
func New(reg *registry.Registry, led *ledger.Ledger, transport ports.Transport, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		reg:       reg,
		led:       led,
		transport: transport,
		runs:      make(map[string]*run),
		now:       time.Now,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	led.Subscribe(o.onLedgerChange)
	return o
}

// flowData loads and decodes one Flow node's payload.
func (o *Orchestrator) flowData(ws domain.WorkspaceKey, flowNodeID string) (FlowData, error) {
	node := o.reg.Snapshot(ws).Node(flowNodeID)
	if node == nil {
		return FlowData{}, fmt.Errorf("flow node %s in %s: %w", flowNodeID, ws, domain.ErrNotFound)
	}
	if node.Kind != domain.KindFlow {
		return FlowData{}, fmt.Errorf("node %s is %s, not a flow node", flowNodeID, node.Kind)
	}
	return DecodeFlowData(node.Data)
}

// Start dispatches the whole execution plan. Already running is a no-op.
// Dispatch is bulk: one execute command per item, in list order, without
// waiting between items. The order field is advisory metadata, not an
// enforced gate.
func (o *Orchestrator) Start(ws domain.WorkspaceKey, flowNodeID string) error {
	fd, err := o.flowData(ws, flowNodeID)
	if err != nil {
		return err
	}
	if fd.IsRunning {
		o.logger.Debug("flow already running", "flow", flowNodeID)
		return nil
	}

	for i := range fd.ExecutionList {
		item := &fd.ExecutionList[i]
		_, worker, ok := o.reg.FindNode(item.NodeID)
		if !ok || worker.Kind != domain.KindWorker {
			o.logger.Warn("execution item skipped, not a known worker",
				"flow", flowNodeID, "node", item.NodeID)
			item.Status = domain.StatusErrored
			continue
		}
		if !o.led.ExecuteRequested(item.NodeID) {
			// Already in flight from an earlier request; track it as-is.
			if rec, ok := o.led.Record(item.NodeID); ok {
				item.Status = rec.Status
				item.Progress = rec.Progress
			}
			continue
		}
		item.Status = domain.StatusRunning
		item.Progress = 0
		cmd := domain.NewExecuteCommand(worker.ID, worker.Kind, worker.Data)
		if err := o.transport.Send(cmd); err != nil {
			// Dropped, not fatal: the channel recovers on its own and the
			// item will sit Running until stopped or re-driven.
			o.logger.Warn("execute command dropped", "node", worker.ID, "err", err)
		}
	}

	// An empty plan, or one whose items all failed validation, has
	// nothing in flight and finishes immediately.
	fd.IsRunning = !fd.done()
	fd.TotalProgress = fd.totalProgress()
	if err := o.reg.PatchNodeData(ws, flowNodeID, fd.patch()); err != nil {
		return err
	}

	if fd.IsRunning {
		o.mu.Lock()
		o.runs[flowNodeID] = &run{workspace: ws, startedAt: o.now()}
		o.mu.Unlock()
	}
	o.logger.Info("flow started", "flow", flowNodeID, "items", len(fd.ExecutionList))
	return nil
}

// Stop issues best-effort stop commands: one for the flow node itself
// and one per item still Running. Local records stay untouched until the
// remote confirms; only the flow's own isRunning flag flips.
func (o *Orchestrator) Stop(ws domain.WorkspaceKey, flowNodeID string) error {
	fd, err := o.flowData(ws, flowNodeID)
	if err != nil {
		return err
	}

	if err := o.transport.Send(domain.NewStopCommand(flowNodeID)); err != nil {
		o.logger.Warn("stop command dropped", "node", flowNodeID, "err", err)
	}
	for _, item := range fd.ExecutionList {
		rec, ok := o.led.Record(item.NodeID)
		if !ok || rec.Status != domain.StatusRunning {
			continue
		}
		o.led.StopRequested(item.NodeID)
		if err := o.transport.Send(domain.NewStopCommand(item.NodeID)); err != nil {
			o.logger.Warn("stop command dropped", "node", item.NodeID, "err", err)
		}
	}

	fd.IsRunning = false
	if err := o.reg.PatchNodeData(ws, flowNodeID, fd.patch()); err != nil {
		return err
	}

	o.mu.Lock()
	delete(o.runs, flowNodeID)
	o.mu.Unlock()
	o.logger.Info("flow stopped", "flow", flowNodeID)
	return nil
}

// TotalProgress returns the rounded mean progress over the flow's items.
func (o *Orchestrator) TotalProgress(ws domain.WorkspaceKey, flowNodeID string) (int, error) {
	fd, err := o.flowData(ws, flowNodeID)
	if err != nil {
		return 0, err
	}
	return fd.totalProgress(), nil
}

// EstimatedCompletion returns the display-only completion estimate for a
// running flow. Zero time and false when the flow is not running.
func (o *Orchestrator) EstimatedCompletion(flowNodeID string) (time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[flowNodeID]
	if !ok || r.eta.IsZero() {
		return time.Time{}, false
	}
	return r.eta, true
}

// onLedgerChange projects a ledger record onto every active flow that
// references the node.
func (o *Orchestrator) onLedgerChange(rec domain.ExecutionRecord) {
	o.mu.Lock()
	active := make(map[string]domain.WorkspaceKey, len(o.runs))
	for flowID, r := range o.runs {
		active[flowID] = r.workspace
	}
	o.mu.Unlock()

	for flowID, ws := range active {
		o.refresh(ws, flowID, rec)
	}
}

func (o *Orchestrator) refresh(ws domain.WorkspaceKey, flowNodeID string, rec domain.ExecutionRecord) {
	fd, err := o.flowData(ws, flowNodeID)
	if err != nil {
		return
	}
	touched := false
	for i := range fd.ExecutionList {
		if fd.ExecutionList[i].NodeID != rec.NodeID {
			continue
		}
		fd.ExecutionList[i].Status = rec.Status
		fd.ExecutionList[i].Progress = rec.Progress
		touched = true
	}
	if !touched {
		return
	}

	fd.TotalProgress = fd.totalProgress()
	finished := fd.done()
	if finished {
		fd.IsRunning = false
	}
	if err := o.reg.PatchNodeData(ws, flowNodeID, fd.patch()); err != nil {
		o.logger.Warn("flow projection patch failed", "flow", flowNodeID, "err", err)
		return
	}
	o.updateETA(flowNodeID, fd, finished)
}

// updateETA recomputes the completion estimate. It only ever moves
// forward while the flow runs, and is cleared once the flow stops.
func (o *Orchestrator) updateETA(flowNodeID string, fd FlowData, finished bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[flowNodeID]
	if !ok {
		return
	}
	if finished {
		delete(o.runs, flowNodeID)
		return
	}
	progress := fd.totalProgress()
	if progress <= 0 {
		return
	}
	elapsed := o.now().Sub(r.startedAt)
	estimate := r.startedAt.Add(time.Duration(float64(elapsed) * 100 / float64(progress)))
	if estimate.After(r.eta) {
		r.eta = estimate
	}
}
