// Package ledger is the authoritative client-side view of remote
// execution state, keyed by node id across every workspace.
package ledger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/atelier-run/atelier/internal/logging"
	"github.com/atelier-run/atelier/pkg/domain"
)

// Observer receives a copy of a record after every state change.
type Observer func(domain.ExecutionRecord)

// Ledger tracks one ExecutionRecord per node id. Records are created on
// the first execute request, updated by remote events, and never deleted;
// they age out only when the whole registry is replaced.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]*domain.ExecutionRecord

	observers []Observer

	now    func() time.Time
	logger *slog.Logger
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		records: make(map[string]*domain.ExecutionRecord),
		now:     time.Now,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Subscribe registers an observer for record changes. Observers run
// outside the ledger lock, after the change is applied.
func (l *Ledger) Subscribe(fn Observer) {
	l.mu.Lock()
	l.observers = append(l.observers, fn)
	l.mu.Unlock()
}

func (l *Ledger) publish(rec domain.ExecutionRecord) {
	l.mu.RLock()
	observers := make([]Observer, len(l.observers))
	copy(observers, l.observers)
	l.mu.RUnlock()
	for _, fn := range observers {
		fn(rec)
	}
}

// ExecuteRequested records an outgoing execute command. It reports
// whether a command should actually be sent: a node already Running is a
// no-op, so two in-flight requests can never race on one record. Any
// other prior state restarts the record.
func (l *Ledger) ExecuteRequested(nodeID string) bool {
	l.mu.Lock()
	rec, ok := l.records[nodeID]
	if ok && rec.Status == domain.StatusRunning {
		l.mu.Unlock()
		l.logger.Debug("execute ignored, already running", "node", nodeID)
		return false
	}
	now := l.now()
	rec = &domain.ExecutionRecord{
		NodeID:      nodeID,
		Status:      domain.StatusRunning,
		Progress:    0,
		StartedAt:   now,
		LastEventAt: now,
	}
	l.records[nodeID] = rec
	snapshot := *rec
	l.mu.Unlock()

	l.publish(snapshot)
	return true
}

// StopRequested records an outgoing stop command. The status is left
// untouched: stop is best-effort and only a remote event confirms it, so
// the UI never shows idle while work may still be running remotely.
func (l *Ledger) StopRequested(nodeID string) {
	l.mu.Lock()
	if rec, ok := l.records[nodeID]; ok {
		rec.LastEventAt = l.now()
	}
	l.mu.Unlock()
}

// CancelLocally force-resets a record to Waiting while flagging that the
// remote outcome is unknown. Distinguishable from a confirmed stop, which
// arrives as a remote event and clears the flag.
func (l *Ledger) CancelLocally(nodeID string) {
	l.mu.Lock()
	rec, ok := l.records[nodeID]
	if !ok {
		l.mu.Unlock()
		return
	}
	rec.Status = domain.StatusWaiting
	rec.LocalCancel = true
	rec.LastEventAt = l.now()
	snapshot := *rec
	l.mu.Unlock()

	l.publish(snapshot)
}

// ApplyEvent folds one remote event into the ledger.
func (l *Ledger) ApplyEvent(ev domain.Event) {
	switch ev.Type {
	case domain.EventExecutionStart:
		l.remoteStarted(ev.NodeID)
	case domain.EventProgress:
		l.remoteProgress(ev.NodeID, int(ev.Progress))
	case domain.EventExecutionComplete:
		l.remoteCompleted(ev)
	case domain.EventLog, domain.EventExecutionResult:
		// Informational passthrough; no ledger state.
	default:
		l.logger.Debug("unhandled event type", "type", ev.Type)
	}
}

func (l *Ledger) remoteStarted(nodeID string) {
	if nodeID == "" {
		return
	}
	l.mu.Lock()
	rec, ok := l.records[nodeID]
	if !ok {
		rec = &domain.ExecutionRecord{NodeID: nodeID}
		l.records[nodeID] = rec
	}
	now := l.now()
	rec.Status = domain.StatusRunning
	rec.Progress = 0
	rec.StartedAt = now
	rec.EndedAt = time.Time{}
	rec.Result = nil
	rec.Error = ""
	rec.LocalCancel = false
	rec.LastEventAt = now
	snapshot := *rec
	l.mu.Unlock()

	l.publish(snapshot)
}

func (l *Ledger) remoteProgress(nodeID string, progress int) {
	l.mu.Lock()
	rec, ok := l.records[nodeID]
	// Monotonic-state guard: late progress for a record that already
	// reached a terminal state is discarded.
	if !ok || rec.Status != domain.StatusRunning {
		l.mu.Unlock()
		l.logger.Debug("progress dropped", "node", nodeID)
		return
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	rec.Progress = progress
	rec.LastEventAt = l.now()
	snapshot := *rec
	l.mu.Unlock()

	l.publish(snapshot)
}

func (l *Ledger) remoteCompleted(ev domain.Event) {
	if ev.NodeID == "" {
		return
	}
	l.mu.Lock()
	rec, ok := l.records[ev.NodeID]
	if !ok {
		rec = &domain.ExecutionRecord{NodeID: ev.NodeID, StartedAt: l.now()}
		l.records[ev.NodeID] = rec
	}
	now := l.now()
	rec.EndedAt = now
	rec.LastEventAt = now
	rec.LocalCancel = false
	if ev.Result != nil && ev.Result.Status == domain.ResultError {
		rec.Status = domain.StatusErrored
		rec.Error = ev.Result.Error
		if rec.Error == "" {
			rec.Error = "remote execution failed"
		}
	} else {
		rec.Status = domain.StatusCompleted
		rec.Progress = 100
		if ev.Result != nil {
			rec.Result = ev.Result.Output
		}
	}
	snapshot := *rec
	l.mu.Unlock()

	l.publish(snapshot)
}

// Record returns a copy of one record.
func (l *Ledger) Record(nodeID string) (domain.ExecutionRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[nodeID]
	if !ok {
		return domain.ExecutionRecord{}, false
	}
	return *rec, true
}

// Records returns a copy of every record.
func (l *Ledger) Records() []domain.ExecutionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ExecutionRecord, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, *rec)
	}
	return out
}

// SinceLastEvent returns how long ago the record last changed.
func (l *Ledger) SinceLastEvent(nodeID string) (time.Duration, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[nodeID]
	if !ok || rec.LastEventAt.IsZero() {
		return 0, false
	}
	return l.now().Sub(rec.LastEventAt), true
}

// Stale lists Running records whose last event is older than limit.
// Staleness is surfaced, never acted on: the ledger does not auto-fail a
// silent node.
func (l *Ledger) Stale(limit time.Duration) []domain.ExecutionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cutoff := l.now().Add(-limit)
	var out []domain.ExecutionRecord
	for _, rec := range l.records {
		if rec.Status == domain.StatusRunning && rec.LastEventAt.Before(cutoff) {
			out = append(out, *rec)
		}
	}
	return out
}

// Reset drops every record. Used when the registry is replaced by import.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.records = make(map[string]*domain.ExecutionRecord)
	l.mu.Unlock()
}
