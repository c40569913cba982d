package domain

import "time"

// ExecutionStatus is the lifecycle state of one node's remote execution.
type ExecutionStatus string

const (
	StatusWaiting   ExecutionStatus = "waiting"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusErrored   ExecutionStatus = "errored"
)

// Terminal reports whether the status is a final state.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusErrored
}

// ExecutionRecord tracks one node's execution as seen by this client.
// Records are keyed by node id across the whole registry: a node running
// in one workspace is globally visible.
type ExecutionRecord struct {
	NodeID   string          `json:"nodeId"`
	Status   ExecutionStatus `json:"status"`
	Progress int             `json:"progress"` // 0..100

	StartedAt time.Time `json:"startedAt,omitempty"`
	EndedAt   time.Time `json:"endedAt,omitempty"`

	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	// LastEventAt is the time of the most recent state change, local or
	// remote. Callers use it to surface stuck-Running staleness; the
	// ledger never auto-expires a record on its own.
	LastEventAt time.Time `json:"lastEventAt,omitempty"`

	// LocalCancel marks a caller-forced reset to Waiting while the remote
	// outcome is unknown. Distinct from a confirmed stop, which arrives as
	// a remote event and clears the flag.
	LocalCancel bool `json:"localCancel,omitempty"`
}

// Clone returns a copy of the record.
func (r *ExecutionRecord) Clone() *ExecutionRecord {
	cp := *r
	return &cp
}

// ExecutionListItem is one positional entry in a Flow node's execution
// plan. It references a Worker node and mirrors, but does not own, that
// node's global ExecutionRecord.
type ExecutionListItem struct {
	NodeID   string          `json:"nodeId" mapstructure:"nodeId"`
	Order    int             `json:"order" mapstructure:"order"`
	Status   ExecutionStatus `json:"status" mapstructure:"status"`
	Progress int             `json:"progress" mapstructure:"progress"`
}
