package domain

import "errors"

// ErrDuplicateOrchestrator is returned when an operation would place a
// second node of an orchestrator kind in the same workspace.
var ErrDuplicateOrchestrator = errors.New("orchestrator kind already present in workspace")

// ErrDanglingEndpoint is returned when an edge references a node that does
// not exist in the workspace.
var ErrDanglingEndpoint = errors.New("edge endpoint does not exist")

// ErrNotFound is returned when a node, edge or workspace cannot be found.
var ErrNotFound = errors.New("not found")

// ErrMalformedDocument is returned when an imported document fails
// validation. Import is all-or-nothing: a bad document is rejected whole.
var ErrMalformedDocument = errors.New("malformed document")

// ErrChannelUnavailable is returned by Send while the channel has no live
// connection. Non-fatal: commands are dropped, never queued.
var ErrChannelUnavailable = errors.New("channel unavailable")
