/*
Package atelier is the coordination core of a node-canvas workflow studio:
it owns the graphs of typed nodes the user edits, tracks the execution
state of every node run on a remote executor, and keeps the whole thing
durable across restarts.

The module is organized hexagonally. Core packages hold the semantics;
adapters carry the dependencies:

  - pkg/domain: node kinds, graphs, workspace keys, execution records,
    wire commands and events, sentinel errors.
  - pkg/registry: multi-workspace graph state with the per-workspace
    orchestrator singleton invariant and cascade deletes.
  - pkg/ledger: the execution state machine driven by remote events.
  - pkg/channel: the resilient websocket connection to the executor.
  - pkg/flow: bulk dispatch and progress projection for Flow nodes.
  - pkg/gateway: export/import and debounced autosave through a
    pluggable document store (pkg/adapters/{memory,file,redis}).

The cmd/atelier binary wires it all together as a daemon with an HTTP
surface for health, metrics, snapshots, and flow control.
*/
package atelier
