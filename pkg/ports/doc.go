// Package ports defines the boundary interfaces of the coordinator.
// Adapters (websocket channel, document stores) implement them; the core
// packages depend only on these contracts.
package ports
