// Package gateway serializes the whole graph registry to and from a
// portable document, and debounces autosave writes behind a document
// store adapter.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atelier-run/atelier/internal/logging"
	"github.com/atelier-run/atelier/pkg/domain"
	"github.com/atelier-run/atelier/pkg/ports"
	"github.com/atelier-run/atelier/pkg/registry"
)

// DefaultAutosaveInterval bounds how often a burst of edits is written.
const DefaultAutosaveInterval = 2 * time.Second

// Gateway is the only durable-state concern of the coordinator.
type Gateway struct {
	reg   *registry.Registry
	store ports.DocumentStore

	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	pending *time.Timer
	closed  bool
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithAutosaveInterval sets the debounce window.
func WithAutosaveInterval(d time.Duration) Option {
	return func(g *Gateway) { g.interval = d }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New creates a gateway over a registry and a document store.
func New(reg *registry.Registry, store ports.DocumentStore, opts ...Option) *Gateway {
	g := &Gateway{
		reg:      reg,
		store:    store,
		interval: DefaultAutosaveInterval,
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Bind hooks the gateway into the registry: every mutation schedules a
// debounced autosave, and switching workspaces flushes synchronously so
// no unsaved edit is left behind.
func (g *Gateway) Bind() {
	g.reg.OnChange(g.NotifyChanged)
	g.reg.OnFlush(func(domain.WorkspaceKey) {
		if err := g.Flush(context.Background()); err != nil {
			g.logger.Error("flush on workspace switch failed", "err", err)
		}
	})
}

// ExportAll snapshots every workspace into a portable document. The
// snapshot is consistent at a single point: the registry copy happens
// under one read lock, so no workspace mutates mid-export.
func (g *Gateway) ExportAll() *domain.Document {
	graphs := g.reg.SnapshotAll()
	doc := &domain.Document{
		Workspaces: make(map[string]domain.WorkspaceDocument, len(graphs)),
		ExportedAt: g.now().UTC(),
	}
	for key, graph := range graphs {
		doc.Workspaces[key] = domain.NewWorkspaceDocument(graph)
	}
	return doc
}

// ImportAll validates a document and replaces the entire registry with
// it. Fail-closed: one bad workspace rejects the whole document and the
// registry is untouched. No merging with existing state.
func (g *Gateway) ImportAll(doc *domain.Document) error {
	if doc == nil {
		return fmt.Errorf("import: nil document: %w", domain.ErrMalformedDocument)
	}
	graphs := make(map[string]*domain.Graph, len(doc.Workspaces))
	for key, wsDoc := range doc.Workspaces {
		if _, err := domain.ParseWorkspaceKey(key); err != nil {
			return fmt.Errorf("import workspace %q: %v: %w", key, err, domain.ErrMalformedDocument)
		}
		graph := wsDoc.Graph()
		if err := graph.Validate(); err != nil {
			return fmt.Errorf("import workspace %q: %v: %w", key, err, domain.ErrMalformedDocument)
		}
		graphs[key] = graph
	}
	g.reg.Replace(graphs)
	g.logger.Info("document imported", "workspaces", len(graphs))
	return nil
}

// Flush writes the current registry state immediately, cancelling any
// pending autosave.
func (g *Gateway) Flush(ctx context.Context) error {
	g.mu.Lock()
	if g.pending != nil {
		g.pending.Stop()
		g.pending = nil
	}
	g.mu.Unlock()

	if err := g.store.Save(ctx, g.ExportAll()); err != nil {
		return fmt.Errorf("persist document: %w", err)
	}
	return nil
}

// Load reads the stored document and imports it. A missing document is
// not an error: the registry simply starts empty.
func (g *Gateway) Load(ctx context.Context) error {
	doc, err := g.store.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load document: %w", err)
	}
	return g.ImportAll(doc)
}

// NotifyChanged schedules a debounced autosave. Bursts of edits coalesce
// into one write: while a save is already pending, further notifications
// are no-ops, so writes happen at most once per interval.
func (g *Gateway) NotifyChanged() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.pending != nil {
		return
	}
	g.pending = time.AfterFunc(g.interval, func() {
		g.mu.Lock()
		g.pending = nil
		closed := g.closed
		g.mu.Unlock()
		if closed {
			return
		}
		if err := g.store.Save(context.Background(), g.ExportAll()); err != nil {
			g.logger.Error("autosave failed", "err", err)
			return
		}
		g.logger.Debug("autosaved")
	})
}

// Close stops autosave and performs a final flush.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	if g.pending != nil {
		g.pending.Stop()
		g.pending = nil
	}
	g.mu.Unlock()
	if err := g.store.Save(ctx, g.ExportAll()); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}
