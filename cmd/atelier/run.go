package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/atelier-run/atelier/internal/dispatch"
	"github.com/atelier-run/atelier/internal/httpapi"
	"github.com/atelier-run/atelier/internal/metrics"
	"github.com/atelier-run/atelier/pkg/channel"
	"github.com/atelier-run/atelier/pkg/domain"
	"github.com/atelier-run/atelier/pkg/flow"
	"github.com/atelier-run/atelier/pkg/gateway"
	"github.com/atelier-run/atelier/pkg/ledger"
	"github.com/atelier-run/atelier/pkg/registry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the coordinator daemon",
	Long: `Loads the persisted workspace document, connects to the remote
executor, and serves the observability endpoints until interrupted.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newStore(cfg.Storage)
	if err != nil {
		return err
	}

	reg := registry.New(registry.WithLogger(logger))
	led := ledger.New(ledger.WithLogger(logger))
	gw := gateway.New(reg, store,
		gateway.WithLogger(logger),
		gateway.WithAutosaveInterval(cfg.Autosave.Interval))
	gw.Bind()
	if err := gw.Load(ctx); err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	chanMetrics := metrics.NewChannel(promReg)
	execMetrics := metrics.NewExecution(promReg)

	ch := channel.New(cfg.Executor.URL,
		channel.WithLogger(logger),
		channel.WithMetrics(chanMetrics),
		channel.WithBackoff(cfg.Executor.BackoffBase, cfg.Executor.BackoffCeiling, cfg.Executor.BackoffAttempts))

	loop := dispatch.New(dispatch.WithLogger(logger))
	go loop.Run(ctx)

	// All ledger mutations funnel through the dispatch loop. Events for
	// node ids no longer in the registry are dropped: a completion racing
	// a delete is routine, not an error.
	ch.Subscribe(domain.EventAny, func(ev domain.Event) {
		_ = loop.Do(func() {
			if ev.NodeID != "" {
				if _, _, ok := reg.FindNode(ev.NodeID); !ok {
					logger.Debug("event for unknown node dropped",
						"type", ev.Type, "node", ev.NodeID)
					return
				}
			}
			led.ApplyEvent(ev)
		})
	})
	ch.OnClose(func() {
		logger.Warn("executor connection lost; execution history retained")
	})
	ch.OnStateChange(func(s channel.State) {
		if s == channel.StateDown {
			logger.Error("executor permanently unreachable; manual restart required")
		}
	})

	// Execution metrics track ledger transitions.
	lastStatus := make(map[string]domain.ExecutionStatus)
	led.Subscribe(func(rec domain.ExecutionRecord) {
		_ = loop.Do(func() {
			prev := lastStatus[rec.NodeID]
			if rec.Status != prev {
				switch rec.Status {
				case domain.StatusCompleted:
					execMetrics.Completed.Inc()
				case domain.StatusErrored:
					execMetrics.Errored.Inc()
				}
			}
			lastStatus[rec.NodeID] = rec.Status
			running := 0
			for _, r := range led.Records() {
				if r.Status == domain.StatusRunning {
					running++
				}
			}
			execMetrics.Running.Set(float64(running))
		})
	})

	orchestrator := flow.New(reg, led, ch, flow.WithLogger(logger))
	flows := serializedFlows{loop: loop, orch: orchestrator}

	go func() {
		if err := ch.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("channel terminated", "err", err)
		}
	}()

	// Surface stuck-Running nodes; never auto-fail them.
	go func() {
		ticker := time.NewTicker(cfg.Staleness.Limit / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, rec := range led.Stale(cfg.Staleness.Limit) {
					logger.Warn("execution stale, no events received",
						"node", rec.NodeID,
						"since", rec.LastEventAt.Format(time.RFC3339))
				}
			}
		}
	}()

	handler := httpapi.NewHandler(gw, led, flows, func() httpapi.ChannelStatus { return ch.State() }, promReg, logger)
	srv := &http.Server{Addr: cfg.HTTP.Listen, Handler: handler}
	go func() {
		logger.Info("http listening", "addr", cfg.HTTP.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = ch.Close()
	if err := gw.Close(shutdownCtx); err != nil {
		logger.Error("final flush failed", "err", err)
	}
	return nil
}

// serializedFlows funnels HTTP-driven flow control through the dispatch
// loop so it cannot interleave with channel event handling.
type serializedFlows struct {
	loop *dispatch.Loop
	orch *flow.Orchestrator
}

func (f serializedFlows) Start(ws domain.WorkspaceKey, flowNodeID string) error {
	var err error
	if derr := f.loop.DoWait(func() { err = f.orch.Start(ws, flowNodeID) }); derr != nil {
		return derr
	}
	return err
}

func (f serializedFlows) Stop(ws domain.WorkspaceKey, flowNodeID string) error {
	var err error
	if derr := f.loop.DoWait(func() { err = f.orch.Stop(ws, flowNodeID) }); derr != nil {
		return derr
	}
	return err
}
