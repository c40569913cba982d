// Package metrics registers the coordinator's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Channel groups the transport-side collectors.
type Channel struct {
	Reconnects    prometheus.Counter
	MessagesIn    prometheus.Counter
	ParseFailures prometheus.Counter
	CommandsSent  *prometheus.CounterVec
	SendFailures  prometheus.Counter
	Connected     prometheus.Gauge
}

// NewChannel creates and registers the channel collectors.
func NewChannel(reg prometheus.Registerer) *Channel {
	factory := promauto.With(reg)
	return &Channel{
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "atelier_channel_reconnects_total",
			Help: "Reconnection attempts against the executor.",
		}),
		MessagesIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "atelier_channel_messages_in_total",
			Help: "Executor messages received.",
		}),
		ParseFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "atelier_channel_parse_failures_total",
			Help: "Inbound messages dropped because they failed to parse.",
		}),
		CommandsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "atelier_channel_commands_sent_total",
			Help: "Commands delivered to the executor, by action.",
		}, []string{"action"}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "atelier_channel_send_failures_total",
			Help: "Commands dropped while the channel was unavailable.",
		}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "atelier_channel_connected",
			Help: "1 while the executor connection is established.",
		}),
	}
}

// Execution groups the ledger-side collectors.
type Execution struct {
	Completed prometheus.Counter
	Errored   prometheus.Counter
	Running   prometheus.Gauge
}

// NewExecution creates and registers the execution collectors.
func NewExecution(reg prometheus.Registerer) *Execution {
	factory := promauto.With(reg)
	return &Execution{
		Completed: factory.NewCounter(prometheus.CounterOpts{
			Name: "atelier_executions_completed_total",
			Help: "Node executions that finished successfully.",
		}),
		Errored: factory.NewCounter(prometheus.CounterOpts{
			Name: "atelier_executions_errored_total",
			Help: "Node executions that finished with an error.",
		}),
		Running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "atelier_executions_running",
			Help: "Node executions currently marked Running.",
		}),
	}
}
