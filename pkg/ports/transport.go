package ports

import "github.com/atelier-run/atelier/pkg/domain"

// Transport sends commands to the remote executor.
//
// Send is fire-and-forget: it never blocks on delivery and returns
// domain.ErrChannelUnavailable while disconnected. Delivery is attempted
// at most once; the transport never replays past commands after a
// reconnect.
type Transport interface {
	Send(cmd domain.Command) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(cmd domain.Command) error

func (f TransportFunc) Send(cmd domain.Command) error { return f(cmd) }
