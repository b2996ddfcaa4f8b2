package server

import (
	"fmt"
	"time"

	"cghttpd/config"
)

// EventKind tells what an Event reports.
type EventKind int

const (
	// EventConnectionReceived is sent by the acceptor for every new socket.
	EventConnectionReceived EventKind = iota
	// EventConnectionPolicy carries the policy applied to the connection.
	EventConnectionPolicy
	// EventAction carries the action taken for a request.
	EventAction
)

// Event is a fire-and-forget notification for loggers and user interfaces.
type Event struct {
	Kind       EventKind
	Time       time.Time
	RemoteIP   string
	RemotePort int
	Policy     config.ConnectionPolicy // EventConnectionPolicy
	Action     config.Action           // EventAction
	Resource   string                  // EventAction: filesystem path of the resource
}

func (e Event) String() string {
	switch e.Kind {
	case EventConnectionReceived:
		return fmt.Sprintf("connection from %s:%d", e.RemoteIP, e.RemotePort)
	case EventConnectionPolicy:
		if e.Policy == config.PolicyReject {
			return fmt.Sprintf("connection from %s:%d rejected", e.RemoteIP, e.RemotePort)
		}
		return fmt.Sprintf("connection from %s:%d accepted (%s)", e.RemoteIP, e.RemotePort, e.Policy)
	case EventAction:
		return fmt.Sprintf("%s %s for %s:%d", e.Action, e.Resource, e.RemoteIP, e.RemotePort)
	}
	return fmt.Sprintf("event(%d)", int(e.Kind))
}
