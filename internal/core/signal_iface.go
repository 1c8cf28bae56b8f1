package core

import "github.com/dkeye/Call/internal/domain"

// SignalSender ships a call-control message to the remote side.
// Fire and forget: delivery is the transport's problem, not ours.
type SignalSender interface {
	Send(Envelope) error
}

// Identity exposes the local user at call-start time.
type Identity interface {
	Self() domain.User
}
