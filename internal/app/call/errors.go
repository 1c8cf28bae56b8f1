package call

import "errors"

// Invariant violations are rejected synchronously and leave the session
// untouched.
var (
	ErrCallActive    = errors.New("another call is already active")
	ErrNoCall        = errors.New("no call in progress")
	ErrWrongStatus   = errors.New("operation not valid in current call status")
	ErrWrongMode     = errors.New("operation not valid for this call mode")
	ErrSetupInFlight = errors.New("call setup already in flight")
	ErrSessionEnded  = errors.New("call ended before setup completed")
	ErrRingTimeout   = errors.New("call timed out waiting for an answer")
	ErrDisconnected  = errors.New("peer connection lost")
)
