package core

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Call/internal/domain"
)

var (
	// ErrPermissionDenied means the OS refused capture access.
	ErrPermissionDenied = errors.New("media permission denied")
	// ErrDeviceUnavailable means no usable capture device was found.
	ErrDeviceUnavailable = errors.New("media device unavailable")
	// ErrNoVideoTrack is returned when toggling video on an audio-only handle.
	ErrNoVideoTrack = errors.New("handle has no video track")
)

// MediaSource opens local capture devices. Acquire may block on an OS
// permission prompt; the caller cancels by abandoning the context.
type MediaSource interface {
	Acquire(ctx context.Context, kind domain.CallKind) (MediaHandle, error)
}

// MediaHandle wraps the acquired capture tracks for one call.
// Owned by the media adapter; Release must be safe to call repeatedly.
type MediaHandle interface {
	Kind() domain.CallKind
	// Tracks returns the local tracks to attach to a peer connection.
	Tracks() []webrtc.TrackLocal
	SetAudioEnabled(bool)
	SetVideoEnabled(bool) error
	AudioEnabled() bool
	VideoEnabled() bool
	Release()
}
