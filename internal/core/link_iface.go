package core

import (
	"github.com/pion/webrtc/v4"
)

type LinkState int32

const (
	LinkStateNew LinkState = iota
	LinkStateConnecting
	LinkStateConnected
	LinkStateDisconnected
	LinkStateFailed
)

func (s LinkState) String() string {
	switch s {
	case LinkStateNew:
		return "new"
	case LinkStateConnecting:
		return "connecting"
	case LinkStateConnected:
		return "connected"
	case LinkStateDisconnected:
		return "disconnected"
	case LinkStateFailed:
		return "failed"
	}
	return "unknown"
}

// PeerLink is one negotiation context toward one remote participant.
// Candidates arriving before the remote description are queued and
// flushed in arrival order once ApplyRemoteDescription succeeds.
type PeerLink interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer(remoteOffer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyRemoteDescription(webrtc.SessionDescription) error
	AddRemoteCandidate(webrtc.ICECandidateInit) error
	// PendingCandidates reports how many remote candidates are still queued.
	PendingCandidates() int

	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnStateChange sets a callback for connectivity transitions.
	OnStateChange(func(LinkState))
	// OnTrack sets a callback invoked when a remote track arrives.
	OnTrack(func(*webrtc.TrackRemote))

	// Close releases the underlying connection. Safe to call repeatedly.
	Close()
}

// LinkFactory creates peer links with the engine-wide ICE configuration.
type LinkFactory interface {
	NewLink(media MediaHandle) (PeerLink, error)
}
