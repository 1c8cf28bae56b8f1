// Package rtc implements peer negotiation on top of pion/webrtc.
package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
)

// Engine creates peer links sharing one ICE configuration, fixed at
// construction time.
type Engine struct {
	cfg webrtc.Configuration
}

func NewEngine(servers []webrtc.ICEServer) *Engine {
	if len(servers) == 0 {
		servers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	return &Engine{cfg: webrtc.Configuration{ICEServers: servers}}
}

// NewLink builds a fresh peer connection with the handle's local tracks
// already attached.
func (e *Engine) NewLink(media core.MediaHandle) (core.PeerLink, error) {
	pc, err := webrtc.NewPeerConnection(e.cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	if media != nil {
		for _, track := range media.Tracks() {
			if _, err := pc.AddTrack(track); err != nil {
				_ = pc.Close()
				return nil, fmt.Errorf("add local track: %w", err)
			}
		}
	}

	l := newLink(pc)

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		l.emitCandidate(cand.ToJSON())
	})

	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", st.String()).Msg("peer state")
		if ls, ok := mapState(st); ok {
			l.emitState(ls)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track received")
		l.emitTrack(track)
	})

	return l, nil
}

func mapState(st webrtc.PeerConnectionState) (core.LinkState, bool) {
	switch st {
	case webrtc.PeerConnectionStateNew:
		return core.LinkStateNew, true
	case webrtc.PeerConnectionStateConnecting:
		return core.LinkStateConnecting, true
	case webrtc.PeerConnectionStateConnected:
		return core.LinkStateConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return core.LinkStateDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return core.LinkStateFailed, true
	}
	// Closed follows our own Close call; nobody needs to hear about it.
	return 0, false
}
