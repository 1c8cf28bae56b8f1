package rtc

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
)

// Link wraps one *webrtc.PeerConnection. Remote candidates arriving
// before the remote description are queued and flushed in arrival order
// the moment the description lands.
type Link struct {
	pc *webrtc.PeerConnection

	mu        sync.Mutex
	remoteSet bool
	closed    bool
	queued    []webrtc.ICECandidateInit

	// local candidates gathered before the consumer registered its
	// callback; replayed on registration so none are lost.
	earlyLocal []webrtc.ICECandidateInit

	onICE   func(webrtc.ICECandidateInit)
	onState func(core.LinkState)
	onTrack func(*webrtc.TrackRemote)
}

func newLink(pc *webrtc.PeerConnection) *Link {
	return &Link{pc: pc}
}

func (l *Link) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	// Trickle ICE: candidates follow as separate messages, no need to
	// wait for gathering.
	return offer, nil
}

func (l *Link) CreateAnswer(remoteOffer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := l.ApplyRemoteDescription(remoteOffer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return answer, nil
}

func (l *Link) ApplyRemoteDescription(desc webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	l.remoteSet = true
	for _, cand := range l.queued {
		if err := l.pc.AddICECandidate(cand); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("queued candidate rejected")
		}
	}
	l.queued = nil
	return nil
}

func (l *Link) AddRemoteCandidate(cand webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	if !l.remoteSet {
		l.queued = append(l.queued, cand)
		return nil
	}
	if err := l.pc.AddICECandidate(cand); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (l *Link) PendingCandidates() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queued)
}

func (l *Link) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	l.mu.Lock()
	l.onICE = fn
	early := l.earlyLocal
	l.earlyLocal = nil
	l.mu.Unlock()
	if fn == nil {
		return
	}
	for _, cand := range early {
		fn(cand)
	}
}

func (l *Link) OnStateChange(fn func(core.LinkState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onState = fn
}

func (l *Link) OnTrack(fn func(*webrtc.TrackRemote)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onTrack = fn
}

func (l *Link) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Msg("link closed")
	}
}

func (l *Link) emitCandidate(cand webrtc.ICECandidateInit) {
	l.mu.Lock()
	fn := l.onICE
	if fn == nil {
		l.earlyLocal = append(l.earlyLocal, cand)
	}
	l.mu.Unlock()
	if fn != nil {
		fn(cand)
	}
}

func (l *Link) emitState(st core.LinkState) {
	l.mu.Lock()
	fn := l.onState
	l.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (l *Link) emitTrack(track *webrtc.TrackRemote) {
	l.mu.Lock()
	fn := l.onTrack
	l.mu.Unlock()
	if fn != nil {
		fn(track)
	}
}
