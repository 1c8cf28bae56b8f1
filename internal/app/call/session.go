package call

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

// session is the loop-owned call state. It is rebuilt from scratch on
// every reset; nothing outside the controller goroutine touches it.
type session struct {
	// gen increments on every reset to Idle. Async completions and
	// timer fires carry the gen they were spawned under; stale ones
	// only get to release whatever resource they produced.
	gen uint64

	mode      domain.CallMode
	direction domain.CallDirection
	kind      domain.CallKind
	status    domain.CallStatus
	target    domain.CallTarget

	roster *Registry

	media core.MediaHandle
	// links holds one negotiation context per remote participant.
	links      map[domain.UserID]core.PeerLink
	linkStates map[domain.UserID]core.LinkState

	// remoteOffer is the SDP carried by an inbound call-start, kept
	// until the local user accepts or joins.
	remoteOffer string

	// pendingLink is the link created for an outgoing channel call
	// before anyone has joined; it is bound to the first joiner.
	pendingLink      core.PeerLink
	pendingOfferSDP  string
	pendingLocalCand []webrtc.ICECandidateInit

	// earlyCandidates queues remote ICE per peer while that peer has no
	// bound link yet (link creation or remote-description application
	// still in flight). The link keeps its own queue for candidates
	// that arrive after binding but before the remote description.
	earlyCandidates map[domain.UserID][]webrtc.ICECandidateInit
	// pendingPeers marks peers with an async negotiation step in flight.
	pendingPeers map[domain.UserID]bool
	// pendingAnswers holds an answer that arrived while a step toward
	// its peer was still pending, applied when that step lands.
	pendingAnswers map[domain.UserID]string

	audioEnabled bool
	videoEnabled bool

	// setupInFlight gates conflicting start/accept/join commands while
	// media acquisition or SDP generation is pending.
	setupInFlight bool
	setupCancel   context.CancelFunc

	// sentAny records whether any signaling left for this session; a
	// failure before the first message sends nothing on teardown.
	sentAny bool

	ringTimer   *time.Timer
	graceTimers map[domain.UserID]*time.Timer

	lastErr error
}

func newSession(gen uint64) *session {
	return &session{
		gen:             gen,
		status:          domain.StatusIdle,
		roster:          NewRegistry(),
		links:           make(map[domain.UserID]core.PeerLink),
		linkStates:      make(map[domain.UserID]core.LinkState),
		earlyCandidates: make(map[domain.UserID][]webrtc.ICECandidateInit),
		pendingPeers:    make(map[domain.UserID]bool),
		pendingAnswers:  make(map[domain.UserID]string),
		graceTimers:     make(map[domain.UserID]*time.Timer),
	}
}

func (s *session) active() bool {
	return s.status != domain.StatusIdle && s.status != domain.StatusEnded
}

// Snapshot is the read-only view of the session exposed to the UI layer.
type Snapshot struct {
	Status    domain.CallStatus    `json:"status"`
	Mode      domain.CallMode      `json:"mode,omitempty"`
	Direction domain.CallDirection `json:"direction,omitempty"`
	Kind      domain.CallKind      `json:"kind,omitempty"`
	Peer      domain.UserID        `json:"peer,omitempty"`
	Channel   domain.ChannelID     `json:"channel,omitempty"`
	Roster    []domain.Participant `json:"roster,omitempty"`

	AudioEnabled bool `json:"audio_enabled"`
	VideoEnabled bool `json:"video_enabled"`

	LastError string `json:"last_error,omitempty"`
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		Status:       s.status,
		AudioEnabled: s.audioEnabled,
		VideoEnabled: s.videoEnabled,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	if s.status == domain.StatusIdle {
		return snap
	}
	snap.Mode = s.mode
	snap.Direction = s.direction
	snap.Kind = s.kind
	snap.Peer = s.target.Peer
	snap.Channel = s.target.Channel
	snap.Roster = s.roster.Roster()
	return snap
}
