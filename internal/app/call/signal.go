package call

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

// ErrPeerRejected is recorded as the end reason when the remote side
// declines a direct call.
var ErrPeerRejected = errors.New("peer rejected the call")

// handleSignal demultiplexes one inbound envelope. Every (status, tag)
// pair not handled below is deliberately a logged no-op: the state
// machine is total and an unexpected message never faults it.
func (c *Controller) handleSignal(env core.Envelope) {
	switch env.Type {
	case core.MsgCallStart:
		c.onCallStart(env)
	case core.MsgChannelCallStart:
		c.onChannelCallStart(env)
	case core.MsgCallAccepted:
		c.onCallAccepted(env)
	case core.MsgCallRejected:
		c.onCallRejected(env)
	case core.MsgCallEnded:
		c.onCallEnded(env)
	case core.MsgChannelCallJoin:
		c.onChannelCallJoin(env)
	case core.MsgOffer:
		c.onOffer(env)
	case core.MsgAnswer:
		c.onAnswer(env)
	case core.MsgICECandidate:
		c.onICECandidate(env)
	case core.MsgParticipantJoined:
		c.onParticipantJoined(env)
	case core.MsgParticipantLeft:
		c.onParticipantLeft(env)
	default:
		log.Warn().Str("module", "call").Str("type", string(env.Type)).Msg("unknown signal")
	}
}

func (c *Controller) onCallStart(env core.Envelope) {
	s := c.sess
	if s.active() || s.setupInFlight {
		log.Info().Str("module", "call").Str("caller", string(env.CallerID)).Msg("busy, ignoring call-start")
		return
	}
	if env.CallerID == "" || env.Kind.Validate() != nil {
		log.Warn().Str("module", "call").Msg("malformed call-start")
		return
	}

	s.mode = domain.ModeDirect
	s.direction = domain.DirectionIncoming
	s.kind = env.Kind
	s.target = domain.CallTarget{Mode: domain.ModeDirect, Peer: env.CallerID}
	s.remoteOffer = env.Offer
	s.status = domain.StatusRinging
	s.audioEnabled = true
	s.videoEnabled = env.Kind == domain.KindVideo
	s.lastErr = nil
	s.roster.Init(s.target, c.identity.Self().ID)
	c.armRingTimer()

	log.Info().Str("module", "call").
		Str("caller", string(env.CallerID)).Str("kind", string(env.Kind)).
		Msg("incoming call")
}

func (c *Controller) onChannelCallStart(env core.Envelope) {
	s := c.sess
	if s.active() || s.setupInFlight {
		log.Info().Str("module", "call").Str("channel", string(env.ChannelID)).Msg("busy, ignoring channel-call-start")
		return
	}
	if env.ChannelID == "" || env.CallerID == "" || env.Kind.Validate() != nil {
		log.Warn().Str("module", "call").Msg("malformed channel-call-start")
		return
	}

	self := c.identity.Self()
	s.mode = domain.ModeChannel
	s.direction = domain.DirectionIncoming
	s.kind = env.Kind
	s.target = domain.CallTarget{
		Mode:    domain.ModeChannel,
		Peer:    env.CallerID,
		Channel: env.ChannelID,
		Roster:  env.Roster,
	}
	s.remoteOffer = env.Offer
	s.status = domain.StatusRinging
	s.audioEnabled = true
	s.videoEnabled = env.Kind == domain.KindVideo
	s.lastErr = nil
	s.roster.Init(s.target, self.ID)
	s.roster.Add(domain.Participant{ID: env.CallerID, JoinedAt: time.Now()})
	c.armRingTimer()

	log.Info().Str("module", "call").
		Str("channel", string(env.ChannelID)).Str("caller", string(env.CallerID)).
		Msg("incoming channel call")
}

func (c *Controller) onCallAccepted(env core.Envelope) {
	s := c.sess
	if s.mode != domain.ModeDirect || s.status != domain.StatusCalling {
		return
	}
	c.stopRingTimer()
	s.status = domain.StatusOngoing
	log.Info().Str("module", "call").Str("peer", string(env.PeerID)).Msg("call accepted by peer")
}

func (c *Controller) onCallRejected(env core.Envelope) {
	s := c.sess
	if !s.active() {
		return
	}
	// Remote already knows; no notice goes back. A rejection of our
	// outgoing call is worth surfacing; a withdrawn invite while we are
	// still ringing just clears the session.
	if s.direction == domain.DirectionOutgoing && s.status == domain.StatusCalling {
		c.teardown(ErrPeerRejected, nil)
		return
	}
	c.teardown(nil, nil)
}

func (c *Controller) onCallEnded(env core.Envelope) {
	s := c.sess
	if !s.active() {
		return
	}
	c.teardown(nil, nil)
}

func (c *Controller) onChannelCallJoin(env core.Envelope) {
	s := c.sess
	if s.mode != domain.ModeChannel {
		return
	}
	uid := env.UserID
	if uid == "" || uid == c.identity.Self().ID {
		return
	}

	switch s.status {
	case domain.StatusCalling:
		// First joiner: the call is on, and the link prepared at start
		// is bound to them.
		c.stopRingTimer()
		s.status = domain.StatusOngoing
		s.roster.Add(domain.Participant{ID: uid, JoinedAt: time.Now()})
		if s.pendingLink != nil {
			link := s.pendingLink
			s.pendingLink = nil
			c.bindLink(uid, link)
			env := core.Envelope{
				Type:      core.MsgOffer,
				PeerID:    uid,
				ChannelID: s.target.Channel,
				SDP:       s.pendingOfferSDP,
			}
			if err := c.signal.Send(env); err != nil {
				log.Warn().Err(err).Str("module", "call").Msg("offer not delivered")
			}
			for _, cand := range s.pendingLocalCand {
				c.sendCandidate(uid, cand)
			}
			s.pendingLocalCand = nil
		}
		log.Info().Str("module", "call").Str("user", string(uid)).Msg("first participant joined")

	case domain.StatusOngoing:
		c.meshOffer(uid)
	}
}

func (c *Controller) onParticipantJoined(env core.Envelope) {
	s := c.sess
	if s.mode != domain.ModeChannel || s.status != domain.StatusOngoing {
		return
	}
	uid := env.UserID
	if uid == "" || uid == c.identity.Self().ID {
		return
	}
	c.meshOffer(uid)
}

// meshOffer adds a joiner to the roster and, if no negotiation toward
// them exists yet, starts a fresh link + offer. Members already in the
// call offer; the joiner answers.
func (c *Controller) meshOffer(uid domain.UserID) {
	s := c.sess
	s.roster.Add(domain.Participant{ID: uid, JoinedAt: time.Now()})
	if _, ok := s.links[uid]; ok {
		return
	}
	if s.pendingPeers[uid] {
		return
	}
	if s.media == nil {
		return
	}
	s.pendingPeers[uid] = true
	go c.offerPeer(s.gen, uid, s.media)
	log.Info().Str("module", "call").Str("user", string(uid)).Msg("participant joined, offering")
}

func (c *Controller) onParticipantLeft(env core.Envelope) {
	s := c.sess
	if s.mode != domain.ModeChannel || s.status != domain.StatusOngoing {
		return
	}
	uid := env.UserID
	if uid == "" {
		return
	}
	s.roster.Remove(uid)
	if link, ok := s.links[uid]; ok {
		link.Close()
		delete(s.links, uid)
	}
	delete(s.linkStates, uid)
	delete(s.earlyCandidates, uid)
	delete(s.pendingPeers, uid)
	delete(s.pendingAnswers, uid)
	if t, ok := s.graceTimers[uid]; ok {
		t.Stop()
		delete(s.graceTimers, uid)
	}
	log.Info().Str("module", "call").Str("user", string(uid)).Msg("participant left")
}

func (c *Controller) onOffer(env core.Envelope) {
	s := c.sess
	if s.status != domain.StatusOngoing {
		return
	}
	peer := env.PeerID
	if peer == "" && s.mode == domain.ModeDirect {
		peer = s.target.Peer
	}
	if peer == "" || env.SDP == "" {
		log.Warn().Str("module", "call").Msg("malformed offer")
		return
	}
	if s.media == nil || s.pendingPeers[peer] {
		return
	}
	if s.mode == domain.ModeChannel {
		s.roster.Add(domain.Participant{ID: peer, JoinedAt: time.Now()})
	}
	s.pendingPeers[peer] = true
	go c.answerPeer(s.gen, peer, s.links[peer], s.media, env.SDP)
}

func (c *Controller) onAnswer(env core.Envelope) {
	s := c.sess
	if !s.active() {
		return
	}
	peer := env.PeerID
	if peer == "" && s.mode == domain.ModeDirect {
		peer = s.target.Peer
	}
	if s.pendingPeers[peer] {
		// A negotiation step toward this peer is still in flight; the
		// answer is kept and applied once that step lands.
		s.pendingAnswers[peer] = env.SDP
		return
	}
	link, ok := s.links[peer]
	if !ok {
		log.Warn().Str("module", "call").Str("peer", string(peer)).Msg("answer for unknown link")
		return
	}
	s.pendingPeers[peer] = true
	go c.applyAnswer(s.gen, peer, link, env.SDP)
}

func (c *Controller) onICECandidate(env core.Envelope) {
	s := c.sess
	if !s.active() {
		return
	}
	peer := env.PeerID
	if peer == "" && s.mode == domain.ModeDirect {
		peer = s.target.Peer
	}
	cand, ok := fromWireCandidate(env.Candidate)
	if !ok {
		log.Warn().Str("module", "call").Msg("malformed ice-candidate")
		return
	}
	link, bound := s.links[peer]
	if !bound || s.pendingPeers[peer] {
		// No usable link yet; kept in arrival order for later.
		s.earlyCandidates[peer] = append(s.earlyCandidates[peer], cand)
		return
	}
	if err := link.AddRemoteCandidate(cand); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("peer", string(peer)).Msg("candidate rejected")
	}
}
