package call

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

func (c *Controller) handleStart(e cmdStart) {
	s := c.sess
	if s.active() || s.setupInFlight {
		e.reply <- ErrCallActive
		return
	}
	if err := e.target.Validate(); err != nil {
		e.reply <- err
		return
	}
	if err := e.kind.Validate(); err != nil {
		e.reply <- err
		return
	}

	self := c.identity.Self()
	s.mode = e.target.Mode
	s.direction = domain.DirectionOutgoing
	s.kind = e.kind
	s.target = e.target
	s.status = domain.StatusCalling
	s.audioEnabled = true
	s.videoEnabled = e.kind == domain.KindVideo
	s.lastErr = nil
	s.roster.Init(e.target, self.ID)

	s.setupInFlight = true
	ctx, cancel := context.WithCancel(context.Background())
	s.setupCancel = cancel

	log.Info().Str("module", "call").
		Str("mode", string(s.mode)).Str("kind", string(s.kind)).
		Msg("starting call")

	go c.setupOutgoing(ctx, s.gen, e.target.Peer, e.kind, e.reply)
}

func (c *Controller) handleAccept(e cmdAccept) {
	s := c.sess
	switch {
	case s.status != domain.StatusRinging:
		e.reply <- ErrWrongStatus
		return
	case s.mode != domain.ModeDirect:
		e.reply <- ErrWrongMode
		return
	case s.setupInFlight:
		e.reply <- ErrSetupInFlight
		return
	}

	s.setupInFlight = true
	ctx, cancel := context.WithCancel(context.Background())
	s.setupCancel = cancel

	log.Info().Str("module", "call").Str("peer", string(s.target.Peer)).Msg("accepting call")

	go c.setupAccept(ctx, s.gen, s.target.Peer, s.kind, s.remoteOffer, e.reply)
}

func (c *Controller) handleJoin(e cmdJoin) {
	s := c.sess
	switch {
	case s.status != domain.StatusRinging:
		e.reply <- ErrWrongStatus
		return
	case s.mode != domain.ModeChannel:
		e.reply <- ErrWrongMode
		return
	case s.setupInFlight:
		e.reply <- ErrSetupInFlight
		return
	}

	s.setupInFlight = true
	ctx, cancel := context.WithCancel(context.Background())
	s.setupCancel = cancel

	log.Info().Str("module", "call").Str("channel", string(s.target.Channel)).Msg("joining channel call")

	go c.setupJoin(ctx, s.gen, s.kind, e.reply)
}

func (c *Controller) handleReject() error {
	s := c.sess
	if s.status != domain.StatusRinging && s.status != domain.StatusCalling {
		return ErrWrongStatus
	}
	var notice *core.Envelope
	if s.mode == domain.ModeDirect {
		// For channel calls declining is silent; the member simply
		// never joins and the call goes on without them.
		notice = &core.Envelope{Type: core.MsgCallRejected, PeerID: s.target.Peer}
	}
	log.Info().Str("module", "call").Str("status", string(s.status)).Msg("rejecting call")
	c.teardown(nil, notice)
	return nil
}

func (c *Controller) handleEnd() error {
	s := c.sess
	if !s.active() {
		// endCall on an idle session is a no-op, which makes double
		// hangups harmless.
		return nil
	}
	log.Info().Str("module", "call").Str("status", string(s.status)).Msg("ending call")
	c.teardown(nil, c.endNotice())
	return nil
}

func (c *Controller) handleToggleAudio() error {
	s := c.sess
	if !s.active() {
		return ErrNoCall
	}
	s.audioEnabled = !s.audioEnabled
	if s.media != nil {
		s.media.SetAudioEnabled(s.audioEnabled)
	}
	return nil
}

func (c *Controller) handleToggleVideo() error {
	s := c.sess
	if !s.active() {
		return ErrNoCall
	}
	if s.kind != domain.KindVideo {
		return core.ErrNoVideoTrack
	}
	s.videoEnabled = !s.videoEnabled
	if s.media != nil {
		if err := s.media.SetVideoEnabled(s.videoEnabled); err != nil {
			s.videoEnabled = !s.videoEnabled
			return err
		}
	}
	return nil
}

// endNotice builds the best-effort call-end message, or nil when the
// remote side never learned about this session.
func (c *Controller) endNotice() *core.Envelope {
	s := c.sess
	if !s.active() {
		return nil
	}
	if !s.sentAny && s.direction == domain.DirectionOutgoing {
		return nil
	}
	env := &core.Envelope{Type: core.MsgCallEnded}
	if s.mode == domain.ModeChannel {
		env.ChannelID = s.target.Channel
	} else {
		env.PeerID = s.target.Peer
	}
	return env
}

// teardown releases every call resource exactly once, optionally ships
// a final message, and resets the session to Idle.
func (c *Controller) teardown(reason error, notice *core.Envelope) {
	s := c.sess

	if s.setupCancel != nil {
		s.setupCancel()
		s.setupCancel = nil
	}
	s.setupInFlight = false
	c.stopRingTimer()
	for peer, t := range s.graceTimers {
		t.Stop()
		delete(s.graceTimers, peer)
	}

	if s.media != nil {
		s.media.Release()
		s.media = nil
	}
	if s.pendingLink != nil {
		s.pendingLink.Close()
		s.pendingLink = nil
	}
	for peer, link := range s.links {
		link.Close()
		delete(s.links, peer)
	}

	if notice != nil {
		if err := c.signal.Send(*notice); err != nil {
			log.Warn().Err(err).Str("module", "call").Msg("end notice not delivered")
		}
	}

	s.roster.Clear()
	s.status = domain.StatusEnded
	if reason != nil {
		s.lastErr = reason
	}
	c.publish()

	if reason != nil {
		log.Info().Err(reason).Str("module", "call").Msg("call ended")
	} else {
		log.Info().Str("module", "call").Msg("call ended")
	}

	// Ended is transient: cleanup is done, so the session resets at once.
	next := newSession(s.gen + 1)
	next.lastErr = s.lastErr
	c.sess = next
}

func (c *Controller) armRingTimer() {
	if c.opts.RingTimeout <= 0 {
		return
	}
	gen := c.sess.gen
	c.sess.ringTimer = time.AfterFunc(c.opts.RingTimeout, func() {
		c.post(evtRingTimeout{gen: gen})
	})
}

func (c *Controller) stopRingTimer() {
	if c.sess.ringTimer != nil {
		c.sess.ringTimer.Stop()
		c.sess.ringTimer = nil
	}
}

func (c *Controller) handleRingTimeout(e evtRingTimeout) {
	s := c.sess
	if e.gen != s.gen {
		return
	}
	switch s.status {
	case domain.StatusCalling:
		c.teardown(ErrRingTimeout, c.endNotice())
	case domain.StatusRinging:
		var notice *core.Envelope
		if s.mode == domain.ModeDirect {
			notice = &core.Envelope{Type: core.MsgCallRejected, PeerID: s.target.Peer}
		}
		c.teardown(ErrRingTimeout, notice)
	}
}

func (c *Controller) handleGraceTimeout(e evtGraceTimeout) {
	s := c.sess
	if e.gen != s.gen {
		return
	}
	delete(s.graceTimers, e.peer)
	if s.linkStates[e.peer] == core.LinkStateDisconnected {
		c.teardown(ErrDisconnected, c.endNotice())
	}
}

func (c *Controller) handleLinkState(e evtLinkState) {
	s := c.sess
	if e.gen != s.gen {
		return
	}
	s.linkStates[e.peer] = e.state
	log.Info().Str("module", "call").
		Str("peer", string(e.peer)).Str("state", e.state.String()).
		Msg("link state")

	switch e.state {
	case core.LinkStateFailed:
		c.teardown(ErrDisconnected, c.endNotice())
	case core.LinkStateDisconnected:
		if c.opts.DisconnectGrace > 0 {
			if t, ok := s.graceTimers[e.peer]; ok {
				t.Stop()
			}
			gen, peer := s.gen, e.peer
			s.graceTimers[e.peer] = time.AfterFunc(c.opts.DisconnectGrace, func() {
				c.post(evtGraceTimeout{gen: gen, peer: peer})
			})
		}
	case core.LinkStateConnected:
		if t, ok := s.graceTimers[e.peer]; ok {
			t.Stop()
			delete(s.graceTimers, e.peer)
		}
	}
}

func (c *Controller) handleLocalCandidate(e evtLocalCandidate) {
	s := c.sess
	if e.gen != s.gen || !s.active() {
		return
	}
	if e.peer == "" {
		// Channel call nobody has joined yet; flushed on first join.
		s.pendingLocalCand = append(s.pendingLocalCand, e.cand)
		return
	}
	c.sendCandidate(e.peer, e.cand)
}

func (c *Controller) sendCandidate(peer domain.UserID, cand webrtc.ICECandidateInit) {
	s := c.sess
	env := core.Envelope{
		Type:      core.MsgICECandidate,
		PeerID:    peer,
		Candidate: toWireCandidate(cand),
	}
	if s.mode == domain.ModeChannel {
		env.ChannelID = s.target.Channel
	}
	if err := c.signal.Send(env); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("peer", string(peer)).Msg("candidate not delivered")
	}
}
