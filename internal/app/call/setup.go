package call

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

// The setup* functions run outside the loop goroutine. They only touch
// their own arguments and report back through one evtSetup; the loop
// decides what to do with the produced resources.

func (c *Controller) setupOutgoing(ctx context.Context, gen uint64, peer domain.UserID, kind domain.CallKind, reply chan error) {
	media, err := c.media.Acquire(ctx, kind)
	if err != nil {
		c.send(evtSetup{gen: gen, stage: stageOutgoing, peer: peer, err: fmt.Errorf("acquire media: %w", err), reply: reply})
		return
	}
	link, err := c.factory.NewLink(media)
	if err != nil {
		media.Release()
		c.send(evtSetup{gen: gen, stage: stageOutgoing, peer: peer, err: fmt.Errorf("create link: %w", err), reply: reply})
		return
	}
	offer, err := link.CreateOffer()
	if err != nil {
		link.Close()
		media.Release()
		c.send(evtSetup{gen: gen, stage: stageOutgoing, peer: peer, err: fmt.Errorf("create offer: %w", err), reply: reply})
		return
	}
	c.send(evtSetup{gen: gen, stage: stageOutgoing, peer: peer, media: media, link: link, desc: offer, reply: reply})
}

func (c *Controller) setupAccept(ctx context.Context, gen uint64, peer domain.UserID, kind domain.CallKind, remoteOffer string, reply chan error) {
	media, err := c.media.Acquire(ctx, kind)
	if err != nil {
		c.send(evtSetup{gen: gen, stage: stageAccept, peer: peer, err: fmt.Errorf("acquire media: %w", err), reply: reply})
		return
	}
	link, err := c.factory.NewLink(media)
	if err != nil {
		media.Release()
		c.send(evtSetup{gen: gen, stage: stageAccept, peer: peer, err: fmt.Errorf("create link: %w", err), reply: reply})
		return
	}
	answer, err := link.CreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: remoteOffer})
	if err != nil {
		link.Close()
		media.Release()
		c.send(evtSetup{gen: gen, stage: stageAccept, peer: peer, err: fmt.Errorf("create answer: %w", err), reply: reply})
		return
	}
	c.send(evtSetup{gen: gen, stage: stageAccept, peer: peer, media: media, link: link, desc: answer, reply: reply})
}

func (c *Controller) setupJoin(ctx context.Context, gen uint64, kind domain.CallKind, reply chan error) {
	media, err := c.media.Acquire(ctx, kind)
	if err != nil {
		c.send(evtSetup{gen: gen, stage: stageJoin, err: fmt.Errorf("acquire media: %w", err), reply: reply})
		return
	}
	c.send(evtSetup{gen: gen, stage: stageJoin, media: media, reply: reply})
}

// answerPeer handles an inbound offer: mesh join (fresh link) or
// renegotiation (existing link).
func (c *Controller) answerPeer(gen uint64, peer domain.UserID, existing core.PeerLink, media core.MediaHandle, offerSDP string) {
	link := existing
	if link == nil {
		var err error
		link, err = c.factory.NewLink(media)
		if err != nil {
			c.send(evtSetup{gen: gen, stage: stageAnswerPeer, peer: peer, err: fmt.Errorf("create link: %w", err)})
			return
		}
	}
	answer, err := link.CreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP})
	if err != nil {
		if existing == nil {
			link.Close()
		}
		c.send(evtSetup{gen: gen, stage: stageAnswerPeer, peer: peer, err: fmt.Errorf("create answer: %w", err)})
		return
	}
	c.send(evtSetup{gen: gen, stage: stageAnswerPeer, peer: peer, link: link, desc: answer})
}

// offerPeer builds a fresh link and offer toward a participant that
// just joined an ongoing channel call.
func (c *Controller) offerPeer(gen uint64, peer domain.UserID, media core.MediaHandle) {
	link, err := c.factory.NewLink(media)
	if err != nil {
		c.send(evtSetup{gen: gen, stage: stageOfferPeer, peer: peer, err: fmt.Errorf("create link: %w", err)})
		return
	}
	offer, err := link.CreateOffer()
	if err != nil {
		link.Close()
		c.send(evtSetup{gen: gen, stage: stageOfferPeer, peer: peer, err: fmt.Errorf("create offer: %w", err)})
		return
	}
	c.send(evtSetup{gen: gen, stage: stageOfferPeer, peer: peer, link: link, desc: offer})
}

func (c *Controller) applyAnswer(gen uint64, peer domain.UserID, link core.PeerLink, sdp string) {
	err := link.ApplyRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
	c.send(evtSetup{gen: gen, stage: stageApplyAnswer, peer: peer, link: link, err: err})
}

// send blocks until the loop takes the event. Setup completions carry
// resources that must not be dropped on the floor.
func (c *Controller) send(ev any) {
	c.events <- ev
}

func (c *Controller) handleSetup(e evtSetup) {
	s := c.sess

	if e.gen != s.gen {
		// The session this step belonged to is gone; its resources are
		// released instead of being attached to a dead call.
		c.discardSetup(e)
		if e.reply != nil {
			e.reply <- ErrSessionEnded
		}
		return
	}

	switch e.stage {
	case stageOutgoing:
		c.finishOutgoing(e)
	case stageAccept:
		c.finishAccept(e)
	case stageJoin:
		c.finishJoin(e)
	case stageAnswerPeer:
		c.finishAnswerPeer(e)
	case stageOfferPeer:
		c.finishOfferPeer(e)
	case stageApplyAnswer:
		c.finishApplyAnswer(e)
	}
}

func (c *Controller) discardSetup(e evtSetup) {
	if e.link != nil {
		e.link.Close()
	}
	if e.media != nil {
		e.media.Release()
	}
}

func (c *Controller) finishOutgoing(e evtSetup) {
	s := c.sess
	if s.status != domain.StatusCalling {
		c.discardSetup(e)
		if e.reply != nil {
			e.reply <- ErrSessionEnded
		}
		return
	}
	s.setupInFlight = false
	s.setupCancel = nil

	if e.err != nil {
		// Nothing was sent yet, so the remote side hears nothing.
		c.teardown(e.err, nil)
		e.reply <- e.err
		return
	}

	s.media = e.media
	c.applyMediaFlags()

	self := c.identity.Self()
	var env core.Envelope
	if s.mode == domain.ModeDirect {
		c.bindLink(e.peer, e.link)
		env = core.Envelope{
			Type:         core.MsgCallStart,
			TargetUserID: s.target.Peer,
			CallerID:     self.ID,
			Kind:         s.kind,
			Offer:        e.desc.SDP,
		}
	} else {
		c.bindLink("", e.link)
		s.pendingOfferSDP = e.desc.SDP
		env = core.Envelope{
			Type:      core.MsgChannelCallStart,
			ChannelID: s.target.Channel,
			CallerID:  self.ID,
			Kind:      s.kind,
			Offer:     e.desc.SDP,
		}
	}

	if err := c.signal.Send(env); err != nil {
		c.teardown(fmt.Errorf("send call-start: %w", err), nil)
		e.reply <- err
		return
	}
	s.sentAny = true
	c.armRingTimer()
	e.reply <- nil
}

func (c *Controller) finishAccept(e evtSetup) {
	s := c.sess
	if s.status != domain.StatusRinging {
		c.discardSetup(e)
		if e.reply != nil {
			e.reply <- ErrSessionEnded
		}
		return
	}
	s.setupInFlight = false
	s.setupCancel = nil

	if e.err != nil {
		c.teardown(e.err, nil)
		e.reply <- e.err
		return
	}

	s.media = e.media
	c.applyMediaFlags()
	c.bindLink(e.peer, e.link)

	if err := c.signal.Send(core.Envelope{Type: core.MsgCallAccepted, PeerID: e.peer}); err != nil {
		c.teardown(fmt.Errorf("send call-accepted: %w", err), nil)
		e.reply <- err
		return
	}
	s.sentAny = true
	if err := c.signal.Send(core.Envelope{Type: core.MsgAnswer, PeerID: e.peer, SDP: e.desc.SDP}); err != nil {
		c.teardown(fmt.Errorf("send answer: %w", err), c.endNotice())
		e.reply <- err
		return
	}

	c.stopRingTimer()
	s.status = domain.StatusOngoing
	c.drainEarly(e.peer)
	log.Info().Str("module", "call").Str("peer", string(e.peer)).Msg("call accepted")
	e.reply <- nil
}

func (c *Controller) finishJoin(e evtSetup) {
	s := c.sess
	if s.status != domain.StatusRinging {
		c.discardSetup(e)
		if e.reply != nil {
			e.reply <- ErrSessionEnded
		}
		return
	}
	s.setupInFlight = false
	s.setupCancel = nil

	if e.err != nil {
		c.teardown(e.err, nil)
		e.reply <- e.err
		return
	}

	s.media = e.media
	c.applyMediaFlags()

	self := c.identity.Self()
	env := core.Envelope{Type: core.MsgChannelCallJoin, ChannelID: s.target.Channel, UserID: self.ID}
	if err := c.signal.Send(env); err != nil {
		c.teardown(fmt.Errorf("send channel-call-join: %w", err), nil)
		e.reply <- err
		return
	}
	s.sentAny = true
	c.stopRingTimer()
	s.status = domain.StatusOngoing
	log.Info().Str("module", "call").Str("channel", string(s.target.Channel)).Msg("joined channel call")
	// Links arrive through directed offers from the members already in.
	e.reply <- nil
}

func (c *Controller) finishAnswerPeer(e evtSetup) {
	s := c.sess
	delete(s.pendingPeers, e.peer)
	if !s.active() {
		c.discardSetup(e)
		return
	}
	if e.err != nil {
		c.teardown(e.err, c.endNotice())
		return
	}
	if _, ok := s.links[e.peer]; !ok {
		c.bindLink(e.peer, e.link)
	}
	env := core.Envelope{Type: core.MsgAnswer, PeerID: e.peer, SDP: e.desc.SDP}
	if s.mode == domain.ModeChannel {
		env.ChannelID = s.target.Channel
	}
	if err := c.signal.Send(env); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("peer", string(e.peer)).Msg("answer not delivered")
		return
	}
	s.sentAny = true
	c.drainEarly(e.peer)
	c.applyPendingAnswer(e.peer)
}

func (c *Controller) finishOfferPeer(e evtSetup) {
	s := c.sess
	delete(s.pendingPeers, e.peer)
	if s.status != domain.StatusOngoing {
		c.discardSetup(e)
		return
	}
	if e.err != nil {
		c.teardown(e.err, c.endNotice())
		return
	}
	c.bindLink(e.peer, e.link)
	env := core.Envelope{
		Type:      core.MsgOffer,
		PeerID:    e.peer,
		ChannelID: s.target.Channel,
		SDP:       e.desc.SDP,
	}
	if err := c.signal.Send(env); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("peer", string(e.peer)).Msg("offer not delivered")
	}
	c.applyPendingAnswer(e.peer)
}

func (c *Controller) finishApplyAnswer(e evtSetup) {
	s := c.sess
	delete(s.pendingPeers, e.peer)
	if !s.active() {
		return
	}
	if e.err != nil {
		c.teardown(fmt.Errorf("apply answer: %w", e.err), c.endNotice())
		return
	}
	c.drainEarly(e.peer)
	c.applyPendingAnswer(e.peer)
}

// applyPendingAnswer picks up an answer that arrived while another step
// toward the peer was still in flight.
func (c *Controller) applyPendingAnswer(peer domain.UserID) {
	s := c.sess
	sdp, ok := s.pendingAnswers[peer]
	if !ok {
		return
	}
	link, bound := s.links[peer]
	if !bound || s.pendingPeers[peer] {
		return
	}
	delete(s.pendingAnswers, peer)
	s.pendingPeers[peer] = true
	go c.applyAnswer(s.gen, peer, link, sdp)
}

// bindLink wires the link's callbacks into the event loop and stores it
// under its peer. An empty peer keeps the link pending (outgoing channel
// call before the first join).
func (c *Controller) bindLink(peer domain.UserID, link core.PeerLink) {
	s := c.sess
	gen := s.gen
	boundPeer := peer
	link.OnICECandidate(func(cand webrtc.ICECandidateInit) {
		c.post(evtLocalCandidate{gen: gen, peer: boundPeer, cand: cand})
	})
	link.OnStateChange(func(st core.LinkState) {
		c.post(evtLinkState{gen: gen, peer: boundPeer, state: st})
	})
	link.OnTrack(func(tr *webrtc.TrackRemote) {
		log.Info().Str("module", "call").
			Str("peer", string(boundPeer)).Str("kind", tr.Kind().String()).
			Msg("remote track")
	})
	if peer == "" {
		s.pendingLink = link
		return
	}
	s.links[peer] = link
	c.drainEarly(peer)
}

// drainEarly feeds candidates queued before the peer had a bound link.
// The link itself queues anything that still precedes the remote
// description, so arrival order survives both hops.
func (c *Controller) drainEarly(peer domain.UserID) {
	s := c.sess
	link, ok := s.links[peer]
	if !ok {
		return
	}
	queued := s.earlyCandidates[peer]
	delete(s.earlyCandidates, peer)
	for _, cand := range queued {
		if err := link.AddRemoteCandidate(cand); err != nil {
			log.Warn().Err(err).Str("module", "call").Str("peer", string(peer)).Msg("queued candidate rejected")
		}
	}
}

func (c *Controller) applyMediaFlags() {
	s := c.sess
	if s.media == nil {
		return
	}
	s.media.SetAudioEnabled(s.audioEnabled)
	if s.kind == domain.KindVideo {
		if err := s.media.SetVideoEnabled(s.videoEnabled); err != nil {
			log.Warn().Err(err).Str("module", "call").Msg("video flag not applied")
		}
	}
}

func toWireCandidate(ci webrtc.ICECandidateInit) *core.ICECandidate {
	out := &core.ICECandidate{Candidate: ci.Candidate}
	out.SDPMid = ci.SDPMid
	out.SDPMLineIndex = ci.SDPMLineIndex
	return out
}

func fromWireCandidate(wc *core.ICECandidate) (webrtc.ICECandidateInit, bool) {
	if wc == nil || wc.Candidate == "" {
		return webrtc.ICECandidateInit{}, false
	}
	return webrtc.ICECandidateInit{
		Candidate:     wc.Candidate,
		SDPMid:        wc.SDPMid,
		SDPMLineIndex: wc.SDPMLineIndex,
	}, true
}
