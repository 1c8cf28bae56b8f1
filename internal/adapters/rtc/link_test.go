package rtc

import (
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Call/internal/core"
)

const hostCandidate = "candidate:1 1 UDP 2130706431 192.168.1.10 54321 typ host"

func newPair(t *testing.T) (core.PeerLink, core.PeerLink) {
	t.Helper()
	e := NewEngine(nil)
	a, err := e.NewLink(nil)
	if err != nil {
		t.Fatalf("NewLink a: %v", err)
	}
	b, err := e.NewLink(nil)
	if err != nil {
		t.Fatalf("NewLink b: %v", err)
	}
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestOfferAnswerRoundTrip(t *testing.T) {
	a, b := newPair(t)

	offer, err := a.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if offer.SDP == "" {
		t.Fatal("empty offer SDP")
	}

	answer, err := b.CreateAnswer(offer)
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if answer.Type != webrtc.SDPTypeAnswer {
		t.Errorf("answer type = %v", answer.Type)
	}

	if err := a.ApplyRemoteDescription(answer); err != nil {
		t.Fatalf("ApplyRemoteDescription: %v", err)
	}
}

func TestCandidateQueuedUntilRemoteDescription(t *testing.T) {
	a, b := newPair(t)

	if err := a.AddRemoteCandidate(webrtc.ICECandidateInit{Candidate: hostCandidate}); err != nil {
		t.Fatalf("AddRemoteCandidate: %v", err)
	}
	if got := a.PendingCandidates(); got != 1 {
		t.Fatalf("PendingCandidates = %d, want 1", got)
	}

	offer, err := a.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	answer, err := b.CreateAnswer(offer)
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if err := a.ApplyRemoteDescription(answer); err != nil {
		t.Fatalf("ApplyRemoteDescription: %v", err)
	}

	if got := a.PendingCandidates(); got != 0 {
		t.Errorf("PendingCandidates after flush = %d, want 0", got)
	}

	// Candidates now pass straight through.
	if err := a.AddRemoteCandidate(webrtc.ICECandidateInit{Candidate: hostCandidate}); err != nil {
		t.Errorf("direct AddRemoteCandidate: %v", err)
	}
	if got := a.PendingCandidates(); got != 0 {
		t.Errorf("PendingCandidates = %d, want 0", got)
	}
}

func TestEarlyLocalCandidatesReplayed(t *testing.T) {
	e := NewEngine(nil)
	pl, err := e.NewLink(nil)
	if err != nil {
		t.Fatalf("NewLink: %v", err)
	}
	defer pl.Close()
	l := pl.(*Link)

	// Candidates gathered before the consumer registered its callback.
	l.emitCandidate(webrtc.ICECandidateInit{Candidate: "early-1"})
	l.emitCandidate(webrtc.ICECandidateInit{Candidate: "early-2"})

	var got []string
	l.OnICECandidate(func(c webrtc.ICECandidateInit) {
		got = append(got, c.Candidate)
	})

	if len(got) != 2 || got[0] != "early-1" || got[1] != "early-2" {
		t.Errorf("replayed = %v, want [early-1 early-2]", got)
	}

	l.emitCandidate(webrtc.ICECandidateInit{Candidate: "live"})
	if len(got) != 3 || got[2] != "live" {
		t.Errorf("live delivery failed: %v", got)
	}
}

func TestCloseIdempotent(t *testing.T) {
	e := NewEngine(nil)
	l, err := e.NewLink(nil)
	if err != nil {
		t.Fatalf("NewLink: %v", err)
	}
	l.Close()
	l.Close()

	if err := l.AddRemoteCandidate(webrtc.ICECandidateInit{Candidate: hostCandidate}); err != nil {
		t.Errorf("AddRemoteCandidate after close: %v", err)
	}
}

func TestEngineDefaultsToPublicSTUN(t *testing.T) {
	e := NewEngine(nil)
	if len(e.cfg.ICEServers) != 1 {
		t.Fatalf("ICEServers = %d, want 1 fallback", len(e.cfg.ICEServers))
	}

	custom := NewEngine([]webrtc.ICEServer{{URLs: []string{"turn:turn.example.com"}}})
	if custom.cfg.ICEServers[0].URLs[0] != "turn:turn.example.com" {
		t.Error("custom ICE servers not kept")
	}
}
