package call

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

type fakeIdentity struct{ user domain.User }

func (f fakeIdentity) Self() domain.User { return f.user }

type fakeHandle struct {
	mu       sync.Mutex
	kind     domain.CallKind
	audio    bool
	video    bool
	released bool
}

func (f *fakeHandle) Kind() domain.CallKind       { return f.kind }
func (f *fakeHandle) Tracks() []webrtc.TrackLocal { return nil }

func (f *fakeHandle) SetAudioEnabled(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = on
}

func (f *fakeHandle) SetVideoEnabled(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kind != domain.KindVideo {
		return core.ErrNoVideoTrack
	}
	f.video = on
	return nil
}

func (f *fakeHandle) AudioEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audio
}

func (f *fakeHandle) VideoEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.video
}

func (f *fakeHandle) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
}

func (f *fakeHandle) isReleased() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

type fakeMedia struct {
	mu      sync.Mutex
	err     error
	gate    chan struct{}
	handles []*fakeHandle
}

// Acquire blocks on the gate when one is set, standing in for an OS
// permission prompt that resolves regardless of who is still waiting.
func (f *fakeMedia) Acquire(_ context.Context, kind domain.CallKind) (core.MediaHandle, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	h := &fakeHandle{kind: kind, audio: true, video: kind == domain.KindVideo}
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *fakeMedia) setGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
}

func (f *fakeMedia) handle(i int) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.handles) {
		return nil
	}
	return f.handles[i]
}

type fakeLink struct {
	mu         sync.Mutex
	remoteDesc []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	closed     bool

	onCand  func(webrtc.ICECandidateInit)
	onState func(core.LinkState)
	onTrack func(*webrtc.TrackRemote)

	answerErr error
	applyErr  error
}

func (f *fakeLink) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (f *fakeLink) CreateAnswer(remote webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answerErr != nil {
		return webrtc.SessionDescription{}, f.answerErr
	}
	f.remoteDesc = append(f.remoteDesc, remote)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (f *fakeLink) ApplyRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.remoteDesc = append(f.remoteDesc, desc)
	return nil
}

func (f *fakeLink) AddRemoteCandidate(cand webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, cand)
	return nil
}

func (f *fakeLink) PendingCandidates() int { return 0 }

func (f *fakeLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCand = fn
}

func (f *fakeLink) OnStateChange(fn func(core.LinkState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = fn
}

func (f *fakeLink) OnTrack(fn func(*webrtc.TrackRemote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTrack = fn
}

func (f *fakeLink) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeLink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeLink) gotCandidates() []webrtc.ICECandidateInit {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(f.candidates))
	copy(out, f.candidates)
	return out
}

func (f *fakeLink) gotRemoteDescs() []webrtc.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]webrtc.SessionDescription, len(f.remoteDesc))
	copy(out, f.remoteDesc)
	return out
}

// fireCandidate and fireState stand in for pion callbacks.
func (f *fakeLink) fireCandidate(cand webrtc.ICECandidateInit) {
	f.mu.Lock()
	fn := f.onCand
	f.mu.Unlock()
	if fn != nil {
		fn(cand)
	}
}

func (f *fakeLink) fireState(st core.LinkState) {
	f.mu.Lock()
	fn := f.onState
	f.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

type fakeFactory struct {
	mu    sync.Mutex
	err   error
	gate  chan struct{}
	links []*fakeLink
}

func (f *fakeFactory) NewLink(core.MediaHandle) (core.PeerLink, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	l := &fakeLink{}
	f.links = append(f.links, l)
	return l, nil
}

func (f *fakeFactory) setGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
}

func (f *fakeFactory) link(i int) *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.links) {
		return nil
	}
	return f.links[i]
}

type fakeSignal struct {
	mu   sync.Mutex
	err  error
	envs []core.Envelope
}

func (f *fakeSignal) Send(env core.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.envs = append(f.envs, env)
	return nil
}

func (f *fakeSignal) sent() []core.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Envelope, len(f.envs))
	copy(out, f.envs)
	return out
}

func (f *fakeSignal) sentTypes() []core.MessageType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.MessageType, 0, len(f.envs))
	for _, env := range f.envs {
		out = append(out, env.Type)
	}
	return out
}

func (f *fakeSignal) lastOf(mt core.MessageType) (core.Envelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.envs) - 1; i >= 0; i-- {
		if f.envs[i].Type == mt {
			return f.envs[i], true
		}
	}
	return core.Envelope{}, false
}
