package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

// Everything the controller reacts to travels through one channel:
// local commands, inbound signaling, async completions and timer fires.
// The loop processes them one at a time, so no session state is shared.

type cmdStart struct {
	target domain.CallTarget
	kind   domain.CallKind
	reply  chan error
}

type cmdAccept struct{ reply chan error }
type cmdJoin struct{ reply chan error }
type cmdReject struct{ reply chan error }
type cmdEnd struct{ reply chan error }
type cmdToggleAudio struct{ reply chan error }
type cmdToggleVideo struct{ reply chan error }

type evtSignal struct{ env core.Envelope }

type setupStage int

const (
	stageOutgoing setupStage = iota // start: media + link + offer
	stageAccept                     // direct accept: media + link + answer
	stageJoin                       // channel join: media only
	stageAnswerPeer                 // inbound offer: link + answer toward one peer
	stageOfferPeer                  // channel joiner: fresh link + offer toward them
	stageApplyAnswer                // inbound answer applied to a link
)

// evtSetup is the completion of one async negotiation step.
type evtSetup struct {
	gen   uint64
	stage setupStage
	peer  domain.UserID

	media core.MediaHandle
	link  core.PeerLink
	desc  webrtc.SessionDescription
	err   error

	// reply answers the command that started the step, nil for steps
	// triggered by inbound signaling.
	reply chan error
}

type evtLinkState struct {
	gen   uint64
	peer  domain.UserID
	state core.LinkState
}

type evtLocalCandidate struct {
	gen  uint64
	peer domain.UserID
	cand webrtc.ICECandidateInit
}

type evtRingTimeout struct{ gen uint64 }

type evtGraceTimeout struct {
	gen  uint64
	peer domain.UserID
}
