package core

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Call/internal/domain"
)

// MessageType tags a signaling envelope. Values are part of the wire
// protocol; do not rename.
type MessageType string

const (
	MsgCallStart         MessageType = "call-start"
	MsgChannelCallStart  MessageType = "channel-call-start"
	MsgCallAccepted      MessageType = "call-accepted"
	MsgCallRejected      MessageType = "call-rejected"
	MsgCallEnded         MessageType = "call-ended"
	MsgChannelCallJoin   MessageType = "channel-call-join"
	MsgOffer             MessageType = "offer"
	MsgAnswer            MessageType = "answer"
	MsgICECandidate      MessageType = "ice-candidate"
	MsgParticipantJoined MessageType = "participant-joined"
	MsgParticipantLeft   MessageType = "participant-left"
)

var ErrUnknownMessage = errors.New("unknown signaling message type")

// ICECandidate is the wire form of one discovered network path.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// Envelope is the flat tagged union of every call-control message.
// Which fields are meaningful depends on Type; unused fields stay empty.
//
//   - call-start:         TargetUserID, Kind, CallerID, Offer
//   - channel-call-start: ChannelID, Kind, CallerID, Offer, Roster
//   - call-accepted/-rejected/-ended: PeerID
//   - channel-call-join:  ChannelID, UserID
//   - offer/answer:       PeerID, ChannelID for channel calls, SDP
//   - ice-candidate:      PeerID, ChannelID for channel calls, Candidate
//   - participant-joined/-left: ChannelID, UserID
//
// PeerID always names the other party of the exchange: the destination
// on outbound messages, the originator on inbound ones (the signaling
// transport rewrites it in flight, the way it already does for chat).
type Envelope struct {
	Type MessageType `json:"type"`

	TargetUserID domain.UserID    `json:"targetUserId,omitempty"`
	ChannelID    domain.ChannelID `json:"channelId,omitempty"`
	CallerID     domain.UserID    `json:"callerId,omitempty"`
	PeerID       domain.UserID    `json:"peerId,omitempty"`
	UserID       domain.UserID    `json:"userId,omitempty"`
	Kind         domain.CallKind  `json:"kind,omitempty"`
	Offer        string           `json:"offer,omitempty"`
	SDP          string           `json:"sdp,omitempty"`
	Candidate    *ICECandidate    `json:"candidate,omitempty"`
	Roster       []domain.UserID  `json:"roster,omitempty"`
}

var knownTypes = map[MessageType]struct{}{
	MsgCallStart:         {},
	MsgChannelCallStart:  {},
	MsgCallAccepted:      {},
	MsgCallRejected:      {},
	MsgCallEnded:         {},
	MsgChannelCallJoin:   {},
	MsgOffer:             {},
	MsgAnswer:            {},
	MsgICECandidate:      {},
	MsgParticipantJoined: {},
	MsgParticipantLeft:   {},
}

// DecodeEnvelope parses one raw frame from the signaling transport.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if _, ok := knownTypes[env.Type]; !ok {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
	return env, nil
}

func (e Envelope) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}
