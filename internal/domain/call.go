package domain

import (
	"errors"
	"time"
)

// Values are stable because they travel over the wire and the control API.
type (
	CallMode      string
	CallDirection string
	CallKind      string
	CallStatus    string
)

const (
	ModeDirect  CallMode = "direct"
	ModeChannel CallMode = "channel"
)

const (
	DirectionOutgoing CallDirection = "outgoing"
	DirectionIncoming CallDirection = "incoming"
)

const (
	KindAudio CallKind = "audio"
	KindVideo CallKind = "video"
)

const (
	StatusIdle    CallStatus = "idle"
	StatusCalling CallStatus = "calling"
	StatusRinging CallStatus = "ringing"
	StatusOngoing CallStatus = "ongoing"
	StatusEnded   CallStatus = "ended"
)

var (
	ErrBadCallMode = errors.New("unknown call mode")
	ErrBadCallKind = errors.New("unknown call kind")
	ErrNoTarget    = errors.New("call target empty")
)

// CallTarget names who is being called: a single peer for direct calls,
// a channel plus the roster known at call start for channel calls.
type CallTarget struct {
	Mode    CallMode  `json:"mode"`
	Peer    UserID    `json:"peer,omitempty"`
	Channel ChannelID `json:"channel,omitempty"`
	Roster  []UserID  `json:"roster,omitempty"`
}

func (t CallTarget) Validate() error {
	switch t.Mode {
	case ModeDirect:
		if t.Peer == "" {
			return ErrNoTarget
		}
	case ModeChannel:
		if t.Channel == "" {
			return ErrNoTarget
		}
	default:
		return ErrBadCallMode
	}
	return nil
}

func (k CallKind) Validate() error {
	if k != KindAudio && k != KindVideo {
		return ErrBadCallKind
	}
	return nil
}

// Participant is one remote human in the call. The local user is never
// part of the roster.
type Participant struct {
	ID       UserID    `json:"id"`
	Username string    `json:"username,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}
