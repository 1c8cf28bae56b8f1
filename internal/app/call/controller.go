package call

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

const eventBuffer = 256

// Options tune the behavior the protocol leaves open.
type Options struct {
	// DisconnectGrace is how long a Disconnected link may try to recover
	// before the call is ended.
	DisconnectGrace time.Duration
	// RingTimeout ends a call stuck in Calling/Ringing. Zero disables it
	// and the call waits until the local user cancels.
	RingTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{DisconnectGrace: 10 * time.Second}
}

// Controller owns the call session and drives every state transition.
// All collaborators come in through the constructor; the controller is
// the only writer of session state.
type Controller struct {
	identity core.Identity
	media    core.MediaSource
	factory  core.LinkFactory
	signal   core.SignalSender
	opts     Options

	events chan any

	sess *session

	// snap is the last published read-only view, safe for any goroutine.
	snap atomic.Pointer[Snapshot]
}

func NewController(
	identity core.Identity,
	media core.MediaSource,
	factory core.LinkFactory,
	signal core.SignalSender,
	opts Options,
) *Controller {
	c := &Controller{
		identity: identity,
		media:    media,
		factory:  factory,
		signal:   signal,
		opts:     opts,
		events:   make(chan any, eventBuffer),
		sess:     newSession(0),
	}
	c.publish()
	return c
}

// Run processes events until ctx is canceled. It must be running before
// any command is issued.
func (c *Controller) Run(ctx context.Context) {
	log.Info().Str("module", "call").Msg("controller loop started")
	for {
		select {
		case <-ctx.Done():
			if c.sess.active() {
				c.teardown(ctx.Err(), c.endNotice())
			}
			log.Info().Str("module", "call").Msg("controller loop stopped")
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Controller) handle(ev any) {
	switch e := ev.(type) {
	case cmdStart:
		// replies after the async setup step completes
		c.handleStart(e)
	case cmdAccept:
		c.handleAccept(e)
	case cmdJoin:
		c.handleJoin(e)
	case cmdReject:
		e.reply <- c.handleReject()
	case cmdEnd:
		e.reply <- c.handleEnd()
	case cmdToggleAudio:
		e.reply <- c.handleToggleAudio()
	case cmdToggleVideo:
		e.reply <- c.handleToggleVideo()
	case evtSignal:
		c.handleSignal(e.env)
	case evtSetup:
		c.handleSetup(e)
	case evtLinkState:
		c.handleLinkState(e)
	case evtLocalCandidate:
		c.handleLocalCandidate(e)
	case evtRingTimeout:
		c.handleRingTimeout(e)
	case evtGraceTimeout:
		c.handleGraceTimeout(e)
	default:
		log.Warn().Str("module", "call").Msgf("unknown event %T", ev)
	}
	c.publish()
}

// command sends a command into the loop and waits for its reply. The
// reply for start/accept/join arrives only after the async setup step
// finishes, so media errors surface to the caller.
func (c *Controller) command(ctx context.Context, post func(reply chan error) any) error {
	reply := make(chan error, 1)
	select {
	case c.events <- post(reply):
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) StartCall(ctx context.Context, target domain.CallTarget, kind domain.CallKind) error {
	return c.command(ctx, func(reply chan error) any {
		return cmdStart{target: target, kind: kind, reply: reply}
	})
}

func (c *Controller) AcceptCall(ctx context.Context) error {
	return c.command(ctx, func(reply chan error) any { return cmdAccept{reply: reply} })
}

func (c *Controller) JoinCall(ctx context.Context) error {
	return c.command(ctx, func(reply chan error) any { return cmdJoin{reply: reply} })
}

func (c *Controller) RejectCall(ctx context.Context) error {
	return c.command(ctx, func(reply chan error) any { return cmdReject{reply: reply} })
}

func (c *Controller) EndCall(ctx context.Context) error {
	return c.command(ctx, func(reply chan error) any { return cmdEnd{reply: reply} })
}

func (c *Controller) ToggleAudio(ctx context.Context) error {
	return c.command(ctx, func(reply chan error) any { return cmdToggleAudio{reply: reply} })
}

func (c *Controller) ToggleVideo(ctx context.Context) error {
	return c.command(ctx, func(reply chan error) any { return cmdToggleVideo{reply: reply} })
}

// HandleSignal feeds one inbound signaling message into the loop.
// The gateway calls this for every decoded envelope.
func (c *Controller) HandleSignal(env core.Envelope) {
	c.post(evtSignal{env: env})
}

// Snapshot returns the last published session view.
func (c *Controller) Snapshot() Snapshot {
	return *c.snap.Load()
}

// post delivers engine-internal events without ever blocking the loop.
// Dropping under a full buffer is preferable to a deadlock between the
// loop and a pion callback.
func (c *Controller) post(ev any) {
	select {
	case c.events <- ev:
	default:
		log.Warn().Str("module", "call").Msgf("event buffer full, dropping %T", ev)
	}
}

func (c *Controller) publish() {
	snap := c.sess.snapshot()
	c.snap.Store(&snap)
}
