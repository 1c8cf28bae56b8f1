// Package media acquires local camera/microphone capture and exposes it
// as pion local tracks with per-kind mute gates.
package media

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	// Register capture adapters.
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

const rtpMTU = 1200

// Capture implements core.MediaSource on top of pion/mediadevices.
type Capture struct {
	selector *mediadevices.CodecSelector
}

func NewCapture() (*Capture, error) {
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 500_000

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithAudioEncoders(&opusParams),
		mediadevices.WithVideoEncoders(&vpxParams),
	)
	return &Capture{selector: selector}, nil
}

// Acquire opens the microphone, plus the camera for video calls. The OS
// permission prompt can take arbitrarily long; canceling ctx abandons
// the attempt and releases whatever the prompt eventually produces.
func (c *Capture) Acquire(ctx context.Context, kind domain.CallKind) (core.MediaHandle, error) {
	type result struct {
		handle core.MediaHandle
		err    error
	}
	done := make(chan result, 1)

	go func() {
		constraints := mediadevices.MediaStreamConstraints{
			Audio: func(*mediadevices.MediaTrackConstraints) {},
			Codec: c.selector,
		}
		if kind == domain.KindVideo {
			constraints.Video = func(*mediadevices.MediaTrackConstraints) {}
		}
		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			done <- result{err: classify(err)}
			return
		}
		h, err := newHandle(kind, stream)
		done <- result{handle: h, err: err}
	}()

	select {
	case r := <-done:
		return r.handle, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.handle != nil {
				r.handle.Release()
			}
		}()
		return nil, ctx.Err()
	}
}

func classify(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "denied") {
		return fmt.Errorf("%w: %v", core.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", core.ErrDeviceUnavailable, err)
}

// Handle owns the capture tracks for one call and the pumps feeding
// them into local RTP tracks.
type Handle struct {
	kind     domain.CallKind
	streamID string

	audioSrc mediadevices.Track
	videoSrc mediadevices.Track

	audioPump *pump
	videoPump *pump

	tracks []webrtc.TrackLocal

	cancel   context.CancelFunc
	released atomic.Bool
}

func newHandle(kind domain.CallKind, stream mediadevices.MediaStream) (*Handle, error) {
	h := &Handle{kind: kind, streamID: uuid.NewString()}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	for _, track := range stream.GetTracks() {
		switch track.Kind() {
		case webrtc.RTPCodecTypeAudio:
			if err := h.addPump(ctx, track, webrtc.MimeTypeOpus, webrtc.RTPCodecCapability{
				MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2,
			}); err != nil {
				h.Release()
				return nil, err
			}
		case webrtc.RTPCodecTypeVideo:
			if err := h.addPump(ctx, track, webrtc.MimeTypeVP8, webrtc.RTPCodecCapability{
				MimeType: webrtc.MimeTypeVP8, ClockRate: 90000,
			}); err != nil {
				h.Release()
				return nil, err
			}
		}
	}

	if h.audioPump == nil {
		h.Release()
		return nil, fmt.Errorf("%w: no audio track in stream", core.ErrDeviceUnavailable)
	}
	if kind == domain.KindVideo && h.videoPump == nil {
		h.Release()
		return nil, fmt.Errorf("%w: no video track in stream", core.ErrDeviceUnavailable)
	}
	return h, nil
}

func (h *Handle) addPump(ctx context.Context, src mediadevices.Track, mime string, capability webrtc.RTPCodecCapability) error {
	out, err := webrtc.NewTrackLocalStaticRTP(capability, src.ID(), h.streamID)
	if err != nil {
		return fmt.Errorf("local track: %w", err)
	}
	reader, err := src.NewRTPReader(mime, rand.Uint32(), rtpMTU)
	if err != nil {
		return fmt.Errorf("rtp reader: %w", err)
	}

	p := newPump(reader)
	logger := log.With().
		Str("module", "media").
		Str("kind", src.Kind().String()).
		Str("track_id", src.ID()).
		Logger()
	go p.loop(ctx, out, &logger)

	h.tracks = append(h.tracks, out)
	if src.Kind() == webrtc.RTPCodecTypeAudio {
		h.audioSrc, h.audioPump = src, p
	} else {
		h.videoSrc, h.videoPump = src, p
	}
	return nil
}

func (h *Handle) Kind() domain.CallKind { return h.kind }

func (h *Handle) Tracks() []webrtc.TrackLocal { return h.tracks }

func (h *Handle) SetAudioEnabled(on bool) {
	if h.audioPump != nil {
		h.audioPump.setEnabled(on)
	}
}

func (h *Handle) SetVideoEnabled(on bool) error {
	if h.videoPump == nil {
		return core.ErrNoVideoTrack
	}
	h.videoPump.setEnabled(on)
	return nil
}

func (h *Handle) AudioEnabled() bool {
	return h.audioPump != nil && h.audioPump.enabled()
}

func (h *Handle) VideoEnabled() bool {
	return h.videoPump != nil && h.videoPump.enabled()
}

// Release stops the pumps and closes the devices. Calling it again is a
// no-op, which keeps every teardown path safe.
func (h *Handle) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	h.cancel()
	for _, p := range []*pump{h.audioPump, h.videoPump} {
		if p != nil {
			if err := p.reader.Close(); err != nil {
				log.Warn().Err(err).Str("module", "media").Msg("reader close")
			}
		}
	}
	for _, src := range []mediadevices.Track{h.audioSrc, h.videoSrc} {
		if src != nil {
			if err := src.Close(); err != nil {
				log.Warn().Err(err).Str("module", "media").Msg("track close")
			}
		}
	}
	log.Info().Str("module", "media").Str("stream_id", h.streamID).Msg("capture released")
}
