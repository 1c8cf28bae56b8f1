package media

import (
	"context"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

type gateState int32

const (
	gateOpen gateState = iota
	gateMuted
)

// rtpWriter is what a pump feeds; *webrtc.TrackLocalStaticRTP satisfies it.
type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
}

// rtpReader matches mediadevices.RTPReadCloser.
type rtpReader interface {
	Read() (pkts []*rtp.Packet, release func(), err error)
	Close() error
}

// pump moves RTP from a capture track into a local track. Muting closes
// the gate and drops packets without touching the device, so toggles
// are instant and never re-prompt for permission.
type pump struct {
	reader rtpReader
	state  atomic.Int32
}

func newPump(reader rtpReader) *pump {
	return &pump{reader: reader}
}

func (p *pump) enabled() bool {
	return gateState(p.state.Load()) == gateOpen
}

func (p *pump) setEnabled(on bool) {
	if on {
		p.state.Store(int32(gateOpen))
	} else {
		p.state.Store(int32(gateMuted))
	}
}

func (p *pump) loop(ctx context.Context, out rtpWriter, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("pump ctx done")
			return
		default:
		}
		pkts, release, err := p.reader.Read()
		if err != nil {
			logger.Error().Err(err).Msg("pump read error, stopping")
			return
		}
		if p.enabled() {
			for _, pkt := range pkts {
				if err := out.WriteRTP(pkt); err != nil {
					logger.Error().Err(err).Msg("pump write error, stopping")
					release()
					return
				}
			}
		}
		release()
	}
}
