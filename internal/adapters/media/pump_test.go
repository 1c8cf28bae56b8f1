package media

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

type scriptReader struct {
	mu       sync.Mutex
	batches  [][]*rtp.Packet
	reads    int
	releases int
	closed   bool
}

func (r *scriptReader) Read() ([]*rtp.Packet, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if len(r.batches) == 0 {
		return nil, nil, io.EOF
	}
	batch := r.batches[0]
	r.batches = r.batches[1:]
	return batch, func() {
		r.mu.Lock()
		r.releases++
		r.mu.Unlock()
	}, nil
}

func (r *scriptReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type recordWriter struct {
	mu   sync.Mutex
	pkts []*rtp.Packet
}

func (w *recordWriter) WriteRTP(p *rtp.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pkts = append(w.pkts, p)
	return nil
}

func pkt(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}}
}

func TestPumpForwardsWhenOpen(t *testing.T) {
	reader := &scriptReader{batches: [][]*rtp.Packet{
		{pkt(1), pkt(2)},
		{pkt(3)},
	}}
	writer := &recordWriter{}
	logger := zerolog.Nop()

	p := newPump(reader)
	p.loop(context.Background(), writer, &logger)

	if len(writer.pkts) != 3 {
		t.Fatalf("wrote %d packets, want 3", len(writer.pkts))
	}
	for i, want := range []uint16{1, 2, 3} {
		if writer.pkts[i].SequenceNumber != want {
			t.Errorf("pkt[%d].seq = %d, want %d", i, writer.pkts[i].SequenceNumber, want)
		}
	}
	if reader.releases != 2 {
		t.Errorf("releases = %d, want 2", reader.releases)
	}
}

func TestPumpDropsWhenMuted(t *testing.T) {
	reader := &scriptReader{batches: [][]*rtp.Packet{
		{pkt(1)},
		{pkt(2)},
	}}
	writer := &recordWriter{}
	logger := zerolog.Nop()

	p := newPump(reader)
	p.setEnabled(false)
	p.loop(context.Background(), writer, &logger)

	if len(writer.pkts) != 0 {
		t.Errorf("muted pump wrote %d packets", len(writer.pkts))
	}
	// The device keeps producing; packets are read and released, not written.
	if reader.reads < 2 {
		t.Errorf("reads = %d, want the reader drained", reader.reads)
	}
	if reader.releases != 2 {
		t.Errorf("releases = %d, want 2", reader.releases)
	}
}

func TestPumpToggle(t *testing.T) {
	p := newPump(&scriptReader{})
	if !p.enabled() {
		t.Error("pump must start open")
	}
	p.setEnabled(false)
	if p.enabled() {
		t.Error("still enabled after mute")
	}
	p.setEnabled(true)
	if !p.enabled() {
		t.Error("not enabled after unmute")
	}
}

func TestPumpStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &scriptReader{batches: [][]*rtp.Packet{{pkt(1)}}}
	writer := &recordWriter{}
	logger := zerolog.Nop()

	p := newPump(reader)
	p.loop(ctx, writer, &logger)

	if reader.reads != 0 {
		t.Errorf("reads = %d, want 0 after cancel", reader.reads)
	}
}
