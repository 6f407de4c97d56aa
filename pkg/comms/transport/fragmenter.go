// Package transport implements the fragmentation layer between logical
// commands and the controller's small-MTU notify/write characteristics:
// chunked, paced outbound writes and keyed reassembly of inbound
// notification fragments.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/loopholelabs/logging/types"

	"github.com/openwater/govalve/pkg/comms/frame"
)

// Writer is the write half of a device characteristic. It matches the
// signature of bluetooth.DeviceCharacteristic.WriteWithoutResponse.
type Writer interface {
	Write(p []byte) (n int, err error)
}

const (
	// DefaultMTU is the largest single write the controller accepts.
	DefaultMTU = 20
	// DefaultPacing is the delay before each continuation write, giving the
	// controller time to drain its receive buffer.
	DefaultPacing = 50 * time.Millisecond
)

// Fragmenter chunks outbound payloads into MTU-sized physical writes.
type Fragmenter struct {
	MTU    int
	Pacing time.Duration

	log types.Logger
}

// NewFragmenter returns a Fragmenter with the controller defaults. log may
// be nil.
func NewFragmenter(log types.Logger) *Fragmenter {
	return &Fragmenter{
		MTU:    DefaultMTU,
		Pacing: DefaultPacing,
		log:    log,
	}
}

// WriteFragmented frames payload and writes it to w in MTU-sized chunks.
// The first chunk carries the 4-byte write header, continuation chunks carry
// raw payload only. Chunks are written strictly sequentially; an error from
// any write aborts the remaining chunks. The controller discards incomplete
// transfers on its own, no abort message is sent.
//
// channel is a zone channel 0-7 or frame.ChannelDeviceGlobal.
func (f *Fragmenter) WriteFragmented(ctx context.Context, w Writer, channel byte, payload []byte) error {
	mtu := f.MTU
	if mtu <= frame.WriteHeaderSize {
		mtu = DefaultMTU
	}
	if len(payload) > 0xFFFF {
		return fmt.Errorf("payload too large to frame: %d bytes", len(payload))
	}

	header := frame.WriteHeader{Channel: channel, TotalSize: uint16(len(payload))}
	first := mtu - frame.WriteHeaderSize
	if first > len(payload) {
		first = len(payload)
	}

	chunk := append(header.Encode(), payload[:first]...)
	if _, err := w.Write(chunk); err != nil {
		return fmt.Errorf("failed to write first fragment: %w", err)
	}
	recordFragmentWrite()

	sent := first
	for sent < len(payload) {
		if err := f.pace(ctx); err != nil {
			return err
		}
		end := sent + mtu
		if end > len(payload) {
			end = len(payload)
		}
		if _, err := w.Write(payload[sent:end]); err != nil {
			return fmt.Errorf("failed to write fragment at offset %d: %w", sent, err)
		}
		recordFragmentWrite()
		sent = end
	}

	if f.log != nil {
		f.log.Debug().Int("bytes", len(payload)).Int("channel", int(channel)).Msg("fragmented write complete")
	}
	return nil
}

func (f *Fragmenter) pace(ctx context.Context) error {
	if f.Pacing <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(f.Pacing)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
