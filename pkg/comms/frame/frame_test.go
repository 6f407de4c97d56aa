package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteHeaderRoundTrip(t *testing.T) {
	h := WriteHeader{Channel: 3, TotalSize: 0x0201}
	buf := h.Encode()

	assert.Equal(t, []byte{0x03, FramedWriteMarker, 0x01, 0x02}, buf)

	parsed, err := ParseWriteHeader(buf)
	assert.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseWriteHeaderRejectsBadMarker(t *testing.T) {
	_, err := ParseWriteHeader([]byte{0x00, 0xAB, 0x00, 0x00})
	assert.Error(t, err)

	_, err = ParseWriteHeader([]byte{0x00, FramedWriteMarker})
	assert.Error(t, err)
}

func TestUnifiedHeaderRoundTrip(t *testing.T) {
	h := UnifiedHeader{
		DataType:       DataTypeCalibration,
		Status:         0x02,
		EntryCount:     0x1234,
		FragmentIndex:  1,
		TotalFragments: 3,
		FragmentSize:   12,
	}
	buf := h.Encode()

	assert.Len(t, buf, UnifiedHeaderSize)
	// EntryCount is little-endian on the wire.
	assert.Equal(t, byte(0x34), buf[2])
	assert.Equal(t, byte(0x12), buf[3])

	parsed, err := ParseUnifiedHeader(buf)
	assert.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseUnifiedHeaderShortBuffer(t *testing.T) {
	_, err := ParseUnifiedHeader([]byte{0x01, 0x02, 0x03})
	assert.Error(t, err)
}
