// Package frame defines the wire layouts shared by every logical stream the
// controller speaks: the 4-byte header prefixed to outbound framed writes and
// the 8-byte unified header carried by framed notifications.
package frame

import (
	"encoding/binary"
	"fmt"
)

const (
	// WriteHeaderSize is the length of the header prefixed to the first
	// fragment of an outbound framed write.
	WriteHeaderSize = 4
	// UnifiedHeaderSize is the length of the metadata block prefixed to
	// framed notifications.
	UnifiedHeaderSize = 8

	// FramedWriteMarker tags an outbound write as a full little-endian
	// framed transfer.
	FramedWriteMarker byte = 0x0F
)

// Channel values outside the 0-7 zone range.
const (
	// ChannelDeviceGlobal is used on outbound writes not tied to a zone.
	ChannelDeviceGlobal byte = 0x00
	// ChannelAllZones marks whole-device scope in reset control state.
	ChannelAllZones byte = 0xFF
)

// DataType identifies the logical payload kind of a framed notification. It
// disambiguates concurrent reassembly streams arriving on one notification
// source.
type DataType byte

const (
	DataTypeZoneStatus  DataType = 0x01
	DataTypeSchedule    DataType = 0x02
	DataTypeHistory     DataType = 0x03
	DataTypeCalibration DataType = 0x10
	DataTypeResetCtl    DataType = 0x11
)

func (d DataType) String() string {
	switch d {
	case DataTypeZoneStatus:
		return "zone status"
	case DataTypeSchedule:
		return "schedule"
	case DataTypeHistory:
		return "history"
	case DataTypeCalibration:
		return "calibration"
	case DataTypeResetCtl:
		return "reset control"
	default:
		return fmt.Sprintf("unknown (0x%02X)", byte(d))
	}
}

// WriteHeader is prefixed to the first fragment of every outbound framed
// write. TotalSize covers the whole payload across all fragments.
type WriteHeader struct {
	Channel   byte
	TotalSize uint16
}

func (h WriteHeader) Encode() []byte {
	buf := make([]byte, WriteHeaderSize)
	buf[0] = h.Channel
	buf[1] = FramedWriteMarker
	binary.LittleEndian.PutUint16(buf[2:4], h.TotalSize)
	return buf
}

// ParseWriteHeader reads a WriteHeader from the start of a write buffer. It
// rejects buffers that are too short or not tagged with FramedWriteMarker.
func ParseWriteHeader(data []byte) (WriteHeader, error) {
	if len(data) < WriteHeaderSize {
		return WriteHeader{}, fmt.Errorf("write buffer too short for header: %d bytes", len(data))
	}
	if data[1] != FramedWriteMarker {
		return WriteHeader{}, fmt.Errorf("not a framed write: marker 0x%02X", data[1])
	}
	return WriteHeader{
		Channel:   data[0],
		TotalSize: binary.LittleEndian.Uint16(data[2:4]),
	}, nil
}

// UnifiedHeader is the 8-byte metadata block describing one inbound framed
// notification fragment. EntryCount is a domain-specific record count and may
// be zero for pure status frames.
type UnifiedHeader struct {
	DataType       DataType
	Status         byte
	EntryCount     uint16
	FragmentIndex  byte
	TotalFragments byte
	FragmentSize   byte
	Reserved       byte
}

// ParseUnifiedHeader reads a UnifiedHeader from the start of a notification
// buffer. It does not judge whether the buffer is genuinely framed; that
// heuristic belongs to the transport layer.
func ParseUnifiedHeader(data []byte) (UnifiedHeader, error) {
	if len(data) < UnifiedHeaderSize {
		return UnifiedHeader{}, fmt.Errorf("buffer too short for unified header: %d bytes", len(data))
	}
	return UnifiedHeader{
		DataType:       DataType(data[0]),
		Status:         data[1],
		EntryCount:     binary.LittleEndian.Uint16(data[2:4]),
		FragmentIndex:  data[4],
		TotalFragments: data[5],
		FragmentSize:   data[6],
		Reserved:       data[7],
	}, nil
}

func (h UnifiedHeader) Encode() []byte {
	buf := make([]byte, UnifiedHeaderSize)
	buf[0] = byte(h.DataType)
	buf[1] = h.Status
	binary.LittleEndian.PutUint16(buf[2:4], h.EntryCount)
	buf[4] = h.FragmentIndex
	buf[5] = h.TotalFragments
	buf[6] = h.FragmentSize
	buf[7] = h.Reserved
	return buf
}
