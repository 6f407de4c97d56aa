package oasis

import (
	"encoding/binary"
	"fmt"

	"github.com/openwater/govalve/pkg/comms"
	"github.com/openwater/govalve/pkg/comms/frame"
	"github.com/openwater/govalve/pkg/comms/transport"
	"github.com/openwater/govalve/pkg/state"
)

// Notification payload sizes after reassembly.
const (
	calibrationPayloadLen  = 13
	resetControlPayloadLen = 13
	zoneRecordLen          = 6
)

// decode routes a complete reassembled payload into the state store.
func (c *OasisController) decode(res transport.Result) {
	if res.Header == nil {
		// Unframed notifications from this device are short status pings
		// with nothing to decode.
		if c.log != nil {
			c.log.Debug().Int("len", len(res.Payload)).Msg("unframed notification")
		}
		return
	}

	switch res.Header.DataType {
	case frame.DataTypeCalibration:
		cal, err := DecodeCalibrationUpdate(res.Payload)
		if err != nil {
			c.logDecodeError(res.Header.DataType, err)
			return
		}
		c.store.Update(func(st *state.AppState) { st.Calibration = cal })

	case frame.DataTypeResetCtl:
		rc, err := DecodeResetControlUpdate(res.Payload)
		if err != nil {
			c.logDecodeError(res.Header.DataType, err)
			return
		}
		c.store.Update(func(st *state.AppState) { st.ResetControl = rc })

	case frame.DataTypeZoneStatus:
		zones, err := DecodeZoneStatus(res.Header.EntryCount, res.Payload)
		if err != nil {
			c.logDecodeError(res.Header.DataType, err)
			return
		}
		c.store.Update(func(st *state.AppState) {
			for id, zone := range zones {
				st.Zones[id] = zone
			}
		})

	default:
		if c.log != nil {
			c.log.Debug().Str("dataType", res.Header.DataType.String()).Msg("unhandled notification type")
		}
	}
}

func (c *OasisController) logDecodeError(dt frame.DataType, err error) {
	if c.log != nil {
		c.log.Warn().Err(err).Str("dataType", dt.String()).Msg("failed to decode notification")
	}
}

// DecodeCalibrationUpdate parses a calibration notification payload:
// action(1) | pulses(4) | volume_ml(4) | pulses_per_liter(4), little-endian.
func DecodeCalibrationUpdate(data []byte) (state.CalibrationState, error) {
	if len(data) < calibrationPayloadLen {
		return state.CalibrationState{}, fmt.Errorf("calibration payload too short: %d bytes", len(data))
	}
	return state.CalibrationState{
		Action:         state.CalibrationAction(data[0]),
		Pulses:         binary.LittleEndian.Uint32(data[1:5]),
		VolumeML:       binary.LittleEndian.Uint32(data[5:9]),
		PulsesPerLiter: binary.LittleEndian.Uint32(data[9:13]),
	}, nil
}

// EncodeCalibrationUpdate is the inverse of DecodeCalibrationUpdate. Used by
// the mock controller to fabricate notifications.
func EncodeCalibrationUpdate(cal state.CalibrationState) []byte {
	buf := make([]byte, calibrationPayloadLen)
	buf[0] = byte(cal.Action)
	binary.LittleEndian.PutUint32(buf[1:5], cal.Pulses)
	binary.LittleEndian.PutUint32(buf[5:9], cal.VolumeML)
	binary.LittleEndian.PutUint32(buf[9:13], cal.PulsesPerLiter)
	return buf
}

// DecodeResetControlUpdate parses a reset-control notification payload:
// status(1) | reset_type(1) | channel(1) | code(4) | retries(4) |
// progress_pct(1) | wipe_step(1), little-endian.
func DecodeResetControlUpdate(data []byte) (state.ResetControlState, error) {
	if len(data) < resetControlPayloadLen {
		return state.ResetControlState{}, fmt.Errorf("reset control payload too short: %d bytes", len(data))
	}
	return state.ResetControlState{
		Status:           state.ResetStatus(data[0]),
		ResetType:        comms.ResetOpcode(data[1]),
		ChannelID:        data[2],
		ConfirmationCode: binary.LittleEndian.Uint32(data[3:7]),
		RetryCount:       binary.LittleEndian.Uint32(data[7:11]),
		ProgressPct:      data[11],
		WipeStep:         state.WipeStep(data[12]),
	}, nil
}

// EncodeResetControlUpdate is the inverse of DecodeResetControlUpdate.
func EncodeResetControlUpdate(rc state.ResetControlState) []byte {
	buf := make([]byte, resetControlPayloadLen)
	buf[0] = byte(rc.Status)
	buf[1] = byte(rc.ResetType)
	buf[2] = rc.ChannelID
	binary.LittleEndian.PutUint32(buf[3:7], rc.ConfirmationCode)
	binary.LittleEndian.PutUint32(buf[7:11], rc.RetryCount)
	buf[11] = rc.ProgressPct
	buf[12] = byte(rc.WipeStep)
	return buf
}

// DecodeZoneStatus parses entryCount zone records of
// zone_id(1) | running(1) | remaining_sec(4) each. Records with an out of
// range zone id are rejected.
func DecodeZoneStatus(entryCount uint16, data []byte) (map[int]state.ZoneState, error) {
	if len(data) < int(entryCount)*zoneRecordLen {
		return nil, fmt.Errorf("zone status payload too short: %d bytes for %d entries", len(data), entryCount)
	}
	zones := make(map[int]state.ZoneState, entryCount)
	for i := 0; i < int(entryCount); i++ {
		rec := data[i*zoneRecordLen:]
		id := int(rec[0])
		if id >= state.ZoneCount {
			return nil, fmt.Errorf("zone id out of range: %d", id)
		}
		zones[id] = state.ZoneState{
			Running:      rec[1] != 0,
			RemainingSec: binary.LittleEndian.Uint32(rec[2:6]),
		}
	}
	return zones, nil
}
