// Package comms defines the command vocabulary of the irrigation controller:
// opcodes, command frame builders, protocol constants, and classification of
// device-reported errors.
package comms

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Protocol constants shared by the calibration and reset clients.
const (
	// DefaultPulsesPerLiter is the factory flow-sensor calibration constant.
	DefaultPulsesPerLiter uint32 = 750
	// MinCalibrationVolumeML is the smallest measured volume the controller
	// can calibrate against with any accuracy.
	MinCalibrationVolumeML uint32 = 500
	// RecommendedCalibrationVolumeML is the volume suggested to users.
	RecommendedCalibrationVolumeML uint32 = 2000

	// ConfirmationValidity is how long the device honors an issued
	// confirmation code. Enforced device-side; documented here only.
	ConfirmationValidity = 5 * time.Minute
	// ConfirmationWait bounds the wait for a confirmation code.
	ConfirmationWait = 10 * time.Second
	// ResetCompletionWait bounds the wait for a reset to finish.
	ResetCompletionWait = 30 * time.Second
	// CalibrationActionWait bounds each wait for a calibration state change.
	CalibrationActionWait = 5 * time.Second
)

// Command groups, first byte of every command payload.
const (
	cmdGroupCalibration byte = 0x04
	cmdGroupReset       byte = 0x05
)

// CalibrationCommand selects a calibration operation.
type CalibrationCommand byte

const (
	CalStart     CalibrationCommand = 0x01
	CalStop      CalibrationCommand = 0x02
	CalCalculate CalibrationCommand = 0x03
	CalApply     CalibrationCommand = 0x04
	CalReset     CalibrationCommand = 0x05
)

// BuildCalibrationCommand builds the payload for a calibration command.
// volumeML is only meaningful for CalCalculate and is zero otherwise.
func BuildCalibrationCommand(cmd CalibrationCommand, volumeML uint32) []byte {
	buf := make([]byte, 7)
	buf[0] = cmdGroupCalibration
	buf[1] = byte(cmd)
	binary.LittleEndian.PutUint32(buf[3:7], volumeML)
	return buf
}

// ResetOpcode selects what a reset operation wipes.
type ResetOpcode byte

const (
	ResetChannelConfig   ResetOpcode = 0x01
	ResetChannelSchedule ResetOpcode = 0x02
	ResetAllConfigs      ResetOpcode = 0x03
	ResetAllSchedules    ResetOpcode = 0x04
	ResetSystemConfig    ResetOpcode = 0x05
	ResetHistory         ResetOpcode = 0x06
	FactoryReset         ResetOpcode = 0x07
)

// ChannelScoped reports whether the opcode operates on a single zone channel
// and therefore requires a channel in the 0-7 range.
func (o ResetOpcode) ChannelScoped() bool {
	return o == ResetChannelConfig || o == ResetChannelSchedule
}

func (o ResetOpcode) String() string {
	switch o {
	case ResetChannelConfig:
		return "channel config reset"
	case ResetChannelSchedule:
		return "channel schedule reset"
	case ResetAllConfigs:
		return "all configs reset"
	case ResetAllSchedules:
		return "all schedules reset"
	case ResetSystemConfig:
		return "system config reset"
	case ResetHistory:
		return "history reset"
	case FactoryReset:
		return "factory reset"
	default:
		return fmt.Sprintf("unknown reset (0x%02X)", byte(o))
	}
}

// Reset command phases.
const (
	resetPhaseRequest byte = 0x01
	resetPhaseExecute byte = 0x02
)

// BuildResetRequestCommand builds the first-stage command asking the device
// to issue a confirmation code for (op, channel).
func BuildResetRequestCommand(op ResetOpcode, channel byte) []byte {
	buf := make([]byte, 8)
	buf[0] = cmdGroupReset
	buf[1] = resetPhaseRequest
	buf[2] = byte(op)
	buf[3] = channel
	return buf
}

// BuildResetExecuteCommand builds the second-stage command echoing the
// device-issued confirmation code to authorize the reset.
func BuildResetExecuteCommand(op ResetOpcode, channel byte, code uint32) []byte {
	buf := make([]byte, 8)
	buf[0] = cmdGroupReset
	buf[1] = resetPhaseExecute
	buf[2] = byte(op)
	buf[3] = channel
	binary.LittleEndian.PutUint32(buf[4:8], code)
	return buf
}

// ParsedCommand is a decoded outbound command payload. Used by the mock
// controller and by tests; the real device does this parsing in firmware.
type ParsedCommand struct {
	Calibration *CalibrationCommand
	VolumeML    uint32

	ResetExecute bool
	ResetOp      ResetOpcode
	ResetChannel byte
	ResetCode    uint32
}

// ParseCommand decodes a command payload produced by one of the builders.
func ParseCommand(payload []byte) (ParsedCommand, error) {
	if len(payload) < 2 {
		return ParsedCommand{}, fmt.Errorf("command payload too short: %d bytes", len(payload))
	}
	switch payload[0] {
	case cmdGroupCalibration:
		if len(payload) < 7 {
			return ParsedCommand{}, fmt.Errorf("calibration command too short: %d bytes", len(payload))
		}
		cmd := CalibrationCommand(payload[1])
		return ParsedCommand{
			Calibration: &cmd,
			VolumeML:    binary.LittleEndian.Uint32(payload[3:7]),
		}, nil
	case cmdGroupReset:
		if len(payload) < 8 {
			return ParsedCommand{}, fmt.Errorf("reset command too short: %d bytes", len(payload))
		}
		return ParsedCommand{
			ResetExecute: payload[1] == resetPhaseExecute,
			ResetOp:      ResetOpcode(payload[2]),
			ResetChannel: payload[3],
			ResetCode:    binary.LittleEndian.Uint32(payload[4:8]),
		}, nil
	default:
		return ParsedCommand{}, fmt.Errorf("unknown command group 0x%02X", payload[0])
	}
}
