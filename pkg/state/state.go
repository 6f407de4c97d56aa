// Package state holds the shared application state the device session
// decodes notifications into, and which the protocol clients and UI observe.
// The store is an explicit handle passed to each component at construction,
// not a process global.
package state

import (
	"fmt"

	"github.com/openwater/govalve/pkg/comms"
)

// ZoneCount is the number of irrigation channels on the controller.
const ZoneCount = 8

// CalibrationAction is the calibration phase the device reports.
type CalibrationAction uint8

const (
	CalibrationIdle CalibrationAction = iota
	CalibrationStart
	CalibrationInProgress
	CalibrationCalculated
	CalibrationApply
)

func (a CalibrationAction) String() string {
	switch a {
	case CalibrationIdle:
		return "idle"
	case CalibrationStart:
		return "start"
	case CalibrationInProgress:
		return "in progress"
	case CalibrationCalculated:
		return "calculated"
	case CalibrationApply:
		return "apply"
	default:
		return fmt.Sprintf("unknown (%d)", uint8(a))
	}
}

// CalibrationState mirrors the device's flow-sensor calibration fields. It is
// written only from decoded device notifications.
type CalibrationState struct {
	Action         CalibrationAction
	Pulses         uint32
	VolumeML       uint32
	PulsesPerLiter uint32
}

// ResetStatus is the device-reported phase of a reset operation.
type ResetStatus uint8

const (
	ResetIdle ResetStatus = iota
	ResetPending
	ResetInProgress
)

func (s ResetStatus) String() string {
	switch s {
	case ResetIdle:
		return "idle"
	case ResetPending:
		return "pending"
	case ResetInProgress:
		return "in progress"
	default:
		return fmt.Sprintf("unknown (%d)", uint8(s))
	}
}

// WipeStep is one phase of the multi-step factory wipe sequence.
type WipeStep uint8

const (
	WipeNotStarted WipeStep = iota
	WipeSchedules
	WipeConfigs
	WipeHistory
	WipeCalibration
	WipeDone
)

func (w WipeStep) String() string {
	switch w {
	case WipeNotStarted:
		return "not started"
	case WipeSchedules:
		return "wiping schedules"
	case WipeConfigs:
		return "wiping configs"
	case WipeHistory:
		return "wiping history"
	case WipeCalibration:
		return "wiping calibration"
	case WipeDone:
		return "done"
	default:
		return fmt.Sprintf("unknown (%d)", uint8(w))
	}
}

// ResetControlState mirrors the device's reset bookkeeping. A confirmation
// code is valid only for the exact (ResetType, ChannelID) pair that requested
// it, and only within the device-enforced validity window.
type ResetControlState struct {
	Status           ResetStatus
	ResetType        comms.ResetOpcode
	ChannelID        byte
	ConfirmationCode uint32
	RetryCount       uint32
	ProgressPct      uint8
	WipeStep         WipeStep
}

// ZoneState is the decoded status of one irrigation channel.
type ZoneState struct {
	Running      bool
	RemainingSec uint32
}

// AppState is one immutable snapshot of everything decoded from the device.
type AppState struct {
	Connected    bool
	Calibration  CalibrationState
	ResetControl ResetControlState
	Zones        [ZoneCount]ZoneState
}
