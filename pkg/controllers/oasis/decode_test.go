package oasis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwater/govalve/pkg/comms"
	"github.com/openwater/govalve/pkg/state"
)

func TestDecodeCalibrationUpdate(t *testing.T) {
	want := state.CalibrationState{
		Action:         state.CalibrationCalculated,
		Pulses:         1500,
		VolumeML:       2000,
		PulsesPerLiter: 750,
	}
	got, err := DecodeCalibrationUpdate(EncodeCalibrationUpdate(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeCalibrationUpdate([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestDecodeResetControlUpdate(t *testing.T) {
	want := state.ResetControlState{
		Status:           state.ResetInProgress,
		ResetType:        comms.FactoryReset,
		ChannelID:        0xFF,
		ConfirmationCode: 0xA1B2C3D4,
		RetryCount:       2,
		ProgressPct:      60,
		WipeStep:         state.WipeHistory,
	}
	got, err := DecodeResetControlUpdate(EncodeResetControlUpdate(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeResetControlUpdate(nil)
	assert.Error(t, err)
}

func TestDecodeZoneStatus(t *testing.T) {
	payload := []byte{
		0, 1, 0x2C, 0x01, 0x00, 0x00, // zone 0 running, 300s remaining
		5, 0, 0x00, 0x00, 0x00, 0x00, // zone 5 stopped
	}
	zones, err := DecodeZoneStatus(2, payload)
	require.NoError(t, err)
	assert.Equal(t, state.ZoneState{Running: true, RemainingSec: 300}, zones[0])
	assert.Equal(t, state.ZoneState{Running: false}, zones[5])

	_, err = DecodeZoneStatus(3, payload)
	assert.Error(t, err)

	_, err = DecodeZoneStatus(1, []byte{9, 0, 0, 0, 0, 0})
	assert.Error(t, err)
}
