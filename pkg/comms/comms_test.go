package comms

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCalibrationCommandRoundTrip(t *testing.T) {
	payload := BuildCalibrationCommand(CalCalculate, 2000)
	assert.Len(t, payload, 7)

	parsed, err := ParseCommand(payload)
	require.NoError(t, err)
	require.NotNil(t, parsed.Calibration)
	assert.Equal(t, CalCalculate, *parsed.Calibration)
	assert.Equal(t, uint32(2000), parsed.VolumeML)
}

func TestBuildResetCommandsRoundTrip(t *testing.T) {
	request := BuildResetRequestCommand(ResetChannelSchedule, 4)
	parsed, err := ParseCommand(request)
	require.NoError(t, err)
	assert.False(t, parsed.ResetExecute)
	assert.Equal(t, ResetChannelSchedule, parsed.ResetOp)
	assert.Equal(t, byte(4), parsed.ResetChannel)
	assert.Zero(t, parsed.ResetCode)

	execute := BuildResetExecuteCommand(FactoryReset, 0xFF, 0xDEADBEEF)
	parsed, err = ParseCommand(execute)
	require.NoError(t, err)
	assert.True(t, parsed.ResetExecute)
	assert.Equal(t, FactoryReset, parsed.ResetOp)
	assert.Equal(t, byte(0xFF), parsed.ResetChannel)
	assert.Equal(t, uint32(0xDEADBEEF), parsed.ResetCode)
}

func TestParseCommandRejectsGarbage(t *testing.T) {
	_, err := ParseCommand(nil)
	assert.Error(t, err)

	_, err = ParseCommand([]byte{0x99, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07})
	assert.Error(t, err)
}

func TestResetOpcodeChannelScoping(t *testing.T) {
	scoped := []ResetOpcode{ResetChannelConfig, ResetChannelSchedule}
	global := []ResetOpcode{ResetAllConfigs, ResetAllSchedules, ResetSystemConfig, ResetHistory, FactoryReset}

	for _, op := range scoped {
		assert.True(t, op.ChannelScoped(), op.String())
	}
	for _, op := range global {
		assert.False(t, op.ChannelScoped(), op.String())
	}
}

func TestClassifyDeviceErrorStructured(t *testing.T) {
	cases := []struct {
		code byte
		want error
	}{
		{StatusNoPulses, ErrNoPulses},
		{StatusConfirmCodeInvalid, ErrConfirmCodeInvalid},
		{StatusConfirmCodeExpired, ErrConfirmCodeExpired},
		{StatusStorageError, ErrStorage},
		{StatusNotConnected, ErrNotConnected},
	}
	for _, c := range cases {
		err := ClassifyDeviceError(&DeviceError{Code: c.code, Op: "execute reset"})
		assert.ErrorIs(t, err, c.want, "status 0x%02X", c.code)
	}

	// Unknown structured code passes through unchanged.
	unknown := &DeviceError{Code: 0x7F, Op: "execute reset"}
	assert.Equal(t, error(unknown), ClassifyDeviceError(unknown))
}

func TestClassifyDeviceErrorTextFallback(t *testing.T) {
	cases := []struct {
		text string
		want error
	}{
		{"device said: no pulses detected on sensor", ErrNoPulses},
		{"confirmation code incorrect for request", ErrConfirmCodeInvalid},
		{"code expired, request a new one", ErrConfirmCodeExpired},
		{"flash storage failure", ErrStorage},
		{"peripheral disconnected mid-write", ErrNotConnected},
	}
	for _, c := range cases {
		err := ClassifyDeviceError(errors.New(c.text))
		assert.ErrorIs(t, err, c.want, c.text)
	}

	opaque := fmt.Errorf("something else entirely")
	assert.Equal(t, opaque, ClassifyDeviceError(opaque))
	assert.NoError(t, ClassifyDeviceError(nil))
}
