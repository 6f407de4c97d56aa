package mock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwater/govalve"
	"github.com/openwater/govalve/pkg/comms"
	"github.com/openwater/govalve/pkg/comms/frame"
	"github.com/openwater/govalve/pkg/state"
)

func newConnectedMock(t *testing.T) *MockController {
	t.Helper()
	m := NewWithLogger(&govalve.FoundDevice{Name: "MOCK-1"}, nil)
	require.NoError(t, m.Connect())
	t.Cleanup(func() { _ = m.Disconnect() })
	return m
}

func TestRegistryProvidesMock(t *testing.T) {
	c, err := govalve.NewControllerForDevice(&govalve.FoundDevice{Name: "MOCK-2"})
	require.NoError(t, err)
	assert.Equal(t, "Mock Controller", c.DisplayName())
}

func TestCalibrationEndToEnd(t *testing.T) {
	m := newConnectedMock(t)
	ctx := context.Background()
	cal := m.Calibration()

	require.NoError(t, cal.Start(ctx))

	// Let some simulated water flow.
	time.Sleep(50 * time.Millisecond)

	res, err := cal.Finish(ctx, comms.RecommendedCalibrationVolumeML)
	require.NoError(t, err)
	assert.NotZero(t, res.Pulses)
	assert.NotZero(t, res.PulsesPerLiter)

	applied, err := cal.Apply(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.PulsesPerLiter, applied.PulsesPerLiter)
	assert.Equal(t, 0, m.Store().Subscribers())
}

func TestCalibrationNoFlowFails(t *testing.T) {
	m := newConnectedMock(t)
	m.SetFlowRate(0)
	ctx := context.Background()
	cal := m.Calibration()

	require.NoError(t, cal.Start(ctx))
	time.Sleep(30 * time.Millisecond)

	_, err := cal.Finish(ctx, comms.RecommendedCalibrationVolumeML)
	assert.ErrorIs(t, err, comms.ErrNoPulses)
}

func TestResetEndToEnd(t *testing.T) {
	m := newConnectedMock(t)

	err := m.Reset().Perform(context.Background(), comms.ResetHistory, frame.ChannelAllZones)
	require.NoError(t, err)
	assert.Equal(t, state.ResetIdle, m.Store().State().ResetControl.Status)
}

func TestFactoryResetReportsWipeProgress(t *testing.T) {
	m := newConnectedMock(t)

	sawProgress := false
	cancel := m.Store().Subscribe(func(st state.AppState) {
		if st.ResetControl.Status == state.ResetInProgress && st.ResetControl.ProgressPct > 0 {
			sawProgress = true
		}
	})
	defer cancel()

	err := m.Reset().Perform(context.Background(), comms.FactoryReset, frame.ChannelAllZones)
	require.NoError(t, err)
	assert.True(t, sawProgress)
	assert.Equal(t, comms.DefaultPulsesPerLiter, m.Store().State().Calibration.PulsesPerLiter)
}

func TestExecuteWithWrongCodeRejected(t *testing.T) {
	m := newConnectedMock(t)
	ctx := context.Background()

	code, err := m.Reset().RequestConfirmationCode(ctx, comms.ResetAllConfigs, 0)
	require.NoError(t, err)
	require.NotZero(t, code)

	err = m.Reset().ExecuteWithCode(ctx, comms.ResetAllConfigs, 0, code+1)
	assert.ErrorIs(t, err, comms.ErrConfirmCodeInvalid)

	// The device invalidated the code on the failed attempt; a fresh
	// request must succeed cleanly.
	err = m.Reset().Perform(ctx, comms.ResetAllConfigs, 0)
	assert.NoError(t, err)
}

func TestWriteWhenDisconnected(t *testing.T) {
	m := NewWithLogger(&govalve.FoundDevice{Name: "MOCK-3"}, nil)
	require.NoError(t, m.Connect())
	require.NoError(t, m.Disconnect())

	err := m.Calibration().Start(context.Background())
	assert.ErrorIs(t, err, comms.ErrNotConnected)
}
