package calibration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwater/govalve/pkg/comms"
	"github.com/openwater/govalve/pkg/comms/transport"
	"github.com/openwater/govalve/pkg/state"
)

type recordingWriter struct {
	writes [][]byte
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	w.writes = append(w.writes, buf)
	return len(p), nil
}

func newTestSession() (*Session, *recordingWriter, *state.Store) {
	w := &recordingWriter{}
	frag := transport.NewFragmenter(nil)
	frag.Pacing = 0
	store := state.NewStore()
	return NewSession(w, frag, store, nil), w, store
}

// reportCalculated mimics the device session decoding a calculated-rate
// notification into the store shortly after the command goes out.
func reportCalculated(store *state.Store, pulses, volumeML, rate uint32) {
	go func() {
		time.Sleep(10 * time.Millisecond)
		store.Update(func(st *state.AppState) {
			st.Calibration = state.CalibrationState{
				Action:         state.CalibrationCalculated,
				Pulses:         pulses,
				VolumeML:       volumeML,
				PulsesPerLiter: rate,
			}
		})
	}()
}

func reportIdle(store *state.Store) {
	go func() {
		time.Sleep(10 * time.Millisecond)
		store.Update(func(st *state.AppState) {
			st.Calibration.Action = state.CalibrationIdle
		})
	}()
}

func TestStartTransitionsToRunning(t *testing.T) {
	s, w, _ := newTestSession()

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, PhaseRunning, s.Phase())
	assert.Len(t, w.writes, 1)
	assert.Greater(t, s.Elapsed(), time.Duration(0))
}

func TestFinishRejectsSmallVolumeLocally(t *testing.T) {
	s, w, _ := newTestSession()
	require.NoError(t, s.Start(context.Background()))
	w.writes = nil

	_, err := s.Finish(context.Background(), comms.MinCalibrationVolumeML-1)
	assert.ErrorIs(t, err, ErrVolumeTooSmall)
	// Local rejection: no device write at all.
	assert.Empty(t, w.writes)
}

func TestFinishComputesRate(t *testing.T) {
	s, _, store := newTestSession()
	require.NoError(t, s.Start(context.Background()))

	reportCalculated(store, 1500, 2000, 750)
	res, err := s.Finish(context.Background(), 2000)
	require.NoError(t, err)
	assert.Equal(t, uint32(750), res.PulsesPerLiter)
	assert.Equal(t, uint32(1500), res.Pulses)
	assert.Equal(t, PhaseCalculated, s.Phase())
	assert.Equal(t, 0, store.Subscribers())
}

func TestFinishZeroRateMeansNoPulses(t *testing.T) {
	s, _, store := newTestSession()
	require.NoError(t, s.Start(context.Background()))

	reportCalculated(store, 0, 2000, 0)
	_, err := s.Finish(context.Background(), 2000)
	assert.ErrorIs(t, err, comms.ErrNoPulses)
	assert.Equal(t, PhaseFailed, s.Phase())
}

func TestFinishTimesOutWithoutDeviceResponse(t *testing.T) {
	s, _, store := newTestSession()
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := s.Finish(ctx, 2000)
	assert.ErrorIs(t, err, ErrActionTimeout)
	assert.Equal(t, 0, store.Subscribers())
}

func TestApplyRequiresCalculatedRate(t *testing.T) {
	s, _, _ := newTestSession()

	_, err := s.Apply(context.Background())
	assert.ErrorIs(t, err, ErrNotCalculated)
}

func TestApplyCompletesSession(t *testing.T) {
	s, _, store := newTestSession()
	require.NoError(t, s.Start(context.Background()))

	reportCalculated(store, 1500, 2000, 750)
	_, err := s.Finish(context.Background(), 2000)
	require.NoError(t, err)

	// The store still reports Calculated from the previous stage; Apply must
	// wait for the fresh idle transition pushed by the device.
	reportIdle(store)
	res, err := s.Apply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(750), res.PulsesPerLiter)
	assert.Equal(t, PhaseCompleted, s.Phase())

	_, err = s.Apply(context.Background())
	assert.ErrorIs(t, err, ErrNotCalculated)
}

func TestResetRestoresDefault(t *testing.T) {
	s, _, store := newTestSession()

	reportIdle(store)
	res, err := s.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, comms.DefaultPulsesPerLiter, res.PulsesPerLiter)
	assert.Equal(t, PhaseIdle, s.Phase())
}

func TestStopAlwaysReturnsToIdle(t *testing.T) {
	s, _, _ := newTestSession()
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Equal(t, time.Duration(0), s.Elapsed())
}

func TestEstimateRate(t *testing.T) {
	cases := []struct {
		pulses, volumeML, want uint32
	}{
		{0, 2000, 0},
		{1500, 0, 0},
		{1500, 2000, 750},
		{1000, 1000, 1000},
		{1, 2000, 1}, // rounds 0.5 up
	}
	for _, c := range cases {
		assert.Equal(t, c.want, EstimateRate(c.pulses, c.volumeML),
			"pulses=%d volume=%d", c.pulses, c.volumeML)
	}
}
