// Package calibration drives flow-sensor calibration against the controller:
// start a calibration run, dispense and measure a volume of water, let the
// device compute its pulses-per-liter rate, then apply or discard it.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loopholelabs/logging/types"

	"github.com/openwater/govalve/pkg/comms"
	"github.com/openwater/govalve/pkg/comms/frame"
	"github.com/openwater/govalve/pkg/comms/transport"
	"github.com/openwater/govalve/pkg/state"
)

// Phase is the local view of where the calibration session is.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseWaitingVolume
	PhaseCalculated
	PhaseApplying
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseWaitingVolume:
		return "waiting for volume"
	case PhaseCalculated:
		return "calculated"
	case PhaseApplying:
		return "applying"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown (%d)", uint8(p))
	}
}

// Local validation and wait failures.
var (
	ErrVolumeTooSmall = errors.New("measured volume below calibration minimum")
	ErrNotCalculated  = errors.New("no calculated rate to apply")
	ErrActionTimeout  = errors.New("timed out waiting for calibration state change")
)

// Result is a computed calibration rate.
type Result struct {
	PulsesPerLiter uint32
	Pulses         uint32
}

// Session is the calibration protocol client. One session is meaningful at a
// time; serializing concurrent sessions is the caller's responsibility.
type Session struct {
	w     transport.Writer
	frag  *transport.Fragmenter
	store *state.Store
	log   types.Logger

	phase      Phase
	startedAt  time.Time
	calculated *Result
}

// NewSession builds a calibration client over the given write characteristic
// and state store. log may be nil.
func NewSession(w transport.Writer, frag *transport.Fragmenter, store *state.Store, log types.Logger) *Session {
	return &Session{
		w:     w,
		frag:  frag,
		store: store,
		log:   log,
	}
}

// Phase returns the local session phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// Elapsed is the time since Start, for callers that show a running clock.
func (s *Session) Elapsed() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

// Start tells the device to begin counting pulses and starts the local
// elapsed-time clock.
func (s *Session) Start(ctx context.Context) error {
	if err := s.send(ctx, comms.CalStart, 0); err != nil {
		s.phase = PhaseFailed
		return err
	}
	s.phase = PhaseRunning
	s.startedAt = time.Now()
	if s.log != nil {
		s.log.Info().Msg("calibration started")
	}
	return nil
}

// Stop abandons the run. The session returns to idle whether or not the stop
// command reaches the device.
func (s *Session) Stop(ctx context.Context) error {
	err := s.send(ctx, comms.CalStop, 0)
	s.phase = PhaseIdle
	s.calculated = nil
	s.startedAt = time.Time{}
	return err
}

// Finish reports the measured volume and waits for the device to compute the
// rate. Volumes below comms.MinCalibrationVolumeML are rejected locally,
// without any device round trip. A device-computed rate of zero means no
// pulses were counted and fails with comms.ErrNoPulses.
func (s *Session) Finish(ctx context.Context, volumeML uint32) (Result, error) {
	if volumeML < comms.MinCalibrationVolumeML {
		return Result{}, fmt.Errorf("%w: %d ml (minimum %d ml)",
			ErrVolumeTooSmall, volumeML, comms.MinCalibrationVolumeML)
	}

	s.phase = PhaseWaitingVolume
	if err := s.send(ctx, comms.CalCalculate, volumeML); err != nil {
		s.phase = PhaseFailed
		return Result{}, err
	}

	snap, err := s.waitAction(ctx, state.CalibrationCalculated)
	if err != nil {
		s.phase = PhaseFailed
		return Result{}, err
	}

	cal := snap.Calibration
	if cal.PulsesPerLiter == 0 {
		s.phase = PhaseFailed
		return Result{}, comms.ErrNoPulses
	}

	res := Result{PulsesPerLiter: cal.PulsesPerLiter, Pulses: cal.Pulses}
	s.calculated = &res
	s.phase = PhaseCalculated
	if s.log != nil {
		s.log.Info().Int("pulsesPerLiter", int(res.PulsesPerLiter)).Msg("calibration rate computed")
	}
	return res, nil
}

// Apply commits the calculated rate to the device and ends the session.
// It requires a prior successful Finish.
func (s *Session) Apply(ctx context.Context) (Result, error) {
	if s.calculated == nil {
		return Result{}, ErrNotCalculated
	}

	s.phase = PhaseApplying
	if err := s.send(ctx, comms.CalApply, 0); err != nil {
		s.phase = PhaseFailed
		return Result{}, err
	}
	if _, err := s.waitAction(ctx, state.CalibrationIdle); err != nil {
		s.phase = PhaseFailed
		return Result{}, err
	}

	res := *s.calculated
	s.calculated = nil
	s.startedAt = time.Time{}
	s.phase = PhaseCompleted
	return res, nil
}

// Reset restores the factory default rate on the device.
func (s *Session) Reset(ctx context.Context) (Result, error) {
	if err := s.send(ctx, comms.CalReset, 0); err != nil {
		s.phase = PhaseFailed
		return Result{}, err
	}
	if _, err := s.waitAction(ctx, state.CalibrationIdle); err != nil {
		s.phase = PhaseFailed
		return Result{}, err
	}

	s.calculated = nil
	s.startedAt = time.Time{}
	s.phase = PhaseIdle
	return Result{PulsesPerLiter: comms.DefaultPulsesPerLiter}, nil
}

func (s *Session) send(ctx context.Context, cmd comms.CalibrationCommand, volumeML uint32) error {
	payload := comms.BuildCalibrationCommand(cmd, volumeML)
	if err := s.frag.WriteFragmented(ctx, s.w, frame.ChannelDeviceGlobal, payload); err != nil {
		return comms.ClassifyDeviceError(err)
	}
	return nil
}

func (s *Session) waitAction(ctx context.Context, action state.CalibrationAction) (state.AppState, error) {
	wctx, cancel := context.WithTimeout(ctx, comms.CalibrationActionWait)
	defer cancel()

	snap, err := s.store.Wait(wctx, func(st state.AppState) bool {
		return st.Calibration.Action == action
	})
	if err != nil {
		return state.AppState{}, fmt.Errorf("%w: wanted %s", ErrActionTimeout, action)
	}
	return snap, nil
}

// EstimateRate predicts a pulses-per-liter rate from a pulse count and an
// estimated volume. Pure computation, no device interaction; zero on
// degenerate input.
func EstimateRate(pulses, volumeML uint32) uint32 {
	if pulses == 0 || volumeML == 0 {
		return 0
	}
	return uint32((uint64(pulses)*1000 + uint64(volumeML)/2) / uint64(volumeML))
}
