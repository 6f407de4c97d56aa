// Package mock provides a simulated govalve.Controller for development and
// testing when a physical irrigation controller is not available. It plays
// the device side of the protocol: it reassembles fragmented command writes,
// issues confirmation codes, counts simulated flow pulses, and pushes the
// resulting state into the store the way a real session would.
package mock

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/loopholelabs/logging/types"

	"github.com/openwater/govalve"
	"github.com/openwater/govalve/pkg/calibration"
	"github.com/openwater/govalve/pkg/comms"
	"github.com/openwater/govalve/pkg/comms/frame"
	"github.com/openwater/govalve/pkg/comms/transport"
	"github.com/openwater/govalve/pkg/reset"
	"github.com/openwater/govalve/pkg/state"
)

// To use the mock, import this package and request a device named "MOCK".
func init() {
	govalve.Register("MOCK", New)
}

// Compile-time checks: the mock is both a Controller and its own write
// characteristic.
var (
	_ govalve.Controller = (*MockController)(nil)
	_ transport.Writer   = (*MockController)(nil)
)

// responseDelay approximates the device's processing time before it pushes a
// state notification.
const responseDelay = 10 * time.Millisecond

// MockController is a simulated irrigation controller.
type MockController struct {
	name string
	log  types.Logger

	store       *state.Store
	fragmenter  *transport.Fragmenter
	calib       *calibration.Session
	resetClient *reset.Session

	mu        sync.Mutex
	connected bool

	// inbound write reassembly
	rxHeader *frame.WriteHeader
	rxBuf    []byte

	// device-side simulation state
	pulsesPerTick uint32
	pulses        uint32
	pulseStop     chan struct{}
	issuedOp      comms.ResetOpcode
	issuedChannel byte
	issuedCode    uint32
}

// New creates a new, unconnected MockController.
func New(device *govalve.FoundDevice) govalve.Controller {
	return NewWithLogger(device, nil)
}

// NewWithLogger builds a mock with a logger. log may be nil.
func NewWithLogger(device *govalve.FoundDevice, log types.Logger) *MockController {
	return &MockController{
		name:          device.Name,
		log:           log,
		store:         state.NewStore(),
		pulsesPerTick: 15,
	}
}

// SetFlowRate adjusts how many simulated pulses accrue per tick while a
// calibration run is active. Zero simulates a flow sensor that counts
// nothing.
func (m *MockController) SetFlowRate(pulsesPerTick uint32) {
	m.mu.Lock()
	m.pulsesPerTick = pulsesPerTick
	m.mu.Unlock()
}

func (m *MockController) Connect() error {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()

	m.fragmenter = transport.NewFragmenter(m.log)
	m.fragmenter.Pacing = 0 // the simulated device has no buffer to overrun
	m.calib = calibration.NewSession(m, m.fragmenter, m.store, m.log)
	m.resetClient = reset.NewSession(m, m.fragmenter, m.store, m.log)

	m.store.Update(func(st *state.AppState) { st.Connected = true })
	return nil
}

func (m *MockController) Disconnect() error {
	m.mu.Lock()
	m.connected = false
	m.stopPulsesLocked()
	m.mu.Unlock()

	m.store.Update(func(st *state.AppState) { st.Connected = false })
	return nil
}

func (m *MockController) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockController) DeviceName() string {
	return m.name
}

func (m *MockController) DisplayName() string {
	return "Mock Controller"
}

func (m *MockController) Store() *state.Store {
	return m.store
}

func (m *MockController) Calibration() *calibration.Session {
	return m.calib
}

func (m *MockController) Reset() *reset.Session {
	return m.resetClient
}

// Write is the mock's command characteristic. It reassembles the fragmented
// write exactly as the device firmware would, then acts on the command.
// Structured rejections come back as *comms.DeviceError, the same shape a
// real transport surfaces them in.
func (m *MockController) Write(p []byte) (int, error) {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return 0, &comms.DeviceError{Code: comms.StatusNotConnected, Op: "write"}
	}

	if m.rxHeader == nil {
		header, err := frame.ParseWriteHeader(p)
		if err != nil {
			m.mu.Unlock()
			return 0, err
		}
		m.rxHeader = &header
		m.rxBuf = append([]byte(nil), p[frame.WriteHeaderSize:]...)
	} else {
		m.rxBuf = append(m.rxBuf, p...)
	}

	if len(m.rxBuf) < int(m.rxHeader.TotalSize) {
		m.mu.Unlock()
		return len(p), nil
	}

	payload := m.rxBuf
	m.rxHeader = nil
	m.rxBuf = nil
	m.mu.Unlock()

	if err := m.handleCommand(payload); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (m *MockController) handleCommand(payload []byte) error {
	cmd, err := comms.ParseCommand(payload)
	if err != nil {
		return err
	}

	switch {
	case cmd.Calibration != nil:
		return m.handleCalibration(*cmd.Calibration, cmd.VolumeML)
	case cmd.ResetExecute:
		return m.handleResetExecute(cmd.ResetOp, cmd.ResetChannel, cmd.ResetCode)
	default:
		m.handleResetRequest(cmd.ResetOp, cmd.ResetChannel)
		return nil
	}
}

func (m *MockController) handleCalibration(cmd comms.CalibrationCommand, volumeML uint32) error {
	switch cmd {
	case comms.CalStart:
		m.mu.Lock()
		m.pulses = 0
		m.startPulsesLocked()
		m.mu.Unlock()
		m.pushCalibration(state.CalibrationState{Action: state.CalibrationInProgress})

	case comms.CalStop:
		m.mu.Lock()
		m.stopPulsesLocked()
		m.mu.Unlock()
		m.pushCalibration(state.CalibrationState{Action: state.CalibrationIdle})

	case comms.CalCalculate:
		m.mu.Lock()
		m.stopPulsesLocked()
		pulses := m.pulses
		m.mu.Unlock()
		m.pushCalibration(state.CalibrationState{
			Action:         state.CalibrationCalculated,
			Pulses:         pulses,
			VolumeML:       volumeML,
			PulsesPerLiter: calibration.EstimateRate(pulses, volumeML),
		})

	case comms.CalApply:
		m.pushCalibration(state.CalibrationState{
			Action:         state.CalibrationIdle,
			PulsesPerLiter: m.store.State().Calibration.PulsesPerLiter,
		})

	case comms.CalReset:
		m.pushCalibration(state.CalibrationState{
			Action:         state.CalibrationIdle,
			PulsesPerLiter: comms.DefaultPulsesPerLiter,
		})

	default:
		return fmt.Errorf("unknown calibration command 0x%02X", byte(cmd))
	}
	return nil
}

func (m *MockController) handleResetRequest(op comms.ResetOpcode, channel byte) {
	m.mu.Lock()
	m.issuedOp = op
	m.issuedChannel = channel
	m.issuedCode = rand.Uint32() | 1 // nonzero
	code := m.issuedCode
	m.mu.Unlock()

	go func() {
		time.Sleep(responseDelay)
		m.store.Update(func(st *state.AppState) {
			st.ResetControl = state.ResetControlState{
				Status:           state.ResetPending,
				ResetType:        op,
				ChannelID:        channel,
				ConfirmationCode: code,
			}
		})
	}()
}

func (m *MockController) handleResetExecute(op comms.ResetOpcode, channel byte, code uint32) error {
	m.mu.Lock()
	valid := code != 0 && code == m.issuedCode && op == m.issuedOp && channel == m.issuedChannel
	m.issuedCode = 0
	m.mu.Unlock()

	if !valid {
		// The device drops its pending request on a bad code; the next
		// attempt has to start over from a fresh confirmation.
		m.store.Update(func(st *state.AppState) {
			st.ResetControl = state.ResetControlState{Status: state.ResetIdle}
		})
		return &comms.DeviceError{Code: comms.StatusConfirmCodeInvalid, Op: "execute reset"}
	}

	go func() {
		if op == comms.FactoryReset {
			steps := []state.WipeStep{state.WipeSchedules, state.WipeConfigs, state.WipeHistory, state.WipeCalibration}
			for i, step := range steps {
				step := step
				pct := uint8((i + 1) * 100 / (len(steps) + 1))
				time.Sleep(responseDelay)
				m.store.Update(func(st *state.AppState) {
					st.ResetControl.Status = state.ResetInProgress
					st.ResetControl.WipeStep = step
					st.ResetControl.ProgressPct = pct
				})
			}
		} else {
			time.Sleep(responseDelay)
			m.store.Update(func(st *state.AppState) {
				st.ResetControl.Status = state.ResetInProgress
			})
		}

		time.Sleep(responseDelay)
		m.store.Update(func(st *state.AppState) {
			st.ResetControl = state.ResetControlState{Status: state.ResetIdle, WipeStep: state.WipeDone}
			if op == comms.FactoryReset {
				st.ResetControl.ProgressPct = 100
				st.Calibration = state.CalibrationState{PulsesPerLiter: comms.DefaultPulsesPerLiter}
			}
		})
	}()
	return nil
}

// startPulsesLocked begins accruing simulated flow pulses. Callers hold m.mu.
func (m *MockController) startPulsesLocked() {
	m.stopPulsesLocked()
	stop := make(chan struct{})
	m.pulseStop = stop

	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.mu.Lock()
				m.pulses += m.pulsesPerTick
				m.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (m *MockController) stopPulsesLocked() {
	if m.pulseStop != nil {
		close(m.pulseStop)
		m.pulseStop = nil
	}
}

func (m *MockController) pushCalibration(cal state.CalibrationState) {
	go func() {
		time.Sleep(responseDelay)
		m.store.Update(func(st *state.AppState) { st.Calibration = cal })
	}()
}
