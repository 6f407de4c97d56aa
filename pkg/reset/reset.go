// Package reset drives the controller's two-stage confirm/execute reset
// protocol: request a time-limited confirmation code for a destructive
// operation, then echo it back to execute. The two stages are exposed both
// combined (Perform) and split, for callers that show the code to the user
// before committing.
package reset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/loopholelabs/logging/types"

	"github.com/openwater/govalve/pkg/comms"
	"github.com/openwater/govalve/pkg/comms/frame"
	"github.com/openwater/govalve/pkg/comms/transport"
	"github.com/openwater/govalve/pkg/state"
)

// Progress is the local view of where a reset attempt is.
type Progress uint8

const (
	ProgressIdle Progress = iota
	ProgressWaitingConfirmation
	ProgressExecuting
)

func (p Progress) String() string {
	switch p {
	case ProgressIdle:
		return "idle"
	case ProgressWaitingConfirmation:
		return "waiting for confirmation"
	case ProgressExecuting:
		return "executing"
	default:
		return fmt.Sprintf("unknown (%d)", uint8(p))
	}
}

var (
	// ErrChannelRequired is returned locally, before any device contact,
	// when a channel-scoped opcode is missing a valid channel.
	ErrChannelRequired = errors.New("channel-scoped reset requires a channel between 0 and 7")
	// ErrNoConfirmation means the device never issued a confirmation code.
	ErrNoConfirmation = errors.New("no confirmation code received")
	// ErrCompletionTimeout means the reset never reported completion.
	ErrCompletionTimeout = errors.New("timeout waiting for reset completion")
)

type attempt struct {
	op      comms.ResetOpcode
	channel byte
	code    uint32
}

// Session is the reset protocol client.
type Session struct {
	w     transport.Writer
	frag  *transport.Fragmenter
	store *state.Store
	log   types.Logger

	mu       sync.Mutex
	pending  *attempt
	progress Progress
}

// NewSession builds a reset client over the given write characteristic and
// state store. log may be nil.
func NewSession(w transport.Writer, frag *transport.Fragmenter, store *state.Store, log types.Logger) *Session {
	return &Session{
		w:     w,
		frag:  frag,
		store: store,
		log:   log,
	}
}

// Progress returns the local attempt progress.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Perform runs both stages back to back: request a confirmation code for
// (op, channel), then execute with it. channel is 0-7 for channel-scoped
// opcodes and frame.ChannelAllZones otherwise.
func (s *Session) Perform(ctx context.Context, op comms.ResetOpcode, channel byte) error {
	code, err := s.RequestConfirmationCode(ctx, op, channel)
	if err != nil {
		return err
	}
	return s.ExecuteWithCode(ctx, op, channel, code)
}

// RequestConfirmationCode asks the device for a confirmation code and waits
// for it to land in the reset control state. The code is only valid for this
// exact (op, channel) pair, and only for the device's validity window.
func (s *Session) RequestConfirmationCode(ctx context.Context, op comms.ResetOpcode, channel byte) (uint32, error) {
	defer s.clearPending()

	channel, err := normalizeChannel(op, channel)
	if err != nil {
		return 0, err
	}

	s.setPending(op, channel, 0, ProgressWaitingConfirmation)
	if err := s.send(ctx, comms.BuildResetRequestCommand(op, channel)); err != nil {
		return 0, err
	}

	wctx, cancel := context.WithTimeout(ctx, comms.ConfirmationWait)
	defer cancel()
	snap, err := s.store.Wait(wctx, func(st state.AppState) bool {
		rc := st.ResetControl
		return rc.Status == state.ResetPending &&
			rc.ResetType == op &&
			rc.ChannelID == channel &&
			rc.ConfirmationCode != 0
	})
	if err != nil {
		return 0, fmt.Errorf("%w for %s", ErrNoConfirmation, op)
	}

	code := snap.ResetControl.ConfirmationCode
	if s.log != nil {
		s.log.Debug().Str("op", op.String()).Int("channel", int(channel)).Msg("confirmation code received")
	}
	return code, nil
}

// ExecuteWithCode sends the second-stage command carrying a previously
// obtained confirmation code and waits for the reset to complete. During a
// factory reset the store reports wipe progress, observable by callers, but
// only the final idle status decides the outcome here.
func (s *Session) ExecuteWithCode(ctx context.Context, op comms.ResetOpcode, channel byte, code uint32) error {
	defer s.clearPending()

	channel, err := normalizeChannel(op, channel)
	if err != nil {
		return err
	}

	s.setPending(op, channel, code, ProgressExecuting)
	if err := s.send(ctx, comms.BuildResetExecuteCommand(op, channel, code)); err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, comms.ResetCompletionWait)
	defer cancel()
	if _, err := s.store.Wait(wctx, func(st state.AppState) bool {
		return st.ResetControl.Status == state.ResetIdle
	}); err != nil {
		return fmt.Errorf("%w (%s)", ErrCompletionTimeout, op)
	}

	if s.log != nil {
		s.log.Info().Str("op", op.String()).Msg("reset completed")
	}
	return nil
}

func (s *Session) send(ctx context.Context, payload []byte) error {
	if err := s.frag.WriteFragmented(ctx, s.w, frame.ChannelDeviceGlobal, payload); err != nil {
		return comms.ClassifyDeviceError(err)
	}
	return nil
}

func (s *Session) setPending(op comms.ResetOpcode, channel byte, code uint32, progress Progress) {
	s.mu.Lock()
	s.pending = &attempt{op: op, channel: channel, code: code}
	s.progress = progress
	s.mu.Unlock()
}

// clearPending drops the pending-attempt tracking on every exit path so that
// a failed attempt never blocks the next one.
func (s *Session) clearPending() {
	s.mu.Lock()
	s.pending = nil
	s.progress = ProgressIdle
	s.mu.Unlock()
}

func normalizeChannel(op comms.ResetOpcode, channel byte) (byte, error) {
	if op.ChannelScoped() {
		if channel >= state.ZoneCount {
			return 0, fmt.Errorf("%w: got 0x%02X for %s", ErrChannelRequired, channel, op)
		}
		return channel, nil
	}
	return frame.ChannelAllZones, nil
}
