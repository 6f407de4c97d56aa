package comms

import (
	"errors"
	"fmt"
	"strings"
)

// Conditions the controller reports, surfaced as short actionable messages.
var (
	ErrNoPulses           = errors.New("no pulses counted")
	ErrConfirmCodeInvalid = errors.New("confirmation code incorrect")
	ErrConfirmCodeExpired = errors.New("confirmation code expired")
	ErrStorage            = errors.New("device storage error")
	ErrNotConnected       = errors.New("not connected")
)

// Status codes carried in the unified header status byte and in structured
// device errors.
const (
	StatusOK                 byte = 0x00
	StatusNoPulses           byte = 0x01
	StatusConfirmCodeInvalid byte = 0x02
	StatusConfirmCodeExpired byte = 0x03
	StatusStorageError       byte = 0x04
	StatusNotConnected       byte = 0x05
)

// DeviceError is a structured failure reported by the controller itself,
// carrying the status code from the rejected command.
type DeviceError struct {
	Code byte
	Op   string
}

func (e *DeviceError) Error() string {
	if cause := causeForStatus(e.Code); cause != nil {
		return fmt.Sprintf("%s: %v", e.Op, cause)
	}
	return fmt.Sprintf("%s: device error 0x%02X", e.Op, e.Code)
}

func (e *DeviceError) Unwrap() error {
	return causeForStatus(e.Code)
}

func causeForStatus(code byte) error {
	switch code {
	case StatusNoPulses:
		return ErrNoPulses
	case StatusConfirmCodeInvalid:
		return ErrConfirmCodeInvalid
	case StatusConfirmCodeExpired:
		return ErrConfirmCodeExpired
	case StatusStorageError:
		return ErrStorage
	case StatusNotConnected:
		return ErrNotConnected
	default:
		return nil
	}
}

// ClassifyDeviceError resolves an error from the transport into one of the
// sentinel causes above. Structured DeviceError codes are matched first; the
// substring matching below only exists for legacy error channels that carry
// nothing but text.
func ClassifyDeviceError(err error) error {
	if err == nil {
		return nil
	}
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		if cause := causeForStatus(devErr.Code); cause != nil {
			return fmt.Errorf("%s: %w", devErr.Op, cause)
		}
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no pulses"):
		return fmt.Errorf("%w: %v", ErrNoPulses, err)
	case strings.Contains(msg, "code incorrect"), strings.Contains(msg, "invalid code"):
		return fmt.Errorf("%w: %v", ErrConfirmCodeInvalid, err)
	case strings.Contains(msg, "expired"):
		return fmt.Errorf("%w: %v", ErrConfirmCodeExpired, err)
	case strings.Contains(msg, "storage"):
		return fmt.Errorf("%w: %v", ErrStorage, err)
	case strings.Contains(msg, "not connected"), strings.Contains(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	default:
		return err
	}
}
