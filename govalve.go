// Package govalve is a library for controlling multi-channel irrigation
// controllers over Bluetooth Low Energy. It provides device discovery, a
// generic Controller interface with a per-model implementation registry, and
// the protocol clients for flow-sensor calibration and two-stage device
// resets.
package govalve

import (
	"fmt"
	"strings"
	"sync"

	"github.com/loopholelabs/logging/types"
	"tinygo.org/x/bluetooth"

	"github.com/openwater/govalve/pkg/calibration"
	"github.com/openwater/govalve/pkg/reset"
	"github.com/openwater/govalve/pkg/state"
)

// FoundDevice is a controller discovered during scanning.
type FoundDevice struct {
	Name    string
	Address bluetooth.Address
	RSSI    int
}

// Controller is the generic interface for a BLE irrigation controller.
// Implementations handle communication with a specific device family.
type Controller interface {
	// Connect establishes the BLE connection and starts decoding device
	// notifications into the state store.
	Connect() error

	// Disconnect terminates the connection.
	Disconnect() error

	IsConnected() bool
	DeviceName() string
	DisplayName() string

	// Store is the observable state the device session decodes into.
	Store() *state.Store

	// Calibration returns the flow-sensor calibration client.
	Calibration() *calibration.Session

	// Reset returns the two-stage confirm/execute reset client.
	Reset() *reset.Session
}

// --- Implementation Registry ---

// Factory creates a new Controller instance for a discovered device.
type Factory func(*FoundDevice) Controller

var (
	registry = make(map[string]Factory)
	regLock  = sync.RWMutex{}

	pkgLog     types.Logger
	pkgLogLock sync.RWMutex
)

// SetLogger installs a process-wide logger for the discovery layer. Nil
// (the default) disables logging. Individual controllers take their own
// logger at construction.
func SetLogger(log types.Logger) {
	pkgLogLock.Lock()
	pkgLog = log
	pkgLogLock.Unlock()
}

func logger() types.Logger {
	pkgLogLock.RLock()
	defer pkgLogLock.RUnlock()
	return pkgLog
}

// Register makes a controller implementation available by its device name
// prefix. Call from the init() function of the implementation's package.
func Register(namePrefix string, factory Factory) {
	regLock.Lock()
	defer regLock.Unlock()

	if _, found := registry[namePrefix]; found {
		if log := logger(); log != nil {
			log.Warn().Str("prefix", namePrefix).Msg("controller implementation is being overwritten")
		}
	}
	registry[namePrefix] = factory
}

// NewControllerForDevice finds a registered factory matching the device name
// by prefix and creates a Controller for it. A device named "OASIS-8A3F"
// matches a registered "OASIS" prefix.
func NewControllerForDevice(device *FoundDevice) (Controller, error) {
	regLock.RLock()
	defer regLock.RUnlock()

	for prefix, factory := range registry {
		if strings.HasPrefix(device.Name, prefix) {
			return factory(device), nil
		}
	}

	return nil, fmt.Errorf("no implementation found for device '%s'", device.Name)
}
