// Package oasis implements govalve.Controller for the OASIS family of 8-zone
// irrigation controllers.
package oasis

import (
	"context"
	"errors"
	"fmt"

	"github.com/loopholelabs/logging/types"
	"tinygo.org/x/bluetooth"

	"github.com/openwater/govalve"
	"github.com/openwater/govalve/pkg/calibration"
	"github.com/openwater/govalve/pkg/comms/transport"
	"github.com/openwater/govalve/pkg/reset"
	"github.com/openwater/govalve/pkg/state"
)

var (
	OasisServiceUUID, _     = bluetooth.ParseUUID("6e400fb0-b5a3-f393-e0a9-e50e24dcca9e")
	OasisCommandCharUUID, _ = bluetooth.ParseUUID("6e400fb1-b5a3-f393-e0a9-e50e24dcca9e")
	OasisNotifyCharUUID, _  = bluetooth.ParseUUID("6e400fb2-b5a3-f393-e0a9-e50e24dcca9e")
)

func init() {
	govalve.Register("OASIS", New)
}

// This line is the compile-time check. It will fail to compile if
// *OasisController ever stops satisfying the govalve.Controller interface.
var _ govalve.Controller = (*OasisController)(nil)

type OasisController struct {
	name           string
	address        bluetooth.Address
	disconnectCtx  context.Context
	disconnectFunc context.CancelFunc
	connected      bool

	btDevice   bluetooth.Device
	writeChar  bluetooth.DeviceCharacteristic
	notifyChar bluetooth.DeviceCharacteristic

	store       *state.Store
	reassembler *transport.Reassembler
	fragmenter  *transport.Fragmenter
	calib       *calibration.Session
	resetClient *reset.Session

	log types.Logger
}

func New(device *govalve.FoundDevice) govalve.Controller {
	return NewWithLogger(device, nil)
}

// NewWithLogger builds an OASIS controller with a logger. log may be nil.
func NewWithLogger(device *govalve.FoundDevice, log types.Logger) *OasisController {
	c := &OasisController{
		name:        device.Name,
		address:     device.Address,
		store:       state.NewStore(),
		reassembler: transport.NewReassembler(log),
		fragmenter:  transport.NewFragmenter(log),
		log:         log,
	}
	return c
}

// Connect establishes the BLE connection, wires up notifications, and starts
// decoding device state into the store.
func (c *OasisController) Connect() error {
	if err := govalve.TryEnableAdapter(); err != nil {
		return err
	}

	c.disconnectCtx, c.disconnectFunc = context.WithCancel(context.Background())

	var err error
	c.btDevice, err = govalve.BTAdapter.Connect(c.address, bluetooth.ConnectionParams{})
	if err != nil {
		return err
	}

	if err := c.setupCharacteristics(); err != nil {
		_ = c.Disconnect()
		return err
	}

	if err := c.notifyChar.EnableNotifications(c.handleNotification); err != nil {
		_ = c.Disconnect()
		return fmt.Errorf("failed to enable notifications: %w", err)
	}

	c.calib = calibration.NewSession(&c.writeChar, c.fragmenter, c.store, c.log)
	c.resetClient = reset.NewSession(&c.writeChar, c.fragmenter, c.store, c.log)

	c.connected = true
	c.store.Update(func(st *state.AppState) { st.Connected = true })
	return nil
}

func (c *OasisController) Disconnect() error {
	if c.disconnectFunc != nil {
		c.disconnectFunc()
	}
	c.connected = false
	c.store.Update(func(st *state.AppState) { st.Connected = false })
	return c.btDevice.Disconnect()
}

func (c *OasisController) IsConnected() bool {
	return c.connected
}

func (c *OasisController) DeviceName() string {
	return c.name
}

func (c *OasisController) DisplayName() string {
	return "OASIS irrigation controller"
}

func (c *OasisController) Store() *state.Store {
	return c.store
}

func (c *OasisController) Calibration() *calibration.Session {
	return c.calib
}

func (c *OasisController) Reset() *reset.Session {
	return c.resetClient
}

func (c *OasisController) setupCharacteristics() error {
	services, err := c.btDevice.DiscoverServices([]bluetooth.UUID{OasisServiceUUID})
	if err != nil {
		return fmt.Errorf("could not discover services: %w", err)
	}
	if len(services) == 0 {
		return errors.New("could not find the OASIS BT service")
	}

	for _, service := range services {
		chars, err := service.DiscoverCharacteristics([]bluetooth.UUID{
			OasisCommandCharUUID,
			OasisNotifyCharUUID,
		})
		if err != nil || len(chars) != 2 {
			return fmt.Errorf("could not discover characteristics: %w", err)
		}

		for _, char := range chars {
			if char.UUID() == OasisCommandCharUUID {
				c.writeChar = char
			}
			if char.UUID() == OasisNotifyCharUUID {
				c.notifyChar = char
			}
		}
	}

	return nil
}

// handleNotification is the callback for all incoming BLE data. A single
// callback may carry a complete payload or one fragment of a larger one; the
// reassembler sorts that out.
func (c *OasisController) handleNotification(buf []byte) {
	res := c.reassembler.Handle(c.name, buf)
	if !res.Complete {
		return
	}
	c.decode(res)
}
