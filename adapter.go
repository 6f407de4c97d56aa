package govalve

import (
	"sync"

	"tinygo.org/x/bluetooth"
)

// BTAdapter is the Bluetooth adapter used for scanning and connecting.
var BTAdapter = bluetooth.DefaultAdapter

var (
	enableOnce sync.Once
	enableErr  error
)

// TryEnableAdapter enables the Bluetooth adapter once per process. Safe to
// call from every code path that needs the adapter.
func TryEnableAdapter() error {
	enableOnce.Do(func() {
		enableErr = BTAdapter.Enable()
	})
	return enableErr
}
