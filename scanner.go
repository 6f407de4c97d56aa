package govalve

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// ScanStream returns a channel that streams FoundDevice as controllers are
// discovered, and stops scanning when the context is canceled. Each device
// is reported once.
func ScanStream(ctx context.Context, customPrefixes ...string) (<-chan FoundDevice, error) {
	if err := TryEnableAdapter(); err != nil {
		return nil, err
	}

	prefixesToScan := getPrefixes(customPrefixes...)
	if len(prefixesToScan) == 0 {
		return nil, errors.New("no implementations registered and no custom prefixes provided")
	}

	deviceChan := make(chan FoundDevice)

	go func() {
		defer close(deviceChan)

		mu := sync.Mutex{}
		seen := make(map[string]bool)

		if log := logger(); log != nil {
			log.Info().Str("prefixes", strings.Join(prefixesToScan, ",")).Msg("starting BLE scan")
		}

		handler := func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			name := result.LocalName()
			if name == "" {
				return // Ignore packets without a name.
			}

			mu.Lock()
			defer mu.Unlock()

			for _, prefix := range prefixesToScan {
				if strings.HasPrefix(name, prefix) && !seen[result.Address.String()] {
					seen[result.Address.String()] = true
					deviceChan <- FoundDevice{
						Name:    name,
						Address: result.Address,
						RSSI:    int(result.RSSI),
					}
					break
				}
			}
		}

		if err := BTAdapter.Scan(handler); err != nil {
			if log := logger(); log != nil {
				log.Error().Err(err).Msg("error starting scan")
			}
			return
		}

		<-ctx.Done()

		if err := BTAdapter.StopScan(); err != nil {
			if log := logger(); log != nil {
				log.Warn().Err(err).Msg("error stopping scan")
			}
		}
	}()

	return deviceChan, nil
}

// Scan finds controllers with given name prefixes, blocking for duration.
// With no custom prefixes, the prefixes of all registered implementations
// are used.
func Scan(duration time.Duration, customPrefixes ...string) ([]FoundDevice, error) {
	if err := TryEnableAdapter(); err != nil {
		return nil, err
	}

	prefixesToScan := getPrefixes(customPrefixes...)
	if len(prefixesToScan) == 0 {
		return nil, errors.New("no implementations registered and no custom prefixes provided")
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	mu := sync.Mutex{}
	foundDevices := make(map[string]FoundDevice)

	if log := logger(); log != nil {
		log.Info().Str("prefixes", strings.Join(prefixesToScan, ",")).Msg("scanning for controllers")
	}

	handler := func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		name := result.LocalName()
		if name == "" {
			return
		}

		for _, prefix := range prefixesToScan {
			if strings.HasPrefix(name, prefix) {
				mu.Lock()
				foundDevices[result.Address.String()] = FoundDevice{
					Name:    name,
					Address: result.Address,
					RSSI:    int(result.RSSI),
				}
				mu.Unlock()
				break
			}
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	scanErrChan := make(chan error, 1)

	go func() {
		defer wg.Done()
		if err := BTAdapter.Scan(handler); err != nil {
			scanErrChan <- err
		}
	}()

	<-ctx.Done()

	if err := BTAdapter.StopScan(); err != nil {
		if log := logger(); log != nil {
			log.Warn().Err(err).Msg("failed to stop scan cleanly")
		}
	}

	wg.Wait()
	close(scanErrChan)

	if scanErr := <-scanErrChan; scanErr != nil {
		return nil, scanErr
	}

	mu.Lock()
	defer mu.Unlock()
	results := make([]FoundDevice, 0, len(foundDevices))
	for _, device := range foundDevices {
		results = append(results, device)
	}

	if log := logger(); log != nil {
		log.Info().Int("devices", len(results)).Msg("scan finished")
	}
	return results, nil
}

// getPrefixes helper function, provide prefixes in addition to registered
// controller prefixes
func getPrefixes(customPrefixes ...string) []string {
	if len(customPrefixes) > 0 {
		return customPrefixes
	}
	regLock.RLock()
	defer regLock.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	return keys
}
