package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/logging/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/openwater/govalve"
	"github.com/openwater/govalve/pkg/comms/transport"
	"github.com/openwater/govalve/pkg/controllers/mock"

	// Register all controller implementations.
	_ "github.com/openwater/govalve/pkg/controllers/all"
)

var (
	rootCmd = &cobra.Command{
		Use:           "valvectl",
		Short:         "Control BLE irrigation controllers.",
		Long:          ``,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cfgPath     string
	debug       bool
	metricsAddr string
	useMock     bool

	cfg Config
	log types.RootLogger
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to TOML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics", "", "Serve prometheus metrics on this address")
	rootCmd.PersistentFlags().BoolVar(&useMock, "mock", false, "Use the simulated controller instead of scanning")
	rootCmd.PersistentPreRunE = setup
}

func setup(_ *cobra.Command, _ []string) error {
	log = logging.New(logging.Zerolog, "valvectl", os.Stderr)
	if debug {
		log.SetLevel(types.DebugLevel)
	} else {
		log.SetLevel(types.WarnLevel)
	}
	govalve.SetLogger(log)

	var err error
	cfg, err = LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	if useMock {
		cfg.Device.Mock = true
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	if cfg.Metrics.Addr != "" {
		transport.RegisterMetrics()
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, nil); err != nil {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}
	return nil
}

// connectController scans for the configured device and connects, or hands
// back a connected mock when requested.
func connectController() (govalve.Controller, error) {
	if cfg.Device.Mock {
		ctrl := mock.NewWithLogger(&govalve.FoundDevice{Name: "MOCK-valvectl"}, log)
		if err := ctrl.Connect(); err != nil {
			return nil, err
		}
		return ctrl, nil
	}

	scanFor := time.Duration(cfg.Device.ScanSeconds) * time.Second
	devices, err := govalve.Scan(scanFor, cfg.Device.NamePrefix)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no controller matching %q found in %s", cfg.Device.NamePrefix, scanFor)
	}

	best := devices[0]
	for _, d := range devices[1:] {
		if d.RSSI > best.RSSI {
			best = d
		}
	}

	ctrl, err := govalve.NewControllerForDevice(&best)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Connecting to %s (%s)...\n", best.Name, best.Address.String())
	if err := ctrl.Connect(); err != nil {
		return nil, err
	}
	return ctrl, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
