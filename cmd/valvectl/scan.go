package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openwater/govalve"
)

var cmdScan = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby irrigation controllers",
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(cmdScan)
}

func runScan(_ *cobra.Command, _ []string) error {
	scanFor := time.Duration(cfg.Device.ScanSeconds) * time.Second
	fmt.Printf("Scanning for %s...\n", scanFor)

	devices, err := govalve.Scan(scanFor, cfg.Device.NamePrefix)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No controllers found.")
		return nil
	}

	fmt.Printf("%-24s %-20s %s\n", "NAME", "ADDRESS", "RSSI")
	for _, d := range devices {
		fmt.Printf("%-24s %-20s %d dBm\n", d.Name, d.Address.String(), d.RSSI)
	}
	return nil
}
