package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var cmdCalibrate = &cobra.Command{
	Use:   "calibrate",
	Short: "Run a guided flow-sensor calibration",
	Long: `Starts pulse counting on the device, waits while you dispense a measured
volume of water, then computes and optionally applies the pulses-per-liter rate.`,
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(cmdCalibrate)
}

func runCalibrate(_ *cobra.Command, _ []string) error {
	ctrl, err := connectController()
	if err != nil {
		return err
	}
	defer ctrl.Disconnect()

	ctx := context.Background()
	cal := ctrl.Calibration()
	in := bufio.NewReader(os.Stdin)

	fmt.Printf("Dispense roughly %d ml of water, then enter the measured volume.\n", cfg.Calibration.VolumeML)
	if err := cal.Start(ctx); err != nil {
		return fmt.Errorf("could not start calibration: %w", err)
	}
	fmt.Println("Counting pulses...")

	fmt.Print("Measured volume (ml): ")
	line, err := in.ReadString('\n')
	if err != nil {
		_ = cal.Stop(ctx)
		return fmt.Errorf("could not read volume: %w", err)
	}
	volume, err := strconv.ParseUint(strings.TrimSpace(line), 10, 32)
	if err != nil {
		_ = cal.Stop(ctx)
		return fmt.Errorf("invalid volume %q: %w", strings.TrimSpace(line), err)
	}

	res, err := cal.Finish(ctx, uint32(volume))
	if err != nil {
		_ = cal.Stop(ctx)
		return err
	}
	fmt.Printf("Counted %d pulses over %s: %d pulses/liter.\n",
		res.Pulses, cal.Elapsed().Round(time.Second), res.PulsesPerLiter)

	fmt.Print("Apply this rate? [y/N]: ")
	answer, _ := in.ReadString('\n')
	if strings.ToLower(strings.TrimSpace(answer)) != "y" {
		fmt.Println("Discarded.")
		return cal.Stop(ctx)
	}

	applied, err := cal.Apply(ctx)
	if err != nil {
		return fmt.Errorf("could not apply rate: %w", err)
	}
	fmt.Printf("Applied %d pulses/liter.\n", applied.PulsesPerLiter)
	return nil
}
