package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openwater/govalve/pkg/comms"
	"github.com/openwater/govalve/pkg/state"
)

var resetKinds = map[string]comms.ResetOpcode{
	"channel-config":   comms.ResetChannelConfig,
	"channel-schedule": comms.ResetChannelSchedule,
	"all-configs":      comms.ResetAllConfigs,
	"all-schedules":    comms.ResetAllSchedules,
	"system-config":    comms.ResetSystemConfig,
	"history":          comms.ResetHistory,
	"factory":          comms.FactoryReset,
}

var (
	resetChannel int
	resetYes     bool
)

var cmdReset = &cobra.Command{
	Use:       "reset <kind>",
	Short:     "Wipe device configuration, schedules or history",
	Long:      "Requests a confirmation code from the device, then executes the reset with it.\n\nKinds: " + strings.Join(resetKindNames(), ", "),
	Args:      cobra.ExactArgs(1),
	ValidArgs: resetKindNames(),
	RunE:      runReset,
}

func init() {
	cmdReset.Flags().IntVar(&resetChannel, "channel", -1, "Zone channel (0-7), required for channel-scoped resets")
	cmdReset.Flags().BoolVarP(&resetYes, "yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(cmdReset)
}

func resetKindNames() []string {
	names := make([]string, 0, len(resetKinds))
	for name := range resetKinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runReset(_ *cobra.Command, args []string) error {
	op, ok := resetKinds[args[0]]
	if !ok {
		return fmt.Errorf("unknown reset kind %q (one of: %s)", args[0], strings.Join(resetKindNames(), ", "))
	}

	channel := byte(0)
	if op.ChannelScoped() {
		if resetChannel < 0 || resetChannel >= state.ZoneCount {
			return fmt.Errorf("%s requires --channel 0-%d", op, state.ZoneCount-1)
		}
		channel = byte(resetChannel)
	}

	ctrl, err := connectController()
	if err != nil {
		return err
	}
	defer ctrl.Disconnect()

	ctx := context.Background()
	rst := ctrl.Reset()

	code, err := rst.RequestConfirmationCode(ctx, op, channel)
	if err != nil {
		return fmt.Errorf("could not obtain confirmation code: %w", err)
	}
	fmt.Printf("Device issued confirmation code %08X for %s (valid for %s).\n", code, op, comms.ConfirmationValidity)

	if !resetYes {
		fmt.Print("This cannot be undone. Proceed? [y/N]: ")
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var cancelProgress func()
	if op == comms.FactoryReset {
		cancelProgress = ctrl.Store().Subscribe(func(st state.AppState) {
			rc := st.ResetControl
			if rc.Status == state.ResetInProgress {
				fmt.Printf("  wiping %s (%d%%)\n", rc.WipeStep, rc.ProgressPct)
			}
		})
	}
	if err := rst.ExecuteWithCode(ctx, op, channel, code); err != nil {
		if cancelProgress != nil {
			cancelProgress()
		}
		return err
	}
	if cancelProgress != nil {
		cancelProgress()
	}
	fmt.Println("Reset completed.")
	return nil
}
