package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Smooother/poolheating/pkg/api/v1/types"
	"github.com/Smooother/poolheating/pkg/heatpump"
	"github.com/Smooother/poolheating/pkg/heatpump/dummy"
	"github.com/Smooother/poolheating/pkg/heatpump/fairland"
	"github.com/Smooother/poolheating/pkg/heatpump/tuya"
	"github.com/Smooother/poolheating/pkg/modbusclient"
	"github.com/Smooother/poolheating/pkg/version"
	"github.com/goburrow/modbus"
	"github.com/spf13/cobra"
)

func main() {
	var adapterType string
	var address string
	var deviceID string
	var server string
	var token string

	newAdapter := func() (heatpump.Adapter, error) {
		switch types.AdapterType(adapterType) {
		case types.AdapterTypeTuya:
			return tuya.New(server, token, deviceID), nil
		case types.AdapterTypeFairland:
			handler := modbus.NewTCPClientHandler(address)
			handler.SlaveId = 1
			return fairland.New(modbusclient.New(modbus.NewClient(handler), handler.Close), deviceID), nil
		case types.AdapterTypeDummy:
			return dummy.New(deviceID), nil
		}
		return nil, fmt.Errorf("unknown adapter type: %s", adapterType)
	}

	printStatus := func(ctx context.Context, a heatpump.Adapter) error {
		st, err := a.Status(ctx)
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(st.Map(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}

	rootCmd := &cobra.Command{
		Use:   "poolctl",
		Short: "Poke a pool heat pump directly, bypassing the controller",
	}
	rootCmd.PersistentFlags().StringVar(&adapterType, "adapter", "fairland", "adapter type (tuya|fairland|dummy)")
	rootCmd.PersistentFlags().StringVar(&address, "address", "", "modbus tcp address")
	rootCmd.PersistentFlags().StringVar(&deviceID, "device", "", "device id")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "vendor gateway url")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "vendor gateway token")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Read the current device status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newAdapter()
			if err != nil {
				return err
			}
			return printStatus(cmd.Context(), a)
		},
	}

	var temp float64
	var power string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Write a setpoint or power state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newAdapter()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("temp") && !cmd.Flags().Changed("power") {
				return fmt.Errorf("nothing to set, pass --temp or --power")
			}
			if cmd.Flags().Changed("temp") {
				err := a.SetSetpoint(cmd.Context(), temp)
				if err != nil {
					return err
				}
				fmt.Printf("setpoint set to %.1f\n", temp)
			}
			if cmd.Flags().Changed("power") {
				if power != "on" && power != "off" {
					return fmt.Errorf("power must be on or off, got %q", power)
				}
				err := a.SetPower(cmd.Context(), power == "on")
				if err != nil {
					return err
				}
				fmt.Println("power set to", power)
			}
			return nil
		},
	}
	setCmd.Flags().Float64Var(&temp, "temp", 0, "target setpoint in °C")
	setCmd.Flags().StringVar(&power, "power", "", "on or off")

	var every time.Duration
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the status every interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newAdapter()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tick := time.NewTicker(every)
			defer tick.Stop()
			for {
				err := printStatus(ctx, a)
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
				}
				select {
				case <-ctx.Done():
					return nil
				case <-tick.C:
				}
			}
		},
	}
	watchCmd.Flags().DurationVar(&every, "every", 10*time.Second, "poll interval")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Version)
		},
	}

	rootCmd.AddCommand(statusCmd, setCmd, watchCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
