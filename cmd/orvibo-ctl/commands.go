package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/orvibo-bridge/internal/api"
	"github.com/muurk/orvibo-bridge/internal/config"
	"github.com/muurk/orvibo-bridge/internal/discovery"
	"github.com/muurk/orvibo-bridge/internal/monitor"
	"github.com/muurk/orvibo-bridge/internal/protocol"
	"github.com/muurk/orvibo-bridge/internal/server"
)

// Common flags
var (
	apiAddr      string
	outputFormat string
	scanTimeout  int
)

// Order command flags
var orderValues protocol.OrderValues

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "", "Bridge control API address (skips discovery)")
	rootCmd.PersistentFlags().IntVar(&scanTimeout, "timeout", 3, "Discovery timeout in seconds")

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(scanCmd)
}

// devicesCmd lists devices known to the bridge
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices known to the bridge",
	Long: `List every device that has identified with the bridge since it started,
including devices that are currently offline.`,
	Example: `  # Table output
  orvibo-ctl devices

  # JSON output for scripting
  orvibo-ctl devices --format json --api 127.0.0.1:8089`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format (table, json)")
}

func runDevices(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, err := newClient(ctx)
	if err != nil {
		return err
	}

	devices, err := client.Devices(ctx)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		data, err := json.MarshalIndent(devices, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
	case "table":
		if len(devices) == 0 {
			fmt.Println("No devices have connected yet.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "UID\tNAME\tMODEL\tSTATE\tSTATUS\tLAST SEEN")
		for _, d := range devices {
			status := "offline"
			if d.Online {
				status = "online"
			}
			seen := "-"
			if !d.LastSeen.IsZero() {
				seen = d.LastSeen.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", d.UID, d.Name, d.ModelID, d.State, status, seen)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown format %q (expected table or json)", outputFormat)
	}
	return nil
}

// orderCmd sends an order to one device
var orderCmd = &cobra.Command{
	Use:   "order <uid> <order>",
	Short: "Send an order to a device",
	Long: `Send a set order to a connected device.

Common orders are "open", "close" and "stop". The optional values are passed
through to the device unchanged; most motors ignore them.`,
	Example: `  # Open a blind
  orvibo-ctl order abc123 open

  # Close with an explicit first value
  orvibo-ctl order abc123 close --value1 50`,
	Args: cobra.ExactArgs(2),
	RunE: runOrder,
}

func init() {
	orderCmd.Flags().IntVar(&orderValues.Value1, "value1", 0, "First order value")
	orderCmd.Flags().IntVar(&orderValues.Value2, "value2", 0, "Second order value")
	orderCmd.Flags().IntVar(&orderValues.Value3, "value3", 0, "Third order value")
	orderCmd.Flags().IntVar(&orderValues.Value4, "value4", 0, "Fourth order value")
}

func runOrder(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, err := newClient(ctx)
	if err != nil {
		return err
	}

	uid, order := args[0], args[1]
	if err := client.SendOrder(ctx, uid, order, orderValues); err != nil {
		if errors.Is(err, server.ErrNoSuchDevice) {
			return fmt.Errorf("device %s is not connected (see 'orvibo-ctl devices')", uid)
		}
		return err
	}

	fmt.Printf("✓ Sent %s to %s\n", order, uid)
	return nil
}

// monitorCmd shows the live dashboard
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch devices and events live",
	Long: `Show a live dashboard of devices and bridge events.

Select a device with the arrow keys and press o, c or s to open, close or
stop it. When stdout is not a terminal, events are printed one per line.`,
	Example: `  # Interactive dashboard
  orvibo-ctl monitor

  # Log events to a file
  orvibo-ctl monitor --api 127.0.0.1:8089 > events.log`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, err := newClient(ctx)
	if err != nil {
		return err
	}

	stream, err := client.Events(ctx)
	if err != nil {
		return err
	}

	if !monitor.IsTerminal() {
		return monitor.RunPlain(ctx, stream, os.Stdout)
	}
	return monitor.Run(ctx, client, stream, apiAddr)
}

// scanCmd discovers bridges on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for bridges on the network",
	Long: `Scan for orvibo-bridge instances using mDNS/DNS-SD discovery.

Bridges advertise the device port and, when enabled, the control API port.`,
	Example: `  # Quick scan (default 3 seconds)
  orvibo-ctl scan

  # Longer scan for slow networks
  orvibo-ctl scan --timeout 10`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Scanning for bridges (timeout: %ds)...\n\n", scanTimeout)

	bridges, err := discovery.ScanForBridges(ctx, time.Duration(scanTimeout)*time.Second)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(bridges) == 0 {
		fmt.Println("No bridges found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure orvibo-bridge is running without --no-advertise")
		fmt.Println("  - Check that multicast is allowed on this network")
		fmt.Println("  - Try increasing --timeout")
		fmt.Println("  - Use --api to specify the bridge address manually")
		return nil
	}

	fmt.Printf("Found %d bridge(s):\n\n", len(bridges))
	for i, b := range bridges {
		fmt.Printf("%d. %s\n", i+1, b.Instance)
		fmt.Printf("   Host:    %s\n", b.Hostname)
		fmt.Printf("   Devices: %s\n", b.DeviceAddr())
		if u := b.APIURL(); u != "" {
			fmt.Printf("   API:     %s\n", u)
		}
		if b.Version != "" {
			fmt.Printf("   Version: %s\n", b.Version)
		}
		fmt.Println()
	}
	return nil
}

// newClient resolves the bridge address and returns an API client. Without
// --api the first advertised bridge is used, then the default local address.
func newClient(ctx context.Context) (*api.Client, error) {
	if apiAddr == "" {
		scanner := discovery.NewScanner()
		scanner.Timeout = time.Duration(scanTimeout) * time.Second
		bridge, err := scanner.FindBridge(ctx)
		if err == nil && bridge.APIURL() != "" {
			apiAddr = bridge.APIURL()
		} else {
			apiAddr = config.DefaultAPIAddr
			fmt.Fprintf(os.Stderr, "No bridge advertised, using %s\n", apiAddr)
		}
	}
	return api.NewClient(apiAddr)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
