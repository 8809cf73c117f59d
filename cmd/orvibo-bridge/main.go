// Orvibo-bridge terminates the cloud protocol of Orvibo curtain and blind
// motors on the local network.
//
// Devices whose DNS points at this host connect over TCP, complete the
// encrypted hello and handshake, and then report heartbeats and state. The
// bridge tracks every device, publishes typed events and accepts orders
// through a small HTTP control API, which orvibo-ctl uses.
//
// Usage:
//
//	orvibo-bridge serve [flags]
//
// See 'orvibo-bridge serve --help' for available options.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/orvibo-bridge/internal/api"
	"github.com/muurk/orvibo-bridge/internal/config"
	"github.com/muurk/orvibo-bridge/internal/discovery"
	"github.com/muurk/orvibo-bridge/internal/events"
	"github.com/muurk/orvibo-bridge/internal/logging"
	"github.com/muurk/orvibo-bridge/internal/server"
	"github.com/muurk/orvibo-bridge/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "orvibo-bridge",
	Short: "Orvibo device bridge",
	Long: `A local replacement for the Orvibo cloud endpoint.

Orvibo curtain and blind motors connect to the bridge over TCP on port 10001.
The bridge keeps a session per device, tracks the reported state and lets
local clients send open, close and stop orders through the control API.

Use the separate 'orvibo-ctl' utility to list devices, send orders and
watch events.`,
	Version: version.Version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Serve command flags
var (
	configPath string
	key        string
	host       string
	port       int
	apiAddr    string
	logLevel   string
	logPackets bool
	noAdvert   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge",
	Long: `Start accepting device connections and serve the control API.

The pre-shared key is read from the config file, the ORVIBO_KEY environment
variable or the --key flag, in increasing order of precedence. The bridge
refuses to start without a 16 byte key.`,
	Example: `  # Start with the default config file
  orvibo-bridge serve

  # Start with an explicit key and verbose logging
  orvibo-bridge serve --key khggd54865SNJHGF --log-level debug

  # Log every decrypted payload
  orvibo-bridge serve --log-packets

  # Expose the control API on all interfaces
  orvibo-bridge serve --api 0.0.0.0:8089`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to config file (default: user config dir)")
	serveCmd.Flags().StringVar(&key, "key", "", "16 byte pre-shared key (overrides config and ORVIBO_KEY)")
	serveCmd.Flags().StringVar(&host, "host", "", "Device listener host (empty = all interfaces)")
	serveCmd.Flags().IntVar(&port, "port", 0, "Device listener port (default 10001)")
	serveCmd.Flags().StringVar(&apiAddr, "api", "", "Control API address (default 127.0.0.1:8089)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&logPackets, "log-packets", false, "Log decrypted payloads")
	serveCmd.Flags().BoolVar(&noAdvert, "no-advertise", false, "Do not advertise the bridge over mDNS")
}

// loadConfig applies flags on top of the config file
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("key") {
		cfg.PreSharedKey = key
	}
	if flags.Changed("host") {
		cfg.Listen.Host = host
	}
	if flags.Changed("port") {
		cfg.Listen.Port = port
	}
	if flags.Changed("api") {
		cfg.API.Addr = apiAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-packets") {
		cfg.LogPackets = logPackets
	}
	if noAdvert {
		cfg.Advertise = false
	}

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrMissingKey) {
			return nil, fmt.Errorf("%w (set pre_shared_key, %s or --key)", err, config.KeyEnvVar)
		}
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := logging.Initialize(cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	defer bus.Close()

	srv, err := server.New(&server.Config{
		Host:         cfg.Listen.Host,
		Port:         cfg.Listen.Port,
		PreSharedKey: cfg.PreSharedKey,
		KeepAlive:    cfg.Listen.KeepAlive,
		Nicknames:    cfg.Nicknames(),
		LogPackets:   cfg.LogPackets,
	}, bus)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logging.Info("Starting orvibo-bridge",
		zap.String("version", version.Full()),
		zap.String("listen", cfg.Listen.Addr()),
		zap.String("api", cfg.API.Addr),
	)

	if cfg.Advertise {
		advertiser, err := discovery.Advertise(discovery.Advertisement{
			Port:    cfg.Listen.Port,
			APIPort: apiPort(cfg.API.Addr),
			Version: version.Version,
		})
		if err != nil {
			logging.Warn("mDNS advertisement disabled", zap.Error(err))
		} else {
			defer advertiser.Shutdown()
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("device listener: %w", err)
		}
		return nil
	})

	if cfg.API.Addr != "" {
		apiServer := api.NewServer(srv, bus)
		g.Go(func() error {
			if err := apiServer.Start(gctx, cfg.API.Addr); err != nil {
				return fmt.Errorf("control API: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("Shutting down")
		// Ends the API event streams so the HTTP server can drain
		bus.Close()
		return nil
	})

	return g.Wait()
}

// apiPort extracts the port of the control API address, 0 when unset
func apiPort(addr string) int {
	if addr == "" {
		return 0
	}
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0
	}
	return n
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("orvibo-bridge %s (commit: %s)\n", version.Version, version.Commit)
	},
}
