package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codefionn/wifichat/internal/config"
	"github.com/codefionn/wifichat/internal/lockfile"
	"github.com/codefionn/wifichat/internal/logger"
	"github.com/codefionn/wifichat/internal/node"
	"github.com/spf13/cobra"
)

var (
	configFile string
	deviceName string
	port       int
	uiAddr     string
	logLevel   string
	noConsole  bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "wifichat",
	Short: "Group chat over a local peer-to-peer network",
	Long: `wifichat runs one chat device of a peer-to-peer group.

The group owner accepts members with 'wifichat serve'; members connect with
'wifichat join <host>'. Every chat line is relayed by the group owner to the
other members and acknowledged back to its sender. Once the group owner has
shared its roster, members fall back to direct links when the group owner is
gone.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.GetConfigPath(), "Configuration file (JSON)")
	rootCmd.PersistentFlags().StringVar(&deviceName, "name", "", "Device name shown as sender")
	rootCmd.PersistentFlags().IntVar(&port, "port", -1, "Group owner port")
	rootCmd.PersistentFlags().StringVar(&uiAddr, "ui-addr", "", "Web UI listen address (\"off\" disables it)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error, none")
	rootCmd.PersistentFlags().BoolVar(&noConsole, "no-console", false, "Do not read chat lines from stdin")
}

// loadConfig loads the config file and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if deviceName != "" {
		cfg.DeviceName = deviceName
	}
	if port >= 0 {
		cfg.Port = port
	}
	switch uiAddr {
	case "":
	case "off":
		cfg.UIAddr = ""
	default:
		cfg.UIAddr = uiAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// runNode builds a node, lets start put it into its role and serves until
// interrupted or the console quits.
func runNode(start func(context.Context, *node.Node) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lock := lockfile.ForConfig(configFile)
	if err := lock.TryAcquire(); err != nil {
		return err
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var console *Console
	var opts node.Options
	if _, err := os.Stat(configFile); err == nil {
		opts.ConfigPath = configFile
	}
	if !noConsole {
		console = NewConsole(os.Stdout)
		opts.UI = console
	}

	n, err := node.New(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = n.Close(closeCtx)
	}()

	if err := start(ctx, n); err != nil {
		return err
	}

	if w := n.Web(); w != nil {
		logger.Info("web ui token: %s", w.Token())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if console != nil {
		go func() {
			console.Run(ctx, os.Stdin, n.Connection())
			cancel()
		}()
	}

	return n.Run(ctx)
}
