package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"kisr.dev/kisr/node"
	"kisr.dev/kisr/protocol"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "TOML config file",
		EnvVars: []string{"KISR_CONFIG"},
	}
	networkFlag = &cli.StringFlag{
		Name:  "network",
		Usage: "mainnet or testnet-10",
	}
	datadirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "data directory for the invite ledger",
	}
	nodeURLFlag = &cli.StringFlag{
		Name:  "node-url",
		Usage: "kaspad wRPC JSON endpoint (ws:// or wss://)",
	}
	explorerURLFlag = &cli.StringFlag{
		Name:  "explorer-url",
		Usage: "explorer REST base URL",
	}
	bridgeURLFlag = &cli.StringFlag{
		Name:  "bridge-url",
		Usage: "signer bridge base URL",
	}
	bridgeTokenFlag = &cli.StringFlag{
		Name:    "bridge-token",
		Usage:   "bearer token for the signer bridge",
		EnvVars: []string{"KISR_BRIDGE_TOKEN"},
	}
	walletAddressFlag = &cli.StringFlag{
		Name:  "wallet-address",
		Usage: "own address, used for anchor input selection",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "debug|info|warn|error",
	}
)

// usageError marks failures that exit with status 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                 "kisr",
		Usage:                "Kaspa invite vouchers: codes, envelopes, deeplinks and invite flows",
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			configFlag,
			networkFlag,
			datadirFlag,
			nodeURLFlag,
			explorerURLFlag,
			bridgeURLFlag,
			bridgeTokenFlag,
			walletAddressFlag,
			logLevelFlag,
		},
		Commands: []*cli.Command{
			commandCode,
			commandDeeplink,
			commandEnvelope,
			commandInvite,
			commandConfig,
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newApp()
	if err := app.RunContext(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var ue usageError
	if errors.As(err, &ue) {
		return 2
	}
	switch code, _ := protocol.CodeOf(err); code {
	case protocol.KISR_ERR_INVALID_CODE, protocol.KISR_ERR_INVALID_DEEPLINK:
		return 2
	}
	return 1
}

// loadConfig layers defaults, the config file, then explicitly set flags.
func loadConfig(c *cli.Context) (node.Config, error) {
	cfg := node.DefaultConfig()
	if path := c.String(configFlag.Name); path != "" {
		var err error
		if cfg, err = node.LoadConfigFile(path); err != nil {
			return cfg, usageError{err: err}
		}
	}
	fileNodeURL := cfg.NodeURL
	overlay := func(f *cli.StringFlag, dst *string) {
		if c.IsSet(f.Name) {
			*dst = c.String(f.Name)
		}
	}
	overlay(networkFlag, &cfg.Network)
	overlay(datadirFlag, &cfg.DataDir)
	overlay(nodeURLFlag, &cfg.NodeURL)
	overlay(explorerURLFlag, &cfg.ExplorerURL)
	overlay(bridgeURLFlag, &cfg.BridgeURL)
	overlay(bridgeTokenFlag, &cfg.BridgeToken)
	overlay(walletAddressFlag, &cfg.WalletAddress)
	overlay(logLevelFlag, &cfg.LogLevel)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	// Follow the network for the local node port unless a URL was chosen.
	network, err := cfg.NetworkID()
	if err == nil && !c.IsSet(nodeURLFlag.Name) && fileNodeURL == node.DefaultNodeURL(protocol.Mainnet) {
		cfg.NodeURL = node.DefaultNodeURL(network)
	}
	if err := node.ValidateConfig(cfg); err != nil {
		return cfg, usageError{err: fmt.Errorf("invalid config: %w", err)}
	}
	return cfg, nil
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv}))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
