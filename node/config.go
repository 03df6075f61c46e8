package node

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/naoina/toml"

	"kisr.dev/kisr/invite"
	"kisr.dev/kisr/node/explorer"
	"kisr.dev/kisr/protocol"
)

type Config struct {
	Network     string `toml:"network" json:"network"`
	DataDir     string `toml:"data_dir" json:"data_dir"`
	NodeURL     string `toml:"node_url" json:"node_url"`
	ExplorerURL string `toml:"explorer_url" json:"explorer_url,omitempty"`
	BridgeURL   string `toml:"bridge_url" json:"bridge_url,omitempty"`
	BridgeToken string `toml:"bridge_token" json:"-"`
	// WalletAddress is the operator's own address: the invite holder on create.
	WalletAddress string `toml:"wallet_address" json:"wallet_address,omitempty"`
	LogLevel      string `toml:"log_level" json:"log_level"`

	FeeRate         uint64  `toml:"fee_rate" json:"fee_rate"`
	RedeemFee       uint64  `toml:"redeem_fee" json:"redeem_fee"`
	PollAttempts    int     `toml:"poll_attempts" json:"poll_attempts"`
	PollIntervalMS  int     `toml:"poll_interval_ms" json:"poll_interval_ms"`
	RedeemTimeoutS  int     `toml:"redeem_timeout_s" json:"redeem_timeout_s"`
	ExplorerRPS     float64 `toml:"explorer_rps" json:"explorer_rps"`
	PayloadCacheLen int     `toml:"payload_cache_len" json:"payload_cache_len"`
	RequireSynced   bool    `toml:"require_synced" json:"require_synced"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Local wRPC JSON listeners of a default kaspad.
var defaultNodeURLs = map[protocol.NetworkID]string{
	protocol.Mainnet: "ws://127.0.0.1:18110",
	protocol.Testnet: "ws://127.0.0.1:18210",
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".kisr"
	}
	return filepath.Join(home, ".kisr")
}

func DefaultConfig() Config {
	poll := invite.DefaultPollConfig()
	return Config{
		Network:         "mainnet",
		DataDir:         DefaultDataDir(),
		NodeURL:         defaultNodeURLs[protocol.Mainnet],
		LogLevel:        "info",
		FeeRate:         1000,
		RedeemFee:       invite.DefaultRedeemFee,
		PollAttempts:    poll.Attempts,
		PollIntervalMS:  int(poll.Interval / time.Millisecond),
		RedeemTimeoutS:  60,
		ExplorerRPS:     5,
		PayloadCacheLen: 256,
	}
}

// DefaultNodeURL returns the local wRPC endpoint for network.
func DefaultNodeURL(network protocol.NetworkID) string {
	return defaultNodeURLs[network]
}

// LoadConfigFile overlays a TOML file onto DefaultConfig.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := readFileByPath(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) NetworkID() (protocol.NetworkID, error) {
	return protocol.ParseNetwork(c.Network)
}

// ExplorerBaseURL is the configured explorer, or the public one for network.
func (c Config) ExplorerBaseURL(network protocol.NetworkID) string {
	if strings.TrimSpace(c.ExplorerURL) != "" {
		return strings.TrimRight(c.ExplorerURL, "/")
	}
	return explorer.BaseURL(network)
}

func (c Config) PollConfig() invite.PollConfig {
	return invite.PollConfig{
		Attempts: c.PollAttempts,
		Interval: time.Duration(c.PollIntervalMS) * time.Millisecond,
	}
}

func (c Config) RedeemTimeout() time.Duration {
	return time.Duration(c.RedeemTimeoutS) * time.Second
}

func ValidateConfig(cfg Config) error {
	network, err := protocol.ParseNetwork(cfg.Network)
	if err != nil {
		return fmt.Errorf("invalid network: %w", err)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if err := validateURL(cfg.NodeURL, "ws", "wss"); err != nil {
		return fmt.Errorf("invalid node_url: %w", err)
	}
	if cfg.ExplorerURL != "" {
		if err := validateURL(cfg.ExplorerURL, "http", "https"); err != nil {
			return fmt.Errorf("invalid explorer_url: %w", err)
		}
	}
	if cfg.BridgeURL != "" {
		if err := validateURL(cfg.BridgeURL, "http", "https"); err != nil {
			return fmt.Errorf("invalid bridge_url: %w", err)
		}
	}
	if cfg.WalletAddress != "" {
		if err := protocol.CheckAddressNetwork(cfg.WalletAddress, network); err != nil {
			return fmt.Errorf("invalid wallet_address: %w", err)
		}
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.FeeRate == 0 {
		return errors.New("fee_rate must be > 0")
	}
	if cfg.RedeemFee == 0 {
		return errors.New("redeem_fee must be > 0")
	}
	if cfg.PollAttempts <= 0 || cfg.PollAttempts > 600 {
		return errors.New("poll_attempts must be in 1..600")
	}
	if cfg.PollIntervalMS <= 0 {
		return errors.New("poll_interval_ms must be > 0")
	}
	if cfg.RedeemTimeoutS < 0 {
		return errors.New("redeem_timeout_s must be >= 0")
	}
	if cfg.ExplorerRPS <= 0 {
		return errors.New("explorer_rps must be > 0")
	}
	if cfg.PayloadCacheLen <= 0 {
		return errors.New("payload_cache_len must be > 0")
	}
	return nil
}

func validateURL(raw string, schemes ...string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	ok := false
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			ok = true
		}
	}
	if !ok {
		return fmt.Errorf("scheme %q not one of %v", u.Scheme, schemes)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
