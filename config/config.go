// Package config loads the auction daemon configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cloudx-io/englishauction/auctionapi"
	"github.com/cloudx-io/englishauction/core"
)

// Config is the full daemon configuration.
type Config struct {
	Owner     string         `yaml:"owner"`
	AuctionID string         `yaml:"auction_id,omitempty"`
	Auction   AuctionConfig  `yaml:"auction"`
	Server    ServerConfig   `yaml:"server"`
	Payment   PaymentConfig  `yaml:"payment"`
	Receipts  ReceiptsConfig `yaml:"receipts"`
	Log       LogConfig      `yaml:"log"`
}

// AuctionConfig holds the policy constants.
type AuctionConfig struct {
	Duration                 time.Duration `yaml:"duration"`
	MinIncreasePercent       uint64        `yaml:"min_increase_percent"`
	CommissionPercent        uint64        `yaml:"commission_percent"`
	ExtensionWindow          time.Duration `yaml:"extension_window"`
	MinimumFirstBid          string        `yaml:"minimum_first_bid,omitempty"`
	OwnerExcludedFromBidding bool          `yaml:"owner_excluded_from_bidding"`
	AnyoneMayFinalize        bool          `yaml:"anyone_may_finalize"`
	FeeOnEarlyWithdrawal     bool          `yaml:"fee_on_early_withdrawal"`
}

// ServerConfig selects the request transport.
type ServerConfig struct {
	// Transport is "vsock" or "tcp".
	Transport   string        `yaml:"transport"`
	VsockPort   uint32        `yaml:"vsock_port"`
	TCPAddr     string        `yaml:"tcp_addr"`
	HTTPAddr    string        `yaml:"http_addr,omitempty"`
	MaxWorkers  int           `yaml:"max_workers"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// NotificationBuffer bounds the in-memory notification history.
	NotificationBuffer int `yaml:"notification_buffer"`
}

// PaymentConfig selects the payer.
type PaymentConfig struct {
	// Mode is "journal" or "http".
	Mode                   string        `yaml:"mode"`
	URL                    string        `yaml:"url,omitempty"`
	Timeout                time.Duration `yaml:"timeout"`
	MaxConsecutiveFailures uint32        `yaml:"max_consecutive_failures"`
	OpenTimeout            time.Duration `yaml:"open_timeout"`
}

// ReceiptsConfig controls the signed receipt stream.
type ReceiptsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
	// KeyFile holds a PEM P-256 private key. A fresh key is generated when empty.
	KeyFile string `yaml:"key_file,omitempty"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Auction: AuctionConfig{
			Duration:           core.DefaultDuration,
			MinIncreasePercent: core.DefaultMinIncreasePercent,
			CommissionPercent:  core.DefaultCommissionPercent,
			ExtensionWindow:    core.DefaultExtensionWindow,
		},
		Server: ServerConfig{
			Transport:          "vsock",
			VsockPort:          5000,
			TCPAddr:            "127.0.0.1:5000",
			MaxWorkers:         16,
			ReadTimeout:        30 * time.Second,
			NotificationBuffer: 10000,
		},
		Payment: PaymentConfig{
			Mode:    "journal",
			Timeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and validates
// the result. An empty path uses the defaults alone.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from AUCTION_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("AUCTION_OWNER"); ok && v != "" {
		c.Owner = v
	}
	if v, ok := lookup("AUCTION_ID"); ok && v != "" {
		c.AuctionID = v
	}
	if v, ok := lookup("AUCTION_TRANSPORT"); ok && v != "" {
		c.Server.Transport = v
	}
	if v, ok := lookup("AUCTION_PAYOUT_URL"); ok && v != "" {
		c.Payment.URL = v
		c.Payment.Mode = "http"
	}
	if v, ok := lookup("AUCTION_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("AUCTION_MAX_WORKERS"); ok {
		n, err := parseEnvInt("AUCTION_MAX_WORKERS", v)
		if err != nil {
			return err
		}
		c.Server.MaxWorkers = n
	}
	if v, ok := lookup("AUCTION_VSOCK_PORT"); ok {
		n, err := parseEnvInt("AUCTION_VSOCK_PORT", v)
		if err != nil {
			return err
		}
		c.Server.VsockPort = uint32(n)
	}
	return nil
}

func parseEnvInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a non-negative integer)", key, value)
	}
	return n, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if c.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	if c.Auction.Duration <= 0 {
		return fmt.Errorf("auction.duration must be positive")
	}
	if c.Auction.ExtensionWindow < 0 {
		return fmt.Errorf("auction.extension_window must not be negative")
	}
	if c.Auction.MinIncreasePercent < 100 {
		return fmt.Errorf("auction.min_increase_percent must be at least 100, got %d", c.Auction.MinIncreasePercent)
	}
	if c.Auction.CommissionPercent > 100 {
		return fmt.Errorf("auction.commission_percent must be at most 100, got %d", c.Auction.CommissionPercent)
	}
	if c.Auction.MinimumFirstBid != "" {
		if _, err := auctionapi.ParseAmount(c.Auction.MinimumFirstBid); err != nil {
			return fmt.Errorf("auction.minimum_first_bid: %w", err)
		}
	}

	switch c.Server.Transport {
	case "vsock":
	case "tcp":
		if c.Server.TCPAddr == "" {
			return fmt.Errorf("server.tcp_addr is required for the tcp transport")
		}
	default:
		return fmt.Errorf("unknown server.transport %q", c.Server.Transport)
	}
	if c.Server.MaxWorkers <= 0 {
		return fmt.Errorf("server.max_workers must be positive")
	}

	switch c.Payment.Mode {
	case "journal":
	case "http":
		if c.Payment.URL == "" {
			return fmt.Errorf("payment.url is required for the http payment mode")
		}
	default:
		return fmt.Errorf("unknown payment.mode %q", c.Payment.Mode)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}

// Policy converts the auction section into a core.Policy.
func (c Config) Policy() (core.Policy, error) {
	policy := core.Policy{
		Duration:                 c.Auction.Duration,
		MinIncreasePercent:       c.Auction.MinIncreasePercent,
		CommissionPercent:        c.Auction.CommissionPercent,
		ExtensionWindow:          c.Auction.ExtensionWindow,
		OwnerExcludedFromBidding: c.Auction.OwnerExcludedFromBidding,
		AnyoneMayFinalize:        c.Auction.AnyoneMayFinalize,
		FeeOnEarlyWithdrawal:     c.Auction.FeeOnEarlyWithdrawal,
	}
	if c.Auction.MinimumFirstBid != "" {
		minimum, err := auctionapi.ParseAmount(c.Auction.MinimumFirstBid)
		if err != nil {
			return core.Policy{}, fmt.Errorf("auction.minimum_first_bid: %w", err)
		}
		policy.MinimumFirstBid = minimum
	}
	return policy, nil
}
