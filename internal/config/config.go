// Package config defines the top-level configuration for the arbitrage node
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBNODE_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Topology TopologyConfig `toml:"topology"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Exec     ExecConfig     `toml:"exec"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ExecConfig parameterizes one-shot exec mode: the node executes the request
// in the route file and prints the settlement instead of serving HTTP.
type ExecConfig struct {
	RouteFile string `toml:"route_file"`
}

// EngineConfig holds the execution engine's accounts and settlement
// parameters. Amounts are decimal strings so arbitrary 256-bit values
// survive the TOML round trip.
type EngineConfig struct {
	Self            string `toml:"self"`
	Admin           string `toml:"admin"`
	BurnSink        string `toml:"burn_sink"`
	DustSink        string `toml:"dust_sink"`
	BaseAsset       string `toml:"base_asset"`
	DefaultPlatform int    `toml:"default_platform"`

	RewardsPercentPPM int    `toml:"rewards_percent_ppm"`
	RewardsMaxAmount  string `toml:"rewards_max_amount"`
	MinBurn           string `toml:"min_burn"`
}

// TopologyConfig describes the simulated market the engine trades against:
// venues, flash lenders, and the seeded account balances.
type TopologyConfig struct {
	WrappedNative string         `toml:"wrapped_native"`
	Venues        []VenueConfig  `toml:"venues"`
	Lenders       []LenderConfig `toml:"lenders"`
	Balances      []BalanceEntry `toml:"balances"`
}

// VenueConfig describes one trading venue and its liquidity.
type VenueConfig struct {
	ID         int             `toml:"id"`
	Family     string          `toml:"family"`
	Address    string          `toml:"address"`
	Pools      []PoolEntry     `toml:"pools"`
	Strategies []StrategyEntry `toml:"strategies"`
}

// PoolEntry is one directional pool on a path or pool venue. The quoted
// output is amount_in * rate_num / rate_den + bonus.
type PoolEntry struct {
	Source  string `toml:"source"`
	Target  string `toml:"target"`
	RateNum string `toml:"rate_num"`
	RateDen string `toml:"rate_den"`
	Bonus   string `toml:"bonus"`
	FeeTier int    `toml:"fee_tier"`
}

// StrategyEntry is one fillable order-book strategy.
type StrategyEntry struct {
	ID       string `toml:"id"`
	Source   string `toml:"source"`
	Target   string `toml:"target"`
	Capacity string `toml:"capacity"`
	RateNum  string `toml:"rate_num"`
	RateDen  string `toml:"rate_den"`
}

// LenderConfig describes one flash-lending platform.
type LenderConfig struct {
	ID        int            `toml:"id"`
	Kind      string         `toml:"kind"` // "single" or "vault"
	Address   string         `toml:"address"`
	FeePPM    int            `toml:"fee_ppm"`
	Liquidity []BalanceEntry `toml:"liquidity"`
}

// BalanceEntry seeds one asset balance on one account. Account may be empty
// inside a lender's liquidity list, where it defaults to the lender address.
type BalanceEntry struct {
	Account string `toml:"account"`
	Asset   string `toml:"asset"`
	Amount  string `toml:"amount"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for settlement
// archiving.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`

	// ArchiveAfter is the age past which settlements move to blob storage.
	ArchiveAfter duration `toml:"archive_after"`
	// ArchiveInterval is how often the archive sweep runs.
	ArchiveInterval duration `toml:"archive_interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	ReadTimeout     duration `toml:"read_timeout"`
	WriteTimeout    duration `toml:"write_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Self:              "0x0000000000000000000000000000000000000A4b",
			BaseAsset:         "native",
			DefaultPlatform:   1,
			RewardsPercentPPM: 100_000,
			RewardsMaxAmount:  "100000000000000000000",
			MinBurn:           "0",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbnode",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:         false,
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "arbnode-settlements",
			Prefix:          "settlements",
			UseSSL:          false,
			ForcePathStyle:  true,
			ArchiveAfter:    duration{30 * 24 * time.Hour},
			ArchiveInterval: duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000"},
			ReadTimeout:     duration{10 * time.Second},
			WriteTimeout:    duration{30 * time.Second},
			ShutdownTimeout: duration{10 * time.Second},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"exec":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validFamilies = map[string]bool{
	string(domain.FamilyPathAMM):   true,
	string(domain.FamilyPoolAMM):   true,
	string(domain.FamilyOrderBook): true,
}

var validLenderKinds = map[string]bool{
	"single": true,
	"vault":  true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, exec)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	for _, f := range []struct{ name, val string }{
		{"engine.self", c.Engine.Self},
		{"engine.admin", c.Engine.Admin},
		{"engine.burn_sink", c.Engine.BurnSink},
		{"engine.dust_sink", c.Engine.DustSink},
	} {
		if !common.IsHexAddress(f.val) {
			errs = append(errs, fmt.Sprintf("%s: %q is not a valid address", f.name, f.val))
		}
	}
	if _, err := domain.ParseAsset(c.Engine.BaseAsset); err != nil {
		errs = append(errs, fmt.Sprintf("engine.base_asset: %v", err))
	}
	if c.Engine.RewardsPercentPPM < 0 || c.Engine.RewardsPercentPPM > domain.PPMDenominator {
		errs = append(errs, fmt.Sprintf("engine.rewards_percent_ppm must be 0-%d, got %d",
			domain.PPMDenominator, c.Engine.RewardsPercentPPM))
	}
	if v, err := parseAmount(c.Engine.RewardsMaxAmount); err != nil {
		errs = append(errs, fmt.Sprintf("engine.rewards_max_amount: %v", err))
	} else if v.IsZero() {
		errs = append(errs, "engine.rewards_max_amount must be > 0")
	}
	if _, err := parseAmount(c.Engine.MinBurn); err != nil {
		errs = append(errs, fmt.Sprintf("engine.min_burn: %v", err))
	}

	// Topology
	seen := map[int]bool{}
	for i, v := range c.Topology.Venues {
		if v.ID < 1 || v.ID > 255 {
			errs = append(errs, fmt.Sprintf("topology.venues[%d]: id must be 1-255, got %d", i, v.ID))
		}
		if seen[v.ID] {
			errs = append(errs, fmt.Sprintf("topology.venues[%d]: duplicate platform id %d", i, v.ID))
		}
		seen[v.ID] = true
		if !validFamilies[v.Family] {
			errs = append(errs, fmt.Sprintf("topology.venues[%d]: unknown family %q", i, v.Family))
		}
		if !common.IsHexAddress(v.Address) {
			errs = append(errs, fmt.Sprintf("topology.venues[%d]: %q is not a valid address", i, v.Address))
		}
	}
	for i, l := range c.Topology.Lenders {
		if l.ID < 1 || l.ID > 255 {
			errs = append(errs, fmt.Sprintf("topology.lenders[%d]: id must be 1-255, got %d", i, l.ID))
		}
		if seen[l.ID] {
			errs = append(errs, fmt.Sprintf("topology.lenders[%d]: duplicate platform id %d", i, l.ID))
		}
		seen[l.ID] = true
		if !validLenderKinds[l.Kind] {
			errs = append(errs, fmt.Sprintf("topology.lenders[%d]: unknown kind %q (valid: single, vault)", i, l.Kind))
		}
		if !common.IsHexAddress(l.Address) {
			errs = append(errs, fmt.Sprintf("topology.lenders[%d]: %q is not a valid address", i, l.Address))
		}
		if l.FeePPM < 0 || l.FeePPM > domain.PPMDenominator {
			errs = append(errs, fmt.Sprintf("topology.lenders[%d]: fee_ppm must be 0-%d, got %d",
				i, domain.PPMDenominator, l.FeePPM))
		}
	}
	if len(c.Topology.Venues) > 0 && !seen[c.Engine.DefaultPlatform] {
		errs = append(errs, fmt.Sprintf("engine.default_platform %d is not a configured venue", c.Engine.DefaultPlatform))
	}

	// Postgres and Redis are only reached in serve mode.
	if strings.ToLower(c.Mode) == "serve" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}

		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.ArchiveAfter.Duration <= 0 {
			errs = append(errs, "s3: archive_after must be positive when enabled")
		}
		if c.S3.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_interval must be positive when enabled")
		}
	}

	if strings.ToLower(c.Mode) == "exec" && strings.TrimSpace(c.Exec.RouteFile) == "" {
		errs = append(errs, "exec: route_file must not be empty in exec mode")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// parseAmount parses a non-negative decimal amount string.
func parseAmount(s string) (*uint256.Int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("amount must not be empty")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}
