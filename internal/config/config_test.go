package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig is Defaults plus the operator-supplied fields that have no
// sensible default.
func validConfig() Config {
	cfg := Defaults()
	cfg.Engine.Admin = "0x0000000000000000000000000000000000000Ad1"
	cfg.Engine.BurnSink = "0x000000000000000000000000000000000000dEaD"
	cfg.Engine.DustSink = "0x000000000000000000000000000000000000D057"
	return cfg
}

func TestDefaultsRequireOperatorAddresses(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
	assert.Contains(t, err.Error(), "engine.admin")
	assert.Contains(t, err.Error(), "engine.burn_sink")
	assert.Contains(t, err.Error(), "engine.dust_sink")
}

func TestValidConfigPasses(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "watch"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "watch"`)

	// Mode matching is case-insensitive.
	cfg.Mode = "SERVE"
	require.NoError(t, cfg.Validate())
}

func TestValidateRewardsBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.RewardsPercentPPM = 1_000_001
	cfg.Engine.RewardsMaxAmount = "0"
	cfg.Engine.MinBurn = "not-a-number"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rewards_percent_ppm")
	assert.Contains(t, err.Error(), "rewards_max_amount must be > 0")
	assert.Contains(t, err.Error(), "engine.min_burn")
}

func TestValidateTopology(t *testing.T) {
	cfg := validConfig()
	cfg.Topology.Venues = []VenueConfig{
		{ID: 1, Family: "path_amm", Address: "0x0000000000000000000000000000000000000e01"},
		{ID: 1, Family: "bonding_curve", Address: "not-an-address"},
	}
	cfg.Topology.Lenders = []LenderConfig{
		{ID: 1, Kind: "flash", Address: "0x0000000000000000000000000000000000000f10", FeePPM: 2_000_000},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate platform id 1")
	assert.Contains(t, err.Error(), `unknown family "bonding_curve"`)
	assert.Contains(t, err.Error(), `unknown kind "flash"`)
	assert.Contains(t, err.Error(), "fee_ppm")
}

func TestValidateDefaultPlatformMustBeConfigured(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.DefaultPlatform = 7
	cfg.Topology.Venues = []VenueConfig{
		{ID: 1, Family: "path_amm", Address: "0x0000000000000000000000000000000000000e01"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_platform 7 is not a configured venue")

	cfg.Engine.DefaultPlatform = 1
	require.NoError(t, cfg.Validate())
}

func TestValidateExecMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "exec"
	// Exec mode skips the postgres/redis/server checks entirely.
	cfg.Postgres = PostgresConfig{}
	cfg.Redis = RedisConfig{}
	cfg.Server = ServerConfig{}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route_file must not be empty")

	cfg.Exec.RouteFile = "route.json"
	require.NoError(t, cfg.Validate())
}

func TestValidateS3ArchiveDurations(t *testing.T) {
	cfg := validConfig()
	cfg.S3.Enabled = true
	cfg.S3.ArchiveAfter = duration{}
	cfg.S3.ArchiveInterval = duration{-time.Hour}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive_after must be positive")
	assert.Contains(t, err.Error(), "archive_interval must be positive")
}

func TestValidateServeInfra(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Host = ""
	cfg.Postgres.PoolMinConns = 20 // above PoolMaxConns
	cfg.Redis.Addr = ""
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: host must not be empty")
	assert.Contains(t, err.Error(), "pool_min_conns must not exceed pool_max_conns")
	assert.Contains(t, err.Error(), "redis: addr must not be empty")
	assert.Contains(t, err.Error(), "server: port must be 1-65535")

	// A DSN stands in for the discrete connection fields.
	cfg.Postgres.DSN = "postgres://user:pass@db:5432/arbnode"
	err = cfg.Validate()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "postgres: host")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBNODE_MODE", "exec")
	t.Setenv("ARBNODE_ENGINE_ADMIN", "0x0000000000000000000000000000000000000Ad1")
	t.Setenv("ARBNODE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("ARBNODE_POSTGRES_POOL_MAX_CONNS", "7")
	t.Setenv("ARBNODE_S3_ENABLED", "true")
	t.Setenv("ARBNODE_SERVER_READ_TIMEOUT", "5s")
	t.Setenv("ARBNODE_SERVER_CORS_ORIGINS", " https://a.example , https://b.example ,")
	t.Setenv("ARBNODE_EXEC_ROUTE_FILE", "/tmp/route.json")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "exec", cfg.Mode)
	assert.Equal(t, "0x0000000000000000000000000000000000000Ad1", cfg.Engine.Admin)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 7, cfg.Postgres.PoolMaxConns)
	assert.True(t, cfg.S3.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "/tmp/route.json", cfg.Exec.RouteFile)
}

func TestEnvOverridesIgnoreMalformedValues(t *testing.T) {
	t.Setenv("ARBNODE_POSTGRES_PORT", "not-a-port")
	t.Setenv("ARBNODE_S3_ENABLED", "definitely")
	t.Setenv("ARBNODE_SERVER_READ_TIMEOUT", "fast")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.False(t, cfg.S3.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout.Duration)
}

func TestDurationText(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("5m")))
	assert.Equal(t, 5*time.Minute, d.Duration)

	require.Error(t, d.UnmarshalText([]byte("fast")))

	out, err := duration{90 * time.Second}.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "exec"
log_level = "debug"

[engine]
admin = "0x0000000000000000000000000000000000000Ad1"

[exec]
route_file = "route.json"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "exec", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "0x0000000000000000000000000000000000000Ad1", cfg.Engine.Admin)
	// Untouched sections keep their defaults.
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "arbnode", cfg.Postgres.Database)
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Server.APIKey = "hunter2"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)
	// The original is untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)

	// Empty secrets stay empty rather than being masked.
	empty := validConfig()
	assert.Empty(t, RedactedConfig(&empty).Postgres.Password)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
