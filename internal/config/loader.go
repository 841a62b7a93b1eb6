package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBNODE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBNODE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.Self, "ARBNODE_ENGINE_SELF")
	setStr(&cfg.Engine.Admin, "ARBNODE_ENGINE_ADMIN")
	setStr(&cfg.Engine.BurnSink, "ARBNODE_ENGINE_BURN_SINK")
	setStr(&cfg.Engine.DustSink, "ARBNODE_ENGINE_DUST_SINK")
	setStr(&cfg.Engine.BaseAsset, "ARBNODE_ENGINE_BASE_ASSET")
	setInt(&cfg.Engine.DefaultPlatform, "ARBNODE_ENGINE_DEFAULT_PLATFORM")
	setInt(&cfg.Engine.RewardsPercentPPM, "ARBNODE_ENGINE_REWARDS_PERCENT_PPM")
	setStr(&cfg.Engine.RewardsMaxAmount, "ARBNODE_ENGINE_REWARDS_MAX_AMOUNT")
	setStr(&cfg.Engine.MinBurn, "ARBNODE_ENGINE_MIN_BURN")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBNODE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBNODE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBNODE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBNODE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBNODE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBNODE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBNODE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBNODE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBNODE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBNODE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBNODE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBNODE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBNODE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBNODE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBNODE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBNODE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBNODE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBNODE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBNODE_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBNODE_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "ARBNODE_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "ARBNODE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBNODE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBNODE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBNODE_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveAfter, "ARBNODE_S3_ARCHIVE_AFTER")
	setDuration(&cfg.S3.ArchiveInterval, "ARBNODE_S3_ARCHIVE_INTERVAL")

	// ── Server ──
	setInt(&cfg.Server.Port, "ARBNODE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "ARBNODE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBNODE_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.ReadTimeout, "ARBNODE_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "ARBNODE_SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "ARBNODE_SERVER_SHUTDOWN_TIMEOUT")

	// ── Exec ──
	setStr(&cfg.Exec.RouteFile, "ARBNODE_EXEC_ROUTE_FILE")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBNODE_MODE")
	setStr(&cfg.LogLevel, "ARBNODE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
