package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Server
	out.Server = cfg.Server
	redact(&out.Server.APIKey)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	if cfg.Topology.Venues != nil {
		out.Topology.Venues = make([]VenueConfig, len(cfg.Topology.Venues))
		copy(out.Topology.Venues, cfg.Topology.Venues)
	}
	if cfg.Topology.Lenders != nil {
		out.Topology.Lenders = make([]LenderConfig, len(cfg.Topology.Lenders))
		copy(out.Topology.Lenders, cfg.Topology.Lenders)
	}
	if cfg.Topology.Balances != nil {
		out.Topology.Balances = make([]BalanceEntry, len(cfg.Topology.Balances))
		copy(out.Topology.Balances, cfg.Topology.Balances)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
