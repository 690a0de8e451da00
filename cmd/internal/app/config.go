package app

import (
	"time"

	"idvault/cmd/security/sealer"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// DBConnectTimeout bounds the startup connection attempt.
	DBConnectTimeout time.Duration

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Field encryption. Secrets are never logged.
	Sealer sealer.Config

	// Security policy:
	// If true, IDVAULT_FIELD_KEY MUST decode to 32 bytes and the cipher must be known,
	// otherwise startup fails instead of the first Create.
	RequireFieldKey bool

	// AuditEnabled writes audit_log rows (Postgres mode only).
	AuditEnabled bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("IDVAULT_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("IDVAULT_LOG_LEVEL", "info"),
		LogFormat: EnvOneOf("IDVAULT_LOG_FORMAT", "json", "json", "text"),

		ReadHeaderTimeout: EnvDuration("IDVAULT_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("IDVAULT_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("IDVAULT_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("IDVAULT_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("IDVAULT_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("IDVAULT_DATABASE_URL", ""),
		DBSchema:    EnvString("IDVAULT_DB_SCHEMA", "idvault"),
		DBMaxConns:  EnvInt32("IDVAULT_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("IDVAULT_DB_MIN_CONNS", 0),

		DBConnectTimeout: EnvDuration("IDVAULT_DB_CONNECT_TIMEOUT", 3*time.Second),

		ReadinessRequireDB: EnvBool("IDVAULT_READINESS_REQUIRE_DB", false),

		Sealer:          sealer.ConfigFromEnv(),
		RequireFieldKey: EnvBool("IDVAULT_REQUIRE_FIELD_KEY", false),
		AuditEnabled:    EnvBool("IDVAULT_AUDIT_ENABLED", true),
	}
}
