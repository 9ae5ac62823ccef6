package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // json | pretty
	LogColor  bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	DBSchema      string
	DBAutoMigrate bool

	// BadgerPath enables the embedded message store when no database is configured.
	BadgerPath string

	// DevUsers seeds the in-memory user directory ("id:name,id:name") when no database is configured.
	DevUsers string

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("UNIFREE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("UNIFREE_LOG_LEVEL", "info"),
		LogFormat: EnvString("UNIFREE_LOG_FORMAT", "json"),
		LogColor:  EnvBool("UNIFREE_LOG_COLOR", false),

		ReadHeaderTimeout: EnvDuration("UNIFREE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("UNIFREE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("UNIFREE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("UNIFREE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("UNIFREE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:   EnvString("UNIFREE_DATABASE_URL", ""),
		DBMaxConns:    EnvInt32("UNIFREE_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("UNIFREE_DB_MIN_CONNS", 0),
		DBSchema:      EnvString("UNIFREE_DB_SCHEMA", "unifree"),
		DBAutoMigrate: EnvBool("UNIFREE_DB_AUTO_MIGRATE", false),

		BadgerPath: EnvString("UNIFREE_BADGER_PATH", ""),
		DevUsers:   EnvString("UNIFREE_DEV_USERS", ""),

		ReadinessRequireDB: EnvBool("UNIFREE_READINESS_REQUIRE_DB", false),
	}
}
