package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string `env:"BEACON_HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel string `env:"BEACON_LOG_LEVEL" envDefault:"info"`

	ReadHeaderTimeout time.Duration `env:"BEACON_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	IdleTimeout       time.Duration `env:"BEACON_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"BEACON_HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	DatabaseURL string `env:"BEACON_DATABASE_URL"`
	DBMaxConns  int32  `env:"BEACON_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"BEACON_DB_MIN_CONNS" envDefault:"0"`

	// Credential tokens. The secret must be at least 32 bytes; when unset a
	// random dev-only secret is generated at startup.
	TokenSecret string        `env:"BEACON_TOKEN_SECRET"`
	TokenTTL    time.Duration `env:"BEACON_TOKEN_TTL" envDefault:"24h"`

	// WebSocket policy. Origin is required by default and only localhost is
	// allowed (secure-by-default for dev).
	WSOriginRequired bool     `env:"BEACON_WS_ORIGIN_REQUIRED" envDefault:"true"`
	WSAllowedOrigins []string `env:"BEACON_WS_ALLOWED_ORIGINS" envDefault:"http://localhost,http://127.0.0.1"`

	WSSendQueue         int           `env:"BEACON_WS_SEND_QUEUE" envDefault:"256"`
	WSWriteTimeout      time.Duration `env:"BEACON_WS_WRITE_TIMEOUT" envDefault:"5s"`
	WSHeartbeatInterval time.Duration `env:"BEACON_WS_HEARTBEAT_INTERVAL" envDefault:"25s"`
	WSHeartbeatTimeout  time.Duration `env:"BEACON_WS_HEARTBEAT_TIMEOUT" envDefault:"5s"`
	WSRateEvents        int           `env:"BEACON_WS_RATE_EVENTS" envDefault:"120"`
	WSRateWindow        time.Duration `env:"BEACON_WS_RATE_WINDOW" envDefault:"10s"`

	// Dev convenience: channel names seeded into the in-memory store when no
	// database is configured.
	SeedChannels []string `env:"BEACON_SEED_CHANNELS" envDefault:"general"`

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool `env:"BEACON_READINESS_REQUIRE_DB" envDefault:"false"`
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
