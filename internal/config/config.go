package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	Mode            string        `env:"APP_MODE" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	StoreDriver     string        `env:"STORE_DRIVER" envDefault:"postgres"`
	DBDSN           string        `env:"DB_DSN"`
	SQLitePath      string        `env:"SQLITE_PATH" envDefault:"propdesk.db"`
	JWTIssuer       string        `env:"JWT_ISSUER,required"`
	JWTSecret       string        `env:"JWT_SECRET,required"`
	JWTTTL          time.Duration `env:"JWT_TTL" envDefault:"24h"`
	InternalToken   string        `env:"INTERNAL_API_TOKEN,required"`
	WebSocketOrigin string        `env:"WS_ORIGIN" envDefault:"*"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	DailyResetCron  string        `env:"DAILY_RESET_CRON"`
	PlansFile       string        `env:"PLANS_FILE"`
	RateLimitRPS    float64       `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST" envDefault:"30"`
	TrustProxy      bool          `env:"TRUST_PROXY" envDefault:"false"`
	UIDist          string        `env:"UI_DIST"`
}

func (c Config) Production() bool {
	return c.Mode == ModeProduction
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, err
	}
	return c, c.validate()
}

// LoadFrom reads the configuration from vars instead of the process
// environment.
func LoadFrom(vars map[string]string) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Environment: vars}); err != nil {
		return c, err
	}
	return c, c.validate()
}

func (c *Config) validate() error {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode != ModeDevelopment && c.Mode != ModeProduction {
		return errors.New("invalid APP_MODE: use development or production")
	}
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DBDSN == "" {
			return errors.New("DB_DSN is required when STORE_DRIVER=postgres")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	case DriverMemory:
		if c.Production() {
			return errors.New("STORE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: use postgres, sqlite or memory", c.StoreDriver)
	}
	if c.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.Production() && c.WebSocketOrigin == "*" {
		return errors.New("WS_ORIGIN must name an origin in production")
	}
	return nil
}
