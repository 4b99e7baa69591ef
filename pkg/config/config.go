package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Style     Style     `envPrefix:"STYLE_"`
		Retry     Retry     `envPrefix:"RETRY_"`
		Upstream  Upstream  `envPrefix:"UPSTREAM_"`
		Cache     Cache     `envPrefix:"CACHE_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		SQLite    SQLite    `envPrefix:"SQLITE_"`
	}

	HTTP struct {
		Server Server `envPrefix:"SERVER_"`
	}

	Server struct {
		Port         string        `env:"PORT" envDefault:"8080"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level  string `env:"LEVEL" envDefault:"info"`
		// Format is console or json.
		Format string `env:"FORMAT" envDefault:"console"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"guide-helper-styles"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	Style struct {
		URL      string `env:"URL" envDefault:"https://api.mapbox.com/styles/v1/"`
		Username string `env:"USERNAME" envDefault:"mapbox"`
		ID       string `env:"ID"`
		// AccessToken may be a literal token or a secretref:<env|file|static>:<ref>.
		AccessToken  string `env:"ACCESS_TOKEN"`
		TileSize     int    `env:"TILE_SIZE" envDefault:"512"`
		ScaleFactor  bool   `env:"SCALE_FACTOR" envDefault:"false"`
		MinimumLevel int    `env:"MINIMUM_LEVEL" envDefault:"-1"`
		MaximumLevel int    `env:"MAXIMUM_LEVEL" envDefault:"-1"`
		Credit       string `env:"CREDIT"`
	}

	Retry struct {
		// MaxRetries is granted per tile; -1 retries forever.
		MaxRetries          int           `env:"MAX_RETRIES" envDefault:"3"`
		InitialInterval     time.Duration `env:"INITIAL_INTERVAL" envDefault:"200ms"`
		MaxInterval         time.Duration `env:"MAX_INTERVAL" envDefault:"5s"`
		Multiplier          float64       `env:"MULTIPLIER" envDefault:"2"`
		// RandomizationFactor spreads each delay over [d*(1-f), d*(1+f)].
		RandomizationFactor float64       `env:"RANDOMIZATION_FACTOR" envDefault:"0.5"`
		// MaxAttempts is a hard cap enforced by the provider; 0 disables it.
		MaxAttempts         int           `env:"MAX_ATTEMPTS" envDefault:"0"`
	}


	Upstream struct {
		Timeout           time.Duration `env:"TIMEOUT" envDefault:"30s"`
		UserAgent         string        `env:"USER_AGENT"`
		Referer           string        `env:"REFERER"`
		RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"0"`
		Burst             int           `env:"BURST" envDefault:"1"`
	}

	Cache struct {
		// Backend is one of memory, sqlite, redis, filesystem or none.
		Backend string `env:"BACKEND" envDefault:"memory"`
		Dir     string `env:"DIR" envDefault:"tiles"`

		// MaxEntries bounds the memory backend; 0 keeps every tile.
		MaxEntries int `env:"MAX_ENTRIES" envDefault:"0"`
	}

	Redis struct {
		Addr      string        `env:"ADDR" envDefault:"localhost:6379"`
		Password  string        `env:"PASSWORD" envDefault:""`
		DB        int           `env:"DB" envDefault:"0"`
		TTL       time.Duration `env:"TTL" envDefault:"24h"`
		KeyPrefix string        `env:"KEY_PREFIX" envDefault:"styles:tile:"`
	}

	SQLite struct {
		Path string `env:"PATH" envDefault:"file:styles.db?cache=shared"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Level returns a pointer to v, or nil for negative values.
func Level(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}
