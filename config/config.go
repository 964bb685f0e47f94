package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultPath = "./config/config.yaml"

type GRPC struct {
	Addr string `yaml:"addr" env:"KARAOKE_GRPC_ADDR"`
}

type HTTP struct {
	Addr            string        `yaml:"addr"            env:"KARAOKE_HTTP_ADDR"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"  env:"KARAOKE_HTTP_REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"KARAOKE_HTTP_SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"  env:"KARAOKE_HTTP_ALLOWED_ORIGINS" envSeparator:","`
}

type Logging struct {
	Env       string `yaml:"env"       env:"APP_ENV"`               // dev|stage|prod
	Service   string `yaml:"service"   env:"KARAOKE_LOG_SERVICE"`   // karaoke-service
	Version   string `yaml:"version"   env:"KARAOKE_LOG_VERSION"`   // v0.1.0
	Backend   string `yaml:"backend"   env:"KARAOKE_LOG_BACKEND"`   // std|zap
	Level     string `yaml:"level"     env:"KARAOKE_LOG_LEVEL"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource" env:"KARAOKE_LOG_ADD_SOURCE"` // false|true
	Debug     bool   `yaml:"debug"     env:"KARAOKE_LOG_DEBUG"`      // false|true
}

type Postgres struct {
	DSN             string        `yaml:"dsn"             env:"KARAOKE_POSTGRES_DSN"`
	MaxConns        int32         `yaml:"maxConns"        env:"KARAOKE_POSTGRES_MAX_CONNS"`
	MinConns        int32         `yaml:"minConns"        env:"KARAOKE_POSTGRES_MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime" env:"KARAOKE_POSTGRES_MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime" env:"KARAOKE_POSTGRES_MAX_CONN_IDLE_TIME"`
}

type SQLite struct {
	Path string `yaml:"path" env:"KARAOKE_SQLITE_PATH"`
}

type Storage struct {
	Driver   string   `yaml:"driver"   env:"KARAOKE_STORAGE_DRIVER"` // postgres|sqlite
	Postgres Postgres `yaml:"postgres"`
	SQLite   SQLite   `yaml:"sqlite"`
}

type Session struct {
	RoomTTL   time.Duration `yaml:"roomTTL"   env:"KARAOKE_ROOM_TTL"`
	JoinTTL   time.Duration `yaml:"joinTTL"   env:"KARAOKE_JOIN_TTL"`
	OpTimeout time.Duration `yaml:"opTimeout" env:"KARAOKE_OP_TIMEOUT"`
}

type Auth struct {
	JWTSecret string `yaml:"jwtSecret" env:"KARAOKE_JWT_SECRET"`
	JWTIssuer string `yaml:"jwtIssuer" env:"KARAOKE_JWT_ISSUER"`
}

type Redis struct {
	Addr          string `yaml:"addr"          env:"KARAOKE_REDIS_ADDR"`
	Password      string `yaml:"password"      env:"KARAOKE_REDIS_PASSWORD"`
	DB            int    `yaml:"db"            env:"KARAOKE_REDIS_DB"`
	ChannelPrefix string `yaml:"channelPrefix" env:"KARAOKE_REDIS_CHANNEL_PREFIX"`
}

type Telemetry struct {
	OTLPEndpoint string  `yaml:"otlpEndpoint" env:"KARAOKE_OTLP_ENDPOINT"`
	Insecure     bool    `yaml:"insecure"     env:"KARAOKE_OTLP_INSECURE"`
	SampleRatio  float64 `yaml:"sampleRatio"  env:"KARAOKE_TRACE_SAMPLE_RATIO"`
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	Logging   Logging   `yaml:"logging"`
	Storage   Storage   `yaml:"storage"`
	Session   Session   `yaml:"session"`
	Auth      Auth      `yaml:"auth"`
	Redis     Redis     `yaml:"redis"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// LoadConfig читает YAML (path, затем CONFIG_PATH, затем ./config/config.yaml),
// подмешивает .env и переменные окружения KARAOKE_* и проставляет дефолты.
// Отсутствие файла по умолчанию не ошибка: конфиг целиком может прийти из env.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	explicit := true
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path, explicit = defaultPath, false
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	// установка дефолтов, если значения не указаны
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":9090"
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 15 * time.Second
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "karaoke-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Session.RoomTTL <= 0 {
		c.Session.RoomTTL = 12 * time.Hour
	}
	if c.Session.JoinTTL <= 0 {
		c.Session.JoinTTL = 5 * time.Minute
	}
	if c.Session.OpTimeout <= 0 {
		c.Session.OpTimeout = 5 * time.Second
	}
	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = "karaoke:room:"
	}
	if c.Telemetry.SampleRatio <= 0 || c.Telemetry.SampleRatio > 1 {
		c.Telemetry.SampleRatio = 1
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case "":
		if c.Storage.Postgres.DSN != "" {
			c.Storage.Driver = "postgres"
		} else {
			c.Storage.Driver = "sqlite"
		}
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("storage.driver must be postgres or sqlite, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.Postgres.DSN == "" {
		return errors.New("storage.postgres.dsn is required")
	}
	if c.Storage.Driver == "sqlite" && c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = "./data/karaoke.db"
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwtSecret must be at least 16 bytes")
	}
	return nil
}
