package config

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  string `yaml:"readTimeout"`
	WriteTimeout string `yaml:"writeTimeout"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|prod
	Service   string `yaml:"service"`   // chat-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Store struct {
	Backend string `yaml:"backend"` // memory|redis
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Postgres struct {
	// DSN is optional; with no DSN the archive is disabled and the
	// service keeps all state in the realtime store only.
	DSN string `yaml:"dsn"`
}

type Completion struct {
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey"` // falls back to COMPLETION_API_KEY
	Timeout string `yaml:"timeout"`
}

type Script struct {
	MinDelay string `yaml:"minDelay"`
	MaxDelay string `yaml:"maxDelay"`
}

type Config struct {
	HTTP       HTTP       `yaml:"http"`
	Logging    Logging    `yaml:"logging"`
	Store      Store      `yaml:"store"`
	Redis      Redis      `yaml:"redis"`
	Postgres   Postgres   `yaml:"postgres"`
	Completion Completion `yaml:"completion"`
	Script     Script     `yaml:"script"`
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	switch c.Store.Backend {
	case "":
		c.Store.Backend = "memory"
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required when store.backend=redis")
		}
	default:
		return errors.New("store.backend must be memory or redis")
	}
	if c.Completion.APIKey == "" {
		c.Completion.APIKey = os.Getenv("COMPLETION_API_KEY")
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "chat-service"
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
	return nil
}

func (c *HTTP) ReadTimeoutOr(def time.Duration) time.Duration {
	return parseDurationOr(def, c.ReadTimeout)
}

func (c *HTTP) WriteTimeoutOr(def time.Duration) time.Duration {
	return parseDurationOr(def, c.WriteTimeout)
}

func (c *Completion) TimeoutOr(def time.Duration) time.Duration {
	return parseDurationOr(def, c.Timeout)
}

func (c *Script) Delays(defMin, defMax time.Duration) (time.Duration, time.Duration) {
	minD := parseDurationOr(defMin, c.MinDelay)
	maxD := parseDurationOr(defMax, c.MaxDelay)
	if maxD < minD {
		maxD = minD
	}
	return minD, maxD
}

func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
