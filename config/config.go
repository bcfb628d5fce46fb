package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Bus struct {
	Backend string `yaml:"backend"` // redis|memory
	Buffer  int    `yaml:"buffer"`
}

type Auth struct {
	Secret         string `yaml:"secret"`
	OnInvalidToken string `yaml:"onInvalidToken"` // keep|close
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|prod
	Service   string `yaml:"service"`   // realtime-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type WS struct {
	PingInterval string  `yaml:"pingInterval"`
	WriteWait    string  `yaml:"writeWait"`
	ReadLimit    int64   `yaml:"readLimit"`
	QueueSize    int     `yaml:"queueSize"`
	MsgRate      float64 `yaml:"msgRate"`
	MsgBurst     int     `yaml:"msgBurst"`
}

func (w WS) Ping() time.Duration  { return parseDurationOr(15*time.Second, w.PingInterval) }
func (w WS) Write() time.Duration { return parseDurationOr(5*time.Second, w.WriteWait) }

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	Redis   Redis   `yaml:"redis"`
	Bus     Bus     `yaml:"bus"`
	Auth    Auth    `yaml:"auth"`
	Logging Logging `yaml:"logging"`
	WS      WS      `yaml:"ws"`
}

func LoadConfig() (*Config, error) {
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
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}

	// defaults
	if c.Bus.Backend == "" {
		c.Bus.Backend = "redis"
	}
	if c.Bus.Backend != "redis" && c.Bus.Backend != "memory" {
		return fmt.Errorf("bus.backend must be redis or memory, got %q", c.Bus.Backend)
	}
	if c.Bus.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when bus.backend is redis")
	}
	if c.Bus.Buffer <= 0 {
		c.Bus.Buffer = 256
	}
	if c.Auth.OnInvalidToken == "" {
		c.Auth.OnInvalidToken = "keep"
	}
	if c.Auth.OnInvalidToken != "keep" && c.Auth.OnInvalidToken != "close" {
		return fmt.Errorf("auth.onInvalidToken must be keep or close, got %q", c.Auth.OnInvalidToken)
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "realtime-service"
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

// helper для парсинга timeout-ов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
