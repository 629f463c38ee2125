package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port              int     `yaml:"port"`
		RateLimitPerSec   float64 `yaml:"rate_limit_per_sec"`
		RateLimitBurst    int     `yaml:"rate_limit_burst"`
		ReadTimeoutSecs   int     `yaml:"read_timeout_seconds"`
		WriteTimeoutSecs  int     `yaml:"write_timeout_seconds"`
		MaxQueryRangeDays int     `yaml:"max_query_range_days"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Enabled         bool   `yaml:"enabled"`
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Telegram struct {
		Enabled     bool    `yaml:"enabled"`
		BotToken    string  `yaml:"bot_token"`
		Debug       bool    `yaml:"debug"`
		AdminChatID int64   `yaml:"admin_chat_id"`
		ExtraChats  []int64 `yaml:"extra_chats"`
	} `yaml:"telegram"`

	Sheets struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
	} `yaml:"sheets"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxQueryRangeDays <= 0 {
		cfg.Server.MaxQueryRangeDays = 90
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/zapisnik.db"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) RateLimit() (float64, int) {
	per := c.Server.RateLimitPerSec
	if per <= 0 {
		per = 20
	}
	burst := c.Server.RateLimitBurst
	if burst <= 0 {
		burst = 40
	}
	return per, burst
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) ReadTimeout() time.Duration {
	if c.Server.ReadTimeoutSecs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Server.ReadTimeoutSecs) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	if c.Server.WriteTimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Server.WriteTimeoutSecs) * time.Second
}
