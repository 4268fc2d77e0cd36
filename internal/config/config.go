package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Limits    LimitsConfig    `yaml:"limits"`
	Directory DirectoryConfig `yaml:"directory"`
	Sink      SinkConfig      `yaml:"sink"`
}

type ServerConfig struct {
	Addr string     `yaml:"addr"`
	Cors CorsConfig `yaml:"cors"`
}

type CorsConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
}

type LimitsConfig struct {
	// MinDelaySeconds 同一账号两次请求之间的最小间隔。
	MinDelaySeconds int `yaml:"minDelaySeconds"`
	// GlobalRatePerMinute 所有账号合计的每分钟请求上限。
	GlobalRatePerMinute int `yaml:"globalRatePerMinute"`
	// GlobalBurst 全局令牌桶突发量。大于 1 时第一分钟会超出上限，
	// 只在明确需要突发时调大。
	GlobalBurst int `yaml:"globalBurst"`
	// RotationThreshold 单账号连续查询多少次后进入冷却。
	RotationThreshold    int `yaml:"rotationThreshold"`
	CoolingPeriodSeconds int `yaml:"coolingPeriodSeconds"`
	MaxAttempts          int `yaml:"maxAttempts"`
	BackoffBaseSeconds   int `yaml:"backoffBaseSeconds"`
	BackoffCapSeconds    int `yaml:"backoffCapSeconds"`
	MaxInFlight          int `yaml:"maxInFlight"`
}

func (c LimitsConfig) MinDelay() time.Duration {
	if c.MinDelaySeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.MinDelaySeconds) * time.Second
}

func (c LimitsConfig) CoolingPeriod() time.Duration {
	if c.CoolingPeriodSeconds <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.CoolingPeriodSeconds) * time.Second
}

func (c LimitsConfig) BackoffBase() time.Duration {
	if c.BackoffBaseSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.BackoffBaseSeconds) * time.Second
}

func (c LimitsConfig) BackoffCap() time.Duration {
	if c.BackoffCapSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.BackoffCapSeconds) * time.Second
}

type DirectoryConfig struct {
	BaseURL   string         `yaml:"baseURL"`
	TimeoutMs int            `yaml:"timeoutMs"`
	Retry     DirectoryRetry `yaml:"retry"`
	UserAgent string         `yaml:"userAgent"`
	Proxy     string         `yaml:"proxy"`
}

type DirectoryRetry struct {
	Count     int `yaml:"count"`
	WaitMs    int `yaml:"waitMs"`
	MaxWaitMs int `yaml:"maxWaitMs"`
}

func (c DirectoryConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c DirectoryRetry) Wait() time.Duration {
	if c.WaitMs <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.WaitMs) * time.Millisecond
}

func (c DirectoryRetry) MaxWait() time.Duration {
	if c.MaxWaitMs <= 0 {
		return 1200 * time.Millisecond
	}
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

type SinkConfig struct {
	// JSONLPath 追加写入结果的 JSONL 文件；为空则只写 sqlite。
	JSONLPath string `yaml:"jsonlPath"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/lookup_engine.db"
	}
	if c.Limits.MinDelaySeconds <= 0 {
		c.Limits.MinDelaySeconds = 20
	}
	if c.Limits.GlobalRatePerMinute <= 0 {
		c.Limits.GlobalRatePerMinute = 30
	}
	if c.Limits.GlobalBurst <= 0 {
		c.Limits.GlobalBurst = 1
	}
	if c.Limits.RotationThreshold <= 0 {
		c.Limits.RotationThreshold = 200
	}
	if c.Limits.CoolingPeriodSeconds <= 0 {
		c.Limits.CoolingPeriodSeconds = 900
	}
	if c.Limits.MaxAttempts <= 0 {
		c.Limits.MaxAttempts = 3
	}
	if c.Limits.BackoffBaseSeconds <= 0 {
		c.Limits.BackoffBaseSeconds = 5
	}
	if c.Limits.BackoffCapSeconds <= 0 {
		c.Limits.BackoffCapSeconds = 300
	}
	if c.Limits.MaxInFlight <= 0 {
		c.Limits.MaxInFlight = 8
	}
	if c.Directory.BaseURL == "" {
		c.Directory.BaseURL = "http://127.0.0.1:8080/mock"
	}
	if c.Directory.UserAgent == "" {
		c.Directory.UserAgent = defaultUserAgent
	}
	if c.Directory.Retry.Count < 0 {
		c.Directory.Retry.Count = 0
	}
}

const defaultUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 18_7 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148"

func (c Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Directory.BaseURL == "" {
		return errors.New("directory.baseURL is required")
	}
	if c.Limits.MaxAttempts > 10 {
		return errors.New("limits.maxAttempts must be <= 10")
	}
	return nil
}
