package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// FlowLogConfig selects where flow records are appended.
type FlowLogConfig struct {
	Path     string `yaml:"path"`
	FileMode string `yaml:"file_mode"` // octal, e.g. "0644"
}

// MeterConfig holds the flow meter's expiry and detail settings.
type MeterConfig struct {
	IdleTimeout   string `yaml:"idle_timeout"`
	ActiveTimeout string `yaml:"active_timeout"`
	Detailed      bool   `yaml:"detailed"`
	MaxDetail     int    `yaml:"max_detail"`
}

// ProbeConfig holds the NATS settings shared by the probe and the log daemon.
type ProbeConfig struct {
	Enabled  bool   `yaml:"enabled"`
	NATSURL  string `yaml:"nats_url"`
	Subject  string `yaml:"subject"`
	Encoding string `yaml:"encoding"` // "json" or "protobuf"
	// CaptureDir, when set, makes ns-probe keep a pcap copy of every captured frame there.
	CaptureDir    string `yaml:"capture_dir"`
	CaptureBuffer int    `yaml:"capture_buffer"`
}

// APIConfig holds the HTTP ingest server settings.
type APIConfig struct {
	Enabled    bool    `yaml:"enabled"`
	ListenAddr string  `yaml:"listen_addr"`
	RateLimit  float64 `yaml:"rate_limit"` // records per second, 0 disables limiting
	Burst      int     `yaml:"burst"`
}

// ClickHouseConfig holds the connection details for the ClickHouse mirror.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Timeout  string `yaml:"timeout"`
}

// RedisConfig holds the connection details for the Redis stream mirror.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
	Timeout  string `yaml:"timeout"`
}

// MirrorsConfig groups the optional secondary sinks.
type MirrorsConfig struct {
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
}

// LoggingConfig selects the level and format of the process log.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	FlowLog FlowLogConfig `yaml:"flowlog"`
	Meter   MeterConfig   `yaml:"meter"`
	Probe   ProbeConfig   `yaml:"probe"`
	API     APIConfig     `yaml:"api"`
	Mirrors MirrorsConfig `yaml:"mirrors"`
	Logging LoggingConfig `yaml:"logging"`
}

// Defaults returns a configuration with every optional value filled in.
func Defaults() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.FlowLog.Path == "" {
		c.FlowLog.Path = "/var/log/vstp_logs.jsonl"
	}
	if c.FlowLog.FileMode == "" {
		c.FlowLog.FileMode = "0644"
	}
	if c.Meter.IdleTimeout == "" {
		c.Meter.IdleTimeout = "30s"
	}
	if c.Meter.ActiveTimeout == "" {
		c.Meter.ActiveTimeout = "5m"
	}
	if c.Meter.MaxDetail <= 0 {
		c.Meter.MaxDetail = 1024
	}
	if c.Probe.NATSURL == "" {
		c.Probe.NATSURL = "nats://127.0.0.1:4222"
	}
	if c.Probe.Subject == "" {
		c.Probe.Subject = "flowlog.records"
	}
	if c.Probe.Encoding == "" {
		c.Probe.Encoding = "json"
	}
	if c.Probe.CaptureBuffer <= 0 {
		c.Probe.CaptureBuffer = 10000
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8090"
	}
	if c.API.RateLimit > 0 && c.API.Burst <= 0 {
		c.API.Burst = int(c.API.RateLimit) + 1
	}
	if c.Mirrors.ClickHouse.Port == 0 {
		c.Mirrors.ClickHouse.Port = 9000
	}
	if c.Mirrors.ClickHouse.Database == "" {
		c.Mirrors.ClickHouse.Database = "default"
	}
	if c.Mirrors.ClickHouse.Timeout == "" {
		c.Mirrors.ClickHouse.Timeout = "5s"
	}
	if c.Mirrors.Redis.Addr == "" {
		c.Mirrors.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Mirrors.Redis.Stream == "" {
		c.Mirrors.Redis.Stream = "flowlog:records"
	}
	if c.Mirrors.Redis.Timeout == "" {
		c.Mirrors.Redis.Timeout = "2s"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks the values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if _, err := c.FlowLog.Mode(); err != nil {
		return err
	}
	durations := map[string]string{
		"meter.idle_timeout":         c.Meter.IdleTimeout,
		"meter.active_timeout":       c.Meter.ActiveTimeout,
		"mirrors.clickhouse.timeout": c.Mirrors.ClickHouse.Timeout,
		"mirrors.redis.timeout":      c.Mirrors.Redis.Timeout,
	}
	for name, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d < 0 || (d == 0 && name != "meter.active_timeout") {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	switch c.Probe.Encoding {
	case "json", "protobuf":
	default:
		return fmt.Errorf("unknown probe encoding: '%s'", c.Probe.Encoding)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown logging format: '%s'", c.Logging.Format)
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}
	return nil
}

// Mode parses FileMode as octal permission bits.
func (f FlowLogConfig) Mode() (os.FileMode, error) {
	v, err := strconv.ParseUint(f.FileMode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid flowlog.file_mode '%s': %w", f.FileMode, err)
	}
	if v > 0777 {
		return 0, fmt.Errorf("flowlog.file_mode '%s' exceeds 0777", f.FileMode)
	}
	return os.FileMode(v), nil
}

// Timeouts returns the meter's idle and active timeouts. Callers must have validated the config.
func (m MeterConfig) Timeouts() (idle, active time.Duration) {
	idle, _ = time.ParseDuration(m.IdleTimeout)
	active, _ = time.ParseDuration(m.ActiveTimeout)
	return idle, active
}

// TimeoutDuration returns the parsed ClickHouse operation timeout.
func (c ClickHouseConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// TimeoutDuration returns the parsed Redis operation timeout.
func (c RedisConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}
