package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
flowlog:
  path: /tmp/flows.jsonl
  file_mode: "0600"
meter:
  idle_timeout: 10s
  detailed: true
  max_detail: 64
probe:
  enabled: true
  subject: flows.test
  encoding: protobuf
api:
  enabled: true
  listen_addr: 127.0.0.1:9999
  rate_limit: 50
mirrors:
  redis:
    enabled: true
    stream: flows
    max_len: 1000
logging:
  level: debug
  format: text
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/flows.jsonl", cfg.FlowLog.Path)
	mode, err := cfg.FlowLog.Mode()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), mode)

	idle, active := cfg.Meter.Timeouts()
	assert.Equal(t, 10*time.Second, idle)
	assert.Equal(t, 5*time.Minute, active, "unset active timeout falls back to default")
	assert.True(t, cfg.Meter.Detailed)
	assert.Equal(t, 64, cfg.Meter.MaxDetail)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Probe.NATSURL)
	assert.Equal(t, "flows.test", cfg.Probe.Subject)
	assert.Equal(t, "protobuf", cfg.Probe.Encoding)

	assert.Equal(t, "127.0.0.1:9999", cfg.API.ListenAddr)
	assert.Equal(t, 51, cfg.API.Burst)

	assert.True(t, cfg.Mirrors.Redis.Enabled)
	assert.Equal(t, "flows", cfg.Mirrors.Redis.Stream)
	assert.Equal(t, int64(1000), cfg.Mirrors.Redis.MaxLen)
	assert.Equal(t, 2*time.Second, cfg.Mirrors.Redis.TimeoutDuration())
	assert.False(t, cfg.Mirrors.ClickHouse.Enabled)
	assert.Equal(t, 9000, cfg.Mirrors.ClickHouse.Port)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/var/log/vstp_logs.jsonl", cfg.FlowLog.Path)
	assert.Equal(t, "json", cfg.Probe.Encoding)
	assert.Equal(t, 0, cfg.API.Burst)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":        "flowlog: [",
		"bad mode":        "flowlog:\n  file_mode: \"rw\"\n",
		"mode too wide":   "flowlog:\n  file_mode: \"7777\"\n",
		"bad duration":    "meter:\n  idle_timeout: soon\n",
		"zero duration":   "meter:\n  idle_timeout: 0s\n",
		"negative active": "meter:\n  active_timeout: -1s\n",
		"bad encoding":    "probe:\n  encoding: xml\n",
		"bad log format":  "logging:\n  format: xml\n",
		"negative rate":   "api:\n  rate_limit: -1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_ProbeCaptureSettings(t *testing.T) {
	cfg, err := Parse([]byte("probe:\n  capture_dir: /tmp/captures\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/captures", cfg.Probe.CaptureDir)
	assert.Equal(t, 10000, cfg.Probe.CaptureBuffer)

	assert.Empty(t, Defaults().Probe.CaptureDir)
}

func TestParse_ZeroActiveTimeoutDisablesSampling(t *testing.T) {
	cfg, err := Parse([]byte("meter:\n  active_timeout: 0s\n"))
	require.NoError(t, err)

	idle, active := cfg.Meter.Timeouts()
	assert.Equal(t, 30*time.Second, idle)
	assert.Zero(t, active)
}
