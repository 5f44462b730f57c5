package factory

import (
	"NetFlowLog/internal/config"
	"NetFlowLog/internal/logger"
	"NetFlowLog/internal/model"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memMirror struct {
	records []*model.FlowRecord
	closed  bool
}

func (m *memMirror) Append(r *model.FlowRecord) error {
	m.records = append(m.records, r)
	return nil
}

func (m *memMirror) Close() error {
	m.closed = true
	return nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Defaults()
	cfg.FlowLog.Path = filepath.Join(t.TempDir(), "flows.jsonl")
	return cfg
}

func withMirror(t *testing.T, name string, enabled bool, build MirrorFactory) {
	t.Helper()
	RegisterMirror(name, func(*config.Config) bool { return enabled }, build)
	t.Cleanup(func() { delete(registry, name) })
}

func TestCreate_FlowLogOnly(t *testing.T) {
	cfg := testConfig(t)
	chain, err := Create(cfg, prometheus.NewRegistry(), logger.Discard())
	require.NoError(t, err)
	defer chain.Close()

	require.NoError(t, chain.Writer.Append(&model.FlowRecord{FlowID: "f1", Bytes: 42}))

	data, err := os.ReadFile(cfg.FlowLog.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"flow_id":"f1"`)
	assert.Equal(t, 1.0, testutil.ToFloat64(chain.Metrics.Collectors().Appends))
	assert.Equal(t, cfg.FlowLog.Path, chain.Log.Path())
}

func TestCreate_WithMirror(t *testing.T) {
	mirror := &memMirror{}
	withMirror(t, "test-memory", true, func(*config.Config, *slog.Logger) (model.Writer, error) {
		return mirror, nil
	})
	withMirror(t, "test-disabled", false, func(*config.Config, *slog.Logger) (model.Writer, error) {
		t.Fatal("disabled mirror must not be built")
		return nil, nil
	})

	chain, err := Create(testConfig(t), prometheus.NewRegistry(), logger.Discard())
	require.NoError(t, err)

	require.NoError(t, chain.Writer.Append(&model.FlowRecord{FlowID: "f1"}))
	assert.Len(t, mirror.records, 1)

	require.NoError(t, chain.Close())
	assert.True(t, mirror.closed)
}

func TestCreate_MirrorFailureClosesBuiltMirrors(t *testing.T) {
	first := &memMirror{}
	withMirror(t, "test-a", true, func(*config.Config, *slog.Logger) (model.Writer, error) {
		return first, nil
	})
	withMirror(t, "test-b", true, func(*config.Config, *slog.Logger) (model.Writer, error) {
		return nil, errors.New("connection refused")
	})

	_, err := Create(testConfig(t), prometheus.NewRegistry(), logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test-b")
	assert.True(t, first.closed)
}

func TestCreate_BadFileMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.FlowLog.FileMode = "abc"
	_, err := Create(cfg, prometheus.NewRegistry(), logger.Discard())
	assert.Error(t, err)
}

func TestRegisterMirror_Duplicate(t *testing.T) {
	assert.Panics(t, func() {
		RegisterMirror("redis", nil, nil)
	})
}
