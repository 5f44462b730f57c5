package sink

import (
	"NetFlowLog/internal/config"
	"NetFlowLog/internal/logger"
	"NetFlowLog/internal/model"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	records []*model.FlowRecord
	err     error
	closed  bool
}

func (m *memWriter) Append(r *model.FlowRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, r)
	return nil
}

func (m *memWriter) Close() error {
	m.closed = true
	return nil
}

func record() *model.FlowRecord {
	return &model.FlowRecord{
		Timestamp: "2024-01-01T00:00:00Z",
		FlowID:    "f1",
		SrcIP:     "10.0.0.1",
		DstIP:     "10.0.0.2",
		SrcPort:   443,
		DstPort:   51000,
		Protocol:  "TCP",
		Packets:   10,
		Bytes:     1500,
		Duration:  1.23,
		Flags:     []string{"SYN", "ACK"},
	}
}

func TestFanout_MirrorFailureDoesNotFailAppend(t *testing.T) {
	primary := &memWriter{}
	healthy := &memWriter{}
	broken := &memWriter{err: errors.New("connection refused")}

	f := NewFanout(primary, logger.Discard(),
		Mirror{Name: "broken", Writer: broken},
		Mirror{Name: "healthy", Writer: healthy},
	)

	require.NoError(t, f.Append(record()))
	assert.Len(t, primary.records, 1)
	assert.Len(t, healthy.records, 1)

	require.NoError(t, f.Close())
	assert.True(t, broken.closed)
	assert.True(t, healthy.closed)
}

func TestFanout_PrimaryFailureSkipsMirrors(t *testing.T) {
	errDisk := errors.New("disk full")
	mirror := &memWriter{}
	f := NewFanout(&memWriter{err: errDisk}, logger.Discard(), Mirror{Name: "m", Writer: mirror})

	assert.ErrorIs(t, f.Append(record()), errDisk)
	assert.Empty(t, mirror.records)
}

func TestRowValues(t *testing.T) {
	values := rowValues(record())
	require.Len(t, values, 18)
	assert.Equal(t, "f1", values[1])
	assert.Equal(t, uint16(443), values[4])
	assert.Equal(t, []string{"SYN", "ACK"}, values[13])
	assert.Equal(t, uint8(0), values[14])
	assert.Equal(t, []uint32{}, values[15])
	assert.Equal(t, uint8(0), values[16])
	assert.Equal(t, []float64{}, values[17])

	detailed := record()
	detailed.PacketSizes = []uint32{64, 128}
	detailed.InterArrivals = []float64{}
	values = rowValues(detailed)
	assert.Equal(t, uint8(1), values[14])
	assert.Equal(t, []uint32{64, 128}, values[15])
	assert.Equal(t, uint8(1), values[16], "empty but present list keeps its flag")
}

func TestXAddArgs(t *testing.T) {
	args, err := xaddArgs("flows", 100, record())
	require.NoError(t, err)
	assert.Equal(t, "flows", args.Stream)
	assert.Equal(t, int64(100), args.MaxLen)
	assert.True(t, args.Approx)

	values, ok := args.Values.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "f1", values["flow_id"])

	var decoded model.FlowRecord
	require.NoError(t, json.Unmarshal([]byte(values["record"].(string)), &decoded))
	assert.Equal(t, *record(), decoded)

	unbounded, err := xaddArgs("flows", 0, record())
	require.NoError(t, err)
	assert.Zero(t, unbounded.MaxLen)
	assert.False(t, unbounded.Approx)

	bad := record()
	bad.Duration = math.NaN()
	_, err = xaddArgs("flows", 0, bad)
	assert.Error(t, err)
}

func TestNewRedisWriter_Unreachable(t *testing.T) {
	cfg := config.Defaults().Mirrors.Redis
	cfg.Addr = "127.0.0.1:1"
	_, err := NewRedisWriter(cfg, logger.Discard())
	assert.Error(t, err)
}
