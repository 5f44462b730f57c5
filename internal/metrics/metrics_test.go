package metrics

import (
	"NetFlowLog/internal/model"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWriter struct{ err error }

func (s stubWriter) Append(*model.FlowRecord) error { return s.err }

func TestWriter_CountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	next := &stubWriter{}
	w := Instrument(next, reg)

	rec := &model.FlowRecord{FlowID: "f1", Packets: 10, Bytes: 1500}
	require.NoError(t, w.Append(rec))
	require.NoError(t, w.Append(rec))

	next.err = errors.New("disk full")
	assert.Error(t, w.Append(rec))

	c := w.Collectors()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Appends))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.AppendFailures))
	assert.Equal(t, 3000.0, testutil.ToFloat64(c.FlowBytes))
	assert.Equal(t, 20.0, testutil.ToFloat64(c.FlowPackets))

	count, err := testutil.GatherAndCount(reg, "flowlog_append_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewCollectors_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollectors(reg)
	assert.Panics(t, func() { NewCollectors(reg) })
}
