// Package metrics instruments flow record persistence with Prometheus collectors.
package metrics

import (
	"NetFlowLog/internal/model"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups the counters exported for a writer.
type Collectors struct {
	Appends        prometheus.Counter
	AppendFailures prometheus.Counter
	FlowBytes      prometheus.Counter
	FlowPackets    prometheus.Counter
	AppendLatency  prometheus.Histogram
}

// NewCollectors creates the collectors and registers them with reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Appends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowlog_appends_total",
			Help: "Flow records appended to the flow log.",
		}),
		AppendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowlog_append_failures_total",
			Help: "Flow records that could not be persisted.",
		}),
		FlowBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowlog_flow_bytes_total",
			Help: "Sum of the byte counts carried by persisted flow records.",
		}),
		FlowPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowlog_flow_packets_total",
			Help: "Sum of the packet counts carried by persisted flow records.",
		}),
		AppendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowlog_append_duration_seconds",
			Help:    "Time spent in a single append call.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
	}
	reg.MustRegister(c.Appends, c.AppendFailures, c.FlowBytes, c.FlowPackets, c.AppendLatency)
	return c
}

// Writer wraps a model.Writer and records every call.
type Writer struct {
	next model.Writer
	c    *Collectors
}

// Instrument wraps next with collectors registered on reg.
func Instrument(next model.Writer, reg prometheus.Registerer) *Writer {
	return &Writer{next: next, c: NewCollectors(reg)}
}

// Collectors exposes the underlying collectors.
func (w *Writer) Collectors() *Collectors {
	return w.c
}

// Append implements model.Writer.
func (w *Writer) Append(record *model.FlowRecord) error {
	start := time.Now()
	err := w.next.Append(record)
	w.c.AppendLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		w.c.AppendFailures.Inc()
		return err
	}
	w.c.Appends.Inc()
	w.c.FlowBytes.Add(float64(record.Bytes))
	w.c.FlowPackets.Add(float64(record.Packets))
	return nil
}
