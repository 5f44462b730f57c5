// Package meter turns a stream of parsed packets into flow records.
package meter

import (
	"NetFlowLog/internal/model"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

const (
	sweepInterval = time.Second
	// closeLinger is how long a closed TCP flow absorbs trailing segments before
	// further traffic on its tuple is metered as a new flow.
	closeLinger = 5 * time.Second
)

// Config controls when flows are emitted and how much per-packet detail they carry.
type Config struct {
	// IdleTimeout emits a flow once no packet has been seen for this long.
	IdleTimeout time.Duration
	// ActiveTimeout emits a sample of a long-lived flow and restarts its counters.
	// Zero disables sampling.
	ActiveTimeout time.Duration
	// Detailed records packet sizes and inter-arrival gaps, up to MaxDetail packets per record.
	Detailed  bool
	MaxDetail int
}

// Meter groups packets into bidirectional flows and appends a record for each
// finished or sampled flow to a model.Writer. Time is driven by packet timestamps,
// so the same capture always yields the same records.
type Meter struct {
	cfg    Config
	out    model.Writer
	logger *slog.Logger

	mu        sync.Mutex
	flows     map[flowKey]*flowState
	lastSweep time.Time
}

// New creates a meter that appends records to out.
func New(cfg Config, out model.Writer, logger *slog.Logger) *Meter {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	if cfg.MaxDetail <= 0 {
		cfg.MaxDetail = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Meter{
		cfg:    cfg,
		out:    out,
		logger: logger,
		flows:  make(map[flowKey]*flowState),
	}
}

// Process accounts one packet. Records emitted along the way that could not be
// persisted are reported in the returned error; metering carries on regardless.
func (m *Meter) Process(info *model.PacketInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	now := info.Timestamp
	if m.lastSweep.IsZero() {
		m.lastSweep = now
	} else if now.Sub(m.lastSweep) >= sweepInterval {
		errs = append(errs, m.expire(now))
		m.lastSweep = now
	}

	key := keyOf(info.FiveTuple)
	dir := 0
	flow, ok := m.flows[key]
	if !ok {
		if rev, found := m.flows[key.reverse()]; found {
			flow, key, dir = rev, key.reverse(), 1
		}
	}

	if flow != nil && flow.done {
		if info.TCP != nil && !slices.Contains(info.TCP.Flags, "SYN") && now.Sub(flow.closedAt) < m.linger() {
			return errors.Join(errs...)
		}
		delete(m.flows, key)
		flow = nil
	}

	if flow != nil && now.Sub(flow.last) >= m.cfg.IdleTimeout {
		delete(m.flows, key)
		errs = append(errs, m.emit(flow))
		flow = nil
	}

	if flow == nil {
		key, dir = keyOf(info.FiveTuple), 0
		flow = newFlowState(key, info)
		m.flows[key] = flow
	} else if m.cfg.ActiveTimeout > 0 && now.Sub(flow.first) >= m.cfg.ActiveTimeout {
		errs = append(errs, m.emit(flow))
		flow.restart()
	}

	flow.observe(info, dir, m.cfg.Detailed, m.cfg.MaxDetail)

	if flow.complete() {
		errs = append(errs, m.emit(flow))
		flow.done = true
		flow.closedAt = now
	}
	return errors.Join(errs...)
}

// Flush emits every open flow, oldest first, and forgets all state.
func (m *Meter) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make([]*flowState, 0, len(m.flows))
	for _, f := range m.flows {
		if !f.done {
			pending = append(pending, f)
		}
	}
	m.flows = make(map[flowKey]*flowState)
	return m.emitAll(pending)
}

// Active returns the number of flows that have not been emitted yet.
func (m *Meter) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, f := range m.flows {
		if !f.done {
			n++
		}
	}
	return n
}

// Expire emits flows that have been idle for IdleTimeout as of now. Live captures
// call it from a ticker so quiet flows are not held until the next packet arrives.
func (m *Meter) Expire(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expire(now)
}

// expire emits and drops flows idle since before now-IdleTimeout, and forgets
// closed flows whose linger window has passed.
func (m *Meter) expire(now time.Time) error {
	var idle []*flowState
	for key, f := range m.flows {
		if f.done {
			if now.Sub(f.closedAt) >= m.linger() {
				delete(m.flows, key)
			}
			continue
		}
		if now.Sub(f.last) < m.cfg.IdleTimeout {
			continue
		}
		delete(m.flows, key)
		idle = append(idle, f)
	}
	return m.emitAll(idle)
}

func (m *Meter) linger() time.Duration {
	return min(closeLinger, m.cfg.IdleTimeout)
}

func (m *Meter) emitAll(flows []*flowState) error {
	slices.SortFunc(flows, func(a, b *flowState) int { return a.first.Compare(b.first) })
	var errs []error
	for _, f := range flows {
		errs = append(errs, m.emit(f))
	}
	return errors.Join(errs...)
}

func (m *Meter) emit(f *flowState) error {
	rec := f.record(m.cfg.Detailed)
	if err := m.out.Append(rec); err != nil {
		m.logger.Error("failed to persist flow record", "flow_id", rec.FlowID, "error", err)
		return fmt.Errorf("flow %s: %w", rec.FlowID, err)
	}
	m.logger.Debug("flow record persisted", "flow_id", rec.FlowID, "packets", rec.Packets, "bytes", rec.Bytes)
	return nil
}
