// Package sink combines the flow log with optional secondary stores.
package sink

import (
	"NetFlowLog/internal/model"
	"errors"
	"io"
	"log/slog"
)

// Mirror is a named secondary writer.
type Mirror struct {
	Name   string
	Writer model.Writer
}

// Fanout appends every record to a primary writer and then to each mirror.
// Only the primary decides the outcome: mirror failures are logged and swallowed,
// and mirrors are skipped when the primary fails so they never hold records the
// log does not.
type Fanout struct {
	primary model.Writer
	mirrors []Mirror
	logger  *slog.Logger
}

// NewFanout creates a fan-out writer.
func NewFanout(primary model.Writer, logger *slog.Logger, mirrors ...Mirror) *Fanout {
	return &Fanout{primary: primary, mirrors: mirrors, logger: logger}
}

// Append implements model.Writer.
func (f *Fanout) Append(record *model.FlowRecord) error {
	if err := f.primary.Append(record); err != nil {
		return err
	}
	for _, m := range f.mirrors {
		if err := m.Writer.Append(record); err != nil {
			f.logger.Warn("mirror append failed", "mirror", m.Name, "flow_id", record.FlowID, "error", err)
		}
	}
	return nil
}

// Close closes every mirror that holds a connection.
func (f *Fanout) Close() error {
	var errs []error
	for _, m := range f.mirrors {
		if c, ok := m.Writer.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
