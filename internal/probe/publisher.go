package probe

import (
	"NetFlowLog/internal/codec"
	"NetFlowLog/internal/config"
	"NetFlowLog/internal/model"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Publisher is responsible for publishing flow records to a NATS subject.
// It implements model.Writer so a meter can emit straight onto the bus.
type Publisher struct {
	nc      *nats.Conn
	subject string
	codec   codec.Codec
	logger  *slog.Logger
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.ProbeConfig, logger *slog.Logger) (*Publisher, error) {
	c, err := codec.New(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("ns-probe"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATSURL, err)
	}
	logger.Info("connected to NATS", "url", cfg.NATSURL, "subject", cfg.Subject, "encoding", c.Name())
	return &Publisher{nc: nc, subject: cfg.Subject, codec: c, logger: logger}, nil
}

// Append encodes the record and publishes it to the configured subject.
func (p *Publisher) Append(record *model.FlowRecord) error {
	data, err := p.codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode flow record: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish flow record: %w", err)
	}
	return nil
}

// Close flushes pending publishes, then drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Flush(); err != nil {
			p.logger.Warn("flushing NATS connection failed", "error", err)
		}
		if err := p.nc.Drain(); err != nil {
			p.logger.Warn("draining NATS connection failed", "error", err)
		}
		p.logger.Info("NATS connection drained and closed")
	}
}
