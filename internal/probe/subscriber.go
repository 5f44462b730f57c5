package probe

import (
	"NetFlowLog/internal/codec"
	"NetFlowLog/internal/config"
	"NetFlowLog/internal/model"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nats-io/nats.go"
)

// Subscriber consumes flow records from a NATS subject and appends each one to a writer.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	codec   codec.Codec
	out     model.Writer
	logger  *slog.Logger

	received atomic.Uint64
	failed   atomic.Uint64
}

// NewSubscriber creates a new NATS subscriber that persists records through out.
func NewSubscriber(cfg config.ProbeConfig, out model.Writer, logger *slog.Logger) (*Subscriber, error) {
	c, err := codec.New(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("ns-flowlogd"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATSURL, err)
	}
	logger.Info("connected to NATS", "url", cfg.NATSURL)
	return &Subscriber{nc: nc, subject: cfg.Subject, codec: c, out: out, logger: logger}, nil
}

// Start subscribes to the configured subject. Messages are handled on the
// connection's delivery goroutine, one at a time, in arrival order.
func (s *Subscriber) Start() error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		if err := s.HandleMessage(msg.Data); err != nil {
			s.logger.Error("dropping flow record", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("subscribed, waiting for flow records", "subject", s.subject)
	return nil
}

// HandleMessage decodes one message and appends the record.
func (s *Subscriber) HandleMessage(data []byte) error {
	s.received.Add(1)
	record, err := s.codec.Unmarshal(data)
	if err != nil {
		s.failed.Add(1)
		return fmt.Errorf("failed to decode flow record: %w", err)
	}
	if err := s.out.Append(record); err != nil {
		s.failed.Add(1)
		return err
	}
	return nil
}

// Stats returns how many messages were received and how many could not be persisted.
func (s *Subscriber) Stats() (received, failed uint64) {
	return s.received.Load(), s.failed.Load()
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("unsubscribe failed", "error", err)
		}
	}
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("NATS connection closed")
	}
}
