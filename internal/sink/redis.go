package sink

import (
	"NetFlowLog/internal/config"
	"NetFlowLog/internal/model"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWriter mirrors flow records onto a Redis stream so live consumers can tail them.
type RedisWriter struct {
	client  *redis.Client
	stream  string
	maxLen  int64
	timeout time.Duration
}

// NewRedisWriter connects to Redis and verifies the connection with a PING.
func NewRedisWriter(cfg config.RedisConfig, logger *slog.Logger) (*RedisWriter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.TimeoutDuration(),
		ReadTimeout:  cfg.TimeoutDuration(),
		WriteTimeout: cfg.TimeoutDuration(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.TimeoutDuration())
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	logger.Info("connected to Redis", "addr", cfg.Addr, "stream", cfg.Stream)

	return &RedisWriter{
		client:  client,
		stream:  cfg.Stream,
		maxLen:  cfg.MaxLen,
		timeout: cfg.TimeoutDuration(),
	}, nil
}

// Append adds the record to the stream, trimming it to roughly maxLen entries when set.
func (w *RedisWriter) Append(record *model.FlowRecord) error {
	args, err := xaddArgs(w.stream, w.maxLen, record)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to add flow record to stream %s: %w", w.stream, err)
	}
	return nil
}

// Close closes the client.
func (w *RedisWriter) Close() error {
	return w.client.Close()
}

func xaddArgs(stream string, maxLen int64, record *model.FlowRecord) (*redis.XAddArgs, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode flow record: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"flow_id": record.FlowID,
			"record":  string(data),
		},
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	return args, nil
}
