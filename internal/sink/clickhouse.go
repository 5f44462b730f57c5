package sink

import (
	"NetFlowLog/internal/config"
	"NetFlowLog/internal/model"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS flow_records (
    InsertedAt       DateTime DEFAULT now(),
    Timestamp        String,
    FlowID           String,
    SrcIP            String,
    DstIP            String,
    SrcPort          UInt16,
    DstPort          UInt16,
    Protocol         LowCardinality(String),
    Packets          UInt32,
    Bytes            UInt64,
    Duration         Float64,
    ChecksumErrors   UInt32,
    DroppedPackets   UInt32,
    Retransmissions  UInt32,
    Flags            Array(String),
    HasPacketSizes   UInt8,
    PacketSizes      Array(UInt32),
    HasInterArrivals UInt8,
    InterArrivals    Array(Float64)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(InsertedAt)
ORDER BY (InsertedAt, FlowID);
`

const insertStatement = `INSERT INTO flow_records (
    Timestamp, FlowID, SrcIP, DstIP, SrcPort, DstPort, Protocol, Packets, Bytes, Duration,
    ChecksumErrors, DroppedPackets, Retransmissions, Flags,
    HasPacketSizes, PacketSizes, HasInterArrivals, InterArrivals)`

// ClickHouseWriter mirrors flow records into the ClickHouse flow_records table.
// ClickHouse arrays cannot be Nullable, so absent detail lists are stored as
// empty arrays with their Has* column set to 0.
type ClickHouseWriter struct {
	conn    driver.Conn
	timeout time.Duration
	logger  *slog.Logger
}

// NewClickHouseWriter connects to ClickHouse and ensures the table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig, logger *slog.Logger) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.TimeoutDuration())
	defer cancel()
	if err := conn.Exec(ctx, createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	logger.Info("connected to ClickHouse and ensured table exists", "host", cfg.Host, "database", cfg.Database)

	return &ClickHouseWriter{conn: conn, timeout: cfg.TimeoutDuration(), logger: logger}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.TimeoutDuration(),
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.TimeoutDuration())
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// Append inserts one row for the record.
func (w *ClickHouseWriter) Append(record *model.FlowRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, insertStatement)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	if err := batch.Append(rowValues(record)...); err != nil {
		batch.Abort()
		return fmt.Errorf("failed to append flow to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// Close closes the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}

// rowValues lays a record out in insertStatement column order.
func rowValues(r *model.FlowRecord) []any {
	flags := r.Flags
	if flags == nil {
		flags = []string{}
	}
	sizes, hasSizes := r.PacketSizes, uint8(1)
	if sizes == nil {
		sizes, hasSizes = []uint32{}, 0
	}
	gaps, hasGaps := r.InterArrivals, uint8(1)
	if gaps == nil {
		gaps, hasGaps = []float64{}, 0
	}
	return []any{
		r.Timestamp, r.FlowID, r.SrcIP, r.DstIP, r.SrcPort, r.DstPort, r.Protocol,
		r.Packets, r.Bytes, r.Duration,
		r.ChecksumErrors, r.DroppedPackets, r.Retransmissions, flags,
		hasSizes, sizes, hasGaps, gaps,
	}
}
