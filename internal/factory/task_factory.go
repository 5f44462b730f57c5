package factory

import (
	"NetFlowLog/internal/config"
	"NetFlowLog/internal/flowlog"
	"NetFlowLog/internal/metrics"
	"NetFlowLog/internal/model"
	"NetFlowLog/internal/sink"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// MirrorFactory builds one secondary writer from the config.
type MirrorFactory func(cfg *config.Config, logger *slog.Logger) (model.Writer, error)

type mirrorDef struct {
	enabled func(cfg *config.Config) bool
	build   MirrorFactory
}

// registry holds the mapping of mirror names to their factory functions.
var registry = make(map[string]mirrorDef)

// RegisterMirror registers a mirror type. enabled decides from the config whether it is built.
func RegisterMirror(name string, enabled func(cfg *config.Config) bool, build MirrorFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("mirror type '%s' already registered", name))
	}
	registry[name] = mirrorDef{enabled: enabled, build: build}
}

func init() {
	RegisterMirror("clickhouse",
		func(cfg *config.Config) bool { return cfg.Mirrors.ClickHouse.Enabled },
		func(cfg *config.Config, logger *slog.Logger) (model.Writer, error) {
			return sink.NewClickHouseWriter(cfg.Mirrors.ClickHouse, logger)
		})
	RegisterMirror("redis",
		func(cfg *config.Config) bool { return cfg.Mirrors.Redis.Enabled },
		func(cfg *config.Config, logger *slog.Logger) (model.Writer, error) {
			return sink.NewRedisWriter(cfg.Mirrors.Redis, logger)
		})
}

// Chain is the assembled persistence path: metrics → fan-out → flow log (+ mirrors).
type Chain struct {
	Writer  model.Writer
	Log     *flowlog.Writer
	Fanout  *sink.Fanout
	Metrics *metrics.Writer
}

// Close releases the mirrors' connections.
func (c *Chain) Close() error {
	return c.Fanout.Close()
}

// Create builds the writer chain described by cfg, registering metrics on reg.
func Create(cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*Chain, error) {
	mode, err := cfg.FlowLog.Mode()
	if err != nil {
		return nil, err
	}
	logWriter := flowlog.NewWriter(cfg.FlowLog.Path, flowlog.WithFileMode(mode), flowlog.WithLogger(logger))

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	var mirrors []sink.Mirror
	for _, name := range names {
		def := registry[name]
		if !def.enabled(cfg) {
			continue
		}
		logger.Info("creating mirror", "mirror", name)
		w, err := def.build(cfg, logger)
		if err != nil {
			closeMirrors(mirrors)
			return nil, fmt.Errorf("error creating mirror '%s': %w", name, err)
		}
		mirrors = append(mirrors, sink.Mirror{Name: name, Writer: w})
	}

	fanout := sink.NewFanout(logWriter, logger, mirrors...)
	instrumented := metrics.Instrument(fanout, reg)
	logger.Info("flow log ready", "path", logWriter.Path(), "mirrors", len(mirrors))

	return &Chain{Writer: instrumented, Log: logWriter, Fanout: fanout, Metrics: instrumented}, nil
}

func closeMirrors(mirrors []sink.Mirror) {
	for _, m := range mirrors {
		if c, ok := m.Writer.(io.Closer); ok {
			c.Close()
		}
	}
}
