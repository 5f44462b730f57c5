// Package flowlog appends flow records to a newline-delimited JSON log.
package flowlog

import (
	"NetFlowLog/internal/model"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
)

// DefaultPath is where records go when no path is configured.
const DefaultPath = "/var/log/vstp_logs.jsonl"

const defaultFileMode os.FileMode = 0644

// Writer appends flow records to a JSONL file. Every Append opens the file in
// append mode, issues a single write for the whole line, and closes it again, so
// no handle outlives the call and the file may be rotated or removed externally
// between calls.
//
// Writer holds no lock. Concurrent Appends from several goroutines or processes
// interleave at whatever granularity the OS gives O_APPEND writes.
// It implements the model.Writer interface.
type Writer struct {
	path   string
	mode   os.FileMode
	logger *slog.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithFileMode sets the permission bits used when the log file is created.
func WithFileMode(mode os.FileMode) Option {
	return func(w *Writer) { w.mode = mode }
}

// WithLogger sets the logger used for non-fatal close errors.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

// NewWriter creates a writer for the log file at path. An empty path selects DefaultPath.
// The file is not touched until the first Append.
func NewWriter(path string, opts ...Option) *Writer {
	if path == "" {
		path = DefaultPath
	}
	w := &Writer{path: path, mode: defaultFileMode, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the destination file.
func (w *Writer) Path() string {
	return w.path
}

// Append serializes record and appends it, followed by a newline, to the log file.
// The file is created if missing and never truncated. On error nothing has been
// written and the returned error matches ErrPersistence.
func (w *Writer) Append(record *model.FlowRecord) error {
	line, err := EncodeLine(record)
	if err != nil {
		return &PersistenceError{Op: "encode", Path: w.path, Err: err}
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, w.mode)
	if err != nil {
		return &PersistenceError{Op: "open", Path: w.path, Err: err}
	}

	if _, err := f.Write(line); err != nil {
		f.Close()
		return &PersistenceError{Op: "write", Path: w.path, Err: err}
	}

	// The line already belongs to the kernel; reporting a failure here would
	// invite a retry that duplicates it.
	if err := f.Close(); err != nil {
		w.logger.Warn("closing flow log failed after write", "path", w.path, "error", err)
	}
	return nil
}

// EncodeLine renders record as one compact JSON object terminated by '\n'.
// A nil Flags slice is written as an empty array since flags is not optional.
func EncodeLine(record *model.FlowRecord) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil flow record")
	}
	r := *record
	if r.Flags == nil {
		r.Flags = []string{}
	}
	data, err := json.Marshal(&r)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
