package flowlog

import (
	"NetFlowLog/internal/model"
	"io"
	"sync"
)

// SinkWriter appends flow records to a long-lived io.Writer such as an already
// open file or os.Stdout. Unlike Writer it serializes callers with a mutex, since
// an arbitrary io.Writer promises nothing about concurrent writes.
type SinkWriter struct {
	mu   sync.Mutex
	dst  io.Writer
	name string
}

// NewSinkWriter wraps dst. name only appears in error messages.
func NewSinkWriter(dst io.Writer, name string) *SinkWriter {
	return &SinkWriter{dst: dst, name: name}
}

// Append encodes record and writes it to the sink in a single Write call.
func (s *SinkWriter) Append(record *model.FlowRecord) error {
	line, err := EncodeLine(record)
	if err != nil {
		return &PersistenceError{Op: "encode", Path: s.name, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.dst.Write(line)
	if err == nil && n < len(line) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &PersistenceError{Op: "write", Path: s.name, Err: err}
	}
	return nil
}
