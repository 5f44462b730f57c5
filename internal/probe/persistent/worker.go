package persistent

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const snapLen = 65535

// Worker copies raw captured frames into a pcap file on a single goroutine, so
// the capture loop never blocks on disk.
type Worker struct {
	packetChan chan gopacket.Packet
	file       *os.File
	writer     *pcapgo.Writer
	logger     *slog.Logger
	wg         sync.WaitGroup
	once       sync.Once
	written    atomic.Uint64
	dropped    atomic.Uint64
}

// NewWorker creates dir if needed, opens a timestamped pcap file in it and
// starts the writer goroutine.
func NewWorker(dir string, linkType layers.LinkType, bufferSize int, logger *slog.Logger) (*Worker, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}
	if bufferSize <= 0 {
		bufferSize = 10000
	}

	fileName := time.Now().Format("2006-01-02_15-04-05") + ".pcap"
	file, err := os.OpenFile(filepath.Join(dir, fileName), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	writer := pcapgo.NewWriter(file)
	if err := writer.WriteFileHeader(snapLen, linkType); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}

	w := &Worker{
		packetChan: make(chan gopacket.Packet, bufferSize),
		file:       file,
		writer:     writer,
		logger:     logger.With("component", "capture", "file", file.Name()),
	}
	w.wg.Add(1)
	go w.run()
	w.logger.Info("raw capture started")
	return w, nil
}

func (w *Worker) run() {
	defer w.wg.Done()
	for packet := range w.packetChan {
		if err := w.writer.WritePacket(packet.Metadata().CaptureInfo, packet.Data()); err != nil {
			w.logger.Warn("failed to write packet", "error", err)
			continue
		}
		w.written.Add(1)
	}
}

// Enqueue hands a frame to the writer goroutine. A full buffer drops the frame.
func (w *Worker) Enqueue(packet gopacket.Packet) {
	select {
	case w.packetChan <- packet:
	default:
		w.dropped.Add(1)
	}
}

// Stats reports frames written and frames dropped on a full buffer.
func (w *Worker) Stats() (written, dropped uint64) {
	return w.written.Load(), w.dropped.Load()
}

// Path returns the pcap file being written.
func (w *Worker) Path() string {
	return w.file.Name()
}

// Stop drains the buffer and closes the file. Enqueue must not be called afterwards.
func (w *Worker) Stop() error {
	var err error
	w.once.Do(func() {
		close(w.packetChan)
		w.wg.Wait()
		err = w.file.Close()
		written, dropped := w.Stats()
		w.logger.Info("raw capture stopped", "written", written, "dropped", dropped)
	})
	return err
}
