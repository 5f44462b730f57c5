package pcap

import (
	"NetFlowLog/internal/engine/protocol"
	"NetFlowLog/internal/model"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PacketHandler receives every packet the reader could parse.
type PacketHandler func(info *model.PacketInfo) error

// pcapngMagic is the block type of a pcapng Section Header Block.
var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// packetSource is satisfied by both pcapgo.Reader and pcapgo.NgReader.
type packetSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Reader reads packets from a classic pcap or pcapng stream.
type Reader struct {
	src     packetSource
	closer  io.Closer
	skipped int
}

// NewReader creates a reader over r, detecting pcapng from its first block.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(pcapngMagic))
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	if bytes.Equal(magic, pcapngMagic) {
		src, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to read pcapng header: %w", err)
		}
		return &Reader{src: src}, nil
	}
	src, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	return &Reader{src: src}, nil
}

// Open creates a pcap reader for the given file path.
func Open(filePath string) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Close closes the underlying file when the reader was created by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Skipped reports how many frames could not be parsed as TCP or UDP over IP.
func (r *Reader) Skipped() int {
	return r.skipped
}

// ReadPackets reads the stream to the end, handing each parsed packet to handle.
// Frames the parser rejects are skipped. A handler error stops the read and is returned.
func (r *Reader) ReadPackets(handle PacketHandler) error {
	for {
		data, ci, err := r.src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read packet: %w", err)
		}

		packet := gopacket.NewPacket(data, r.src.LinkType(), gopacket.Default)
		packet.Metadata().CaptureInfo = ci

		info, err := protocol.ParsePacket(packet)
		if err != nil {
			r.skipped++
			continue
		}
		if err := handle(info); err != nil {
			return err
		}
	}
}
