package model

import (
	"net"
	"time"
)

// FiveTuple represents the 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// TCPInfo carries the per-segment TCP state the flow meter needs.
type TCPInfo struct {
	Seq        uint32
	PayloadLen int
	Flags      []string // flag names set on the segment, in wire bit order
}

// PacketInfo holds the metadata extracted from a single packet.
type PacketInfo struct {
	Timestamp time.Time
	FiveTuple FiveTuple
	Length    int

	// ChecksumOK is false when the IPv4 header checksum did not verify.
	// Always true for IPv6, which has no header checksum.
	ChecksumOK bool

	// TCP is nil for non-TCP packets.
	TCP *TCPInfo
}

// FlowRecord is a summarized accounting of one network flow at the moment it was logged.
// It is serialized as one line of the flow log, so the JSON keys are part of the file format.
// PacketSizes and InterArrivals are nil when no per-packet detail was captured and are
// written as null, never omitted.
type FlowRecord struct {
	Timestamp       string    `json:"timestamp"`
	FlowID          string    `json:"flow_id"`
	SrcIP           string    `json:"src_ip"`
	DstIP           string    `json:"dst_ip"`
	SrcPort         uint16    `json:"src_port"`
	DstPort         uint16    `json:"dst_port"`
	Protocol        string    `json:"protocol"`
	Packets         uint32    `json:"packets"`
	Bytes           uint64    `json:"bytes"`
	Duration        float64   `json:"duration"`
	ChecksumErrors  uint32    `json:"checksum_errors"`
	DroppedPackets  uint32    `json:"dropped_packets"`
	Retransmissions uint32    `json:"retransmissions"`
	Flags           []string  `json:"flags"`
	PacketSizes     []uint32  `json:"packet_sizes"`
	InterArrivals   []float64 `json:"inter_arrivals"`
}
