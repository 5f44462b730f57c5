package protocol

import (
	"NetFlowLog/internal/model"
	"encoding/binary"
	"errors"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	ErrNotIP        = errors.New("not an IP packet")
	ErrNotTransport = errors.New("not a TCP or UDP packet")
)

// tcpFlagNames lists TCP flags in wire bit order, least significant first.
var tcpFlagNames = [...]string{"FIN", "SYN", "RST", "PSH", "ACK", "URG", "ECE", "CWR", "NS"}

// ParsePacket extracts the flow-relevant metadata of a decoded packet.
// Only TCP and UDP over IPv4 or IPv6 are accepted.
func ParsePacket(packet gopacket.Packet) (*model.PacketInfo, error) {
	info := &model.PacketInfo{
		Timestamp:  time.Now(), // overwritten by capture metadata when available
		Length:     len(packet.Data()),
		ChecksumOK: true,
	}

	if meta := packet.Metadata(); meta != nil {
		if !meta.Timestamp.IsZero() {
			info.Timestamp = meta.Timestamp
		}
		if meta.Length > 0 {
			info.Length = meta.Length
		}
	}

	var fiveTuple model.FiveTuple

	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		fiveTuple.SrcIP = ip.SrcIP
		fiveTuple.DstIP = ip.DstIP
		fiveTuple.Protocol = uint8(ip.Protocol)
		info.ChecksumOK = ipv4HeaderChecksumOK(ip.Contents)
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		fiveTuple.SrcIP = ip.SrcIP
		fiveTuple.DstIP = ip.DstIP
	} else {
		return nil, ErrNotIP
	}

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		fiveTuple.SrcPort = uint16(tcp.SrcPort)
		fiveTuple.DstPort = uint16(tcp.DstPort)
		fiveTuple.Protocol = uint8(layers.IPProtocolTCP)
		info.TCP = &model.TCPInfo{
			Seq:        tcp.Seq,
			PayloadLen: len(tcp.Payload),
			Flags:      TCPFlags(tcp),
		}
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		fiveTuple.SrcPort = uint16(udp.SrcPort)
		fiveTuple.DstPort = uint16(udp.DstPort)
		fiveTuple.Protocol = uint8(layers.IPProtocolUDP)
	} else {
		return nil, ErrNotTransport
	}

	info.FiveTuple = fiveTuple
	return info, nil
}

// TCPFlags returns the names of the flags set on a segment.
func TCPFlags(tcp *layers.TCP) []string {
	set := [...]bool{tcp.FIN, tcp.SYN, tcp.RST, tcp.PSH, tcp.ACK, tcp.URG, tcp.ECE, tcp.CWR, tcp.NS}
	var flags []string
	for i, on := range set {
		if on {
			flags = append(flags, tcpFlagNames[i])
		}
	}
	return flags
}

// ProtocolName renders an IP protocol number the way flow records spell it ("TCP", "UDP", ...).
func ProtocolName(proto uint8) string {
	return layers.IPProtocol(proto).String()
}

// ipv4HeaderChecksumOK verifies the one's complement sum over the header, checksum field included.
func ipv4HeaderChecksumOK(header []byte) bool {
	if len(header) < 20 || len(header)%2 != 0 {
		return false
	}
	var sum uint32
	for i := 0; i < len(header); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(header[i:]))
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return sum == 0xffff
}
