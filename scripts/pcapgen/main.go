package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// generator writes synthetic sessions with monotonically increasing timestamps.
type generator struct {
	w       *pcapgo.Writer
	rng     *rand.Rand
	now     time.Time
	badSums float64
	packets int
}

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	sessions := flag.Int("c", 100, "Number of sessions to generate")
	udpShare := flag.Float64("udp", 0.3, "Fraction of sessions that are UDP request/response pairs")
	badSums := flag.Float64("bad-checksum", 0.01, "Fraction of packets whose IPv4 header checksum is corrupted")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	g := &generator{
		w:       pcapWriter,
		rng:     rand.New(rand.NewSource(*seed)),
		now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		badSums: *badSums,
	}

	log.Printf("Generating %d sessions into %s...", *sessions, *outputFile)
	for i := 0; i < *sessions; i++ {
		client := net.IP{10, 0, byte(i >> 8), byte(i)}
		server := net.IP{192, 168, 1, byte(1 + g.rng.Intn(20))}
		if g.rng.Float64() < *udpShare {
			g.udpExchange(client, server)
		} else {
			g.tcpSession(client, server)
		}
	}
	log.Printf("Successfully generated %d packets into %s.", g.packets, *outputFile)
}

func (g *generator) tcpSession(client, server net.IP) {
	cport := layers.TCPPort(g.rng.Intn(65535-1024) + 1024)
	sport := layers.TCPPort(443)
	cseq, sseq := g.rng.Uint32(), g.rng.Uint32()

	g.tcp(client, server, cport, sport, &layers.TCP{Seq: cseq, SYN: true}, nil)
	g.tcp(server, client, sport, cport, &layers.TCP{Seq: sseq, Ack: cseq + 1, SYN: true, ACK: true}, nil)
	cseq++
	sseq++
	g.tcp(client, server, cport, sport, &layers.TCP{Seq: cseq, Ack: sseq, ACK: true}, nil)

	for n := g.rng.Intn(8) + 1; n > 0; n-- {
		payload := make([]byte, g.rng.Intn(1400)+50)
		g.rng.Read(payload)
		g.tcp(client, server, cport, sport, &layers.TCP{Seq: cseq, Ack: sseq, PSH: true, ACK: true}, payload)
		if g.rng.Intn(10) == 0 {
			g.tcp(client, server, cport, sport, &layers.TCP{Seq: cseq, Ack: sseq, PSH: true, ACK: true}, payload)
		}
		cseq += uint32(len(payload))
		g.tcp(server, client, sport, cport, &layers.TCP{Seq: sseq, Ack: cseq, ACK: true}, nil)
	}

	if g.rng.Intn(20) == 0 {
		g.tcp(client, server, cport, sport, &layers.TCP{Seq: cseq, RST: true}, nil)
		return
	}
	g.tcp(client, server, cport, sport, &layers.TCP{Seq: cseq, Ack: sseq, FIN: true, ACK: true}, nil)
	g.tcp(server, client, sport, cport, &layers.TCP{Seq: sseq, Ack: cseq + 1, FIN: true, ACK: true}, nil)
	g.tcp(client, server, cport, sport, &layers.TCP{Seq: cseq + 1, Ack: sseq + 1, ACK: true}, nil)
}

func (g *generator) udpExchange(client, server net.IP) {
	cport := layers.UDPPort(g.rng.Intn(65535-1024) + 1024)
	query := make([]byte, g.rng.Intn(60)+20)
	answer := make([]byte, g.rng.Intn(400)+40)
	g.rng.Read(query)
	g.rng.Read(answer)
	g.udp(client, server, cport, 53, query)
	g.udp(server, client, 53, cport, answer)
}

func (g *generator) tcp(src, dst net.IP, sport, dport layers.TCPPort, tcp *layers.TCP, payload []byte) {
	tcp.SrcPort, tcp.DstPort = sport, dport
	tcp.Window = 14600
	ip := g.ipv4(src, dst, layers.IPProtocolTCP)
	tcp.SetNetworkLayerForChecksum(ip)
	g.write(ip, tcp, payload)
}

func (g *generator) udp(src, dst net.IP, sport, dport layers.UDPPort, payload []byte) {
	ip := g.ipv4(src, dst, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: sport, DstPort: dport}
	udp.SetNetworkLayerForChecksum(ip)
	g.write(ip, udp, payload)
}

func (g *generator) ipv4(src, dst net.IP, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{SrcIP: src, DstIP: dst, Version: 4, TTL: 64, Protocol: proto}
}

func (g *generator) write(ip *layers.IPv4, transport gopacket.SerializableLayer, payload []byte) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload(payload)); err != nil {
		log.Fatalf("Failed to serialize layers: %v", err)
	}
	data := buf.Bytes()
	if g.rng.Float64() < g.badSums {
		// Ethernet header is 14 bytes; the IPv4 checksum sits at offset 10.
		data[14+10] ^= 0xFF
	}

	g.now = g.now.Add(time.Duration(g.rng.Intn(50)+1) * time.Millisecond)
	ci := gopacket.CaptureInfo{
		Timestamp:     g.now,
		CaptureLength: len(data),
		Length:        len(data),
	}
	if err := g.w.WritePacket(ci, data); err != nil {
		log.Fatalf("Failed to write packet: %v", err)
	}
	g.packets++
}
