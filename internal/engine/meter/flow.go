package meter

import (
	"NetFlowLog/internal/engine/protocol"
	"NetFlowLog/internal/model"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// flowNamespace seeds the name-based UUIDs used as flow IDs.
var flowNamespace = uuid.MustParse("6f0d3b1e-8a57-4c7e-9d0b-3c1f5e2a7b44")

// flowKey identifies one direction of a flow.
type flowKey struct {
	srcIP, dstIP     string // 16-byte form
	srcPort, dstPort uint16
	proto            uint8
}

func keyOf(ft model.FiveTuple) flowKey {
	return flowKey{
		srcIP:   string(ft.SrcIP.To16()),
		dstIP:   string(ft.DstIP.To16()),
		srcPort: ft.SrcPort,
		dstPort: ft.DstPort,
		proto:   ft.Protocol,
	}
}

func (k flowKey) reverse() flowKey {
	return flowKey{srcIP: k.dstIP, dstIP: k.srcIP, srcPort: k.dstPort, dstPort: k.srcPort, proto: k.proto}
}

// tcpDirection tracks sequence space for one side of a TCP conversation.
type tcpDirection struct {
	seqKnown bool
	nextSeq  uint32
	fin      bool
}

// flowState accumulates the counters for one bidirectional flow.
// The tuple is oriented from the side that sent the first packet.
type flowState struct {
	id    string
	tuple model.FiveTuple
	first time.Time
	last  time.Time

	packets         uint32
	bytes           uint64
	checksumErrors  uint32
	droppedPackets  uint32
	retransmissions uint32
	flags           []string

	sizes []uint32
	gaps  []float64

	dirs  [2]tcpDirection
	reset bool
	// done is set once the flow is emitted on TCP close. Until closedAt+closeLinger
	// it absorbs trailing segments without counting them.
	done     bool
	closedAt time.Time
}

func newFlowState(key flowKey, info *model.PacketInfo) *flowState {
	name := fmt.Sprintf("%x|%x|%d|%d|%d|%d", key.srcIP, key.dstIP, key.srcPort, key.dstPort, key.proto, info.Timestamp.UnixNano())
	return &flowState{
		id:    uuid.NewSHA1(flowNamespace, []byte(name)).String(),
		tuple: info.FiveTuple,
	}
}

// observe folds one packet into the flow. dir is 0 for the initiator's direction.
func (f *flowState) observe(info *model.PacketInfo, dir int, detailed bool, maxDetail int) {
	var gap float64
	if f.packets == 0 {
		f.first = info.Timestamp
	} else if d := info.Timestamp.Sub(f.last); d > 0 {
		gap = d.Seconds()
	}
	if info.Timestamp.After(f.last) || f.packets == 0 {
		f.last = info.Timestamp
	}

	f.packets++
	f.bytes += uint64(info.Length)
	if !info.ChecksumOK {
		f.checksumErrors++
	}

	if detailed && len(f.sizes) < maxDetail {
		if len(f.sizes) > 0 {
			f.gaps = append(f.gaps, gap)
		}
		f.sizes = append(f.sizes, uint32(info.Length))
	}

	if info.TCP != nil {
		f.observeTCP(info.TCP, &f.dirs[dir])
	}
}

func (f *flowState) observeTCP(tcp *model.TCPInfo, d *tcpDirection) {
	for _, flag := range tcp.Flags {
		if !slices.Contains(f.flags, flag) {
			f.flags = append(f.flags, flag)
		}
	}

	// SYN and FIN each occupy one sequence number.
	seqLen := uint32(tcp.PayloadLen)
	if slices.Contains(tcp.Flags, "SYN") {
		seqLen++
	}
	if slices.Contains(tcp.Flags, "FIN") {
		seqLen++
		d.fin = true
	}
	if slices.Contains(tcp.Flags, "RST") {
		f.reset = true
	}

	switch {
	case !d.seqKnown:
		d.seqKnown = true
		d.nextSeq = tcp.Seq + seqLen
	case seqLen == 0:
	case int32(tcp.Seq+seqLen-d.nextSeq) <= 0:
		f.retransmissions++
	case int32(tcp.Seq-d.nextSeq) > 0:
		f.droppedPackets++
		d.nextSeq = tcp.Seq + seqLen
	default:
		d.nextSeq = tcp.Seq + seqLen
	}
}

func (f *flowState) complete() bool {
	return f.reset || (f.dirs[0].fin && f.dirs[1].fin)
}

// restart clears the counters after an active-timeout sample. The flow keeps its
// id and TCP sequence state.
func (f *flowState) restart() {
	f.packets, f.bytes = 0, 0
	f.checksumErrors, f.droppedPackets, f.retransmissions = 0, 0, 0
	f.flags = nil
	f.sizes, f.gaps = nil, nil
}

func (f *flowState) record(detailed bool) *model.FlowRecord {
	rec := &model.FlowRecord{
		Timestamp:       f.last.UTC().Format(time.RFC3339Nano),
		FlowID:          f.id,
		SrcIP:           f.tuple.SrcIP.String(),
		DstIP:           f.tuple.DstIP.String(),
		SrcPort:         f.tuple.SrcPort,
		DstPort:         f.tuple.DstPort,
		Protocol:        protocol.ProtocolName(f.tuple.Protocol),
		Packets:         f.packets,
		Bytes:           f.bytes,
		Duration:        f.last.Sub(f.first).Seconds(),
		ChecksumErrors:  f.checksumErrors,
		DroppedPackets:  f.droppedPackets,
		Retransmissions: f.retransmissions,
		Flags:           append([]string{}, f.flags...),
	}
	if detailed {
		rec.PacketSizes = append([]uint32{}, f.sizes...)
		rec.InterArrivals = append([]float64{}, f.gaps...)
	}
	return rec
}
