// Package codec encodes flow records for the message bus.
//
// The protobuf encoding follows this message layout:
//
//	message FlowRecord {
//	  string timestamp = 1;
//	  string flow_id = 2;
//	  string src_ip = 3;
//	  string dst_ip = 4;
//	  uint32 src_port = 5;
//	  uint32 dst_port = 6;
//	  string protocol = 7;
//	  uint32 packets = 8;
//	  uint64 bytes = 9;
//	  double duration = 10;
//	  uint32 checksum_errors = 11;
//	  uint32 dropped_packets = 12;
//	  uint32 retransmissions = 13;
//	  repeated string flags = 14;
//	  repeated uint32 packet_sizes = 15;
//	  repeated double inter_arrivals = 16;
//	  bool has_packet_sizes = 17;
//	  bool has_inter_arrivals = 18;
//	}
//
// The has_* fields keep an empty list distinct from an absent one.
package codec

import (
	"NetFlowLog/internal/model"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	JSON     = "json"
	Protobuf = "protobuf"
)

const (
	fieldTimestamp protowire.Number = iota + 1
	fieldFlowID
	fieldSrcIP
	fieldDstIP
	fieldSrcPort
	fieldDstPort
	fieldProtocol
	fieldPackets
	fieldBytes
	fieldDuration
	fieldChecksumErrors
	fieldDroppedPackets
	fieldRetransmissions
	fieldFlags
	fieldPacketSizes
	fieldInterArrivals
	fieldHasPacketSizes
	fieldHasInterArrivals
)

// Codec converts flow records to and from a wire encoding.
type Codec interface {
	Marshal(record *model.FlowRecord) ([]byte, error)
	Unmarshal(data []byte) (*model.FlowRecord, error)
	Name() string
}

// New returns the codec for an encoding name.
func New(encoding string) (Codec, error) {
	switch encoding {
	case JSON:
		return jsonCodec{}, nil
	case Protobuf:
		return protoCodec{}, nil
	}
	return nil, fmt.Errorf("unknown encoding: '%s'", encoding)
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return JSON }

func (jsonCodec) Marshal(record *model.FlowRecord) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil flow record")
	}
	return json.Marshal(record)
}

func (jsonCodec) Unmarshal(data []byte) (*model.FlowRecord, error) {
	var rec model.FlowRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

type protoCodec struct{}

func (protoCodec) Name() string { return Protobuf }

func (protoCodec) Marshal(r *model.FlowRecord) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil flow record")
	}
	var b []byte
	b = appendString(b, fieldTimestamp, r.Timestamp)
	b = appendString(b, fieldFlowID, r.FlowID)
	b = appendString(b, fieldSrcIP, r.SrcIP)
	b = appendString(b, fieldDstIP, r.DstIP)
	b = appendVarint(b, fieldSrcPort, uint64(r.SrcPort))
	b = appendVarint(b, fieldDstPort, uint64(r.DstPort))
	b = appendString(b, fieldProtocol, r.Protocol)
	b = appendVarint(b, fieldPackets, uint64(r.Packets))
	b = appendVarint(b, fieldBytes, r.Bytes)
	if math.Float64bits(r.Duration) != 0 {
		b = protowire.AppendTag(b, fieldDuration, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(r.Duration))
	}
	b = appendVarint(b, fieldChecksumErrors, uint64(r.ChecksumErrors))
	b = appendVarint(b, fieldDroppedPackets, uint64(r.DroppedPackets))
	b = appendVarint(b, fieldRetransmissions, uint64(r.Retransmissions))
	for _, flag := range r.Flags {
		b = protowire.AppendTag(b, fieldFlags, protowire.BytesType)
		b = protowire.AppendString(b, flag)
	}
	if r.PacketSizes != nil {
		var packed []byte
		for _, size := range r.PacketSizes {
			packed = protowire.AppendVarint(packed, uint64(size))
		}
		b = appendBytes(b, fieldPacketSizes, packed)
		b = appendVarint(b, fieldHasPacketSizes, 1)
	}
	if r.InterArrivals != nil {
		var packed []byte
		for _, gap := range r.InterArrivals {
			packed = protowire.AppendFixed64(packed, math.Float64bits(gap))
		}
		b = appendBytes(b, fieldInterArrivals, packed)
		b = appendVarint(b, fieldHasInterArrivals, 1)
	}
	return b, nil
}

func (protoCodec) Unmarshal(b []byte) (*model.FlowRecord, error) {
	r := &model.FlowRecord{Flags: []string{}}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		n, err := consumeField(r, num, typ, b)
		if err != nil {
			return nil, err
		}
		b = b[n:]
	}
	return r, nil
}

// consumeField decodes one field value into r and returns the bytes it used.
// Unknown fields are skipped.
func consumeField(r *model.FlowRecord, num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	var n int
	var err error

	switch {
	case typ == protowire.BytesType && isStringField(num):
		var s string
		s, n = protowire.ConsumeString(b)
		setString(r, num, s)
	case typ == protowire.BytesType && num == fieldPacketSizes:
		var packed []byte
		packed, n = protowire.ConsumeBytes(b)
		if n >= 0 {
			err = unpackSizes(r, packed)
		}
	case typ == protowire.BytesType && num == fieldInterArrivals:
		var packed []byte
		packed, n = protowire.ConsumeBytes(b)
		if n >= 0 {
			err = unpackGaps(r, packed)
		}
	case typ == protowire.VarintType && num == fieldPacketSizes:
		var v uint64
		v, n = protowire.ConsumeVarint(b)
		if n >= 0 {
			err = appendSize(r, v)
		}
	case typ == protowire.VarintType:
		var v uint64
		v, n = protowire.ConsumeVarint(b)
		if n >= 0 {
			err = setVarint(r, num, v)
		}
	case typ == protowire.Fixed64Type && num == fieldDuration:
		var v uint64
		v, n = protowire.ConsumeFixed64(b)
		r.Duration = math.Float64frombits(v)
	case typ == protowire.Fixed64Type && num == fieldInterArrivals:
		var v uint64
		v, n = protowire.ConsumeFixed64(b)
		r.InterArrivals = append(r.InterArrivals, math.Float64frombits(v))
	default:
		n = protowire.ConsumeFieldValue(num, typ, b)
	}
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, err
}

func isStringField(num protowire.Number) bool {
	switch num {
	case fieldTimestamp, fieldFlowID, fieldSrcIP, fieldDstIP, fieldProtocol, fieldFlags:
		return true
	}
	return false
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func setString(r *model.FlowRecord, num protowire.Number, s string) {
	switch num {
	case fieldTimestamp:
		r.Timestamp = s
	case fieldFlowID:
		r.FlowID = s
	case fieldSrcIP:
		r.SrcIP = s
	case fieldDstIP:
		r.DstIP = s
	case fieldProtocol:
		r.Protocol = s
	case fieldFlags:
		r.Flags = append(r.Flags, s)
	}
}

func setVarint(r *model.FlowRecord, num protowire.Number, v uint64) error {
	switch num {
	case fieldSrcPort, fieldDstPort:
		if v > math.MaxUint16 {
			return fmt.Errorf("field %d: port %d out of range", num, v)
		}
		if num == fieldSrcPort {
			r.SrcPort = uint16(v)
		} else {
			r.DstPort = uint16(v)
		}
	case fieldPackets, fieldChecksumErrors, fieldDroppedPackets, fieldRetransmissions:
		if v > math.MaxUint32 {
			return fmt.Errorf("field %d: value %d out of range", num, v)
		}
		switch num {
		case fieldPackets:
			r.Packets = uint32(v)
		case fieldChecksumErrors:
			r.ChecksumErrors = uint32(v)
		case fieldDroppedPackets:
			r.DroppedPackets = uint32(v)
		default:
			r.Retransmissions = uint32(v)
		}
	case fieldBytes:
		r.Bytes = v
	case fieldHasPacketSizes:
		if v != 0 && r.PacketSizes == nil {
			r.PacketSizes = []uint32{}
		}
	case fieldHasInterArrivals:
		if v != 0 && r.InterArrivals == nil {
			r.InterArrivals = []float64{}
		}
	}
	return nil
}

func appendSize(r *model.FlowRecord, v uint64) error {
	if v > math.MaxUint32 {
		return fmt.Errorf("packet size %d out of range", v)
	}
	r.PacketSizes = append(r.PacketSizes, uint32(v))
	return nil
}

func unpackSizes(r *model.FlowRecord, packed []byte) error {
	for len(packed) > 0 {
		v, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			return protowire.ParseError(n)
		}
		if err := appendSize(r, v); err != nil {
			return err
		}
		packed = packed[n:]
	}
	return nil
}

func unpackGaps(r *model.FlowRecord, packed []byte) error {
	for len(packed) > 0 {
		v, n := protowire.ConsumeFixed64(packed)
		if n < 0 {
			return protowire.ParseError(n)
		}
		r.InterArrivals = append(r.InterArrivals, math.Float64frombits(v))
		packed = packed[n:]
	}
	return nil
}
