package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultMaxPacketSize bounds the declared length of an incoming frame.
// Status responses with an embedded favicon stay well below it.
const DefaultMaxPacketSize = 1 << 21

// Packet identifiers of the status state.
const (
	PacketHandshake = 0x00
	PacketStatus    = 0x00
	PacketPing      = 0x01
)

// IntentStatus is the next-state value of a handshake that asks for the server status.
const IntentStatus = 1

// PacketBuilder assembles the body of one outgoing packet.
type PacketBuilder struct {
	buf []byte
}

// NewPacket starts a packet body with the given packet id.
func NewPacket(id uint32) *PacketBuilder {
	return &PacketBuilder{buf: AppendVarInt(make([]byte, 0, 64), id)}
}

// VarInt appends a varint field.
func (p *PacketBuilder) VarInt(v uint32) *PacketBuilder {
	p.buf = AppendVarInt(p.buf, v)
	return p
}

// String appends a varint length-prefixed UTF-8 string field.
func (p *PacketBuilder) String(s string) *PacketBuilder {
	p.buf = AppendVarInt(p.buf, uint32(len(s)))
	p.buf = append(p.buf, s...)
	return p
}

// Uint16 appends a big-endian unsigned short field.
func (p *PacketBuilder) Uint16(v uint16) *PacketBuilder {
	p.buf = binary.BigEndian.AppendUint16(p.buf, v)
	return p
}

// Int64 appends a big-endian long field.
func (p *PacketBuilder) Int64(v int64) *PacketBuilder {
	p.buf = binary.BigEndian.AppendUint64(p.buf, uint64(v))
	return p
}

// Frame returns the body prefixed with its varint byte length.
func (p *PacketBuilder) Frame() []byte {
	out := AppendVarInt(make([]byte, 0, len(p.buf)+MaxVarIntLen), uint32(len(p.buf)))
	return append(out, p.buf...)
}

// Handshake builds the handshake frame declaring protocol version, target address and status intent.
func Handshake(protocolVersion int, host string, port uint16) []byte {
	return NewPacket(PacketHandshake).
		VarInt(uint32(int32(protocolVersion))).
		String(host).
		Uint16(port).
		VarInt(IntentStatus).
		Frame()
}

// StatusRequest builds the empty status request frame.
func StatusRequest() []byte {
	return NewPacket(PacketStatus).Frame()
}

// Ping builds a ping frame carrying payload.
func Ping(payload int64) []byte {
	return NewPacket(PacketPing).Int64(payload).Frame()
}

// Packet is one decoded incoming frame.
type Packet struct {
	Data []byte
	ID   uint32
}

// ReadPacket reads one length-prefixed frame from r and splits off its packet id.
// A declared length that is zero, above maxSize or not fully readable yields ErrMalformedFrame.
func ReadPacket(r io.ByteReader, maxSize int) (Packet, error) {
	length, err := ReadVarInt(r)
	if err != nil {
		return Packet{}, transportError(err, false)
	}
	if length == 0 || int64(length) > int64(maxSize) {
		return Packet{}, fmt.Errorf("%w: declared length %d", ErrMalformedFrame, length)
	}

	body := make([]byte, length)
	if rd, ok := r.(io.Reader); ok {
		if _, err := io.ReadFull(rd, body); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return Packet{}, transportError(err, true)
		}
	} else {
		for i := range body {
			b, err := r.ReadByte()
			if err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return Packet{}, transportError(err, true)
			}
			body[i] = b
		}
	}

	br := bytes.NewReader(body)
	id, err := ReadVarInt(br)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: packet id: %v", ErrMalformedFrame, err)
	}

	return Packet{ID: id, Data: body[len(body)-br.Len():]}, nil
}

// ReadString decodes a varint length-prefixed string from a packet payload.
func ReadString(data []byte) (string, []byte, error) {
	br := bytes.NewReader(data)
	n, err := ReadVarInt(br)
	if err != nil {
		return "", nil, fmt.Errorf("%w: string length: %v", ErrMalformedFrame, err)
	}

	rest := data[len(data)-br.Len():]
	if int64(n) > int64(len(rest)) {
		return "", nil, fmt.Errorf("%w: string length %d exceeds payload %d", ErrMalformedFrame, n, len(rest))
	}

	return string(rest[:n]), rest[n:], nil
}
