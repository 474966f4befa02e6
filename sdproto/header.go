package sdproto

import "encoding/binary"

// HeaderSize is the common prefix shared by every request and response.
// BodySize is the opcode-specific region that follows it; for responses its
// first four bytes are always the Result code.
const (
	HeaderSize = 16
	BodySize   = 32
	MsgSize    = HeaderSize + BodySize
)

// Header is the 16-byte prefix of every request and response:
// proto_ver, opcode, flags, epoch, id, data_length. Requests and responses
// use the same shape; a response's "flags" slot is unused.
type Header struct {
	ProtoVer   uint8
	Opcode     Opcode
	Flags      Flags
	Epoch      uint32
	ID         uint32
	DataLength uint32
}

func (h Header) Encode(buf []byte) {
	_ = buf[HeaderSize-1]
	buf[0] = h.ProtoVer
	buf[1] = uint8(h.Opcode)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(h.Flags))
	binary.LittleEndian.PutUint32(buf[4:8], h.Epoch)
	binary.LittleEndian.PutUint32(buf[8:12], h.ID)
	binary.LittleEndian.PutUint32(buf[12:16], h.DataLength)
}

func DecodeHeader(buf []byte) Header {
	_ = buf[HeaderSize-1]
	return Header{
		ProtoVer:   buf[0],
		Opcode:     Opcode(buf[1]),
		Flags:      Flags(binary.LittleEndian.Uint16(buf[2:4])),
		Epoch:      binary.LittleEndian.Uint32(buf[4:8]),
		ID:         binary.LittleEndian.Uint32(buf[8:12]),
		DataLength: binary.LittleEndian.Uint32(buf[12:16]),
	}
}
