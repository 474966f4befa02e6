package sdproto

import "encoding/binary"

// VdiReqData is the 32-byte opcode-specific body of NEW_VDI, LOCK_VDI,
// RELEASE_VDI, GET_VDI_INFO, READ_VDIS, FLUSH_VDI and DEL_VDI requests. The
// VDI name and tag travel as the request's write payload (name[256] ||
// tag[256]), not in this body.
type VdiReqData struct {
	VdiSize uint64
	VdiID   uint32
	Copies  uint32
	SnapID  uint32
}

func (d VdiReqData) Encode(buf []byte) {
	_ = buf[BodySize-1]
	binary.LittleEndian.PutUint64(buf[0:8], d.VdiSize)
	binary.LittleEndian.PutUint32(buf[8:12], d.VdiID)
	binary.LittleEndian.PutUint32(buf[12:16], d.Copies)
	binary.LittleEndian.PutUint32(buf[16:20], d.SnapID)
	for i := 20; i < BodySize; i++ {
		buf[i] = 0
	}
}

func DecodeVdiReqData(buf []byte) VdiReqData {
	_ = buf[BodySize-1]
	return VdiReqData{
		VdiSize: binary.LittleEndian.Uint64(buf[0:8]),
		VdiID:   binary.LittleEndian.Uint32(buf[8:12]),
		Copies:  binary.LittleEndian.Uint32(buf[12:16]),
		SnapID:  binary.LittleEndian.Uint32(buf[16:20]),
	}
}

// VdiRspData is the 32-byte opcode-specific body of the matching response:
// result, then 24 reserved bytes, then vdi_id.
type VdiRspData struct {
	Result Result
	VdiID  uint32
}

func (d VdiRspData) Encode(buf []byte) {
	_ = buf[BodySize-1]
	binary.LittleEndian.PutUint32(buf[0:4], uint32(d.Result))
	for i := 4; i < 28; i++ {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint32(buf[28:32], d.VdiID)
}

func DecodeVdiRspData(buf []byte) VdiRspData {
	_ = buf[BodySize-1]
	return VdiRspData{
		Result: Result(binary.LittleEndian.Uint32(buf[0:4])),
		VdiID:  binary.LittleEndian.Uint32(buf[28:32]),
	}
}

type VdiRequest struct {
	Header
	VdiReqData
}

func (r VdiRequest) Encode() []byte {
	buf := make([]byte, MsgSize)
	r.Header.Encode(buf[:HeaderSize])
	r.VdiReqData.Encode(buf[HeaderSize:])
	return buf
}

func DecodeVdiRequest(buf []byte) VdiRequest {
	_ = buf[MsgSize-1]
	return VdiRequest{
		Header:     DecodeHeader(buf[:HeaderSize]),
		VdiReqData: DecodeVdiReqData(buf[HeaderSize:]),
	}
}

type VdiResponse struct {
	Header
	VdiRspData
}

func (r VdiResponse) Encode() []byte {
	buf := make([]byte, MsgSize)
	r.Header.Encode(buf[:HeaderSize])
	r.VdiRspData.Encode(buf[HeaderSize:])
	return buf
}

func DecodeVdiResponse(buf []byte) VdiResponse {
	_ = buf[MsgSize-1]
	return VdiResponse{
		Header:     DecodeHeader(buf[:HeaderSize]),
		VdiRspData: DecodeVdiRspData(buf[HeaderSize:]),
	}
}

// GenericReqData is the 32-byte body (8 reserved u32 words) backing opcodes
// that carry no structured payload.
type GenericReqData struct{}

func (GenericReqData) Encode(buf []byte) {
	_ = buf[BodySize-1]
	for i := range buf[:BodySize] {
		buf[i] = 0
	}
}

type GenericRspData struct {
	Result Result
}

func (d GenericRspData) Encode(buf []byte) {
	_ = buf[BodySize-1]
	binary.LittleEndian.PutUint32(buf[0:4], uint32(d.Result))
	for i := 4; i < BodySize; i++ {
		buf[i] = 0
	}
}

func DecodeGenericRspData(buf []byte) GenericRspData {
	_ = buf[BodySize-1]
	return GenericRspData{Result: Result(binary.LittleEndian.Uint32(buf[0:4]))}
}
