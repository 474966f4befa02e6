package sdproto

import "encoding/binary"

// ObjReqData is the 32-byte opcode-specific body of a CREATE_AND_WRITE_OBJ,
// READ_OBJ, WRITE_OBJ or DISCARD_OBJ request.
type ObjReqData struct {
	OID    uint64
	CowOID uint64
	Copies uint32
	Offset uint64
}

func (d ObjReqData) Encode(buf []byte) {
	_ = buf[BodySize-1]
	binary.LittleEndian.PutUint64(buf[0:8], d.OID)
	binary.LittleEndian.PutUint64(buf[8:16], d.CowOID)
	binary.LittleEndian.PutUint32(buf[16:20], d.Copies)
	binary.LittleEndian.PutUint32(buf[20:24], 0)
	binary.LittleEndian.PutUint64(buf[24:32], d.Offset)
}

func DecodeObjReqData(buf []byte) ObjReqData {
	_ = buf[BodySize-1]
	return ObjReqData{
		OID:    binary.LittleEndian.Uint64(buf[0:8]),
		CowOID: binary.LittleEndian.Uint64(buf[8:16]),
		Copies: binary.LittleEndian.Uint32(buf[16:20]),
		Offset: binary.LittleEndian.Uint64(buf[24:32]),
	}
}

// ObjRspData is the 32-byte opcode-specific body of the matching response:
// result, then copies, then 24 reserved bytes.
type ObjRspData struct {
	Result Result
	Copies uint32
}

func (d ObjRspData) Encode(buf []byte) {
	_ = buf[BodySize-1]
	binary.LittleEndian.PutUint32(buf[0:4], uint32(d.Result))
	binary.LittleEndian.PutUint32(buf[4:8], d.Copies)
	for i := 8; i < BodySize; i++ {
		buf[i] = 0
	}
}

func DecodeObjRspData(buf []byte) ObjRspData {
	_ = buf[BodySize-1]
	return ObjRspData{
		Result: Result(binary.LittleEndian.Uint32(buf[0:4])),
		Copies: binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// ObjRequest is a full 48-byte CREATE_AND_WRITE_OBJ/READ_OBJ/WRITE_OBJ/
// DISCARD_OBJ request: header followed by body, write payload sent
// separately via transport.WriteAllv.
type ObjRequest struct {
	Header
	ObjReqData
}

func (r ObjRequest) Encode() []byte {
	buf := make([]byte, MsgSize)
	r.Header.Encode(buf[:HeaderSize])
	r.ObjReqData.Encode(buf[HeaderSize:])
	return buf
}

func DecodeObjRequest(buf []byte) ObjRequest {
	_ = buf[MsgSize-1]
	return ObjRequest{
		Header:     DecodeHeader(buf[:HeaderSize]),
		ObjReqData: DecodeObjReqData(buf[HeaderSize:]),
	}
}

type ObjResponse struct {
	Header
	ObjRspData
}

func (r ObjResponse) Encode() []byte {
	buf := make([]byte, MsgSize)
	r.Header.Encode(buf[:HeaderSize])
	r.ObjRspData.Encode(buf[HeaderSize:])
	return buf
}

func DecodeObjResponse(buf []byte) ObjResponse {
	_ = buf[MsgSize-1]
	return ObjResponse{
		Header:     DecodeHeader(buf[:HeaderSize]),
		ObjRspData: DecodeObjRspData(buf[HeaderSize:]),
	}
}
