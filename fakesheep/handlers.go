package fakesheep

import (
	"net"

	"github.com/sdstack/sdbs/sdproto"
	"github.com/sdstack/sdbs/transport"
)

const (
	vdiNameLen    = 256
	vdiTagLen     = 256
	vdiPayloadLen = vdiNameLen + vdiTagLen
)

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	hdr := make([]byte, sdproto.MsgSize)
	for {
		if err := transport.ReadAll(conn, hdr); err != nil {
			return
		}
		reqHdr := sdproto.DecodeHeader(hdr[:sdproto.HeaderSize])

		var err error
		switch {
		case reqHdr.Opcode.IsObjOpcode():
			body := sdproto.DecodeObjReqData(hdr[sdproto.HeaderSize:])
			err = s.handleObj(conn, reqHdr, body)
		case reqHdr.Opcode.IsVdiOpcode():
			body := sdproto.DecodeVdiReqData(hdr[sdproto.HeaderSize:])
			err = s.handleVdi(conn, reqHdr, body)
		default:
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) handleObj(conn net.Conn, req sdproto.Header, body sdproto.ObjReqData) error {
	var payload []byte
	if req.Opcode != sdproto.OpReadObj {
		payload = make([]byte, req.DataLength)
		if err := transport.ReadAll(conn, payload); err != nil {
			return err
		}
	}

	s.mu.Lock()
	result, rspPayload := s.doObj(req, body, payload)
	s.mu.Unlock()

	return writeObjResponse(conn, req, result, rspPayload)
}

// doObj runs entirely under s.mu and must not block on I/O.
func (s *Server) doObj(req sdproto.Header, body sdproto.ObjReqData, payload []byte) (sdproto.Result, []byte) {
	switch req.Opcode {
	case sdproto.OpReadObj:
		obj, ok := s.inodeCacheGet(body.OID)
		if !ok {
			obj, ok = s.store[body.OID]
			if !ok {
				return sdproto.ResSuccess, make([]byte, req.DataLength)
			}
			s.inodeCacheSet(body.OID, obj)
		}
		out := make([]byte, req.DataLength)
		copy(out, obj[body.Offset:])
		return sdproto.ResSuccess, out

	case sdproto.OpCreateAndWriteObj, sdproto.OpWriteObj:
		if !s.vidIsLive(body.OID) {
			return sdproto.ResReadonly, nil
		}
		obj, exists := s.store[body.OID]
		if req.Opcode == sdproto.OpCreateAndWriteObj {
			size := objSize(body.OID)
			obj = make([]byte, size)
			if req.Flags&sdproto.FlagCmdCow != 0 {
				if src, ok := s.store[body.CowOID]; ok {
					copy(obj, src)
				}
			}
			s.store[body.OID] = obj
		} else if !exists {
			return sdproto.ResNoObj, nil
		}
		copy(obj[body.Offset:], payload)
		s.inodeCacheSet(body.OID, obj)
		return sdproto.ResSuccess, nil
	}
	return sdproto.ResInvalidParms, nil
}

// inodeCacheGet serves a READ_OBJ against an inode oid out of the LRU
// ahead of the object store; it is a no-op passthrough miss for data
// objects and whenever the cache is disabled.
func (s *Server) inodeCacheGet(oid uint64) ([]byte, bool) {
	if s.inodeCache == nil || !sdproto.IsVdiObj(oid) {
		return nil, false
	}
	v, err := s.inodeCache.Get(oid)
	if err != nil {
		return nil, false
	}
	return v.([]byte), true
}

// inodeCacheSet keeps the cache's copy of an inode oid in sync with the
// object store on every read-through fill and every write.
func (s *Server) inodeCacheSet(oid uint64, obj []byte) {
	if s.inodeCache == nil || !sdproto.IsVdiObj(oid) {
		return
	}
	s.inodeCache.Set(oid, obj)
}

// vidIsLive reports whether oid's embedded VID is still the head of its
// VDI's chain. A write (to a data object or to the inode object) against a
// VID that a Snapshot call has since superseded is the one case this core
// must see as READONLY.
func (s *Server) vidIsLive(oid uint64) bool {
	vid := sdproto.OidToVID(oid)
	name, ok := s.vidName[vid]
	if !ok {
		return true // any VID this server didn't itself assign
	}
	return s.vdis[name] == vid
}

func objSize(oid uint64) int {
	if sdproto.IsVdiObj(oid) {
		return sdproto.InodeSize
	}
	return sdproto.ObjectSize
}

func writeObjResponse(conn net.Conn, req sdproto.Header, result sdproto.Result, payload []byte) error {
	rsp := sdproto.ObjResponse{
		Header: sdproto.Header{
			Opcode: req.Opcode, ProtoVer: sdproto.ProtoVersion,
			Epoch: req.Epoch, ID: req.ID, DataLength: uint32(len(payload)),
		},
		ObjRspData: sdproto.ObjRspData{Result: result},
	}
	if len(payload) == 0 {
		return transport.WriteAll(conn, rsp.Encode())
	}
	return transport.WriteAllv(conn, [][]byte{rsp.Encode(), payload})
}

func (s *Server) handleVdi(conn net.Conn, req sdproto.Header, body sdproto.VdiReqData) error {
	var name string
	if req.DataLength > 0 {
		buf := make([]byte, req.DataLength)
		if err := transport.ReadAll(conn, buf); err != nil {
			return err
		}
		n := vdiNameLen
		if n > len(buf) {
			n = len(buf)
		}
		name = trimZero(buf[:n])
	}

	s.mu.Lock()
	result, vid := s.doVdi(req, body, name)
	s.mu.Unlock()

	rsp := sdproto.VdiResponse{
		Header:     sdproto.Header{Opcode: req.Opcode, ProtoVer: sdproto.ProtoVersion, Epoch: req.Epoch, ID: req.ID},
		VdiRspData: sdproto.VdiRspData{Result: result, VdiID: vid},
	}
	return transport.WriteAll(conn, rsp.Encode())
}

func (s *Server) doVdi(req sdproto.Header, body sdproto.VdiReqData, name string) (sdproto.Result, uint32) {
	switch req.Opcode {
	case sdproto.OpLockVdi, sdproto.OpGetVdiInfo:
		vid, ok := s.vdis[name]
		if !ok {
			return sdproto.ResNoVdi, 0
		}
		return sdproto.ResSuccess, vid

	case sdproto.OpReleaseVdi:
		return sdproto.ResSuccess, 0

	case sdproto.OpFlushVdi:
		if s.cacheOn {
			return sdproto.ResSuccess, 0
		}
		return sdproto.ResInvalidParms, 0

	case sdproto.OpNewVdi:
		if _, exists := s.vdis[name]; exists {
			return sdproto.ResVdiExist, 0
		}
		vid := s.createVDILocked(name, body.VdiSize)
		return sdproto.ResSuccess, vid
	}
	return sdproto.ResInvalidParms, 0
}

func trimZero(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
