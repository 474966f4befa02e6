package volume

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sdstack/sdbs/sdproto"
	"github.com/sdstack/sdbs/transport"
)

// loggedReq is one RPC a scriptServer observed, in arrival order.
type loggedReq struct {
	Opcode     sdproto.Opcode
	Flags      sdproto.Flags
	OID        uint64
	CowOID     uint64
	Offset     uint64
	DataLength uint32
	Name       string
}

// scriptServer is a hand-scripted Sheepdog peer for exercising exact RPC
// sequences a Volume issues: every request is logged in order, and the
// response to each is computed by the test's own callback so a single test
// can script a READONLY-then-SUCCESS sequence the way S5 describes.
type scriptServer struct {
	ln  net.Listener
	mu  sync.Mutex
	log []loggedReq

	objResp func(hdr sdproto.Header, body sdproto.ObjReqData, payload []byte) (sdproto.Result, []byte)
	vdiResp func(hdr sdproto.Header, body sdproto.VdiReqData, name string) (sdproto.Result, uint32)
}

func newScriptServer(t *testing.T) *scriptServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &scriptServer{ln: ln}
	go s.acceptLoop()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *scriptServer) addr() string { return s.ln.Addr().String() }

func (s *scriptServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *scriptServer) record(r loggedReq) {
	s.mu.Lock()
	s.log = append(s.log, r)
	s.mu.Unlock()
}

func (s *scriptServer) snapshot() []loggedReq {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]loggedReq, len(s.log))
	copy(out, s.log)
	return out
}

func (s *scriptServer) handleConn(conn net.Conn) {
	defer conn.Close()
	hdrBuf := make([]byte, sdproto.MsgSize)
	for {
		if err := transport.ReadAll(conn, hdrBuf); err != nil {
			return
		}
		hdr := sdproto.DecodeHeader(hdrBuf[:sdproto.HeaderSize])

		switch {
		case hdr.Opcode.IsObjOpcode():
			body := sdproto.DecodeObjReqData(hdrBuf[sdproto.HeaderSize:])
			var payload []byte
			if hdr.Opcode != sdproto.OpReadObj && hdr.DataLength > 0 {
				payload = make([]byte, hdr.DataLength)
				if err := transport.ReadAll(conn, payload); err != nil {
					return
				}
			}
			s.record(loggedReq{Opcode: hdr.Opcode, Flags: hdr.Flags, OID: body.OID, CowOID: body.CowOID, Offset: body.Offset, DataLength: hdr.DataLength})

			result, rspPayload := sdproto.ResSuccess, []byte(nil)
			if s.objResp != nil {
				result, rspPayload = s.objResp(hdr, body, payload)
			}
			rsp := sdproto.ObjResponse{
				Header:     sdproto.Header{Opcode: hdr.Opcode, ProtoVer: sdproto.ProtoVersion, ID: hdr.ID, DataLength: uint32(len(rspPayload))},
				ObjRspData: sdproto.ObjRspData{Result: result},
			}
			if len(rspPayload) == 0 {
				if err := transport.WriteAll(conn, rsp.Encode()); err != nil {
					return
				}
			} else if err := transport.WriteAllv(conn, [][]byte{rsp.Encode(), rspPayload}); err != nil {
				return
			}

		case hdr.Opcode.IsVdiOpcode():
			body := sdproto.DecodeVdiReqData(hdrBuf[sdproto.HeaderSize:])
			var name string
			if hdr.DataLength > 0 {
				buf := make([]byte, hdr.DataLength)
				if err := transport.ReadAll(conn, buf); err != nil {
					return
				}
				name = trimZeroBytes(buf)
			}
			s.record(loggedReq{Opcode: hdr.Opcode, Flags: hdr.Flags, DataLength: hdr.DataLength, Name: name})

			result, vid := sdproto.ResSuccess, uint32(0)
			if s.vdiResp != nil {
				result, vid = s.vdiResp(hdr, body, name)
			}
			rsp := sdproto.VdiResponse{
				Header:     sdproto.Header{Opcode: hdr.Opcode, ProtoVer: sdproto.ProtoVersion, ID: hdr.ID},
				VdiRspData: sdproto.VdiRspData{Result: result, VdiID: vid},
			}
			if err := transport.WriteAll(conn, rsp.Encode()); err != nil {
				return
			}

		default:
			return
		}
	}
}

func trimZeroBytes(b []byte) string {
	n := 256
	if n > len(b) {
		n = len(b)
	}
	for i, c := range b[:n] {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b[:n])
}

func inodeBytes(n sdproto.Inode) []byte {
	return n.Marshal()
}

func openVolume(t *testing.T, s *scriptServer, name string) *Volume {
	t.Helper()
	v, err := Open("tcp", s.addr(), time.Second, name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { v.client.Close() })
	return v
}

// S1: sparse read touches no objects and returns zeros.
func TestSparseReadIsZeroFill(t *testing.T) {
	s := newScriptServer(t)
	inode := sdproto.Inode{VdiID: 7, VdiSize: 64 << 20}

	s.vdiResp = func(hdr sdproto.Header, body sdproto.VdiReqData, name string) (sdproto.Result, uint32) {
		return sdproto.ResSuccess, 7
	}
	s.objResp = func(hdr sdproto.Header, body sdproto.ObjReqData, payload []byte) (sdproto.Result, []byte) {
		if hdr.Opcode == sdproto.OpReadObj && sdproto.IsVdiObj(body.OID) {
			return sdproto.ResSuccess, inodeBytes(inode)
		}
		t.Fatalf("unexpected RPC for sparse read: %+v", hdr)
		return sdproto.ResSuccess, nil
	}

	v := openVolume(t, s, "v")
	buf := make([]byte, 8192)
	for i := range buf {
		buf[i] = 0xFF
	}
	if err := v.IO(false, buf, 0); err != nil {
		t.Fatalf("IO read: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}
}

// S2: writing to a slot this VDI already owns issues one plain WRITE_OBJ,
// no COW flag, and no inode writeback.
func TestInPlaceWriteNoCow(t *testing.T) {
	s := newScriptServer(t)
	inode := sdproto.Inode{VdiID: 7, VdiSize: 64 << 20}
	inode.DataVdiID[3] = 7

	s.vdiResp = func(hdr sdproto.Header, body sdproto.VdiReqData, name string) (sdproto.Result, uint32) {
		return sdproto.ResSuccess, 7
	}
	s.objResp = func(hdr sdproto.Header, body sdproto.ObjReqData, payload []byte) (sdproto.Result, []byte) {
		if hdr.Opcode == sdproto.OpReadObj {
			return sdproto.ResSuccess, inodeBytes(inode)
		}
		return sdproto.ResSuccess, nil
	}

	v := openVolume(t, s, "v")
	buf := make([]byte, 512)
	offset := uint64(3)*sdproto.ObjectSize + 1024
	if err := v.IO(true, buf, offset); err != nil {
		t.Fatalf("IO write: %v", err)
	}

	writes := objOpsOnly(s.snapshot())
	if len(writes) != 1 {
		t.Fatalf("got %d data RPCs, want 1: %+v", len(writes), writes)
	}
	w := writes[0]
	if w.Opcode != sdproto.OpWriteObj {
		t.Fatalf("opcode = %v, want WRITE_OBJ", w.Opcode)
	}
	if w.Flags&sdproto.FlagCmdCow != 0 {
		t.Fatalf("unexpected COW flag set")
	}
	if w.OID != sdproto.VIDToDataOid(7, 3) || w.Offset != 1024 || w.DataLength != 512 {
		t.Fatalf("unexpected request shape: %+v", w)
	}
}

// S3: allocating over a parent-owned slot emits CREATE_AND_WRITE_OBJ with
// CMD_COW and the parent's oid as cow_oid, followed by one inode writeback.
func TestCowAllocationAndInodeWriteback(t *testing.T) {
	s := newScriptServer(t)
	inode := sdproto.Inode{VdiID: 7, VdiSize: 64 << 20}
	inode.DataVdiID[5] = 4

	s.vdiResp = func(hdr sdproto.Header, body sdproto.VdiReqData, name string) (sdproto.Result, uint32) {
		return sdproto.ResSuccess, 7
	}
	s.objResp = func(hdr sdproto.Header, body sdproto.ObjReqData, payload []byte) (sdproto.Result, []byte) {
		if hdr.Opcode == sdproto.OpReadObj {
			return sdproto.ResSuccess, inodeBytes(inode)
		}
		return sdproto.ResSuccess, nil
	}

	v := openVolume(t, s, "v")
	buf := make([]byte, 1<<20)
	if err := v.IO(true, buf, uint64(5)*sdproto.ObjectSize); err != nil {
		t.Fatalf("IO write: %v", err)
	}

	ops := objOpsOnly(s.snapshot())
	if len(ops) != 2 {
		t.Fatalf("got %d RPCs, want 2 (data + inode): %+v", len(ops), ops)
	}
	data, inodeWrite := ops[0], ops[1]

	if data.Opcode != sdproto.OpCreateAndWriteObj {
		t.Fatalf("opcode = %v, want CREATE_AND_WRITE_OBJ", data.Opcode)
	}
	if data.Flags&sdproto.FlagCmdCow == 0 {
		t.Fatalf("expected COW flag set")
	}
	if data.OID != sdproto.VIDToDataOid(7, 5) {
		t.Fatalf("oid = %x, want %x", data.OID, sdproto.VIDToDataOid(7, 5))
	}
	if data.CowOID != sdproto.VIDToDataOid(4, 5) {
		t.Fatalf("cow_oid = %x, want %x", data.CowOID, sdproto.VIDToDataOid(4, 5))
	}

	if inodeWrite.Opcode != sdproto.OpWriteObj || !sdproto.IsVdiObj(inodeWrite.OID) || inodeWrite.DataLength != sdproto.InodeSize {
		t.Fatalf("unexpected inode writeback: %+v", inodeWrite)
	}
	if inodeWrite.OID != sdproto.VIDToVdiOid(7) {
		t.Fatalf("inode write oid = %x, want %x", inodeWrite.OID, sdproto.VIDToVdiOid(7))
	}

	if v.inode.DataVdiID[5] != 7 {
		t.Fatalf("DataVdiID[5] = %d, want 7", v.inode.DataVdiID[5])
	}
}

// S4: a write spanning four objects issues exactly four data RPCs in
// ascending order with the slicing the spec describes.
func TestMultiObjectSpanSlicing(t *testing.T) {
	s := newScriptServer(t)
	inode := sdproto.Inode{VdiID: 7, VdiSize: 64 << 20}
	for i := 0; i < 4; i++ {
		inode.DataVdiID[i] = 7 // writable in place everywhere, to isolate slicing from COW
	}

	s.vdiResp = func(hdr sdproto.Header, body sdproto.VdiReqData, name string) (sdproto.Result, uint32) {
		return sdproto.ResSuccess, 7
	}
	s.objResp = func(hdr sdproto.Header, body sdproto.ObjReqData, payload []byte) (sdproto.Result, []byte) {
		if hdr.Opcode == sdproto.OpReadObj {
			return sdproto.ResSuccess, inodeBytes(inode)
		}
		return sdproto.ResSuccess, nil
	}

	v := openVolume(t, s, "v")
	const OS = sdproto.ObjectSize
	buf := make([]byte, 2*OS+2048)
	if err := v.IO(true, buf, OS-1024); err != nil {
		t.Fatalf("IO write: %v", err)
	}

	ops := objOpsOnly(s.snapshot())
	wantOffsets := []uint64{OS - 1024, 0, 0, 0}
	wantSizes := []uint32{1024, OS, OS, 1024}
	if len(ops) != 4 {
		t.Fatalf("got %d data RPCs, want 4: %+v", len(ops), ops)
	}
	for i, op := range ops {
		if op.Offset != wantOffsets[i] || op.DataLength != wantSizes[i] {
			t.Fatalf("op %d = (offset=%d,size=%d), want (offset=%d,size=%d)", i, op.Offset, op.DataLength, wantOffsets[i], wantSizes[i])
		}
		if op.OID != sdproto.VIDToDataOid(7, uint32(i)) {
			t.Fatalf("op %d oid = %x, want slot %d", i, op.OID, i)
		}
	}
}

// S5 / property 7: a READONLY on the first write triggers a LOCK_VDI over a
// fresh connection plus a full inode re-read, after which the retried
// piece is re-decided against the fresh inode and completes successfully.
func TestStaleReloadRetriesAndSucceeds(t *testing.T) {
	s := newScriptServer(t)
	oldInode := sdproto.Inode{VdiID: 7, VdiSize: 64 << 20}
	oldInode.DataVdiID[2] = 3
	newInode := sdproto.Inode{VdiID: 9, VdiSize: 64 << 20}
	newInode.DataVdiID[2] = 9

	var lockCalls, readCalls, writeCalls int
	var mu sync.Mutex

	s.vdiResp = func(hdr sdproto.Header, body sdproto.VdiReqData, name string) (sdproto.Result, uint32) {
		mu.Lock()
		lockCalls++
		n := lockCalls
		mu.Unlock()
		if n == 1 {
			return sdproto.ResSuccess, 7
		}
		return sdproto.ResSuccess, 9
	}
	s.objResp = func(hdr sdproto.Header, body sdproto.ObjReqData, payload []byte) (sdproto.Result, []byte) {
		if hdr.Opcode == sdproto.OpReadObj {
			mu.Lock()
			readCalls++
			n := readCalls
			mu.Unlock()
			if n == 1 {
				return sdproto.ResSuccess, inodeBytes(oldInode)
			}
			return sdproto.ResSuccess, inodeBytes(newInode)
		}
		if hdr.Opcode == sdproto.OpCreateAndWriteObj || hdr.Opcode == sdproto.OpWriteObj {
			mu.Lock()
			writeCalls++
			n := writeCalls
			mu.Unlock()
			if n == 1 {
				return sdproto.ResReadonly, nil
			}
			return sdproto.ResSuccess, nil
		}
		return sdproto.ResSuccess, nil
	}

	v := openVolume(t, s, "v")
	buf := make([]byte, 100)
	if err := v.IO(true, buf, uint64(2)*sdproto.ObjectSize); err != nil {
		t.Fatalf("IO write: %v", err)
	}

	ops := objOpsOnly(s.snapshot())
	var dataOps []loggedReq
	for _, op := range ops {
		if op.Opcode == sdproto.OpCreateAndWriteObj || op.Opcode == sdproto.OpWriteObj {
			if !sdproto.IsVdiObj(op.OID) {
				dataOps = append(dataOps, op)
			}
		}
	}
	if len(dataOps) != 2 {
		t.Fatalf("got %d data write attempts, want 2 (fail+retry): %+v", len(dataOps), dataOps)
	}
	second := dataOps[1]
	if second.Opcode != sdproto.OpWriteObj {
		t.Fatalf("retry opcode = %v, want WRITE_OBJ (slot now owned by the fresh vid)", second.Opcode)
	}
	if second.Flags&sdproto.FlagCmdCow != 0 {
		t.Fatalf("retry unexpectedly set COW")
	}
	if second.OID != sdproto.VIDToDataOid(9, 2) {
		t.Fatalf("retry oid = %x, want %x", second.OID, sdproto.VIDToDataOid(9, 2))
	}

	for _, op := range ops {
		if op.Opcode == sdproto.OpWriteObj && sdproto.IsVdiObj(op.OID) {
			t.Fatalf("unexpected inode writeback after a reload-only retry: %+v", op)
		}
	}
	if lockCalls != 2 {
		t.Fatalf("LOCK_VDI called %d times, want 2 (open + reload)", lockCalls)
	}
}

// S6: FLUSH_VDI returning INVALID_PARMS is treated as success.
func TestSyncInvalidParmsIsSuccess(t *testing.T) {
	s := newScriptServer(t)
	inode := sdproto.Inode{VdiID: 7, VdiSize: 1 << 20}
	s.vdiResp = func(hdr sdproto.Header, body sdproto.VdiReqData, name string) (sdproto.Result, uint32) {
		if hdr.Opcode == sdproto.OpFlushVdi {
			return sdproto.ResInvalidParms, 0
		}
		return sdproto.ResSuccess, 7
	}
	s.objResp = func(hdr sdproto.Header, body sdproto.ObjReqData, payload []byte) (sdproto.Result, []byte) {
		return sdproto.ResSuccess, inodeBytes(inode)
	}

	v := openVolume(t, s, "v")
	if err := v.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

// Close-time anomalies on RELEASE_VDI are logged but never propagated:
// the socket is always closed and Close never fails because of them.
func TestCloseSwallowsReleaseAnomaly(t *testing.T) {
	s := newScriptServer(t)
	inode := sdproto.Inode{VdiID: 7, VdiSize: 1 << 20}
	s.vdiResp = func(hdr sdproto.Header, body sdproto.VdiReqData, name string) (sdproto.Result, uint32) {
		if hdr.Opcode == sdproto.OpReleaseVdi {
			return sdproto.ResSystemError, 0
		}
		return sdproto.ResSuccess, 7
	}
	s.objResp = func(hdr sdproto.Header, body sdproto.ObjReqData, payload []byte) (sdproto.Result, []byte) {
		return sdproto.ResSuccess, inodeBytes(inode)
	}

	v, err := Open("tcp", s.addr(), time.Second, "v")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("Close: %v, want nil even though RELEASE_VDI returned SYSTEM_ERROR", err)
	}
}

// VDI_NOT_LOCKED on RELEASE_VDI is a normal outcome, not an anomaly.
func TestCloseTreatsVdiNotLockedAsNormal(t *testing.T) {
	s := newScriptServer(t)
	inode := sdproto.Inode{VdiID: 7, VdiSize: 1 << 20}
	s.vdiResp = func(hdr sdproto.Header, body sdproto.VdiReqData, name string) (sdproto.Result, uint32) {
		if hdr.Opcode == sdproto.OpReleaseVdi {
			return sdproto.ResVdiNotLocked, 0
		}
		return sdproto.ResSuccess, 7
	}
	s.objResp = func(hdr sdproto.Header, body sdproto.ObjReqData, payload []byte) (sdproto.Result, []byte) {
		return sdproto.ResSuccess, inodeBytes(inode)
	}

	v, err := Open("tcp", s.addr(), time.Second, "v")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("Close: %v, want nil for VDI_NOT_LOCKED", err)
	}
}

func objOpsOnly(log []loggedReq) []loggedReq {
	var out []loggedReq
	for _, op := range log {
		if op.Opcode == sdproto.OpReadObj || op.Opcode == sdproto.OpWriteObj || op.Opcode == sdproto.OpCreateAndWriteObj || op.Opcode == sdproto.OpDiscardObj {
			if op.Opcode == sdproto.OpReadObj && sdproto.IsVdiObj(op.OID) {
				continue // the inode load itself, not a data/inode-writeback RPC under test
			}
			out = append(out, op)
		}
	}
	return out
}
