// Package sdclient is the object-RPC layer above transport: it frames
// requests with sdproto, assigns request ids with a fast non-cryptographic
// RNG the way the teacher's filesystem backend does for its own scratch
// ids, and turns a non-SUCCESS response into a *sdproto.ProtocolError.
package sdclient

import (
	"net"
	"sync"

	"github.com/valyala/fastrand"

	"github.com/sdstack/sdbs/sdproto"
	"github.com/sdstack/sdbs/transport"
)

const (
	vdiNameLen = 256
	vdiTagLen  = 256
)

// Client issues serialized RPCs over a single connection. Sheepdog requires
// at most one in-flight request per socket, so Client takes its own mutex
// around every call rather than relying on callers to serialize.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
	rng  fastrand.RNG
}

func New(conn net.Conn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) nextID() uint32 {
	return c.rng.Uint32()
}

// nameTagPayload builds the fixed name[256] || tag[256] payload LOCK_VDI,
// GET_VDI_INFO and NEW_VDI all send their VDI identity as.
func nameTagPayload(name, tag string) []byte {
	buf := make([]byte, vdiNameLen+vdiTagLen)
	copy(buf[:vdiNameLen], name)
	copy(buf[vdiNameLen:], tag)
	return buf
}

func (c *Client) send(hdr []byte, payload []byte) error {
	if len(payload) == 0 {
		return transport.WriteAll(c.conn, hdr)
	}
	return transport.WriteAllv(c.conn, [][]byte{hdr, payload})
}

// doObj sends an ObjRequest with an optional write payload and returns the
// decoded response header/body plus any read payload the caller requested
// by sizing rspPayload before the call.
func (c *Client) doObj(req sdproto.ObjRequest, reqPayload []byte, rspPayload []byte) (sdproto.ObjResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req.ID = c.nextID()
	// A read's DataLength already names how many bytes it asks for; only a
	// write's comes from the payload it carries.
	if len(reqPayload) > 0 {
		req.DataLength = uint32(len(reqPayload))
	}

	if err := c.send(req.Encode(), reqPayload); err != nil {
		return sdproto.ObjResponse{}, err
	}

	hdr := make([]byte, sdproto.MsgSize)
	if err := transport.ReadAll(c.conn, hdr); err != nil {
		return sdproto.ObjResponse{}, err
	}
	rsp := sdproto.DecodeObjResponse(hdr)

	if rsp.DataLength > 0 && len(rspPayload) > 0 {
		n := int(rsp.DataLength)
		if n > len(rspPayload) {
			n = len(rspPayload)
		}
		if err := transport.ReadAll(c.conn, rspPayload[:n]); err != nil {
			return rsp, err
		}
	}

	if rsp.Result != sdproto.ResSuccess {
		return rsp, &sdproto.ProtocolError{Op: rsp.Opcode, Result: rsp.Result}
	}
	return rsp, nil
}

func (c *Client) doVdi(req sdproto.VdiRequest, reqPayload []byte) (sdproto.VdiResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req.ID = c.nextID()
	req.DataLength = uint32(len(reqPayload))

	if err := c.send(req.Encode(), reqPayload); err != nil {
		return sdproto.VdiResponse{}, err
	}

	hdr := make([]byte, sdproto.MsgSize)
	if err := transport.ReadAll(c.conn, hdr); err != nil {
		return sdproto.VdiResponse{}, err
	}
	rsp := sdproto.DecodeVdiResponse(hdr)

	if rsp.Result != sdproto.ResSuccess {
		return rsp, &sdproto.ProtocolError{Op: rsp.Opcode, Result: rsp.Result}
	}
	return rsp, nil
}

// ReadObject reads len(buf) bytes at offset from oid into buf.
func (c *Client) ReadObject(oid uint64, buf []byte, offset uint64) error {
	req := sdproto.ObjRequest{
		Header:     sdproto.Header{Opcode: sdproto.OpReadObj, ProtoVer: sdproto.ProtoVersion, DataLength: uint32(len(buf))},
		ObjReqData: sdproto.ObjReqData{OID: oid, Offset: offset},
	}
	_, err := c.doObj(req, nil, buf)
	return err
}

// WriteObject writes buf at offset into oid. If create is true the object
// is allocated first (CREATE_AND_WRITE_OBJ); if cowOID is nonzero the new
// object is seeded by copying cowOID before the write lands (COW).
func (c *Client) WriteObject(oid uint64, buf []byte, offset uint64, create bool, cowOID uint64) error {
	op := sdproto.OpWriteObj
	flags := sdproto.FlagCmdWrite
	if create {
		op = sdproto.OpCreateAndWriteObj
	}
	if cowOID != 0 {
		flags |= sdproto.FlagCmdCow
	}
	req := sdproto.ObjRequest{
		Header:     sdproto.Header{Opcode: op, ProtoVer: sdproto.ProtoVersion, Flags: flags},
		ObjReqData: sdproto.ObjReqData{OID: oid, CowOID: cowOID, Offset: offset},
	}
	_, err := c.doObj(req, buf, nil)
	return err
}

// LockVDI resolves name (with an empty tag, snapid CURRENT_VDI_ID=0) to its
// live VID and locks it for this session.
func (c *Client) LockVDI(name string) (vid uint32, err error) {
	req := sdproto.VdiRequest{
		Header: sdproto.Header{Opcode: sdproto.OpLockVdi, ProtoVer: sdproto.ProtoVersion, Flags: sdproto.FlagCmdWrite},
	}
	rsp, err := c.doVdi(req, nameTagPayload(name, ""))
	if err != nil {
		return 0, err
	}
	return rsp.VdiID, nil
}

// ReleaseVDI unlocks vid. The real protocol quirk this preserves: the
// release request does NOT carry CMD_WRITE, even though the VDI ops that
// send a name payload (LOCK_VDI, GET_VDI_INFO, NEW_VDI) do. A result of SUCCESS or VDI_NOT_LOCKED (sdproto.IsVdiNotLocked) is a
// normal outcome; callers log anything else but still never treat it as a
// failure of close().
func (c *Client) ReleaseVDI(vid uint32) error {
	req := sdproto.VdiRequest{
		Header:     sdproto.Header{Opcode: sdproto.OpReleaseVdi, ProtoVer: sdproto.ProtoVersion},
		VdiReqData: sdproto.VdiReqData{VdiID: vid},
	}
	_, err := c.doVdi(req, nil)
	return err
}

// FlushVDI asks the server to flush any cached objects for vid. Returns
// whether the server actually had an object cache (SUCCESS) or not
// (INVALID_PARMS, which is not treated as an error by callers).
func (c *Client) FlushVDI(vid uint32) (cached bool, err error) {
	req := sdproto.VdiRequest{
		Header:     sdproto.Header{Opcode: sdproto.OpFlushVdi, ProtoVer: sdproto.ProtoVersion},
		VdiReqData: sdproto.VdiReqData{VdiID: vid},
	}
	_, err = c.doVdi(req, nil)
	if pe, ok := err.(*sdproto.ProtocolError); ok && pe.Result == sdproto.ResInvalidParms {
		return false, nil
	}
	return err == nil, err
}

// GetVdiInfo resolves name (and, if snapID is nonzero, a specific snapshot
// of it) to a VID without taking a lock.
func (c *Client) GetVdiInfo(name string, snapID uint32) (vid uint32, err error) {
	req := sdproto.VdiRequest{
		Header:     sdproto.Header{Opcode: sdproto.OpGetVdiInfo, ProtoVer: sdproto.ProtoVersion, Flags: sdproto.FlagCmdWrite},
		VdiReqData: sdproto.VdiReqData{SnapID: snapID},
	}
	rsp, err := c.doVdi(req, nameTagPayload(name, ""))
	if err != nil {
		return 0, err
	}
	return rsp.VdiID, nil
}

// NewVDI creates a fresh VDI named name with the given size, optionally as
// a child of baseVID (0 for no parent), and returns its VID.
func (c *Client) NewVDI(name string, size uint64, baseVID uint32) (vid uint32, err error) {
	req := sdproto.VdiRequest{
		Header:     sdproto.Header{Opcode: sdproto.OpNewVdi, ProtoVer: sdproto.ProtoVersion, Flags: sdproto.FlagCmdWrite},
		VdiReqData: sdproto.VdiReqData{VdiSize: size, VdiID: baseVID},
	}
	rsp, err := c.doVdi(req, nameTagPayload(name, ""))
	if err != nil {
		return 0, err
	}
	return rsp.VdiID, nil
}
