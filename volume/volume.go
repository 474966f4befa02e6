// Package volume implements the read/write/sync algorithm a single open
// VDI runs against a Sheepdog cluster: slicing a flat byte range into
// per-object pieces, deciding whether each piece needs an allocate-and-cow,
// a plain write, or a zero-fill read, and reloading a stale inode in place
// when the server signals its cached VID has gone stale.
package volume

import (
	"log"
	"math"
	"time"

	"github.com/sdstack/sdbs/sdclient"
	"github.com/sdstack/sdbs/sdproto"
	"github.com/sdstack/sdbs/transport"
)

// Volume is one open VDI bound to one RPC client, and so to one TCP
// connection held for the lifetime of the open: every data and inode RPC
// for this VDI goes out over that single socket. VID resolution (locking
// a name, re-resolving after a stale signal) is different: it always goes
// out over its own short-lived connection, dialed fresh and closed again,
// never the session's. Nothing here is safe for concurrent use by more
// than one goroutine: the caller (backingstore's per-LU worker) is the
// serialization point.
type Volume struct {
	network string
	address string
	timeout time.Duration
	name    string

	client *sdclient.Client
	vid    uint32
	inode  sdproto.Inode

	minDirtyDataIdx uint32
	maxDirtyDataIdx uint32
}

// Open resolves name to its live VID over a throwaway connection, then
// dials the connection this Volume keeps for the rest of its life and
// loads the inode over it.
func Open(network, address string, timeout time.Duration, name string) (*Volume, error) {
	v := &Volume{
		network: network,
		address: address,
		timeout: timeout,
		name:    name,

		minDirtyDataIdx: math.MaxUint32,
		maxDirtyDataIdx: 0,
	}

	vid, err := v.lockVDI(name)
	if err != nil {
		return nil, err
	}

	conn, err := transport.Dial(network, address, timeout)
	if err != nil {
		return nil, err
	}
	v.client = sdclient.New(conn)
	v.vid = vid

	if err := v.readInode(vid); err != nil {
		v.client.Close()
		return nil, err
	}
	return v, nil
}

// lockVDI resolves name to a VID over a fresh connection dedicated to
// that single request, then closes it; the session connection never
// carries LOCK_VDI traffic.
func (v *Volume) lockVDI(name string) (uint32, error) {
	conn, err := transport.Dial(v.network, v.address, v.timeout)
	if err != nil {
		return 0, err
	}
	c := sdclient.New(conn)
	defer c.Close()

	return c.LockVDI(name)
}

func (v *Volume) readInode(vid uint32) error {
	buf := make([]byte, sdproto.InodeSize)
	if err := v.client.ReadObject(sdproto.VIDToVdiOid(vid), buf, 0); err != nil {
		return err
	}
	v.inode.Unmarshal(buf)
	return nil
}

// Close releases the VDI lock and closes the session connection. It does
// not flush; call Sync first if the caller needs durability guarantees
// before closing. A RELEASE_VDI result other than SUCCESS or
// VDI_NOT_LOCKED is logged but never prevents the close.
func (v *Volume) Close() error {
	if err := v.client.ReleaseVDI(v.vid); err != nil && !sdproto.IsVdiNotLocked(err) {
		log.Printf("sdbs: volume: release %q: %v", v.name, err)
	}
	return v.client.Close()
}

// Sync asks the cluster to flush any cached objects for this VDI.
func (v *Volume) Sync() error {
	_, err := v.client.FlushVDI(v.vid)
	return err
}

// Size returns the VDI's nominal size in bytes, as recorded in its inode.
func (v *Volume) Size() uint64 {
	return v.inode.VdiSize
}

// DirtyRange reports the inclusive window of data-object indices allocated
// (created or copied-on-write) since the volume was opened; in-place
// writes to slots this VDI already owns do not widen it. It is a hint only: update_inode always
// rewrites the full inode regardless of this window, and the window is
// never reset by a reload — it only ever grows for the life of the
// Volume, matching the upstream client's behavior.
func (v *Volume) DirtyRange() (min, max uint32) {
	return v.minDirtyDataIdx, v.maxDirtyDataIdx
}

func (v *Volume) markDirty(idx uint32) {
	if idx < v.minDirtyDataIdx {
		v.minDirtyDataIdx = idx
	}
	if idx > v.maxDirtyDataIdx {
		v.maxDirtyDataIdx = idx
	}
}

// reloadInode re-resolves the VDI's current VID over a throwaway
// connection and re-reads its inode over the session connection,
// overwriting the cached copy in place. The dirty window is deliberately
// left untouched.
func (v *Volume) reloadInode() error {
	vid, err := v.lockVDI(v.name)
	if err != nil {
		return err
	}
	v.vid = vid
	return v.readInode(vid)
}

func (v *Volume) updateInode() error {
	oid := sdproto.VIDToVdiOid(v.inode.VdiID)
	return v.client.WriteObject(oid, v.inode.Marshal(), 0, false, 0)
}

// IO performs one read or write of len(buf) bytes at offset against the
// open VDI, splitting across object boundaries and object-indirection
// decisions as needed. A single call may issue any number of object RPCs,
// always in ascending index order, followed by exactly one inode
// writeback if any piece allocated a new object.
func (v *Volume) IO(write bool, buf []byte, offset uint64) error {
	idxFirst := uint32(offset / sdproto.ObjectSize)
	idxLastExcl := uint32((offset + uint64(len(buf)) + sdproto.ObjectSize - 1) / sdproto.ObjectSize)
	objOffset := uint32(offset % sdproto.ObjectSize)
	rest := len(buf)
	needUpdateInode := false

	for idx := idxFirst; idx < idxLastExcl; idx++ {
		size := sdproto.ObjectSize - int(objOffset)
		if size > rest {
			size = rest
		}
		piece := buf[len(buf)-rest : len(buf)-rest+size]

		if err := v.ioOnePiece(write, piece, idx, objOffset, &needUpdateInode); err != nil {
			return err
		}

		rest -= size
		objOffset = 0
	}

	if needUpdateInode {
		return v.updateInode()
	}
	return nil
}

// ioOnePiece performs the allocate/cow/reuse decision and the RPC for a
// single object's slice of an IO. A READONLY response means the cached
// VID has gone stale: it reloads the inode and restarts this piece from
// scratch, since the fresh inode may change the create/COW decision.
// Pieces already completed earlier in the same IO are not reissued.
func (v *Volume) ioOnePiece(write bool, piece []byte, idx uint32, objOffset uint32, needUpdateInode *bool) error {
	for {
		owner := v.inode.DataVdiID[idx]

		if !write {
			if owner == 0 {
				for i := range piece {
					piece[i] = 0
				}
				return nil
			}
			oid := sdproto.VIDToDataOid(owner, idx)
			return v.client.ReadObject(oid, piece, uint64(objOffset))
		}

		create := false
		var cowOID uint64
		oid := sdproto.VIDToDataOid(owner, idx)

		if owner != v.inode.VdiID {
			create = true
			if owner != 0 {
				cowOID = oid
			}
			oid = sdproto.VIDToDataOid(v.inode.VdiID, idx)
		}

		// The in-memory slot ownership flips to this inode's VID before
		// the write is even issued, matching sd_io: only a READONLY
		// response undoes the decision, by reloading the whole inode
		// from the cluster rather than rolling back this one slot.
		if create {
			v.inode.DataVdiID[idx] = v.inode.VdiID
			v.markDirty(idx)
		}

		err := v.client.WriteObject(oid, piece, uint64(objOffset), create, cowOID)
		if err == nil {
			if create {
				*needUpdateInode = true
			}
			return nil
		}
		if sdproto.IsReadonly(err) {
			if rerr := v.reloadInode(); rerr != nil {
				return rerr
			}
			continue
		}
		return err
	}
}
