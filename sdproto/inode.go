package sdproto

import "encoding/binary"

// Field widths making up the flat, wire-exact inode layout (spec §3).
const (
	inodeNameSize  = 256
	inodeTagSize   = 256
	inodeTimeSize  = 40 // create_time, snap_ctime, vm_clock_nsec, vdi_size, vm_state_size
	inodeHdrSize   = 16 // copy_policy, nr_copies, block_size_shift, snap_id, vdi_id, parent_vdi_id
	inodeChildSize = 1024 * 4
	inodeDataSize  = MaxDataObjs * 4

	// InodeSize is the fixed on-wire size of an Inode: every VDI's inode
	// object, allocated or not, occupies exactly this many bytes so that
	// IO never has to special-case a short read.
	InodeSize = inodeNameSize + inodeTagSize + inodeTimeSize + inodeHdrSize + inodeChildSize + inodeDataSize

	inodeNameOff  = 0
	inodeTagOff   = inodeNameOff + inodeNameSize
	inodeTimeOff  = inodeTagOff + inodeTagSize
	inodeHdrOff   = inodeTimeOff + inodeTimeSize
	inodeChildOff = inodeHdrOff + inodeHdrSize
	inodeDataOff  = inodeChildOff + inodeChildSize
)

// Inode is the full in-memory decode of a VDI's inode object: identity,
// snapshot lineage, and the two indirection tables (child VDIs for a
// snapshot tree, and the per-slot owning VID for every data object).
// DataVdiID[i] == 0 means slot i has never been written by any VDI in this
// lineage. The dirty-write hint window lives on the session
// (volume.Volume), not here: it is never part of the wire object.
type Inode struct {
	Name [inodeNameSize]byte
	Tag  [inodeTagSize]byte

	CreateTime  uint64
	SnapCtime   uint64
	VmClockNsec uint64
	VdiSize     uint64
	VmStateSize uint64

	CopyPolicy     uint16
	NrCopies       uint8
	BlockSizeShift uint8
	SnapID         uint32
	VdiID          uint32
	ParentVdiID    uint32

	ChildVdiID [1024]uint32
	DataVdiID  [MaxDataObjs]uint32
}

// NameString returns Name up to its first NUL byte.
func (n *Inode) NameString() string {
	i := 0
	for i < len(n.Name) && n.Name[i] != 0 {
		i++
	}
	return string(n.Name[:i])
}

// SetName copies s into Name, truncating if necessary.
func (n *Inode) SetName(s string) {
	for i := range n.Name {
		n.Name[i] = 0
	}
	copy(n.Name[:], s)
}

// Marshal encodes the inode into its exact InodeSize-byte wire form.
func (n *Inode) Marshal() []byte {
	buf := make([]byte, InodeSize)

	copy(buf[inodeNameOff:inodeNameOff+inodeNameSize], n.Name[:])
	copy(buf[inodeTagOff:inodeTagOff+inodeTagSize], n.Tag[:])

	tm := buf[inodeTimeOff : inodeTimeOff+inodeTimeSize]
	binary.LittleEndian.PutUint64(tm[0:8], n.CreateTime)
	binary.LittleEndian.PutUint64(tm[8:16], n.SnapCtime)
	binary.LittleEndian.PutUint64(tm[16:24], n.VmClockNsec)
	binary.LittleEndian.PutUint64(tm[24:32], n.VdiSize)
	binary.LittleEndian.PutUint64(tm[32:40], n.VmStateSize)

	h := buf[inodeHdrOff : inodeHdrOff+inodeHdrSize]
	binary.LittleEndian.PutUint16(h[0:2], n.CopyPolicy)
	h[2] = n.NrCopies
	h[3] = n.BlockSizeShift
	binary.LittleEndian.PutUint32(h[4:8], n.SnapID)
	binary.LittleEndian.PutUint32(h[8:12], n.VdiID)
	binary.LittleEndian.PutUint32(h[12:16], n.ParentVdiID)

	c := buf[inodeChildOff : inodeChildOff+inodeChildSize]
	for i, v := range n.ChildVdiID {
		binary.LittleEndian.PutUint32(c[i*4:i*4+4], v)
	}

	data := buf[inodeDataOff : inodeDataOff+inodeDataSize]
	for i, v := range n.DataVdiID {
		binary.LittleEndian.PutUint32(data[i*4:i*4+4], v)
	}

	return buf
}

// Unmarshal decodes a full InodeSize-byte wire buffer into n.
func (n *Inode) Unmarshal(buf []byte) {
	_ = buf[InodeSize-1]

	copy(n.Name[:], buf[inodeNameOff:inodeNameOff+inodeNameSize])
	copy(n.Tag[:], buf[inodeTagOff:inodeTagOff+inodeTagSize])

	tm := buf[inodeTimeOff : inodeTimeOff+inodeTimeSize]
	n.CreateTime = binary.LittleEndian.Uint64(tm[0:8])
	n.SnapCtime = binary.LittleEndian.Uint64(tm[8:16])
	n.VmClockNsec = binary.LittleEndian.Uint64(tm[16:24])
	n.VdiSize = binary.LittleEndian.Uint64(tm[24:32])
	n.VmStateSize = binary.LittleEndian.Uint64(tm[32:40])

	h := buf[inodeHdrOff : inodeHdrOff+inodeHdrSize]
	n.CopyPolicy = binary.LittleEndian.Uint16(h[0:2])
	n.NrCopies = h[2]
	n.BlockSizeShift = h[3]
	n.SnapID = binary.LittleEndian.Uint32(h[4:8])
	n.VdiID = binary.LittleEndian.Uint32(h[8:12])
	n.ParentVdiID = binary.LittleEndian.Uint32(h[12:16])

	c := buf[inodeChildOff : inodeChildOff+inodeChildSize]
	for i := range n.ChildVdiID {
		n.ChildVdiID[i] = binary.LittleEndian.Uint32(c[i*4 : i*4+4])
	}

	data := buf[inodeDataOff : inodeDataOff+inodeDataSize]
	for i := range n.DataVdiID {
		n.DataVdiID[i] = binary.LittleEndian.Uint32(data[i*4 : i*4+4])
	}
}
