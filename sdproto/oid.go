package sdproto

const (
	vdiBit     uint64 = 1 << 63
	vmstateBit uint64 = 1 << 62

	vidShift = 32
	vidMask  = 0xFFFFFF // 24 bits, matches the VID field width used below

	// MaxDataObjs bounds the per-VDI data-object index space: a data
	// object's slot occupies the low 20 bits of its OID.
	MaxDataObjs = 1 << 20
	dataIdxMask = MaxDataObjs - 1

	// ObjectSize is the fixed size of every data object a VDI is striped
	// into.
	ObjectSize = 4 << 20
)

// VIDToVdiOid builds the OID of a VDI's own inode object.
func VIDToVdiOid(vid uint32) uint64 {
	return vdiBit | (uint64(vid) << vidShift)
}

// VIDToDataOid builds the OID of data object idx belonging to vid. idx must
// be < MaxDataObjs.
func VIDToDataOid(vid uint32, idx uint32) uint64 {
	return (uint64(vid) << vidShift) | uint64(idx&dataIdxMask)
}

// DataOidToIdx extracts the data-object index from a data OID. Only valid
// when IsDataObj(oid) is true.
func DataOidToIdx(oid uint64) uint32 {
	return uint32(oid & dataIdxMask)
}

// OidToVID extracts the VID embedded in any OID produced by VIDToVdiOid or
// VIDToDataOid.
func OidToVID(oid uint64) uint32 {
	return uint32((oid >> vidShift) & vidMask)
}

// IsVdiObj reports whether oid addresses a VDI's inode object.
func IsVdiObj(oid uint64) bool {
	return oid&vdiBit != 0
}

// IsDataObj reports whether oid addresses a data object. The high bit is
// clear for every data object; this is the full test, deliberately simpler
// than a multi-term check, since VMSTATE/attr/btree objects don't exist in
// this core's object space.
func IsDataObj(oid uint64) bool {
	return oid&vdiBit == 0
}

// IsVMStateObj reports whether oid carries the VM-state marker bit. This
// core never sets the bit itself, but must preserve it verbatim on any OID
// it forwards, so the predicate is kept for callers that inspect one.
func IsVMStateObj(oid uint64) bool {
	return oid&vmstateBit != 0
}
