package sdproto

// Opcode identifies a Sheepdog wire operation. Only the client2sheep
// opcodes this core issues or must tolerate forwarding are defined; the
// sheep2sheep half of the real protocol (recovery, node list, epoch, ...)
// is out of scope per spec §1.
type Opcode uint8

const (
	ProtoVersion uint8 = 0x01

	OpCreateAndWriteObj Opcode = 0x01
	OpReadObj           Opcode = 0x02
	OpWriteObj          Opcode = 0x03
	OpDiscardObj        Opcode = 0x05

	OpNewVdi      Opcode = 0x11
	OpLockVdi     Opcode = 0x12
	OpReleaseVdi  Opcode = 0x13
	OpGetVdiInfo  Opcode = 0x14
	OpReadVdis    Opcode = 0x15
	OpFlushVdi    Opcode = 0x16
	OpDelVdi      Opcode = 0x17
)

var opcodeNames = map[Opcode]string{
	OpCreateAndWriteObj: "CREATE_AND_WRITE_OBJ",
	OpReadObj:           "READ_OBJ",
	OpWriteObj:          "WRITE_OBJ",
	OpDiscardObj:        "DISCARD_OBJ",
	OpNewVdi:            "NEW_VDI",
	OpLockVdi:           "LOCK_VDI",
	OpReleaseVdi:        "RELEASE_VDI",
	OpGetVdiInfo:        "GET_VDI_INFO",
	OpReadVdis:          "READ_VDIS",
	OpFlushVdi:          "FLUSH_VDI",
	OpDelVdi:            "DEL_VDI",
}

func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return "UNKNOWN_OPCODE"
}

// IsObjOpcode reports whether a header's opcode-specific 32 bytes must be
// interpreted as ObjReqData/ObjRspData.
func (o Opcode) IsObjOpcode() bool {
	switch o {
	case OpCreateAndWriteObj, OpReadObj, OpWriteObj, OpDiscardObj:
		return true
	}
	return false
}

// IsVdiOpcode reports whether a header's opcode-specific 32 bytes must be
// interpreted as VdiReqData/VdiRspData.
func (o Opcode) IsVdiOpcode() bool {
	switch o {
	case OpNewVdi, OpLockVdi, OpReleaseVdi, OpGetVdiInfo, OpReadVdis, OpFlushVdi, OpDelVdi:
		return true
	}
	return false
}

// Flags is the request header's bitfield (spec §4.1).
type Flags uint16

const (
	FlagCmdWrite  Flags = 0x01
	FlagCmdCow    Flags = 0x02
	FlagCmdCache  Flags = 0x04
	FlagCmdDirect Flags = 0x08
)
