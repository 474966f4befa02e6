package sdproto

import "errors"

// ErrVdiNotFound is returned by test/dev server helpers that look a VDI up
// by name outside the wire protocol (the protocol itself reports an
// unknown name as a NO_VDI result, not a Go error).
var ErrVdiNotFound = errors.New("sdproto: vdi not found")

// Result is the response header's status code.
type Result uint32

const (
	ResSuccess      Result = 0x00
	ResUnknown      Result = 0x01
	ResNoObj        Result = 0x02
	ResEIO          Result = 0x03
	ResVdiExist     Result = 0x04
	ResInvalidParms Result = 0x05
	ResSystemError  Result = 0x06
	ResVdiLocked    Result = 0x07
	ResNoVdi        Result = 0x08
	ResVdiNotLocked Result = 0x10
	ResVerMismatch  Result = 0x14
	ResNoSpace      Result = 0x15
	ResHalt         Result = 0x19
	ResReadonly     Result = 0x1A
)

var resultNames = map[Result]string{
	ResSuccess:      "SUCCESS",
	ResUnknown:      "UNKNOWN",
	ResNoObj:        "NO_OBJ",
	ResEIO:          "EIO",
	ResVdiExist:     "VDI_EXIST",
	ResInvalidParms: "INVALID_PARMS",
	ResSystemError:  "SYSTEM_ERROR",
	ResVdiLocked:    "VDI_LOCKED",
	ResNoVdi:        "NO_VDI",
	ResVdiNotLocked: "VDI_NOT_LOCKED",
	ResVerMismatch:  "VER_MISMATCH",
	ResNoSpace:      "NO_SPACE",
	ResHalt:         "HALT",
	ResReadonly:     "READONLY",
}

func (r Result) String() string {
	if n, ok := resultNames[r]; ok {
		return n
	}
	return "UNKNOWN_RESULT"
}

// ProtocolError wraps a non-success Result with the opcode that produced it.
type ProtocolError struct {
	Op     Opcode
	Result Result
}

func (e *ProtocolError) Error() string {
	return e.Op.String() + ": " + e.Result.String()
}

// IsReadonly reports whether err is a ProtocolError carrying READONLY, the
// signal that the client's cached inode/VID has gone stale and must be
// reloaded before the same I/O piece is retried.
func IsReadonly(err error) bool {
	pe, ok := err.(*ProtocolError)
	return ok && pe.Result == ResReadonly
}

// IsVdiNotLocked reports whether err is a ProtocolError carrying
// VDI_NOT_LOCKED, one of the two results Volume.Close treats as a normal
// outcome of RELEASE_VDI rather than an anomaly worth logging.
func IsVdiNotLocked(err error) bool {
	pe, ok := err.(*ProtocolError)
	return ok && pe.Result == ResVdiNotLocked
}
