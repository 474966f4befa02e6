// Package scsi is the thin adapter between SCSI command dispatch and the
// engine a logical unit is backed by: one switch on CDB opcode byte 0,
// three possible engine calls, and one collapsed failure result. It
// mirrors bs_sheepdog_request's dispatch exactly, minus everything that
// request's caller (the SCSI target framework) already resolved for it —
// LBA/transfer-length decoding into a byte offset and buffer is assumed
// done by the time a Command reaches Dispatch.
package scsi

// CDB opcode bytes this adapter recognizes. Every other opcode is a no-op
// that reports GOOD, per the external command parser's contract: this
// core only ever sees read, write and synchronize-cache commands routed
// to it.
const (
	opSynchronizeCache   = 0x35
	opSynchronizeCache16 = 0x91
	opWrite6             = 0x0A
	opWrite10            = 0x2A
	opWrite12            = 0xAA
	opWrite16            = 0x8A
	opRead6              = 0x08
	opRead10             = 0x28
	opRead12             = 0xA8
	opRead16             = 0x88
)

// SCSI status and sense codes this adapter ever produces. Every engine
// failure collapses to the same (CHECK_CONDITION, MEDIUM_ERROR,
// READ_ERROR) triple regardless of which op failed or why.
const (
	StatusGood           byte = 0x00
	StatusCheckCondition byte = 0x02

	SenseMediumError byte = 0x03

	AscReadError uint16 = 0x1100
)

// Engine is whatever this adapter drives. *volume.Volume satisfies it
// directly; Dispatch takes the interface instead of the concrete type so
// test doubles don't need a real connection.
type Engine interface {
	Sync() error
	IO(write bool, buf []byte, offset uint64) error
}

// Command is one SCSI command as the framework hands it down: the raw CDB
// for opcode dispatch, plus the data buffer and byte offset the framework
// already derived from the CDB's LBA and transfer-length fields.
type Command struct {
	CDB    []byte
	Buffer []byte
	Offset uint64
}

// Result is the SCSI completion this adapter reports back to the
// framework.
type Result struct {
	Status   byte
	SenseKey byte
	ASC      uint16
}

func good() *Result { return &Result{Status: StatusGood} }

func mediumError() *Result {
	return &Result{Status: StatusCheckCondition, SenseKey: SenseMediumError, ASC: AscReadError}
}

// Dispatch runs cmd against engine and returns its SCSI completion.
func Dispatch(engine Engine, cmd *Command) *Result {
	if len(cmd.CDB) == 0 {
		return good()
	}

	var err error
	switch cmd.CDB[0] {
	case opSynchronizeCache, opSynchronizeCache16:
		err = engine.Sync()
	case opWrite6, opWrite10, opWrite12, opWrite16:
		err = engine.IO(true, cmd.Buffer, cmd.Offset)
	case opRead6, opRead10, opRead12, opRead16:
		err = engine.IO(false, cmd.Buffer, cmd.Offset)
	default:
		return good()
	}

	if err != nil {
		return mediumError()
	}
	return good()
}
