// Package samba speaks the command set of the Atmel SAM7 Boot Assistant.
//
// Commands are short ASCII mnemonics followed by fixed-width uppercase hex
// fields and terminated by '#':
//
//	o/h/w ADDR,#          read byte/halfword/word, raw little-endian reply
//	O/H/W ADDR,VALUE#     write byte/halfword/word, no reply
//	S ADDR,LEN#  <data>   send LEN raw bytes into memory, no reply
//	R ADDR,LEN#           receive LEN raw bytes from memory
//	G ADDR#               call the code at ADDR, no reply
//	V#                    version text terminated by "\n\r"
//
// Encoding and decoding are pure functions; Client drives them over a link.
package samba

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Alia5/brickboot/fault"
)

// Op is a command mnemonic. Its value is the byte sent on the wire.
type Op byte

const (
	OpReadByte      Op = 'o'
	OpReadHalfword  Op = 'h'
	OpReadWord      Op = 'w'
	OpWriteByte     Op = 'O'
	OpWriteHalfword Op = 'H'
	OpWriteWord     Op = 'W'
	OpSendBuffer    Op = 'S'
	OpReceiveBuffer Op = 'R'
	OpJump          Op = 'G'
	OpVersion       Op = 'V'
)

// MaxTransfer is the largest length a buffer command can carry.
const MaxTransfer = 0xFFFF

// Terminator ends every text reply of the monitor.
var Terminator = []byte("\n\r")

func (o Op) String() string {
	switch o {
	case OpReadByte:
		return "ReadByte"
	case OpReadHalfword:
		return "ReadHalfword"
	case OpReadWord:
		return "ReadWord"
	case OpWriteByte:
		return "WriteByte"
	case OpWriteHalfword:
		return "WriteHalfword"
	case OpWriteWord:
		return "WriteWord"
	case OpSendBuffer:
		return "SendBuffer"
	case OpReceiveBuffer:
		return "ReceiveBuffer"
	case OpJump:
		return "Jump"
	case OpVersion:
		return "GetVersion"
	}
	return fmt.Sprintf("Op(0x%02X)", byte(o))
}

// Command is one request to the monitor. Value is used by writes, Length by
// buffer transfers and Payload by SendBuffer.
type Command struct {
	Op      Op
	Addr    uint32
	Value   uint32
	Length  int
	Payload []byte
}

func ReadByteCmd(addr uint32) Command     { return Command{Op: OpReadByte, Addr: addr} }
func ReadHalfwordCmd(addr uint32) Command { return Command{Op: OpReadHalfword, Addr: addr} }
func ReadWordCmd(addr uint32) Command     { return Command{Op: OpReadWord, Addr: addr} }

func WriteByteCmd(addr uint32, v uint8) Command {
	return Command{Op: OpWriteByte, Addr: addr, Value: uint32(v)}
}

func WriteHalfwordCmd(addr uint32, v uint16) Command {
	return Command{Op: OpWriteHalfword, Addr: addr, Value: uint32(v)}
}

func WriteWordCmd(addr uint32, v uint32) Command {
	return Command{Op: OpWriteWord, Addr: addr, Value: v}
}

func SendBufferCmd(addr uint32, data []byte) Command {
	return Command{Op: OpSendBuffer, Addr: addr, Length: len(data), Payload: data}
}

func ReceiveBufferCmd(addr uint32, n int) Command {
	return Command{Op: OpReceiveBuffer, Addr: addr, Length: n}
}

func JumpCmd(addr uint32) Command { return Command{Op: OpJump, Addr: addr} }
func VersionCmd() Command         { return Command{Op: OpVersion} }

// Encode renders the command line. For SendBuffer only the header is
// returned; the payload travels in the following transfer.
func Encode(c Command) ([]byte, error) {
	switch c.Op {
	case OpReadByte, OpReadHalfword, OpReadWord:
		return fmt.Appendf(nil, "%c%08X,#", byte(c.Op), c.Addr), nil
	case OpWriteByte:
		if c.Value > 0xFF {
			return nil, misuse(c, "value 0x%X does not fit a byte", c.Value)
		}
		return fmt.Appendf(nil, "%c%08X,%02X#", byte(c.Op), c.Addr, c.Value), nil
	case OpWriteHalfword:
		if c.Value > 0xFFFF {
			return nil, misuse(c, "value 0x%X does not fit a halfword", c.Value)
		}
		return fmt.Appendf(nil, "%c%08X,%04X#", byte(c.Op), c.Addr, c.Value), nil
	case OpWriteWord:
		return fmt.Appendf(nil, "%c%08X,%08X#", byte(c.Op), c.Addr, c.Value), nil
	case OpSendBuffer, OpReceiveBuffer:
		if c.Length < 0 || c.Length > MaxTransfer {
			return nil, misuse(c, "length %d outside 0..%d", c.Length, MaxTransfer)
		}
		if c.Op == OpSendBuffer && c.Length != len(c.Payload) {
			return nil, misuse(c, "length %d does not match payload of %d bytes", c.Length, len(c.Payload))
		}
		return fmt.Appendf(nil, "%c%08X,%04X#", byte(c.Op), c.Addr, c.Length), nil
	case OpJump:
		return fmt.Appendf(nil, "%c%08X#", byte(c.Op), c.Addr), nil
	case OpVersion:
		return []byte("V#"), nil
	}
	return nil, misuse(c, "unknown command")
}

// ReplySize is the exact number of raw bytes the command answers with. It is
// -1 for GetVersion, whose reply is terminated text.
func ReplySize(c Command) int {
	switch c.Op {
	case OpReadByte:
		return 1
	case OpReadHalfword:
		return 2
	case OpReadWord:
		return 4
	case OpReceiveBuffer:
		return c.Length
	case OpVersion:
		return -1
	}
	return 0
}

// DecodeScalar converts the little-endian reply of a read command.
func DecodeScalar(c Command, reply []byte) (uint32, error) {
	want := ReplySize(c)
	switch c.Op {
	case OpReadByte, OpReadHalfword, OpReadWord:
	default:
		return 0, misuse(c, "not a scalar read")
	}
	if len(reply) != want {
		return 0, fault.Protocol(c.Op.String(), "reply of %d bytes, want %d", len(reply), want).At(c.Addr)
	}
	switch want {
	case 1:
		return uint32(reply[0]), nil
	case 2:
		return uint32(binary.LittleEndian.Uint16(reply)), nil
	}
	return binary.LittleEndian.Uint32(reply), nil
}

// DecodeVersion strips the terminator from a version reply.
func DecodeVersion(reply []byte) (string, error) {
	body, ok := bytes.CutSuffix(reply, Terminator)
	if !ok {
		return "", fault.Protocol(OpVersion.String(), "reply %q lacks terminator", reply)
	}
	for _, b := range body {
		if b < 0x20 || b > 0x7e {
			return "", fault.Protocol(OpVersion.String(), "non-printable byte 0x%02X in version", b)
		}
	}
	return string(body), nil
}

func misuse(c Command, format string, args ...any) error {
	return fault.Misuse(c.Op.String(), format, args...).At(c.Addr)
}
