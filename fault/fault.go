// Package fault defines the error taxonomy shared by every brickboot layer.
//
// All errors surfaced by the session, protocol and flash packages are
// *fault.Error values. Callers match on the kind with errors.Is against the
// exported sentinels or with KindOf.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	Unknown Kind = iota
	DeviceNotFound
	ConfigurationError
	InterfaceInUse
	HandshakeFailed
	UsbWriteError
	UsbReadError
	ProtocolError
	InvalidFirmwareImage
	Internal
)

var kindMessages = map[Kind]string{
	DeviceNotFound:       "device not found on USB bus",
	ConfigurationError:   "error trying to configure the USB link",
	InterfaceInUse:       "USB interface is already claimed by another program",
	HandshakeFailed:      "boot monitor handshake failed",
	UsbWriteError:        "USB write error",
	UsbReadError:         "USB read error",
	ProtocolError:        "SAM-BA protocol error",
	InvalidFirmwareImage: "invalid firmware image",
	Internal:             "internal error",
}

// String returns the descriptive message for the kind. Values without a
// mapped meaning report "unknown error".
func (k Kind) String() string {
	if m, ok := kindMessages[k]; ok {
		return m
	}
	return "unknown error"
}

// Error is the single canonical error type. Op names the command or phase
// that failed; Addr is meaningful only when HasAddr is set.
type Error struct {
	Kind    Kind
	Op      string
	Addr    uint32
	HasAddr bool
	Detail  string
	Err     error
}

// Sentinels for errors.Is matching. Only the Kind is compared.
var (
	ErrDeviceNotFound       = &Error{Kind: DeviceNotFound}
	ErrConfiguration        = &Error{Kind: ConfigurationError}
	ErrInterfaceInUse       = &Error{Kind: InterfaceInUse}
	ErrHandshakeFailed      = &Error{Kind: HandshakeFailed}
	ErrUsbWrite             = &Error{Kind: UsbWriteError}
	ErrUsbRead              = &Error{Kind: UsbReadError}
	ErrProtocol             = &Error{Kind: ProtocolError}
	ErrInvalidFirmwareImage = &Error{Kind: InvalidFirmwareImage}
	ErrInternal             = &Error{Kind: Internal}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.HasAddr {
			fmt.Fprintf(&b, " @0x%08X", e.Addr)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// At returns a copy of e annotated with an address.
func (e *Error) At(addr uint32) *Error {
	c := *e
	c.Addr = addr
	c.HasAddr = true
	return &c
}

// New builds an error of the given kind with a formatted detail.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func NotFound(detail string) *Error { return &Error{Kind: DeviceNotFound, Detail: detail} }

func Protocol(op, format string, args ...any) *Error {
	return New(ProtocolError, op, format, args...)
}

func InvalidImage(format string, args ...any) *Error {
	return New(InvalidFirmwareImage, "flash", format, args...)
}

func Misuse(op, format string, args ...any) *Error {
	return New(Internal, op, format, args...)
}

// KindOf extracts the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}
