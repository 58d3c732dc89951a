package session

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Alia5/brickboot/device"
	"github.com/Alia5/brickboot/fault"
	"github.com/Alia5/brickboot/usb"
)

const noInterface = -1

// handshakeReadSize lets an over-long reply be seen as such instead of being
// truncated into a matching prefix.
const handshakeReadSize = 64

// Session is an open link to one device. It is not safe for concurrent use
// and is consumed by Close.
type Session struct {
	handle  usb.Handle
	info    usb.DeviceInfo
	variant device.Variant
	profile device.Profile
	iface   int
	closed  bool
	logger  *slog.Logger
	wire    WireLogger
}

func (s *Session) Variant() device.Variant { return s.variant }
func (s *Session) Info() usb.DeviceInfo    { return s.info }

// Interface returns the claimed interface number, or -1 when none is claimed.
func (s *Session) Interface() int { return s.iface }

func (s *Session) usable(op string) error {
	if s == nil || s.closed {
		return fault.Misuse(op, "session is closed")
	}
	return nil
}

// SelectInterface releases the current interface, if any, and claims n. On
// failure no interface is claimed.
func (s *Session) SelectInterface(n int) error {
	if err := s.usable("select interface"); err != nil {
		return err
	}
	if s.iface != noInterface {
		old := s.iface
		s.iface = noInterface
		if err := s.handle.ReleaseInterface(old); err != nil {
			s.logger.Warn("release interface", "interface", old, "error", err)
		}
	}
	if err := s.handle.ClaimInterface(n); err != nil {
		return fault.Wrap(fault.InterfaceInUse, fmt.Sprintf("claim interface %d", n), err)
	}
	s.iface = n
	return nil
}

// Write sends p on the variant's bulk OUT endpoint.
func (s *Session) Write(p []byte) error {
	if err := s.usable("bulk write"); err != nil {
		return err
	}
	ep := s.profile.OutEndpoint
	if s.wire != nil {
		s.wire.Log(true, ep, p)
	}
	if _, err := s.handle.BulkWrite(ep, p); err != nil {
		return fault.Wrap(fault.UsbWriteError, "bulk write", err)
	}
	return nil
}

// Read performs one bulk IN transfer of at most size bytes.
func (s *Session) Read(size int) ([]byte, error) {
	if err := s.usable("bulk read"); err != nil {
		return nil, err
	}
	ep := s.profile.InEndpoint
	buf := make([]byte, size)
	n, err := s.handle.BulkRead(ep, buf)
	if err != nil {
		return nil, fault.Wrap(fault.UsbReadError, "bulk read", err)
	}
	if s.wire != nil {
		s.wire.Log(false, ep, buf[:n])
	}
	return buf[:n], nil
}

func (s *Session) handshake() error {
	const op = "handshake"
	if err := s.Write(s.profile.Probe); err != nil {
		return fault.Wrap(fault.HandshakeFailed, op, err)
	}
	reply, err := s.Read(handshakeReadSize)
	if err != nil {
		return fault.Wrap(fault.HandshakeFailed, op, err)
	}
	if !bytes.Equal(reply, s.profile.Ack) {
		return fault.New(fault.HandshakeFailed, op, "unexpected reply %q, want %q", reply, s.profile.Ack)
	}
	return nil
}

// Close releases the claimed interface and closes the handle. The session
// cannot be used afterwards; a second Close is reported as misuse.
func (s *Session) Close() error {
	if err := s.usable("close"); err != nil {
		return err
	}
	s.closed = true

	var errs []error
	if s.iface != noInterface {
		if err := s.handle.ReleaseInterface(s.iface); err != nil {
			errs = append(errs, fmt.Errorf("release interface %d: %w", s.iface, err))
		}
		s.iface = noInterface
	}
	if err := s.handle.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fault.Wrap(fault.Unknown, "close", errors.Join(errs...))
	}
	s.logger.Debug("session closed")
	return nil
}
