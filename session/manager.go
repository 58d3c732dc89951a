// Package session finds a brick on the USB bus and owns the open link to it.
//
// A Session holds exactly one transport handle and at most one claimed
// interface. Open either returns a fully usable Session (configured, claimed,
// handshake done) or tears everything down before returning the error.
package session

import (
	"log/slog"

	"github.com/Alia5/brickboot/device"
	"github.com/Alia5/brickboot/fault"
	"github.com/Alia5/brickboot/usb"
)

// WireLogger receives every bulk transfer of a session.
type WireLogger interface {
	Log(toDevice bool, endpoint uint8, data []byte)
}

// Query selects the device Discover looks for. A non-Unknown Variant matches
// only that variant's identity; otherwise non-zero IDs match only that pair;
// otherwise any known identity matches.
type Query struct {
	Variant   device.Variant
	VendorID  uint16
	ProductID uint16
}

func (q Query) explicit() bool { return q.VendorID != 0 || q.ProductID != 0 }

// DeviceHandle is a discovered, not yet opened device.
type DeviceHandle struct {
	Info    usb.DeviceInfo
	Variant device.Variant
}

// Manager discovers and opens devices on a bus.
type Manager struct {
	bus    usb.Bus
	logger *slog.Logger
	wire   WireLogger
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithWireLogger enables hex dumps of all bulk traffic.
func WithWireLogger(w WireLogger) Option {
	return func(m *Manager) { m.wire = w }
}

func NewManager(bus usb.Bus, opts ...Option) *Manager {
	m := &Manager{bus: bus, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Scan returns every attached device with a known identity, in bus order.
func (m *Manager) Scan() ([]DeviceHandle, error) {
	devs, err := m.bus.Enumerate()
	if err != nil {
		return nil, fault.Wrap(fault.DeviceNotFound, "scan", err)
	}
	var found []DeviceHandle
	for _, d := range devs {
		if v := device.Classify(d.VendorID, d.ProductID); v != device.Unknown {
			found = append(found, DeviceHandle{Info: d, Variant: v})
		}
	}
	return found, nil
}

// Discover enumerates the bus once and returns the first device matching q.
// It never opens a device and never retries.
func (m *Manager) Discover(q Query) (DeviceHandle, error) {
	devs, err := m.bus.Enumerate()
	if err != nil {
		return DeviceHandle{}, fault.Wrap(fault.DeviceNotFound, "discover", err)
	}

	switch {
	case q.Variant != device.Unknown:
		id, err := device.IdentityOf(q.Variant)
		if err != nil {
			return DeviceHandle{}, err
		}
		for _, d := range devs {
			if d.VendorID == id.VendorID && d.ProductID == id.ProductID {
				return m.found(d, q.Variant), nil
			}
		}
		return DeviceHandle{}, fault.NotFound("no " + q.Variant.String() + " device (" + id.String() + ") attached")

	case q.explicit():
		id := device.Identity{VendorID: q.VendorID, ProductID: q.ProductID}
		for _, d := range devs {
			if d.VendorID == id.VendorID && d.ProductID == id.ProductID {
				return m.found(d, device.Classify(d.VendorID, d.ProductID)), nil
			}
		}
		return DeviceHandle{}, fault.NotFound("no device " + id.String() + " attached")
	}

	for _, d := range devs {
		if v := device.Classify(d.VendorID, d.ProductID); v != device.Unknown {
			return m.found(d, v), nil
		}
	}
	return DeviceHandle{}, fault.NotFound("no known device attached")
}

func (m *Manager) found(d usb.DeviceInfo, v device.Variant) DeviceHandle {
	m.logger.Debug("found device", "device", d.String(), "variant", v.String())
	return DeviceHandle{Info: d, Variant: v}
}

// Open acquires the device, selects its configuration and interface and runs
// the variant's handshake.
func (m *Manager) Open(dh DeviceHandle) (*Session, error) {
	profile := device.ProfileOf(dh.Variant)

	h, err := m.bus.Open(dh.Info)
	if err != nil {
		return nil, fault.Wrap(fault.ConfigurationError, "open", err)
	}
	if err := h.SetConfiguration(profile.Configuration); err != nil {
		_ = h.Close()
		return nil, fault.Wrap(fault.ConfigurationError, "set configuration", err)
	}

	s := &Session{
		handle:  h,
		info:    dh.Info,
		variant: dh.Variant,
		profile: profile,
		iface:   noInterface,
		logger:  m.logger.With("device", dh.Info.String()),
		wire:    m.wire,
	}
	if err := s.SelectInterface(profile.Interface); err != nil {
		_ = h.Close()
		return nil, err
	}

	if profile.RequiresHandshake() {
		if err := s.handshake(); err != nil {
			if cerr := s.Close(); cerr != nil {
				s.logger.Warn("teardown after failed handshake", "error", cerr)
			}
			return nil, err
		}
	}

	s.logger.Debug("session open", "variant", dh.Variant.String(), "interface", s.iface)
	return s, nil
}
