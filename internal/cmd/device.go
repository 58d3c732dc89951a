package cmd

import (
	"errors"
	"log/slog"

	"github.com/Alia5/brickboot/device"
	"github.com/Alia5/brickboot/internal/log"
	"github.com/Alia5/brickboot/samba"
	"github.com/Alia5/brickboot/session"
	"github.com/Alia5/brickboot/usb"
)

// DeviceFlags selects the brick a command talks to.
type DeviceFlags struct {
	Variant   string `help:"Firmware to look for" enum:"samba,lego,any" default:"samba" env:"BRICKBOOT_DEVICE_VARIANT"`
	VendorID  HexID  `help:"USB vendor ID (hex); with --device.product-id overrides the variant" env:"BRICKBOOT_DEVICE_VENDOR_ID"`
	ProductID HexID  `help:"USB product ID (hex)" env:"BRICKBOOT_DEVICE_PRODUCT_ID"`
}

func (d DeviceFlags) query() (session.Query, error) {
	if d.VendorID != 0 || d.ProductID != 0 {
		if d.VendorID == 0 || d.ProductID == 0 {
			return session.Query{}, errors.New("--device.vendor-id and --device.product-id must be given together")
		}
		return session.Query{VendorID: uint16(d.VendorID), ProductID: uint16(d.ProductID)}, nil
	}
	v, err := device.ParseVariant(d.Variant)
	if err != nil {
		return session.Query{}, err
	}
	return session.Query{Variant: v}, nil
}

// link is an open session plus the bus it lives on.
type link struct {
	bus     *usb.GoUSB
	session *session.Session
	client  *samba.Client
	logger  *slog.Logger
}

func (d DeviceFlags) open(logger *slog.Logger, rawLogger log.RawLogger) (*link, error) {
	q, err := d.query()
	if err != nil {
		return nil, err
	}

	bus := usb.NewGoUSB()
	m := session.NewManager(bus, session.WithLogger(logger), session.WithWireLogger(rawLogger))
	dh, err := m.Discover(q)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	s, err := m.Open(dh)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	if dh.Variant == device.VendorFirmware {
		logger.Warn("brick runs LEGO firmware; SAM-BA commands need the boot monitor (reset button)")
	}
	return &link{bus: bus, session: s, client: samba.NewClient(s), logger: logger}, nil
}

func (l *link) Close() error {
	return errors.Join(l.session.Close(), l.bus.Close())
}

// closeAfterReboot drops the session of a device that already left the bus.
func (l *link) closeAfterReboot() {
	if err := l.Close(); err != nil {
		l.logger.Debug("close after reboot", "error", err)
	}
}
