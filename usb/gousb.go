package usb

import (
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// GoUSB is the libusb-backed Bus. It must be closed to release the libusb
// context.
type GoUSB struct {
	ctx *gousb.Context
}

// NewGoUSB creates a libusb context.
func NewGoUSB() *GoUSB {
	return &GoUSB{ctx: gousb.NewContext()}
}

func (g *GoUSB) Close() error {
	return g.ctx.Close()
}

func (g *GoUSB) Enumerate() ([]DeviceInfo, error) {
	var infos []DeviceInfo
	// The opener never returns true, so no device is opened here.
	_, err := g.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		infos = append(infos, DeviceInfo{
			Bus:       desc.Bus,
			Address:   desc.Address,
			VendorID:  uint16(desc.Vendor),
			ProductID: uint16(desc.Product),
		})
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate: %w", err)
	}
	return infos, nil
}

func (g *GoUSB) Open(info DeviceInfo) (Handle, error) {
	devs, err := g.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == info.Bus && desc.Address == info.Address &&
			uint16(desc.Vendor) == info.VendorID && uint16(desc.Product) == info.ProductID
	})
	if len(devs) == 0 {
		if err == nil {
			err = errors.New("device disappeared from the bus")
		}
		return nil, fmt.Errorf("open %s: %w", info, err)
	}
	// A partial failure can still yield the device we asked for; extra
	// matches are impossible because bus+address is unique.
	for _, d := range devs[1:] {
		_ = d.Close()
	}
	dev := devs[0]
	if err := dev.SetAutoDetach(true); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("open %s: auto detach: %w", info, err)
	}
	return &gousbHandle{dev: dev, intfs: map[int]*gousb.Interface{}}, nil
}

type gousbHandle struct {
	dev   *gousb.Device
	cfg   *gousb.Config
	intfs map[int]*gousb.Interface
}

func (h *gousbHandle) SetConfiguration(cfg int) error {
	if h.cfg != nil {
		if err := h.cfg.Close(); err != nil {
			return err
		}
		h.cfg = nil
	}
	c, err := h.dev.Config(cfg)
	if err != nil {
		return err
	}
	h.cfg = c
	return nil
}

func (h *gousbHandle) ClaimInterface(iface int) error {
	if h.cfg == nil {
		return errors.New("no active configuration")
	}
	if _, ok := h.intfs[iface]; ok {
		return nil
	}
	intf, err := h.cfg.Interface(iface, 0)
	if err != nil {
		return err
	}
	h.intfs[iface] = intf
	return nil
}

func (h *gousbHandle) ReleaseInterface(iface int) error {
	intf, ok := h.intfs[iface]
	if !ok {
		return fmt.Errorf("interface %d not claimed", iface)
	}
	intf.Close()
	delete(h.intfs, iface)
	return nil
}

// endpointInterface finds the claimed interface exposing the given endpoint.
func (h *gousbHandle) endpointInterface(endpoint uint8) (*gousb.Interface, error) {
	for _, intf := range h.intfs {
		for _, ep := range intf.Setting.Endpoints {
			if uint8(ep.Address) == endpoint {
				return intf, nil
			}
		}
	}
	return nil, fmt.Errorf("endpoint 0x%02x not found on any claimed interface", endpoint)
}

func (h *gousbHandle) BulkWrite(endpoint uint8, data []byte) (int, error) {
	intf, err := h.endpointInterface(endpoint)
	if err != nil {
		return 0, err
	}
	out, err := intf.OutEndpoint(int(endpoint & 0x0f))
	if err != nil {
		return 0, err
	}
	n, err := out.Write(data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(data))
	}
	return n, err
}

func (h *gousbHandle) BulkRead(endpoint uint8, buf []byte) (int, error) {
	intf, err := h.endpointInterface(endpoint)
	if err != nil {
		return 0, err
	}
	in, err := intf.InEndpoint(int(endpoint & 0x0f))
	if err != nil {
		return 0, err
	}
	return in.Read(buf)
}

func (h *gousbHandle) Close() error {
	var errs []error
	for n, intf := range h.intfs {
		intf.Close()
		delete(h.intfs, n)
	}
	if h.cfg != nil {
		if err := h.cfg.Close(); err != nil {
			errs = append(errs, err)
		}
		h.cfg = nil
	}
	if err := h.dev.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
