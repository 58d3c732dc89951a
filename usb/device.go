// Package usb defines the blocking USB transport capability the boot monitor
// session is built on, together with a libusb implementation based on gousb.
package usb

import "fmt"

// DeviceInfo describes one device seen during bus enumeration. Bus and
// Address locate it for a later Open.
type DeviceInfo struct {
	Bus       int
	Address   int
	VendorID  uint16
	ProductID uint16
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("bus %03d device %03d (%04x:%04x)", d.Bus, d.Address, d.VendorID, d.ProductID)
}

// Bus enumerates and opens devices.
type Bus interface {
	// Enumerate lists every device currently attached, without opening any.
	Enumerate() ([]DeviceInfo, error)
	// Open acquires a handle on a previously enumerated device.
	Open(info DeviceInfo) (Handle, error)
}

// Handle is an open device. Every call blocks until the transfer completes or
// fails; deadlines, if any, are the implementation's concern.
type Handle interface {
	SetConfiguration(cfg int) error
	ClaimInterface(iface int) error
	ReleaseInterface(iface int) error
	// BulkWrite sends data to an OUT endpoint (address including direction bit).
	BulkWrite(endpoint uint8, data []byte) (int, error)
	// BulkRead performs a single IN transfer of at most len(buf) bytes.
	BulkRead(endpoint uint8, buf []byte) (int, error)
	Close() error
}
