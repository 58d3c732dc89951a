// Package device identifies the boot monitor variants a brick can expose on
// the USB bus and the session parameters each of them needs.
package device

import (
	"fmt"

	"github.com/Alia5/brickboot/fault"
)

// Variant is the firmware a discovered brick is running.
type Variant int

const (
	Unknown Variant = iota
	// BootAssistant is the Atmel SAM7 Boot Assistant (SAM-BA) in ROM.
	BootAssistant
	// VendorFirmware is the stock LEGO firmware.
	VendorFirmware
)

func (v Variant) String() string {
	switch v {
	case BootAssistant:
		return "samba"
	case VendorFirmware:
		return "lego"
	}
	return "unknown"
}

// ParseVariant maps the CLI/config spelling of a variant back to its value.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "", "any", "unknown":
		return Unknown, nil
	case "samba":
		return BootAssistant, nil
	case "lego":
		return VendorFirmware, nil
	}
	return Unknown, fmt.Errorf("unknown firmware variant %q", s)
}

// Identity is a USB vendor/product ID pair.
type Identity struct {
	VendorID  uint16
	ProductID uint16
}

func (i Identity) String() string {
	return fmt.Sprintf("%04x:%04x", i.VendorID, i.ProductID)
}

// Registry order matters: a scan for any device returns the first hit in
// this order.
var identities = []struct {
	variant  Variant
	identity Identity
}{
	{BootAssistant, Identity{VendorID: 0x03EB, ProductID: 0x6124}},
	{VendorFirmware, Identity{VendorID: 0x0694, ProductID: 0x0002}},
}

// Known returns the known variants in registry order.
func Known() []Variant {
	out := make([]Variant, 0, len(identities))
	for _, e := range identities {
		out = append(out, e.variant)
	}
	return out
}

// Classify returns the variant owning the given IDs, or Unknown.
func Classify(vendorID, productID uint16) Variant {
	for _, e := range identities {
		if e.identity.VendorID == vendorID && e.identity.ProductID == productID {
			return e.variant
		}
	}
	return Unknown
}

// IdentityOf returns the canonical USB IDs of a variant. Unknown has none.
func IdentityOf(v Variant) (Identity, error) {
	for _, e := range identities {
		if e.variant == v {
			return e.identity, nil
		}
	}
	return Identity{}, fault.New(fault.ConfigurationError, "identity", "variant %s has no canonical USB identity", v)
}
