package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Alia5/brickboot/device"
)

type Install struct{}

// Run is called by Kong when the install command is executed.
func (i *Install) Run(logger *slog.Logger) error {
	return install(logger)
}

type Uninstall struct{}

func (u *Uninstall) Run(logger *slog.Logger) error {
	return uninstall(logger)
}

// udevRules grants the active desktop user and the plugdev group access to
// every known brick identity.
func udevRules() string {
	var b strings.Builder
	b.WriteString("# LEGO NXT bricks, written by brickboot install\n")
	for _, v := range device.Known() {
		id, err := device.IdentityOf(v)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "SUBSYSTEM==\"usb\", ATTRS{idVendor}==\"%04x\", ATTRS{idProduct}==\"%04x\", MODE=\"0660\", GROUP=\"plugdev\", TAG+=\"uaccess\"\n",
			id.VendorID, id.ProductID)
	}
	return b.String()
}
