package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Alia5/brickboot/internal/log"
	"github.com/Alia5/brickboot/samba"
	"github.com/Alia5/brickboot/session"
	"github.com/Alia5/brickboot/usb"
)

var stdout io.Writer = os.Stdout

type Scan struct{}

func (s *Scan) Run(logger *slog.Logger) error {
	bus := usb.NewGoUSB()
	defer bus.Close()

	found, err := session.NewManager(bus, session.WithLogger(logger)).Scan()
	if err != nil {
		return err
	}
	if len(found) == 0 {
		logger.Info("no brick found")
		return nil
	}
	for _, dh := range found {
		fmt.Fprintf(stdout, "%s\t%s\n", dh.Info, dh.Variant)
	}
	return nil
}

type Version struct {
	Device DeviceFlags `embed:"" prefix:"device."`
}

func (v *Version) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	l, err := v.Device.open(logger, rawLogger)
	if err != nil {
		return err
	}
	defer l.Close()

	ver, err := l.client.Version()
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, ver)
	return nil
}

type Peek struct {
	Device DeviceFlags `embed:"" prefix:"device."`
	Width  string      `help:"Access width in bits" enum:"8,16,32" default:"32"`
	Addr   Number      `arg:"" help:"Address to read"`
}

func (p *Peek) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	l, err := p.Device.open(logger, rawLogger)
	if err != nil {
		return err
	}
	defer l.Close()

	addr := uint32(p.Addr)
	switch p.Width {
	case "8":
		v, err := l.client.ReadByte(addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "0x%08X: 0x%02X\n", addr, v)
	case "16":
		v, err := l.client.ReadHalfword(addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "0x%08X: 0x%04X\n", addr, v)
	default:
		v, err := l.client.ReadWord(addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "0x%08X: 0x%08X\n", addr, v)
	}
	return nil
}

type Poke struct {
	Device DeviceFlags `embed:"" prefix:"device."`
	Width  string      `help:"Access width in bits" enum:"8,16,32" default:"32"`
	Addr   Number      `arg:"" help:"Address to write"`
	Value  Number      `arg:"" help:"Value to store"`
}

func (p *Poke) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	addr, v := uint32(p.Addr), uint32(p.Value)
	switch {
	case p.Width == "8" && v > 0xFF, p.Width == "16" && v > 0xFFFF:
		return fmt.Errorf("value 0x%X does not fit %s bits", v, p.Width)
	}

	l, err := p.Device.open(logger, rawLogger)
	if err != nil {
		return err
	}
	defer l.Close()

	switch p.Width {
	case "8":
		return l.client.WriteByte(addr, uint8(v))
	case "16":
		return l.client.WriteHalfword(addr, uint16(v))
	}
	return l.client.WriteWord(addr, v)
}

type Dump struct {
	Device DeviceFlags `embed:"" prefix:"device."`
	Addr   Number      `arg:"" help:"First address"`
	Length Number      `arg:"" help:"Number of bytes"`
	Out    string      `short:"o" required:"" type:"path" help:"Destination file"`
}

func (d *Dump) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	l, err := d.Device.open(logger, rawLogger)
	if err != nil {
		return err
	}
	defer l.Close()

	data, err := l.client.ReceiveLarge(uint32(d.Addr), int(d.Length))
	if err != nil {
		return err
	}
	if err := os.WriteFile(d.Out, data, 0o644); err != nil {
		return err
	}
	logger.Info("memory dumped", "addr", fmt.Sprintf("0x%08X", uint32(d.Addr)), "bytes", len(data), "file", d.Out)
	return nil
}

type Load struct {
	Device DeviceFlags `embed:"" prefix:"device."`
	Addr   Number      `arg:"" help:"Destination address"`
	File   string      `arg:"" type:"existingfile" help:"File to upload"`
}

func (c *Load) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}

	l, err := c.Device.open(logger, rawLogger)
	if err != nil {
		return err
	}
	defer l.Close()

	if err := l.client.SendLarge(uint32(c.Addr), data); err != nil {
		return err
	}
	logger.Info("file loaded", "addr", fmt.Sprintf("0x%08X", uint32(c.Addr)), "bytes", len(data))
	return nil
}

type Exec struct {
	Device DeviceFlags `embed:"" prefix:"device."`
	File   string      `arg:"" type:"existingfile" help:"RAM binary to run"`
	Addr   Number      `help:"Load and entry address" default:"0x00202000" env:"BRICKBOOT_EXEC_ADDR"`
}

func (e *Exec) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	code, err := os.ReadFile(e.File)
	if err != nil {
		return err
	}
	if len(code) == 0 {
		return fmt.Errorf("%s is empty", e.File)
	}

	l, err := e.Device.open(logger, rawLogger)
	if err != nil {
		return err
	}
	defer l.Close()

	if uint32(e.Addr) < samba.RAMExecAddr {
		logger.Warn("load address overlaps RAM used by the boot monitor", "addr", fmt.Sprintf("0x%08X", uint32(e.Addr)))
	}
	if err := l.client.Exec(uint32(e.Addr), code); err != nil {
		return err
	}
	logger.Info("code started", "addr", fmt.Sprintf("0x%08X", uint32(e.Addr)), "bytes", len(code))
	return nil
}

type Reboot struct {
	Device DeviceFlags `embed:"" prefix:"device."`
}

func (r *Reboot) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	l, err := r.Device.open(logger, rawLogger)
	if err != nil {
		return err
	}
	defer l.closeAfterReboot()

	if err := l.client.Reboot(); err != nil {
		return err
	}
	logger.Info("brick rebooted")
	return nil
}
