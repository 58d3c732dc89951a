package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
)

// Log configures the application loggers.
type Log struct {
	Level   string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"BRICKBOOT_LOG_LEVEL"`
	File    string `help:"Also write logs to this file" env:"BRICKBOOT_LOG_FILE"`
	RawFile string `help:"Hex dump every USB transfer to this file" env:"BRICKBOOT_LOG_RAW_FILE"`
}

// CLI is the root kong command tree.
type CLI struct {
	Config string `help:"Configuration file (json, yaml or toml)" type:"path" env:"BRICKBOOT_CONFIG"`
	Log    Log    `embed:"" prefix:"log."`

	Scan    Scan          `cmd:"" help:"List bricks on the USB bus and the firmware they run"`
	Version Version       `cmd:"" help:"Print the boot monitor version"`
	Peek    Peek          `cmd:"" help:"Read a byte, halfword or word of device memory"`
	Poke    Poke          `cmd:"" help:"Write a byte, halfword or word of device memory"`
	Dump    Dump          `cmd:"" help:"Copy a range of device memory into a file"`
	Load    Load          `cmd:"" help:"Copy a file into device memory"`
	Exec    Exec          `cmd:"" help:"Load a RAM binary and jump to it"`
	Flash   Flash         `cmd:"" help:"Write a firmware image into flash"`
	Reboot  Reboot        `cmd:"" help:"Reset the brick"`
	Cfg     ConfigCommand `cmd:"" name:"config" help:"Configuration helpers"`
	Install Install       `cmd:"" help:"Install udev rules granting access to the brick (linux)"`
	Remove  Uninstall     `cmd:"" name:"uninstall" help:"Remove the udev rules"`
}

// Number is a 32 bit value given in decimal or with a 0x, 0o or 0b prefix.
type Number uint32

func (n *Number) Decode(ctx *kong.DecodeContext) error {
	var s string
	if err := ctx.Scan.PopValueInto("number", &s); err != nil {
		return err
	}
	v, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 0, 32)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*n = Number(v)
	return nil
}

// HexID is a USB vendor or product ID written in hex, with or without 0x.
type HexID uint16

func (h *HexID) Decode(ctx *kong.DecodeContext) error {
	var s string
	if err := ctx.Scan.PopValueInto("id", &s); err != nil {
		return err
	}
	v, err := parseHexID(s)
	if err != nil {
		return err
	}
	*h = HexID(v)
	return nil
}

func parseHexID(s string) (uint16, error) {
	t := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(t, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid USB ID %q: %w", s, err)
	}
	return uint16(v), nil
}
