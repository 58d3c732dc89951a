package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Alia5/brickboot/flash"
	"github.com/Alia5/brickboot/internal/log"
	"golang.org/x/term"
)

type Flash struct {
	Device DeviceFlags `embed:"" prefix:"device."`
	Image  string      `arg:"" type:"existingfile" help:"Raw firmware image"`
	Driver string      `required:"" type:"existingfile" help:"RAM-resident flash driver" env:"BRICKBOOT_FLASH_DRIVER"`
	Addr   Number      `help:"Flash address of the image" default:"0x00100000" env:"BRICKBOOT_FLASH_ADDR"`
	Verify bool        `help:"Read the image back after writing" default:"true" negatable:"" env:"BRICKBOOT_FLASH_VERIFY"`
	Reboot bool        `help:"Reset the brick when done" env:"BRICKBOOT_FLASH_REBOOT"`
}

// Run is called by Kong when the flash command is executed.
func (f *Flash) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	img, err := os.ReadFile(f.Image)
	if err != nil {
		return err
	}
	drv, err := os.ReadFile(f.Driver)
	if err != nil {
		return err
	}

	l, err := f.Device.open(logger, rawLogger)
	if err != nil {
		return err
	}

	prog := flash.New(l.client,
		flash.WithVerify(f.Verify),
		flash.WithLogger(logger),
		flash.WithProgressCallback(progressPrinter(os.Stderr, logger)),
	)
	res, err := prog.Flash(ctx, flash.Region{Addr: uint32(f.Addr), Data: img}, drv)
	if err != nil {
		_ = l.Close()
		return err
	}
	logger.Info("flash complete",
		"pages", res.Pages,
		"bytes", res.Bytes,
		"verified", res.Verified,
		"blake2b", hex.EncodeToString(res.Digest[:]),
	)

	if !f.Reboot {
		return l.Close()
	}
	defer l.closeAfterReboot()
	return l.client.Reboot()
}

// progressPrinter redraws a single status line when w is a terminal and
// logs phase changes otherwise.
func progressPrinter(w *os.File, logger *slog.Logger) flash.ProgressCallback {
	if !term.IsTerminal(int(w.Fd())) {
		last := flash.Idle
		return func(p flash.Progress) {
			if p.Phase != last {
				last = p.Phase
				logger.Info("flash phase", "phase", p.Phase.String(), "pages", p.TotalPages)
			}
		}
	}
	return func(p flash.Progress) {
		drawProgress(w, p)
	}
}

func drawProgress(w io.Writer, p flash.Progress) {
	const width = 30
	filled := int(p.Percentage / 100 * width)
	bar := make([]byte, width)
	for i := range bar {
		if i < filled {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	fmt.Fprintf(w, "\r%-13s [%s] %5.1f%% %d/%d", p.Phase, bar, p.Percentage, p.CurrentPage, p.TotalPages)
	if p.Phase == flash.Done {
		fmt.Fprintln(w)
	}
}
