//go:build linux

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

var rulesPath = "/etc/udev/rules.d/70-brickboot.rules"

func install(logger *slog.Logger) error {
	if err := requireRoot(); err != nil {
		return err
	}
	if err := os.WriteFile(rulesPath, []byte(udevRules()), 0o644); err != nil {
		return err
	}

	steps := [][]string{
		{"control", "--reload-rules"},
		{"trigger", "--subsystem-match=usb"},
	}
	for _, args := range steps {
		if err := runUdevadm(args...); err != nil {
			return err
		}
	}

	logger.Info("udev rules installed", "path", rulesPath)
	return nil
}

func uninstall(logger *slog.Logger) error {
	if err := requireRoot(); err != nil {
		return err
	}
	var errs []error

	if err := os.Remove(rulesPath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if err := runUdevadm("control", "--reload-rules"); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logger.Info("udev rules removed", "path", rulesPath)
	return nil
}

func requireRoot() error {
	if unix.Geteuid() != 0 {
		return errors.New("writing udev rules requires root; run with sudo")
	}
	return nil
}

func runUdevadm(args ...string) error {
	cmd := exec.Command("udevadm", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("udevadm %s failed: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}
