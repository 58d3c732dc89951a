//go:build !linux

package cmd

import (
	"errors"
	"log/slog"
)

var errNoUdev = errors.New("install is only supported on linux; other systems need no rules or use a driver installer")

func install(*slog.Logger) error   { return errNoUdev }
func uninstall(*slog.Logger) error { return errNoUdev }
