//go:build !linux

package main

import (
	"fmt"
	"log/slog"
)

func newHardwareButtonSource(devices []string, deb *buttonDebouncer, logger *slog.Logger) (ButtonSource, error) {
	return nil, fmt.Errorf("hardware button input requires linux evdev; use simulated input")
}
