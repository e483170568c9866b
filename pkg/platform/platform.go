// Package platform wraps what the device needs from the host: its
// identity, the reason of the last boot, rebooting, and GPIO lines.
package platform

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/denisbrodbeck/machineid"
)

// AppID scopes the machine identity so it is not the raw machine ID.
const AppID = "prop"

// ErrUnsupported is returned by operations not available on this host.
var ErrUnsupported = errors.New("not supported on this platform")

// MachineID derives a stable short identifier of the host.
func MachineID() (string, error) {
	id, err := machineid.ProtectedID(AppID)
	if err != nil {
		return "", fmt.Errorf("machine id: %w", err)
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return "prop-" + id, nil
}

// BootReason classifies the last boot.
type BootReason int

// Boot reasons
const (
	BootUnknown BootReason = iota
	BootPowerOn
	BootWatchdog
	BootOverheat
	BootBrownout
)

func (r BootReason) String() string {
	switch r {
	case BootPowerOn:
		return "Normal Startup"
	case BootWatchdog:
		return "Watchdog"
	case BootOverheat:
		return "Overheat"
	case BootBrownout:
		return "Brownout (Low Voltage)"
	}
	return "Unknown"
}

// Watchdog status flags from linux/watchdog.h.
const (
	wdiofOverheat   = 0x0001
	wdiofPowerUnder = 0x0010
	wdiofCardReset  = 0x0020
)

// DefaultBootStatusPath exposes the watchdog boot status without
// opening, and thereby arming, the device.
const DefaultBootStatusPath = "/sys/class/watchdog/watchdog0/bootstatus"

// BootReasonOf maps watchdog boot status flags.
func BootReasonOf(flags int) BootReason {
	switch {
	case flags&wdiofCardReset != 0:
		return BootWatchdog
	case flags&wdiofOverheat != 0:
		return BootOverheat
	case flags&wdiofPowerUnder != 0:
		return BootBrownout
	}
	return BootPowerOn
}

// ReadBootReason reads the boot status file at path.
func ReadBootReason(path string) (BootReason, error) {
	if path == "" {
		path = DefaultBootStatusPath
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return BootUnknown, err
	}
	flags, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return BootUnknown, fmt.Errorf("boot status %s: %w", path, err)
	}
	return BootReasonOf(flags), nil
}

// Line is a requested GPIO line.
type Line interface {
	Value() (int, error)
	SetValue(value int) error
	Close() error
}

// DefaultChip is the first GPIO character device.
const DefaultChip = "gpiochip0"
