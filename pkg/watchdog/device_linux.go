package watchdog

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultDevice is the kernel watchdog device.
const DefaultDevice = "/dev/watchdog"

// Device is a Timer on a kernel watchdog, which also catches a hung
// kernel or a killed process.
type Device struct {
	// AllowDisarm writes the magic close character on Close, otherwise
	// the hardware keeps counting after the process exits.
	AllowDisarm bool

	file *os.File
}

// OpenDevice opens a watchdog device. Opening starts the hardware
// timer with its current timeout.
func OpenDevice(path string) (*Device, error) {
	if path == "" {
		path = DefaultDevice
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open watchdog %s: %w", path, err)
	}
	return &Device{file: f}, nil
}

// Arm implements Timer.
func (d *Device) Arm(timeout time.Duration) error {
	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	if err := unix.IoctlSetPointerInt(int(d.file.Fd()), unix.WDIOC_SETTIMEOUT, secs); err != nil {
		return fmt.Errorf("watchdog set timeout %ds: %w", secs, err)
	}
	return d.Feed()
}

// Feed implements Timer.
func (d *Device) Feed() error {
	return unix.IoctlWatchdogKeepalive(int(d.file.Fd()))
}

// BootStatus reads the WDIOF_* flags describing the last reboot.
func (d *Device) BootStatus() (int, error) {
	return unix.IoctlGetInt(int(d.file.Fd()), unix.WDIOC_GETBOOTSTATUS)
}

// Close implements Timer.
func (d *Device) Close() error {
	if d.AllowDisarm {
		if _, err := d.file.Write([]byte("V")); err != nil {
			d.file.Close()
			return fmt.Errorf("watchdog disarm: %w", err)
		}
	}
	return d.file.Close()
}
