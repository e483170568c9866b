//go:build !linux

package watchdog

import (
	"errors"
	"time"
)

// DefaultDevice is the kernel watchdog device.
const DefaultDevice = "/dev/watchdog"

// Device is only available on Linux.
type Device struct {
	AllowDisarm bool
}

// OpenDevice always fails off Linux.
func OpenDevice(string) (*Device, error) {
	return nil, errors.New("watchdog device not supported")
}

// Arm implements Timer.
func (d *Device) Arm(time.Duration) error { return errors.ErrUnsupported }

// Feed implements Timer.
func (d *Device) Feed() error { return errors.ErrUnsupported }

// BootStatus is unsupported.
func (d *Device) BootStatus() (int, error) { return 0, errors.ErrUnsupported }

// Close implements Timer.
func (d *Device) Close() error { return nil }
