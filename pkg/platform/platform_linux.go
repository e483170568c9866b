package platform

import (
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

// Reboot restarts the host. It only returns on failure.
func Reboot() error {
	glog.Warning("rebooting")
	glog.Flush()
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return nil
}

// Reexec replaces the process with a fresh start of its executable,
// picking up a newly installed binary. It only returns on failure.
func Reexec() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("reexec: %w", err)
	}
	glog.Infof("re-executing %s", exe)
	glog.Flush()
	if err := unix.Exec(exe, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("reexec %s: %w", exe, err)
	}
	return nil
}

// OpenInput requests an input line, optionally biased high.
func OpenInput(chip string, offset int, pullUp bool) (Line, error) {
	if chip == "" {
		chip = DefaultChip
	}
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithConsumer(AppID)}
	if pullUp {
		opts = append(opts, gpiocdev.WithPullUp)
	}
	line, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input %s:%d: %w", chip, offset, err)
	}
	return line, nil
}

// OpenOutput requests an output line driven to initial.
func OpenOutput(chip string, offset int, initial int) (Line, error) {
	if chip == "" {
		chip = DefaultChip
	}
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(initial), gpiocdev.WithConsumer(AppID))
	if err != nil {
		return nil, fmt.Errorf("request output %s:%d: %w", chip, offset, err)
	}
	return line, nil
}
