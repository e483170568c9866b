//go:build !linux

package platform

// Reboot is unsupported.
func Reboot() error { return ErrUnsupported }

// Reexec is unsupported.
func Reexec() error { return ErrUnsupported }

// OpenInput is unsupported.
func OpenInput(string, int, bool) (Line, error) { return nil, ErrUnsupported }

// OpenOutput is unsupported.
func OpenOutput(string, int, int) (Line, error) { return nil, ErrUnsupported }
