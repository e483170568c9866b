package health

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// NullLED discards all output, for hosts without an indicator.
type NullLED struct{}

// Set implements LED.
func (NullLED) Set(bool, Color) error { return nil }

// SetBrightness implements LED.
func (NullLED) SetBrightness(uint8) error { return nil }

// OutputLine is a digital output, e.g. a *gpiocdev.Line.
type OutputLine interface {
	SetValue(value int) error
}

// GPIOLED drives a single-color LED on a digital output. Color and
// brightness are ignored.
type GPIOLED struct {
	Line OutputLine
}

// Set implements LED.
func (l *GPIOLED) Set(on bool, _ Color) error {
	if on {
		return l.Line.SetValue(1)
	}
	return l.Line.SetValue(0)
}

// SetBrightness implements LED.
func (l *GPIOLED) SetBrightness(uint8) error { return nil }

// SysfsRoot is where the kernel exposes LED class devices.
const SysfsRoot = "/sys/class/leds"

// SysfsLED drives an LED class device. Multicolor devices receive the
// color through multi_intensity; single-color devices only blink.
type SysfsLED struct {
	Dir string

	max        int
	level      int
	multicolor bool
	color      Color
	colorSet   bool
}

// OpenSysfsLED opens the LED class device name under root.
func OpenSysfsLED(root, name string) (*SysfsLED, error) {
	if root == "" {
		root = SysfsRoot
	}
	l := &SysfsLED{Dir: filepath.Join(root, name), level: DefaultBrightness}
	content, err := os.ReadFile(filepath.Join(l.Dir, "max_brightness"))
	if err != nil {
		return nil, fmt.Errorf("led %s: %w", name, err)
	}
	if l.max, err = strconv.Atoi(strings.TrimSpace(string(content))); err != nil {
		return nil, fmt.Errorf("led %s max_brightness: %w", name, err)
	}
	if _, err := os.Stat(filepath.Join(l.Dir, "multi_intensity")); err == nil {
		l.multicolor = true
	}
	return l, nil
}

// Set implements LED.
func (l *SysfsLED) Set(on bool, c Color) error {
	if !on {
		return l.write("brightness", "0")
	}
	if l.multicolor && (!l.colorSet || c != l.color) {
		if err := l.write("multi_intensity", fmt.Sprintf("%d %d %d", c.R, c.G, c.B)); err != nil {
			return err
		}
		l.color, l.colorSet = c, true
	}
	return l.write("brightness", strconv.Itoa(l.scaled()))
}

// SetBrightness implements LED. It applies from the next Set.
func (l *SysfsLED) SetBrightness(level uint8) error {
	l.level = int(level)
	return nil
}

// scaled maps the 0-255 level onto max_brightness, keeping a lit LED
// visible at level 0.
func (l *SysfsLED) scaled() int {
	if l.max <= 1 {
		return 1
	}
	v := l.level * l.max / 255
	if v < 1 {
		v = 1
	}
	return v
}

func (l *SysfsLED) write(attr, value string) error {
	return os.WriteFile(filepath.Join(l.Dir, attr), []byte(value), 0644)
}
