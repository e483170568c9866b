package prop

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/glog"

	fx "github.com/robotalks/prop.go/pkg/framework"
	"github.com/robotalks/prop.go/pkg/health"
	"github.com/robotalks/prop.go/pkg/link"
	"github.com/robotalks/prop.go/pkg/platform"
	"github.com/robotalks/prop.go/pkg/reset"
	"github.com/robotalks/prop.go/pkg/watchdog"
)

// Name implements Named.
func (d *Device) Name() string {
	return "prop"
}

// Run implements Runnable. It boots the device, runs the main cycle
// until ctx is done, and tears everything down.
func (d *Device) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.started = d.Clock.Now()
	support := fx.NewRunnerWith(ctx, "support")
	var closers []func() error

	if d.Health != nil {
		d.Health.SetState(health.Booting)
		if led, closeFn := d.openLED(); led != nil {
			d.Health.LED = led
			if closeFn != nil {
				closers = append(closers, closeFn)
			}
		}
		support.Go(d.Health)
	}
	d.BootReason = readBootReason()
	if d.Watchdog != nil {
		d.armWatchdog()
	}
	d.printStartupInfo()

	if d.Link != nil {
		d.SetHealth(health.Connecting)
		d.Link.Begin(ctx, support, link.Credentials{
			SSID:       d.Config.Link.SSID,
			Passphrase: d.Config.Link.Passphrase,
		})
	}
	if d.Advertiser != nil {
		support.Go(d.Advertiser)
	}
	if d.PubSub != nil {
		d.PubSub.Begin()
	}
	if d.Admin != nil {
		support.Go(d.Admin)
	}
	if d.Config.Modules.Reset {
		if button, closeFn := d.openButton(); button != nil {
			closers = append(closers, closeFn)
			support.Go(button)
		}
	}
	d.printNetworkInfo()
	d.Logf("boot: %s, reason %s", d.Config.DeviceID, d.BootReason)

	app := fx.NewRunnerWith(ctx, "app")
	app.GoLocked(d.Dispatcher)
	var errs fx.AggregatedError
	errs.Add(app.Wait())

	cancel()
	errs.Add(support.Wait())
	if d.PubSub != nil {
		errs.Add(d.PubSub.Close())
	}
	if d.Watchdog != nil {
		errs.Add(d.Watchdog.Close())
	}
	for _, fn := range closers {
		errs.Add(fn())
	}
	return errs.Aggregate()
}

func (d *Device) armWatchdog() {
	if path := d.Config.Watchdog.Device; path != "" {
		dev, err := watchdog.OpenDevice(path)
		if err == nil {
			dev.AllowDisarm = d.Config.Watchdog.AllowDisarm
			d.Watchdog.Timer = dev
			if flags, err := dev.BootStatus(); err == nil && d.BootReason == platform.BootUnknown {
				d.BootReason = platform.BootReasonOf(flags)
			}
		} else {
			glog.Warningf("%v, falling back to software watchdog", err)
		}
	}
	if d.Watchdog.Timer == nil {
		d.Watchdog.Timer = &watchdog.Software{Expire: expire}
	}
	if err := d.Watchdog.Arm(); err != nil {
		glog.Errorf("watchdog: %v", err)
		d.SetHealth(health.Error)
	}
}

func expire() {
	if err := platform.Reboot(); err != nil {
		glog.Fatalf("watchdog expired, reboot failed: %v", err)
	}
}

func readBootReason() platform.BootReason {
	reason, err := platform.ReadBootReason("")
	if err != nil {
		glog.V(1).Infof("boot reason: %v", err)
	}
	return reason
}

// openLED resolves the health LED setting: none, sysfs:<name> or
// gpio:<chip>:<line>. Failures leave the indicator on the null LED.
func (d *Device) openLED() (health.LED, func() error) {
	setting := d.Config.Health.LED
	kind, arg, _ := strings.Cut(setting, ":")
	switch kind {
	case "", "none":
		return nil, nil
	case "sysfs":
		led, err := health.OpenSysfsLED("", arg)
		if err != nil {
			glog.Warningf("health led: %v", err)
			return nil, nil
		}
		return led, nil
	case "gpio":
		chip, offset, err := parseLine(arg)
		if err == nil {
			var line platform.Line
			if line, err = platform.OpenOutput(chip, offset, 0); err == nil {
				return &health.GPIOLED{Line: line}, line.Close
			}
		}
		glog.Warningf("health led %s: %v", setting, err)
		return nil, nil
	}
	glog.Warningf("health led %q: unknown kind", setting)
	return nil, nil
}

func (d *Device) openButton() (*reset.Button, func() error) {
	conf := d.Config.Reset
	line, err := platform.OpenInput(conf.Chip, conf.Line, true)
	if err != nil {
		glog.Warningf("reset button disabled: %v", err)
		return nil, nil
	}
	button := reset.NewButton(line, d.Resets)
	button.Hold = conf.Hold
	glog.Infof("reset button on %s:%d, hold %v", conf.Chip, conf.Line, conf.Hold)
	return button, line.Close
}

func parseLine(arg string) (string, int, error) {
	chip, offset, ok := strings.Cut(arg, ":")
	if !ok {
		chip, offset = platform.DefaultChip, arg
	}
	n, err := strconv.Atoi(offset)
	if err != nil {
		return "", 0, fmt.Errorf("invalid line %q", arg)
	}
	return chip, n, nil
}

func (d *Device) printStartupInfo() {
	glog.Infof("project %s, device %s", d.Config.Project, d.Config.DeviceID)
	glog.Infof("status: %s", d.BootReason)
	glog.Infof("modules enabled: %s", strings.Join(d.Config.EnabledModules(), ", "))
}

func (d *Device) printNetworkInfo() {
	if d.Link != nil {
		glog.Infof("link %s: %s", d.Config.Link.Interface, d.Link.State())
	}
	if d.Advertiser != nil {
		glog.Infof("mdns: %s", d.Advertiser.FQDN())
	}
	if d.PubSub != nil {
		glog.Infof("mqtt topic %s, connected %v", d.PubSub.BaseTopic(), d.PubSub.IsConnected())
	}
	if d.Admin != nil {
		glog.Infof("admin: %s, update %v", d.Admin.Addr, d.Transfer != nil)
	}
	if d.Health != nil {
		glog.Infof("health: %s (led %s)", d.Health.State(), d.Config.Health.LED)
	}
}
