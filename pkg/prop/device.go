// Package prop composes the supervisory core of a networked prop and
// runs it on two scheduling domains: a support domain for link
// maintenance, discovery, firmware transfer, the reset button and the
// health LED, and an application domain locked to its own OS thread
// for the main cycle.
package prop

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/robotalks/prop.go/pkg/admin"
	"github.com/robotalks/prop.go/pkg/config"
	"github.com/robotalks/prop.go/pkg/discovery"
	"github.com/robotalks/prop.go/pkg/dispatch"
	fx "github.com/robotalks/prop.go/pkg/framework"
	"github.com/robotalks/prop.go/pkg/health"
	"github.com/robotalks/prop.go/pkg/link"
	"github.com/robotalks/prop.go/pkg/link/netlink"
	"github.com/robotalks/prop.go/pkg/metrics"
	"github.com/robotalks/prop.go/pkg/platform"
	"github.com/robotalks/prop.go/pkg/pubsub"
	"github.com/robotalks/prop.go/pkg/reset"
	"github.com/robotalks/prop.go/pkg/update"
	"github.com/robotalks/prop.go/pkg/watchdog"
)

const keepAlive = 15 * time.Second

// Device is the composed prop. Optional components are nil when their
// module is disabled.
type Device struct {
	Config   *config.Config
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	App      Application

	Health     *health.Indicator
	Link       *link.Supervisor
	PubSub     *pubsub.Supervisor
	Update     *update.Guard
	Transfer   *update.Transfer
	Resets     *reset.Coordinator
	Watchdog   *watchdog.Liveness
	Advertiser *discovery.Advertiser
	Admin      *admin.Server
	Dispatcher *dispatch.Dispatcher
	BootReason platform.BootReason

	// Clock drives supervisory timing, the system clock by default.
	Clock fx.Clock

	logLimiter *rate.Limiter
	started    time.Time
}

// New composes a Device from conf. Hardware is only opened by Run.
func New(conf *config.Config, app Application) (*Device, error) {
	d := &Device{
		Config:   conf,
		Registry: prometheus.NewRegistry(),
		App:      app,
		Resets:   &reset.Coordinator{},
		Clock:    fx.SystemClock,
	}
	d.Metrics = metrics.New(d.Registry)
	d.Resets.Metrics = d.Metrics
	if conf.MQTT.LogRate > 0 {
		d.logLimiter = rate.NewLimiter(rate.Limit(conf.MQTT.LogRate), int(conf.MQTT.LogRate)+1)
	}

	if conf.Modules.Health {
		d.Health = health.NewIndicator(health.NullLED{})
		d.Health.Metrics = d.Metrics
		d.Health.Label = conf.Health.LED
		d.Health.SetBrightness(conf.Health.Brightness)
	}
	if conf.Modules.Link {
		driver := netlink.New(conf.Link.Interface)
		if len(conf.Link.AssociateCmd) > 0 {
			driver.AssociateCmd = conf.Link.AssociateCmd
		}
		d.Link = link.NewSupervisor(driver)
		d.Link.RetryInterval = conf.Link.RetryInterval
		d.Link.Metrics = d.Metrics
		d.Link.OnUp = func() { glog.Infof("link %s up", conf.Link.Interface) }
		d.Link.OnDown = func() { glog.Warningf("link %s down", conf.Link.Interface) }
	}
	if conf.Modules.MQTT {
		if err := d.setupPubSub(); err != nil {
			return nil, err
		}
	}
	if conf.Modules.Update {
		d.Update = &update.Guard{Metrics: d.Metrics}
		d.Transfer = &update.Transfer{
			Events:   d.Update,
			Applier:  &update.SelfUpdate{TargetPath: conf.Update.Target},
			Password: conf.Update.Password,
			Metrics:  d.Metrics,
		}
		if conf.Update.Reboot {
			d.Transfer.Restarter = update.RestartFunc(platform.Reboot)
		} else {
			d.Transfer.Restarter = update.RestartFunc(platform.Reexec)
		}
	}
	if conf.Modules.Watchdog {
		d.Watchdog = &watchdog.Liveness{Timeout: conf.Watchdog.Timeout, Metrics: d.Metrics}
	}
	if conf.Modules.MDNS {
		var status discovery.LinkStatus
		if d.Link != nil {
			status = d.Link
		}
		d.Advertiser = discovery.NewAdvertiser(conf.DeviceID, status)
		d.Advertiser.Service = conf.MDNS.Service
		d.Advertiser.Port = conf.MDNS.Port
		d.Advertiser.TXT = []string{"project=" + conf.Project}
	}
	if conf.Admin.Addr != "" {
		d.Admin = admin.New(conf.Admin.Addr, d.Registry, func() any { return d.Status() })
		if d.Transfer != nil {
			d.Transfer.Register(d.Admin.Router)
		}
	}

	d.Dispatcher = dispatch.New(&appComponent{app: app, dev: d})
	d.Dispatcher.Metrics = d.Metrics
	d.Dispatcher.Reset = d.Resets
	d.Dispatcher.OnReset = app.Reset
	if d.Watchdog != nil {
		d.Dispatcher.Watchdog = d.Watchdog
	}
	if d.PubSub != nil {
		d.Dispatcher.Session = d.PubSub
		d.PubSub.Wake = d.Dispatcher.TriggerNext
	}
	if d.Update != nil {
		d.Dispatcher.Update = d.Update
	}
	if d.Health != nil {
		d.Dispatcher.Health = d.Health
	}
	return d, nil
}

func (d *Device) setupPubSub() error {
	opts, prefix, err := pubsub.ClientOptionsFromURL(d.Config.MQTT.URL)
	if err != nil {
		return fmt.Errorf("mqtt url: %w", err)
	}
	if prefix == "" {
		prefix = pubsub.DefaultTopicPrefix
	}
	opts.SetClientID(pubsub.ClientID(d.Config.DeviceID))
	opts.SetKeepAlive(keepAlive)
	d.PubSub = pubsub.New(pubsub.NewPahoSession(opts), pubsub.Options{
		DeviceID:          d.Config.DeviceID,
		TopicPrefix:       prefix,
		ReconnectInterval: d.Config.MQTT.ReconnectInterval,
		BufferSize:        d.Config.MQTT.BufferSize,
	})
	d.PubSub.Metrics = d.Metrics
	d.PubSub.Reset = d.Resets
	if d.Link != nil {
		d.PubSub.Link = d.Link
	}
	if h, ok := d.App.(MessageHandler); ok {
		d.PubSub.Handler = h
	}
	return nil
}

// Logf logs a line and mirrors it to the log topic while connected.
func (d *Device) Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	glog.InfoDepth(1, msg)
	if d.PubSub == nil {
		return
	}
	if d.logLimiter != nil && !d.logLimiter.Allow() {
		return
	}
	d.PubSub.Log(msg)
}

// Publish publishes payload on topic, relative to the device base
// topic unless it starts with "/".
func (d *Device) Publish(topic string, payload []byte, retained bool) error {
	if d.PubSub == nil {
		return pubsub.ErrNotConnected
	}
	return d.PubSub.Publish(topic, payload, retained)
}

// Subscribe adds a topic delivered to the application's OnMessage.
// Call it from the application domain.
func (d *Device) Subscribe(topic string) error {
	if d.PubSub == nil {
		return pubsub.ErrNotConnected
	}
	return d.PubSub.Subscribe(topic)
}

// RequestReset raises a reset request from the application itself.
func (d *Device) RequestReset(source string) bool {
	return d.Resets.Request(source)
}

// SetHealth overrides the health state, e.g. to signal Error.
func (d *Device) SetHealth(s health.State) {
	if d.Health != nil {
		d.Health.SetState(s)
	}
}

// Uptime is the time since Run started.
func (d *Device) Uptime() time.Duration {
	if d.started.IsZero() {
		return 0
	}
	return fx.Since(d.Clock, d.started)
}

// Status is a snapshot of the supervisory state.
type Status struct {
	DeviceID   string     `json:"device_id"`
	Project    string     `json:"project"`
	BootReason string     `json:"boot_reason"`
	Uptime     string     `json:"uptime"`
	Health     string     `json:"health,omitempty"`
	Link       string     `json:"link,omitempty"`
	MQTT       *bool      `json:"mqtt,omitempty"`
	BaseTopic  string     `json:"base_topic,omitempty"`
	Updating   bool       `json:"updating"`
	LastFed    *time.Time `json:"watchdog_last_fed,omitempty"`
	Modules    []string   `json:"modules"`
}

// Status returns a snapshot. Safe from any goroutine.
func (d *Device) Status() Status {
	s := Status{
		DeviceID:   d.Config.DeviceID,
		Project:    d.Config.Project,
		BootReason: d.BootReason.String(),
		Uptime:     d.Uptime().Truncate(time.Second).String(),
		Modules:    d.Config.EnabledModules(),
	}
	if d.Health != nil {
		s.Health = d.Health.State().String()
	}
	if d.Link != nil {
		s.Link = d.Link.State().String()
	}
	if d.PubSub != nil {
		connected := d.PubSub.IsConnected()
		s.MQTT, s.BaseTopic = &connected, d.PubSub.BaseTopic()
	}
	if d.Update != nil {
		s.Updating = d.Update.IsUpdating()
	}
	if d.Watchdog != nil {
		if fed := d.Watchdog.LastFed(); !fed.IsZero() {
			s.LastFed = &fed
		}
	}
	return s
}
