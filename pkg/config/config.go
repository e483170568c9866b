// Package config assembles the device configuration from defaults,
// PROP_* environment variables, an optional YAML or TOML file and
// command line flags, in that order of precedence.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/golang/glog"
	"gopkg.in/yaml.v3"

	"github.com/robotalks/prop.go/pkg/platform"
)

// Modules switches optional components on or off.
type Modules struct {
	Link     bool `yaml:"link" toml:"link"`
	MQTT     bool `yaml:"mqtt" toml:"mqtt"`
	MDNS     bool `yaml:"mdns" toml:"mdns"`
	Update   bool `yaml:"update" toml:"update"`
	Health   bool `yaml:"health" toml:"health"`
	Reset    bool `yaml:"reset" toml:"reset"`
	Watchdog bool `yaml:"watchdog" toml:"watchdog"`
}

// LinkConfig configures the network link.
type LinkConfig struct {
	Interface     string        `yaml:"interface" toml:"interface" validate:"required_with=SSID"`
	SSID          string        `yaml:"ssid" toml:"ssid"`
	Passphrase    string        `yaml:"passphrase" toml:"passphrase"`
	AssociateCmd  []string      `yaml:"associate_cmd" toml:"associate_cmd"`
	RetryInterval time.Duration `yaml:"retry_interval" toml:"retry_interval" validate:"gte=1s"`
}

// MQTTConfig configures the broker session.
type MQTTConfig struct {
	// URL is mqtt://[user:pass@]host:port[/prefix/], the path being the
	// topic prefix.
	URL               string        `yaml:"url" toml:"url" validate:"omitempty,url"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval" toml:"reconnect_interval" validate:"gte=1s"`
	BufferSize        int           `yaml:"buffer_size" toml:"buffer_size" validate:"gte=1"`
	LogRate           float64       `yaml:"log_rate" toml:"log_rate" validate:"gte=0"`
}

// UpdateConfig configures firmware transfers.
type UpdateConfig struct {
	Password string `yaml:"password" toml:"password"`
	// Target is the executable to replace, the running one if empty.
	Target string `yaml:"target" toml:"target"`
	// Reboot reboots the host after an update instead of re-executing.
	Reboot bool `yaml:"reboot" toml:"reboot"`
}

// AdminConfig configures the admin HTTP server.
type AdminConfig struct {
	Addr string `yaml:"addr" toml:"addr" validate:"required"`
}

// HealthConfig configures the indicator LED.
type HealthConfig struct {
	// LED is "none", "sysfs:<name>" or "gpio:<chip>:<line>".
	LED        string `yaml:"led" toml:"led" validate:"required"`
	Brightness uint8  `yaml:"brightness" toml:"brightness"`
}

// ResetConfig configures the reset button.
type ResetConfig struct {
	Chip string        `yaml:"chip" toml:"chip"`
	Line int           `yaml:"line" toml:"line" validate:"gte=0"`
	Hold time.Duration `yaml:"hold" toml:"hold" validate:"gte=100ms"`
}

// WatchdogConfig configures the liveness watchdog.
type WatchdogConfig struct {
	// Device is the kernel watchdog, empty for the software watchdog.
	Device      string        `yaml:"device" toml:"device"`
	Timeout     time.Duration `yaml:"timeout" toml:"timeout" validate:"gte=20s"`
	AllowDisarm bool          `yaml:"allow_disarm" toml:"allow_disarm"`
}

// MDNSConfig configures the service advertisement.
type MDNSConfig struct {
	Service string `yaml:"service" toml:"service" validate:"required"`
	Port    int    `yaml:"port" toml:"port" validate:"gte=1,lte=65535"`
}

// Config is the device configuration.
type Config struct {
	Project  string         `yaml:"project" toml:"project"`
	DeviceID string         `yaml:"device_id" toml:"device_id" validate:"required,hostname_rfc1123"`
	Modules  Modules        `yaml:"modules" toml:"modules"`
	Link     LinkConfig     `yaml:"link" toml:"link"`
	MQTT     MQTTConfig     `yaml:"mqtt" toml:"mqtt"`
	Update   UpdateConfig   `yaml:"update" toml:"update"`
	Admin    AdminConfig    `yaml:"admin" toml:"admin"`
	Health   HealthConfig   `yaml:"health" toml:"health"`
	Reset    ResetConfig    `yaml:"reset" toml:"reset"`
	Watchdog WatchdogConfig `yaml:"watchdog" toml:"watchdog"`
	MDNS     MDNSConfig     `yaml:"mdns" toml:"mdns"`
}

var defaultConfig = Config{
	Project: "OER.Template.Diagnostic",
	Modules: Modules{
		Link:     true,
		MQTT:     true,
		MDNS:     true,
		Update:   true,
		Health:   true,
		Reset:    true,
		Watchdog: true,
	},
	Link: LinkConfig{
		Interface:     "wlan0",
		RetryInterval: 5 * time.Second,
	},
	MQTT: MQTTConfig{
		URL:               "mqtt://localhost:1883/SP/",
		ReconnectInterval: 5 * time.Second,
		BufferSize:        32,
		LogRate:           20,
	},
	Admin:  AdminConfig{Addr: ":8266"},
	Health: HealthConfig{LED: "none", Brightness: 10},
	Reset: ResetConfig{
		Chip: platform.DefaultChip,
		Line: 6,
		Hold: time.Second,
	},
	Watchdog: WatchdogConfig{Timeout: 60 * time.Second},
	MDNS:     MDNSConfig{Service: "_oer._tcp", Port: 80},
}

// baseline is defaultConfig before flags are bound.
var baseline Config

var configFile string

var validate = validator.New()

func init() {
	if val := os.Getenv("PROP_DEVICE_ID"); val != "" {
		defaultConfig.DeviceID = val
	} else if id, err := platform.MachineID(); err == nil {
		defaultConfig.DeviceID = id
	}
	if val := os.Getenv("PROP_MQTT_URL"); val != "" {
		defaultConfig.MQTT.URL = val
	}
	if val := os.Getenv("PROP_WIFI_SSID"); val != "" {
		defaultConfig.Link.SSID = val
	}
	if val := os.Getenv("PROP_WIFI_PASS"); val != "" {
		defaultConfig.Link.Passphrase = val
	}
	if val := os.Getenv("PROP_UPDATE_PASSWORD"); val != "" {
		defaultConfig.Update.Password = val
	}
	if val := os.Getenv("PROP_CONFIG"); val != "" {
		configFile = val
	}
	baseline = defaultConfig
}

// SetupFlags sets command line flags.
func SetupFlags() {
	baseline = defaultConfig
	flag.StringVar(&configFile, "config", configFile, "YAML or TOML config file")
	defaultConfig.BindFlags(flag.CommandLine)
}

// BindFlags binds c to flags in fs.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DeviceID, "id", c.DeviceID, "Device identifier, e.g. oer-ud-radio")
	fs.StringVar(&c.Project, "project", c.Project, "Project name")

	fs.BoolVar(&c.Modules.Link, "enable-link", c.Modules.Link, "Manage the network link, gates the broker session; disable on hosts whose network is managed elsewhere")
	fs.BoolVar(&c.Modules.MQTT, "enable-mqtt", c.Modules.MQTT, "Connect to the MQTT broker")
	fs.BoolVar(&c.Modules.MDNS, "enable-mdns", c.Modules.MDNS, "Advertise over mDNS")
	fs.BoolVar(&c.Modules.Update, "enable-update", c.Modules.Update, "Accept firmware updates")
	fs.BoolVar(&c.Modules.Health, "enable-health", c.Modules.Health, "Render health on the LED")
	fs.BoolVar(&c.Modules.Reset, "enable-reset", c.Modules.Reset, "Watch the reset button")
	fs.BoolVar(&c.Modules.Watchdog, "enable-watchdog", c.Modules.Watchdog, "Arm the liveness watchdog")

	fs.StringVar(&c.Link.Interface, "link-iface", c.Link.Interface, "Network interface")
	fs.StringVar(&c.Link.SSID, "ssid", c.Link.SSID, "Wireless network name")
	fs.StringVar(&c.Link.Passphrase, "passphrase", c.Link.Passphrase, "Wireless network passphrase")
	fs.DurationVar(&c.Link.RetryInterval, "link-retry", c.Link.RetryInterval, "Link retry interval")

	fs.StringVar(&c.MQTT.URL, "mqtt", c.MQTT.URL, "MQTT broker URL, path is the topic prefix")
	fs.DurationVar(&c.MQTT.ReconnectInterval, "mqtt-retry", c.MQTT.ReconnectInterval, "MQTT reconnect interval")
	fs.IntVar(&c.MQTT.BufferSize, "mqtt-buffer", c.MQTT.BufferSize, "Inbound MQTT message buffer")
	fs.Float64Var(&c.MQTT.LogRate, "mqtt-log-rate", c.MQTT.LogRate, "Max log lines per second mirrored to MQTT, 0 for unlimited")

	fs.StringVar(&c.Update.Password, "update-password", c.Update.Password, "Firmware update password")
	fs.StringVar(&c.Update.Target, "update-target", c.Update.Target, "Executable replaced by updates")
	fs.BoolVar(&c.Update.Reboot, "update-reboot", c.Update.Reboot, "Reboot the host after an update")

	fs.StringVar(&c.Admin.Addr, "admin", c.Admin.Addr, "Admin HTTP listen address")

	fs.StringVar(&c.Health.LED, "led", c.Health.LED, "Health LED: none, sysfs:<name> or gpio:<chip>:<line>")
	fs.Var((*brightnessValue)(&c.Health.Brightness), "led-brightness", "Health LED brightness 0-255")

	fs.StringVar(&c.Reset.Chip, "reset-chip", c.Reset.Chip, "GPIO chip of the reset button")
	fs.IntVar(&c.Reset.Line, "reset-line", c.Reset.Line, "GPIO line of the reset button")
	fs.DurationVar(&c.Reset.Hold, "reset-hold", c.Reset.Hold, "Hold time to trigger a reset")

	fs.StringVar(&c.Watchdog.Device, "watchdog-device", c.Watchdog.Device, "Kernel watchdog device, empty for software watchdog")
	fs.DurationVar(&c.Watchdog.Timeout, "watchdog-timeout", c.Watchdog.Timeout, "Watchdog timeout")
	fs.BoolVar(&c.Watchdog.AllowDisarm, "watchdog-disarm", c.Watchdog.AllowDisarm, "Disarm the kernel watchdog on exit")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Resolve builds the effective config after flag.Parse: the config
// file, if any, is applied over defaults and environment, then flags
// given on the command line are applied over the file.
func Resolve() (*Config, error) {
	if configFile == "" {
		conf := NewConfig()
		return conf, conf.Validate()
	}
	return resolve(baseline, configFile, flag.CommandLine)
}

func resolve(base Config, path string, cmdline *flag.FlagSet) (*Config, error) {
	conf := base
	if err := conf.Load(path); err != nil {
		return nil, err
	}
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	conf.BindFlags(fs)
	var err error
	cmdline.Visit(func(f *flag.Flag) {
		if err == nil && fs.Lookup(f.Name) != nil {
			err = fs.Set(f.Name, f.Value.String())
		}
	})
	if err != nil {
		return nil, err
	}
	return &conf, conf.Validate()
}

// Load decodes the file at path over c. The format follows the
// extension: .toml for TOML, YAML otherwise.
func (c *Config) Load(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(content), c); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(content, c); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	glog.V(1).Infof("config loaded from %s", path)
	return nil
}

// Validate checks field constraints and module dependencies.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Modules.MQTT && c.MQTT.URL == "" {
		return fmt.Errorf("invalid config: mqtt enabled without broker URL")
	}
	if c.Modules.Link && c.Link.Interface == "" {
		return fmt.Errorf("invalid config: link enabled without interface")
	}
	return nil
}

// EnabledModules lists the enabled module names, for the startup banner.
func (c *Config) EnabledModules() []string {
	var names []string
	for _, m := range []struct {
		name string
		on   bool
	}{
		{"link", c.Modules.Link},
		{"mqtt", c.Modules.MQTT},
		{"mdns", c.Modules.MDNS},
		{"update", c.Modules.Update},
		{"health", c.Modules.Health},
		{"reset", c.Modules.Reset},
		{"watchdog", c.Modules.Watchdog},
	} {
		if m.on {
			names = append(names, m.name)
		}
	}
	return names
}

type brightnessValue uint8

func (v *brightnessValue) String() string {
	if v == nil {
		return "0"
	}
	return strconv.Itoa(int(*v))
}

func (v *brightnessValue) Set(s string) error {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return fmt.Errorf("brightness must be 0-255")
	}
	*v = brightnessValue(n)
	return nil
}
