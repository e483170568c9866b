package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	conf := defaultConfig
	conf.DeviceID = "oer-ud-radio"
	return conf
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	conf := testConfig()
	require.NoError(t, conf.Validate())
	require.True(t, conf.Modules.Link, "link supervision is on by default")
	require.Equal(t, []string{"link", "mqtt", "mdns", "update", "health", "reset", "watchdog"}, conf.EnabledModules())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "prop.yaml", `
device_id: oer-ud-radio
modules:
  link: true
  mdns: false
link:
  ssid: escape-room
  passphrase: secret
mqtt:
  url: mqtt://192.168.1.218:1883/SP/
  reconnect_interval: 10s
watchdog:
  device: /dev/watchdog
`)
	conf := testConfig()
	require.NoError(t, conf.Load(path))
	require.NoError(t, conf.Validate())
	require.True(t, conf.Modules.Link)
	require.False(t, conf.Modules.MDNS)
	require.True(t, conf.Modules.MQTT, "absent keys keep defaults")
	require.Equal(t, "escape-room", conf.Link.SSID)
	require.Equal(t, "wlan0", conf.Link.Interface)
	require.Equal(t, 10*time.Second, conf.MQTT.ReconnectInterval)
	require.Equal(t, 32, conf.MQTT.BufferSize)
	require.Equal(t, "/dev/watchdog", conf.Watchdog.Device)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "prop.toml", `
device_id = "oer-ud-radio"

[health]
led = "sysfs:ACT"
brightness = 40

[reset]
line = 17
hold = "2s"
`)
	conf := testConfig()
	require.NoError(t, conf.Load(path))
	require.NoError(t, conf.Validate())
	require.Equal(t, "sysfs:ACT", conf.Health.LED)
	require.EqualValues(t, 40, conf.Health.Brightness)
	require.Equal(t, 17, conf.Reset.Line)
	require.Equal(t, 2*time.Second, conf.Reset.Hold)
}

func TestLoadErrors(t *testing.T) {
	conf := testConfig()
	require.Error(t, conf.Load(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, conf.Load(writeFile(t, "bad.yaml", "modules: [")))
	require.Error(t, conf.Load(writeFile(t, "bad.toml", "device_id = ")))
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing device id", func(c *Config) { c.DeviceID = "" }},
		{"device id not a hostname", func(c *Config) { c.DeviceID = "oer ud radio" }},
		{"mqtt without url", func(c *Config) { c.MQTT.URL = "" }},
		{"zero buffer", func(c *Config) { c.MQTT.BufferSize = 0 }},
		{"short watchdog", func(c *Config) { c.Watchdog.Timeout = 5 * time.Second }},
		{"link without interface", func(c *Config) {
			c.Modules.Link = true
			c.Link.Interface = ""
		}},
		{"bad mdns port", func(c *Config) { c.MDNS.Port = 70000 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conf := testConfig()
			tc.mutate(&conf)
			require.Error(t, conf.Validate())
		})
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, "prop.yaml", `
device_id: from-file
mqtt:
  url: mqtt://file:1883/SP/
health:
  brightness: 50
`)
	base := testConfig()
	cmdline := flag.NewFlagSet("propd", flag.ContinueOnError)
	flagConf := base
	flagConf.BindFlags(cmdline)
	require.NoError(t, cmdline.Parse([]string{"-id", "from-flag", "-led-brightness", "99", "-enable-mdns=false"}))

	conf, err := resolve(base, path, cmdline)
	require.NoError(t, err)
	require.Equal(t, "from-flag", conf.DeviceID)
	require.Equal(t, "mqtt://file:1883/SP/", conf.MQTT.URL)
	require.EqualValues(t, 99, conf.Health.Brightness)
	require.False(t, conf.Modules.MDNS)
}

func TestBrightnessFlag(t *testing.T) {
	conf := testConfig()
	fs := flag.NewFlagSet("propd", flag.ContinueOnError)
	conf.BindFlags(fs)
	require.Error(t, fs.Parse([]string{"-led-brightness", "300"}))
}
