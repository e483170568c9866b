package fleet

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
)

// Config provides common options of operator tools.
type Config struct {
	// DeviceID selects a prop, empty for none.
	DeviceID string

	// BrokerURL specifies the broker, the path being the topic prefix,
	// e.g. mqtt://host:port/SP/
	BrokerURL string
}

var defaultConfig = Config{
	BrokerURL: "mqtt://localhost:1883/SP/",
}

func init() {
	if val := os.Getenv("PROP_DEVICE_ID"); val != "" {
		defaultConfig.DeviceID = val
	}
	if val := os.Getenv("PROP_MQTT_URL"); val != "" {
		defaultConfig.BrokerURL = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.DeviceID, "id", defaultConfig.DeviceID, "Prop device ID.")
	flag.StringVar(&defaultConfig.BrokerURL, "mqtt", defaultConfig.BrokerURL, "MQTT broker URL.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewClient creates a Client using current config.
func (c *Config) NewClient() (*Client, error) {
	parsedURL, err := url.Parse(c.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker URL: %v", err)
	}
	switch parsedURL.Scheme {
	case "mqtt", "mqtts", "tcp", "ssl", "ws", "wss":
		return NewClient(c.BrokerURL)
	default:
		return nil, fmt.Errorf("unknown broker URL scheme: %q", parsedURL.Scheme)
	}
}

// MustNewClient creates a Client and fails on error.
func (c *Config) MustNewClient() *Client {
	client, err := c.NewClient()
	if err != nil {
		log.Fatalln(err)
	}
	return client
}
