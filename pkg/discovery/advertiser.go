// Package discovery advertises the device on the local network with
// multicast DNS, so operators can find it as <device>.local.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/golang/glog"
	"github.com/hashicorp/mdns"

	fx "github.com/robotalks/prop.go/pkg/framework"
)

// Defaults
const (
	DefaultService      = "_oer._tcp"
	DefaultPort         = 80
	DefaultPollInterval = time.Second
)

// LinkStatus reports whether the network link is usable.
type LinkStatus interface {
	IsConnected() bool
}

// Server is a running responder.
type Server interface {
	Shutdown() error
}

// Advertiser runs an mDNS responder while the link is up and restarts
// it whenever the link comes back, as addresses may have changed.
type Advertiser struct {
	Hostname     string
	Service      string
	Port         int
	TXT          []string
	Link         LinkStatus
	PollInterval time.Duration
	// Addrs lists the addresses to advertise.
	Addrs func() ([]net.IP, error)
	// Serve starts a responder for zone.
	Serve func(zone mdns.Zone) (Server, error)

	server Server
}

// NewAdvertiser creates an Advertiser for hostname.
func NewAdvertiser(hostname string, link LinkStatus) *Advertiser {
	return &Advertiser{
		Hostname:     hostname,
		Service:      DefaultService,
		Port:         DefaultPort,
		Link:         link,
		PollInterval: DefaultPollInterval,
		Addrs:        InterfaceAddrs,
		Serve:        serveMDNS,
	}
}

// Name implements Named.
func (a *Advertiser) Name() string {
	return "mdns"
}

// FQDN returns the advertised host name.
func (a *Advertiser) FQDN() string {
	return a.Hostname + ".local."
}

// Zone builds the records to answer with.
func (a *Advertiser) Zone() (*mdns.MDNSService, error) {
	ips, err := a.Addrs()
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no address to advertise")
	}
	return mdns.NewMDNSService(a.Hostname, a.Service, "", a.FQDN(), a.Port, ips, a.TXT)
}

// Start starts the responder. It is a no-op when already running.
func (a *Advertiser) Start() error {
	if a.server != nil {
		return nil
	}
	zone, err := a.Zone()
	if err != nil {
		return err
	}
	server, err := a.Serve(zone)
	if err != nil {
		return fmt.Errorf("mdns: %w", err)
	}
	a.server = server
	glog.Infof("mdns started: %s, service %s port %d", a.FQDN(), a.Service, a.Port)
	return nil
}

// Stop stops the responder.
func (a *Advertiser) Stop() {
	if a.server == nil {
		return
	}
	if err := a.server.Shutdown(); err != nil {
		glog.Warningf("mdns shutdown: %v", err)
	}
	a.server = nil
	glog.V(1).Info("mdns stopped")
}

// Running reports whether the responder is up.
func (a *Advertiser) Running() bool {
	return a.server != nil
}

// Poll follows the link once.
func (a *Advertiser) Poll() {
	up := a.Link == nil || a.Link.IsConnected()
	switch {
	case up && a.server == nil:
		if err := a.Start(); err != nil {
			glog.Warningf("mdns start: %v", err)
		}
	case !up && a.server != nil:
		a.Stop()
	}
}

// Run implements Runnable.
func (a *Advertiser) Run(ctx context.Context) error {
	defer a.Stop()
	return fx.NewLoop(a.Name(), a.PollInterval, func(context.Context) {
		a.Poll()
	}).Run(ctx)
}

// InterfaceAddrs lists the global unicast addresses of the host.
func InterfaceAddrs() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.IsGlobalUnicast() {
			ips = append(ips, ipnet.IP)
		}
	}
	return ips, nil
}

func serveMDNS(zone mdns.Zone) (Server, error) {
	return mdns.NewServer(&mdns.Config{Zone: zone})
}
