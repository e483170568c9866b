//go:build linux

package netlink

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/golang/glog"
	nl "github.com/vishvananda/netlink"

	"github.com/robotalks/prop.go/pkg/link"
)

// Driver brings an interface up and optionally runs an association
// command to join the network. The command runs in background so
// Connect never waits for association.
type Driver struct {
	Interface    string
	AssociateCmd []string

	cmd  *exec.Cmd
	lock sync.Mutex
}

// New creates a Driver for the named interface.
func New(iface string) *Driver {
	return &Driver{Interface: iface, AssociateCmd: DefaultAssociateCmd}
}

// Connect implements link.Driver.
func (d *Driver) Connect(ctx context.Context, creds link.Credentials) error {
	l, err := nl.LinkByName(d.Interface)
	if err != nil {
		return fmt.Errorf("find interface %s: %w", d.Interface, err)
	}
	if err := nl.LinkSetUp(l); err != nil {
		return fmt.Errorf("set %s up: %w", d.Interface, err)
	}
	if creds.SSID == "" || len(d.AssociateCmd) == 0 {
		return nil
	}
	args := expandArgs(d.AssociateCmd, d.Interface, creds)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("associate %s: %w", d.Interface, err)
	}
	d.lock.Lock()
	d.cmd = cmd
	d.lock.Unlock()
	go func() {
		if err := cmd.Wait(); err != nil {
			glog.Warningf("associate %s with %q: %v", d.Interface, creds.SSID, err)
		}
		d.lock.Lock()
		if d.cmd == cmd {
			d.cmd = nil
		}
		d.lock.Unlock()
	}()
	return nil
}

// Disconnect implements link.Driver. It abandons a pending association.
func (d *Driver) Disconnect() error {
	d.lock.Lock()
	cmd := d.cmd
	d.cmd = nil
	d.lock.Unlock()
	if cmd != nil && cmd.Process != nil {
		return cmd.Process.Kill()
	}
	return nil
}

// Connected implements link.Driver.
func (d *Driver) Connected() bool {
	l, err := nl.LinkByName(d.Interface)
	if err != nil {
		return false
	}
	switch l.Attrs().OperState {
	case nl.OperUp, nl.OperUnknown:
	default:
		return false
	}
	addrs, err := nl.AddrList(l, nl.FAMILY_V4)
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		if addr.IP.IsGlobalUnicast() {
			return true
		}
	}
	return false
}
