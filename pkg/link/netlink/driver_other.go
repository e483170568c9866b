//go:build !linux

package netlink

import (
	"context"
	"errors"

	"github.com/robotalks/prop.go/pkg/link"
)

var errUnsupported = errors.New("netlink driver requires linux")

// Driver is unavailable on this platform.
type Driver struct {
	Interface    string
	AssociateCmd []string
}

// New creates a Driver which never connects.
func New(iface string) *Driver {
	return &Driver{Interface: iface, AssociateCmd: DefaultAssociateCmd}
}

// Connect implements link.Driver.
func (d *Driver) Connect(context.Context, link.Credentials) error { return errUnsupported }

// Disconnect implements link.Driver.
func (d *Driver) Disconnect() error { return nil }

// Connected implements link.Driver.
func (d *Driver) Connected() bool { return false }
