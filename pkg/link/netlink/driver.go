// Package netlink drives a Linux network interface as the prop link.
package netlink

import (
	"strings"

	"github.com/robotalks/prop.go/pkg/link"
)

// DefaultAssociateCmd joins a Wi-Fi network through NetworkManager.
var DefaultAssociateCmd = []string{
	"nmcli", "device", "wifi", "connect", "{ssid}",
	"password", "{passphrase}", "ifname", "{iface}",
}

var _ link.Driver = &Driver{}

func expandArgs(tmpl []string, iface string, creds link.Credentials) []string {
	r := strings.NewReplacer(
		"{iface}", iface,
		"{ssid}", creds.SSID,
		"{passphrase}", creds.Passphrase,
	)
	args := make([]string, 0, len(tmpl))
	for _, arg := range tmpl {
		if arg == "{passphrase}" && creds.Passphrase == "" {
			// open network: drop the preceding "password" keyword too.
			if n := len(args); n > 0 && args[n-1] == "password" {
				args = args[:n-1]
			}
			continue
		}
		args = append(args, r.Replace(arg))
	}
	return args
}
