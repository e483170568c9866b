package netlink

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/prop.go/pkg/link"
)

func TestExpandArgs(t *testing.T) {
	testCases := []struct {
		name   string
		creds  link.Credentials
		expect []string
	}{
		{
			"secured",
			link.Credentials{SSID: "escape room", Passphrase: "s3cret"},
			[]string{"nmcli", "device", "wifi", "connect", "escape room", "password", "s3cret", "ifname", "wlan0"},
		},
		{
			"open network",
			link.Credentials{SSID: "lobby"},
			[]string{"nmcli", "device", "wifi", "connect", "lobby", "ifname", "wlan0"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, expandArgs(DefaultAssociateCmd, "wlan0", tc.creds))
		})
	}
}
