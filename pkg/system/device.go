package system

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// DeviceSuffix returns six upper-case hex digits identifying this device,
// taken from the last three bytes of a hardware address. Interfaces named
// in preferred are tried first.
func DeviceSuffix(preferred ...string) string {
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, name := range preferred {
			for _, iface := range ifaces {
				if iface.Name == name {
					if s, ok := suffixOf(iface.HardwareAddr); ok {
						return s
					}
				}
			}
		}
		for _, iface := range ifaces {
			if iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			if s, ok := suffixOf(iface.HardwareAddr); ok {
				return s
			}
		}
	}

	// No usable NIC, fall back to the machine id.
	if b, err := os.ReadFile("/etc/machine-id"); err == nil {
		id := strings.TrimSpace(string(b))
		if len(id) >= 6 {
			return strings.ToUpper(id[len(id)-6:])
		}
	}
	return "000000"
}

func suffixOf(hw net.HardwareAddr) (string, bool) {
	if len(hw) < 3 {
		return "", false
	}
	allZero := true
	for _, b := range hw {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return "", false
	}
	n := len(hw)
	return fmt.Sprintf("%02X%02X%02X", hw[n-3], hw[n-2], hw[n-1]), true
}
