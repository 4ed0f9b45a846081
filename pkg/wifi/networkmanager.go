package wifi

import (
	"context"
	"net"
	"sync"

	"github.com/godbus/dbus/v5"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	nmDest          = "org.freedesktop.NetworkManager"
	nmPath          = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmSettingsPath  = dbus.ObjectPath("/org/freedesktop/NetworkManager/Settings")
	nmIface         = "org.freedesktop.NetworkManager"
	nmDeviceIface   = nmIface + ".Device"
	nmWirelessIface = nmIface + ".Device.Wireless"
	nmAPIface       = nmIface + ".AccessPoint"
	nmSettingsIface = nmIface + ".Settings"
	nmConnIface     = nmIface + ".Settings.Connection"

	nmDeviceTypeWifi       = 2
	nmDeviceStateActivated = 100

	stationConnID = "saltlevel"
	apConnID      = "saltlevel-ap"
)

// DefaultAPAddress is the address of the device on its own access point.
var DefaultAPAddress = net.IPv4(192, 168, 4, 1)

var _ Driver = &NetworkManager{}

// NetworkManager drives Wi-Fi through NetworkManager's D-Bus API. The
// connection profiles it creates are named "saltlevel" (station) and
// "saltlevel-ap" and are replaced on every call.
type NetworkManager struct {
	conn  *dbus.Conn
	iface string

	mu       sync.Mutex
	device   dbus.ObjectPath
	apActive dbus.ObjectPath
}

// NewNetworkManager connects to the system bus. iface selects the wireless
// interface; empty picks the first one NetworkManager knows.
func NewNetworkManager(iface string) (*NetworkManager, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to connect to system bus")
	}
	return &NetworkManager{conn: conn, iface: iface}, nil
}

func (n *NetworkManager) nm() dbus.BusObject {
	return n.conn.Object(nmDest, nmPath)
}

func (n *NetworkManager) wirelessDevice(ctx context.Context) (dbus.ObjectPath, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.device != "" {
		return n.device, nil
	}

	var devices []dbus.ObjectPath
	if err := n.nm().CallWithContext(ctx, nmIface+".GetDevices", 0).Store(&devices); err != nil {
		return "", pkgerrors.Wrap(err, "failed to list network devices")
	}

	for _, path := range devices {
		dev := n.conn.Object(nmDest, path)
		typ, err := dev.GetProperty(nmDeviceIface + ".DeviceType")
		if err != nil {
			continue
		}
		if t, ok := typ.Value().(uint32); !ok || t != nmDeviceTypeWifi {
			continue
		}
		if n.iface != "" {
			name, err := dev.GetProperty(nmDeviceIface + ".Interface")
			if err != nil {
				continue
			}
			if s, _ := name.Value().(string); s != n.iface {
				continue
			}
		}
		n.device = path
		return path, nil
	}

	return "", ErrNoDevice
}

// removeConnections deletes saved profiles with the given id.
func (n *NetworkManager) removeConnections(ctx context.Context, id string) {
	var conns []dbus.ObjectPath
	settings := n.conn.Object(nmDest, nmSettingsPath)
	if err := settings.CallWithContext(ctx, nmSettingsIface+".ListConnections", 0).Store(&conns); err != nil {
		logrus.WithError(err).Debug("failed to list connections")
		return
	}

	for _, path := range conns {
		obj := n.conn.Object(nmDest, path)
		var s map[string]map[string]dbus.Variant
		if err := obj.CallWithContext(ctx, nmConnIface+".GetSettings", 0).Store(&s); err != nil {
			continue
		}
		if got, _ := s["connection"]["id"].Value().(string); got != id {
			continue
		}
		if err := obj.CallWithContext(ctx, nmConnIface+".Delete", 0).Err; err != nil {
			logrus.WithError(err).WithField("connection", path).Warn("failed to delete connection")
		}
	}
}

func (n *NetworkManager) activate(ctx context.Context, id string, settings map[string]map[string]dbus.Variant) (dbus.ObjectPath, error) {
	device, err := n.wirelessDevice(ctx)
	if err != nil {
		return "", err
	}

	n.removeConnections(ctx, id)

	var connPath, activePath dbus.ObjectPath
	err = n.nm().CallWithContext(ctx, nmIface+".AddAndActivateConnection", 0,
		settings, device, dbus.ObjectPath("/")).Store(&connPath, &activePath)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to activate %s", id)
	}
	return activePath, nil
}

func (n *NetworkManager) Associate(ctx context.Context, ssid, password string) error {
	settings := map[string]map[string]dbus.Variant{
		"connection": {
			"id":          dbus.MakeVariant(stationConnID),
			"type":        dbus.MakeVariant("802-11-wireless"),
			"autoconnect": dbus.MakeVariant(true),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(ssid)),
			"mode": dbus.MakeVariant("infrastructure"),
		},
		"ipv4": {"method": dbus.MakeVariant("auto")},
		"ipv6": {"method": dbus.MakeVariant("auto")},
	}
	if password != "" {
		settings["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(password),
		}
	}

	_, err := n.activate(ctx, stationConnID, settings)
	return err
}

func (n *NetworkManager) Status(ctx context.Context) (LinkStatus, error) {
	device, err := n.wirelessDevice(ctx)
	if err != nil {
		return LinkStatus{}, err
	}
	dev := n.conn.Object(nmDest, device)

	state, err := dev.GetProperty(nmDeviceIface + ".State")
	if err != nil {
		return LinkStatus{}, pkgerrors.Wrap(err, "failed to read device state")
	}
	if s, _ := state.Value().(uint32); s != nmDeviceStateActivated {
		return LinkStatus{}, nil
	}

	n.mu.Lock()
	inAPMode := n.apActive != ""
	n.mu.Unlock()
	if inAPMode {
		// activated, but as our own access point
		return LinkStatus{}, nil
	}

	st := LinkStatus{Connected: true}
	if ap, err := dev.GetProperty(nmWirelessIface + ".ActiveAccessPoint"); err == nil {
		if path, ok := ap.Value().(dbus.ObjectPath); ok && path != "/" {
			st.SSID = n.apSSID(path)
		}
	}

	if name, err := dev.GetProperty(nmDeviceIface + ".Interface"); err == nil {
		if s, ok := name.Value().(string); ok {
			st.IP = interfaceIPv4(s)
		}
	}

	return st, nil
}

func (n *NetworkManager) apSSID(path dbus.ObjectPath) string {
	v, err := n.conn.Object(nmDest, path).GetProperty(nmAPIface + ".Ssid")
	if err != nil {
		return ""
	}
	b, _ := v.Value().([]byte)
	return string(b)
}

func (n *NetworkManager) Scan(ctx context.Context) ([]Network, error) {
	device, err := n.wirelessDevice(ctx)
	if err != nil {
		return nil, err
	}
	dev := n.conn.Object(nmDest, device)

	// NetworkManager rate-limits scans; a refused request still leaves the
	// previous results available.
	if err := dev.CallWithContext(ctx, nmWirelessIface+".RequestScan", 0, map[string]dbus.Variant{}).Err; err != nil {
		logrus.WithError(err).Debug("scan request refused")
	}

	var aps []dbus.ObjectPath
	if err := dev.CallWithContext(ctx, nmWirelessIface+".GetAllAccessPoints", 0).Store(&aps); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list access points")
	}

	seen := make(map[string]int)
	var nets []Network
	for _, path := range aps {
		ap := n.conn.Object(nmDest, path)
		ssid := n.apSSID(path)
		if ssid == "" {
			continue
		}

		var strength uint8
		if v, err := ap.GetProperty(nmAPIface + ".Strength"); err == nil {
			strength, _ = v.Value().(uint8)
		}
		secured := false
		for _, prop := range []string{"Flags", "WpaFlags", "RsnFlags"} {
			if v, err := ap.GetProperty(nmAPIface + "." + prop); err == nil {
				if f, _ := v.Value().(uint32); f != 0 {
					secured = true
				}
			}
		}

		// keep the strongest of the BSSIDs sharing an SSID
		if i, ok := seen[ssid]; ok {
			if strength > nets[i].Strength {
				nets[i].Strength = strength
			}
			continue
		}
		seen[ssid] = len(nets)
		nets = append(nets, Network{SSID: ssid, Strength: strength, Secured: secured})
	}

	return nets, nil
}

func (n *NetworkManager) StartAccessPoint(ctx context.Context, name string) (net.IP, error) {
	settings := map[string]map[string]dbus.Variant{
		"connection": {
			"id":          dbus.MakeVariant(apConnID),
			"type":        dbus.MakeVariant("802-11-wireless"),
			"autoconnect": dbus.MakeVariant(false),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(name)),
			"mode": dbus.MakeVariant("ap"),
			"band": dbus.MakeVariant("bg"),
		},
		"ipv4": {
			"method": dbus.MakeVariant("shared"),
			"address-data": dbus.MakeVariant([]map[string]dbus.Variant{{
				"address": dbus.MakeVariant(DefaultAPAddress.String()),
				"prefix":  dbus.MakeVariant(uint32(24)),
			}}),
		},
		"ipv6": {"method": dbus.MakeVariant("ignore")},
	}

	active, err := n.activate(ctx, apConnID, settings)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.apActive = active
	n.mu.Unlock()

	return DefaultAPAddress, nil
}

func (n *NetworkManager) StopAccessPoint(ctx context.Context) error {
	n.mu.Lock()
	active := n.apActive
	n.apActive = ""
	n.mu.Unlock()

	if active != "" {
		if err := n.nm().CallWithContext(ctx, nmIface+".DeactivateConnection", 0, active).Err; err != nil {
			logrus.WithError(err).Warn("failed to deactivate access point")
		}
	}
	n.removeConnections(ctx, apConnID)
	return nil
}

func interfaceIPv4(name string) net.IP {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && ipn.IP.To4() != nil {
			return ipn.IP
		}
	}
	return nil
}
