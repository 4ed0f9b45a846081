// Package wifi keeps the device on the user's Wi-Fi network. When it has no
// usable credentials it opens an access point with a captive portal so the
// user can enter them from a phone.
package wifi

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/charlie0129/saltlevel/pkg/store"
)

const (
	keySSID     = "ssid"
	keyPassword = "password"
	keyValid    = "valid"
)

var (
	// ErrRestartRequested is returned after the Restarter was asked to
	// restart but returned, which only happens in tests.
	ErrRestartRequested = errors.New("restart requested")
	// ErrNoDevice is returned by a driver that found no wireless interface.
	ErrNoDevice = errors.New("no wireless device")
)

// State of the connectivity state machine.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Provisioning
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Provisioning:
		return "provisioning"
	default:
		return "disconnected"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Disconnected, Connecting, Connected, Provisioning} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown wifi state %q", string(b))
}

// LinkStatus is the driver's view of the station link.
type LinkStatus struct {
	Connected bool   `json:"connected"`
	SSID      string `json:"ssid,omitempty"`
	IP        net.IP `json:"ip,omitempty"`
}

// Network is one scan result.
type Network struct {
	SSID     string `json:"ssid"`
	Strength uint8  `json:"strength"`
	Secured  bool   `json:"secured"`
}

// Driver controls the Wi-Fi hardware.
type Driver interface {
	// Associate starts joining ssid. It may return before the link is up;
	// Status reports the outcome.
	Associate(ctx context.Context, ssid, password string) error
	Status(ctx context.Context) (LinkStatus, error)
	Scan(ctx context.Context) ([]Network, error)
	// StartAccessPoint opens an unsecured AP and returns its own address.
	StartAccessPoint(ctx context.Context, name string) (net.IP, error)
	StopAccessPoint(ctx context.Context) error
}

// Credentials for a station network.
type Credentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"-"`
	Valid    bool   `json:"valid"`
}

// Usable reports whether c can be tried.
func (c Credentials) Usable() bool {
	return c.Valid && c.SSID != ""
}

// LoadCredentials reads the stored credentials.
func LoadCredentials(s store.Store) Credentials {
	return Credentials{
		SSID:     store.Load(s, store.NamespaceWifi, keySSID, ""),
		Password: store.Load(s, store.NamespaceWifi, keyPassword, ""),
		Valid:    store.Load(s, store.NamespaceWifi, keyValid, false),
	}
}

// SaveCredentials persists c and marks it valid.
func SaveCredentials(s store.Store, c Credentials) error {
	if err := store.Save(s, store.NamespaceWifi, keySSID, c.SSID); err != nil {
		return err
	}
	if err := store.Save(s, store.NamespaceWifi, keyPassword, c.Password); err != nil {
		return err
	}
	// valid goes last so a torn write reads as invalid
	return store.Save(s, store.NamespaceWifi, keyValid, true)
}

// EraseCredentials removes the stored credentials.
func EraseCredentials(s store.Store) error {
	return s.Clear(store.NamespaceWifi)
}

// ValidateCredentials checks what a WPA2 network accepts.
func ValidateCredentials(ssid, password string) error {
	if ssid == "" || len(ssid) > 32 {
		return errors.New("network name must be 1 to 32 bytes")
	}
	if password != "" && (len(password) < 8 || len(password) > 63) {
		return errors.New("password must be empty or 8 to 63 characters")
	}
	return nil
}
