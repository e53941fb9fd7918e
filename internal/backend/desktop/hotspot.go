package desktop

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/pkg/hal"
)

const (
	nmBus  = "org.freedesktop.NetworkManager"
	nmPath = dbus.ObjectPath("/org/freedesktop/NetworkManager")
)

// BusCaller is the method-call part of a D-Bus connection.
type BusCaller interface {
	Call(dest string, path dbus.ObjectPath, method string, args ...any) ([]any, error)
}

// nmConnection is an activated NetworkManager profile.
type nmConnection struct {
	settings dbus.ObjectPath
	active   dbus.ObjectPath
}

// hotspotMedium hosts and joins Wi-Fi hotspots through NetworkManager.
type hotspotMedium struct {
	logger *logrus.Logger
	bus    BusCaller

	mu     sync.Mutex
	hosted *nmConnection
	joined *nmConnection
}

func (h *hotspotMedium) IsInterfaceValid() bool {
	if h.bus == nil {
		return false
	}
	_, ok := h.wirelessInterface()
	return ok
}

func (h *hotspotMedium) wirelessInterface() (string, bool) {
	ifaces, err := netInterfaces()
	if err != nil {
		return "", false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && isWireless(iface.Name) {
			return iface.Name, true
		}
	}
	return "", false
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// StartWifiHotspot brings up an access point. Empty credential fields are
// filled in with generated values.
func (h *hotspotMedium) StartWifiHotspot(creds *hal.HotspotCredentials) bool {
	if creds == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bus == nil || h.hosted != nil {
		return false
	}
	if creds.SSID == "" {
		creds.SSID = "DIRECT-" + randomHex(4)
	}
	if creds.Password == "" {
		creds.Password = randomHex(6)
	}
	conn, err := h.activate(creds.SSID, map[string]map[string]dbus.Variant{
		"connection": {
			"type":        dbus.MakeVariant("802-11-wireless"),
			"id":          dbus.MakeVariant(creds.SSID),
			"autoconnect": dbus.MakeVariant(false),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(creds.SSID)),
			"mode": dbus.MakeVariant("ap"),
		},
		"802-11-wireless-security": {
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(creds.Password),
		},
		"ipv4": {"method": dbus.MakeVariant("shared")},
	})
	if err != nil {
		h.logger.WithError(err).WithField("ssid", creds.SSID).Warn("Hotspot did not start")
		return false
	}
	h.hosted = conn
	h.logger.WithField("ssid", creds.SSID).Info("Hotspot started")
	return true
}

func (h *hotspotMedium) StopWifiHotspot() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hosted == nil {
		return false
	}
	ok := h.deactivate(h.hosted)
	h.hosted = nil
	return ok
}

func (h *hotspotMedium) ConnectWifiHotspot(creds hal.HotspotCredentials) bool {
	if creds.SSID == "" {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bus == nil || h.joined != nil {
		return false
	}
	settings := map[string]map[string]dbus.Variant{
		"connection": {
			"type":        dbus.MakeVariant("802-11-wireless"),
			"id":          dbus.MakeVariant(creds.SSID),
			"autoconnect": dbus.MakeVariant(false),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(creds.SSID)),
			"mode": dbus.MakeVariant("infrastructure"),
		},
		"ipv4": {"method": dbus.MakeVariant("auto")},
	}
	if creds.Password != "" {
		settings["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(creds.Password),
		}
	}
	conn, err := h.activate(creds.SSID, settings)
	if err != nil {
		h.logger.WithError(err).WithField("ssid", creds.SSID).Warn("Hotspot join failed")
		return false
	}
	h.joined = conn
	return true
}

func (h *hotspotMedium) DisconnectWifiHotspot() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.joined == nil {
		return false
	}
	ok := h.deactivate(h.joined)
	h.joined = nil
	return ok
}

func (h *hotspotMedium) activate(ssid string, settings map[string]map[string]dbus.Variant) (*nmConnection, error) {
	iface, ok := h.wirelessInterface()
	if !ok {
		return nil, fmt.Errorf("no wireless interface: %w", hal.ErrHardwareNotReady)
	}
	body, err := h.bus.Call(nmBus, nmPath, nmBus+".GetDeviceByIpIface", iface)
	if err != nil {
		return nil, fmt.Errorf("find device %s: %w", iface, err)
	}
	device, ok := firstPath(body, 0)
	if !ok {
		return nil, fmt.Errorf("unexpected reply for device %s", iface)
	}
	body, err = h.bus.Call(nmBus, nmPath, nmBus+".AddAndActivateConnection", settings, device, dbus.ObjectPath("/"))
	if err != nil {
		return nil, fmt.Errorf("activate %s: %w", ssid, err)
	}
	settingsPath, ok1 := firstPath(body, 0)
	activePath, ok2 := firstPath(body, 1)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("unexpected reply activating %s", ssid)
	}
	return &nmConnection{settings: settingsPath, active: activePath}, nil
}

// deactivate tears the link down and deletes the temporary profile.
func (h *hotspotMedium) deactivate(c *nmConnection) bool {
	_, err := h.bus.Call(nmBus, nmPath, nmBus+".DeactivateConnection", c.active)
	if err != nil {
		h.logger.WithError(err).WithField("connection", c.active).Warn("Deactivate failed")
	}
	if _, derr := h.bus.Call(nmBus, c.settings, nmBus+".Settings.Connection.Delete"); derr != nil {
		h.logger.WithError(derr).WithField("connection", c.settings).Debug("Delete profile failed")
	}
	return err == nil
}

func firstPath(body []any, i int) (dbus.ObjectPath, bool) {
	if len(body) <= i {
		return "", false
	}
	p, ok := body[i].(dbus.ObjectPath)
	return p, ok
}
