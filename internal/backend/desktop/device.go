package desktop

import (
	"bytes"
	"os"
	"os/user"
	"path/filepath"
	"runtime"

	"github.com/srg/nearbyhal/pkg/hal"
)

// appDataRelative is appended to the app data root.
var appDataRelative = filepath.Join("Google", "Nearby", "Connections")

// lsbRelease is read to tell ChromeOS from other Linux hosts.
var lsbRelease = "/etc/lsb-release"

func currentOS() hal.OSName {
	switch runtime.GOOS {
	case "windows":
		return hal.OSWindows
	case "darwin":
		return hal.OSMacOS
	case "linux":
		if data, err := os.ReadFile(lsbRelease); err == nil && bytes.Contains(data, []byte("CHROMEOS_RELEASE_NAME")) {
			return hal.OSChromeOS
		}
		return hal.OSLinux
	default:
		return hal.OSUnknown
	}
}

type deviceInfo struct {
	f *Factory
}

func (d deviceInfo) DeviceName() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

// DeviceType reports a laptop when a battery is present.
func (d deviceInfo) DeviceType() hal.DeviceType {
	if d.f.battery != nil && d.f.battery.IsBatteryPresent() {
		return hal.DeviceLaptop
	}
	return hal.DeviceDesktop
}

func (d deviceInfo) OSType() hal.OSName { return d.f.GetCurrentOS() }

func (d deviceInfo) FullName() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

func (d deviceInfo) DownloadPath() string  { return d.f.cfg.Downloads }
func (d deviceInfo) AppDataPath() string   { return filepath.Join(d.f.cfg.AppDataRoot, appDataRelative) }
func (d deviceInfo) TemporaryPath() string { return os.TempDir() }
func (d deviceInfo) LogPath() string       { return filepath.Join(d.AppDataPath(), "logs") }
