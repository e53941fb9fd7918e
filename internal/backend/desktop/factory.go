// Package desktop is the rich-target factory: concurrency resources, files,
// paths, device information, HTTP and communication mediums backed by the
// host OS and the platform's radio capabilities.
package desktop

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/internal/backend/prefs"
	"github.com/srg/nearbyhal/internal/dispatch"
	"github.com/srg/nearbyhal/pkg/hal"
)

type Config struct {
	// AppDataRoot defaults to the user cache directory.
	AppDataRoot string
	// Downloads defaults to ~/Downloads.
	Downloads   string
	HTTPTimeout time.Duration
	// BreakerFails is the consecutive failure count that opens the request
	// breaker; zero disables it.
	BreakerFails   uint32
	BreakerTimeout time.Duration
}

// Deps are the capability backends the mediums run on. Nil members make the
// matching Create methods return nil.
type Deps struct {
	// Dispatcher delivers medium callbacks that do not come through a
	// capability handler. Nil runs them inline.
	Dispatcher hal.Dispatcher

	BT      hal.BT
	BLE     hal.BLE
	Battery hal.Battery
	// NetworkManager carries hotspot calls; nil leaves the hotspot medium
	// without a valid interface.
	NetworkManager BusCaller
}

// Factory implements hal.Factory.
type Factory struct {
	logger     *logrus.Logger
	cfg        Config
	dispatcher hal.Dispatcher
	bt         hal.BT
	ble        hal.BLE
	battery    hal.Battery
	nm         BusCaller
	http       *httpLoader
}

var _ hal.Factory = (*Factory)(nil)

// WithDefaults fills empty directory roots from the user's environment.
func (c Config) WithDefaults() Config {
	if c.AppDataRoot == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			c.AppDataRoot = dir
		} else {
			c.AppDataRoot = os.TempDir()
		}
	}
	if c.Downloads == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Downloads = filepath.Join(home, "Downloads")
		} else {
			c.Downloads = os.TempDir()
		}
	}
	return c
}

// AppDataPath returns <app data root>/Google/Nearby/Connections/<file>.
func (c Config) AppDataPath(file string) string {
	return filepath.Join(c.AppDataRoot, appDataRelative, file)
}

func New(logger *logrus.Logger, cfg Config, deps Deps) *Factory {
	if logger == nil {
		logger = logrus.New()
	}
	cfg = cfg.WithDefaults()
	d := deps.Dispatcher
	if d == nil {
		d = dispatch.NewInline()
	}
	return &Factory{
		logger:     logger,
		cfg:        cfg,
		dispatcher: d,
		bt:         deps.BT,
		ble:        deps.BLE,
		battery:    deps.Battery,
		nm:         deps.NetworkManager,
		http:       newHTTPLoader(logger, cfg.HTTPTimeout, cfg.BreakerFails, cfg.BreakerTimeout),
	}
}

func (f *Factory) CreateAtomicBoolean(initial bool) hal.AtomicBoolean {
	a := &atomicBoolean{}
	a.v.Store(initial)
	return a
}

func (f *Factory) CreateAtomicUint32(initial uint32) hal.AtomicUint32 {
	a := &atomicUint32{}
	a.v.Store(initial)
	return a
}

func (f *Factory) CreateCountDownLatch(count int32) hal.CountDownLatch {
	return newCountDownLatch(count)
}

func (f *Factory) CreateMutex(mode hal.MutexMode) hal.Mutex {
	if mode == hal.MutexRecursive {
		return &recursiveMutex{}
	}
	return &plainMutex{}
}

func (f *Factory) CreateConditionVariable(m hal.Mutex) hal.ConditionVariable {
	if m == nil {
		return nil
	}
	return newConditionVariable(m)
}

func (f *Factory) CreateInputFile(path string, size int64) (hal.InputFile, hal.Status) {
	file, err := os.Open(path)
	if err != nil {
		f.logger.WithError(err).WithField("path", path).Warn("Failed to open input file")
		if os.IsNotExist(err) {
			return nil, hal.StatusNotFound
		}
		return nil, hal.StatusIOError
	}
	return &inputFile{File: file, path: path, size: size}, hal.StatusOK
}

// CreateOutputFile creates path, and any missing parent directories.
func (f *Factory) CreateOutputFile(path string) (hal.OutputFile, hal.Status) {
	if path == "" {
		return nil, hal.StatusInvalidArgument
	}
	out, err := createOutputFile(path)
	if err != nil {
		f.logger.WithError(err).WithField("path", path).Error("Failed to create output file")
		return nil, hal.StatusIOError
	}
	return out, hal.StatusOK
}

// CreateOutputFileIn creates file under parent inside the downloads
// directory, renaming it when the name is taken.
func (f *Factory) CreateOutputFileIn(parent, file string) (hal.OutputFile, hal.Status) {
	if safeName(file) == "" {
		return nil, hal.StatusInvalidArgument
	}
	return f.CreateOutputFile(f.GetDownloadPath(parent, file))
}

func (f *Factory) CreateSingleThreadExecutor() hal.SubmittableExecutor {
	return newSerialExecutor(f.logger)
}

func (f *Factory) CreateMultiThreadExecutor(maxConcurrency int) hal.SubmittableExecutor {
	return newPoolExecutor(f.logger, maxConcurrency)
}

func (f *Factory) CreateScheduledExecutor() hal.ScheduledExecutor {
	return newScheduledExecutor(f.logger)
}

func (f *Factory) CreateTimer() hal.Timer { return &timer{} }

func (f *Factory) CreateBluetoothAdapter() hal.BluetoothAdapter {
	if f.bt == nil {
		return nil
	}
	return newBluetoothAdapter(f.bt)
}

func (f *Factory) CreateBluetoothClassicMedium(adapter hal.BluetoothAdapter) hal.BluetoothClassicMedium {
	if f.bt == nil || adapter == nil {
		return nil
	}
	return newClassicMedium(f.logger, f.bt)
}

func (f *Factory) CreateBleMedium(adapter hal.BluetoothAdapter) hal.BleMedium {
	if f.ble == nil || adapter == nil {
		return nil
	}
	return newBleMedium(f.logger, f.ble)
}

func (f *Factory) CreateWifiMedium() hal.WifiMedium { return wifiMedium{} }

func (f *Factory) CreateWifiLanMedium() hal.WifiLanMedium {
	return newWifiLanMedium(f.logger, f.dispatcher)
}

func (f *Factory) CreateWifiHotspotMedium() hal.WifiHotspotMedium {
	return &hotspotMedium{logger: f.logger, bus: f.nm}
}

func (f *Factory) CreateWifiDirectMedium() hal.WifiDirectMedium   { return nil }
func (f *Factory) CreateAwdlMedium() hal.AwdlMedium               { return nil }
func (f *Factory) CreateWebRtcMedium() hal.WebRtcMedium           { return nil }
func (f *Factory) CreateServerSyncMedium() hal.ServerSyncMedium   { return nil }
func (f *Factory) CreateCredentialStorage() hal.CredentialStorage { return nil }

func (f *Factory) CreateDeviceInfo() hal.DeviceInfo { return deviceInfo{f: f} }

// CreatePreferencesManager opens path, resolved under the app data directory
// when relative. It returns nil when the file cannot be loaded.
func (f *Factory) CreatePreferencesManager(path string) hal.PreferencesManager {
	if !filepath.IsAbs(path) {
		path = f.GetAppDataPath(path)
	}
	m, err := prefs.Open(path, f.logger)
	if err != nil {
		f.logger.WithError(err).WithField("path", path).Error("Failed to open preferences")
		return nil
	}
	return m
}

func (f *Factory) SendRequest(ctx context.Context, req hal.WebRequest) (*hal.WebResponse, error) {
	return f.http.send(ctx, req)
}

// GetDownloadPath returns a free path for file under the downloads directory.
func (f *Factory) GetDownloadPath(parent, file string) string {
	return uniquePath(filepath.Join(f.cfg.Downloads, safeDir(parent), safeName(file)))
}

// GetCustomSavePath returns a free path for file under parent.
func (f *Factory) GetCustomSavePath(parent, file string) string {
	return uniquePath(filepath.Join(parent, safeName(file)))
}

// GetAppDataPath returns <app data root>/Google/Nearby/Connections/<file>.
func (f *Factory) GetAppDataPath(file string) string {
	return f.cfg.AppDataPath(file)
}

func (f *Factory) GetCurrentOS() hal.OSName { return currentOS() }
