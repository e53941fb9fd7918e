package hal

import (
	"context"
	"io"
	"net"
	"time"
)

// MutexMode selects the locking discipline of a factory mutex.
type MutexMode int

const (
	MutexRegular MutexMode = iota
	MutexRecursive
	// MutexRegularNoCheck is a regular mutex exempt from lock analysis.
	MutexRegularNoCheck
)

type Mutex interface {
	Lock()
	Unlock()
}

// ConditionVariable is bound to the Mutex it was created with.
type ConditionVariable interface {
	// Wait must be called with the mutex held.
	Wait()
	// WaitTimeout returns false when d elapsed without a notification.
	WaitTimeout(d time.Duration) bool
	Notify()
}

type CountDownLatch interface {
	CountDown()
	Await()
	// AwaitTimeout returns false when d elapsed before the count reached zero.
	AwaitTimeout(d time.Duration) bool
}

type AtomicBoolean interface {
	Get() bool
	// Set stores v and returns the previous value.
	Set(v bool) bool
}

type AtomicUint32 interface {
	Get() uint32
	Set(v uint32)
}

// SubmittableExecutor runs submitted work on its own goroutines.
type SubmittableExecutor interface {
	Execute(fn func())
	// Submit returns false if the executor has been shut down.
	Submit(fn func()) bool
	Shutdown()
}

// Cancelable is a handle to scheduled work.
type Cancelable interface {
	ID() string
	// Cancel returns false if the work already ran or was canceled.
	Cancel() bool
}

type ScheduledExecutor interface {
	Execute(fn func())
	Schedule(fn func(), delay time.Duration) Cancelable
	Shutdown()
}

// Timer fires fn after delay and then every period when period > 0.
type Timer interface {
	Create(delay, period time.Duration, fn func()) bool
	Stop() bool
	FireNow() bool
}

type InputFile interface {
	io.ReadCloser
	Path() string
	Size() int64
}

type OutputFile interface {
	io.WriteCloser
	Flush() error
}

// ScanMode is the classic Bluetooth visibility mode.
type ScanMode int

const (
	ScanModeUnknown ScanMode = iota
	ScanModeNone
	ScanModeConnectable
	ScanModeConnectableDiscoverable
)

type BluetoothAdapter interface {
	SetStatus(enabled bool) bool
	IsEnabled() bool
	ScanMode() ScanMode
	SetScanMode(mode ScanMode) bool
	Name() string
	SetName(name string) bool
	MacAddress() string
}

type BluetoothClassicMedium interface {
	StartDiscovery(onFound func(peer Address, name string)) bool
	StopDiscovery() bool
	Connect(peer Address) Status
	Send(peer Address, data []byte) Status
	Disconnect(peer Address) Status
}

type BleMedium interface {
	StartAdvertising(data AdvertisementData) bool
	StopAdvertising() bool
	StartScanning(params ScanParameters, onResult func(ScanResult)) bool
	StopScanning() bool
	Close() error
}

type WifiInformation struct {
	Connected bool
	Interface string
	IPAddress string
}

type WifiMedium interface {
	IsInterfaceValid() bool
	GetInformation() WifiInformation
}

// NsdServiceInfo describes a DNS-SD service instance.
type NsdServiceInfo struct {
	Name      string
	Type      string
	Port      int
	IPAddress string
	TXT       map[string]string
}

type WifiLanMedium interface {
	IsNetworkConnected() bool
	StartAdvertising(info NsdServiceInfo) bool
	StopAdvertising(info NsdServiceInfo) bool
	StartDiscovery(serviceType string, onFound, onLost func(NsdServiceInfo)) bool
	StopDiscovery(serviceType string) bool
	ConnectToService(ctx context.Context, info NsdServiceInfo) (net.Conn, error)
	ListenForService(port int) (net.Listener, error)
}

type HotspotCredentials struct {
	SSID     string
	Password string
}

type WifiHotspotMedium interface {
	IsInterfaceValid() bool
	StartWifiHotspot(creds *HotspotCredentials) bool
	StopWifiHotspot() bool
	ConnectWifiHotspot(creds HotspotCredentials) bool
	DisconnectWifiHotspot() bool
}

// The following mediums have no desktop backend; factories return nil for them.

type WifiDirectMedium interface {
	IsInterfaceValid() bool
}

type AwdlMedium interface {
	IsInterfaceValid() bool
}

type WebRtcMedium interface {
	DefaultCountryCode() string
}

type ServerSyncMedium interface {
	Synchronize(ctx context.Context) error
}

type CredentialStorage interface {
	SaveCredentials(ctx context.Context, id string, blob []byte) error
	LoadCredentials(ctx context.Context, id string) ([]byte, error)
}

// DeviceType is the form factor of the local device.
type DeviceType int

const (
	DeviceUnknown DeviceType = iota
	DevicePhone
	DeviceTablet
	DeviceLaptop
	DeviceDesktop
)

// OSName identifies the host operating system.
type OSName string

const (
	OSLinux    OSName = "linux"
	OSMacOS    OSName = "macos"
	OSWindows  OSName = "windows"
	OSChromeOS OSName = "chromeos"
	OSUnknown  OSName = "unknown"
)

type DeviceInfo interface {
	DeviceName() string
	DeviceType() DeviceType
	OSType() OSName
	FullName() string
	DownloadPath() string
	AppDataPath() string
	TemporaryPath() string
	LogPath() string
}

type PreferencesManager interface {
	GetString(key, def string) string
	SetString(key, value string) bool
	GetBool(key string, def bool) bool
	SetBool(key string, value bool) bool
	GetInt64(key string, def int64) int64
	SetInt64(key string, value int64) bool
	Remove(key string) bool
	Close() error
}

type WebRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
}

type WebResponse struct {
	StatusCode int
	StatusText string
	Headers    map[string]string
	Body       []byte
}

// Factory constructs OS resources and communication mediums on rich targets.
// Every returned object is new and owned by the caller. Methods for mediums
// the target cannot provide return nil.
type Factory interface {
	CreateAtomicBoolean(initial bool) AtomicBoolean
	CreateAtomicUint32(initial uint32) AtomicUint32
	CreateCountDownLatch(count int32) CountDownLatch
	CreateMutex(mode MutexMode) Mutex
	CreateConditionVariable(m Mutex) ConditionVariable
	CreateInputFile(path string, size int64) (InputFile, Status)
	CreateOutputFile(path string) (OutputFile, Status)
	CreateOutputFileIn(parent, file string) (OutputFile, Status)
	CreateSingleThreadExecutor() SubmittableExecutor
	CreateMultiThreadExecutor(maxConcurrency int) SubmittableExecutor
	CreateScheduledExecutor() ScheduledExecutor
	CreateTimer() Timer

	CreateBluetoothAdapter() BluetoothAdapter
	CreateBluetoothClassicMedium(adapter BluetoothAdapter) BluetoothClassicMedium
	CreateBleMedium(adapter BluetoothAdapter) BleMedium
	CreateWifiMedium() WifiMedium
	CreateWifiLanMedium() WifiLanMedium
	CreateWifiHotspotMedium() WifiHotspotMedium
	CreateWifiDirectMedium() WifiDirectMedium
	CreateAwdlMedium() AwdlMedium
	CreateWebRtcMedium() WebRtcMedium
	CreateServerSyncMedium() ServerSyncMedium
	CreateCredentialStorage() CredentialStorage

	CreateDeviceInfo() DeviceInfo
	CreatePreferencesManager(path string) PreferencesManager
	SendRequest(ctx context.Context, req WebRequest) (*WebResponse, error)

	GetDownloadPath(parent, file string) string
	GetAppDataPath(file string) string
	GetCustomSavePath(parent, file string) string
	GetCurrentOS() OSName
}
