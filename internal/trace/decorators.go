package trace

import (
	"time"

	"github.com/srg/nearbyhal/pkg/hal"
)

func traced[T any](t Tracer, capability, op string, fn func() T) T {
	c := t.Begin(capability, op)
	r := fn()
	c.Return(r)
	return r
}

func tracedVoid(t Tracer, capability, op string, fn func()) {
	c := t.Begin(capability, op)
	fn()
	c.ReturnVoid()
}

// tracedPair reports the Status of operations returning (value, Status).
func tracedPair[T any](t Tracer, capability, op string, fn func() (T, hal.Status)) (T, hal.Status) {
	c := t.Begin(capability, op)
	v, s := fn()
	c.Return(s)
	return v, s
}

// WrapAudio returns a with every call traced; a nil t returns a unchanged.
func WrapAudio(a hal.Audio, t Tracer) hal.Audio {
	if t == nil || a == nil {
		return a
	}
	return &audio{inner: a, t: t}
}

type audio struct {
	inner hal.Audio
	t     Tracer
}

const capAudio = "audio"

func (a *audio) Init(h hal.AudioHandler) hal.Status {
	return traced(a.t, capAudio, "Init", func() hal.Status { return a.inner.Init(h) })
}
func (a *audio) GetEarbudLeftStatus() bool {
	return traced(a.t, capAudio, "GetEarbudLeftStatus", a.inner.GetEarbudLeftStatus)
}
func (a *audio) GetAudioConnectionState() hal.AudioConnectionState {
	return traced(a.t, capAudio, "GetAudioConnectionState", a.inner.GetAudioConnectionState)
}
func (a *audio) OnHead() bool {
	return traced(a.t, capAudio, "OnHead", a.inner.OnHead)
}
func (a *audio) CanAcceptConnection() bool {
	return traced(a.t, capAudio, "CanAcceptConnection", a.inner.CanAcceptConnection)
}
func (a *audio) InFocusMode() bool {
	return traced(a.t, capAudio, "InFocusMode", a.inner.InFocusMode)
}
func (a *audio) AutoReconnected() bool {
	return traced(a.t, capAudio, "AutoReconnected", a.inner.AutoReconnected)
}
func (a *audio) IsSassOn() bool {
	return traced(a.t, capAudio, "IsSassOn", a.inner.IsSassOn)
}
func (a *audio) IsMultipointConfigurable() bool {
	return traced(a.t, capAudio, "IsMultipointConfigurable", a.inner.IsMultipointConfigurable)
}
func (a *audio) IsMultipointOn() bool {
	return traced(a.t, capAudio, "IsMultipointOn", a.inner.IsMultipointOn)
}
func (a *audio) IsOnHeadDetectionSupported() bool {
	return traced(a.t, capAudio, "IsOnHeadDetectionSupported", a.inner.IsOnHeadDetectionSupported)
}
func (a *audio) IsOnHeadDetectionEnabled() bool {
	return traced(a.t, capAudio, "IsOnHeadDetectionEnabled", a.inner.IsOnHeadDetectionEnabled)
}
func (a *audio) GetSwitchingPreference() uint8 {
	return traced(a.t, capAudio, "GetSwitchingPreference", a.inner.GetSwitchingPreference)
}
func (a *audio) GetActiveAudioSource() hal.Address {
	return traced(a.t, capAudio, "GetActiveAudioSource", a.inner.GetActiveAudioSource)
}
func (a *audio) GetConnectionBitmap(dst []byte) (int, hal.Status) {
	return tracedPair(a.t, capAudio, "GetConnectionBitmap", func() (int, hal.Status) { return a.inner.GetConnectionBitmap(dst) })
}
func (a *audio) SetMultipoint(peer hal.Address, enable bool) hal.Status {
	return traced(a.t, capAudio, "SetMultipoint", func() hal.Status { return a.inner.SetMultipoint(peer, enable) })
}
func (a *audio) SetSwitchingPreference(flags uint8) hal.Status {
	return traced(a.t, capAudio, "SetSwitchingPreference", func() hal.Status { return a.inner.SetSwitchingPreference(flags) })
}
func (a *audio) SwitchActiveAudioSource(peer hal.Address, flags uint8, preferred hal.Address) hal.Status {
	return traced(a.t, capAudio, "SwitchActiveAudioSource", func() hal.Status {
		return a.inner.SwitchActiveAudioSource(peer, flags, preferred)
	})
}
func (a *audio) SwitchBackAudioSource(peer hal.Address, flags uint8) hal.Status {
	return traced(a.t, capAudio, "SwitchBackAudioSource", func() hal.Status { return a.inner.SwitchBackAudioSource(peer, flags) })
}
func (a *audio) NotifySassInitiatedConnection(peer hal.Address, flags uint8) hal.Status {
	return traced(a.t, capAudio, "NotifySassInitiatedConnection", func() hal.Status {
		return a.inner.NotifySassInitiatedConnection(peer, flags)
	})
}
func (a *audio) SetDropConnectionTarget(peer hal.Address, flags uint8) hal.Status {
	return traced(a.t, capAudio, "SetDropConnectionTarget", func() hal.Status { return a.inner.SetDropConnectionTarget(peer, flags) })
}

// WrapBattery returns b with every call traced.
func WrapBattery(b hal.Battery, t Tracer) hal.Battery {
	if t == nil || b == nil {
		return b
	}
	return &battery{inner: b, t: t}
}

type battery struct {
	inner hal.Battery
	t     Tracer
}

const capBattery = "battery"

func (b *battery) Init(h hal.BatteryHandler) hal.Status {
	return traced(b.t, capBattery, "Init", func() hal.Status { return b.inner.Init(h) })
}
func (b *battery) GetBatteryLevel() int {
	return traced(b.t, capBattery, "GetBatteryLevel", b.inner.GetBatteryLevel)
}
func (b *battery) IsCharging() bool {
	return traced(b.t, capBattery, "IsCharging", b.inner.IsCharging)
}
func (b *battery) IsBatteryPresent() bool {
	return traced(b.t, capBattery, "IsBatteryPresent", b.inner.IsBatteryPresent)
}
func (b *battery) GetBatteryInfo(info *hal.BatteryInfo) hal.Status {
	return traced(b.t, capBattery, "GetBatteryInfo", func() hal.Status { return b.inner.GetBatteryInfo(info) })
}

// WrapBT returns b with every call traced.
func WrapBT(b hal.BT, t Tracer) hal.BT {
	if t == nil || b == nil {
		return b
	}
	return &bt{inner: b, t: t}
}

type bt struct {
	inner hal.BT
	t     Tracer
}

const capBT = "bt"

func (b *bt) Init(h hal.BTHandler) hal.Status {
	return traced(b.t, capBT, "Init", func() hal.Status { return b.inner.Init(h) })
}
func (b *bt) StartDiscovery() hal.Status {
	return traced(b.t, capBT, "StartDiscovery", b.inner.StartDiscovery)
}
func (b *bt) StopDiscovery() hal.Status {
	return traced(b.t, capBT, "StopDiscovery", b.inner.StopDiscovery)
}
func (b *bt) Connect(peer hal.Address) hal.Status {
	return traced(b.t, capBT, "Connect", func() hal.Status { return b.inner.Connect(peer) })
}
func (b *bt) Disconnect(peer hal.Address) hal.Status {
	return traced(b.t, capBT, "Disconnect", func() hal.Status { return b.inner.Disconnect(peer) })
}
func (b *bt) Send(peer hal.Address, data []byte) hal.Status {
	return traced(b.t, capBT, "Send", func() hal.Status { return b.inner.Send(peer, data) })
}
func (b *bt) GetRssi(peer hal.Address, rssi *int8) hal.Status {
	return traced(b.t, capBT, "GetRssi", func() hal.Status { return b.inner.GetRssi(peer, rssi) })
}
func (b *bt) IsEnabled() bool {
	return traced(b.t, capBT, "IsEnabled", b.inner.IsEnabled)
}
func (b *bt) SetEnabled(enabled bool) hal.Status {
	return traced(b.t, capBT, "SetEnabled", func() hal.Status { return b.inner.SetEnabled(enabled) })
}
func (b *bt) GetName(dst []byte) (int, hal.Status) {
	return tracedPair(b.t, capBT, "GetName", func() (int, hal.Status) { return b.inner.GetName(dst) })
}
func (b *bt) SetName(name string) hal.Status {
	return traced(b.t, capBT, "SetName", func() hal.Status { return b.inner.SetName(name) })
}
func (b *bt) GetAddress(addr *hal.Address) hal.Status {
	return traced(b.t, capBT, "GetAddress", func() hal.Status { return b.inner.GetAddress(addr) })
}

// WrapBLE returns b with every call traced.
func WrapBLE(b hal.BLE, t Tracer) hal.BLE {
	if t == nil || b == nil {
		return b
	}
	return &ble{inner: b, t: t}
}

type ble struct {
	inner hal.BLE
	t     Tracer
}

const capBLE = "ble"

func (b *ble) Init(h hal.BLEHandler) hal.Status {
	return traced(b.t, capBLE, "Init", func() hal.Status { return b.inner.Init(h) })
}
func (b *ble) StartAdvertising(data *hal.AdvertisementData) hal.Status {
	return traced(b.t, capBLE, "StartAdvertising", func() hal.Status { return b.inner.StartAdvertising(data) })
}
func (b *ble) StopAdvertising() hal.Status {
	return traced(b.t, capBLE, "StopAdvertising", b.inner.StopAdvertising)
}
func (b *ble) StartScanning(params *hal.ScanParameters) hal.Status {
	return traced(b.t, capBLE, "StartScanning", func() hal.Status { return b.inner.StartScanning(params) })
}
func (b *ble) StopScanning() hal.Status {
	return traced(b.t, capBLE, "StopScanning", b.inner.StopScanning)
}
func (b *ble) Connect(peer hal.Address) hal.Status {
	return traced(b.t, capBLE, "Connect", func() hal.Status { return b.inner.Connect(peer) })
}
func (b *ble) Disconnect(peer hal.Address) hal.Status {
	return traced(b.t, capBLE, "Disconnect", func() hal.Status { return b.inner.Disconnect(peer) })
}
func (b *ble) Send(peer hal.Address, data []byte) hal.Status {
	return traced(b.t, capBLE, "Send", func() hal.Status { return b.inner.Send(peer, data) })
}
func (b *ble) GetRssi(peer hal.Address, rssi *int8) hal.Status {
	return traced(b.t, capBLE, "GetRssi", func() hal.Status { return b.inner.GetRssi(peer, rssi) })
}
func (b *ble) IsEnabled() bool {
	return traced(b.t, capBLE, "IsEnabled", b.inner.IsEnabled)
}
func (b *ble) SetEnabled(enabled bool) hal.Status {
	return traced(b.t, capBLE, "SetEnabled", func() hal.Status { return b.inner.SetEnabled(enabled) })
}

// WrapSE returns s with every call traced.
func WrapSE(s hal.SE, t Tracer) hal.SE {
	if t == nil || s == nil {
		return s
	}
	return &se{inner: s, t: t}
}

type se struct {
	inner hal.SE
	t     Tracer
}

const capSE = "se"

func (s *se) Init(h hal.SEHandler) hal.Status {
	return traced(s.t, capSE, "Init", func() hal.Status { return s.inner.Init(h) })
}
func (s *se) OpenSession() hal.Status {
	return traced(s.t, capSE, "OpenSession", s.inner.OpenSession)
}
func (s *se) CloseSession() hal.Status {
	return traced(s.t, capSE, "CloseSession", s.inner.CloseSession)
}
func (s *se) Transmit(apdu []byte, dst []byte) (int, hal.Status) {
	return tracedPair(s.t, capSE, "Transmit", func() (int, hal.Status) { return s.inner.Transmit(apdu, dst) })
}

// WrapOS returns o with every call traced.
func WrapOS(o hal.OS, t Tracer) hal.OS {
	if t == nil || o == nil {
		return o
	}
	return &osPrim{inner: o, t: t}
}

type osPrim struct {
	inner hal.OS
	t     Tracer
}

const capOS = "os"

func (o *osPrim) Init() hal.Status {
	return traced(o.t, capOS, "Init", o.inner.Init)
}
func (o *osPrim) Malloc(size int) []byte {
	return traced(o.t, capOS, "Malloc", func() []byte { return o.inner.Malloc(size) })
}
func (o *osPrim) Free(buf []byte) {
	tracedVoid(o.t, capOS, "Free", func() { o.inner.Free(buf) })
}
func (o *osPrim) Sleep(d time.Duration) {
	tracedVoid(o.t, capOS, "Sleep", func() { o.inner.Sleep(d) })
}
func (o *osPrim) CurrentTimeMs() uint64 {
	return traced(o.t, capOS, "CurrentTimeMs", o.inner.CurrentTimeMs)
}
func (o *osPrim) RunOnMainThread(fn func()) hal.Status {
	return traced(o.t, capOS, "RunOnMainThread", func() hal.Status { return o.inner.RunOnMainThread(fn) })
}

// WrapPersistence returns p with every call traced.
func WrapPersistence(p hal.Persistence, t Tracer) hal.Persistence {
	if t == nil || p == nil {
		return p
	}
	return &persistence{inner: p, t: t}
}

type persistence struct {
	inner hal.Persistence
	t     Tracer
}

const capPersistence = "persistence"

func (p *persistence) Init() hal.Status {
	return traced(p.t, capPersistence, "Init", p.inner.Init)
}
func (p *persistence) Read(key string) ([]byte, hal.Status) {
	return tracedPair(p.t, capPersistence, "Read", func() ([]byte, hal.Status) { return p.inner.Read(key) })
}
func (p *persistence) Write(key string, data []byte) hal.Status {
	return traced(p.t, capPersistence, "Write", func() hal.Status { return p.inner.Write(key, data) })
}
func (p *persistence) Delete(key string) hal.Status {
	return traced(p.t, capPersistence, "Delete", func() hal.Status { return p.inner.Delete(key) })
}
