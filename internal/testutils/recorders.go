package testutils

import (
	"sync"

	"github.com/srg/nearbyhal/internal/dispatch"
	"github.com/srg/nearbyhal/pkg/hal"
)

// AudioRecorder records audio events.
type AudioRecorder struct {
	hal.NopAudioHandler
	mu      sync.Mutex
	states  []hal.AudioConnectionState
	sources []hal.Address
	onHead  []bool
}

func NewAudioRecorder() *AudioRecorder { return &AudioRecorder{} }

func (r *AudioRecorder) OnConnectionStateChanged(state hal.AudioConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *AudioRecorder) OnActiveSourceChanged(peer hal.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, peer)
}

func (r *AudioRecorder) OnHeadStateChanged(onHead bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onHead = append(r.onHead, onHead)
}

func (r *AudioRecorder) States() []hal.AudioConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hal.AudioConnectionState(nil), r.states...)
}

func (r *AudioRecorder) Sources() []hal.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hal.Address(nil), r.sources...)
}

func (r *AudioRecorder) OnHead() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.onHead...)
}

// BatteryRecorder records battery events.
type BatteryRecorder struct {
	mu    sync.Mutex
	infos []hal.BatteryInfo
}

func NewBatteryRecorder() *BatteryRecorder { return &BatteryRecorder{} }

func (r *BatteryRecorder) OnBatteryChanged(info hal.BatteryInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, info)
}

func (r *BatteryRecorder) Infos() []hal.BatteryInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hal.BatteryInfo(nil), r.infos...)
}

// LinkEvent is one recorded connection state change.
type LinkEvent struct {
	Peer  hal.Address
	State hal.LinkState
}

// DataEvent is one recorded inbound payload.
type DataEvent struct {
	Peer hal.Address
	Data []byte
}

// BTRecorder records Bluetooth classic events.
type BTRecorder struct {
	mu        sync.Mutex
	found     []hal.Address
	names     []string
	links     []LinkEvent
	data      []DataEvent
	discovery []bool
}

func NewBTRecorder() *BTRecorder { return &BTRecorder{} }

func (r *BTRecorder) OnDeviceFound(peer hal.Address, name string, _ int8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.found = append(r.found, peer)
	r.names = append(r.names, name)
}

func (r *BTRecorder) OnConnectionStateChanged(peer hal.Address, state hal.LinkState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links = append(r.links, LinkEvent{Peer: peer, State: state})
}

func (r *BTRecorder) OnDataReceived(peer hal.Address, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, DataEvent{Peer: peer, Data: append([]byte(nil), data...)})
}

func (r *BTRecorder) OnDiscoveryStateChanged(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovery = append(r.discovery, active)
}

func (r *BTRecorder) Found() []hal.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hal.Address(nil), r.found...)
}

func (r *BTRecorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func (r *BTRecorder) Links() []LinkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LinkEvent(nil), r.links...)
}

func (r *BTRecorder) Data() []DataEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DataEvent(nil), r.data...)
}

func (r *BTRecorder) DiscoveryStates() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.discovery...)
}

// BLERecorder records BLE events.
type BLERecorder struct {
	mu          sync.Mutex
	results     []hal.ScanResult
	links       []LinkEvent
	data        []DataEvent
	advertising []bool
}

func NewBLERecorder() *BLERecorder { return &BLERecorder{} }

func (r *BLERecorder) OnScanResult(result hal.ScanResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *BLERecorder) OnConnectionStateChanged(peer hal.Address, state hal.LinkState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links = append(r.links, LinkEvent{Peer: peer, State: state})
}

func (r *BLERecorder) OnDataReceived(peer hal.Address, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, DataEvent{Peer: peer, Data: append([]byte(nil), data...)})
}

func (r *BLERecorder) OnAdvertisingStateChanged(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advertising = append(r.advertising, active)
}

func (r *BLERecorder) Results() []hal.ScanResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hal.ScanResult(nil), r.results...)
}

func (r *BLERecorder) Links() []LinkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LinkEvent(nil), r.links...)
}

func (r *BLERecorder) Data() []DataEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DataEvent(nil), r.data...)
}

func (r *BLERecorder) AdvertisingStates() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.advertising...)
}

// LoopScanRecorder records scan results delivered through a dispatch.Loop
// and counts the ones that ran anywhere else.
type LoopScanRecorder struct {
	hal.NopBLEHandler
	loop    *dispatch.Loop
	mu      sync.Mutex
	results []hal.ScanResult
	offLoop int
}

func NewLoopScanRecorder(loop *dispatch.Loop) *LoopScanRecorder {
	return &LoopScanRecorder{loop: loop}
}

func (r *LoopScanRecorder) OnScanResult(result hal.ScanResult) {
	onLoop := r.loop.OnLoop()
	r.mu.Lock()
	defer r.mu.Unlock()
	if !onLoop {
		r.offLoop++
	}
	r.results = append(r.results, result)
}

func (r *LoopScanRecorder) Results() []hal.ScanResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hal.ScanResult(nil), r.results...)
}

// OffLoop is the number of results delivered off the loop goroutine.
func (r *LoopScanRecorder) OffLoop() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offLoop
}
