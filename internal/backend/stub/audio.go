package stub

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/pkg/hal"
)

// Audio reports a headset with no audio links. SetConnectionState, SetOnHead
// and SetActiveSource feed sensor or stack state into it.
type Audio struct {
	opts   options
	bridge *hal.Bridge[hal.AudioHandler]

	mu           sync.RWMutex
	state        hal.AudioConnectionState
	onHead       bool
	activeSource hal.Address
}

func NewAudio(d hal.Dispatcher, opts ...Option) *Audio {
	return &Audio{
		opts:   buildOptions(opts),
		bridge: hal.NewBridge[hal.AudioHandler](d),
	}
}

func (a *Audio) Init(h hal.AudioHandler) hal.Status {
	a.bridge.Register(h)
	a.opts.logger.WithField("capability", "audio").Debug("Handler registered")
	return hal.StatusOK
}

func (a *Audio) GetEarbudLeftStatus() bool { return false }

func (a *Audio) GetAudioConnectionState() hal.AudioConnectionState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Audio) OnHead() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.onHead
}

func (a *Audio) CanAcceptConnection() bool        { return false }
func (a *Audio) InFocusMode() bool                { return false }
func (a *Audio) AutoReconnected() bool            { return false }
func (a *Audio) IsSassOn() bool                   { return false }
func (a *Audio) IsMultipointConfigurable() bool   { return false }
func (a *Audio) IsMultipointOn() bool             { return false }
func (a *Audio) IsOnHeadDetectionSupported() bool { return false }
func (a *Audio) IsOnHeadDetectionEnabled() bool   { return false }
func (a *Audio) GetSwitchingPreference() uint8    { return 0 }

func (a *Audio) GetActiveAudioSource() hal.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.activeSource
}

// GetConnectionBitmap reports an empty bitmap.
func (a *Audio) GetConnectionBitmap(dst []byte) (int, hal.Status) {
	return hal.CopyOut(dst, nil)
}

func (a *Audio) SetMultipoint(peer hal.Address, enable bool) hal.Status {
	return a.command("SetMultipoint", peer)
}

func (a *Audio) SetSwitchingPreference(flags uint8) hal.Status {
	return a.command("SetSwitchingPreference", 0)
}

func (a *Audio) SwitchActiveAudioSource(peer hal.Address, flags uint8, preferred hal.Address) hal.Status {
	return a.command("SwitchActiveAudioSource", peer)
}

func (a *Audio) SwitchBackAudioSource(peer hal.Address, flags uint8) hal.Status {
	return a.command("SwitchBackAudioSource", peer)
}

func (a *Audio) NotifySassInitiatedConnection(peer hal.Address, flags uint8) hal.Status {
	return a.command("NotifySassInitiatedConnection", peer)
}

func (a *Audio) SetDropConnectionTarget(peer hal.Address, flags uint8) hal.Status {
	return a.command("SetDropConnectionTarget", peer)
}

func (a *Audio) command(op string, peer hal.Address) hal.Status {
	a.opts.logger.WithFields(logrus.Fields{
		"capability": "audio",
		"op":         op,
		"peer":       peer,
		"status":     a.opts.cmdStatus,
	}).Debug("Audio command")
	return a.opts.cmdStatus
}

// SetConnectionState records a new link state and notifies the handler on change.
func (a *Audio) SetConnectionState(state hal.AudioConnectionState) {
	a.mu.Lock()
	changed := a.state != state
	a.state = state
	a.mu.Unlock()
	if changed {
		a.bridge.Emit(func(h hal.AudioHandler) { h.OnConnectionStateChanged(state) })
	}
}

// SetOnHead records the on-head sensor state and notifies the handler on change.
func (a *Audio) SetOnHead(onHead bool) {
	a.mu.Lock()
	changed := a.onHead != onHead
	a.onHead = onHead
	a.mu.Unlock()
	if changed {
		a.bridge.Emit(func(h hal.AudioHandler) { h.OnHeadStateChanged(onHead) })
	}
}

// SetActiveSource records the active audio source and notifies the handler on change.
func (a *Audio) SetActiveSource(peer hal.Address) {
	a.mu.Lock()
	changed := a.activeSource != peer
	a.activeSource = peer
	a.mu.Unlock()
	if changed {
		a.bridge.Emit(func(h hal.AudioHandler) { h.OnActiveSourceChanged(peer) })
	}
}
