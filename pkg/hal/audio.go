package hal

// AudioConnectionState is the aggregate audio link state of the device.
type AudioConnectionState int

const (
	AudioNoConnection AudioConnectionState = iota
	AudioPaging
	AudioConnectedNoData
	AudioA2DP
	AudioHFP
	AudioLEAudio
	AudioDisabled
)

func (s AudioConnectionState) String() string {
	switch s {
	case AudioNoConnection:
		return "no_connection"
	case AudioPaging:
		return "paging"
	case AudioConnectedNoData:
		return "connected_no_data"
	case AudioA2DP:
		return "a2dp"
	case AudioHFP:
		return "hfp"
	case AudioLEAudio:
		return "le_audio"
	case AudioDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// AudioHandler receives audio events. Embed NopAudioHandler to implement a subset.
type AudioHandler interface {
	OnConnectionStateChanged(state AudioConnectionState)
	OnActiveSourceChanged(peer Address)
	OnHeadStateChanged(onHead bool)
}

// NopAudioHandler ignores every audio event.
type NopAudioHandler struct{}

func (NopAudioHandler) OnConnectionStateChanged(AudioConnectionState) {}
func (NopAudioHandler) OnActiveSourceChanged(Address) {}
func (NopAudioHandler) OnHeadStateChanged(bool) {}

// AudioStatus answers audio state queries. Defaults apply before Init.
type AudioStatus interface {
	GetEarbudLeftStatus() bool
	GetAudioConnectionState() AudioConnectionState
	OnHead() bool
	CanAcceptConnection() bool
	InFocusMode() bool
	AutoReconnected() bool
	IsSassOn() bool
	IsMultipointConfigurable() bool
	IsMultipointOn() bool
	IsOnHeadDetectionSupported() bool
	IsOnHeadDetectionEnabled() bool
	GetSwitchingPreference() uint8
	GetActiveAudioSource() Address
	// GetConnectionBitmap follows the CopyOut buffer convention.
	GetConnectionBitmap(dst []byte) (int, Status)
}

// AudioSwitching issues multipoint and smart audio source switching commands.
type AudioSwitching interface {
	SetMultipoint(peer Address, enable bool) Status
	SetSwitchingPreference(flags uint8) Status
	SwitchActiveAudioSource(peer Address, flags uint8, preferred Address) Status
	SwitchBackAudioSource(peer Address, flags uint8) Status
	NotifySassInitiatedConnection(peer Address, flags uint8) Status
	SetDropConnectionTarget(peer Address, flags uint8) Status
}

// Audio is the audio capability.
type Audio interface {
	Init(h AudioHandler) Status
	AudioStatus
	AudioSwitching
}
