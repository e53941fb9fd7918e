package hal

import "time"

// APDUHeaderLen is the minimum length of a command APDU (CLA INS P1 P2).
const APDUHeaderLen = 4

// SEHandler receives secure element events.
type SEHandler interface {
	OnSessionClosed(reason Status)
}

// NopSEHandler ignores secure element events.
type NopSEHandler struct{}

func (NopSEHandler) OnSessionClosed(Status) {}

// SE is the secure element capability. At most one session is open at a time.
type SE interface {
	Init(h SEHandler) Status
	OpenSession() Status
	CloseSession() Status
	// Transmit sends apdu and copies the response into dst per CopyOut.
	Transmit(apdu []byte, dst []byte) (int, Status)
}

// OS exposes the operating system primitives the engine relies on.
type OS interface {
	Init() Status
	Malloc(size int) []byte
	Free(buf []byte)
	Sleep(d time.Duration)
	// CurrentTimeMs is a monotonic millisecond clock.
	CurrentTimeMs() uint64
	RunOnMainThread(fn func()) Status
}

// Persistence is a small key/value store that survives restarts.
type Persistence interface {
	Init() Status
	// Read returns StatusNotFound for a missing key.
	Read(key string) ([]byte, Status)
	Write(key string, data []byte) Status
	// Delete of a missing key is StatusOK.
	Delete(key string) Status
}
