package hal

import "time"

// DefaultBatteryLevel is reported before a backend learns the real level.
const DefaultBatteryLevel = 100

// BatteryInfo is a battery snapshot.
type BatteryInfo struct {
	Level         int
	Charging      bool
	Present       bool
	RemainingTime time.Duration
}

// BatteryHandler receives battery events.
type BatteryHandler interface {
	OnBatteryChanged(info BatteryInfo)
}

// NopBatteryHandler ignores battery events.
type NopBatteryHandler struct{}

func (NopBatteryHandler) OnBatteryChanged(BatteryInfo) {}

// Battery is the battery capability.
type Battery interface {
	Init(h BatteryHandler) Status
	GetBatteryLevel() int
	IsCharging() bool
	IsBatteryPresent() bool
	// GetBatteryInfo fills info; a nil info is a no-op returning StatusOK.
	GetBatteryInfo(info *BatteryInfo) Status
}
