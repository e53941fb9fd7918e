package stub

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/pkg/hal"
)

// Battery reports a present, discharging battery at the default level until
// Update feeds a reading in.
type Battery struct {
	opts   options
	bridge *hal.Bridge[hal.BatteryHandler]

	mu   sync.RWMutex
	info hal.BatteryInfo
}

func NewBattery(d hal.Dispatcher, level int, opts ...Option) *Battery {
	if level < 0 || level > 100 {
		level = hal.DefaultBatteryLevel
	}
	return &Battery{
		opts:   buildOptions(opts),
		bridge: hal.NewBridge[hal.BatteryHandler](d),
		info:   hal.BatteryInfo{Level: level, Present: true},
	}
}

func (b *Battery) Init(h hal.BatteryHandler) hal.Status {
	b.bridge.Register(h)
	return hal.StatusOK
}

func (b *Battery) GetBatteryLevel() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info.Level
}

func (b *Battery) IsCharging() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info.Charging
}

func (b *Battery) IsBatteryPresent() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info.Present
}

func (b *Battery) GetBatteryInfo(info *hal.BatteryInfo) hal.Status {
	if info == nil {
		return hal.StatusOK
	}
	b.mu.RLock()
	*info = b.info
	b.mu.RUnlock()
	return hal.StatusOK
}

// SetCharging updates only the charging flag.
func (b *Battery) SetCharging(charging bool) {
	b.mu.Lock()
	info := b.info
	info.Charging = charging
	b.mu.Unlock()
	b.Update(info)
}

// Update stores a new reading and notifies the handler when it differs.
func (b *Battery) Update(info hal.BatteryInfo) {
	if info.Level < 0 {
		info.Level = 0
	} else if info.Level > 100 {
		info.Level = 100
	}
	b.mu.Lock()
	changed := b.info != info
	b.info = info
	b.mu.Unlock()
	if changed {
		b.opts.logger.WithFields(logrus.Fields{
			"capability": "battery",
			"level":      info.Level,
			"charging":   info.Charging,
		}).Debug("Battery changed")
		b.bridge.Emit(func(h hal.BatteryHandler) { h.OnBatteryChanged(info) })
	}
}
