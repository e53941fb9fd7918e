package bluez

import (
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/internal/backend/stub"
	"github.com/srg/nearbyhal/pkg/hal"
)

const (
	upowerBus     = "org.freedesktop.UPower"
	upowerDevice  = "org.freedesktop.UPower.Device"
	displayDevice = dbus.ObjectPath("/org/freedesktop/UPower/devices/DisplayDevice")
)

// UPower device states.
const (
	upowerCharging      uint32 = 1
	upowerFullyCharged  uint32 = 4
	upowerPendingCharge uint32 = 5
)

// Battery reports the UPower display device, the aggregate of all host
// batteries. Readings are cached and refreshed when UPower signals a change.
type Battery struct {
	*stub.Battery
	logger *logrus.Logger
	bus    Bus
	stop   func()
}

// NewBattery fails when UPower is not reachable or the host has no battery.
func NewBattery(d hal.Dispatcher, logger *logrus.Logger, bus Bus) (*Battery, error) {
	if logger == nil {
		logger = logrus.New()
	}
	b := &Battery{
		Battery: stub.NewBattery(d, hal.DefaultBatteryLevel, stub.WithLogger(logger)),
		logger:  logger,
		bus:     bus,
	}
	if err := b.Refresh(); err != nil {
		return nil, err
	}
	stop, err := watch(bus, "upower-properties", dbusProperties, "PropertiesChanged", func(sig *dbus.Signal) {
		if sig.Path != displayDevice {
			return
		}
		if err := b.Refresh(); err != nil {
			b.logger.WithError(err).Warn("UPower refresh failed")
		}
	})
	if err != nil {
		return nil, err
	}
	b.stop = stop
	return b, nil
}

// Refresh reads the display device and publishes the reading.
func (b *Battery) Refresh() error {
	pct, err := property[float64](b.bus, upowerBus, displayDevice, upowerDevice, "Percentage")
	if err != nil {
		return err
	}
	state, err := property[uint32](b.bus, upowerBus, displayDevice, upowerDevice, "State")
	if err != nil {
		return err
	}
	present, err := property[bool](b.bus, upowerBus, displayDevice, upowerDevice, "IsPresent")
	if err != nil {
		return err
	}
	info := hal.BatteryInfo{
		Level:    int(pct + 0.5),
		Charging: state == upowerCharging || state == upowerFullyCharged || state == upowerPendingCharge,
		Present:  present,
	}
	remaining := "TimeToEmpty"
	if info.Charging {
		remaining = "TimeToFull"
	}
	if secs, err := property[int64](b.bus, upowerBus, displayDevice, upowerDevice, remaining); err == nil {
		info.RemainingTime = time.Duration(secs) * time.Second
	}
	b.Update(info)
	return nil
}

func (b *Battery) Close() error {
	if b.stop != nil {
		b.stop()
	}
	return nil
}
