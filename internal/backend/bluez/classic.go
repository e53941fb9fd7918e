package bluez

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/internal/groutine"
	"github.com/srg/nearbyhal/internal/link"
	"github.com/srg/nearbyhal/pkg/hal"
)

// BT drives one BlueZ adapter for Bluetooth-classic discovery and links.
// Data transfer needs an RFCOMM profile, which this backend does not
// register, so Send on a connected peer reports StatusUnsupported.
type BT struct {
	logger      *logrus.Logger
	bus         Bus
	adapterPath dbus.ObjectPath
	bridge      *hal.Bridge[hal.BTHandler]
	links       *link.Table

	mu          sync.Mutex
	discovering bool
	stopWatch   []func()
}

// NewBT binds adapter ("hci0" when empty) and starts following device
// announcements on the bus.
func NewBT(d hal.Dispatcher, logger *logrus.Logger, bus Bus, adapter string) (*BT, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if adapter == "" {
		adapter = "hci0"
	}
	b := &BT{
		logger:      logger,
		bus:         bus,
		adapterPath: dbus.ObjectPath("/org/bluez/" + adapter),
		bridge:      hal.NewBridge[hal.BTHandler](d),
	}
	b.links = link.NewTable(logger, func(peer hal.Address, state hal.LinkState) {
		b.bridge.Emit(func(h hal.BTHandler) { h.OnConnectionStateChanged(peer, state) })
	})
	if _, err := property[bool](bus, bluezBus, b.adapterPath, bluezAdapter1, "Powered"); err != nil {
		return nil, err
	}

	stopAdded, err := watch(bus, "bluez-objects", dbusObjectManager, "InterfacesAdded", b.onInterfacesAdded)
	if err != nil {
		return nil, err
	}
	stopChanged, err := watch(bus, "bluez-properties", dbusProperties, "PropertiesChanged", b.onPropertiesChanged)
	if err != nil {
		stopAdded()
		return nil, err
	}
	b.stopWatch = []func(){stopAdded, stopChanged}
	return b, nil
}

func (b *BT) Init(h hal.BTHandler) hal.Status {
	b.bridge.Register(h)
	return hal.StatusOK
}

func (b *BT) call(path dbus.ObjectPath, method string, args ...any) hal.Status {
	_, err := b.bus.Call(bluezBus, path, method, args...)
	if err != nil {
		b.logger.WithFields(logrus.Fields{"path": path, "method": method}).WithError(err).Debug("BlueZ call failed")
	}
	return statusOf(err)
}

func (b *BT) StartDiscovery() hal.Status {
	b.mu.Lock()
	if b.discovering {
		b.mu.Unlock()
		return hal.StatusOK
	}
	filter := map[string]dbus.Variant{"Transport": dbus.MakeVariant("bredr")}
	st := b.call(b.adapterPath, bluezAdapter1+".SetDiscoveryFilter", filter)
	if st.OK() {
		st = b.call(b.adapterPath, bluezAdapter1+".StartDiscovery")
	}
	b.discovering = st.OK()
	b.mu.Unlock()

	if st.OK() {
		b.bridge.Emit(func(h hal.BTHandler) { h.OnDiscoveryStateChanged(true) })
	}
	return st
}

func (b *BT) StopDiscovery() hal.Status {
	b.mu.Lock()
	if !b.discovering {
		b.mu.Unlock()
		return hal.StatusOK
	}
	st := b.call(b.adapterPath, bluezAdapter1+".StopDiscovery")
	b.discovering = false
	b.mu.Unlock()

	b.bridge.Emit(func(h hal.BTHandler) { h.OnDiscoveryStateChanged(false) })
	return st
}

func (b *BT) isDiscovering() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.discovering
}

func (b *BT) onInterfacesAdded(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	path, _ := sig.Body[0].(dbus.ObjectPath)
	ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
	props, ok := ifaces[bluezDevice1]
	if !ok {
		return
	}
	peer, ok := peerOf(b.adapterPath, path)
	if !ok || !b.isDiscovering() {
		return
	}
	b.found(peer, props)
}

func (b *BT) onPropertiesChanged(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	if iface, _ := sig.Body[0].(string); iface != bluezDevice1 {
		return
	}
	peer, ok := peerOf(b.adapterPath, sig.Path)
	if !ok {
		return
	}
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	if v, ok := changed["Connected"]; ok {
		if connected, _ := v.Value().(bool); !connected {
			b.links.Closed(peer)
		}
	}
	if _, ok := changed["RSSI"]; ok && b.isDiscovering() {
		b.found(peer, changed)
	}
}

func (b *BT) found(peer hal.Address, props map[string]dbus.Variant) {
	var name string
	for _, key := range []string{"Name", "Alias"} {
		if v, ok := props[key]; ok {
			name, _ = v.Value().(string)
			break
		}
	}
	if name == "" {
		name, _ = property[string](b.bus, bluezBus, devicePath(b.adapterPath, peer), bluezDevice1, "Alias")
	}
	var rssi int8
	if v, ok := props["RSSI"]; ok {
		if r, ok := v.Value().(int16); ok {
			rssi = int8(max(min(r, 127), -128))
		}
	}
	b.bridge.Emit(func(h hal.BTHandler) { h.OnDeviceFound(peer, name, rssi) })
}

// Connect asks BlueZ to connect the profiles peer already trusts; it does not pair.
func (b *BT) Connect(peer hal.Address) hal.Status {
	if !b.IsEnabled() {
		return hal.StatusHardwareNotReady
	}
	if st := b.links.Begin(peer); !st.OK() {
		return st
	}
	groutine.Go(context.Background(), "bluez-connect", func(context.Context) {
		if st := b.call(devicePath(b.adapterPath, peer), bluezDevice1+".Connect"); !st.OK() {
			b.links.Failed(peer)
			return
		}
		if !b.links.Established(peer).OK() {
			b.call(devicePath(b.adapterPath, peer), bluezDevice1+".Disconnect")
			b.links.Closed(peer)
		}
	})
	return hal.StatusOK
}

func (b *BT) Disconnect(peer hal.Address) hal.Status {
	if !b.links.Close(peer) {
		return hal.StatusOK
	}
	st := b.call(devicePath(b.adapterPath, peer), bluezDevice1+".Disconnect")
	b.links.Closed(peer)
	if st == hal.StatusNotFound {
		return hal.StatusOK
	}
	return st
}

func (b *BT) Send(peer hal.Address, data []byte) hal.Status {
	if len(data) == 0 {
		return hal.StatusInvalidArgument
	}
	if b.links.State(peer) != hal.LinkConnected {
		return hal.StatusHardwareNotReady
	}
	return hal.StatusUnsupported
}

func (b *BT) GetRssi(peer hal.Address, rssi *int8) hal.Status {
	r, err := property[int16](b.bus, bluezBus, devicePath(b.adapterPath, peer), bluezDevice1, "RSSI")
	if err != nil {
		if st := statusOf(err); st != hal.StatusError {
			return st
		}
		return hal.StatusNotFound
	}
	if rssi != nil {
		*rssi = int8(max(min(r, 127), -128))
	}
	return hal.StatusOK
}

func (b *BT) IsEnabled() bool {
	powered, err := property[bool](b.bus, bluezBus, b.adapterPath, bluezAdapter1, "Powered")
	return err == nil && powered
}

func (b *BT) SetEnabled(enabled bool) hal.Status {
	if !enabled {
		b.StopDiscovery()
		for _, peer := range b.links.Connected() {
			b.Disconnect(peer)
		}
	}
	err := b.bus.SetProperty(bluezBus, b.adapterPath, bluezAdapter1+".Powered", enabled)
	return statusOf(err)
}

func (b *BT) GetName(dst []byte) (int, hal.Status) {
	alias, err := property[string](b.bus, bluezBus, b.adapterPath, bluezAdapter1, "Alias")
	if err != nil {
		return 0, statusOf(err)
	}
	return hal.CopyOut(dst, []byte(alias))
}

func (b *BT) SetName(name string) hal.Status {
	if name == "" {
		return hal.StatusInvalidArgument
	}
	return statusOf(b.bus.SetProperty(bluezBus, b.adapterPath, bluezAdapter1+".Alias", name))
}

func (b *BT) GetAddress(addr *hal.Address) hal.Status {
	raw, err := property[string](b.bus, bluezBus, b.adapterPath, bluezAdapter1, "Address")
	if err != nil {
		return statusOf(err)
	}
	a, err := hal.ParseAddress(raw)
	if err != nil {
		return hal.StatusError
	}
	if addr != nil {
		*addr = a
	}
	return hal.StatusOK
}

// Close stops discovery and following the bus.
func (b *BT) Close() error {
	b.StopDiscovery()
	for _, stop := range b.stopWatch {
		stop()
	}
	return nil
}
