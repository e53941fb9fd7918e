// Package bluez implements the Bluetooth-classic capability over the BlueZ
// D-Bus API and the battery capability over UPower, both on the system bus.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/srg/nearbyhal/internal/groutine"
	"github.com/srg/nearbyhal/pkg/hal"
)

const (
	bluezBus          = "org.bluez"
	bluezAdapter1     = "org.bluez.Adapter1"
	bluezDevice1      = "org.bluez.Device1"
	dbusProperties    = "org.freedesktop.DBus.Properties"
	dbusObjectManager = "org.freedesktop.DBus.ObjectManager"
)

// Bus is the part of a D-Bus connection the backends use.
type Bus interface {
	Call(dest string, path dbus.ObjectPath, method string, args ...any) ([]any, error)
	Property(dest string, path dbus.ObjectPath, name string) (dbus.Variant, error)
	SetProperty(dest string, path dbus.ObjectPath, name string, value any) error
	// Watch delivers every signal of iface until cancel is called.
	Watch(iface string) (signals <-chan *dbus.Signal, cancel func(), err error)
}

// SystemBus is a private connection to the system bus.
type SystemBus struct {
	conn *dbus.Conn
}

func ConnectSystemBus() (*SystemBus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return &SystemBus{conn: conn}, nil
}

func (b *SystemBus) Call(dest string, path dbus.ObjectPath, method string, args ...any) ([]any, error) {
	call := b.conn.Object(dest, path).Call(method, 0, args...)
	if call.Err != nil {
		return nil, call.Err
	}
	return call.Body, nil
}

func (b *SystemBus) Property(dest string, path dbus.ObjectPath, name string) (dbus.Variant, error) {
	return b.conn.Object(dest, path).GetProperty(name)
}

func (b *SystemBus) SetProperty(dest string, path dbus.ObjectPath, name string, value any) error {
	return b.conn.Object(dest, path).SetProperty(name, dbus.MakeVariant(value))
}

func (b *SystemBus) Watch(iface string) (<-chan *dbus.Signal, func(), error) {
	if err := b.conn.AddMatchSignal(dbus.WithMatchInterface(iface)); err != nil {
		return nil, nil, fmt.Errorf("add match for %s: %w", iface, err)
	}
	ch := make(chan *dbus.Signal, 64)
	b.conn.Signal(ch)
	cancel := func() {
		b.conn.RemoveSignal(ch)
		_ = b.conn.RemoveMatchSignal(dbus.WithMatchInterface(iface))
	}
	return ch, cancel, nil
}

func (b *SystemBus) Close() error {
	return b.conn.Close()
}

// property reads a typed property.
func property[T any](bus Bus, dest string, path dbus.ObjectPath, iface, name string) (T, error) {
	var zero T
	v, err := bus.Property(dest, path, iface+"."+name)
	if err != nil {
		return zero, err
	}
	val, ok := v.Value().(T)
	if !ok {
		return zero, fmt.Errorf("property %s.%s has unexpected type %T", iface, name, v.Value())
	}
	return val, nil
}

// watch runs fn for each signal named iface.member until the returned stop is called.
func watch(bus Bus, name, iface, member string, fn func(*dbus.Signal)) (stop func(), err error) {
	signals, cancel, err := bus.Watch(iface)
	if err != nil {
		return nil, err
	}
	ctx, stopCtx := context.WithCancel(context.Background())
	done := groutine.Go(ctx, name, func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if sig.Name == iface+"."+member {
					fn(sig)
				}
			}
		}
	})
	return func() {
		stopCtx()
		<-done
		cancel()
	}, nil
}

// devicePath converts a peer to its BlueZ object path, e.g.
// /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func devicePath(adapter dbus.ObjectPath, peer hal.Address) dbus.ObjectPath {
	return adapter + "/dev_" + dbus.ObjectPath(strings.ReplaceAll(peer.String(), ":", "_"))
}

// peerOf is the inverse of devicePath.
func peerOf(adapter, path dbus.ObjectPath) (hal.Address, bool) {
	suffix, ok := strings.CutPrefix(string(path), string(adapter)+"/dev_")
	if !ok || strings.Contains(suffix, "/") {
		return 0, false
	}
	addr, err := hal.ParseAddress(strings.ReplaceAll(suffix, "_", ":"))
	return addr, err == nil
}

// statusOf maps BlueZ and D-Bus error names to a Status.
func statusOf(err error) hal.Status {
	if err == nil {
		return hal.StatusOK
	}
	var name string
	var de dbus.Error
	var pde *dbus.Error
	switch {
	case errors.As(err, &de):
		name = de.Name
	case errors.As(err, &pde):
		name = pde.Name
	default:
		return hal.StatusOf(err)
	}
	switch name {
	case "org.bluez.Error.NotReady",
		"org.bluez.Error.NotPowered",
		"org.freedesktop.DBus.Error.ServiceUnknown",
		"org.freedesktop.DBus.Error.NoReply":
		return hal.StatusHardwareNotReady
	case "org.bluez.Error.NotSupported",
		"org.bluez.Error.NotAvailable":
		return hal.StatusUnsupported
	case "org.bluez.Error.InvalidArguments":
		return hal.StatusInvalidArgument
	case "org.bluez.Error.DoesNotExist",
		"org.freedesktop.DBus.Error.UnknownObject":
		return hal.StatusNotFound
	default:
		return hal.StatusError
	}
}
