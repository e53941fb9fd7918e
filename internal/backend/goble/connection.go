package goble

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/srg/nearbyhal/internal/groutine"
	"github.com/srg/nearbyhal/pkg/hal"
)

// connection is an established GATT link to one peer.
type connection struct {
	link    Link
	data    *ble.Characteristic
	limiter *rate.Limiter
	writeMu sync.Mutex
}

// Connect starts dialing peer and returns once the attempt is under way.
// The outcome is reported through OnConnectionStateChanged.
func (b *BLE) Connect(peer hal.Address) hal.Status {
	radio, st := b.ready()
	if !st.OK() {
		return st
	}
	if st := b.links.Begin(peer); !st.OK() {
		return st
	}
	raw := b.peers.RadioAddr(peer)
	groutine.Go(context.Background(), "ble-dial", func(ctx context.Context) {
		b.dial(ctx, radio, peer, raw)
	})
	return hal.StatusOK
}

func (b *BLE) dial(ctx context.Context, radio Radio, peer hal.Address, raw string) {
	log := b.logger.WithFields(logrus.Fields{"peer": peer, "address": raw})
	log.Debug("Dialing BLE device...")

	dialCtx, cancel := context.WithTimeout(ctx, b.cfg.DialTimeout)
	defer cancel()
	l, err := radio.Dial(dialCtx, ble.NewAddr(raw))
	if err != nil {
		log.WithError(err).WithField("status", NormalizeError(err)).Warn("BLE dial failed")
		b.links.Failed(peer)
		return
	}

	conn := &connection{
		link:    l,
		limiter: rate.NewLimiter(rate.Every(b.cfg.WriteInterval), 1),
	}
	if b.cfg.WriteInterval == 0 {
		conn.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	b.attachData(log, peer, conn)

	b.conns.Set(peer, conn)
	if !b.links.Established(peer).OK() {
		// Disconnect raced the dial.
		b.conns.Del(peer)
		if err := l.CancelConnection(); err != nil {
			log.WithError(err).Debug("Cancel after aborted dial failed")
		}
		b.links.Closed(peer)
		return
	}
	log.Info("BLE link established")

	groutine.Go(context.Background(), "ble-link-monitor", func(context.Context) {
		<-l.Disconnected()
		if current, ok := b.conns.Get(peer); ok && current == conn {
			b.conns.Del(peer)
			b.links.Closed(peer)
			log.Info("BLE link lost")
		}
	})
}

// attachData locates the data characteristic and subscribes to it when it notifies.
func (b *BLE) attachData(log *logrus.Entry, peer hal.Address, conn *connection) {
	if len(b.dataChar) == 0 {
		return
	}
	profile, err := conn.link.DiscoverProfile(true)
	if err != nil {
		log.WithError(err).Warn("GATT discovery failed")
		return
	}
	c := findDataCharacteristic(profile, b.dataService, b.dataChar)
	if c == nil {
		log.WithField("characteristic", b.dataChar.String()).Debug("Peer has no data characteristic")
		return
	}
	conn.data = c
	if c.Property&(ble.CharNotify|ble.CharIndicate) == 0 {
		return
	}
	indicate := c.Property&ble.CharNotify == 0
	err = conn.link.Subscribe(c, indicate, func(p []byte) {
		payload := append([]byte(nil), p...)
		b.bridge.Emit(func(h hal.BLEHandler) { h.OnDataReceived(peer, payload) })
	})
	if err != nil {
		log.WithError(err).Warn("Subscribing to data characteristic failed")
	}
}

// findDataCharacteristic looks for char under service, or under any service
// when service is empty.
func findDataCharacteristic(profile *ble.Profile, service, char ble.UUID) *ble.Characteristic {
	for _, svc := range profile.Services {
		if len(service) > 0 && !svc.UUID.Equal(service) {
			continue
		}
		for _, c := range svc.Characteristics {
			if c.UUID.Equal(char) {
				return c
			}
		}
	}
	return nil
}

// Disconnect tears down peer's link; a peer that is not connected is OK.
func (b *BLE) Disconnect(peer hal.Address) hal.Status {
	if !b.links.Close(peer) {
		return hal.StatusOK
	}
	if conn, ok := b.conns.Get(peer); ok {
		b.conns.Del(peer)
		if err := conn.link.CancelConnection(); err != nil {
			b.logger.WithError(err).WithField("peer", peer).Debug("CancelConnection failed")
		}
	}
	b.links.Closed(peer)
	return hal.StatusOK
}

// Send writes data to peer's data characteristic in chunks paced by the
// configured write interval. It blocks until the last chunk is written.
func (b *BLE) Send(peer hal.Address, data []byte) hal.Status {
	if len(data) == 0 {
		return hal.StatusInvalidArgument
	}
	conn, ok := b.conns.Get(peer)
	if !ok || b.links.State(peer) != hal.LinkConnected {
		return hal.StatusHardwareNotReady
	}
	if conn.data == nil {
		return hal.StatusUnsupported
	}
	noRsp := conn.data.Property&ble.CharWriteNR != 0

	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()
	for len(data) > 0 {
		n := min(len(data), b.cfg.WriteChunk)
		if err := conn.limiter.Wait(context.Background()); err != nil {
			return hal.StatusError
		}
		if err := conn.link.WriteCharacteristic(conn.data, data[:n], noRsp); err != nil {
			b.logger.WithError(err).WithField("peer", peer).Warn("BLE write failed")
			return NormalizeError(err)
		}
		data = data[n:]
	}
	return hal.StatusOK
}

// GetRssi reads the live RSSI of a connected peer, or the last advertised
// RSSI of a scanned one.
func (b *BLE) GetRssi(peer hal.Address, rssi *int8) hal.Status {
	var v int8
	if conn, ok := b.conns.Get(peer); ok {
		v = clampInt8(conn.link.ReadRSSI())
	} else if cached, ok := b.rssi.Get(peer); ok {
		v = cached
	} else {
		return hal.StatusNotFound
	}
	if rssi != nil {
		*rssi = v
	}
	return hal.StatusOK
}
