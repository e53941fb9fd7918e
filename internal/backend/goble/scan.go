package goble

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/internal/groutine"
	"github.com/srg/nearbyhal/pkg/hal"
)

// task is a radio operation running until its context is canceled.
type task struct {
	cancel context.CancelFunc
	done   <-chan struct{}
	active atomic.Bool
}

func (b *BLE) startTask(name string, run func(ctx context.Context) error, onEnd func()) *task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel}
	t.active.Store(true)
	t.done = groutine.Go(ctx, name, func(ctx context.Context) {
		err := run(ctx)
		if st := NormalizeError(err); !st.OK() {
			b.logger.WithFields(logrus.Fields{"task": name, "status": st}).WithError(err).Warn("BLE task ended")
		}
		if t.active.CompareAndSwap(true, false) && onEnd != nil {
			onEnd()
		}
	})
	return t
}

// stop cancels t and waits for it; it reports whether t was still active.
func (t *task) stop() bool {
	if t == nil {
		return false
	}
	wasActive := t.active.Swap(false)
	t.cancel()
	<-t.done
	return wasActive
}

// StartScanning replaces any running scan. Nil params scan for everything.
func (b *BLE) StartScanning(params *hal.ScanParameters) hal.Status {
	radio, st := b.ready()
	if !st.OK() {
		return st
	}
	p := hal.ScanParameters{}
	if params != nil {
		p = *params
	}
	b.StopScanning()

	b.logger.WithFields(logrus.Fields{
		"services":   p.ServiceUUIDs,
		"duplicates": p.AllowDuplicates,
	}).Debug("Starting BLE scan")

	t := b.startTask("ble-scan", func(ctx context.Context) error {
		return radio.Scan(ctx, p.AllowDuplicates, func(adv ble.Advertisement) {
			b.onAdvertisement(p, adv)
		})
	}, nil)

	b.mu.Lock()
	b.scan = t
	b.mu.Unlock()
	return hal.StatusOK
}

func (b *BLE) StopScanning() hal.Status {
	b.mu.Lock()
	t := b.scan
	b.scan = nil
	b.mu.Unlock()
	t.stop()
	return hal.StatusOK
}

func (b *BLE) onAdvertisement(p hal.ScanParameters, adv ble.Advertisement) {
	if adv.Addr() == nil {
		return
	}
	peer := b.peers.Learn(adv.Addr().String())
	result := toScanResult(peer, adv)
	b.rssi.Set(peer, result.RSSI)
	if !p.Matches(result) {
		return
	}
	b.bridge.Emit(func(h hal.BLEHandler) { h.OnScanResult(result) })
}

func toScanResult(peer hal.Address, adv ble.Advertisement) hal.ScanResult {
	r := hal.ScanResult{
		Peer:             peer,
		RSSI:             clampInt8(adv.RSSI()),
		TxPower:          clampInt8(adv.TxPowerLevel()),
		LocalName:        adv.LocalName(),
		Connectable:      adv.Connectable(),
		ManufacturerData: adv.ManufacturerData(),
		ObservedAt:       time.Now(),
	}
	for _, u := range adv.Services() {
		r.ServiceUUIDs = append(r.ServiceUUIDs, u.String())
	}
	for _, sd := range adv.ServiceData() {
		r.ServiceData = append(r.ServiceData, hal.ServiceData{UUID: sd.UUID.String(), Data: sd.Data})
		// Service data implies the service even when it is not listed.
		r.ServiceUUIDs = append(r.ServiceUUIDs, sd.UUID.String())
	}
	return r
}

func clampInt8(v int) int8 {
	switch {
	case v > 127:
		return 127
	case v < -128:
		return -128
	default:
		return int8(v)
	}
}

// StartAdvertising replaces any running advertisement. Service data with a
// 16-bit UUID takes precedence over name and services.
func (b *BLE) StartAdvertising(data *hal.AdvertisementData) hal.Status {
	if data == nil {
		return hal.StatusInvalidArgument
	}
	run, err := advertiser(*data)
	if err != nil {
		b.logger.WithError(err).Debug("Rejecting advertisement")
		return hal.StatusInvalidArgument
	}
	radio, st := b.ready()
	if !st.OK() {
		return st
	}
	if !b.stopAdvertising(false) {
		b.bridge.Emit(func(h hal.BLEHandler) { h.OnAdvertisingStateChanged(true) })
	}

	t := b.startTask("ble-advertise", func(ctx context.Context) error {
		return run(ctx, radio)
	}, func() {
		b.bridge.Emit(func(h hal.BLEHandler) { h.OnAdvertisingStateChanged(false) })
	})

	b.mu.Lock()
	b.advertise = t
	b.mu.Unlock()
	return hal.StatusOK
}

func (b *BLE) StopAdvertising() hal.Status {
	b.stopAdvertising(true)
	return hal.StatusOK
}

// stopAdvertising reports whether an advertisement was running.
func (b *BLE) stopAdvertising(notify bool) bool {
	b.mu.Lock()
	t := b.advertise
	b.advertise = nil
	b.mu.Unlock()
	wasActive := t.stop()
	if wasActive && notify {
		b.bridge.Emit(func(h hal.BLEHandler) { h.OnAdvertisingStateChanged(false) })
	}
	return wasActive
}

type advertiseFunc func(ctx context.Context, r Radio) error

func advertiser(data hal.AdvertisementData) (advertiseFunc, error) {
	for _, sd := range data.ServiceData {
		u, err := ble.Parse(sd.UUID)
		if err != nil {
			return nil, err
		}
		if len(u) != 2 {
			continue
		}
		id := binary.LittleEndian.Uint16(u)
		payload := append([]byte(nil), sd.Data...)
		return func(ctx context.Context, r Radio) error {
			return r.AdvertiseServiceData16(ctx, id, payload)
		}, nil
	}

	uuids := make([]ble.UUID, 0, len(data.ServiceUUIDs))
	for _, s := range data.ServiceUUIDs {
		u, err := ble.Parse(s)
		if err != nil {
			return nil, err
		}
		uuids = append(uuids, u)
	}
	if data.LocalName == "" && len(uuids) == 0 {
		return nil, fmt.Errorf("advertisement carries nothing this radio can send")
	}
	name := data.LocalName
	return func(ctx context.Context, r Radio) error {
		return r.AdvertiseNameAndServices(ctx, name, uuids...)
	}, nil
}
