package goble_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/nearbyhal/internal/backend/goble"
	"github.com/srg/nearbyhal/internal/dispatch"
	"github.com/srg/nearbyhal/internal/testutils"
	"github.com/srg/nearbyhal/pkg/hal"
)

const dataChar = "fe2c1234-8366-4814-8eb0-01de32100bea"

type fakeRadio struct {
	mu          sync.Mutex
	scanHandler ble.AdvHandler
	advertised  []string
	serviceID   uint16
	payload     []byte
	link        *fakeLink
	dialErr     error
	dialed      []string
	stopped     bool
}

func (r *fakeRadio) Scan(ctx context.Context, _ bool, h ble.AdvHandler) error {
	r.mu.Lock()
	r.scanHandler = h
	r.mu.Unlock()
	<-ctx.Done()
	r.mu.Lock()
	r.scanHandler = nil
	r.mu.Unlock()
	return ctx.Err()
}

func (r *fakeRadio) AdvertiseNameAndServices(ctx context.Context, name string, _ ...ble.UUID) error {
	r.mu.Lock()
	r.advertised = append(r.advertised, name)
	r.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (r *fakeRadio) AdvertiseServiceData16(ctx context.Context, id uint16, b []byte) error {
	r.mu.Lock()
	r.serviceID = id
	r.payload = b
	r.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (r *fakeRadio) Dial(_ context.Context, addr ble.Addr) (goble.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialed = append(r.dialed, addr.String())
	if r.dialErr != nil {
		return nil, r.dialErr
	}
	return r.link, nil
}

func (r *fakeRadio) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return nil
}

func (r *fakeRadio) deliver(adv ble.Advertisement) bool {
	r.mu.Lock()
	h := r.scanHandler
	r.mu.Unlock()
	if h == nil {
		return false
	}
	h(adv)
	return true
}

func (r *fakeRadio) scanning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scanHandler != nil
}

type fakeLink struct {
	mu       sync.Mutex
	char     *ble.Characteristic
	notify   ble.NotificationHandler
	writes   [][]byte
	noRsp    []bool
	canceled bool
	gone     chan struct{}
	once     sync.Once
}

func newFakeLink(prop ble.Property) *fakeLink {
	return &fakeLink{
		char: &ble.Characteristic{UUID: ble.MustParse(dataChar), Property: prop},
		gone: make(chan struct{}),
	}
}

func (l *fakeLink) DiscoverProfile(bool) (*ble.Profile, error) {
	svc := &ble.Service{UUID: ble.UUID16(0xfe2c), Characteristics: []*ble.Characteristic{l.char}}
	return &ble.Profile{Services: []*ble.Service{svc}}, nil
}

func (l *fakeLink) WriteCharacteristic(_ *ble.Characteristic, v []byte, noRsp bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes = append(l.writes, append([]byte(nil), v...))
	l.noRsp = append(l.noRsp, noRsp)
	return nil
}

func (l *fakeLink) Subscribe(_ *ble.Characteristic, _ bool, h ble.NotificationHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = h
	return nil
}

func (l *fakeLink) ReadRSSI() int { return -42 }

func (l *fakeLink) CancelConnection() error {
	l.mu.Lock()
	l.canceled = true
	l.mu.Unlock()
	l.drop()
	return nil
}

func (l *fakeLink) Disconnected() <-chan struct{} { return l.gone }

func (l *fakeLink) drop() { l.once.Do(func() { close(l.gone) }) }

func (l *fakeLink) push(p []byte) {
	l.mu.Lock()
	h := l.notify
	l.mu.Unlock()
	h(p)
}

type BLETestSuite struct {
	suite.Suite
	helper   *testutils.TestHelper
	radio    *fakeRadio
	backend  *goble.BLE
	recorder *testutils.BLERecorder
}

func (s *BLETestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.radio = &fakeRadio{link: newFakeLink(ble.CharWriteNR | ble.CharNotify)}
	s.backend = goble.New(dispatch.NewInline(), s.helper.Logger, goble.Config{
		WriteChunk:         20,
		DataService:        "fe2c",
		DataCharacteristic: dataChar,
	}, goble.WithRadio(s.radio))
	s.recorder = testutils.NewBLERecorder()
	s.Require().Equal(hal.StatusOK, s.backend.Init(s.recorder))
}

func (s *BLETestSuite) TearDownTest() {
	s.Require().NoError(s.backend.Close())
	s.True(s.radio.stopped)
}

func (s *BLETestSuite) startScan(params *hal.ScanParameters) {
	s.Require().Equal(hal.StatusOK, s.backend.StartScanning(params))
	s.Require().True(testutils.WaitFor(time.Second, s.radio.scanning), "scan never reached the radio")
}

func (s *BLETestSuite) TestScanFiltersByService() {
	s.startScan(&hal.ScanParameters{ServiceUUIDs: []string{"FE2C"}})

	s.True(s.radio.deliver(testutils.NewAdvertisementBuilder().FromJSON(`{
		"name": "Pixel", "address": "aa:bb:cc:dd:ee:01", "rssi": -60, "services": ["fe2c"]
	}`).Build()))
	s.True(s.radio.deliver(testutils.NewAdvertisementBuilder().
		WithName("Speaker").WithAddress("aa:bb:cc:dd:ee:02").WithServices("180d").Build()))

	results := s.recorder.Results()
	s.Require().Len(results, 1)
	s.Equal(hal.MustParseAddress("AA:BB:CC:DD:EE:01"), results[0].Peer)
	s.Equal("Pixel", results[0].LocalName)
	s.Equal(int8(-60), results[0].RSSI)

	s.Equal(hal.StatusOK, s.backend.StopScanning())
	s.False(s.radio.scanning())
}

func (s *BLETestSuite) TestServiceDataImpliesService() {
	s.startScan(&hal.ScanParameters{ServiceUUIDs: []string{"fe2c"}})
	s.radio.deliver(testutils.NewAdvertisementBuilder().
		WithAddress("aa:bb:cc:dd:ee:03").WithServiceData("fe2c", []byte{1, 2}).Build())

	results := s.recorder.Results()
	s.Require().Len(results, 1)
	s.Require().Len(results[0].ServiceData, 1)
	s.Equal([]byte{1, 2}, results[0].ServiceData[0].Data)
}

func (s *BLETestSuite) TestRssiFromScanCache() {
	peer := hal.MustParseAddress("AA:BB:CC:DD:EE:04")
	var rssi int8
	s.Equal(hal.StatusNotFound, s.backend.GetRssi(peer, &rssi))

	s.startScan(nil)
	s.radio.deliver(testutils.NewAdvertisementBuilder().WithAddress(peer.String()).WithRSSI(-71).Build())

	s.Equal(hal.StatusOK, s.backend.GetRssi(peer, &rssi))
	s.Equal(int8(-71), rssi)
}

func (s *BLETestSuite) TestAdvertiseServiceData() {
	data := &hal.AdvertisementData{
		LocalName:   "ignored",
		ServiceData: []hal.ServiceData{{UUID: "fe2c", Data: []byte{0xca, 0xfe}}},
	}
	s.Require().Equal(hal.StatusOK, s.backend.StartAdvertising(data))
	s.Require().True(testutils.WaitFor(time.Second, func() bool {
		s.radio.mu.Lock()
		defer s.radio.mu.Unlock()
		return s.radio.serviceID != 0
	}))
	s.radio.mu.Lock()
	s.Equal(uint16(0xfe2c), s.radio.serviceID)
	s.Equal([]byte{0xca, 0xfe}, s.radio.payload)
	s.Empty(s.radio.advertised)
	s.radio.mu.Unlock()

	s.Equal(hal.StatusOK, s.backend.StopAdvertising())
	s.Equal([]bool{true, false}, s.recorder.AdvertisingStates())
}

func (s *BLETestSuite) TestReplacingAdvertisementKeepsItActive() {
	s.Require().Equal(hal.StatusOK, s.backend.StartAdvertising(&hal.AdvertisementData{LocalName: "first"}))
	s.Require().Equal(hal.StatusOK, s.backend.StartAdvertising(&hal.AdvertisementData{LocalName: "second"}))
	s.Require().True(testutils.WaitFor(time.Second, func() bool {
		s.radio.mu.Lock()
		defer s.radio.mu.Unlock()
		return len(s.radio.advertised) > 0 && s.radio.advertised[len(s.radio.advertised)-1] == "second"
	}))
	s.Equal([]bool{true}, s.recorder.AdvertisingStates())

	s.Equal(hal.StatusOK, s.backend.StopAdvertising())
	s.Equal([]bool{true, false}, s.recorder.AdvertisingStates())
}

func (s *BLETestSuite) TestAdvertiseRejectsEmptyPayload() {
	s.Equal(hal.StatusInvalidArgument, s.backend.StartAdvertising(nil))
	s.Equal(hal.StatusInvalidArgument, s.backend.StartAdvertising(&hal.AdvertisementData{}))
	s.Equal(hal.StatusInvalidArgument, s.backend.StartAdvertising(&hal.AdvertisementData{ServiceUUIDs: []string{"zz"}}))
	s.Empty(s.recorder.AdvertisingStates())
}

func (s *BLETestSuite) connect(peer hal.Address) {
	s.Require().Equal(hal.StatusOK, s.backend.Connect(peer))
	s.Require().True(testutils.WaitFor(time.Second, func() bool {
		links := s.recorder.Links()
		return len(links) > 0 && links[len(links)-1].State == hal.LinkConnected
	}), "link never came up")
}

func (s *BLETestSuite) TestConnectSendReceiveDisconnect() {
	peer := hal.MustParseAddress("AA:BB:CC:DD:EE:05")
	s.connect(peer)
	s.Equal(hal.StatusError, s.backend.Connect(peer))

	payload := make([]byte, 45)
	for i := range payload {
		payload[i] = byte(i)
	}
	s.Require().Equal(hal.StatusOK, s.backend.Send(peer, payload))
	link := s.radio.link
	link.mu.Lock()
	s.Require().Len(link.writes, 3)
	s.Len(link.writes[0], 20)
	s.Len(link.writes[2], 5)
	s.Equal([]bool{true, true, true}, link.noRsp)
	link.mu.Unlock()

	link.push([]byte("hello"))
	s.Require().Len(s.recorder.Data(), 1)
	s.Equal(testutils.DataEvent{Peer: peer, Data: []byte("hello")}, s.recorder.Data()[0])

	var rssi int8
	s.Equal(hal.StatusOK, s.backend.GetRssi(peer, &rssi))
	s.Equal(int8(-42), rssi)

	s.Equal(hal.StatusOK, s.backend.Disconnect(peer))
	s.True(link.canceled)
	s.Equal([]testutils.LinkEvent{
		{Peer: peer, State: hal.LinkConnecting},
		{Peer: peer, State: hal.LinkConnected},
		{Peer: peer, State: hal.LinkDisconnecting},
		{Peer: peer, State: hal.LinkDisconnected},
	}, s.recorder.Links())

	s.Equal(hal.StatusOK, s.backend.Disconnect(peer))
	s.Equal(hal.StatusHardwareNotReady, s.backend.Send(peer, payload))
}

func (s *BLETestSuite) TestDialFailureReportsDisconnected() {
	s.radio.dialErr = errors.New("connection timed out")
	peer := hal.MustParseAddress("AA:BB:CC:DD:EE:06")
	s.Require().Equal(hal.StatusOK, s.backend.Connect(peer))
	s.Require().True(testutils.WaitFor(time.Second, func() bool { return len(s.recorder.Links()) == 2 }))
	s.Equal([]testutils.LinkEvent{
		{Peer: peer, State: hal.LinkConnecting},
		{Peer: peer, State: hal.LinkDisconnected},
	}, s.recorder.Links())
	s.Equal([]string{"aa:bb:cc:dd:ee:06"}, s.radio.dialed)
}

func (s *BLETestSuite) TestRemoteDisconnect() {
	peer := hal.MustParseAddress("AA:BB:CC:DD:EE:07")
	s.connect(peer)
	s.radio.link.drop()
	s.Require().True(testutils.WaitFor(time.Second, func() bool {
		links := s.recorder.Links()
		return links[len(links)-1].State == hal.LinkDisconnected
	}))
	s.Equal(hal.StatusHardwareNotReady, s.backend.Send(peer, []byte{1}))
}

func (s *BLETestSuite) TestSendValidation() {
	peer := hal.MustParseAddress("AA:BB:CC:DD:EE:08")
	s.Equal(hal.StatusInvalidArgument, s.backend.Send(peer, nil))
	s.Equal(hal.StatusHardwareNotReady, s.backend.Send(peer, []byte{1}))
}

func (s *BLETestSuite) TestDisabledRadioRejectsCommands() {
	s.startScan(nil)
	s.Require().Equal(hal.StatusOK, s.backend.SetEnabled(false))
	s.False(s.backend.IsEnabled())
	s.False(s.radio.scanning())

	s.Equal(hal.StatusHardwareNotReady, s.backend.StartScanning(nil))
	s.Equal(hal.StatusHardwareNotReady, s.backend.Connect(hal.MustParseAddress("AA:BB:CC:DD:EE:09")))

	s.Require().Equal(hal.StatusOK, s.backend.SetEnabled(true))
	s.True(s.backend.IsEnabled())
}

func TestBLETestSuite(t *testing.T) {
	suite.Run(t, new(BLETestSuite))
}

func TestScanResultRunsOnMainLoop(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	loop := dispatch.NewLoop(helper.Logger)
	defer loop.Close()
	radio := &fakeRadio{}
	b := goble.New(loop, helper.Logger, goble.Config{}, goble.WithRadio(radio))
	defer b.Close()

	h := testutils.NewLoopScanRecorder(loop)
	require.Equal(t, hal.StatusOK, b.Init(h))
	require.Equal(t, hal.StatusOK, b.StartScanning(nil))
	require.True(t, testutils.WaitFor(time.Second, radio.scanning))

	require.True(t, radio.deliver(testutils.NewAdvertisementBuilder().
		WithName("Buds").WithAddress("aa:bb:cc:dd:ee:10").WithRSSI(-48).Build()))
	require.True(t, testutils.Drain(loop, time.Second))

	results := h.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "Buds", results[0].LocalName)
	assert.Zero(t, h.OffLoop())
}

func TestDataServiceNarrowsLookup(t *testing.T) {
	radio := &fakeRadio{link: newFakeLink(ble.CharWriteNR)}
	b := goble.New(dispatch.NewInline(), testutils.NewTestHelper(t).Logger, goble.Config{
		DataService:        "180d",
		DataCharacteristic: dataChar,
	}, goble.WithRadio(radio))
	defer b.Close()

	rec := testutils.NewBLERecorder()
	b.Init(rec)
	peer := hal.MustParseAddress("AA:BB:CC:DD:EE:11")
	require.Equal(t, hal.StatusOK, b.Connect(peer))
	require.True(t, testutils.WaitFor(time.Second, func() bool { return len(rec.Links()) == 2 }))
	assert.Equal(t, hal.LinkConnected, rec.Links()[1].State)
	assert.Equal(t, hal.StatusUnsupported, b.Send(peer, []byte{1}))
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want hal.Status
	}{
		{"nil", nil, hal.StatusOK},
		{"canceled", context.Canceled, hal.StatusOK},
		{"deadline", context.DeadlineExceeded, hal.StatusHardwareNotReady},
		{"powered off", errors.New("central manager has invalid state: is Bluetooth turned on?"), hal.StatusHardwareNotReady},
		{"busy", errors.New("device busy"), hal.StatusError},
		{"unsupported", errors.New("operation not supported"), hal.StatusUnsupported},
		{"pipe", errors.New("write: broken pipe"), hal.StatusIOError},
		{"other", errors.New("boom"), hal.StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, goble.NormalizeError(tt.err))
		})
	}
}

func TestUnavailableRadioReportsDisabled(t *testing.T) {
	saved := goble.DeviceFactory
	t.Cleanup(func() { goble.DeviceFactory = saved })
	goble.DeviceFactory = func() (ble.Device, error) { return nil, errors.New("can't init hci: no such device") }

	b := goble.New(dispatch.NewInline(), nil, goble.Config{})
	assert.False(t, b.IsEnabled())
	assert.Equal(t, hal.StatusHardwareNotReady, b.StartScanning(nil))
	assert.Equal(t, hal.StatusHardwareNotReady, b.SetEnabled(true))
	require.NoError(t, b.Close())
}
