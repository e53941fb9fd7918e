package stub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/nearbyhal/internal/dispatch"
	"github.com/srg/nearbyhal/internal/testutils"
	"github.com/srg/nearbyhal/pkg/hal"
)

type StubTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
	d      hal.Dispatcher
}

func (s *StubTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.d = dispatch.NewInline()
}

func (s *StubTestSuite) opts() []Option {
	return []Option{WithLogger(s.helper.Logger)}
}

func (s *StubTestSuite) TestAudioDefaultsBeforeInit() {
	a := NewAudio(s.d, s.opts()...)

	s.False(a.GetEarbudLeftStatus())
	s.Equal(hal.AudioNoConnection, a.GetAudioConnectionState())
	s.False(a.OnHead())
	s.False(a.CanAcceptConnection())
	s.False(a.InFocusMode())
	s.False(a.AutoReconnected())
	s.False(a.IsSassOn())
	s.False(a.IsMultipointConfigurable())
	s.False(a.IsMultipointOn())
	s.False(a.IsOnHeadDetectionSupported())
	s.False(a.IsOnHeadDetectionEnabled())
	s.Equal(uint8(0), a.GetSwitchingPreference())
	s.Equal(hal.Address(0), a.GetActiveAudioSource())

	n, st := a.GetConnectionBitmap(nil)
	s.Equal(0, n)
	s.Equal(hal.StatusOK, st)
}

func (s *StubTestSuite) TestAudioCommandsAcceptedWithoutEffect() {
	a := NewAudio(s.d, s.opts()...)
	peer := hal.MustParseAddress("11:22:33:44:55:66")

	s.Equal(hal.StatusOK, a.SetMultipoint(peer, true))
	s.Equal(hal.StatusOK, a.SetSwitchingPreference(3))
	s.Equal(hal.StatusOK, a.SwitchActiveAudioSource(peer, 1, 0))
	s.Equal(hal.StatusOK, a.SwitchBackAudioSource(peer, 1))
	s.Equal(hal.StatusOK, a.NotifySassInitiatedConnection(peer, 0))
	s.Equal(hal.StatusOK, a.SetDropConnectionTarget(peer, 0))
	s.False(a.IsMultipointOn())
	s.Equal(uint8(0), a.GetSwitchingPreference())

	unsupported := NewAudio(s.d, WithCommandStatus(hal.StatusUnsupported))
	s.Equal(hal.StatusUnsupported, unsupported.SetMultipoint(peer, true))
}

func (s *StubTestSuite) TestAudioFeedNotifiesOnChange() {
	a := NewAudio(s.d, s.opts()...)
	h := testutils.NewAudioRecorder()
	s.Require().Equal(hal.StatusOK, a.Init(h))

	a.SetOnHead(true)
	a.SetOnHead(true)
	a.SetConnectionState(hal.AudioA2DP)
	a.SetActiveSource(7)

	s.Equal([]bool{true}, h.OnHead())
	s.Equal([]hal.AudioConnectionState{hal.AudioA2DP}, h.States())
	s.Equal([]hal.Address{7}, h.Sources())
	s.True(a.OnHead())
}

func (s *StubTestSuite) TestBatteryDefaults() {
	b := NewBattery(s.d, hal.DefaultBatteryLevel, s.opts()...)

	s.Equal(100, b.GetBatteryLevel())
	s.False(b.IsCharging())
	s.True(b.IsBatteryPresent())
	s.Equal(hal.StatusOK, b.GetBatteryInfo(nil))

	var info hal.BatteryInfo
	s.Equal(hal.StatusOK, b.GetBatteryInfo(&info))
	s.Equal(hal.BatteryInfo{Level: 100, Present: true}, info)

	s.Equal(100, NewBattery(s.d, 150).GetBatteryLevel(), "out of range level falls back to default")
}

func (s *StubTestSuite) TestBatteryUpdateReachesLatestHandlerOnly() {
	b := NewBattery(s.d, 100, s.opts()...)
	first := testutils.NewBatteryRecorder()
	second := testutils.NewBatteryRecorder()

	b.Init(first)
	b.Init(second)
	b.SetCharging(true)
	b.Update(hal.BatteryInfo{Level: 140, Charging: true, Present: true})

	s.Empty(first.Infos())
	s.Require().Len(second.Infos(), 2)
	s.True(second.Infos()[0].Charging)
	s.Equal(100, second.Infos()[1].Level, "level is clamped")
}

func (s *StubTestSuite) TestBTStateAndBuffers() {
	own := hal.MustParseAddress("00:11:22:33:44:55")
	b := NewBT(s.d, own, s.opts()...)

	s.False(b.IsEnabled())
	s.Equal(hal.StatusOK, b.SetEnabled(true))
	s.True(b.IsEnabled())

	s.Equal(hal.StatusOK, b.SetName("pixel-buds"))
	n, st := b.GetName(nil)
	s.Equal(10, n)
	s.Equal(hal.StatusOK, st)

	short := make([]byte, 4)
	n, st = b.GetName(short)
	s.Equal(10, n)
	s.Equal(hal.StatusInvalidArgument, st)

	buf := make([]byte, 32)
	n, st = b.GetName(buf)
	s.Equal(hal.StatusOK, st)
	s.Equal("pixel-buds", string(buf[:n]))

	var addr hal.Address
	s.Equal(hal.StatusOK, b.GetAddress(&addr))
	s.Equal(own, addr)
	s.Equal(hal.StatusOK, b.GetAddress(nil))
	s.Equal(hal.StatusOK, b.GetRssi(1, nil))
	s.Equal(hal.StatusInvalidArgument, b.Send(1, nil))
}

func (s *StubTestSuite) TestBTDiscoveryIdempotent() {
	b := NewBT(s.d, 0, s.opts()...)
	h := testutils.NewBTRecorder()
	b.Init(h)

	s.Equal(hal.StatusOK, b.StopDiscovery())
	b.Discovered(1, "ignored", -40)
	s.Equal(hal.StatusOK, b.StartDiscovery())
	s.Equal(hal.StatusOK, b.StartDiscovery())
	b.Discovered(2, "found", -50)
	s.Equal(hal.StatusOK, b.StopDiscovery())
	s.Equal(hal.StatusOK, b.StopDiscovery())

	s.Equal([]bool{true, false}, h.DiscoveryStates())
	s.Equal([]hal.Address{2}, h.Found())
}

func (s *StubTestSuite) TestBLEScanDeliversOncePerPeer() {
	b := NewBLE(s.d, s.opts()...)
	h := testutils.NewBLERecorder()
	s.Require().Equal(hal.StatusOK, b.Init(h))

	b.Observe(hal.ScanResult{Peer: 1})
	s.Require().Equal(hal.StatusOK, b.StartScanning(&hal.ScanParameters{ServiceUUIDs: []string{"FE2C"}}))
	b.Observe(hal.ScanResult{Peer: 2, ServiceUUIDs: []string{"fe2c"}})
	b.Observe(hal.ScanResult{Peer: 2, ServiceUUIDs: []string{"fe2c"}})
	b.Observe(hal.ScanResult{Peer: 3, ServiceUUIDs: []string{"180f"}})
	s.Equal(hal.StatusOK, b.StopScanning())
	s.Equal(hal.StatusOK, b.StopScanning())
	b.Observe(hal.ScanResult{Peer: 4, ServiceUUIDs: []string{"fe2c"}})

	results := h.Results()
	s.Require().Len(results, 1)
	s.Equal(hal.Address(2), results[0].Peer)
	s.False(results[0].ObservedAt.IsZero())
}

func (s *StubTestSuite) TestBLEScanResultRunsOnMainLoop() {
	loop := dispatch.NewLoop(s.helper.Logger)
	defer loop.Close()
	b := NewBLE(loop, s.opts()...)
	h := testutils.NewLoopScanRecorder(loop)
	s.Require().Equal(hal.StatusOK, b.Init(h))
	s.Require().Equal(hal.StatusOK, b.StartScanning(nil))

	b.Observe(hal.ScanResult{Peer: 7, RSSI: -55})
	b.Observe(hal.ScanResult{Peer: 7, RSSI: -54})
	s.Require().True(testutils.Drain(loop, time.Second))

	s.Require().Len(h.Results(), 1)
	s.Equal(hal.Address(7), h.Results()[0].Peer)
	s.Zero(h.OffLoop())
}

func (s *StubTestSuite) TestBLEAdvertising() {
	b := NewBLE(s.d, s.opts()...)
	h := testutils.NewBLERecorder()
	b.Init(h)

	s.Equal(hal.StatusInvalidArgument, b.StartAdvertising(nil))
	s.Equal(hal.StatusOK, b.StopAdvertising())
	s.Equal(hal.StatusOK, b.StartAdvertising(&hal.AdvertisementData{LocalName: "hal"}))
	s.Equal(hal.StatusOK, b.StopAdvertising())
	s.Equal([]bool{true, false}, h.AdvertisingStates())

	unsupported := NewBLE(s.d, WithCommandStatus(hal.StatusUnsupported))
	s.False(unsupported.IsEnabled())
	s.Equal(hal.StatusUnsupported, unsupported.StartScanning(nil))
	s.Equal(hal.StatusOK, unsupported.StopScanning())
}

func (s *StubTestSuite) TestSESessionRules() {
	se := NewSE(s.d, s.opts()...)
	apdu := []byte{0x00, 0xA4, 0x04, 0x00}

	_, st := se.Transmit(apdu, nil)
	s.Equal(hal.StatusHardwareNotReady, st)
	s.Equal(hal.StatusOK, se.CloseSession())

	s.Require().Equal(hal.StatusOK, se.OpenSession())
	s.Equal(hal.StatusError, se.OpenSession())

	_, st = se.Transmit([]byte{0x00}, nil)
	s.Equal(hal.StatusInvalidArgument, st)

	n, st := se.Transmit(apdu, make([]byte, 16))
	s.Equal(hal.StatusOK, st)
	s.Equal(0, n)

	s.Equal(hal.StatusOK, se.CloseSession())
	s.Equal(hal.StatusOK, se.OpenSession())
}

func TestStubTestSuite(t *testing.T) {
	suite.Run(t, new(StubTestSuite))
}

func TestPersistenceRoundTrip(t *testing.T) {
	p := NewPersistence()
	require.Equal(t, hal.StatusOK, p.Init())

	_, st := p.Read("missing")
	assert.Equal(t, hal.StatusNotFound, st)
	assert.Equal(t, hal.StatusOK, p.Delete("missing"))

	value := []byte{0xDE, 0xAD}
	require.Equal(t, hal.StatusOK, p.Write("account-key", value))
	value[0] = 0

	got, st := p.Read("account-key")
	require.Equal(t, hal.StatusOK, st)
	assert.Equal(t, []byte{0xDE, 0xAD}, got, "stored bytes are copied")

	require.Equal(t, hal.StatusOK, p.Write("account-key", []byte{1}))
	got, _ = p.Read("account-key")
	assert.Equal(t, []byte{1}, got)

	require.Equal(t, hal.StatusOK, p.Delete("account-key"))
	_, st = p.Read("account-key")
	assert.Equal(t, hal.StatusNotFound, st)

	assert.Equal(t, hal.StatusInvalidArgument, p.Write("", value))
}
