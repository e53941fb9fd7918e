package desktop

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/nearbyhal/internal/backend/stub"
	"github.com/srg/nearbyhal/internal/dispatch"
	"github.com/srg/nearbyhal/internal/testutils"
	"github.com/srg/nearbyhal/pkg/hal"
)

type FactoryTestSuite struct {
	suite.Suite
	helper  *testutils.TestHelper
	root    string
	bt      *stub.BT
	ble     *stub.BLE
	factory *Factory
}

func (s *FactoryTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.root = s.T().TempDir()
	d := dispatch.NewInline()
	s.bt = stub.NewBT(d, hal.MustParseAddress("00:1A:7D:DA:71:13"))
	s.ble = stub.NewBLE(d)
	s.factory = New(s.helper.Logger, Config{
		AppDataRoot:    filepath.Join(s.root, "appdata"),
		Downloads:      filepath.Join(s.root, "downloads"),
		HTTPTimeout:    time.Second,
		BreakerFails:   2,
		BreakerTimeout: time.Minute,
	}, Deps{BT: s.bt, BLE: s.ble, Battery: stub.NewBattery(d, 80)})
}

func (s *FactoryTestSuite) TestAbsentMediumsAreNil() {
	s.Nil(s.factory.CreateWifiDirectMedium())
	s.Nil(s.factory.CreateAwdlMedium())
	s.Nil(s.factory.CreateWebRtcMedium())
	s.Nil(s.factory.CreateServerSyncMedium())
	s.Nil(s.factory.CreateCredentialStorage())
}

func (s *FactoryTestSuite) TestObjectsAreNotShared() {
	a := s.factory.CreateAtomicBoolean(false)
	b := s.factory.CreateAtomicBoolean(false)
	a.Set(true)
	s.False(b.Get())

	s.NotSame(s.factory.CreateTimer(), s.factory.CreateTimer())
	s.NotSame(s.factory.CreateBluetoothAdapter(), s.factory.CreateBluetoothAdapter())
}

func (s *FactoryTestSuite) TestMediumsNeedTheirCapability() {
	f := New(s.helper.Logger, Config{AppDataRoot: s.root, Downloads: s.root}, Deps{})
	s.Nil(f.CreateBluetoothAdapter())
	s.Nil(f.CreateBluetoothClassicMedium(nil))
	s.Nil(f.CreateBleMedium(nil))
	s.False(f.CreateWifiHotspotMedium().IsInterfaceValid())
}

func (s *FactoryTestSuite) TestOutputFileCreatesDirectories() {
	path := filepath.Join(s.root, "a", "b", "c", "payload.bin")
	out, st := s.factory.CreateOutputFile(path)
	s.Require().Equal(hal.StatusOK, st)
	_, err := out.Write([]byte("hello"))
	s.Require().NoError(err)
	s.Require().NoError(out.Close())

	in, st := s.factory.CreateInputFile(path, 5)
	s.Require().Equal(hal.StatusOK, st)
	defer in.Close()
	data, err := io.ReadAll(in)
	s.Require().NoError(err)
	s.Equal("hello", string(data))
	s.Equal(int64(5), in.Size())
	s.Equal(path, in.Path())
}

func (s *FactoryTestSuite) TestOutputFileFailureIsIOError() {
	blocker := filepath.Join(s.root, "blocker")
	s.Require().NoError(os.WriteFile(blocker, nil, 0o600))

	out, st := s.factory.CreateOutputFile(filepath.Join(blocker, "sub", "file"))
	s.Nil(out)
	s.Equal(hal.StatusIOError, st)

	_, st = s.factory.CreateOutputFile("")
	s.Equal(hal.StatusInvalidArgument, st)
}

func (s *FactoryTestSuite) TestInputFileMissing() {
	_, st := s.factory.CreateInputFile(filepath.Join(s.root, "nope"), 0)
	s.Equal(hal.StatusNotFound, st)
}

func (s *FactoryTestSuite) TestPaths() {
	s.Equal(filepath.Join(s.root, "appdata", "Google", "Nearby", "Connections", "state.db"),
		s.factory.GetAppDataPath("state.db"))

	first := s.factory.GetDownloadPath("photos", "cat.jpg")
	s.Equal(filepath.Join(s.root, "downloads", "photos", "cat.jpg"), first)
	out, st := s.factory.CreateOutputFile(first)
	s.Require().Equal(hal.StatusOK, st)
	s.Require().NoError(out.Close())
	s.Equal(filepath.Join(s.root, "downloads", "photos", "cat (1).jpg"), s.factory.GetDownloadPath("photos", "cat.jpg"))

	s.Equal(filepath.Join(s.root, "custom", "passwd"), s.factory.GetCustomSavePath(filepath.Join(s.root, "custom"), "../../etc/passwd"))
}

func (s *FactoryTestSuite) TestOutputFileInDownloads() {
	out, st := s.factory.CreateOutputFileIn(filepath.Join("albums", "2026", "june"), "beach.png")
	s.Require().Equal(hal.StatusOK, st)
	s.Require().NoError(out.Close())
	s.FileExists(filepath.Join(s.root, "downloads", "albums", "2026", "june", "beach.png"))

	again, st := s.factory.CreateOutputFileIn(filepath.Join("albums", "2026", "june"), "beach.png")
	s.Require().Equal(hal.StatusOK, st)
	s.Require().NoError(again.Close())
	s.FileExists(filepath.Join(s.root, "downloads", "albums", "2026", "june", "beach (1).png"))

	escaped, st := s.factory.CreateOutputFileIn("../../outside", "x.txt")
	s.Require().Equal(hal.StatusOK, st)
	s.Require().NoError(escaped.Close())
	s.FileExists(filepath.Join(s.root, "downloads", "outside", "x.txt"))

	_, st = s.factory.CreateOutputFileIn("albums", "")
	s.Equal(hal.StatusInvalidArgument, st)
}

func (s *FactoryTestSuite) TestDeviceInfo() {
	info := s.factory.CreateDeviceInfo()
	s.Equal(hal.DeviceLaptop, info.DeviceType())
	s.Equal(s.factory.GetCurrentOS(), info.OSType())
	s.Equal(filepath.Join(s.root, "appdata", "Google", "Nearby", "Connections"), info.AppDataPath())
	s.Equal(filepath.Join(s.root, "downloads"), info.DownloadPath())
	s.NotEmpty(info.DeviceName())
}

func (s *FactoryTestSuite) TestPreferencesUnderAppData() {
	p := s.factory.CreatePreferencesManager("prefs.yaml")
	s.Require().NotNil(p)
	s.True(p.SetString("k", "v"))
	s.Require().NoError(p.Close())
	s.FileExists(s.factory.GetAppDataPath("prefs.yaml"))
}

func (s *FactoryTestSuite) TestBluetoothAdapterOverCapability() {
	adapter := s.factory.CreateBluetoothAdapter()
	s.False(adapter.IsEnabled())
	s.Equal(hal.ScanModeNone, adapter.ScanMode())
	s.True(adapter.SetStatus(true))
	s.Equal(hal.ScanModeConnectable, adapter.ScanMode())
	s.True(adapter.SetScanMode(hal.ScanModeConnectableDiscoverable))
	s.Equal(hal.ScanModeConnectableDiscoverable, adapter.ScanMode())
	s.False(adapter.SetScanMode(hal.ScanModeUnknown))

	s.Equal("", adapter.Name())
	s.True(adapter.SetName("workstation"))
	s.Equal("workstation", adapter.Name())
	s.Equal("00:1A:7D:DA:71:13", adapter.MacAddress())
}

func (s *FactoryTestSuite) TestClassicMediumDiscovery() {
	medium := s.factory.CreateBluetoothClassicMedium(s.factory.CreateBluetoothAdapter())
	var found []string
	s.Require().True(medium.StartDiscovery(func(peer hal.Address, name string) {
		found = append(found, peer.String()+"/"+name)
	}))
	s.bt.Discovered(hal.MustParseAddress("11:22:33:44:55:66"), "Speaker", -40)
	s.True(medium.StopDiscovery())
	s.bt.Discovered(hal.MustParseAddress("11:22:33:44:55:77"), "Late", -40)
	s.Equal([]string{"11:22:33:44:55:66/Speaker"}, found)
	s.Equal(hal.StatusInvalidArgument, medium.Send(hal.MustParseAddress("11:22:33:44:55:66"), nil))
}

func (s *FactoryTestSuite) TestBleMediumScanning() {
	medium := s.factory.CreateBleMedium(s.factory.CreateBluetoothAdapter())
	var results []hal.ScanResult
	s.Require().True(medium.StartScanning(hal.ScanParameters{ServiceUUIDs: []string{"fe2c"}}, func(r hal.ScanResult) {
		results = append(results, r)
	}))
	s.ble.Observe(hal.ScanResult{Peer: hal.MustParseAddress("11:22:33:44:55:66"), ServiceUUIDs: []string{"FE2C"}})
	s.ble.Observe(hal.ScanResult{Peer: hal.MustParseAddress("11:22:33:44:55:77")})
	s.Require().Len(results, 1)

	s.True(medium.StartAdvertising(hal.AdvertisementData{LocalName: "hal"}))
	s.NoError(medium.Close())
	s.ble.Observe(hal.ScanResult{Peer: hal.MustParseAddress("11:22:33:44:55:88"), ServiceUUIDs: []string{"fe2c"}})
	s.Len(results, 1)
}

func (s *FactoryTestSuite) TestSendRequest() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Echo", r.Header.Get("X-Token"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(append([]byte(r.Method+":"), body...))
	}))
	defer srv.Close()

	resp, err := s.factory.SendRequest(context.Background(), hal.WebRequest{
		URL:     srv.URL,
		Method:  "post",
		Headers: map[string]string{"X-Token": "t1"},
		Body:    []byte("ping"),
	})
	s.Require().NoError(err)
	s.Equal(http.StatusCreated, resp.StatusCode)
	s.Equal("Created", resp.StatusText)
	s.Equal("t1", resp.Headers["X-Echo"])
	s.Equal("POST:ping", string(resp.Body))

	_, err = s.factory.SendRequest(context.Background(), hal.WebRequest{})
	s.ErrorIs(err, hal.ErrInvalidArgument)
}

func (s *FactoryTestSuite) TestSendRequestBreakerOpens() {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	for range 2 {
		resp, err := s.factory.SendRequest(context.Background(), hal.WebRequest{URL: srv.URL})
		s.Require().NoError(err)
		s.Equal(http.StatusBadGateway, resp.StatusCode)
	}
	_, err := s.factory.SendRequest(context.Background(), hal.WebRequest{URL: srv.URL})
	s.ErrorContains(err, "circuit open")
	s.Equal(int32(2), hits.Load())
}

func TestSendRequestWithoutBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(testutils.NewTestHelper(t).Logger, Config{AppDataRoot: t.TempDir(), Downloads: t.TempDir(), HTTPTimeout: time.Second}, Deps{})
	for range 8 {
		resp, err := f.SendRequest(context.Background(), hal.WebRequest{URL: srv.URL})
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}
	assert.Equal(t, int32(8), hits.Load())
}

func TestFactoryTestSuite(t *testing.T) {
	suite.Run(t, new(FactoryTestSuite))
}

func TestCurrentOSDetectsChromeOS(t *testing.T) {
	if currentOS() != hal.OSLinux && currentOS() != hal.OSChromeOS {
		t.Skip("linux only")
	}
	helper := testutils.NewTestHelper(t)
	saved := lsbRelease
	t.Cleanup(func() { lsbRelease = saved })

	lsbRelease = helper.TempFile("lsb-release", "CHROMEOS_RELEASE_NAME=Chrome OS\n")
	assert.Equal(t, hal.OSChromeOS, currentOS())
	lsbRelease = filepath.Join(t.TempDir(), "missing")
	assert.Equal(t, hal.OSLinux, currentOS())
}

func TestDefaultsFillPaths(t *testing.T) {
	f := New(nil, Config{}, Deps{})
	require.NotEmpty(t, f.cfg.AppDataRoot)
	require.NotEmpty(t, f.cfg.Downloads)
}
