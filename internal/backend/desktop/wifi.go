package desktop

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/internal/groutine"
	"github.com/srg/nearbyhal/pkg/hal"
)

const mdnsDomain = "local."

// Host hooks, replaced in tests.
var (
	netInterfaces  = net.Interfaces
	interfaceAddrs = func(iface net.Interface) ([]net.Addr, error) { return iface.Addrs() }
	isWireless     = func(name string) bool {
		if runtime.GOOS != "linux" {
			return true
		}
		_, err := os.Stat("/sys/class/net/" + name + "/wireless")
		return err == nil
	}
	registerService = zeroconf.Register
	browseServices  = func(ctx context.Context, service string, entries chan<- *zeroconf.ServiceEntry) error {
		resolver, err := zeroconf.NewResolver()
		if err != nil {
			return fmt.Errorf("mdns resolver: %w", err)
		}
		return resolver.Browse(ctx, service, mdnsDomain, entries)
	}
)

// activeInterface returns the first up, non-loopback interface with an IPv4
// address, restricted to wireless ones when wirelessOnly is set.
func activeInterface(wirelessOnly bool) (string, net.IP, bool) {
	ifaces, err := netInterfaces()
	if err != nil {
		return "", nil, false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if wirelessOnly && !isWireless(iface.Name) {
			continue
		}
		addrs, err := interfaceAddrs(iface)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return iface.Name, ip4, true
			}
		}
	}
	return "", nil, false
}

type wifiMedium struct{}

func (wifiMedium) IsInterfaceValid() bool {
	_, _, ok := activeInterface(true)
	return ok
}

func (wifiMedium) GetInformation() hal.WifiInformation {
	name, ip, ok := activeInterface(true)
	if !ok {
		return hal.WifiInformation{}
	}
	return hal.WifiInformation{Connected: true, Interface: name, IPAddress: ip.String()}
}

// wifiLanMedium advertises and browses DNS-SD services over mDNS and opens
// plain TCP connections to them.
type wifiLanMedium struct {
	logger     *logrus.Logger
	dispatcher hal.Dispatcher

	mu       sync.Mutex
	servers  map[string]*zeroconf.Server
	browsers map[string]func()
}

func newWifiLanMedium(logger *logrus.Logger, d hal.Dispatcher) *wifiLanMedium {
	return &wifiLanMedium{
		logger:     logger,
		dispatcher: d,
		servers:    map[string]*zeroconf.Server{},
		browsers:   map[string]func(){},
	}
}

func serviceKey(info hal.NsdServiceInfo) string { return info.Name + "." + info.Type }

func (m *wifiLanMedium) IsNetworkConnected() bool {
	_, _, ok := activeInterface(false)
	return ok
}

func (m *wifiLanMedium) StartAdvertising(info hal.NsdServiceInfo) bool {
	if info.Name == "" || info.Type == "" || info.Port <= 0 {
		return false
	}
	key := serviceKey(info)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.servers[key]; ok {
		return false
	}
	txt := make([]string, 0, len(info.TXT))
	for k, v := range info.TXT {
		txt = append(txt, k+"="+v)
	}
	server, err := registerService(info.Name, info.Type, mdnsDomain, info.Port, txt, nil)
	if err != nil {
		m.logger.WithError(err).WithField("service", key).Warn("mDNS register failed")
		return false
	}
	m.servers[key] = server
	m.logger.WithFields(logrus.Fields{"service": key, "port": info.Port}).Info("mDNS advertising")
	return true
}

func (m *wifiLanMedium) StopAdvertising(info hal.NsdServiceInfo) bool {
	key := serviceKey(info)
	m.mu.Lock()
	server, ok := m.servers[key]
	delete(m.servers, key)
	m.mu.Unlock()
	if !ok {
		return false
	}
	server.Shutdown()
	return true
}

func (m *wifiLanMedium) StartDiscovery(serviceType string, onFound, onLost func(hal.NsdServiceInfo)) bool {
	if serviceType == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.browsers[serviceType]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	entries := make(chan *zeroconf.ServiceEntry)
	consumed := groutine.Go(ctx, "mdns-entries", func(ctx context.Context) {
		for {
			var entry *zeroconf.ServiceEntry
			select {
			case <-ctx.Done():
				return
			case e, ok := <-entries:
				if !ok {
					return
				}
				entry = e
			}
			deliver := onFound
			if entry.TTL == 0 {
				deliver = onLost
			}
			if deliver == nil {
				continue
			}
			info := toServiceInfo(entry)
			m.dispatcher.Dispatch(func() { deliver(info) })
		}
	})
	if err := browseServices(ctx, serviceType, entries); err != nil {
		cancel()
		m.logger.WithError(err).WithField("service_type", serviceType).Warn("mDNS browse failed")
		return false
	}
	m.browsers[serviceType] = func() {
		cancel()
		<-consumed
	}
	return true
}

func (m *wifiLanMedium) StopDiscovery(serviceType string) bool {
	m.mu.Lock()
	stop, ok := m.browsers[serviceType]
	delete(m.browsers, serviceType)
	m.mu.Unlock()
	if ok {
		stop()
	}
	return ok
}

func (m *wifiLanMedium) ConnectToService(ctx context.Context, info hal.NsdServiceInfo) (net.Conn, error) {
	if info.IPAddress == "" || info.Port <= 0 {
		return nil, fmt.Errorf("service %s has no address: %w", serviceKey(info), hal.ErrInvalidArgument)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", net.JoinHostPort(info.IPAddress, strconv.Itoa(info.Port)))
}

// ListenForService listens on port, or on a free port when port is 0.
func (m *wifiLanMedium) ListenForService(port int) (net.Listener, error) {
	return net.Listen("tcp", ":"+strconv.Itoa(port))
}

func toServiceInfo(entry *zeroconf.ServiceEntry) hal.NsdServiceInfo {
	info := hal.NsdServiceInfo{
		Name: entry.Instance,
		Type: entry.Service,
		Port: entry.Port,
		TXT:  map[string]string{},
	}
	if len(entry.AddrIPv4) > 0 {
		info.IPAddress = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		info.IPAddress = entry.AddrIPv6[0].String()
	}
	for _, t := range entry.Text {
		if k, v, ok := strings.Cut(t, "="); ok {
			info.TXT[k] = v
		}
	}
	return info
}
