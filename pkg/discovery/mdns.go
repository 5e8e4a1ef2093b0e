package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// MDNSAdvertiser advertises one platform instance with zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewMDNSAdvertiser creates an advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	return &MDNSAdvertiser{config: config}
}

// Advertise registers info. Calling it again replaces the advertisement.
func (a *MDNSAdvertiser) Advertise(_ context.Context, info *PlatformInfo) error {
	if err := ValidateInstance(info.Instance); err != nil {
		return err
	}
	if info.Port == 0 {
		return fmt.Errorf("advertise %s: port is required", info.Instance)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(
		info.Instance,
		ServiceType,
		Domain,
		int(info.Port),
		TXTRecordsToStrings(EncodePlatformTXT(info)),
		interfaces(a.config.Interface),
		zeroconf.TTL(uint32(a.config.TTL.Seconds())),
	)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", ServiceType, err)
	}
	a.server = server
	return nil
}

// Update replaces the TXT records of the running advertisement.
func (a *MDNSAdvertiser) Update(info *PlatformInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return ErrNotFound
	}
	a.server.SetText(TXTRecordsToStrings(EncodePlatformTXT(info)))
	return nil
}

// Stop withdraws the advertisement.
func (a *MDNSAdvertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	return nil
}

// MDNSBrowser browses for platforms with zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
}

// NewMDNSBrowser creates a browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.Timeout <= 0 {
		config.Timeout = BrowseTimeout
	}
	return &MDNSBrowser{config: config}
}

// Browse streams compatible platforms as they are found.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *PlatformService, error) {
	out := make(chan *PlatformService)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	go func() {
		defer close(out)
		seen := make(map[string]bool)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc, err := fromEntry(entry)
				if err != nil || !Compatible(b.config.ProtocolVersion, svc.Version) {
					continue
				}
				// One entry per instance even when it answers on several interfaces.
				if _, found := seen[svc.Instance]; found {
					continue
				}
				seen[svc.Instance] = true
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}
			case entry, ok := <-removed:
				if ok {
					delete(seen, entry.Instance)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	return out, nil
}

// FindFirst returns the first compatible platform, bounded by the configured
// timeout.
func (b *MDNSBrowser) FindFirst(ctx context.Context) (*PlatformService, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	select {
	case svc, ok := <-results:
		if !ok {
			return nil, ErrNotFound
		}
		return svc, nil
	case <-ctx.Done():
		return nil, ErrNotFound
	}
}

func fromEntry(entry *zeroconf.ServiceEntry) (*PlatformService, error) {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return newPlatformService(entry.Instance, entry.HostName, entry.Port, entry.Text, addrs)
}

func newPlatformService(instance, host string, port int, text, addrs []string) (*PlatformService, error) {
	ver, name, err := DecodePlatformTXT(StringsToTXTRecords(text))
	if err != nil {
		return nil, err
	}
	return &PlatformService{
		Instance:  instance,
		Host:      host,
		Port:      uint16(port),
		Addresses: addrs,
		Version:   ver,
		Name:      name,
	}, nil
}

// interfaces returns nil (all interfaces) unless name resolves.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

var (
	_ Advertiser = (*MDNSAdvertiser)(nil)
	_ Browser    = (*MDNSBrowser)(nil)
)
