package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

const (
	// ServiceType is the DNS-SD service type for stat platforms.
	ServiceType = "_statlink._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultTTL is the record TTL used when advertising.
	DefaultTTL = 120 * time.Second

	// BrowseTimeout bounds FindFirst when the caller's context has no deadline.
	BrowseTimeout = 10 * time.Second

	// MaxInstanceNameLen is the DNS-SD instance label limit.
	MaxInstanceNameLen = 63
)

var (
	ErrNotFound        = errors.New("platform not found")
	ErrMissingRequired = errors.New("missing required TXT record")
	ErrInvalidInstance = errors.New("invalid instance name")
)

// PlatformInfo is what a platform advertises.
type PlatformInfo struct {
	// Instance is the DNS-SD instance name.
	Instance string

	Port    uint16
	Version string
	Name    string
}

// PlatformService is a platform found by browsing.
type PlatformService struct {
	Instance  string
	Host      string
	Port      uint16
	Addresses []string
	Version   string
	Name      string
}

// Address returns a dialable host:port, preferring an IPv4 address over
// IPv6 and either over the host name.
func (s *PlatformService) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	for _, a := range s.Addresses {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			host = a
			break
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}

// Browser finds platforms.
type Browser interface {
	// Browse streams platforms until ctx is done. The channel is closed then.
	Browse(ctx context.Context) (<-chan *PlatformService, error)

	// FindFirst returns the first compatible platform.
	FindFirst(ctx context.Context) (*PlatformService, error)
}

// Advertiser publishes a platform.
type Advertiser interface {
	Advertise(ctx context.Context, info *PlatformInfo) error
	Update(info *PlatformInfo) error
	Stop() error
}

// BrowserConfig configures an MDNSBrowser.
type BrowserConfig struct {
	// Interface restricts browsing to one interface. Empty means all.
	Interface string

	// Timeout bounds FindFirst. Zero means BrowseTimeout.
	Timeout time.Duration

	// ProtocolVersion is the local version; platforms with a different
	// major version are skipped. Empty accepts any version.
	ProtocolVersion string
}

// AdvertiserConfig configures an MDNSAdvertiser.
type AdvertiserConfig struct {
	Interface string
	TTL       time.Duration
}
