package discovery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/statlink/statlink-go/pkg/version"
)

const (
	TXTKeyVersion = "ver"
	TXTKeyName    = "name"
)

// TXTRecordMap holds TXT key/value pairs.
type TXTRecordMap map[string]string

// EncodePlatformTXT builds the TXT records for info.
func EncodePlatformTXT(info *PlatformInfo) TXTRecordMap {
	txt := TXTRecordMap{TXTKeyVersion: info.Version}
	if info.Name != "" {
		txt[TXTKeyName] = info.Name
	}
	return txt
}

// DecodePlatformTXT parses platform TXT records.
func DecodePlatformTXT(txt TXTRecordMap) (version, name string, err error) {
	v, ok := txt[TXTKeyVersion]
	if !ok || v == "" {
		return "", "", fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	return v, txt[TXTKeyName], nil
}

// TXTRecordsToStrings renders records as sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	out := make([]string, 0, len(txt))
	for k, v := range txt {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// StringsToTXTRecords parses "key=value" strings. Keys are case-insensitive
// per RFC 6763 and are lower-cased; entries without '=' are ignored.
func StringsToTXTRecords(records []string) TXTRecordMap {
	txt := make(TXTRecordMap, len(records))
	for _, r := range records {
		k, v, ok := strings.Cut(r, "=")
		if !ok || k == "" {
			continue
		}
		txt[strings.ToLower(k)] = v
	}
	return txt
}

// Compatible reports whether a platform advertising remote can serve a
// client speaking local.
func Compatible(local, remote string) bool {
	if local == "" {
		return true
	}
	return version.Compatible(local, remote)
}

// ValidateInstance checks a DNS-SD instance label.
func ValidateInstance(name string) error {
	if name == "" || len(name) > MaxInstanceNameLen {
		return fmt.Errorf("%w: %q", ErrInvalidInstance, name)
	}
	return nil
}
