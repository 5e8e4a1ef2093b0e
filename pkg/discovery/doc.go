// Package discovery finds and advertises statlink platforms over mDNS/DNS-SD.
//
// Platforms advertise the service type _statlink._tcp in the local. domain.
// TXT records carry:
//
//	ver=<protocol version, major.minor>
//	name=<human readable platform name, optional>
//
// A client with no configured address browses for the first compatible
// platform and dials the address it advertises.
package discovery
