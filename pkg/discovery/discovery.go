// Package discovery defines the service-discovery contract types the
// core consumes and produces, per spec.md 6. Multicast-DNS advertising
// and browsing are an explicit external collaborator (spec.md 1): this
// package declares the boundary only, no `_airplay._tcp`/`_raop._tcp`
// implementation.
package discovery

import "net"

// DeviceInfo describes one discoverable AirPlay/RAOP peer, the shape
// spec.md 6 specifies for both what a Browser reports and what an
// Advertiser publishes.
type DeviceInfo struct {
	ID      string
	Name    string
	Addresses []net.IP
	Port    uint16

	// RAOPPort and RAOPFeatures are present when the peer also speaks
	// legacy RAOP (`_raop._tcp`); zero value means AirPlay-2-only.
	RAOPPort     uint16
	RAOPFeatures uint64

	// Features is the AirPlay 2 two-hex-bitfield feature mask, joined by
	// a comma in the TXT record (spec.md 6); held here as its two 32-bit
	// halves.
	FeaturesHi uint32
	FeaturesLo uint32
}

// Advertiser publishes this process's own DeviceInfo over multicast DNS.
// Implementations are an external collaborator; the core only depends
// on this interface.
type Advertiser interface {
	Advertise(info DeviceInfo) error
	Withdraw() error
}

// Browser discovers peer DeviceInfo records over multicast DNS.
type Browser interface {
	// Browse starts discovery and delivers DeviceInfo updates on the
	// returned channel until Stop is called.
	Browse() (<-chan DeviceInfo, error)
	Stop() error
}
