/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

// device.go is the interface (net-device) registry: the set of known
// interfaces with their MAC, optional IP attachment, and opaque
// transport handle. Re-expressed as a registry slice + name map instead
// of an intrusive next pointer, per the design note on ownership-safe
// containers; ownership of the registry and its lookups spans the poll
// loop's lifetime.
package router

import (
	"fmt"
)

// MAC is a 6-byte Ethernet hardware address.
type MAC [6]byte

// BroadcastMAC is the Ethernet broadcast address.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

func (m MAC) Equal(other MAC) bool { return m == other }

// Transport is the raw layer-2 socket this router attaches to on each
// interface; binding it and enumerating interfaces is outside this
// core (spec.md §1). Receive must be non-blocking: it returns a nil
// frame with a nil error when there is no data to deliver ("would block"
// is not an error). A non-nil error reports any other receive failure;
// PollOnce logs it and skips that device for the pass, and does not stop
// polling, however often the error repeats.
type Transport interface {
	Transmit(frame []byte) error
	Receive() (frame []byte, err error)
}

// IPDevice is the optional IP attachment on an interface.
type IPDevice struct {
	Address   uint32
	Netmask   uint32
	Broadcast uint32
	NAT       *NATDevice
}

// DirectedBroadcast computes (address & mask) | ^mask.
func DirectedBroadcast(address, mask uint32) uint32 {
	return (address & mask) | ^mask
}

// Contains reports whether addr falls in this device's attached subnet.
func (ip *IPDevice) Contains(addr uint32) bool {
	return addr&ip.Netmask == ip.Address&ip.Netmask
}

// Device is one registered interface: name, link-layer address, optional
// IP attachment, and the transport handle used to send and receive
// frames. Devices are registered once at startup and never destroyed.
type Device struct {
	Name      string
	MAC       MAC
	Transport Transport
	IP        *IPDevice
}

// Registry is the set of known interfaces, indexed by small integer
// (slice position) instead of an intrusive linked list.
type Registry struct {
	devices []*Device
	byName  map[string]*Device
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Device)}
}

// Add registers dev. It is a startup-time operation only; a duplicate
// name is a configuration failure (spec.md §7: fatal, abort process).
func (r *Registry) Add(dev *Device) error {
	if _, exists := r.byName[dev.Name]; exists {
		return fmt.Errorf("device %q already registered", dev.Name)
	}
	r.byName[dev.Name] = dev
	r.devices = append(r.devices, dev)
	return nil
}

func (r *Registry) Get(name string) (*Device, bool) {
	dev, ok := r.byName[name]
	return dev, ok
}

// All returns every registered device, in registration order, for the
// round-robin poll loop.
func (r *Registry) All() []*Device {
	return r.devices
}

// FindLocalAddress returns the device whose IP attachment owns addr,
// either as its host address or its directed broadcast.
func (r *Registry) FindLocalAddress(addr uint32) (*Device, bool) {
	for _, dev := range r.devices {
		if dev.IP == nil {
			continue
		}
		if dev.IP.Address == addr || dev.IP.Broadcast == addr {
			return dev, true
		}
	}
	return nil, false
}

// FindSubnet returns the first device whose attached subnet contains
// addr. spec.md §9 calls out the original's "send on every matching
// device" as almost certainly meant to stop at the first match; this
// implements the corrected behavior.
func (r *Registry) FindSubnet(addr uint32) (*Device, bool) {
	for _, dev := range r.devices {
		if dev.IP == nil {
			continue
		}
		if dev.IP.Contains(addr) {
			return dev, true
		}
	}
	return nil, false
}
