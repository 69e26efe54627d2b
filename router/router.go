/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

// router.go assembles the forwarding core and runs its cooperative
// poll loop, grounded on original_source/router/main.cpp's
// single-threaded receive-and-dispatch cycle: every registered device
// is polled in turn, non-blocking, with no timers, retries or aging.
package router

import (
	"sync/atomic"
)

// Router owns every piece of mutable forwarding state. It is driven
// exclusively by its own poll loop (single-writer single-reader), so
// none of its state carries a lock of its own.
type Router struct {
	Registry *Registry
	ARP      *ARPTable
	FIB      *FIB
	Log      *Logger

	ipID atomic.Uint32
}

// NewRouter builds an empty router: no devices, no routes, no ARP
// entries. Callers register devices and install routes (via config)
// before calling Run.
func NewRouter(log *Logger) *Router {
	return &Router{
		Registry: NewRegistry(),
		ARP:      NewARPTable(),
		FIB:      NewFIB(),
		Log:      log,
	}
}

func (rt *Router) nextIPID() uint16 {
	return uint16(rt.ipID.Add(1))
}

// PollOnce polls every registered device once, in registration order,
// delivering at most one frame per device to EthernetInput. A nil
// frame with a nil error means the device had nothing to deliver; a
// non-nil error is logged and that device is skipped for this pass.
func (rt *Router) PollOnce() {
	for _, dev := range rt.Registry.All() {
		frame, err := dev.Transport.Receive()
		if err != nil {
			rt.Log.Component("router").Errorf("receive failed on %s: %v", dev.Name, err)
			continue
		}
		if frame == nil {
			continue
		}
		rt.EthernetInput(dev, frame)
	}
}

// Run polls forever until stop is closed. It never blocks inside
// PollOnce; callers that need to yield the CPU between empty passes are
// expected to do so themselves (e.g. a short sleep), which is outside
// this core's concern.
func (rt *Router) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
			rt.PollOnce()
		}
	}
}

// ARPEntry is a snapshot of one ARPTable record, for the operator
// console's dump command.
type ARPEntry struct {
	IP  string
	MAC string
	Dev string
}

// DumpARP snapshots every resolved ARP entry.
func (rt *Router) DumpARP() []ARPEntry {
	var out []ARPEntry
	for _, bucket := range rt.ARP.buckets {
		for e := bucket; e != nil; e = e.next {
			out = append(out, ARPEntry{IP: ipToString(e.ip), MAC: e.mac.String(), Dev: e.dev.Name})
		}
	}
	return out
}

// NATFlowEntry is a snapshot of one occupied NAPT flow slot, for the
// operator console's dump command.
type NATFlowEntry struct {
	Proto      string
	GlobalPort uint16
	LocalAddr  string
	LocalPort  uint16
}

func dumpTable(proto NATProtocol, name string, table []flowEntry) []NATFlowEntry {
	var out []NATFlowEntry
	for slot, e := range table {
		if !e.used {
			continue
		}
		out = append(out, NATFlowEntry{
			Proto:      name,
			GlobalPort: slotToGlobalKey(proto, slot),
			LocalAddr:  ipToString(e.localAddr),
			LocalPort:  e.localPort,
		})
	}
	return out
}

// DumpNAT snapshots every occupied flow slot across every NAT-attached
// device in the registry.
func (rt *Router) DumpNAT() []NATFlowEntry {
	var out []NATFlowEntry
	for _, dev := range rt.Registry.All() {
		if dev.IP == nil || dev.IP.NAT == nil {
			continue
		}
		out = append(out, dumpTable(NATProtoICMP, "icmp", dev.IP.NAT.icmp[:])...)
		out = append(out, dumpTable(NATProtoTCP, "tcp", dev.IP.NAT.tcp[:])...)
		out = append(out, dumpTable(NATProtoUDP, "udp", dev.IP.NAT.udp[:])...)
	}
	return out
}
