/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

// ipv4.go is the IPv4 layer: input classification, local delivery,
// FIB-driven forwarding with TTL and checksum maintenance, and output
// encapsulation with route lookup. Local-delivery dispatch and
// encapsulate-output are grounded on original_source/router/ip.cpp;
// FIB-driven forwarding (ip.cpp predates the FIB) follows spec.md §4.3.
package router

import (
	"encoding/binary"

	"golang.org/x/net/ipv4"
)

// IP protocol numbers, shared with the NAPT engine's protocol selector.
const (
	ProtoICMP = 1
	ProtoTCP  = 6
	ProtoUDP  = 17
)

const ipAddressLimitedBroadcast = 0xffffffff

func decodeIPTotalLen(b []byte) uint16 { return binary.BigEndian.Uint16(b[2:4]) }
func decodeIPProto(b []byte) uint8     { return b[9] }
func decodeIPTTL(b []byte) uint8       { return b[8] }
func decodeIPSrc(b []byte) uint32      { return binary.BigEndian.Uint32(b[12:16]) }
func decodeIPDst(b []byte) uint32      { return binary.BigEndian.Uint32(b[16:20]) }

// IPInput is ip_input: validate, optionally translate an inbound NAPT
// flow, classify as local/forward, and dispatch.
func (rt *Router) IPInput(dev *Device, buf []byte) {
	log := rt.Log.Component("ipv4")

	if dev.IP == nil {
		return
	}
	if len(buf) < ipv4.HeaderLen {
		log.Verbosef("received ip packet too short from %s", dev.Name)
		return
	}
	version := buf[0] >> 4
	ihl := buf[0] & 0x0f
	if version != 4 {
		log.Verbosef("incorrect ip version from %s", dev.Name)
		return
	}
	if ihl != 5 {
		log.Verbosef("ip header option is not supported from %s", dev.Name)
		return
	}

	// Trim to the header's declared total length: an Ethernet frame may
	// carry trailing padding up to the medium's minimum frame size, which
	// must not be treated as part of the IP payload.
	total := int(decodeIPTotalLen(buf))
	if total < ipv4.HeaderLen || total > len(buf) {
		log.Verbosef("bad total length from %s, dropping", dev.Name)
		return
	}
	buf = buf[:total]

	log.Verbosef("received ip packet type %d from %s to %s", decodeIPProto(buf), ipToString(decodeIPSrc(buf)), ipToString(decodeIPDst(buf)))

	// NAPT interception: a reply addressed to some nat_device's outside
	// address, on an allocated global port/identifier, is rewritten to
	// its local destination here so that the local-address check below
	// sees the translated address and falls through to forwarding onto
	// the inside interface, rather than matching this router's own
	// outside address and being delivered locally.
	if proto, ok := natProtocolFor(decodeIPProto(buf)); ok {
		for _, candidate := range rt.Registry.All() {
			if candidate.IP == nil || candidate.IP.NAT == nil {
				continue
			}
			if candidate.IP.NAT.OutsideAddr != decodeIPDst(buf) {
				continue
			}
			candidate.IP.NAT.Exec(buf, proto, DirectionIncoming)
			break
		}
	}

	dst := decodeIPDst(buf)
	if dst == ipAddressLimitedBroadcast {
		rt.deliverLocal(dev, buf)
		return
	}
	if target, ok := rt.Registry.FindLocalAddress(dst); ok {
		rt.deliverLocal(target, buf)
		return
	}

	route := rt.FIB.Lookup(dst)
	if route == nil {
		log.Verbosef("no route to %s, dropping", ipToString(dst))
		return
	}

	ttl := decodeIPTTL(buf)
	if ttl <= 1 {
		rt.sendTimeExceeded(dev, buf)
		return
	}

	fwd := make([]byte, len(buf))
	copy(fwd, buf)
	fwd[8] = ttl - 1
	binary.BigEndian.PutUint16(fwd[10:12], 0)
	binary.BigEndian.PutUint16(fwd[10:12], Checksum16(fwd[:ipv4.HeaderLen]))

	// NAPT: a packet ingressing on the inside of a configured NAPT pair
	// has its source rewritten to the outside address before it leaves
	// this router, crossing the inside->outside boundary. A packet the
	// engine cannot translate (flow table full, or too short) is logged
	// and dropped; ICMP messages other than echo request/reply pass
	// through unchanged.
	if dev.IP.NAT != nil {
		if proto, ok := natProtocolFor(decodeIPProto(fwd)); ok {
			translated := dev.IP.NAT.Exec(fwd, proto, DirectionOutgoing)
			passThrough := proto == NATProtoICMP && len(fwd) > ipv4.HeaderLen &&
				fwd[ipv4.HeaderLen] != icmpTypeEchoRequest && fwd[ipv4.HeaderLen] != icmpTypeEchoReply
			if !translated && !passThrough {
				rt.Log.Component("napt").Errorf("cannot translate outgoing packet from %s, dropping", ipToString(decodeIPSrc(fwd)))
				return
			}
		}
	}

	chain := NewChain(fwd)
	switch route.Type {
	case RouteConnected:
		rt.outputToHost(route.Dev, dst, chain)
	case RouteNetwork:
		rt.outputToNextHop(route.NextHop, chain)
	}
}

// deliverLocal dispatches a packet addressed to this router itself by
// upper-layer protocol.
func (rt *Router) deliverLocal(dev *Device, buf []byte) {
	log := rt.Log.Component("ipv4")
	ihl := int(buf[0]&0x0f) * 4
	if ihl > len(buf) {
		return
	}
	payload := buf[ihl:]
	src := decodeIPSrc(buf)
	dst := decodeIPDst(buf)

	switch decodeIPProto(buf) {
	case ProtoICMP:
		rt.ICMPInput(dev, src, dst, payload)
	case ProtoUDP:
		rt.sendDestinationUnreachable(dev, buf)
	case ProtoTCP:
		log.Verbosef("dropping tcp to local address %s (no tcp termination)", ipToString(dst))
	default:
		log.Verbosef("unhandled ip protocol %d from %s", decodeIPProto(buf), ipToString(src))
	}
}

// ipOutput is ip_encapsulate_output: prepend a freshly built IP header
// for a locally generated packet (ICMP reply or error) and route it.
// Per spec.md §9, it stops at the first device whose subnet contains
// dst, rather than sending on every matching device.
func (rt *Router) ipOutput(dst, src uint32, chain *Chain, proto uint8) {
	log := rt.Log.Component("ipv4")

	header := make([]byte, ipv4.HeaderLen)
	header[0] = 0x45 // version 4, IHL 5 (20 bytes)
	header[1] = 0    // TOS
	binary.BigEndian.PutUint16(header[2:4], uint16(ipv4.HeaderLen+chain.Len()))
	binary.BigEndian.PutUint16(header[4:6], rt.nextIPID())
	binary.BigEndian.PutUint16(header[6:8], 0) // flags/frag offset
	header[8] = 255                            // TTL
	header[9] = proto
	binary.BigEndian.PutUint16(header[10:12], 0) // checksum, filled below
	binary.BigEndian.PutUint32(header[12:16], src)
	binary.BigEndian.PutUint32(header[16:20], dst)
	binary.BigEndian.PutUint16(header[10:12], Checksum16(header))
	chain.AddHeader(header)

	dev, ok := rt.Registry.FindSubnet(dst)
	if !ok {
		log.Errorf("no local subnet matches %s, dropping", ipToString(dst))
		chain.Free()
		return
	}

	if mac, _, found := rt.ARP.Lookup(dst); found {
		rt.ethernetOutput(dev, mac, chain, etherTypeIP)
		return
	}
	log.Verbosef("trying ip output, but no arp record to %s", ipToString(dst))
	rt.SendRequest(dev, dst)
	chain.Free()
}

// outputToHost sends a forwarded chain to dst over a connected route's
// device, resolving dst's MAC via ARP.
func (rt *Router) outputToHost(dev *Device, dst uint32, chain *Chain) {
	if mac, _, ok := rt.ARP.Lookup(dst); ok {
		rt.ethernetOutput(dev, mac, chain, etherTypeIP)
		return
	}
	rt.SendRequest(dev, dst)
	chain.Free()
}

// outputToNextHop sends a forwarded chain toward nextHop over a network
// route, resolving nextHop's MAC via ARP. On an ARP miss it consults the
// FIB for nextHop itself to find which device to emit the request on,
// and drops the payload regardless.
func (rt *Router) outputToNextHop(nextHop uint32, chain *Chain) {
	if mac, dev, ok := rt.ARP.Lookup(nextHop); ok {
		rt.ethernetOutput(dev, mac, chain, etherTypeIP)
		return
	}
	if route := rt.FIB.Lookup(nextHop); route != nil && route.Type == RouteConnected {
		rt.SendRequest(route.Dev, nextHop)
	}
	chain.Free()
}
