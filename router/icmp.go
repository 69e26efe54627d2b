/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

// icmp.go answers echo requests addressed to this router and generates
// the two error messages the forwarding path needs (time exceeded,
// destination/port unreachable), grounded on original_source/router/icmp.cpp.
// Errors are never rewritten by NAPT (spec.md §9): the ones this router
// generates leave through ipOutput, which does not call the NAPT engine,
// and forwarded ones are declined by Exec's pre-filter, which accepts
// only the echo request and echo reply types.
package router

import "encoding/binary"

const (
	icmpTypeDestUnreachable = 3
	icmpTypeTimeExceeded    = 11
	icmpHeaderLen           = 8

	icmpCodePortUnreachable = 3
	icmpCodeTTLExceeded     = 0
)

// ICMPInput handles an ICMP message addressed to this router. Echo
// reply is accepted and logged only; echo request is answered; every
// other type is dropped without a reply, since this router never
// generates an ICMP error in response to an ICMP message.
func (rt *Router) ICMPInput(dev *Device, src, dst uint32, payload []byte) {
	log := rt.Log.Component("icmp")
	if len(payload) < icmpHeaderLen {
		log.Verbosef("short icmp message from %s", ipToString(src))
		return
	}
	if payload[0] == icmpTypeEchoReply {
		log.Verbosef("received echo reply from %s", ipToString(src))
		return
	}
	if payload[0] != icmpTypeEchoRequest {
		log.Verbosef("unhandled icmp type %d from %s", payload[0], ipToString(src))
		return
	}
	rt.sendEchoReply(dev, src, dst, payload)
}

// sendEchoReply mirrors an echo request: same identifier, sequence and
// data, type flipped to reply, source and destination swapped.
func (rt *Router) sendEchoReply(dev *Device, src, dst uint32, request []byte) {
	log := rt.Log.Component("icmp")
	log.Verbosef("sending echo reply to %s", ipToString(src))

	reply := make([]byte, len(request))
	copy(reply, request)
	reply[0] = icmpTypeEchoReply
	reply[1] = 0
	binary.BigEndian.PutUint16(reply[2:4], 0)
	binary.BigEndian.PutUint16(reply[2:4], Checksum16(reply))

	rt.ipOutput(src, dst, NewChain(reply), ProtoICMP)
}

// icmpErrorBody builds the common "unused(4) + original IP header +
// first 8 bytes of its payload" body shared by time-exceeded and
// destination-unreachable, per RFC 792.
func icmpErrorBody(icmpType, code byte, originalPacket []byte) []byte {
	ihl := int(originalPacket[0]&0x0f) * 4
	embed := ihl + 8
	if embed > len(originalPacket) {
		embed = len(originalPacket)
	}

	body := make([]byte, icmpHeaderLen+embed)
	body[0] = icmpType
	body[1] = code
	copy(body[icmpHeaderLen:], originalPacket[:embed])
	binary.BigEndian.PutUint16(body[2:4], 0)
	binary.BigEndian.PutUint16(body[2:4], Checksum16(body))
	return body
}

// sendTimeExceeded answers a packet whose TTL expired in transit. The
// reply is sourced from the interface the expiring packet arrived on.
func (rt *Router) sendTimeExceeded(dev *Device, originalPacket []byte) {
	if dev.IP == nil {
		return
	}
	log := rt.Log.Component("icmp")
	src := decodeIPSrc(originalPacket)
	log.Verbosef("sending time exceeded to %s", ipToString(src))

	body := icmpErrorBody(icmpTypeTimeExceeded, icmpCodeTTLExceeded, originalPacket)
	rt.ipOutput(src, dev.IP.Address, NewChain(body), ProtoICMP)
}

// sendDestinationUnreachable answers a UDP datagram addressed to this
// router (spec.md §4.5: no UDP termination, so every UDP packet to a
// local address is port-unreachable).
func (rt *Router) sendDestinationUnreachable(dev *Device, originalPacket []byte) {
	if dev.IP == nil {
		return
	}
	log := rt.Log.Component("icmp")
	src := decodeIPSrc(originalPacket)
	log.Verbosef("sending destination unreachable to %s", ipToString(src))

	body := icmpErrorBody(icmpTypeDestUnreachable, icmpCodePortUnreachable, originalPacket)
	rt.ipOutput(src, dev.IP.Address, NewChain(body), ProtoICMP)
}
