/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

// napt.go is the stateful NAPT (port/identifier overload) engine,
// grounded file-for-file on original_source/router/napt.cpp and
// napt.h: fixed flow-entry arrays per protocol, the global port for a
// TCP/UDP slot is NAT_GLOBAL_PORT_MIN plus the slot index, incoming
// lookup is O(1) by that index, outgoing lookup is a linear scan (or
// first-free-slot allocation) by local address and port.
package router

import "encoding/binary"

// NATProtocol selects which flow table Exec consults.
type NATProtocol int

const (
	NATProtoICMP NATProtocol = iota
	NATProtoTCP
	NATProtoUDP
)

// natProtocolFor maps an IP protocol number to the NAPT engine's
// selector. Only these three carry translatable flow state; everything
// else is not NAPT-eligible.
func natProtocolFor(ipProto uint8) (NATProtocol, bool) {
	switch ipProto {
	case ProtoICMP:
		return NATProtoICMP, true
	case ProtoTCP:
		return NATProtoTCP, true
	case ProtoUDP:
		return NATProtoUDP, true
	default:
		return 0, false
	}
}

// Direction distinguishes a flow crossing the inside->outside boundary
// from a reply returning outside->inside.
type Direction int

const (
	DirectionOutgoing Direction = iota
	DirectionIncoming
)

const (
	natICMPSlots      = 65535
	natPortSlots       = 40000
	natGlobalPortMin   = 20000
	icmpTypeEchoReply   = 0
	icmpTypeEchoRequest = 8
)

// flowEntry is one slot in a fixed-size flow table. The slot's index is
// the translation key: for TCP/UDP the global port is
// natGlobalPortMin+index; for ICMP the global identifier is the index
// itself.
type flowEntry struct {
	used      bool
	localAddr uint32
	localPort uint16
}

// NATDevice is the NAT attachment on an inside interface's IPDevice,
// naming the outside address traffic is overloaded onto.
type NATDevice struct {
	OutsideAddr uint32
	icmp        [natICMPSlots]flowEntry
	tcp         [natPortSlots]flowEntry
	udp         [natPortSlots]flowEntry
}

// NewNATDevice attaches NAPT translating onto outsideAddr.
func NewNATDevice(outsideAddr uint32) *NATDevice {
	return &NATDevice{OutsideAddr: outsideAddr}
}

func (nat *NATDevice) table(proto NATProtocol) []flowEntry {
	switch proto {
	case NATProtoICMP:
		return nat.icmp[:]
	case NATProtoTCP:
		return nat.tcp[:]
	case NATProtoUDP:
		return nat.udp[:]
	default:
		return nil
	}
}

func globalKeyToSlot(proto NATProtocol, key uint16) (int, bool) {
	if proto == NATProtoICMP {
		if int(key) >= natICMPSlots {
			return 0, false
		}
		return int(key), true
	}
	if key < natGlobalPortMin {
		return 0, false
	}
	slot := int(key) - natGlobalPortMin
	if slot >= natPortSlots {
		return 0, false
	}
	return slot, true
}

func slotToGlobalKey(proto NATProtocol, slot int) uint16 {
	if proto == NATProtoICMP {
		return uint16(slot)
	}
	return uint16(natGlobalPortMin + slot)
}

// lookupOutgoing finds the existing entry for (localAddr, localPort), or
// allocates the first free slot for it. It returns ok=false only when
// the table is exhausted.
func lookupOutgoing(table []flowEntry, localAddr uint32, localPort uint16) (slot int, ok bool) {
	free := -1
	for i := range table {
		if !table[i].used {
			if free < 0 {
				free = i
			}
			continue
		}
		if table[i].localAddr == localAddr && table[i].localPort == localPort {
			return i, true
		}
	}
	if free < 0 {
		return 0, false
	}
	table[free] = flowEntry{used: true, localAddr: localAddr, localPort: localPort}
	return free, true
}

// Exec is nat_exec: given a forwarded IP packet, translate its
// address/port (or ICMP identifier) against nat's flow table in the
// given direction, fixing up the IP and transport-layer checksums in
// place. It returns false when the packet is not NAPT-eligible (an
// ICMP message other than echo request/reply) or, for an incoming
// packet, when no flow matches.
func (nat *NATDevice) Exec(buf []byte, proto NATProtocol, dir Direction) bool {
	ihl := int(buf[0]&0x0f) * 4
	if len(buf) < ihl+8 {
		return false
	}
	payload := buf[ihl:]
	table := nat.table(proto)

	switch proto {
	case NATProtoICMP:
		if payload[0] != icmpTypeEchoRequest && payload[0] != icmpTypeEchoReply {
			return false
		}
		return nat.execICMP(buf, ihl, table, dir)
	case NATProtoTCP, NATProtoUDP:
		return nat.execPort(buf, ihl, proto, table, dir)
	default:
		return false
	}
}

func (nat *NATDevice) execICMP(buf []byte, ihl int, table []flowEntry, dir Direction) bool {
	payload := buf[ihl:]
	if len(payload) < 8 {
		return false
	}
	oldID := binary.BigEndian.Uint16(payload[4:6])

	var slot int
	switch dir {
	case DirectionIncoming:
		s, ok := globalKeyToSlot(NATProtoICMP, oldID)
		if !ok || !table[s].used {
			return false
		}
		slot = s
	case DirectionOutgoing:
		srcAddr := decodeIPSrc(buf)
		s, ok := lookupOutgoing(table, srcAddr, oldID)
		if !ok {
			return false
		}
		slot = s
	}
	entry := table[slot]

	oldChecksum := binary.BigEndian.Uint16(payload[2:4])
	newID := slotToGlobalKey(NATProtoICMP, slot)
	if dir == DirectionIncoming {
		newID = entry.localPort
	}
	binary.BigEndian.PutUint16(payload[2:4], 0)
	binary.BigEndian.PutUint16(payload[4:6], newID)
	icmpChecksum := incrementalUpdate(oldChecksum, []uint16{oldID}, []uint16{newID})
	binary.BigEndian.PutUint16(payload[2:4], icmpChecksum)

	nat.rewriteIPAddress(buf, dir, entry)
	return true
}

func (nat *NATDevice) execPort(buf []byte, ihl int, proto NATProtocol, table []flowEntry, dir Direction) bool {
	payload := buf[ihl:]
	if len(payload) < 8 {
		return false
	}

	var checksumOff int
	if proto == NATProtoTCP {
		if len(payload) < 20 {
			return false
		}
		checksumOff = 16
	} else {
		checksumOff = 6
	}

	var portOff int
	var oldPort uint16
	var slot int
	switch dir {
	case DirectionIncoming:
		portOff = 2 // destination port
		oldPort = binary.BigEndian.Uint16(payload[2:4])
		s, ok := globalKeyToSlot(proto, oldPort)
		if !ok || !table[s].used {
			return false
		}
		slot = s
	case DirectionOutgoing:
		portOff = 0 // source port
		oldPort = binary.BigEndian.Uint16(payload[0:2])
		srcAddr := decodeIPSrc(buf)
		s, ok := lookupOutgoing(table, srcAddr, oldPort)
		if !ok {
			return false
		}
		slot = s
	}
	entry := table[slot]

	newPort := slotToGlobalKey(proto, slot)
	if dir == DirectionIncoming {
		newPort = entry.localPort
	}

	oldChecksum := binary.BigEndian.Uint16(payload[checksumOff : checksumOff+2])
	binary.BigEndian.PutUint16(payload[portOff:portOff+2], newPort)
	checksum := incrementalUpdate(oldChecksum, []uint16{oldPort}, []uint16{newPort})

	binary.BigEndian.PutUint16(payload[checksumOff:checksumOff+2], 0)
	oldAddr, newAddr := nat.addressChange(buf, dir, entry)
	checksum = incrementalUpdate(checksum, []uint16{hi16(oldAddr), lo16(oldAddr)}, []uint16{hi16(newAddr), lo16(newAddr)})
	binary.BigEndian.PutUint16(payload[checksumOff:checksumOff+2], checksum)

	nat.rewriteIPAddress(buf, dir, entry)
	return true
}

// addressChange reports the address this direction rewrites, without
// mutating buf, so the transport checksum can be updated before the IP
// header itself is rewritten.
func (nat *NATDevice) addressChange(buf []byte, dir Direction, entry flowEntry) (old, new_ uint32) {
	if dir == DirectionOutgoing {
		return decodeIPSrc(buf), nat.OutsideAddr
	}
	return decodeIPDst(buf), entry.localAddr
}

// rewriteIPAddress applies the address change and recomputes the IP
// header checksum from scratch, per spec.md §4.4's "finally, zero and
// recompute the IP header checksum."
func (nat *NATDevice) rewriteIPAddress(buf []byte, dir Direction, entry flowEntry) {
	if dir == DirectionOutgoing {
		binary.BigEndian.PutUint32(buf[12:16], nat.OutsideAddr)
	} else {
		binary.BigEndian.PutUint32(buf[16:20], entry.localAddr)
	}
	binary.BigEndian.PutUint16(buf[10:12], 0)
	binary.BigEndian.PutUint16(buf[10:12], Checksum16(buf[:20]))
}
