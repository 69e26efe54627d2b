/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

// arp.go implements the ARP resolution table and the request/reply state
// machine, grounded on original_source/router/arp.cpp: a 256-bucket
// table keyed by ip % 256, each bucket the head of a singly linked
// overflow chain, overwrite-on-collision when the IP matches.
package router

import (
	"encoding/binary"
	"net/netip"
)

const (
	arpTableSize        = 256
	arpHTypeEthernet    = 1
	arpOpRequest        = 1
	arpOpReply          = 2
	arpEthernetPacketLen = 46
	etherTypeIP         = 0x0800
	etherTypeARP        = 0x0806
)

// arpEntry is one node in a bucket's overflow chain.
type arpEntry struct {
	mac  MAC
	ip   uint32
	dev  *Device
	next *arpEntry
}

// ARPTable is the fixed-size open-addressed resolution table. It is
// mutated only by the poll loop (single-writer single-reader, per
// spec.md §5), so it carries no lock. Entries never age.
type ARPTable struct {
	buckets [arpTableSize]*arpEntry
}

func NewARPTable() *ARPTable {
	return &ARPTable{}
}

func bucketIndex(ip uint32) uint32 {
	return ip % arpTableSize
}

// AddOrUpdate upserts (mac, ip, dev): overwrite the bucket head or a
// chain node whose IP already matches, otherwise append a new node.
func (t *ARPTable) AddOrUpdate(dev *Device, mac MAC, ip uint32) {
	idx := bucketIndex(ip)
	head := t.buckets[idx]

	if head == nil {
		t.buckets[idx] = &arpEntry{mac: mac, ip: ip, dev: dev}
		return
	}
	if head.ip == ip {
		head.mac, head.dev = mac, dev
		return
	}
	for e := head; e.next != nil; e = e.next {
		if e.next.ip == ip {
			e.next.mac, e.next.dev = mac, dev
			return
		}
	}
	tail := head
	for tail.next != nil {
		tail = tail.next
	}
	tail.next = &arpEntry{mac: mac, ip: ip, dev: dev}
}

// Lookup walks the bucket chain for ip, returning its entry's MAC and
// device, or ok=false if absent.
func (t *ARPTable) Lookup(ip uint32) (mac MAC, dev *Device, ok bool) {
	for e := t.buckets[bucketIndex(ip)]; e != nil; e = e.next {
		if e.ip == ip {
			return e.mac, e.dev, true
		}
	}
	return MAC{}, nil, false
}

// arpMessage is the 28-byte ARP-over-Ethernet body (sans the 18-byte pad
// the original's 46-byte ARP_ETHERNET_PACKET_LEN reserves for padding to
// Ethernet's 60-byte minimum frame).
type arpMessage struct {
	hType, pType     uint16
	hLen, pLen       uint8
	op               uint16
	senderMAC        MAC
	senderIP         uint32
	targetMAC        MAC
	targetIP         uint32
}

func encodeARP(msg arpMessage) []byte {
	buf := make([]byte, arpEthernetPacketLen)
	binary.BigEndian.PutUint16(buf[0:2], msg.hType)
	binary.BigEndian.PutUint16(buf[2:4], msg.pType)
	buf[4] = msg.hLen
	buf[5] = msg.pLen
	binary.BigEndian.PutUint16(buf[6:8], msg.op)
	copy(buf[8:14], msg.senderMAC[:])
	binary.BigEndian.PutUint32(buf[14:18], msg.senderIP)
	copy(buf[18:24], msg.targetMAC[:])
	binary.BigEndian.PutUint32(buf[24:28], msg.targetIP)
	return buf
}

func decodeARP(b []byte) arpMessage {
	var msg arpMessage
	msg.hType = binary.BigEndian.Uint16(b[0:2])
	msg.pType = binary.BigEndian.Uint16(b[2:4])
	msg.hLen = b[4]
	msg.pLen = b[5]
	msg.op = binary.BigEndian.Uint16(b[6:8])
	copy(msg.senderMAC[:], b[8:14])
	msg.senderIP = binary.BigEndian.Uint32(b[14:18])
	copy(msg.targetMAC[:], b[18:24])
	msg.targetIP = binary.BigEndian.Uint32(b[24:28])
	return msg
}

// SendRequest broadcasts an ARP request on dev for targetIP.
func (rt *Router) SendRequest(dev *Device, targetIP uint32) {
	if dev.IP == nil {
		return
	}
	log := rt.Log.Component("arp")
	log.Verbosef("sending arp request via %s for %s", dev.Name, ipToString(targetIP))

	msg := arpMessage{
		hType:     arpHTypeEthernet,
		pType:     etherTypeIP,
		hLen:      6,
		pLen:      4,
		op:        arpOpRequest,
		senderMAC: dev.MAC,
		senderIP:  dev.IP.Address,
		targetIP:  targetIP,
	}
	rt.ethernetOutput(dev, BroadcastMAC, NewChain(encodeARP(msg)), etherTypeARP)
}

// ARPInput processes an inbound ARP packet received on dev.
func (rt *Router) ARPInput(dev *Device, buf []byte) {
	log := rt.Log.Component("arp")

	if len(buf) < 28 {
		log.Verbosef("too short arp packet from %s", dev.Name)
		return
	}
	msg := decodeARP(buf)
	if msg.pType != etherTypeIP || msg.hLen != 6 || msg.pLen != 4 {
		log.Verbosef("unsupported arp parameters from %s", dev.Name)
		return
	}

	switch msg.op {
	case arpOpRequest:
		rt.arpRequestArrives(dev, msg)
	case arpOpReply:
		rt.arpReplyArrives(dev, msg)
	default:
		log.Verbosef("unhandled arp op %d from %s", msg.op, dev.Name)
	}
}

func (rt *Router) arpRequestArrives(dev *Device, req arpMessage) {
	log := rt.Log.Component("arp")
	if dev.IP == nil || dev.IP.Address != req.targetIP {
		return
	}

	log.Verbosef("sending arp reply via %s for %s", dev.Name, ipToString(req.targetIP))
	reply := arpMessage{
		hType:     arpHTypeEthernet,
		pType:     etherTypeIP,
		hLen:      6,
		pLen:      4,
		op:        arpOpReply,
		senderMAC: dev.MAC,
		senderIP:  dev.IP.Address,
		targetMAC: req.senderMAC,
		targetIP:  req.senderIP,
	}
	rt.ethernetOutput(dev, req.senderMAC, NewChain(encodeARP(reply)), etherTypeARP)
	rt.ARP.AddOrUpdate(dev, req.senderMAC, req.senderIP)
}

func (rt *Router) arpReplyArrives(dev *Device, reply arpMessage) {
	log := rt.Log.Component("arp")
	if dev.IP != nil {
		log.Verbosef("added arp table entry by arp reply (%s => %s)", ipToString(reply.senderIP), reply.senderMAC)
	}
	rt.ARP.AddOrUpdate(dev, reply.senderMAC, reply.senderIP)
}

func addr4(ip uint32) [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], ip)
	return b
}

func ipToString(ip uint32) string {
	return netip.AddrFrom4(addr4(ip)).String()
}
