/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

// ethernet.go demultiplexes inbound frames on EtherType and encapsulates
// outbound frames with source-MAC stamping and an MTU check, grounded on
// original_source/router/ethernet.cpp.
package router

import "encoding/binary"

const ethernetHeaderLen = 14

func decodeEthernetDest(b []byte) MAC {
	var m MAC
	copy(m[:], b[0:6])
	return m
}

func decodeEthernetSrc(b []byte) MAC {
	var m MAC
	copy(m[:], b[6:12])
	return m
}

func decodeEtherType(b []byte) uint16 {
	return binary.BigEndian.Uint16(b[12:14])
}

// EthernetInput is the entry point for every frame delivered by a
// device's poll. It drops frames not addressed to this interface, then
// demultiplexes on EtherType.
func (rt *Router) EthernetInput(dev *Device, frame []byte) {
	log := rt.Log.Component("ethernet")

	if len(frame) < ethernetHeaderLen {
		log.Verbosef("short frame from %s", dev.Name)
		return
	}

	dst := decodeEthernetDest(frame)
	if dst != dev.MAC && dst != BroadcastMAC {
		return
	}

	etherType := decodeEtherType(frame)
	log.Verbosef("received ethernet frame type %#04x from %s to %s", etherType, decodeEthernetSrc(frame), dst)

	payload := frame[ethernetHeaderLen:]
	switch etherType {
	case etherTypeARP:
		rt.ARPInput(dev, payload)
	case etherTypeIP:
		rt.IPInput(dev, payload)
	default:
		log.Verbosef("unhandled ethertype %#04x from %s", etherType, dev.Name)
	}
}

// ethernetOutput prepends an Ethernet header to chain and transmits the
// flattened frame on dev. The chain is freed on every exit path.
func (rt *Router) ethernetOutput(dev *Device, dstMAC MAC, chain *Chain, etherType uint16) {
	log := rt.Log.Component("ethernet")
	defer chain.Free()

	header := make([]byte, ethernetHeaderLen)
	copy(header[0:6], dstMAC[:])
	copy(header[6:12], dev.MAC[:])
	binary.BigEndian.PutUint16(header[12:14], etherType)
	chain.AddHeader(header)

	frame, err := chain.Flatten()
	if err != nil {
		log.Errorf("frame too long for %s: %v", dev.Name, err)
		return
	}

	log.Verbosef("sending ethernet frame type %#04x from %s to %s", etherType, dev.MAC, dstMAC)
	if err := dev.Transport.Transmit(frame); err != nil {
		log.Errorf("transmit failed on %s: %v", dev.Name, err)
	}
}
