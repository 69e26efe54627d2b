package router

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
)

// mockTransport is an in-memory Transport: Receive drains a queue of
// pre-loaded frames, Transmit records every frame sent through it.
type mockTransport struct {
	rx  [][]byte
	tx  [][]byte
	err error
}

func (m *mockTransport) Receive() ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.rx) == 0 {
		return nil, nil
	}
	frame := m.rx[0]
	m.rx = m.rx[1:]
	return frame, nil
}

func (m *mockTransport) Transmit(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	m.tx = append(m.tx, cp)
	return nil
}

func mustMAC(s string) MAC {
	hw, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	var m MAC
	copy(m[:], hw)
	return m
}

func mustMACBytes(s string) []byte {
	m := mustMAC(s)
	return m[:]
}

func mustIPv4(s string) uint32 {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		panic("not an ipv4 address: " + s)
	}
	return binary.BigEndian.Uint32(ip)
}

func mustIPv4ToNetIP(addr uint32) net.IP {
	b := addr4(addr)
	return net.IPv4(b[0], b[1], b[2], b[3])
}

func mustNetIP(s string) net.IP {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		panic("not an ipv4 address: " + s)
	}
	return ip
}

func maskLen(bits int) uint32 {
	if bits == 0 {
		return 0
	}
	return ^uint32(0) << (32 - bits)
}

// newTestDevice builds a registered, addressed device backed by a
// mockTransport, ready to receive frames.
func newTestDevice(rt *Router, name, mac, addr string, maskBits int) (*Device, *mockTransport) {
	transport := &mockTransport{}
	dev := &Device{
		Name:      name,
		MAC:       mustMAC(mac),
		Transport: transport,
	}
	a := mustIPv4(addr)
	m := maskLen(maskBits)
	dev.IP = &IPDevice{
		Address:   a,
		Netmask:   m,
		Broadcast: DirectedBroadcast(a, m),
	}
	if err := rt.Registry.Add(dev); err != nil {
		panic(err)
	}
	rt.FIB.Insert(&Route{Type: RouteConnected, Dev: dev, Prefix: a & m, PrefixLen: uint8(maskBits)})
	return dev, transport
}

func newTestRouter() *Router {
	return NewRouter(NewLogger(logrus.PanicLevel))
}

// buildEthernetIPv4ICMPEcho serializes a full Ethernet+IPv4+ICMP echo
// frame with gopacket's SerializeLayers.
func buildEthernetIPv4ICMPEcho(srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP net.IP, id, seq uint16, isRequest bool, payload []byte) []byte {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	var icmpType uint8 = layers.ICMPv4TypeEchoRequest
	if !isRequest {
		icmpType = layers.ICMPv4TypeEchoReply
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(icmpType, 0),
		Id:       id,
		Seq:      seq,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, icmp, gopacket.Payload(payload)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// buildEthernetARP serializes a full Ethernet+ARP frame.
func buildEthernetARP(op uint16, srcMAC, dstMAC net.HardwareAddr, senderIP, targetIP net.IP, senderMAC, targetMAC net.HardwareAddr) []byte {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         op,
		SourceHwAddress:   senderMAC,
		SourceProtAddress: senderIP.To4(),
		DstHwAddress:      targetMAC,
		DstProtAddress:    targetIP.To4(),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, arp); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
