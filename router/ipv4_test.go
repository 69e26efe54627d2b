package router

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEchoToSelf(t *testing.T) {
	rt := newTestRouter()
	devA, transport := newTestDevice(rt, "A", "00:00:00:00:00:01", "192.168.1.1", 24)

	peerMAC := mustMAC("aa:bb:cc:dd:ee:ff")
	rt.ARP.AddOrUpdate(devA, peerMAC, mustIPv4("192.168.1.2"))

	frame := buildEthernetIPv4ICMPEcho(peerMAC[:], devA.MAC[:], mustNetIP("192.168.1.2"), mustNetIP("192.168.1.1"),
		0x1234, 1, true, []byte("ABCDEFGH"))

	rt.EthernetInput(devA, frame)

	require.Len(t, transport.tx, 1)
	reply := transport.tx[0]
	require.Equal(t, peerMAC, decodeEthernetDest(reply))

	ip := reply[ethernetHeaderLen:]
	require.Equal(t, uint8(ProtoICMP), decodeIPProto(ip))
	require.Equal(t, mustIPv4("192.168.1.1"), decodeIPSrc(ip))
	require.Equal(t, mustIPv4("192.168.1.2"), decodeIPDst(ip))
	require.Equal(t, uint16(0), Checksum16(ip[:20]))

	icmp := ip[20:]
	require.Equal(t, byte(icmpTypeEchoReply), icmp[0])
	require.Equal(t, uint16(0x1234), binary.BigEndian.Uint16(icmp[4:6]))
	require.Equal(t, uint16(1), binary.BigEndian.Uint16(icmp[6:8]))
	require.Equal(t, []byte("ABCDEFGH"), icmp[8:])
	require.Equal(t, uint16(0), Checksum16(icmp))
}

func TestForwardingDecrementsTTL(t *testing.T) {
	rt := newTestRouter()
	devA, _ := newTestDevice(rt, "A", "00:00:00:00:00:01", "192.168.1.1", 24)
	devB, transportB := newTestDevice(rt, "B", "00:00:00:00:00:02", "192.168.0.1", 24)

	nextHopMAC := mustMAC("11:22:33:44:55:66")
	rt.ARP.AddOrUpdate(devB, nextHopMAC, mustIPv4("192.168.0.2"))
	rt.FIB.Insert(&Route{Type: RouteNetwork, NextHop: mustIPv4("192.168.0.2"), Prefix: mustIPv4("192.168.2.0"), PrefixLen: 24})

	pkt := buildIPv4TCP(mustNetIP("192.168.1.2"), mustNetIP("192.168.2.5"), 64)
	frame := wrapEthernet(mustMAC("aa:aa:aa:aa:aa:aa"), devA.MAC, etherTypeIP, pkt)

	rt.EthernetInput(devA, frame)

	require.Len(t, transportB.tx, 1)
	out := transportB.tx[0]
	require.Equal(t, nextHopMAC, decodeEthernetDest(out))
	outIP := out[ethernetHeaderLen:]
	require.Equal(t, uint8(63), decodeIPTTL(outIP))
	require.Equal(t, uint16(0), Checksum16(outIP[:20]))
}

func TestForwardingTTLExceeded(t *testing.T) {
	rt := newTestRouter()
	devA, transportA := newTestDevice(rt, "A", "00:00:00:00:00:01", "192.168.1.1", 24)
	_, _ = newTestDevice(rt, "B", "00:00:00:00:00:02", "192.168.0.1", 24)
	rt.FIB.Insert(&Route{Type: RouteNetwork, NextHop: mustIPv4("192.168.0.2"), Prefix: mustIPv4("192.168.2.0"), PrefixLen: 24})

	peerMAC := mustMAC("aa:aa:aa:aa:aa:aa")
	rt.ARP.AddOrUpdate(devA, peerMAC, mustIPv4("192.168.1.2"))

	pkt := buildIPv4TCP(mustNetIP("192.168.1.2"), mustNetIP("192.168.2.5"), 1)
	frame := wrapEthernet(peerMAC, devA.MAC, etherTypeIP, pkt)

	rt.EthernetInput(devA, frame)

	require.Len(t, transportA.tx, 1)
	out := transportA.tx[0]
	outIP := out[ethernetHeaderLen:]
	require.Equal(t, uint8(ProtoICMP), decodeIPProto(outIP))
	require.Equal(t, mustIPv4("192.168.1.1"), decodeIPSrc(outIP))
	require.Equal(t, mustIPv4("192.168.1.2"), decodeIPDst(outIP))
	icmp := outIP[20:]
	require.Equal(t, byte(icmpTypeTimeExceeded), icmp[0])
	require.Equal(t, byte(icmpCodeTTLExceeded), icmp[1])
}

// buildIPv4TCP hand-builds a minimal 20-byte-header IPv4/TCP packet (no
// options), checksum filled in, for forwarding-path tests where the
// transport-layer contents are not otherwise inspected.
func buildIPv4TCP(src, dst net.IP, ttl uint8) []byte {
	buf := make([]byte, 20+20)
	buf[0] = 0x45
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(buf)))
	buf[8] = ttl
	buf[9] = ProtoTCP
	copy(buf[12:16], src.To4())
	copy(buf[16:20], dst.To4())
	binary.BigEndian.PutUint16(buf[20:22], 44444) // src port
	binary.BigEndian.PutUint16(buf[22:24], 80)    // dst port
	binary.BigEndian.PutUint16(buf[10:12], 0)
	binary.BigEndian.PutUint16(buf[10:12], Checksum16(buf[:20]))
	return buf
}

func wrapEthernet(src, dst MAC, etherType uint16, payload []byte) []byte {
	frame := make([]byte, ethernetHeaderLen+len(payload))
	copy(frame[0:6], dst[:])
	copy(frame[6:12], src[:])
	binary.BigEndian.PutUint16(frame[12:14], etherType)
	copy(frame[14:], payload)
	return frame
}
