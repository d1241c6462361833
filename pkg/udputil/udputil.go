// Package udputil holds the datagram-level rules shared by the UDP reader and
// writer: splitting oversized chunks into datagrams and joining multicast
// groups.
package udputil

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/c360/splice/errors"
)

const (
	// DefaultThreshold is the largest chunk sent as a single datagram.
	DefaultThreshold = 1400
	// DefaultSegmentSize is the datagram size used when a chunk is split.
	DefaultSegmentSize = 1300
)

// Fragmenter splits chunks into datagrams. A chunk larger than Threshold is
// cut into consecutive SegmentSize pieces, the last one possibly shorter;
// anything else passes through untouched.
type Fragmenter struct {
	Threshold   int
	SegmentSize int
}

// DefaultFragmenter returns a Fragmenter with the default 1400/1300 sizes.
func DefaultFragmenter() Fragmenter {
	return Fragmenter{Threshold: DefaultThreshold, SegmentSize: DefaultSegmentSize}
}

// Validate checks that the segment size is positive and strictly smaller
// than the threshold.
func (f Fragmenter) Validate() error {
	if f.SegmentSize <= 0 {
		return errors.Configf("udp", "segment size must be positive, got %d", f.SegmentSize)
	}
	if f.SegmentSize >= f.Threshold {
		return errors.Configf("udp", "segment size %d must be smaller than threshold %d",
			f.SegmentSize, f.Threshold)
	}
	return nil
}

// Split returns the datagrams for chunk. The returned slices alias chunk.
func (f Fragmenter) Split(chunk []byte) [][]byte {
	if len(chunk) <= f.Threshold {
		return [][]byte{chunk}
	}
	out := make([][]byte, 0, (len(chunk)+f.SegmentSize-1)/f.SegmentSize)
	for off := 0; off < len(chunk); off += f.SegmentSize {
		end := min(off+f.SegmentSize, len(chunk))
		out = append(out, chunk[off:end])
	}
	return out
}

// Count returns how many datagrams Split would produce for a chunk of size n.
func (f Fragmenter) Count(n int) int {
	if n <= f.Threshold {
		return 1
	}
	return (n + f.SegmentSize - 1) / f.SegmentSize
}

// IsMulticast reports whether host is an IPv4 (224.0.0.0/4) or IPv6
// (ff00::/8) multicast address. Hostnames are not resolved.
func IsMulticast(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return addr.IsMulticast()
}

// JoinGroup adds conn to the multicast group on the system-chosen interface.
// Non-multicast groups are a no-op.
func JoinGroup(conn net.PacketConn, group string) error {
	addr, err := netip.ParseAddr(group)
	if err != nil || !addr.IsMulticast() {
		return nil
	}
	ga := &net.UDPAddr{IP: net.IP(addr.AsSlice())}
	if addr.Is4() || addr.Is4In6() {
		ga.IP = ga.IP.To4()
		err = ipv4.NewPacketConn(conn).JoinGroup(nil, ga)
	} else {
		err = ipv6.NewPacketConn(conn).JoinGroup(nil, ga)
	}
	if err != nil {
		return errors.WrapTransient(err, "udputil", "JoinGroup", fmt.Sprintf("join multicast group %s", group))
	}
	return nil
}

// SplitHostPort is net.SplitHostPort with the port parsed and range checked.
func SplitHostPort(hostport string) (string, int, error) {
	host, p, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, errors.WrapInvalid(errors.ErrMalformedSpec, "udputil", "SplitHostPort",
			fmt.Sprintf("parse address %q", hostport))
	}
	port, err := strconv.Atoi(p)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, errors.WrapInvalid(errors.ErrMalformedSpec, "udputil", "SplitHostPort",
			fmt.Sprintf("parse port %q", p))
	}
	return host, port, nil
}
