// Package udp provides the UDP writer.
//
// Chunks up to Config.Threshold bytes (1400 by default) go out as a single
// datagram. Larger chunks are cut into Config.SegmentSize pieces (1300 by
// default), so a chunk of S bytes becomes ceil(S/1300) datagrams. The
// receiving side is expected to treat each datagram independently.
//
// Datagrams leave from an ephemeral socket bound to the wildcard address of
// the destination's family. For a multicast destination the socket also
// joins the group.
package udp
