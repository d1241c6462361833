// Package udp provides the UDP reader.
//
// # Overview
//
// The reader binds host:port when it starts and turns every received
// datagram into one chunk. Datagrams are copied out of a single receive
// buffer of Config.MaxDatagramSize bytes, so a chunk never aliases another.
// Fragmented datagrams sent by the UDP writer are not reassembled.
//
// # Multicast
//
// When host is an IPv4 (224.0.0.0/4) or IPv6 (ff00::/8) multicast address,
// the socket binds the wildcard address on the same port and joins the
// group on the system-chosen interface:
//
//	splice -reader udp://239.1.2.3:5000 -writer /tmp/capture.ts
//
// # Lifecycle
//
// The source has no natural end; the reader runs until it is stopped. Stop
// closes the socket, which unblocks the pending read.
//
// # Metrics
//
// With a metrics registry the reader exports, labelled by port:
//
//	splice_udp_input_packets_received_total
//	splice_udp_input_bytes_received_total
//	splice_udp_input_socket_errors_total
//	splice_udp_input_last_activity_timestamp
package udp
