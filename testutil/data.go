package testutil

import (
	"bytes"
	"context"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// RandomBytes returns n random bytes.
func RandomBytes(t testing.TB, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("random bytes: %v", err)
	}
	return b
}

// TempFileWithData writes data to a new file in t.TempDir and returns its path.
func TempFileWithData(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

// TempPath returns a path in t.TempDir that does not exist yet.
func TempPath(t testing.TB, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

// WaitForFileSize polls path until it holds want bytes or timeout passes.
func WaitForFileSize(t testing.TB, path string, want int64, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fi, err := os.Stat(path); err == nil && fi.Size() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("file %s: %v", path, err)
	}
	t.Fatalf("file %s has %d bytes, want %d", path, fi.Size(), want)
}

// FreeUDPAddr returns a loopback address with a port that was free a moment ago.
func FreeUDPAddr(t testing.TB) string {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	addr := conn.LocalAddr().String()
	_ = conn.Close()
	return addr
}

// UDPCollector records every datagram received on a loopback socket.
type UDPCollector struct {
	conn *net.UDPConn
	mu   sync.Mutex
	data [][]byte
	done chan struct{}
}

// NewUDPCollector listens on 127.0.0.1 with an ephemeral port until the test
// ends.
func NewUDPCollector(t testing.TB) *UDPCollector {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	c := &UDPCollector{conn: conn, done: make(chan struct{})}
	go c.loop()
	t.Cleanup(func() {
		_ = conn.Close()
		<-c.done
	})
	return c
}

func (c *UDPCollector) loop() {
	defer close(c.done)
	buf := make([]byte, 65536)
	for {
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		c.mu.Lock()
		c.data = append(c.data, append([]byte(nil), buf[:n]...))
		c.mu.Unlock()
	}
}

// Addr returns the collector's host:port.
func (c *UDPCollector) Addr() string {
	return c.conn.LocalAddr().String()
}

// Datagrams returns a copy of what has been received so far.
func (c *UDPCollector) Datagrams() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.data))
	copy(out, c.data)
	return out
}

// WaitFor blocks until at least n datagrams arrived or ctx ends.
func (c *UDPCollector) WaitFor(ctx context.Context, n int) [][]byte {
	for {
		got := c.Datagrams()
		if len(got) >= n {
			return got
		}
		select {
		case <-ctx.Done():
			return got
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Concat joins chunks into one slice.
func Concat(chunks [][]byte) []byte {
	return bytes.Join(chunks, nil)
}
