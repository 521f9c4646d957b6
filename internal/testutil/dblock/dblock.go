// Package dblock serializes integration tests that share one Postgres database
// across test binaries, using a loopback listener as a cross-process mutex.
package dblock

import (
	"net"
	"os"
	"time"
)

const defaultLockAddr = "127.0.0.1:45432"

// Acquire blocks until the lock is held and returns its release func. Set
// CAMPUS_TEST_DBLOCK_ADDR when the default port is taken on the host.
func Acquire() func() {
	addr := os.Getenv("CAMPUS_TEST_DBLOCK_ADDR")
	if addr == "" {
		addr = defaultLockAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { _ = ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
