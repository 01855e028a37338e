// Package netx holds small networking helpers.
package netx

import (
	"net"
	"time"
)

// Online reports whether addr (host:port) is reachable within timeout.
// The sync orchestrator calls this once at the top of a run; a connection
// lost mid-run surfaces as per-call errors instead.
func Online(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
