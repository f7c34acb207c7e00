// Package socktune applies the control and data socket tuning the spec's
// transport section calls for — linger behavior, Nagle/cork control, and
// keepalive probe intervals — none of which net.TCPConn exposes directly.
// Tuning failures are logged and otherwise ignored, since a connection that
// can't be tuned is still perfectly usable; this mirrors how
// backend/local/fadvise_unix.go in the rclone example treats a failed
// best-effort syscall as non-fatal.
package socktune

import (
	"net"
	"time"
)

// Options describes the socket tuning to apply to an accepted connection.
type Options struct {
	// LingerSeconds, if non-negative, sets SO_LINGER so a closed connection
	// either flushes pending data for this many seconds or (if 0) resets
	// immediately instead of lingering in TIME_WAIT.
	LingerSeconds int

	// Cork, when true, batches small writes instead of sending each one as
	// its own packet (TCP_CORK on Linux, TCP_NOPUSH on BSD/Darwin).
	Cork bool

	// KeepaliveIdle is the time a connection sits idle before the first
	// keepalive probe is sent.
	KeepaliveIdle time.Duration

	// KeepaliveInterval is the time between subsequent probes.
	KeepaliveInterval time.Duration

	// KeepaliveCount is the number of unacknowledged probes before the
	// connection is considered dead.
	KeepaliveCount int
}

// Default returns the tuning the spec expects for ordinary control and data
// connections: immediate reset on close, no corking (FTP's command/response
// framing doesn't benefit from batching), and a 60s/15s/4 keepalive schedule.
func Default() Options {
	return Options{
		LingerSeconds:     0,
		Cork:              false,
		KeepaliveIdle:     60 * time.Second,
		KeepaliveInterval: 15 * time.Second,
		KeepaliveCount:    4,
	}
}

// Apply tunes conn according to opts. conn must be a *net.TCPConn; any other
// type is a no-op, since listeners that produce non-TCP conns (e.g. a
// quic-backed ListenerFactory) have nothing here to tune.
func Apply(conn net.Conn, opts Options) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	apply(tc, opts)
}

// SetCork enables or disables write corking on an already-open connection,
// for callers that want to batch a burst of small writes (e.g. a multi-line
// FEAT reply) and then flush.
func SetCork(conn net.Conn, cork bool) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	setCork(tc, cork)
}
