package server

import (
	"net"
	"time"

	"github.com/go-ftpd/xcryptftp/internal/socktune"
)

// Default timeout constants from §6's configuration table.
const (
	defaultControlIOTimeout  = 1 * time.Second
	defaultDataConnTimeout   = 15 * time.Second
	defaultDataIOTimeout     = 120 * time.Second
	defaultDataLinger        = 10 * time.Second
	defaultSocketBufferBytes = 1 << 20 // 1 MiB
)

// controlSocketTuning matches §4.3's control-socket profile: TCP_NODELAY on
// (control commands are small and latency-sensitive), immediate close
// (no linger needed — there's no bulk payload to drain), and a keepalive
// schedule that detects a dead peer without the 1s read timeout alone.
func controlSocketTuning() socktune.Options {
	return socktune.Options{
		LingerSeconds:     -1,
		Cork:              false,
		KeepaliveIdle:     60 * time.Second,
		KeepaliveInterval: 15 * time.Second,
		KeepaliveCount:    3,
	}
}

// dataSocketTuning matches §4.3's data-socket profile: Nagle left on (allow
// coalescing of bulk transfer writes) and a ~10s linger so the last bytes of
// a transfer flush before the socket resets.
func dataSocketTuning() socktune.Options {
	return socktune.Options{
		LingerSeconds:     int(defaultDataLinger.Seconds()),
		Cork:              false,
		KeepaliveIdle:     60 * time.Second,
		KeepaliveInterval: 10 * time.Second,
		KeepaliveCount:    3,
	}
}

// tuneControlConn applies the control-channel socket profile (§4.6's
// acceptor tuning step): TCP_NODELAY on, large send/receive buffers, and the
// socktune keepalive/linger profile.
func tuneControlConn(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.SetNoDelay(true)
	_ = tc.SetReadBuffer(defaultSocketBufferBytes)
	_ = tc.SetWriteBuffer(defaultSocketBufferBytes)
	socktune.Apply(tc, controlSocketTuning())
}

// tuneDataConn applies the data-channel socket profile (§4.3): Nagle
// coalescing left on, large buffers, and a drain-friendly linger window.
func tuneDataConn(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.SetNoDelay(false)
	_ = tc.SetReadBuffer(defaultSocketBufferBytes)
	_ = tc.SetWriteBuffer(defaultSocketBufferBytes)
	socktune.Apply(tc, dataSocketTuning())
}
