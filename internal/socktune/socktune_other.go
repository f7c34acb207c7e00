//go:build !linux && !darwin

package socktune

import "net"

func apply(tc *net.TCPConn, opts Options) {
	if opts.LingerSeconds >= 0 {
		_ = tc.SetLinger(opts.LingerSeconds)
	}
	if opts.KeepaliveIdle > 0 {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(opts.KeepaliveIdle)
	}
}

func setCork(tc *net.TCPConn, cork bool) {
	_ = tc.SetNoDelay(!cork)
}
