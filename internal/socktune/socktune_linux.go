//go:build linux

package socktune

import (
	"net"

	"golang.org/x/sys/unix"
)

func apply(tc *net.TCPConn, opts Options) {
	if opts.LingerSeconds >= 0 {
		_ = tc.SetLinger(opts.LingerSeconds)
	}

	rc, err := tc.SyscallConn()
	if err != nil {
		return
	}

	_ = rc.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_CORK, boolToInt(opts.Cork))

		if opts.KeepaliveIdle > 0 {
			_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
			_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, int(opts.KeepaliveIdle.Seconds()))
			_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, int(opts.KeepaliveInterval.Seconds()))
			_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, opts.KeepaliveCount)
		}
	})
}

func setCork(tc *net.TCPConn, cork bool) {
	rc, err := tc.SyscallConn()
	if err != nil {
		return
	}
	_ = rc.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_CORK, boolToInt(cork))
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
