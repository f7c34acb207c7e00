// Package sendfile implements the zero-copy RETR transfer path: handing the
// kernel a file descriptor and a socket descriptor directly, instead of
// looping bytes through a user-space buffer, the way
// internal/socktune reaches past net.TCPConn for platform syscalls that
// package offers no portable API for.
package sendfile

import (
	"errors"
	"net"
	"os"
)

// ErrUnsupported is returned when the destination or source isn't a type
// the platform's sendfile(2)-family syscall can operate on directly (e.g.
// dst isn't a *net.TCPConn, or the build has no syscall implementation).
// Callers should fall back to a regular copy loop.
var ErrUnsupported = errors.New("sendfile: unsupported connection or platform")

// Copy sends up to n bytes from src, starting at its current offset, to dst
// using the kernel's zero-copy sendfile path. It returns the number of
// bytes sent and advances src's file offset by that amount. A partial send
// followed by a retriable error (EINTR, EAGAIN) is retried transparently;
// any other error is returned along with the bytes already sent.
//
// Copy returns ErrUnsupported without sending anything if dst is not a
// *net.TCPConn or the current platform has no sendfile implementation; the
// caller should fall back to io.CopyBuffer in that case.
func Copy(dst net.Conn, src *os.File, n int64) (int64, error) {
	tc, ok := dst.(*net.TCPConn)
	if !ok {
		return 0, ErrUnsupported
	}
	return copyFile(tc, src, n)
}

// Available reports whether this build offers a real sendfile
// implementation (true on linux) as opposed to the stub that always
// returns ErrUnsupported.
func Available() bool {
	return available
}
