//go:build linux

package sendfile

import (
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

const available = true

func copyFile(dst *net.TCPConn, src *os.File, n int64) (int64, error) {
	rc, err := dst.SyscallConn()
	if err != nil {
		return 0, err
	}

	srcFd := int(src.Fd())
	offset := int64(0)
	if cur, err := src.Seek(0, io.SeekCurrent); err == nil {
		offset = cur
	}

	var sent int64
	var sendErr error
	err = rc.Control(func(dstFd uintptr) {
		remaining := int(n)
		for remaining > 0 {
			written, werr := unix.Sendfile(int(dstFd), srcFd, &offset, remaining)
			if written > 0 {
				sent += int64(written)
				remaining -= written
			}
			if werr == nil {
				if written == 0 {
					break
				}
				continue
			}
			if werr == unix.EINTR || werr == unix.EAGAIN {
				continue
			}
			sendErr = werr
			return
		}
	})
	if err != nil {
		return sent, err
	}
	if sendErr != nil {
		return sent, sendErr
	}
	// sendfile(2) advances the offset pointer we passed in, not src's own
	// file cursor, so bring the *os.File's position in sync with it in
	// case the caller reuses src afterward.
	if sent > 0 {
		_, _ = src.Seek(offset, io.SeekStart)
	}
	return sent, nil
}
