package server

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-ftpd/xcryptftp/internal/sendfile"
)

// transferCopy moves bytes between a data connection and a local file
// through the session's rate limiter/cipher stack, using a buffer from the
// server's fixed-capacity pool (§4.8) rather than an unbounded per-transfer
// allocation. If the pool is exhausted, the transfer is refused with 426
// rather than falling back to an unlimited allocation.
func (s *session) transferCopy(dst io.Writer, src io.Reader) (int64, error) {
	buf, idx := s.server.bufPool.Acquire()
	if idx < 0 {
		return 0, errBufferPoolExhausted
	}
	defer s.server.bufPool.Release(idx)

	return io.CopyBuffer(dst, src, buf)
}

var errBufferPoolExhausted = fmt.Errorf("no transfer buffers available")

// retrieveTransfer moves a RETR'd file to the data connection, preferring
// the kernel's zero-copy sendfile path (§4.3 step 5) when it applies: no
// active session cipher, no bandwidth limiting, and both the source file
// and destination socket are plain OS handles sendfile(2) can operate on
// directly. Any other case — encryption active, a limiter configured, a
// non-regular file, or a platform build with no sendfile syscall — falls
// back to the buffer-pool copy loop, which is what applies the rate
// limiter and cipher transforms in the first place.
func (s *session) retrieveTransfer(conn net.Conn, file io.ReadWriteCloser, offset int64) (int64, error) {
	if !s.cipher.Active() && !s.rateLimitingActive() {
		if osFile, ok := file.(*os.File); ok {
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				if info, statErr := osFile.Stat(); statErr == nil {
					remaining := info.Size() - offset
					if remaining < 0 {
						remaining = 0
					}
					sent, sfErr := sendfile.Copy(tcpConn, osFile, remaining)
					if sfErr == nil {
						return sent, nil
					}
					if sfErr != sendfile.ErrUnsupported {
						return sent, sfErr
					}
				}
			}
		}
	}
	return s.transferCopy(s.rateLimitWriter(conn), file)
}

func (s *session) handleRETR(path string) {
	if !s.isLoggedIn {
		s.reply(530, "Not logged in.")
		return
	}

	offset := s.restartOffset
	s.restartOffset = 0

	if offset > 0 {
		info, err := s.fs.GetFileInfo(path)
		if err != nil || offset > info.Size() {
			s.reply(550, "Requested action not taken; invalid restart offset.")
			return
		}
	}

	file, err := s.fs.OpenFile(path, os.O_RDONLY)
	if err != nil {
		s.replyError(err)
		return
	}
	defer file.Close()

	if offset > 0 {
		seeker, ok := file.(io.Seeker)
		if !ok {
			s.reply(550, "Resume not supported for this file.")
			return
		}
		if _, err := seeker.Seek(offset, io.SeekStart); err != nil {
			s.replyError(err)
			return
		}
	}

	conn, err := s.connData()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	defer conn.Close()

	if offset > 0 {
		s.reply(150, fmt.Sprintf("Opening data connection for RETR (restarting at %d).", offset))
	} else {
		s.reply(150, "Opening data connection for RETR.")
	}

	startTime := time.Now()

	bytesTransferred, err := s.retrieveTransfer(conn, file, offset)
	if err != nil {
		s.reply(426, "Connection closed; transfer aborted.")
		return
	}
	duration := time.Since(startTime)

	s.logTransfer("RETR", path, bytesTransferred, duration)
	if s.server.metricsCollector != nil {
		s.server.metricsCollector.RecordTransfer("RETR", bytesTransferred, duration)
	}
	s.filesSent.Add(1)
	s.bytesSent.Add(bytesTransferred)

	s.reply(226, "Transfer complete.")
}

func (s *session) handleSTOR(path string) {
	if !s.isLoggedIn {
		s.reply(530, "Not logged in.")
		return
	}

	offset := s.restartOffset
	s.restartOffset = 0

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if offset > 0 {
		flags = os.O_WRONLY | os.O_CREATE
	}

	file, err := s.fs.OpenFile(path, flags)
	if err != nil {
		s.replyError(err)
		return
	}
	defer file.Close()

	if offset > 0 {
		seeker, ok := file.(io.Seeker)
		if !ok {
			s.reply(550, "Resume not supported for this file.")
			return
		}
		if _, err := seeker.Seek(offset, io.SeekStart); err != nil {
			s.replyError(err)
			return
		}
	}

	conn, err := s.connData()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	defer conn.Close()

	s.reply(150, "Opening data connection for STOR.")

	startTime := time.Now()
	src := s.rateLimitReader(conn)

	bytesTransferred, err := s.transferCopy(file, src)
	if err != nil {
		s.reply(426, "Connection closed; transfer aborted.")
		return
	}
	duration := time.Since(startTime)

	s.logTransfer("STOR", path, bytesTransferred, duration)
	if s.server.metricsCollector != nil {
		s.server.metricsCollector.RecordTransfer("STOR", bytesTransferred, duration)
	}
	s.filesReceived.Add(1)
	s.bytesReceived.Add(bytesTransferred)

	s.reply(226, "Transfer complete.")
}

func (s *session) handleAPPE(path string) {
	if !s.isLoggedIn {
		s.reply(530, "Not logged in.")
		return
	}
	s.restartOffset = 0

	file, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE)
	if err != nil {
		s.replyError(err)
		return
	}
	defer file.Close()

	conn, err := s.connData()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	defer conn.Close()

	s.reply(150, "Opening data connection for APPE.")

	startTime := time.Now()
	src := s.rateLimitReader(conn)

	bytesTransferred, err := s.transferCopy(file, src)
	if err != nil {
		s.reply(426, "Connection closed; transfer aborted.")
		return
	}
	duration := time.Since(startTime)

	s.logTransfer("APPE", path, bytesTransferred, duration)
	if s.server.metricsCollector != nil {
		s.server.metricsCollector.RecordTransfer("APPE", bytesTransferred, duration)
	}
	s.filesReceived.Add(1)
	s.bytesReceived.Add(bytesTransferred)

	s.reply(226, "Transfer complete.")
}

// handleTYPE accepts ASCII and Binary but treats both identically (§1
// Non-goals: "TYPE A is accepted for compatibility but transferred as
// binary, no CRLF translation"). Only the reply text differs.
func (s *session) handleTYPE(arg string) {
	if !s.isLoggedIn {
		s.reply(530, "Please login with USER and PASS.")
		return
	}
	switch strings.ToUpper(arg) {
	case "A", "A N":
		s.transferType = "A"
		s.reply(200, "Type set to A.")
	case "I", "L 8":
		s.transferType = "I"
		s.reply(200, "Type set to I.")
	default:
		s.reply(504, "Type not supported.")
	}
}

func (s *session) handlePORT(arg string) {
	if !s.isLoggedIn {
		s.reply(530, "Please login with USER and PASS.")
		return
	}

	// Format: h1,h2,h3,h4,p1,p2
	parts := strings.Split(arg, ",")
	if len(parts) != 6 {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}

	p1, err1 := strconv.Atoi(parts[4])
	p2, err2 := strconv.Atoi(parts[5])
	if err1 != nil || err2 != nil || p1 < 0 || p1 > 255 || p2 < 0 || p2 > 255 {
		s.reply(501, "Invalid port number.")
		return
	}

	ipStr := strings.Join(parts[0:4], ".")
	ip := net.ParseIP(ipStr)
	if ip == nil {
		s.reply(501, "Invalid IP address.")
		return
	}

	if !s.validateActiveIP(ip) {
		s.reply(501, "Illegal PORT command.")
		return
	}

	s.activeIP = ip.String()
	s.activePort = p1*256 + p2

	s.reply(200, "PORT command successful.")
}

func (s *session) listenPassive() (net.Listener, error) {
	settings := s.fs.GetSettings()
	if settings != nil && settings.PasvMinPort > 0 && settings.PasvMaxPort >= settings.PasvMinPort {
		minPort := settings.PasvMinPort
		maxPort := settings.PasvMaxPort
		rangeLen := int32(maxPort - minPort + 1)

		startOffset := atomic.AddInt32(&s.server.nextPassivePort, 1)

		for i := int32(0); i < rangeLen; i++ {
			offset := (startOffset + i) % rangeLen
			port := int(int32(minPort) + offset)

			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err == nil {
				return ln, nil
			}
		}
		return nil, fmt.Errorf("no available ports in range [%d, %d]", minPort, maxPort)
	}
	return net.Listen("tcp", ":0")
}

func (s *session) handlePASV(_ string) {
	if !s.isLoggedIn {
		s.reply(530, "Please login with USER and PASS.")
		return
	}

	if s.pasvList != nil {
		s.pasvList.Close()
	}

	ln, err := s.listenPassive()
	if err != nil {
		s.reply(425, "Can't open passive connection.")
		return
	}
	s.pasvList = ln

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	// Determine IP to send: local connection IP, overridden by the driver's
	// configured public host if set.
	host, _, _ := net.SplitHostPort(s.conn.LocalAddr().String())

	settings := s.fs.GetSettings()
	if settings != nil && settings.PublicHost != "" {
		host = settings.PublicHost
	}

	ip := net.ParseIP(host)
	if ip == nil {
		if host == s.lastPublicHost && s.resolvedIP != nil {
			ip = s.resolvedIP
		} else {
			resolved, err := net.LookupIP(host)
			if err == nil {
				for _, candidate := range resolved {
					if ipv4 := candidate.To4(); ipv4 != nil {
						ip = ipv4
						s.lastPublicHost = host
						s.resolvedIP = ip
						break
					}
				}
			}
		}
	}

	var ipParts []string
	if ip != nil && ip.To4() != nil {
		ip = ip.To4()
		ipParts = strings.Split(ip.String(), ".")
	}
	if len(ipParts) != 4 {
		ipParts = []string{"0", "0", "0", "0"}
	}

	p1 := port / 256
	p2 := port % 256
	arg := fmt.Sprintf("%s,%s,%s,%s,%d,%d", ipParts[0], ipParts[1], ipParts[2], ipParts[3], p1, p2)
	s.reply(227, "Entering Passive Mode ("+arg+").")
}

// handleREST records the byte offset for the next RETR/STOR (§6). The
// offset is validated against the actual file size at transfer time, not
// here, since the target file may not exist yet until the offset is acted
// upon.
func (s *session) handleREST(arg string) {
	offset, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || offset < 0 {
		s.reply(501, "Invalid offset.")
		return
	}
	s.restartOffset = offset
	s.reply(350, fmt.Sprintf("Restarting at %d. Send STOR or RETR to initiate transfer.", offset))
}
