package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ftpd/xcryptftp/internal/chacha20"
	"github.com/go-ftpd/xcryptftp/internal/ratelimit"
	"github.com/go-ftpd/xcryptftp/server/ftperr"
)

// MaxCommandLength is the maximum length of a command line, including the
// CRLF terminator (§6).
const MaxCommandLength = 512

// sessionState mirrors the spec's session lifecycle (§4.5). It is stored
// atomically so its value can be queried (e.g. by STAT or metrics) from
// outside the owning worker goroutine without taking a lock.
type sessionState int32

const (
	stateInit sessionState = iota
	stateConnected
	stateAuthenticated
	stateTransferring
	stateTerminating
)

var nextSessionID atomic.Uint64

// generateSessionID returns the next value of a monotonic, process-wide
// counter, formatted as a fixed-width decimal string. Sessions are
// identified for logging and metrics purposes only; a counter rather than a
// random or UUID value keeps ordering observable across a server's lifetime.
func generateSessionID() string {
	return fmt.Sprintf("%d", nextSessionID.Add(1))
}

// session represents an FTP client session.
type session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex // Protects writer and state

	// Session tracking
	sessionID string
	remoteIP  string
	state     atomic.Int32
	slot      int // index into server.pool.slots, set by sessionPool.acquire

	// State
	quit           bool // set by a handler to force session termination
	isLoggedIn     bool
	user           string
	renameFrom     string // For RNFR/RNTO
	fs             ClientContext
	restartOffset  int64  // For REST command
	host           string // From HOST command
	transferType   string // Transfer type (A=ASCII, I=Binary), default I
	failedAttempts uint8  // saturating counter of failed USER/PASS attempts

	// cipher is non-nil and Active once AUTH XCRYPT has completed; every
	// subsequent control and data byte is XORed through it in transmission
	// order (§4.4).
	cipher *chacha20.Cipher

	// Background transfer state
	busy           bool
	transferCtx    context.Context
	transferCancel context.CancelFunc
	transferWG     sync.WaitGroup

	// Reader synchronization
	cmdReqChan chan struct{}

	// Data connection state
	dataConn   net.Conn
	pasvList   net.Listener
	activeIP   string
	activePort int

	// Cache for PASV IP resolution
	lastPublicHost string
	resolvedIP     net.IP

	// Statistics (§3: atomic 64-bit counters)
	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
	filesSent     atomic.Int64
	filesReceived atomic.Int64
	commandsdone  atomic.Int64
	errorCount    atomic.Int64

	connectTime    time.Time
	lastActivity   atomic.Int64 // unix nanoseconds, updated on every command
}

// validateActiveIP ensures the data connection target matches the control connection source.
// This prevents FTP bounce attacks.
func (s *session) validateActiveIP(ip net.IP) bool {
	remoteAddr := s.conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr // Fallback
	}

	remoteIP := net.ParseIP(host)
	if remoteIP == nil {
		return false
	}

	return ip.Equal(remoteIP)
}

// redactPath returns the path with redaction applied if enabled.
func (s *session) redactPath(path string) string {
	return s.server.redactPath(path)
}

// redactIP returns the IP with redaction applied if enabled.
func (s *session) redactIP(ip string) string {
	return s.server.redactIP(ip)
}

// rateLimitingActive reports whether any bandwidth limit (global or
// per-user) is configured, the guard the zero-copy RETR path uses to know
// it must not bypass rateLimitReader/Writer.
func (s *session) rateLimitingActive() bool {
	return s.server.bandwidthLimitPerUser > 0 || s.server.globalLimiter != nil
}

// rateLimitReader wraps a reader with bandwidth limiting and, if the session
// cipher is active, the ChaCha20 XOR transform. Applies both global and
// per-user limits (most restrictive wins).
func (s *session) rateLimitReader(r io.Reader) io.Reader {
	if s.server.bandwidthLimitPerUser > 0 {
		limiter := ratelimit.New(s.server.bandwidthLimitPerUser)
		r = ratelimit.NewReader(r, limiter)
	}
	if s.server.globalLimiter != nil {
		r = ratelimit.NewReader(r, s.server.globalLimiter)
	}
	if s.cipher.Active() {
		r = &cipherReader{r: r, cipher: s.cipher}
	}
	return r
}

// rateLimitWriter wraps a writer with bandwidth limiting and, if the session
// cipher is active, the ChaCha20 XOR transform. Applies both global and
// per-user limits (most restrictive wins).
func (s *session) rateLimitWriter(w io.Writer) io.Writer {
	if s.server.bandwidthLimitPerUser > 0 {
		limiter := ratelimit.New(s.server.bandwidthLimitPerUser)
		w = ratelimit.NewWriter(w, limiter)
	}
	if s.server.globalLimiter != nil {
		w = ratelimit.NewWriter(w, s.server.globalLimiter)
	}
	if s.cipher.Active() {
		w = &cipherWriter{w: w, cipher: s.cipher}
	}
	return w
}

// cipherReader XORs every byte read through the session's keystream,
// in transmission order, before handing it to the caller.
type cipherReader struct {
	r      io.Reader
	cipher *chacha20.Cipher
}

func (c *cipherReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.cipher.XOR(p[:n])
	}
	return n, err
}

// cipherWriter XORs every byte in place before writing it, in transmission
// order.
type cipherWriter struct {
	w      io.Writer
	cipher *chacha20.Cipher
}

func (c *cipherWriter) Write(p []byte) (int, error) {
	c.cipher.XOR(p)
	return c.w.Write(p)
}

// newSession creates a new session. The control connection is wrapped
// directly in a bufio.Reader/Writer pair — unlike the teacher, there is no
// Telnet IAC filter in front of it, since this protocol's control channel is
// plain CRLF-terminated lines with no Telnet option negotiation to strip.
func newSession(server *Server, conn net.Conn) *session {
	sessionID := generateSessionID()

	remoteAddr := conn.RemoteAddr().String()
	remoteIP, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		remoteIP = remoteAddr
	}

	reader := controlReaderPool.Get().(*bufio.Reader)
	reader.Reset(conn)

	writer := controlWriterPool.Get().(*bufio.Writer)
	writer.Reset(conn)

	s := &session{
		server:       server,
		conn:         conn,
		reader:       reader,
		writer:       writer,
		sessionID:    sessionID,
		remoteIP:     remoteIP,
		transferType: "I",
		cmdReqChan:   make(chan struct{}),
		connectTime:  time.Now(),
	}
	s.state.Store(int32(stateConnected))
	s.lastActivity.Store(time.Now().UnixNano())

	return s
}

type command struct {
	line string
	err  error
}

// serve handles the FTP session. It uses a concurrent architecture to handle
// commands and data transfers, enabling support for commands like ABOR.
//
// Concurrency Model:
//
//  1. Reader Goroutine: A dedicated goroutine is spawned to read commands from
//     the client's control connection. It sends each command to the main `serve`
//     loop via the `cmdChan`.
//
//  2. Main Loop (`serve`): This loop receives commands from `cmdChan` and
//     dispatches them to handlers. It is the single point of control for the
//     session's state.
//
//  3. Synchronization (`cmdReqChan`): To prevent data races during connection
//     upgrades (e.g., AUTH XCRYPT), the reader goroutine waits for a signal on
//     `cmdReqChan` before reading the next command. The main loop sends this
//     signal only after the current command handler has finished. This ensures
//     that handlers that modify the connection or reader/writer state (like
//     `handleAUTH`) can do so safely.
//
//  4. Asynchronous Transfers: Data transfer commands (RETR, STOR, etc.) are
//     handled asynchronously. They start a new goroutine for the actual data
//     copy, set a `busy` flag on the session, and return immediately. This allows
//     the main loop to process other commands, specifically ABOR and STAT.
//
//  5. Aborting Transfers (`ABOR`): If a transfer is in progress (`busy == true`),
//     the `handleABOR` command can interrupt it by closing the data connection and
//     canceling the `transferCtx`. The background transfer goroutine detects
//     this and exits gracefully.
//
//  6. State Protection (`s.mu`): A mutex protects session fields that are
//     accessed by multiple goroutines (e.g., `writer`, `conn`, `reader`, `busy`).
//
//  7. Goroutine Cleanup (`done`): A `done` channel is created in `serve` and
//     closed on exit, so the reader goroutine never leaks past session end.
func (s *session) serve() {
	defer s.close()

	s.sendWelcome()

	s.server.logger.Info("session_started",
		"session_id", s.sessionID,
		"remote_ip", s.redactIP(s.remoteIP),
	)

	done := make(chan struct{})
	defer close(done)

	cmdChan := s.startCommandReader(done)
	idleTimeout := s.server.maxIdleTime
	if idleTimeout <= 0 {
		idleTimeout = 300 * time.Second
	}

	for {
		idle := time.Since(time.Unix(0, s.lastActivity.Load()))
		if idle > idleTimeout {
			s.reply(421, "Idle timeout; closing connection.")
			return
		}

		select {
		case cmd, ok := <-cmdChan:
			if !ok {
				return
			}
			if cmd.err != nil {
				if ne, ok := cmd.err.(net.Error); ok && ne.Timeout() {
					continue
				}
				if cmd.err != io.EOF && cmd.err.Error() != "command too long" {
					s.server.logger.Warn("read error",
						"session_id", s.sessionID,
						"remote_ip", s.redactIP(s.remoteIP),
						"user", s.user,
						"error", cmd.err,
					)
				}
				if cmd.err.Error() == "command too long" {
					s.reply(500, "Command line too long.")
				}
				return
			}

			s.lastActivity.Store(time.Now().UnixNano())
			_ = s.conn.SetReadDeadline(time.Time{})

			if s.server.writeTimeout > 0 {
				_ = s.conn.SetWriteDeadline(time.Now().Add(s.server.writeTimeout))
			}

			quit := s.handleCommand(cmd.line)

			if s.server.writeTimeout > 0 {
				_ = s.conn.SetWriteDeadline(time.Time{})
			}

			if quit {
				return
			}

			select {
			case s.cmdReqChan <- struct{}{}:
			case <-time.After(1 * time.Second):
			}
		case <-time.After(time.Second):
			// Wake periodically to re-check idle timeout even with no traffic.
		}
	}
}

func (s *session) sendWelcome() {
	if strings.HasPrefix(s.server.welcomeMessage, "220 ") {
		s.mu.Lock()
		fmt.Fprintf(s.writer, "%s\r\n", s.server.welcomeMessage)
		s.writer.Flush()
		s.mu.Unlock()
	} else if strings.HasPrefix(s.server.welcomeMessage, "220") {
		s.mu.Lock()
		fmt.Fprintf(s.writer, "220 %s\r\n", s.server.welcomeMessage[3:])
		s.writer.Flush()
		s.mu.Unlock()
	} else {
		s.reply(220, s.server.welcomeMessage)
	}
}

func (s *session) startCommandReader(done chan struct{}) chan command {
	cmdChan := make(chan command)
	go func() {
		defer close(cmdChan)
		for {
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()

			// A short per-read timeout lets the main loop re-check idle
			// timeout without a hard failure on each wakeup (§4.5/§5).
			_ = conn.SetReadDeadline(time.Now().Add(time.Second))

			line, err := s.readCommand()

			select {
			case cmdChan <- command{line, err}:
			case <-done:
				return
			}

			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				return
			}

			select {
			case <-s.cmdReqChan:
			case <-done:
				return
			}
		}
	}()
	return cmdChan
}

// readCommand reads a line from the reader with a limit. A line exceeding
// MaxCommandLength is discarded (the caller replies 500) but the session
// continues (§4.2).
func (s *session) readCommand() (string, error) {
	var line []byte
	for {
		s.mu.Lock()
		r := s.reader
		s.mu.Unlock()

		b, err := r.ReadByte()
		if err != nil {
			return string(line), err
		}

		if s.cipher.Active() {
			buf := [1]byte{b}
			s.cipher.XOR(buf[:])
			b = buf[0]
		}

		if len(line) >= MaxCommandLength {
			return "", fmt.Errorf("command too long")
		}

		if b == '\n' {
			return string(line), nil
		}
		line = append(line, b)
	}
}

// close closes the session and underlying connection.
func (s *session) close() {
	s.state.Store(int32(stateTerminating))

	s.mu.Lock()
	if s.transferCancel != nil {
		s.transferCancel()
	}
	s.mu.Unlock()

	if s.fs != nil {
		s.fs.Close()
	}
	if s.pasvList != nil {
		s.pasvList.Close()
	}
	if s.dataConn != nil {
		s.dataConn.Close()
	}
	if s.cipher != nil {
		s.cipher.Reset()
	}
	s.conn.Close()

	// Wait for all background transfers to finish before returning objects to the pool
	s.transferWG.Wait()

	if s.reader != nil {
		s.reader.Reset(nil)
		controlReaderPool.Put(s.reader)
		s.reader = nil
	}
	if s.writer != nil {
		s.writer.Reset(nil)
		controlWriterPool.Put(s.writer)
		s.writer = nil
	}

	s.server.pool.release(s.slot)

	s.server.logger.Debug("session closed",
		"session_id", s.sessionID,
		"remote_ip", s.redactIP(s.remoteIP),
		"user", s.user,
	)
}

// handleCommand parses and dispatches a command (§4.2). It returns true if
// the session should terminate (QUIT, or a fatal dispatch condition).
func (s *session) handleCommand(line string) bool {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return false
	}

	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToUpper(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	logArg := arg
	if cmd == "PASS" {
		logArg = "***"
	}
	s.server.logger.Debug("command received",
		"session_id", s.sessionID,
		"remote_ip", s.redactIP(s.remoteIP),
		"user", s.user,
		"cmd", cmd,
		"arg", logArg,
	)

	s.mu.Lock()
	busy := s.busy
	s.mu.Unlock()

	if busy && cmd != "ABOR" && cmd != "STAT" {
		s.reply(503, "Transfer in progress, please ABOR or wait.")
		return false
	}

	if cmd == "QUIT" {
		s.reply(221, "Service closing control connection.")
		return true
	}
	if cmd == "NOOP" {
		s.reply(200, "OK.")
		s.commandsdone.Add(1)
		return false
	}

	entry, ok := lookupCommand(cmd)
	if !ok {
		s.reply(500, "Command not understood.")
		return false
	}

	// Pre-authentication gating (§4.2 step 3).
	if !s.isLoggedIn && !preAuthCommands[cmd] {
		s.reply(530, "Please login with USER and PASS.")
		return false
	}

	switch entry.arity {
	case ArgNone:
		if arg != "" {
			s.reply(501, "Syntax error in parameters or arguments.")
			return false
		}
	case ArgRequired:
		if arg == "" {
			s.reply(501, "Syntax error in parameters or arguments.")
			return false
		}
	}

	errorsBefore := s.errorCount.Load()
	start := time.Now()
	entry.handler(s, arg)
	s.commandsdone.Add(1)

	if s.server.metricsCollector != nil {
		s.server.metricsCollector.RecordCommand(cmd, s.errorCount.Load() == errorsBefore, time.Since(start))
	}

	return s.quit
}

func (s *session) connData() (net.Conn, error) {
	if s.pasvList != nil {
		return s.connPassive()
	}

	if s.activeIP != "" {
		return s.connActive()
	}

	return nil, fmt.Errorf("no data connection setup")
}

func (s *session) connPassive() (net.Conn, error) {
	s.server.logger.Debug("waiting for passive connection",
		"session_id", s.sessionID,
		"remote_ip", s.redactIP(s.remoteIP),
	)
	if t, ok := s.pasvList.(*net.TCPListener); ok {
		_ = t.SetDeadline(time.Now().Add(defaultDataConnTimeout))
	}
	conn, err := s.pasvList.Accept()
	if err != nil {
		return nil, err
	}
	s.pasvList.Close()
	s.pasvList = nil

	return s.wrapDataConn(conn)
}

func (s *session) connActive() (net.Conn, error) {
	addr := net.JoinHostPort(s.activeIP, strconv.Itoa(s.activePort))
	s.server.logger.Debug("dialing active connection",
		"session_id", s.sessionID,
		"remote_ip", s.redactIP(s.remoteIP),
		"addr", addr,
	)
	conn, err := net.DialTimeout("tcp", addr, defaultDataConnTimeout)
	if err != nil {
		return nil, err
	}
	s.activeIP = "" // Reset after use

	return s.wrapDataConn(conn)
}

func (s *session) wrapDataConn(conn net.Conn) (net.Conn, error) {
	tuneDataConn(conn)

	if s.server.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.server.readTimeout))
	}
	if s.server.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.server.writeTimeout))
	}

	return conn, nil
}

func (s *session) handleABOR(_ string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.busy {
		s.reply(226, "ABOR command successful; no transfer in progress.")
		return
	}

	s.server.logger.Info("transfer_abort_requested", "session_id", s.sessionID)

	if s.dataConn != nil {
		s.dataConn.Close()
	}

	if s.transferCancel != nil {
		s.transferCancel()
	}

	// Per RFC 959, the server should send a 426 reply for the original
	// transfer command, followed by a 226 reply for the ABOR command.
	// This asynchronous implementation sends 226 immediately, and the
	// transfer goroutine will send 426. This is a minor deviation but
	// is functionally acceptable for most clients.
	s.reply(226, "ABOR command successful; transfer aborted.")
}

// replyError sends a reply derived from err: the common os.* sentinels get
// their familiar 550 text, and anything else falls back to the ftperr
// taxonomy's reply-code mapping.
func (s *session) replyError(err error) {
	s.errorCount.Add(1)
	switch {
	case os.IsNotExist(err):
		s.reply(550, "File not found.")
	case os.IsPermission(err):
		s.reply(550, "Permission denied.")
	case os.IsExist(err):
		s.reply(550, "File already exists.")
	default:
		s.reply(ftperr.ReplyCode(err), "Action failed: "+err.Error())
	}
}

// writeControlLocked XORs data through the session cipher, if active, and
// writes it to the control connection. Every byte sent after AUTH XCRYPT
// completes must pass through the same keystream in transmission order
// (§4.4), so this is the single path every control-channel write funnels
// through rather than writing straight to s.writer. Callers must hold s.mu.
func (s *session) writeControlLocked(data []byte) {
	if s.cipher.Active() {
		s.cipher.XOR(data)
	}
	s.writer.Write(data)
	s.writer.Flush()
}

// reply sends a response to the client.
func (s *session) reply(code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeControlLocked([]byte(fmt.Sprintf("%d %s\r\n", code, message)))
}

// logTransfer logs a file transfer in standard xferlog format.
// Format: current-time transfer-time remote-host file-size filename transfer-type special-action-flag direction access-mode username service-name authentication-method authenticated-user-id completion-status
func (s *session) logTransfer(cmd, filename string, bytes int64, duration time.Duration) {
	if s.server.transferLog == nil {
		return
	}

	now := time.Now()
	transferTime := int64(duration.Seconds())
	if transferTime == 0 {
		transferTime = 1
	}

	remoteHost := s.remoteIP

	tType := "b"
	if s.transferType == "A" {
		tType = "a"
	}

	actionFlag := "_"

	direction := "o"
	if cmd == "STOR" || cmd == "APPE" {
		direction = "i"
	}

	accessMode := "r"
	if s.user == "anonymous" || s.user == "ftp" {
		accessMode = "a"
	}

	authMethod := "0"
	authUserID := "*"
	completionStatus := "c"

	line := fmt.Sprintf("%s %d %s %d %s %s %s %s %s %s %s %s %s %s\n",
		now.Format("Mon Jan 02 15:04:05 2006"),
		transferTime,
		remoteHost,
		bytes,
		filename,
		tType,
		actionFlag,
		direction,
		accessMode,
		s.user,
		"ftp",
		authMethod,
		authUserID,
		completionStatus,
	)

	_, _ = s.server.transferLog.Write([]byte(line))
}
