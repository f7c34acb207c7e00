package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ftpd/xcryptftp/internal/bufpool"
	"github.com/go-ftpd/xcryptftp/internal/ratelimit"
	"golang.org/x/sync/errgroup"
)

// Server is the FTP server.
//
// It listens for incoming connections and hands each one to a worker
// goroutine running a single session (§3, §9: "one worker goroutine per
// session" is the chosen alternative to an async/state-machine model). The
// number of concurrent sessions is bounded by a fixed-size sessionPool
// rather than an unbounded connection map.
//
// Lifecycle:
//  1. Create server with NewServer()
//  2. Start with ListenAndServe() or Serve()
//  3. Server runs until Shutdown is called or the listener is closed
//
// Basic example:
//
//	driver, _ := server.NewFSDriver("/tmp/ftp")
//	s, err := server.NewServer(":21", server.WithDriver(driver), server.WithPSK(psk))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(s.ListenAndServe())
type Server struct {
	// addr is the TCP address to listen on (e.g., ":21").
	addr string

	// driver is the backend driver for authentication and file operations.
	driver Driver

	// logger is the logger instance.
	logger *slog.Logger

	// psk is the pre-shared key used to derive a session's ChaCha20 key once
	// AUTH XCRYPT succeeds (§4.4). It replaces the teacher's TLS certificate
	// configuration; TLS itself is out of scope.
	psk [32]byte

	// pskSet is true once WithPSK has been applied. AUTH XCRYPT replies 504
	// when it is false, rather than silently deriving a key from an all-zero
	// PSK (see WithPSK's doc comment).
	pskSet bool

	// disableMLSD disables the MLSD command (for compatibility testing).
	disableMLSD bool

	// welcomeMessage is the banner sent to clients on connection.
	// Defaults to "220 FTP Server Ready".
	welcomeMessage string

	// serverName is the system type returned by the SYST command.
	// Defaults to "UNIX Type: L8".
	serverName string

	// maxIdleTime is the maximum time a connection can be idle before being closed.
	// Defaults to 5 minutes.
	maxIdleTime time.Duration

	// readTimeout is the deadline for read operations on connections.
	// If 0, no timeout is applied.
	readTimeout time.Duration

	// writeTimeout is the deadline for write operations on connections.
	// If 0, no timeout is applied.
	writeTimeout time.Duration

	// pool is the fixed-capacity session slot array (§4.6). Its size is the
	// server's maximum concurrent session count; acquire fails once every
	// slot is occupied.
	pool *sessionPool

	// bufPool is the fixed-capacity transfer buffer pool (§4.8), sized to the
	// session pool so every concurrent transfer can hold one buffer.
	bufPool *bufpool.Pool

	// pendingMaxSessions holds the value set by WithMaxSessions until
	// NewServer sizes the pool; 0 means "use DefaultMaxSessions".
	pendingMaxSessions int

	// nextPassivePort tracks the last used passive port to implement round-robin selection.
	nextPassivePort int32

	// Privacy-aware logging
	pathRedactor PathRedactor // Custom path redaction function (optional)
	redactIPs    bool         // Redact last octet of IP addresses in logs

	// Features
	enableDirMessage bool // Enable directory messages (.message files)

	// Metrics collection (optional)
	metricsCollector MetricsCollector

	// Shutdown handling
	mu         sync.Mutex
	listener   net.Listener
	group      *errgroup.Group
	groupCtx   context.Context
	cancel     context.CancelFunc
	inShutdown atomic.Bool

	// Transfer logging (xferlog standard format)
	transferLog io.Writer

	// Bandwidth limiting
	bandwidthLimitGlobal  int64              // bytes per second, 0 = unlimited
	bandwidthLimitPerUser int64              // bytes per second, 0 = unlimited
	globalLimiter         *ratelimit.Limiter // shared across all users
}

// ErrServerClosed is returned by the Server's Serve and ListenAndServe
// methods after a call to Shutdown or Close.
var ErrServerClosed = errors.New("ftp: Server closed")

// NewServer creates a new FTP server with the given address and options.
// The address should be in the form ":port" or "host:port".
// The driver must be provided via the WithDriver option.
//
// Default values:
//   - Logger: slog.Default()
//   - MaxIdleTime: 5 minutes
//   - Session pool size: DefaultMaxSessions
//
// Basic example:
//
//	driver, _ := server.NewFSDriver("/tmp/ftp")
//	s, err := server.NewServer(":21", server.WithDriver(driver))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// With a session limit:
//
//	s, _ := server.NewServer(":21",
//	    server.WithDriver(driver),
//	    server.WithMaxSessions(64),
//	    server.WithMaxIdleTime(10*time.Minute),
//	)
func NewServer(addr string, options ...Option) (*Server, error) {
	s := &Server{
		addr:           addr,
		logger:         slog.Default(),
		welcomeMessage: "220 FTP Server Ready",
		serverName:     "UNIX Type: L8",
		maxIdleTime:    5 * time.Minute,
	}

	maxSessions := DefaultMaxSessions

	// Apply options; WithMaxSessions records into maxSessions via a closure
	// captured below, so the pool can be sized after all options run.
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.pendingMaxSessions > 0 {
		maxSessions = s.pendingMaxSessions
	}
	s.pool = newSessionPool(maxSessions)

	bufPoolSize := maxSessions
	if bufPoolSize > 64 {
		bufPoolSize = 64
	}
	s.bufPool = bufpool.New(bufPoolSize)

	if s.driver == nil {
		return nil, fmt.Errorf("driver is required (use WithDriver option)")
	}

	if s.bandwidthLimitGlobal > 0 {
		s.globalLimiter = ratelimit.New(s.bandwidthLimitGlobal)
	}

	return s, nil
}

// ListenAndServe acts as a high-level helper to start a simple filesystem-based FTP server.
// It creates an FSDriver rooted at rootPath and starts the server on addr.
//
// Example:
//
//	log.Fatal(server.ListenAndServe(":21", "/var/ftp"))
func ListenAndServe(addr string, rootPath string, options ...Option) error {
	driver, err := NewFSDriver(rootPath)
	if err != nil {
		return fmt.Errorf("failed to create driver: %w", err)
	}

	opts := append([]Option{WithDriver(driver)}, options...)

	s, err := NewServer(addr, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return s.ListenAndServe()
}

// redactPath applies custom path redaction if configured.
func (s *Server) redactPath(path string) string {
	if s.pathRedactor == nil {
		return path
	}
	return s.pathRedactor(path)
}

// redactIP redacts the last octet of an IP address for privacy.
// Example: "192.168.1.100" -> "192.168.1.xxx"
// Example: "2001:db8::1" -> "2001:db8::xxx"
func (s *Server) redactIP(ip string) string {
	if !s.redactIPs || ip == "" {
		return ip
	}

	if strings.Contains(ip, ".") {
		parts := strings.Split(ip, ".")
		if len(parts) == 4 {
			parts[3] = "xxx"
			return strings.Join(parts, ".")
		}
	}

	if strings.Contains(ip, ":") {
		lastColon := strings.LastIndex(ip, ":")
		if lastColon > 0 {
			return ip[:lastColon+1] + "xxx"
		}
	}

	return ip
}

// ListenAndServe starts the FTP server on the configured address.
// It blocks until the server stops or an error occurs.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.logger.Info("FTP server listening", "addr", s.addr)
	return s.Serve(ln)
}

// Shutdown gracefully stops the server.
//
// It immediately stops accepting new connections by closing the listener,
// then waits for active sessions to finish or until the context is
// cancelled. If the context expires first, the acceptor's errgroup context
// is cancelled, which each active session observes and uses to force-close
// its connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	group := s.group
	cancel := s.cancel
	s.mu.Unlock()

	var closeErr error
	if ln != nil {
		closeErr = ln.Close()
	}
	if group == nil {
		return closeErr
	}

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		if closeErr != nil {
			return closeErr
		}
		return err
	case <-ctx.Done():
		cancel()
		<-done
		if closeErr != nil {
			return closeErr
		}
		return ctx.Err()
	}
}

// Serve accepts incoming connections on the listener l.
// It blocks until the listener is closed or an error occurs.
//
// Each connection is handled by a worker goroutine tracked in an
// errgroup.Group, whose shared context is cancelled on Shutdown so that
// in-flight sessions can observe shutdown and tear down promptly.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.inShutdown.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)
	s.listener = l
	s.group = group
	s.groupCtx = groupCtx
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.listener == l {
			s.listener = nil
		}
		s.mu.Unlock()
		l.Close()
		cancel()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				group.Wait()
				return ErrServerClosed
			}
			s.logger.Error("accept error", "error", err)
			continue
		}

		group.Go(func() error {
			s.handleConnection(groupCtx, conn)
			return nil
		})
	}
}

// handleConnection acquires a session slot and runs the session to
// completion, closing the connection either way.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	tuneControlConn(conn)

	sess := newSession(s, conn)
	if s.pool.acquire(sess) < 0 {
		s.logger.Warn("connection_rejected",
			"remote_ip", sess.remoteIP,
			"reason", "session_pool_exhausted",
			"limit", s.pool.cap(),
		)
		if s.metricsCollector != nil {
			s.metricsCollector.RecordConnection(false, "session_pool_exhausted")
		}
		fmt.Fprintf(conn, "421 Too many users, sorry.\r\n")
		conn.Close()
		return
	}

	if s.metricsCollector != nil {
		s.metricsCollector.RecordConnection(true, "accepted")
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	sess.serve()
}
