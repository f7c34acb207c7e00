// Package server implements an anonymous-only FTP server with an optional
// ChaCha20-encrypted control/data channel.
//
// # Overview
//
// This package provides a modular FTP server implementation that allows you to:
//   - Embed an FTP server into your Go application
//   - Use custom storage backends (Drivers)
//   - Upgrade a session to an encrypted channel via AUTH XCRYPT
//
// # Getting Started
//
// The easiest way to start is using the provided FSDriver to serve a local directory:
//
//	package main
//
//	import (
//	    "log"
//	    "github.com/go-ftpd/xcryptftp/server"
//	)
//
//	func main() {
//	    // Create a driver to serve /tmp/ftp
//	    driver, err := server.NewFSDriver("/tmp/ftp")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    // Create the server
//	    s, err := server.NewServer(":21", server.WithDriver(driver))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    log.Println("Starting FTP server on :21")
//	    if err := s.ListenAndServe(); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # AUTH XCRYPT
//
// Instead of RFC 4217 TLS, this server supports a lightweight pre-shared-key
// session cipher. A client that issues "AUTH XCRYPT" receives a fresh random
// nonce; both sides derive the same ChaCha20 key from the server's PSK and
// that nonce, and every subsequent control and data byte is XORed through
// it.
//
//	var psk [32]byte
//	if _, err := rand.Read(psk[:]); err != nil {
//	    log.Fatal(err)
//	}
//	driver, _ := server.NewFSDriver("/tmp/ftp")
//	s, _ := server.NewServer(":21",
//	    server.WithDriver(driver),
//	    server.WithPSK(psk),
//	)
//	s.ListenAndServe()
//
// # Custom Drivers
//
// You can implement the Driver interface to connect the FTP server to any backend,
// such as cloud storage (S3, GCS), an in-memory database, or a custom CMS.
//
// Implement the Driver interface:
//
//	type Driver interface {
//	    Authenticate(user, pass, host string) (ClientContext, error)
//	}
//
// And the ClientContext interface for file operations:
//
//	type ClientContext interface {
//	    ListDir(path string) ([]os.FileInfo, error)
//	    OpenFile(path string, flag int) (io.ReadWriteCloser, error)
//	    GetSettings() *Settings
//	    // ...
//	}
//
// # Authentication Patterns
//
// The server only accepts the "anonymous"/"ftp" usernames; any other
// username counts against a per-session lockout counter and is rejected
// after three attempts (with a fixed delay inserted per attempt).
//
//	driver, _ := server.NewFSDriver("/tmp/ftp")
//	// Allows "anonymous" and "ftp" users with read-only access
//
// Custom authentication with per-user directories:
//
//	driver, _ := server.NewFSDriver("/tmp/ftp",
//	    server.WithAuthenticator(func(user, pass, host string) (string, bool, error) {
//	        // Validate credentials (e.g., check database)
//	        if !isValidUser(user, pass) {
//	            return "", false, os.ErrPermission
//	        }
//	        // Return user-specific root directory
//	        userRoot := filepath.Join("/tmp/ftp", user)
//	        readOnly := user == "guest"
//	        return userRoot, readOnly, nil
//	    }),
//	)
//
// # Passive Mode Configuration
//
// When behind NAT or in containerized environments, configure passive mode settings:
//
//	settings := &server.Settings{
//	    PublicHost:  "ftp.example.com",  // Public IP or hostname
//	    PasvMinPort: 30000,               // Passive port range start
//	    PasvMaxPort: 30100,               // Passive port range end
//	}
//	driver, _ := server.NewFSDriver("/tmp/ftp",
//	    server.WithSettings(settings),
//	)
//
// The PublicHost is advertised to clients in PASV responses. If not set,
// the server uses the control connection's local address.
//
// # Server Configuration
//
// Session pool size and timeouts:
//
//	s, _ := server.NewServer(":21",
//	    server.WithDriver(driver),
//	    server.WithMaxSessions(64),               // Fixed session-pool capacity
//	    server.WithMaxIdleTime(10*time.Minute),   // Idle timeout
//	)
//
// Custom logging:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	s, _ := server.NewServer(":21",
//	    server.WithDriver(driver),
//	    server.WithLogger(logger),
//	)
//
// # Troubleshooting
//
// Problem: Passive mode connections fail
//   - Solution: Set PublicHost in Settings to your public IP/hostname
//   - Solution: Ensure firewall allows passive port range
//
// Problem: "Permission denied" errors
//   - Solution: Check file system permissions on the root directory
//   - Solution: Verify the user running the server has read/write access
//
// Problem: Connection refused on port 21
//   - Solution: Port 21 requires root/admin privileges on most systems
//   - Solution: Use a higher port (e.g., :2121) for development
//
// # RFC Compliance
//
// This server implements a deliberately reduced subset of:
//   - RFC 959 (Base FTP)
//   - RFC 1123 (Requirements for Internet Hosts - minimum implementation)
//   - RFC 3659 (SIZE, MDTM, REST, MLST/MLSD feature advertisement)
package server
