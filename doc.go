// Package ftp implements a plain-FTP client used to exercise the sibling
// server package's command surface from the wire side.
//
// # Overview
//
// This package provides a developer-friendly FTP client that supports:
//   - Plain FTP connections, active and passive data modes
//   - AUTH XCRYPT, the PSK-based ChaCha20 session encryption used in place
//     of RFC 4217 TLS (see the server package's documentation for the wire
//     protocol)
//   - Progress tracking via io.Reader/Writer wrappers
//   - Robust error handling with detailed protocol context
//
// # Standards Compliance
//
// This library strictly adheres to FTP RFC specifications. For a detailed
// breakdown of supported commands, see the RFC 5797 Compliance Matrix at
// https://github.com/go-ftpd/xcryptftp/blob/main/RFC5797-compliance.md.
//
// # Basic Usage
//
// Connect to a plain FTP server:
//
//	client, err := ftp.Dial("ftp.example.com:21")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Quit()
//
//	if err := client.Login("username", "password"); err != nil {
//	    log.Fatal(err)
//	}
//
// # File Transfers
//
// Upload a file:
//
//	file, err := os.Open("local.txt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer file.Close()
//
//	if err := client.Store("remote.txt", file); err != nil {
//	    log.Fatal(err)
//	}
//
// Download a file:
//
//	file, err := os.Create("local.txt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer file.Close()
//
//	if err := client.Retrieve("remote.txt", file); err != nil {
//	    log.Fatal(err)
//	}
//
// # Progress Tracking
//
// Progress tracking is implemented using the io.Reader/Writer pattern. Wrap your
// reader or writer with a progress callback:
//
//	pr := &ftp.ProgressReader{
//	    Reader: file,
//	    Callback: func(bytesTransferred int64) {
//	        fmt.Printf("Uploaded: %d bytes\n", bytesTransferred)
//	    },
//	}
//	err := client.Store("remote.txt", pr)
//
// # Error Handling
//
// Errors returned by this package include detailed protocol context. Use type
// assertion to access the full error details:
//
//	if err := client.Store("file.txt", reader); err != nil {
//	    if pe, ok := err.(*ftp.ProtocolError); ok {
//	        fmt.Printf("Command: %s\n", pe.Command)
//	        fmt.Printf("Response: %s\n", pe.Response)
//	        fmt.Printf("Code: %d\n", pe.Code)
//	    }
//	}
package ftp
