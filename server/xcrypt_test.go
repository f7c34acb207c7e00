package server

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/go-ftpd/xcryptftp/internal/chacha20"
)

// TestAUTH_XCRYPT_RoundTrip exercises scenario S7: after AUTH XCRYPT, both
// sides derive the same session key from the PSK and the server-supplied
// nonce, and every subsequent control-channel byte (in both directions) is
// XORed through a single shared keystream in transmission order.
func TestAUTH_XCRYPT_RoundTrip(t *testing.T) {
	rootDir := t.TempDir()

	driver, err := NewFSDriver(rootDir,
		WithAuthenticator(func(user, pass, host string) (string, bool, error) {
			return rootDir, false, nil
		}),
	)
	fatalIfErr(t, err, "failed to create FS driver")

	var psk [32]byte
	if _, err := rand.Read(psk[:]); err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "failed to listen")
	addr := ln.Addr().String()

	srv, err := NewServer(addr, WithDriver(driver), WithPSK(psk))
	fatalIfErr(t, err, "failed to create server")

	go func() {
		_ = srv.Serve(ln)
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	fatalIfErr(t, err, "failed to dial")
	defer conn.Close()

	reader := bufio.NewReader(conn)

	// Welcome banner.
	if _, err := reader.ReadString('\n'); err != nil {
		t.Fatalf("failed to read welcome: %v", err)
	}

	if _, err := conn.Write([]byte("AUTH XCRYPT\r\n")); err != nil {
		t.Fatalf("failed to send AUTH: %v", err)
	}

	line, err := reader.ReadString('\n')
	fatalIfErr(t, err, "failed to read AUTH reply")
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "234 XCRYPT ") {
		t.Fatalf("unexpected AUTH reply: %q", line)
	}
	nonceHex := strings.TrimPrefix(line, "234 XCRYPT ")
	if len(nonceHex) != 24 {
		t.Fatalf("nonce hex should be 24 chars, got %d: %q", len(nonceHex), nonceHex)
	}
	if nonceHex != strings.ToLower(nonceHex) {
		t.Fatalf("nonce hex must be lowercase per §4.4, got %q", nonceHex)
	}

	nonceBytes, err := hex.DecodeString(nonceHex)
	fatalIfErr(t, err, "failed to decode nonce")
	var nonce [12]byte
	copy(nonce[:], nonceBytes)

	key := chacha20.DeriveKey(psk, nonce)
	clientCipher := chacha20.New(key, nonce)

	plain := []byte("NOOP\r\n")
	ciphertext := append([]byte(nil), plain...)
	clientCipher.XOR(ciphertext)
	if _, err := conn.Write(ciphertext); err != nil {
		t.Fatalf("failed to send encrypted NOOP: %v", err)
	}

	// Read exactly len("200 OK.\r\n") raw bytes off the wire and decrypt
	// with the client's copy of the keystream, continuing where the NOOP
	// encryption left off (§4.4: single shared keystream, transmission
	// order across both directions).
	raw := make([]byte, 9)
	if _, err := io.ReadFull(reader, raw); err != nil {
		t.Fatalf("failed to read encrypted reply: %v", err)
	}
	clientCipher.XOR(raw)
	if got := string(raw); got != "200 OK.\r\n" {
		t.Fatalf("decrypted reply = %q, want %q", got, "200 OK.\r\n")
	}
}

// TestAUTH_XCRYPT_RequiresPSK verifies AUTH XCRYPT replies 504 when the
// server has no PSK configured, rather than silently deriving a key from an
// all-zero PSK.
func TestAUTH_XCRYPT_RequiresPSK(t *testing.T) {
	rootDir := t.TempDir()
	driver, err := NewFSDriver(rootDir,
		WithAuthenticator(func(user, pass, host string) (string, bool, error) {
			return rootDir, false, nil
		}),
	)
	fatalIfErr(t, err, "failed to create FS driver")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "failed to listen")
	addr := ln.Addr().String()

	srv, err := NewServer(addr, WithDriver(driver))
	fatalIfErr(t, err, "failed to create server")

	go func() {
		_ = srv.Serve(ln)
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	fatalIfErr(t, err, "failed to dial")
	defer conn.Close()

	reader := bufio.NewReader(conn)
	if _, err := reader.ReadString('\n'); err != nil {
		t.Fatalf("failed to read welcome: %v", err)
	}

	if _, err := conn.Write([]byte("AUTH XCRYPT\r\n")); err != nil {
		t.Fatalf("failed to send AUTH: %v", err)
	}
	line, err := reader.ReadString('\n')
	fatalIfErr(t, err, "failed to read AUTH reply")
	if !strings.HasPrefix(strings.TrimSpace(line), "504 ") {
		t.Fatalf("expected 504 without PSK configured, got %q", line)
	}
}
