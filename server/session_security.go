package server

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/go-ftpd/xcryptftp/internal/chacha20"
)

// handleAUTH implements the custom AUTH XCRYPT mechanism (§4.4, §6) in place
// of RFC 4217 TLS. XCRYPT derives a per-session ChaCha20 key from the
// server's pre-shared key and a fresh random nonce; every control and data
// byte exchanged after the reply is XORed through it.
func (s *session) handleAUTH(arg string) {
	if strings.ToUpper(strings.TrimSpace(arg)) != "XCRYPT" {
		s.reply(504, "Only AUTH XCRYPT is supported.")
		return
	}
	if !s.server.pskSet {
		s.reply(504, "AUTH XCRYPT is not configured on this server.")
		return
	}
	if s.cipher != nil && s.cipher.Active() {
		s.reply(503, "Crypto session already established.")
		return
	}

	var nonce [12]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		s.reply(451, "Unable to generate session nonce.")
		return
	}

	key := chacha20.DeriveKey(s.server.psk, nonce)

	s.reply(234, "XCRYPT "+hex.EncodeToString(nonce[:]))

	s.cipher = chacha20.New(key, nonce)
	key = [32]byte{}
}
