package chacha20

import (
	"bytes"
	"testing"
)

func testKeyNonce() ([32]byte, [12]byte) {
	var key [32]byte
	var nonce [12]byte
	for i := range key {
		key[i] = byte(i)
	}
	for i := range nonce {
		nonce[i] = byte(100 + i)
	}
	return key, nonce
}

func TestXORRoundTrip(t *testing.T) {
	key, nonce := testKeyNonce()

	plain := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 10)

	enc := New(key, nonce)
	ciphertext := append([]byte(nil), plain...)
	enc.XOR(ciphertext)

	if bytes.Equal(ciphertext, plain) {
		t.Fatal("XOR did not change the plaintext")
	}

	dec := New(key, nonce)
	dec.XOR(ciphertext)

	if !bytes.Equal(ciphertext, plain) {
		t.Fatal("XOR(XOR(plain)) != plain for freshly initialized ciphers")
	}
}

func TestXORArbitraryChunking(t *testing.T) {
	// Splitting the same logical byte stream into different chunk sizes must
	// produce the same ciphertext as one shot, since XOR is stateful across
	// calls in transmission order.
	key, nonce := testKeyNonce()
	plain := bytes.Repeat([]byte{0xAA}, 200)

	whole := New(key, nonce)
	oneShot := append([]byte(nil), plain...)
	whole.XOR(oneShot)

	chunked := New(key, nonce)
	piecewise := append([]byte(nil), plain...)
	sizes := []int{1, 5, 58, 64, 64, 8}
	pos := 0
	for _, sz := range sizes {
		end := pos + sz
		if end > len(piecewise) {
			end = len(piecewise)
		}
		chunked.XOR(piecewise[pos:end])
		pos = end
	}

	if !bytes.Equal(oneShot, piecewise) {
		t.Fatal("chunked XOR diverged from one-shot XOR")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	psk, nonce := testKeyNonce()
	k1 := DeriveKey(psk, nonce)
	k2 := DeriveKey(psk, nonce)
	if k1 != k2 {
		t.Fatal("DeriveKey is not deterministic for identical inputs")
	}

	var otherNonce [12]byte
	copy(otherNonce[:], nonce[:])
	otherNonce[0] ^= 0xFF
	k3 := DeriveKey(psk, otherNonce)
	if k1 == k3 {
		t.Fatal("DeriveKey produced identical keys for different nonces")
	}
}

func TestResetZeroesState(t *testing.T) {
	key, nonce := testKeyNonce()
	c := New(key, nonce)
	c.XOR(make([]byte, 10))
	c.Reset()
	if c.Active() {
		t.Fatal("Active() true after Reset")
	}
	for _, w := range c.state {
		if w != 0 {
			t.Fatal("state not zeroed after Reset")
		}
	}
}
