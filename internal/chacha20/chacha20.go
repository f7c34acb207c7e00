// Package chacha20 implements the ChaCha20 stream cipher (RFC 7539) with the
// exact block-cache/offset contract the control and data channel XOR
// transform needs: callers XOR arbitrary-length byte runs through a single
// long-lived Cipher, and the cipher regenerates its 64-byte keystream block
// only when the cache is exhausted, tracking how far into the current block
// it has consumed.
//
// This is hand-rolled rather than built on golang.org/x/crypto/chacha20
// because that package exposes a plain io.Reader-shaped keystream, not the
// cache-with-offset object the session cipher's Reset/KDF/XOR trio requires
// (see DESIGN.md).
package chacha20

import "encoding/binary"

// sigma is the ChaCha20 constant "expand 32-byte k" split into four
// little-endian 32-bit words.
var sigma = [4]uint32{
	0x61707865,
	0x3320646e,
	0x79622d32,
	0x6b206574,
}

// Cipher holds ChaCha20 state plus the 64-byte keystream cache and the
// offset into it. The zero value is not usable; construct with New.
type Cipher struct {
	state     [16]uint32
	keystream [64]byte
	offset    int // 0..64, bytes of keystream already consumed
	counter   uint32
	active    bool
}

func rotl32(v uint32, n uint) uint32 {
	return (v << n) | (v >> (32 - n))
}

func quarterRound(a, b, c, d *uint32) {
	*a += *b
	*d ^= *a
	*d = rotl32(*d, 16)
	*c += *d
	*b ^= *c
	*b = rotl32(*b, 12)
	*a += *b
	*d ^= *a
	*d = rotl32(*d, 8)
	*c += *d
	*b ^= *c
	*b = rotl32(*b, 7)
}

// block runs the 20-round ChaCha20 permutation over state and serializes the
// result (state + original state, little-endian) into out.
func block(state [16]uint32, out *[64]byte) {
	x := state

	for i := 0; i < 10; i++ {
		quarterRound(&x[0], &x[4], &x[8], &x[12])
		quarterRound(&x[1], &x[5], &x[9], &x[13])
		quarterRound(&x[2], &x[6], &x[10], &x[14])
		quarterRound(&x[3], &x[7], &x[11], &x[15])

		quarterRound(&x[0], &x[5], &x[10], &x[15])
		quarterRound(&x[1], &x[6], &x[11], &x[12])
		quarterRound(&x[2], &x[7], &x[8], &x[13])
		quarterRound(&x[3], &x[4], &x[9], &x[14])
	}

	for i := range x {
		x[i] += state[i]
	}
	for i := range x {
		binary.LittleEndian.PutUint32(out[i*4:], x[i])
	}
}

func buildState(key [32]byte, nonce [12]byte) [16]uint32 {
	var s [16]uint32
	s[0], s[1], s[2], s[3] = sigma[0], sigma[1], sigma[2], sigma[3]
	for i := 0; i < 8; i++ {
		s[4+i] = binary.LittleEndian.Uint32(key[i*4:])
	}
	s[12] = 0
	s[13] = binary.LittleEndian.Uint32(nonce[0:])
	s[14] = binary.LittleEndian.Uint32(nonce[4:])
	s[15] = binary.LittleEndian.Uint32(nonce[8:])
	return s
}

// New initializes a Cipher with the given 256-bit key and 96-bit nonce, block
// counter starting at 0. The first call to XOR generates the initial
// keystream block.
func New(key [32]byte, nonce [12]byte) *Cipher {
	c := &Cipher{
		state:   buildState(key, nonce),
		offset:  64, // force block generation on first XOR
		counter: 0,
		active:  true,
	}
	return c
}

// Active reports whether the cipher has been initialized and not yet Reset.
func (c *Cipher) Active() bool {
	return c != nil && c.active
}

// XOR encrypts or decrypts data in place, consuming and regenerating the
// keystream cache as needed. Calling XOR repeatedly on a single Cipher
// produces a single continuous keystream across all calls, which is what
// lets the session apply it to a sequence of unrelated-sized reads/writes in
// transmission order.
func (c *Cipher) XOR(data []byte) {
	if c == nil || !c.active || len(data) == 0 {
		return
	}

	remaining := len(data)
	pos := 0

	for remaining > 0 {
		if c.offset >= 64 {
			c.state[12] = c.counter
			block(c.state, &c.keystream)
			c.counter++
			c.offset = 0
		}

		avail := 64 - c.offset
		chunk := remaining
		if chunk > avail {
			chunk = avail
		}

		for i := 0; i < chunk; i++ {
			data[pos+i] ^= c.keystream[c.offset+i]
		}

		pos += chunk
		remaining -= chunk
		c.offset += chunk
	}
}

// Reset zeroes the cipher state and clears the active flag, for secure
// teardown when a session closes. Go has no true volatile write, so this
// performs an explicit byte-by-byte overwrite that the compiler cannot prove
// is dead (the Cipher escapes to the heap and is about to be discarded, so
// there is no further read to optimize the store away in favor of).
func (c *Cipher) Reset() {
	if c == nil {
		return
	}
	for i := range c.state {
		c.state[i] = 0
	}
	for i := range c.keystream {
		c.keystream[i] = 0
	}
	c.offset = 0
	c.counter = 0
	c.active = false
}

// DeriveKey implements the session key derivation: build a ChaCha20 state
// from psk (as key) and nonce with counter 0, generate one 64-byte keystream
// block, and take its first 32 bytes as the derived key. This is
// deliberately not HKDF or any AEAD construction — it mirrors the original
// KDF exactly so interop with scenario S7 holds.
func DeriveKey(psk [32]byte, nonce [12]byte) [32]byte {
	state := buildState(psk, nonce)

	var ks [64]byte
	block(state, &ks)

	var out [32]byte
	copy(out[:], ks[:32])

	// Scrub temporaries; same caveat on Go's lack of volatile as Reset.
	for i := range ks {
		ks[i] = 0
	}
	for i := range state {
		state[i] = 0
	}

	return out
}
