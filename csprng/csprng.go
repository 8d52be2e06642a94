// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package csprng provides a cryptographically secure source of random
// 64-bit seeds, used to pick a sketch's default basis element at
// construction time. It is a ChaCha20-keystream-backed generator rather
// than a direct crypto/rand.Read per call, so that pulling many sketch
// seeds in a tight loop (as benchmarks and bulk sketch construction do)
// costs one stream cipher step instead of one kernel entropy read.
package csprng

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/bits"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20"
)

const (
	maxCipherRead     = 4 * 1024 * 1024 // 4 MiB
	maxCipherDuration = 20 * time.Second
)

// nonce is a 12-byte little-endian counter used as an incrementing ChaCha20
// nonce, reseeded well before it could repeat.
type nonce [chacha20.NonceSize]byte

func (n *nonce) inc() {
	n0 := binary.LittleEndian.Uint32(n[0:4])
	n1 := binary.LittleEndian.Uint32(n[4:8])
	n2 := binary.LittleEndian.Uint32(n[8:12])

	var carry uint32
	n0, carry = bits.Add32(n0, 1, carry)
	n1, carry = bits.Add32(n1, 0, carry)
	n2, _ = bits.Add32(n2, 0, carry)

	binary.LittleEndian.PutUint32(n[0:4], n0)
	binary.LittleEndian.PutUint32(n[4:8], n1)
	binary.LittleEndian.PutUint32(n[8:12], n2)
}

// Source is a cryptographically secure pseudorandom byte source. Source
// methods are not safe for concurrent access; use the package-level
// functions, which share a mutex-guarded Source, for concurrent callers.
type Source struct {
	key    [chacha20.KeySize]byte
	nonce  nonce
	cipher chacha20.Cipher
	read   int
	t      time.Time
}

// NewSource returns a freshly seeded Source.
func NewSource() (*Source, error) {
	s := new(Source)
	if err := s.seed(); err != nil {
		return nil, err
	}
	return s, nil
}

// seed reseeds the cipher with kernel entropy, additionally running any
// existing keystream through it once already seeded so that a compromise
// of one period's key does not retroactively expose prior output.
func (s *Source) seed() error {
	if _, err := cryptorand.Read(s.key[:]); err != nil && s.t.IsZero() {
		return err
	}
	if !s.t.IsZero() {
		// Whiten the new key through the outgoing cipher so a
		// compromise of this period's key doesn't retroactively
		// expose prior output. Skipped on the very first seed, when
		// s.cipher is still a zero-value, unconstructed Cipher.
		s.cipher.XORKeyStream(s.key[:], s.key[:])
	}

	cipher, _ := chacha20.NewUnauthenticatedCipher(s.key[:], s.nonce[:])
	s.cipher = *cipher
	s.nonce.inc()
	s.read = 0
	s.t = time.Now().Add(maxCipherDuration)
	return nil
}

// Read fills b with cryptographically secure random bytes. It never
// errors.
func (s *Source) Read(b []byte) (n int, err error) {
	if time.Now().After(s.t) {
		if err := s.seed(); err != nil {
			panic(err)
		}
	}
	for s.read+len(b) > maxCipherRead {
		l := maxCipherRead - s.read
		s.cipher.XORKeyStream(b[:l], b[:l])
		s.seed()
		n += l
		b = b[l:]
	}
	s.cipher.XORKeyStream(b, b)
	s.read += len(b)
	n += len(b)
	return n, nil
}

// Uint64 returns a uniform random uint64.
func (s *Source) Uint64() uint64 {
	var b [8]byte
	s.Read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

type lockingSource struct {
	*Source
	sync.Mutex
}

var global *lockingSource

func init() {
	s, err := NewSource()
	if err != nil {
		panic(err)
	}
	global = &lockingSource{Source: s}
}

// Uint64 returns a uniform random uint64 from the shared global source.
func Uint64() uint64 {
	global.Lock()
	defer global.Unlock()
	return global.Source.Uint64()
}
