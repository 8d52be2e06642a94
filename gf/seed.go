// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gf

import (
	"encoding/binary"

	"github.com/dchest/siphash"
)

// Domain-separation tags mixed into the SipHash key alongside a caller's
// seed, so that two backends asked to derive "the same" basis element from
// the same seed do not silently collide on an unrelated field width's
// derivation, and so that deriving a field element is never accidentally
// reusable as a nonce or key for anything else in this module.
const (
	domainClmul   = "CLMULFld"
	domainGeneric = "IntField"
)

// FromSeed deterministically derives a nonzero field element from seed: a
// counter starting at 0 is SipHash-2-4'd, keyed by the seed and a
// backend-specific domain tag, until the masked result is nonzero. This is
// used to pick a sketch's trace-splitting basis element from a 64-bit seed;
// see the csprng package for secure seed generation.
func (p *Params) FromSeed(seed uint64) Element {
	domain := domainGeneric
	if p.Backend != Generic {
		domain = domainClmul
	}
	k0 := binary.LittleEndian.Uint64([]byte(domain))

	var msg [8]byte
	for n := uint64(0); ; n++ {
		counter := (uint64(p.Bits) << 32) + n
		binary.LittleEndian.PutUint64(msg[:], counter)
		h := siphash.Hash(k0, seed, msg[:])
		v := h & maskBits(p.Bits)
		if v != 0 {
			return Element{v, p}
		}
	}
}
