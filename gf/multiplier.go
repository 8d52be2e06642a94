// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gf

// Multiplier is a precomputed per-operand multiplication table: the powers
// a*x^j mod p for j in [0, bits), derived once from a fixed operand a. This
// is the optimization spec section 4.2 describes for the inner loops of
// PolyMod, DivMod, GCD, and Berlekamp-Massey, where the same operand is
// multiplied against many different field elements: paying the LFSR-step
// cost once up front turns each subsequent multiply into bits table lookups
// and an XOR-reduce instead of bits LFSR steps.
type Multiplier struct {
	p     *Params
	table [64]uint64
}

// NewMultiplier precomputes the multiplication table for a.
func NewMultiplier(a Element) Multiplier {
	m := Multiplier{p: a.p}
	v := a.v
	bits := int(a.p.Bits)
	for j := 0; j < bits; j++ {
		m.table[j] = v
		v = lfsrStep(v, a.p.modLow, a.p.Bits)
	}
	return m
}

// Mul returns a*b, where a is the operand NewMultiplier was built from.
func (m Multiplier) Mul(b Element) Element {
	var acc uint64
	bits := int(m.p.Bits)
	for j := 0; j < bits; j++ {
		if b.v&(uint64(1)<<uint(j)) != 0 {
			acc ^= m.table[j]
		}
	}
	return Element{acc, m.p}
}
