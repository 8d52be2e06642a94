// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gf

import "github.com/dcrlabs/pinsketch/bitio"

// Element is a single value in GF(2^b) for some Params-fixed b, represented
// in the polynomial basis: bit i of v is the coefficient of x^i. Elements
// from different Params must never be mixed; every method here assumes its
// receiver and any argument elements share the same Params.
type Element struct {
	v uint64
	p *Params
}

// Zero returns the additive identity of the field described by p.
func Zero(p *Params) Element { return Element{0, p} }

// One returns the multiplicative identity of the field described by p.
func One(p *Params) Element { return Element{1, p} }

// FromU64 builds the element whose polynomial-basis coefficients are the
// low p.Bits bits of v, discarding any higher bits.
func FromU64(p *Params, v uint64) Element { return Element{v & maskBits(p.Bits), p} }

// ToU64 returns the element's polynomial-basis coefficients packed into a
// uint64.
func (a Element) ToU64() uint64 { return a.v }

// Params returns the field this element belongs to.
func (a Element) Params() *Params { return a.p }

// IsZero reports whether a is the additive identity.
func (a Element) IsZero() bool { return a.v == 0 }

// IsOne reports whether a is the multiplicative identity.
func (a Element) IsOne() bool { return a.v == 1 }

// Equal reports whether a and b hold the same value.
func (a Element) Equal(b Element) bool { return a.v == b.v }

// Add returns a + b, which in characteristic 2 is bitwise XOR.
func Add(a, b Element) Element { return Element{a.v ^ b.v, a.p} }

// Mul2 multiplies a by the field generator x: a single LFSR step. This is
// the specialization spec section 4.2 calls out separately from the
// general multiply, since it costs one shift and a conditional XOR instead
// of a full product.
func (a Element) Mul2() Element {
	return Element{lfsrStep(a.v, a.p.modLow, a.p.Bits), a.p}
}

// Sqr returns a^2, looked up from the precomputed squaring table.
func (a Element) Sqr() Element {
	return Element{a.p.sqrTable.Apply(a.v), a.p}
}

// Sqr2k returns a^(2^k) for k in [0, 63].
func (a Element) Sqr2k(k int) Element {
	return Element{a.p.sqrPow(a.v, k), a.p}
}

// Qrt returns a solution y of y^2 + y = a, when one exists. Whether a has
// a solution depends on a's trace; see the buildQrtTable doc comment.
func (a Element) Qrt() Element {
	return Element{a.p.qrtTable.Apply(a.v), a.p}
}

// Mul returns a*b. The Generic backend uses the LFSR-driven carryless
// multiply (mulGeneric): step a through the field's LFSR once per bit of b,
// XORing in the current shifted value of a wherever b has a set bit, with
// reduction folded into each shift. The clmul backends use mulClmul.
func Mul(a, b Element) Element {
	if a.p.Backend == Generic {
		return mulGeneric(a, b)
	}
	return mulClmul(a, b)
}

func mulGeneric(a, b Element) Element {
	var acc uint64
	av := a.v
	bits := int(a.p.Bits)
	for i := 0; i < bits; i++ {
		if b.v&(uint64(1)<<uint(i)) != 0 {
			acc ^= av
		}
		av = lfsrStep(av, a.p.modLow, a.p.Bits)
	}
	return Element{acc, a.p}
}

// mulClmul computes a*b by forming the full double-width carryless product
// in software and folding it down modulo the field's modulus. This plays
// the structural role of the hardware PCLMULQDQ-based backends spec
// section 4.2 describes (whole-word multiply, then a couple of reduction
// folds against the modulus) without depending on an actual CPU intrinsic,
// which Go exposes no portable way to call without assembly.
func mulClmul(a, b Element) Element {
	hi, lo := clmul64(a.v, b.v)
	return Element{reduceClmul(hi, lo, a.p.modLow, a.p.Bits), a.p}
}

// clmul64 computes the carryless (XOR, no-carry) product of a and b as a
// 128-bit result split into hi and lo halves.
func clmul64(a, b uint64) (hi, lo uint64) {
	for i := 0; i < 64; i++ {
		if b&(uint64(1)<<uint(i)) == 0 {
			continue
		}
		if i == 0 {
			lo ^= a
			continue
		}
		lo ^= a << uint(i)
		hi ^= a >> uint(64-i)
	}
	return hi, lo
}

// reduceClmul folds a double-width carryless product down to bits wide
// modulo the field's modulus. Bit j of the combined (hi,lo) value beyond
// position bits-1 represents a coefficient of x^j; since x^bits === modLow
// (mod p), each such bit can be replaced by modLow shifted into position,
// i.e. by XORing in the carryless product of the overflow chunk with
// modLow. Iterating converges in at most two folds since the input product
// has degree at most 2*(bits-1).
func reduceClmul(hi, lo, modLow uint64, bits uint8) uint64 {
	for hi != 0 || (bits < 64 && lo>>bits != 0) {
		var overflow uint64
		if bits < 64 {
			overflow = (hi << (64 - bits)) | (lo >> bits)
			lo &= maskBits(bits)
		} else {
			overflow = hi
		}
		hi = 0
		fhi, flo := clmul64(overflow, modLow)
		hi ^= fhi
		lo ^= flo
	}
	return lo & maskBits(bits)
}

// Inv returns the multiplicative inverse of a. a must be nonzero.
func Inv(a Element) Element {
	if a.p.Backend == Generic {
		return Element{invExtGCD(a.v, a.p.modLow, a.p.Bits), a.p}
	}
	return invLadder(a)
}

// invExtGCD computes the inverse of v in GF(2^bits)/modLow via the
// polynomial extended Euclidean algorithm, following the reference
// implementation's InvExtGCD: maintain a pair (r, t) and (nr, nt) of
// degree-tagged polynomials satisfying r === t*v and nr === nt*v (mod the
// field modulus). Each step cancels r's leading term against nr (r ^=
// nr<<q, t ^= nt<<q), then swaps (r,t) with (nr,nt) only if that reduction
// left r at a lower degree than nr. Once nr reaches zero, r is the GCD (1,
// since v is nonzero and the modulus is irreducible) and t is v's inverse.
func invExtGCD(v, modLow uint64, bits uint8) uint64 {
	rHi, rLo := poly128WithBit(bits, modLow) // r = x^bits + modLow
	nrHi, nrLo := uint64(0), v
	tLo := uint64(0)
	ntLo := uint64(1)

	for nrHi != 0 || nrLo != 0 {
		rDeg := deg128(rHi, rLo)
		nrDeg := deg128(nrHi, nrLo)
		shift := uint(rDeg - nrDeg)
		rHi, rLo = xorShifted(rHi, rLo, nrHi, nrLo, shift)
		tLo ^= ntLo << shift

		if deg128(rHi, rLo) < nrDeg {
			rHi, rLo, nrHi, nrLo = nrHi, nrLo, rHi, rLo
			tLo, ntLo = ntLo, tLo
		}
	}
	return tLo
}

// poly128WithBit returns the 128-bit (hi, lo) polynomial with bit `bit` set
// and the low bits set from low (low must have degree < bit).
func poly128WithBit(bit uint8, low uint64) (hi, lo uint64) {
	if bit < 64 {
		return 0, low | (uint64(1) << bit)
	}
	return 1, low
}

// deg64 returns the degree of the GF(2) polynomial represented by v (the
// index of its highest set bit, or -1 for the zero polynomial).
func deg64(v uint64) int {
	d := -1
	for i := 0; i < 64; i++ {
		if v&(uint64(1)<<uint(i)) != 0 {
			d = i
		}
	}
	return d
}

// deg128 returns the degree of the GF(2) polynomial represented by the pair
// (hi, lo), hi being bits 64..127.
func deg128(hi, lo uint64) int {
	if hi != 0 {
		return deg64(hi) + 64
	}
	return deg64(lo)
}

// xorShifted returns (aHi,aLo) XOR ((bHi,bLo) << shift), all as 128-bit
// values split into hi/lo halves.
func xorShifted(aHi, aLo, bHi, bLo uint64, shift uint) (hi, lo uint64) {
	if shift == 0 {
		return aHi ^ bHi, aLo ^ bLo
	}
	lo = aLo ^ (bLo << shift)
	hi = aHi ^ (bHi << shift) ^ (bLo >> (64 - shift))
	return hi, lo
}

// invLadder computes a's inverse as a^(2^bits - 2) using an Itoh-Tsujii
// style addition chain: a^(2^bits-2) = (a^(2^(bits-1)-1))^2, and
// a^(2^n-1) is built by the classical doubling recursion xPow2nMinus1,
// which needs only O(log n) multiplications and squarings via the
// precomputed sqr_2^k tables instead of bits-1 sequential multiplications.
func invLadder(a Element) Element {
	y := xPow2nMinus1(a, int(a.p.Bits)-1)
	return y.Sqr()
}

// xPow2nMinus1 returns a^(2^n - 1) for n >= 1.
func xPow2nMinus1(a Element, n int) Element {
	if n == 1 {
		return a
	}
	if n%2 == 0 {
		h := n / 2
		y := xPow2nMinus1(a, h)
		return Mul(y.Sqr2k(h), y)
	}
	y := xPow2nMinus1(a, n-1)
	return Mul(y.Sqr(), a)
}

// Serialize appends a's polynomial-basis representation to w.
func (a Element) Serialize(w *bitio.Writer) {
	w.Write(a.v, uint(a.p.Bits))
}

// Deserialize reads one field element from r.
func Deserialize(p *Params, r *bitio.Reader) Element {
	return Element{r.Read(uint(p.Bits)), p}
}
