// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gf

import "math/big"

// A gf2poly is a polynomial over GF(2) represented as a big.Int whose bit i
// is the coefficient of x^i.  This representation, rather than a fixed
// uint64, is only used by the one-time modulus search below: intermediate
// products during the irreducibility test can exceed 64 bits even though
// every modulus this package ultimately selects has degree <= 64.

// gf2polyMulMod returns (a*b) mod m, where m is monic of degree deg(m) and
// a, b are already reduced modulo m.
func gf2polyMulMod(a, b, m *big.Int) *big.Int {
	prod := new(big.Int)
	term := new(big.Int)
	for i := 0; i <= b.BitLen(); i++ {
		if b.Bit(i) == 1 {
			term.Lsh(a, uint(i))
			prod.Xor(prod, term)
		}
	}
	return gf2polyMod(prod, m)
}

// gf2polyMod reduces v modulo m via schoolbook long division in GF(2).
func gf2polyMod(v, m *big.Int) *big.Int {
	r := new(big.Int).Set(v)
	mdeg := m.BitLen() - 1
	shifted := new(big.Int)
	for r.BitLen()-1 >= mdeg {
		shift := uint((r.BitLen() - 1) - mdeg)
		shifted.Lsh(m, shift)
		r.Xor(r, shifted)
	}
	return r
}

// gf2polyGCD returns gcd(a, b) over GF(2)[x].
func gf2polyGCD(a, b *big.Int) *big.Int {
	a = new(big.Int).Set(a)
	b = new(big.Int).Set(b)
	for b.Sign() != 0 {
		a, b = b, gf2polyMod(a, b)
	}
	return a
}

// gf2polyDivisors returns the proper divisors of n (excluding n itself,
// including 1 when n > 1).
func gf2polyDivisors(n int) []int {
	var divs []int
	for d := 1; d < n; d++ {
		if n%d == 0 {
			divs = append(divs, d)
		}
	}
	return divs
}

// isIrreducible runs Rabin's irreducibility test on the monic degree-n
// polynomial f (f.Bit(n) == 1) over GF(2).
//
// f is irreducible iff:
//  1. x^(2^n) === x (mod f), and
//  2. gcd(x^(2^d) - x, f) == 1 for every proper divisor d of n.
//
// Both conditions are evaluated by repeated squaring of the running value
// x^(2^i) mod f, checking condition 2 whenever i is a proper divisor of n.
func isIrreducible(f *big.Int, n int) bool {
	one := big.NewInt(1)
	divisors := gf2polyDivisors(n)
	divisorSet := make(map[int]bool, len(divisors))
	for _, d := range divisors {
		divisorSet[d] = true
	}

	h := gf2polyMod(big.NewInt(2), f) // x mod f
	x := new(big.Int).Set(h)
	for i := 1; i <= n; i++ {
		h = gf2polyMulMod(h, h, f) // h := h^2 mod f, i.e. x^(2^i) mod f
		if i < n && divisorSet[i] {
			diff := new(big.Int).Xor(h, x)
			if gf2polyGCD(diff, f).Cmp(one) != 0 {
				return false
			}
		}
	}
	return h.Cmp(x) == 0
}

// selectModulus returns the bits-below-degree-n portion of the lowest-weight
// irreducible polynomial of degree n over GF(2): a trinomial x^n+x^k+1 if one
// exists, else a pentanomial x^n+x^a+x^b+x^c+1.  The constant term is always
// 1, matching the serialization contract in spec section 3.
//
// The search is exhaustive but n <= 64 keeps it fast; callers memoize the
// result per bit width since this function is only ever needed once per
// width for the lifetime of a process.
func selectModulus(n int) uint64 {
	if anchor, ok := knownModulus[n]; ok {
		return anchor
	}

	full := func(lowBits uint64) *big.Int {
		f := new(big.Int).SetUint64(lowBits)
		f.SetBit(f, n, 1)
		return f
	}

	for k := 1; k < n; k++ {
		low := uint64(1) | (uint64(1) << uint(k))
		if isIrreducible(full(low), n) {
			return low
		}
	}

	for a := 2; a < n; a++ {
		for b := 1; b < a; b++ {
			for c := 1; c < b; c++ {
				low := uint64(1) | (uint64(1) << uint(a)) | (uint64(1) << uint(b)) | (uint64(1) << uint(c))
				if isIrreducible(full(low), n) {
					return low
				}
			}
		}
	}

	panic("gf: no low-weight irreducible polynomial found for degree")
}

// knownModulus pins the two moduli spec section 6 calls out by name as a
// cross-implementation compatibility contract: their exact values must be
// preserved verbatim rather than re-derived by search.
// TestKnownModuliAreIrreducible checks that both are irreducible; no test
// compares them with what the search would select.
var knownModulus = map[int]uint64{
	32: 1<<7 | 1<<3 | 1<<2 | 1, // x^32 + x^7 + x^3 + x^2 + 1
	64: 1<<4 | 1<<3 | 1<<1 | 1, // x^64 + x^4 + x^3 + x + 1
}
