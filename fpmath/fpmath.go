// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package fpmath computes the false-positive capacity relationship between
// a sketch's field width, its capacity, and the number of elements it is
// asked to hold: a sketch of capacity c decoding a random c*b-bit pattern
// to k <= c elements does so spuriously with probability approximately
// C(2^b-1, k) / 2^(b*c). Both directions of that relationship are exposed
// as exact integer comparisons via math/big rather than as a floating
// point log-binomial approximation, since the inequality only needs to be
// decided, not its magnitude reported.
package fpmath

import "math/big"

// ComputeCapacity returns the smallest capacity c such that a sketch of
// that capacity has false-positive probability at most 2^-fpbits when
// asked to decode up to maxElements elements: the smallest c satisfying
// C(2^b-1, maxElements) * 2^fpbits <= 2^(b*c). Returns 0 when b is 0.
func ComputeCapacity(bits uint8, maxElements, fpbits int) int {
	if bits == 0 {
		return 0
	}
	n := new(big.Int).Sub(pow2(int(bits)), big.NewInt(1))
	lhs := new(big.Int).Mul(binomial(n, maxElements), pow2(fpbits))

	for c := 1; ; c++ {
		if lhs.Cmp(pow2(int(bits)*c)) <= 0 {
			return c
		}
	}
}

// ComputeMaxElements returns the largest k <= c such that a capacity-c
// sketch has false-positive probability at most 2^-fpbits when decoding k
// elements: the largest k satisfying C(2^b-1, k) * 2^fpbits <= 2^(b*c).
// Returns 0 when b is 0 or when even k=0 fails the inequality.
func ComputeMaxElements(bits uint8, capacity, fpbits int) int {
	if bits == 0 {
		return 0
	}
	n := new(big.Int).Sub(pow2(int(bits)), big.NewInt(1))
	rhs := pow2(int(bits) * capacity)

	for k := capacity; k >= 0; k-- {
		lhs := new(big.Int).Mul(binomial(n, k), pow2(fpbits))
		if lhs.Cmp(rhs) <= 0 {
			return k
		}
	}
	return 0
}

func pow2(e int) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(e))
}

// binomial returns C(n, k) for a possibly large n and small, non-negative
// k, via the iterative product-of-ratios form so intermediate values stay
// exact without needing a factorial of n itself.
func binomial(n *big.Int, k int) *big.Int {
	if k < 0 {
		return big.NewInt(0)
	}
	result := big.NewInt(1)
	term := new(big.Int)
	for i := 0; i < k; i++ {
		term.Sub(n, big.NewInt(int64(i)))
		if term.Sign() <= 0 {
			return big.NewInt(0)
		}
		result.Mul(result, term)
		result.Div(result, big.NewInt(int64(i+1)))
	}
	return result
}
