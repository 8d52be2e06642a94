// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package poly implements polynomial arithmetic over a gf.Params field,
// represented as a coefficient slice indexed by exponent: p[i] is the
// coefficient of x^i, and the polynomial's degree is len(p)-1. The zero
// polynomial is the empty slice. These are the primitive operations
// Berlekamp-Massey and Berlekamp trace root-finding are built from.
package poly

import "github.com/dcrlabs/pinsketch/gf"

// Mod reduces val modulo mod in place, returning the (possibly shorter,
// possibly nil) remainder slice. mod must be monic (its leading
// coefficient must be One) and non-empty.
//
// Grounded on sketch_impl.h's PolyMod<F>: the leading term of val is
// eliminated against mod's leading One coefficient on each step, using a
// gf.Multiplier built from that term so the inner elimination loop is
// table lookups rather than repeated field multiplies.
func Mod(mod, val []gf.Element) []gf.Element {
	modsize := len(mod)
	if len(val) < modsize {
		return trim(val)
	}
	for len(val) >= modsize {
		term := val[len(val)-1]
		val = val[:len(val)-1]
		if !term.IsZero() {
			mul := gf.NewMultiplier(term)
			base := len(val) - modsize + 1
			for x := 0; x < modsize-1; x++ {
				val[base+x] = gf.Add(val[base+x], mul.Mul(mod[x]))
			}
		}
	}
	return trim(val)
}

// DivMod computes the quotient and remainder of val divided by mod. mod
// must be monic and non-empty. val is consumed; the remainder is returned
// alongside the quotient.
func DivMod(mod, val []gf.Element) (quot, rem []gf.Element) {
	modsize := len(mod)
	if len(val) < modsize {
		return nil, val
	}
	quot = make([]gf.Element, len(val)-modsize+1)
	for len(val) >= modsize {
		term := val[len(val)-1]
		quot[len(val)-modsize] = term
		val = val[:len(val)-1]
		if !term.IsZero() {
			mul := gf.NewMultiplier(term)
			base := len(val) - modsize + 1
			for x := 0; x < modsize-1; x++ {
				val[base+x] = gf.Add(val[base+x], mul.Mul(mod[x]))
			}
		}
	}
	return quot, val
}

// MakeMonic scales a in place so its leading coefficient is One, returning
// the inverse of the original leading coefficient (the scale factor
// applied), or Zero if a was already monic. a must be non-empty and
// non-zero-leading.
func MakeMonic(a []gf.Element) gf.Element {
	lead := a[len(a)-1]
	if lead.IsOne() {
		return gf.Zero(lead.Params())
	}
	inv := gf.Inv(lead)
	mul := gf.NewMultiplier(inv)
	a[len(a)-1] = gf.One(lead.Params())
	for i := 0; i < len(a)-1; i++ {
		a[i] = mul.Mul(a[i])
	}
	return inv
}

// GCD returns the monic greatest common divisor of a and b.
func GCD(a, b []gf.Element) []gf.Element {
	a = append([]gf.Element(nil), a...)
	b = append([]gf.Element(nil), b...)
	if len(a) < len(b) {
		a, b = b, a
	}
	for len(b) > 0 {
		if len(b) == 1 {
			return []gf.Element{gf.One(b[0].Params())}
		}
		MakeMonic(b)
		a = Mod(b, a)
		a, b = b, a
	}
	return a
}

// Sqr returns poly squared: since squaring is Frobenius-linear over
// GF(2^b), (sum a_i x^i)^2 = sum a_i x^(2i), so the result just spreads
// poly's coefficients to even-indexed positions and squares each one, no
// cross terms.
func Sqr(poly []gf.Element) []gf.Element {
	if len(poly) == 0 {
		return nil
	}
	zero := gf.Zero(poly[0].Params())
	out := make([]gf.Element, len(poly)*2-1)
	for x := len(out) - 1; x >= 0; x-- {
		if x&1 == 1 {
			out[x] = zero
		} else {
			out[x] = poly[x/2].Sqr()
		}
	}
	return out
}

// TraceMod computes the symbolic trace polynomial of param*x modulo mod:
// Tr(param*x) = sum_{i=0}^{bits-1} (param*x)^(2^i), reduced mod mod at
// every step to keep the intermediate degree bounded.
func TraceMod(mod []gf.Element, param gf.Element) []gf.Element {
	p := param.Params()
	bits := int(p.Bits)
	out := make([]gf.Element, 2)
	out[0] = gf.Zero(p)
	out[1] = param

	for i := 0; i < bits-1; i++ {
		out = Sqr(out)
		for len(out) < 2 {
			out = append(out, gf.Zero(p))
		}
		out[1] = param
		out = Mod(mod, out)
	}
	return out
}

// trim strips trailing zero coefficients (which, after gf.Element's zero
// value, are the slice's IsZero() entries) so the degree invariant
// (non-empty implies non-zero leading coefficient) holds.
func trim(v []gf.Element) []gf.Element {
	for len(v) > 0 && v[len(v)-1].IsZero() {
		v = v[:len(v)-1]
	}
	return v
}
