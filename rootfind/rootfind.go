// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rootfind finds the roots of a square-free polynomial over a
// gf.Params field using the Berlekamp trace-splitting algorithm: at each
// step a random trace polynomial either splits the input into two
// nontrivial factors (recursed on independently) or, for degree 1 and 2
// inputs, is solved directly.
package rootfind

import (
	"github.com/decred/slog"

	"github.com/dcrlabs/pinsketch/gf"
	"github.com/dcrlabs/pinsketch/poly"
)

// log is the package-level logger, disabled by default.
var log = slog.Disabled

// UseLogger sets the logger used by this package.
func UseLogger(logger slog.Logger) {
	log = logger
}

// FindRoots returns the roots of p, a square-free, non-constant, monic
// polynomial (ascending coefficients), or nil if p is not fully
// factorizable into degree-1 factors over the field. basis seeds the
// trace-splitting random values and must be nonzero; successive splits
// multiply it by the field generator, so distinct splits use a
// GF(2)-linearly independent basis of trial values.
func FindRoots(p []gf.Element, basis gf.Element) []gf.Element {
	if len(p) == 0 || basis.IsZero() {
		return nil
	}
	if len(p) == 1 {
		return nil // constant polynomial: no roots
	}

	roots := make([]gf.Element, 0, len(p)-1)
	stack := [][]gf.Element{p}
	if !recFindRoots(&stack, 0, &roots, false, 0, basis) {
		return nil
	}
	if len(roots) != len(p)-1 {
		return nil
	}
	return roots
}

// recFindRoots finds the roots of stack[pos] and appends them to *roots.
// After a split, stack[pos] holds the trace-zero factor and stack[pos+1]
// the cofactor. Each call allocates fresh slices for its working
// polynomials (trace, squares, GCD, quotient); stack slots are overwritten
// with those slices, not reused as buffers.
//
// fullyFactorizable, once true, asserts that stack[pos] has no irreducible
// factor of degree > 1; it is set the first time the fast trace-based test
// (trace + trace^2 === 0 mod poly, iff poly divides x + x^(2^bits) which
// has every field element as a root exactly once) confirms it, and is
// passed down unconditionally to the two recursive calls once confirmed,
// since both halves of a split inherit full factorizability from the
// whole.
func recFindRoots(stack *[][]gf.Element, pos int, roots *[]gf.Element, fullyFactorizable bool, depth int, randv gf.Element) bool {
	ppoly := (*stack)[pos]

	if len(ppoly) == 2 {
		*roots = append(*roots, ppoly[0])
		return true
	}
	if len(ppoly) == 3 {
		if ppoly[1].IsZero() {
			// A square-free polynomial never has the form x^2+a.
			return false
		}
		input := gf.Mul(ppoly[0], gf.Inv(ppoly[1]).Sqr())
		root := input.Qrt()
		if !gf.Add(root.Sqr(), root).Equal(input) {
			return false // no root: input is outside Qrt's solvable domain
		}
		sol := gf.Mul(root, ppoly[1])
		*roots = append(*roots, sol, gf.Add(sol, ppoly[1]))
		return true
	}

	for pos+3 > len(*stack) {
		*stack = append(*stack, nil)
	}
	params := ppoly[0].Params()
	bits := int(params.Bits)

	var trace []gf.Element
	for iter := 0; ; iter++ {
		trace = poly.TraceMod(ppoly, randv)

		if iter >= 1 && !fullyFactorizable {
			tmp := poly.Sqr(trace)
			for i := range trace {
				tmp[i] = gf.Add(tmp[i], trace[i])
			}
			tmp = poly.Mod(ppoly, tmp)
			if len(tmp) != 0 {
				log.Debugf("rootfind: trace+trace^2 test failed, not fully factorizable")
				return false
			}
			fullyFactorizable = true
		}

		if fullyFactorizable {
			shift := bits - depth
			if shift < 0 {
				shift = 0
			}
			if (len(ppoly)-2)>>uint(shift) != 0 {
				return false
			}
		}

		depth++
		randv = randv.Mul2()

		g := poly.GCD(trace, ppoly)
		if len(g) != len(ppoly) && len(g) > 1 {
			trace = g
			break
		}
	}

	poly.MakeMonic(trace)
	quot, _ := poly.DivMod(trace, append([]gf.Element(nil), ppoly...))

	(*stack)[pos] = trace
	(*stack)[pos+1] = quot

	log.Tracef("rootfind: split degree %d into %d and %d at depth %d", len(ppoly)-1, len(trace)-1, len(quot)-1, depth)

	if !recFindRoots(stack, pos+1, roots, fullyFactorizable, depth, randv) {
		return false
	}
	// trace never contains an irreducible factor of degree > 1: every
	// element surviving the split into stack[pos] has trace(randv*x) == 0,
	// which an irreducible factor of degree > 1 could not satisfy for all
	// of its (Frobenius-conjugate) roots simultaneously.
	return recFindRoots(stack, pos, roots, true, depth, randv)
}
