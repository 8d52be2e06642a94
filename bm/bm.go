// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package bm implements the Berlekamp-Massey algorithm used to recover a
// minimal linear-feedback-shift-register (equivalently, the error-locator
// polynomial) from a syndrome sequence.
package bm

import (
	"github.com/decred/slog"

	"github.com/dcrlabs/pinsketch/gf"
)

// log is the package-level logger, disabled by default. Callers opt in
// with UseLogger.
var log = slog.Disabled

// UseLogger sets the logger used by this package.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Run recovers the minimal locator polynomial (coefficients low-to-high,
// p[i] is the coefficient of x^i) consistent with syndromes, or returns nil
// if no such polynomial of degree <= maxDegree exists.
//
// Ported from sketch_impl.h's BerlekampMassey<F>: current/prev track the
// current-best and previous-before-last-update locator candidates, b/bInv
// is the discrepancy at the point of the last degree change (inverted
// lazily, only once another discrepancy actually needs it), and a degree
// change happens exactly when 2*deg(current) <= n, matching the standard
// Berlekamp-Massey invariant that the degree may only grow by at most half
// the new syndrome index.
func Run(syndromes []gf.Element, maxDegree int) []gf.Element {
	if len(syndromes) == 0 {
		return nil
	}
	p := syndromes[0].Params()
	one := gf.One(p)

	current := []gf.Element{one}
	prev := []gf.Element{one}
	b := one
	bInv := one
	bHaveInv := true

	table := make([]gf.Multiplier, 0, len(syndromes))

	for n := 0; n < len(syndromes); n++ {
		table = append(table, gf.NewMultiplier(syndromes[n]))

		discrepancy := syndromes[n]
		for i := 1; i < len(current); i++ {
			discrepancy = gf.Add(discrepancy, table[n-i].Mul(current[i]))
		}
		if discrepancy.IsZero() {
			continue
		}

		x := n + 1 - (len(current) - 1) - (len(prev) - 1)
		if !bHaveInv {
			bInv = gf.Inv(b)
			bHaveInv = true
		}
		swap := 2*(len(current)-1) <= n
		var tmp []gf.Element
		if swap {
			if len(prev)+x-1 > maxDegree {
				log.Debugf("berlekamp-massey: degree would exceed %d at syndrome %d", maxDegree, n)
				return nil
			}
			tmp = current
			current = growZero(current, p, len(prev)+x)
			log.Tracef("berlekamp-massey: degree grew to %d at syndrome %d", len(current)-1, n)
		}

		mul := gf.NewMultiplier(gf.Mul(discrepancy, bInv))
		for i := 0; i < len(prev); i++ {
			current[i+x] = gf.Add(current[i+x], mul.Mul(prev[i]))
		}
		if swap {
			prev = tmp
			b = discrepancy
			bHaveInv = false
		}
	}

	if len(current) == 0 || current[len(current)-1].IsZero() {
		return nil
	}
	return current
}

// growZero returns a grown to size n, preserving its existing elements and
// zero-filling the rest, matching std::vector<F>::resize's semantics on
// growth.
func growZero(a []gf.Element, p *gf.Params, n int) []gf.Element {
	if n <= len(a) {
		return a[:n]
	}
	out := make([]gf.Element, n)
	copy(out, a)
	for i := len(a); i < n; i++ {
		out[i] = gf.Zero(p)
	}
	return out
}
