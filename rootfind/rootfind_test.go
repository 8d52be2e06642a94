// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rootfind

import (
	"sort"
	"testing"

	"github.com/dcrlabs/pinsketch/gf"
)

// buildFromRoots returns the monic polynomial (ascending coefficients)
// whose roots are exactly the given distinct elements.
func buildFromRoots(p *gf.Params, roots []gf.Element) []gf.Element {
	acc := []gf.Element{gf.One(p)}
	for _, r := range roots {
		next := make([]gf.Element, len(acc)+1)
		for i := range next {
			next[i] = gf.Zero(p)
		}
		for i, c := range acc {
			next[i] = gf.Add(next[i], gf.Mul(c, r))
			next[i+1] = gf.Add(next[i+1], c)
		}
		acc = next
	}
	return acc
}

func sortedU64(p *gf.Params, els []gf.Element) []uint64 {
	out := make([]uint64, len(els))
	for i, e := range els {
		out[i] = e.ToU64()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestFindRootsRecoversExactSet(t *testing.T) {
	p, err := gf.NewParams(8, gf.Generic)
	if err != nil {
		t.Fatal(err)
	}
	want := []gf.Element{
		gf.FromU64(p, 1),
		gf.FromU64(p, 2),
		gf.FromU64(p, 3),
		gf.FromU64(p, 200),
		gf.FromU64(p, 250),
	}
	poly := buildFromRoots(p, want)
	basis := gf.FromU64(p, 0x5A)

	got := FindRoots(poly, basis)
	if got == nil {
		t.Fatal("FindRoots returned nil, expected roots")
	}
	if len(got) != len(want) {
		t.Fatalf("got %d roots, want %d", len(got), len(want))
	}

	gotSorted := sortedU64(p, got)
	wantSorted := sortedU64(p, want)
	for i := range gotSorted {
		if gotSorted[i] != wantSorted[i] {
			t.Fatalf("roots mismatch: got %v, want %v", gotSorted, wantSorted)
		}
	}
}

func TestFindRootsSingleRoot(t *testing.T) {
	p, err := gf.NewParams(8, gf.Generic)
	if err != nil {
		t.Fatal(err)
	}
	r := gf.FromU64(p, 77)
	poly := buildFromRoots(p, []gf.Element{r})
	got := FindRoots(poly, gf.FromU64(p, 3))
	if len(got) != 1 || !got[0].Equal(r) {
		t.Fatalf("got %v, want [%v]", got, r)
	}
}

func TestFindRootsRejectsZeroBasis(t *testing.T) {
	p, err := gf.NewParams(8, gf.Generic)
	if err != nil {
		t.Fatal(err)
	}
	poly := buildFromRoots(p, []gf.Element{gf.FromU64(p, 1), gf.FromU64(p, 2)})
	if got := FindRoots(poly, gf.Zero(p)); got != nil {
		t.Errorf("FindRoots with zero basis = %v, want nil", got)
	}
}
