// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pinsketch

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/dcrlabs/pinsketch/fpmath"
)

func sortedUint64s(vs []uint64) []uint64 {
	out := append([]uint64(nil), vs...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func equalSets(t *testing.T, got, want []uint64) {
	t.Helper()
	gs, ws := sortedUint64s(got), sortedUint64s(want)
	if len(gs) != len(ws) {
		t.Fatalf("got %v, want %v", gs, ws)
	}
	for i := range gs {
		if gs[i] != ws[i] {
			t.Fatalf("got %v, want %v", gs, ws)
		}
	}
}

// TestMergeSymmetricDifference ports spec's b=8, c=4, impl=0 scenario:
// sketches of {1,2,3,4} and {3,4,5,6}, merged, decode to {1,2,5,6}.
func TestMergeSymmetricDifference(t *testing.T) {
	a, err := New(8, 4, Generic)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(8, 4, Generic)
	if err != nil {
		t.Fatal(err)
	}
	a.SetSeed(^uint64(0))
	b.SetSeed(^uint64(0))

	for _, v := range []uint64{1, 2, 3, 4} {
		a.Add(v)
	}
	for _, v := range []uint64{3, 4, 5, 6} {
		b.Add(v)
	}

	if err := a.Merge(b); err != nil {
		t.Fatal(err)
	}
	got, err := a.Decode(4)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	equalSets(t, got, []uint64{1, 2, 5, 6})
}

// TestRoundTripLargeField ports spec's b=32, c=10 scenario.
func TestRoundTripLargeField(t *testing.T) {
	s, err := New(32, 10, Generic)
	if err != nil {
		t.Fatal(err)
	}
	s.SetSeed(^uint64(0))

	rng := rand.New(rand.NewSource(123))
	want := make(map[uint64]bool)
	for len(want) < 10 {
		v := uint64(rng.Int63n((1<<32)-1)) + 1
		want[v] = true
	}
	var wantList []uint64
	for v := range want {
		s.Add(v)
		wantList = append(wantList, v)
	}

	buf := s.Serialize()
	if len(buf) != s.SerializedSize() {
		t.Fatalf("Serialize produced %d bytes, want %d", len(buf), s.SerializedSize())
	}

	fresh, err := New(32, 10, Generic)
	if err != nil {
		t.Fatal(err)
	}
	fresh.SetSeed(^uint64(0))
	if err := fresh.Deserialize(buf); err != nil {
		t.Fatal(err)
	}

	got, err := fresh.Decode(10)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	equalSets(t, got, wantList)
}

// TestDuplicateCancels ports spec's b=16, c=3 scenario: inserting the same
// element twice cancels, leaving an all-zero serialization and an
// empty decode.
func TestDuplicateCancels(t *testing.T) {
	s, err := New(16, 3, Generic)
	if err != nil {
		t.Fatal(err)
	}
	s.Add(42)
	s.Add(42)

	buf := s.Serialize()
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("serialized form not all-zero: %x", buf)
		}
	}

	got, err := s.Decode(3)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

// TestOverfillNeverOverreports ports spec's b=64, c=5 scenario: inserting
// more distinct elements than capacity either fails to decode or returns a
// 5-element set, but never more.
func TestOverfillNeverOverreports(t *testing.T) {
	s, err := New(64, 5, Generic)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []uint64{1, 2, 3, 4, 5, 6, 7, 8} {
		s.Add(v)
	}
	got, err := s.Decode(5)
	if err != nil {
		return // ErrNotDecodable is an acceptable outcome
	}
	if len(got) > 5 {
		t.Fatalf("Decode returned %d elements, want <= 5", len(got))
	}
}

// TestTooSmallOutputFails encodes spec property 5: if decode succeeds with
// k elements, asking for k-1 must fail.
func TestTooSmallOutputFails(t *testing.T) {
	s, err := New(16, 4, Generic)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []uint64{10, 20, 30} {
		s.Add(v)
	}
	got, err := s.Decode(4)
	if err != nil {
		t.Fatalf("Decode(4): %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Decode(4) returned %d elements, want 3", len(got))
	}
	if _, err := s.Decode(2); err == nil {
		t.Errorf("Decode(2) succeeded, want failure for a 3-element set")
	}
}

// TestExhaustive4_2 ports the original test-exhaust.cpp harness for the
// b=4, c=2 case: every byte pattern a 2-syndrome sketch over GF(2^4) can
// take is exactly one nibble pair, and the number of patterns decoding to
// exactly k elements must equal C(15, k), per spec's count-identity
// property and its b=4,c=2 concrete scenario.
func TestExhaustive4_2(t *testing.T) {
	const bits = 4
	const capacity = 2

	probe, err := New(bits, capacity, Generic)
	if err != nil {
		t.Fatal(err)
	}
	probe.SetSeed(^uint64(0))
	size := probe.SerializedSize()

	counts := make(map[int]int)
	total := 1
	for i := 0; i < size; i++ {
		total *= 256
	}
	for pattern := 0; pattern < total; pattern++ {
		buf := make([]byte, size)
		for i := range buf {
			buf[i] = byte(pattern >> (8 * i))
		}
		s, err := New(bits, capacity, Generic)
		if err != nil {
			t.Fatal(err)
		}
		s.SetSeed(^uint64(0))
		if err := s.Deserialize(buf); err != nil {
			t.Fatal(err)
		}
		roots, err := s.Decode(capacity)
		if err != nil {
			counts[-1]++
			continue
		}
		counts[len(roots)]++
	}

	for k := 0; k <= capacity; k++ {
		want := int(binomialInt((1<<bits)-1, k))
		if counts[k] != want {
			t.Errorf("counts[%d] = %d, want C(%d,%d) = %d", k, counts[k], (1<<bits)-1, k, want)
		}
	}
}

// binomialInt is a small-input reference binomial coefficient used only by
// TestExhaustive4_2, where n and k are both tiny; fpmath.ComputeCapacity's
// internal binomial is exercised indirectly via the capacity scenario
// test below.
func binomialInt(n, k int) int64 {
	if k < 0 || k > n {
		return 0
	}
	result := int64(1)
	for i := 0; i < k; i++ {
		result = result * int64(n-i) / int64(i+1)
	}
	return result
}

// TestComputeCapacityScenario ports spec's compute_capacity/
// compute_max_elements concrete scenario using the fpmath package exposed
// to callers of this module.
func TestComputeCapacityScenario(t *testing.T) {
	if got := fpmath.ComputeCapacity(32, 8, 16); got != 9 {
		t.Errorf("ComputeCapacity(32, 8, 16) = %d, want 9", got)
	}
	if got := fpmath.ComputeMaxElements(32, 9, 16); got != 9 {
		t.Errorf("ComputeMaxElements(32, 9, 16) = %d, want 9", got)
	}
}
