// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bitio

import (
	"math/rand"
	"testing"
)

func TestRoundTripFixedWidth(t *testing.T) {
	tests := []struct {
		name  string
		width uint
		vals  []uint64
	}{
		{"width1", 1, []uint64{1, 0, 1, 1, 0, 0, 0, 1, 1}},
		{"width3", 3, []uint64{0, 7, 5, 1, 6}},
		{"width8", 8, []uint64{0, 255, 128, 1}},
		{"width13", 13, []uint64{0, 8191, 4096, 1, 9999}},
		{"width32", 32, []uint64{0, 0xffffffff, 0x12345678}},
		{"width64", 64, []uint64{0, ^uint64(0), 0x0123456789abcdef}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWriter(len(tc.vals), tc.width)
			for _, v := range tc.vals {
				w.Write(v, tc.width)
			}
			buf := w.Flush()

			wantLen := ByteLen(len(tc.vals), tc.width)
			if len(buf) != wantLen {
				t.Fatalf("byte length = %d, want %d", len(buf), wantLen)
			}

			r := NewReader(buf)
			for i, v := range tc.vals {
				got := r.Read(tc.width)
				if got != v {
					t.Fatalf("value %d: got %d, want %d", i, got, v)
				}
			}
		})
	}
}

func TestRoundTripMixedWidths(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	type word struct {
		width uint
		val   uint64
	}
	words := make([]word, 200)
	w := NewWriter(0, 0)
	for i := range words {
		width := uint(rng.Intn(64) + 1)
		val := rng.Uint64() & widthMask(width)
		words[i] = word{width, val}
		w.Write(val, width)
	}
	buf := w.Flush()

	r := NewReader(buf)
	for i, wd := range words {
		got := r.Read(wd.width)
		if got != wd.val {
			t.Fatalf("word %d (width %d): got %d, want %d", i, wd.width, got, wd.val)
		}
	}
}

func TestByteLen(t *testing.T) {
	tests := []struct {
		n, want int
		width   uint
	}{
		{0, 0, 8},
		{1, 1, 8},
		{4, 4, 8},
		{4, 2, 4},
		{3, 3, 8},
		{8, 3, 3},
		{9, 4, 3},
	}
	for _, tc := range tests {
		if got := ByteLen(tc.n, tc.width); got != tc.want {
			t.Errorf("ByteLen(%d, %d) = %d, want %d", tc.n, tc.width, got, tc.want)
		}
	}
}
