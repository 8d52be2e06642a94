// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pinsketch implements PinSketch set-reconciliation sketches over
// binary extension fields GF(2^b). A Sketch summarizes a multiset of
// nonzero b-bit integers in fixed-size storage proportional to its
// capacity; two sketches of equal shape can be XOR-merged to summarize the
// symmetric difference of their underlying sets, and the merged sketch can
// then be decoded to recover up to its capacity's worth of distinct
// elements.
package pinsketch

import (
	"github.com/dcrlabs/pinsketch/bitio"
	"github.com/dcrlabs/pinsketch/bm"
	"github.com/dcrlabs/pinsketch/csprng"
	"github.com/dcrlabs/pinsketch/gf"
	"github.com/dcrlabs/pinsketch/rootfind"
)

// Backend selects a Sketch's field arithmetic strategy. See gf.Backend.
type Backend = gf.Backend

const (
	// Generic is the portable software backend, available for every bit
	// width in [2, 64].
	Generic = gf.Generic
	// Clmul is the carryless-multiply backend for non-trinomial moduli.
	Clmul = gf.Clmul
	// ClmulTrinomial is the carryless-multiply backend for trinomial moduli.
	ClmulTrinomial = gf.ClmulTrinomial
)

// ImplementationMax is the highest Backend value this build knows about.
func ImplementationMax() Backend { return gf.ImplementationMax() }

// BitsSupported reports whether bits is a valid field width for this
// build: in range and not excluded by any size restriction a particular
// backend might impose (none currently do; every backend supports every
// width in [2, 64]).
func BitsSupported(bits uint8) bool {
	return bits >= 2 && bits <= 64
}

// Sketch is a fixed-size summary of a multiset of nonzero b-bit integers.
// The zero Sketch is not usable; construct one with New.
type Sketch struct {
	bits     uint8
	capacity int
	backend  Backend
	params   *gf.Params
	basis    gf.Element

	// syndromes[i] is the sum, over the inserted multiset, of each
	// element raised to the (2i+1)th power: the odd power sums. Even
	// power sums are never stored since they are each a single Sqr away
	// from an odd one (x^(2i) = (x^i)^2), which is how
	// reconstructAllSyndromes rebuilds the full sequence Berlekamp-Massey
	// needs.
	syndromes []gf.Element
}

// New constructs an empty Sketch of the given field width, capacity, and
// backend, with a randomly chosen basis element for trace splitting during
// decode. bits must be in [2, 64] and capacity must be positive.
func New(bits uint8, capacity int, backend Backend) (*Sketch, error) {
	if !BitsSupported(bits) {
		return nil, makeError(ErrBadBits, "pinsketch: bits must be in [2, 64]")
	}
	if capacity < 1 {
		return nil, makeError(ErrBadCapacity, "pinsketch: capacity must be positive")
	}
	params, err := gf.NewParams(bits, backend)
	if err != nil {
		return nil, makeError(ErrBadBackend, err.Error())
	}

	s := &Sketch{
		bits:     bits,
		capacity: capacity,
		backend:  backend,
		params:   params,
	}
	s.syndromes = zeroSyndromes(params, capacity)
	s.basis = params.FromSeed(csprng.Uint64())
	return s, nil
}

func zeroSyndromes(p *gf.Params, n int) []gf.Element {
	out := make([]gf.Element, n)
	for i := range out {
		out[i] = gf.Zero(p)
	}
	return out
}

// Bits returns the sketch's field width.
func (s *Sketch) Bits() uint8 { return s.bits }

// Capacity returns the sketch's capacity.
func (s *Sketch) Capacity() int { return s.capacity }

// Backend returns the sketch's arithmetic backend.
func (s *Sketch) Backend() Backend { return s.backend }

// SetSeed sets the basis element used for trace splitting during Decode.
// The sentinel value of all 64 bits set selects a fixed deterministic
// basis (the field's One element) instead of a seed-derived one, for
// callers that want cross-run reproducibility without managing a seed.
func (s *Sketch) SetSeed(seed uint64) {
	if seed == ^uint64(0) {
		s.basis = gf.One(s.params)
		return
	}
	s.basis = s.params.FromSeed(seed)
}

// Add inserts val into the sketch's multiset. Adding the same nonzero
// value an even number of times cancels out (the sketch cannot distinguish
// "present" from "present an even number of times"); add(0) is a
// documented no-op, since 0 cannot be represented as a nonzero field
// element root.
func (s *Sketch) Add(val uint64) {
	if val == 0 {
		return
	}
	addToOddSyndromes(s.syndromes, gf.FromU64(s.params, val))
}

// addToOddSyndromes folds data into each odd power-sum syndrome in place:
// osyndromes[i] += data^(2i+1). Ported from sketch_impl.h's
// AddToOddSyndromes, which advances data by squaring via a single
// precomputed Multiplier(data^2) instead of a fresh multiply per step.
func addToOddSyndromes(osyndromes []gf.Element, data gf.Element) {
	sq := data.Sqr()
	mul := gf.NewMultiplier(sq)
	for i := range osyndromes {
		osyndromes[i] = gf.Add(osyndromes[i], data)
		data = mul.Mul(data)
	}
}

// Merge XORs other's syndromes into s, reducing s's capacity to
// min(s.Capacity(), other.Capacity()) first. It fails if the two sketches
// have different bit widths or backends, leaving s unmodified.
func (s *Sketch) Merge(other *Sketch) error {
	if s.bits != other.bits || s.backend != other.backend {
		return ErrMergeMismatch
	}
	if other.capacity < s.capacity {
		s.capacity = other.capacity
		s.syndromes = s.syndromes[:s.capacity]
	}
	for i := 0; i < s.capacity; i++ {
		s.syndromes[i] = gf.Add(s.syndromes[i], other.syndromes[i])
	}
	return nil
}

// SerializedSize returns the number of bytes Serialize produces.
func (s *Sketch) SerializedSize() int {
	return bitio.ByteLen(s.capacity, uint(s.bits))
}

// Serialize packs the sketch's syndromes into their wire representation.
// Two sketches with equal (bits, capacity, backend) XOR their serialized
// forms bytewise to the same result as merging them directly, since
// bit-packing is linear in the syndromes.
func (s *Sketch) Serialize() []byte {
	w := bitio.NewWriter(s.capacity, uint(s.bits))
	for _, v := range s.syndromes {
		v.Serialize(w)
	}
	return w.Flush()
}

// Deserialize overwrites s's syndromes from buf, which must be exactly
// SerializedSize() bytes.
func (s *Sketch) Deserialize(buf []byte) error {
	if len(buf) != s.SerializedSize() {
		return ErrLengthMismatch
	}
	r := bitio.NewReader(buf)
	for i := range s.syndromes {
		s.syndromes[i] = gf.Deserialize(s.params, r)
	}
	return nil
}

// Decode attempts to recover the inserted multiset, failing with
// ErrNotDecodable if no consistent interpretation of degree <= maxCount
// exists. maxCount should not exceed s.Capacity().
func (s *Sketch) Decode(maxCount int) ([]uint64, error) {
	all := reconstructAllSyndromes(s.syndromes)
	locator := bm.Run(all, maxCount)
	if locator == nil {
		return nil, ErrNotDecodable
	}
	if len(locator) == 1 {
		return nil, nil // degree 0: the empty multiset
	}
	if len(locator) > 1+maxCount {
		return nil, ErrNotDecodable
	}

	// bm.Run's connection polynomial has constant term 1 and its roots
	// are the reciprocals of the elements we want; reversing it computes
	// x^deg * locator(1/x), producing the monic polynomial that actually
	// vanishes at the inserted elements, which is what rootfind.FindRoots
	// (built on PolyMod/GCD/MakeMonic, all of which assume a genuinely
	// monic leading coefficient) expects.
	reverse(locator)

	roots := rootfind.FindRoots(locator, s.basis)
	if roots == nil {
		log.Debugf("pinsketch: root finding failed on a degree-%d locator", len(locator)-1)
		return nil, ErrNotDecodable
	}

	out := make([]uint64, len(roots))
	for i, r := range roots {
		out[i] = r.ToU64()
	}
	return out, nil
}

// reconstructAllSyndromes interleaves the stored odd syndromes with their
// squares to rebuild the full syndrome sequence s_1, s_2, s_3, ...
// Berlekamp-Massey needs: s_{2i+1} is stored directly and s_{2i+2} =
// (s_{i+1})^2, since squaring is the Frobenius automorphism in
// characteristic 2 and commutes with the power sum.
func reconstructAllSyndromes(odd []gf.Element) []gf.Element {
	all := make([]gf.Element, len(odd)*2)
	for i, o := range odd {
		all[i*2] = o
		all[i*2+1] = all[i].Sqr()
	}
	return all
}

// reverse reverses p in place.
func reverse(p []gf.Element) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}
