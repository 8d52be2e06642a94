// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gf

import (
	"math/big"
	"math/rand"
	"testing"
)

func TestKnownModuliAreIrreducible(t *testing.T) {
	for n, low := range knownModulus {
		f := new(big.Int).SetUint64(low)
		f.SetBit(f, n, 1)
		if !isIrreducible(f, n) {
			t.Errorf("knownModulus[%d] = %#x is not irreducible", n, low)
		}
	}
}

func TestSelectModulusIrreducibleAcrossWidths(t *testing.T) {
	for _, n := range []int{2, 3, 4, 5, 7, 8, 13, 16, 17, 24, 31} {
		low := selectModulus(n)
		f := new(big.Int).SetUint64(low)
		f.SetBit(f, n, 1)
		if !isIrreducible(f, n) {
			t.Errorf("selectModulus(%d) = %#x is not irreducible", n, low)
		}
		if low&1 == 0 {
			t.Errorf("selectModulus(%d) = %#x has zero constant term", n, low)
		}
	}
}

func testWidths() []uint8 { return []uint8{2, 3, 8, 16, 17, 32, 33, 64} }

func TestFieldArithmeticGeneric(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, bits := range testWidths() {
		p, err := NewParams(bits, Generic)
		if err != nil {
			t.Fatalf("bits=%d: NewParams: %v", bits, err)
		}
		testFieldAxioms(t, p, rng)
	}
}

func TestFieldArithmeticClmul(t *testing.T) {
	rng := rand.New(rand.NewSource(43))
	for _, bits := range testWidths() {
		p, err := NewParams(bits, Clmul)
		if IsErrorCode(err, ErrBackendUnavailable) {
			t.Skip("clmul backend unavailable on this CPU")
		}
		if err != nil {
			t.Fatalf("bits=%d: NewParams: %v", bits, err)
		}
		testFieldAxioms(t, p, rng)
	}
}

func randElement(p *Params, rng *rand.Rand) Element {
	for {
		v := rng.Uint64() & maskBits(p.Bits)
		if v != 0 {
			return Element{v, p}
		}
	}
}

func testFieldAxioms(t *testing.T, p *Params, rng *rand.Rand) {
	t.Helper()
	zero := Zero(p)
	one := One(p)

	for i := 0; i < 64; i++ {
		a := randElement(p, rng)
		b := randElement(p, rng)

		if !Add(a, a).IsZero() {
			t.Errorf("bits=%d: a+a != 0", p.Bits)
		}
		if !Add(a, zero).Equal(a) {
			t.Errorf("bits=%d: a+0 != a", p.Bits)
		}
		if !Mul(a, one).Equal(a) {
			t.Errorf("bits=%d: a*1 != a", p.Bits)
		}
		if !Mul(a, zero).IsZero() {
			t.Errorf("bits=%d: a*0 != 0", p.Bits)
		}
		if !Mul(a, b).Equal(Mul(b, a)) {
			t.Errorf("bits=%d: a*b != b*a", p.Bits)
		}

		sq := a.Sqr()
		if !sq.Equal(Mul(a, a)) {
			t.Errorf("bits=%d: a.Sqr() != a*a", p.Bits)
		}
		if !a.Sqr2k(1).Equal(sq) {
			t.Errorf("bits=%d: a.Sqr2k(1) != a.Sqr()", p.Bits)
		}
		if !a.Sqr2k(2).Equal(sq.Sqr()) {
			t.Errorf("bits=%d: a.Sqr2k(2) != a.Sqr().Sqr()", p.Bits)
		}

		inv := Inv(a)
		if !Mul(a, inv).IsOne() {
			t.Errorf("bits=%d: a*a^-1 != 1 (a=%#x inv=%#x)", p.Bits, a.v, inv.v)
		}

		m := NewMultiplier(a)
		if !m.Mul(b).Equal(Mul(a, b)) {
			t.Errorf("bits=%d: Multiplier.Mul disagrees with Mul", p.Bits)
		}

		y := a.Qrt()
		got := Add(y.Sqr(), y)
		tr := trace(a, p)
		if tr == 0 && !got.Equal(a) {
			t.Errorf("bits=%d: Qrt(a)^2+Qrt(a) != a for trace-zero a=%#x", p.Bits, a.v)
		}
	}

	if !Add(zero, one).IsOne() {
		t.Errorf("bits=%d: 0+1 != 1", p.Bits)
	}
}

// trace computes Tr(a) = a + a^2 + a^4 + ... + a^(2^(bits-1)) by repeated
// squaring, folded down to a single bit. Used only by the test above to
// check the Qrt table's defining property on its domain of solvability.
func trace(a Element, p *Params) uint64 {
	acc := a
	cur := a
	for i := 1; i < int(p.Bits); i++ {
		cur = cur.Sqr()
		acc = Add(acc, cur)
	}
	return acc.v & 1
}

func TestFromSeedDeterministicAndNonzero(t *testing.T) {
	p, err := NewParams(16, Generic)
	if err != nil {
		t.Fatal(err)
	}
	a := p.FromSeed(12345)
	b := p.FromSeed(12345)
	if !a.Equal(b) {
		t.Errorf("FromSeed not deterministic: %#x != %#x", a.v, b.v)
	}
	if a.IsZero() {
		t.Errorf("FromSeed returned zero")
	}
	c := p.FromSeed(54321)
	if a.Equal(c) {
		t.Errorf("FromSeed gave same element for different seeds (likely by chance, but check)")
	}
}

func TestNewParamsRejectsOutOfRangeBits(t *testing.T) {
	if _, err := NewParams(1, Generic); !IsErrorCode(err, ErrBitsOutOfRange) {
		t.Errorf("bits=1: expected ErrBitsOutOfRange, got %v", err)
	}
	if _, err := NewParams(65, Generic); !IsErrorCode(err, ErrBitsOutOfRange) {
		t.Errorf("bits=65: expected ErrBitsOutOfRange, got %v", err)
	}
}

func TestClmulTrinomialRequiresTrinomialModulus(t *testing.T) {
	// bits=32's modulus is a pentanomial (spec section 6's anchor), so the
	// trinomial-specialized backend must refuse it even if the CPU
	// supports carryless multiply.
	_, err := NewParams(32, ClmulTrinomial)
	if err == nil {
		p, _ := NewParams(32, Generic)
		if p.trinomial {
			t.Skip("bits=32 modulus unexpectedly a trinomial")
		}
		t.Errorf("expected ClmulTrinomial to be rejected for a non-trinomial modulus")
	}
}
