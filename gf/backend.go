// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gf

import "github.com/klauspost/cpuid/v2"

// Backend selects which multiplication/inversion/squaring strategy a Params
// uses.  Backend 0 is always available; backends 1 and 2 require a CPU
// capable of carryless multiplication, and backend 2 additionally requires
// a trinomial modulus.
type Backend uint8

const (
	// Generic is the portable software backend: an LFSR-driven carryless
	// multiply with reduction folded into the shift, available for every
	// bit width in [2, 64].
	Generic Backend = 0

	// Clmul is the carryless-multiply backend for moduli that are not
	// trinomials; NewParams does not reject it for a trinomial modulus.
	// Elements stay in the polynomial basis, as with Generic: there is no
	// alternate in-memory basis and no basis conversion at serialization.
	Clmul Backend = 1

	// ClmulTrinomial is the carryless-multiply backend for trinomial
	// moduli.  It uses the same multiply-and-fold as Clmul; with a
	// two-term modLow each fold amounts to a pair of shift/XORs.
	ClmulTrinomial Backend = 2
)

// ImplementationMax is the highest Backend value this build knows about,
// regardless of runtime availability.
func ImplementationMax() Backend { return ClmulTrinomial }

// clmulCapable reports whether the running CPU can execute the carryless
// multiply instruction the Clmul/ClmulTrinomial backends are modeled on.
// cpuid.CPU is populated once at process start.
func clmulCapable() bool {
	return cpuid.CPU.Has(cpuid.CLMUL)
}

// backendAvailable reports whether backend can be constructed in this
// process, for any bit width.  Generic is always available.  The clmul
// backends additionally require hardware support; ClmulTrinomial further
// requires the field's modulus to actually be a trinomial, checked by the
// caller once the modulus is known.
func backendAvailable(backend Backend) bool {
	switch backend {
	case Generic:
		return true
	case Clmul, ClmulTrinomial:
		return clmulCapable()
	default:
		return false
	}
}
