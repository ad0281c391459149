package particles

import (
	"math"
)

var (
	xorshiftMaxUint = float64(math.MaxUint32)
)

// RNG is an xorshift random number generator. It is the same as gotetra's
// xorshiftGenerator. It is not thread safe.
type RNG struct {
	w, x, y, z uint32
}

// NewRNG initializes RNG with a given seed. Both halves of the seed are used.
func NewRNG(seed uint64) *RNG {
	gen := &RNG{}
	gen.Seed(seed)
	return gen
}

// Seed resets the generator to the state NewRNG(seed) starts from.
func (gen *RNG) Seed(seed uint64) {
	*gen = RNG{uint32(seed), 123456789 ^ uint32(seed>>32), 362436069,
		521288629}
	// Nearby seeds start from nearby states, so mix them apart.
	for i := 0; i < 16; i++ {
		gen.next()
	}
}

func (gen *RNG) next() uint32 {
	t := gen.x ^ (gen.x << 11)
	gen.x, gen.y, gen.z = gen.y, gen.z, gen.w
	gen.w = gen.w ^ (gen.w >> 19) ^ (t ^ (t >> 8))
	return gen.w
}

// Uniform generates a single random number in the range [0, 1)
func (gen *RNG) Uniform() float64 {
	res := float64(math.MaxUint32-gen.next()) / xorshiftMaxUint
	if res == 1.0 {
		return gen.Uniform()
	}
	return res
}

// Uint64 returns 64 random bits. Together with Seed, it lets an RNG serve as
// the source of gonum's distributions.
func (gen *RNG) Uint64() uint64 {
	hi := uint64(gen.next())
	return hi<<32 | uint64(gen.next())
}
