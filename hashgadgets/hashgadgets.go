// Package hashgadgets derives deterministic primes, discriminants, and
// reduced binary quadratic forms from arbitrary seed bytes via SHAKE-256.
// These are the building blocks every other kernel package (bqf, vdf,
// accumulator) hashes its public parameters from.
package hashgadgets

import (
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/csienslab/headstart/bqf"
)

// Generator produces an unbounded stream of k-bit integers from a seed, per
// the H_kgen construction: squeeze ceil(k/8)+32 bytes of SHAKE-256 from the
// current seed, use the leading bytes as the candidate (reduced mod 2^k with
// bit k-1 forced on so the candidate is always exactly k bits wide), and the
// trailing 32 bytes as the next seed.
type Generator struct {
	seed []byte
	k    int
}

const hkgenSeedSize = 32

// NewGenerator returns a fresh H_kgen stream seeded from x, yielding k-bit
// integers on each call to Next.
func NewGenerator(x []byte, k int) *Generator {
	if k <= 0 {
		panic("hashgadgets: k must be positive")
	}
	seed := make([]byte, len(x))
	copy(seed, x)
	return &Generator{seed: seed, k: k}
}

// Next returns the next k-bit integer in the stream and advances the seed.
func (g *Generator) Next() *big.Int {
	nbytes := (g.k + 7) / 8

	h := sha3.NewShake256()
	h.Write(g.seed)
	out := make([]byte, nbytes+hkgenSeedSize)
	if _, err := h.Read(out); err != nil {
		panic("hashgadgets: shake256 read failed: " + err.Error())
	}

	candidate := new(big.Int).SetBytes(out[:nbytes])
	mod := new(big.Int).Lsh(big.NewInt(1), uint(g.k))
	candidate.Mod(candidate, mod)
	candidate.SetBit(candidate, g.k-1, 1)

	g.seed = append(g.seed[:0:0], out[nbytes:]...)
	return candidate
}

// Hkgen is the stateless entry point: the first value of a fresh H_kgen(x,k)
// stream.
func Hkgen(x []byte, k int) *big.Int {
	return NewGenerator(x, k).Next()
}

// primalityRounds is the number of Miller-Rabin rounds used for every
// ProbablyPrime call in this package; 20 rounds gives a false-positive
// probability of at most 4^-20, the same margin math/big's own
// documentation recommends for cryptographic use.
const primalityRounds = 20

// HP implements H_P(x,k): the first odd k-bit integer in the H_kgen(x,k)
// stream that passes a probabilistic primality test.
func HP(x []byte, k int) *big.Int {
	g := NewGenerator(x, k)
	for {
		n := g.Next()
		n.SetBit(n, 0, 1)
		if n.ProbablyPrime(primalityRounds) {
			return n
		}
	}
}

// HD implements H_D(x,k): iterates H_kgen(x,k), forcing bits 0..2 on (so the
// candidate p is odd and p mod 8 == 7, hence -p mod 8 == 1), and returns -p
// for the first prime p found.
func HD(x []byte, k int) *big.Int {
	g := NewGenerator(x, k)
	for {
		n := g.Next()
		n.SetBit(n, 0, 1)
		n.SetBit(n, 1, 1)
		n.SetBit(n, 2, 1)
		if n.ProbablyPrime(primalityRounds) {
			return new(big.Int).Neg(n)
		}
	}
}

// HQF implements H_QF(x,d,k): iterates H_kgen(x,k) for candidate a values,
// forcing a ≡ 3 (mod 4), keeping the first prime a for which d is a
// quadratic residue mod a, deriving b = d^((a+1)/4) mod a (forced odd so
// b² ≡ d (mod 4a)), and returning the reduced form (a,b,c) of discriminant d.
func HQF(x []byte, d *big.Int, k int) bqf.Form {
	g := NewGenerator(x, k)
	for {
		a := g.Next()
		a.SetBit(a, 0, 1)
		a.SetBit(a, 1, 1)
		if !a.ProbablyPrime(primalityRounds) {
			continue
		}
		if big.Jacobi(d, a) != 1 {
			continue
		}

		exp := new(big.Int).Add(a, big.NewInt(1))
		exp.Rsh(exp, 2)
		b := new(big.Int).Exp(d, exp, a)
		if b.Bit(0) == 0 {
			b.Sub(a, b)
		}

		bsq := new(big.Int).Mul(b, b)
		num := new(big.Int).Sub(bsq, d)
		fourA := new(big.Int).Lsh(a, 2)
		c := new(big.Int).Div(num, fourA)

		return bqf.Form{A: a, B: b, C: c}.Reduce()
	}
}
