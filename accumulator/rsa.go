package accumulator

import (
	"errors"
	"math/big"

	"github.com/csienslab/headstart/hashgadgets"
)

// DefaultRSABits is the default bit-length of the RSA modulus n; each of its
// two prime factors is DefaultRSABits/2 bits.
const DefaultRSABits = 1024

// RSAWitness is w = g^(prod of all x_j, j != i) mod n.
type RSAWitness struct {
	W *big.Int
}

// RSAAccumulator accumulates g^(prod x_i) mod n for a trusted-setup
// modulus n = p*q and base g = 2^65537 mod n.
type RSAAccumulator struct {
	n      *big.Int
	g      *big.Int
	accval *big.Int
}

// rsaModulus derives an RSA modulus n = p*q of the given total bit length
// (bits/2 per factor) and the base g = 2^65537 mod n from seed, using
// hashgadgets.HP the same way NewClassGroupAccumulator derives its
// discriminant and base form from a seed: the trusted-setup primes are
// reproducible from the seed alone rather than drawn from crypto/rand, so
// every caller that constructs an accumulator of the same kind and seed
// (stage.go at accumulate/witgen time, client.go at verify time) shares the
// identical (n,g), exactly as spec.md requires for a trusted setup reused
// read-only across the process.
func rsaModulus(bits int, seed []byte) (*big.Int, *big.Int) {
	half := bits / 2
	p := hashgadgets.HP(append([]byte("headstart-rsa-p"), seed...), half)
	qSeed := append([]byte("headstart-rsa-q"), seed...)
	q := hashgadgets.HP(qSeed, half)
	for p.Cmp(q) == 0 {
		qSeed = append(qSeed, 0)
		q = hashgadgets.HP(qSeed, half)
	}
	n := new(big.Int).Mul(p, q)

	g := new(big.Int).Exp(big.NewInt(2), big.NewInt(65537), n)
	return n, g
}

// NewRSAAccumulator creates an accumulator whose trusted-setup modulus and
// base are derived deterministically from seed (p,q are discarded
// immediately; only n and g are retained). The same (bits, seed) pair
// always yields the same (n,g).
func NewRSAAccumulator(bits int, seed []byte) *RSAAccumulator {
	n, g := rsaModulus(bits, seed)
	return &RSAAccumulator{n: n, g: g}
}

// NewRSAAccumulatorWithModulus creates an accumulator with an explicit
// (n,g), for deterministic tests.
func NewRSAAccumulatorWithModulus(n, g *big.Int) *RSAAccumulator {
	return &RSAAccumulator{n: new(big.Int).Set(n), g: new(big.Int).Set(g)}
}

func xToExponent(x []byte) *big.Int {
	return new(big.Int).SetBytes(x)
}

// Accumulate computes g^(prod x_i) mod n.
func (r *RSAAccumulator) Accumulate(x [][]byte) error {
	if len(x) == 0 {
		return ErrEmptyData
	}
	prod := big.NewInt(1)
	for _, xi := range x {
		prod.Mul(prod, xToExponent(xi))
	}
	r.accval = new(big.Int).Exp(r.g, prod, r.n)
	return nil
}

// Witgen computes w = g^(prod_{j!=i} x_j) mod n.
func (r *RSAAccumulator) Witgen(x [][]byte, i int) (Witness, error) {
	if r.accval == nil {
		return nil, ErrNotAccumulated
	}
	if i < 0 || i >= len(x) {
		return nil, ErrIndexRange
	}
	prod := big.NewInt(1)
	for j, xj := range x {
		if j == i {
			continue
		}
		prod.Mul(prod, xToExponent(xj))
	}
	w := new(big.Int).Exp(r.g, prod, r.n)
	return RSAWitness{W: w}, nil
}

// BatchWitgen computes witnesses for every element via divide-and-conquer
// root factoring: O(N log N) total exponentiations instead of O(N^2).
func (r *RSAAccumulator) BatchWitgen(x [][]byte) ([]Witness, error) {
	if r.accval == nil {
		return nil, ErrNotAccumulated
	}
	if len(x) == 0 {
		return nil, ErrEmptyData
	}
	exps := make([]*big.Int, len(x))
	for i, xi := range x {
		exps[i] = xToExponent(xi)
	}
	out := make([]*big.Int, len(x))
	rsaBatchWitgen(r.g, r.n, exps, out)
	witnesses := make([]Witness, len(x))
	for i, w := range out {
		witnesses[i] = RSAWitness{W: w}
	}
	return witnesses, nil
}

// rsaBatchWitgen implements the shared divide-and-conquer batch witness
// algorithm for an exponentiation-based group: recurse on each half,
// raising the witness already computed for a half to the product of
// exponents of the opposite half. out[i] receives g^(prod_{j!=i} exps[j]).
func rsaBatchWitgen(base, n *big.Int, exps []*big.Int, out []*big.Int) {
	if len(exps) == 1 {
		out[0] = new(big.Int).Set(base)
		return
	}
	mid := len(exps) / 2
	left, right := exps[:mid], exps[mid:]
	outLeft, outRight := out[:mid], out[mid:]

	prodLeft := productOf(left)
	prodRight := productOf(right)

	baseForLeft := new(big.Int).Exp(base, prodRight, n)
	baseForRight := new(big.Int).Exp(base, prodLeft, n)

	rsaBatchWitgen(baseForLeft, n, left, outLeft)
	rsaBatchWitgen(baseForRight, n, right, outRight)
}

func productOf(xs []*big.Int) *big.Int {
	p := big.NewInt(1)
	for _, x := range xs {
		p.Mul(p, x)
	}
	return p
}

// Verify checks w^x == accval (mod n).
func (r *RSAAccumulator) Verify(accval []byte, w Witness, xi []byte) bool {
	rw, ok := w.(RSAWitness)
	if !ok {
		return false
	}
	acc := new(big.Int).SetBytes(accval)
	got := new(big.Int).Exp(rw.W, xToExponent(xi), r.n)
	return got.Cmp(acc) == 0
}

func (r *RSAAccumulator) GetAccVal() []byte {
	if r.accval == nil {
		return nil
	}
	return r.accval.Bytes()
}

func (r *RSAAccumulator) ToBytes() []byte { return r.GetAccVal() }

// --- Prime-hashed RSA (universal, supports non-membership) ---

// RSAUniversalAccumulator is the RSA accumulator with each x_i first mapped
// through H_P(x_i, 256) so Bezout-identity non-membership witnesses exist.
type RSAUniversalAccumulator struct {
	*RSAAccumulator
}

// NewRSAUniversalAccumulator creates a prime-hashed RSA accumulator whose
// trusted setup is derived deterministically from seed, as NewRSAAccumulator.
func NewRSAUniversalAccumulator(bits int, seed []byte) *RSAUniversalAccumulator {
	return &RSAUniversalAccumulator{RSAAccumulator: NewRSAAccumulator(bits, seed)}
}

const primeHashBits = 256

func primeHash(x []byte) *big.Int {
	return hashgadgets.HP(x, primeHashBits)
}

func (r *RSAUniversalAccumulator) Accumulate(x [][]byte) error {
	if len(x) == 0 {
		return ErrEmptyData
	}
	prod := big.NewInt(1)
	for _, xi := range x {
		prod.Mul(prod, primeHash(xi))
	}
	r.accval = new(big.Int).Exp(r.g, prod, r.n)
	return nil
}

func (r *RSAUniversalAccumulator) Witgen(x [][]byte, i int) (Witness, error) {
	if r.accval == nil {
		return nil, ErrNotAccumulated
	}
	if i < 0 || i >= len(x) {
		return nil, ErrIndexRange
	}
	prod := big.NewInt(1)
	for j, xj := range x {
		if j == i {
			continue
		}
		prod.Mul(prod, primeHash(xj))
	}
	return RSAWitness{W: new(big.Int).Exp(r.g, prod, r.n)}, nil
}

func (r *RSAUniversalAccumulator) BatchWitgen(x [][]byte) ([]Witness, error) {
	if r.accval == nil {
		return nil, ErrNotAccumulated
	}
	if len(x) == 0 {
		return nil, ErrEmptyData
	}
	exps := make([]*big.Int, len(x))
	for i, xi := range x {
		exps[i] = primeHash(xi)
	}
	out := make([]*big.Int, len(x))
	rsaBatchWitgen(r.g, r.n, exps, out)
	witnesses := make([]Witness, len(x))
	for i, w := range out {
		witnesses[i] = RSAWitness{W: w}
	}
	return witnesses, nil
}

func (r *RSAUniversalAccumulator) Verify(accval []byte, w Witness, xi []byte) bool {
	rw, ok := w.(RSAWitness)
	if !ok {
		return false
	}
	acc := new(big.Int).SetBytes(accval)
	got := new(big.Int).Exp(rw.W, primeHash(xi), r.n)
	return got.Cmp(acc) == 0
}

// RSANonMemWitness is (a, B=g^b mod n) satisfying acc^a * B^x == g (mod n),
// derived from the Bezout identity a*(prod x) + b*x = 1.
type RSANonMemWitness struct {
	A *big.Int
	B *big.Int
}

var errNotCoprime = errors.New("accumulator: element's prime hash is not coprime with the product (likely a member)")

// NonMemWitgen requires elem's prime hash x to be coprime with the product
// of all accumulated prime hashes (true whenever elem is absent, since all
// are distinct primes). Solves the Bezout identity a*(prod x_i) + b*x = 1.
func (r *RSAUniversalAccumulator) NonMemWitgen(x [][]byte, elem []byte) (Witness, error) {
	if r.accval == nil {
		return nil, ErrNotAccumulated
	}
	prod := big.NewInt(1)
	for _, xi := range x {
		prod.Mul(prod, primeHash(xi))
	}
	ex := primeHash(elem)

	a, b := new(big.Int), new(big.Int)
	g := new(big.Int).GCD(a, b, prod, ex)
	if g.Cmp(big.NewInt(1)) != 0 {
		return nil, errNotCoprime
	}

	B := modPowSigned(r.g, b, r.n)
	return RSANonMemWitness{A: a, B: B}, nil
}

// NonMemVerify checks acc^a * B^x == g (mod n).
func (r *RSAUniversalAccumulator) NonMemVerify(accval []byte, w Witness, elem []byte) bool {
	nmw, ok := w.(RSANonMemWitness)
	if !ok {
		return false
	}
	acc := new(big.Int).SetBytes(accval)
	x := primeHash(elem)

	accA := modPowSigned(acc, nmw.A, r.n)
	bX := new(big.Int).Exp(nmw.B, x, r.n)
	lhs := new(big.Int).Mul(accA, bX)
	lhs.Mod(lhs, r.n)

	return lhs.Cmp(r.g) == 0
}

// modPowSigned computes base^exp mod n for a possibly-negative exp, using
// the modular inverse of base when exp < 0.
func modPowSigned(base, exp, n *big.Int) *big.Int {
	if exp.Sign() >= 0 {
		return new(big.Int).Exp(base, exp, n)
	}
	inv := new(big.Int).ModInverse(base, n)
	if inv == nil {
		return big.NewInt(0)
	}
	posExp := new(big.Int).Neg(exp)
	return new(big.Int).Exp(inv, posExp, n)
}
