package accumulator

import (
	"math/big"

	"github.com/csienslab/headstart/bqf"
	"github.com/csienslab/headstart/hashgadgets"
)

// DefaultClassGroupBits is the default discriminant bit-length for a
// freshly constructed class-group accumulator.
const DefaultClassGroupBits = 1024

// ClassGroupWitness is w = g^(prod_{j!=i} x_j), a reduced BQF.
type ClassGroupWitness struct {
	W bqf.Form
}

// ClassGroupAccumulator mirrors the RSA accumulator's operations but over
// the class group of an imaginary quadratic discriminant: exponentiation
// of a base form g replaces modular exponentiation. No non-membership
// variant is defined for this instantiation.
type ClassGroupAccumulator struct {
	d      *big.Int
	g      bqf.Form
	accval bqf.Form
	set    bool
}

// NewClassGroupAccumulator derives a fixed discriminant and base form from
// seed and returns an empty accumulator over that class group.
func NewClassGroupAccumulator(bits int, seed []byte) *ClassGroupAccumulator {
	d := hashgadgets.HD(seed, bits)
	g := hashgadgets.HQF(append([]byte("headstart-classgroup-base"), seed...), d, bits)
	return &ClassGroupAccumulator{d: d, g: g}
}

func classGroupExponent(x []byte) *big.Int {
	return new(big.Int).SetBytes(x)
}

// Accumulate computes g^(prod x_i) in the class group.
func (c *ClassGroupAccumulator) Accumulate(x [][]byte) error {
	if len(x) == 0 {
		return ErrEmptyData
	}
	prod := big.NewInt(1)
	for _, xi := range x {
		prod.Mul(prod, classGroupExponent(xi))
	}
	c.accval = bqf.Pow(c.g, prod)
	c.set = true
	return nil
}

// Witgen computes w = g^(prod_{j!=i} x_j).
func (c *ClassGroupAccumulator) Witgen(x [][]byte, i int) (Witness, error) {
	if !c.set {
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
		prod.Mul(prod, classGroupExponent(xj))
	}
	return ClassGroupWitness{W: bqf.Pow(c.g, prod)}, nil
}

// BatchWitgen computes witnesses for every element via the shared
// divide-and-conquer root-factoring algorithm, instantiated over the class
// group's exponentiation (bqf.Pow) instead of modular exponentiation.
func (c *ClassGroupAccumulator) BatchWitgen(x [][]byte) ([]Witness, error) {
	if !c.set {
		return nil, ErrNotAccumulated
	}
	if len(x) == 0 {
		return nil, ErrEmptyData
	}
	exps := make([]*big.Int, len(x))
	for i, xi := range x {
		exps[i] = classGroupExponent(xi)
	}
	out := make([]bqf.Form, len(x))
	classGroupBatchWitgen(c.g, exps, out)
	witnesses := make([]Witness, len(x))
	for i, w := range out {
		witnesses[i] = ClassGroupWitness{W: w}
	}
	return witnesses, nil
}

func classGroupBatchWitgen(base bqf.Form, exps []*big.Int, out []bqf.Form) {
	if len(exps) == 1 {
		out[0] = base
		return
	}
	mid := len(exps) / 2
	left, right := exps[:mid], exps[mid:]
	outLeft, outRight := out[:mid], out[mid:]

	prodLeft := productOf(left)
	prodRight := productOf(right)

	baseForLeft := bqf.Pow(base, prodRight)
	baseForRight := bqf.Pow(base, prodLeft)

	classGroupBatchWitgen(baseForLeft, left, outLeft)
	classGroupBatchWitgen(baseForRight, right, outRight)
}

// Verify checks w^x reduces to accval.
func (c *ClassGroupAccumulator) Verify(accval []byte, w Witness, xi []byte) bool {
	cw, ok := w.(ClassGroupWitness)
	if !ok {
		return false
	}
	bits := c.d.BitLen() + 8
	acc, err := bqf.FromBytes(accval, bits)
	if err != nil {
		return false
	}
	got := bqf.Pow(cw.W, classGroupExponent(xi))
	return got.Equal(acc)
}

func (c *ClassGroupAccumulator) GetAccVal() []byte {
	if !c.set {
		return nil
	}
	return c.accval.ToBytes(c.d.BitLen() + 8)
}

func (c *ClassGroupAccumulator) ToBytes() []byte { return c.GetAccVal() }
