// Package bqf implements binary quadratic form arithmetic over the class
// group of an imaginary quadratic field: composition, squaring,
// normalisation, reduction, identity, exponentiation, and fixed-width
// signed byte serialisation. This is the arithmetic substrate the VDF and
// the class-group accumulator are built on.
package bqf

import (
	"errors"
	"math/big"
)

// ErrDiscriminantMismatch is returned when composing two forms whose
// discriminants differ. Per the design, this is an invariant violation: it
// should never occur for well-formed inputs and callers should treat it as
// fatal rather than retry.
var ErrDiscriminantMismatch = errors.New("bqf: discriminant mismatch")

// Form is the triple (a,b,c) representing ax^2 + bxy + cy^2. Forms are
// immutable values: every operation returns a new Form rather than mutating
// its receiver.
type Form struct {
	A, B, C *big.Int
}

// Discriminant returns b^2 - 4ac.
func (f Form) Discriminant() *big.Int {
	d := new(big.Int).Mul(f.B, f.B)
	four := new(big.Int).Mul(f.A, f.C)
	four.Lsh(four, 2)
	d.Sub(d, four)
	return d
}

// Equal reports whether two forms have identical (a,b,c).
func (f Form) Equal(g Form) bool {
	return f.A.Cmp(g.A) == 0 && f.B.Cmp(g.B) == 0 && f.C.Cmp(g.C) == 0
}

// IsReduced reports whether f is already in reduced form: |b| <= a <= c,
// with b >= 0 whenever a == c or |b| == a.
func (f Form) IsReduced() bool {
	absB := new(big.Int).Abs(f.B)
	if absB.Cmp(f.A) > 0 {
		return false
	}
	if f.A.Cmp(f.C) > 0 {
		return false
	}
	boundary := f.A.Cmp(f.C) == 0 || absB.Cmp(f.A) == 0
	if boundary && f.B.Sign() < 0 {
		return false
	}
	return true
}

// Identity returns the principal form of discriminant d: (1, k, (k^2-d)/4)
// where k = d mod 2.
func Identity(d *big.Int) Form {
	k := new(big.Int).Mod(d, big.NewInt(2))
	c := new(big.Int).Mul(k, k)
	c.Sub(c, d)
	c.Rsh(c, 2)
	return Form{A: big.NewInt(1), B: new(big.Int).Set(k), C: c}
}

// floorDiv returns floor(n/d) using truncated division (QuoRem) and then
// adjusting: the truncated quotient rounds toward zero, so floor division
// needs one less whenever the remainder is non-zero and its sign differs
// from the divisor's.
func floorDiv(n, d *big.Int) *big.Int {
	q, r := new(big.Int), new(big.Int)
	q.QuoRem(n, d, r)
	if r.Sign() != 0 && (r.Sign() < 0) != (d.Sign() < 0) {
		q.Sub(q, big.NewInt(1))
	}
	return q
}

// Normalize applies r = floor((a-b)/(2a)); (a,b,c) -> (a, b+2ra, ar^2+br+c).
func (f Form) Normalize() Form {
	a, b, c := f.A, f.B, f.C
	twoA := new(big.Int).Lsh(a, 1)
	amb := new(big.Int).Sub(a, b)
	r := floorDiv(amb, twoA)

	newB := new(big.Int).Mul(r, a)
	newB.Lsh(newB, 1)
	newB.Add(newB, b)

	newC := new(big.Int).Mul(a, r)
	newC.Mul(newC, r)
	br := new(big.Int).Mul(b, r)
	newC.Add(newC, br)
	newC.Add(newC, c)

	return Form{A: new(big.Int).Set(a), B: newB, C: newC}
}

// Reduce normalises f, then repeatedly applies the reduction step
// (a,b,c) -> (c, -b+2sc, cs^2-bs+a) with s = floor((c+b)/(2c)) until
// a < c, or a == c with b >= 0.
func (f Form) Reduce() Form {
	g := f.Normalize()
	for {
		if g.A.Cmp(g.C) < 0 {
			return g
		}
		if g.A.Cmp(g.C) == 0 && g.B.Sign() >= 0 {
			return g
		}

		twoC := new(big.Int).Lsh(g.C, 1)
		cb := new(big.Int).Add(g.C, g.B)
		s := floorDiv(cb, twoC)

		newB := new(big.Int).Mul(s, g.C)
		newB.Lsh(newB, 1)
		newB.Sub(newB, g.B)

		newC := new(big.Int).Mul(g.C, s)
		newC.Mul(newC, s)
		bs := new(big.Int).Mul(g.B, s)
		newC.Sub(newC, bs)
		newC.Add(newC, g.A)

		g = Form{A: new(big.Int).Set(g.C), B: newB, C: newC}
	}
}

// Compose implements Gauss composition of two forms of equal discriminant,
// following the classical extended-gcd (Shanks/NUCOMP base step)
// formulation: reduce the leading coefficients via two nested extended-gcd
// solves, then recover (a3,b3,c3) from the resulting Bezout data. The
// result is reduced before being returned.
func Compose(f1, f2 Form) (Form, error) {
	d1 := f1.Discriminant()
	d2 := f2.Discriminant()
	if d1.Cmp(d2) != 0 {
		return Form{}, ErrDiscriminantMismatch
	}

	if f1.A.Cmp(f2.A) > 0 {
		f1, f2 = f2, f1
	}
	a1, b1 := f1.A, f1.B
	a2, b2, c2 := f2.A, f2.B, f2.C

	s := new(big.Int).Add(b1, b2)
	s.Rsh(s, 1) // exact: b1 and b2 share parity for forms of equal discriminant

	n := new(big.Int).Sub(b2, s)

	var y1, d *big.Int
	rem := new(big.Int).Mod(a2, a1)
	if rem.Sign() == 0 {
		y1 = big.NewInt(0)
		d = new(big.Int).Set(a1)
	} else {
		u, v := new(big.Int), new(big.Int)
		d = new(big.Int).GCD(u, v, a2, a1) // u*a2 + v*a1 = d
		y1 = u
	}

	var x2, y2, d1v *big.Int
	rem2 := new(big.Int).Mod(s, d)
	if rem2.Sign() == 0 {
		x2 = big.NewInt(0)
		y2 = big.NewInt(-1)
		d1v = new(big.Int).Set(d)
	} else {
		u, v := new(big.Int), new(big.Int)
		d1v = new(big.Int).GCD(u, v, s, d) // u*s + v*d = d1v
		x2 = u
		y2 = new(big.Int).Neg(v)
	}

	v1 := new(big.Int).Div(a1, d1v)
	v2 := new(big.Int).Div(a2, d1v)

	r := new(big.Int).Mul(y1, y2)
	r.Mul(r, n)
	t := new(big.Int).Mul(x2, c2)
	r.Sub(r, t)
	r.Mod(r, v1)

	b3 := new(big.Int).Mul(v2, r)
	b3.Lsh(b3, 1)
	b3.Add(b3, b2)

	a3 := new(big.Int).Mul(v1, v2)

	c3 := new(big.Int).Mul(c2, d1v)
	tmp := new(big.Int).Mul(v2, r)
	tmp.Add(tmp, b2)
	tmp.Mul(tmp, r)
	c3.Add(c3, tmp)
	c3.Div(c3, v1)

	return Form{A: a3, B: b3, C: c3}.Reduce(), nil
}

// MustCompose is Compose but panics on discriminant mismatch; used where
// the caller has already established (by construction) that both forms
// share a discriminant, matching the design's "invariant violation: fatal"
// treatment of this failure mode.
func MustCompose(f1, f2 Form) Form {
	r, err := Compose(f1, f2)
	if err != nil {
		panic(err)
	}
	return r
}

// Square returns the reduced square of f: the specialised f==f case of
// Compose.
func (f Form) Square() Form {
	return MustCompose(f, f)
}

// Pow computes qf_pow(f,n): left-to-right square-and-multiply starting from
// the identity of f's discriminant, on reduced intermediates.
// Pow(f,0) == identity; Pow(f,1) == reduce(f).
func Pow(f Form, n *big.Int) Form {
	d := f.Discriminant()
	result := Identity(d)
	if n.Sign() == 0 {
		return result
	}
	base := f.Reduce()
	for i := n.BitLen() - 1; i >= 0; i-- {
		result = result.Square()
		if n.Bit(i) == 1 {
			result = MustCompose(result, base)
		}
	}
	return result
}

// encodeSigned returns the two's-complement big-endian representation of n
// in exactly width bytes. Panics if n does not fit (the caller is expected
// to size width from the agreed bit-length before calling).
func encodeSigned(n *big.Int, width int) []byte {
	out := make([]byte, width)
	if n.Sign() >= 0 {
		b := n.Bytes()
		if len(b) > width {
			panic("bqf: value does not fit in width")
		}
		copy(out[width-len(b):], b)
		return out
	}

	mod := new(big.Int).Lsh(big.NewInt(1), uint(width*8))
	twos := new(big.Int).Add(mod, n)
	if twos.Sign() < 0 {
		panic("bqf: value does not fit in width")
	}
	b := twos.Bytes()
	copy(out[width-len(b):], b)
	return out
}

// decodeSigned interprets b as a two's-complement big-endian integer.
func decodeSigned(b []byte) *big.Int {
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8))
		n.Sub(n, mod)
	}
	return n
}

// ToBytes serialises f at the given bit-length: each of a,b,c is
// two's-complement big-endian of width ceil(bits/8), concatenated in order
// (a,b,c).
func (f Form) ToBytes(bits int) []byte {
	width := (bits + 7) / 8
	out := make([]byte, 0, 3*width)
	out = append(out, encodeSigned(f.A, width)...)
	out = append(out, encodeSigned(f.B, width)...)
	out = append(out, encodeSigned(f.C, width)...)
	return out
}

// ErrBadLength is returned by FromBytes when the input is not exactly three
// equal-width components.
var ErrBadLength = errors.New("bqf: serialised form has wrong length")

// FromBytes parses a form serialised by ToBytes at the given bit-length.
func FromBytes(data []byte, bits int) (Form, error) {
	width := (bits + 7) / 8
	if len(data) != 3*width {
		return Form{}, ErrBadLength
	}
	a := decodeSigned(data[0:width])
	b := decodeSigned(data[width : 2*width])
	c := decodeSigned(data[2*width : 3*width])
	return Form{A: a, B: b, C: c}, nil
}
