// Package vdf implements the Wesolowski verifiable delay function over the
// class group of an imaginary quadratic discriminant, in two forms: a
// per-challenge variant (ChiaVDF, each challenge derives its own
// discriminant) and an aggregate variant (one fixed discriminant, many
// challenges proven by a single short proof).
package vdf

import (
	"math/big"

	"github.com/csienslab/headstart/bqf"
)

// canonicalGenerator returns the fixed small-norm form (2, 1, (1-d)/8),
// reduced, used as the base element every VDF squares. Using a non-trivial
// fixed-shape generator (rather than the identity, whose powers are always
// the identity) is what gives repeated squaring an actual sequential delay.
func canonicalGenerator(d *big.Int) bqf.Form {
	a := big.NewInt(2)
	b := big.NewInt(1)
	c := new(big.Int).Sub(big.NewInt(1), d)
	c.Div(c, big.NewInt(8)) // exact: d ≡ 1 (mod 8) for every discriminant this package derives
	return bqf.Form{A: a, B: b, C: c}.Reduce()
}

// repeatedSquare computes g^(2^T) by T sequential squarings on reduced
// intermediates.
func repeatedSquare(g bqf.Form, T uint64) bqf.Form {
	y := g.Reduce()
	for i := uint64(0); i < T; i++ {
		y = y.Square()
	}
	return y
}

// longDivisionProof computes base^floor(2^T / l) without ever materialising
// 2^T: maintain r starting at 1, and at each of T steps double r, square the
// running proof value, and — whenever doubling pushed r past l — subtract l
// back out and fold in one more factor of base. This is the streaming
// long-division algorithm the Wesolowski proof is built from, shared by
// both the per-challenge and aggregate VDF.
func longDivisionProof(base bqf.Form, T uint64, l *big.Int) bqf.Form {
	x := bqf.Identity(base.Discriminant())
	r := big.NewInt(1)
	for i := uint64(0); i < T; i++ {
		r.Lsh(r, 1)
		x = x.Square()
		if r.Cmp(l) >= 0 {
			r.Sub(r, l)
			x = bqf.MustCompose(x, base)
		}
	}
	return x
}
