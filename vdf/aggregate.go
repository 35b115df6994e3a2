package vdf

import (
	"crypto/sha256"
	"math/big"
	"strconv"

	"github.com/csienslab/headstart/bqf"
	"github.com/csienslab/headstart/hashgadgets"
)

// AggregateProof is the single short Wesolowski-style proof binding every
// (challenge, y) pair evaluated under one fixed discriminant.
type AggregateProof struct {
	Pi bqf.Form
}

// Aggregator evaluates and proves a Wesolowski VDF over a fixed
// discriminant derived once from a hard-coded seed, amortising many
// concurrent per-challenge evaluations into a single proof.
type Aggregator struct {
	D *big.Int
	B int
	T uint64
}

// NewAggregator derives the fixed discriminant d = H_D(seed, bits) and
// returns an Aggregator for parameters (bits, T). Regenerating the seed
// invalidates every previously published aggregate proof (see the design's
// aggregation-seed note).
func NewAggregator(seed []byte, bits int, T uint64) *Aggregator {
	return &Aggregator{D: hashgadgets.HD(seed, bits), B: bits, T: T}
}

func (v *Aggregator) formFor(challenge []byte) bqf.Form {
	return hashgadgets.HQF(challenge, v.D, v.B)
}

// Eval returns y_j = g_j^(2^T) for each challenge, with g_j = H_QF(c_j, d, b).
func (v *Aggregator) Eval(challenges [][]byte) []bqf.Form {
	ys := make([]bqf.Form, len(challenges))
	for i, c := range challenges {
		ys[i] = repeatedSquare(v.formFor(c), v.T)
	}
	return ys
}

// aggregateSeed computes s = SHA-256(|| g_j || || y_j), the Fiat-Shamir
// seed every scalar and the challenge prime l are derived from.
func (v *Aggregator) aggregateSeed(gs, ys []bqf.Form) []byte {
	h := sha256.New()
	for _, g := range gs {
		h.Write(g.ToBytes(v.B))
	}
	for _, y := range ys {
		h.Write(y.ToBytes(v.B))
	}
	return h.Sum(nil)
}

// scalars returns the per-challenge Fiat-Shamir scalars a_j = next(H_kgen(
// str(j+1) || s, b)) for j = 1..m, and the challenge prime l = H_P(s, b).
func (v *Aggregator) scalars(s []byte, m int) ([]*big.Int, *big.Int) {
	a := make([]*big.Int, m)
	for j := 0; j < m; j++ {
		input := append([]byte(strconv.Itoa(j+1)), s...)
		a[j] = hashgadgets.Hkgen(input, v.B)
	}
	l := hashgadgets.HP(s, v.B)
	return a, l
}

// combine returns Π forms_j^{a_j} starting from the identity.
func combine(d *big.Int, forms []bqf.Form, a []*big.Int) bqf.Form {
	acc := bqf.Identity(d)
	for j, f := range forms {
		acc = bqf.MustCompose(acc, bqf.Pow(f, a[j]))
	}
	return acc
}

// Aggregate produces one Wesolowski-style proof binding every (challenge,y)
// pair: derive a_j and l from the Fiat-Shamir seed, combine G = Π g_j^a_j,
// then compute π = G^floor(2^T/l) via long-division streaming. Y is not
// needed to build π; Verify computes it.
func (v *Aggregator) Aggregate(challenges [][]byte, ys []bqf.Form) AggregateProof {
	gs := make([]bqf.Form, len(challenges))
	for i, c := range challenges {
		gs[i] = v.formFor(c)
	}

	s := v.aggregateSeed(gs, ys)
	a, l := v.scalars(s, len(challenges))

	G := combine(v.D, gs, a)
	pi := longDivisionProof(G, v.T, l)

	return AggregateProof{Pi: pi}
}

// Verify recomputes gs, a, l, G, Y from (challenges, ys), sets
// r' = 2^T mod l, and checks pi^l * G^r' reduces to Y.
func (v *Aggregator) Verify(challenges [][]byte, ys []bqf.Form, proof AggregateProof) bool {
	if len(challenges) != len(ys) {
		return false
	}

	gs := make([]bqf.Form, len(challenges))
	for i, c := range challenges {
		gs[i] = v.formFor(c)
	}

	s := v.aggregateSeed(gs, ys)
	a, l := v.scalars(s, len(challenges))

	G := combine(v.D, gs, a)
	Y := combine(v.D, ys, a)

	tBig := new(big.Int).SetUint64(v.T)
	rPrime := new(big.Int).Exp(big.NewInt(2), tBig, l)

	lhs := bqf.MustCompose(bqf.Pow(proof.Pi, l), bqf.Pow(G, rPrime))
	return lhs.Equal(Y.Reduce())
}
