package vdf

import (
	"math/big"

	"github.com/csienslab/headstart/bqf"
	"github.com/csienslab/headstart/hashgadgets"
)

// byteWidth returns the serialised component width (in bytes) used for
// forms derived from a discriminant of the given bit-length, with a margin
// since a reduced form's a,b,c components can be a few bits wider than
// sqrt(|d|) in edge cases.
func byteWidth(bits int) int {
	return (bits+8)/8 + 1
}

// ChallengeProof is the serialised evaluation output of the per-challenge
// VDF: (discriminant_string, y_bytes, pi_bytes).
type ChallengeProof struct {
	DiscriminantString string
	Y                  []byte
	Pi                 []byte
}

// CreateDiscriminant derives a discriminant from a challenge and a target
// bit-length, per H_D.
func CreateDiscriminant(challenge []byte, bits int) *big.Int {
	return hashgadgets.HD(challenge, bits)
}

// fiatShamirPrime derives the Wesolowski challenge prime l from the base
// form and the evaluated output, per-challenge variant.
func fiatShamirPrime(g, y bqf.Form, bits int) *big.Int {
	buf := append(append([]byte{}, g.ToBytes(bits)...), y.ToBytes(bits)...)
	return hashgadgets.HP(buf, bits)
}

// EvalAndProve performs T squarings of the canonical generator of the
// discriminant derived from challenge, and produces a Wesolowski proof.
func EvalAndProve(challenge []byte, bits int, T uint64) ChallengeProof {
	d := CreateDiscriminant(challenge, bits)
	g := canonicalGenerator(d)
	y := repeatedSquare(g, T)
	l := fiatShamirPrime(g, y, bits)
	pi := longDivisionProof(g, T, l)

	w := byteWidth(bits)
	return ChallengeProof{
		DiscriminantString: d.String(),
		Y:                  y.ToBytes(w * 8),
		Pi:                 pi.ToBytes(w * 8),
	}
}

// Verify recomputes the discriminant from (challenge, bits), checks it
// matches the one embedded in the proof (binding — see the design's
// discriminant-binding requirement, S4), then checks the Wesolowski
// equation pi^l * g^r == y with r = 2^T mod l.
func Verify(challenge []byte, bits int, T uint64, proof ChallengeProof) bool {
	d := CreateDiscriminant(challenge, bits)
	if proof.DiscriminantString != d.String() {
		return false
	}

	g := canonicalGenerator(d)
	w := byteWidth(bits) * 8

	y, err := bqf.FromBytes(proof.Y, w)
	if err != nil {
		return false
	}
	pi, err := bqf.FromBytes(proof.Pi, w)
	if err != nil {
		return false
	}
	if y.Discriminant().Cmp(d) != 0 || pi.Discriminant().Cmp(d) != 0 {
		return false
	}

	l := fiatShamirPrime(g, y, bits)

	tBig := new(big.Int).SetUint64(T)
	r := new(big.Int).Exp(big.NewInt(2), tBig, l)

	lhs := bqf.MustCompose(bqf.Pow(pi, l), bqf.Pow(g, r))
	return lhs.Equal(y.Reduce())
}
