package vdf

import (
	"testing"

	"github.com/csienslab/headstart/bqf"
)

func TestAggregateEvalAndVerifyRoundTrip(t *testing.T) {
	agg := NewAggregator([]byte("headstart-aggregate-vdf-v1"), 64, 40)
	challenges := [][]byte{[]byte("root-a"), []byte("root-b"), []byte("root-c")}

	ys := agg.Eval(challenges)
	proof := agg.Aggregate(challenges, ys)

	if !agg.Verify(challenges, ys, proof) {
		t.Fatal("genuine aggregate proof failed to verify")
	}
}

func TestAggregateVerifyRejectsTamperedY(t *testing.T) {
	// S5: replacing one challenge's y with a different form (here its
	// square) must invalidate the whole aggregate proof, since it changes
	// the Fiat-Shamir seed and so the scalars a_j and prime l derived from it.
	agg := NewAggregator([]byte("headstart-aggregate-vdf-v1"), 64, 40)
	challenges := [][]byte{[]byte("root-a"), []byte("root-b")}

	ys := agg.Eval(challenges)
	proof := agg.Aggregate(challenges, ys)

	tamperedYs := append([]bqf.Form{}, ys...)
	tamperedYs[0] = tamperedYs[0].Square()

	if agg.Verify(challenges, tamperedYs, proof) {
		t.Fatal("verify accepted a tampered y in the aggregate set")
	}
}

func TestAggregateVerifyRejectsWrongChallengeSet(t *testing.T) {
	// T must exceed the bit-length of l: otherwise floor(2^T/l) = 0 and the
	// proof is the identity, which verifies for any honestly evaluated set.
	agg := NewAggregator([]byte("headstart-aggregate-vdf-v1"), 64, 100)
	challenges := [][]byte{[]byte("root-a"), []byte("root-b")}
	ys := agg.Eval(challenges)
	proof := agg.Aggregate(challenges, ys)

	otherChallenges := [][]byte{[]byte("root-a"), []byte("root-x")}
	otherYs := agg.Eval(otherChallenges)
	if agg.Verify(otherChallenges, otherYs, proof) {
		t.Fatal("proof verified against a different challenge set")
	}
}

func TestAggregateVerifyRejectsMismatchedLengths(t *testing.T) {
	agg := NewAggregator([]byte("headstart-aggregate-vdf-v1"), 64, 20)
	challenges := [][]byte{[]byte("root-a"), []byte("root-b")}
	ys := agg.Eval(challenges)
	proof := agg.Aggregate(challenges, ys)

	if agg.Verify(challenges[:1], ys, proof) {
		t.Fatal("verify accepted mismatched challenge/y slice lengths")
	}
}

func TestAggregateDifferentSeedsYieldDifferentDiscriminants(t *testing.T) {
	a1 := NewAggregator([]byte("seed-one"), 64, 10)
	a2 := NewAggregator([]byte("seed-two"), 64, 10)
	if a1.D.Cmp(a2.D) == 0 {
		t.Fatal("different seeds produced the same aggregation discriminant")
	}
}
