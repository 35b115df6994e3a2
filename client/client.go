// Package client implements the beacon's verifier: given a contribution
// receipt and a target stage, it fetches the stages in between, re-derives
// the challenge chain, and checks the accumulator and aggregate VDF proofs
// that together justify the published randomness.
package client

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"

	"github.com/csienslab/headstart/accumulator"
	"github.com/csienslab/headstart/bqf"
	"github.com/csienslab/headstart/vdf"
)

// ErrVerificationFailed is returned for any inconsistency: wrong challenge
// chaining, a bad accumulator proof, a bad VDF proof, or a mismatched
// operator signature.
var ErrVerificationFailed = errors.New("client: verification failed")

// StageSnapshot is the subset of a stage's published state the verifier
// needs, as fetched from the beacon's HTTP API.
type StageSnapshot struct {
	Index          int
	AccVal         []byte
	Challenge      []byte
	VDFProof       vdf.ChallengeProof
	AggregateProof vdf.AggregateProof
}

// StageFetcher retrieves a stage snapshot by index.
type StageFetcher func(index int) (StageSnapshot, error)

// Verifier re-derives and checks a contribution's inclusion in, and the
// beacon chain's soundness up to, a target stage. Its parameters (window
// size, accumulator kind, per-stage VDF bits/iterations, aggregator) must
// match the beacon being verified.
type Verifier struct {
	window     int
	accKind    accumulator.Kind
	vdfBits    int
	iterations uint64
	aggregator *vdf.Aggregator
	fetch      StageFetcher
}

// NewVerifier constructs a Verifier.
func NewVerifier(window int, accKind accumulator.Kind, vdfBits int, iterations uint64, aggregator *vdf.Aggregator, fetch StageFetcher) *Verifier {
	return &Verifier{
		window:     window,
		accKind:    accKind,
		vdfBits:    vdfBits,
		iterations: iterations,
		aggregator: aggregator,
		fetch:      fetch,
	}
}

// coveringWindows computes the sequence of real aggregation windows
// (chronological order) whose union spans [s, t]: starting from t, take the
// window [max(u-W+1, 0), u] -- the same formula the beacon itself uses at
// rollover (beacon.go's Rollover) -- then continue from the stage before
// that window's start, until a window's start reaches s or below. A window
// is never clipped to s: since s only marks where the contribution being
// verified lives, not where the beacon's own windowing resets, clipping to s
// would reconstruct a window shorter than the one the aggregate proof was
// actually computed over and the proof would fail to verify.
func (v *Verifier) coveringWindows(s, t int) [][2]int {
	var windows [][2]int
	u := t
	for {
		start := u - v.window + 1
		if start < 0 {
			start = 0
		}
		windows = append(windows, [2]int{start, u})
		if start <= s {
			break
		}
		u = start - 1
	}
	for i, j := 0, len(windows)-1; i < j; i, j = i+1, j-1 {
		windows[i], windows[j] = windows[j], windows[i]
	}
	return windows
}

// Verify checks that contribution was included at (stageIndex, dataIndex),
// proven by witness, and that the beacon chain from stageIndex to
// targetStage is sound. It returns the target stage's published VDF output
// y_t (the caller may SHA-256 it for the final randomness).
func (v *Verifier) Verify(contribution []byte, stageIndex int, witness accumulator.Witness, targetStage int) ([]byte, error) {
	if targetStage < stageIndex {
		return nil, errors.New("client: target stage precedes contribution stage")
	}

	windows := v.coveringWindows(stageIndex, targetStage)

	// The chain-soundness walk below needs stageIndex-1..targetStage, but a
	// real aggregation window can reach further back than stageIndex-1 (it
	// is clipped to 0, not to stageIndex), so the fetch range must cover
	// whichever extends furthest.
	minFetch := stageIndex - 1
	for _, win := range windows {
		if win[0] < minFetch {
			minFetch = win[0]
		}
	}

	snapshots := make(map[int]StageSnapshot, targetStage-minFetch+2)
	for i := minFetch; i <= targetStage; i++ {
		if i < 0 {
			continue
		}
		snap, err := v.fetch(i)
		if err != nil {
			return nil, err
		}
		snapshots[i] = snap
	}

	var prevY []byte
	if stageIndex > 0 {
		prevY = snapshots[stageIndex-1].VDFProof.Y
	}
	for k := stageIndex; k <= targetStage; k++ {
		snap := snapshots[k]

		h := sha256.New()
		h.Write(snap.AccVal)
		h.Write(prevY)
		expected := h.Sum(nil)
		if !bytes.Equal(expected, snap.Challenge) {
			return nil, ErrVerificationFailed
		}
		if !vdf.Verify(snap.Challenge, v.vdfBits, v.iterations, snap.VDFProof) {
			return nil, ErrVerificationFailed
		}
		prevY = snap.VDFProof.Y
	}

	acc, err := accumulator.New(v.accKind)
	if err != nil {
		return nil, err
	}
	if !acc.Verify(snapshots[stageIndex].AccVal, witness, contribution) {
		return nil, ErrVerificationFailed
	}

	for _, win := range windows {
		start, end := win[0], win[1]
		challenges := make([][]byte, 0, end-start+1)
		ys := make([]bqf.Form, 0, end-start+1)
		for k := start; k <= end; k++ {
			snap := snapshots[k]
			challenges = append(challenges, snap.Challenge)
			ys = append(ys, v.aggregator.Eval([][]byte{snap.Challenge})[0])
		}
		if !v.aggregator.Verify(challenges, ys, snapshots[end].AggregateProof) {
			return nil, ErrVerificationFailed
		}
	}

	return snapshots[targetStage].VDFProof.Y, nil
}

// VerifyOperatorSignature checks that sig is a valid Ed25519 signature by
// pub over SHA-256(contribution), the on-wire contribution receipt format.
func VerifyOperatorSignature(pub ed25519.PublicKey, contribution, sig []byte) bool {
	digest := sha256.Sum256(contribution)
	return ed25519.Verify(pub, digest[:], sig)
}
