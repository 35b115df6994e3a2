// Package stage implements a single round of the beacon: collect
// contributions, commit them to an accumulator, run a delay function over
// the commitment chained to the previous round, and publish the result.
//
// A Stage moves through three phases, CONTRIBUTION -> EVALUATION -> DONE,
// monotonically and exactly once each. The phase field is the
// synchronisation point between the scheduler goroutine (which stops
// contributions and starts evaluation), the VDF worker goroutine (which
// finishes evaluation), and client-request goroutines (which read
// phase-gated fields) — see Phase's acquire/release discipline below.
package stage

import (
	"crypto/sha256"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/csienslab/headstart/accumulator"
	"github.com/csienslab/headstart/bqf"
	"github.com/csienslab/headstart/metrics"
	"github.com/csienslab/headstart/vdf"
)

// Phase is a stage's position in its one-way state machine.
type Phase int32

const (
	PhaseContribution Phase = iota
	PhaseEvaluation
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseContribution:
		return "contribution"
	case PhaseEvaluation:
		return "evaluation"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// ErrWrongPhase is returned by a getter called before its data is available,
// or by Contribute/StopContribution called after contributions have closed.
var ErrWrongPhase = errors.New("stage: wrong phase for this operation")

// DummyContribution seeds index 0 of every stage so the accumulator's input
// set is never empty.
var DummyContribution = []byte("headstart-dummy-contribution-v1")

// Stage is one round of the beacon.
type Stage struct {
	index      int
	accKind    accumulator.Kind
	vdfBits    int
	vdfT       uint64
	aggregator *vdf.Aggregator

	// windowStages are the earlier stages in this stage's aggregation
	// window, in chronological order (possibly empty for the beacon's
	// first stage). The last element, if present, is also this stage's
	// chaining predecessor: its VDF output feeds this stage's challenge.
	// These are read-only references bounded by the owning Beacon's
	// lifetime (see the design's cyclic-previous-stage-link note).
	windowStages []*Stage
	windowStart  int

	mu            sync.Mutex
	contributions [][]byte

	phase  atomic.Int32
	doneCh chan struct{}

	acc          accumulator.Accumulator
	data         [][]byte
	accval       []byte
	vdfChallenge []byte
	aggY         bqf.Form
	vdfProof     vdf.ChallengeProof
	aggProof     vdf.AggregateProof

	witnessCache *accumulator.WitnessCache
}

// New constructs a stage in the CONTRIBUTION phase, seeded with the dummy
// contribution at index 0. windowStages lists the earlier stages of this
// stage's aggregation window in chronological order (empty for the
// beacon's first stage); windowStart is the stage index the window begins
// at.
func New(index int, accKind accumulator.Kind, vdfBits int, vdfT uint64, aggregator *vdf.Aggregator, windowStages []*Stage, windowStart int) *Stage {
	s := &Stage{
		index:         index,
		accKind:       accKind,
		vdfBits:       vdfBits,
		vdfT:          vdfT,
		aggregator:    aggregator,
		windowStages:  windowStages,
		windowStart:   windowStart,
		contributions: [][]byte{DummyContribution},
		doneCh:        make(chan struct{}),
		witnessCache:  accumulator.NewWitnessCache(),
	}
	return s
}

// Index returns the stage's position in the beacon's stage sequence.
func (s *Stage) Index() int { return s.index }

// Phase returns the stage's current phase with acquire semantics: once a
// reader observes PhaseEvaluation or PhaseDone, every write the worker made
// before the corresponding store is visible to it.
func (s *Stage) Phase() Phase {
	return Phase(s.phase.Load())
}

// Done returns a channel closed once the stage reaches PhaseDone.
func (s *Stage) Done() <-chan struct{} {
	return s.doneCh
}

// Contribute appends x to the stage's contribution list and returns its
// index, or ErrWrongPhase if contributions have already stopped.
func (s *Stage) Contribute(x []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Phase() != PhaseContribution {
		metrics.ContributionsRejected.Inc()
		return 0, ErrWrongPhase
	}
	idx := len(s.contributions)
	s.contributions = append(s.contributions, x)
	metrics.ContributionsAccepted.Inc()
	metrics.ContributionRate.Mark(1)
	return idx, nil
}

// ContributionCount returns the number of contributions recorded so far,
// including the dummy at index 0. Safe in any phase.
func (s *Stage) ContributionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contributions)
}

// Contributions returns a snapshot of the recorded contributions.
func (s *Stage) Contributions() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.contributions))
	copy(out, s.contributions)
	return out
}

// StopContribution closes the contribution phase, snapshots the data,
// commits it to the configured accumulator, derives the VDF challenge, and
// spawns the VDF worker that advances the stage through EVALUATION to DONE.
// It blocks until the previous stage in its window (if any) has itself
// reached DONE, since the challenge chains off that stage's final y — per
// the design, this is the only suspension point in the beacon's
// concurrency model. Phase only advances to EVALUATION once accval and the
// challenge are actually computed, so any reader that observes
// PhaseEvaluation is guaranteed to see them.
//
// StopContribution is idempotent-unsafe: calling it twice returns
// ErrWrongPhase on the second call.
func (s *Stage) StopContribution() error {
	if s.Phase() != PhaseContribution {
		return ErrWrongPhase
	}

	var prevY []byte
	if n := len(s.windowStages); n > 0 {
		prev := s.windowStages[n-1]
		<-prev.Done()
		prevY, _ = prev.GetVDFY()
	}

	// Hold mu from the snapshot until the phase store, so no Contribute can
	// be accepted after the snapshot and a concurrent second call fails.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Phase() != PhaseContribution {
		return ErrWrongPhase
	}
	s.data = make([][]byte, len(s.contributions))
	copy(s.data, s.contributions)

	acc, err := accumulator.New(s.accKind)
	if err != nil {
		panic("stage: unknown accumulator kind: " + err.Error())
	}
	if err := acc.Accumulate(s.data); err != nil {
		panic("stage: accumulate: " + err.Error())
	}
	s.acc = acc
	s.accval = acc.GetAccVal()

	h := sha256.New()
	h.Write(s.accval)
	h.Write(prevY)
	s.vdfChallenge = h.Sum(nil)

	s.phase.Store(int32(PhaseEvaluation))

	go s.runVDFWorker()
	return nil
}

// runVDFWorker performs the CPU-bound portion of a round: the per-challenge
// Wesolowski VDF, then folds the result into the stage's aggregation window
// and publishes by transitioning to DONE. It is the stage's dedicated
// one-shot worker and touches no state any other goroutine writes.
func (s *Stage) runVDFWorker() {
	start := time.Now()
	s.vdfProof = vdf.EvalAndProve(s.vdfChallenge, s.vdfBits, s.vdfT)
	metrics.VDFSquarings.Add(int64(s.vdfT))

	if s.aggregator != nil {
		s.aggY = s.aggregator.Eval([][]byte{s.vdfChallenge})[0]

		challenges := make([][]byte, 0, len(s.windowStages)+1)
		ys := make([]bqf.Form, 0, len(s.windowStages)+1)
		for _, ws := range s.windowStages {
			c, _ := ws.VDFChallenge()
			y, _ := ws.AggY()
			challenges = append(challenges, c)
			ys = append(ys, y)
		}
		challenges = append(challenges, s.vdfChallenge)
		ys = append(ys, s.aggY)

		s.aggProof = s.aggregator.Aggregate(challenges, ys)
		metrics.AggregateProofsBuilt.Inc()
	}
	metrics.VDFProofDuration.Observe(float64(time.Since(start).Milliseconds()))
	metrics.StagesCompleted.Inc()
	metrics.StageCompletionRate.Mark(1)

	s.phase.Store(int32(PhaseDone))
	close(s.doneCh)
}

// GetAccVal returns the accumulator commitment, available from EVALUATION
// onward.
func (s *Stage) GetAccVal() ([]byte, error) {
	if s.Phase() == PhaseContribution {
		return nil, ErrWrongPhase
	}
	return s.accval, nil
}

// GetAccProof returns a membership witness for contribution index j,
// available from EVALUATION onward. Witness sets are memoised per stage.
func (s *Stage) GetAccProof(j int) (accumulator.Witness, error) {
	if s.Phase() == PhaseContribution {
		return nil, ErrWrongPhase
	}
	witnesses, err := s.witnessCache.GetOrCompute(s.acc, s.data)
	if err != nil {
		return nil, err
	}
	if j < 0 || j >= len(witnesses) {
		return nil, accumulator.ErrIndexRange
	}
	return witnesses[j], nil
}

// GetVDFY returns the per-challenge VDF output bytes, available only once
// the stage is DONE.
func (s *Stage) GetVDFY() ([]byte, error) {
	if s.Phase() != PhaseDone {
		return nil, ErrWrongPhase
	}
	return s.vdfProof.Y, nil
}

// GetVDFProof returns the full per-challenge Wesolowski proof, available
// only once the stage is DONE.
func (s *Stage) GetVDFProof() (vdf.ChallengeProof, error) {
	if s.Phase() != PhaseDone {
		return vdf.ChallengeProof{}, ErrWrongPhase
	}
	return s.vdfProof, nil
}

// GetAggregateProof returns the aggregate VDF proof covering this stage's
// window, available only once the stage is DONE.
func (s *Stage) GetAggregateProof() (vdf.AggregateProof, error) {
	if s.Phase() != PhaseDone {
		return vdf.AggregateProof{}, ErrWrongPhase
	}
	return s.aggProof, nil
}

// VDFChallenge returns the challenge this stage's VDF was evaluated on,
// available from EVALUATION onward.
func (s *Stage) VDFChallenge() ([]byte, error) {
	if s.Phase() == PhaseContribution {
		return nil, ErrWrongPhase
	}
	return s.vdfChallenge, nil
}

// AggY returns the form this stage contributed to its aggregation window's
// proof (its challenge evaluated under the aggregate VDF's fixed
// discriminant), available only once the stage is DONE.
func (s *Stage) AggY() (bqf.Form, error) {
	if s.Phase() != PhaseDone {
		return bqf.Form{}, ErrWrongPhase
	}
	return s.aggY, nil
}

// WindowStart returns the stage index the aggregation window covered by
// this stage's aggregate proof begins at.
func (s *Stage) WindowStart() int {
	return s.windowStart
}

// FinalRandomness returns H(vdf_y), the stage's published output, available
// only once the stage is DONE.
func (s *Stage) FinalRandomness() ([32]byte, error) {
	if s.Phase() != PhaseDone {
		return [32]byte{}, ErrWrongPhase
	}
	return sha256.Sum256(s.vdfProof.Y), nil
}
