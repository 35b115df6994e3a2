package stage

import (
	"testing"
	"time"

	"github.com/csienslab/headstart/accumulator"
	"github.com/csienslab/headstart/vdf"
)

func newTestAggregator() *vdf.Aggregator {
	return vdf.NewAggregator([]byte("test-aggregate-seed"), 48, 20)
}

func TestContributeAssignsIncreasingIndices(t *testing.T) {
	s := New(0, accumulator.KindMerkle, 48, 20, newTestAggregator(), nil, 0)
	i1, err := s.Contribute([]byte("peko"))
	if err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	i2, err := s.Contribute([]byte("miko"))
	if err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	if i1 != 1 || i2 != 2 {
		t.Fatalf("expected indices 1,2 (after dummy at 0), got %d,%d", i1, i2)
	}
	if s.ContributionCount() != 3 {
		t.Fatalf("expected 3 contributions including dummy, got %d", s.ContributionCount())
	}
}

func TestGettersFailBeforeTheirPhase(t *testing.T) {
	s := New(0, accumulator.KindMerkle, 48, 20, newTestAggregator(), nil, 0)
	if _, err := s.GetAccVal(); err != ErrWrongPhase {
		t.Fatalf("expected ErrWrongPhase, got %v", err)
	}
	if _, err := s.GetVDFY(); err != ErrWrongPhase {
		t.Fatalf("expected ErrWrongPhase, got %v", err)
	}
	if _, err := s.GetAggregateProof(); err != ErrWrongPhase {
		t.Fatalf("expected ErrWrongPhase, got %v", err)
	}
}

func TestContributeFailsAfterStopContribution(t *testing.T) {
	s := New(0, accumulator.KindMerkle, 48, 20, newTestAggregator(), nil, 0)
	if err := s.StopContribution(); err != nil {
		t.Fatalf("StopContribution: %v", err)
	}
	if _, err := s.Contribute([]byte("late")); err != ErrWrongPhase {
		t.Fatalf("expected ErrWrongPhase, got %v", err)
	}
	if err := s.StopContribution(); err != ErrWrongPhase {
		t.Fatalf("expected second StopContribution to fail, got %v", err)
	}
}

func TestStopContributionReachesDoneAndExposesResults(t *testing.T) {
	s := New(0, accumulator.KindMerkle, 48, 20, newTestAggregator(), nil, 0)
	s.Contribute([]byte("peko"))
	s.Contribute([]byte("miko"))
	if err := s.StopContribution(); err != nil {
		t.Fatalf("StopContribution: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("stage did not reach DONE in time")
	}

	if s.Phase() != PhaseDone {
		t.Fatalf("expected PhaseDone, got %v", s.Phase())
	}
	accval, err := s.GetAccVal()
	if err != nil || len(accval) == 0 {
		t.Fatalf("GetAccVal: %v, %v", accval, err)
	}
	w, err := s.GetAccProof(1)
	if err != nil {
		t.Fatalf("GetAccProof: %v", err)
	}
	y, err := s.GetVDFY()
	if err != nil || len(y) == 0 {
		t.Fatalf("GetVDFY: %v, %v", y, err)
	}
	if _, err := s.GetAggregateProof(); err != nil {
		t.Fatalf("GetAggregateProof: %v", err)
	}
	if w == nil {
		t.Fatal("nil witness")
	}
	fr, err := s.FinalRandomness()
	if err != nil || fr == ([32]byte{}) {
		t.Fatalf("FinalRandomness: %v, %v", fr, err)
	}
}

func TestSecondStageChainsOffFirst(t *testing.T) {
	agg := newTestAggregator()
	s0 := New(0, accumulator.KindMerkle, 48, 20, agg, nil, 0)
	s0.Contribute([]byte("peko"))
	if err := s0.StopContribution(); err != nil {
		t.Fatalf("StopContribution s0: %v", err)
	}
	<-s0.Done()

	s1 := New(1, accumulator.KindMerkle, 48, 20, agg, []*Stage{s0}, 0)
	s1.Contribute([]byte("miko"))
	if err := s1.StopContribution(); err != nil {
		t.Fatalf("StopContribution s1: %v", err)
	}
	<-s1.Done()

	c0, _ := s0.VDFChallenge()
	c1, _ := s1.VDFChallenge()
	if string(c0) == string(c1) {
		t.Fatal("stage 1's challenge did not chain off stage 0's output")
	}
}
