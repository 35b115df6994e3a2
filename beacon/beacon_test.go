package beacon

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/csienslab/headstart/accumulator"
)

func testConfig() Config {
	return Config{
		Interval:         50 * time.Millisecond,
		Window:           3,
		Accumulator:      accumulator.KindMerkle,
		StageVDFBits:     48,
		Iterations:       20,
		AggregateVDFBits: 48,
		AggregationSeed:  "test-aggregate-seed",
	}
}

func newTestBeacon(t *testing.T) *Beacon {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return New(testConfig(), priv, pub)
}

func TestContributeReturnsVerifiableReceipt(t *testing.T) {
	b := newTestBeacon(t)
	receipt, err := b.Contribute([]byte("peko"))
	if err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	if receipt.StageIndex != 0 {
		t.Fatalf("expected stage 0, got %d", receipt.StageIndex)
	}
	if !VerifyReceipt(b.PublicKey(), []byte("peko"), receipt.Signature) {
		t.Fatal("receipt signature did not verify")
	}
	if VerifyReceipt(b.PublicKey(), []byte("pekx"), receipt.Signature) {
		t.Fatal("receipt signature verified against tampered data")
	}
}

func TestRolloverAdvancesCurrentStageAndEventuallyCompletesPrevious(t *testing.T) {
	b := newTestBeacon(t)
	b.Contribute([]byte("peko"))
	b.Contribute([]byte("miko"))

	b.Rollover()

	if b.CurrentIndex() != 1 {
		t.Fatalf("expected current index 1 after rollover, got %d", b.CurrentIndex())
	}
	if b.StageCount() != 2 {
		t.Fatalf("expected 2 stages, got %d", b.StageCount())
	}

	s0, err := b.Stage(0)
	if err != nil {
		t.Fatalf("Stage(0): %v", err)
	}
	select {
	case <-s0.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("stage 0 did not reach DONE in time")
	}

	accval, err := s0.GetAccVal()
	if err != nil || len(accval) == 0 {
		t.Fatalf("GetAccVal: %v, %v", accval, err)
	}
}

func TestStageSentinelForIndexMinusOne(t *testing.T) {
	b := newTestBeacon(t)
	s, err := b.Stage(-1)
	if err != nil {
		t.Fatalf("Stage(-1): %v", err)
	}
	if s != nil {
		t.Fatal("expected nil sentinel stage for index -1")
	}
}

func TestStageIndexOutOfRange(t *testing.T) {
	b := newTestBeacon(t)
	if _, err := b.Stage(5); err != ErrStageIndexRange {
		t.Fatalf("expected ErrStageIndexRange, got %v", err)
	}
}

func TestStagesInRange(t *testing.T) {
	b := newTestBeacon(t)
	b.Rollover()
	b.Rollover()
	stages, err := b.StagesInRange(0, 2)
	if err != nil {
		t.Fatalf("StagesInRange: %v", err)
	}
	if len(stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(stages))
	}
}

func TestStartStop(t *testing.T) {
	b := newTestBeacon(t)
	b.Start()
	time.Sleep(120 * time.Millisecond)
	b.Stop()
	if b.StageCount() < 2 {
		t.Fatalf("expected at least 2 stages after scheduler ran, got %d", b.StageCount())
	}
}
