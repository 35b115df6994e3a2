package client_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/csienslab/headstart/accumulator"
	"github.com/csienslab/headstart/beacon"
	"github.com/csienslab/headstart/client"
	"github.com/csienslab/headstart/stage"
	"github.com/csienslab/headstart/vdf"
)

const (
	testVDFBits    = 48
	testIterations = 20
	testAggBits    = 48
	testSeed       = "test-client-aggregate-seed"
)

func newTestBeacon(t *testing.T, window int) *beacon.Beacon {
	t.Helper()
	return newTestBeaconWithAccumulator(t, window, accumulator.KindMerkle)
}

func newTestBeaconWithAccumulator(t *testing.T, window int, accKind accumulator.Kind) *beacon.Beacon {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	cfg := beacon.Config{
		Interval:         time.Hour, // rolled over manually in tests
		Window:           window,
		Accumulator:      accKind,
		StageVDFBits:     testVDFBits,
		Iterations:       testIterations,
		AggregateVDFBits: testAggBits,
		AggregationSeed:  testSeed,
	}
	return beacon.New(cfg, priv, pub)
}

func fetcherFor(b *beacon.Beacon) client.StageFetcher {
	return func(index int) (client.StageSnapshot, error) {
		s, err := b.Stage(index)
		if err != nil {
			return client.StageSnapshot{}, err
		}
		accval, err := s.GetAccVal()
		if err != nil {
			return client.StageSnapshot{}, err
		}
		challenge, err := s.VDFChallenge()
		if err != nil {
			return client.StageSnapshot{}, err
		}
		proof, err := s.GetVDFProof()
		if err != nil {
			return client.StageSnapshot{}, err
		}
		aggProof, err := s.GetAggregateProof()
		if err != nil {
			return client.StageSnapshot{}, err
		}
		return client.StageSnapshot{
			Index:          index,
			AccVal:         accval,
			Challenge:      challenge,
			VDFProof:       proof,
			AggregateProof: aggProof,
		}, nil
	}
}

func waitDone(t *testing.T, s *stage.Stage) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(15 * time.Second):
		t.Fatal("stage did not reach DONE in time")
	}
}

// TestSingleStageSuccess is scenario S1: contribute, roll over, verify.
func TestSingleStageSuccess(t *testing.T) {
	b := newTestBeacon(t, 10)
	b.Contribute([]byte("peko"))
	receipt, err := b.Contribute([]byte("miko"))
	if err != nil {
		t.Fatalf("Contribute: %v", err)
	}

	b.Rollover()
	s0, _ := b.Stage(0)
	waitDone(t, s0)

	v := client.NewVerifier(10, accumulator.KindMerkle, testVDFBits, testIterations,
		vdf.NewAggregator([]byte(testSeed), testAggBits, testIterations), fetcherFor(b))

	witness, err := s0.GetAccProof(receipt.DataIndex)
	if err != nil {
		t.Fatalf("GetAccProof: %v", err)
	}

	y, err := v.Verify([]byte("miko"), 0, witness, 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(y) == 0 {
		t.Fatal("empty final y")
	}
}

// TestTamperedContribution is scenario S2: verification must fail at the
// accumulator check when the locally-held contribution differs from what
// was actually committed.
func TestTamperedContribution(t *testing.T) {
	b := newTestBeacon(t, 10)
	receipt, err := b.Contribute([]byte("peko"))
	if err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	b.Rollover()
	s0, _ := b.Stage(0)
	waitDone(t, s0)

	witness, err := s0.GetAccProof(receipt.DataIndex)
	if err != nil {
		t.Fatalf("GetAccProof: %v", err)
	}

	v := client.NewVerifier(10, accumulator.KindMerkle, testVDFBits, testIterations,
		vdf.NewAggregator([]byte(testSeed), testAggBits, testIterations), fetcherFor(b))

	if _, err := v.Verify([]byte("pekx"), 0, witness, 0); err != client.ErrVerificationFailed {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}

// TestCrossWindowRetrieval is scenario S3: a target several rollovers past
// the contribution stage, requiring multiple overlapping aggregation
// windows to be verified.
func TestCrossWindowRetrieval(t *testing.T) {
	const window = 3
	b := newTestBeacon(t, window)

	receipt, err := b.Contribute([]byte("peko"))
	if err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	s0, _ := b.Stage(0)

	// One rollover beyond the target index: a stage is only stopped (and can
	// only reach DONE) once a later rollover replaces it as current.
	const rollovers = 7
	for i := 0; i <= rollovers; i++ {
		b.Rollover()
	}
	targetStage, _ := b.Stage(rollovers)
	waitDone(t, targetStage)

	witness, err := s0.GetAccProof(receipt.DataIndex)
	if err != nil {
		t.Fatalf("GetAccProof: %v", err)
	}

	v := client.NewVerifier(window, accumulator.KindMerkle, testVDFBits, testIterations,
		vdf.NewAggregator([]byte(testSeed), testAggBits, testIterations), fetcherFor(b))

	y, err := v.Verify([]byte("peko"), 0, witness, rollovers)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(y) == 0 {
		t.Fatal("empty final y")
	}
}

// TestWindowExtendsBelowContributionStage reproduces the W=3, s=2, t=9 case
// whose real per-window split is [7,9],[4,6],[1,3]: the last window's start
// (1) lies below the contribution's stage (2). coveringWindows must clip
// each window's start to 0, as the beacon's own Rollover does, not to s --
// otherwise the reconstructed window [2,3] would produce the wrong
// Fiat-Shamir seed and a legitimate proof would fail to verify.
func TestWindowExtendsBelowContributionStage(t *testing.T) {
	const window = 3
	b := newTestBeacon(t, window)

	// Advance to stage 2 before contributing.
	b.Rollover()
	b.Rollover()

	receipt, err := b.Contribute([]byte("peko"))
	if err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	const contribStage = 2
	s2, _ := b.Stage(contribStage)

	const targetStage = 9
	// Roll past the target so it is stopped and can reach DONE.
	for b.CurrentIndex() <= targetStage {
		b.Rollover()
	}
	target, _ := b.Stage(targetStage)
	waitDone(t, target)

	witness, err := s2.GetAccProof(receipt.DataIndex)
	if err != nil {
		t.Fatalf("GetAccProof: %v", err)
	}

	v := client.NewVerifier(window, accumulator.KindMerkle, testVDFBits, testIterations,
		vdf.NewAggregator([]byte(testSeed), testAggBits, testIterations), fetcherFor(b))

	y, err := v.Verify([]byte("peko"), contribStage, witness, targetStage)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(y) == 0 {
		t.Fatal("empty final y")
	}
}

// TestEndToEndRSAAccumulatorKinds exercises the full beacon-to-client path
// for the RSA and RSA-universal accumulators, each constructed independently
// by the beacon's stage (accumulate/witgen) and by the verifier (verify) via
// two separate accumulator.New calls. This only passes if both instances
// share the same trusted-setup modulus and base, which accumulator.New must
// guarantee deterministically from the Kind alone.
func TestEndToEndRSAAccumulatorKinds(t *testing.T) {
	for _, kind := range []accumulator.Kind{accumulator.KindRSA, accumulator.KindRSAUniversal} {
		kind := kind
		t.Run(string(kind), func(t *testing.T) {
			b := newTestBeaconWithAccumulator(t, 10, kind)
			receipt, err := b.Contribute([]byte("peko"))
			if err != nil {
				t.Fatalf("Contribute: %v", err)
			}
			b.Rollover()
			s0, _ := b.Stage(0)
			waitDone(t, s0)

			witness, err := s0.GetAccProof(receipt.DataIndex)
			if err != nil {
				t.Fatalf("GetAccProof: %v", err)
			}

			v := client.NewVerifier(10, kind, testVDFBits, testIterations,
				vdf.NewAggregator([]byte(testSeed), testAggBits, testIterations), fetcherFor(b))

			y, err := v.Verify([]byte("peko"), 0, witness, 0)
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if len(y) == 0 {
				t.Fatal("empty final y")
			}
		})
	}
}
