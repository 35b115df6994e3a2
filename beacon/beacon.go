// Package beacon owns the sequence of stages that make up a running
// randomness beacon: it fires a periodic rollover that closes the current
// stage and opens the next one, signs contribution receipts with the
// beacon's Ed25519 key, and answers the query surface the HTTP API and the
// client verifier are built on.
package beacon

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"sync"
	"time"

	"github.com/csienslab/headstart/accumulator"
	"github.com/csienslab/headstart/stage"
	"github.com/csienslab/headstart/vdf"
)

// Config holds the parameters a Beacon needs to run stages and the
// scheduler. It is independent of how a hosting process loads it.
type Config struct {
	Interval         time.Duration
	Window           int
	Accumulator      accumulator.Kind
	StageVDFBits     int
	Iterations       uint64
	AggregateVDFBits int
	AggregationSeed  string
}

// ErrStageIndexRange is returned for a stage index outside [-1, len(stages)-1].
var ErrStageIndexRange = errors.New("beacon: stage index out of range")

// ContributionReceipt is returned to a contributor as proof the beacon
// operator has seen their input. It binds the operator to having observed
// x, not to x's eventual inclusion — that is proven separately via the
// stage's accumulator witness once the stage reaches EVALUATION.
type ContributionReceipt struct {
	StageIndex int
	DataIndex  int
	Signature  []byte
}

// Beacon is a running sequence of stages.
type Beacon struct {
	cfg        Config
	priv       ed25519.PrivateKey
	pub        ed25519.PublicKey
	aggregator *vdf.Aggregator

	mu     sync.RWMutex
	stages []*stage.Stage

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Beacon with a fresh first stage in the CONTRIBUTION
// phase, but does not start its scheduler — call Start for that.
func New(cfg Config, priv ed25519.PrivateKey, pub ed25519.PublicKey) *Beacon {
	aggregator := vdf.NewAggregator([]byte(cfg.AggregationSeed), cfg.AggregateVDFBits, cfg.Iterations)
	b := &Beacon{
		cfg:        cfg,
		priv:       priv,
		pub:        pub,
		aggregator: aggregator,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	first := stage.New(0, cfg.Accumulator, cfg.StageVDFBits, cfg.Iterations, aggregator, nil, 0)
	b.stages = append(b.stages, first)
	return b
}

// PublicKey returns the beacon's Ed25519 public key.
func (b *Beacon) PublicKey() ed25519.PublicKey { return b.pub }

// Start launches the background scheduler goroutine, which calls Rollover
// every cfg.Interval until Stop is called.
func (b *Beacon) Start() {
	go b.schedulerLoop()
}

// Stop signals the scheduler to exit and waits for it to do so. In-flight
// VDF work is not cancelled; it either completes in the background or is
// abandoned when the process exits, per the design's no-durable-state note.
func (b *Beacon) Stop() {
	close(b.stopCh)
	<-b.doneCh
}

func (b *Beacon) schedulerLoop() {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.Rollover()
		}
	}
}

// Rollover stops the current stage's contribution phase and pushes a new
// current stage, whose aggregation window covers at most Window of the
// most-recent stages including itself. It is mutually exclusive with
// Contribute and with reads of the current-stage identity.
func (b *Beacon) Rollover() {
	b.mu.Lock()
	current := b.stages[len(b.stages)-1]
	newIndex := len(b.stages)

	windowStart := newIndex - b.cfg.Window + 1
	if windowStart < 0 {
		windowStart = 0
	}
	windowStages := append([]*stage.Stage{}, b.stages[windowStart:]...)

	next := stage.New(newIndex, b.cfg.Accumulator, b.cfg.StageVDFBits, b.cfg.Iterations, b.aggregator, windowStages, windowStart)
	b.stages = append(b.stages, next)
	b.mu.Unlock()

	// StopContribution may block on the previous window member reaching
	// DONE; it must not hold b.mu while doing so.
	_ = current.StopContribution()
}

// Contribute records x into the current stage and signs a receipt over
// SHA-256(x) with the beacon's key.
func (b *Beacon) Contribute(x []byte) (ContributionReceipt, error) {
	b.mu.RLock()
	current := b.stages[len(b.stages)-1]
	stageIndex := current.Index()
	b.mu.RUnlock()

	dataIndex, err := current.Contribute(x)
	if err != nil {
		return ContributionReceipt{}, err
	}

	digest := sha256.Sum256(x)
	sig := ed25519.Sign(b.priv, digest[:])

	return ContributionReceipt{StageIndex: stageIndex, DataIndex: dataIndex, Signature: sig}, nil
}

// VerifyReceipt checks that sig is a valid signature by pub over
// SHA-256(x), per the on-wire "Ed25519 over SHA-256 of the contributed
// bytes" encoding.
func VerifyReceipt(pub ed25519.PublicKey, x []byte, sig []byte) bool {
	digest := sha256.Sum256(x)
	return ed25519.Verify(pub, digest[:], sig)
}

// CurrentIndex returns the index of the stage currently accepting
// contributions.
func (b *Beacon) CurrentIndex() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stages[len(b.stages)-1].Index()
}

// StageCount returns the number of stages the beacon has ever created.
func (b *Beacon) StageCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.stages)
}

// Stage returns the stage at index i, or a special behaviour for i == -1:
// by convention index -1 denotes a sentinel stage with empty fields, used
// to simplify chaining lookups at stage 0 (see the API's stage/<i> route).
func (b *Beacon) Stage(i int) (*stage.Stage, error) {
	if i == -1 {
		return nil, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i < 0 || i >= len(b.stages) {
		return nil, ErrStageIndexRange
	}
	return b.stages[i], nil
}

// StagesInRange returns the stages with index in [start, end], inclusive.
func (b *Beacon) StagesInRange(start, end int) ([]*stage.Stage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if start < 0 || end >= len(b.stages) || start > end {
		return nil, ErrStageIndexRange
	}
	out := make([]*stage.Stage, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, b.stages[i])
	}
	return out, nil
}

// Info is the summary returned by the beacon's info endpoint.
type Info struct {
	Stage         int
	Phase         string
	Contributions int
}

// CurrentInfo returns a snapshot of the current stage's public state.
func (b *Beacon) CurrentInfo() Info {
	b.mu.RLock()
	current := b.stages[len(b.stages)-1]
	b.mu.RUnlock()
	return Info{
		Stage:         current.Index(),
		Phase:         current.Phase().String(),
		Contributions: current.ContributionCount(),
	}
}

// ConfigSummary is the subset of configuration exposed over the API's
// beacon_config endpoint.
type ConfigSummary struct {
	IntervalSeconds int
	WindowSize      int
}

// ConfigSummary returns the beacon's public configuration.
func (b *Beacon) ConfigSummary() ConfigSummary {
	return ConfigSummary{
		IntervalSeconds: int(b.cfg.Interval / time.Second),
		WindowSize:      b.cfg.Window,
	}
}
