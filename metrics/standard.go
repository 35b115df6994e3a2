package metrics

// Pre-defined metrics for the headstart randomness beacon. All metrics
// live in DefaultRegistry so they are globally accessible without passing a
// registry around.

var (
	// ---- Stage metrics ----

	// StageIndex tracks the index of the stage currently accepting
	// contributions.
	StageIndex = DefaultRegistry.Gauge("stage.index")
	// StageEvalDuration records time spent in a stage's EVALUATION phase
	// (accumulator build through VDF completion) in milliseconds.
	StageEvalDuration = DefaultRegistry.Histogram("stage.eval_ms")
	// StagesCompleted counts stages that have reached DONE.
	StagesCompleted = DefaultRegistry.Counter("stage.completed")
	// RolloversMissed counts scheduler ticks where the previous stage had
	// not yet reached DONE when the next rollover fired.
	RolloversMissed = DefaultRegistry.Counter("stage.rollovers_missed")

	// ---- Contribution metrics ----

	// ContributionsPending tracks the number of contributions recorded
	// against the current stage.
	ContributionsPending = DefaultRegistry.Gauge("contributions.pending")
	// ContributionsAccepted counts contributions successfully recorded
	// across all stages.
	ContributionsAccepted = DefaultRegistry.Counter("contributions.accepted")
	// ContributionsRejected counts contribute calls rejected because the
	// target stage was no longer in CONTRIBUTION phase.
	ContributionsRejected = DefaultRegistry.Counter("contributions.rejected")

	// ---- VDF metrics ----

	// VDFSquarings counts total modular squarings performed across all
	// per-stage VDF evaluations.
	VDFSquarings = DefaultRegistry.Counter("vdf.squarings")
	// VDFProofDuration records per-stage VDF eval-and-prove wall time in
	// milliseconds.
	VDFProofDuration = DefaultRegistry.Histogram("vdf.proof_ms")
	// AggregateProofsBuilt counts aggregate VDF proofs produced.
	AggregateProofsBuilt = DefaultRegistry.Counter("vdf.aggregate_proofs")

	// ---- API metrics ----

	// APIRequests counts incoming HTTP API requests.
	APIRequests = DefaultRegistry.Counter("api.requests")
	// APIErrors counts HTTP API requests that returned a non-2xx status.
	APIErrors = DefaultRegistry.Counter("api.errors")
	// APILatency records HTTP API request latency in milliseconds.
	APILatency = DefaultRegistry.Histogram("api.latency_ms")
	// APIRateLimited counts requests rejected by the per-IP rate limiter.
	APIRateLimited = DefaultRegistry.Counter("api.rate_limited")

	// ---- Client verification metrics ----

	// VerificationsRequested counts client Verify calls.
	VerificationsRequested = DefaultRegistry.Counter("client.verifications")
	// VerificationsFailed counts client Verify calls that returned
	// ErrVerificationFailed.
	VerificationsFailed = DefaultRegistry.Counter("client.verification_failures")

	// ---- Process metrics ----

	// CPUUsagePercent tracks this process's CPU utilization, sampled
	// periodically by the daemon's metrics poller via CPUTracker.
	CPUUsagePercent = DefaultRegistry.Gauge("process.cpu_percent")

	// StageCompletionRate smooths how often stages reach DONE (1-, 5-, and
	// 15-minute moving averages), marked once per completed stage.
	StageCompletionRate = NewMeter()
	// ContributionRate smooths the rate at which contributions are accepted
	// across all stages.
	ContributionRate = NewMeter()
)
