package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/csienslab/headstart/accumulator"
	"github.com/csienslab/headstart/api"
	"github.com/csienslab/headstart/beacon"
	"github.com/csienslab/headstart/log"
	"github.com/csienslab/headstart/metrics"
)

// Daemon wires a Beacon, its HTTP API, and (optionally) a Prometheus
// metrics endpoint into a single process managed by a LifecycleManager.
type Daemon struct {
	cfg    *Config
	logger *log.Logger
	b      *beacon.Beacon
	lc     *LifecycleManager
	eb     *EventBus
	hc     *HealthChecker
}

// New builds a Daemon from cfg: it loads or generates the beacon's signing
// key pair under cfg.DataDir, constructs the Beacon and its HTTP API, and
// registers both as services with priority ordering (beacon before API,
// since the API reads from the beacon).
func New(cfg *Config) (*Daemon, error) {
	priv, pub, err := beacon.LoadOrGenerateKeyPair(cfg.PrivateKeyPath(), cfg.PublicKeyPath())
	if err != nil {
		return nil, fmt.Errorf("daemon: load signing key: %w", err)
	}

	logger := log.New(slogLevel(cfg.LogLevel))
	logger = logger.Module(cfg.Name)

	beaconCfg := beacon.Config{
		Interval:         time.Duration(cfg.IntervalSeconds) * time.Second,
		Window:           cfg.WindowSize,
		Accumulator:      accumulator.Kind(cfg.Accumulator),
		StageVDFBits:     cfg.StageVDFBits,
		Iterations:       cfg.Iterations,
		AggregateVDFBits: cfg.AggregateVDFBits,
		AggregationSeed:  cfg.AggregationSeed,
	}
	b := beacon.New(beaconCfg, priv, pub)

	apiSrv := api.NewServer(b, logger, 0, 0)

	lcCfg := DefaultLifecycleConfig()
	d := &Daemon{
		cfg:    cfg,
		logger: logger,
		b:      b,
		lc:     NewLifecycleManager(lcCfg),
		eb:     NewEventBus(16),
		hc:     NewHealthChecker(),
	}

	maxStale := 3 * beaconCfg.Interval
	if maxStale < 30*time.Second {
		maxStale = 30 * time.Second
	}
	beaconSvc := newBeaconService(b, maxStale)
	d.hc.RegisterSubsystem("beacon", beaconSvc)

	mux := http.NewServeMux()
	mux.Handle("/", apiSrv)
	mux.HandleFunc("GET /api/health", d.handleHealth)
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: mux,
	}

	if err := d.lc.Register(beaconSvc, PriorityBeacon); err != nil {
		return nil, fmt.Errorf("daemon: register beacon service: %w", err)
	}
	if err := d.lc.Register(newEventPoller(b, d.eb), PriorityHTTP); err != nil {
		return nil, fmt.Errorf("daemon: register event poller: %w", err)
	}
	httpSvc := newHTTPService(httpSrv, lcCfg.ShutdownTimeout, logger)
	d.hc.RegisterSubsystem("http", httpSvc)
	if err := d.lc.Register(httpSvc, PriorityHTTP); err != nil {
		return nil, fmt.Errorf("daemon: register http service: %w", err)
	}

	rolloverSub := d.eb.Subscribe(EventStageRollover)
	go func() {
		for ev := range rolloverSub.Chan() {
			beaconSvc.noteRollover()
			if payload, ok := ev.Data.(StageRolloverEvent); ok {
				logger.Info("stage rollover", "stage", payload.StageIndex)
			}
		}
	}()

	if cfg.Metrics {
		metExp := metrics.NewPrometheusExporter(metrics.DefaultRegistry, metrics.DefaultPrometheusConfig())
		metSrv := &http.Server{
			Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.HTTPPort+1),
			Handler: metExp.Handler(),
		}
		if err := d.lc.Register(newHTTPService(metSrv, lcCfg.ShutdownTimeout, logger), PriorityMetrics); err != nil {
			return nil, fmt.Errorf("daemon: register metrics service: %w", err)
		}
		reporter := metrics.NewMetricsReporter(metricsReportInterval)
		reporter.RegisterBackend("log", newLogReportBackend(logger.Module(log.ModuleMetrics)))
		if err := d.lc.Register(newMetricsReporterService(reporter), PriorityReport); err != nil {
			return nil, fmt.Errorf("daemon: register metrics reporter: %w", err)
		}
		if err := d.lc.Register(newMetricsPoller(b, reporter), PriorityReport); err != nil {
			return nil, fmt.Errorf("daemon: register metrics poller: %w", err)
		}
	}

	return d, nil
}

// Start starts every registered service in priority order. If any service
// fails to start, the services that did start are stopped again before the
// combined error is returned.
func (d *Daemon) Start() error {
	errs := d.lc.StartAll()
	if len(errs) > 0 {
		d.lc.StopAll()
		return fmt.Errorf("daemon: start failed: %v", errs)
	}
	d.logger.Info("daemon started", "http_addr", d.cfg.HTTPAddr(), "stage", d.b.CurrentIndex())
	return nil
}

// Stop stops every registered service in reverse priority order.
func (d *Daemon) Stop() error {
	errs := d.lc.StopAll()
	d.eb.Close()
	if len(errs) > 0 {
		return fmt.Errorf("daemon: stop failed: %v", errs)
	}
	d.logger.Info("daemon stopped")
	return nil
}

// Beacon returns the daemon's underlying beacon, primarily for tests.
func (d *Daemon) Beacon() *beacon.Beacon { return d.b }

// handleHealth serves a consolidated health report for every registered
// subsystem. It responds 200 when every subsystem is healthy and 503
// otherwise, mirroring the convention a load balancer health probe expects.
func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := d.hc.CheckAll()
	status := http.StatusOK
	if report.OverallStatus != StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(report)
}

// slogLevel maps the daemon's debug/info/warn/error LogLevel string to the
// slog.Level the log package's Logger constructor expects.
func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// beaconService adapts *beacon.Beacon to the LifecycleManager's Service
// interface. Beacon.Start/Stop never fail, so Start/Stop here always
// return nil.
type beaconService struct {
	b            *beacon.Beacon
	maxStale     time.Duration
	lastRollover atomic.Int64 // unix nanoseconds
}

func newBeaconService(b *beacon.Beacon, maxStale time.Duration) *beaconService {
	s := &beaconService{b: b, maxStale: maxStale}
	s.lastRollover.Store(time.Now().UnixNano())
	return s
}

// noteRollover records that the beacon just advanced to a new stage,
// resetting the staleness clock Check() uses.
func (s *beaconService) noteRollover() {
	s.lastRollover.Store(time.Now().UnixNano())
}

func (s *beaconService) Name() string { return "beacon" }
func (s *beaconService) Start() error { s.b.Start(); return nil }
func (s *beaconService) Stop() error  { s.b.Stop(); return nil }

// Check implements SubsystemChecker: the beacon must report a non-negative
// current stage index, and must have rolled over recently enough --
// otherwise its scheduler goroutine has wedged, or a stage's VDF worker is
// stuck mid-evaluation and StopContribution's wait on the previous window
// member is never returning.
func (s *beaconService) Check() *SubsystemHealth {
	info := s.b.CurrentInfo()
	if info.Stage < 0 {
		return &SubsystemHealth{Status: StatusDegraded, Message: "no stage yet"}
	}
	if s.maxStale > 0 {
		lastRollover := time.Unix(0, s.lastRollover.Load())
		if health := DegradedIfStale("beacon", lastRollover, s.maxStale,
			fmt.Sprintf("stage %d, phase %s", info.Stage, info.Phase),
			fmt.Sprintf("no rollover in over %s, stage %d stuck in phase %s", s.maxStale, info.Stage, info.Phase),
		); health.Status != StatusHealthy {
			return health
		}
	}
	return &SubsystemHealth{Status: StatusHealthy, Message: fmt.Sprintf("stage %d, phase %s", info.Stage, info.Phase)}
}

// httpService adapts an *http.Server to the LifecycleManager's Service
// interface, running ListenAndServe in a background goroutine and shutting
// down gracefully within the given timeout.
type httpService struct {
	srv     *http.Server
	timeout time.Duration
	logger  *log.Logger
	running atomic.Bool
}

func newHTTPService(srv *http.Server, timeout time.Duration, logger *log.Logger) *httpService {
	return &httpService{srv: srv, timeout: timeout, logger: logger.Module(log.ModuleHTTP)}
}

func (s *httpService) Name() string { return "http:" + s.srv.Addr }

func (s *httpService) Start() error {
	s.running.Store(true)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.running.Store(false)
			s.logger.Error("listener exited", "addr", s.srv.Addr, "err", err)
		}
	}()
	return nil
}

func (s *httpService) Stop() error {
	s.running.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Check implements SubsystemChecker.
func (s *httpService) Check() *SubsystemHealth {
	if s.running.Load() {
		return &SubsystemHealth{Status: StatusHealthy, Message: "listening on " + s.srv.Addr}
	}
	return &SubsystemHealth{Status: StatusUnhealthy, Message: "not listening"}
}

// eventPollInterval is how often eventPoller checks for a stage rollover.
const eventPollInterval = 2 * time.Second

// eventPoller watches the beacon's current stage index and publishes an
// EventStageRollover on the bus whenever it advances, giving the rest of
// the process a subsystem-agnostic way to react to rollovers without
// reaching into the beacon directly.
type eventPoller struct {
	b        *beacon.Beacon
	eb       *EventBus
	lastSeen int
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newEventPoller(b *beacon.Beacon, eb *EventBus) *eventPoller {
	return &eventPoller{b: b, eb: eb, lastSeen: -1, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
}

func (p *eventPoller) Name() string { return "event-poller" }

func (p *eventPoller) Start() error {
	go p.run()
	return nil
}

func (p *eventPoller) Stop() error {
	close(p.stopCh)
	<-p.doneCh
	return nil
}

func (p *eventPoller) run() {
	defer close(p.doneCh)
	ticker := time.NewTicker(eventPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			idx := p.b.CurrentIndex()
			if idx != p.lastSeen {
				p.lastSeen = idx
				p.eb.PublishStageRollover(idx)
			}
		}
	}
}

// metricsPollInterval is how often metricsPoller samples the beacon's
// current stage into the Prometheus registry.
const metricsPollInterval = 5 * time.Second

// metricsReportInterval is how often the metrics reporter pushes whatever
// values metricsPoller has recorded to its registered backends.
const metricsReportInterval = 30 * time.Second

// metricsPoller periodically copies live beacon and process state into the
// package's standard gauges (for the Prometheus exporter to scrape) and, if
// a reporter is configured, records the same values into it so that
// backends with a slower cadence (e.g. a log line) still see fresh numbers.
type metricsPoller struct {
	b        *beacon.Beacon
	reporter *metrics.MetricsReporter
	cpu      *metrics.CPUTracker
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newMetricsPoller(b *beacon.Beacon, reporter *metrics.MetricsReporter) *metricsPoller {
	return &metricsPoller{
		b:        b,
		reporter: reporter,
		cpu:      metrics.NewCPUTracker(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (p *metricsPoller) Name() string { return "metrics-poller" }

func (p *metricsPoller) Start() error {
	go p.run()
	return nil
}

func (p *metricsPoller) Stop() error {
	close(p.stopCh)
	<-p.doneCh
	return nil
}

func (p *metricsPoller) run() {
	defer close(p.doneCh)
	ticker := time.NewTicker(metricsPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sample()
		}
	}
}

func (p *metricsPoller) sample() {
	info := p.b.CurrentInfo()
	metrics.StageIndex.Set(int64(info.Stage))
	metrics.ContributionsPending.Set(int64(info.Contributions))

	p.cpu.RecordCPU()
	metrics.CPUUsagePercent.Set(int64(p.cpu.Usage()))

	if p.reporter == nil {
		return
	}
	p.reporter.RecordMetric("stage.index", float64(info.Stage))
	p.reporter.RecordMetric("contributions.pending", float64(info.Contributions))
	p.reporter.RecordMetric("contributions.rate1", metrics.ContributionRate.Rate1())
	p.reporter.RecordMetric("stage.completion_rate1", metrics.StageCompletionRate.Rate1())
	p.reporter.RecordMetric("process.cpu_percent", p.cpu.Usage())
}

// logReportBackend implements metrics.ReportBackend by writing a snapshot
// as a single structured log line.
type logReportBackend struct {
	logger *log.Logger
}

func newLogReportBackend(logger *log.Logger) *logReportBackend {
	return &logReportBackend{logger: logger}
}

func (b *logReportBackend) Report(snapshot map[string]float64) error {
	args := make([]any, 0, len(snapshot)*2)
	for name, v := range snapshot {
		args = append(args, name, v)
	}
	b.logger.Info("metrics snapshot", args...)
	return nil
}

// metricsReporterService adapts *metrics.MetricsReporter to the
// LifecycleManager's Service interface.
type metricsReporterService struct {
	reporter *metrics.MetricsReporter
}

func newMetricsReporterService(r *metrics.MetricsReporter) *metricsReporterService {
	return &metricsReporterService{reporter: r}
}

func (s *metricsReporterService) Name() string { return "metrics-reporter" }
func (s *metricsReporterService) Start() error { s.reporter.Start(); return nil }
func (s *metricsReporterService) Stop() error  { s.reporter.Stop(); return nil }
