// ConfigManager: beacon configuration with defaults, overrides, validation,
// and multi-source merging (default < file < env < CLI), tracking the
// origin of each field so operators can debug "why is this the value".
package daemon

import (
	"errors"
	"fmt"
)

// ConfigManager errors.
var (
	ErrCfgMgrEmpty       = errors.New("config_manager: empty value")
	ErrCfgMgrInvalidPort = errors.New("config_manager: invalid port number")
	ErrCfgMgrInvalidAcc  = errors.New("config_manager: invalid accumulator kind")
	ErrCfgMgrConflict    = errors.New("config_manager: conflicting settings")
	ErrCfgMgrNoKeyDir    = errors.New("config_manager: signing key requires a datadir")
)

// ConfigSource identifies the origin of a configuration value.
type ConfigSource int

const (
	// SourceDefault indicates a built-in default value.
	SourceDefault ConfigSource = iota
	// SourceFile indicates a value loaded from a config file.
	SourceFile
	// SourceEnv indicates a value from an environment variable.
	SourceEnv
	// SourceCLI indicates a value from a command-line flag.
	SourceCLI
)

// String returns a human-readable name for the config source.
func (s ConfigSource) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceFile:
		return "file"
	case SourceEnv:
		return "env"
	case SourceCLI:
		return "cli"
	default:
		return "unknown"
	}
}

// SchedulerConfig holds rollover and aggregation-window configuration.
type SchedulerConfig struct {
	// IntervalSeconds is how often rollover() fires.
	IntervalSeconds int

	// WindowSize is the sliding aggregation window W.
	WindowSize int

	// Accumulator selects the accumulator implementation.
	Accumulator string
}

// ManagedVDFConfig holds Wesolowski VDF configuration for the manager.
type ManagedVDFConfig struct {
	StageBits       int
	AggregateBits   int
	Iterations      uint64
	AggregationSeed string
}

// ManagedHTTPConfig holds HTTP API server configuration.
type ManagedHTTPConfig struct {
	Enabled bool
	Host    string
	Port    int
}

// ManagedConfig is the full configuration managed by ConfigManager.
type ManagedConfig struct {
	Scheduler SchedulerConfig
	VDF       ManagedVDFConfig
	HTTP      ManagedHTTPConfig
	DataDir   string
	LogLevel  string
}

// DefaultManagedConfig returns a ManagedConfig with sensible defaults.
func DefaultManagedConfig() *ManagedConfig {
	return &ManagedConfig{
		Scheduler: SchedulerConfig{
			IntervalSeconds: 10,
			WindowSize:      10,
			Accumulator:     "merkle",
		},
		VDF: ManagedVDFConfig{
			StageBits:       256,
			AggregateBits:   1024,
			Iterations:      1 << 16,
			AggregationSeed: "headstart-aggregate-vdf-v1",
		},
		HTTP: ManagedHTTPConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
		},
		DataDir:  "",
		LogLevel: "info",
	}
}

// ConfigManager provides validated, multi-source configuration management.
type ConfigManager struct {
	base    *ManagedConfig
	sources map[string]ConfigSource // tracks where each field came from
}

// NewConfigManager creates a ConfigManager with default configuration.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		base:    DefaultManagedConfig(),
		sources: make(map[string]ConfigSource),
	}
}

// Config returns the current configuration.
func (cm *ConfigManager) Config() *ManagedConfig {
	return cm.base
}

// SetDataDir sets the data directory.
func (cm *ConfigManager) SetDataDir(dir string, source ConfigSource) {
	cm.base.DataDir = dir
	cm.sources["datadir"] = source
}

// SetLogLevel sets the log level.
func (cm *ConfigManager) SetLogLevel(level string, source ConfigSource) {
	cm.base.LogLevel = level
	cm.sources["loglevel"] = source
}

// SetScheduler replaces the scheduler configuration.
func (cm *ConfigManager) SetScheduler(sc SchedulerConfig, source ConfigSource) {
	cm.base.Scheduler = sc
	cm.sources["scheduler"] = source
}

// SetVDF replaces the VDF configuration.
func (cm *ConfigManager) SetVDF(vc ManagedVDFConfig, source ConfigSource) {
	cm.base.VDF = vc
	cm.sources["vdf"] = source
}

// SetHTTP replaces the HTTP configuration.
func (cm *ConfigManager) SetHTTP(hc ManagedHTTPConfig, source ConfigSource) {
	cm.base.HTTP = hc
	cm.sources["http"] = source
}

// Source returns the ConfigSource for a given field key.
func (cm *ConfigManager) Source(field string) ConfigSource {
	src, ok := cm.sources[field]
	if !ok {
		return SourceDefault
	}
	return src
}

// --- Validation ---

// ConfigValidator validates a ManagedConfig for correctness and consistency.
type ConfigValidator struct{}

// NewConfigValidator creates a new config validator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// Validate checks the full configuration. Returns all errors found.
func (cv *ConfigValidator) Validate(cfg *ManagedConfig) []error {
	var errs []error

	errs = append(errs, cv.validateScheduler(cfg.Scheduler)...)
	errs = append(errs, cv.validateVDF(cfg.VDF)...)
	errs = append(errs, cv.validateHTTP(cfg.HTTP)...)

	if cfg.LogLevel != "" {
		switch cfg.LogLevel {
		case "debug", "info", "warn", "error", "trace":
		default:
			errs = append(errs, fmt.Errorf("unknown log level %q", cfg.LogLevel))
		}
	}

	// Cross-field validation: the beacon persists a signing key under
	// DataDir, so a datadir is required whenever HTTP (and thus
	// contribution receipts) is enabled.
	if cfg.HTTP.Enabled && cfg.DataDir == "" {
		errs = append(errs, ErrCfgMgrNoKeyDir)
	}

	return errs
}

func (cv *ConfigValidator) validateScheduler(sc SchedulerConfig) []error {
	var errs []error
	if sc.IntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("interval_seconds must be > 0"))
	}
	if sc.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("window_size must be > 0"))
	}
	switch sc.Accumulator {
	case "merkle", "merkle-universal", "rsa", "rsa-universal", "classgroup":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrCfgMgrInvalidAcc, sc.Accumulator))
	}
	return errs
}

func (cv *ConfigValidator) validateVDF(vc ManagedVDFConfig) []error {
	var errs []error
	if vc.StageBits <= 0 {
		errs = append(errs, fmt.Errorf("vdf stage_bits must be > 0"))
	}
	if vc.AggregateBits <= 0 {
		errs = append(errs, fmt.Errorf("vdf aggregate_bits must be > 0"))
	}
	if vc.Iterations == 0 {
		errs = append(errs, fmt.Errorf("vdf iterations must be > 0"))
	}
	if vc.AggregationSeed == "" {
		errs = append(errs, ErrCfgMgrEmpty)
	}
	return errs
}

func (cv *ConfigValidator) validateHTTP(hc ManagedHTTPConfig) []error {
	var errs []error
	if hc.Port < 0 || hc.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: http port %d", ErrCfgMgrInvalidPort, hc.Port))
	}
	if hc.Enabled && hc.Host == "" {
		errs = append(errs, fmt.Errorf("http host must not be empty when enabled"))
	}
	return errs
}

// --- Config Merging ---

// ConfigMerge merges multiple configuration sources with precedence.
// Later sources override earlier ones. Sources are applied in order:
// default < file < env < CLI.
func ConfigMerge(configs ...*ManagedConfig) *ManagedConfig {
	if len(configs) == 0 {
		return DefaultManagedConfig()
	}

	result := DefaultManagedConfig()
	for _, cfg := range configs {
		if cfg == nil {
			continue
		}
		mergeManagedConfig(result, cfg)
	}
	return result
}

// mergeManagedConfig applies non-zero values from src onto dst.
func mergeManagedConfig(dst, src *ManagedConfig) {
	if src.Scheduler.IntervalSeconds != 0 {
		dst.Scheduler.IntervalSeconds = src.Scheduler.IntervalSeconds
	}
	if src.Scheduler.WindowSize != 0 {
		dst.Scheduler.WindowSize = src.Scheduler.WindowSize
	}
	if src.Scheduler.Accumulator != "" {
		dst.Scheduler.Accumulator = src.Scheduler.Accumulator
	}

	if src.VDF.StageBits != 0 {
		dst.VDF.StageBits = src.VDF.StageBits
	}
	if src.VDF.AggregateBits != 0 {
		dst.VDF.AggregateBits = src.VDF.AggregateBits
	}
	if src.VDF.Iterations != 0 {
		dst.VDF.Iterations = src.VDF.Iterations
	}
	if src.VDF.AggregationSeed != "" {
		dst.VDF.AggregationSeed = src.VDF.AggregationSeed
	}

	if src.HTTP.Host != "" {
		dst.HTTP.Host = src.HTTP.Host
	}
	if src.HTTP.Port != 0 {
		dst.HTTP.Port = src.HTTP.Port
	}

	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}
