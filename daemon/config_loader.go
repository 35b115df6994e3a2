package daemon

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FileConfig holds the full configuration for a headstart beacon, parsed
// from a TOML-like configuration file. It is separate from Config to
// support richer structured configuration with nested sections.
type FileConfig struct {
	DataDir string
	Name    string

	Beacon BeaconSection
	HTTP   HTTPSection
	VDF    VDFSection
	Log    LogSection
}

// BeaconSection holds stage scheduling configuration.
type BeaconSection struct {
	IntervalSeconds int
	WindowSize      int
	Accumulator     string
}

// HTTPSection holds HTTP API server configuration.
type HTTPSection struct {
	Enabled bool
	Host    string
	Port    int
}

// VDFSection holds Wesolowski VDF parameters.
type VDFSection struct {
	StageBits        int
	AggregateBits    int
	Iterations       uint64
	AggregationSeed  string
}

// LogSection holds logging configuration.
type LogSection struct {
	Level  string
	Format string
}

// DefaultFileConfig returns a FileConfig with sensible defaults.
func DefaultFileConfig() *FileConfig {
	d := DefaultConfig()
	return &FileConfig{
		DataDir: d.DataDir,
		Name:    d.Name,
		Beacon: BeaconSection{
			IntervalSeconds: d.IntervalSeconds,
			WindowSize:      d.WindowSize,
			Accumulator:     d.Accumulator,
		},
		HTTP: HTTPSection{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    d.HTTPPort,
		},
		VDF: VDFSection{
			StageBits:       d.StageVDFBits,
			AggregateBits:   d.AggregateVDFBits,
			Iterations:      d.Iterations,
			AggregationSeed: d.AggregationSeed,
		},
		Log: LogSection{
			Level:  d.LogLevel,
			Format: "text",
		},
	}
}

// ValidateFileConfig checks the configuration for correctness.
func (fc *FileConfig) ValidateFileConfig() error {
	if fc.DataDir == "" {
		return errors.New("config: datadir must not be empty")
	}

	if fc.Beacon.IntervalSeconds <= 0 {
		return fmt.Errorf("config: interval_seconds must be > 0: %d", fc.Beacon.IntervalSeconds)
	}
	if fc.Beacon.WindowSize <= 0 {
		return fmt.Errorf("config: window_size must be > 0: %d", fc.Beacon.WindowSize)
	}
	switch fc.Beacon.Accumulator {
	case "merkle", "merkle-universal", "rsa", "rsa-universal", "classgroup":
	default:
		return fmt.Errorf("config: unknown accumulator %q", fc.Beacon.Accumulator)
	}

	if fc.HTTP.Port < 0 || fc.HTTP.Port > 65535 {
		return fmt.Errorf("config: invalid http port: %d", fc.HTTP.Port)
	}
	if fc.HTTP.Enabled && fc.HTTP.Host == "" {
		return errors.New("config: http host must not be empty when http is enabled")
	}

	if fc.VDF.StageBits <= 0 {
		return fmt.Errorf("config: invalid vdf stage_bits: %d", fc.VDF.StageBits)
	}
	if fc.VDF.AggregateBits <= 0 {
		return fmt.Errorf("config: invalid vdf aggregate_bits: %d", fc.VDF.AggregateBits)
	}
	if fc.VDF.Iterations == 0 {
		return errors.New("config: vdf iterations must be > 0")
	}
	if fc.VDF.AggregationSeed == "" {
		return errors.New("config: vdf aggregation_seed must not be empty")
	}

	switch fc.Log.Level {
	case "debug", "info", "warn", "error", "trace":
	default:
		return fmt.Errorf("config: unknown log level %q", fc.Log.Level)
	}
	switch fc.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", fc.Log.Format)
	}

	return nil
}

// ToConfig converts a validated FileConfig into a runtime Config.
func (fc *FileConfig) ToConfig() Config {
	return Config{
		DataDir:          fc.DataDir,
		Name:             fc.Name,
		HTTPPort:         fc.HTTP.Port,
		IntervalSeconds:  fc.Beacon.IntervalSeconds,
		WindowSize:       fc.Beacon.WindowSize,
		StageVDFBits:     fc.VDF.StageBits,
		AggregateVDFBits: fc.VDF.AggregateBits,
		Iterations:       fc.VDF.Iterations,
		Accumulator:      fc.Beacon.Accumulator,
		AggregationSeed:  fc.VDF.AggregationSeed,
		LogLevel:         fc.Log.Level,
		Metrics:          false,
	}
}

// LoadConfig parses a TOML-like configuration from raw bytes into a
// FileConfig. The parser handles key = value pairs and [section] headers.
// It supports string values (quoted or unquoted), integers and booleans.
func LoadConfig(data []byte) (*FileConfig, error) {
	cfg := DefaultFileConfig()
	section := ""

	lines := strings.Split(string(data), "\n")
	for lineNum, raw := range lines {
		line := strings.TrimSpace(raw)

		// Skip empty lines and comments.
		if line == "" || line[0] == '#' {
			continue
		}

		// Section header.
		if line[0] == '[' {
			end := strings.Index(line, "]")
			if end < 0 {
				return nil, fmt.Errorf("line %d: unclosed section header", lineNum+1)
			}
			section = strings.TrimSpace(line[1:end])
			continue
		}

		// Key = value pair.
		eqIdx := strings.Index(line, "=")
		if eqIdx < 0 {
			return nil, fmt.Errorf("line %d: expected key = value", lineNum+1)
		}
		key := strings.TrimSpace(line[:eqIdx])
		val := strings.TrimSpace(line[eqIdx+1:])

		if err := applyConfigValue(cfg, section, key, val, lineNum+1); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// applyConfigValue sets a single configuration field based on section, key, value.
func applyConfigValue(cfg *FileConfig, section, key, val string, lineNum int) error {
	switch section {
	case "":
		return applyTopLevel(cfg, key, val, lineNum)
	case "beacon":
		return applyBeacon(cfg, key, val, lineNum)
	case "http":
		return applyHTTP(cfg, key, val, lineNum)
	case "vdf":
		return applyVDF(cfg, key, val, lineNum)
	case "log":
		return applyLog(cfg, key, val, lineNum)
	default:
		return fmt.Errorf("line %d: unknown section [%s]", lineNum, section)
	}
}

func applyTopLevel(cfg *FileConfig, key, val string, lineNum int) error {
	switch key {
	case "datadir":
		cfg.DataDir = unquote(val)
	case "name":
		cfg.Name = unquote(val)
	default:
		return fmt.Errorf("line %d: unknown key %q in top-level", lineNum, key)
	}
	return nil
}

func applyBeacon(cfg *FileConfig, key, val string, lineNum int) error {
	switch key {
	case "interval_seconds":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid interval_seconds: %w", lineNum, err)
		}
		cfg.Beacon.IntervalSeconds = n
	case "window_size":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid window_size: %w", lineNum, err)
		}
		cfg.Beacon.WindowSize = n
	case "accumulator":
		cfg.Beacon.Accumulator = unquote(val)
	default:
		return fmt.Errorf("line %d: unknown key %q in [beacon]", lineNum, key)
	}
	return nil
}

func applyHTTP(cfg *FileConfig, key, val string, lineNum int) error {
	switch key {
	case "enabled":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid http enabled: %w", lineNum, err)
		}
		cfg.HTTP.Enabled = b
	case "host":
		cfg.HTTP.Host = unquote(val)
	case "port":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid http port: %w", lineNum, err)
		}
		cfg.HTTP.Port = n
	default:
		return fmt.Errorf("line %d: unknown key %q in [http]", lineNum, key)
	}
	return nil
}

func applyVDF(cfg *FileConfig, key, val string, lineNum int) error {
	switch key {
	case "stage_bits":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid vdf stage_bits: %w", lineNum, err)
		}
		cfg.VDF.StageBits = n
	case "aggregate_bits":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid vdf aggregate_bits: %w", lineNum, err)
		}
		cfg.VDF.AggregateBits = n
	case "iterations":
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid vdf iterations: %w", lineNum, err)
		}
		cfg.VDF.Iterations = n
	case "aggregation_seed":
		cfg.VDF.AggregationSeed = unquote(val)
	default:
		return fmt.Errorf("line %d: unknown key %q in [vdf]", lineNum, key)
	}
	return nil
}

func applyLog(cfg *FileConfig, key, val string, lineNum int) error {
	switch key {
	case "level":
		cfg.Log.Level = unquote(val)
	case "format":
		cfg.Log.Format = unquote(val)
	default:
		return fmt.Errorf("line %d: unknown key %q in [log]", lineNum, key)
	}
	return nil
}

// unquote strips surrounding double quotes from a string value.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// MergeFileConfig merges an override config onto a base config.
// Non-zero/non-empty values from override take priority over base.
func MergeFileConfig(base, override *FileConfig) *FileConfig {
	result := *base

	if override.DataDir != "" {
		result.DataDir = override.DataDir
	}
	if override.Name != "" {
		result.Name = override.Name
	}

	if override.Beacon.IntervalSeconds != 0 {
		result.Beacon.IntervalSeconds = override.Beacon.IntervalSeconds
	}
	if override.Beacon.WindowSize != 0 {
		result.Beacon.WindowSize = override.Beacon.WindowSize
	}
	if override.Beacon.Accumulator != "" {
		result.Beacon.Accumulator = override.Beacon.Accumulator
	}

	if override.HTTP.Host != "" {
		result.HTTP.Host = override.HTTP.Host
	}
	if override.HTTP.Port != 0 {
		result.HTTP.Port = override.HTTP.Port
	}

	if override.VDF.StageBits != 0 {
		result.VDF.StageBits = override.VDF.StageBits
	}
	if override.VDF.AggregateBits != 0 {
		result.VDF.AggregateBits = override.VDF.AggregateBits
	}
	if override.VDF.Iterations != 0 {
		result.VDF.Iterations = override.VDF.Iterations
	}
	if override.VDF.AggregationSeed != "" {
		result.VDF.AggregationSeed = override.VDF.AggregationSeed
	}

	if override.Log.Level != "" {
		result.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		result.Log.Format = override.Log.Format
	}

	return &result
}
