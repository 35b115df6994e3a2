// Command headstart-beacon is the main entry point for a HeadStart
// verifiable-randomness beacon daemon.
//
// Usage:
//
//	headstart-beacon [flags]
//
// Flags:
//
//	--datadir        Data directory path (default: ~/.headstart)
//	--http.port      HTTP API port (default: 8080)
//	--interval       Stage rollover interval in seconds (default: 10)
//	--window         Aggregation window size W (default: 10)
//	--accumulator    Accumulator kind: merkle, merkle-universal, rsa, rsa-universal, classgroup
//	--stage-bits     Per-stage VDF discriminant bit-length (default: 256)
//	--aggregate-bits Aggregate VDF discriminant bit-length (default: 1024)
//	--iterations     VDF time parameter T (default: 65536)
//	--verbosity      Log level 0-5 (default: 3)
//	--metrics        Enable metrics collection (default: false)
//	--version        Print version and exit
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/csienslab/headstart/daemon"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	cfg.LogLevel = daemon.VerbosityToLogLevel(cfg.Verbosity)

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	log.Printf("headstart-beacon %s starting", version)
	log.Printf("  datadir:         %s", cfg.DataDir)
	log.Printf("  http port:       %d", cfg.HTTPPort)
	log.Printf("  interval:        %ds", cfg.IntervalSeconds)
	log.Printf("  window size:     %d", cfg.WindowSize)
	log.Printf("  accumulator:     %s", cfg.Accumulator)
	log.Printf("  stage vdf bits:  %d", cfg.StageVDFBits)
	log.Printf("  aggregate bits:  %d", cfg.AggregateVDFBits)
	log.Printf("  iterations (T):  %d", cfg.Iterations)
	log.Printf("  verbosity:       %d (%s)", cfg.Verbosity, cfg.LogLevel)
	log.Printf("  metrics:         %v", cfg.Metrics)

	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 1
	}

	if err := cfg.InitDataDir(); err != nil {
		log.Printf("Failed to initialize datadir: %v", err)
		return 1
	}
	log.Printf("Data directory initialized: %s", cfg.DataDir)

	d, err := daemon.New(&cfg)
	if err != nil {
		log.Printf("Failed to create daemon: %v", err)
		return 1
	}

	if err := d.Start(); err != nil {
		log.Printf("Failed to start daemon: %v", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("Received signal %v, shutting down...", sig)

	if err := d.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
		return 1
	}

	log.Println("Shutdown complete")
	return 0
}

// parseFlags parses CLI arguments into a Config. Returns the config, whether
// the caller should exit immediately, and the exit code.
func parseFlags(args []string) (daemon.Config, bool, int) {
	cfg := daemon.DefaultConfig()
	fs := newFlagSet(&cfg)

	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, true, 2
	}

	if *showVersion {
		fmt.Printf("headstart-beacon %s (commit %s)\n", version, commit)
		return cfg, true, 0
	}

	return cfg, false, 0
}

// newFlagSet creates a flag.FlagSet that binds all CLI flags to the given
// Config. The FlagSet uses ContinueOnError so callers control the error
// handling behavior.
func newFlagSet(cfg *daemon.Config) *flagSet {
	fs := newCustomFlagSet("headstart-beacon")
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "data directory path")
	fs.IntVar(&cfg.HTTPPort, "http.port", cfg.HTTPPort, "HTTP API server port")
	fs.IntVar(&cfg.IntervalSeconds, "interval", cfg.IntervalSeconds, "stage rollover interval in seconds")
	fs.IntVar(&cfg.WindowSize, "window", cfg.WindowSize, "aggregation window size W")
	fs.StringVar(&cfg.Accumulator, "accumulator", cfg.Accumulator, "accumulator kind (merkle, merkle-universal, rsa, rsa-universal, classgroup)")
	fs.IntVar(&cfg.StageVDFBits, "stage-bits", cfg.StageVDFBits, "per-stage VDF discriminant bit-length")
	fs.IntVar(&cfg.AggregateVDFBits, "aggregate-bits", cfg.AggregateVDFBits, "aggregate VDF discriminant bit-length")
	fs.Uint64Var(&cfg.Iterations, "iterations", cfg.Iterations, "VDF time parameter T (squarings per stage)")
	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log level 0-5 (0=silent, 5=trace)")
	fs.BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "enable metrics collection")
	return fs
}
