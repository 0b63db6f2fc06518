package logger

import (
	"flag"
	"fmt"
	"strings"
)

// Flags holds all logging-related command-line flags.
type Flags struct {
	LogLevel       string
	LogFormat      string
	LogFile        string
	DebugTWCC      bool
	DebugBWE       bool
	DebugReorder   bool
	DebugSignaling bool
	DebugTrack     bool
	DebugAll       bool
}

// RegisterFlags registers logging flags with the given FlagSet.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	fs.StringVar(&f.LogLevel, "l", "info",
		"Log level (shorthand)")

	fs.StringVar(&f.LogFormat, "log-format", "console",
		"Log output format: console, json")

	fs.StringVar(&f.LogFile, "log-file", "",
		"Log output file path (default: stderr)")
	fs.StringVar(&f.LogFile, "o", "",
		"Log output file path (shorthand)")

	// Debug category flags
	fs.BoolVar(&f.DebugTWCC, "debug-twcc", false,
		"Enable transport-wide congestion control feedback tracing")
	fs.BoolVar(&f.DebugBWE, "debug-bwe", false,
		"Enable bandwidth estimator tracing")
	fs.BoolVar(&f.DebugReorder, "debug-reorder", false,
		"Enable reorder buffer tracing")
	fs.BoolVar(&f.DebugSignaling, "debug-signaling", false,
		"Enable SDP/ICE signaling tracing")
	fs.BoolVar(&f.DebugTrack, "debug-track", false,
		"Enable encoder track pacing tracing")
	fs.BoolVar(&f.DebugAll, "debug-all", false,
		"Enable all debug categories")

	return f
}

// ToConfig converts Flags to a logger Config.
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	// Parse log level
	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	// Parse format
	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	// Set output file
	cfg.OutputFile = f.LogFile

	// Enable debug categories
	if f.DebugAll {
		cfg.EnableCategory(CategoryAll)
		// Force debug level when any debug category is enabled
		cfg.Level = LevelDebug
	} else {
		if f.DebugTWCC {
			cfg.EnableCategory(CategoryTWCC)
			cfg.Level = LevelDebug
		}
		if f.DebugBWE {
			cfg.EnableCategory(CategoryBWE)
			cfg.Level = LevelDebug
		}
		if f.DebugReorder {
			cfg.EnableCategory(CategoryReorder)
			cfg.Level = LevelDebug
		}
		if f.DebugSignaling {
			cfg.EnableCategory(CategorySignaling)
			cfg.Level = LevelDebug
		}
		if f.DebugTrack {
			cfg.EnableCategory(CategoryTrack)
			cfg.Level = LevelDebug
		}
	}

	return cfg, nil
}

// PrintUsageExamples prints usage examples for logging flags.
func PrintUsageExamples() {
	examples := `
Logging Examples:

  Basic usage (INFO level, console format to stderr):
    ./peerdemo

  Enable DEBUG level:
    ./peerdemo --log-level debug
    ./peerdemo -l debug

  Log to file:
    ./peerdemo --log-file peer.log
    ./peerdemo -o peer.log

  JSON format for structured logging:
    ./peerdemo --log-format json -o peer.json

  Debug TWCC feedback only:
    ./peerdemo --debug-twcc

  Debug the bandwidth estimator only:
    ./peerdemo --debug-bwe

  Debug multiple categories:
    ./peerdemo --debug-twcc --debug-bwe --debug-track

  Debug everything:
    ./peerdemo --debug-all -o debug.log

  Production logging (WARN level, JSON to file):
    ./peerdemo -l warn --log-format json -o production.log
`
	fmt.Println(examples)
}

// String returns a string representation of enabled flags.
func (f *Flags) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("level=%s", f.LogLevel))
	parts = append(parts, fmt.Sprintf("format=%s", f.LogFormat))

	if f.LogFile != "" {
		parts = append(parts, fmt.Sprintf("output=%s", f.LogFile))
	} else {
		parts = append(parts, "output=stderr")
	}

	var debugCategories []string
	if f.DebugAll {
		debugCategories = append(debugCategories, "all")
	} else {
		if f.DebugTWCC {
			debugCategories = append(debugCategories, "twcc")
		}
		if f.DebugBWE {
			debugCategories = append(debugCategories, "bwe")
		}
		if f.DebugReorder {
			debugCategories = append(debugCategories, "reorder")
		}
		if f.DebugSignaling {
			debugCategories = append(debugCategories, "signaling")
		}
		if f.DebugTrack {
			debugCategories = append(debugCategories, "track")
		}
	}

	if len(debugCategories) > 0 {
		parts = append(parts, fmt.Sprintf("debug=[%s]", strings.Join(debugCategories, ",")))
	}

	return strings.Join(parts, " ")
}
