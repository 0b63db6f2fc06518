package logger_test

import (
	"fmt"
	"os"

	"github.com/pion-peer/webrtc-peer/pkg/logger"
)

// Example showing basic logger usage.
func ExampleLogger_basic() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatConsole

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	log.Info().Str("version", "1.0.0").Msg("application started")
	log.Warn().Str("endpoint", "/v1/offer").Msg("deprecated signaling path used")
	log.Error().Str("error", "connection timeout").Msg("failed to connect")
}

// Example showing debug category usage.
func ExampleLogger_categories() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelDebug
	cfg.EnableCategory(logger.CategoryTWCC)
	cfg.EnableCategory(logger.CategoryBWE)

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	// Only emitted if CategoryTWCC is enabled.
	log.Category(logger.CategoryTWCC).Uint16("seq", 12345).Msg("feedback received")

	// Only emitted if CategoryBWE is enabled.
	log.Category(logger.CategoryBWE).Float64("estimate_bps", 1_500_000).Msg("estimate updated")
}

// Example showing command-line flags integration.
func ExampleFlags() {
	// In main.go:
	// import (
	//     "flag"
	//     "github.com/pion-peer/webrtc-peer/pkg/logger"
	// )
	//
	// fs := flag.NewFlagSet("peerdemo", flag.ExitOnError)
	// logFlags := logger.RegisterFlags(fs)
	// fs.Parse(os.Args[1:])
	//
	// logConfig, _ := logFlags.ToConfig()
	// log, _ := logger.New(logConfig)
	// defer log.Close()

	fmt.Println("See the comment above for wiring logging flags into a FlagSet")
}

// Example showing JSON format output.
func ExampleLogger_json() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatJSON
	cfg.OutputFile = "peer.json"

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()
	defer os.Remove("peer.json")

	log.Info().
		Str("session_id", "abc123").
		Str("role", "offerer").
		Int("bandwidth_bps", 300_000).
		Msg("session established")
}

// Example showing conditional debug logging.
func ExampleLogger_conditional() {
	cfg := logger.NewConfig()
	cfg.EnableCategory(logger.CategoryReorder)

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	// Category gate means callers never build this event's fields unless
	// CategoryReorder is enabled.
	log.Category(logger.CategoryReorder).Uint16("seq", 42).Msg("packet buffered out of order")
}
