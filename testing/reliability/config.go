package reliability

import (
	"testing"
	"time"

	"github.com/zoobzio/layerz"
)

// Config holds the knobs for reliability runs.
type Config struct {
	Level      string        // "basic" or "stress"
	Duration   time.Duration // how long stress loops run
	Goroutines int           // concurrent execution units
}

// loadConfig reads LAYERZ_RELIABILITY_* through the same dotenv-aware
// loader the library uses.
func loadConfig(t *testing.T) Config {
	t.Helper()
	env, err := layerz.LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	cfg := Config{
		Level:      env.Value("reliability_level"),
		Duration:   2 * time.Second,
		Goroutines: 32,
	}
	if d, err := time.ParseDuration(env.Value("reliability_duration")); err == nil {
		cfg.Duration = d
	}
	if cfg.Level == "stress" {
		cfg.Goroutines = 256
	}
	return cfg
}

// requireLevel skips unless reliability tests were requested.
func requireLevel(t *testing.T) Config {
	t.Helper()
	cfg := loadConfig(t)
	if cfg.Level == "" {
		t.Skip("LAYERZ_RELIABILITY_LEVEL not set, skipping reliability tests")
	}
	return cfg
}
