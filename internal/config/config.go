package config

import (
	"os"
	"strconv"

	"gosegment/domain/core"
	"gosegment/internal/errors"
)

// Config represents the complete application configuration. It is immutable
// after Load and passed explicitly into each pipeline component.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Engine   EngineConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds API server settings
type ServerConfig struct {
	Port string
}

// EngineConfig holds the statistical decision thresholds. Defaults mirror
// the documented decision rules; everything is overridable via environment.
type EngineConfig struct {
	// LowMissingThreshold: columns below this missing fraction always use
	// simple imputation regardless of mechanism.
	LowMissingThreshold float64

	// MIThreshold separates MAR from MNAR: the minimum normalized mutual
	// information between a missingness indicator and any observed column
	// for that column to count as explanatory.
	MIThreshold float64

	// MinTestSamples is the minimum observed sample size for the MCAR test;
	// below it the mechanism is indeterminate.
	MinTestSamples int

	// VarianceThreshold is the cumulative explained-variance target for the
	// reducer.
	VarianceThreshold float64

	// KMin/KMax bound the cluster count search range. KMax is additionally
	// capped at rows-1 at fit time.
	KMin int
	KMax int

	// SilhouetteTol defines the tie window around the maximum silhouette
	// within which consensus tie-breaking applies.
	SilhouetteTol float64

	// MeanTol/StdTol are the standardizer postcondition tolerances.
	MeanTol float64
	StdTol  float64

	// RandomState seeds every randomized component.
	RandomState int64

	// Workers bounds the concurrent per-k candidate evaluations.
	Workers int
}

// DefaultEngineConfig returns the documented default thresholds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		LowMissingThreshold: 0.01,
		MIThreshold:         0.05,
		MinTestSamples:      10,
		VarianceThreshold:   0.90,
		KMin:                2,
		KMax:                10,
		SilhouetteTol:       0.01,
		MeanTol:             1e-6,
		StdTol:              1e-1,
		RandomState:         42,
		Workers:             4,
	}
}

// Fingerprint pins the exact threshold values a run was produced under.
func (c EngineConfig) Fingerprint() core.Hash {
	return core.ComputeConfigFingerprint(map[string]interface{}{
		"low_missing_threshold": c.LowMissingThreshold,
		"mi_threshold":          c.MIThreshold,
		"min_test_samples":      c.MinTestSamples,
		"variance_threshold":    c.VarianceThreshold,
		"k_min":                 c.KMin,
		"k_max":                 c.KMax,
		"silhouette_tol":        c.SilhouetteTol,
		"mean_tol":              c.MeanTol,
		"std_tol":               c.StdTol,
		"random_state":          c.RandomState,
	})
}

// Validate checks threshold sanity before any fitting starts.
func (c EngineConfig) Validate() error {
	if c.LowMissingThreshold < 0 || c.LowMissingThreshold > 1 {
		return errors.ConfigInvalid("low missing threshold must be in [0,1]")
	}
	if c.VarianceThreshold <= 0 || c.VarianceThreshold > 1 {
		return errors.ConfigInvalid("variance threshold must be in (0,1]")
	}
	if c.KMin < 2 {
		return errors.ConfigInvalid("k_min must be >= 2")
	}
	if c.KMax < c.KMin {
		return errors.ConfigInvalid("k_max must be >= k_min")
	}
	if c.MIThreshold < 0 {
		return errors.ConfigInvalid("mi threshold must be >= 0")
	}
	if c.SilhouetteTol < 0 {
		return errors.ConfigInvalid("silhouette tolerance must be >= 0")
	}
	if c.Workers < 1 {
		return errors.ConfigInvalid("workers must be >= 1")
	}
	return nil
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: DatabaseConfig{
			URL: getEnvOrDefault("DATABASE_URL", ""),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Engine: loadEngineConfig(),
	}

	if err := config.Engine.Validate(); err != nil {
		return nil, errors.Wrap(err, "engine configuration validation failed")
	}

	return config, nil
}

func loadEngineConfig() EngineConfig {
	defaults := DefaultEngineConfig()
	return EngineConfig{
		LowMissingThreshold: getEnvFloatOrDefault("LOW_MISSING_THRESHOLD", defaults.LowMissingThreshold),
		MIThreshold:         getEnvFloatOrDefault("MI_THRESHOLD", defaults.MIThreshold),
		MinTestSamples:      getEnvIntOrDefault("MIN_TEST_SAMPLES", defaults.MinTestSamples),
		VarianceThreshold:   getEnvFloatOrDefault("VARIANCE_THRESHOLD", defaults.VarianceThreshold),
		KMin:                getEnvIntOrDefault("K_MIN", defaults.KMin),
		KMax:                getEnvIntOrDefault("K_MAX", defaults.KMax),
		SilhouetteTol:       getEnvFloatOrDefault("SILHOUETTE_TOL", defaults.SilhouetteTol),
		MeanTol:             getEnvFloatOrDefault("MEAN_TOL", defaults.MeanTol),
		StdTol:              getEnvFloatOrDefault("STD_TOL", defaults.StdTol),
		RandomState:         getEnvInt64OrDefault("RANDOM_STATE", defaults.RandomState),
		Workers:             getEnvIntOrDefault("ENGINE_WORKERS", defaults.Workers),
	}
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
