package splitting

import (
	"fmt"

	"github.com/banshee-data/calo.report/internal/config"
)

// Config provides a configuration builder for the Splitter.
type Config struct {
	EnergyThreshold   float64 // seed cells must exceed this, GeV (default: 0.1)
	MinSeedNeighbours int     // supporting neighbours needed to confirm a seed (default: 5)
	EnergyTolerance   float64 // relative tolerance of the energy check (default: 1e-6)
}

// absoluteEnergyFloor keeps the energy check meaningful for clusters whose
// summed energy is close to zero.
const absoluteEnergyFloor = 1e-9

// DefaultConfig returns a Config loaded from the canonical tuning defaults
// file (config/tuning.defaults.json). Panics if the file cannot be found.
func DefaultConfig() *Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) *Config {
	return &Config{
		EnergyThreshold:   cfg.GetSplitEnergyThreshold(),
		MinSeedNeighbours: cfg.GetMinSeedNeighbours(),
		EnergyTolerance:   cfg.GetEnergyTolerance(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.EnergyThreshold < 0 {
		return fmt.Errorf("EnergyThreshold must be non-negative, got %f", c.EnergyThreshold)
	}
	if c.MinSeedNeighbours < 0 {
		return fmt.Errorf("MinSeedNeighbours must be non-negative, got %d", c.MinSeedNeighbours)
	}
	if c.EnergyTolerance < 0 || c.EnergyTolerance >= 1 {
		return fmt.Errorf("EnergyTolerance must be in [0, 1), got %g", c.EnergyTolerance)
	}
	return nil
}

// WithEnergyThreshold sets the seed energy threshold.
func (c *Config) WithEnergyThreshold(e float64) *Config {
	c.EnergyThreshold = e
	return c
}

// WithMinSeedNeighbours sets the neighbour count needed to confirm a seed.
func (c *Config) WithMinSeedNeighbours(n int) *Config {
	c.MinSeedNeighbours = n
	return c
}

// WithEnergyTolerance sets the relative tolerance of the energy check.
func (c *Config) WithEnergyTolerance(tol float64) *Config {
	c.EnergyTolerance = tol
	return c
}

// energyMatches compares two energy sums within the relative tolerance.
func (c *Config) energyMatches(before, after float64) bool {
	diff := before - after
	if diff < 0 {
		diff = -diff
	}
	scale := before
	if scale < 0 {
		scale = -scale
	}
	limit := c.EnergyTolerance * scale
	if limit < absoluteEnergyFloor {
		limit = absoluteEnergyFloor
	}
	return diff <= limit
}
