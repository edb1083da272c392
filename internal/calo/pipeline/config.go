package pipeline

import (
	"fmt"

	"github.com/banshee-data/calo.report/internal/calo/splitting"
	"github.com/banshee-data/calo.report/internal/calo/towers"
	"github.com/banshee-data/calo.report/internal/config"
)

// Config holds the per-stage configuration of a Pipeline.
type Config struct {
	Towers    *towers.Config
	Splitting *splitting.Config

	// Window half sizes in towers and shape used when attaching cells to
	// each cluster centre.
	HalfEta int
	HalfPhi int
	Shape   towers.WindowShape
}

// ConfigFromTuning builds a Config from a loaded TuningConfig and the
// detector's tower sources.
func ConfigFromTuning(cfg *config.TuningConfig, sources ...towers.SourceConfig) (*Config, error) {
	shape, err := towers.ParseWindowShape(cfg.GetWindowShape())
	if err != nil {
		return nil, err
	}
	tc := towers.ConfigFromTuning(cfg)
	tc.Sources = append(tc.Sources, sources...)
	return &Config{
		Towers:    tc,
		Splitting: splitting.ConfigFromTuning(cfg),
		HalfEta:   cfg.GetWindowEta(),
		HalfPhi:   cfg.GetWindowPhi(),
		Shape:     shape,
	}, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Towers == nil {
		return fmt.Errorf("no tower config")
	}
	if c.Splitting == nil {
		return fmt.Errorf("no splitting config")
	}
	if err := c.Towers.Validate(); err != nil {
		return fmt.Errorf("towers: %w", err)
	}
	if err := c.Splitting.Validate(); err != nil {
		return fmt.Errorf("splitting: %w", err)
	}
	if c.HalfEta < 0 || c.HalfPhi < 0 {
		return fmt.Errorf("window half sizes must be non-negative, got %d x %d", c.HalfEta, c.HalfPhi)
	}
	return nil
}

// Window returns the attachment window centred on c.
func (c *Config) Window(centre Centre) towers.Window {
	return towers.Window{
		Eta:     centre.Eta,
		Phi:     centre.Phi,
		HalfEta: c.HalfEta,
		HalfPhi: c.HalfPhi,
		Shape:   c.Shape,
	}
}
