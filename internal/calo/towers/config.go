package towers

import (
	"fmt"
	"math"

	"github.com/banshee-data/calo.report/internal/config"
)

// DepthMode selects how a source restricts cells by their "layer" field.
type DepthMode int

const (
	// DepthAll accepts every cell.
	DepthAll DepthMode = iota
	// DepthRange accepts cells with Min <= layer <= Max.
	DepthRange
	// DepthMax accepts cells with layer <= Max.
	DepthMax
)

func (m DepthMode) String() string {
	switch m {
	case DepthAll:
		return "all"
	case DepthRange:
		return "range"
	case DepthMax:
		return "max"
	default:
		return fmt.Sprintf("DepthMode(%d)", int(m))
	}
}

// DepthFilter restricts the cells of one source by depth layer.
type DepthFilter struct {
	Mode DepthMode
	Min  int64
	Max  int64
}

// Accept reports whether a cell on the given layer passes the filter.
func (f DepthFilter) Accept(layer int64) bool {
	switch f.Mode {
	case DepthRange:
		return layer >= f.Min && layer <= f.Max
	case DepthMax:
		return layer <= f.Max
	default:
		return true
	}
}

// SourceConfig describes one detector partition feeding the tower grid.
type SourceConfig struct {
	Name     string // cell collection name in calo.Collections
	Readout  string // readout whose segmentation describes the cells
	Depth    DepthFilter
	Optional bool // a missing readout is skipped instead of failing NewMapper
}

// Config provides a configuration builder for the Mapper.
type Config struct {
	DeltaEtaTower     float64 // tower size in eta (default: 0.01)
	DeltaPhiTower     float64 // tower size in phi (default: 2π/704)
	RadiusForPosition float64 // radius used by TowerPosition, mm (default: 1.0)
	Sources           []SourceConfig
}

// DefaultConfig returns a Config loaded from the canonical tuning defaults
// file (config/tuning.defaults.json). It has no sources. Panics if the file
// cannot be found.
func DefaultConfig() *Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig. Sources are
// detector specific and are added with WithSource.
func ConfigFromTuning(cfg *config.TuningConfig) *Config {
	return &Config{
		DeltaEtaTower:     cfg.GetDeltaEtaTower(),
		DeltaPhiTower:     cfg.GetDeltaPhiTower(),
		RadiusForPosition: cfg.GetRadiusForPosition(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DeltaEtaTower <= 0 {
		return fmt.Errorf("DeltaEtaTower must be positive, got %f", c.DeltaEtaTower)
	}
	if c.DeltaPhiTower <= 0 || c.DeltaPhiTower > 2*math.Pi {
		return fmt.Errorf("DeltaPhiTower must be in (0, 2π], got %f", c.DeltaPhiTower)
	}
	if c.RadiusForPosition <= 0 {
		return fmt.Errorf("RadiusForPosition must be positive, got %f", c.RadiusForPosition)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" || s.Readout == "" {
			return fmt.Errorf("source %d: name and readout are required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("source %q configured twice", s.Name)
		}
		seen[s.Name] = true
		if s.Depth.Mode == DepthRange && s.Depth.Min > s.Depth.Max {
			return fmt.Errorf("source %q: depth range [%d, %d] is empty", s.Name, s.Depth.Min, s.Depth.Max)
		}
	}
	return nil
}

// WithTowerSize sets the tower size in eta and phi.
func (c *Config) WithTowerSize(deltaEta, deltaPhi float64) *Config {
	c.DeltaEtaTower = deltaEta
	c.DeltaPhiTower = deltaPhi
	return c
}

// WithRadiusForPosition sets the radius used for tower positions.
func (c *Config) WithRadiusForPosition(r float64) *Config {
	c.RadiusForPosition = r
	return c
}

// WithSource appends a source that accepts every layer.
func (c *Config) WithSource(name, readout string) *Config {
	c.Sources = append(c.Sources, SourceConfig{Name: name, Readout: readout})
	return c
}

// WithOptionalSource appends a source whose readout may be absent.
func (c *Config) WithOptionalSource(name, readout string) *Config {
	c.Sources = append(c.Sources, SourceConfig{Name: name, Readout: readout, Optional: true})
	return c
}

// WithDepthRange appends a source restricted to layers in [lo, hi].
func (c *Config) WithDepthRange(name, readout string, lo, hi int64) *Config {
	c.Sources = append(c.Sources, SourceConfig{
		Name:    name,
		Readout: readout,
		Depth:   DepthFilter{Mode: DepthRange, Min: lo, Max: hi},
	})
	return c
}

// WithMaxDepth appends a source restricted to layers at or below deepest.
func (c *Config) WithMaxDepth(name, readout string, deepest int64) *Config {
	c.Sources = append(c.Sources, SourceConfig{
		Name:    name,
		Readout: readout,
		Depth:   DepthFilter{Mode: DepthMax, Max: deepest},
	})
	return c
}
