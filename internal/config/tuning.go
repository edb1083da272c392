package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the reconstruction
// parameters. Fields are pointers so that a partial JSON file only
// overrides what it names; the Get* methods supply defaults.
type TuningConfig struct {
	// Tower grid
	DeltaEtaTower     *float64 `json:"delta_eta_tower,omitempty"`
	DeltaPhiTower     *float64 `json:"delta_phi_tower,omitempty"`
	RadiusForPosition *float64 `json:"radius_for_position,omitempty"` // mm

	// Cell attachment window, in towers
	WindowEta   *int    `json:"window_eta,omitempty"`
	WindowPhi   *int    `json:"window_phi,omitempty"`
	WindowShape *string `json:"window_shape,omitempty"` // "rectangle" or "ellipse"

	// Cluster splitting
	SplitEnergyThreshold *float64 `json:"split_energy_threshold,omitempty"` // GeV
	MinSeedNeighbours    *int     `json:"min_seed_neighbours,omitempty"`
	EnergyTolerance      *float64 `json:"energy_tolerance,omitempty"` // relative

	// Synthetic events
	SynthSeed               *int64   `json:"synth_seed,omitempty"`
	SynthShowersPerEvent    *int     `json:"synth_showers_per_event,omitempty"`
	SynthShowerEnergy       *float64 `json:"synth_shower_energy,omitempty"`       // GeV
	SynthShowerWidth        *float64 `json:"synth_shower_width,omitempty"`        // in eta/phi units
	SynthSeedThreshold      *float64 `json:"synth_seed_threshold,omitempty"`      // GeV
	SynthNeighbourThreshold *float64 `json:"synth_neighbour_threshold,omitempty"` // GeV

	// Pipeline
	Workers *int `json:"workers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,             // from config/
		"../../" + DefaultConfigPath,          // from cmd/calo-sim/ or internal/config/
		"../../../" + DefaultConfigPath,       // from internal/calo/towers/
		"../../../../" + DefaultConfigPath,    // deeper packages
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.DeltaEtaTower != nil && *c.DeltaEtaTower <= 0 {
		return fmt.Errorf("delta_eta_tower must be positive, got %f", *c.DeltaEtaTower)
	}
	if c.DeltaPhiTower != nil && (*c.DeltaPhiTower <= 0 || *c.DeltaPhiTower > 2*math.Pi) {
		return fmt.Errorf("delta_phi_tower must be in (0, 2π], got %f", *c.DeltaPhiTower)
	}
	if c.RadiusForPosition != nil && *c.RadiusForPosition <= 0 {
		return fmt.Errorf("radius_for_position must be positive, got %f", *c.RadiusForPosition)
	}
	if c.WindowEta != nil && *c.WindowEta < 0 {
		return fmt.Errorf("window_eta must be non-negative, got %d", *c.WindowEta)
	}
	if c.WindowPhi != nil && *c.WindowPhi < 0 {
		return fmt.Errorf("window_phi must be non-negative, got %d", *c.WindowPhi)
	}
	if c.WindowShape != nil {
		switch *c.WindowShape {
		case "", "rectangle", "ellipse":
		default:
			return fmt.Errorf("window_shape must be 'rectangle' or 'ellipse', got '%s'", *c.WindowShape)
		}
	}
	if c.SplitEnergyThreshold != nil && *c.SplitEnergyThreshold < 0 {
		return fmt.Errorf("split_energy_threshold must be non-negative, got %f", *c.SplitEnergyThreshold)
	}
	if c.MinSeedNeighbours != nil && *c.MinSeedNeighbours < 0 {
		return fmt.Errorf("min_seed_neighbours must be non-negative, got %d", *c.MinSeedNeighbours)
	}
	if c.EnergyTolerance != nil && (*c.EnergyTolerance < 0 || *c.EnergyTolerance >= 1) {
		return fmt.Errorf("energy_tolerance must be in [0, 1), got %g", *c.EnergyTolerance)
	}
	if c.SynthShowersPerEvent != nil && *c.SynthShowersPerEvent < 0 {
		return fmt.Errorf("synth_showers_per_event must be non-negative, got %d", *c.SynthShowersPerEvent)
	}
	if c.SynthShowerEnergy != nil && *c.SynthShowerEnergy <= 0 {
		return fmt.Errorf("synth_shower_energy must be positive, got %f", *c.SynthShowerEnergy)
	}
	if c.SynthShowerWidth != nil && *c.SynthShowerWidth <= 0 {
		return fmt.Errorf("synth_shower_width must be positive, got %f", *c.SynthShowerWidth)
	}
	if c.SynthSeedThreshold != nil && c.SynthNeighbourThreshold != nil &&
		*c.SynthNeighbourThreshold > *c.SynthSeedThreshold {
		return fmt.Errorf("synth_neighbour_threshold (%f) must not exceed synth_seed_threshold (%f)",
			*c.SynthNeighbourThreshold, *c.SynthSeedThreshold)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	return nil
}

// GetDeltaEtaTower returns the delta_eta_tower value or the default.
func (c *TuningConfig) GetDeltaEtaTower() float64 {
	if c.DeltaEtaTower == nil {
		return 0.01
	}
	return *c.DeltaEtaTower
}

// GetDeltaPhiTower returns the delta_phi_tower value or the default.
func (c *TuningConfig) GetDeltaPhiTower() float64 {
	if c.DeltaPhiTower == nil {
		return 2 * math.Pi / 704 // one ECAL barrel module
	}
	return *c.DeltaPhiTower
}

// GetRadiusForPosition returns the radius_for_position value or the default.
func (c *TuningConfig) GetRadiusForPosition() float64 {
	if c.RadiusForPosition == nil {
		return 1.0
	}
	return *c.RadiusForPosition
}

// GetWindowEta returns the window_eta value or the default.
func (c *TuningConfig) GetWindowEta() int {
	if c.WindowEta == nil {
		return 2
	}
	return *c.WindowEta
}

// GetWindowPhi returns the window_phi value or the default.
func (c *TuningConfig) GetWindowPhi() int {
	if c.WindowPhi == nil {
		return 2
	}
	return *c.WindowPhi
}

// GetWindowShape returns the window_shape value or the default.
func (c *TuningConfig) GetWindowShape() string {
	if c.WindowShape == nil || *c.WindowShape == "" {
		return "rectangle"
	}
	return *c.WindowShape
}

// GetSplitEnergyThreshold returns the split_energy_threshold value or the default.
func (c *TuningConfig) GetSplitEnergyThreshold() float64 {
	if c.SplitEnergyThreshold == nil {
		return 0.1
	}
	return *c.SplitEnergyThreshold
}

// GetMinSeedNeighbours returns the min_seed_neighbours value or the default.
func (c *TuningConfig) GetMinSeedNeighbours() int {
	if c.MinSeedNeighbours == nil {
		return 5
	}
	return *c.MinSeedNeighbours
}

// GetEnergyTolerance returns the energy_tolerance value or the default.
func (c *TuningConfig) GetEnergyTolerance() float64 {
	if c.EnergyTolerance == nil {
		return 1e-6
	}
	return *c.EnergyTolerance
}

// GetSynthSeed returns the synth_seed value or the default.
func (c *TuningConfig) GetSynthSeed() int64 {
	if c.SynthSeed == nil {
		return 1
	}
	return *c.SynthSeed
}

// GetSynthShowersPerEvent returns the synth_showers_per_event value or the default.
func (c *TuningConfig) GetSynthShowersPerEvent() int {
	if c.SynthShowersPerEvent == nil {
		return 3
	}
	return *c.SynthShowersPerEvent
}

// GetSynthShowerEnergy returns the synth_shower_energy value or the default.
func (c *TuningConfig) GetSynthShowerEnergy() float64 {
	if c.SynthShowerEnergy == nil {
		return 50
	}
	return *c.SynthShowerEnergy
}

// GetSynthShowerWidth returns the synth_shower_width value or the default.
func (c *TuningConfig) GetSynthShowerWidth() float64 {
	if c.SynthShowerWidth == nil {
		return 0.02
	}
	return *c.SynthShowerWidth
}

// GetSynthSeedThreshold returns the synth_seed_threshold value or the default.
func (c *TuningConfig) GetSynthSeedThreshold() float64 {
	if c.SynthSeedThreshold == nil {
		return 0.5
	}
	return *c.SynthSeedThreshold
}

// GetSynthNeighbourThreshold returns the synth_neighbour_threshold value or the default.
func (c *TuningConfig) GetSynthNeighbourThreshold() float64 {
	if c.SynthNeighbourThreshold == nil {
		return 0.05
	}
	return *c.SynthNeighbourThreshold
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}
