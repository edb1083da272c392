package geometry

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/calo.report/internal/calo"
)

// PositionLookup returns the detector-frame position of a cell in mm.
type PositionLookup interface {
	Position(id calo.CellID) r3.Vec
}

// CylinderPositions places the cells of a segmentation on a barrel
// cylinder. With layer radii set, the radius of a cell is taken from its
// "layer" field; cells on layers outside the table use the base radius.
type CylinderPositions struct {
	seg        Segmentation
	radius     float64
	layerRadii []float64
	layer      *BitField
}

// NewCylinderPositions builds a lookup at a fixed radius, or at per-layer
// radii when layerRadii is non-empty.
func NewCylinderPositions(seg Segmentation, radius float64, layerRadii ...float64) (*CylinderPositions, error) {
	if seg == nil || seg.Kind() == KindInvalid {
		return nil, fmt.Errorf("%w: cannot place cells without a phi-eta segmentation", ErrInvalidSegmentation)
	}
	if radius <= 0 {
		return nil, fmt.Errorf("radius must be positive, got %g", radius)
	}
	p := &CylinderPositions{seg: seg, radius: radius}
	if len(layerRadii) > 0 {
		layer, err := seg.Decoder().Field("layer")
		if err != nil {
			return nil, fmt.Errorf("per-layer radii: %w", err)
		}
		p.layer = layer
		p.layerRadii = append([]float64(nil), layerRadii...)
	}
	return p, nil
}

// Position implements PositionLookup. Cells the segmentation cannot
// resolve are reported on the ops stream and placed at the origin.
func (p *CylinderPositions) Position(id calo.CellID) r3.Vec {
	grid, err := p.seg.Grid(id)
	if err != nil {
		opsf("position of cell %d: %v", id, err)
		return r3.Vec{}
	}
	r := p.radius
	if p.layer != nil {
		if l := p.layer.Value(id); l >= 0 && int(l) < len(p.layerRadii) {
			r = p.layerRadii[l]
		}
	}
	return CylinderPoint(r, grid.Eta(id), grid.Phi(id))
}

// SystemPositions routes position lookups by the "system" field of the
// cell ID, so that cells of several detectors can share one lookup.
type SystemPositions struct {
	system  *BitField
	systems map[int64]PositionLookup
}

// NewSystemPositions reads the system field through decoder.
func NewSystemPositions(decoder *BitFieldCoder) (*SystemPositions, error) {
	if decoder == nil {
		return nil, fmt.Errorf("nil decoder")
	}
	system, err := decoder.Field("system")
	if err != nil {
		return nil, err
	}
	return &SystemPositions{system: system, systems: make(map[int64]PositionLookup)}, nil
}

// Register routes cells of the given system to lookup.
func (s *SystemPositions) Register(system int64, lookup PositionLookup) {
	s.systems[system] = lookup
}

// Position implements PositionLookup. Cells of an unregistered system are
// reported on the ops stream and placed at the origin.
func (s *SystemPositions) Position(id calo.CellID) r3.Vec {
	system := s.system.Value(id)
	lookup, ok := s.systems[system]
	if !ok {
		opsf("no position lookup for system %d (cell %d)", system, id)
		return r3.Vec{}
	}
	return lookup.Position(id)
}

// CachedPositions memoises another lookup. It is safe for concurrent use.
type CachedPositions struct {
	inner PositionLookup

	mu     sync.RWMutex
	cache  map[calo.CellID]r3.Vec
	hits   int64
	misses int64
}

func NewCachedPositions(inner PositionLookup) *CachedPositions {
	return &CachedPositions{inner: inner, cache: make(map[calo.CellID]r3.Vec)}
}

func (c *CachedPositions) Position(id calo.CellID) r3.Vec {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.cache[id]; ok {
		c.hits++
		return v
	}
	c.misses++
	v := c.inner.Position(id)
	c.cache[id] = v
	tracef("cached position of cell %d: %v", id, v)
	return v
}

// Stats returns cache hits and misses.
func (c *CachedPositions) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

var (
	_ PositionLookup = (*CylinderPositions)(nil)
	_ PositionLookup = (*SystemPositions)(nil)
	_ PositionLookup = (*CachedPositions)(nil)
)
