package towers

import (
	"fmt"
	"math"

	"github.com/banshee-data/calo.report/internal/calo"
	"github.com/banshee-data/calo.report/internal/calo/geometry"
)

// epsilon nudges cell edges inward before tower lookup so that an edge on
// a tower boundary belongs to exactly one tower, and trims the grid extent
// so that an exact boundary does not open an extra tower.
const epsilon = 1e-4

type source struct {
	SourceConfig
	seg   geometry.Segmentation // nil when the readout is absent
	layer *geometry.BitField    // nil when depth filtering is off
}

// Mapper re-bins the cells of one or more detector partitions into a
// uniform (eta, phi) tower grid. A Mapper owns its cell index and is not
// safe for concurrent use; run one Mapper per worker.
type Mapper struct {
	cfg     Config
	sources []source

	etaMax float64
	phiMax float64
	nEta   int
	nPhi   int

	index *CellIndex
}

// NewMapper resolves every source against the registry and sizes the
// tower grid. A required readout that is missing, or any readout with an
// unsupported segmentation, fails here.
func NewMapper(reg geometry.ReadoutRegistry, cfg *Config) (*Mapper, error) {
	if reg == nil {
		return nil, fmt.Errorf("no readout registry configured")
	}
	if cfg == nil {
		return nil, fmt.Errorf("nil tower config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tower config: %w", err)
	}
	m := &Mapper{cfg: *cfg, index: NewCellIndex()}
	m.cfg.Sources = append([]SourceConfig(nil), cfg.Sources...)

	for _, sc := range m.cfg.Sources {
		src := source{SourceConfig: sc}
		seg, ok := reg.Segmentation(sc.Readout)
		switch {
		case !ok && sc.Optional:
			diagf("readout %s for %s not registered, skipping", sc.Readout, sc.Name)
		case !ok:
			return nil, fmt.Errorf("source %s: %w: %q", sc.Name, geometry.ErrReadoutNotFound, sc.Readout)
		case seg.Kind() == geometry.KindInvalid:
			_, err := seg.Grid(0)
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		default:
			src.seg = seg
			etaMax, phiMax := seg.Extrema()
			m.etaMax = math.Max(m.etaMax, etaMax)
			m.phiMax = math.Max(m.phiMax, phiMax)
			if sc.Depth.Mode != DepthAll {
				layer, err := seg.Decoder().Field("layer")
				if err != nil {
					diagf("source %s: readout %s has no layer field, depth filter disabled", sc.Name, sc.Readout)
				} else {
					src.layer = layer
				}
			}
		}
		m.sources = append(m.sources, src)
	}

	m.nEta = towerCount(m.etaMax, m.cfg.DeltaEtaTower)
	m.nPhi = towerCount(m.phiMax, m.cfg.DeltaPhiTower)
	diagf("tower grid %d x %d (|eta| <= %.4f, |phi| <= %.4f)", m.nEta, m.nPhi, m.etaMax, m.phiMax)
	return m, nil
}

func towerCount(extent, size float64) int {
	n := int(math.Ceil(2 * (extent - epsilon) / size))
	if n < 0 {
		return 0
	}
	return n
}

// TowersNumber returns the grid dimensions in eta and phi.
func (m *Mapper) TowersNumber() (nEta, nPhi int) { return m.nEta, m.nPhi }

// Extent returns the half-extent of the tower grid in eta and phi.
func (m *Mapper) Extent() (etaMax, phiMax float64) { return m.etaMax, m.phiMax }

// NewGrid returns an empty grid with this mapper's dimensions.
func (m *Mapper) NewGrid() *Grid { return NewGrid(m.nEta, m.nPhi) }

// Index returns the tower-to-cells index of the last build.
func (m *Mapper) Index() *CellIndex { return m.index }

// Config returns a copy of the configuration the mapper was built with.
func (m *Mapper) Config() Config { return m.cfg }

// IDEta returns the eta tower index containing eta. Values outside the
// grid give indices outside [0, nEta).
func (m *Mapper) IDEta(eta float64) int {
	return int(math.Floor((eta + m.etaMax) / m.cfg.DeltaEtaTower))
}

// IDPhi returns the phi tower index containing phi, without wrapping.
func (m *Mapper) IDPhi(phi float64) int {
	return int(math.Floor((phi + m.phiMax) / m.cfg.DeltaPhiTower))
}

// Eta returns the eta of the centre of tower row i.
func (m *Mapper) Eta(i int) float64 {
	return (float64(i)+0.5)*m.cfg.DeltaEtaTower - m.etaMax
}

// Phi returns the phi of the centre of tower column i.
func (m *Mapper) Phi(i int) float64 {
	return (float64(i)+0.5)*m.cfg.DeltaPhiTower - m.phiMax
}

// PhiNeighbour wraps a phi index into [0, nPhi).
func (m *Mapper) PhiNeighbour(i int) int {
	if m.nPhi == 0 {
		return 0
	}
	i %= m.nPhi
	if i < 0 {
		i += m.nPhi
	}
	return i
}

// span is the set of towers one cell covers along one coordinate, with
// the fraction of the cell's width in the first, last and each middle
// tower.
type span struct {
	lo, hi         int
	fLo, fMid, fHi float64
}

func (s span) fraction(i int) float64 {
	switch {
	case s.lo == s.hi:
		return 1
	case i == s.lo:
		return s.fLo
	case i == s.hi:
		return s.fHi
	default:
		return s.fMid
	}
}

// cellSpan splits the interval [centre-half, centre+half] over towers of
// the given size whose index 0 starts at -extent.
func cellSpan(centre, half, extent, size float64) span {
	cellMin, cellMax := centre-half, centre+half
	lo := int(math.Floor((cellMin + epsilon + extent) / size))
	hi := int(math.Floor((cellMax - epsilon + extent) / size))
	if hi <= lo {
		return span{lo: lo, hi: lo, fLo: 1}
	}
	width := cellMax - cellMin
	s := span{lo: lo, hi: hi}
	s.fLo = (float64(lo+1)*size - extent - cellMin) / width
	s.fHi = (cellMax - (float64(hi)*size - extent)) / width
	if gap := hi - lo; gap > 1 {
		s.fMid = (1 - s.fLo - s.fHi) / float64(gap-1)
	}
	return s
}

// BuildTowers resets grid and the cell index, then accumulates the
// transverse energy of every configured source into grid. With fillCells
// set, each (tower, cell) contribution is recorded in Index. The count is
// the summed size of the input collections of sources with a
// segmentation, filtered cells included.
func (m *Mapper) BuildTowers(grid *Grid, collections calo.Collections, fillCells bool) (int, error) {
	if grid == nil {
		return 0, fmt.Errorf("nil grid")
	}
	if grid.NEta != m.nEta || grid.NPhi != m.nPhi {
		return 0, fmt.Errorf("grid is %dx%d, mapper expects %dx%d", grid.NEta, grid.NPhi, m.nEta, m.nPhi)
	}
	grid.Reset()
	m.index.Reset()

	total := 0
	for _, src := range m.sources {
		if src.seg == nil {
			diagf("source %s has no segmentation, contributes nothing", src.Name)
			continue
		}
		cells, ok := collections[src.Name]
		if !ok {
			diagf("source %s: no cell collection in event", src.Name)
			continue
		}
		total += len(cells)
		used := 0
		for _, cell := range cells {
			if src.layer != nil && !src.Depth.Accept(src.layer.Value(cell.ID)) {
				continue
			}
			if err := m.addCell(grid, src.seg, cell, fillCells); err != nil {
				opsf("source %s: %v", src.Name, err)
				continue
			}
			used++
		}
		tracef("source %s: %d of %d cells used", src.Name, used, len(cells))
	}
	if grid.Dropped > 0 {
		opsf("%.4g GeV of transverse energy fell outside the eta range of the tower grid", grid.Dropped)
	}
	return total, nil
}

func (m *Mapper) addCell(grid *Grid, seg geometry.Segmentation, cell calo.Cell, fillCells bool) error {
	g, err := seg.Grid(cell.ID)
	if err != nil {
		return err
	}
	eta, phi := g.Eta(cell.ID), g.Phi(cell.ID)
	halfEta, halfPhi := g.HalfWidths()
	etaSpan := cellSpan(eta, halfEta, m.etaMax, m.cfg.DeltaEtaTower)
	phiSpan := cellSpan(phi, halfPhi, m.phiMax, m.cfg.DeltaPhiTower)

	et := cell.Energy / math.Cosh(eta)
	for iEta := etaSpan.lo; iEta <= etaSpan.hi; iEta++ {
		fEta := etaSpan.fraction(iEta)
		for i := phiSpan.lo; i <= phiSpan.hi; i++ {
			iPhi := m.PhiNeighbour(i)
			if !grid.Add(iEta, iPhi, et*fEta*phiSpan.fraction(i)) {
				continue
			}
			if fillCells {
				m.index.Add(TowerKey{Eta: iEta, Phi: iPhi}, cell)
			}
		}
	}
	return nil
}
