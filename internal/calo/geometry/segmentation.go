package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/calo.report/internal/calo"
)

// ErrInvalidSegmentation marks a readout whose segmentation is not a
// phi-eta grid or a multi-segmentation made only of phi-eta grids.
var ErrInvalidSegmentation = errors.New("invalid segmentation")

// SegmentationKind tags the segmentation variants.
type SegmentationKind int

const (
	KindInvalid SegmentationKind = iota
	KindPhiEta
	KindMulti
)

func (k SegmentationKind) String() string {
	switch k {
	case KindPhiEta:
		return "phi-eta"
	case KindMulti:
		return "multi"
	default:
		return "invalid"
	}
}

// Segmentation maps cell IDs of one readout to angular bins. A plain
// phi-eta grid resolves to itself; a multi-segmentation picks the sub-grid
// that serves the cell.
type Segmentation interface {
	Name() string
	Kind() SegmentationKind
	// Extrema returns the largest |eta| and |phi| reached by any bin edge.
	Extrema() (etaMax, phiMax float64)
	// Grid returns the phi-eta grid that describes the cell.
	Grid(id calo.CellID) (*PhiEtaGrid, error)
	Decoder() *BitFieldCoder
}

// PhiEtaGrid is a uniform grid in eta (fixed cell size) and phi (fixed
// number of bins over 2π). Bin centres are index*size + offset.
type PhiEtaGrid struct {
	name        string
	decoder     *BitFieldCoder
	etaField    *BitField
	phiField    *BitField
	GridSizeEta float64
	OffsetEta   float64
	PhiBins     int
	OffsetPhi   float64
}

// NewPhiEtaGrid builds a grid whose eta and phi indices live in the
// decoder fields "eta" and "phi".
func NewPhiEtaGrid(name string, decoder *BitFieldCoder, gridSizeEta, offsetEta float64, phiBins int, offsetPhi float64) (*PhiEtaGrid, error) {
	if decoder == nil {
		return nil, fmt.Errorf("segmentation %q: nil decoder", name)
	}
	if gridSizeEta <= 0 {
		return nil, fmt.Errorf("segmentation %q: grid size in eta must be positive, got %g", name, gridSizeEta)
	}
	if phiBins <= 0 {
		return nil, fmt.Errorf("segmentation %q: phi bins must be positive, got %d", name, phiBins)
	}
	etaField, err := decoder.Field("eta")
	if err != nil {
		return nil, fmt.Errorf("segmentation %q: %w", name, err)
	}
	phiField, err := decoder.Field("phi")
	if err != nil {
		return nil, fmt.Errorf("segmentation %q: %w", name, err)
	}
	return &PhiEtaGrid{
		name:        name,
		decoder:     decoder,
		etaField:    etaField,
		phiField:    phiField,
		GridSizeEta: gridSizeEta,
		OffsetEta:   offsetEta,
		PhiBins:     phiBins,
		OffsetPhi:   offsetPhi,
	}, nil
}

func (g *PhiEtaGrid) Name() string { return g.name }
func (g *PhiEtaGrid) Kind() SegmentationKind { return KindPhiEta }
func (g *PhiEtaGrid) Decoder() *BitFieldCoder { return g.decoder }
func (g *PhiEtaGrid) Grid(calo.CellID) (*PhiEtaGrid, error) { return g, nil }
func (g *PhiEtaGrid) GridSizePhi() float64 { return 2 * math.Pi / float64(g.PhiBins) }
func (g *PhiEtaGrid) HalfWidths() (halfEta, halfPhi float64) { return g.GridSizeEta / 2, math.Pi / float64(g.PhiBins) }

func (g *PhiEtaGrid) Extrema() (etaMax, phiMax float64) {
	return math.Abs(g.OffsetEta) + g.GridSizeEta*0.5, math.Abs(g.OffsetPhi) + math.Pi/float64(g.PhiBins)
}

// Eta returns the eta of the cell centre.
func (g *PhiEtaGrid) Eta(id calo.CellID) float64 {
	return float64(g.etaField.Value(id))*g.GridSizeEta + g.OffsetEta
}

// Phi returns the phi of the cell centre.
func (g *PhiEtaGrid) Phi(id calo.CellID) float64 {
	return float64(g.phiField.Value(id))*g.GridSizePhi() + g.OffsetPhi
}

// CellID encodes eta and phi bin indices on top of base, which carries
// any other fields (system, layer, ...).
func (g *PhiEtaGrid) CellID(base calo.CellID, etaIndex, phiIndex int64) calo.CellID {
	return g.phiField.Set(g.etaField.Set(base, etaIndex), phiIndex)
}

// EtaIndex and PhiIndex decode the bin indices of a cell.
func (g *PhiEtaGrid) EtaIndex(id calo.CellID) int64 { return g.etaField.Value(id) }
func (g *PhiEtaGrid) PhiIndex(id calo.CellID) int64 { return g.phiField.Value(id) }

// SubSegmentation binds a phi-eta grid to an inclusive key range of the
// multi-segmentation's key field.
type SubSegmentation struct {
	KeyMin, KeyMax int64
	Segmentation   Segmentation
}

// MultiSegmentation serves cells from several phi-eta grids, choosing
// the grid by a decoded key field (usually "layer").
type MultiSegmentation struct {
	name     string
	decoder  *BitFieldCoder
	keyField *BitField
	subs     []subGrid
}

type subGrid struct {
	min, max int64
	grid     *PhiEtaGrid
}

// NewMultiSegmentation validates that every sub-segmentation is a phi-eta
// grid; anything else is ErrInvalidSegmentation.
func NewMultiSegmentation(name string, decoder *BitFieldCoder, keyField string, subs []SubSegmentation) (*MultiSegmentation, error) {
	if decoder == nil {
		return nil, fmt.Errorf("segmentation %q: nil decoder", name)
	}
	key, err := decoder.Field(keyField)
	if err != nil {
		return nil, fmt.Errorf("segmentation %q: %w", name, err)
	}
	if len(subs) == 0 {
		return nil, fmt.Errorf("%w: multi-segmentation %q has no sub-segmentations", ErrInvalidSegmentation, name)
	}
	m := &MultiSegmentation{name: name, decoder: decoder, keyField: key}
	for i, s := range subs {
		grid, ok := s.Segmentation.(*PhiEtaGrid)
		if !ok || grid == nil {
			return nil, fmt.Errorf("%w: sub-segmentation %d of %q is not a phi-eta grid", ErrInvalidSegmentation, i, name)
		}
		if s.KeyMin > s.KeyMax {
			return nil, fmt.Errorf("segmentation %q: sub-segmentation %d has empty key range [%d, %d]", name, i, s.KeyMin, s.KeyMax)
		}
		m.subs = append(m.subs, subGrid{min: s.KeyMin, max: s.KeyMax, grid: grid})
	}
	return m, nil
}

func (m *MultiSegmentation) Name() string { return m.name }
func (m *MultiSegmentation) Kind() SegmentationKind { return KindMulti }
func (m *MultiSegmentation) Decoder() *BitFieldCoder { return m.decoder }

// Extrema is the maximum over all sub-grids.
func (m *MultiSegmentation) Extrema() (etaMax, phiMax float64) {
	etaMax, phiMax = -1, -1
	for _, s := range m.subs {
		eta, phi := s.grid.Extrema()
		etaMax = math.Max(etaMax, eta)
		phiMax = math.Max(phiMax, phi)
	}
	return etaMax, phiMax
}

// Grid picks the first sub-grid whose key range contains the cell's key.
func (m *MultiSegmentation) Grid(id calo.CellID) (*PhiEtaGrid, error) {
	key := m.keyField.Value(id)
	for _, s := range m.subs {
		if key >= s.min && key <= s.max {
			return s.grid, nil
		}
	}
	return nil, fmt.Errorf("segmentation %q: no sub-segmentation for %s=%d (cell %d)", m.name, m.keyField.Name, key, id)
}

// Grids returns the sub-grids in declaration order.
func (m *MultiSegmentation) Grids() []*PhiEtaGrid {
	out := make([]*PhiEtaGrid, len(m.subs))
	for i, s := range m.subs {
		out[i] = s.grid
	}
	return out
}

// InvalidSegmentation stands for a readout whose segmentation type is not
// supported. It is registered like any other so that the failure surfaces
// at configuration time instead of as a missing readout.
type InvalidSegmentation struct {
	ReadoutName string
	TypeName    string
}

func (s InvalidSegmentation) Name() string { return s.ReadoutName }
func (s InvalidSegmentation) Kind() SegmentationKind { return KindInvalid }
func (s InvalidSegmentation) Decoder() *BitFieldCoder { return nil }

func (s InvalidSegmentation) Extrema() (etaMax, phiMax float64) { return -1, -1 }

func (s InvalidSegmentation) Grid(calo.CellID) (*PhiEtaGrid, error) {
	return nil, fmt.Errorf("%w: readout %q uses %s", ErrInvalidSegmentation, s.ReadoutName, s.TypeName)
}

var (
	_ Segmentation = (*PhiEtaGrid)(nil)
	_ Segmentation = (*MultiSegmentation)(nil)
	_ Segmentation = InvalidSegmentation{}
)
