package synth

import (
	"fmt"
	"math"

	"github.com/banshee-data/calo.report/internal/calo"
	"github.com/banshee-data/calo.report/internal/calo/geometry"
	"github.com/banshee-data/calo.report/internal/calo/pipeline"
	"github.com/banshee-data/calo.report/internal/calo/towers"
)

// Descriptor is the cell ID layout shared by every synthetic readout.
const Descriptor = "system:4,layer:5,eta:-10,phi:10"

// Detector systems, readouts and cell collections of the synthetic barrel.
const (
	SystemECal int64 = 5
	SystemHCal int64 = 8

	ReadoutECal    = "ECalBarrelPhiEta"
	ReadoutHCal    = "HCalBarrelPhiEta"
	ReadoutEndcap  = "EMECTurbine"
	CollectionECal = "ECalBarrelCells"
	CollectionHCal = "HCalBarrelCells"
)

// Layer is one readout layer of a synthetic calorimeter.
type Layer struct {
	System  int64
	Index   int64
	Radius  float64 // mm
	Grid    *geometry.PhiEtaGrid
	EtaBins int64
	base    calo.CellID
}

// Cell returns the ID of the cell at the given bin indices.
func (l Layer) Cell(eta, phi int64) calo.CellID { return l.Grid.CellID(l.base, eta, phi) }

// CellAt returns the cell containing (eta, phi), or false when eta is
// outside the layer.
func (l Layer) CellAt(eta, phi float64) (calo.CellID, bool) {
	i := int64(math.Round((eta - l.Grid.OffsetEta) / l.Grid.GridSizeEta))
	if i < 0 || i >= l.EtaBins {
		return 0, false
	}
	bins := int64(l.Grid.PhiBins)
	j := int64(math.Round((phi - l.Grid.OffsetPhi) / l.Grid.GridSizePhi()))
	j = (j%bins + bins) % bins
	return l.Cell(i, j), true
}

// Detector is a small barrel with an ECal on one phi-eta grid and an HCal
// whose inner and outer layers use different granularity.
type Detector struct {
	Decoder    *geometry.BitFieldCoder
	Registry   *geometry.Detector
	ECal       *geometry.PhiEtaGrid
	HCal       *geometry.MultiSegmentation
	ECalLayers []Layer
	HCalLayers []Layer
	Neighbours *geometry.NeighbourGraph
	Positions  *geometry.CachedPositions
}

// grid builds a phi-eta grid with bins centred symmetrically about eta 0
// and starting half a bin above -π.
func grid(name string, decoder *geometry.BitFieldCoder, sizeEta float64, etaBins int64, phiBins int) (*geometry.PhiEtaGrid, error) {
	offsetEta := -sizeEta * float64(etaBins-1) / 2
	return geometry.NewPhiEtaGrid(name, decoder, sizeEta, offsetEta, phiBins, -math.Pi+math.Pi/float64(phiBins))
}

// NewDetector builds the readouts, neighbour graph and position lookup.
// The endcap readout is registered with an unsupported segmentation.
func NewDetector() (*Detector, error) {
	decoder, err := geometry.NewBitFieldCoder(Descriptor)
	if err != nil {
		return nil, err
	}
	d := &Detector{
		Decoder:    decoder,
		Registry:   geometry.NewDetector(),
		Neighbours: geometry.NewNeighbourGraph(),
	}

	const ecalEtaBins = 40
	if d.ECal, err = grid(ReadoutECal, decoder, 0.025, ecalEtaBins, 128); err != nil {
		return nil, err
	}
	hcalInner, err := grid(ReadoutHCal, decoder, 0.05, 20, 64)
	if err != nil {
		return nil, err
	}
	hcalOuter, err := grid(ReadoutHCal, decoder, 0.1, 10, 32)
	if err != nil {
		return nil, err
	}
	d.HCal, err = geometry.NewMultiSegmentation(ReadoutHCal, decoder, "layer", []geometry.SubSegmentation{
		{KeyMin: 0, KeyMax: 1, Segmentation: hcalInner},
		{KeyMin: 2, KeyMax: 3, Segmentation: hcalOuter},
	})
	if err != nil {
		return nil, err
	}

	for _, seg := range []geometry.Segmentation{
		d.ECal,
		d.HCal,
		geometry.InvalidSegmentation{ReadoutName: ReadoutEndcap, TypeName: "FCCSWEndcapTurbine_k4geo"},
	} {
		if err := d.Registry.AddReadout(seg); err != nil {
			return nil, err
		}
	}

	ecalRadii := []float64{1920, 1980}
	for i, r := range ecalRadii {
		l, err := d.layer(SystemECal, int64(i), r, d.ECal, ecalEtaBins)
		if err != nil {
			return nil, err
		}
		d.ECalLayers = append(d.ECalLayers, l)
	}
	hcalRadii := []float64{2900, 3100, 3400, 3800}
	for i, r := range hcalRadii {
		g, etaBins := hcalInner, int64(20)
		if i >= 2 {
			g, etaBins = hcalOuter, 10
		}
		l, err := d.layer(SystemHCal, int64(i), r, g, etaBins)
		if err != nil {
			return nil, err
		}
		d.HCalLayers = append(d.HCalLayers, l)
	}

	if err := d.link(); err != nil {
		return nil, err
	}

	ecalPos, err := geometry.NewCylinderPositions(d.ECal, ecalRadii[0], ecalRadii...)
	if err != nil {
		return nil, err
	}
	hcalPos, err := geometry.NewCylinderPositions(d.HCal, hcalRadii[0], hcalRadii...)
	if err != nil {
		return nil, err
	}
	systems, err := geometry.NewSystemPositions(decoder)
	if err != nil {
		return nil, err
	}
	systems.Register(SystemECal, ecalPos)
	systems.Register(SystemHCal, hcalPos)
	d.Positions = geometry.NewCachedPositions(systems)

	diagf("synthetic detector: %d ECal and %d HCal layers, %d cells linked",
		len(d.ECalLayers), len(d.HCalLayers), d.Neighbours.Cells())
	return d, nil
}

func (d *Detector) layer(system, index int64, radius float64, g *geometry.PhiEtaGrid, etaBins int64) (Layer, error) {
	base, err := d.Decoder.Encode(map[string]int64{"system": system, "layer": index})
	if err != nil {
		return Layer{}, fmt.Errorf("layer %d of system %d: %w", index, system, err)
	}
	return Layer{System: system, Index: index, Radius: radius, Grid: g, EtaBins: etaBins, base: base}, nil
}

// link connects cells within each layer, including diagonals, and each
// cell to the cell at the same bins in the adjacent layer of the same
// granularity.
func (d *Detector) link() error {
	layers := append(append([]Layer(nil), d.ECalLayers...), d.HCalLayers...)
	for i, l := range layers {
		if err := d.Neighbours.LinkGrid(l.Grid, l.base, 0, l.EtaBins-1, true); err != nil {
			return err
		}
		if i == 0 {
			continue
		}
		prev := layers[i-1]
		if prev.System != l.System || prev.Grid != l.Grid {
			continue
		}
		for eta := int64(0); eta < l.EtaBins; eta++ {
			for phi := int64(0); phi < int64(l.Grid.PhiBins); phi++ {
				d.Neighbours.Link(prev.Cell(eta, phi), l.Cell(eta, phi))
			}
		}
	}
	return nil
}

// Sources returns the tower sources of the barrel: the ECal and the HCal,
// plus the endcap as an optional source when withEndcap is set. The
// endcap's segmentation is unsupported, so including it makes
// towers.NewMapper fail.
func (d *Detector) Sources(withEndcap bool) []towers.SourceConfig {
	sources := []towers.SourceConfig{
		{Name: CollectionECal, Readout: ReadoutECal},
		{Name: CollectionHCal, Readout: ReadoutHCal},
	}
	if withEndcap {
		sources = append(sources, towers.SourceConfig{Name: "EMECCells", Readout: ReadoutEndcap, Optional: true})
	}
	return sources
}

// Geometry returns the lookups a pipeline needs.
func (d *Detector) Geometry() pipeline.Geometry {
	return pipeline.Geometry{
		Readouts:   d.Registry,
		Neighbours: d.Neighbours,
		Positions:  d.Positions,
	}
}
