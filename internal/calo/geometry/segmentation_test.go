package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/calo.report/internal/calo"
)

func newTestGrid(t *testing.T, name string, sizeEta, offsetEta float64, bins int) *PhiEtaGrid {
	t.Helper()
	g, err := NewPhiEtaGrid(name, MustBitFieldCoder(testDescriptor), sizeEta, offsetEta, bins, -math.Pi+math.Pi/float64(bins))
	require.NoError(t, err)
	return g
}

func TestPhiEtaGrid_CentresAndExtrema(t *testing.T) {
	g := newTestGrid(t, "ecal", 0.1, -1.05, 8)

	id := g.CellID(0, 3, 0)
	assert.InDelta(t, -0.75, g.Eta(id), 1e-12)
	assert.InDelta(t, -math.Pi+math.Pi/8, g.Phi(id), 1e-12)
	assert.Equal(t, int64(3), g.EtaIndex(id))
	assert.Equal(t, int64(0), g.PhiIndex(id))

	etaMax, phiMax := g.Extrema()
	assert.InDelta(t, 1.1, etaMax, 1e-12)
	assert.InDelta(t, math.Pi, phiMax, 1e-12)

	halfEta, halfPhi := g.HalfWidths()
	assert.InDelta(t, 0.05, halfEta, 1e-12)
	assert.InDelta(t, math.Pi/8, halfPhi, 1e-12)

	same, err := g.Grid(id)
	require.NoError(t, err)
	assert.Same(t, g, same)
}

func TestPhiEtaGrid_NegativeEtaIndex(t *testing.T) {
	g := newTestGrid(t, "ecal", 0.01, 0.005, 4)
	id := g.CellID(0, -20, 2)
	assert.Equal(t, int64(-20), g.EtaIndex(id))
	assert.InDelta(t, -0.195, g.Eta(id), 1e-12)
}

func TestNewPhiEtaGrid_Errors(t *testing.T) {
	coder := MustBitFieldCoder(testDescriptor)
	_, err := NewPhiEtaGrid("x", nil, 0.1, 0, 4, 0)
	assert.Error(t, err)
	_, err = NewPhiEtaGrid("x", coder, 0, 0, 4, 0)
	assert.Error(t, err)
	_, err = NewPhiEtaGrid("x", coder, 0.1, 0, 0, 0)
	assert.Error(t, err)
	_, err = NewPhiEtaGrid("x", MustBitFieldCoder("system:4,layer:5"), 0.1, 0, 4, 0)
	assert.True(t, errors.Is(err, ErrUnknownField))
}

func TestMultiSegmentation(t *testing.T) {
	coder := MustBitFieldCoder(testDescriptor)
	fine := newTestGrid(t, "fine", 0.025, -0.9875, 256)
	coarse := newTestGrid(t, "coarse", 0.1, -1.65, 64)

	m, err := NewMultiSegmentation("hcal", coder, "layer", []SubSegmentation{
		{KeyMin: 0, KeyMax: 1, Segmentation: fine},
		{KeyMin: 2, KeyMax: 5, Segmentation: coarse},
	})
	require.NoError(t, err)
	assert.Equal(t, KindMulti, m.Kind())

	etaMax, phiMax := m.Extrema()
	assert.InDelta(t, 1.7, etaMax, 1e-12)
	assert.InDelta(t, math.Pi, phiMax, 1e-12)

	layer1, _ := coder.Set(0, "layer", 1)
	layer4, _ := coder.Set(0, "layer", 4)
	layer7, _ := coder.Set(0, "layer", 7)

	g, err := m.Grid(layer1)
	require.NoError(t, err)
	assert.Same(t, fine, g)
	g, err = m.Grid(layer4)
	require.NoError(t, err)
	assert.Same(t, coarse, g)
	_, err = m.Grid(layer7)
	assert.Error(t, err)

	assert.Len(t, m.Grids(), 2)
}

func TestMultiSegmentation_Invalid(t *testing.T) {
	coder := MustBitFieldCoder(testDescriptor)

	_, err := NewMultiSegmentation("hcal", coder, "layer", nil)
	assert.True(t, errors.Is(err, ErrInvalidSegmentation))

	_, err = NewMultiSegmentation("hcal", coder, "layer", []SubSegmentation{
		{KeyMin: 0, KeyMax: 1, Segmentation: InvalidSegmentation{ReadoutName: "sub", TypeName: "CartesianGridXY"}},
	})
	assert.True(t, errors.Is(err, ErrInvalidSegmentation))

	_, err = NewMultiSegmentation("hcal", coder, "module", []SubSegmentation{
		{KeyMin: 0, KeyMax: 1, Segmentation: newTestGrid(t, "g", 0.1, 0, 4)},
	})
	assert.True(t, errors.Is(err, ErrUnknownField))
}

func TestInvalidSegmentation(t *testing.T) {
	s := InvalidSegmentation{ReadoutName: "muon", TypeName: "CartesianGridXZ"}
	assert.Equal(t, KindInvalid, s.Kind())
	etaMax, phiMax := s.Extrema()
	assert.Equal(t, -1.0, etaMax)
	assert.Equal(t, -1.0, phiMax)
	_, err := s.Grid(calo.CellID(1))
	assert.True(t, errors.Is(err, ErrInvalidSegmentation))
}

func TestDetector(t *testing.T) {
	d := NewDetector()
	g := newTestGrid(t, "ecal", 0.1, 0, 4)
	require.NoError(t, d.AddReadout(g))
	require.NoError(t, d.AddReadout(InvalidSegmentation{ReadoutName: "muon", TypeName: "CartesianGridXZ"}))
	assert.Error(t, d.AddReadout(g), "duplicate readout")
	assert.Error(t, d.AddReadout(nil))

	assert.Equal(t, []string{"ecal", "muon"}, d.Readouts())

	seg, err := RequireSegmentation(d, "ecal")
	require.NoError(t, err)
	assert.Equal(t, "ecal", seg.Name())

	_, err = RequireSegmentation(d, "hcal")
	assert.True(t, errors.Is(err, ErrReadoutNotFound))

	_, err = RequireSegmentation(d, "muon")
	assert.True(t, errors.Is(err, ErrInvalidSegmentation))

	_, err = RequireSegmentation(nil, "ecal")
	assert.Error(t, err)
}
