package synth

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/calo.report/internal/calo"
	"github.com/banshee-data/calo.report/internal/calo/geometry"
	"github.com/banshee-data/calo.report/internal/calo/towers"
)

func testConfig() Config {
	return Config{
		Seed:               7,
		ShowersPerEvent:    2,
		ShowerEnergy:       40,
		ShowerWidth:        0.02,
		SeedThreshold:      0.5,
		NeighbourThreshold: 0.05,
	}
}

func TestNewDetector(t *testing.T) {
	d, err := NewDetector()
	require.NoError(t, err)

	assert.Equal(t, []string{ReadoutECal, ReadoutEndcap, ReadoutHCal}, d.Registry.Readouts())
	etaMax, phiMax := d.ECal.Extrema()
	assert.InDelta(t, 0.5, etaMax, 1e-12)
	assert.InDelta(t, math.Pi, phiMax, 1e-12)
	etaMax, _ = d.HCal.Extrema()
	assert.InDelta(t, 0.5, etaMax, 1e-12)

	// 2 ECal layers of 40x128 and HCal layers of 20x64 (x2) and 10x32 (x2).
	assert.Equal(t, 2*40*128+2*20*64+2*10*32, d.Neighbours.Cells())

	_, err = geometry.RequireSegmentation(d.Registry, ReadoutEndcap)
	assert.True(t, errors.Is(err, geometry.ErrInvalidSegmentation))
}

func TestDetectorNeighbours(t *testing.T) {
	d, err := NewDetector()
	require.NoError(t, err)

	l0, l1 := d.ECalLayers[0], d.ECalLayers[1]
	nb := d.Neighbours.Neighbours(l0.Cell(10, 0))
	assert.Len(t, nb, 9, "8 in-layer cells plus the next layer")
	assert.Contains(t, nb, l0.Cell(10, 127), "phi wraps")
	assert.Contains(t, nb, l1.Cell(10, 0))

	// Edge of the eta range has no wrap.
	assert.Len(t, d.Neighbours.Neighbours(l0.Cell(0, 5)), 6)

	// HCal layers 1 and 2 have different grids and are not linked.
	h1, h2 := d.HCalLayers[1], d.HCalLayers[2]
	assert.NotContains(t, d.Neighbours.Neighbours(h1.Cell(3, 3)), h2.Cell(3, 3))
}

func TestDetectorPositions(t *testing.T) {
	d, err := NewDetector()
	require.NoError(t, err)

	id := d.ECalLayers[1].Cell(20, 64)
	p := d.Positions.Position(id)
	assert.InDelta(t, 1980, math.Hypot(p.X, p.Y), 1e-9)
	assert.InDelta(t, d.ECal.Eta(id), geometry.PseudoRapidity(p), 1e-12)

	h := d.HCalLayers[3].Cell(5, 16)
	p = d.Positions.Position(h)
	assert.InDelta(t, 3800, math.Hypot(p.X, p.Y), 1e-9)

	d.Positions.Position(id)
	hits, misses := d.Positions.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestLayerCellAt(t *testing.T) {
	d, err := NewDetector()
	require.NoError(t, err)
	l := d.ECalLayers[0]

	id, ok := l.CellAt(l.Grid.Eta(l.Cell(7, 9)), l.Grid.Phi(l.Cell(7, 9)))
	require.True(t, ok)
	assert.Equal(t, l.Cell(7, 9), id)

	id, ok = l.CellAt(0, math.Pi-1e-6)
	require.True(t, ok)
	assert.Equal(t, int64(127), l.Grid.PhiIndex(id))

	id, ok = l.CellAt(0, math.Pi+0.01)
	require.True(t, ok)
	assert.Equal(t, int64(0), l.Grid.PhiIndex(id), "phi past π wraps to bin 0")

	_, ok = l.CellAt(0.6, 0)
	assert.False(t, ok)
}

func TestGeneratorIsReproducible(t *testing.T) {
	d, err := NewDetector()
	require.NoError(t, err)

	g1, err := NewGenerator(d, testConfig())
	require.NoError(t, err)
	g2, err := NewGenerator(d, testConfig())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		a, b := g1.Next(), g2.Next()
		assert.Equal(t, i, a.Number)
		if diff := cmp.Diff(a, b); diff != "" {
			t.Fatalf("event %d differs (-a +b):\n%s", i, diff)
		}
	}
}

func TestGeneratorEvent(t *testing.T) {
	d, err := NewDetector()
	require.NoError(t, err)
	cfg := testConfig()
	g, err := NewGenerator(d, cfg)
	require.NoError(t, err)

	ev := g.Next()
	require.Len(t, ev.Showers, cfg.ShowersPerEvent)
	assert.NotEmpty(t, ev.Collections[CollectionECal])
	assert.NotEmpty(t, ev.Collections[CollectionHCal])

	var deposited float64
	for _, cells := range ev.Collections {
		deposited += calo.TotalEnergy(cells)
	}
	var generated float64
	for _, s := range ev.Showers {
		assert.LessOrEqual(t, math.Abs(s.Eta), showerEtaRange)
		generated += s.Energy
	}
	assert.LessOrEqual(t, deposited, generated+1e-9)
	assert.Greater(t, deposited, 0.9*generated)

	require.NotEmpty(t, ev.Clusters)
	seen := map[calo.CellID]bool{}
	for _, cl := range ev.Clusters {
		assert.InDelta(t, cl.HitEnergy(), cl.Energy, 1e-9)
		seeds := 0
		for _, h := range cl.Hits {
			assert.False(t, seen[h.ID], "cell %d in two clusters", h.ID)
			seen[h.ID] = true
			switch h.Type {
			case calo.CellSeed:
				seeds++
				assert.Greater(t, h.Energy, cfg.SeedThreshold)
			case calo.CellNeighbour:
				assert.Greater(t, h.Energy, cfg.NeighbourThreshold)
				assert.LessOrEqual(t, h.Energy, cfg.SeedThreshold)
			default:
				t.Errorf("unexpected cell type %v", h.Type)
			}
		}
		assert.Positive(t, seeds)
	}
}

func TestTopoClusters(t *testing.T) {
	d, err := NewDetector()
	require.NoError(t, err)
	l := d.ECalLayers[0]

	coll := calo.Collections{CollectionECal: {
		{ID: l.Cell(5, 5), Energy: 2},
		{ID: l.Cell(5, 6), Energy: 0.2},
		{ID: l.Cell(5, 7), Energy: 0.01}, // below neighbour threshold
		{ID: l.Cell(5, 8), Energy: 1},
		{ID: l.Cell(20, 20), Energy: 0.3}, // no seed
	}}
	clusters := d.TopoClusters(coll, 0.5, 0.05)
	require.Len(t, clusters, 2)

	assert.Equal(t, []calo.Cell{
		{ID: l.Cell(5, 5), Energy: 2, Type: calo.CellSeed},
		{ID: l.Cell(5, 6), Energy: 0.2, Type: calo.CellNeighbour},
	}, clusters[0].Hits)
	assert.Equal(t, []calo.Cell{{ID: l.Cell(5, 8), Energy: 1, Type: calo.CellSeed}}, clusters[1].Hits)
	assert.InDelta(t, 2.2, clusters[0].Energy, 1e-12)
}

func TestPipelineEventCentres(t *testing.T) {
	d, err := NewDetector()
	require.NoError(t, err)
	cfg := (&towers.Config{}).WithTowerSize(0.05, 2*math.Pi/64).WithRadiusForPosition(1900)
	cfg.Sources = d.Sources(false)
	m, err := towers.NewMapper(d.Registry, cfg)
	require.NoError(t, err)

	ev := &Event{Number: 3, Showers: []Shower{{Eta: 0.01, Phi: 0.01, Energy: 10}, {Eta: 0.9, Phi: 0, Energy: 10}}}
	pe := ev.PipelineEvent(m)
	assert.Equal(t, 3, pe.Number)
	require.Len(t, pe.Centres, 1, "shower outside the grid is skipped")
	assert.Equal(t, m.IDEta(0.01), pe.Centres[0].Eta)
	assert.Equal(t, m.IDPhi(0.01), pe.Centres[0].Phi)
}

func TestSourcesWithEndcapFail(t *testing.T) {
	d, err := NewDetector()
	require.NoError(t, err)
	cfg := (&towers.Config{}).WithTowerSize(0.05, 0.1).WithRadiusForPosition(1900)
	cfg.Sources = d.Sources(true)
	_, err = towers.NewMapper(d.Registry, cfg)
	assert.True(t, errors.Is(err, geometry.ErrInvalidSegmentation))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())

	bad := testConfig()
	bad.NeighbourThreshold = 1
	assert.Error(t, bad.Validate())

	bad = testConfig()
	bad.ShowerWidth = 0
	assert.Error(t, bad.Validate())

	_, err := NewGenerator(nil, testConfig())
	assert.Error(t, err)
}
