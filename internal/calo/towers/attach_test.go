package towers

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/calo.report/internal/calo"
	"github.com/banshee-data/calo.report/internal/calo/geometry"
)

func TestWindow_Contains(t *testing.T) {
	count := func(w Window) int {
		n := 0
		for dEta := -5; dEta <= 5; dEta++ {
			for dPhi := -5; dPhi <= 5; dPhi++ {
				if w.Contains(dEta, dPhi) {
					n++
				}
			}
		}
		return n
	}

	assert.Equal(t, 25, count(Window{HalfEta: 2, HalfPhi: 2}))
	assert.Equal(t, 21, count(Window{HalfEta: 2, HalfPhi: 2, Shape: WindowEllipse}), "corners are outside")
	assert.Equal(t, 9, count(Window{HalfEta: 1, HalfPhi: 1, Shape: WindowEllipse}))
	assert.Equal(t, 3, count(Window{HalfEta: 1, Shape: WindowEllipse}))
	assert.False(t, Window{HalfEta: 2, HalfPhi: 2, Shape: WindowEllipse}.Contains(2, 2))
	assert.True(t, Window{HalfEta: 2, HalfPhi: 2, Shape: WindowEllipse}.Contains(2, 1))
}

func TestParseWindowShape(t *testing.T) {
	s, err := ParseWindowShape("ellipse")
	require.NoError(t, err)
	assert.Equal(t, WindowEllipse, s)
	s, err = ParseWindowShape("")
	require.NoError(t, err)
	assert.Equal(t, WindowRectangle, s)
	_, err = ParseWindowShape("circle")
	assert.Error(t, err)
	assert.Equal(t, "ellipse", WindowEllipse.String())
}

func TestAttachCells(t *testing.T) {
	d := newTestDetector(t)
	m := d.mapper(t, testConfig().WithSource("fine", "fine").WithSource("wide", "wide"))
	grid := m.NewGrid()

	wideCell := calo.Cell{ID: d.wide.CellID(0, 0, 2), Energy: 8} // towers (4,2) and (5,2)
	event := calo.Collections{
		"fine": {
			{ID: d.fine.CellID(0, 5, 3), Energy: 1},
			{ID: d.fine.CellID(0, 9, 3), Energy: 2}, // outside the window
		},
		"wide": {wideCell},
	}
	_, err := m.BuildTowers(grid, event, true)
	require.NoError(t, err)

	var cluster calo.Cluster
	out := m.AttachCells(Window{Eta: 5, Phi: 2, HalfEta: 1, HalfPhi: 1}, &cluster, nil)

	require.Len(t, out, 2, "the wide cell is attached once")
	ids := []calo.CellID{out[0].ID, out[1].ID}
	assert.ElementsMatch(t, []calo.CellID{wideCell.ID, d.fine.CellID(0, 5, 3)}, ids)
	if diff := cmp.Diff(out, cluster.Hits); diff != "" {
		t.Errorf("cluster hits differ from output (-out +hits):\n%s", diff)
	}

	// Output is cloned: changing it leaves the index untouched.
	out[0].Energy = -1
	for _, c := range m.Index().Cells(TowerKey{Eta: 5, Phi: 2}) {
		assert.NotEqual(t, -1.0, c.Energy)
	}

	// Appends to an existing output collection.
	more := m.AttachCells(Window{Eta: 9, Phi: 3}, nil, out)
	assert.Len(t, more, 3)
}

func TestAttachCells_PhiWrap(t *testing.T) {
	d := newTestDetector(t)
	m := d.mapper(t, testConfig().WithSource("fine", "fine"))
	grid := m.NewGrid()

	last := calo.Cell{ID: d.fine.CellID(0, 4, 7), Energy: 1}
	first := calo.Cell{ID: d.fine.CellID(0, 4, 0), Energy: 1}
	_, err := m.BuildTowers(grid, calo.Collections{"fine": {last, first}}, true)
	require.NoError(t, err)

	out := m.AttachCells(Window{Eta: 4, Phi: 0, HalfPhi: 1}, nil, nil)
	assert.ElementsMatch(t, []calo.Cell{last, first}, out)

	out = m.AttachCells(Window{Eta: 4, Phi: 7, HalfPhi: 1}, nil, nil)
	assert.ElementsMatch(t, []calo.Cell{last, first}, out)
}

func TestAttachCellsByScan_MatchesIndex(t *testing.T) {
	d := newTestDetector(t)
	m := d.mapper(t, testConfig().WithSource("fine", "fine"))
	grid := m.NewGrid()

	var cells []calo.Cell
	for eta := int64(0); eta < 10; eta++ {
		for phi := int64(0); phi < 8; phi++ {
			cells = append(cells, calo.Cell{ID: d.fine.CellID(0, eta, phi), Energy: float64(eta + phi)})
		}
	}
	event := calo.Collections{"fine": cells}
	_, err := m.BuildTowers(grid, event, true)
	require.NoError(t, err)

	sortCells := cmpopts.SortSlices(func(a, b calo.Cell) bool { return a.ID < b.ID })
	for _, w := range []Window{
		{Eta: 5, Phi: 0, HalfEta: 2, HalfPhi: 2},
		{Eta: 1, Phi: 7, HalfEta: 1, HalfPhi: 3, Shape: WindowEllipse},
		{Eta: 9, Phi: 4, HalfEta: 2, HalfPhi: 1},
	} {
		var a, b calo.Cluster
		indexed := m.AttachCells(w, &a, nil)
		scanned := m.AttachCellsByScan(w, event, &b, nil)
		if diff := cmp.Diff(indexed, scanned, sortCells); diff != "" {
			t.Errorf("window %+v: scan differs from index (-index +scan):\n%s", w, diff)
		}
		assert.Len(t, b.Hits, len(scanned))
	}
}

func TestTowerPositionAndWindowEnergy(t *testing.T) {
	d := newTestDetector(t)
	m := d.mapper(t, testConfig().WithSource("fine", "fine"))

	pos := m.TowerPosition(7, 3)
	assert.InDelta(t, m.Eta(7), geometry.PseudoRapidity(pos), 1e-12)
	assert.InDelta(t, m.Phi(3), geometry.Azimuth(pos), 1e-12)
	assert.InDelta(t, m.TowerPosition(7, 11).X, pos.X, 1e-9, "phi index wraps")

	grid := m.NewGrid()
	grid.Add(4, 0, 1)
	grid.Add(4, 7, 2)
	grid.Add(6, 0, 4)
	assert.InDelta(t, 3.0, m.WindowEnergy(grid, Window{Eta: 4, Phi: 0, HalfPhi: 1}), 1e-12)
	assert.InDelta(t, 7.0, m.WindowEnergy(grid, Window{Eta: 5, Phi: 0, HalfEta: 1, HalfPhi: 1}), 1e-12)
}
