package towers

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/calo.report/internal/calo"
)

// Grid holds the transverse energy of each tower for one event, stored
// row-major in eta: index = iEta*NPhi + iPhi.
type Grid struct {
	NEta   int
	NPhi   int
	Energy []float64 // GeV, transverse

	// Dropped is the transverse energy that fell outside [0, NEta) in eta.
	Dropped float64
}

// NewGrid allocates an empty grid.
func NewGrid(nEta, nPhi int) *Grid {
	if nEta < 0 {
		nEta = 0
	}
	if nPhi < 0 {
		nPhi = 0
	}
	return &Grid{NEta: nEta, NPhi: nPhi, Energy: make([]float64, nEta*nPhi)}
}

// Idx returns the flat index of tower (iEta, iPhi).
func (g *Grid) Idx(iEta, iPhi int) int {
	return iEta*g.NPhi + iPhi
}

// InRange reports whether (iEta, iPhi) addresses a tower of the grid.
func (g *Grid) InRange(iEta, iPhi int) bool {
	return iEta >= 0 && iEta < g.NEta && iPhi >= 0 && iPhi < g.NPhi
}

// At returns the energy of a tower, or 0 outside the grid.
func (g *Grid) At(iEta, iPhi int) float64 {
	if !g.InRange(iEta, iPhi) {
		return 0
	}
	return g.Energy[g.Idx(iEta, iPhi)]
}

// Add accumulates e into a tower. Contributions outside the grid are
// counted in Dropped and reported as false.
func (g *Grid) Add(iEta, iPhi int, e float64) bool {
	if !g.InRange(iEta, iPhi) {
		g.Dropped += e
		return false
	}
	g.Energy[g.Idx(iEta, iPhi)] += e
	return true
}

// Reset zeroes every tower.
func (g *Grid) Reset() {
	for i := range g.Energy {
		g.Energy[i] = 0
	}
	g.Dropped = 0
}

// Total returns the summed transverse energy of all towers.
func (g *Grid) Total() float64 {
	return floats.Sum(g.Energy)
}

// Max returns the highest tower energy and its indices. An empty grid
// returns (0, -1, -1).
func (g *Grid) Max() (e float64, iEta, iPhi int) {
	if len(g.Energy) == 0 {
		return 0, -1, -1
	}
	i := floats.MaxIdx(g.Energy)
	return g.Energy[i], i / g.NPhi, i % g.NPhi
}

// Occupied counts towers with non-zero energy.
func (g *Grid) Occupied() int {
	n := 0
	for _, e := range g.Energy {
		if e != 0 {
			n++
		}
	}
	return n
}

func (g *Grid) String() string {
	return fmt.Sprintf("Grid{%dx%d, total=%.4g, dropped=%.4g}", g.NEta, g.NPhi, g.Total(), g.Dropped)
}

// TowerKey addresses one tower of the grid.
type TowerKey struct {
	Eta int
	Phi int
}

// CellIndex records which cells contributed to which tower. Each entry is
// a clone of the input cell, in contribution order.
type CellIndex struct {
	cells map[TowerKey][]calo.Cell
	pairs int
}

// NewCellIndex returns an empty index.
func NewCellIndex() *CellIndex {
	return &CellIndex{cells: make(map[TowerKey][]calo.Cell)}
}

// Add records that cell contributed to tower k.
func (x *CellIndex) Add(k TowerKey, cell calo.Cell) {
	x.cells[k] = append(x.cells[k], cell.Clone())
	x.pairs++
}

// Cells returns the cells of tower k. The slice must not be modified.
func (x *CellIndex) Cells(k TowerKey) []calo.Cell {
	return x.cells[k]
}

// Towers returns the number of towers with at least one cell.
func (x *CellIndex) Towers() int { return len(x.cells) }

// Pairs returns the number of (tower, cell) records.
func (x *CellIndex) Pairs() int { return x.pairs }

// Reset drops every record.
func (x *CellIndex) Reset() {
	clear(x.cells)
	x.pairs = 0
}
