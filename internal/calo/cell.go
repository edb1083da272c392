package calo

import "fmt"

// CellID is the bit-packed geometric identifier of a calorimeter cell.
// Its layout is owned by the readout's bit-field coder.
type CellID uint64

// CellType is the per-cell classification assigned by the clustering
// stage that formed the input cluster.
type CellType int

const (
	// CellUnclassified is the zero value; cells outside any cluster.
	CellUnclassified CellType = 0
	// CellSeed marks a local-maximum candidate above the seed threshold.
	CellSeed CellType = 1
	// CellNeighbour marks a supporting cell above the neighbour threshold.
	CellNeighbour CellType = 2
	// CellLastNeighbour marks cells added in the final clustering sweep.
	CellLastNeighbour CellType = 3
	// CellLeftover marks cells no sub-cluster claimed during splitting.
	CellLeftover CellType = 4
)

func (t CellType) String() string {
	switch t {
	case CellUnclassified:
		return "unclassified"
	case CellSeed:
		return "seed"
	case CellNeighbour:
		return "neighbour"
	case CellLastNeighbour:
		return "last-neighbour"
	case CellLeftover:
		return "leftover"
	default:
		return fmt.Sprintf("CellType(%d)", int(t))
	}
}

// Cell is one readout unit for one event. Cells are immutable while an
// event is processed; components that keep a cell store a Clone.
type Cell struct {
	ID     CellID
	Energy float64 // GeV
	Type   CellType
}

// Clone returns an independent copy of the cell.
func (c Cell) Clone() Cell { return c }

// WithType returns a copy of the cell carrying the given type.
func (c Cell) WithType(t CellType) Cell {
	c.Type = t
	return c
}

// Collections maps a detector partition name (for example "ecalBarrel")
// to the cells read for that partition in one event.
type Collections map[string][]Cell

// Size returns the total number of cells across all partitions.
func (c Collections) Size() int {
	n := 0
	for _, cells := range c {
		n += len(cells)
	}
	return n
}

// TotalEnergy sums the energies of cells.
func TotalEnergy(cells []Cell) float64 {
	var sum float64
	for _, c := range cells {
		sum += c.Energy
	}
	return sum
}
