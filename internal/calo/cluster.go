package calo

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// ClusterType records how a cluster left the splitting stage.
type ClusterType int

const (
	// ClusterUnprocessed is the zero value for clusters not yet seen by
	// the splitter.
	ClusterUnprocessed ClusterType = 0
	// ClusterUnsplit is an input cluster emitted unchanged.
	ClusterUnsplit ClusterType = 1
	// ClusterSplit is a sub-cluster grown from one confirmed seed.
	ClusterSplit ClusterType = 2
	// ClusterLeftover collects cells no sub-cluster reached.
	ClusterLeftover ClusterType = 3
)

func (t ClusterType) String() string {
	switch t {
	case ClusterUnprocessed:
		return "unprocessed"
	case ClusterUnsplit:
		return "unsplit"
	case ClusterSplit:
		return "split"
	case ClusterLeftover:
		return "leftover"
	default:
		return fmt.Sprintf("ClusterType(%d)", int(t))
	}
}

// Cluster is a set of cells with an aggregate energy and a 3-D position
// in the detector frame (mm).
type Cluster struct {
	Energy   float64
	Position r3.Vec
	Type     ClusterType
	Hits     []Cell
}

// Clone returns a deep copy: the hit list is copied cell by cell.
func (c Cluster) Clone() Cluster {
	out := c
	out.Hits = make([]Cell, len(c.Hits))
	for i, h := range c.Hits {
		out.Hits[i] = h.Clone()
	}
	return out
}

// AddHit appends a clone of the cell to the hit list. Energy and position
// are not touched; callers own the aggregate.
func (c *Cluster) AddHit(cell Cell) {
	c.Hits = append(c.Hits, cell.Clone())
}

// HitEnergy returns the sum of hit energies, which for a well-formed
// cluster equals Energy.
func (c Cluster) HitEnergy() float64 {
	return TotalEnergy(c.Hits)
}
